package migrations

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/services"
	"github.com/roach88/codefirst/internal/testutil"
)

type Blog struct {
	ID    int
	Title string `db:"maxlength:200"`
	Posts []*Post
}

type Post struct {
	ID     int
	BlogID int
	Body   string
	Blog   *Blog
	Tags   []*Tag
}

type Tag struct {
	ID    int
	Name  string
	Posts []*Post
}

var fixedTime = time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)

type fixture struct {
	cfg   *dbconfig.Configuration
	model *modelbuilder.DbModel
	conn  provider.Connection
	db    *sql.DB
}

func newFixture(t *testing.T, configure func(*dbconfig.Configuration)) *fixture {
	t.Helper()
	cfg := dbconfig.New()
	if configure != nil {
		configure(cfg)
	}
	conn := provider.Connection{
		ProviderName: sqlite.InvariantName,
		DataSource:   filepath.Join(t.TempDir(), "blog.db"),
		Database:     "blog",
	}

	b := modelbuilder.New(modelbuilder.WithConfiguration(cfg))
	modelbuilder.Entity[Blog](b)
	model, err := b.Build(conn)
	require.NoError(t, err)

	db, err := sqlite.New().Open(conn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &fixture{cfg: cfg, model: model, conn: conn, db: db}
}

func (f *fixture) migrator(opts ...Option) *Migrator {
	key := ir.ContextKey("migrations.BlogContext", f.conn.ProviderName, f.conn.Database)
	return New(f.cfg, f.model, f.conn, key, append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)...)
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n))
	return n == 1
}

func TestScript(t *testing.T) {
	f := newFixture(t, nil)
	stmts, err := f.migrator().Script()
	require.NoError(t, err)

	var b strings.Builder
	for _, s := range stmts {
		b.WriteString(s.SQL)
		b.WriteString(";\n")
	}
	testutil.AssertGolden(t, "blog_script", []byte(b.String()))
}

func TestOperationsOrderPrincipalsFirst(t *testing.T) {
	f := newFixture(t, nil)
	var tables []string
	for _, op := range f.migrator().Operations() {
		if ct, ok := op.(services.CreateTableOperation); ok {
			tables = append(tables, ct.Table.Name)
		}
	}
	assert.Equal(t, []string{services.DefaultHistoryTableName, "Blogs", "Tags", "Posts", "PostTags"}, tables)
}

func TestOrderTablesKeepsCyclesStable(t *testing.T) {
	a := &metadata.Table{Name: "A", ForeignKeys: []*metadata.ForeignKey{{PrincipalTable: "B"}}}
	b := &metadata.Table{Name: "B", ForeignKeys: []*metadata.ForeignKey{{PrincipalTable: "A"}}}
	self := &metadata.Table{Name: "Node", ForeignKeys: []*metadata.ForeignKey{{PrincipalTable: "Node"}}}

	out := OrderTables([]*metadata.Table{a, b, self})
	// The cycle is broken where it was entered; a self reference is ignored.
	assert.Equal(t, []*metadata.Table{b, self, a}, out)
}

func TestApplyCreatesSchemaAndHistory(t *testing.T) {
	f := newFixture(t, nil)
	m := f.migrator()
	ctx := context.Background()

	row, err := m.Apply(ctx, f.db)
	require.NoError(t, err)
	assert.Equal(t, "20240301123045_InitialCreate", row.MigrationID)
	assert.Equal(t, f.model.Hash(), row.ModelHash)
	assert.Equal(t, ProductVersion, row.ProductVersion)
	assert.Equal(t, int64(1), row.Seq)

	for _, name := range []string{"Blogs", "Posts", "Tags", "PostTags", services.DefaultHistoryTableName} {
		assert.True(t, tableExists(t, f.db, name), "table %s", name)
	}

	snapshot, err := row.Mapping()
	require.NoError(t, err)
	assert.Equal(t, f.model.Hash(), ir.MustModelHash(snapshot), "history snapshot hashes like the model")

	ok, err := m.CompatibleWithModel(ctx, f.db, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCompatibleWithModel(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	ok, err := f.migrator().CompatibleWithModel(ctx, f.db, false)
	require.NoError(t, err)
	assert.True(t, ok, "no metadata and no throw means compatible")

	_, err = f.migrator().CompatibleWithModel(ctx, f.db, true)
	assert.True(t, IsNoMetadata(err))

	_, err = f.migrator().Apply(ctx, f.db)
	require.NoError(t, err)

	// A different model for the same context key.
	b := modelbuilder.New(modelbuilder.WithConfiguration(f.cfg))
	modelbuilder.Entity[Tag](b).Property("Name").HasMaxLength(40)
	other, err := b.Build(f.conn)
	require.NoError(t, err)
	require.NotEqual(t, f.model.Hash(), other.Hash())

	key := ir.ContextKey("migrations.BlogContext", f.conn.ProviderName, f.conn.Database)
	ok, err = New(f.cfg, other, f.conn, key).CompatibleWithModel(ctx, f.db, true)
	require.NoError(t, err)
	assert.False(t, ok)
}

type recordingInterceptor struct {
	executing []string
	failures  int
}

func (*recordingInterceptor) InterceptorName() string { return "recording" }

func (r *recordingInterceptor) Executing(cmd *services.CommandInfo) {
	r.executing = append(r.executing, cmd.SQL)
}

func (r *recordingInterceptor) Executed(_ *services.CommandInfo, err error) {
	if err != nil {
		r.failures++
	}
}

func TestApplyNotifiesInterceptorsAndLogFormatter(t *testing.T) {
	rec := &recordingInterceptor{}
	f := newFixture(t, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.AddInterceptor(rec))
	})

	var log strings.Builder
	_, err := f.migrator(WithContextID("ctx-42"), WithLogSink(func(s string) { log.WriteString(s) })).
		Apply(context.Background(), f.db)
	require.NoError(t, err)

	require.Len(t, rec.executing, 7, "history table, four model tables, two indexes")
	assert.True(t, strings.HasPrefix(rec.executing[0], `CREATE TABLE "__MigrationHistory"`))
	assert.Zero(t, rec.failures)
	assert.Contains(t, log.String(), "-- context ctx-42: executing at 2024-03-01T12:30:45Z")
	assert.Contains(t, log.String(), `CREATE INDEX "IX_BlogID" ON "Posts" ("BlogID")`)
	assert.Equal(t, 7, strings.Count(log.String(), "-- completed in"))
}

type brokenGenerator struct{}

func (brokenGenerator) Generate(ops []services.MigrationOperation, token string) ([]services.MigrationStatement, error) {
	stmts, err := sqlite.NewMigrationSQLGenerator().Generate(ops, token)
	if err != nil {
		return nil, err
	}
	return append(stmts, services.MigrationStatement{SQL: "CREATE TABLE broken ("}), nil
}

func TestApplyRollsBackOnFailure(t *testing.T) {
	rec := &recordingInterceptor{}
	f := newFixture(t, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetMigrationSQLGenerator(sqlite.InvariantName, func() services.MigrationSQLGenerator {
			return brokenGenerator{}
		}))
		require.NoError(t, cfg.AddInterceptor(rec))
	})

	_, err := f.migrator().Apply(context.Background(), f.db)
	require.Error(t, err)
	assert.Equal(t, 1, rec.failures)
	assert.False(t, tableExists(t, f.db, "Blogs"))
	assert.False(t, tableExists(t, f.db, services.DefaultHistoryTableName))
}

type flakyHandler struct {
	begins int
}

func (h *flakyHandler) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	h.begins++
	if h.begins == 1 {
		return nil, errors.New("transient")
	}
	return db.BeginTx(ctx, nil)
}

func TestApplyRetriesThroughExecutionStrategy(t *testing.T) {
	handler := &flakyHandler{}
	f := newFixture(t, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetExecutionStrategy(sqlite.InvariantName, func() services.ExecutionStrategy {
			return services.RetryingExecutionStrategy{MaxRetries: 2}
		}))
		require.NoError(t, cfg.SetTransactionHandler(sqlite.InvariantName, func() services.TransactionHandler {
			return handler
		}))
	})

	row, err := f.migrator().Apply(context.Background(), f.db)
	require.NoError(t, err)
	assert.Equal(t, 2, handler.begins)
	assert.Equal(t, int64(1), row.Seq)
}

func TestHistoryContextFromConfiguration(t *testing.T) {
	f := newFixture(t, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetHistoryContext(sqlite.InvariantName, func(schema string) services.HistoryContext {
			return services.HistoryContext{TableName: "schema_history", Schema: schema}
		}))
	})
	m := f.migrator()
	assert.Equal(t, "schema_history", m.History().Name())

	_, err := m.Apply(context.Background(), f.db)
	require.NoError(t, err)
	assert.True(t, tableExists(t, f.db, "schema_history"))

	latest, ok, err := m.LatestHistory(context.Background(), f.db)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.model.Hash(), latest.ModelHash)
}
