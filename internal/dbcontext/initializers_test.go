package dbcontext

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/migrations"
	"github.com/roach88/codefirst/internal/services"
)

// listPluralizer names tables differently, which changes the model hash.
type listPluralizer struct{}

func (listPluralizer) Pluralize(word string) string   { return word + "List" }
func (listPluralizer) Singularize(word string) string { return word }

func withInitializer(t *testing.T, init services.DatabaseInitializer) func(*dbconfig.Configuration) {
	return func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetDatabaseInitializer(reflect.TypeFor[BlogContext](), init))
	}
}

func seedOne(ctx context.Context, db *Database) error {
	c := db.Owner().(*BlogContext)
	if err := c.Blogs.Add(&Blog{Title: "seeded"}); err != nil {
		return err
	}
	_, err := c.SaveChanges(ctx)
	return err
}

func TestCreateIfNotExistsRecordsHistory(t *testing.T) {
	m := newManager(t, t.TempDir(), nil)
	c := openBlogs(t, m)
	ctx := context.Background()

	rows, err := c.Database().History(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, c.ContextKey(), rows[0].ContextKey)
	assert.Equal(t, c.Model().Hash(), rows[0].ModelHash)
	assert.Contains(t, rows[0].MigrationID, "_"+migrations.InitialCreate)

	ok, err := c.Database().CompatibleWithModel(ctx, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInitializerRunsOncePerDatabase(t *testing.T) {
	runs := 0
	m := newManager(t, t.TempDir(), withInitializer(t, &DropCreateDatabaseAlways{
		Seed: func(ctx context.Context, db *Database) error {
			runs++
			return seedOne(ctx, db)
		},
	}))

	openBlogs(t, m)
	openBlogs(t, m)
	assert.Equal(t, 1, runs)

	other := &BlogContext{}
	require.NoError(t, Init(context.Background(), other, "elsewhere", WithManager(m)))
	defer other.Close()
	assert.Equal(t, 2, runs)
}

func TestCreateIfNotExistsRejectsChangedModel(t *testing.T) {
	dir := t.TempDir()
	openBlogs(t, newManager(t, dir, nil)).Close()

	changed := newManager(t, dir, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetPluralizer(listPluralizer{}))
	})
	err := Init(context.Background(), &BlogContext{}, "blogs", WithManager(changed))
	assert.True(t, IsIncompatibleModel(err))
}

func TestDropCreateAlwaysRecreatesAndSeeds(t *testing.T) {
	m := newManager(t, t.TempDir(), withInitializer(t, &DropCreateDatabaseAlways{Seed: seedOne}))
	ctx := context.Background()
	c := openBlogs(t, m)
	assert.Equal(t, 1, countRows(t, c, "Blogs"))

	require.NoError(t, c.Blogs.Add(&Blog{Title: "extra"}))
	_, err := c.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, countRows(t, c, "Blogs"))

	require.NoError(t, c.Database().Initialize(ctx, true))
	assert.Equal(t, 1, countRows(t, c, "Blogs"))
}

func TestDropCreateIfModelChanges(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	original := openBlogs(t, newManager(t, dir, nil))
	originalHash := original.Model().Hash()
	original.Close()

	// Same model: the database is kept.
	same := openBlogs(t, newManager(t, dir, withInitializer(t, &DropCreateDatabaseIfModelChanges{Seed: seedOne})))
	assert.Zero(t, countRows(t, same, "Blogs"))
	same.Close()

	changed := openBlogs(t, newManager(t, dir, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetPluralizer(listPluralizer{}))
		withInitializer(t, &DropCreateDatabaseIfModelChanges{Seed: seedOne})(cfg)
	}))
	assert.NotEqual(t, originalHash, changed.Model().Hash())
	assert.Equal(t, 1, countRows(t, changed, "BlogList"))

	rows, err := changed.Database().History(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, changed.Model().Hash(), rows[0].ModelHash)
}

func TestDropCreateIfModelChangesNeedsHistory(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir, withInitializer(t, services.NullDatabaseInitializer{}))
	c := openBlogs(t, m)
	require.NoError(t, c.Database().Create(context.Background()))

	db, err := c.Database().DB()
	require.NoError(t, err)
	_, err = db.Exec(`DROP TABLE "__MigrationHistory"`)
	require.NoError(t, err)

	err = (&DropCreateDatabaseIfModelChanges{}).InitializeDatabase(context.Background(), c.Database())
	assert.True(t, migrations.IsNoMetadata(err))
}

func TestNilInitializerDisablesInitialization(t *testing.T) {
	m := newManager(t, t.TempDir(), withInitializer(t, nil))
	c := openBlogs(t, m)

	exists, err := c.Database().Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithoutInitializationSkipsInitializer(t *testing.T) {
	m := newManager(t, t.TempDir(), nil)
	c := openBlogs(t, m, WithoutInitialization())
	ctx := context.Background()

	exists, err := c.Database().Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = c.Database().CompatibleWithModel(ctx, true)
	assert.True(t, migrations.IsNoMetadata(err))
	ok, err := c.Database().CompatibleWithModel(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Database().Initialize(ctx, false))
	exists, err = c.Database().Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestConfigurationFileSelectsInitializer(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir, func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetAppConfig(&appconfig.File{
			Contexts: map[string]appconfig.ContextSettings{
				"BlogContext": {Initializer: appconfig.InitializerNull},
			},
		}))
		// The file wins over code.
		withInitializer(t, &DropCreateDatabaseAlways{})(cfg)
	})
	c := openBlogs(t, m)
	exists, err := c.Database().Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoFileExists(t, filepath.Join(dir, "blogs.db"))
}

func TestConfigurationFileDisablesInitialization(t *testing.T) {
	m := newManager(t, t.TempDir(), func(cfg *dbconfig.Configuration) {
		require.NoError(t, cfg.SetAppConfig(&appconfig.File{
			Contexts: map[string]appconfig.ContextSettings{
				"BlogContext": {DisableInitialization: true, Initializer: appconfig.InitializerDropCreateAlways},
			},
		}))
	})
	c := openBlogs(t, m)
	exists, err := c.Database().Exists(context.Background())
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInitializerByName(t *testing.T) {
	for name, want := range map[string]services.DatabaseInitializer{
		appconfig.InitializerCreateIfNotExists:        &CreateDatabaseIfNotExists{},
		appconfig.InitializerDropCreateAlways:         &DropCreateDatabaseAlways{},
		appconfig.InitializerDropCreateIfModelChanges: &DropCreateDatabaseIfModelChanges{},
		appconfig.InitializerNull:                     services.NullDatabaseInitializer{},
	} {
		got, err := InitializerByName(name)
		require.NoError(t, err, name)
		assert.IsType(t, want, got, name)
	}
	_, err := InitializerByName("sometimes")
	assert.Error(t, err)
}

func TestCreateFailsWhenTablesExist(t *testing.T) {
	m := newManager(t, t.TempDir(), nil)
	c := openBlogs(t, m)

	err := c.Database().Create(context.Background())
	assert.True(t, IsDatabaseExists(err))
}

func TestDeleteReportsWhetherDatabaseExisted(t *testing.T) {
	dir := t.TempDir()
	m := newManager(t, dir, nil)
	c := openBlogs(t, m)
	ctx := context.Background()

	deleted, err := c.Database().Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, filepath.Join(dir, "blogs.db"))

	deleted, err = c.Database().Delete(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)

	created, err := c.Database().CreateIfNotExists(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = c.Database().CreateIfNotExists(ctx)
	require.NoError(t, err)
	assert.False(t, created)
}
