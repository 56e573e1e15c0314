package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/services"
)

func intPtr(n int) *int    { return &n }
func u8(n uint8) *uint8    { return &n }
func boolPtr(b bool) *bool { return &b }

func prim(p metadata.PrimitiveType) *metadata.Property {
	return &metadata.Property{Name: "P", Kind: metadata.KindPrimitive, Type: p}
}

func TestManifest_StoreType(t *testing.T) {
	m, err := New().Manifest(ManifestToken)
	require.NoError(t, err)

	tests := []struct {
		name string
		prop *metadata.Property
		want provider.StoreType
	}{
		{"int32", prim(metadata.Int32), provider.StoreType{Name: "INTEGER"}},
		{"bool", prim(metadata.Boolean), provider.StoreType{Name: "BOOLEAN"}},
		{"unbounded string", prim(metadata.String), provider.StoreType{Name: "TEXT"}},
		{"bounded string", &metadata.Property{Type: metadata.String, MaxLength: intPtr(40)},
			provider.StoreType{Name: "VARCHAR", MaxLength: intPtr(40)}},
		{"fixed string", &metadata.Property{Type: metadata.String, MaxLength: intPtr(2), FixedLength: boolPtr(true)},
			provider.StoreType{Name: "CHAR", MaxLength: intPtr(2)}},
		{"max string", &metadata.Property{Type: metadata.String, MaxLength: intPtr(40), IsMaxLength: true},
			provider.StoreType{Name: "TEXT"}},
		{"default decimal", prim(metadata.Decimal),
			provider.StoreType{Name: "NUMERIC", Precision: u8(18), Scale: u8(2)}},
		{"decimal facets", &metadata.Property{Type: metadata.Decimal, Precision: u8(10), Scale: u8(4)},
			provider.StoreType{Name: "NUMERIC", Precision: u8(10), Scale: u8(4)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.StoreType(tt.prop)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestManifest_UnknownToken(t *testing.T) {
	_, err := New().Manifest("2008")
	assert.Error(t, err)
}

func TestManifest_ParseStoreType(t *testing.T) {
	m, _ := New().Manifest(ManifestToken)

	st, err := m.ParseStoreType("varchar(20)")
	require.NoError(t, err)
	assert.Equal(t, "VARCHAR", st.Name)
	assert.Equal(t, 20, *st.MaxLength)

	st, err = m.ParseStoreType("decimal(9, 3)")
	require.NoError(t, err)
	assert.Equal(t, uint8(9), *st.Precision)
	assert.Equal(t, uint8(3), *st.Scale)

	_, err = m.ParseStoreType("money")
	var unsupported *provider.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)

	_, err = m.ParseStoreType("decimal(2,5)")
	assert.Error(t, err)
}

func blogTables() []*metadata.Table {
	return []*metadata.Table{
		{
			Name:       "Blogs",
			PrimaryKey: []string{"ID"},
			Columns: []*metadata.Column{
				{Name: "ID", StoreType: "INTEGER", Identity: true},
				{Name: "Title", StoreType: "VARCHAR", MaxLength: intPtr(200)},
			},
		},
		{
			Name:       "Posts",
			PrimaryKey: []string{"ID"},
			Columns: []*metadata.Column{
				{Name: "ID", StoreType: "INTEGER", Identity: true},
				{Name: "BlogID", StoreType: "INTEGER"},
				{Name: "Body", StoreType: "TEXT", Nullable: true},
			},
			ForeignKeys: []*metadata.ForeignKey{{
				Name: "FK_Posts_Blogs_BlogID", Columns: []string{"BlogID"},
				PrincipalTable: "dbo.Blogs", PrincipalColumns: []string{"ID"}, CascadeDelete: true,
			}},
			Indexes: []*metadata.Index{{Name: "IX_Posts_BlogID", Columns: []string{"BlogID"}}},
		},
	}
}

func TestMigrationSQLGenerator_CreateTable(t *testing.T) {
	tables := blogTables()
	stmts, err := NewMigrationSQLGenerator().Generate([]services.MigrationOperation{
		services.CreateTableOperation{Table: tables[1]},
		services.CreateIndexOperation{Table: "Posts", Index: tables[1].Indexes[0]},
	}, ManifestToken)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.Equal(t, `CREATE TABLE "Posts" (
    "ID" INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
    "BlogID" INTEGER NOT NULL,
    "Body" TEXT,
    CONSTRAINT "FK_Posts_Blogs_BlogID" FOREIGN KEY ("BlogID") REFERENCES "Blogs" ("ID") ON DELETE CASCADE
)`, stmts[0].SQL)
	assert.Equal(t, `CREATE INDEX "IX_Posts_BlogID" ON "Posts" ("BlogID")`, stmts[1].SQL)
}

func TestMigrationSQLGenerator_CompositeKey(t *testing.T) {
	table := &metadata.Table{
		Name:       "BlogTags",
		PrimaryKey: []string{"Blog_ID", "Tag_ID"},
		Columns: []*metadata.Column{
			{Name: "Blog_ID", StoreType: "INTEGER"},
			{Name: "Tag_ID", StoreType: "INTEGER"},
		},
	}
	stmts, err := NewMigrationSQLGenerator().Generate(
		[]services.MigrationOperation{services.CreateTableOperation{Table: table}}, ManifestToken)
	require.NoError(t, err)
	assert.Contains(t, stmts[0].SQL, `CONSTRAINT "PK_BlogTags" PRIMARY KEY ("Blog_ID", "Tag_ID")`)
}

func TestServices_CreateExistsDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	conn, err := ConnectionFactory{Dir: t.TempDir()}.CreateConnection("Blogging")
	require.NoError(t, err)
	assert.Equal(t, "Blogging", conn.Database)

	exists, err := s.DatabaseExists(ctx, conn)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.CreateDatabase(ctx, conn))
	exists, err = s.DatabaseExists(ctx, conn)
	require.NoError(t, err)
	assert.True(t, exists)

	db, err := s.Open(conn)
	require.NoError(t, err)
	stmts, err := NewMigrationSQLGenerator().Generate([]services.MigrationOperation{
		services.CreateTableOperation{Table: blogTables()[0]},
	}, ManifestToken)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, stmts[0].SQL)
	require.NoError(t, err)

	found, err := TableExistenceChecker{}.AnyModelTableExists(ctx, db, blogTables())
	require.NoError(t, err)
	assert.True(t, found)
	require.NoError(t, db.Close())

	require.NoError(t, s.DeleteDatabase(ctx, conn))
	exists, err = s.DatabaseExists(ctx, conn)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConnectionFactory_PassesThroughPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.db")
	conn, err := ConnectionFactory{Dir: "ignored"}.CreateConnection(path)
	require.NoError(t, err)
	assert.Equal(t, path, conn.DataSource)

	_, err = ConnectionFactory{}.CreateConnection("")
	assert.Error(t, err)
}
