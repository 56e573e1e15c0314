package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/services"
)

// MigrationSQLGenerator renders migration operations as SQLite DDL.
type MigrationSQLGenerator struct{}

// NewMigrationSQLGenerator is a services.MigrationSQLGeneratorFactory.
func NewMigrationSQLGenerator() services.MigrationSQLGenerator {
	return MigrationSQLGenerator{}
}

// Generate renders ops in order.
func (MigrationSQLGenerator) Generate(ops []services.MigrationOperation, manifestToken string) ([]services.MigrationStatement, error) {
	if manifestToken != ManifestToken {
		return nil, fmt.Errorf("sqlite: unknown manifest token %q", manifestToken)
	}
	out := make([]services.MigrationStatement, 0, len(ops))
	for _, op := range ops {
		switch op := op.(type) {
		case services.CreateTableOperation:
			out = append(out, services.MigrationStatement{SQL: createTable(op.Table)})
		case services.CreateIndexOperation:
			out = append(out, services.MigrationStatement{SQL: createIndex(op.Table, op.Index)})
		case services.DropTableOperation:
			out = append(out, services.MigrationStatement{
				SQL: "DROP TABLE IF EXISTS " + Quote(bareName(op.Table)),
			})
		default:
			return nil, fmt.Errorf("sqlite: unsupported migration operation %T", op)
		}
	}
	return out, nil
}

func createTable(t *metadata.Table) string {
	// A single INTEGER identity key becomes the rowid alias.
	rowid := ""
	if len(t.PrimaryKey) == 1 {
		if c := t.Column(t.PrimaryKey[0]); c != nil && c.Identity && c.StoreType == "INTEGER" {
			rowid = c.Name
		}
	}

	var defs []string
	for _, c := range orderedColumns(t.Columns) {
		def := Quote(c.Name) + " " + FormatStoreType(c)
		if c.Name == rowid {
			def += " PRIMARY KEY AUTOINCREMENT"
		}
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if rowid == "" && len(t.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s PRIMARY KEY (%s)",
			Quote("PK_"+t.Name), quoteList(t.PrimaryKey)))
	}
	for _, fk := range t.ForeignKeys {
		def := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			Quote(fk.Name), quoteList(fk.Columns), Quote(bareName(fk.PrincipalTable)), quoteList(fk.PrincipalColumns))
		if fk.CascadeDelete {
			def += " ON DELETE CASCADE"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", Quote(t.Name), strings.Join(defs, ",\n    "))
}

func createIndex(table string, ix *metadata.Index) string {
	unique := ""
	if ix.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, Quote(ix.Name), Quote(bareName(table)), quoteList(ix.Columns))
}

// orderedColumns puts columns with an explicit order first, by order, and
// keeps declaration order otherwise.
func orderedColumns(cols []*metadata.Column) []*metadata.Column {
	out := append([]*metadata.Column(nil), cols...)
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := out[i].Order, out[j].Order
		switch {
		case oi != nil && oj != nil:
			return *oi < *oj
		case oi != nil:
			return true
		default:
			return false
		}
	})
	return out
}

// Quote quotes an identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = Quote(n)
	}
	return strings.Join(quoted, ", ")
}

func bareName(qualified string) string {
	if i := strings.LastIndexByte(qualified, '.'); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// TableExistenceChecker queries sqlite_master.
type TableExistenceChecker struct{}

// AnyModelTableExists reports whether any of tables exists, ignoring the
// migration history table.
func (TableExistenceChecker) AnyModelTableExists(ctx context.Context, db *sql.DB, tables []*metadata.Table) (bool, error) {
	for _, t := range tables {
		if t.Name == services.DefaultHistoryTableName {
			continue
		}
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", t.Name,
		).Scan(&name)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("check table %s: %w", t.Name, err)
		}
		return true, nil
	}
	return false, nil
}

// ConnectionFactory names databases "<Dir>/<name>.db". A value containing a
// path separator, a ".db" suffix or a "file:" prefix is used as is.
type ConnectionFactory struct {
	Dir string
}

// CreateConnection implements services.ConnectionFactory.
func (f ConnectionFactory) CreateConnection(nameOrConnectionString string) (provider.Connection, error) {
	if nameOrConnectionString == "" {
		return provider.Connection{}, fmt.Errorf("sqlite: empty database name")
	}
	source := nameOrConnectionString
	if !strings.HasPrefix(source, "file:") && source != ":memory:" &&
		!strings.ContainsRune(source, filepath.Separator) && !strings.HasSuffix(source, ".db") {
		source = filepath.Join(f.Dir, source+".db")
	}
	return provider.Connection{
		ProviderName: InvariantName,
		DataSource:   source,
		Database:     strings.TrimSuffix(filepath.Base(strings.TrimPrefix(source, "file:")), ".db"),
	}, nil
}
