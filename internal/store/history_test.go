package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/services"
)

// createHistory opens an application database and creates the history
// table through the SQLite migration generator.
func createHistory(t *testing.T) (*History, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	h := NewHistory(services.HistoryContext{})
	stmts, err := sqlite.NewMigrationSQLGenerator().Generate(
		[]services.MigrationOperation{services.CreateTableOperation{Table: h.Table()}}, sqlite.ManifestToken)
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt.SQL); err != nil {
			t.Fatalf("exec %q: %v", stmt.SQL, err)
		}
	}
	return h, db
}

func TestHistory_DefaultName(t *testing.T) {
	h := NewHistory(services.HistoryContext{Schema: "dbo"})
	if h.Name() != services.DefaultHistoryTableName {
		t.Errorf("Name() = %q", h.Name())
	}
	if q := h.Table().QualifiedName(); q != "dbo.__MigrationHistory" {
		t.Errorf("QualifiedName() = %q", q)
	}
}

func TestHistory_Exists(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	ok, err := NewHistory(services.HistoryContext{}).Exists(context.Background(), db)
	if err != nil || ok {
		t.Fatalf("Exists() on empty database = %v, %v", ok, err)
	}

	h, db2 := createHistory(t)
	ok, err = h.Exists(context.Background(), db2)
	if err != nil || !ok {
		t.Fatalf("Exists() after create = %v, %v", ok, err)
	}
}

func TestHistory_AppendAssignsSeq(t *testing.T) {
	h, db := createHistory(t)
	ctx := context.Background()

	first, err := h.Append(ctx, db, HistoryRow{MigrationID: "001_init", ContextKey: "k", ModelHash: "h1", Model: "{}", ProductVersion: "test"})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	second, err := h.Append(ctx, db, HistoryRow{MigrationID: "002_next", ContextKey: "k", ModelHash: "h2", Model: "{}", ProductVersion: "test"})
	if err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if first.Seq != 1 || second.Seq != 2 {
		t.Errorf("seqs = %d, %d; want 1, 2", first.Seq, second.Seq)
	}

	if _, err := h.Append(ctx, db, HistoryRow{MigrationID: "001_init", ContextKey: "k", ModelHash: "h1", Model: "{}"}); err == nil {
		t.Error("duplicate Append() succeeded")
	}
	if _, err := h.Append(ctx, db, HistoryRow{ContextKey: "k"}); err == nil {
		t.Error("Append() without migration id succeeded")
	}
}

func TestHistory_LatestAndList(t *testing.T) {
	h, db := createHistory(t)
	ctx := context.Background()

	if _, ok, err := h.Latest(ctx, db, "k"); err != nil || ok {
		t.Fatalf("Latest() on empty history = %v, %v", ok, err)
	}

	rows := []HistoryRow{
		{MigrationID: "001", ContextKey: "k", ModelHash: "h1", Model: "{}"},
		{MigrationID: "001", ContextKey: "other", ModelHash: "x", Model: "{}"},
		{MigrationID: "002", ContextKey: "k", ModelHash: "h2", Model: "{}"},
	}
	for _, r := range rows {
		if _, err := h.Append(ctx, db, r); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	latest, ok, err := h.Latest(ctx, db, "k")
	if err != nil || !ok {
		t.Fatalf("Latest() = %v, %v", ok, err)
	}
	if latest.MigrationID != "002" || latest.ModelHash != "h2" {
		t.Errorf("Latest() = %+v", latest)
	}

	forK, err := h.List(ctx, db, "k")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(forK) != 2 || forK[0].MigrationID != "001" || forK[1].MigrationID != "002" {
		t.Errorf("List(k) = %+v", forK)
	}

	all, err := h.List(ctx, db, "")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(all) != 3 || all[1].ContextKey != "other" {
		t.Errorf("List() = %+v", all)
	}
}

func TestHistory_AppendInsideTransaction(t *testing.T) {
	h, db := createHistory(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx() failed: %v", err)
	}
	if _, err := h.Append(ctx, tx, HistoryRow{MigrationID: "001", ContextKey: "k", Model: "{}"}); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	rows, err := h.List(ctx, db, "")
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rolled back row is visible: %+v", rows)
	}
}

func TestHistoryRow_Mapping(t *testing.T) {
	data, err := MarshalMapping(createTestMapping("Blog"))
	if err != nil {
		t.Fatalf("MarshalMapping() failed: %v", err)
	}
	m, err := HistoryRow{Model: data}.Mapping()
	if err != nil {
		t.Fatalf("Mapping() failed: %v", err)
	}
	if m.Database.Tables[0].Name != "Blogs" {
		t.Errorf("table = %q", m.Database.Tables[0].Name)
	}
}
