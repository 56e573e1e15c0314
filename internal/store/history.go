package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/services"
)

// DBTX is the subset of *sql.DB and *sql.Tx that History needs, so history
// rows can be written inside the transaction that applies a migration.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// HistoryRow is one applied migration.
type HistoryRow struct {
	MigrationID    string
	ContextKey     string
	ModelHash      string
	Model          string
	ProductVersion string
	Seq            int64
}

// Mapping decodes the model snapshot recorded with the migration.
func (r HistoryRow) Mapping() (*metadata.DatabaseMapping, error) {
	return UnmarshalMapping(r.Model)
}

// History reads and writes the migration history table of an application
// database.
type History struct {
	hc services.HistoryContext
}

// NewHistory returns the history table described by hc. An empty table
// name falls back to services.DefaultHistoryTableName.
func NewHistory(hc services.HistoryContext) *History {
	if hc.TableName == "" {
		hc.TableName = services.DefaultHistoryTableName
	}
	return &History{hc: hc}
}

// Name returns the history table name.
func (h *History) Name() string { return h.hc.TableName }

// Table describes the history table so it can be created through a
// migration SQL generator like any model table.
func (h *History) Table() *metadata.Table {
	return &metadata.Table{
		Schema: h.hc.Schema,
		Name:   h.hc.TableName,
		Columns: []*metadata.Column{
			{Name: "MigrationId", StoreType: "VARCHAR", MaxLength: intPtr(150)},
			{Name: "ContextKey", StoreType: "VARCHAR", MaxLength: intPtr(300)},
			{Name: "ModelHash", StoreType: "CHAR", MaxLength: intPtr(64)},
			{Name: "Model", StoreType: "TEXT"},
			{Name: "ProductVersion", StoreType: "VARCHAR", MaxLength: intPtr(32)},
			{Name: "Seq", StoreType: "INTEGER"},
		},
		PrimaryKey: []string{"MigrationId", "ContextKey"},
	}
}

func intPtr(n int) *int { return &n }

// Exists reports whether the history table has been created.
func (h *History) Exists(ctx context.Context, db DBTX) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", h.hc.TableName,
	).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check history table: %w", err)
	}
	return true, nil
}

// Append records an applied migration. Seq is assigned as one more than the
// highest seq in the table, so rows keep the order they were applied in.
func (h *History) Append(ctx context.Context, db DBTX, row HistoryRow) (HistoryRow, error) {
	if row.MigrationID == "" || row.ContextKey == "" {
		return HistoryRow{}, fmt.Errorf("append history: migration id and context key are required")
	}
	err := db.QueryRowContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (MigrationId, ContextKey, ModelHash, Model, ProductVersion, Seq)
		VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(Seq), 0) + 1 FROM %s))
		RETURNING Seq
	`, h.quoted(), h.quoted()),
		row.MigrationID, row.ContextKey, row.ModelHash, row.Model, row.ProductVersion,
	).Scan(&row.Seq)
	if err != nil {
		return HistoryRow{}, fmt.Errorf("append history %s: %w", row.MigrationID, err)
	}
	return row, nil
}

// Latest returns the most recently applied migration for contextKey.
// Returns ok=false when no migration has been applied.
func (h *History) Latest(ctx context.Context, db DBTX, contextKey string) (HistoryRow, bool, error) {
	row := db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT MigrationId, ContextKey, ModelHash, Model, ProductVersion, Seq
		FROM %s
		WHERE ContextKey = ?
		ORDER BY Seq DESC, MigrationId COLLATE BINARY DESC
		LIMIT 1
	`, h.quoted()), contextKey)
	r, err := scanHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return HistoryRow{}, false, nil
	}
	if err != nil {
		return HistoryRow{}, false, fmt.Errorf("latest history: %w", err)
	}
	return r, true, nil
}

// List returns every applied migration, oldest first. An empty contextKey
// lists all contexts.
// Returns an empty slice (not nil) when nothing has been applied.
func (h *History) List(ctx context.Context, db DBTX, contextKey string) ([]HistoryRow, error) {
	query := fmt.Sprintf(`
		SELECT MigrationId, ContextKey, ModelHash, Model, ProductVersion, Seq
		FROM %s
		WHERE (? = '' OR ContextKey = ?)
		ORDER BY Seq ASC, MigrationId COLLATE BINARY ASC
	`, h.quoted())
	rows, err := db.QueryContext(ctx, query, contextKey, contextKey)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := []HistoryRow{}
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

func (h *History) quoted() string {
	return sqlite.Quote(h.hc.TableName)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanHistory(s scanner) (HistoryRow, error) {
	var r HistoryRow
	err := s.Scan(&r.MigrationID, &r.ContextKey, &r.ModelHash, &r.Model, &r.ProductVersion, &r.Seq)
	return r, err
}
