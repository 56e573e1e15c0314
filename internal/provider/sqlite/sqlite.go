// Package sqlite is the built-in SQLite provider, backed by
// github.com/mattn/go-sqlite3.
//
// A SQLite database is a file; DataSource is its path (or ":memory:").
// Schemas are not supported: DDL uses bare table names and ignores the
// schema of a table.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/codefirst/internal/provider"
)

// InvariantName is the provider invariant name and the database/sql driver
// name.
const InvariantName = "sqlite3"

// ManifestToken is the only manifest token the provider knows.
const ManifestToken = "3"

// Services implements provider.Services for SQLite.
type Services struct{}

// New returns the SQLite provider services.
func New() *Services { return &Services{} }

var _ provider.Services = (*Services)(nil)

func init() {
	provider.Register("sqlite", func() provider.Services { return New() })
}

// InvariantName returns "sqlite3".
func (*Services) InvariantName() string { return InvariantName }

// ManifestToken returns the token without opening the connection.
func (*Services) ManifestToken(conn provider.Connection) (string, error) {
	if conn.DataSource == "" {
		return "", errors.New("sqlite: connection has no data source")
	}
	return ManifestToken, nil
}

// Manifest returns the manifest for token.
func (*Services) Manifest(token string) (provider.Manifest, error) {
	if token != ManifestToken {
		return nil, fmt.Errorf("sqlite: unknown manifest token %q", token)
	}
	return manifest{}, nil
}

// Open opens the database with the pragmas codefirst relies on.
func (*Services) Open(conn provider.Connection) (*sql.DB, error) {
	db, err := sql.Open(InvariantName, conn.DataSource)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return db, nil
}

// DatabaseExists reports whether the database file exists. In-memory
// databases never exist before they are opened.
func (*Services) DatabaseExists(_ context.Context, conn provider.Connection) (bool, error) {
	path, ok := filePath(conn.DataSource)
	if !ok {
		return false, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat database: %w", err)
	}
	return info.Size() > 0, nil
}

// CreateDatabase creates the database file.
func (s *Services) CreateDatabase(ctx context.Context, conn provider.Connection) error {
	db, err := s.Open(conn)
	if err != nil {
		return err
	}
	defer db.Close()
	// SQLite creates the file lazily; a write forces the header out.
	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS __codefirst_create (id INTEGER)",
		"DROP TABLE __codefirst_create",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create database: %w", err)
		}
	}
	return nil
}

// DeleteDatabase removes the database file and its WAL side files.
func (*Services) DeleteDatabase(_ context.Context, conn provider.Connection) error {
	path, ok := filePath(conn.DataSource)
	if !ok {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete database: %w", err)
		}
	}
	return nil
}

// filePath extracts the file path from a DSN such as "file:x.db?cache=shared".
func filePath(dsn string) (string, bool) {
	if dsn == "" || dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return "", false
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path, path != ""
}
