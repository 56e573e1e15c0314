// Package migrations creates a database schema from a built model and keeps
// the migration history that later compatibility checks read.
//
// Every collaborator comes from the active configuration: the SQL generator
// and history context for the provider, the execution strategy and
// transaction handler for the server, the command interceptors and the log
// formatter. Schema commands run in one transaction together with the
// history row, so a failed migration leaves no history behind.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/services"
	"github.com/roach88/codefirst/internal/store"
)

// ProductVersion is recorded with every history row.
const ProductVersion = "0.1.0"

// InitialCreate names the migration that creates a database from scratch.
const InitialCreate = "InitialCreate"

// NoMetadataError reports a database without migration history for the
// context.
type NoMetadataError struct {
	ContextKey string
}

// Error implements the error interface.
func (e *NoMetadataError) Error() string {
	return fmt.Sprintf("migrations: no model metadata recorded for context %s", e.ContextKey)
}

// IsNoMetadata returns true if err is a NoMetadataError.
func IsNoMetadata(err error) bool {
	var e *NoMetadataError
	return errors.As(err, &e)
}

// Migrator applies a model to one database.
type Migrator struct {
	cfg        *dbconfig.Configuration
	model      *modelbuilder.DbModel
	conn       provider.Connection
	contextKey string
	contextID  string
	logger     *slog.Logger
	sink       func(string)
	now        func() time.Time
	history    *store.History
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithLogSink routes command logs through the configured log formatter to
// write. Without a sink no command log is produced.
func WithLogSink(write func(string)) Option {
	return func(m *Migrator) { m.sink = write }
}

// WithContextID tags commands with the id of the context instance that runs
// them.
func WithContextID(id string) Option {
	return func(m *Migrator) { m.contextID = id }
}

// WithClock replaces time.Now for migration ids and command timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Migrator) {
		if now != nil {
			m.now = now
		}
	}
}

// New returns a migrator for model on conn. contextKey identifies the
// context in the history table (see ir.ContextKey).
func New(cfg *dbconfig.Configuration, model *modelbuilder.DbModel, conn provider.Connection, contextKey string, opts ...Option) *Migrator {
	m := &Migrator{
		cfg:        cfg,
		model:      model,
		conn:       conn,
		contextKey: contextKey,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	schema := model.Mapping().Model.DefaultSchema
	m.history = store.NewHistory(cfg.HistoryContext(model.ProviderInfo().InvariantName, schema))
	return m
}

// History returns the history table the migrator writes to.
func (m *Migrator) History() *store.History { return m.history }

// Operations returns the operations that create the model's schema: the
// history table, then every model table with principal tables before their
// dependents, then every index.
func (m *Migrator) Operations() []services.MigrationOperation {
	tables := OrderTables(m.model.Mapping().Database.Tables)
	ops := []services.MigrationOperation{services.CreateTableOperation{Table: m.history.Table()}}
	for _, t := range tables {
		ops = append(ops, services.CreateTableOperation{Table: t})
	}
	for _, t := range tables {
		for _, ix := range t.Indexes {
			ops = append(ops, services.CreateIndexOperation{Table: t.QualifiedName(), Index: ix})
		}
	}
	return ops
}

// Script renders Operations with the provider's SQL generator.
func (m *Migrator) Script() ([]services.MigrationStatement, error) {
	info := m.model.ProviderInfo()
	gen, err := m.cfg.MigrationSQLGenerator(info.InvariantName)
	if err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}
	stmts, err := gen.Generate(m.Operations(), info.ManifestToken)
	if err != nil {
		return nil, fmt.Errorf("migrations: generate: %w", err)
	}
	return stmts, nil
}

// Apply creates the schema in db and records the initial history row.
// The whole migration runs under the configured execution strategy; each
// attempt uses a fresh transaction from the configured handler.
func (m *Migrator) Apply(ctx context.Context, db *sql.DB) (store.HistoryRow, error) {
	stmts, err := m.Script()
	if err != nil {
		return store.HistoryRow{}, err
	}
	snapshot, err := store.MarshalMapping(m.model.Mapping())
	if err != nil {
		return store.HistoryRow{}, fmt.Errorf("migrations: %w", err)
	}
	row := store.HistoryRow{
		MigrationID:    m.now().UTC().Format("20060102150405") + "_" + InitialCreate,
		ContextKey:     m.contextKey,
		ModelHash:      m.model.Hash(),
		Model:          snapshot,
		ProductVersion: ProductVersion,
	}

	strategy := m.cfg.ExecutionStrategy(m.conn.ProviderName, m.conn.Server)
	handler := m.cfg.TransactionHandler(m.conn.ProviderName, m.conn.Server)

	d := m.dispatcher()

	var applied store.HistoryRow
	err = strategy.Execute(ctx, func(ctx context.Context) error {
		for _, stmt := range stmts {
			if stmt.SuppressTransaction {
				if _, err := d.Exec(ctx, db, stmt.SQL); err != nil {
					return fmt.Errorf("migrations: exec: %w", err)
				}
			}
		}
		tx, err := handler.Begin(ctx, db)
		if err != nil {
			return fmt.Errorf("migrations: begin: %w", err)
		}
		for _, stmt := range stmts {
			if stmt.SuppressTransaction {
				continue
			}
			if _, err := d.Exec(ctx, tx, stmt.SQL); err != nil {
				tx.Rollback()
				return fmt.Errorf("migrations: exec: %w", err)
			}
		}
		applied, err = m.history.Append(ctx, tx, row)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("migrations: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrations: commit: %w", err)
		}
		return nil
	})
	if err != nil {
		return store.HistoryRow{}, err
	}

	m.logger.Info("migration applied",
		"migration_id", applied.MigrationID,
		"context_key", m.contextKey,
		"model_hash", applied.ModelHash,
		"statements", len(stmts))
	return applied, nil
}

// CompatibleWithModel compares the model hash with the latest history row
// for the context. Without history it returns a NoMetadataError when
// throwIfNoMetadata is set, and true otherwise.
func (m *Migrator) CompatibleWithModel(ctx context.Context, db *sql.DB, throwIfNoMetadata bool) (bool, error) {
	latest, ok, err := m.LatestHistory(ctx, db)
	if err != nil {
		return false, err
	}
	if !ok {
		if throwIfNoMetadata {
			return false, &NoMetadataError{ContextKey: m.contextKey}
		}
		return true, nil
	}
	compatible := latest.ModelHash == m.model.Hash()
	m.logger.Debug("model compatibility checked",
		"context_key", m.contextKey,
		"database_hash", latest.ModelHash,
		"model_hash", m.model.Hash(),
		"compatible", compatible)
	return compatible, nil
}

// LatestHistory returns the most recent history row for the context.
// ok is false when the history table or the row does not exist.
func (m *Migrator) LatestHistory(ctx context.Context, db *sql.DB) (store.HistoryRow, bool, error) {
	exists, err := m.history.Exists(ctx, db)
	if err != nil || !exists {
		return store.HistoryRow{}, false, err
	}
	return m.history.Latest(ctx, db, m.contextKey)
}

// dispatcher notifies the configured interceptors and, when a sink is set,
// the configured log formatter around every command.
func (m *Migrator) dispatcher() *services.CommandDispatcher {
	d := &services.CommandDispatcher{
		ContextID:    m.contextID,
		Interceptors: m.cfg.CommandInterceptors(),
		Now:          m.now,
	}
	if m.sink != nil {
		d.Formatter = m.cfg.LogFormatterFactory()(m.contextID, m.sink)
	}
	return d
}

// OrderTables sorts tables so a principal table precedes the tables whose
// foreign keys reference it. Cycles and self references keep model order.
func OrderTables(tables []*metadata.Table) []*metadata.Table {
	index := make(map[string]int, len(tables))
	for i, t := range tables {
		index[t.QualifiedName()] = i
	}
	depth := make([]int, len(tables))
	visiting := make([]bool, len(tables))
	var visit func(i int) int
	visit = func(i int) int {
		if depth[i] > 0 || visiting[i] {
			return depth[i]
		}
		visiting[i] = true
		d := 1
		for _, fk := range tables[i].ForeignKeys {
			if j, ok := index[fk.PrincipalTable]; ok && j != i {
				if pd := visit(j); pd+1 > d {
					d = pd + 1
				}
			}
		}
		visiting[i] = false
		depth[i] = d
		return d
	}
	for i := range tables {
		visit(i)
	}

	order := make([]int, len(tables))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return depth[order[a]] < depth[order[b]] })
	out := make([]*metadata.Table, len(tables))
	for i, j := range order {
		out[i] = tables[j]
	}
	return out
}
