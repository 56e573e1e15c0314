// Package services declares the contracts that configuration can override.
//
// Every contract here is resolved through dbconfig by kind (the Go type of
// the contract) and an optional key. Keyed contracts document their key type.
package services

import (
	"context"
	"database/sql"
	"reflect"
	"time"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

// ConnectionFactory turns a database name or connection string into a
// connection description. Unkeyed.
type ConnectionFactory interface {
	CreateConnection(nameOrConnectionString string) (provider.Connection, error)
}

// ExecutionStrategy runs an operation, possibly retrying it.
type ExecutionStrategy interface {
	RetriesOnFailure() bool
	Execute(ctx context.Context, op func(context.Context) error) error
}

// ExecutionStrategyFactory creates execution strategies. Keyed by
// ExecutionStrategyKey; an empty ServerName in a registration matches every
// server of the provider.
type ExecutionStrategyFactory func() ExecutionStrategy

// ExecutionStrategyKey selects an execution strategy.
type ExecutionStrategyKey struct {
	ProviderInvariantName string
	ServerName            string
}

// TransactionHandler begins the transactions used for schema commands.
type TransactionHandler interface {
	Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error)
}

// TransactionHandlerFactory creates transaction handlers. Keyed by
// ExecutionStrategyKey, with the same server matching rules.
type TransactionHandlerFactory func() TransactionHandler

// MigrationOperation is a schema change.
type MigrationOperation interface {
	migrationOperation()
}

// CreateTableOperation creates a table with its keys and foreign keys.
type CreateTableOperation struct {
	Table *metadata.Table
}

// CreateIndexOperation creates an index on a table.
type CreateIndexOperation struct {
	Table string
	Index *metadata.Index
}

// DropTableOperation drops a table.
type DropTableOperation struct {
	Table string
}

func (CreateTableOperation) migrationOperation() {}
func (CreateIndexOperation) migrationOperation() {}
func (DropTableOperation) migrationOperation()   {}

// MigrationStatement is one SQL statement produced by a generator.
type MigrationStatement struct {
	SQL                 string
	SuppressTransaction bool
}

// MigrationSQLGenerator turns operations into provider SQL.
type MigrationSQLGenerator interface {
	Generate(ops []MigrationOperation, manifestToken string) ([]MigrationStatement, error)
}

// MigrationSQLGeneratorFactory creates generators. Keyed by provider
// invariant name.
type MigrationSQLGeneratorFactory func() MigrationSQLGenerator

// ManifestTokenResolver resolves a manifest token for a connection.
// Unkeyed.
type ManifestTokenResolver interface {
	ResolveManifestToken(conn provider.Connection) (string, error)
}

// SpatialServices exposes provider spatial capabilities. Resolved unkeyed
// (global), by provider.Info with an empty token (per provider), or by a
// full provider.Info (per provider and manifest token).
type SpatialServices interface {
	SupportsGeography() bool
	DefaultSRID() int
}

// AnnotationSerializer turns annotation values into strings for model
// snapshots. Keyed by annotation name.
type AnnotationSerializer interface {
	Serialize(name string, value any) (string, error)
}

// AnnotationSerializerFactory creates serializers. Keyed by annotation name.
type AnnotationSerializerFactory func() AnnotationSerializer

// ContextInfo is what a model cache key factory sees of a context.
type ContextInfo interface {
	ContextType() reflect.Type
	ProviderName() string
	DefaultSchema() string
}

// ModelCacheKeyFactory computes the key under which a built model is cached.
// The returned value must be comparable. Unkeyed.
type ModelCacheKeyFactory func(ctx ContextInfo) any

// HistoryContext describes where migration history is stored.
type HistoryContext struct {
	TableName string
	Schema    string
}

// HistoryContextFactory creates the history context for a default schema.
// Keyed by provider invariant name; the unkeyed registration is the default.
type HistoryContextFactory func(defaultSchema string) HistoryContext

// CommandInfo describes a command sent to the database.
type CommandInfo struct {
	ContextID string
	SQL       string
	Started   time.Time
}

// LogFormatter writes command logs.
type LogFormatter interface {
	LogCommand(cmd *CommandInfo)
	LogResult(cmd *CommandInfo, err error, elapsed time.Duration)
}

// LogFormatterFactory creates a log formatter bound to a context instance and
// a sink. Unkeyed.
type LogFormatterFactory func(contextID string, write func(string)) LogFormatter

// Interceptor is the marker for interceptors. Interceptors are collected with
// GetServices; every registered interceptor observes every operation.
type Interceptor interface {
	InterceptorName() string
}

// CommandInterceptor observes schema and save commands.
type CommandInterceptor interface {
	Interceptor
	Executing(cmd *CommandInfo)
	Executed(cmd *CommandInfo, err error)
}

// ContextFactory creates contexts for types that need arguments. Keyed by
// the context type.
type ContextFactory func() (any, error)

// ModelStore persists built models so later processes skip model building.
// Unkeyed.
type ModelStore interface {
	TryLoad(ctx context.Context, contextKey string) (*metadata.DatabaseMapping, bool, error)
	Save(ctx context.Context, contextKey string, mapping *metadata.DatabaseMapping) error
}

// TableExistenceChecker reports whether any model table exists. Keyed by
// provider invariant name.
type TableExistenceChecker interface {
	AnyModelTableExists(ctx context.Context, db *sql.DB, tables []*metadata.Table) (bool, error)
}

// Pluralizer pluralizes and singularizes English words. Unkeyed.
type Pluralizer interface {
	Pluralize(word string) string
	Singularize(word string) string
}

// Database is the view of a context's database that initializers act on.
type Database interface {
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context) error
	Delete(ctx context.Context) (bool, error)
	CompatibleWithModel(ctx context.Context, throwIfNoMetadata bool) (bool, error)
}

// DatabaseInitializer prepares a database the first time a context type
// uses it. Keyed by the context type.
type DatabaseInitializer interface {
	InitializeDatabase(ctx context.Context, db Database) error
}
