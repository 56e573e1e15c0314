package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/jinzhu/inflection"
)

// DefaultHistoryTableName is the table migration history lives in.
const DefaultHistoryTableName = "__MigrationHistory"

// DefaultExecutionStrategy runs an operation exactly once.
type DefaultExecutionStrategy struct{}

// RetriesOnFailure returns false.
func (DefaultExecutionStrategy) RetriesOnFailure() bool { return false }

// Execute runs op once.
func (DefaultExecutionStrategy) Execute(ctx context.Context, op func(context.Context) error) error {
	return op(ctx)
}

// RetryingExecutionStrategy retries failed operations with a fixed delay
// while ShouldRetry accepts the error.
type RetryingExecutionStrategy struct {
	MaxRetries  int
	Delay       time.Duration
	ShouldRetry func(error) bool
}

// RetriesOnFailure returns true.
func (s RetryingExecutionStrategy) RetriesOnFailure() bool { return true }

// Execute runs op, retrying up to MaxRetries times.
func (s RetryingExecutionStrategy) Execute(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= s.MaxRetries; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if s.ShouldRetry != nil && !s.ShouldRetry(err) {
			return err
		}
		if attempt == s.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.Delay):
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", s.MaxRetries, err)
}

// DefaultTransactionHandler begins a plain database transaction.
type DefaultTransactionHandler struct{}

// Begin starts a transaction with default options.
func (DefaultTransactionHandler) Begin(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, nil)
}

// DefaultHistoryContext stores history in __MigrationHistory under the
// model's default schema.
func DefaultHistoryContext(defaultSchema string) HistoryContext {
	return HistoryContext{TableName: DefaultHistoryTableName, Schema: defaultSchema}
}

// DefaultModelCacheKey is the cache key produced by DefaultModelCacheKeyFactory.
type DefaultModelCacheKey struct {
	ContextType   reflect.Type
	ProviderName  string
	DefaultSchema string
}

// DefaultModelCacheKeyFactory keys models by context type, provider and
// default schema.
func DefaultModelCacheKeyFactory(ctx ContextInfo) any {
	return DefaultModelCacheKey{
		ContextType:   ctx.ContextType(),
		ProviderName:  ctx.ProviderName(),
		DefaultSchema: ctx.DefaultSchema(),
	}
}

// JSONAnnotationSerializer serializes annotation values as JSON.
type JSONAnnotationSerializer struct{}

// Serialize encodes value as JSON.
func (JSONAnnotationSerializer) Serialize(name string, value any) (string, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("serialize annotation %q: %w", name, err)
	}
	return string(data), nil
}

// TextLogFormatter writes one line per command and one per result.
type TextLogFormatter struct {
	ContextID string
	Write     func(string)
}

// NewTextLogFormatter is a LogFormatterFactory.
func NewTextLogFormatter(contextID string, write func(string)) LogFormatter {
	return &TextLogFormatter{ContextID: contextID, Write: write}
}

// LogCommand writes the command text.
func (f *TextLogFormatter) LogCommand(cmd *CommandInfo) {
	f.Write(fmt.Sprintf("-- context %s: executing at %s\n%s\n", f.ContextID, cmd.Started.Format(time.RFC3339), cmd.SQL))
}

// LogResult writes the outcome and elapsed time.
func (f *TextLogFormatter) LogResult(cmd *CommandInfo, err error, elapsed time.Duration) {
	if err != nil {
		f.Write(fmt.Sprintf("-- failed in %d ms with error: %v\n", elapsed.Milliseconds(), err))
		return
	}
	f.Write(fmt.Sprintf("-- completed in %d ms\n", elapsed.Milliseconds()))
}

// InflectionPluralizer pluralizes with github.com/jinzhu/inflection.
type InflectionPluralizer struct{}

// Pluralize returns the plural form of word.
func (InflectionPluralizer) Pluralize(word string) string { return inflection.Plural(word) }

// Singularize returns the singular form of word.
func (InflectionPluralizer) Singularize(word string) string { return inflection.Singular(word) }

// NoSpatialServices reports no spatial support.
type NoSpatialServices struct{}

// SupportsGeography returns false.
func (NoSpatialServices) SupportsGeography() bool { return false }

// DefaultSRID returns 0.
func (NoSpatialServices) DefaultSRID() int { return 0 }

// CommandLogInterceptor logs every command it observes at debug level.
type CommandLogInterceptor struct {
	Logger *slog.Logger
}

// InterceptorName returns "command-log".
func (CommandLogInterceptor) InterceptorName() string { return "command-log" }

// Executing logs the command text.
func (i CommandLogInterceptor) Executing(cmd *CommandInfo) {
	i.logger().Debug("executing command", "context_id", cmd.ContextID, "sql", cmd.SQL)
}

// Executed logs the outcome.
func (i CommandLogInterceptor) Executed(cmd *CommandInfo, err error) {
	if err != nil {
		i.logger().Warn("command failed", "context_id", cmd.ContextID, "error", err)
		return
	}
	i.logger().Debug("command executed", "context_id", cmd.ContextID, "elapsed", time.Since(cmd.Started))
}

func (i CommandLogInterceptor) logger() *slog.Logger {
	if i.Logger != nil {
		return i.Logger
	}
	return slog.Default()
}

// NullDatabaseInitializer leaves the database alone. Registering it for a
// context type disables initialization for that type.
type NullDatabaseInitializer struct{}

// InitializeDatabase does nothing.
func (NullDatabaseInitializer) InitializeDatabase(context.Context, Database) error { return nil }
