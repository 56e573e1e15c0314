package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (f execFunc) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return f(ctx, query, args...)
}

type recordingInterceptor struct {
	events []string
}

func (*recordingInterceptor) InterceptorName() string { return "recording" }

func (r *recordingInterceptor) Executing(cmd *CommandInfo) {
	r.events = append(r.events, "executing "+cmd.SQL)
}

func (r *recordingInterceptor) Executed(cmd *CommandInfo, err error) {
	if err != nil {
		r.events = append(r.events, "failed "+err.Error())
		return
	}
	r.events = append(r.events, "executed "+cmd.SQL)
}

func TestCommandDispatcherNotifiesAroundCommands(t *testing.T) {
	rec := &recordingInterceptor{}
	var log strings.Builder
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d := &CommandDispatcher{
		ContextID:    "ctx-1",
		Interceptors: []CommandInterceptor{rec},
		Formatter:    NewTextLogFormatter("ctx-1", func(s string) { log.WriteString(s) }),
		Now:          func() time.Time { return started },
	}

	var gotArgs []any
	db := execFunc(func(_ context.Context, query string, args ...any) (sql.Result, error) {
		gotArgs = args
		return driver.RowsAffected(1), nil
	})
	res, err := d.Exec(context.Background(), db, `DELETE FROM "Blogs" WHERE "ID" = ?`, 7)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, []any{7}, gotArgs)

	assert.Equal(t, []string{
		`executing DELETE FROM "Blogs" WHERE "ID" = ?`,
		`executed DELETE FROM "Blogs" WHERE "ID" = ?`,
	}, rec.events)
	assert.Contains(t, log.String(), "-- context ctx-1: executing at 2026-01-02T03:04:05Z\n")
	assert.Contains(t, log.String(), "-- completed in ")
}

func TestCommandDispatcherReportsFailures(t *testing.T) {
	rec := &recordingInterceptor{}
	var log strings.Builder
	d := &CommandDispatcher{
		Interceptors: []CommandInterceptor{rec},
		Formatter:    NewTextLogFormatter("ctx-2", func(s string) { log.WriteString(s) }),
	}

	boom := errors.New("no such table: Blogs")
	_, err := d.Exec(context.Background(), execFunc(func(context.Context, string, ...any) (sql.Result, error) {
		return nil, boom
	}), `SELECT 1`)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"executing SELECT 1", "failed no such table: Blogs"}, rec.events)
	assert.Contains(t, log.String(), "with error: no such table: Blogs")
}

func TestRetryingExecutionStrategy(t *testing.T) {
	ctx := context.Background()
	calls := 0
	s := RetryingExecutionStrategy{MaxRetries: 2}
	err := s.Execute(ctx, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("busy")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, s.RetriesOnFailure())

	calls = 0
	err = s.Execute(ctx, func(context.Context) error {
		calls++
		return errors.New("busy")
	})
	assert.ErrorContains(t, err, "operation failed after 2 retries: busy")
	assert.Equal(t, 3, calls)
}

func TestRetryingExecutionStrategyStopsOnPermanentErrors(t *testing.T) {
	permanent := errors.New("constraint failed")
	calls := 0
	s := RetryingExecutionStrategy{
		MaxRetries:  5,
		ShouldRetry: func(err error) bool { return !errors.Is(err, permanent) },
	}
	err := s.Execute(context.Background(), func(context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryingExecutionStrategyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := RetryingExecutionStrategy{MaxRetries: 3, Delay: time.Hour}
	err := s.Execute(ctx, func(context.Context) error {
		cancel()
		return errors.New("busy")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultExecutionStrategyRunsOnce(t *testing.T) {
	calls := 0
	err := DefaultExecutionStrategy{}.Execute(context.Background(), func(context.Context) error {
		calls++
		return errors.New("busy")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, DefaultExecutionStrategy{}.RetriesOnFailure())
}

type contextInfo struct{ schema string }

func (contextInfo) ContextType() reflect.Type { return reflect.TypeFor[recordingInterceptor]() }
func (contextInfo) ProviderName() string      { return "sqlite3" }
func (i contextInfo) DefaultSchema() string   { return i.schema }

func TestDefaultModelCacheKeyFactory(t *testing.T) {
	a := DefaultModelCacheKeyFactory(contextInfo{})
	b := DefaultModelCacheKeyFactory(contextInfo{})
	c := DefaultModelCacheKeyFactory(contextInfo{schema: "sales"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, HistoryContext{TableName: "__MigrationHistory", Schema: "dbo"}, DefaultHistoryContext("dbo"))

	p := InflectionPluralizer{}
	assert.Equal(t, "Categories", p.Pluralize("Category"))
	assert.Equal(t, "People", p.Pluralize("Person"))
	assert.Equal(t, "Post", p.Singularize("Posts"))

	s, err := JSONAnnotationSerializer{}.Serialize("Index", map[string]any{"unique": true})
	require.NoError(t, err)
	assert.Equal(t, `{"unique":true}`, s)
	_, err = JSONAnnotationSerializer{}.Serialize("Bad", func() {})
	assert.ErrorContains(t, err, `serialize annotation "Bad"`)

	assert.NoError(t, NullDatabaseInitializer{}.InitializeDatabase(context.Background(), nil))
	assert.Equal(t, "command-log", CommandLogInterceptor{}.InterceptorName())
}
