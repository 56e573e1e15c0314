package services

import (
	"context"
	"database/sql"
	"time"
)

// Execer is the part of *sql.DB and *sql.Tx a dispatcher needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CommandDispatcher executes commands on behalf of a context instance,
// notifying command interceptors and an optional log formatter around each
// one.
type CommandDispatcher struct {
	ContextID    string
	Interceptors []CommandInterceptor
	Formatter    LogFormatter
	Now          func() time.Time
}

// Exec runs query with args on db.
func (d *CommandDispatcher) Exec(ctx context.Context, db Execer, query string, args ...any) (sql.Result, error) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	cmd := &CommandInfo{ContextID: d.ContextID, SQL: query, Started: now()}

	for _, i := range d.Interceptors {
		i.Executing(cmd)
	}
	if d.Formatter != nil {
		d.Formatter.LogCommand(cmd)
	}

	start := time.Now()
	res, err := db.ExecContext(ctx, query, args...)

	if d.Formatter != nil {
		d.Formatter.LogResult(cmd, err, time.Since(start))
	}
	for _, i := range d.Interceptors {
		i.Executed(cmd, err)
	}
	return res, err
}
