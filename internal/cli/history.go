package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/services"
	"github.com/roach88/codefirst/internal/store"
)

// HistoryEntry is one applied migration.
type HistoryEntry struct {
	MigrationID    string `json:"migration_id" yaml:"migration_id"`
	ContextKey     string `json:"context_key" yaml:"context_key"`
	ModelHash      string `json:"model_hash" yaml:"model_hash"`
	ProductVersion string `json:"product_version" yaml:"product_version"`
	Seq            int64  `json:"seq" yaml:"seq"`
}

// HistoryResult lists the migration history of a database.
type HistoryResult struct {
	Source     string         `json:"source" yaml:"source"`
	Migrations []HistoryEntry `json:"migrations" yaml:"migrations"`
}

func (r *HistoryResult) renderText(w io.Writer) {
	if len(r.Migrations) == 0 {
		fmt.Fprintf(w, "%s: no migrations applied\n", r.Source)
		return
	}
	for _, m := range r.Migrations {
		fmt.Fprintf(w, "%-4d %s  %s  %s\n", m.Seq, m.MigrationID, m.ContextKey, m.ModelHash)
	}
}

func newHistoryResult(source string, rows []store.HistoryRow) *HistoryResult {
	r := &HistoryResult{Source: source, Migrations: make([]HistoryEntry, len(rows))}
	for i, row := range rows {
		r.Migrations[i] = HistoryEntry{
			MigrationID:    row.MigrationID,
			ContextKey:     row.ContextKey,
			ModelHash:      row.ModelHash,
			ProductVersion: row.ProductVersion,
			Seq:            row.Seq,
		}
	}
	return r
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	var database, file, table string

	cmd := &cobra.Command{
		Use:   "history [context]",
		Short: "List the migrations applied to a database",
		Long: `List the migration history a context type recorded in its database.

With --file, read the history table of a sqlite database directly; every
context that recorded history there is listed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			ctx := cmd.Context()
			if file != "" {
				return runFileHistory(ctx, f, file, table)
			}
			if len(args) != 1 {
				return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("history: a context type is required unless --file is set"))
			}
			return withContext(ctx, f, rootOpts, reg, args[0], database, func(h Handle) error {
				rows, err := h.Database().History(ctx)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeDatabase, err)
				}
				return f.Success(newHistoryResult(h.Connection().DataSource, rows))
			})
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "database name or connection string")
	cmd.Flags().StringVar(&file, "file", "", "sqlite database file to read")
	cmd.Flags().StringVar(&table, "table", services.DefaultHistoryTableName, "history table name (with --file)")

	return cmd
}

func runFileHistory(ctx context.Context, f *OutputFormatter, path, table string) error {
	if err := requireFile(path); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	db, err := sqlite.New().Open(provider.Connection{ProviderName: sqlite.InvariantName, DataSource: path})
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer db.Close()

	h := store.NewHistory(services.HistoryContext{TableName: table})
	ok, err := h.Exists(ctx, db)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	if !ok {
		return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("%s has no %s table", path, h.Name()))
	}
	rows, err := h.List(ctx, db, "")
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	return f.Success(newHistoryResult(path, rows))
}

// requireFile fails for paths that do not name an existing file, so that
// opening a sqlite database never creates one.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
