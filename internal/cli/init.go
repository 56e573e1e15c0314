package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/codefirst/internal/dbcontext"
	"github.com/roach88/codefirst/internal/migrations"
)

// InitResult reports the state of a database after initialization.
type InitResult struct {
	Context    string `json:"context" yaml:"context"`
	Database   string `json:"database" yaml:"database"`
	DataSource string `json:"data_source" yaml:"data_source"`
	Exists     bool   `json:"exists" yaml:"exists"`
	Compatible bool   `json:"compatible" yaml:"compatible"`
	ModelHash  string `json:"model_hash" yaml:"model_hash"`
}

func (r *InitResult) renderText(w io.Writer) {
	if !r.Exists {
		fmt.Fprintf(w, "%s: database %s was not created (initialization disabled)\n", r.Context, r.DataSource)
		return
	}
	fmt.Fprintf(w, "✓ %s: database %s is initialized\n", r.Context, r.DataSource)
	fmt.Fprintf(w, "  model hash: %s\n", r.ModelHash)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	var database string
	var force bool

	cmd := &cobra.Command{
		Use:   "init <context>",
		Short: "Run the database initializer of a context type",
		Long: `Run the database initializer configured for a context type against its
database. Without configuration the database is created when missing and
checked against the model otherwise.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			ctx := cmd.Context()
			return withContext(ctx, f, rootOpts, reg, args[0], database, func(h Handle) error {
				db := h.Database()
				if err := db.Initialize(ctx, force); err != nil {
					if dbcontext.IsIncompatibleModel(err) || migrations.IsNoMetadata(err) {
						return f.Fail(ExitFailure, ErrCodeIncompatible, err)
					}
					return f.Fail(ExitCommandError, ErrCodeDatabase, err)
				}

				exists, err := db.Exists(ctx)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeDatabase, err)
				}
				compatible, err := db.CompatibleWithModel(ctx, false)
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeDatabase, err)
				}
				f.VerboseLog("Initialized %s (exists=%t, compatible=%t)", h.Connection().DataSource, exists, compatible)

				return f.Success(&InitResult{
					Context:    args[0],
					Database:   h.Connection().Database,
					DataSource: h.Connection().DataSource,
					Exists:     exists,
					Compatible: compatible,
					ModelHash:  h.Model().Hash(),
				})
			})
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "database name or connection string")
	cmd.Flags().BoolVar(&force, "force", false, "run the initializer even if it already ran")

	return cmd
}
