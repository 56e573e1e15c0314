package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/store"
)

// HashResult is the model hash of a context type or snapshot file.
type HashResult struct {
	Source     string `json:"source" yaml:"source"`
	ContextKey string `json:"context_key,omitempty" yaml:"context_key,omitempty"`
	ModelHash  string `json:"model_hash" yaml:"model_hash"`
}

func (r *HashResult) renderText(w io.Writer) {
	fmt.Fprintln(w, r.ModelHash)
}

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	var database, snapshot string

	cmd := &cobra.Command{
		Use:   "hash [context]",
		Short: "Print the model hash of a context type",
		Long: `Print the hash recorded in migration history for the model of a
registered context type, or for a snapshot file written by
"model --snapshot".`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if snapshot != "" {
				return runSnapshotHash(f, snapshot)
			}
			if len(args) != 1 {
				return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("hash: a context type is required unless --snapshot is set"))
			}
			return withContext(cmd.Context(), f, rootOpts, reg, args[0], database, func(h Handle) error {
				return f.Success(&HashResult{
					Source:     args[0],
					ContextKey: h.ContextKey(),
					ModelHash:  h.Model().Hash(),
				})
			})
		},
	}

	cmd.Flags().StringVar(&database, "db", "", "database name or connection string")
	cmd.Flags().StringVar(&snapshot, "snapshot", "", "model snapshot file to hash")

	return cmd
}

func runSnapshotHash(f *OutputFormatter, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	mapping, err := store.UnmarshalMapping(string(data))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("read snapshot %s: %w", path, err))
	}
	hash, err := ir.ModelHash(mapping)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	return f.Success(&HashResult{Source: path, ModelHash: hash})
}
