// Package cli implements the codefirst command line: inspecting the models
// of registered context types, their hashes and migration history, and
// initializing their databases.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigFile string // configuration file (.cue, .yaml, .yml or .toml)
	Dir        string // directory for sqlite databases named without a path
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command. Commands that take a context
// argument open the context types registered in reg.
func NewRootCommand(reg *Registry) *cobra.Command {
	if reg == nil {
		reg = NewRegistry()
	}
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "codefirst",
		Short: "Inspect and initialize code-first models",
		Long: `codefirst builds the models of registered context types and works with
the databases they map to: print a model or its hash, initialize a
database and read its migration history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "configuration file")
	cmd.PersistentFlags().StringVar(&opts.Dir, "dir", "", "directory for sqlite databases")

	cmd.AddCommand(NewModelCommand(opts, reg))
	cmd.AddCommand(NewHashCommand(opts, reg))
	cmd.AddCommand(NewInitCommand(opts, reg))
	cmd.AddCommand(NewHistoryCommand(opts, reg))
	cmd.AddCommand(NewConfigCommand(opts, reg))

	return cmd
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
