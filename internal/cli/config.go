package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/codefirst/internal/appconfig"
	"github.com/roach88/codefirst/internal/dbconfig"
)

// ConfigReport describes the configuration the commands run against.
type ConfigReport struct {
	File             string            `json:"file,omitempty" yaml:"file,omitempty"`
	Connections      []ConnectionEntry `json:"connections" yaml:"connections"`
	Contexts         []ContextEntry    `json:"contexts" yaml:"contexts"`
	Registered       []string          `json:"registered" yaml:"registered"`
	InterceptorTypes []string          `json:"interceptor_types" yaml:"interceptor_types"`
	Problems         []string          `json:"problems,omitempty" yaml:"problems,omitempty"`
}

// ConnectionEntry is a named connection of the configuration file.
type ConnectionEntry struct {
	Name     string `json:"name" yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
}

// ContextEntry is the configuration file's settings for a context type.
type ContextEntry struct {
	Name        string `json:"name" yaml:"name"`
	Database    string `json:"database,omitempty" yaml:"database,omitempty"`
	Initializer string `json:"initializer,omitempty" yaml:"initializer,omitempty"`
	Disabled    bool   `json:"disable_initialization,omitempty" yaml:"disable_initialization,omitempty"`
}

func (r *ConfigReport) renderText(w io.Writer) {
	file := r.File
	if file == "" {
		file = "(none)"
	}
	fmt.Fprintf(w, "configuration file: %s\n", file)
	for _, c := range r.Connections {
		fmt.Fprintf(w, "  connection %s (%s)\n", c.Name, c.Provider)
	}
	for _, c := range r.Contexts {
		var settings []string
		if c.Database != "" {
			settings = append(settings, "database="+c.Database)
		}
		if c.Initializer != "" {
			settings = append(settings, "initializer="+c.Initializer)
		}
		if c.Disabled {
			settings = append(settings, "initialization disabled")
		}
		fmt.Fprintf(w, "  context %s: %s\n", c.Name, strings.Join(settings, ", "))
	}
	fmt.Fprintf(w, "registered contexts: %s\n", strings.Join(r.Registered, ", "))
	fmt.Fprintf(w, "interceptor types: %s\n", strings.Join(r.InterceptorTypes, ", "))
	if len(r.Problems) == 0 {
		fmt.Fprintln(w, "✓ No problems")
		return
	}
	fmt.Fprintf(w, "✗ %d problem(s)\n", len(r.Problems))
	for _, p := range r.Problems {
		fmt.Fprintf(w, "  %s\n", p)
	}
}

// NewConfigCommand creates the config command.
func NewConfigCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Check the configuration",
		Long: `Load the configuration file given with --config and report its
connections and context settings, the registered context types, and
entries that name unregistered provider, factory or interceptor types.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			env, err := reg.environment(cmd.Context(), rootOpts, f.Logger())
			if err != nil {
				return setupFailure(f, err)
			}
			defer env.close()

			report := newConfigReport(env.cfg, reg)
			if err := f.Success(report); err != nil {
				return err
			}
			if len(report.Problems) > 0 {
				return NewExitError(ExitFailure, fmt.Sprintf("%s: %d configuration problem(s)", ErrCodeConfigProblem, len(report.Problems)))
			}
			return nil
		},
	}

	return cmd
}

func newConfigReport(cfg *dbconfig.Configuration, reg *Registry) *ConfigReport {
	r := &ConfigReport{
		Connections:      []ConnectionEntry{},
		Contexts:         []ContextEntry{},
		Registered:       reg.Names(),
		InterceptorTypes: dbconfig.InterceptorTypes(),
	}
	file := cfg.AppConfig()
	if file != nil {
		r.File = file.Path
		r.Connections = connections(file)
		r.Contexts = contexts(file)
	}
	for _, err := range cfg.AppConfigProblems() {
		r.Problems = append(r.Problems, err.Error())
	}
	return r
}

func connections(file *appconfig.File) []ConnectionEntry {
	out := []ConnectionEntry{}
	for _, name := range file.ConnectionNames() {
		out = append(out, ConnectionEntry{Name: name, Provider: file.ConnectionStrings[name].ProviderName})
	}
	return out
}

func contexts(file *appconfig.File) []ContextEntry {
	out := []ContextEntry{}
	for name, s := range file.Contexts {
		out = append(out, ContextEntry{
			Name:        name,
			Database:    s.Database,
			Initializer: s.Initializer,
			Disabled:    s.DisableInitialization,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
