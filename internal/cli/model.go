package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/store"
)

// ModelSummary describes the model of a context type.
type ModelSummary struct {
	Context    string          `json:"context" yaml:"context"`
	ContextKey string          `json:"context_key" yaml:"context_key"`
	Database   string          `json:"database" yaml:"database"`
	ModelHash  string          `json:"model_hash" yaml:"model_hash"`
	Entities   []EntitySummary `json:"entities" yaml:"entities"`
	JoinTables []string        `json:"join_tables,omitempty" yaml:"join_tables,omitempty"`
}

// EntitySummary describes one entity type and its table.
type EntitySummary struct {
	Name    string          `json:"name" yaml:"name"`
	Table   string          `json:"table" yaml:"table"`
	Key     []string        `json:"key" yaml:"key"`
	Columns []ColumnSummary `json:"columns" yaml:"columns"`
}

// ColumnSummary describes one column.
type ColumnSummary struct {
	Name      string `json:"name" yaml:"name"`
	StoreType string `json:"store_type" yaml:"store_type"`
	Nullable  bool   `json:"nullable" yaml:"nullable"`
	Generated string `json:"generated,omitempty" yaml:"generated,omitempty"`
}

// StoredModel is one entry of a model store.
type StoredModel struct {
	ContextKey string `json:"context_key" yaml:"context_key"`
	ModelHash  string `json:"model_hash" yaml:"model_hash"`
	Seq        int64  `json:"seq" yaml:"seq"`
}

// StoredModels lists a model store.
type StoredModels struct {
	Store  string        `json:"store" yaml:"store"`
	Models []StoredModel `json:"models" yaml:"models"`
}

type modelOptions struct {
	database string
	snapshot bool
	store    string
	key      string
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions, reg *Registry) *cobra.Command {
	opts := &modelOptions{}

	cmd := &cobra.Command{
		Use:   "model [context]",
		Short: "Print the model of a context type",
		Long: `Build the model of a registered context type and print its entities,
tables and columns, or the full model snapshot with --snapshot.

With --store, list the snapshots persisted in a model store instead;
add --key to print one of them.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if opts.store != "" {
				return runStoredModels(cmd.Context(), f, opts)
			}
			if len(args) != 1 {
				return f.Fail(ExitCommandError, ErrCodeGeneric, fmt.Errorf("model: a context type is required unless --store is set"))
			}
			return withContext(cmd.Context(), f, rootOpts, reg, args[0], opts.database, func(h Handle) error {
				if opts.snapshot {
					return printSnapshot(f, h.Model().Mapping())
				}
				return f.Success(summarize(args[0], h))
			})
		},
	}

	cmd.Flags().StringVar(&opts.database, "db", "", "database name or connection string")
	cmd.Flags().BoolVar(&opts.snapshot, "snapshot", false, "print the model snapshot as JSON")
	cmd.Flags().StringVar(&opts.store, "store", "", "model store file to read instead of building a model")
	cmd.Flags().StringVar(&opts.key, "key", "", "context key of the stored snapshot to print (with --store)")

	return cmd
}

func summarize(typeName string, h Handle) *ModelSummary {
	mapping := h.Model().Mapping()
	s := &ModelSummary{
		Context:    typeName,
		ContextKey: h.ContextKey(),
		Database:   h.Connection().Database,
		ModelHash:  h.Model().Hash(),
		Entities:   []EntitySummary{},
	}
	for _, et := range mapping.Model.EntityTypes {
		es := EntitySummary{Name: et.Name, Key: et.Key, Columns: []ColumnSummary{}}
		if t := mapping.TableFor(et.Name); t != nil {
			es.Table = t.QualifiedName()
			for _, c := range t.Columns {
				es.Columns = append(es.Columns, ColumnSummary{
					Name:      c.Name,
					StoreType: sqlite.FormatStoreType(c),
					Nullable:  c.Nullable,
					Generated: generated(c),
				})
			}
		}
		s.Entities = append(s.Entities, es)
	}
	for _, t := range mapping.Database.Tables {
		if t.EntityType == "" && t.Association != "" {
			s.JoinTables = append(s.JoinTables, t.QualifiedName())
		}
	}
	return s
}

func generated(c *metadata.Column) string {
	switch {
	case c.Identity:
		return "identity"
	case c.Computed:
		return "computed"
	}
	return ""
}

func (s *ModelSummary) renderText(w io.Writer) {
	fmt.Fprintf(w, "%s (%s)\n", s.Context, s.Database)
	fmt.Fprintf(w, "  context key: %s\n", s.ContextKey)
	fmt.Fprintf(w, "  model hash:  %s\n", s.ModelHash)
	for _, e := range s.Entities {
		fmt.Fprintf(w, "\n%s -> %s (key: %s)\n", e.Name, e.Table, strings.Join(e.Key, ", "))
		for _, c := range e.Columns {
			null := "not null"
			if c.Nullable {
				null = "null"
			}
			line := fmt.Sprintf("  %-20s %-16s %s", c.Name, c.StoreType, null)
			if c.Generated != "" {
				line += " " + c.Generated
			}
			fmt.Fprintln(w, line)
		}
	}
	if len(s.JoinTables) > 0 {
		fmt.Fprintf(w, "\njoin tables: %s\n", strings.Join(s.JoinTables, ", "))
	}
}

// printSnapshot writes the mapping in its stored JSON form, whatever the
// output format, so it can be read back with hash --snapshot.
func printSnapshot(f *OutputFormatter, mapping *metadata.DatabaseMapping) error {
	data, err := store.MarshalMapping(mapping)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeGeneric, err)
	}
	_, err = fmt.Fprintln(f.Writer, data)
	return err
}

func runStoredModels(ctx context.Context, f *OutputFormatter, opts *modelOptions) error {
	if err := requireFile(opts.store); err != nil {
		return f.Fail(ExitCommandError, ErrCodeNotFound, err)
	}
	st, err := store.Open(opts.store, store.WithLogger(f.Logger()))
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	defer st.Close()

	if opts.key != "" {
		mapping, ok, err := st.TryLoad(ctx, opts.key)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeDatabase, err)
		}
		if !ok {
			return f.Fail(ExitCommandError, ErrCodeNotFound, fmt.Errorf("no model stored under %q", opts.key))
		}
		return printSnapshot(f, mapping)
	}

	infos, err := st.Models(ctx)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeDatabase, err)
	}
	out := &StoredModels{Store: opts.store, Models: make([]StoredModel, len(infos))}
	for i, info := range infos {
		out.Models[i] = StoredModel{ContextKey: info.ContextKey, ModelHash: info.ModelHash, Seq: info.Seq}
	}
	return f.Success(out)
}

func (s *StoredModels) renderText(w io.Writer) {
	if len(s.Models) == 0 {
		fmt.Fprintf(w, "%s: no stored models\n", s.Store)
		return
	}
	for _, m := range s.Models {
		fmt.Fprintf(w, "%-4d %s %s\n", m.Seq, m.ContextKey, m.ModelHash)
	}
}
