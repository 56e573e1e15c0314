package conventions

import (
	"slices"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
)

// PluralizingTableName pluralizes the names of generated tables, entity
// and join tables alike.
type PluralizingTableName struct{}

// Name returns "PluralizingTableName".
func (PluralizingTableName) Name() string { return "PluralizingTableName" }

// NameTables pluralizes table names.
func (PluralizingTableName) NameTables(c *Context, mapping *metadata.DatabaseMapping) {
	if c.Pluralizer == nil {
		return
	}
	for _, t := range mapping.Database.Tables {
		if t.ExplicitName {
			continue
		}
		mapping.RenameTable(t, t.Schema, c.Pluralizer.Pluralize(t.Name))
	}
}

// ManyToManyCascadeDelete makes join table rows go away with either side.
type ManyToManyCascadeDelete struct{}

// Name returns "ManyToManyCascadeDelete".
func (ManyToManyCascadeDelete) Name() string { return "ManyToManyCascadeDelete" }

// ApplyStore sets cascade delete on join table foreign keys.
func (ManyToManyCascadeDelete) ApplyStore(_ *Context, mapping *metadata.DatabaseMapping) {
	for _, t := range mapping.Database.Tables {
		if t.Association == "" {
			continue
		}
		for _, fk := range t.ForeignKeys {
			fk.CascadeDelete = true
		}
	}
}

// ForeignKeyIndex indexes foreign key columns, naming the index
// IX_<columns>. Columns already leading the primary key or an index are
// skipped.
type ForeignKeyIndex struct{}

// Name returns "ForeignKeyIndex".
func (ForeignKeyIndex) Name() string { return "ForeignKeyIndex" }

// ApplyStore adds foreign key indexes.
func (ForeignKeyIndex) ApplyStore(_ *Context, mapping *metadata.DatabaseMapping) {
	for _, t := range mapping.Database.Tables {
		for _, fk := range t.ForeignKeys {
			if hasPrefix(t.PrimaryKey, fk.Columns) || slices.ContainsFunc(t.Indexes, func(ix *metadata.Index) bool {
				return hasPrefix(ix.Columns, fk.Columns)
			}) {
				continue
			}
			t.Indexes = append(t.Indexes, &metadata.Index{
				Name:    "IX_" + strings.Join(fk.Columns, "_"),
				Columns: slices.Clone(fk.Columns),
			})
		}
	}
}

func hasPrefix(cols, prefix []string) bool {
	return len(prefix) <= len(cols) && slices.Equal(cols[:len(prefix)], prefix)
}
