package metadata

import (
	"reflect"
	"strings"
)

// DatabaseMapping pairs a conceptual model with a store model.
type DatabaseMapping struct {
	Model               *Model                `json:"model"`
	Database            *StoreModel           `json:"database"`
	EntityMappings      []*EntityMapping      `json:"entity_mappings"`
	AssociationMappings []*AssociationMapping `json:"association_mappings"`
}

// EntityMapping maps an entity type to a table and its properties to columns.
type EntityMapping struct {
	EntityType string             `json:"entity_type"`
	Table      string             `json:"table"`
	Properties []*PropertyMapping `json:"properties"`
}

// PropertyMapping maps a property path (complex members joined with ".")
// to a column.
type PropertyMapping struct {
	Path   string `json:"path"`
	Column string `json:"column"`
}

// AssociationMapping maps an association to the columns that store it.
// Table is the dependent table for one-to-many associations and the join
// table for many-to-many associations.
type AssociationMapping struct {
	Association   string   `json:"association"`
	Table         string   `json:"table"`
	SourceColumns []string `json:"source_columns"`
	TargetColumns []string `json:"target_columns,omitempty"`
}

// EntityMapping returns the mapping for an entity type.
func (m *DatabaseMapping) EntityMapping(entityType string) *EntityMapping {
	for _, em := range m.EntityMappings {
		if em.EntityType == entityType {
			return em
		}
	}
	return nil
}

// AssociationMapping returns the mapping for an association.
func (m *DatabaseMapping) AssociationMapping(association string) *AssociationMapping {
	for _, am := range m.AssociationMappings {
		if am.Association == association {
			return am
		}
	}
	return nil
}

// TableFor returns the table an entity type maps to.
func (m *DatabaseMapping) TableFor(entityType string) *Table {
	em := m.EntityMapping(entityType)
	if em == nil {
		return nil
	}
	return m.Database.Table(em.Table)
}

// ColumnFor returns the column a property path maps to.
func (m *DatabaseMapping) ColumnFor(entityType, path string) *Column {
	em := m.EntityMapping(entityType)
	if em == nil {
		return nil
	}
	t := m.Database.Table(em.Table)
	if t == nil {
		return nil
	}
	for _, pm := range em.Properties {
		if pm.Path == path {
			return t.Column(pm.Column)
		}
	}
	return nil
}

// RenameTable renames t and updates every reference to it.
func (m *DatabaseMapping) RenameTable(t *Table, schema, name string) {
	oldName := t.QualifiedName()
	t.Schema, t.Name = schema, name
	newName := t.QualifiedName()
	if oldName == newName {
		return
	}
	for _, other := range m.Database.Tables {
		for _, fk := range other.ForeignKeys {
			if fk.PrincipalTable == oldName {
				fk.PrincipalTable = newName
			}
		}
	}
	for _, em := range m.EntityMappings {
		if em.Table == oldName {
			em.Table = newName
		}
	}
	for _, am := range m.AssociationMappings {
		if am.Table == oldName {
			am.Table = newName
		}
	}
}

// RenameColumn renames a column of t and updates every reference to it.
func (m *DatabaseMapping) RenameColumn(t *Table, oldName, newName string) {
	c := t.Column(oldName)
	if c == nil || oldName == newName {
		return
	}
	c.Name = newName
	replace := func(cols []string) {
		for i, col := range cols {
			if col == oldName {
				cols[i] = newName
			}
		}
	}
	replace(t.PrimaryKey)
	for _, fk := range t.ForeignKeys {
		replace(fk.Columns)
	}
	for _, ix := range t.Indexes {
		replace(ix.Columns)
	}
	qualified := t.QualifiedName()
	for _, other := range m.Database.Tables {
		for _, fk := range other.ForeignKeys {
			if fk.PrincipalTable == qualified {
				replace(fk.PrincipalColumns)
			}
		}
	}
	for _, em := range m.EntityMappings {
		if em.Table != qualified {
			continue
		}
		for _, pm := range em.Properties {
			if pm.Column == oldName {
				pm.Column = newName
			}
		}
	}
	for _, am := range m.AssociationMappings {
		if am.Table == qualified {
			replace(am.SourceColumns)
			replace(am.TargetColumns)
		}
	}
}

// BindTypes attaches Go types to entity and complex types by type name.
// It is used after a mapping is loaded from JSON, which drops Go types.
func (m *Model) BindTypes(types []reflect.Type) {
	byName := make(map[string]reflect.Type, len(types))
	for _, t := range types {
		byName[t.Name()] = t
	}
	for _, et := range m.EntityTypes {
		if t, ok := byName[et.Name]; ok {
			et.GoType = t
		}
	}
	for _, ct := range m.ComplexTypes {
		if t, ok := byName[ct.Name]; ok {
			ct.GoType = t
		}
	}
}

// SplitPath splits a property path into its members.
func SplitPath(path string) []string {
	return strings.Split(path, ".")
}
