package metadata

// StoreModel is the database-shaped model: tables, columns and keys.
type StoreModel struct {
	ProviderName  string   `json:"provider_name"`
	ManifestToken string   `json:"manifest_token"`
	Tables        []*Table `json:"tables"`
}

// Table is a store table. EntityType is empty for join tables.
type Table struct {
	Schema       string        `json:"schema,omitempty"`
	Name         string        `json:"name"`
	EntityType   string        `json:"entity_type,omitempty"`
	Association  string        `json:"association,omitempty"`
	ExplicitName bool          `json:"explicit_name,omitempty"`
	Columns      []*Column     `json:"columns"`
	PrimaryKey   []string      `json:"primary_key"`
	ForeignKeys  []*ForeignKey `json:"foreign_keys,omitempty"`
	Indexes      []*Index      `json:"indexes,omitempty"`
}

// Column is a store column.
type Column struct {
	Name         string `json:"name"`
	StoreType    string `json:"store_type"`
	Nullable     bool   `json:"nullable"`
	MaxLength    *int   `json:"max_length,omitempty"`
	Precision    *uint8 `json:"precision,omitempty"`
	Scale        *uint8 `json:"scale,omitempty"`
	Identity     bool   `json:"identity,omitempty"`
	Computed     bool   `json:"computed,omitempty"`
	Order        *int   `json:"order,omitempty"`
	ExplicitName bool   `json:"explicit_name,omitempty"`
}

// ForeignKey is declared on the dependent table.
type ForeignKey struct {
	Name             string   `json:"name"`
	Columns          []string `json:"columns"`
	PrincipalTable   string   `json:"principal_table"`
	PrincipalColumns []string `json:"principal_columns"`
	CascadeDelete    bool     `json:"cascade_delete,omitempty"`
	Association      string   `json:"association,omitempty"`
}

// Index is a store index.
type Index struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique,omitempty"`
}

// QualifiedName returns "schema.name", or the bare name without a schema.
func (t *Table) QualifiedName() string {
	return QualifiedName(t.Schema, t.Name)
}

// QualifiedName joins a schema and a table name.
func QualifiedName(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// Column returns the named column.
func (t *Table) Column(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Table returns the table with the given qualified name.
func (s *StoreModel) Table(qualified string) *Table {
	for _, t := range s.Tables {
		if t.QualifiedName() == qualified {
			return t
		}
	}
	return nil
}

// TableForEntity returns the table an entity type maps to.
func (s *StoreModel) TableForEntity(entityType string) *Table {
	for _, t := range s.Tables {
		if t.EntityType == entityType {
			return t
		}
	}
	return nil
}

// TableForAssociation returns the join table for a many-to-many association.
func (s *StoreModel) TableForAssociation(association string) *Table {
	for _, t := range s.Tables {
		if t.Association == association {
			return t
		}
	}
	return nil
}
