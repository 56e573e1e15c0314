package metadata

import "reflect"

// Multiplicity is the cardinality of an association end.
type Multiplicity string

const (
	ZeroOrOne Multiplicity = "0..1"
	One       Multiplicity = "1"
	Many      Multiplicity = "*"
)

// StoreGeneratedPattern describes how the store produces a property value.
type StoreGeneratedPattern string

const (
	GeneratedNone     StoreGeneratedPattern = "none"
	GeneratedIdentity StoreGeneratedPattern = "identity"
	GeneratedComputed StoreGeneratedPattern = "computed"
)

// PropertyKind distinguishes scalar properties from complex (value object)
// properties.
type PropertyKind string

const (
	KindPrimitive PropertyKind = "primitive"
	KindComplex   PropertyKind = "complex"
)

// Model is the conceptual model: entity types, complex types and the
// associations between entity types.
type Model struct {
	Namespace     string         `json:"namespace"`
	DefaultSchema string         `json:"default_schema,omitempty"`
	EntityTypes   []*EntityType  `json:"entity_types"`
	ComplexTypes  []*ComplexType `json:"complex_types"`
	Associations  []*Association `json:"associations"`
}

// EntityType is a keyed type with its own identity.
type EntityType struct {
	Name        string                `json:"name"`
	GoType      reflect.Type          `json:"-"`
	EntitySet   string                `json:"entity_set"`
	Key         []string              `json:"key"`
	Properties  []*Property           `json:"properties"`
	Navigations []*NavigationProperty `json:"navigations"`
	Annotations map[string]any        `json:"annotations,omitempty"`
}

// ComplexType is a value object embedded in entities.
type ComplexType struct {
	Name        string         `json:"name"`
	GoType      reflect.Type   `json:"-"`
	Properties  []*Property    `json:"properties"`
	Annotations map[string]any `json:"annotations,omitempty"`
}

// Property is a scalar or complex member of an entity or complex type.
type Property struct {
	Name             string                `json:"name"`
	Kind             PropertyKind          `json:"kind"`
	Type             PrimitiveType         `json:"type,omitempty"`
	ComplexType      string                `json:"complex_type,omitempty"`
	Nullable         bool                  `json:"nullable"`
	MaxLength        *int                  `json:"max_length,omitempty"`
	IsMaxLength      bool                  `json:"is_max_length,omitempty"`
	FixedLength      *bool                 `json:"fixed_length,omitempty"`
	Unicode          *bool                 `json:"unicode,omitempty"`
	Precision        *uint8                `json:"precision,omitempty"`
	Scale            *uint8                `json:"scale,omitempty"`
	ConcurrencyToken bool                  `json:"concurrency_token,omitempty"`
	StoreGenerated   StoreGeneratedPattern `json:"store_generated,omitempty"`
	Annotations      map[string]any        `json:"annotations,omitempty"`
}

// NavigationProperty points from its declaring entity type to the other end
// of an association.
type NavigationProperty struct {
	Name        string `json:"name"`
	Target      string `json:"target"`
	Association string `json:"association"`
	Collection  bool   `json:"collection"`
	// Explicit marks navigations whose inverse was configured explicitly,
	// including "no inverse". Inverse discovery leaves them alone.
	Explicit bool `json:"-"`
}

// AssociationEnd is one side of an association. Navigation is the navigation
// property declared on this end's entity type, or empty.
type AssociationEnd struct {
	EntityType   string       `json:"entity_type"`
	Multiplicity Multiplicity `json:"multiplicity"`
	Navigation   string       `json:"navigation,omitempty"`
}

// ReferentialConstraint ties dependent foreign key properties to principal
// key properties. PrincipalIsSource tells which end is the principal.
type ReferentialConstraint struct {
	PrincipalIsSource   bool     `json:"principal_is_source"`
	DependentProperties []string `json:"dependent_properties"`
	PrincipalProperties []string `json:"principal_properties"`
}

// Association relates two entity types.
type Association struct {
	Name          string                 `json:"name"`
	Source        AssociationEnd         `json:"source"`
	Target        AssociationEnd         `json:"target"`
	Constraint    *ReferentialConstraint `json:"constraint,omitempty"`
	CascadeDelete bool                   `json:"cascade_delete,omitempty"`
	JoinTable     string                 `json:"join_table,omitempty"`
	// ExplicitCascade is set when CascadeDelete was configured explicitly.
	ExplicitCascade bool `json:"-"`
}

// IsManyToMany reports whether both ends are collections.
func (a *Association) IsManyToMany() bool {
	return a.Source.Multiplicity == Many && a.Target.Multiplicity == Many
}

// Ends returns the end declaring the given navigation and the other end.
// If no end declares it, own is the target end.
func (a *Association) Ends(entity, navigation string) (own, other *AssociationEnd) {
	if a.Source.EntityType == entity && a.Source.Navigation == navigation {
		return &a.Source, &a.Target
	}
	return &a.Target, &a.Source
}

// Principal returns the principal end, deciding by constraint or by
// multiplicity. ok is false for many-to-many associations.
func (a *Association) Principal() (principal, dependent AssociationEnd, ok bool) {
	if a.IsManyToMany() {
		return AssociationEnd{}, AssociationEnd{}, false
	}
	if a.Constraint != nil {
		if a.Constraint.PrincipalIsSource {
			return a.Source, a.Target, true
		}
		return a.Target, a.Source, true
	}
	switch {
	case a.Target.Multiplicity == Many:
		return a.Source, a.Target, true
	case a.Source.Multiplicity == Many:
		return a.Target, a.Source, true
	case a.Source.Multiplicity == One && a.Target.Multiplicity != One:
		return a.Source, a.Target, true
	default:
		return a.Target, a.Source, true
	}
}

// EntityType returns the entity type with the given name.
func (m *Model) EntityType(name string) *EntityType {
	for _, et := range m.EntityTypes {
		if et.Name == name {
			return et
		}
	}
	return nil
}

// EntityTypeFor returns the entity type bound to t.
func (m *Model) EntityTypeFor(t reflect.Type) *EntityType {
	for _, et := range m.EntityTypes {
		if et.GoType == t {
			return et
		}
	}
	return nil
}

// ComplexType returns the complex type with the given name.
func (m *Model) ComplexType(name string) *ComplexType {
	for _, ct := range m.ComplexTypes {
		if ct.Name == name {
			return ct
		}
	}
	return nil
}

// Association returns the association with the given name.
func (m *Model) Association(name string) *Association {
	for _, a := range m.Associations {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// RemoveAssociation deletes the named association.
func (m *Model) RemoveAssociation(name string) {
	out := m.Associations[:0]
	for _, a := range m.Associations {
		if a.Name != name {
			out = append(out, a)
		}
	}
	m.Associations = out
}

// Property returns the named property.
func (et *EntityType) Property(name string) *Property {
	return findProperty(et.Properties, name)
}

// Navigation returns the named navigation property.
func (et *EntityType) Navigation(name string) *NavigationProperty {
	for _, n := range et.Navigations {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// KeyProperties returns the key properties in key order. Missing names are
// skipped.
func (et *EntityType) KeyProperties() []*Property {
	out := make([]*Property, 0, len(et.Key))
	for _, k := range et.Key {
		if p := et.Property(k); p != nil {
			out = append(out, p)
		}
	}
	return out
}

// Property returns the named property.
func (ct *ComplexType) Property(name string) *Property {
	return findProperty(ct.Properties, name)
}

func findProperty(props []*Property, name string) *Property {
	for _, p := range props {
		if p.Name == name {
			return p
		}
	}
	return nil
}
