package modelconfig

import "github.com/roach88/codefirst/internal/metadata"

// PrincipalSide says which end of a one-to-one relationship is the principal.
type PrincipalSide uint8

const (
	// PrincipalByMultiplicity decides by multiplicity.
	PrincipalByMultiplicity PrincipalSide = iota
	// PrincipalIsDeclaring makes the declaring type the principal.
	PrincipalIsDeclaring
	// PrincipalIsTarget makes the navigation target the principal.
	PrincipalIsTarget
)

// Inverse is the configured other side of a relationship. An empty Name
// means the other side has no navigation property.
type Inverse struct {
	Name         string
	Multiplicity metadata.Multiplicity
	Principal    PrincipalSide
}

// JoinTable configures the join table of a many-to-many relationship. Left
// columns reference the declaring type, right columns the target.
type JoinTable struct {
	Schema       string
	Name         string
	LeftColumns  []string
	RightColumns []string
}

type navigationState struct {
	name    string
	touched Origin

	target     Facet[metadata.Multiplicity]
	inverse    Facet[Inverse]
	foreignKey Facet[[]string]
	keyColumns Facet[[]string]
	cascade    Facet[bool]
	joinTable  Facet[JoinTable]
}

func (s *navigationState) clone() *navigationState {
	cp := *s
	return &cp
}

func (s *navigationState) merge(o *navigationState) {
	s.touched = max(s.touched, o.touched)
	s.target.merge(o.target)
	s.inverse.merge(o.inverse)
	s.foreignKey.merge(o.foreignKey)
	s.keyColumns.merge(o.keyColumns)
	s.cascade.merge(o.cascade)
	s.joinTable.merge(o.joinTable)
}

// NavigationConfiguration configures the relationship behind one navigation
// property. Start it with EntityConfiguration.HasRequired, HasOptional or
// HasMany and finish it with one of the With methods.
type NavigationConfiguration struct {
	s      *navigationState
	origin Origin
	sink   *errorSink
	guard
}

// Name returns the navigation property name.
func (n *NavigationConfiguration) Name() string { return n.s.name }

func (n *NavigationConfiguration) with(name string, m metadata.Multiplicity, side PrincipalSide) *NavigationConfiguration {
	defer n.lock()()
	n.s.inverse.set(Inverse{Name: name, Multiplicity: m, Principal: side}, n.origin)
	return n
}

// WithMany pairs the navigation with inverse, a collection on the target.
// An empty inverse means the target has no navigation back.
func (n *NavigationConfiguration) WithMany(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.Many, PrincipalByMultiplicity)
}

// WithRequired pairs the navigation with a required reference on the target.
func (n *NavigationConfiguration) WithRequired(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.One, PrincipalByMultiplicity)
}

// WithOptional pairs the navigation with an optional reference on the target.
func (n *NavigationConfiguration) WithOptional(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.ZeroOrOne, PrincipalByMultiplicity)
}

// WithRequiredPrincipal pairs two required references and makes the
// declaring type the principal.
func (n *NavigationConfiguration) WithRequiredPrincipal(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.One, PrincipalIsDeclaring)
}

// WithRequiredDependent pairs two required references and makes the target
// the principal.
func (n *NavigationConfiguration) WithRequiredDependent(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.One, PrincipalIsTarget)
}

// WithOptionalPrincipal pairs two optional references and makes the
// declaring type the principal.
func (n *NavigationConfiguration) WithOptionalPrincipal(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.ZeroOrOne, PrincipalIsDeclaring)
}

// WithOptionalDependent pairs two optional references and makes the target
// the principal.
func (n *NavigationConfiguration) WithOptionalDependent(inverse string) *NavigationConfiguration {
	return n.with(inverse, metadata.ZeroOrOne, PrincipalIsTarget)
}

// HasForeignKey names the dependent properties that hold the foreign key.
func (n *NavigationConfiguration) HasForeignKey(properties ...string) *NavigationConfiguration {
	defer n.lock()()
	if !nonEmpty(properties) {
		n.sink.add("HasForeignKey", "properties", "must be non-empty names")
		return n
	}
	n.s.foreignKey.set(append([]string(nil), properties...), n.origin)
	return n
}

// MapKey names the foreign key columns of a relationship without foreign
// key properties.
func (n *NavigationConfiguration) MapKey(columns ...string) *NavigationConfiguration {
	defer n.lock()()
	if !nonEmpty(columns) {
		n.sink.add("MapKey", "columns", "must be non-empty names")
		return n
	}
	n.s.keyColumns.set(append([]string(nil), columns...), n.origin)
	return n
}

// WillCascadeOnDelete sets whether deleting the principal deletes
// dependents.
func (n *NavigationConfiguration) WillCascadeOnDelete(cascade bool) *NavigationConfiguration {
	defer n.lock()()
	n.s.cascade.set(cascade, n.origin)
	return n
}

// MapJoinTable configures the join table of a many-to-many relationship.
// Column lists may be empty to keep the generated names.
func (n *NavigationConfiguration) MapJoinTable(name string, leftColumns, rightColumns []string) *NavigationConfiguration {
	defer n.lock()()
	if name == "" {
		n.sink.add("MapJoinTable", "name", "must not be empty")
		return n
	}
	if (len(leftColumns) > 0 && !nonEmpty(leftColumns)) || (len(rightColumns) > 0 && !nonEmpty(rightColumns)) {
		n.sink.add("MapJoinTable", "columns", "must be non-empty names")
		return n
	}
	n.s.joinTable.set(JoinTable{
		Name:         name,
		LeftColumns:  append([]string(nil), leftColumns...),
		RightColumns: append([]string(nil), rightColumns...),
	}, n.origin)
	return n
}

// TargetMultiplicity returns the configured multiplicity of the target end.
func (n *NavigationConfiguration) TargetMultiplicity() (metadata.Multiplicity, bool) {
	defer n.lock()()
	return n.s.target.Get()
}

// Inverse returns the configured inverse.
func (n *NavigationConfiguration) Inverse() (Inverse, bool) {
	defer n.lock()()
	return n.s.inverse.Get()
}

// ForeignKey returns the configured foreign key properties.
func (n *NavigationConfiguration) ForeignKey() ([]string, bool) {
	defer n.lock()()
	return n.s.foreignKey.Get()
}

func nonEmpty(names []string) bool {
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		if name == "" {
			return false
		}
	}
	return true
}
