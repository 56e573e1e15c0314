package modelconfig

import (
	"maps"
	"reflect"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
)

// TableName is a configured table name.
type TableName struct {
	Schema string
	Name   string
}

// members holds the property configurations shared by entity and complex
// types.
type members struct {
	properties    map[string]*propertyState
	propertyOrder []string
	ignored       map[string]Origin
}

func newMembers() members {
	return members{properties: make(map[string]*propertyState), ignored: make(map[string]Origin)}
}

func (m *members) property(name string, origin Origin) *propertyState {
	s, ok := m.properties[name]
	if !ok {
		s = newPropertyState(name)
		m.properties[name] = s
		m.propertyOrder = append(m.propertyOrder, name)
	}
	s.touched = max(s.touched, origin)
	return s
}

// ignore records name as ignored. A convention cannot ignore a member that
// was configured explicitly.
func (m *members) ignore(name string, origin Origin) {
	if cur, ok := m.ignored[name]; ok && cur > origin {
		return
	}
	if p, ok := m.properties[name]; ok && p.touched > origin {
		return
	}
	m.ignored[name] = origin
	if origin == OriginExplicit {
		delete(m.properties, name)
		m.propertyOrder = removeName(m.propertyOrder, name)
	}
}

func (m members) clone() members {
	cp := members{
		properties:    make(map[string]*propertyState, len(m.properties)),
		propertyOrder: append([]string(nil), m.propertyOrder...),
		ignored:       maps.Clone(m.ignored),
	}
	for k, v := range m.properties {
		cp.properties[k] = v.clone()
	}
	return cp
}

func (m *members) merge(o members) {
	for _, name := range o.propertyOrder {
		m.property(name, OriginNone).merge(o.properties[name])
	}
	for name, origin := range o.ignored {
		m.ignore(name, origin)
	}
}

type entityState struct {
	goType reflect.Type
	members

	entitySet   Facet[string]
	table       Facet[TableName]
	key         Facet[[]string]
	navigations map[string]*navigationState
	navOrder    []string
	annotations map[string]Facet[any]
}

func newEntityState(t reflect.Type) *entityState {
	return &entityState{
		goType:      t,
		members:     newMembers(),
		navigations: make(map[string]*navigationState),
		annotations: make(map[string]Facet[any]),
	}
}

func (s *entityState) navigation(name string, origin Origin) *navigationState {
	n, ok := s.navigations[name]
	if !ok {
		n = &navigationState{name: name}
		s.navigations[name] = n
		s.navOrder = append(s.navOrder, name)
	}
	n.touched = max(n.touched, origin)
	return n
}

func (s *entityState) clone() *entityState {
	cp := &entityState{
		goType:      s.goType,
		members:     s.members.clone(),
		entitySet:   s.entitySet,
		table:       s.table,
		key:         s.key,
		navigations: make(map[string]*navigationState, len(s.navigations)),
		navOrder:    append([]string(nil), s.navOrder...),
		annotations: maps.Clone(s.annotations),
	}
	for k, v := range s.navigations {
		cp.navigations[k] = v.clone()
	}
	return cp
}

func (s *entityState) merge(o *entityState) {
	s.members.merge(o.members)
	s.entitySet.merge(o.entitySet)
	s.table.merge(o.table)
	s.key.merge(o.key)
	for _, name := range o.navOrder {
		s.navigation(name, OriginNone).merge(o.navigations[name])
	}
	for k, v := range o.annotations {
		cur := s.annotations[k]
		cur.merge(v)
		s.annotations[k] = cur
	}
}

// EntityConfiguration configures one entity type. Methods return the
// receiver (or a member configuration) for chaining; invalid arguments are
// recorded and change nothing.
type EntityConfiguration struct {
	s      *entityState
	origin Origin
	sink   *errorSink
	guard
}

// NewEntityConfiguration returns a standalone configuration for t, to be
// registered later with ModelConfiguration.Add. It plays the role of a
// reusable per-type configuration class.
func NewEntityConfiguration(t reflect.Type) *EntityConfiguration {
	return &EntityConfiguration{s: newEntityState(t), origin: OriginExplicit, sink: &errorSink{}, guard: newGuard()}
}

// NewEntityConfigurationFor is NewEntityConfiguration for T.
func NewEntityConfigurationFor[T any]() *EntityConfiguration {
	return NewEntityConfiguration(reflect.TypeOf((*T)(nil)).Elem())
}

// Type returns the configured Go type.
func (e *EntityConfiguration) Type() reflect.Type { return e.s.goType }

// HasKey sets the key properties in key order.
func (e *EntityConfiguration) HasKey(properties ...string) *EntityConfiguration {
	defer e.lock()()
	if !nonEmpty(properties) {
		e.sink.add("HasKey", "properties", "must be non-empty names")
		return e
	}
	e.s.key.set(append([]string(nil), properties...), e.origin)
	return e
}

// ToTable maps the entity type to a table. A name of the form
// "schema.table" sets the schema too.
func (e *EntityConfiguration) ToTable(name string) *EntityConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("ToTable", "name", "must not be empty")
		return e
	}
	schema, table := "", name
	if i := strings.LastIndexByte(name, '.'); i > 0 && i < len(name)-1 {
		schema, table = name[:i], name[i+1:]
	}
	e.s.table.set(TableName{Schema: schema, Name: table}, e.origin)
	return e
}

// ToTableInSchema maps the entity type to a table in schema.
func (e *EntityConfiguration) ToTableInSchema(name, schema string) *EntityConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("ToTableInSchema", "name", "must not be empty")
		return e
	}
	e.s.table.set(TableName{Schema: schema, Name: name}, e.origin)
	return e
}

// HasEntitySetName sets the entity set name.
func (e *EntityConfiguration) HasEntitySetName(name string) *EntityConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("HasEntitySetName", "name", "must not be empty")
		return e
	}
	e.s.entitySet.set(name, e.origin)
	return e
}

// HasAnnotation attaches a named annotation. A nil value removes it.
func (e *EntityConfiguration) HasAnnotation(name string, value any) *EntityConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("HasAnnotation", "name", "must not be empty")
		return e
	}
	f := e.s.annotations[name]
	f.set(value, e.origin)
	e.s.annotations[name] = f
	return e
}

// Property returns the configuration of a scalar property. A dotted path
// ("Address.City") configures the column of a complex member for this
// entity's table only.
func (e *EntityConfiguration) Property(name string) *PropertyConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("Property", "name", "must not be empty")
		return &PropertyConfiguration{s: newPropertyState(""), origin: e.origin}
	}
	if e.origin == OriginExplicit {
		delete(e.s.ignored, name)
	}
	return &PropertyConfiguration{s: e.s.property(name, e.origin), origin: e.origin, sink: e.sink, guard: e.guard}
}

// Ignore excludes a property or navigation from the model.
func (e *EntityConfiguration) Ignore(name string) *EntityConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add("Ignore", "name", "must not be empty")
		return e
	}
	if n, ok := e.s.navigations[name]; ok && n.touched > e.origin {
		return e
	}
	e.s.ignore(name, e.origin)
	if e.origin == OriginExplicit {
		delete(e.s.navigations, name)
		e.s.navOrder = removeName(e.s.navOrder, name)
	}
	return e
}

func (e *EntityConfiguration) has(method, name string, m metadata.Multiplicity) *NavigationConfiguration {
	defer e.lock()()
	if name == "" {
		e.sink.add(method, "navigation", "must not be empty")
		return &NavigationConfiguration{s: &navigationState{}, origin: e.origin}
	}
	if e.origin == OriginExplicit {
		delete(e.s.ignored, name)
	}
	n := &NavigationConfiguration{s: e.s.navigation(name, e.origin), origin: e.origin, sink: e.sink, guard: e.guard}
	n.s.target.set(m, e.origin)
	return n
}

// HasRequired configures a navigation whose target is required.
func (e *EntityConfiguration) HasRequired(navigation string) *NavigationConfiguration {
	return e.has("HasRequired", navigation, metadata.One)
}

// HasOptional configures a navigation whose target is optional.
func (e *EntityConfiguration) HasOptional(navigation string) *NavigationConfiguration {
	return e.has("HasOptional", navigation, metadata.ZeroOrOne)
}

// HasMany configures a collection navigation.
func (e *EntityConfiguration) HasMany(navigation string) *NavigationConfiguration {
	return e.has("HasMany", navigation, metadata.Many)
}

// Navigation returns the configuration of a navigation if one exists.
func (e *EntityConfiguration) Navigation(name string) (*NavigationConfiguration, bool) {
	defer e.lock()()
	s, ok := e.s.navigations[name]
	if !ok {
		return nil, false
	}
	return &NavigationConfiguration{s: s, origin: e.origin, sink: e.sink, guard: e.guard}, true
}

// Key returns the configured key.
func (e *EntityConfiguration) Key() ([]string, bool) {
	defer e.lock()()
	return e.s.key.Get()
}

// Table returns the configured table name.
func (e *EntityConfiguration) Table() (TableName, bool) {
	defer e.lock()()
	return e.s.table.Get()
}

// EntitySetName returns the configured entity set name.
func (e *EntityConfiguration) EntitySetName() (string, bool) {
	defer e.lock()()
	return e.s.entitySet.Get()
}

// IsIgnored reports whether a member is ignored.
func (e *EntityConfiguration) IsIgnored(name string) bool {
	defer e.lock()()
	_, ok := e.s.ignored[name]
	return ok
}

// ConfiguredProperties returns the names of configured properties in
// configuration order.
func (e *EntityConfiguration) ConfiguredProperties() []string {
	defer e.lock()()
	return append([]string(nil), e.s.propertyOrder...)
}

// ConfiguredNavigations returns the names of configured navigations in
// configuration order.
func (e *EntityConfiguration) ConfiguredNavigations() []string {
	defer e.lock()()
	return append([]string(nil), e.s.navOrder...)
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
