// Package modelconfig accumulates fluent model configuration: per-type entity
// and complex type configurations, ignored types and the default schema.
//
// Every configured facet remembers whether it was set explicitly or by a
// convention. Conventions write through convention views and never overwrite
// an explicit value, so the order in which conventions and fluent calls run
// does not decide the outcome.
package modelconfig

import (
	"reflect"
	"slices"
	"sync"
)

// guard serializes access to configuration state. A model configuration
// shares its guard with every handle it returns, so fluent calls on those
// handles and Clone never interleave.
type guard struct {
	mu *sync.Mutex
}

func newGuard() guard { return guard{mu: &sync.Mutex{}} }

// lock locks the guard and returns the unlock function. Detached handles
// returned for invalid arguments have no guard.
func (g guard) lock() func() {
	if g.mu == nil {
		return func() {}
	}
	g.mu.Lock()
	return g.mu.Unlock
}

type registration struct {
	entity  *entityState
	complex *complexState
	sink    *errorSink
	// guard is the guard of the registered standalone configuration, which
	// its owner may keep configuring.
	guard guard
}

func (r registration) goType() reflect.Type {
	if r.entity != nil {
		return r.entity.goType
	}
	return r.complex.goType
}

// ModelConfiguration is the configuration of one model builder. Its methods
// and the configuration handles it returns are safe for concurrent use;
// Clone returns a consistent, independent copy.
type ModelConfiguration struct {
	entities      map[reflect.Type]*entityState
	complexTypes  map[reflect.Type]*complexState
	order         []reflect.Type
	ignored       map[reflect.Type]struct{}
	registered    []registration
	defaultSchema string
	sink          *errorSink
	guard
}

// New returns an empty model configuration.
func New() *ModelConfiguration {
	return &ModelConfiguration{
		entities:     make(map[reflect.Type]*entityState),
		complexTypes: make(map[reflect.Type]*complexState),
		ignored:      make(map[reflect.Type]struct{}),
		sink:         &errorSink{},
		guard:        newGuard(),
	}
}

func checkStruct(method string, t reflect.Type, sink *errorSink) bool {
	if t == nil {
		sink.add(method, "type", "must not be nil")
		return false
	}
	if t.Kind() != reflect.Struct {
		sink.add(method, "type", "must be a struct type, got "+t.String())
		return false
	}
	return true
}

func (m *ModelConfiguration) track(t reflect.Type) {
	if !slices.Contains(m.order, t) {
		m.order = append(m.order, t)
	}
}

func (m *ModelConfiguration) untrack(t reflect.Type) {
	if _, ok := m.entities[t]; ok {
		return
	}
	if _, ok := m.complexTypes[t]; ok {
		return
	}
	m.order = slices.DeleteFunc(m.order, func(o reflect.Type) bool { return o == t })
}

// Entity returns the configuration for entity type t, creating it on first
// use. Repeated calls accumulate onto the same configuration. Configuring an
// ignored type removes the ignore.
func (m *ModelConfiguration) Entity(t reflect.Type) *EntityConfiguration {
	defer m.lock()()
	if !checkStruct("Entity", t, m.sink) {
		return &EntityConfiguration{s: newEntityState(t), origin: OriginExplicit}
	}
	if _, ok := m.complexTypes[t]; ok {
		m.sink.add("Entity", "type", t.Name()+" is already configured as a complex type")
		return &EntityConfiguration{s: newEntityState(t), origin: OriginExplicit}
	}
	delete(m.ignored, t)
	return &EntityConfiguration{s: m.entityState(t), origin: OriginExplicit, sink: m.sink, guard: m.guard}
}

// ComplexType returns the configuration for complex type t, creating it on
// first use.
func (m *ModelConfiguration) ComplexType(t reflect.Type) *ComplexTypeConfiguration {
	defer m.lock()()
	if !checkStruct("ComplexType", t, m.sink) {
		return &ComplexTypeConfiguration{s: &complexState{goType: t, members: newMembers()}, origin: OriginExplicit}
	}
	if _, ok := m.entities[t]; ok {
		m.sink.add("ComplexType", "type", t.Name()+" is already configured as an entity type")
		return &ComplexTypeConfiguration{s: &complexState{goType: t, members: newMembers()}, origin: OriginExplicit}
	}
	delete(m.ignored, t)
	return &ComplexTypeConfiguration{s: m.complexState(t), origin: OriginExplicit, sink: m.sink, guard: m.guard}
}

func (m *ModelConfiguration) entityState(t reflect.Type) *entityState {
	s, ok := m.entities[t]
	if !ok {
		s = newEntityState(t)
		m.entities[t] = s
		m.track(t)
	}
	return s
}

func (m *ModelConfiguration) complexState(t reflect.Type) *complexState {
	s, ok := m.complexTypes[t]
	if !ok {
		s = &complexState{goType: t, members: newMembers()}
		m.complexTypes[t] = s
		m.track(t)
	}
	return s
}

// Ignore excludes t from the model and discards its configuration. Type
// discovery skips ignored types even when a navigation reaches them.
func (m *ModelConfiguration) Ignore(t reflect.Type) {
	defer m.lock()()
	if !checkStruct("Ignore", t, m.sink) {
		return
	}
	delete(m.entities, t)
	delete(m.complexTypes, t)
	m.registered = slices.DeleteFunc(m.registered, func(r registration) bool { return r.goType() == t })
	m.untrack(t)
	m.ignored[t] = struct{}{}
}

// IsIgnored reports whether t is ignored.
func (m *ModelConfiguration) IsIgnored(t reflect.Type) bool {
	defer m.lock()()
	return m.isIgnored(t)
}

func (m *ModelConfiguration) isIgnored(t reflect.Type) bool {
	_, ok := m.ignored[t]
	return ok
}

// Add registers a standalone entity configuration. Its facets merge into
// any configuration made through Entity when the configurations are
// normalized.
func (m *ModelConfiguration) Add(cfg *EntityConfiguration) {
	defer m.lock()()
	if cfg == nil || cfg.s.goType == nil {
		m.sink.add("Add", "configuration", "must not be nil")
		return
	}
	if _, ok := m.complexTypes[cfg.s.goType]; ok {
		m.sink.add("Add", "configuration", cfg.s.goType.Name()+" is already configured as a complex type")
		return
	}
	delete(m.ignored, cfg.s.goType)
	m.track(cfg.s.goType)
	m.registered = append(m.registered, registration{entity: cfg.s, sink: cfg.sink, guard: m.foreign(cfg.guard)})
}

// AddComplexType registers a standalone complex type configuration.
func (m *ModelConfiguration) AddComplexType(cfg *ComplexTypeConfiguration) {
	defer m.lock()()
	if cfg == nil || cfg.s.goType == nil {
		m.sink.add("AddComplexType", "configuration", "must not be nil")
		return
	}
	if _, ok := m.entities[cfg.s.goType]; ok {
		m.sink.add("AddComplexType", "configuration", cfg.s.goType.Name()+" is already configured as an entity type")
		return
	}
	delete(m.ignored, cfg.s.goType)
	m.track(cfg.s.goType)
	m.registered = append(m.registered, registration{complex: cfg.s, sink: cfg.sink, guard: m.foreign(cfg.guard)})
}

// NormalizeConfigurations folds registered configurations into the
// per-type configurations. Facets set on only one side are kept; when both
// sides set a facet, an explicit value beats a convention value and
// otherwise the most recent write wins. A type registered both as entity
// and complex type is reported as an argument error.
func (m *ModelConfiguration) NormalizeConfigurations() {
	defer m.lock()()
	for _, r := range m.registered {
		m.normalize(r)
	}
	m.registered = nil
}

func (m *ModelConfiguration) normalize(r registration) {
	defer r.guard.lock()()
	m.sink.errs = append(m.sink.errs, r.sink.errs...)
	switch {
	case r.entity != nil:
		if _, ok := m.complexTypes[r.entity.goType]; ok {
			m.sink.add("Add", "configuration", r.entity.goType.Name()+" is configured as both entity and complex type")
			return
		}
		if cur, ok := m.entities[r.entity.goType]; ok {
			cur.merge(r.entity)
			return
		}
		m.entities[r.entity.goType] = r.entity.clone()
	case r.complex != nil:
		if _, ok := m.entities[r.complex.goType]; ok {
			m.sink.add("AddComplexType", "configuration", r.complex.goType.Name()+" is configured as both entity and complex type")
			return
		}
		if cur, ok := m.complexTypes[r.complex.goType]; ok {
			cur.members.merge(r.complex.members)
			return
		}
		m.complexTypes[r.complex.goType] = r.complex.clone()
	}
}

// ConventionEntity returns a convention view of the configuration for t.
// Writes through the view never overwrite explicit facets. It returns false
// for ignored types and types configured as complex types.
func (m *ModelConfiguration) ConventionEntity(t reflect.Type) (*EntityConfiguration, bool) {
	defer m.lock()()
	if t == nil || m.isIgnored(t) {
		return nil, false
	}
	if _, ok := m.complexTypes[t]; ok {
		return nil, false
	}
	return &EntityConfiguration{s: m.entityState(t), origin: OriginConvention, sink: m.sink, guard: m.guard}, true
}

// ConventionComplexType returns a convention view of the complex type
// configuration for t.
func (m *ModelConfiguration) ConventionComplexType(t reflect.Type) (*ComplexTypeConfiguration, bool) {
	defer m.lock()()
	if t == nil || m.isIgnored(t) {
		return nil, false
	}
	if _, ok := m.entities[t]; ok {
		return nil, false
	}
	return &ComplexTypeConfiguration{s: m.complexState(t), origin: OriginConvention, sink: m.sink, guard: m.guard}, true
}

// LookupEntity returns the configuration for t without creating one.
func (m *ModelConfiguration) LookupEntity(t reflect.Type) (*EntityConfiguration, bool) {
	defer m.lock()()
	s, ok := m.entities[t]
	if !ok {
		return nil, false
	}
	return &EntityConfiguration{s: s, origin: OriginExplicit, sink: m.sink, guard: m.guard}, true
}

// LookupComplexType returns the complex type configuration for t without
// creating one.
func (m *ModelConfiguration) LookupComplexType(t reflect.Type) (*ComplexTypeConfiguration, bool) {
	defer m.lock()()
	s, ok := m.complexTypes[t]
	if !ok {
		return nil, false
	}
	return &ComplexTypeConfiguration{s: s, origin: OriginExplicit, sink: m.sink, guard: m.guard}, true
}

// IsComplexType reports whether t is configured as a complex type.
func (m *ModelConfiguration) IsComplexType(t reflect.Type) bool {
	defer m.lock()()
	return m.isComplexType(t)
}

func (m *ModelConfiguration) isComplexType(t reflect.Type) bool {
	if _, ok := m.complexTypes[t]; ok {
		return true
	}
	for _, r := range m.registered {
		if r.complex != nil && r.complex.goType == t {
			return true
		}
	}
	return false
}

// EntityTypes returns the configured entity types in configuration order,
// including registered configurations not yet normalized.
func (m *ModelConfiguration) EntityTypes() []reflect.Type {
	defer m.lock()()
	var out []reflect.Type
	for _, t := range m.order {
		if _, ok := m.entities[t]; ok {
			out = append(out, t)
			continue
		}
		for _, r := range m.registered {
			if r.entity != nil && r.entity.goType == t {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// ComplexTypes returns the configured complex types in configuration order.
func (m *ModelConfiguration) ComplexTypes() []reflect.Type {
	defer m.lock()()
	var out []reflect.Type
	for _, t := range m.order {
		if m.isComplexType(t) {
			out = append(out, t)
		}
	}
	return out
}

// HasDefaultSchema sets the schema used for tables without one. An empty
// schema restores the provider default.
func (m *ModelConfiguration) HasDefaultSchema(schema string) {
	defer m.lock()()
	m.defaultSchema = schema
}

// DefaultSchema returns the default schema.
func (m *ModelConfiguration) DefaultSchema() string {
	defer m.lock()()
	return m.defaultSchema
}

// Errors returns the argument errors recorded by fluent calls, including
// those recorded on registered configurations.
func (m *ModelConfiguration) Errors() []error {
	defer m.lock()()
	out := append([]error(nil), m.sink.errs...)
	for _, r := range m.registered {
		unlock := r.guard.lock()
		out = append(out, r.sink.errs...)
		unlock()
	}
	return out
}

// Clone returns a deep copy. Later changes to either copy do not affect the
// other.
func (m *ModelConfiguration) Clone() *ModelConfiguration {
	defer m.lock()()
	cp := &ModelConfiguration{
		entities:      make(map[reflect.Type]*entityState, len(m.entities)),
		complexTypes:  make(map[reflect.Type]*complexState, len(m.complexTypes)),
		order:         slices.Clone(m.order),
		ignored:       make(map[reflect.Type]struct{}, len(m.ignored)),
		defaultSchema: m.defaultSchema,
		sink:          m.sink.clone(),
		guard:         newGuard(),
	}
	for t, s := range m.entities {
		cp.entities[t] = s.clone()
	}
	for t, s := range m.complexTypes {
		cp.complexTypes[t] = s.clone()
	}
	for t := range m.ignored {
		cp.ignored[t] = struct{}{}
	}
	for _, r := range m.registered {
		cp.registered = append(cp.registered, r.clone())
	}
	return cp
}

// foreign returns g unless it is m's own guard, which callers already hold.
func (m *ModelConfiguration) foreign(g guard) guard {
	if g.mu == m.mu {
		return guard{}
	}
	return g
}

// clone copies a registration under its guard. The copy belongs to the
// cloned model configuration alone and needs no guard.
func (r registration) clone() registration {
	defer r.guard.lock()()
	rc := registration{sink: r.sink.clone()}
	if r.entity != nil {
		rc.entity = r.entity.clone()
	} else {
		rc.complex = r.complex.clone()
	}
	return rc
}
