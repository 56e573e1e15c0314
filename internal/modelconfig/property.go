package modelconfig

import (
	"maps"

	"github.com/roach88/codefirst/internal/metadata"
)

type propertyState struct {
	name string
	// touched is the highest origin that asked for this property.
	touched Origin

	columnName       Facet[string]
	columnType       Facet[string]
	columnOrder      Facet[int]
	nullable         Facet[bool]
	maxLength        Facet[int]
	isMaxLength      Facet[bool]
	fixedLength      Facet[bool]
	unicode          Facet[bool]
	precision        Facet[[2]uint8]
	concurrencyToken Facet[bool]
	storeGenerated   Facet[metadata.StoreGeneratedPattern]
	annotations      map[string]Facet[any]
}

func newPropertyState(name string) *propertyState {
	return &propertyState{name: name, annotations: make(map[string]Facet[any])}
}

func (s *propertyState) clone() *propertyState {
	cp := *s
	cp.annotations = maps.Clone(s.annotations)
	return &cp
}

func (s *propertyState) merge(o *propertyState) {
	s.touched = max(s.touched, o.touched)
	s.columnName.merge(o.columnName)
	s.columnType.merge(o.columnType)
	s.columnOrder.merge(o.columnOrder)
	s.nullable.merge(o.nullable)
	s.maxLength.merge(o.maxLength)
	s.isMaxLength.merge(o.isMaxLength)
	s.fixedLength.merge(o.fixedLength)
	s.unicode.merge(o.unicode)
	s.precision.merge(o.precision)
	s.concurrencyToken.merge(o.concurrencyToken)
	s.storeGenerated.merge(o.storeGenerated)
	for k, v := range o.annotations {
		cur := s.annotations[k]
		cur.merge(v)
		s.annotations[k] = cur
	}
}

// PropertyConfiguration configures one scalar property. Methods return the
// receiver for chaining; invalid arguments are recorded and change nothing.
type PropertyConfiguration struct {
	s      *propertyState
	origin Origin
	sink   *errorSink
	guard
}

// Name returns the property name (a dotted path for complex members).
func (p *PropertyConfiguration) Name() string { return p.s.name }

// Origin returns the origin that writes through this handle use.
func (p *PropertyConfiguration) Origin() Origin { return p.origin }

// HasColumnName sets the column name.
func (p *PropertyConfiguration) HasColumnName(name string) *PropertyConfiguration {
	defer p.lock()()
	if name == "" {
		p.sink.add("HasColumnName", "name", "must not be empty")
		return p
	}
	p.s.columnName.set(name, p.origin)
	return p
}

// HasColumnType sets the store type name, for example "VARCHAR(40)".
// The provider manifest validates it when the store model is configured.
func (p *PropertyConfiguration) HasColumnType(typeName string) *PropertyConfiguration {
	defer p.lock()()
	if typeName == "" {
		p.sink.add("HasColumnType", "typeName", "must not be empty")
		return p
	}
	p.s.columnType.set(typeName, p.origin)
	return p
}

// HasColumnOrder sets the zero-based column position.
func (p *PropertyConfiguration) HasColumnOrder(order int) *PropertyConfiguration {
	defer p.lock()()
	if order < 0 {
		p.sink.add("HasColumnOrder", "order", "must not be negative")
		return p
	}
	p.s.columnOrder.set(order, p.origin)
	return p
}

// IsRequired makes the property non-nullable.
func (p *PropertyConfiguration) IsRequired() *PropertyConfiguration {
	defer p.lock()()
	p.s.nullable.set(false, p.origin)
	return p
}

// IsOptional makes the property nullable.
func (p *PropertyConfiguration) IsOptional() *PropertyConfiguration {
	defer p.lock()()
	p.s.nullable.set(true, p.origin)
	return p
}

// HasMaxLength bounds a string or binary property.
func (p *PropertyConfiguration) HasMaxLength(n int) *PropertyConfiguration {
	defer p.lock()()
	if n <= 0 {
		p.sink.add("HasMaxLength", "n", "must be positive")
		return p
	}
	p.s.maxLength.set(n, p.origin)
	p.s.isMaxLength.set(false, p.origin)
	return p
}

// IsMaxLength allows the largest length the provider supports.
func (p *PropertyConfiguration) IsMaxLength() *PropertyConfiguration {
	defer p.lock()()
	p.s.isMaxLength.set(true, p.origin)
	return p
}

// IsFixedLength makes a string or binary property fixed length.
func (p *PropertyConfiguration) IsFixedLength() *PropertyConfiguration {
	defer p.lock()()
	p.s.fixedLength.set(true, p.origin)
	return p
}

// IsVariableLength makes a string or binary property variable length.
func (p *PropertyConfiguration) IsVariableLength() *PropertyConfiguration {
	defer p.lock()()
	p.s.fixedLength.set(false, p.origin)
	return p
}

// IsUnicode sets whether a string property holds Unicode text.
func (p *PropertyConfiguration) IsUnicode(unicode bool) *PropertyConfiguration {
	defer p.lock()()
	p.s.unicode.set(unicode, p.origin)
	return p
}

// HasPrecision sets precision and scale of a decimal property.
func (p *PropertyConfiguration) HasPrecision(precision, scale uint8) *PropertyConfiguration {
	defer p.lock()()
	if precision == 0 {
		p.sink.add("HasPrecision", "precision", "must be positive")
		return p
	}
	if scale > precision {
		p.sink.add("HasPrecision", "scale", "must not exceed precision")
		return p
	}
	p.s.precision.set([2]uint8{precision, scale}, p.origin)
	return p
}

// IsConcurrencyToken makes the property take part in optimistic concurrency
// checks.
func (p *PropertyConfiguration) IsConcurrencyToken() *PropertyConfiguration {
	defer p.lock()()
	p.s.concurrencyToken.set(true, p.origin)
	return p
}

// IsRowVersion makes the property a store-computed concurrency token.
func (p *PropertyConfiguration) IsRowVersion() *PropertyConfiguration {
	defer p.lock()()
	p.s.concurrencyToken.set(true, p.origin)
	p.s.storeGenerated.set(metadata.GeneratedComputed, p.origin)
	p.s.nullable.set(false, p.origin)
	return p
}

// HasDatabaseGeneratedOption sets how the store produces the value.
func (p *PropertyConfiguration) HasDatabaseGeneratedOption(pattern metadata.StoreGeneratedPattern) *PropertyConfiguration {
	defer p.lock()()
	switch pattern {
	case metadata.GeneratedNone, metadata.GeneratedIdentity, metadata.GeneratedComputed:
		p.s.storeGenerated.set(pattern, p.origin)
	default:
		p.sink.add("HasDatabaseGeneratedOption", "pattern", "is not a known pattern")
	}
	return p
}

// HasAnnotation attaches a named annotation. A nil value removes it.
func (p *PropertyConfiguration) HasAnnotation(name string, value any) *PropertyConfiguration {
	defer p.lock()()
	if name == "" {
		p.sink.add("HasAnnotation", "name", "must not be empty")
		return p
	}
	f := p.s.annotations[name]
	f.set(value, p.origin)
	p.s.annotations[name] = f
	return p
}

// ColumnName returns the configured column name.
func (p *PropertyConfiguration) ColumnName() (string, bool) {
	defer p.lock()()
	return p.s.columnName.Get()
}

// ColumnType returns the configured store type name.
func (p *PropertyConfiguration) ColumnType() (string, bool) {
	defer p.lock()()
	return p.s.columnType.Get()
}

// ColumnOrder returns the configured column order.
func (p *PropertyConfiguration) ColumnOrder() (int, bool) {
	defer p.lock()()
	return p.s.columnOrder.Get()
}

// Nullable returns the configured nullability.
func (p *PropertyConfiguration) Nullable() (bool, bool) {
	defer p.lock()()
	return p.s.nullable.Get()
}

// MaxLength returns the configured maximum length.
func (p *PropertyConfiguration) MaxLength() (int, bool) {
	defer p.lock()()
	return p.s.maxLength.Get()
}

// applyConceptual writes the conceptual facets onto prop.
func (s *propertyState) applyConceptual(prop *metadata.Property) {
	if v, ok := s.nullable.Get(); ok {
		prop.Nullable = v
	}
	if v, ok := s.maxLength.Get(); ok {
		prop.MaxLength = &v
	}
	if v, ok := s.isMaxLength.Get(); ok {
		prop.IsMaxLength = v
		if v {
			prop.MaxLength = nil
		}
	}
	if v, ok := s.fixedLength.Get(); ok {
		prop.FixedLength = &v
	}
	if v, ok := s.unicode.Get(); ok {
		prop.Unicode = &v
	}
	if v, ok := s.precision.Get(); ok {
		precision, scale := v[0], v[1]
		prop.Precision, prop.Scale = &precision, &scale
	}
	if v, ok := s.concurrencyToken.Get(); ok {
		prop.ConcurrencyToken = v
	}
	if v, ok := s.storeGenerated.Get(); ok {
		prop.StoreGenerated = v
	}
	for name, f := range s.annotations {
		v, ok := f.Get()
		if !ok {
			continue
		}
		if v == nil {
			delete(prop.Annotations, name)
			continue
		}
		if prop.Annotations == nil {
			prop.Annotations = make(map[string]any)
		}
		prop.Annotations[name] = v
	}
}

// hasConceptualFacets reports whether any conceptual facet is set.
func (s *propertyState) hasConceptualFacets() bool {
	return s.nullable.origin|s.maxLength.origin|s.isMaxLength.origin|s.fixedLength.origin|
		s.unicode.origin|s.precision.origin|s.concurrencyToken.origin|s.storeGenerated.origin != OriginNone ||
		len(s.annotations) > 0
}
