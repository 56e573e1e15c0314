package modelconfig

import "reflect"

type complexState struct {
	goType reflect.Type
	members
}

func (s *complexState) clone() *complexState {
	return &complexState{goType: s.goType, members: s.members.clone()}
}

// ComplexTypeConfiguration configures a complex (value object) type.
type ComplexTypeConfiguration struct {
	s      *complexState
	origin Origin
	sink   *errorSink
	guard
}

// NewComplexTypeConfiguration returns a standalone configuration for t, to
// be registered later with ModelConfiguration.AddComplexType.
func NewComplexTypeConfiguration(t reflect.Type) *ComplexTypeConfiguration {
	return &ComplexTypeConfiguration{
		s:      &complexState{goType: t, members: newMembers()},
		origin: OriginExplicit,
		sink:   &errorSink{},
		guard:  newGuard(),
	}
}

// Type returns the configured Go type.
func (c *ComplexTypeConfiguration) Type() reflect.Type { return c.s.goType }

// Property returns the configuration of a scalar member.
func (c *ComplexTypeConfiguration) Property(name string) *PropertyConfiguration {
	defer c.lock()()
	if name == "" {
		c.sink.add("Property", "name", "must not be empty")
		return &PropertyConfiguration{s: newPropertyState(""), origin: c.origin}
	}
	if c.origin == OriginExplicit {
		delete(c.s.ignored, name)
	}
	return &PropertyConfiguration{s: c.s.property(name, c.origin), origin: c.origin, sink: c.sink, guard: c.guard}
}

// Ignore excludes a member from the complex type.
func (c *ComplexTypeConfiguration) Ignore(name string) *ComplexTypeConfiguration {
	defer c.lock()()
	if name == "" {
		c.sink.add("Ignore", "name", "must not be empty")
		return c
	}
	c.s.ignore(name, c.origin)
	return c
}

// IsIgnored reports whether a member is ignored.
func (c *ComplexTypeConfiguration) IsIgnored(name string) bool {
	defer c.lock()()
	_, ok := c.s.ignored[name]
	return ok
}
