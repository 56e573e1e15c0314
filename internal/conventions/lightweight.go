package conventions

import (
	"reflect"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
)

// EntityConventionBuilder declares a lightweight convention over entity
// types. Configure appends it to the set, so it runs after every
// convention already in the set and before any added later.
type EntityConventionBuilder struct {
	set   *Set
	preds []func(reflect.Type) bool
}

// Entities starts a lightweight convention over all entity types.
func (s *Set) Entities() *EntityConventionBuilder {
	return &EntityConventionBuilder{set: s}
}

// EntitiesOf starts a lightweight convention over entity types that are T
// or, when T is an interface, whose pointer implements T.
func EntitiesOf[T any](s *Set) *EntityConventionBuilder {
	want := reflect.TypeOf((*T)(nil)).Elem()
	return s.Entities().Where(func(t reflect.Type) bool {
		if want.Kind() == reflect.Interface {
			return reflect.PointerTo(t).Implements(want)
		}
		return t == want
	})
}

// Where narrows the convention to types matching pred.
func (b *EntityConventionBuilder) Where(pred func(reflect.Type) bool) *EntityConventionBuilder {
	return &EntityConventionBuilder{set: b.set, preds: append(append([]func(reflect.Type) bool(nil), b.preds...), pred)}
}

// Configure adds the convention to the set and returns its name.
func (b *EntityConventionBuilder) Configure(fn func(*modelconfig.EntityConfiguration)) string {
	var name string
	b.set.appendNamed("Entities", func(n string) Convention {
		name = n
		return &entityConvention{name: n, preds: b.preds, fn: fn}
	})
	return name
}

type entityConvention struct {
	name  string
	preds []func(reflect.Type) bool
	fn    func(*modelconfig.EntityConfiguration)
}

func (c *entityConvention) Name() string { return c.name }

func (c *entityConvention) ApplyConfiguration(ctx *Context, t reflect.Type) {
	if ctx.Config.IsComplexType(t) {
		return
	}
	for _, pred := range c.preds {
		if !pred(t) {
			return
		}
	}
	if e, ok := ctx.Config.ConventionEntity(t); ok {
		c.fn(e)
	}
}

// PropertyConventionBuilder declares a lightweight convention over scalar
// properties of entity and complex types.
type PropertyConventionBuilder struct {
	set   *Set
	preds []func(reflect.StructField) bool
}

// Properties starts a lightweight convention over all scalar properties.
func (s *Set) Properties() *PropertyConventionBuilder {
	return &PropertyConventionBuilder{set: s}
}

// PropertiesOf starts a lightweight convention over properties of type T
// or *T.
func PropertiesOf[T any](s *Set) *PropertyConventionBuilder {
	want := reflect.TypeOf((*T)(nil)).Elem()
	return s.Properties().Where(func(f reflect.StructField) bool {
		return f.Type == want || f.Type == reflect.PointerTo(want)
	})
}

// Where narrows the convention to fields matching pred.
func (b *PropertyConventionBuilder) Where(pred func(reflect.StructField) bool) *PropertyConventionBuilder {
	return &PropertyConventionBuilder{set: b.set, preds: append(append([]func(reflect.StructField) bool(nil), b.preds...), pred)}
}

// Configure adds the convention to the set and returns its name.
func (b *PropertyConventionBuilder) Configure(fn func(*modelconfig.PropertyConfiguration)) string {
	var name string
	b.set.appendNamed("Properties", func(n string) Convention {
		name = n
		return &propertyConvention{name: n, preds: b.preds, fn: fn}
	})
	return name
}

type propertyConvention struct {
	name  string
	preds []func(reflect.StructField) bool
	fn    func(*modelconfig.PropertyConfiguration)
}

func (c *propertyConvention) Name() string { return c.name }

func (c *propertyConvention) matches(f reflect.StructField) bool {
	if !metadata.IsPrimitive(f.Type) {
		return false
	}
	for _, pred := range c.preds {
		if !pred(f) {
			return false
		}
	}
	return true
}

func (c *propertyConvention) ApplyConfiguration(ctx *Context, t reflect.Type) {
	if ctx.Config.IsComplexType(t) {
		ct, ok := ctx.Config.ConventionComplexType(t)
		if !ok {
			return
		}
		for _, f := range metadata.StructFields(t) {
			if !ct.IsIgnored(f.Name) && c.matches(f) {
				c.fn(ct.Property(f.Name))
			}
		}
		return
	}
	e, ok := ctx.Config.ConventionEntity(t)
	if !ok {
		return
	}
	for _, f := range metadata.StructFields(t) {
		if !e.IsIgnored(f.Name) && c.matches(f) {
			c.fn(e.Property(f.Name))
		}
	}
}
