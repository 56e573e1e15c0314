package modelbuilder

import (
	"fmt"
	"reflect"
	"slices"

	"github.com/roach88/codefirst/internal/conventions"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
)

type memberKind int

const (
	memberScalar memberKind = iota
	memberComplex
	memberNavigation
	memberUnsupported
)

// typeMapper discovers the types of a model and maps them to the conceptual
// model. It works on a builder snapshot and may write convention
// configuration into it.
type typeMapper struct {
	cfg  *modelconfig.ModelConfiguration
	set  *conventions.Set
	cc   *conventions.Context
	seen map[reflect.Type]bool

	// fields remembers the Go field behind each scalar property for
	// property conventions.
	fields map[*metadata.Property]reflect.StructField
}

func newTypeMapper(cfg *modelconfig.ModelConfiguration, set *conventions.Set, cc *conventions.Context) *typeMapper {
	return &typeMapper{
		cfg:    cfg,
		set:    set,
		cc:     cc,
		seen:   make(map[reflect.Type]bool),
		fields: make(map[*metadata.Property]reflect.StructField),
	}
}

// roots returns the explicitly configured types, entities first, in
// configuration order.
func (m *typeMapper) roots() []reflect.Type {
	return append(m.cfg.EntityTypes(), m.cfg.ComplexTypes()...)
}

// configure runs the configuration conventions on t once.
func (m *typeMapper) configure(t reflect.Type) {
	if m.seen[t] {
		return
	}
	m.seen[t] = true
	if m.cfg.IsComplexType(t) {
		m.cfg.ConventionComplexType(t)
	} else {
		m.cfg.ConventionEntity(t)
	}
	for _, c := range conventions.All[conventions.ConfigurationConvention](m.set) {
		c.ApplyConfiguration(m.cc, t)
	}
}

// discover walks the types reachable from roots breadth-first, in
// declared-member order, running configuration conventions on each type as
// it is reached. Ignored types and members are not followed.
func (m *typeMapper) discover(roots []reflect.Type) []reflect.Type {
	var order []reflect.Type
	visited := make(map[reflect.Type]bool)
	queue := slices.Clone(roots)
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		if visited[t] || m.cfg.IsIgnored(t) {
			continue
		}
		visited[t] = true
		m.configure(t)
		order = append(order, t)

		for _, f := range metadata.StructFields(t) {
			if m.memberIgnored(t, f.Name) {
				continue
			}
			kind, target, _ := m.classify(f)
			switch kind {
			case memberNavigation:
				queue = append(queue, target)
			case memberComplex:
				if _, isEntity := m.cfg.LookupEntity(target); !isEntity {
					m.cfg.ConventionComplexType(target)
				}
				queue = append(queue, target)
			}
		}
	}
	return order
}

func (m *typeMapper) memberIgnored(t reflect.Type, name string) bool {
	if ct, ok := m.cfg.LookupComplexType(t); ok {
		return ct.IsIgnored(name)
	}
	if e, ok := m.cfg.LookupEntity(t); ok {
		return e.IsIgnored(name)
	}
	return false
}

// classify decides what a field maps to. A reference to a configured
// complex type is a complex property even without a complex tag.
func (m *typeMapper) classify(f reflect.StructField) (kind memberKind, target reflect.Type, collection bool) {
	if metadata.IsPrimitive(f.Type) {
		return memberScalar, nil, false
	}
	if target, collection, ok := conventions.NavigationTarget(f); ok {
		if !collection && m.cfg.IsComplexType(target) {
			return memberComplex, target, false
		}
		return memberNavigation, target, collection
	}
	if target, ok := conventions.ComplexTarget(f); ok {
		return memberComplex, target, false
	}
	return memberUnsupported, nil, false
}

// mapTypes builds the conceptual model for the discovered types. Mapping is
// all-or-nothing: the first type that cannot be mapped aborts it.
func (m *typeMapper) mapTypes(types []reflect.Type) (*metadata.Model, error) {
	model := &metadata.Model{Namespace: "CodeFirstModel"}
	for _, t := range types {
		if !m.cfg.IsComplexType(t) {
			continue
		}
		ct, err := m.mapComplexType(t)
		if err != nil {
			return nil, err
		}
		model.ComplexTypes = append(model.ComplexTypes, ct)
	}
	for _, t := range types {
		if m.cfg.IsComplexType(t) {
			continue
		}
		et, assocs, err := m.mapEntityType(t)
		if err != nil {
			return nil, err
		}
		model.EntityTypes = append(model.EntityTypes, et)
		model.Associations = append(model.Associations, assocs...)
	}
	return model, nil
}

func (m *typeMapper) scalar(f reflect.StructField) *metadata.Property {
	pt, nullable, _ := metadata.PrimitiveTypeOf(f.Type)
	p := &metadata.Property{
		Name:     f.Name,
		Kind:     metadata.KindPrimitive,
		Type:     pt,
		Nullable: nullable || pt == metadata.String,
	}
	m.fields[p] = f
	return p
}

func (m *typeMapper) complexProperty(owner reflect.Type, f reflect.StructField, target reflect.Type) (*metadata.Property, error) {
	if !m.cfg.IsComplexType(target) {
		return nil, &UnmappableTypeError{Type: owner, Reason: fmt.Sprintf(
			"field %s holds entity type %s by value; use a pointer or a slice", f.Name, target.Name())}
	}
	return &metadata.Property{Name: f.Name, Kind: metadata.KindComplex, ComplexType: target.Name()}, nil
}

func checkNamed(t reflect.Type) error {
	if t.Name() == "" {
		return &UnmappableTypeError{Type: t, Reason: "anonymous struct types have no name"}
	}
	return nil
}

func (m *typeMapper) mapComplexType(t reflect.Type) (*metadata.ComplexType, error) {
	if err := checkNamed(t); err != nil {
		return nil, err
	}
	ct := &metadata.ComplexType{Name: t.Name(), GoType: t}
	for _, f := range metadata.StructFields(t) {
		if m.memberIgnored(t, f.Name) {
			continue
		}
		kind, target, _ := m.classify(f)
		if target != nil && m.cfg.IsIgnored(target) {
			continue
		}
		switch kind {
		case memberScalar:
			ct.Properties = append(ct.Properties, m.scalar(f))
		case memberComplex:
			p, err := m.complexProperty(t, f, target)
			if err != nil {
				return nil, err
			}
			ct.Properties = append(ct.Properties, p)
		case memberNavigation:
			return nil, &UnmappableTypeError{Type: t, Reason: fmt.Sprintf(
				"complex types cannot declare navigation property %s", f.Name)}
		default:
			return nil, &UnmappableTypeError{Type: t, Reason: fmt.Sprintf(
				"field %s has unsupported type %s", f.Name, f.Type)}
		}
	}
	return ct, nil
}

// mapEntityType maps t and creates one association per navigation
// property. Navigations are paired later, by configuration or by inverse
// discovery.
func (m *typeMapper) mapEntityType(t reflect.Type) (*metadata.EntityType, []*metadata.Association, error) {
	if err := checkNamed(t); err != nil {
		return nil, nil, err
	}
	et := &metadata.EntityType{Name: t.Name(), GoType: t, EntitySet: t.Name()}
	var assocs []*metadata.Association
	for _, f := range metadata.StructFields(t) {
		if m.memberIgnored(t, f.Name) {
			continue
		}
		kind, target, collection := m.classify(f)
		if target != nil && m.cfg.IsIgnored(target) {
			continue
		}
		switch kind {
		case memberScalar:
			et.Properties = append(et.Properties, m.scalar(f))
		case memberComplex:
			p, err := m.complexProperty(t, f, target)
			if err != nil {
				return nil, nil, err
			}
			et.Properties = append(et.Properties, p)
		case memberNavigation:
			if m.cfg.IsComplexType(target) {
				return nil, nil, &UnmappableTypeError{Type: t, Reason: fmt.Sprintf(
					"field %s is a collection of complex type %s", f.Name, target.Name())}
			}
			a := newAssociation(et.Name, f.Name, target.Name(), collection)
			et.Navigations = append(et.Navigations, &metadata.NavigationProperty{
				Name:        f.Name,
				Target:      target.Name(),
				Association: a.Name,
				Collection:  collection,
			})
			assocs = append(assocs, a)
		default:
			return nil, nil, &UnmappableTypeError{Type: t, Reason: fmt.Sprintf(
				"field %s has unsupported type %s", f.Name, f.Type)}
		}
	}
	return et, assocs, nil
}

// newAssociation creates the association of an unpaired navigation. A
// collection makes the declaring end optional and the target end many; a
// reference makes the declaring end many and the target end optional.
func newAssociation(entity, nav, target string, collection bool) *metadata.Association {
	a := &metadata.Association{Name: entity + "_" + nav}
	if collection {
		a.Source = metadata.AssociationEnd{EntityType: entity, Multiplicity: metadata.ZeroOrOne, Navigation: nav}
		a.Target = metadata.AssociationEnd{EntityType: target, Multiplicity: metadata.Many}
	} else {
		a.Source = metadata.AssociationEnd{EntityType: entity, Multiplicity: metadata.Many, Navigation: nav}
		a.Target = metadata.AssociationEnd{EntityType: target, Multiplicity: metadata.ZeroOrOne}
	}
	return a
}

// applyTypeConventions runs type conventions on every entity type and
// property conventions on every scalar property.
func (m *typeMapper) applyTypeConventions(model *metadata.Model) {
	typeConvs := conventions.All[conventions.TypeConvention](m.set)
	propConvs := conventions.All[conventions.PropertyConvention](m.set)
	applyProps := func(props []*metadata.Property) {
		for _, p := range props {
			f, ok := m.fields[p]
			if !ok {
				continue
			}
			for _, c := range propConvs {
				c.ApplyProperty(m.cc, p, f)
			}
		}
	}
	for _, et := range model.EntityTypes {
		for _, c := range typeConvs {
			c.ApplyType(m.cc, et)
		}
		applyProps(et.Properties)
	}
	for _, ct := range model.ComplexTypes {
		applyProps(ct.Properties)
	}
}
