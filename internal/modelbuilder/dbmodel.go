package modelbuilder

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/roach88/codefirst/internal/ir"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

// DbModel is the immutable result of a build. Accessors return copies.
type DbModel struct {
	mapping  *metadata.DatabaseMapping
	info     provider.Info
	manifest provider.Manifest
	builder  *ModelBuilder
	hash     string

	once     sync.Once
	compiled *CompiledModel
	err      error
}

func newDbModel(mapping *metadata.DatabaseMapping, info provider.Info, manifest provider.Manifest, builder *ModelBuilder) (*DbModel, error) {
	hash, err := ir.ModelHash(mapping)
	if err != nil {
		return nil, fmt.Errorf("modelbuilder: hash model: %w", err)
	}
	return &DbModel{mapping: mapping, info: info, manifest: manifest, builder: builder, hash: hash}, nil
}

// Load wraps a mapping that was built earlier, for example one read back
// from a model store. types binds the Go types the JSON form dropped. The
// result has no builder.
func Load(mapping *metadata.DatabaseMapping, types []reflect.Type, info provider.Info, manifest provider.Manifest) (*DbModel, error) {
	if mapping == nil || mapping.Model == nil || mapping.Database == nil {
		return nil, fmt.Errorf("modelbuilder: load: incomplete mapping")
	}
	m := mapping.Clone()
	m.Model.BindTypes(types)
	for _, et := range m.Model.EntityTypes {
		if et.GoType == nil {
			return nil, fmt.Errorf("modelbuilder: load: no Go type for entity type %s", et.Name)
		}
	}
	return newDbModel(m, info, manifest, nil)
}

// ProviderInfo returns the provider the model was built for.
func (m *DbModel) ProviderInfo() provider.Info { return m.info }

// Manifest returns the provider manifest used by the build.
func (m *DbModel) Manifest() provider.Manifest { return m.manifest }

// Mapping returns a copy of the conceptual model, store model and mapping.
func (m *DbModel) Mapping() *metadata.DatabaseMapping { return m.mapping.Clone() }

// Hash fingerprints the mapping. Two builds of the same configuration for
// the same provider have the same hash.
func (m *DbModel) Hash() string { return m.hash }

// Builder returns a copy of the builder state the model was built from, or
// nil for a loaded model.
func (m *DbModel) Builder() *ModelBuilder {
	if m.builder == nil {
		return nil
	}
	return m.builder.Clone()
}

// Compile resolves the mapping against Go types for use by contexts. The
// result is computed once.
func (m *DbModel) Compile() (*CompiledModel, error) {
	m.once.Do(func() {
		m.compiled, m.err = compile(m.mapping)
	})
	return m.compiled, m.err
}

// CompiledModel indexes entity mappings by Go type.
type CompiledModel struct {
	entities []*EntityMap
	byType   map[reflect.Type]*EntityMap
	mapping  *metadata.DatabaseMapping
}

// EntityMap is how one entity type is read from and written to its table.
type EntityMap struct {
	Type       reflect.Type
	EntityType *metadata.EntityType
	Table      *metadata.Table
	Columns    []*ColumnMap
	Key        []*ColumnMap
	// Identity is the store-generated key column, if any.
	Identity *ColumnMap
}

// ColumnMap binds a column to a property path. Fields holds one field index
// per path segment; Type is the Go type of the last field.
type ColumnMap struct {
	Path     string
	Column   *metadata.Column
	Property *metadata.Property
	Fields   [][]int
	Type     reflect.Type
}

// Column returns the column map for a property path.
func (em *EntityMap) Column(path string) (*ColumnMap, bool) {
	for _, cm := range em.Columns {
		if cm.Path == path {
			return cm, true
		}
	}
	return nil, false
}

// Entity returns the map for Go type t.
func (c *CompiledModel) Entity(t reflect.Type) (*EntityMap, bool) {
	em, ok := c.byType[t]
	return em, ok
}

// Entities returns the entity maps in model order.
func (c *CompiledModel) Entities() []*EntityMap { return c.entities }

// Tables returns the store tables in model order.
func (c *CompiledModel) Tables() []*metadata.Table { return c.mapping.Database.Tables }

// Associations returns the conceptual associations. The result is shared and
// must not be modified.
func (c *CompiledModel) Associations() []*metadata.Association { return c.mapping.Model.Associations }

func compile(mapping *metadata.DatabaseMapping) (*CompiledModel, error) {
	out := &CompiledModel{byType: make(map[reflect.Type]*EntityMap), mapping: mapping}
	for _, et := range mapping.Model.EntityTypes {
		em, err := compileEntity(mapping, et)
		if err != nil {
			return nil, err
		}
		out.entities = append(out.entities, em)
		out.byType[et.GoType] = em
	}
	return out, nil
}

func compileEntity(mapping *metadata.DatabaseMapping, et *metadata.EntityType) (*EntityMap, error) {
	if et.GoType == nil {
		return nil, fmt.Errorf("modelbuilder: compile: entity type %s has no Go type", et.Name)
	}
	emap := mapping.EntityMapping(et.Name)
	table := mapping.TableFor(et.Name)
	if emap == nil || table == nil {
		return nil, fmt.Errorf("modelbuilder: compile: entity type %s is not mapped to a table", et.Name)
	}
	em := &EntityMap{Type: et.GoType, EntityType: et, Table: table}
	byPath := make(map[string]*ColumnMap, len(emap.Properties))
	for _, pm := range emap.Properties {
		prop, fields, err := resolvePath(mapping.Model, et, pm.Path)
		if err != nil {
			return nil, err
		}
		col := table.Column(pm.Column)
		if col == nil {
			return nil, fmt.Errorf("modelbuilder: compile: %s.%s maps to missing column %s", et.Name, pm.Path, pm.Column)
		}
		cm := &ColumnMap{Path: pm.Path, Column: col, Property: prop, Fields: fields, Type: leafType(et.GoType, fields)}
		em.Columns = append(em.Columns, cm)
		byPath[pm.Path] = cm
	}
	for _, k := range et.Key {
		cm, ok := byPath[k]
		if !ok {
			return nil, fmt.Errorf("modelbuilder: compile: key %s.%s has no column", et.Name, k)
		}
		em.Key = append(em.Key, cm)
		if cm.Column.Identity {
			em.Identity = cm
		}
	}
	return em, nil
}

func leafType(t reflect.Type, fields [][]int) reflect.Type {
	for _, index := range fields {
		for _, n := range index {
			if t.Kind() == reflect.Pointer {
				t = t.Elem()
			}
			t = t.Field(n).Type
		}
	}
	return t
}

func resolvePath(model *metadata.Model, et *metadata.EntityType, path string) (*metadata.Property, [][]int, error) {
	t := et.GoType
	props := et.Properties
	var (
		prop   *metadata.Property
		fields [][]int
	)
	for i, seg := range metadata.SplitPath(path) {
		prop = nil
		for _, p := range props {
			if p.Name == seg {
				prop = p
				break
			}
		}
		f, ok := metadata.Field(t, seg)
		if prop == nil || !ok {
			return nil, nil, fmt.Errorf("modelbuilder: compile: %s has no member %s", et.Name, path)
		}
		fields = append(fields, f.Index)
		if prop.Kind != metadata.KindComplex {
			if i != len(metadata.SplitPath(path))-1 {
				return nil, nil, fmt.Errorf("modelbuilder: compile: %s.%s is not a complex property", et.Name, seg)
			}
			break
		}
		ct := model.ComplexType(prop.ComplexType)
		if ct == nil {
			return nil, nil, fmt.Errorf("modelbuilder: compile: unknown complex type %s", prop.ComplexType)
		}
		t = f.Type
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		props = ct.Properties
	}
	return prop, fields, nil
}

// Get returns the value of the column's property in entity, which must be an
// addressable struct or a pointer to one. ok is false when a pointer on the
// way is nil.
func (c *ColumnMap) Get(entity reflect.Value) (v reflect.Value, ok bool) {
	v = reflect.Indirect(entity)
	for _, index := range c.Fields {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				return reflect.Value{}, false
			}
			v = v.Elem()
		}
		f, err := v.FieldByIndexErr(index)
		if err != nil {
			return reflect.Value{}, false
		}
		v = f
	}
	return v, true
}

// Set stores x into the column's property in entity, allocating nil
// pointers on the way. x must be assignable or convertible to the field.
func (c *ColumnMap) Set(entity reflect.Value, x reflect.Value) error {
	v := reflect.Indirect(entity)
	for _, index := range c.Fields {
		if v.Kind() == reflect.Pointer {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		for i, n := range index {
			if i > 0 && v.Kind() == reflect.Pointer {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
			v = v.Field(n)
		}
	}
	switch {
	case x.Type().AssignableTo(v.Type()):
		v.Set(x)
	case x.Type().ConvertibleTo(v.Type()):
		v.Set(x.Convert(v.Type()))
	default:
		return fmt.Errorf("modelbuilder: cannot store %s in %s (%s)", x.Type(), c.Path, v.Type())
	}
	return nil
}
