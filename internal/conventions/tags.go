package conventions

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
)

// TagKey is the struct tag key read by the StructTag convention.
const TagKey = "db"

// Tag is a parsed `db` struct tag. Options are separated by ";" and may
// carry a value after ":", for example `db:"column:Title;maxlength:200"`.
// The tag `db:"-"` ignores the field.
type Tag map[string]string

// ParseTag parses a tag value.
func ParseTag(s string) Tag {
	t := make(Tag)
	for _, opt := range strings.Split(s, ";") {
		opt = strings.TrimSpace(opt)
		if opt == "" {
			continue
		}
		k, v, _ := strings.Cut(opt, ":")
		t[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return t
}

// LookupTag returns the parsed `db` tag of f.
func LookupTag(f reflect.StructField) (Tag, bool) {
	s, ok := f.Tag.Lookup(TagKey)
	if !ok {
		return nil, false
	}
	return ParseTag(s), true
}

// Has reports whether the option is present.
func (t Tag) Has(option string) bool {
	_, ok := t[option]
	return ok
}

// Ignored reports whether the tag is "-".
func (t Tag) Ignored() bool { return t.Has("-") }

// NavigationTarget reports whether f is a navigation property: a pointer to
// a struct, or a slice of structs or struct pointers, where the struct is not
// a primitive type. Fields tagged complex are not navigations.
func NavigationTarget(f reflect.StructField) (target reflect.Type, collection, ok bool) {
	if tag, ok := LookupTag(f); ok && tag.Has("complex") {
		return nil, false, false
	}
	t := f.Type
	switch t.Kind() {
	case reflect.Pointer:
		t = t.Elem()
	case reflect.Slice:
		if metadata.IsPrimitive(t) {
			return nil, false, false
		}
		collection = true
		t = t.Elem()
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
	default:
		return nil, false, false
	}
	if t.Kind() != reflect.Struct || metadata.IsPrimitive(t) {
		return nil, false, false
	}
	return t, collection, true
}

// ComplexTarget reports whether f holds a complex value: a struct value
// that is not a primitive type, or any struct field tagged complex.
func ComplexTarget(f reflect.StructField) (reflect.Type, bool) {
	t := f.Type
	tag, tagged := LookupTag(f)
	if tagged && tag.Has("complex") && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || metadata.IsPrimitive(t) {
		return nil, false
	}
	return t, true
}

// StructTag applies `db` struct tags:
//
//	-                        ignore the field
//	key                      part of the key, in field order
//	column:NAME              column name
//	type:STORETYPE           column type, for example VARCHAR(40)
//	order:N                  column order
//	required, optional       nullability; on a navigation, required target
//	maxlength:N, max         length facets
//	fixed                    fixed length
//	ansi                     non-Unicode text
//	precision:P,S            decimal precision and scale
//	concurrency              concurrency token
//	timestamp                row version
//	identity, computed, nogen  store generated pattern
//	inverse:NAV              inverse navigation on the target
//	fk:PROP[,PROP]           foreign key properties on the dependent
//	complex                  the field holds a complex type
type StructTag struct{}

// Name returns "StructTag".
func (StructTag) Name() string { return "StructTag" }

// ApplyConfiguration applies the tags of t's fields.
func (StructTag) ApplyConfiguration(c *Context, t reflect.Type) {
	if c.Config.IsComplexType(t) {
		ct, ok := c.Config.ConventionComplexType(t)
		if !ok {
			return
		}
		for _, f := range metadata.StructFields(t) {
			tag, ok := LookupTag(f)
			if !ok {
				continue
			}
			if tag.Ignored() {
				ct.Ignore(f.Name)
				continue
			}
			if _, complex := ComplexTarget(f); complex {
				continue
			}
			applyPropertyTag(c, t.Name()+"."+f.Name, ct.Property(f.Name), tag)
		}
		return
	}

	e, ok := c.Config.ConventionEntity(t)
	if !ok {
		return
	}
	var keys []string
	for _, f := range metadata.StructFields(t) {
		tag, ok := LookupTag(f)
		if !ok {
			continue
		}
		if tag.Ignored() {
			e.Ignore(f.Name)
			continue
		}
		if target, collection, ok := NavigationTarget(f); ok {
			applyNavigationTag(c, e, f.Name, target, collection, tag)
			continue
		}
		if _, complex := ComplexTarget(f); complex {
			continue
		}
		if tag.Has("key") {
			keys = append(keys, f.Name)
		}
		applyPropertyTag(c, t.Name()+"."+f.Name, e.Property(f.Name), tag)
	}
	if len(keys) > 0 {
		e.HasKey(keys...)
	}
}

func applyPropertyTag(c *Context, element string, p *modelconfig.PropertyConfiguration, tag Tag) {
	if v := tag["column"]; v != "" {
		p.HasColumnName(v)
	}
	if v := tag["type"]; v != "" {
		p.HasColumnType(v)
	}
	if v, ok := tag["order"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.HasColumnOrder(n)
		} else {
			c.Problem(element, "invalid order %q", v)
		}
	}
	if tag.Has("required") || tag.Has("key") {
		p.IsRequired()
	}
	if tag.Has("optional") {
		p.IsOptional()
	}
	if v, ok := tag["maxlength"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			p.HasMaxLength(n)
		} else {
			c.Problem(element, "invalid maxlength %q", v)
		}
	}
	if tag.Has("max") {
		p.IsMaxLength()
	}
	if tag.Has("fixed") {
		p.IsFixedLength()
	}
	if tag.Has("ansi") {
		p.IsUnicode(false)
	}
	if v, ok := tag["precision"]; ok {
		ps, ss, _ := strings.Cut(v, ",")
		precision, err1 := strconv.ParseUint(strings.TrimSpace(ps), 10, 8)
		scale, err2 := strconv.ParseUint(strings.TrimSpace(ss), 10, 8)
		if ss == "" {
			scale, err2 = 0, nil
		}
		if err1 != nil || err2 != nil {
			c.Problem(element, "invalid precision %q", v)
		} else {
			p.HasPrecision(uint8(precision), uint8(scale))
		}
	}
	if tag.Has("concurrency") {
		p.IsConcurrencyToken()
	}
	if tag.Has("timestamp") {
		p.IsRowVersion()
	}
	switch {
	case tag.Has("identity"):
		p.HasDatabaseGeneratedOption(metadata.GeneratedIdentity)
	case tag.Has("computed"):
		p.HasDatabaseGeneratedOption(metadata.GeneratedComputed)
	case tag.Has("nogen"):
		p.HasDatabaseGeneratedOption(metadata.GeneratedNone)
	}
}

func applyNavigationTag(c *Context, e *modelconfig.EntityConfiguration, name string, target reflect.Type, collection bool, tag Tag) {
	_, hasInverse := tag["inverse"]
	if !hasInverse && !tag.Has("fk") && !tag.Has("required") {
		return
	}
	var nav *modelconfig.NavigationConfiguration
	switch {
	case collection:
		nav = e.HasMany(name)
	case tag.Has("required"):
		nav = e.HasRequired(name)
	default:
		nav = e.HasOptional(name)
	}
	if hasInverse {
		inverse := tag["inverse"]
		switch f, ok := metadata.Field(target, inverse); {
		case inverse == "" && collection:
			nav.WithOptional("")
		case inverse == "":
			nav.WithMany("")
		case !ok:
			c.Problem(e.Type().Name()+"."+name, "inverse %s.%s does not exist", target.Name(), inverse)
		default:
			if _, invCollection, _ := NavigationTarget(f); invCollection {
				nav.WithMany(inverse)
			} else {
				nav.WithOptional(inverse)
			}
		}
	}
	if v := tag["fk"]; v != "" {
		var props []string
		for _, p := range strings.Split(v, ",") {
			props = append(props, strings.TrimSpace(p))
		}
		nav.HasForeignKey(props...)
	}
}

type tabler interface {
	TableName() string
}

// TableNameMethod maps an entity type with a TableName() string method to
// the table it names. The method is called on a zero value.
type TableNameMethod struct{}

// Name returns "TableNameMethod".
func (TableNameMethod) Name() string { return "TableNameMethod" }

// ApplyConfiguration applies the TableName method of t.
func (TableNameMethod) ApplyConfiguration(c *Context, t reflect.Type) {
	if c.Config.IsComplexType(t) {
		return
	}
	tb, ok := reflect.New(t).Interface().(tabler)
	if !ok {
		return
	}
	name := tb.TableName()
	if name == "" {
		return
	}
	if e, ok := c.Config.ConventionEntity(t); ok {
		e.ToTable(name)
	}
}
