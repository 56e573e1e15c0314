package metadata

import "reflect"

// StructFields returns the exported fields of struct type t in declaration
// order, followed by the fields of anonymous embedded structs. An outer
// field shadows an embedded one with the same name. An embedded struct that
// is already being walked, such as a type embedding a pointer to itself,
// contributes no fields.
func StructFields(t reflect.Type) []reflect.StructField {
	var out []reflect.StructField
	seen := make(map[string]bool)
	collectFields(t, nil, seen, map[reflect.Type]bool{}, &out)
	return out
}

func collectFields(t reflect.Type, index []int, seen map[string]bool, visiting map[reflect.Type]bool, out *[]reflect.StructField) {
	visiting[t] = true
	defer delete(visiting, t)

	var embedded []reflect.StructField
	for i := range t.NumField() {
		f := t.Field(i)
		f.Index = append(append([]int(nil), index...), i)
		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct && !IsPrimitive(ft) {
				embedded = append(embedded, f)
				continue
			}
		}
		if !f.IsExported() || seen[f.Name] {
			continue
		}
		seen[f.Name] = true
		*out = append(*out, f)
	}
	for _, f := range embedded {
		ft := f.Type
		if ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if visiting[ft] {
			continue
		}
		collectFields(ft, f.Index, seen, visiting, out)
	}
}

// Field returns the exported field called name, including fields promoted
// from embedded structs.
func Field(t reflect.Type, name string) (reflect.StructField, bool) {
	for _, f := range StructFields(t) {
		if f.Name == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}
