package dbcontext

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	"github.com/roach88/codefirst/internal/metadata"
)

// Validator is implemented by entities with rules beyond the model's
// facets. Validate runs after the facet rules for added and modified
// entities.
type Validator interface {
	Validate() error
}

// validate checks every added and modified entity and returns an
// EntityValidationError listing all failures, or nil.
func (t *tracker) validate() error {
	var failed []EntityErrors
	for _, e := range t.entries {
		if e.state != Added && e.state != Modified {
			continue
		}
		if errs := validateEntry(e); len(errs) > 0 {
			failed = append(failed, EntityErrors{
				EntityType: e.em.EntityType.Name,
				Entity:     e.ptr.Interface(),
				Errors:     errs,
			})
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &EntityValidationError{Entities: failed}
}

func validateEntry(e *entry) []PropertyError {
	var errs []PropertyError
	for _, cm := range e.em.Columns {
		p := cm.Property
		if p.StoreGenerated == metadata.GeneratedIdentity || p.StoreGenerated == metadata.GeneratedComputed {
			continue
		}
		v := columnValue(cm, e.ptr)
		if !p.Nullable && isMissing(v) {
			errs = append(errs, PropertyError{Property: cm.Path, Message: "is required"})
			continue
		}
		if p.MaxLength != nil && !p.IsMaxLength {
			if n, ok := length(v); ok && n > *p.MaxLength {
				errs = append(errs, PropertyError{
					Property: cm.Path,
					Message:  fmt.Sprintf("exceeds the maximum length of %d", *p.MaxLength),
				})
			}
		}
	}
	if v, ok := e.ptr.Interface().(Validator); ok {
		if err := v.Validate(); err != nil {
			errs = append(errs, PropertyError{Property: "", Message: err.Error()})
		}
	}
	return errs
}

// isMissing reports a nil value or an empty string.
func isMissing(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.String && rv.Len() == 0
}

// length measures strings in runes and byte slices in bytes.
func length(v any) (int, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Kind() == reflect.String:
		return utf8.RuneCountInString(rv.String()), true
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		return rv.Len(), true
	}
	return 0, false
}
