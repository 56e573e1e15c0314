package modelbuilder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
	"github.com/roach88/codefirst/internal/provider"
)

// Validation error codes (E200-E399)
const (
	// Conceptual model errors (E201-E215)
	ErrDuplicateTypeName      = "E201" // entity, complex type or association name used twice
	ErrMissingKey             = "E202" // entity type has no key
	ErrInvalidKeyProperty     = "E203" // key names a missing or complex property
	ErrNullableKey            = "E204" // key property is nullable
	ErrDuplicateMember        = "E205" // property or navigation name used twice on a type
	ErrUnknownNavigationType  = "E206" // navigation target is not an entity type
	ErrUnknownAssociationEnd  = "E207" // association end names an unknown entity type
	ErrDanglingNavigation     = "E208" // navigation and association do not reference each other
	ErrInvalidMultiplicity    = "E209" // multiplicity invalid for the association shape
	ErrInvalidConstraint      = "E210" // constraint properties missing or do not match the key
	ErrConstraintTypeMismatch = "E211" // dependent and principal property types differ
	ErrDuplicateEntitySet     = "E212" // entity set name empty or used twice
	ErrConfiguration          = "E213" // configuration does not fit the model
	ErrInvalidComplexType     = "E214" // unknown or recursive complex type
	ErrInvalidFacet           = "E215" // facet does not apply to the property type

	// Store model errors (E301-E308)
	ErrDuplicateTable     = "E301" // table name used twice
	ErrInvalidColumn      = "E302" // table without columns or column without store type
	ErrDuplicateColumn    = "E303" // column or constraint name used twice
	ErrInvalidPrimaryKey  = "E304" // primary key empty, unknown or nullable
	ErrInvalidForeignKey  = "E305" // foreign key columns unknown or mismatched
	ErrUnknownPrincipal   = "E306" // foreign key references an unknown table or column
	ErrIdentifierTooLong  = "E307" // name exceeds the provider limit
	ErrStoreConfiguration = "E308" // store configuration does not fit the store model
)

// ValidationError is one problem found while validating a model.
type ValidationError struct {
	Code    string `json:"code"`
	Element string `json:"element"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Element, e.Message)
}

type validator struct {
	errs []ValidationError
}

func (v *validator) add(code, element, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Code: code, Element: element, Message: fmt.Sprintf(format, args...)})
}

// configurationErrors turns configuration problems into validation errors
// under code.
func configurationErrors(code string, errs []error) []ValidationError {
	out := make([]ValidationError, 0, len(errs))
	for _, err := range errs {
		var ce *modelconfig.ConfigurationError
		if errors.As(err, &ce) {
			out = append(out, ValidationError{Code: code, Element: ce.Element, Message: ce.Message})
			continue
		}
		out = append(out, ValidationError{Code: code, Element: "model", Message: err.Error()})
	}
	return out
}

// ValidateConceptual checks the conceptual model for dangling references,
// duplicate names, invalid keys and inconsistent associations.
// Returns all errors found (does not fail-fast).
func ValidateConceptual(model *metadata.Model) []ValidationError {
	v := &validator{}

	typeNames := make(map[string]bool)
	sets := make(map[string]string)
	for _, et := range model.EntityTypes {
		// E201: type names share one namespace
		if typeNames[et.Name] {
			v.add(ErrDuplicateTypeName, et.Name, "type name %q is used more than once", et.Name)
		}
		typeNames[et.Name] = true

		// E212: entity sets
		switch owner, dup := sets[et.EntitySet]; {
		case et.EntitySet == "":
			v.add(ErrDuplicateEntitySet, et.Name, "entity set name is empty")
		case dup:
			v.add(ErrDuplicateEntitySet, et.Name, "entity set %q is already used by %s", et.EntitySet, owner)
		default:
			sets[et.EntitySet] = et.Name
		}
	}
	for _, ct := range model.ComplexTypes {
		if typeNames[ct.Name] {
			v.add(ErrDuplicateTypeName, ct.Name, "type name %q is used more than once", ct.Name)
		}
		typeNames[ct.Name] = true
	}

	for _, et := range model.EntityTypes {
		v.validateEntityType(model, et)
	}
	for _, ct := range model.ComplexTypes {
		v.validateMembers(model, ct.Name, ct.Properties)
		// E214: value objects cannot contain themselves
		if complexCycle(model, ct.Name) {
			v.add(ErrInvalidComplexType, ct.Name, "complex type contains itself")
		}
	}

	assocNames := make(map[string]bool)
	for _, a := range model.Associations {
		if assocNames[a.Name] {
			v.add(ErrDuplicateTypeName, a.Name, "association name %q is used more than once", a.Name)
		}
		assocNames[a.Name] = true
		v.validateAssociation(model, a)
	}
	return v.errs
}

func (v *validator) validateEntityType(model *metadata.Model, et *metadata.EntityType) {
	// E202-E204: keys
	if len(et.Key) == 0 {
		v.add(ErrMissingKey, et.Name, "entity type has no key")
	}
	for _, k := range et.Key {
		p := et.Property(k)
		switch {
		case p == nil:
			v.add(ErrInvalidKeyProperty, et.Name, "key property %s does not exist", k)
		case p.Kind != metadata.KindPrimitive:
			v.add(ErrInvalidKeyProperty, et.Name+"."+k, "a complex property cannot be part of the key")
		case p.Nullable:
			v.add(ErrNullableKey, et.Name+"."+k, "key property must not be nullable")
		}
	}

	members := v.validateMembers(model, et.Name, et.Properties)
	for _, nav := range et.Navigations {
		element := et.Name + "." + nav.Name
		if members[nav.Name] {
			v.add(ErrDuplicateMember, element, "member name is used more than once")
		}
		members[nav.Name] = true

		// E206: navigation targets
		if model.EntityType(nav.Target) == nil {
			v.add(ErrUnknownNavigationType, element, "navigation target %s is not an entity type", nav.Target)
		}

		// E208: navigation and association must agree
		a := model.Association(nav.Association)
		if a == nil {
			v.add(ErrDanglingNavigation, element, "association %s does not exist", nav.Association)
			continue
		}
		own, other := a.Ends(et.Name, nav.Name)
		if own.EntityType != et.Name || own.Navigation != nav.Name {
			v.add(ErrDanglingNavigation, element, "association %s does not declare this navigation", a.Name)
		} else if other.EntityType != nav.Target {
			v.add(ErrDanglingNavigation, element, "association %s ends at %s, not %s", a.Name, other.EntityType, nav.Target)
		} else if nav.Collection != (other.Multiplicity == metadata.Many) {
			v.add(ErrInvalidMultiplicity, element, "multiplicity %s does not match the navigation property", other.Multiplicity)
		}
	}
}

// validateMembers checks scalar and complex properties and returns the
// member names seen.
func (v *validator) validateMembers(model *metadata.Model, owner string, props []*metadata.Property) map[string]bool {
	seen := make(map[string]bool, len(props))
	for _, p := range props {
		element := owner + "." + p.Name
		// E205: duplicate members
		if seen[p.Name] {
			v.add(ErrDuplicateMember, element, "member name is used more than once")
		}
		seen[p.Name] = true

		if p.Kind == metadata.KindComplex {
			// E214: complex references
			if model.ComplexType(p.ComplexType) == nil {
				v.add(ErrInvalidComplexType, element, "complex type %s is not part of the model", p.ComplexType)
			}
			continue
		}

		// E215: facets must fit the type
		if (p.MaxLength != nil || p.FixedLength != nil || p.IsMaxLength) && !p.Type.SupportsLength() {
			v.add(ErrInvalidFacet, element, "length facets do not apply to %s", p.Type)
		}
		if p.Unicode != nil && p.Type != metadata.String {
			v.add(ErrInvalidFacet, element, "unicode does not apply to %s", p.Type)
		}
		if p.MaxLength != nil && *p.MaxLength <= 0 {
			v.add(ErrInvalidFacet, element, "max length must be positive, got %d", *p.MaxLength)
		}
		if (p.Precision != nil || p.Scale != nil) && !p.Type.SupportsPrecision() {
			v.add(ErrInvalidFacet, element, "precision does not apply to %s", p.Type)
		}
		if p.Precision != nil && p.Scale != nil && *p.Scale > *p.Precision {
			v.add(ErrInvalidFacet, element, "scale %d exceeds precision %d", *p.Scale, *p.Precision)
		}
		if p.StoreGenerated == metadata.GeneratedIdentity && !p.Type.IsInteger() && p.Type != metadata.Guid && p.Type != metadata.Decimal {
			v.add(ErrInvalidFacet, element, "identity does not apply to %s", p.Type)
		}
	}
	return seen
}

// complexCycle reports whether complex type start contains itself.
func complexCycle(model *metadata.Model, start string) bool {
	seen := make(map[string]bool)
	var visit func(name string) bool
	visit = func(name string) bool {
		ct := model.ComplexType(name)
		if ct == nil {
			return false
		}
		for _, p := range ct.Properties {
			if p.Kind != metadata.KindComplex {
				continue
			}
			if p.ComplexType == start {
				return true
			}
			if !seen[p.ComplexType] {
				seen[p.ComplexType] = true
				if visit(p.ComplexType) {
					return true
				}
			}
		}
		return false
	}
	return visit(start)
}

func validMultiplicity(m metadata.Multiplicity) bool {
	return m == metadata.ZeroOrOne || m == metadata.One || m == metadata.Many
}

func (v *validator) validateAssociation(model *metadata.Model, a *metadata.Association) {
	element := "association " + a.Name
	ok := true
	for _, end := range []metadata.AssociationEnd{a.Source, a.Target} {
		// E207: ends must name entity types
		et := model.EntityType(end.EntityType)
		if et == nil {
			v.add(ErrUnknownAssociationEnd, element, "end type %s is not an entity type", end.EntityType)
			ok = false
			continue
		}
		// E208: end navigations must exist and point back
		if end.Navigation != "" {
			nav := et.Navigation(end.Navigation)
			if nav == nil {
				v.add(ErrDanglingNavigation, element, "navigation %s.%s does not exist", et.Name, end.Navigation)
			} else if nav.Association != a.Name {
				v.add(ErrDanglingNavigation, element, "navigation %s.%s belongs to association %s", et.Name, end.Navigation, nav.Association)
			}
		}
		// E209: multiplicities
		if !validMultiplicity(end.Multiplicity) {
			v.add(ErrInvalidMultiplicity, element, "invalid multiplicity %q", end.Multiplicity)
			ok = false
		}
	}
	if !ok || a.Constraint == nil {
		return
	}

	if a.IsManyToMany() {
		v.add(ErrInvalidMultiplicity, element, "a many-to-many association cannot have a referential constraint")
		return
	}
	principalEnd, dependentEnd := a.Target, a.Source
	if a.Constraint.PrincipalIsSource {
		principalEnd, dependentEnd = a.Source, a.Target
	}
	if principalEnd.Multiplicity == metadata.Many {
		v.add(ErrInvalidMultiplicity, element, "principal end %s cannot be a collection", principalEnd.EntityType)
		return
	}
	deps := a.Constraint.DependentProperties
	if len(deps) == 0 {
		return
	}

	// E210/E211: dependent properties must mirror the principal key
	principal := model.EntityType(principalEnd.EntityType)
	dependent := model.EntityType(dependentEnd.EntityType)
	if len(deps) != len(principal.Key) {
		v.add(ErrInvalidConstraint, element, "%d foreign key properties for a key of %d", len(deps), len(principal.Key))
		return
	}
	nullable := false
	for i, name := range deps {
		dp := dependent.Property(name)
		if dp == nil || dp.Kind != metadata.KindPrimitive {
			v.add(ErrInvalidConstraint, element, "foreign key property %s.%s does not exist", dependent.Name, name)
			continue
		}
		nullable = nullable || dp.Nullable
		pp := principal.Property(principal.Key[i])
		if pp != nil && pp.Type != dp.Type {
			v.add(ErrConstraintTypeMismatch, element, "%s.%s is %s but %s.%s is %s",
				dependent.Name, name, dp.Type, principal.Name, pp.Name, pp.Type)
		}
	}
	if nullable && principalEnd.Multiplicity == metadata.One {
		v.add(ErrInvalidMultiplicity, element, "required principal %s needs non-nullable foreign key properties", principal.Name)
	}
}

// ValidateStore checks the store model: unique names, keys that exist,
// foreign keys that resolve and identifier lengths within the provider
// limit. manifest may be nil.
// Returns all errors found (does not fail-fast).
func ValidateStore(store *metadata.StoreModel, manifest provider.Manifest) []ValidationError {
	v := &validator{}
	maxLen := 0
	if manifest != nil {
		maxLen = manifest.MaxIdentifierLength()
	}
	checkLength := func(element, name string) {
		// E307: identifier length
		if maxLen > 0 && len(name) > maxLen {
			v.add(ErrIdentifierTooLong, element, "identifier %q is longer than %d characters", name, maxLen)
		}
	}

	tables := make(map[string]bool)
	constraints := make(map[string]string)
	for _, t := range store.Tables {
		element := "table " + t.QualifiedName()
		// E301: table names are case-insensitive
		key := strings.ToLower(t.QualifiedName())
		if tables[key] {
			v.add(ErrDuplicateTable, element, "table name is used more than once")
		}
		tables[key] = true
		checkLength(element, t.Name)

		// E302/E303: columns
		if len(t.Columns) == 0 {
			v.add(ErrInvalidColumn, element, "table has no columns")
		}
		cols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			ce := t.QualifiedName() + "." + c.Name
			if cols[strings.ToLower(c.Name)] {
				v.add(ErrDuplicateColumn, ce, "column name is used more than once")
			}
			cols[strings.ToLower(c.Name)] = true
			if c.StoreType == "" {
				v.add(ErrInvalidColumn, ce, "column has no store type")
			}
			checkLength(ce, c.Name)
		}

		// E304: primary key
		if len(t.PrimaryKey) == 0 {
			v.add(ErrInvalidPrimaryKey, element, "table has no primary key")
		}
		for _, name := range t.PrimaryKey {
			c := t.Column(name)
			switch {
			case c == nil:
				v.add(ErrInvalidPrimaryKey, element, "primary key column %s does not exist", name)
			case c.Nullable:
				v.add(ErrInvalidPrimaryKey, element, "primary key column %s is nullable", name)
			}
		}

		for _, fk := range t.ForeignKeys {
			v.validateForeignKey(store, t, fk, constraints)
			checkLength(element, fk.Name)
		}
		for _, ix := range t.Indexes {
			if owner, dup := constraints[strings.ToLower(ix.Name)]; dup {
				v.add(ErrDuplicateColumn, element, "index name %s is already used by %s", ix.Name, owner)
			}
			constraints[strings.ToLower(ix.Name)] = t.QualifiedName()
			for _, name := range ix.Columns {
				if t.Column(name) == nil {
					v.add(ErrInvalidColumn, element, "index %s names unknown column %s", ix.Name, name)
				}
			}
			checkLength(element, ix.Name)
		}
	}
	return v.errs
}

func (v *validator) validateForeignKey(store *metadata.StoreModel, t *metadata.Table, fk *metadata.ForeignKey, constraints map[string]string) {
	element := "table " + t.QualifiedName()
	if owner, dup := constraints[strings.ToLower(fk.Name)]; dup {
		v.add(ErrDuplicateColumn, element, "constraint name %s is already used by %s", fk.Name, owner)
	}
	constraints[strings.ToLower(fk.Name)] = t.QualifiedName()

	// E305: dependent columns
	if len(fk.Columns) == 0 || len(fk.Columns) != len(fk.PrincipalColumns) {
		v.add(ErrInvalidForeignKey, element, "foreign key %s has %d columns for %d principal columns", fk.Name, len(fk.Columns), len(fk.PrincipalColumns))
	}
	for _, name := range fk.Columns {
		if t.Column(name) == nil {
			v.add(ErrInvalidForeignKey, element, "foreign key %s names unknown column %s", fk.Name, name)
		}
	}

	// E306: principal side
	principal := store.Table(fk.PrincipalTable)
	if principal == nil {
		v.add(ErrUnknownPrincipal, element, "foreign key %s references unknown table %s", fk.Name, fk.PrincipalTable)
		return
	}
	for _, name := range fk.PrincipalColumns {
		if principal.Column(name) == nil {
			v.add(ErrUnknownPrincipal, element, "foreign key %s references unknown column %s.%s", fk.Name, fk.PrincipalTable, name)
		}
	}
}
