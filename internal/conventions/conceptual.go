package conventions

import (
	"reflect"
	"slices"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
)

// DecimalPrecision gives decimal properties without precision the
// configured precision and scale.
type DecimalPrecision struct {
	Precision uint8
	Scale     uint8
}

// Name returns "DecimalPrecision".
func (DecimalPrecision) Name() string { return "DecimalPrecision" }

// ApplyProperty sets precision and scale on unconfigured decimals.
func (d DecimalPrecision) ApplyProperty(_ *Context, prop *metadata.Property, _ reflect.StructField) {
	if prop.Type != metadata.Decimal || prop.Precision != nil {
		return
	}
	precision, scale := d.Precision, d.Scale
	prop.Precision, prop.Scale = &precision, &scale
}

// EntitySetPluralizing names entity sets after the pluralized type name.
type EntitySetPluralizing struct{}

// Name returns "EntitySetPluralizing".
func (EntitySetPluralizing) Name() string { return "EntitySetPluralizing" }

// ApplyType pluralizes the entity set name.
func (EntitySetPluralizing) ApplyType(c *Context, et *metadata.EntityType) {
	if c.Pluralizer == nil {
		return
	}
	et.EntitySet = c.Pluralizer.Pluralize(et.Name)
}

func findFold(props []*metadata.Property, name string) *metadata.Property {
	for _, p := range props {
		if p.Kind == metadata.KindPrimitive && strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// IdKeyDiscovery makes a property called ID, or the type name followed by
// ID, the key of entity types without one (case-insensitive, ID first).
// Key properties become non-nullable.
type IdKeyDiscovery struct{}

// Name returns "IdKeyDiscovery".
func (IdKeyDiscovery) Name() string { return "IdKeyDiscovery" }

// ApplyConceptual discovers keys.
func (IdKeyDiscovery) ApplyConceptual(c *Context, model *metadata.Model) {
	for _, et := range model.EntityTypes {
		if len(et.Key) == 0 {
			p := findFold(et.Properties, "ID")
			if p == nil {
				p = findFold(et.Properties, et.Name+"ID")
			}
			if p != nil {
				et.Key = []string{p.Name}
				c.debug("discovered key", "entity", et.Name, "key", p.Name)
			}
		}
		for _, p := range et.KeyProperties() {
			p.Nullable = false
		}
	}
}

// AssociationInverseDiscovery pairs two navigations that point at each
// other into one association when the pairing is unambiguous: each is the
// only unpaired navigation from its type to the other's.
type AssociationInverseDiscovery struct{}

// Name returns "AssociationInverseDiscovery".
func (AssociationInverseDiscovery) Name() string { return "AssociationInverseDiscovery" }

// ApplyConceptual pairs inverse navigations.
func (AssociationInverseDiscovery) ApplyConceptual(c *Context, model *metadata.Model) {
	for _, et := range model.EntityTypes {
		for _, nav := range et.Navigations {
			if !pairable(model, et, nav) {
				continue
			}
			target := model.EntityType(nav.Target)
			if target == nil {
				continue
			}
			candidates := unpairedTowards(model, target, et.Name, nav)
			if len(candidates) != 1 {
				continue
			}
			inv := candidates[0]
			if len(unpairedTowards(model, et, target.Name, inv)) != 1 {
				continue
			}
			mergeInverse(model, et, nav, target, inv)
			c.debug("paired navigations", "navigation", et.Name+"."+nav.Name, "inverse", target.Name+"."+inv.Name)
		}
	}
}

func pairable(model *metadata.Model, et *metadata.EntityType, nav *metadata.NavigationProperty) bool {
	if nav.Explicit {
		return false
	}
	a := model.Association(nav.Association)
	if a == nil {
		return false
	}
	_, other := a.Ends(et.Name, nav.Name)
	return other.Navigation == ""
}

// unpairedTowards returns the pairable navigations of et that target the
// named type, except skip.
func unpairedTowards(model *metadata.Model, et *metadata.EntityType, target string, skip *metadata.NavigationProperty) []*metadata.NavigationProperty {
	var out []*metadata.NavigationProperty
	for _, nav := range et.Navigations {
		if nav != skip && nav.Target == target && pairable(model, et, nav) {
			out = append(out, nav)
		}
	}
	return out
}

// mergeInverse folds inv's association into nav's. The association that
// carries configuration is kept.
func mergeInverse(model *metadata.Model, et *metadata.EntityType, nav *metadata.NavigationProperty, target *metadata.EntityType, inv *metadata.NavigationProperty) {
	keep, drop := model.Association(nav.Association), model.Association(inv.Association)
	if keep.Constraint == nil && (drop.Constraint != nil || drop.ExplicitCascade && !keep.ExplicitCascade) {
		et, nav, target, inv = target, inv, et, nav
		keep, drop = drop, keep
	}
	own, other := keep.Ends(et.Name, nav.Name)
	dropOwn, dropOther := drop.Ends(target.Name, inv.Name)
	own.Multiplicity = dropOther.Multiplicity
	other.Navigation = inv.Name

	if keep.Constraint == nil && drop.Constraint != nil {
		principalIsDropOwn := drop.Constraint.PrincipalIsSource == (dropOwn == &drop.Source)
		c := *drop.Constraint
		if principalIsDropOwn {
			c.PrincipalIsSource = other == &keep.Source
		} else {
			c.PrincipalIsSource = own == &keep.Source
		}
		keep.Constraint = &c
	}
	if drop.ExplicitCascade && !keep.ExplicitCascade {
		keep.CascadeDelete, keep.ExplicitCascade = drop.CascadeDelete, true
	}
	if keep.JoinTable == "" {
		keep.JoinTable = drop.JoinTable
	}
	model.RemoveAssociation(drop.Name)
	inv.Association = keep.Name
}

// ForeignKeyDiscovery finds foreign key properties of one-to-many
// associations without a constraint. For each principal key property K it
// tries, on the dependent, <Navigation>K, then <Principal>K, then K, all
// case-insensitive and of the same primitive type. A non-nullable foreign
// key makes the principal end required.
type ForeignKeyDiscovery struct{}

// Name returns "ForeignKeyDiscovery".
func (ForeignKeyDiscovery) Name() string { return "ForeignKeyDiscovery" }

// ApplyConceptual discovers foreign keys.
func (ForeignKeyDiscovery) ApplyConceptual(c *Context, model *metadata.Model) {
	for _, a := range model.Associations {
		if a.Constraint != nil || a.IsManyToMany() {
			continue
		}
		principalEnd, dependentEnd, _ := a.Principal()
		if dependentEnd.Multiplicity != metadata.Many {
			continue
		}
		principal := model.EntityType(principalEnd.EntityType)
		dependent := model.EntityType(dependentEnd.EntityType)
		if principal == nil || dependent == nil || len(principal.Key) == 0 {
			continue
		}
		keys := principal.KeyProperties()
		if len(keys) != len(principal.Key) {
			continue
		}
		prefixes := []string{principal.Name, ""}
		if dependentEnd.Navigation != "" {
			prefixes = slices.Insert(prefixes, 0, dependentEnd.Navigation)
		}
		for _, prefix := range prefixes {
			props := matchForeignKey(dependent, keys, prefix)
			if props == nil {
				continue
			}
			a.Constraint = &metadata.ReferentialConstraint{
				PrincipalIsSource:   principalEnd == a.Source,
				DependentProperties: props,
			}
			c.debug("discovered foreign key", "association", a.Name, "properties", props)
			if !anyNullable(dependent, props) && !explicitlyPaired(model, a) {
				if a.Constraint.PrincipalIsSource {
					a.Source.Multiplicity = metadata.One
				} else {
					a.Target.Multiplicity = metadata.One
				}
			}
			break
		}
	}
}

func matchForeignKey(dependent *metadata.EntityType, keys []*metadata.Property, prefix string) []string {
	props := make([]string, 0, len(keys))
	for _, k := range keys {
		p := findFold(dependent.Properties, prefix+k.Name)
		if p == nil || p.Type != k.Type {
			return nil
		}
		if prefix == "" && slices.Contains(dependent.Key, p.Name) {
			return nil
		}
		props = append(props, p.Name)
	}
	return props
}

func anyNullable(et *metadata.EntityType, props []string) bool {
	for _, name := range props {
		if p := et.Property(name); p != nil && p.Nullable {
			return true
		}
	}
	return false
}

func explicitlyPaired(model *metadata.Model, a *metadata.Association) bool {
	for _, end := range []metadata.AssociationEnd{a.Source, a.Target} {
		et := model.EntityType(end.EntityType)
		if end.Navigation == "" || et == nil {
			continue
		}
		if nav := et.Navigation(end.Navigation); nav != nil && nav.Explicit {
			return true
		}
	}
	return false
}

// StoreGeneratedIdentityKey makes a single integer key that is not a
// foreign key an identity.
type StoreGeneratedIdentityKey struct{}

// Name returns "StoreGeneratedIdentityKey".
func (StoreGeneratedIdentityKey) Name() string { return "StoreGeneratedIdentityKey" }

// ApplyConceptual marks identity keys.
func (StoreGeneratedIdentityKey) ApplyConceptual(_ *Context, model *metadata.Model) {
	for _, et := range model.EntityTypes {
		if len(et.Key) != 1 {
			continue
		}
		p := et.Property(et.Key[0])
		if p == nil || !p.Type.IsInteger() || p.StoreGenerated != "" || isForeignKey(model, et.Name, p.Name) {
			continue
		}
		p.StoreGenerated = metadata.GeneratedIdentity
	}
}

func isForeignKey(model *metadata.Model, entity, prop string) bool {
	for _, a := range model.Associations {
		if a.Constraint == nil {
			continue
		}
		if _, dependent, ok := a.Principal(); ok && dependent.EntityType == entity && slices.Contains(a.Constraint.DependentProperties, prop) {
			return true
		}
	}
	return false
}

// OneToManyCascadeDelete turns on cascade delete for required one-to-many
// associations whose cascade was not configured.
type OneToManyCascadeDelete struct{}

// Name returns "OneToManyCascadeDelete".
func (OneToManyCascadeDelete) Name() string { return "OneToManyCascadeDelete" }

// ApplyConceptual sets cascade delete.
func (OneToManyCascadeDelete) ApplyConceptual(_ *Context, model *metadata.Model) {
	for _, a := range model.Associations {
		if a.ExplicitCascade || a.IsManyToMany() {
			continue
		}
		principal, dependent, _ := a.Principal()
		a.CascadeDelete = principal.Multiplicity == metadata.One && dependent.Multiplicity == metadata.Many
	}
}

func (c *Context) debug(msg string, args ...any) {
	if c.Logger != nil {
		c.Logger.Debug(msg, args...)
	}
}
