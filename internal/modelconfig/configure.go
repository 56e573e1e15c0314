package modelconfig

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

// problems collects configuration errors while configuration is applied.
type problems struct {
	errs  []error
	store bool
}

func (p *problems) add(element, format string, args ...any) {
	p.errs = append(p.errs, &ConfigurationError{Element: element, Message: fmt.Sprintf(format, args...), Store: p.store})
}

// Configure applies the accumulated conceptual configuration onto model.
// It returns every problem found; a problem leaves the affected element as
// it was and does not stop the remaining configuration.
func (m *ModelConfiguration) Configure(model *metadata.Model) []error {
	p := &problems{}
	if m.defaultSchema != "" {
		model.DefaultSchema = m.defaultSchema
	}
	for _, t := range m.order {
		if cs, ok := m.complexTypes[t]; ok {
			m.configureComplex(model, cs, p)
		}
	}
	for _, t := range m.order {
		if es, ok := m.entities[t]; ok {
			if et := model.EntityTypeFor(t); et != nil {
				m.configureEntity(model, et, es, p)
			}
		}
	}
	return p.errs
}

func complexTypeFor(model *metadata.Model, t reflect.Type) *metadata.ComplexType {
	for _, ct := range model.ComplexTypes {
		if ct.GoType == t {
			return ct
		}
	}
	return nil
}

func (m *ModelConfiguration) configureComplex(model *metadata.Model, cs *complexState, p *problems) {
	ct := complexTypeFor(model, cs.goType)
	if ct == nil {
		return
	}
	for _, name := range cs.propertyOrder {
		prop := ct.Property(name)
		if prop == nil {
			p.add(ct.Name+"."+name, "complex type %s has no property %s", ct.Name, name)
			continue
		}
		cs.properties[name].applyConceptual(prop)
	}
}

func (m *ModelConfiguration) configureEntity(model *metadata.Model, et *metadata.EntityType, es *entityState, p *problems) {
	if v, ok := es.entitySet.Get(); ok {
		et.EntitySet = v
	}
	if key, ok := es.key.Get(); ok {
		valid := true
		for _, k := range key {
			if et.Property(k) == nil {
				p.add(et.Name, "key property %s does not exist", k)
				valid = false
			}
		}
		if valid {
			et.Key = append([]string(nil), key...)
		}
	}
	applyAnnotations(&et.Annotations, es.annotations)

	for _, name := range es.propertyOrder {
		ps := es.properties[name]
		element := et.Name + "." + name
		if strings.Contains(name, ".") {
			if resolvePath(model, et, name) == nil {
				p.add(element, "property path does not resolve to a scalar property")
			} else if ps.hasConceptualFacets() {
				p.add(element, "only column facets can be configured on a complex member path")
			}
			continue
		}
		prop := et.Property(name)
		switch {
		case prop == nil && et.Navigation(name) != nil:
			p.add(element, "is a navigation property, not a scalar property")
		case prop == nil:
			p.add(element, "property does not exist")
		case prop.Kind == metadata.KindComplex && ps.hasConceptualFacets():
			p.add(element, "is a complex property; configure its members on the complex type")
		default:
			ps.applyConceptual(prop)
		}
	}

	for _, name := range es.navOrder {
		configureNavigation(model, et, es.navigations[name], p)
	}
}

func applyAnnotations(dst *map[string]any, src map[string]Facet[any]) {
	for name, f := range src {
		v, ok := f.Get()
		if !ok {
			continue
		}
		if v == nil {
			delete(*dst, name)
			continue
		}
		if *dst == nil {
			*dst = make(map[string]any)
		}
		(*dst)[name] = v
	}
}

// resolvePath walks a dotted property path through complex properties and
// returns the scalar property at its end.
func resolvePath(model *metadata.Model, et *metadata.EntityType, path string) *metadata.Property {
	props := et.Properties
	segments := metadata.SplitPath(path)
	for i, seg := range segments {
		prop := findProperty(props, seg)
		if prop == nil {
			return nil
		}
		if i == len(segments)-1 {
			if prop.Kind != metadata.KindPrimitive {
				return nil
			}
			return prop
		}
		if prop.Kind != metadata.KindComplex {
			return nil
		}
		ct := model.ComplexType(prop.ComplexType)
		if ct == nil {
			return nil
		}
		props = ct.Properties
	}
	return nil
}

func findProperty(props []*metadata.Property, name string) *metadata.Property {
	for _, prop := range props {
		if prop.Name == name {
			return prop
		}
	}
	return nil
}

func configureNavigation(model *metadata.Model, et *metadata.EntityType, ns *navigationState, p *problems) {
	element := et.Name + "." + ns.name
	nav := et.Navigation(ns.name)
	if nav == nil {
		p.add(element, "is not a navigation property")
		return
	}
	a := model.Association(nav.Association)
	target := model.EntityType(nav.Target)
	if a == nil || target == nil {
		p.add(element, "navigation target %s is not part of the model", nav.Target)
		return
	}
	own, other := a.Ends(et.Name, nav.Name)

	if mult, ok := ns.target.Get(); ok {
		if nav.Collection != (mult == metadata.Many) {
			p.add(element, "multiplicity %s does not match the navigation property", mult)
		} else {
			other.Multiplicity = mult
		}
	}

	if inv, ok := ns.inverse.Get(); ok {
		if !pairInverse(model, et, nav, target, inv, p) {
			return
		}
		own.Multiplicity = inv.Multiplicity
		nav.Explicit = true
		if inv.Principal != PrincipalByMultiplicity && a.Constraint == nil {
			declaringIsSource := own == &a.Source
			a.Constraint = &metadata.ReferentialConstraint{
				PrincipalIsSource: declaringIsSource == (inv.Principal == PrincipalIsDeclaring),
			}
		}
	}

	if fk, ok := ns.foreignKey.Get(); ok {
		configureForeignKey(model, a, fk, element, p)
	}

	if _, ok := ns.keyColumns.Get(); ok {
		switch {
		case a.IsManyToMany():
			p.add(element, "MapKey does not apply to a many-to-many relationship")
		case a.Constraint != nil && len(a.Constraint.DependentProperties) > 0:
			p.add(element, "MapKey cannot be combined with foreign key properties")
		case a.Constraint == nil:
			principal, _, _ := a.Principal()
			a.Constraint = &metadata.ReferentialConstraint{PrincipalIsSource: principal == a.Source}
		}
	}

	if cascade, ok := ns.cascade.Get(); ok {
		a.CascadeDelete = cascade
		a.ExplicitCascade = true
	}

	if jt, ok := ns.joinTable.Get(); ok {
		if !a.IsManyToMany() {
			p.add(element, "a join table applies only to a many-to-many relationship")
		} else {
			a.JoinTable = jt.Name
		}
	}
}

// pairInverse makes nav and the inverse navigation on target share one
// association.
func pairInverse(model *metadata.Model, et *metadata.EntityType, nav *metadata.NavigationProperty, target *metadata.EntityType, inv Inverse, p *problems) bool {
	element := et.Name + "." + nav.Name
	a := model.Association(nav.Association)
	_, other := a.Ends(et.Name, nav.Name)
	if inv.Name == "" {
		if other.Navigation != "" {
			p.add(element, "is already paired with %s.%s", target.Name, other.Navigation)
			return false
		}
		return true
	}
	invNav := target.Navigation(inv.Name)
	switch {
	case invNav == nil:
		p.add(element, "inverse navigation %s.%s does not exist", target.Name, inv.Name)
		return false
	case invNav.Target != et.Name:
		p.add(element, "inverse navigation %s.%s does not point back to %s", target.Name, inv.Name, et.Name)
		return false
	case invNav.Collection != (inv.Multiplicity == metadata.Many):
		p.add(element, "multiplicity %s does not match inverse navigation %s.%s", inv.Multiplicity, target.Name, inv.Name)
		return false
	case invNav == nav:
		p.add(element, "a navigation cannot be its own inverse")
		return false
	}
	if other.Navigation != "" && other.Navigation != inv.Name {
		p.add(element, "is already paired with %s.%s", target.Name, other.Navigation)
		return false
	}
	if invNav.Association != a.Name {
		old := model.Association(invNav.Association)
		if old != nil {
			_, oldOther := old.Ends(target.Name, invNav.Name)
			if oldOther.Navigation != "" && oldOther.Navigation != nav.Name {
				p.add(element, "inverse %s.%s is already paired with %s", target.Name, inv.Name, oldOther.Navigation)
				return false
			}
			model.RemoveAssociation(old.Name)
		}
		invNav.Association = a.Name
	}
	other.Navigation = inv.Name
	invNav.Explicit = true
	return true
}

func configureForeignKey(model *metadata.Model, a *metadata.Association, fk []string, element string, p *problems) {
	principal, dependent, ok := a.Principal()
	if !ok {
		p.add(element, "a many-to-many relationship has no foreign key")
		return
	}
	if principal.Multiplicity == metadata.Many {
		p.add(element, "the principal end of a foreign key cannot be a collection")
		return
	}
	dep := model.EntityType(dependent.EntityType)
	props := make([]*metadata.Property, 0, len(fk))
	for _, name := range fk {
		prop := dep.Property(name)
		if prop == nil || prop.Kind != metadata.KindPrimitive {
			p.add(element, "foreign key property %s.%s does not exist", dep.Name, name)
			return
		}
		props = append(props, prop)
	}
	a.Constraint = &metadata.ReferentialConstraint{
		PrincipalIsSource:   principal == a.Source,
		DependentProperties: append([]string(nil), fk...),
	}
	if principal.Multiplicity == metadata.One {
		for _, prop := range props {
			prop.Nullable = false
		}
	}
}

// ConfigureStore applies the store configuration (table and column names,
// column types and order, foreign key columns and join tables) onto a
// generated mapping. Store types are validated with manifest.
func (m *ModelConfiguration) ConfigureStore(mapping *metadata.DatabaseMapping, manifest provider.Manifest) []error {
	p := &problems{store: true}
	model := mapping.Model
	for _, t := range m.order {
		es, ok := m.entities[t]
		if !ok {
			continue
		}
		et := model.EntityTypeFor(t)
		if et == nil {
			continue
		}
		table := mapping.TableFor(et.Name)
		if table == nil {
			continue
		}
		if tn, ok := es.table.Get(); ok {
			schema := tn.Schema
			if schema == "" {
				schema = table.Schema
			}
			mapping.RenameTable(table, schema, tn.Name)
			table.ExplicitName = true
		}
		m.configureComplexColumns(mapping, manifest, et, table, es, p)
		for _, name := range es.propertyOrder {
			ps := es.properties[name]
			if prop := et.Property(name); prop != nil && prop.Kind == metadata.KindComplex {
				continue
			}
			applyColumn(mapping, manifest, table, et.Name, name, ps, p)
		}
		for _, name := range es.navOrder {
			configureNavigationStore(mapping, et, es.navigations[name], p)
		}
	}
	return p.errs
}

// configureComplexColumns applies complex type member configuration to the
// columns of every complex property of et. Entity level configuration of
// the same path is applied afterwards and wins.
func (m *ModelConfiguration) configureComplexColumns(mapping *metadata.DatabaseMapping, manifest provider.Manifest, et *metadata.EntityType, table *metadata.Table, es *entityState, p *problems) {
	em := mapping.EntityMapping(et.Name)
	if em == nil {
		return
	}
	for _, pm := range em.Properties {
		segments := metadata.SplitPath(pm.Path)
		if len(segments) < 2 {
			continue
		}
		if _, ok := es.properties[pm.Path]; ok {
			continue
		}
		owner := owningComplexType(mapping.Model, et, segments)
		if owner == nil || owner.GoType == nil {
			continue
		}
		cs, ok := m.complexTypes[owner.GoType]
		if !ok {
			continue
		}
		ps, ok := cs.properties[segments[len(segments)-1]]
		if !ok {
			continue
		}
		applyColumn(mapping, manifest, table, et.Name, pm.Path, ps, p)
	}
}

// owningComplexType returns the complex type declaring the last segment.
func owningComplexType(model *metadata.Model, et *metadata.EntityType, segments []string) *metadata.ComplexType {
	props := et.Properties
	var ct *metadata.ComplexType
	for _, seg := range segments[:len(segments)-1] {
		prop := findProperty(props, seg)
		if prop == nil || prop.Kind != metadata.KindComplex {
			return nil
		}
		ct = model.ComplexType(prop.ComplexType)
		if ct == nil {
			return nil
		}
		props = ct.Properties
	}
	return ct
}

func applyColumn(mapping *metadata.DatabaseMapping, manifest provider.Manifest, table *metadata.Table, entity, path string, ps *propertyState, p *problems) {
	name, hasName := ps.columnName.Get()
	typeName, hasType := ps.columnType.Get()
	order, hasOrder := ps.columnOrder.Get()
	if !hasName && !hasType && !hasOrder {
		return
	}
	col := mapping.ColumnFor(entity, path)
	if col == nil {
		p.add(entity+"."+path, "property has no column")
		return
	}
	if hasName {
		mapping.RenameColumn(table, col.Name, name)
		col.ExplicitName = true
	}
	if hasType {
		st, err := manifest.ParseStoreType(typeName)
		if err != nil {
			p.add(entity+"."+path, "column type %q: %v", typeName, err)
		} else {
			col.StoreType = st.Name
			if st.MaxLength != nil {
				col.MaxLength = st.MaxLength
			}
			if st.Precision != nil {
				col.Precision, col.Scale = st.Precision, st.Scale
			}
		}
	}
	if hasOrder {
		col.Order = &order
	}
}

func configureNavigationStore(mapping *metadata.DatabaseMapping, et *metadata.EntityType, ns *navigationState, p *problems) {
	element := et.Name + "." + ns.name
	nav := et.Navigation(ns.name)
	if nav == nil {
		return
	}
	a := mapping.Model.Association(nav.Association)
	am := mapping.AssociationMapping(nav.Association)
	if a == nil || am == nil {
		return
	}
	table := mapping.Database.Table(am.Table)
	if table == nil {
		return
	}

	if cols, ok := ns.keyColumns.Get(); ok && !a.IsManyToMany() {
		if len(cols) != len(am.SourceColumns) {
			p.add(element, "MapKey names %d columns, the key has %d", len(cols), len(am.SourceColumns))
		} else {
			for i, col := range slicesClone(am.SourceColumns) {
				mapping.RenameColumn(table, col, cols[i])
				if c := table.Column(cols[i]); c != nil {
					c.ExplicitName = true
				}
			}
		}
	}

	if jt, ok := ns.joinTable.Get(); ok && a.IsManyToMany() {
		schema := jt.Schema
		if schema == "" {
			schema = table.Schema
		}
		mapping.RenameTable(table, schema, jt.Name)
		table.ExplicitName = true
		left, right := am.SourceColumns, am.TargetColumns
		if !(a.Source.EntityType == et.Name && a.Source.Navigation == nav.Name) {
			left, right = right, left
		}
		renameColumns(mapping, table, left, jt.LeftColumns, element, p)
		renameColumns(mapping, table, right, jt.RightColumns, element, p)
	}
}

func renameColumns(mapping *metadata.DatabaseMapping, table *metadata.Table, current, names []string, element string, p *problems) {
	if len(names) == 0 {
		return
	}
	if len(names) != len(current) {
		p.add(element, "join table names %d columns, the key has %d", len(names), len(current))
		return
	}
	for i, col := range slicesClone(current) {
		mapping.RenameColumn(table, col, names[i])
		if c := table.Column(names[i]); c != nil {
			c.ExplicitName = true
		}
	}
}

func slicesClone(s []string) []string { return append([]string(nil), s...) }
