package metadata

import "maps"

// Clone returns a deep copy of the mapping. Go types are shared.
func (m *DatabaseMapping) Clone() *DatabaseMapping {
	if m == nil {
		return nil
	}
	out := &DatabaseMapping{
		Model:    m.Model.Clone(),
		Database: m.Database.Clone(),
	}
	for _, em := range m.EntityMappings {
		cp := &EntityMapping{EntityType: em.EntityType, Table: em.Table}
		for _, pm := range em.Properties {
			pmc := *pm
			cp.Properties = append(cp.Properties, &pmc)
		}
		out.EntityMappings = append(out.EntityMappings, cp)
	}
	for _, am := range m.AssociationMappings {
		out.AssociationMappings = append(out.AssociationMappings, &AssociationMapping{
			Association:   am.Association,
			Table:         am.Table,
			SourceColumns: cloneStrings(am.SourceColumns),
			TargetColumns: cloneStrings(am.TargetColumns),
		})
	}
	return out
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	if m == nil {
		return nil
	}
	out := &Model{Namespace: m.Namespace, DefaultSchema: m.DefaultSchema}
	for _, et := range m.EntityTypes {
		cp := &EntityType{
			Name:        et.Name,
			GoType:      et.GoType,
			EntitySet:   et.EntitySet,
			Key:         cloneStrings(et.Key),
			Properties:  cloneProperties(et.Properties),
			Annotations: maps.Clone(et.Annotations),
		}
		for _, n := range et.Navigations {
			nc := *n
			cp.Navigations = append(cp.Navigations, &nc)
		}
		out.EntityTypes = append(out.EntityTypes, cp)
	}
	for _, ct := range m.ComplexTypes {
		out.ComplexTypes = append(out.ComplexTypes, &ComplexType{
			Name:        ct.Name,
			GoType:      ct.GoType,
			Properties:  cloneProperties(ct.Properties),
			Annotations: maps.Clone(ct.Annotations),
		})
	}
	for _, a := range m.Associations {
		cp := *a
		if a.Constraint != nil {
			cp.Constraint = &ReferentialConstraint{
				PrincipalIsSource:   a.Constraint.PrincipalIsSource,
				DependentProperties: cloneStrings(a.Constraint.DependentProperties),
				PrincipalProperties: cloneStrings(a.Constraint.PrincipalProperties),
			}
		}
		out.Associations = append(out.Associations, &cp)
	}
	return out
}

// Clone returns a deep copy of the store model.
func (s *StoreModel) Clone() *StoreModel {
	if s == nil {
		return nil
	}
	out := &StoreModel{ProviderName: s.ProviderName, ManifestToken: s.ManifestToken}
	for _, t := range s.Tables {
		cp := *t
		cp.Columns = nil
		for _, c := range t.Columns {
			cc := *c
			cc.MaxLength = clonePtr(c.MaxLength)
			cc.Precision = clonePtr(c.Precision)
			cc.Scale = clonePtr(c.Scale)
			cc.Order = clonePtr(c.Order)
			cp.Columns = append(cp.Columns, &cc)
		}
		cp.PrimaryKey = cloneStrings(t.PrimaryKey)
		cp.ForeignKeys = nil
		for _, fk := range t.ForeignKeys {
			fkc := *fk
			fkc.Columns = cloneStrings(fk.Columns)
			fkc.PrincipalColumns = cloneStrings(fk.PrincipalColumns)
			cp.ForeignKeys = append(cp.ForeignKeys, &fkc)
		}
		cp.Indexes = nil
		for _, ix := range t.Indexes {
			ixc := *ix
			ixc.Columns = cloneStrings(ix.Columns)
			cp.Indexes = append(cp.Indexes, &ixc)
		}
		out.Tables = append(out.Tables, &cp)
	}
	return out
}

func cloneProperties(props []*Property) []*Property {
	var out []*Property
	for _, p := range props {
		cp := *p
		cp.MaxLength = clonePtr(p.MaxLength)
		cp.FixedLength = clonePtr(p.FixedLength)
		cp.Unicode = clonePtr(p.Unicode)
		cp.Precision = clonePtr(p.Precision)
		cp.Scale = clonePtr(p.Scale)
		cp.Annotations = maps.Clone(p.Annotations)
		out = append(out, &cp)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
