package modelbuilder

import (
	"fmt"
	"strings"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

// storeGenerator derives the store model and the mapping from a validated
// conceptual model. Names equal conceptual names; naming conventions and
// explicit store configuration rename afterwards.
type storeGenerator struct {
	model    *metadata.Model
	manifest provider.Manifest
	mapping  *metadata.DatabaseMapping
	problems []ValidationError
}

func generateStore(model *metadata.Model, info provider.Info, manifest provider.Manifest) (*metadata.DatabaseMapping, []ValidationError) {
	g := &storeGenerator{
		model:    model,
		manifest: manifest,
		mapping: &metadata.DatabaseMapping{
			Model: model,
			Database: &metadata.StoreModel{
				ProviderName:  info.InvariantName,
				ManifestToken: info.ManifestToken,
			},
		},
	}
	for _, et := range model.EntityTypes {
		g.entityTable(et)
	}
	for _, a := range model.Associations {
		g.association(a)
	}
	return g.mapping, g.problems
}

func (g *storeGenerator) column(name, element string, p *metadata.Property, nullable bool) *metadata.Column {
	st, err := g.manifest.StoreType(p)
	if err != nil {
		g.problems = append(g.problems, ValidationError{Code: ErrInvalidColumn, Element: element, Message: err.Error()})
	}
	return &metadata.Column{
		Name:      name,
		StoreType: st.Name,
		Nullable:  nullable,
		MaxLength: st.MaxLength,
		Precision: st.Precision,
		Scale:     st.Scale,
		Identity:  p.StoreGenerated == metadata.GeneratedIdentity,
		Computed:  p.StoreGenerated == metadata.GeneratedComputed,
	}
}

func (g *storeGenerator) entityTable(et *metadata.EntityType) {
	t := &metadata.Table{Schema: g.model.DefaultSchema, Name: et.Name, EntityType: et.Name}
	em := &metadata.EntityMapping{EntityType: et.Name, Table: t.QualifiedName()}
	g.addColumns(t, em, et.Name, et.Properties, "", "")
	for _, k := range et.Key {
		t.PrimaryKey = append(t.PrimaryKey, k)
	}
	g.mapping.Database.Tables = append(g.mapping.Database.Tables, t)
	g.mapping.EntityMappings = append(g.mapping.EntityMappings, em)
}

// addColumns adds one column per scalar property, flattening complex
// properties into <Property>_<Member> columns.
func (g *storeGenerator) addColumns(t *metadata.Table, em *metadata.EntityMapping, owner string, props []*metadata.Property, pathPrefix, columnPrefix string) {
	for _, p := range props {
		path, col := pathPrefix+p.Name, columnPrefix+p.Name
		if p.Kind == metadata.KindComplex {
			ct := g.model.ComplexType(p.ComplexType)
			if ct == nil {
				continue
			}
			g.addColumns(t, em, owner, ct.Properties, path+".", col+"_")
			continue
		}
		t.Columns = append(t.Columns, g.column(col, owner+"."+path, p, p.Nullable))
		em.Properties = append(em.Properties, &metadata.PropertyMapping{Path: path, Column: col})
	}
}

func (g *storeGenerator) association(a *metadata.Association) {
	if a.IsManyToMany() {
		g.joinTable(a)
		return
	}
	principalEnd, dependentEnd, _ := a.Principal()
	principal := g.model.EntityType(principalEnd.EntityType)
	dependent := g.model.EntityType(dependentEnd.EntityType)
	pt := g.mapping.TableFor(principal.Name)
	dt := g.mapping.TableFor(dependent.Name)
	if pt == nil || dt == nil {
		return
	}

	var cols []string
	if a.Constraint != nil && len(a.Constraint.DependentProperties) > 0 {
		for _, name := range a.Constraint.DependentProperties {
			if c := g.mapping.ColumnFor(dependent.Name, name); c != nil {
				cols = append(cols, c.Name)
			}
		}
	} else {
		// Independent association: the dependent table gets columns for
		// the principal key, named after the navigation back to the
		// principal or the principal type.
		prefix := dependentEnd.Navigation
		if prefix == "" {
			prefix = principal.Name
		}
		for _, k := range principal.Key {
			pc := g.mapping.ColumnFor(principal.Name, k)
			if pc == nil {
				continue
			}
			c := keyColumn(pc, uniqueColumnName(dt, prefix+"_"+pc.Name), principalEnd.Multiplicity != metadata.One)
			dt.Columns = append(dt.Columns, c)
			cols = append(cols, c.Name)
		}
	}

	dt.ForeignKeys = append(dt.ForeignKeys, &metadata.ForeignKey{
		Columns:          cols,
		PrincipalTable:   pt.QualifiedName(),
		PrincipalColumns: append([]string(nil), pt.PrimaryKey...),
		CascadeDelete:    a.CascadeDelete,
		Association:      a.Name,
	})
	g.mapping.AssociationMappings = append(g.mapping.AssociationMappings, &metadata.AssociationMapping{
		Association:   a.Name,
		Table:         dt.QualifiedName(),
		SourceColumns: append([]string(nil), cols...),
	})
}

// joinTable creates <Source><Target> with <Type>_<Key> columns for both
// keys. The columns together form the primary key.
func (g *storeGenerator) joinTable(a *metadata.Association) {
	st := g.mapping.TableFor(a.Source.EntityType)
	tt := g.mapping.TableFor(a.Target.EntityType)
	if st == nil || tt == nil {
		return
	}
	jt := &metadata.Table{
		Schema:      g.model.DefaultSchema,
		Name:        a.Source.EntityType + a.Target.EntityType,
		Association: a.Name,
	}
	if a.JoinTable != "" {
		jt.Name, jt.ExplicitName = a.JoinTable, true
	}
	add := func(end metadata.AssociationEnd, principal *metadata.Table) []string {
		var cols []string
		for _, k := range principal.PrimaryKey {
			pc := principal.Column(k)
			if pc == nil {
				continue
			}
			c := keyColumn(pc, uniqueColumnName(jt, end.EntityType+"_"+pc.Name), false)
			jt.Columns = append(jt.Columns, c)
			cols = append(cols, c.Name)
		}
		jt.ForeignKeys = append(jt.ForeignKeys, &metadata.ForeignKey{
			Columns:          cols,
			PrincipalTable:   principal.QualifiedName(),
			PrincipalColumns: append([]string(nil), principal.PrimaryKey...),
			Association:      a.Name,
		})
		return cols
	}
	source := add(a.Source, st)
	target := add(a.Target, tt)
	jt.PrimaryKey = append(append([]string(nil), source...), target...)

	g.mapping.Database.Tables = append(g.mapping.Database.Tables, jt)
	g.mapping.AssociationMappings = append(g.mapping.AssociationMappings, &metadata.AssociationMapping{
		Association:   a.Name,
		Table:         jt.QualifiedName(),
		SourceColumns: source,
		TargetColumns: target,
	})
}

// keyColumn copies the type of a principal key column.
func keyColumn(pc *metadata.Column, name string, nullable bool) *metadata.Column {
	return &metadata.Column{
		Name:      name,
		StoreType: pc.StoreType,
		Nullable:  nullable,
		MaxLength: pc.MaxLength,
		Precision: pc.Precision,
		Scale:     pc.Scale,
	}
}

func uniqueColumnName(t *metadata.Table, name string) string {
	candidate := name
	for i := 1; t.Column(candidate) != nil; i++ {
		candidate = fmt.Sprintf("%s%d", name, i)
	}
	return candidate
}

// nameForeignKeys names unnamed foreign keys FK_<table>_<principal>_<columns>.
func nameForeignKeys(store *metadata.StoreModel) {
	for _, t := range store.Tables {
		for _, fk := range t.ForeignKeys {
			if fk.Name != "" {
				continue
			}
			principal := fk.PrincipalTable
			if i := strings.LastIndexByte(principal, '.'); i >= 0 {
				principal = principal[i+1:]
			}
			fk.Name = fmt.Sprintf("FK_%s_%s_%s", t.Name, principal, strings.Join(fk.Columns, "_"))
		}
	}
}
