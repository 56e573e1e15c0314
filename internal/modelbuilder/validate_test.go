package modelbuilder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func scalar(name string, pt metadata.PrimitiveType, nullable bool) *metadata.Property {
	return &metadata.Property{Name: name, Kind: metadata.KindPrimitive, Type: pt, Nullable: nullable}
}

func TestValidateConceptualCollectsEveryProblem(t *testing.T) {
	length := 10
	model := &metadata.Model{
		EntityTypes: []*metadata.EntityType{
			{
				Name:       "Order",
				EntitySet:  "Orders",
				Key:        []string{"Number"},
				Properties: []*metadata.Property{scalar("Number", metadata.String, true)},
				Navigations: []*metadata.NavigationProperty{
					{Name: "Lines", Target: "Line", Association: "Order_Lines", Collection: true},
				},
			},
			{
				Name:      "Order",
				EntitySet: "Orders",
				Key:       []string{"ID"},
				Properties: []*metadata.Property{
					scalar("ID", metadata.Int32, false),
					{Name: "Total", Kind: metadata.KindPrimitive, Type: metadata.Int32, MaxLength: &length},
				},
			},
		},
	}

	errs := ValidateConceptual(model)
	assert.Equal(t, []string{
		ErrDuplicateTypeName,
		ErrDuplicateEntitySet,
		ErrNullableKey,
		ErrUnknownNavigationType,
		ErrDanglingNavigation,
		ErrInvalidFacet,
	}, codes(errs))
	assert.Equal(t, "Order.Number", errs[2].Element)
	assert.Equal(t, "[E204] Order.Number: key property must not be nullable", errs[2].Error())
}

func TestValidateConceptualChecksConstraints(t *testing.T) {
	model := &metadata.Model{
		EntityTypes: []*metadata.EntityType{
			{Name: "Blog", EntitySet: "Blogs", Key: []string{"ID"}, Properties: []*metadata.Property{scalar("ID", metadata.Int32, false)}},
			{Name: "Post", EntitySet: "Posts", Key: []string{"ID"}, Properties: []*metadata.Property{
				scalar("ID", metadata.Int32, false),
				scalar("BlogID", metadata.String, true),
			}},
		},
		Associations: []*metadata.Association{{
			Name:       "Blog_Posts",
			Source:     metadata.AssociationEnd{EntityType: "Blog", Multiplicity: metadata.One},
			Target:     metadata.AssociationEnd{EntityType: "Post", Multiplicity: metadata.Many},
			Constraint: &metadata.ReferentialConstraint{PrincipalIsSource: true, DependentProperties: []string{"BlogID"}},
		}},
	}

	errs := ValidateConceptual(model)
	assert.Equal(t, []string{ErrConstraintTypeMismatch, ErrInvalidMultiplicity}, codes(errs))
	assert.Equal(t, "association Blog_Posts", errs[0].Element)
}

func TestValidateConceptualRejectsRecursiveComplexTypes(t *testing.T) {
	model := &metadata.Model{
		ComplexTypes: []*metadata.ComplexType{
			{Name: "Node", Properties: []*metadata.Property{{Name: "Next", Kind: metadata.KindComplex, ComplexType: "Node"}}},
		},
	}
	assert.Equal(t, []string{ErrInvalidComplexType}, codes(ValidateConceptual(model)))
}

type limitedManifest struct {
	provider.Manifest
	limit int
}

func (m limitedManifest) MaxIdentifierLength() int { return m.limit }

func TestValidateStore(t *testing.T) {
	store := &metadata.StoreModel{Tables: []*metadata.Table{
		{
			Name:       "Blogs",
			Columns:    []*metadata.Column{{Name: "ID", StoreType: "INTEGER"}},
			PrimaryKey: []string{"ID"},
		},
		{
			Name:       "blogs",
			Columns:    []*metadata.Column{{Name: "ID", StoreType: "INTEGER"}, {Name: "id", StoreType: "INTEGER"}},
			PrimaryKey: []string{"ID"},
		},
		{
			Name: "Posts",
			Columns: []*metadata.Column{
				{Name: "ID", StoreType: "INTEGER", Nullable: true},
				{Name: "BlogID", StoreType: ""},
			},
			PrimaryKey: []string{"ID"},
			ForeignKeys: []*metadata.ForeignKey{
				{Name: "FK_Posts", Columns: []string{"BlogID"}, PrincipalTable: "Authors", PrincipalColumns: []string{"ID"}},
			},
			Indexes: []*metadata.Index{{Name: "FK_Posts", Columns: []string{"Missing"}}},
		},
	}}

	errs := ValidateStore(store, limitedManifest{limit: 5})
	assert.Equal(t, []string{
		ErrDuplicateTable,
		ErrDuplicateColumn,
		ErrInvalidColumn,
		ErrIdentifierTooLong,
		ErrInvalidPrimaryKey,
		ErrUnknownPrincipal,
		ErrIdentifierTooLong,
		ErrDuplicateColumn,
		ErrInvalidColumn,
		ErrIdentifierTooLong,
	}, codes(errs))
}

func TestValidateStoreWithoutManifest(t *testing.T) {
	store := &metadata.StoreModel{Tables: []*metadata.Table{{
		Name:       "AVeryLongTableNameThatNoOneBounds",
		Columns:    []*metadata.Column{{Name: "ID", StoreType: "INTEGER"}},
		PrimaryKey: []string{"ID"},
	}}}
	assert.Empty(t, ValidateStore(store, nil))
}
