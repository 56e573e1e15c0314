package modelconfig

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
)

type Blog struct {
	ID    int
	Title string
	Posts []*Post
}

type Post struct {
	ID     int
	BlogID int
	Body   string
	Blog   *Blog
}

type Address struct {
	Street string
	City   string
}

var (
	blogType    = reflect.TypeOf(Blog{})
	postType    = reflect.TypeOf(Post{})
	addressType = reflect.TypeOf(Address{})
)

func TestIgnoreThenEntityConfiguresType(t *testing.T) {
	m := New()
	m.Ignore(blogType)
	m.Entity(blogType).HasKey("ID")

	assert.False(t, m.IsIgnored(blogType))
	assert.Equal(t, []reflect.Type{blogType}, m.EntityTypes())
	e, ok := m.LookupEntity(blogType)
	require.True(t, ok)
	key, ok := e.Key()
	require.True(t, ok)
	assert.Equal(t, []string{"ID"}, key)
}

func TestEntityThenIgnoreDiscardsConfiguration(t *testing.T) {
	m := New()
	m.Entity(blogType).ToTable("Weblogs")
	m.Add(NewEntityConfigurationFor[Blog]().HasEntitySetName("Weblogs"))
	m.Ignore(blogType)

	assert.True(t, m.IsIgnored(blogType))
	assert.Empty(t, m.EntityTypes())
	_, ok := m.LookupEntity(blogType)
	assert.False(t, ok)
	_, ok = m.ConventionEntity(blogType)
	assert.False(t, ok, "conventions must not reintroduce an ignored type")

	m.Entity(blogType)
	e, _ := m.LookupEntity(blogType)
	_, ok = e.Table()
	assert.False(t, ok, "configuration discarded by Ignore must not come back")
}

func TestEntityAccumulates(t *testing.T) {
	m := New()
	m.Entity(blogType).ToTable("dbo.Weblogs")
	m.Entity(blogType).Property("Title").HasMaxLength(200)

	e, _ := m.LookupEntity(blogType)
	table, ok := e.Table()
	require.True(t, ok)
	assert.Equal(t, TableName{Schema: "dbo", Name: "Weblogs"}, table)
	assert.Equal(t, []string{"Title"}, e.ConfiguredProperties())
}

func TestEntityAndComplexTypeConflict(t *testing.T) {
	m := New()
	m.ComplexType(addressType)
	m.Entity(addressType)

	errs := m.Errors()
	require.Len(t, errs, 1)
	assert.True(t, IsArgument(errs[0]))
	assert.Empty(t, m.EntityTypes())
}

func TestArgumentErrorsDoNotMutate(t *testing.T) {
	m := New()
	p := m.Entity(blogType).Property("Title")
	p.HasMaxLength(40)
	p.HasMaxLength(-1)
	p.HasColumnName("")
	p.HasPrecision(4, 9)
	m.Entity(nil)
	m.Entity(reflect.TypeOf(0))

	n, ok := p.MaxLength()
	require.True(t, ok)
	assert.Equal(t, 40, n)
	_, ok = p.ColumnName()
	assert.False(t, ok)

	errs := m.Errors()
	require.Len(t, errs, 5)
	var ae *ArgumentError
	require.ErrorAs(t, errs[0], &ae)
	assert.Equal(t, "HasMaxLength", ae.Method)
	assert.Equal(t, "n", ae.Param)
}

func TestConventionDoesNotOverrideExplicit(t *testing.T) {
	m := New()
	m.Entity(blogType).Property("Title").HasColumnName("Name")

	conv, ok := m.ConventionEntity(blogType)
	require.True(t, ok)
	conv.Property("Title").HasColumnName("BlogTitle").HasMaxLength(100)
	conv.Ignore("Title")

	e, _ := m.LookupEntity(blogType)
	assert.False(t, e.IsIgnored("Title"))
	p := e.Property("Title")
	name, _ := p.ColumnName()
	assert.Equal(t, "Name", name)
	n, ok := p.MaxLength()
	require.True(t, ok, "conventions may fill unset facets")
	assert.Equal(t, 100, n)
}

func TestConventionIgnoreYieldsToLaterExplicitProperty(t *testing.T) {
	m := New()
	conv, _ := m.ConventionEntity(blogType)
	conv.Ignore("Title")
	m.Entity(blogType).Property("Title")

	e, _ := m.LookupEntity(blogType)
	assert.False(t, e.IsIgnored("Title"))
}

func TestNormalizeMergesRegisteredConfigurations(t *testing.T) {
	m := New()
	registered := NewEntityConfigurationFor[Blog]()
	registered.ToTable("FromRegistrar")
	registered.HasEntitySetName("Weblogs")
	m.Add(registered)

	m.Entity(blogType).ToTable("FromEntity")
	m.Entity(blogType).HasKey("ID")

	// written after the Entity call, so it is the most recent write
	registered.Property("Title").IsRequired()

	m.NormalizeConfigurations()

	e, ok := m.LookupEntity(blogType)
	require.True(t, ok)
	table, _ := e.Table()
	assert.Equal(t, "FromEntity", table.Name, "both set the table; the later write wins")
	set, _ := e.EntitySetName()
	assert.Equal(t, "Weblogs", set, "registrar-only facets survive")
	key, _ := e.Key()
	assert.Equal(t, []string{"ID"}, key, "entity-only facets survive")
	nullable, ok := e.Property("Title").Nullable()
	require.True(t, ok)
	assert.False(t, nullable)
}

func TestNormalizeCollectsRegistrarErrors(t *testing.T) {
	m := New()
	m.Add(NewEntityConfigurationFor[Blog]().HasKey())
	assert.Len(t, m.Errors(), 1)

	m.NormalizeConfigurations()
	assert.Len(t, m.Errors(), 1)
}

func TestCloneIsIndependent(t *testing.T) {
	m := New()
	m.Entity(blogType).Property("Title").HasMaxLength(10)
	m.HasDefaultSchema("blog")

	cp := m.Clone()
	cp.Entity(blogType).Property("Title").HasMaxLength(99)
	cp.Ignore(postType)
	cp.HasDefaultSchema("other")

	n, _ := m.Entity(blogType).Property("Title").MaxLength()
	assert.Equal(t, 10, n)
	assert.False(t, m.IsIgnored(postType))
	assert.Equal(t, "blog", m.DefaultSchema())

	n, _ = cp.Entity(blogType).Property("Title").MaxLength()
	assert.Equal(t, 99, n)
}

func TestFacetMergePrecedence(t *testing.T) {
	var explicit, convention Facet[string]
	explicit.set("explicit", OriginExplicit)
	convention.set("convention", OriginConvention)

	a := convention
	a.merge(explicit)
	v, _ := a.Get()
	assert.Equal(t, "explicit", v)

	b := explicit
	b.merge(convention)
	v, _ = b.Get()
	assert.Equal(t, "explicit", v)

	var older, newer Facet[string]
	older.set("older", OriginExplicit)
	newer.set("newer", OriginExplicit)
	older.merge(newer)
	v, _ = older.Get()
	assert.Equal(t, "newer", v)
	assert.Equal(t, OriginExplicit, older.Origin())
}

// blogModel builds the conceptual model the type mapper produces for Blog
// and Post before any pairing: one association per navigation.
func blogModel() *metadata.Model {
	intProp := func(name string) *metadata.Property {
		return &metadata.Property{Name: name, Kind: metadata.KindPrimitive, Type: metadata.Int32}
	}
	strProp := func(name string) *metadata.Property {
		return &metadata.Property{Name: name, Kind: metadata.KindPrimitive, Type: metadata.String, Nullable: true}
	}
	return &metadata.Model{
		Namespace: "Test",
		EntityTypes: []*metadata.EntityType{
			{
				Name: "Blog", GoType: blogType, EntitySet: "Blog",
				Properties:  []*metadata.Property{intProp("ID"), strProp("Title")},
				Navigations: []*metadata.NavigationProperty{{Name: "Posts", Target: "Post", Association: "Blog_Posts", Collection: true}},
			},
			{
				Name: "Post", GoType: postType, EntitySet: "Post",
				Properties:  []*metadata.Property{intProp("ID"), intProp("BlogID"), strProp("Body")},
				Navigations: []*metadata.NavigationProperty{{Name: "Blog", Target: "Blog", Association: "Post_Blog"}},
			},
		},
		Associations: []*metadata.Association{
			{
				Name:   "Blog_Posts",
				Source: metadata.AssociationEnd{EntityType: "Blog", Multiplicity: metadata.ZeroOrOne, Navigation: "Posts"},
				Target: metadata.AssociationEnd{EntityType: "Post", Multiplicity: metadata.Many},
			},
			{
				Name:   "Post_Blog",
				Source: metadata.AssociationEnd{EntityType: "Post", Multiplicity: metadata.Many, Navigation: "Blog"},
				Target: metadata.AssociationEnd{EntityType: "Blog", Multiplicity: metadata.ZeroOrOne},
			},
		},
	}
}

func TestConfigurePairsNavigationsIntoOneAssociation(t *testing.T) {
	m := New()
	m.Entity(postType).HasRequired("Blog").WithMany("Posts").HasForeignKey("BlogID")
	m.Entity(blogType).HasMany("Posts").WithRequired("Blog")
	model := blogModel()

	require.Empty(t, m.Configure(model))

	require.Len(t, model.Associations, 1)
	a := model.Associations[0]
	assert.Equal(t, "Post_Blog", a.Name)
	assert.Equal(t, metadata.AssociationEnd{EntityType: "Post", Multiplicity: metadata.Many, Navigation: "Blog"}, a.Source)
	assert.Equal(t, metadata.AssociationEnd{EntityType: "Blog", Multiplicity: metadata.One, Navigation: "Posts"}, a.Target)
	require.NotNil(t, a.Constraint)
	assert.False(t, a.Constraint.PrincipalIsSource)
	assert.Equal(t, []string{"BlogID"}, a.Constraint.DependentProperties)
	assert.Equal(t, "Post_Blog", model.EntityType("Blog").Navigation("Posts").Association)
	assert.True(t, model.EntityType("Blog").Navigation("Posts").Explicit)
}

func TestConfigureReportsEveryProblem(t *testing.T) {
	m := New()
	m.Entity(blogType).HasKey("Missing")
	m.Entity(blogType).Property("Nope").IsRequired()
	m.Entity(blogType).Property("Posts").IsRequired()
	m.Entity(postType).HasRequired("Blog").WithMany("Comments")
	model := blogModel()

	errs := m.Configure(model)
	require.Len(t, errs, 4)
	for _, err := range errs {
		var ce *ConfigurationError
		require.ErrorAs(t, err, &ce)
		assert.False(t, ce.Store)
	}
	assert.Nil(t, model.EntityType("Blog").Key, "an invalid key leaves the key unset")
	assert.Len(t, model.Associations, 2)
}

func TestConfigureAppliesPropertyFacets(t *testing.T) {
	m := New()
	m.HasDefaultSchema("blog")
	m.Entity(blogType).HasEntitySetName("Weblogs").HasAnnotation("audit", true)
	m.Entity(blogType).Property("Title").IsRequired().HasMaxLength(120).IsUnicode(false)
	model := blogModel()

	require.Empty(t, m.Configure(model))

	blog := model.EntityType("Blog")
	assert.Equal(t, "blog", model.DefaultSchema)
	assert.Equal(t, "Weblogs", blog.EntitySet)
	assert.Equal(t, map[string]any{"audit": true}, blog.Annotations)
	title := blog.Property("Title")
	assert.False(t, title.Nullable)
	require.NotNil(t, title.MaxLength)
	assert.Equal(t, 120, *title.MaxLength)
	require.NotNil(t, title.Unicode)
	assert.False(t, *title.Unicode)
}

func sqliteManifest(t *testing.T) provider.Manifest {
	t.Helper()
	m, err := sqlite.New().Manifest(sqlite.ManifestToken)
	require.NoError(t, err)
	return m
}

func blogMapping() *metadata.DatabaseMapping {
	model := blogModel()
	model.RemoveAssociation("Blog_Posts")
	model.EntityType("Blog").Navigation("Posts").Association = "Post_Blog"
	model.Associations[0].Target.Navigation = "Posts"
	return &metadata.DatabaseMapping{
		Model: model,
		Database: &metadata.StoreModel{Tables: []*metadata.Table{
			{
				Name: "Blog", EntityType: "Blog", PrimaryKey: []string{"ID"},
				Columns: []*metadata.Column{{Name: "ID", StoreType: "INTEGER"}, {Name: "Title", StoreType: "TEXT", Nullable: true}},
			},
			{
				Name: "Post", EntityType: "Post", PrimaryKey: []string{"ID"},
				Columns: []*metadata.Column{{Name: "ID", StoreType: "INTEGER"}, {Name: "BlogID", StoreType: "INTEGER"}, {Name: "Body", StoreType: "TEXT", Nullable: true}},
				ForeignKeys: []*metadata.ForeignKey{{
					Columns: []string{"BlogID"}, PrincipalTable: "Blog", PrincipalColumns: []string{"ID"}, Association: "Post_Blog",
				}},
			},
		}},
		EntityMappings: []*metadata.EntityMapping{
			{EntityType: "Blog", Table: "Blog", Properties: []*metadata.PropertyMapping{{Path: "ID", Column: "ID"}, {Path: "Title", Column: "Title"}}},
			{EntityType: "Post", Table: "Post", Properties: []*metadata.PropertyMapping{{Path: "ID", Column: "ID"}, {Path: "BlogID", Column: "BlogID"}, {Path: "Body", Column: "Body"}}},
		},
		AssociationMappings: []*metadata.AssociationMapping{{Association: "Post_Blog", Table: "Post", SourceColumns: []string{"BlogID"}}},
	}
}

func TestConfigureStoreRenamesTablesAndColumns(t *testing.T) {
	m := New()
	m.Entity(blogType).ToTable("Weblogs")
	m.Entity(blogType).Property("ID").HasColumnName("BlogKey")
	m.Entity(blogType).Property("Title").HasColumnType("VARCHAR(80)").HasColumnOrder(1)
	mapping := blogMapping()

	require.Empty(t, m.ConfigureStore(mapping, sqliteManifest(t)))

	blog := mapping.TableFor("Blog")
	require.NotNil(t, blog)
	assert.Equal(t, "Weblogs", blog.Name)
	assert.True(t, blog.ExplicitName)
	assert.Equal(t, []string{"BlogKey"}, blog.PrimaryKey)
	fk := mapping.Database.Table("Post").ForeignKeys[0]
	assert.Equal(t, "Weblogs", fk.PrincipalTable)
	assert.Equal(t, []string{"BlogKey"}, fk.PrincipalColumns)

	title := mapping.ColumnFor("Blog", "Title")
	require.NotNil(t, title)
	require.NotNil(t, title.Order)
	assert.Equal(t, 1, *title.Order)
	require.NotNil(t, title.MaxLength)
	assert.Equal(t, 80, *title.MaxLength)
}

func TestConfigureStoreRejectsUnknownColumnType(t *testing.T) {
	m := New()
	m.Entity(blogType).Property("Title").HasColumnType("HYPERTEXT")
	mapping := blogMapping()

	errs := m.ConfigureStore(mapping, sqliteManifest(t))
	require.Len(t, errs, 1)
	var ce *ConfigurationError
	require.ErrorAs(t, errs[0], &ce)
	assert.True(t, ce.Store)
	assert.Equal(t, "Blog.Title", ce.Element)
}

func TestConfigureStoreMapKeyNeedsIndependentAssociation(t *testing.T) {
	m := New()
	m.Entity(postType).HasRequired("Blog").WithMany("Posts").HasForeignKey("BlogID").MapKey("Blog_Key")
	mapping := blogMapping()

	errs := m.Configure(mapping.Model)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "MapKey")
}
