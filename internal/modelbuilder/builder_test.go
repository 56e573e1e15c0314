package modelbuilder

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/conventions"
	"github.com/roach88/codefirst/internal/dbconfig"
	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/provider/sqlite"
	"github.com/roach88/codefirst/internal/resolve"
	"github.com/roach88/codefirst/internal/testutil"
)

type Blog struct {
	ID    int
	Title string `db:"maxlength:200"`
	Posts []*Post
}

type Post struct {
	ID     int
	BlogID int
	Body   string
	Blog   *Blog
	Tags   []*Tag
}

type Tag struct {
	ID    int
	Name  string
	Posts []*Post
}

type Address struct {
	Street string
	City   string
}

type Customer struct {
	ID   int
	Name string
	Home Address
}

var sqliteInfo = provider.Info{InvariantName: sqlite.InvariantName, ManifestToken: sqlite.ManifestToken}

func newBuilder(opts ...Option) *ModelBuilder {
	return New(append([]Option{WithConfiguration(dbconfig.New())}, opts...)...)
}

func build(t *testing.T, b *ModelBuilder) *DbModel {
	t.Helper()
	m, err := b.BuildFor(sqliteInfo)
	require.NoError(t, err)
	return m
}

func validationError(t *testing.T, err error) *ModelValidationError {
	t.Helper()
	require.Error(t, err)
	var mve *ModelValidationError
	require.ErrorAs(t, err, &mve)
	return mve
}

// describeStore renders the store model one line per element.
func describeStore(mapping *metadata.DatabaseMapping) string {
	var b strings.Builder
	for _, t := range mapping.Database.Tables {
		owner := t.EntityType
		if owner == "" {
			owner = "association " + t.Association
		}
		fmt.Fprintf(&b, "table %s (%s)\n", t.QualifiedName(), owner)
		for _, c := range t.Columns {
			null := "not null"
			if c.Nullable {
				null = "null"
			}
			fmt.Fprintf(&b, "  %s %s %s", c.Name, sqlite.FormatStoreType(c), null)
			if c.Identity {
				b.WriteString(" identity")
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  primary key (%s)\n", strings.Join(t.PrimaryKey, ", "))
		for _, fk := range t.ForeignKeys {
			fmt.Fprintf(&b, "  foreign key %s (%s) references %s (%s)",
				fk.Name, strings.Join(fk.Columns, ", "), fk.PrincipalTable, strings.Join(fk.PrincipalColumns, ", "))
			if fk.CascadeDelete {
				b.WriteString(" on delete cascade")
			}
			b.WriteString("\n")
		}
		for _, ix := range t.Indexes {
			fmt.Fprintf(&b, "  index %s (%s)\n", ix.Name, strings.Join(ix.Columns, ", "))
		}
	}
	return b.String()
}

func TestBuildBlogModel(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b)

	m := build(t, b)
	mapping := m.Mapping()
	model := mapping.Model

	var names []string
	for _, et := range model.EntityTypes {
		names = append(names, et.Name)
	}
	assert.Equal(t, []string{"Blog", "Post", "Tag"}, names, "reachable types are discovered in order")
	assert.Equal(t, "Blogs", model.EntityType("Blog").EntitySet)

	require.Len(t, model.Associations, 2)
	oneToMany := model.Association("Blog_Posts")
	require.NotNil(t, oneToMany)
	assert.Equal(t, metadata.One, oneToMany.Source.Multiplicity)
	assert.Equal(t, []string{"ID"}, oneToMany.Constraint.PrincipalProperties)
	assert.True(t, model.Association("Post_Tags").IsManyToMany())

	testutil.AssertGolden(t, "blog_store", []byte(describeStore(mapping)))

	assert.Equal(t, sqlite.InvariantName, mapping.Database.ProviderName)
	assert.Equal(t, sqliteInfo, m.ProviderInfo())
	assert.Len(t, m.Hash(), 64)
}

func TestBuildResolvesManifestFromConnection(t *testing.T) {
	b := newBuilder()
	Entity[Customer](b)

	m, err := b.Build(provider.Connection{ProviderName: sqlite.InvariantName, DataSource: "shop.db"})
	require.NoError(t, err)
	assert.Equal(t, sqlite.ManifestToken, m.ProviderInfo().ManifestToken)
	assert.Equal(t, sqlite.ManifestToken, m.Manifest().Token())
}

func TestBuildIsIdempotent(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b)
	Entity[Customer](b)

	first := build(t, b.Clone())
	second := build(t, b.Clone())
	third := build(t, b)

	assert.Equal(t, first.Mapping(), second.Mapping())
	assert.Equal(t, first.Hash(), second.Hash())
	assert.Equal(t, first.Hash(), third.Hash())
}

func TestBuildWithoutConventionsKeepsNames(t *testing.T) {
	b := newBuilder(WithConventions(conventions.Empty()))
	Entity[Customer](b).HasKey("ID")

	mapping := build(t, b).Mapping()

	table := mapping.TableFor("Customer")
	require.NotNil(t, table)
	assert.Equal(t, "Customer", table.Name)

	var cols []string
	for _, c := range table.Columns {
		cols = append(cols, c.Name)
	}
	assert.Equal(t, []string{"ID", "Name", "Home_Street", "Home_City"}, cols)
	assert.Equal(t, "Home_City", mapping.EntityMapping("Customer").Properties[3].Column)
	assert.Equal(t, "Home.City", mapping.EntityMapping("Customer").Properties[3].Path)
	assert.False(t, table.Column("ID").Identity, "identity keys are a convention")
}

func TestIgnoredTypeStaysOutEvenWhenReachable(t *testing.T) {
	b := newBuilder()
	Entity[Post](b)
	Entity[Tag](b)
	Ignore[Tag](b)

	model := build(t, b).Mapping()
	assert.Nil(t, model.Model.EntityType("Tag"))
	assert.Nil(t, model.Model.EntityType("Post").Navigation("Tags"))
	assert.Nil(t, model.Database.TableForEntity("Tag"))
	assert.NotNil(t, model.Model.EntityType("Blog"), "Blog is still reachable from Post")
}

func TestMutualNavigationsShareOneAssociation(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b)
	Ignore[Tag](b)

	model := build(t, b).Mapping().Model
	require.Len(t, model.Associations, 1)
	a := model.Associations[0]
	assert.Equal(t, a.Name, model.EntityType("Blog").Navigation("Posts").Association)
	assert.Equal(t, a.Name, model.EntityType("Post").Navigation("Blog").Association)
}

type Widget struct {
	ID     int
	Events chan string
}

type Keyless struct {
	Name string
}

func TestUnmappableTypeAbortsBuild(t *testing.T) {
	b := newBuilder()
	Entity[Widget](b)

	_, err := b.BuildFor(sqliteInfo)
	require.Error(t, err)
	assert.True(t, IsUnmappableType(err))
	var ute *UnmappableTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, reflect.TypeFor[Widget](), ute.Type)
	assert.Contains(t, err.Error(), "Events")
}

type TreeNode struct {
	ID   int
	Name string
	*TreeNode
}

type Counter struct {
	ID   int
	Hits uint64
}

func TestSelfEmbeddingTypeBuilds(t *testing.T) {
	b := newBuilder()
	Entity[TreeNode](b)

	table := build(t, b).Mapping().TableFor("TreeNode")
	require.NotNil(t, table)
	var columns []string
	for _, c := range table.Columns {
		columns = append(columns, c.Name)
	}
	assert.Equal(t, []string{"ID", "Name"}, columns)
}

func TestUnsigned64BitFieldIsUnmappable(t *testing.T) {
	b := newBuilder()
	Entity[Counter](b)

	_, err := b.BuildFor(sqliteInfo)
	require.Error(t, err)
	assert.True(t, IsUnmappableType(err))
	assert.Contains(t, err.Error(), "Hits")
}

func TestTypeWithoutKeyIsUnmappable(t *testing.T) {
	b := newBuilder()
	Entity[Keyless](b)

	_, err := b.BuildFor(sqliteInfo)
	var ute *UnmappableTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, reflect.TypeFor[Keyless](), ute.Type)
}

func TestConceptualErrorsAreAggregated(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b).HasKey("Missing").HasEntitySetName("Posts")
	Entity[Blog](b).Property("Nope").HasMaxLength(3)
	Ignore[Tag](b)

	_, err := b.BuildFor(sqliteInfo)
	mve := validationError(t, err)
	assert.Equal(t, PhaseConceptual, mve.Phase)
	assert.Equal(t, []string{ErrDuplicateEntitySet, ErrConfiguration, ErrConfiguration}, mve.Codes())
	assert.Equal(t, "Blog", mve.Errors[1].Element)
	assert.Equal(t, "Blog.Nope", mve.Errors[2].Element)
	assert.Contains(t, err.Error(), "3 error(s)")
}

func TestStoreErrorsAreAggregated(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b).ToTable("Posts")
	Entity[Blog](b).Property("Title").HasColumnType("WIBBLE")
	Ignore[Tag](b)

	_, err := b.BuildFor(sqliteInfo)
	mve := validationError(t, err)
	assert.Equal(t, PhaseStore, mve.Phase)
	assert.Contains(t, mve.Codes(), ErrDuplicateTable)
	assert.Contains(t, mve.Codes(), ErrStoreConfiguration)
}

func TestArgumentErrorsComeFirst(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b).HasKey()

	_, err := b.BuildFor(sqliteInfo)
	require.Error(t, err)
	assert.True(t, modelconfig.IsArgument(err))
	assert.False(t, IsModelValidation(err))
}

func TestUnknownProviderIsMissingService(t *testing.T) {
	b := newBuilder()
	Entity[Customer](b)

	_, err := b.BuildFor(provider.Info{InvariantName: "oracle", ManifestToken: "19"})
	require.Error(t, err)
	assert.True(t, resolve.IsMissingService(err))
}

func TestBuildDoesNotConsumeBuilder(t *testing.T) {
	b := newBuilder()
	Entity[Customer](b)
	m := build(t, b)

	Entity[Blog](b)
	Ignore[Tag](b)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[Customer]()}, m.Builder().Configurations().EntityTypes())

	again := build(t, b)
	assert.NotNil(t, again.Mapping().Model.EntityType("Blog"))
	assert.NotEqual(t, m.Hash(), again.Hash())
}

func TestConcurrentBuildsSeeConsistentSnapshots(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b)

	var wg sync.WaitGroup
	hashes := make([]string, 8)
	for i := range hashes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := b.BuildFor(sqliteInfo)
			if err == nil {
				hashes[i] = m.Hash()
			}
		}()
	}
	wg.Wait()
	for _, h := range hashes {
		assert.Equal(t, hashes[0], h)
		assert.NotEmpty(t, h)
	}
}

func TestBuildWhileConfiguring(t *testing.T) {
	b := newBuilder()
	Entity[Blog](b)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			Entity[Customer](b).Property("Name").HasMaxLength(40).IsRequired()
			if i < 50 {
				b.Conventions().Entities().Where(func(t reflect.Type) bool { return t.Name() == "Customer" }).
					Configure(func(e *modelconfig.EntityConfiguration) { e.HasEntitySetName("Clients") })
			}
			Ignore[Customer](b)
		}
	}()

	for range 20 {
		m, err := b.BuildFor(sqliteInfo)
		require.NoError(t, err)
		assert.NotNil(t, m.Mapping().TableFor("Blog"))
	}
	close(stop)
	<-done
}

func TestLightweightConventionConfiguresEntities(t *testing.T) {
	b := newBuilder()
	b.Conventions().Entities().Configure(func(e *modelconfig.EntityConfiguration) {
		e.ToTable("tbl_" + e.Type().Name())
	})
	Entity[Customer](b)

	mapping := build(t, b).Mapping()
	assert.Equal(t, "tbl_Customer", mapping.TableFor("Customer").Name)
}
