package conventions

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
	"github.com/roach88/codefirst/internal/services"
)

type named string

func (n named) Name() string { return string(n) }

func TestSetOrdering(t *testing.T) {
	s, err := NewSet(named("A"), named("C"))
	require.NoError(t, err)

	require.NoError(t, s.AddBefore("C", named("B")))
	require.NoError(t, s.AddAfter("C", named("D")))
	assert.Equal(t, []string{"A", "B", "C", "D"}, s.Names())

	var dup *DuplicateError
	require.ErrorAs(t, s.Add(named("E"), named("A")), &dup)
	assert.Equal(t, "A", dup.Name)
	assert.False(t, s.Contains("E"), "a failed Add adds nothing")

	var nf *NotFoundError
	require.ErrorAs(t, s.AddAfter("Z", named("E")), &nf)

	s.Remove("B", "Z")
	assert.Equal(t, []string{"A", "C", "D"}, s.Names())
}

func TestSetCloneIsIndependent(t *testing.T) {
	s := Default()
	cp := s.Clone()
	cp.Remove("PluralizingTableName")

	assert.True(t, s.Contains("PluralizingTableName"))
	assert.False(t, cp.Contains("PluralizingTableName"))
}

func TestAllFiltersByKind(t *testing.T) {
	s := Default()
	names := func(cs []ConceptualConvention) []string {
		var out []string
		for _, c := range cs {
			out = append(out, c.Name())
		}
		return out
	}
	assert.Equal(t, []string{
		"IdKeyDiscovery", "AssociationInverseDiscovery", "ForeignKeyDiscovery",
		"StoreGeneratedIdentityKey", "OneToManyCascadeDelete",
	}, names(All[ConceptualConvention](s)))
}

func TestParseTag(t *testing.T) {
	tag := ParseTag(" column:Title ; maxlength:200;required;precision:10,4")
	assert.Equal(t, "Title", tag["column"])
	assert.Equal(t, "200", tag["maxlength"])
	assert.True(t, tag.Has("required"))
	assert.Equal(t, "10,4", tag["precision"])
	assert.False(t, tag.Ignored())
	assert.True(t, ParseTag("-").Ignored())
}

type Author struct {
	Code    string   `db:"key;maxlength:12"`
	Name    string   `db:"column:FullName;required"`
	Secret  string   `db:"-"`
	Rating  float64  `db:"precision:bogus"`
	Books   []*Book  `db:"inverse:Writer"`
	Address Location `db:"complex"`
}

type Book struct {
	ID       int
	WriterID string
	Writer   *Author `db:"fk:WriterID"`
}

type Location struct {
	City string `db:"maxlength:40"`
	Note string `db:"-"`
}

func (Book) TableName() string { return "Library" }

func newContext() *Context {
	return &Context{Config: modelconfig.New(), Pluralizer: services.InflectionPluralizer{}}
}

func TestStructTagConfiguresEntity(t *testing.T) {
	c := newContext()
	authorType := reflect.TypeOf(Author{})
	StructTag{}.ApplyConfiguration(c, authorType)

	e, ok := c.Config.LookupEntity(authorType)
	require.True(t, ok)
	key, _ := e.Key()
	assert.Equal(t, []string{"Code"}, key)
	assert.True(t, e.IsIgnored("Secret"))

	name := e.Property("Name")
	col, _ := name.ColumnName()
	assert.Equal(t, "FullName", col)
	nullable, ok := name.Nullable()
	require.True(t, ok)
	assert.False(t, nullable)

	books, ok := e.Navigation("Books")
	require.True(t, ok)
	inv, ok := books.Inverse()
	require.True(t, ok)
	assert.Equal(t, "Writer", inv.Name)
	assert.Equal(t, metadata.ZeroOrOne, inv.Multiplicity)

	require.Len(t, c.Problems(), 1, "malformed precision is reported")
	assert.Contains(t, c.Problems()[0].Error(), "Author.Rating")
}

func TestStructTagConfiguresComplexType(t *testing.T) {
	c := newContext()
	locType := reflect.TypeOf(Location{})
	_, ok := c.Config.ConventionComplexType(locType)
	require.True(t, ok)

	StructTag{}.ApplyConfiguration(c, locType)

	ct, ok := c.Config.LookupComplexType(locType)
	require.True(t, ok)
	assert.True(t, ct.IsIgnored("Note"))
	n, ok := ct.Property("City").MaxLength()
	require.True(t, ok)
	assert.Equal(t, 40, n)
}

func TestStructTagForeignKey(t *testing.T) {
	c := newContext()
	bookType := reflect.TypeOf(Book{})
	StructTag{}.ApplyConfiguration(c, bookType)

	e, _ := c.Config.LookupEntity(bookType)
	writer, ok := e.Navigation("Writer")
	require.True(t, ok)
	fk, ok := writer.ForeignKey()
	require.True(t, ok)
	assert.Equal(t, []string{"WriterID"}, fk)
	_, ok = writer.Inverse()
	assert.False(t, ok, "a foreign key alone leaves pairing to inverse discovery")
}

func TestTableNameMethod(t *testing.T) {
	c := newContext()
	TableNameMethod{}.ApplyConfiguration(c, reflect.TypeOf(Book{}))
	TableNameMethod{}.ApplyConfiguration(c, reflect.TypeOf(Author{}))

	e, _ := c.Config.LookupEntity(reflect.TypeOf(Book{}))
	table, ok := e.Table()
	require.True(t, ok)
	assert.Equal(t, "Library", table.Name)
	_, ok = c.Config.LookupEntity(reflect.TypeOf(Author{}))
	assert.False(t, ok, "types without the method are left alone")
}

func TestExplicitConfigurationBeatsTags(t *testing.T) {
	c := newContext()
	authorType := reflect.TypeOf(Author{})
	c.Config.Entity(authorType).Property("Name").HasColumnName("AuthorName")
	c.Config.Entity(authorType).Property("Secret")

	StructTag{}.ApplyConfiguration(c, authorType)

	e, _ := c.Config.LookupEntity(authorType)
	col, _ := e.Property("Name").ColumnName()
	assert.Equal(t, "AuthorName", col)
	assert.False(t, e.IsIgnored("Secret"))
}

type auditable interface{ audited() }

type Invoice struct {
	ID     int
	Number string
	Total  float64
}

func (*Invoice) audited() {}

func TestLightweightConventionsLaterWins(t *testing.T) {
	s := Empty()
	s.Properties().Where(func(f reflect.StructField) bool { return f.Type.Kind() == reflect.String }).
		Configure(func(p *modelconfig.PropertyConfiguration) { p.HasMaxLength(100) })
	PropertiesOf[string](s).Configure(func(p *modelconfig.PropertyConfiguration) { p.HasMaxLength(50) })
	EntitiesOf[auditable](s).Configure(func(e *modelconfig.EntityConfiguration) { e.ToTable("audit.Invoices") })
	assert.Equal(t, []string{"Properties#1", "Properties#2", "Entities#3"}, s.Names())

	c := newContext()
	invoiceType := reflect.TypeOf(Invoice{})
	for _, conv := range All[ConfigurationConvention](s) {
		conv.ApplyConfiguration(c, invoiceType)
	}

	e, _ := c.Config.LookupEntity(invoiceType)
	n, _ := e.Property("Number").MaxLength()
	assert.Equal(t, 50, n)
	_, ok := e.Property("Total").MaxLength()
	assert.False(t, ok)
	table, _ := e.Table()
	assert.Equal(t, modelconfig.TableName{Schema: "audit", Name: "Invoices"}, table)
}

func TestLightweightConventionsDoNotOverrideExplicit(t *testing.T) {
	s := Empty()
	s.Entities().Configure(func(e *modelconfig.EntityConfiguration) { e.HasKey("Number") })

	c := newContext()
	invoiceType := reflect.TypeOf(Invoice{})
	c.Config.Entity(invoiceType).HasKey("ID")
	for _, conv := range All[ConfigurationConvention](s) {
		conv.ApplyConfiguration(c, invoiceType)
	}

	e, _ := c.Config.LookupEntity(invoiceType)
	key, _ := e.Key()
	assert.Equal(t, []string{"ID"}, key)
}
