// Package conventions derives default model configuration from Go types and
// from the model itself.
//
// A Set holds conventions in application order. The model builder runs each
// kind at a fixed point of the build:
//
//	ConfigurationConvention  before type mapping, on the model configuration
//	TypeConvention           after type mapping, per entity type
//	PropertyConvention       after type mapping, per scalar property
//	ConceptualConvention     after explicit configuration
//	TableNamingConvention    after the store model is generated
//	StoreConvention          after explicit store configuration
//
// Within one kind, conventions run in Set order and each convention visits
// elements in discovery order. Later conventions win when they set the same
// facet on the same element. Conventions never overwrite explicit
// configuration.
package conventions

import (
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/roach88/codefirst/internal/metadata"
	"github.com/roach88/codefirst/internal/modelconfig"
	"github.com/roach88/codefirst/internal/provider"
	"github.com/roach88/codefirst/internal/services"
)

// Context is what conventions see of the build in progress.
type Context struct {
	Config     *modelconfig.ModelConfiguration
	Manifest   provider.Manifest
	Pluralizer services.Pluralizer
	Logger     *slog.Logger

	problems []error
}

// Problem records a problem found by a convention, such as a malformed
// struct tag. The builder reports problems with the conceptual validation
// errors.
func (c *Context) Problem(element, format string, args ...any) {
	c.problems = append(c.problems, &modelconfig.ConfigurationError{Element: element, Message: fmt.Sprintf(format, args...)})
}

// Problems returns the recorded problems.
func (c *Context) Problems() []error { return c.problems }

// Convention is implemented by every convention. Names are unique within a
// Set.
type Convention interface {
	Name() string
}

// ConfigurationConvention configures a discovered type through convention
// views of the model configuration. t is an entity type unless
// c.Config.IsComplexType(t).
type ConfigurationConvention interface {
	Convention
	ApplyConfiguration(c *Context, t reflect.Type)
}

// TypeConvention adjusts a mapped entity type.
type TypeConvention interface {
	Convention
	ApplyType(c *Context, et *metadata.EntityType)
}

// PropertyConvention adjusts a mapped scalar property. field is the Go
// field the property was mapped from.
type PropertyConvention interface {
	Convention
	ApplyProperty(c *Context, prop *metadata.Property, field reflect.StructField)
}

// ConceptualConvention adjusts the configured conceptual model. It must
// leave elements marked explicit alone.
type ConceptualConvention interface {
	Convention
	ApplyConceptual(c *Context, model *metadata.Model)
}

// TableNamingConvention names generated tables.
type TableNamingConvention interface {
	Convention
	NameTables(c *Context, mapping *metadata.DatabaseMapping)
}

// StoreConvention adjusts the configured store model.
type StoreConvention interface {
	Convention
	ApplyStore(c *Context, mapping *metadata.DatabaseMapping)
}

// DuplicateError reports a convention name that is already in the set.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("conventions: %s is already in the set", e.Name)
}

// NotFoundError reports a convention name that is not in the set.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("conventions: %s is not in the set", e.Name)
}

// Set is an ordered set of conventions. It is safe for concurrent use; the
// model builder clones it for every build.
type Set struct {
	mu          sync.Mutex
	items       []Convention
	lightweight int
}

// NewSet returns a set holding cs in order.
func NewSet(cs ...Convention) (*Set, error) {
	s := &Set{}
	if err := s.Add(cs...); err != nil {
		return nil, err
	}
	return s, nil
}

// Empty returns a set without conventions.
func Empty() *Set { return &Set{} }

// Default returns the built-in conventions in their standard order.
func Default() *Set {
	return &Set{items: []Convention{
		StructTag{},
		TableNameMethod{},
		DecimalPrecision{Precision: 18, Scale: 2},
		EntitySetPluralizing{},
		IdKeyDiscovery{},
		AssociationInverseDiscovery{},
		ForeignKeyDiscovery{},
		StoreGeneratedIdentityKey{},
		OneToManyCascadeDelete{},
		PluralizingTableName{},
		ManyToManyCascadeDelete{},
		ForeignKeyIndex{},
	}}
}

func (s *Set) index(name string) int {
	return slices.IndexFunc(s.items, func(c Convention) bool { return c.Name() == name })
}

func (s *Set) check(cs []Convention) error {
	seen := make(map[string]bool, len(cs))
	for _, c := range cs {
		if c == nil {
			return fmt.Errorf("conventions: nil convention")
		}
		if seen[c.Name()] || s.index(c.Name()) >= 0 {
			return &DuplicateError{Name: c.Name()}
		}
		seen[c.Name()] = true
	}
	return nil
}

// Add appends conventions. Nothing is added if any name is a duplicate.
func (s *Set) Add(cs ...Convention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(cs); err != nil {
		return err
	}
	s.items = append(s.items, cs...)
	return nil
}

// AddBefore inserts c right before the convention called existing.
func (s *Set) AddBefore(existing string, c Convention) error {
	return s.insert(existing, 0, c)
}

// AddAfter inserts c right after the convention called existing.
func (s *Set) AddAfter(existing string, c Convention) error {
	return s.insert(existing, 1, c)
}

func (s *Set) insert(existing string, offset int, c Convention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(existing)
	if i < 0 {
		return &NotFoundError{Name: existing}
	}
	if err := s.check([]Convention{c}); err != nil {
		return err
	}
	s.items = slices.Insert(s.items, i+offset, c)
	return nil
}

// Remove deletes the named conventions. Unknown names are ignored.
func (s *Set) Remove(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = slices.DeleteFunc(s.items, func(c Convention) bool {
		return slices.Contains(names, c.Name())
	})
}

// Contains reports whether the named convention is in the set.
func (s *Set) Contains(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index(name) >= 0
}

// Names returns the convention names in order.
func (s *Set) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.items))
	for i, c := range s.items {
		names[i] = c.Name()
	}
	return names
}

// Clone returns an independent copy. Conventions themselves are shared;
// they carry no mutable state.
func (s *Set) Clone() *Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Set{items: slices.Clone(s.items), lightweight: s.lightweight}
}

// All returns the conventions of kind T in set order.
func All[T Convention](s *Set) []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []T
	for _, c := range s.items {
		if t, ok := c.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// appendNamed appends the convention made by mk under a fresh name built
// from prefix.
func (s *Set) appendNamed(prefix string, mk func(name string) Convention) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lightweight++
	s.items = append(s.items, mk(fmt.Sprintf("%s#%d", prefix, s.lightweight)))
}
