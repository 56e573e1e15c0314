package dbcontext

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/roach88/codefirst/internal/modelbuilder"
	"github.com/roach88/codefirst/internal/provider/sqlite"
)

// setBinder is implemented by *Set[T]; Init uses it to find and bind sets.
type setBinder interface {
	bind(c *Context)
	elemType() reflect.Type
}

// Set is the collection of entities of type T in a context.
type Set[T any] struct {
	c *Context
}

func (s *Set[T]) bind(c *Context) { s.c = c }

func (*Set[T]) elemType() reflect.Type { return reflect.TypeFor[T]() }

// entityMap returns the mapping of T.
func (s *Set[T]) entityMap() (*modelbuilder.EntityMap, error) {
	if s == nil || s.c == nil {
		return nil, fmt.Errorf("dbcontext: set of %v is not bound to an initialized context", reflect.TypeFor[T]())
	}
	em, ok := s.c.compiled.Entity(reflect.TypeFor[T]())
	if !ok {
		return nil, fmt.Errorf("dbcontext: %v is not an entity type of the model", reflect.TypeFor[T]())
	}
	return em, nil
}

// Add begins tracking entity as Added; it is inserted by the next save.
// Untracked entities reachable through its navigations are added too.
func (s *Set[T]) Add(entity *T) error {
	if err := s.setState(entity, Added); err != nil {
		return err
	}
	return s.c.trackReachable(reflect.ValueOf(entity), Added)
}

// Attach begins tracking entity as Unchanged, for entities that already
// exist in the database. Untracked entities reachable through its
// navigations are attached too.
func (s *Set[T]) Attach(entity *T) error {
	if err := s.setState(entity, Unchanged); err != nil {
		return err
	}
	return s.c.trackReachable(reflect.ValueOf(entity), Unchanged)
}

// Remove marks entity Deleted. An Added entity is simply detached.
func (s *Set[T]) Remove(entity *T) error {
	em, err := s.entityMap()
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("dbcontext: Remove: entity must not be nil")
	}
	ptr := reflect.ValueOf(entity)
	e := s.c.tracker.lookup(ptr)
	if e == nil {
		if e, err = s.c.tracker.track(ptr, em, Unchanged); err != nil {
			return err
		}
	}
	if e.state == Added {
		s.c.tracker.detach(e)
		return nil
	}
	e.state = Deleted
	return nil
}

func (s *Set[T]) setState(entity *T, state EntityState) error {
	em, err := s.entityMap()
	if err != nil {
		return err
	}
	if entity == nil {
		return fmt.Errorf("dbcontext: entity must not be nil")
	}
	ptr := reflect.ValueOf(entity)
	if e := s.c.tracker.lookup(ptr); e != nil {
		if e.state != state && state == Added && e.state != Deleted {
			return fmt.Errorf("dbcontext: %s is already tracked as %s", em.EntityType.Name, e.state)
		}
		e.state = state
		return nil
	}
	_, err = s.c.tracker.track(ptr, em, state)
	return err
}

// State returns the tracking state of entity.
func (s *Set[T]) State(entity *T) EntityState {
	if s == nil || s.c == nil || entity == nil {
		return Detached
	}
	s.c.tracker.detectChanges()
	if e := s.c.tracker.lookup(reflect.ValueOf(entity)); e != nil {
		return e.state
	}
	return Detached
}

// Local returns the tracked entities of the set that are not Deleted, in
// tracking order.
func (s *Set[T]) Local() []*T {
	if s == nil || s.c == nil {
		return nil
	}
	var out []*T
	for _, e := range s.c.tracker.entries {
		if e.state == Deleted {
			continue
		}
		if p, ok := e.ptr.Interface().(*T); ok {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the entity with the given key values, in key order. A
// tracked entity is returned without a query; otherwise the row is loaded
// and tracked. Returns ErrNotFound when there is no such entity.
func (s *Set[T]) Find(ctx context.Context, key ...any) (*T, error) {
	em, err := s.entityMap()
	if err != nil {
		return nil, err
	}
	if len(key) != len(em.Key) {
		return nil, fmt.Errorf("dbcontext: Find: %s has %d key values, got %d", em.EntityType.Name, len(em.Key), len(key))
	}

	probe := reflect.New(em.Type)
	for i, cm := range em.Key {
		v, err := convertValue(key[i], cm.Type)
		if err != nil {
			return nil, fmt.Errorf("dbcontext: Find: %w", err)
		}
		if err := cm.Set(probe, v); err != nil {
			return nil, fmt.Errorf("dbcontext: Find: %w", err)
		}
	}
	if e := s.c.tracker.lookupKey(keyString(em, probe)); e != nil {
		if e.state == Deleted {
			return nil, ErrNotFound
		}
		return e.ptr.Interface().(*T), nil
	}

	where := make([]string, len(em.Key))
	args := make([]any, len(em.Key))
	for i, cm := range em.Key {
		where[i] = sqlite.Quote(cm.Column.Name) + " = ?"
		args[i] = columnValue(cm, probe)
	}
	found, err := s.c.query(ctx, em, strings.Join(where, " AND "), args...)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0].Interface().(*T), nil
}

// All loads every row of the set and tracks the entities. Entities that are
// already tracked are returned as tracked, not overwritten.
func (s *Set[T]) All(ctx context.Context) ([]*T, error) {
	em, err := s.entityMap()
	if err != nil {
		return nil, err
	}
	found, err := s.c.query(ctx, em, "")
	if err != nil {
		return nil, err
	}
	out := make([]*T, len(found))
	for i, v := range found {
		out[i] = v.Interface().(*T)
	}
	return out, nil
}

// query selects the rows of em's table matching where and materializes
// them, resolving identities against the tracker.
func (c *Context) query(ctx context.Context, em *modelbuilder.EntityMap, where string, args ...any) ([]reflect.Value, error) {
	db, err := c.open()
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(em.Columns))
	for i, cm := range em.Columns {
		cols[i] = sqlite.Quote(cm.Column.Name)
	}
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), sqlite.Quote(em.Table.Name))
	if where != "" {
		q += " WHERE " + where
	}
	keyCols := make([]string, len(em.Key))
	for i, cm := range em.Key {
		keyCols[i] = sqlite.Quote(cm.Column.Name)
	}
	q += " ORDER BY " + strings.Join(keyCols, ", ")

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("dbcontext: query %s: %w", em.EntityType.Name, err)
	}
	defer rows.Close()

	var out []reflect.Value
	for rows.Next() {
		raw := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("dbcontext: scan %s: %w", em.EntityType.Name, err)
		}
		ptr := reflect.New(em.Type)
		for i, cm := range em.Columns {
			if raw[i] == nil {
				continue
			}
			v, err := convertValue(raw[i], cm.Type)
			if err != nil {
				return nil, fmt.Errorf("dbcontext: %s.%s: %w", em.EntityType.Name, cm.Path, err)
			}
			if err := cm.Set(ptr, v); err != nil {
				return nil, fmt.Errorf("dbcontext: %w", err)
			}
		}
		if e := c.tracker.lookupKey(keyString(em, ptr)); e != nil {
			out = append(out, e.ptr)
			continue
		}
		if _, err := c.tracker.track(ptr, em, Unchanged); err != nil {
			return nil, err
		}
		out = append(out, ptr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dbcontext: iterate %s: %w", em.EntityType.Name, err)
	}
	return out, nil
}

var (
	scannerType = reflect.TypeFor[sql.Scanner]()
	timeType    = reflect.TypeFor[time.Time]()
)

// convertValue converts a driver value to target.
func convertValue(raw any, target reflect.Type) (reflect.Value, error) {
	if raw == nil {
		return reflect.Zero(target), nil
	}
	if target.Kind() == reflect.Pointer {
		inner, err := convertValue(raw, target.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(target.Elem())
		p.Elem().Set(inner)
		return p, nil
	}
	if reflect.PointerTo(target).Implements(scannerType) {
		p := reflect.New(target)
		if err := p.Interface().(sql.Scanner).Scan(raw); err != nil {
			return reflect.Value{}, err
		}
		return p.Elem(), nil
	}

	rv := reflect.ValueOf(raw)
	switch {
	case rv.Type().AssignableTo(target):
		return rv, nil
	case target.Kind() == reflect.Bool && rv.CanInt():
		return reflect.ValueOf(rv.Int() != 0).Convert(target), nil
	case target == timeType && rv.Kind() == reflect.String:
		t, err := time.Parse(time.RFC3339Nano, rv.String())
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(t), nil
	case target.Kind() == reflect.String && rv.Kind() != reflect.String && rv.Kind() != reflect.Slice:
		return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", raw, target)
	case rv.Type().ConvertibleTo(target):
		return rv.Convert(target), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot convert %T to %s", raw, target)
}
