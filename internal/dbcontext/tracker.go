package dbcontext

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/codefirst/internal/modelbuilder"
)

// EntityState is the state of a tracked entity.
type EntityState int

// Entity states.
const (
	Detached EntityState = iota
	Unchanged
	Added
	Deleted
	Modified
)

// String returns the state name.
func (s EntityState) String() string {
	switch s {
	case Detached:
		return "Detached"
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Deleted:
		return "Deleted"
	case Modified:
		return "Modified"
	}
	return fmt.Sprintf("EntityState(%d)", int(s))
}

// entry tracks one entity instance. original holds the column values as of
// the last attach, load or save, in EntityMap.Columns order.
type entry struct {
	ptr      reflect.Value
	em       *modelbuilder.EntityMap
	state    EntityState
	original []any
	modified map[string]bool
}

func (e *entry) current() []any {
	out := make([]any, len(e.em.Columns))
	for i, cm := range e.em.Columns {
		out[i] = columnValue(cm, e.ptr)
	}
	return out
}

func (e *entry) snapshot() {
	e.original = e.current()
	e.modified = nil
}

// keyString renders the key values, or "" when a key value is missing.
func (e *entry) keyString() string {
	return keyString(e.em, e.ptr)
}

func keyString(em *modelbuilder.EntityMap, ptr reflect.Value) string {
	parts := make([]string, len(em.Key))
	for i, cm := range em.Key {
		v := columnValue(cm, ptr)
		if v == nil {
			return ""
		}
		parts[i] = fmt.Sprintf("%v", v)
	}
	return em.EntityType.Name + "|" + strings.Join(parts, "|")
}

// tracker is the change tracker of one context. Entries keep the order in
// which entities started being tracked.
type tracker struct {
	entries []*entry
	byPtr   map[uintptr]*entry
	byKey   map[string]*entry
}

func newTracker() *tracker {
	return &tracker{byPtr: make(map[uintptr]*entry), byKey: make(map[string]*entry)}
}

func (t *tracker) lookup(ptr reflect.Value) *entry {
	return t.byPtr[ptr.Pointer()]
}

func (t *tracker) lookupKey(key string) *entry {
	if key == "" {
		return nil
	}
	return t.byKey[key]
}

// track starts tracking ptr in state. An entity is tracked at most once and
// at most one entity per key is tracked.
func (t *tracker) track(ptr reflect.Value, em *modelbuilder.EntityMap, state EntityState) (*entry, error) {
	if e := t.lookup(ptr); e != nil {
		return e, nil
	}
	e := &entry{ptr: ptr, em: em, state: state}
	key := e.keyString()
	if state != Added || !isGeneratedKeyUnset(e) {
		if other := t.lookupKey(key); other != nil {
			return nil, fmt.Errorf("dbcontext: another %s with key %s is already tracked", em.EntityType.Name, strings.TrimPrefix(key, em.EntityType.Name+"|"))
		}
		if key != "" {
			t.byKey[key] = e
		}
	}
	e.snapshot()
	t.entries = append(t.entries, e)
	t.byPtr[ptr.Pointer()] = e
	return e, nil
}

// reindex records e under its current key, after a store-generated key was
// read back.
func (t *tracker) reindex(e *entry) {
	for k, other := range t.byKey {
		if other == e {
			delete(t.byKey, k)
		}
	}
	if key := e.keyString(); key != "" {
		t.byKey[key] = e
	}
}

func (t *tracker) detach(e *entry) {
	e.state = Detached
	delete(t.byPtr, e.ptr.Pointer())
	for k, other := range t.byKey {
		if other == e {
			delete(t.byKey, k)
		}
	}
	for i, other := range t.entries {
		if other == e {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			break
		}
	}
}

// detectChanges compares unchanged and modified entities with their
// snapshots and marks changed columns.
func (t *tracker) detectChanges() {
	for _, e := range t.entries {
		e.detectChanges()
	}
}

func (e *entry) detectChanges() {
	if e.state != Unchanged && e.state != Modified {
		return
	}
	cur := e.current()
	for i, cm := range e.em.Columns {
		if !reflect.DeepEqual(cur[i], e.original[i]) {
			if e.modified == nil {
				e.modified = make(map[string]bool)
			}
			e.modified[cm.Path] = true
			e.state = Modified
		}
	}
}

// isGeneratedKeyUnset reports whether e has a store-generated key that still
// holds its zero value.
func isGeneratedKeyUnset(e *entry) bool {
	if e.em.Identity == nil {
		return false
	}
	v, ok := e.em.Identity.Get(e.ptr)
	return !ok || v.IsZero()
}

// columnValue reads a column's value from an entity as a driver argument:
// nil for nil pointers on the way, the pointed-to value for pointer fields.
func columnValue(cm *modelbuilder.ColumnMap, ptr reflect.Value) any {
	v, ok := cm.Get(ptr)
	if !ok {
		return nil
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	return v.Interface()
}
