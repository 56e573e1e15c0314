package resolve

import (
	"errors"
	"reflect"
	"sync"
)

var (
	// ErrNilKind is returned when a registration has no service kind.
	ErrNilKind = errors.New("resolve: nil service kind")
	// ErrNilInstance is returned when a registration has no instance.
	ErrNilInstance = errors.New("resolve: nil service instance")
	// ErrNilPredicate is returned when a predicate registration has no predicate.
	ErrNilPredicate = errors.New("resolve: nil key predicate")
	// ErrKeyNotComparable is returned when a key cannot be used as a map key.
	ErrKeyNotComparable = errors.New("resolve: service key is not comparable")
)

// Registry stores singletons per (kind, key).
//
// Lookup order for a request (kind, key):
//  1. the exact (kind, key) registration
//  2. predicate registrations for kind, in registration order
//  3. the unkeyed registration for kind, which matches any key
//
// Re-registering the same (kind, key) replaces the earlier instance.
type Registry struct {
	mu         sync.RWMutex
	exact      map[Key]any
	predicates map[reflect.Type][]predicateEntry
}

type predicateEntry struct {
	id       any
	match    func(key any) bool
	instance any
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		exact:      make(map[Key]any),
		predicates: make(map[reflect.Type][]predicateEntry),
	}
}

// RegisterSingleton stores instance for (kind, key). A nil key registers the
// instance for every key of kind. The last registration for a (kind, key) wins.
func (r *Registry) RegisterSingleton(kind reflect.Type, instance any, key any) error {
	if kind == nil {
		return ErrNilKind
	}
	if instance == nil {
		return ErrNilInstance
	}
	if key != nil && !reflect.TypeOf(key).Comparable() {
		return ErrKeyNotComparable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exact[Key{Kind: kind, Name: key}] = instance
	return nil
}

// RegisterSingletonWhere stores instance for every key of kind accepted by match.
func (r *Registry) RegisterSingletonWhere(kind reflect.Type, instance any, match func(key any) bool) error {
	if kind == nil {
		return ErrNilKind
	}
	if instance == nil {
		return ErrNilInstance
	}
	if match == nil {
		return ErrNilPredicate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.predicates[kind] = append(r.predicates[kind], predicateEntry{match: match, instance: instance})
	return nil
}

// ReplaceSingletonWhere is RegisterSingletonWhere with an identity: a later
// registration with the same (kind, id) replaces the earlier one in place,
// keeping its position in the predicate order.
func (r *Registry) ReplaceSingletonWhere(kind reflect.Type, id any, instance any, match func(key any) bool) error {
	if kind == nil {
		return ErrNilKind
	}
	if instance == nil {
		return ErrNilInstance
	}
	if match == nil {
		return ErrNilPredicate
	}
	if id == nil || !reflect.TypeOf(id).Comparable() {
		return ErrKeyNotComparable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := predicateEntry{id: id, match: match, instance: instance}
	for i, p := range r.predicates[kind] {
		if p.id != nil && KeysEqual(p.id, id) {
			r.predicates[kind][i] = entry
			return nil
		}
	}
	r.predicates[kind] = append(r.predicates[kind], entry)
	return nil
}

// GetService resolves (kind, key) using the registry lookup order.
func (r *Registry) GetService(kind reflect.Type, key any) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key != nil && reflect.TypeOf(key).Comparable() {
		if svc, ok := r.exact[Key{Kind: kind, Name: key}]; ok {
			return svc, true
		}
	}
	for _, p := range r.predicates[kind] {
		if p.match(key) {
			return p.instance, true
		}
	}
	if svc, ok := r.exact[Key{Kind: kind}]; ok {
		return svc, true
	}
	return nil, false
}

// GetServices returns the resolved singleton, if any.
func (r *Registry) GetServices(kind reflect.Type, key any) []any {
	if svc, ok := r.GetService(kind, key); ok {
		return []any{svc}
	}
	return nil
}

// Count returns the number of registrations.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.exact)
	for _, ps := range r.predicates {
		n += len(ps)
	}
	return n
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := NewRegistry()
	for k, v := range r.exact {
		c.exact[k] = v
	}
	for k, ps := range r.predicates {
		c.predicates[k] = append([]predicateEntry(nil), ps...)
	}
	return c
}
