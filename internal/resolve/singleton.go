package resolve

import "reflect"

// Singleton resolves one instance for one service kind.
//
// A Singleton matches a request when the kinds are equal and either the
// registration is unkeyed, the keys are equal, or the key predicate accepts
// the request key.
type Singleton struct {
	kind     reflect.Type
	instance any
	key      any
	match    func(key any) bool
}

// NewSingleton registers instance for kind. A nil key matches any request.
func NewSingleton(kind reflect.Type, instance any, key any) *Singleton {
	return &Singleton{kind: kind, instance: instance, key: key}
}

// NewSingletonWhere registers instance for every request key accepted by match.
func NewSingletonWhere(kind reflect.Type, instance any, match func(key any) bool) *Singleton {
	return &Singleton{kind: kind, instance: instance, match: match}
}

// GetService returns the instance when (kind, key) matches.
func (s *Singleton) GetService(kind reflect.Type, key any) (any, bool) {
	if kind != s.kind || !s.matches(key) {
		return nil, false
	}
	return s.instance, true
}

// GetServices returns the instance as a one-element slice when it matches.
func (s *Singleton) GetServices(kind reflect.Type, key any) []any {
	if svc, ok := s.GetService(kind, key); ok {
		return []any{svc}
	}
	return nil
}

func (s *Singleton) matches(key any) bool {
	if s.match != nil {
		return s.match(key)
	}
	return s.key == nil || KeysEqual(s.key, key)
}

// Transient invokes a factory on every matching lookup.
type Transient struct {
	kind    reflect.Type
	match   func(key any) bool
	factory func(key any) any
}

// NewTransient resolves kind by calling factory for every request whose key
// equals key. A nil key matches any request.
func NewTransient(kind reflect.Type, key any, factory func(key any) any) *Transient {
	return &Transient{
		kind:    kind,
		match:   func(k any) bool { return key == nil || KeysEqual(key, k) },
		factory: factory,
	}
}

// NewKeyed resolves kind by calling factory for every request key accepted by
// match. This is the provider-keyed variant: match usually inspects the
// provider invariant name inside a composite key.
func NewKeyed(kind reflect.Type, match func(key any) bool, factory func(key any) any) *Transient {
	return &Transient{kind: kind, match: match, factory: factory}
}

// GetService invokes the factory when (kind, key) matches.
// A factory returning nil counts as absence.
func (t *Transient) GetService(kind reflect.Type, key any) (any, bool) {
	if kind != t.kind || !t.match(key) {
		return nil, false
	}
	svc := t.factory(key)
	if svc == nil {
		return nil, false
	}
	return svc, true
}

// GetServices returns the factory result as a one-element slice.
func (t *Transient) GetServices(kind reflect.Type, key any) []any {
	if svc, ok := t.GetService(kind, key); ok {
		return []any{svc}
	}
	return nil
}
