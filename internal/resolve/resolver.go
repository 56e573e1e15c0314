package resolve

import (
	"fmt"
	"reflect"
)

// Resolver resolves service instances by kind and key.
type Resolver interface {
	// GetService returns the first instance that satisfies (kind, key).
	GetService(kind reflect.Type, key any) (any, bool)

	// GetServices returns every instance that satisfies (kind, key), in
	// resolution priority order.
	GetServices(kind reflect.Type, key any) []any
}

// Key is a structural (kind, discriminator) pair.
type Key struct {
	Kind reflect.Type
	Name any
}

// String renders the key for diagnostics.
func (k Key) String() string {
	if k.Name == nil {
		return kindName(k.Kind)
	}
	return fmt.Sprintf("%s[%v]", kindName(k.Kind), k.Name)
}

// KindOf returns the service kind for T. Use interface or func types for T.
func KindOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Func adapts a plain function to the Resolver interface.
type Func func(kind reflect.Type, key any) (any, bool)

// GetService calls f.
func (f Func) GetService(kind reflect.Type, key any) (any, bool) {
	return f(kind, key)
}

// GetServices returns the single result of f, if any.
func (f Func) GetServices(kind reflect.Type, key any) []any {
	if svc, ok := f(kind, key); ok {
		return []any{svc}
	}
	return nil
}

// KeysEqual reports whether two discriminators are structurally equal.
// Non-comparable values are never equal.
func KeysEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}

func kindName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
