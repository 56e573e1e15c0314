package resolve

import (
	"errors"
	"fmt"
)

// MissingServiceError reports that no resolver produced a required service.
type MissingServiceError struct {
	Key Key
}

// Error implements the error interface.
func (e *MissingServiceError) Error() string {
	return fmt.Sprintf("resolve: no service registered for %s", e.Key)
}

// IsMissingService reports whether err is a MissingServiceError.
func IsMissingService(err error) bool {
	var mse *MissingServiceError
	return errors.As(err, &mse)
}

// Get resolves T for key and reports whether it was found. A resolved value
// that does not implement T counts as absent.
func Get[T any](r Resolver, key any) (T, bool) {
	var zero T
	if r == nil {
		return zero, false
	}
	svc, ok := r.GetService(KindOf[T](), key)
	if !ok {
		return zero, false
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Service resolves T for key or returns a MissingServiceError.
func Service[T any](r Resolver, key any) (T, error) {
	svc, ok := Get[T](r, key)
	if !ok {
		return svc, &MissingServiceError{Key: Key{Kind: KindOf[T](), Name: key}}
	}
	return svc, nil
}

// All resolves every T registered for key, in priority order.
func All[T any](r Resolver, key any) []T {
	if r == nil {
		return nil
	}
	var out []T
	for _, svc := range r.GetServices(KindOf[T](), key) {
		if typed, ok := svc.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}
