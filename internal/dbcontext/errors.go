package dbcontext

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrNotFound is returned by Set.Find when no entity has the given key.
var ErrNotFound = errors.New("dbcontext: entity not found")

// InvalidContextError reports a value that cannot be used as a context.
type InvalidContextError struct {
	Type   reflect.Type
	Reason string
}

// Error implements the error interface.
func (e *InvalidContextError) Error() string {
	return fmt.Sprintf("dbcontext: %v cannot be used as a context: %s", e.Type, e.Reason)
}

// IsInvalidContext returns true if err is an InvalidContextError.
func IsInvalidContext(err error) bool {
	var e *InvalidContextError
	return errors.As(err, &e)
}

// IncompatibleModelError reports a database created for a different model.
type IncompatibleModelError struct {
	ContextType reflect.Type
	Database    string
}

// Error implements the error interface.
func (e *IncompatibleModelError) Error() string {
	return fmt.Sprintf("dbcontext: the model backing %v has changed since database %q was created", e.ContextType, e.Database)
}

// IsIncompatibleModel returns true if err is an IncompatibleModelError.
func IsIncompatibleModel(err error) bool {
	var e *IncompatibleModelError
	return errors.As(err, &e)
}

// DatabaseExistsError is returned by Database.Create when model tables are
// already present.
type DatabaseExistsError struct {
	Database string
}

// Error implements the error interface.
func (e *DatabaseExistsError) Error() string {
	return fmt.Sprintf("dbcontext: database %q already exists", e.Database)
}

// IsDatabaseExists returns true if err is a DatabaseExistsError.
func IsDatabaseExists(err error) bool {
	var e *DatabaseExistsError
	return errors.As(err, &e)
}

// PropertyError is one failed rule on one property.
type PropertyError struct {
	Property string
	Message  string
}

// EntityErrors collects the failed rules of one entity.
type EntityErrors struct {
	EntityType string
	Entity     any
	Errors     []PropertyError
}

// EntityValidationError aggregates every validation failure found before a
// save. Nothing is written when it is returned.
type EntityValidationError struct {
	Entities []EntityErrors
}

// Error implements the error interface.
func (e *EntityValidationError) Error() string {
	var msgs []string
	for _, ent := range e.Entities {
		for _, pe := range ent.Errors {
			if pe.Property == "" {
				msgs = append(msgs, fmt.Sprintf("%s: %s", ent.EntityType, pe.Message))
				continue
			}
			msgs = append(msgs, fmt.Sprintf("%s.%s: %s", ent.EntityType, pe.Property, pe.Message))
		}
	}
	return fmt.Sprintf("dbcontext: validation failed for %d entities: %s", len(e.Entities), strings.Join(msgs, "; "))
}

// IsEntityValidation returns true if err is an EntityValidationError.
func IsEntityValidation(err error) bool {
	var e *EntityValidationError
	return errors.As(err, &e)
}

// ConcurrencyError reports an update or delete that matched no row, because
// the row was deleted or a concurrency token changed.
type ConcurrencyError struct {
	EntityType string
	Entity     any
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("dbcontext: %s affected no rows; the entity may have been modified or deleted", e.EntityType)
}

// IsConcurrency returns true if err is a ConcurrencyError.
func IsConcurrency(err error) bool {
	var e *ConcurrencyError
	return errors.As(err, &e)
}
