package modelbuilder

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// UnmappableTypeError reports a Go type that cannot be mapped to the
// conceptual model. It aborts the build.
type UnmappableTypeError struct {
	Type   reflect.Type
	Reason string
}

// Error implements the error interface.
func (e *UnmappableTypeError) Error() string {
	return fmt.Sprintf("modelbuilder: type %s cannot be mapped: %s", typeName(e.Type), e.Reason)
}

// IsUnmappableType reports whether err is an UnmappableTypeError.
func IsUnmappableType(err error) bool {
	var e *UnmappableTypeError
	return errors.As(err, &e)
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Phase names the validation pass that failed.
type Phase string

const (
	PhaseConceptual Phase = "conceptual"
	PhaseStore      Phase = "store"
)

// ModelValidationError aggregates every problem found by one validation
// pass.
type ModelValidationError struct {
	Phase  Phase
	Errors []ValidationError
}

// Error implements the error interface.
func (e *ModelValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "modelbuilder: %s model validation failed with %d error(s)", e.Phase, len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// Unwrap exposes the individual validation errors to errors.As.
func (e *ModelValidationError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ve := range e.Errors {
		out[i] = ve
	}
	return out
}

// IsModelValidation reports whether err is a ModelValidationError.
func IsModelValidation(err error) bool {
	var e *ModelValidationError
	return errors.As(err, &e)
}

// Codes returns the codes of the aggregated errors in order.
func (e *ModelValidationError) Codes() []string {
	out := make([]string, len(e.Errors))
	for i, ve := range e.Errors {
		out[i] = ve.Code
	}
	return out
}
