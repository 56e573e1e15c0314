package modelconfig

import (
	"errors"
	"fmt"
)

// ArgumentError reports an invalid argument to a fluent configuration
// method. The call that produced it changed nothing.
type ArgumentError struct {
	Method  string
	Param   string
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("modelconfig: %s: argument %s %s", e.Method, e.Param, e.Message)
}

// IsArgument reports whether err is or wraps an ArgumentError.
func IsArgument(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// ConfigurationError reports configuration that does not fit the model it is
// applied to, such as a property name the type does not have.
type ConfigurationError struct {
	Element string
	Message string
	// Store is set for errors found while applying store configuration.
	Store bool
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("modelconfig: %s: %s", e.Element, e.Message)
}

// errorSink collects argument errors from fluent calls. Fluent methods cannot
// return errors without breaking chains, so they record them here and Build
// reports them.
type errorSink struct {
	errs []error
}

func (s *errorSink) add(method, param, message string) {
	if s == nil {
		return
	}
	s.errs = append(s.errs, &ArgumentError{Method: method, Param: param, Message: message})
}

func (s *errorSink) clone() *errorSink {
	return &errorSink{errs: append([]error(nil), s.errs...)}
}
