package dbconfig

import (
	"errors"
	"fmt"
	"reflect"
)

// LockedError reports a mutation attempted after the configuration served its
// first request.
type LockedError struct {
	Operation string
}

// Error implements the error interface.
func (e *LockedError) Error() string {
	return fmt.Sprintf("dbconfig: %s cannot be called after the configuration is locked; "+
		"configuration is locked the first time it resolves a service", e.Operation)
}

// IsLocked reports whether err is a LockedError.
func IsLocked(err error) bool {
	var le *LockedError
	return errors.As(err, &le)
}

// ArgumentError reports a nil or empty required argument to a configuration
// method. The configuration is not modified.
type ArgumentError struct {
	Method  string
	Param   string
	Message string
}

// Error implements the error interface.
func (e *ArgumentError) Error() string {
	return fmt.Sprintf("dbconfig: %s: argument %s %s", e.Method, e.Param, e.Message)
}

// IsArgument reports whether err is an ArgumentError.
func IsArgument(err error) bool {
	var ae *ArgumentError
	return errors.As(err, &ae)
}

// ReentrantLoadError reports an attempt to load a configuration from inside
// a Loaded handler.
type ReentrantLoadError struct {
	Operation string
}

// Error implements the error interface.
func (e *ReentrantLoadError) Error() string {
	return fmt.Sprintf("dbconfig: %s called from a Loaded handler; configuration loading is not reentrant", e.Operation)
}

// IsReentrantLoad reports whether err is a ReentrantLoadError.
func IsReentrantLoad(err error) bool {
	var re *ReentrantLoadError
	return errors.As(err, &re)
}

// MismatchError reports that a context type's companion configuration differs
// from the configuration already active in the process.
type MismatchError struct {
	ContextType reflect.Type
	Active      string
	Discovered  string
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if e.ContextType == nil {
		return fmt.Sprintf("dbconfig: configuration %q cannot be set; %q is already active", e.Discovered, e.Active)
	}
	return fmt.Sprintf("dbconfig: context %s uses configuration %q but %q is already active",
		e.ContextType, e.Discovered, e.Active)
}

// IsMismatch reports whether err is a MismatchError.
func IsMismatch(err error) bool {
	var me *MismatchError
	return errors.As(err, &me)
}

func argError(method, param, message string) error {
	return &ArgumentError{Method: method, Param: param, Message: message}
}
