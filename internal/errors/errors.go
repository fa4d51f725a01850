// Package errors provides the error taxonomy for the cube repository manager
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType categorises repository errors
type ErrorType string

const (
	// ErrorTypeInput covers invalid AppIDs, cube names and batch arguments
	ErrorTypeInput ErrorType = "input"
	// ErrorTypeSecurity covers permission denials and lock contention
	ErrorTypeSecurity ErrorType = "security"
	// ErrorTypeState covers invalid component configuration
	ErrorTypeState ErrorType = "state"
	// ErrorTypeConflict covers failed three-way merges
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeNotFound covers hard lookups of missing cubes
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeResource covers unresolvable resource URLs
	ErrorTypeResource ErrorType = "resource"
)

// Error is a typed repository error with an optional cause
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Inputf creates an input error
func Inputf(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeInput, Message: fmt.Sprintf(format, args...)}
}

// Securityf creates a security error
func Securityf(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeSecurity, Message: fmt.Sprintf(format, args...)}
}

// Statef creates a state error
func Statef(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeState, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf creates a not-found error
func NotFoundf(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Resourcef creates a resource error
func Resourcef(format string, args ...interface{}) error {
	return &Error{Type: ErrorTypeResource, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a typed error
func Wrap(t ErrorType, err error, format string, args ...interface{}) error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...), Cause: err}
}

func isType(err error, t ErrorType) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsInput reports whether err is an input error
func IsInput(err error) bool { return isType(err, ErrorTypeInput) }

// IsSecurity reports whether err is a security error
func IsSecurity(err error) bool { return isType(err, ErrorTypeSecurity) }

// IsState reports whether err is a state error
func IsState(err error) bool { return isType(err, ErrorTypeState) }

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsResource reports whether err is a resource error
func IsResource(err error) bool { return isType(err, ErrorTypeResource) }
