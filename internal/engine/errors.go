package engine

import (
	"errors"
	"fmt"
)

// ErrNoDevice is returned by RunNodes when the runtime was built without a
// device or an allocator.
var ErrNoDevice = errors.New("runtime has no device or allocator")

// RuntimeError is an edit the runtime refused. The graph is left as it was.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the full name of the node involved, if any.
	Node string

	// Name is the full name of the resource, slot or auto-resolution type
	// involved, if any.
	Name string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeInvalidResolution indicates a resolution that is zero,
	// negative or larger than its static bound.
	ErrCodeInvalidResolution RuntimeErrorCode = "INVALID_RESOLUTION"

	// ErrCodeUnknownResolution indicates an auto-resolution type that has
	// no static resolution yet.
	ErrCodeUnknownResolution RuntimeErrorCode = "UNKNOWN_RESOLUTION"

	// ErrCodeStaleHandle indicates a handle whose node was unregistered or
	// registered again since the handle was issued.
	ErrCodeStaleHandle RuntimeErrorCode = "STALE_HANDLE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	switch {
	case e.Node != "":
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.Node)
	case e.Name != "":
		return fmt.Sprintf("%s: %s (name=%s)", e.Code, e.Message, e.Name)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsInvalidResolution returns true if the error rejected a resolution.
// Uses errors.As to handle wrapped errors.
func IsInvalidResolution(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeInvalidResolution || re.Code == ErrCodeUnknownResolution
	}
	return false
}

// IsStaleHandle returns true if the error was caused by a stale handle.
func IsStaleHandle(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeStaleHandle
	}
	return false
}
