package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/framegraph/internal/ir"
)

// Diagnostic codes (F200-F299).
const (
	// Dependency errors (F201-F209)
	CodeMissingResource  = "F201" // required resource has no live producer
	CodeBlobTypeMismatch = "F202" // blob read with a different type tag
	CodeCycle            = "F203" // dependency cycle, broken by node id
	CodeUnknownOrdering  = "F204" // ordering constraint names an unregistered node
	CodeRenameConflict   = "F205" // resource renamed by more than one node

	// Declaration errors (F210-F219)
	CodeDeclarationConflict = "F210" // conflicting requests inside a declaration

	// Resource errors (F220-F229)
	CodeUnsizedTexture = "F220" // auto-resolution type has no resolution
)

// ErrMissingResource is the sentinel every MissingResourceError unwraps to.
var ErrMissingResource = errors.New("missing resource")

// MissingResourceError reports a node pruned because a required resource
// has no live producer.
type MissingResourceError struct {
	Node     string
	Resource string
	// Producer is set when the resource is declared by a node that was
	// itself disabled or pruned.
	Producer   string
	Suggestion string
}

func (e *MissingResourceError) Error() string {
	msg := fmt.Sprintf("node %s requires %s, which nothing produces", e.Node, e.Resource)
	if e.Producer != "" {
		msg = fmt.Sprintf("node %s requires %s, whose producer %s is disabled or pruned", e.Node, e.Resource, e.Producer)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (did you mean %s?)", e.Suggestion)
	}
	return msg
}

// Unwrap lets errors.Is match ErrMissingResource.
func (e *MissingResourceError) Unwrap() error {
	return ErrMissingResource
}

// IsMissingResource reports whether err is or wraps a MissingResourceError.
func IsMissingResource(err error) bool {
	var target *MissingResourceError
	return errors.As(err, &target)
}

func (e *MissingResourceError) diagnostic() ir.Diagnostic {
	return ir.Diagnostic{
		Code:     CodeMissingResource,
		Severity: ir.SeverityError,
		Message:  e.Error(),
		Node:     e.Node,
		Resource: e.Resource,
	}
}

func errorDiag(code, node, resource, format string, args ...any) ir.Diagnostic {
	return ir.Diagnostic{
		Code:     code,
		Severity: ir.SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Node:     node,
		Resource: resource,
	}
}

func warningDiag(code, node, resource, format string, args ...any) ir.Diagnostic {
	d := errorDiag(code, node, resource, format, args...)
	d.Severity = ir.SeverityWarning
	return d
}
