// Package errors provides the structured error taxonomy for the build
// engine. Every diagnostic carries a stable code, the entity and source
// location it is attributed to, and a fatality class that decides whether
// it aborts a single directive, a page, or the whole build.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeIdentity ErrorType = "identity"
	ErrorTypeContent  ErrorType = "content"
	ErrorTypeRef      ErrorType = "reference"
	ErrorTypeArtifact ErrorType = "artifact"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeInternal ErrorType = "internal"
)

// Stable error codes.
const (
	ErrCodeDuplicateID      = "ERR_DUPLICATE_ID"
	ErrCodeInvalidPrefix    = "ERR_INVALID_PREFIX"
	ErrCodeUnknownID        = "ERR_UNKNOWN_ID"
	ErrCodeMissingContent   = "ERR_MISSING_CONTENT"
	ErrCodeCrossPageRef     = "ERR_CROSS_PAGE_REF"
	ErrCodeUnlinkedSolution = "ERR_UNLINKED_SOLUTION"
	ErrCodeArtifactEmit     = "ERR_ARTIFACT_EMIT"
	ErrCodeNotNumbered      = "ERR_NOT_NUMBERED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeInternal         = "ERR_INTERNAL"
)

// BuildError is a structured error with source attribution.
type BuildError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	EntityID string
	Page     string
	Line     int
	// Fatal marks errors detected in the global pass that invalidate the
	// whole build (numbering, cross-page references). Non-fatal errors
	// abort only the offending directive's output.
	Fatal bool
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Page != "" {
		location := e.Page
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
		}
		parts = append(parts, location)
	}

	if e.EntityID != "" {
		parts = append(parts, "entity:"+e.EntityID)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Is matches build errors by type and code.
func (e *BuildError) Is(target error) bool {
	var t *BuildError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithLocation attributes the error to its declaring page and line.
func (e *BuildError) WithLocation(page string, line int) *BuildError {
	e.Page = page
	e.Line = line

	return e
}

// WithEntity attributes the error to an entity id.
func (e *BuildError) WithEntity(id string) *BuildError {
	e.EntityID = id

	return e
}

// AsFatal marks the error build-fatal.
func (e *BuildError) AsFatal() *BuildError {
	e.Fatal = true

	return e
}

// IsFatal checks whether an error invalidates the whole build.
func IsFatal(err error) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Fatal
	}

	return false
}

// HasCode checks whether an error (or its chain) carries the given code.
func HasCode(err error, code string) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Code == code
	}

	return false
}

// Error creation functions

// ErrDuplicateID reports an id redeclared within a build.
func ErrDuplicateID(id, firstPage string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeIdentity,
		Code:     ErrCodeDuplicateID,
		Message:  fmt.Sprintf("id already registered on page %q", firstPage),
		EntityID: id,
	}
}

// ErrInvalidPrefix reports an id whose namespace prefix does not match its
// declared kind.
func ErrInvalidPrefix(id, wantPrefix string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeIdentity,
		Code:     ErrCodeInvalidPrefix,
		Message:  fmt.Sprintf("id must carry the %q prefix", wantPrefix),
		EntityID: id,
	}
}

// ErrUnknownID reports a dangling reference, inherit, query or source target.
func ErrUnknownID(id string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeRef,
		Code:     ErrCodeUnknownID,
		Message:  "unknown entity id",
		EntityID: id,
	}
}

// ErrMissingContent reports required content absent with no file fallback.
func ErrMissingContent(id, path string) *BuildError {
	msg := "no inline content and no content file"
	if path != "" {
		msg = fmt.Sprintf("no inline content and the content file (%s) does not exist", path)
	}
	return &BuildError{
		Type:     ErrorTypeContent,
		Code:     ErrCodeMissingContent,
		Message:  msg,
		EntityID: id,
	}
}

// ErrCrossPageRef reports an inherit/query/source id that resolved to an
// entity on a different page. Always build-fatal.
func ErrCrossPageRef(id, target, targetPage string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeRef,
		Code:     ErrCodeCrossPageRef,
		Message:  fmt.Sprintf("references %q declared on a different page (%s); this only works within a single page", target, targetPage),
		EntityID: id,
		Fatal:    true,
	}
}

// ErrUnlinkedSolution reports a solution with no matching exercise.
// Always build-fatal: it is detected during the numbering pass.
func ErrUnlinkedSolution(solutionID, exerciseID string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeRef,
		Code:     ErrCodeUnlinkedSolution,
		Message:  fmt.Sprintf("no exercise %q exists for this solution", exerciseID),
		EntityID: solutionID,
		Fatal:    true,
	}
}

// ErrArtifactEmit reports a composite-artifact emission failure. Per-entity,
// never build-fatal: the page still renders, the artifact link will 404.
func ErrArtifactEmit(id, message string, cause error) *BuildError {
	return &BuildError{
		Type:     ErrorTypeArtifact,
		Code:     ErrCodeArtifactEmit,
		Message:  message,
		Cause:    cause,
		EntityID: id,
	}
}

// ErrNotNumbered reports a numbered reference to a kind without a sequence
// number.
func ErrNotNumbered(id string) *BuildError {
	return &BuildError{
		Type:     ErrorTypeRef,
		Code:     ErrCodeNotNumbered,
		Message:  "entity kind has no sequence number",
		EntityID: id,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string) *BuildError {
	return &BuildError{
		Type:    ErrorTypeConfig,
		Code:    ErrCodeConfigInvalid,
		Message: message,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(message string, cause error) *BuildError {
	return &BuildError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternal,
		Message: message,
		Cause:   cause,
		Fatal:   true,
	}
}
