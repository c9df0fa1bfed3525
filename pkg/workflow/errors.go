package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors. The typed errors below match them through errors.Is.
var (
	ErrParse         = errors.New("malformed workflow document")
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("duplicate node name")
	ErrWrite         = errors.New("write failed")
)

// ParseError reports a document that is not well-formed JSON or lacks the
// top-level nodes array / connections object. It is always fatal.
type ParseError struct {
	Path  string // empty when parsing from memory
	Cause error
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("parse workflow: %v", e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// NotFoundError reports an edit whose target was absent. Callers decide
// whether it aborts the run; by default it is a warned no-op.
type NotFoundError struct {
	Kind string // "node", "connection", "annotation", "edge"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError.
func NotFound(kind, key string) error {
	return &NotFoundError{Kind: kind, Key: key}
}

// DuplicateNameError is returned by strict node insertion.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("node name %q already exists", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// WriteError wraps an I/O failure while persisting a document.
type WriteError struct {
	Path  string
	Op    string // "marshal", "create", "write", "sync", "rename"
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
