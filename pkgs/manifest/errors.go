package manifest

import (
	"errors"
	"fmt"
)

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("manifest not found")

// NotFoundError reports a module directory without a manifest.
type NotFoundError struct {
	Path string // manifest file or module directory that was searched
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, ErrNotFound)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ParseError reports a manifest that could not be decoded or that lacks
// required structure. Field is empty for syntax errors.
type ParseError struct {
	Path  string
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: field %q: %v", e.Path, e.Field, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func fieldError(file, field, msg string) *ParseError {
	return &ParseError{Path: file, Field: field, Err: errors.New(msg)}
}
