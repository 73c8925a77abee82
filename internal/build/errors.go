package build

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotLibrary is reported when a dependency is not a library module.
var ErrNotLibrary = errors.New("dependency is not a library module")

// BuildError reports the module whose build failed and why. The cause is
// one of *manifest.NotFoundError, *manifest.ParseError, *toolchain.Error,
// *FileSystemError or ErrNotLibrary.
type BuildError struct {
	Module string
	Dir    string
	Err    error
}

func (e *BuildError) Error() string {
	return e.Module + ": " + e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// CyclicDependencyError reports a dependency cycle. Path lists the module
// names along the cycle; the first and last entries are the same module.
type CyclicDependencyError struct {
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// FileSystemError reports a failure to prepare an output location.
type FileSystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileSystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileSystemError) Unwrap() error {
	return e.Err
}
