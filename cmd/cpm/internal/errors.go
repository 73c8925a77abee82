package internal

import (
	"errors"

	"github.com/goplus/cpm/internal/build"
	"github.com/goplus/cpm/internal/toolchain"
	"github.com/goplus/cpm/pkgs/manifest"
)

// Exit codes by error category.
const (
	exitFailure    = 1
	exitManifest   = 2
	exitCycle      = 3
	exitToolchain  = 4
	exitFileSystem = 5
)

func exitCode(err error) int {
	var (
		cycle    *build.CyclicDependencyError
		notFound *manifest.NotFoundError
		parse    *manifest.ParseError
		tc       *toolchain.Error
		fsErr    *build.FileSystemError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &cycle):
		return exitCycle
	case errors.As(err, &notFound), errors.As(err, &parse):
		return exitManifest
	case errors.As(err, &tc), errors.Is(err, toolchain.ErrNoCompiler):
		return exitToolchain
	case errors.As(err, &fsErr):
		return exitFileSystem
	}
	return exitFailure
}

// formatError renders err as "cpm: <module>: <cause>". Build errors
// already lead with the module name.
func formatError(err error) string {
	return "cpm: " + err.Error()
}
