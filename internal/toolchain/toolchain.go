// Package toolchain identifies the compiler front end used for a build and
// runs it.
package toolchain

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/goplus/cpm/pkgs/buildsys"
	"github.com/goplus/cpm/pkgs/buildsys/gcc"
	"github.com/goplus/cpm/pkgs/buildsys/msvc"
)

// Kind is the family of a compiler front end.
type Kind int

const (
	// Auto lets Detect probe the known drivers.
	Auto Kind = iota
	GCC
	Clang
	MSVC
)

func (k Kind) String() string {
	switch k {
	case GCC:
		return "gcc"
	case Clang:
		return "clang"
	case MSVC:
		return "msvc"
	}
	return "auto"
}

// ParseKind parses a toolchain name as accepted on the command line and in
// configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return Auto, nil
	case "gcc", "g++", "gnu":
		return GCC, nil
	case "clang", "clang++", "llvm":
		return Clang, nil
	case "msvc", "cl", "cl.exe":
		return MSVC, nil
	}
	return Auto, fmt.Errorf("unknown toolchain %q", s)
}

// ErrNoCompiler is returned by Detect when no known driver is on PATH.
var ErrNoCompiler = errors.New("no C/C++ compiler found")

// Identity is the resolved compiler used for every invocation of a build.
type Identity struct {
	Kind Kind
	Path string
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.Kind, id.Path)
}

// Config is the toolchain configuration of a build. It is passed explicitly
// to everything that needs it; nothing is read from the process
// environment once a Config exists.
type Config struct {
	Kind     Kind
	Compiler string // driver name or path; empty means probe
	Target   string // target triple, clang only
	OptLevel string // one of 0, 1, 2, 3, s, g
	// Env is added to the environment of every driver process.
	Env map[string]string
}

var optLevels = map[string]string{
	"0": "/Od",
	"1": "/O1",
	"2": "/O2",
	"3": "/Ox",
	"s": "/Os",
	"g": "/Od",
}

// Validate checks the fields that do not depend on the detected compiler.
func (c Config) Validate() error {
	if c.OptLevel != "" {
		if _, ok := optLevels[c.OptLevel]; !ok {
			return fmt.Errorf("invalid optimization level %q", c.OptLevel)
		}
	}
	if c.Target != "" && c.Kind != Auto && c.Kind != Clang {
		return fmt.Errorf("target %q requires the clang toolchain, not %s", c.Target, c.Kind)
	}
	return nil
}

// Apply adds the configured optimization level and target to o, spelled
// for the front end id.
func (c Config) Apply(id Identity, o *buildsys.Options) error {
	if c.OptLevel != "" {
		if id.Kind == MSVC {
			o.Flag(optLevels[c.OptLevel])
		} else {
			o.Flag("-O" + c.OptLevel)
		}
	}
	if c.Target != "" {
		if id.Kind != Clang {
			return fmt.Errorf("target %q requires the clang toolchain, not %s", c.Target, id.Kind)
		}
		o.FlagValue("--target", c.Target)
	}
	return nil
}

var drivers = []struct {
	kind Kind
	name string
}{
	{GCC, "g++"},
	{Clang, "clang++"},
	{MSVC, "cl"},
}

// lookPath is replaced in tests.
var lookPath = exec.LookPath

// Detect resolves the compiler to use. An explicit Compiler wins; otherwise
// the known drivers of the configured Kind (or all of them) are probed in
// order g++, clang++, cl.
func Detect(cfg Config) (Identity, error) {
	if cfg.Compiler != "" {
		path, err := lookPath(cfg.Compiler)
		if err != nil {
			return Identity{}, &Error{Op: LaunchFailed, Driver: cfg.Compiler, Err: err}
		}
		kind := cfg.Kind
		if kind == Auto {
			kind = kindOf(cfg.Compiler)
		}
		return Identity{Kind: kind, Path: path}, nil
	}
	for _, d := range drivers {
		if cfg.Kind != Auto && d.kind != cfg.Kind {
			continue
		}
		if path, err := lookPath(d.name); err == nil {
			return Identity{Kind: d.kind, Path: path}, nil
		}
	}
	if cfg.Kind != Auto {
		return Identity{}, fmt.Errorf("%w for toolchain %s", ErrNoCompiler, cfg.Kind)
	}
	return Identity{}, ErrNoCompiler
}

// kindOf guesses the family of a driver from its file name.
func kindOf(compiler string) Kind {
	base := strings.ToLower(filepath.Base(compiler))
	base = strings.TrimSuffix(base, ".exe")
	switch {
	case strings.Contains(base, "clang"):
		return Clang
	case base == "cl":
		return MSVC
	}
	return GCC
}

// Dialect returns the argument dialect of id.
func Dialect(id Identity) buildsys.Dialect {
	switch id.Kind {
	case Clang:
		return gcc.New(gcc.Clang)
	case MSVC:
		return msvc.New()
	}
	return gcc.New(gcc.GCC)
}
