// Package gcc renders option sets for GCC-compatible front ends (g++ and
// clang++).
package gcc

import (
	"runtime"

	"github.com/goplus/cpm/pkgs/buildsys"
)

// Flavor distinguishes front ends sharing the GCC argument syntax.
type Flavor int

const (
	GCC Flavor = iota
	Clang
)

// Dialect renders -I/-L/-l/-o style arguments.
type Dialect struct {
	flavor Flavor
	goos   string
}

var _ buildsys.Dialect = (*Dialect)(nil)

// New creates a dialect for the host operating system.
func New(flavor Flavor) *Dialect {
	return NewFor(flavor, runtime.GOOS)
}

// NewFor creates a dialect producing artifacts for goos.
func NewFor(flavor Flavor, goos string) *Dialect {
	return &Dialect{flavor: flavor, goos: goos}
}

func (d *Dialect) Name() string {
	if d.flavor == Clang {
		return "clang"
	}
	return "gcc"
}

func (d *Dialect) Render(o *buildsys.Options) []string {
	args := o.Sources()
	for _, opt := range o.Entries() {
		switch opt.Kind {
		case buildsys.IncludeDir:
			args = append(args, "-I"+opt.Value)
		case buildsys.LibDir:
			args = append(args, "-L"+opt.Value)
		case buildsys.LinkLib:
			args = append(args, "-l"+opt.Value)
		case buildsys.Flag:
			args = append(args, opt.Value)
		case buildsys.FlagWithValue:
			args = append(args, opt.Value+"="+opt.Arg)
		case buildsys.RuntimeDir:
			args = append(args, "-Wl,-rpath,"+opt.Value)
		case buildsys.Shared:
			args = append(args, "-shared", "-fPIC")
		}
	}
	if out := o.OutputPath(); out != "" {
		args = append(args, "-o", out)
	}
	return args
}

func (d *Dialect) LibraryFile(name string) string {
	switch d.goos {
	case "darwin":
		return "lib" + name + ".dylib"
	case "windows":
		return "lib" + name + ".dll"
	}
	return "lib" + name + ".so"
}

func (d *Dialect) ExecutableFile(name string) string {
	if d.goos == "windows" {
		return name + ".exe"
	}
	return name
}
