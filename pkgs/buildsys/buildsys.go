// Package buildsys accumulates compiler options independently of the
// compiler front end that eventually renders them.
package buildsys

import "slices"

// Kind identifies a single option in an Options set.
type Kind int

const (
	IncludeDir Kind = iota
	LibDir
	LinkLib
	Flag
	FlagWithValue
	Source
	Output
	// RuntimeDir is a directory searched for shared libraries at run time.
	RuntimeDir
	// Shared asks for a shared library instead of an executable.
	Shared
)

func (k Kind) String() string {
	switch k {
	case IncludeDir:
		return "IncludeDir"
	case LibDir:
		return "LibDir"
	case LinkLib:
		return "LinkLib"
	case Flag:
		return "Flag"
	case FlagWithValue:
		return "FlagWithValue"
	case Source:
		return "Source"
	case Output:
		return "Output"
	case RuntimeDir:
		return "RuntimeDir"
	case Shared:
		return "Shared"
	}
	return "Kind(?)"
}

// Option is one typed entry of an Options set. Value carries the path, name
// or flag; Arg carries the value of a FlagWithValue.
type Option struct {
	Kind  Kind
	Value string
	Arg   string
}

// Options is the toolchain-agnostic option set of one build unit.
// Order of addition is preserved; sources and the output target are kept
// apart so that dialects can place them where their front end expects.
type Options struct {
	sources []string
	options []Option
	output  string
}

// New creates an empty option set.
func New() *Options {
	return &Options{}
}

// Source adds a source file.
func (o *Options) Source(path string) *Options {
	o.sources = append(o.sources, path)
	return o
}

// IncludeDir adds a header search directory. Directories are searched in
// the order they were added.
func (o *Options) IncludeDir(dir string) *Options {
	return o.add(Option{Kind: IncludeDir, Value: dir})
}

// LibDir adds a library search directory.
func (o *Options) LibDir(dir string) *Options {
	return o.add(Option{Kind: LibDir, Value: dir})
}

// LinkLib links against a library by logical name: no path, no prefix and
// no extension.
func (o *Options) LinkLib(name string) *Options {
	return o.add(Option{Kind: LinkLib, Value: name})
}

// Flag adds an opaque flag passed through unchanged.
func (o *Options) Flag(flag string) *Options {
	return o.add(Option{Kind: Flag, Value: flag})
}

// FlagValue adds a flag with a value; the dialect decides how the two are
// joined.
func (o *Options) FlagValue(flag, value string) *Options {
	return o.add(Option{Kind: FlagWithValue, Value: flag, Arg: value})
}

// RuntimeDir adds a directory the produced artifact searches for shared
// libraries when it runs. Dialects without such a notion ignore it.
func (o *Options) RuntimeDir(dir string) *Options {
	return o.add(Option{Kind: RuntimeDir, Value: dir})
}

// Shared makes the invocation produce a shared library.
func (o *Options) Shared() *Options {
	if o.IsShared() {
		return o
	}
	return o.add(Option{Kind: Shared})
}

// Output sets the artifact path. Only the last call counts.
func (o *Options) Output(path string) *Options {
	o.output = path
	return o
}

func (o *Options) add(opt Option) *Options {
	o.options = append(o.options, opt)
	return o
}

// Sources returns the source files in the order they were added.
func (o *Options) Sources() []string {
	return slices.Clone(o.sources)
}

// Entries returns every non-source, non-output option in order.
func (o *Options) Entries() []Option {
	return slices.Clone(o.options)
}

// OutputPath returns the artifact path, or "" when none was set.
func (o *Options) OutputPath() string {
	return o.output
}

// IsShared reports whether Shared was requested.
func (o *Options) IsShared() bool {
	return slices.ContainsFunc(o.options, func(opt Option) bool {
		return opt.Kind == Shared
	})
}

// Dialect renders an option set in the argument syntax of one compiler
// front end.
type Dialect interface {
	// Name identifies the dialect, e.g. "gcc" or "msvc".
	Name() string

	// Render returns the arguments for the driver, without the driver
	// itself. Sources come first and the output target last, as far as
	// the front end allows.
	Render(o *Options) []string

	// Artifact file names for a module name.
	LibraryFile(name string) string
	ExecutableFile(name string) string
}
