// Package msvc renders option sets for the MSVC compiler driver (cl.exe).
package msvc

import "github.com/goplus/cpm/pkgs/buildsys"

// Dialect renders /I, /LIBPATH: and /OUT: style arguments. Linker options
// follow the /link separator, so the output target is always last.
type Dialect struct{}

var _ buildsys.Dialect = (*Dialect)(nil)

func New() *Dialect {
	return &Dialect{}
}

func (d *Dialect) Name() string {
	return "msvc"
}

func (d *Dialect) Render(o *buildsys.Options) []string {
	args := o.Sources()
	var link []string
	for _, opt := range o.Entries() {
		switch opt.Kind {
		case buildsys.IncludeDir:
			args = append(args, "/I"+opt.Value)
		case buildsys.Flag:
			args = append(args, opt.Value)
		case buildsys.FlagWithValue:
			args = append(args, opt.Value, opt.Arg)
		case buildsys.Shared:
			args = append(args, "/LD")
		case buildsys.LibDir:
			link = append(link, "/LIBPATH:"+opt.Value)
		case buildsys.LinkLib:
			// the import library of a DLL shares its base name
			link = append(link, opt.Value+".lib")
		}
	}
	if out := o.OutputPath(); out != "" {
		link = append(link, "/OUT:"+out)
	}
	if len(link) > 0 {
		args = append(args, "/link")
		args = append(args, link...)
	}
	return args
}

func (d *Dialect) LibraryFile(name string) string {
	return name + ".dll"
}

func (d *Dialect) ExecutableFile(name string) string {
	return name + ".exe"
}
