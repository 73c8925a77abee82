package modules

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directory layout of a project:
//
//	root/
//	  module.toml
//	  modules/
//	    <name>/          # one directory per dependency, any depth of the graph
//	      module.toml
//	    lib/             # shared output directory for built dependencies
const (
	ModulesDirName = "modules"
	LibDirName     = "lib"
)

// Layout resolves module locations below a project root.
type Layout struct {
	Root string
}

// NewLayout returns the layout of the project rooted at root, made absolute.
func NewLayout(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: abs}, nil
}

// ModulesDir returns root/modules.
func (l Layout) ModulesDir() string {
	return filepath.Join(l.Root, ModulesDirName)
}

// LibDir returns the shared output directory root/modules/lib.
func (l Layout) LibDir() string {
	return filepath.Join(l.Root, ModulesDirName, LibDirName)
}

// DirOf returns the location of the dependency name. Every dependency
// resolves below the root, whichever module declares it.
func (l Layout) DirOf(name string) (string, error) {
	if name == LibDirName {
		return "", fmt.Errorf("module name %q is reserved for the shared output directory", name)
	}
	return filepath.Join(l.ModulesDir(), name), nil
}

// EnsureLibDir creates the shared output directory. An existing directory
// is not an error.
func (l Layout) EnsureLibDir() error {
	return os.MkdirAll(l.LibDir(), 0o755)
}
