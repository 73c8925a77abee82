// Package manifest defines the declarative description of a cpm module:
// its identity, dependencies, compiler flags and sources.
package manifest

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

const (
	// FileName is the TOML manifest looked up in every module directory.
	FileName = "module.toml"
	// HCLFileName is the HCL spelling of the same manifest.
	HCLFileName = "module.hcl"
)

// ModuleType selects the kind of artifact a module produces.
type ModuleType int

const (
	Unknown ModuleType = iota
	Executable
	Library
)

func (t ModuleType) String() string {
	switch t {
	case Executable:
		return "Executable"
	case Library:
		return "Library"
	}
	return "Unknown"
}

// ParseModuleType parses a module type as written in a manifest.
// Matching is case-insensitive.
func ParseModuleType(s string) (ModuleType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "executable", "exe", "bin":
		return Executable, nil
	case "library", "lib":
		return Library, nil
	}
	return Unknown, fmt.Errorf("unknown module type %q", s)
}

// Manifest is the in-memory form of a module manifest.
type Manifest struct {
	Project Project
	// Dependencies maps a dependency name to its version constraint.
	// Constraints are carried as-is; nothing resolves them.
	Dependencies map[string]string
	// Flags maps a compiler flag to its value. An empty value denotes a
	// flag without argument.
	Flags   map[string]string
	Sources Sources
}

// Project holds the identity of a module.
type Project struct {
	Name       string
	Version    string
	ModuleType ModuleType
}

// Sources lists the files of a module, relative to the module directory.
type Sources struct {
	Source []string
	Header []string
}

// DependencyNames returns the declared dependency names in sorted order.
func (m *Manifest) DependencyNames() []string {
	return sortedKeys(m.Dependencies)
}

// FlagNames returns the declared flag names in sorted order.
func (m *Manifest) FlagNames() []string {
	return sortedKeys(m.Flags)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// rawManifest mirrors the on-disk layout. Tables are pointers so that a
// missing section can be told apart from an empty one.
type rawManifest struct {
	Project      *rawProject       `toml:"project" hcl:"project,block"`
	Dependencies map[string]string `toml:"dependencies" hcl:"dependencies,optional"`
	Flags        map[string]string `toml:"flags" hcl:"flags,optional"`
	Sources      *rawSources       `toml:"sources" hcl:"sources,block"`
}

type rawProject struct {
	Name       string `toml:"name" hcl:"name,optional"`
	Version    string `toml:"version" hcl:"version,optional"`
	ModuleType string `toml:"module_type" hcl:"module_type,optional"`
}

type rawSources struct {
	Source []string `toml:"source" hcl:"source,optional"`
	Header []string `toml:"header" hcl:"header,optional"`
}

// convert validates the decoded structure and builds a Manifest.
func (r *rawManifest) convert(file string) (*Manifest, error) {
	if r.Project == nil {
		return nil, fieldError(file, "project", "section missing")
	}
	if r.Project.Name == "" {
		return nil, fieldError(file, "project.name", "must not be empty")
	}
	if !validName(r.Project.Name) {
		return nil, fieldError(file, "project.name", fmt.Sprintf("%q is not a valid module name", r.Project.Name))
	}
	typ, err := ParseModuleType(r.Project.ModuleType)
	if err != nil {
		return nil, &ParseError{Path: file, Field: "project.module_type", Err: err}
	}
	if r.Sources == nil {
		return nil, fieldError(file, "sources", "section missing")
	}
	if len(r.Sources.Source) == 0 {
		return nil, fieldError(file, "sources.source", "no source files listed")
	}
	for _, src := range r.Sources.Source {
		if strings.TrimSpace(src) == "" {
			return nil, fieldError(file, "sources.source", "empty path")
		}
	}
	for name := range r.Dependencies {
		if !validName(name) {
			return nil, fieldError(file, "dependencies."+name, "not a valid module name")
		}
		if name == r.Project.Name {
			return nil, fieldError(file, "dependencies."+name, "module depends on itself")
		}
	}
	for flag := range r.Flags {
		if strings.TrimSpace(flag) == "" {
			return nil, fieldError(file, "flags", "empty flag name")
		}
	}

	m := &Manifest{
		Project: Project{
			Name:       r.Project.Name,
			Version:    r.Project.Version,
			ModuleType: typ,
		},
		Dependencies: r.Dependencies,
		Flags:        r.Flags,
		Sources: Sources{
			Source: r.Sources.Source,
			Header: r.Sources.Header,
		},
	}
	if m.Dependencies == nil {
		m.Dependencies = map[string]string{}
	}
	if m.Flags == nil {
		m.Flags = map[string]string{}
	}
	return m, nil
}

// validName reports whether name can be used as a directory and artifact
// name: no separators, no relative elements.
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\:`)
}

func readFile(file string, data []byte) ([]byte, error) {
	if data != nil {
		return data, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{Path: file}
		}
		return nil, &ParseError{Path: file, Err: err}
	}
	return data, nil
}
