package modules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/goplus/cpm/internal/ctxlog"
	"github.com/goplus/cpm/pkgs/manifest"
)

// Module is a module directory together with its manifest.
type Module struct {
	*manifest.Manifest

	Dir  string // absolute module directory
	File string // manifest file the module was loaded from
}

// Name returns the project name declared by the manifest.
func (m *Module) Name() string {
	return m.Project.Name
}

// Load reads and validates the manifest of the module in dir. A directory
// without module.toml or module.hcl yields a *manifest.NotFoundError;
// structural problems, including listed sources that do not exist, yield a
// *manifest.ParseError naming the manifest file.
func Load(ctx context.Context, dir string) (*Module, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	file, parse, err := findManifest(dir)
	if err != nil {
		return nil, err
	}
	m, err := parse(file, nil)
	if err != nil {
		return nil, err
	}
	if err := checkSources(dir, file, m.Sources.Source); err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx)
	for _, name := range m.DependencyNames() {
		if ver := m.Dependencies[name]; !isSemver(ver) {
			// constraints are carried, never resolved
			logger.Warn("dependency version is not a semantic version",
				ctxlog.Module(m.Project.Name), ctxlog.Dependency(name), ctxlog.Version(ver))
		}
	}

	return &Module{
		Manifest: m,
		Dir:      dir,
		File:     file,
	}, nil
}

type parseFunc func(file string, data []byte) (*manifest.Manifest, error)

// findManifest picks module.toml, then module.hcl.
func findManifest(dir string) (string, parseFunc, error) {
	candidates := []struct {
		name  string
		parse parseFunc
	}{
		{manifest.FileName, manifest.Parse},
		{manifest.HCLFileName, manifest.ParseHCL},
	}
	for _, c := range candidates {
		file := filepath.Join(dir, c.name)
		if _, err := os.Stat(file); err == nil {
			return file, c.parse, nil
		}
	}
	return "", nil, &manifest.NotFoundError{Path: filepath.Join(dir, manifest.FileName)}
}

func checkSources(dir, file string, sources []string) error {
	for _, src := range sources {
		if filepath.IsAbs(src) {
			return &manifest.ParseError{Path: file, Field: "sources.source", Err: fmt.Errorf("%s: path must be relative to the module directory", src)}
		}
		fi, err := os.Stat(filepath.Join(dir, src))
		if err != nil {
			return &manifest.ParseError{Path: file, Field: "sources.source", Err: fmt.Errorf("%s: %w", src, err)}
		}
		if !fi.Mode().IsRegular() {
			return &manifest.ParseError{Path: file, Field: "sources.source", Err: fmt.Errorf("%s: not a regular file", src)}
		}
	}
	return nil
}

// isSemver accepts versions with or without the leading "v".
func isSemver(ver string) bool {
	if ver == "" {
		return false
	}
	if !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return semver.IsValid(ver)
}
