// Package config loads the settings of a build: the toolchain, the degree
// of parallelism and the output directory.
//
// Settings are layered, later layers winning:
//
//  1. built-in defaults
//  2. <root>/cpm.yaml
//  3. <root>/.env (never written into the process environment)
//  4. CPM_* process environment variables
//  5. command-line flags, applied by the caller
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goplus/cpm/internal/toolchain"
)

const (
	FileName    = "cpm.yaml"
	EnvFileName = ".env"
)

// Environment variables consulted by Load.
const (
	EnvToolchain = "CPM_TOOLCHAIN"
	EnvCompiler  = "CPM_CC"
	EnvTarget    = "CPM_TARGET"
	EnvOptLevel  = "CPM_OPT_LEVEL"
	EnvJobs      = "CPM_JOBS"
	EnvOutDir    = "CPM_OUT_DIR"
)

// Config represents the build configuration.
type Config struct {
	Toolchain ToolchainConfig `yaml:"toolchain"`
	Jobs      int             `yaml:"jobs"`    // 0 or 1 builds sequentially
	OutDir    string          `yaml:"out_dir"` // executable output, defaults to the root
}

// ToolchainConfig represents the compiler selection.
type ToolchainConfig struct {
	Kind     string            `yaml:"kind"` // auto, gcc, clang, msvc
	Compiler string            `yaml:"compiler,omitempty"`
	Target   string            `yaml:"target,omitempty"`
	OptLevel string            `yaml:"opt_level,omitempty"`
	Env      map[string]string `yaml:"env,omitempty"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Toolchain: ToolchainConfig{Kind: "auto"},
		Jobs:      1,
	}
}

// Load reads the configuration of the project at root using the process
// environment.
func Load(root string) (*Config, error) {
	return LoadWith(root, os.LookupEnv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(root string, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := Default()

	file := filepath.Join(root, FileName)
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}

	dotenv := map[string]string{}
	envFile := filepath.Join(root, EnvFileName)
	if _, err := os.Stat(envFile); err == nil {
		if dotenv, err = godotenv.Read(envFile); err != nil {
			return nil, fmt.Errorf("%s: %w", envFile, err)
		}
	}
	lookup := func(key string) (string, bool) {
		if v, ok := lookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}

	if v, ok := lookup(EnvToolchain); ok {
		cfg.Toolchain.Kind = v
	}
	if v, ok := lookup(EnvCompiler); ok {
		cfg.Toolchain.Compiler = v
	}
	if v, ok := lookup(EnvTarget); ok {
		cfg.Toolchain.Target = v
	}
	if v, ok := lookup(EnvOptLevel); ok {
		cfg.Toolchain.OptLevel = v
	}
	if v, ok := lookup(EnvOutDir); ok {
		cfg.OutDir = v
	}
	if v, ok := lookup(EnvJobs); ok {
		jobs, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvJobs, err)
		}
		cfg.Jobs = jobs
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	tc, err := c.ToolchainConfig()
	if err != nil {
		return err
	}
	return tc.Validate()
}

// ToolchainConfig converts the toolchain section into the structure handed
// to the toolchain package.
func (c *Config) ToolchainConfig() (toolchain.Config, error) {
	kind, err := toolchain.ParseKind(c.Toolchain.Kind)
	if err != nil {
		return toolchain.Config{}, err
	}
	return toolchain.Config{
		Kind:     kind,
		Compiler: c.Toolchain.Compiler,
		Target:   c.Toolchain.Target,
		OptLevel: c.Toolchain.OptLevel,
		Env:      c.Toolchain.Env,
	}, nil
}
