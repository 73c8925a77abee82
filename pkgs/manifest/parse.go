package manifest

import (
	"github.com/BurntSushi/toml"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Parse reads and validates a TOML manifest from either provided data or a
// file path. If data is non-nil, it is used directly and file only names the
// manifest in errors.
func Parse(file string, data []byte) (*Manifest, error) {
	data, err := readFile(file, data)
	if err != nil {
		return nil, err
	}
	var raw rawManifest
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, &ParseError{Path: file, Err: err}
	}
	return raw.convert(file)
}

// ParseHCL is like Parse for the HCL form of the manifest:
//
//	project {
//	  name        = "app"
//	  version     = "0.1.0"
//	  module_type = "Executable"
//	}
//	dependencies = { mathlib = "1.0.0" }
//	sources {
//	  source = ["main.cpp"]
//	}
func ParseHCL(file string, data []byte) (*Manifest, error) {
	data, err := readFile(file, data)
	if err != nil {
		return nil, err
	}
	var raw rawManifest
	// hclsimple selects the syntax from the file suffix.
	if err := hclsimple.Decode(HCLFileName, data, nil, &raw); err != nil {
		return nil, &ParseError{Path: file, Err: err}
	}
	return raw.convert(file)
}
