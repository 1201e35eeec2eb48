package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/speedctl/internal/brand"
)

// LoadResult contains the loaded config and metadata about the load.
type LoadResult struct {
	Config   *Config
	Version  SchemaVersion
	Warnings []string
}

// LoadFile loads an HCL config file and applies defaults.
func LoadFile(path string) (*Config, error) {
	result, err := LoadFileWithResult(path)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadFileWithResult is LoadFile with load metadata.
func LoadFileWithResult(path string) (*LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadHCLWithResult(data, path)
}

// LoadOrDefault loads path, returning DefaultConfig when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// LoadHCL loads config from HCL bytes.
func LoadHCL(data []byte, filename string) (*Config, error) {
	result, err := LoadHCLWithResult(data, filename)
	if err != nil {
		return nil, err
	}
	return result.Config, nil
}

// LoadHCLWithResult parses HCL, checks the schema version, decodes with the
// variable context and applies defaults.
func LoadHCLWithResult(data []byte, filename string) (*LoadResult, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL parse error: %s", diags.Error())
	}

	// First, extract just the version to determine whether we can read it
	var versionProbe struct {
		SchemaVersion string   `hcl:"schema_version,optional"`
		Remain        hcl.Body `hcl:",remain"`
	}
	_ = gohcl.DecodeBody(file.Body, nil, &versionProbe)

	version, err := ParseVersion(versionProbe.SchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid schema version: %w", err)
	}
	if !IsSupportedVersion(version) {
		return nil, fmt.Errorf("unsupported config schema version %s (supported: %v)",
			version, SupportedVersions)
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, EvalContext(), &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("HCL decode error: %s", diags.Error())
	}

	var warnings []string
	seen := make(map[string]bool, len(cfg.Actions))
	for _, a := range cfg.Actions {
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate action %q", a.Name)
		}
		seen[a.Name] = true
		if !strings.HasPrefix(a.Name, "speedtest ") {
			warnings = append(warnings, fmt.Sprintf("action %q is not reachable from any operation", a.Name))
		}
	}

	cfg.ApplyDefaults()

	return &LoadResult{Config: &cfg, Version: version, Warnings: warnings}, nil
}

// EvalContext returns the variables available to config expressions:
// scripts_dir, state_dir, run_dir and env.<NAME>.
func EvalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !hclsyntax.ValidIdentifier(name) {
			continue
		}
		env[name] = cty.StringVal(value)
	}

	return &hcl.EvalContext{Variables: map[string]cty.Value{
		"scripts_dir": cty.StringVal(brand.GetScriptsDir()),
		"state_dir":   cty.StringVal(brand.GetStateDir()),
		"run_dir":     cty.StringVal(brand.GetRunDir()),
		"env":         cty.ObjectVal(env),
	}}
}
