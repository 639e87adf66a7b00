// Package config holds gorepl's constants and its yaml session configuration.
//
// A session is configured by an optional gorepl.yaml found in the working
// directory or any of its parents:
//
//	compile_dir: /tmp/gorepl-work
//	redirect: true
//	retain: 2
//	linking:
//	  data_type: "*state.App"
//	  external:
//	    - path: example.com/app
//	      local: ../app
//	      import: 'import state "example.com/app/state"'
//	deps:
//	  - path: github.com/google/uuid
//	    version: v1.6.0
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/funvibe/gorepl/pkg/linking"
)

// Config represents gorepl.yaml.
type Config struct {
	// CompileDir is the compilation directory. Empty creates a fresh
	// directory under the system temp dir for every session.
	CompileDir string `yaml:"compile_dir,omitempty"`

	// Go is the toolchain command. Defaults to "go".
	Go string `yaml:"go,omitempty"`

	// Crate is the module name of the generated program.
	Crate string `yaml:"crate,omitempty"`

	// Format runs the best-effort formatter before each build.
	// Defaults to true.
	Format *bool `yaml:"format,omitempty"`

	// Redirect captures the output of evaluated code and forwards it to the
	// terminal. Defaults to true.
	Redirect *bool `yaml:"redirect,omitempty"`

	// Retain is how many artifact generations stay on disk. 0 keeps all.
	Retain *int `yaml:"retain,omitempty"`

	// Journal records every turn in <compile_dir>/journal.db.
	Journal bool `yaml:"journal,omitempty"`

	// Verbose enables diagnostic logging on stderr.
	Verbose bool `yaml:"verbose,omitempty"`

	// HistoryFile is the line editor history file, relative to $HOME.
	HistoryFile string `yaml:"history_file,omitempty"`

	// Linking describes the host data passed to evaluated code.
	Linking Linking `yaml:"linking,omitempty"`

	// Deps are dependencies declared before the first turn.
	Deps []Dep `yaml:"deps,omitempty"`
}

// Linking mirrors linking.Config in yaml form.
type Linking struct {
	DataType string     `yaml:"data_type,omitempty"`
	External []External `yaml:"external,omitempty"`
}

// External is a host module linked into the generated program.
type External struct {
	Path    string `yaml:"path"`
	Version string `yaml:"version,omitempty"`
	Local   string `yaml:"local,omitempty"`
	Import  string `yaml:"import,omitempty"`
}

// Dep is a dependency available to every turn.
type Dep struct {
	// Path is the Go import path.
	Path string `yaml:"path"`

	// Version pins the module version. Empty or "latest" leaves it unpinned.
	Version string `yaml:"version,omitempty"`

	// As is an optional import alias.
	As string `yaml:"as,omitempty"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads and parses a gorepl.yaml file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return ParseConfig(data, path)
}

// ParseConfig parses gorepl.yaml content from bytes.
// The path argument is used for error messages and to resolve relative
// local paths.
func ParseConfig(data []byte, path string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.validate(path); err != nil {
		return nil, err
	}
	cfg.setDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	return &cfg, nil
}

// FindConfig searches for gorepl.yaml starting from dir and walking up to
// parent directories. It returns an empty path and nil error when there is
// none.
func FindConfig(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	for {
		for _, name := range ConfigFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (c *Config) validate(path string) error {
	if c.Retain != nil && *c.Retain < 0 {
		return fmt.Errorf("%s: retain must not be negative", path)
	}

	seen := make(map[string]bool)
	for i, dep := range c.Deps {
		if dep.Path == "" {
			return fmt.Errorf("%s: deps[%d]: path is required", path, i)
		}
		if !validVersion(dep.Version) {
			return fmt.Errorf("%s: deps[%d] (%s): invalid version %q", path, i, dep.Path, dep.Version)
		}
		if seen[dep.Path] {
			return fmt.Errorf("%s: deps[%d]: %s declared twice", path, i, dep.Path)
		}
		seen[dep.Path] = true
	}

	for i, ext := range c.Linking.External {
		if ext.Path == "" {
			return fmt.Errorf("%s: linking.external[%d]: path is required", path, i)
		}
		if !validVersion(ext.Version) {
			return fmt.Errorf("%s: linking.external[%d] (%s): invalid version %q", path, i, ext.Path, ext.Version)
		}
	}

	if len(c.Linking.External) > 0 && c.Linking.DataType == "" {
		return fmt.Errorf("%s: linking.external requires linking.data_type", path)
	}
	return nil
}

func validVersion(v string) bool {
	return v == "" || v == "latest" || semver.IsValid(v)
}

func (c *Config) setDefaults() {
	if c.Go == "" {
		c.Go = DefaultGoCommand
	}
	if c.Crate == "" {
		c.Crate = linking.DefaultCrate
	}
	if c.Format == nil {
		c.Format = boolPtr(true)
	}
	if c.Redirect == nil {
		c.Redirect = boolPtr(true)
	}
	if c.Retain == nil {
		n := DefaultRetain
		c.Retain = &n
	}
	if c.HistoryFile == "" {
		c.HistoryFile = DefaultHistoryFile
	}
	for i := range c.Deps {
		if c.Deps[i].Version == "latest" {
			c.Deps[i].Version = ""
		}
	}
	for i := range c.Linking.External {
		if c.Linking.External[i].Version == "latest" {
			c.Linking.External[i].Version = ""
		}
	}
}

// resolvePaths makes local paths absolute relative to the config file.
func (c *Config) resolvePaths(configDir string) {
	for i, ext := range c.Linking.External {
		if ext.Local != "" && !filepath.IsAbs(ext.Local) {
			c.Linking.External[i].Local = filepath.Join(configDir, ext.Local)
		}
	}
	if c.CompileDir != "" && !filepath.IsAbs(c.CompileDir) {
		c.CompileDir = filepath.Join(configDir, c.CompileDir)
	}
}

// LinkingConfig converts the yaml linking section.
func (c *Config) LinkingConfig() linking.Config {
	lc := linking.Config{
		Crate:    c.Crate,
		DataType: c.Linking.DataType,
	}
	for _, ext := range c.Linking.External {
		lc.External = append(lc.External, linking.External{
			Path:    ext.Path,
			Version: ext.Version,
			Local:   ext.Local,
			Import:  ext.Import,
		})
	}
	return lc
}

// ImportDecl renders the dependency as a Go import declaration.
func (d Dep) ImportDecl() string {
	if d.As != "" {
		return fmt.Sprintf("import %s %q", d.As, d.Path)
	}
	return fmt.Sprintf("import %q", d.Path)
}

// HistoryPath returns the absolute history file path, or "" when $HOME is
// unknown.
func (c *Config) HistoryPath() string {
	if filepath.IsAbs(c.HistoryFile) {
		return c.HistoryFile
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, c.HistoryFile)
}

func boolPtr(b bool) *bool { return &b }
