// Package linking describes how a host application hands its own data to the
// code compiled and loaded by the REPL.
//
// The generated program exposes one entry function per module. The REPL loads
// it from the freshly built plugin and calls it with whatever the host
// supplies through a Supplier: a value it gives away (Own), a pointer it
// promises not to mutate while the call runs (Share), or a pointer guarded by
// a mutex (Lock).
package linking

import (
	"fmt"
	"strings"
)

// DefaultCrate is the module name given to the generated program.
const DefaultCrate = "gorepl.mem-code"

// EntryFunc is the signature of every entry point exported by a compiled
// artifact.
type EntryFunc func(app any) (string, error)

// Loader resolves an entry point inside a compiled artifact.
type Loader interface {
	Load(path, symbol string) (EntryFunc, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path, symbol string) (EntryFunc, error)

// Load calls f(path, symbol).
func (f LoaderFunc) Load(path, symbol string) (EntryFunc, error) {
	return f(path, symbol)
}

// Config controls how the generated program is linked against the host.
type Config struct {
	// Crate is the module name written to the generated go.mod.
	Crate string

	// DataType is the Go type the entry function asserts the supplied
	// context to (e.g. "*state.App"). Empty leaves it as any.
	DataType string

	// External lists host modules the generated program must require,
	// usually the module that declares DataType.
	External []External
}

// External is a module the generated program links against.
type External struct {
	// Path is the Go module path.
	Path string

	// Version is the required version. Empty means v0.0.0 when Local is
	// set and "resolve on build" otherwise.
	Version string

	// Local is a directory holding the module's source. When set, a
	// replace directive points the generated program at it so host and
	// plugin share one copy of the package.
	Local string

	// Import is the import declaration placed in the generated source,
	// e.g. `import state "example.com/app/state"`. Empty imports Path.
	Import string
}

// CrateName returns the configured crate name or DefaultCrate.
func (c Config) CrateName() string {
	if c.Crate == "" {
		return DefaultCrate
	}
	return c.Crate
}

// ImportDecls returns the import declarations required by External.
func (c Config) ImportDecls() []string {
	if c.DataType == "" {
		return nil
	}
	var decls []string
	for _, ext := range c.External {
		if ext.Import != "" {
			decls = append(decls, ext.Import)
			continue
		}
		decls = append(decls, fmt.Sprintf("import %q", ext.Path))
	}
	return decls
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	for i, ext := range c.External {
		if ext.Path == "" {
			return fmt.Errorf("linking: external[%d]: path is required", i)
		}
		if ext.Import != "" && !strings.HasPrefix(strings.TrimSpace(ext.Import), "import ") {
			return fmt.Errorf("linking: external[%d] (%s): import must be an import declaration", i, ext.Path)
		}
	}
	return nil
}
