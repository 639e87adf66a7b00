// Package source holds the accumulated program of a REPL session: one File
// per module, each an ordered list of accepted Inputs.
package source

import (
	"fmt"
	"strings"

	"github.com/funvibe/gorepl/internal/config"
)

// FileType decides how a module's inputs are turned into Go source.
type FileType int

const (
	// Script modules hold statements; they are wrapped in a synthesized
	// entry function.
	Script FileType = iota
	// Source modules hold top-level declarations, including their own
	// entry function, and are emitted untouched.
	Source
)

func (t FileType) String() string {
	if t == Source {
		return "source"
	}
	return "script"
}

// Dependency is an import the generated program needs.
type Dependency struct {
	// Name is the import path.
	Name string
	// Spec is the module version. Empty leaves the module unpinned.
	Spec string
	// Module is the module that provides Name when it differs from it.
	Module string
	// Decl is the import declaration inserted verbatim.
	Decl string
}

// Statement is one statement of a Script input.
type Statement struct {
	// Text is the statement source.
	Text string
	// Expr marks a bare expression whose value can be shown.
	Expr bool
	// Call marks a bare call expression; calls may have no value.
	Call bool
	// Void is set once the toolchain reported that the call has no value.
	Void bool
	// Value marks a call that always has a value: a value-returning
	// builtin such as len, or a conversion to a predeclared or literal type.
	Value bool
	// Decls are the variable names the statement declares.
	Decls []string
}

// Input is one turn's accepted contribution to a module.
type Input struct {
	Items []string
	Stmts []Statement
	Deps  []Dependency
}

// ModulePath returns the module that provides the import.
func (d Dependency) ModulePath() string {
	if d.Module != "" {
		return d.Module
	}
	return d.Name
}

// Std reports whether the import belongs to the standard library.
func (d Dependency) Std() bool {
	first, _, _ := strings.Cut(d.Name, "/")
	return !strings.Contains(first, ".")
}

// HasStmts reports whether executing the module is needed for this input.
func (in Input) HasStmts() bool {
	return len(in.Stmts) > 0
}

// Tail returns the trailing expression statement, if any.
func (in Input) Tail() (Statement, bool) {
	if len(in.Stmts) == 0 {
		return Statement{}, false
	}
	last := in.Stmts[len(in.Stmts)-1]
	return last, last.Expr
}

// File is a logical compilation unit.
type File struct {
	ModPath  string
	Type     FileType
	Contents []Input
}

// NewFile returns an empty module.
func NewFile(modPath string, typ FileType) *File {
	return &File{ModPath: modPath, Type: typ}
}

// Append adds an input. It performs no validation.
func (f *File) Append(in Input) {
	f.Contents = append(f.Contents, in)
}

// Rollback drops the latest input. It is a no-op on an empty file.
func (f *File) Rollback() {
	if len(f.Contents) == 0 {
		return
	}
	f.Contents[len(f.Contents)-1] = Input{}
	f.Contents = f.Contents[:len(f.Contents)-1]
}

// Last returns a pointer to the latest input, or nil.
func (f *File) Last() *Input {
	if len(f.Contents) == 0 {
		return nil
	}
	return &f.Contents[len(f.Contents)-1]
}

// EntryName returns the exported entry symbol of the module.
func (f *File) EntryName() string {
	return EntryName(f.ModPath)
}

// EntryName derives the entry symbol from a module path: "lib/foo-bar"
// becomes "Eval_lib_foo_bar".
func EntryName(modPath string) string {
	var b strings.Builder
	b.WriteString(config.EntryPrefix)
	for _, r := range modPath {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ValidateModPath rejects module paths that cannot name a module.
func ValidateModPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty module path")
	}
	if strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") || strings.Contains(p, "//") {
		return fmt.Errorf("invalid module path %q", p)
	}
	return nil
}
