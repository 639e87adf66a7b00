package source

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"golang.org/x/mod/semver"
	"golang.org/x/tools/go/ast/astutil"
)

// ErrIncomplete is returned by Parse when the text is a valid prefix that
// needs more lines, such as an unclosed block.
var ErrIncomplete = errors.New("incomplete input")

const (
	filePrefix = "package p\n"
	stmtPrefix = "package p\nfunc _() {\n"
	stmtSuffix = "\n}\n"
)

// Parse classifies one turn of text for a module of the given type.
//
// Leading import declarations become dependencies; an import may pin its
// module version with a trailing comment (import "github.com/google/uuid" // v1.6.0).
// For Script modules, func and type declarations become items and everything
// else becomes statements. For Source modules the remaining text must be
// top-level declarations and is kept as items.
func Parse(text string, typ FileType) (Input, error) {
	var in Input
	if strings.TrimSpace(text) == "" {
		return in, nil
	}

	deps, rest, err := splitImports(text)
	if err != nil {
		return in, err
	}
	in.Deps = deps
	if strings.TrimSpace(rest) == "" {
		return in, nil
	}

	decl := startsWithDecl(rest)
	fileErr := parseDecls(rest, typ, &in)
	if fileErr == nil {
		return in, nil
	}
	closed := overclosed(rest)
	fileEnd := len(filePrefix) + len(strings.TrimRight(rest, " \t\n"))
	if typ == Source {
		if !closed && incomplete(fileErr, fileEnd) {
			return Input{}, ErrIncomplete
		}
		return Input{}, syntaxError(fileErr, filePrefix)
	}

	stmtErr := parseStmts(rest, &in)
	if stmtErr == nil {
		return in, nil
	}
	if decl {
		if !closed && incomplete(fileErr, fileEnd) {
			return Input{}, ErrIncomplete
		}
		return Input{}, syntaxError(fileErr, filePrefix)
	}
	if !closed && incomplete(stmtErr, len(stmtPrefix)+len(strings.TrimRight(rest, " \t\n"))) {
		return Input{}, ErrIncomplete
	}
	return Input{}, syntaxError(stmtErr, stmtPrefix)
}

// startsWithDecl reports whether text opens with a top-level declaration
// keyword. A function literal ("func(" without a space) is an expression.
func startsWithDecl(text string) bool {
	text = strings.TrimSpace(text)
	for _, kw := range []string{"func", "type", "var", "const"} {
		if !strings.HasPrefix(text, kw) {
			continue
		}
		rest := strings.TrimLeft(text[len(kw):], " \t")
		if rest == "" || text[len(kw)] != ' ' && text[len(kw)] != '\t' && text[len(kw)] != '(' {
			continue
		}
		return !(kw == "func" && text[len(kw)] == '(')
	}
	return false
}

// splitImports parses the leading import declarations of text and returns
// them with the remaining text.
func splitImports(text string) ([]Dependency, string, error) {
	src := filePrefix + text
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, parser.ImportsOnly|parser.ParseComments)
	if err != nil || len(f.Imports) == 0 {
		// Syntax problems are reported by the full parse.
		return nil, text, nil
	}

	var deps []Dependency
	end := 0
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.IMPORT {
			break
		}
		for _, spec := range gen.Specs {
			is := spec.(*ast.ImportSpec)
			dep, err := dependency(fset, src, is)
			if err != nil {
				return nil, "", err
			}
			deps = append(deps, dep)
		}
		end = fset.Position(gen.End()).Offset
	}

	rest := src[end:]
	// Drop the remainder of the last import line (a version comment).
	if i := strings.IndexByte(rest, '\n'); i >= 0 && strings.HasPrefix(strings.TrimSpace(rest[:i]), "//") {
		rest = rest[i+1:]
	} else if strings.HasPrefix(strings.TrimSpace(rest), "//") && !strings.Contains(rest, "\n") {
		rest = ""
	}
	return deps, rest, nil
}

func dependency(fset *token.FileSet, src string, is *ast.ImportSpec) (Dependency, error) {
	path := strings.Trim(is.Path.Value, "`\"")
	if path == "" {
		return Dependency{}, fmt.Errorf("empty import path")
	}

	decl := "import " + src[fset.Position(is.Pos()).Offset:fset.Position(is.Path.End()).Offset]

	dep := Dependency{Name: path, Decl: decl}
	if is.Comment != nil {
		dep.Module, dep.Spec = versionComment(strings.TrimSpace(is.Comment.Text()))
	}
	return dep, nil
}

// versionComment reads "v1.2.3" or "module/path@v1.2.3".
func versionComment(c string) (module, version string) {
	if i := strings.LastIndexByte(c, '@'); i > 0 {
		module, c = c[:i], c[i+1:]
	}
	if !semver.IsValid(c) {
		return "", ""
	}
	return module, c
}

func parseDecls(text string, typ FileType, in *Input) error {
	src := filePrefix + text
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, 0)
	if err != nil {
		return err
	}

	var items []string
	var stmts []Statement
	for _, decl := range f.Decls {
		snippet := slice(fset, src, decl)
		switch d := decl.(type) {
		case *ast.FuncDecl:
			items = append(items, snippet)
		case *ast.GenDecl:
			switch {
			case d.Tok == token.IMPORT:
				return fmt.Errorf("imports must come before other declarations")
			case d.Tok == token.TYPE || typ == Source:
				items = append(items, snippet)
			default:
				stmts = append(stmts, Statement{Text: snippet, Decls: declaredVars(d)})
			}
		}
	}
	in.Items = items
	in.Stmts = stmts
	return nil
}

func parseStmts(text string, in *Input) error {
	src := stmtPrefix + text + stmtSuffix
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "", src, 0)
	if err != nil {
		return err
	}

	var body *ast.BlockStmt
	for _, decl := range f.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok {
			body = fn.Body
		}
	}
	if body == nil {
		return fmt.Errorf("no statements")
	}

	stmts := make([]Statement, 0, len(body.List))
	for _, s := range body.List {
		if _, ok := s.(*ast.EmptyStmt); ok {
			continue
		}
		st := Statement{Text: slice(fset, src, s)}
		switch s := s.(type) {
		case *ast.ExprStmt:
			st.Expr = true
			if call, ok := astutil.Unparen(s.X).(*ast.CallExpr); ok {
				st.Call = true
				st.Value = hasValue(call)
			}
		case *ast.AssignStmt:
			if s.Tok == token.DEFINE {
				st.Decls = identNames(s.Lhs)
			}
		case *ast.DeclStmt:
			if gen, ok := s.Decl.(*ast.GenDecl); ok {
				st.Decls = declaredVars(gen)
			}
		}
		stmts = append(stmts, st)
	}
	in.Stmts = stmts
	return nil
}

// valueBuiltins are the predeclared functions and types whose calls always
// yield a value.
var valueBuiltins = map[string]bool{
	"append": true, "cap": true, "complex": true, "imag": true, "len": true,
	"make": true, "max": true, "min": true, "new": true, "real": true,
	"any": true, "bool": true, "byte": true, "complex64": true, "complex128": true,
	"error": true, "float32": true, "float64": true, "int": true, "int8": true,
	"int16": true, "int32": true, "int64": true, "rune": true, "string": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true,
}

// hasValue reports whether call is a builtin with a result or a conversion,
// which Go rejects as a bare statement.
func hasValue(call *ast.CallExpr) bool {
	switch fn := astutil.Unparen(call.Fun).(type) {
	case *ast.Ident:
		return valueBuiltins[fn.Name]
	case *ast.ArrayType, *ast.MapType, *ast.ChanType, *ast.FuncType,
		*ast.InterfaceType, *ast.StructType, *ast.StarExpr:
		return true
	}
	return false
}

func slice(fset *token.FileSet, src string, n ast.Node) string {
	return src[fset.Position(n.Pos()).Offset:fset.Position(n.End()).Offset]
}

func identNames(exprs []ast.Expr) []string {
	var names []string
	for _, e := range exprs {
		if id, ok := e.(*ast.Ident); ok && id.Name != "_" {
			names = append(names, id.Name)
		}
	}
	return names
}

func declaredVars(gen *ast.GenDecl) []string {
	if gen.Tok != token.VAR {
		return nil
	}
	var names []string
	for _, spec := range gen.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, n := range vs.Names {
			if n.Name != "_" {
				names = append(names, n.Name)
			}
		}
	}
	return names
}

// incomplete reports whether the parser ran out of input: the first error
// lies at or past end, the offset where the user's text stops, or it is an
// unterminated raw string or comment. Errors inside the text are real
// syntax errors even when the parser also hits EOF afterwards.
func incomplete(err error, end int) bool {
	var list scanner.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return false
	}
	first := list[0]
	switch {
	case strings.Contains(first.Msg, "raw string literal not terminated"),
		strings.Contains(first.Msg, "comment not terminated"):
		return true
	}
	return first.Pos.Offset >= end
}

// overclosed reports whether text closes a bracket it never opened. Such
// text errs at the wrapper's closing brace, which would otherwise look like
// a request for more input.
func overclosed(text string) bool {
	fset := token.NewFileSet()
	file := fset.AddFile("", fset.Base(), len(text))
	var sc scanner.Scanner
	sc.Init(file, []byte(text), nil, 0)

	depth := 0
	for {
		_, tok, _ := sc.Scan()
		switch tok {
		case token.EOF:
			return false
		case token.LBRACE, token.LPAREN, token.LBRACK:
			depth++
		case token.RBRACE, token.RPAREN, token.RBRACK:
			depth--
			if depth < 0 {
				return true
			}
		}
	}
}

// syntaxError rewrites positions so they refer to the user's text.
func syntaxError(err error, prefix string) error {
	var list scanner.ErrorList
	if !errors.As(err, &list) || len(list) == 0 {
		return err
	}
	shift := strings.Count(prefix, "\n")
	e := list[0]
	line := e.Pos.Line - shift
	if line < 1 {
		line = 1
	}
	return fmt.Errorf("syntax error at %d:%d: %s", line, e.Pos.Column, e.Msg)
}
