package compile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/mod/modfile"

	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/internal/source"
	"github.com/funvibe/gorepl/pkg/linking"
)

const (
	showFunc    = "_replShow"
	discardFunc = "_replDiscard"
	appParam    = "appAny"
)

// Option configures BuildCompileDir.
type Option func(*plan)

type plan struct {
	resolved map[string]string
	buildID  string
}

// WithResolved pins unpinned dependencies to versions an earlier build
// resolved them to (module path -> version).
func WithResolved(resolved map[string]string) Option {
	return func(p *plan) { p.resolved = resolved }
}

// WithBuildID sets the generation suffix of the module path. Without it
// BuildCompileDir picks a fresh one.
func WithBuildID(id string) Option {
	return func(p *plan) { p.buildID = id }
}

// NewBuildID returns a fresh generation suffix.
func NewBuildID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ModulePath returns the module path of one build. The plugin runtime keys
// loaded plugins by package path, so every build that is loaded into the
// same process needs its own.
func ModulePath(link linking.Config, buildID string) string {
	if buildID == "" {
		return link.CrateName()
	}
	return link.CrateName() + "/g" + buildID
}

// BuildCompileDir writes the manifest and the entry source for files into
// dir. The directory is regenerated wholesale; nothing from a previous turn
// is patched.
func BuildCompileDir(dir string, files []*source.File, link linking.Config, opts ...Option) error {
	var p plan
	for _, opt := range opts {
		opt(&p)
	}

	if p.buildID == "" {
		p.buildID = NewBuildID()
	}
	files = ordered(files)

	manifest, err := ManifestContents(ModulePath(link, p.buildID), files, link, p.resolved)
	if err != nil {
		return ioError("rendering %s: %v", config.ManifestFile, err)
	}
	if err := writeFile(filepath.Join(dir, config.ManifestFile), manifest); err != nil {
		return err
	}

	main := MainContents(files, link)
	if err := writeFile(EntryPath(dir), []byte(main)); err != nil {
		return err
	}
	return nil
}

// EntryPath returns the path of the generated entry source.
func EntryPath(dir string) string {
	return filepath.Join(dir, config.SourceDir, config.EntrySource)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return ioError("failed creating directory %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ioError("failed writing contents of %s: %v", filepath.Base(path), err)
	}
	return nil
}

// ordered returns files sorted by module path.
func ordered(files []*source.File) []*source.File {
	out := append([]*source.File(nil), files...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ModPath < out[j].ModPath })
	return out
}

// Dependencies returns the dependencies of all files in module order with
// duplicate declarations removed. The same path imported under two names is
// kept twice; the first declaration wins otherwise.
func Dependencies(files []*source.File) []source.Dependency {
	seen := make(map[string]bool)
	var deps []source.Dependency
	for _, f := range ordered(files) {
		for _, in := range f.Contents {
			for _, d := range in.Deps {
				key := d.Decl
				if key == "" {
					key = d.Name
				}
				if seen[key] {
					continue
				}
				seen[key] = true
				deps = append(deps, d)
			}
		}
	}
	return deps
}

// ManifestContents renders go.mod for module. Dependencies with a version become pinned
// requirements; unpinned ones are left for the toolchain to resolve unless
// resolved holds a version for their module.
func ManifestContents(module string, files []*source.File, link linking.Config, resolved map[string]string) ([]byte, error) {
	header := fmt.Sprintf("module %s\n\ngo %s\n", modfile.AutoQuote(module), goVersion())
	f, err := modfile.Parse(config.ManifestFile, []byte(header), nil)
	if err != nil {
		return nil, err
	}

	required := make(map[string]bool)
	require := func(path, version string) error {
		if required[path] {
			return nil
		}
		required[path] = true
		return f.AddRequire(path, version)
	}

	for _, ext := range link.External {
		version := ext.Version
		if version == "" && ext.Local != "" {
			version = "v0.0.0"
		}
		if version != "" {
			if err := require(ext.Path, version); err != nil {
				return nil, fmt.Errorf("require %s: %w", ext.Path, err)
			}
		}
		if ext.Local != "" {
			local, err := filepath.Abs(ext.Local)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", ext.Local, err)
			}
			if err := f.AddReplace(ext.Path, "", local, ""); err != nil {
				return nil, fmt.Errorf("replace %s: %w", ext.Path, err)
			}
		}
	}

	for _, d := range Dependencies(files) {
		if d.Std() {
			continue
		}
		mod, version := d.ModulePath(), d.Spec
		if version == "" {
			mod, version = resolvedFor(d, resolved)
		}
		if version == "" {
			continue
		}
		if err := require(mod, version); err != nil {
			return nil, fmt.Errorf("require %s: %w", mod, err)
		}
	}

	f.Cleanup()
	return f.Format()
}

// resolvedFor finds the resolved module providing d's import path.
func resolvedFor(d source.Dependency, resolved map[string]string) (string, string) {
	best := ""
	for mod := range resolved {
		if (d.Name == mod || strings.HasPrefix(d.Name, mod+"/")) && len(mod) > len(best) {
			best = mod
		}
	}
	if best == "" {
		return "", ""
	}
	return best, resolved[best]
}

var goVersionRE = regexp.MustCompile(`^1\.\d+(\.\d+)?`)

// goVersion returns the go directive matching the running toolchain.
func goVersion() string {
	if v := goVersionRE.FindString(strings.TrimPrefix(runtime.Version(), "go")); v != "" {
		return v
	}
	return "1.22"
}

// MainContents renders the generated entry source.
func MainContents(files []*source.File, link linking.Config) string {
	files = ordered(files)

	var b strings.Builder
	b.WriteString("// Code generated by gorepl. DO NOT EDIT.\n\npackage main\n\n")

	seen := map[string]bool{`import "fmt"`: true}
	b.WriteString("import \"fmt\"\n")
	for _, decl := range link.ImportDecls() {
		if !seen[decl] {
			seen[decl] = true
			b.WriteString(decl + "\n")
		}
	}
	for _, d := range Dependencies(files) {
		if seen[d.Decl] {
			continue
		}
		seen[d.Decl] = true
		b.WriteString(d.Decl + "\n")
	}
	b.WriteString("\n")

	for _, f := range files {
		for _, in := range f.Contents {
			for _, item := range in.Items {
				b.WriteString(item)
				b.WriteString("\n\n")
			}
		}
	}

	for _, f := range files {
		if f.Type == source.Script {
			writeEntry(&b, f, link)
		}
	}

	fmt.Fprintf(&b, `func %s(vs ...any) string {
	s := ""
	for i, v := range vs {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprint(v)
	}
	return s
}

func %s(...any) {}

func main() {}
`, showFunc, discardFunc)
	return b.String()
}

// writeEntry synthesizes the entry function of a Script module.
func writeEntry(b *strings.Builder, f *source.File, link linking.Config) {
	fmt.Fprintf(b, "func %s(%s any) (out string, err error) {\n", f.EntryName(), appParam)
	b.WriteString("\tdefer func() {\n\t\tif r := recover(); r != nil {\n\t\t\terr = fmt.Errorf(\"panic: %v\", r)\n\t\t}\n\t}()\n")
	if link.DataType != "" {
		fmt.Fprintf(b, "\tapp, ok := %s.(%s)\n", appParam, link.DataType)
		fmt.Fprintf(b, "\tif !ok {\n\t\treturn \"\", fmt.Errorf(\"app data is %%T, not %s\", %s)\n\t}\n", link.DataType, appParam)
	} else {
		fmt.Fprintf(b, "\tapp := %s\n", appParam)
	}
	b.WriteString("\t_ = app\n")

	tail := false
	for i, in := range f.Contents {
		last := i == len(f.Contents)-1
		for j, st := range in.Stmts {
			isTail := last && j == len(in.Stmts)-1 && st.Expr
			switch {
			case isTail && st.Void:
				writeStmt(b, st.Text)
			case isTail:
				fmt.Fprintf(b, "\treturn %s(%s), nil\n", showFunc, st.Text)
				tail = true
			case st.Expr && !st.Void && (!st.Call || st.Value || j == len(in.Stmts)-1):
				// The last statement of an earlier input compiled as the
				// shown tail, so it has a value.
				writeStmt(b, fmt.Sprintf("%s(%s)", discardFunc, st.Text))
			default:
				writeStmt(b, st.Text)
			}
			for _, name := range st.Decls {
				fmt.Fprintf(b, "\t_ = %s\n", name)
			}
		}
	}
	if !tail {
		b.WriteString("\treturn \"\", nil\n")
	}
	b.WriteString("}\n\n")
}

func writeStmt(b *strings.Builder, text string) {
	for _, line := range strings.Split(text, "\n") {
		b.WriteString("\t")
		b.WriteString(line)
		b.WriteString("\n")
	}
}
