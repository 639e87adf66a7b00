// Package repl is an evaluation loop for Go.
//
// Every turn the accepted input is appended to the current module, the whole
// program is regenerated and built as a plugin by the go toolchain, and the
// module's entry function is loaded and called. A turn that fails to build
// or run is rolled back, so the next turn starts from the last program that
// worked.
//
// The loop is a chain of states: Read produces an Evaluate, Evaluate
// produces a Print (or ErrExit), Print produces the next Read. Each
// transition consumes its receiver.
package repl

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/funvibe/gorepl/internal/artifact"
	"github.com/funvibe/gorepl/internal/bridge"
	"github.com/funvibe/gorepl/internal/cmdtree"
	"github.com/funvibe/gorepl/internal/compile"
	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/internal/journal"
	"github.com/funvibe/gorepl/internal/source"
	"github.com/funvibe/gorepl/pkg/linking"
)

// ErrExit ends the session.
var ErrExit = errors.New("exit")

// Toolchain builds the compilation directory and returns the path of the
// built artifact, reporting progress line by line.
type Toolchain interface {
	Build(dir string, link linking.Config, progress func(line string)) (string, error)
}

// Data is the state of one session that outlives individual turns.
type Data struct {
	files   map[string]*source.File
	current string
	dir     string

	link     linking.Config
	redirect bool
	format   bool

	cmdr      *cmdtree.Commander[CommandResult]
	argCompl  map[string]func(partial string) []string
	identity  artifact.Identity
	toolchain Toolchain
	loader    linking.Loader
	journal   *journal.Journal
	log       *log.Logger

	prefix   string
	resolved map[string]string
	loaded   string
}

// Option configures Data.
type Option func(*Data)

// WithToolchain replaces the go toolchain.
func WithToolchain(t Toolchain) Option {
	return func(d *Data) { d.toolchain = t }
}

// WithLoader replaces the plugin loader.
func WithLoader(l linking.Loader) Option {
	return func(d *Data) { d.loader = l }
}

// WithIdentity replaces the artifact identity strategy.
func WithIdentity(id artifact.Identity) Option {
	return func(d *Data) { d.identity = id }
}

// WithJournal records turns in j. Data closes it on Close.
func WithJournal(j *journal.Journal) Option {
	return func(d *Data) { d.journal = j }
}

// WithLogger sets the verbose logger.
func WithLogger(l *log.Logger) Option {
	return func(d *Data) { d.log = l }
}

// WithLinking sets how host data is linked into the generated program.
func WithLinking(c linking.Config) Option {
	return func(d *Data) { d.link = c }
}

// WithRedirect sets whether evaluated output is captured and forwarded.
func WithRedirect(on bool) Option {
	return func(d *Data) { d.redirect = on }
}

// WithFormat sets whether the generated source is formatted before builds.
func WithFormat(on bool) Option {
	return func(d *Data) { d.format = on }
}

// New creates session data compiling in dir. The root module is a Script
// module named "lib".
func New(dir string, opts ...Option) (*Data, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating compilation directory: %w", err)
	}

	d := &Data{
		files:    map[string]*source.File{},
		current:  config.RootModule,
		dir:      abs,
		redirect: true,
		format:   true,
		loader:   bridge.PluginLoader{},
		log:      log.New(io.Discard, "", 0),
		resolved: map[string]string{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.link.Validate(); err != nil {
		return nil, err
	}
	if d.toolchain == nil {
		d.toolchain = &compile.Toolchain{Log: d.log}
	}
	d.prefix = d.link.CrateName() + ".lib"
	if d.identity == nil {
		d.identity = artifact.NewVersioned(d.prefix, config.DefaultRetain)
	}
	d.files[config.RootModule] = source.NewFile(config.RootModule, source.Script)

	cmdr, err := d.commands()
	if err != nil {
		return nil, err
	}
	d.cmdr = cmdr
	d.argCompl = d.argumentCompleters()
	return d, nil
}

// FromConfig creates session data from a configuration file. An empty
// compile_dir gets a fresh directory under the system temp dir.
func FromConfig(cfg *config.Config, opts ...Option) (*Data, error) {
	dir := cfg.CompileDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), config.AppName+"-"+uuid.NewString())
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Verbose {
		logger = log.New(os.Stderr, "["+config.AppName+"] ", 0)
	}

	retain := config.DefaultRetain
	if cfg.Retain != nil {
		retain = *cfg.Retain
	}

	base := []Option{
		WithLogger(logger),
		WithLinking(cfg.LinkingConfig()),
		WithToolchain(&compile.Toolchain{Go: cfg.Go, Log: logger}),
		WithIdentity(artifact.NewVersioned(linking.Config{Crate: cfg.Crate}.CrateName()+".lib", retain)),
	}
	if cfg.Redirect != nil {
		base = append(base, WithRedirect(*cfg.Redirect))
	}
	if cfg.Format != nil {
		base = append(base, WithFormat(*cfg.Format))
	}

	d, err := New(dir, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if cfg.Journal && d.journal == nil {
		j, err := journal.Open(filepath.Join(d.dir, config.JournalFile))
		if err != nil {
			return nil, err
		}
		d.journal = j
	}

	if len(cfg.Deps) > 0 {
		var in source.Input
		for _, dep := range cfg.Deps {
			in.Deps = append(in.Deps, source.Dependency{Name: dep.Path, Spec: dep.Version, Decl: dep.ImportDecl()})
		}
		d.files[config.RootModule].Append(in)
	}
	return d, nil
}

// Dir is the compilation directory.
func (d *Data) Dir() string { return d.dir }

// Current is the module turns are appended to.
func (d *Data) Current() string { return d.current }

// File returns the module at modPath, or nil.
func (d *Data) File(modPath string) *source.File { return d.files[modPath] }

// Modules returns the module paths in build order.
func (d *Data) Modules() []string {
	paths := make([]string, 0, len(d.files))
	for p := range d.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Source renders the entry source the next build would start from.
func (d *Data) Source() string {
	return compile.MainContents(d.fileList(), d.link)
}

// Close releases the journal.
func (d *Data) Close() error {
	if d.journal != nil {
		return d.journal.Close()
	}
	return nil
}

func (d *Data) file() *source.File {
	f, ok := d.files[d.current]
	if !ok {
		panic(fmt.Sprintf("repl: no file for current module %q", d.current))
	}
	return f
}

func (d *Data) fileList() []*source.File {
	files := make([]*source.File, 0, len(d.files))
	for _, p := range d.Modules() {
		files = append(files, d.files[p])
	}
	return files
}
