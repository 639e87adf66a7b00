package repl

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/funvibe/gorepl/internal/compile"
	"github.com/funvibe/gorepl/internal/term"
	"github.com/funvibe/gorepl/pkg/linking"
)

// fakeTerm feeds queued lines and collects output.
type fakeTerm struct {
	mu       sync.Mutex
	lines    []string
	out      bytes.Buffer
	progress []string
	prompts  []string
}

func (f *fakeTerm) ReadLine(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if len(f.lines) == 0 {
		return "", io.EOF
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, nil
}

func (f *fakeTerm) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.Write(p)
}

func (f *fakeTerm) OverwriteLine(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, s)
	return nil
}

func (f *fakeTerm) SetCompleter(term.WordCompleter) {}
func (f *fakeTerm) Close() error                    { return nil }

func (f *fakeTerm) push(lines ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, lines...)
}

// take returns and clears the output written so far.
func (f *fakeTerm) take() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.out.String()
	f.out.Reset()
	return s
}

var _ term.Terminal = (*fakeTerm)(nil)

// fakeToolchain "builds" by writing a placeholder artifact. Builds fail
// when the generated source contains any of the fail substrings.
type fakeToolchain struct {
	mu      sync.Mutex
	fail    []string
	noValue []string
	builds  int
	sources []string
}

func (f *fakeToolchain) Build(dir string, link linking.Config, progress func(string)) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	src, err := os.ReadFile(compile.EntryPath(dir))
	if err != nil {
		return "", err
	}
	f.sources = append(f.sources, string(src))
	progress("compiling " + link.CrateName())

	for _, s := range f.noValue {
		if strings.Contains(string(src), "_replShow("+s+")") {
			return "", &compile.CompileError{Diagnostics: "src/main.go:9:9: " + s + " (no value) used as value", ExitCode: 1}
		}
	}
	for _, s := range f.fail {
		if strings.Contains(string(src), s) {
			return "", &compile.CompileError{Diagnostics: "src/main.go:1:1: invalid operation: " + s, ExitCode: 1}
		}
	}

	path := compile.ArtifactPath(dir, link)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f.builds++
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeToolchain) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sources) == 0 {
		return ""
	}
	return f.sources[len(f.sources)-1]
}

var tailRE = regexp.MustCompile(`return _replShow\((.*)\), nil`)

// scriptedLoader answers a loaded artifact with results[tail], where tail
// is the expression returned by the generated entry function. The artifact
// file holds the generated source (see fakeToolchain).
type scriptedLoader struct {
	mu      sync.Mutex
	results map[string]string
	paths   []string
}

func (l *scriptedLoader) Load(path, symbol string) (linking.EntryFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, path)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(string(src), "func "+symbol+"(") {
		return nil, fmt.Errorf("symbol %s not found", symbol)
	}
	tail := ""
	if m := tailRE.FindStringSubmatch(string(src)); m != nil {
		tail = m[1]
	}
	out := l.results[tail]
	return func(any) (string, error) { return out, nil }, nil
}

func newTestData(t *testing.T, opts ...Option) (*Data, *fakeToolchain, *scriptedLoader) {
	t.Helper()
	tc := &fakeToolchain{}
	ld := &scriptedLoader{results: map[string]string{}}
	base := []Option{WithToolchain(tc), WithLoader(ld), WithFormat(false), WithRedirect(false)}
	d, err := New(t.TempDir(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d, tc, ld
}

// step reads and evaluates one input and returns what was printed.
func step(t *testing.T, r *Read, ft *fakeTerm, lines ...string) (*Read, string) {
	t.Helper()
	ft.push(lines...)
	p, err := r.Read().Eval(linking.Own[any](nil))
	if err != nil {
		t.Fatalf("Eval failed: %v", err)
	}
	next := p.Print()
	return next, ft.take()
}
