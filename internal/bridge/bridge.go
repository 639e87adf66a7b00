// Package bridge loads compiled artifacts and calls their entry points.
package bridge

import (
	"fmt"
	"io"
	"plugin"
	"sync"

	"github.com/funvibe/gorepl/pkg/linking"
)

// ExecutionError reports that an entry point could not be called or signalled
// failure. Its message is shown to the user verbatim.
type ExecutionError struct {
	Symbol string
	Err    error
}

func (e *ExecutionError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PluginLoader loads artifacts with the standard plugin package. A path is
// only ever opened once per process, so callers must give every build a new
// path (see package artifact).
type PluginLoader struct{}

var _ linking.Loader = PluginLoader{}

func (PluginLoader) Load(path, symbol string) (linking.EntryFunc, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	sym, err := p.Lookup(symbol)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", symbol, err)
	}

	switch fn := sym.(type) {
	case func(any) (string, error):
		return fn, nil
	case *func(any) (string, error):
		return *fn, nil
	default:
		return nil, fmt.Errorf("symbol %s has unexpected type %T", symbol, sym)
	}
}

// Exec loads symbol from artifact and calls it with the context supplied by
// app. The returned string is the entry point's rendered result.
func Exec(loader linking.Loader, artifact, symbol string, app linking.Supplier) (string, error) {
	fn, err := loader.Load(artifact, symbol)
	if err != nil {
		return "", &ExecutionError{Symbol: symbol, Err: err}
	}

	out, err := app.Supply(guard(symbol, fn))
	if err != nil {
		return "", &ExecutionError{Symbol: symbol, Err: err}
	}
	return out, nil
}

var redirectMu sync.Mutex

// ExecRedirect is Exec with the process's standard output and standard error
// captured for the duration of the call. Captured bytes are written to w
// after the streams are restored, so w may itself write to the terminal.
// Only one redirected call runs at a time.
func ExecRedirect(loader linking.Loader, artifact, symbol string, app linking.Supplier, w io.Writer) (string, error) {
	redirectMu.Lock()
	defer redirectMu.Unlock()

	var (
		out string
		err error
	)
	captured, cerr := capture(func() {
		out, err = Exec(loader, artifact, symbol, app)
	})
	if cerr != nil {
		return "", &ExecutionError{Symbol: symbol, Err: cerr}
	}
	if len(captured) > 0 {
		if _, werr := w.Write(captured); werr != nil && err == nil {
			err = &ExecutionError{Symbol: symbol, Err: fmt.Errorf("writing output: %w", werr)}
		}
	}
	return out, err
}

// guard turns a panic escaping the entry point into an error. Generated
// entry points recover on their own; this covers hand-written Source modules.
func guard(symbol string, fn linking.EntryFunc) linking.EntryFunc {
	return func(app any) (out string, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in %s: %v", symbol, r)
			}
		}()
		return fn(app)
	}
}
