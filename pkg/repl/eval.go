package repl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/funvibe/gorepl/internal/bridge"
	"github.com/funvibe/gorepl/internal/cmdtree"
	"github.com/funvibe/gorepl/internal/compile"
	"github.com/funvibe/gorepl/internal/journal"
	"github.com/funvibe/gorepl/internal/pipeline"
	"github.com/funvibe/gorepl/internal/source"
	"github.com/funvibe/gorepl/pkg/linking"
)

func (s *session) eval(result InputResult, app linking.Supplier) (*Print, error) {
	var (
		out   string
		asOut bool
	)
	switch result.Kind {
	case Command:
		res := s.data.cmdr.ParseLine(result.Line, s.term)
		switch {
		case res.Kind == cmdtree.Exit:
			return nil, ErrExit
		case res.Kind == cmdtree.Action && res.Value == CancelInput:
			s.pending = nil
			out = "cancelled input"
		}
	case Program:
		out, asOut = s.data.handleProgram(result.Input, result.Text, s.term, app)
	case InputError:
		out = result.Err
	case Eof:
		return nil, ErrExit
	}
	return &Print{s: s, out: out, asOut: asOut}, nil
}

// turn carries one program input through the evaluation pipeline.
type turn struct {
	d    *Data
	w    console
	in   source.Input
	file *source.File
	app  linking.Supplier

	artifact string
	out      string
	status   string
}

// console is the part of the terminal a turn writes to.
type console interface {
	Write(p []byte) (int, error)
	OverwriteLine(s string) error
}

// handleProgram appends in to the current module, builds and runs the
// program, and rolls the module back if any step fails. It returns the text
// to print and whether it is the evaluated result.
func (d *Data) handleProgram(in source.Input, text string, w console, app linking.Supplier) (string, bool) {
	start := time.Now()
	t := &turn{d: d, w: w, in: in, file: d.file(), app: app, status: journal.StatusOK}
	t.file.Append(in)

	p := pipeline.New[*turn](
		pipeline.Stage[*turn]{Label: "materialize", Fn: materialize},
		pipeline.Stage[*turn]{Label: "format", Fn: format},
		pipeline.Stage[*turn]{Label: "build", Fn: build},
		pipeline.Stage[*turn]{Label: "resolve", Fn: resolve},
		pipeline.Stage[*turn]{Label: "exec", Fn: execute},
	)
	p.Trace = func(stage string, elapsed time.Duration, err error) {
		if err != nil {
			d.log.Printf("%s failed after %s: %v", stage, elapsed, err)
			return
		}
		d.log.Printf("%s done in %s", stage, elapsed)
	}

	err := p.Run(t)
	if err != nil {
		t.file.Rollback()
		t.status = status(err)
		t.out = err.Error()
	}
	d.record(t, text, time.Since(start), err)
	return t.out, err == nil && t.status == journal.StatusOK
}

func materialize(t *turn) error {
	err := compile.BuildCompileDir(t.d.dir, t.d.fileList(), t.d.link, compile.WithResolved(t.d.resolved))
	if err != nil {
		return fmt.Errorf("failed to build compile directory: %w", err)
	}
	return nil
}

func format(t *turn) error {
	if t.d.format {
		compile.Fmt(t.d.dir, t.d.log)
	}
	return nil
}

func build(t *turn) error {
	path, err := t.compile()

	var cerr *compile.CompileError
	if errors.As(err, &cerr) && cerr.NoValue() && t.markVoidTail() {
		t.d.log.Printf("tail call has no value, rebuilding it as a statement")
		if err := materialize(t); err != nil {
			return err
		}
		_ = format(t)
		path, err = t.compile()
	}
	if err != nil {
		return err
	}
	t.artifact = path
	return nil
}

func (t *turn) compile() (string, error) {
	path, err := t.d.toolchain.Build(t.d.dir, t.d.link, func(line string) {
		_ = t.w.OverwriteLine(line)
	})
	_ = t.w.OverwriteLine("")
	return path, err
}

// markVoidTail flags the latest input's trailing call as having no value.
// It reports false when there is nothing left to retry.
func (t *turn) markVoidTail() bool {
	last := t.file.Last()
	if last == nil || len(last.Stmts) == 0 {
		return false
	}
	tail := &last.Stmts[len(last.Stmts)-1]
	if !tail.Call || tail.Void {
		return false
	}
	tail.Void = true
	return true
}

func resolve(t *turn) error {
	versions, err := compile.ResolvedVersions(t.d.dir)
	if err != nil {
		t.d.log.Printf("reading resolved versions: %v", err)
		return nil
	}
	for mod, v := range versions {
		if _, ok := t.d.resolved[mod]; !ok {
			t.d.resolved[mod] = v
		}
	}
	return nil
}

func execute(t *turn) error {
	if !t.runnable() {
		t.status = journal.StatusNoExec
		return nil
	}

	path, err := t.d.identity.Assign(t.artifact)
	if err != nil {
		return fmt.Errorf("failed assigning artifact identity: %w", err)
	}
	t.artifact = path

	symbol := t.file.EntryName()
	if t.d.redirect {
		t.out, err = bridge.ExecRedirect(t.d.loader, path, symbol, t.app, t.w)
	} else {
		t.out, err = bridge.Exec(t.d.loader, path, symbol, t.app)
	}
	if err != nil {
		return err
	}
	t.d.loaded = path
	return nil
}

// runnable reports whether the turn needs its module executed: it added
// statements, or it belongs to a Source module that defines its entry.
func (t *turn) runnable() bool {
	if t.in.HasStmts() {
		return true
	}
	if t.file.Type != source.Source {
		return false
	}
	sig := "func " + t.file.EntryName() + "("
	for _, in := range t.file.Contents {
		for _, item := range in.Items {
			if strings.Contains(item, sig) {
				return true
			}
		}
	}
	return false
}

func status(err error) string {
	var (
		cerr *compile.CompileError
		eerr *bridge.ExecutionError
	)
	switch {
	case errors.As(err, &cerr):
		return journal.StatusCompileError
	case errors.As(err, &eerr):
		return journal.StatusExecError
	default:
		return journal.StatusIOError
	}
}

func (d *Data) record(t *turn, text string, elapsed time.Duration, err error) {
	if d.journal == nil {
		return
	}
	entry := journal.Turn{
		Module:  t.file.ModPath,
		Input:   text,
		Status:  t.status,
		Elapsed: elapsed,
	}
	if err != nil {
		entry.Message = err.Error()
	}
	if t.status == journal.StatusOK && t.artifact != "" {
		entry.Generation = filepath.Base(t.artifact)
	}
	if _, err := d.journal.Record(context.Background(), entry); err != nil {
		d.log.Printf("journal: %v", err)
	}
}
