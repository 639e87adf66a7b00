package repl

import (
	"fmt"

	"github.com/funvibe/gorepl/internal/term"
	"github.com/funvibe/gorepl/pkg/linking"
)

// session is what the states pass along: the terminal, the session data and
// any input still waiting for more lines.
type session struct {
	term    term.Terminal
	data    *Data
	pending []string
}

func consumed(state string) {
	panic(fmt.Sprintf("repl: %s state used after its transition", state))
}

// Read is the state waiting for input.
type Read struct {
	s *session
}

// Start begins a session on t.
func Start(t term.Terminal, d *Data) *Read {
	return &Read{s: &session{term: t, data: d}}
}

// Data returns the session data.
func (r *Read) Data() *Data {
	if r.s == nil {
		consumed("read")
	}
	return r.s.data
}

// Read prompts until a complete input has been entered.
func (r *Read) Read() *Evaluate {
	s := r.s
	if s == nil {
		consumed("read")
	}
	r.s = nil
	return &Evaluate{s: s, result: s.read()}
}

// Evaluate holds a classified input.
type Evaluate struct {
	s      *session
	result InputResult
}

// Result is the input about to be evaluated.
func (e *Evaluate) Result() InputResult {
	return e.result
}

// Eval evaluates the input with the host data supplied by app. It returns
// ErrExit when the session should end.
func (e *Evaluate) Eval(app linking.Supplier) (*Print, error) {
	s := e.s
	if s == nil {
		consumed("evaluate")
	}
	e.s = nil
	return s.eval(e.result, app)
}

// EvalAsync runs Eval on its own goroutine.
func (e *Evaluate) EvalAsync(app linking.Supplier) *Evaluating {
	s := e.s
	if s == nil {
		consumed("evaluate")
	}
	e.s = nil

	ch := make(chan evalOutcome, 1)
	result := e.result
	go func() {
		p, err := s.eval(result, app)
		ch <- evalOutcome{print: p, err: err}
	}()
	return &Evaluating{ch: ch}
}

type evalOutcome struct {
	print *Print
	err   error
}

// Evaluating is an evaluation running in the background.
type Evaluating struct {
	ch chan evalOutcome
}

// Completed reports whether Wait would return without blocking.
func (e *Evaluating) Completed() bool {
	if e.ch == nil {
		consumed("evaluating")
	}
	return len(e.ch) > 0
}

// Wait blocks until the evaluation finishes.
func (e *Evaluating) Wait() (*Print, error) {
	ch := e.ch
	if ch == nil {
		consumed("evaluating")
	}
	e.ch = nil
	out := <-ch
	return out.print, out.err
}

// Print holds the outcome of a turn.
type Print struct {
	s     *session
	out   string
	asOut bool
}

// Output is the text Print will write and whether it is a result produced
// by evaluated code.
func (p *Print) Output() (string, bool) {
	return p.out, p.asOut
}

// Print writes the outcome and returns to Read.
func (p *Print) Print() *Read {
	s := p.s
	if s == nil {
		consumed("print")
	}
	p.s = nil

	if p.out != "" {
		fmt.Fprintln(s.term, p.out)
	}
	return &Read{s: s}
}
