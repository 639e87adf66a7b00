// Package term is the line-editing front end of the REPL.
package term

import (
	"errors"
	"io"
)

// ErrAborted is returned by ReadLine when the user interrupts the prompt.
var ErrAborted = errors.New("prompt aborted")

// WordCompleter receives the line and cursor position and returns the
// unchanged head, the candidate replacements for the word under the cursor
// and the unchanged tail.
type WordCompleter func(line string, pos int) (head string, completions []string, tail string)

// Terminal reads lines from and writes output to the user.
type Terminal interface {
	io.Writer

	// ReadLine shows prompt and returns one line without its terminator.
	// It returns io.EOF at end of input and ErrAborted on interrupt.
	ReadLine(prompt string) (string, error)

	// OverwriteLine replaces the current console line with s.
	OverwriteLine(s string) error

	SetCompleter(fn WordCompleter)

	Close() error
}
