package term

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"
)

// Liner is an interactive Terminal backed by github.com/peterh/liner.
type Liner struct {
	cli     *liner.State
	out     io.Writer
	history string
}

// NewLiner puts the terminal under liner's control and loads history from
// historyPath when it is set.
func NewLiner(historyPath string) *Liner {
	l := &Liner{cli: liner.NewLiner(), out: os.Stdout, history: historyPath}
	l.cli.SetCtrlCAborts(true)
	l.cli.SetMultiLineMode(true)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = l.cli.ReadHistory(f)
			f.Close()
		}
	}
	return l
}

func (l *Liner) ReadLine(prompt string) (string, error) {
	line, err := l.cli.Prompt(prompt)
	switch err {
	case nil:
		if strings.TrimSpace(line) != "" {
			l.cli.AppendHistory(line)
		}
		return line, nil
	case liner.ErrPromptAborted:
		return "", ErrAborted
	case io.EOF:
		return "", io.EOF
	default:
		return "", fmt.Errorf("reading line: %w", err)
	}
}

func (l *Liner) Write(p []byte) (int, error) {
	return l.out.Write(p)
}

// OverwriteLine returns the cursor to the start of the line and clears it
// before writing s.
func (l *Liner) OverwriteLine(s string) error {
	_, err := fmt.Fprintf(l.out, "\r\x1b[K%s", s)
	return err
}

func (l *Liner) SetCompleter(fn WordCompleter) {
	l.cli.SetWordCompleter(liner.WordCompleter(fn))
}

// Close saves history and restores the terminal.
func (l *Liner) Close() error {
	var herr error
	if l.history != "" {
		f, err := os.Create(l.history)
		if err == nil {
			_, herr = l.cli.WriteHistory(f)
			if cerr := f.Close(); herr == nil {
				herr = cerr
			}
		} else {
			herr = err
		}
	}
	if err := l.cli.Close(); err != nil {
		return err
	}
	return herr
}
