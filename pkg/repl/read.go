package repl

import (
	"errors"
	"io"
	"strings"

	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/internal/source"
	"github.com/funvibe/gorepl/internal/term"
)

// InputKind classifies what Read produced.
type InputKind int

const (
	Empty InputKind = iota
	Command
	Program
	InputError
	Eof
)

func (k InputKind) String() string {
	switch k {
	case Command:
		return "command"
	case Program:
		return "program"
	case InputError:
		return "input error"
	case Eof:
		return "eof"
	default:
		return "empty"
	}
}

// InputResult is one classified input.
type InputResult struct {
	Kind InputKind
	// Line is the command line for Command.
	Line string
	// Input and Text are the parsed and raw program for Program.
	Input source.Input
	Text  string
	// Err describes an InputError.
	Err string
}

const continuationPrompt = "... "

func (s *session) prompt() string {
	d := s.data
	if len(s.pending) > 0 {
		return continuationPrompt
	}
	if !d.cmdr.AtRoot() {
		return d.cmdr.Path() + "> "
	}
	return config.AppName + "[" + d.current + "]> "
}

// isCommand reports whether line goes to the command namespace. While a
// multi-line input is pending only cancel is a command, so continuation
// lines such as ".Do()" stay part of the program.
func (s *session) isCommand(line string) bool {
	line = strings.TrimSpace(line)
	if len(s.pending) > 0 {
		return line == config.CommandPrefix+"cancel" || line == config.CommandPrefix+"c"
	}
	if !s.data.cmdr.AtRoot() {
		return true
	}
	return strings.HasPrefix(line, config.CommandPrefix)
}

func (s *session) read() InputResult {
	for {
		s.term.SetCompleter(s.data.wordCompleter())

		line, err := s.term.ReadLine(s.prompt())
		switch {
		case errors.Is(err, io.EOF):
			return InputResult{Kind: Eof}
		case errors.Is(err, term.ErrAborted):
			s.pending = nil
			return InputResult{Kind: Empty}
		case err != nil:
			return InputResult{Kind: InputError, Err: err.Error()}
		}

		if s.isCommand(line) {
			return InputResult{Kind: Command, Line: line}
		}

		s.pending = append(s.pending, line)
		text := strings.Join(s.pending, "\n")
		if strings.TrimSpace(text) == "" {
			s.pending = nil
			return InputResult{Kind: Empty}
		}

		in, err := source.Parse(text, s.data.file().Type)
		if errors.Is(err, source.ErrIncomplete) {
			continue
		}
		s.pending = nil
		if err != nil {
			return InputResult{Kind: InputError, Err: err.Error()}
		}
		return InputResult{Kind: Program, Input: in, Text: text}
	}
}
