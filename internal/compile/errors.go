package compile

import (
	"fmt"
	"strings"
)

// InitKind classifies an InitialisingError.
type InitKind int

const (
	// NoBuildCommand means the toolchain could not be started, usually
	// because go is not on PATH.
	NoBuildCommand InitKind = iota
	// IOError covers failures preparing the compilation directory.
	IOError
)

// InitialisingError is returned when a build could not even start.
// The turn fails; the session continues.
type InitialisingError struct {
	Kind InitKind
	Err  error
}

func (e *InitialisingError) Error() string {
	switch e.Kind {
	case NoBuildCommand:
		if e.Err != nil {
			return fmt.Sprintf("go build command failed to start, is go installed? (%v)", e.Err)
		}
		return "go build command failed to start, is go installed?"
	default:
		return fmt.Sprintf("io error occurred. %v", e.Err)
	}
}

func (e *InitialisingError) Unwrap() error { return e.Err }

func ioError(format string, args ...any) error {
	return &InitialisingError{Kind: IOError, Err: fmt.Errorf(format, args...)}
}

// CompileError is returned when the toolchain exits with a nonzero status.
type CompileError struct {
	// Diagnostics is everything the toolchain wrote while building.
	Diagnostics string
	ExitCode    int
}

func (e *CompileError) Error() string {
	if e.Diagnostics == "" {
		return "compilation failed"
	}
	return "compilation failed\n" + strings.TrimRight(e.Diagnostics, "\n")
}

// NoValue reports whether the failure is a value-less call used as a value.
func (e *CompileError) NoValue() bool {
	return strings.Contains(e.Diagnostics, "(no value) used as value")
}
