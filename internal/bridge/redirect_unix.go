//go:build linux || darwin || freebsd

package bridge

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// capture points file descriptors 1 and 2 at a pipe while fn runs and
// returns what was written to them.
func capture(fn func()) ([]byte, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating pipe: %w", err)
	}
	defer r.Close()

	savedOut, err := unix.Dup(unix.Stdout)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("saving stdout: %w", err)
	}
	defer unix.Close(savedOut)

	savedErr, err := unix.Dup(unix.Stderr)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("saving stderr: %w", err)
	}
	defer unix.Close(savedErr)

	var buf bytes.Buffer
	copied := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(copied)
	}()

	restore := func() {
		_ = dup2(savedOut, unix.Stdout)
		_ = dup2(savedErr, unix.Stderr)
	}

	if err := dup2(int(w.Fd()), unix.Stdout); err != nil {
		w.Close()
		<-copied
		return nil, fmt.Errorf("redirecting stdout: %w", err)
	}
	if err := dup2(int(w.Fd()), unix.Stderr); err != nil {
		restore()
		w.Close()
		<-copied
		return nil, fmt.Errorf("redirecting stderr: %w", err)
	}

	func() {
		defer restore()
		fn()
	}()

	w.Close()
	<-copied
	return buf.Bytes(), nil
}
