//go:build !linux && !darwin && !freebsd

package bridge

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// capture swaps os.Stdout and os.Stderr for a pipe while fn runs. Only
// writes that go through those variables are seen.
func capture(fn func()) ([]byte, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating pipe: %w", err)
	}
	defer r.Close()

	var buf bytes.Buffer
	copied := make(chan struct{})
	go func() {
		_, _ = io.Copy(&buf, r)
		close(copied)
	}()

	stdout, stderr := os.Stdout, os.Stderr
	os.Stdout, os.Stderr = w, w
	func() {
		defer func() { os.Stdout, os.Stderr = stdout, stderr }()
		fn()
	}()

	w.Close()
	<-copied
	return buf.Bytes(), nil
}
