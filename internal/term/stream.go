package term

import (
	"bufio"
	"io"
	"strings"
)

// Stream is a Terminal over plain reader and writer, used when input is
// not a terminal.
type Stream struct {
	r *bufio.Reader
	w io.Writer

	// Echo writes prompts. Off by default for piped input.
	Echo bool
}

// NewStream returns a Stream reading lines from r and writing to w.
func NewStream(r io.Reader, w io.Writer) *Stream {
	return &Stream{r: bufio.NewReader(r), w: w}
}

func (s *Stream) ReadLine(prompt string) (string, error) {
	if s.Echo {
		if _, err := io.WriteString(s.w, prompt); err != nil {
			return "", err
		}
	}
	line, err := s.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

// OverwriteLine drops progress output; a stream has no line to overwrite.
func (s *Stream) OverwriteLine(string) error {
	return nil
}

func (s *Stream) SetCompleter(WordCompleter) {}

func (s *Stream) Close() error {
	return nil
}
