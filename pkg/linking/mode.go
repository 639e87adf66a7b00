package linking

import (
	"fmt"
	"sync"
)

// Mode is the calling convention used to pass host data to an entry point.
type Mode int

const (
	// Owned hands a value to the entry point; the host keeps no claim on it.
	Owned Mode = iota
	// SharedRead passes a pointer the host does not mutate during the call.
	SharedRead
	// SharedMutable passes a pointer obtained by locking a Cell.
	SharedMutable
)

func (m Mode) String() string {
	switch m {
	case Owned:
		return "owned"
	case SharedRead:
		return "shared-read"
	case SharedMutable:
		return "shared-mutable"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Supplier provides the context argument for one entry point call.
//
// The set of implementations is closed: use Own, Share or Lock.
type Supplier interface {
	Mode() Mode
	// Supply calls fn with the context, holding whatever the mode requires
	// for the duration of the call.
	Supply(fn EntryFunc) (string, error)

	supplier()
}

type owned[D any] struct {
	v D
}

// Own returns a Supplier that hands v to the entry point.
func Own[D any](v D) Supplier {
	return owned[D]{v: v}
}

func (owned[D]) Mode() Mode { return Owned }

func (o owned[D]) Supply(fn EntryFunc) (string, error) {
	return fn(o.v)
}

func (owned[D]) supplier() {}

type shared[D any] struct {
	p *D
}

// Share returns a Supplier that passes p without locking. The caller must not
// mutate *p while an evaluation using it is in flight.
func Share[D any](p *D) Supplier {
	return shared[D]{p: p}
}

func (shared[D]) Mode() Mode { return SharedRead }

func (s shared[D]) Supply(fn EntryFunc) (string, error) {
	return fn(s.p)
}

func (shared[D]) supplier() {}

// Cell is host data guarded by a mutex, for use with Lock.
type Cell[D any] struct {
	mu sync.Mutex
	v  D
}

// NewCell returns a Cell holding v.
func NewCell[D any](v D) *Cell[D] {
	return &Cell[D]{v: v}
}

// With runs fn with exclusive access to the cell's value.
func (c *Cell[D]) With(fn func(*D)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.v)
}

type locked[D any] struct {
	c *Cell[D]
}

// Lock returns a Supplier that holds c's mutex for the whole entry point call
// and passes a pointer to its value. Concurrent evaluations against the same
// cell run one at a time.
func Lock[D any](c *Cell[D]) Supplier {
	return locked[D]{c: c}
}

func (locked[D]) Mode() Mode { return SharedMutable }

func (l locked[D]) Supply(fn EntryFunc) (string, error) {
	l.c.mu.Lock()
	defer l.c.mu.Unlock()
	return fn(&l.c.v)
}

func (locked[D]) supplier() {}
