package pipeline

import "time"

// Processor is one stage of a pipeline operating on a shared context.
type Processor[C any] interface {
	Name() string
	Process(ctx C) error
}

// Stage adapts a named function to Processor.
type Stage[C any] struct {
	Label string
	Fn    func(ctx C) error
}

func (s Stage[C]) Name() string        { return s.Label }
func (s Stage[C]) Process(ctx C) error { return s.Fn(ctx) }

// Pipeline represents a sequence of processing stages.
type Pipeline[C any] struct {
	processors []Processor[C]

	// Trace, when set, is called after every stage that ran.
	Trace func(stage string, elapsed time.Duration, err error)
}

func New[C any](processors ...Processor[C]) *Pipeline[C] {
	return &Pipeline[C]{processors: processors}
}

// Run executes the stages in order and stops at the first one that fails,
// returning its error unchanged so callers can inspect its type.
func (p *Pipeline[C]) Run(ctx C) error {
	for _, processor := range p.processors {
		start := time.Now()
		err := processor.Process(ctx)
		if p.Trace != nil {
			p.Trace(processor.Name(), time.Since(start), err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
