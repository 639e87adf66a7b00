package cmdtree

import (
	"fmt"
	"strings"
)

// Builder assembles a Commander. Classes are opened with BeginClass and
// closed with EndClass; actions are added to the innermost open class.
type Builder[R any] struct {
	root *class[R]
	cur  *class[R]
	err  error
}

// NewBuilder starts a namespace whose root class is called root.
func NewBuilder[R any](root string) *Builder[R] {
	b := &Builder[R]{}
	b.root = &class[R]{name: root}
	b.cur = b.root
	if err := checkName(root); err != nil {
		b.err = err
	}
	return b
}

// BeginClass opens a subclass of the current class.
func (b *Builder[R]) BeginClass(name, help string) *Builder[R] {
	if b.err != nil {
		return b
	}
	if err := b.checkFree(name); err != nil {
		b.err = err
		return b
	}
	sub := &class[R]{name: name, help: help, parent: b.cur}
	b.cur.classes = append(b.cur.classes, sub)
	b.cur = sub
	return b
}

// EndClass closes the current class.
func (b *Builder[R]) EndClass() *Builder[R] {
	if b.err != nil {
		return b
	}
	if b.cur.parent == nil {
		b.err = fmt.Errorf("cmdtree: EndClass called at the root")
		return b
	}
	b.cur = b.cur.parent
	return b
}

// AddAction adds an action to the current class.
func (b *Builder[R]) AddAction(name, help string, fn ActionFunc[R], aliases ...string) *Builder[R] {
	if b.err != nil {
		return b
	}
	for _, n := range append([]string{name}, aliases...) {
		if err := b.checkFree(n); err != nil {
			b.err = err
			return b
		}
	}
	b.cur.actions = append(b.cur.actions, &action[R]{name: name, help: help, aliases: aliases, fn: fn})
	return b
}

// Build returns the Commander positioned at the root.
func (b *Builder[R]) Build() (*Commander[R], error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.cur != b.root {
		return nil, fmt.Errorf("cmdtree: class %s was not closed", b.cur.path())
	}
	return &Commander[R]{root: b.root, cur: b.root}, nil
}

func (b *Builder[R]) checkFree(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	switch name {
	case "help", "exit", "quit":
		return fmt.Errorf("cmdtree: %q is built in", name)
	}
	if b.cur.class(name) != nil || b.cur.action(name) != nil {
		return fmt.Errorf("cmdtree: %s.%s already exists", b.cur.path(), name)
	}
	return nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, ". \t") {
		return fmt.Errorf("cmdtree: invalid name %q", name)
	}
	return nil
}
