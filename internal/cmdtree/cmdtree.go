// Package cmdtree is a small hierarchical command namespace. Classes group
// actions and other classes; a line is walked word by word from the current
// class until it reaches an action or a class.
package cmdtree

import (
	"fmt"
	"io"
	"strings"
)

// Kind classifies the outcome of ParseLine.
type Kind int

const (
	Nothing Kind = iota
	Help
	Class
	Action
	Exit
	Unrecognized
)

func (k Kind) String() string {
	switch k {
	case Nothing:
		return "nothing"
	case Help:
		return "help"
	case Class:
		return "class"
	case Action:
		return "action"
	case Exit:
		return "exit"
	case Unrecognized:
		return "unrecognized"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// LineResult is what a parsed line did. Value is set for Action.
type LineResult[R any] struct {
	Kind  Kind
	Value R
}

// ActionFunc runs an action with the words that followed its name.
type ActionFunc[R any] func(w io.Writer, args []string) R

// Entry is one node of the namespace as returned by Structure.
type Entry struct {
	// Path is dot delimited and starts with the root name.
	Path   string
	Action bool
}

type action[R any] struct {
	name    string
	help    string
	aliases []string
	fn      ActionFunc[R]
}

type class[R any] struct {
	name    string
	help    string
	parent  *class[R]
	classes []*class[R]
	actions []*action[R]
}

func (c *class[R]) path() string {
	if c.parent == nil {
		return c.name
	}
	return c.parent.path() + "." + c.name
}

func (c *class[R]) class(name string) *class[R] {
	for _, sub := range c.classes {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

func (c *class[R]) action(name string) *action[R] {
	for _, a := range c.actions {
		if a.name == name {
			return a
		}
		for _, alias := range a.aliases {
			if alias == name {
				return a
			}
		}
	}
	return nil
}

// Commander walks lines through the namespace and remembers the class the
// user navigated into.
type Commander[R any] struct {
	root *class[R]
	cur  *class[R]
}

// Path is the dot delimited path of the current class.
func (c *Commander[R]) Path() string { return c.cur.path() }

// AtRoot reports whether the current class is the root.
func (c *Commander[R]) AtRoot() bool { return c.cur == c.root }

// RootName is the name of the root class.
func (c *Commander[R]) RootName() string { return c.root.name }

// Reset moves back to the root class.
func (c *Commander[R]) Reset() { c.cur = c.root }

// Structure lists every class and action below the root, depth first.
func (c *Commander[R]) Structure() []Entry {
	var entries []Entry
	var walk func(cl *class[R])
	walk = func(cl *class[R]) {
		p := cl.path()
		for _, a := range cl.actions {
			entries = append(entries, Entry{Path: p + "." + a.name, Action: true})
		}
		for _, sub := range cl.classes {
			entries = append(entries, Entry{Path: sub.path()})
			walk(sub)
		}
	}
	walk(c.root)
	return entries
}

// ParseLine walks line from the current class. Output of help, navigation
// and unrecognized words goes to w. A leading "." on the first word is
// ignored. The words "help", "exit" and "quit" are built in.
func (c *Commander[R]) ParseLine(line string, w io.Writer) LineResult[R] {
	words := strings.Fields(line)
	if len(words) > 0 {
		words[0] = strings.TrimPrefix(words[0], ".")
		if words[0] == "" {
			words = words[1:]
		}
	}
	if len(words) == 0 {
		return LineResult[R]{Kind: Nothing}
	}

	node := c.cur
	for i, word := range words {
		switch word {
		case "help":
			writeHelp(w, node)
			return LineResult[R]{Kind: Help}
		case "exit", "quit":
			if i == 0 {
				return LineResult[R]{Kind: Exit}
			}
		}

		if sub := node.class(word); sub != nil {
			node = sub
			continue
		}
		if a := node.action(word); a != nil {
			return LineResult[R]{Kind: Action, Value: a.fn(w, words[i+1:])}
		}

		fmt.Fprintf(w, "%q does not match any class or action in %s\n", word, node.path())
		return LineResult[R]{Kind: Unrecognized}
	}

	c.cur = node
	return LineResult[R]{Kind: Class}
}

func writeHelp[R any](w io.Writer, cl *class[R]) {
	fmt.Fprintf(w, "[%s] help\n", cl.path())
	if cl.help != "" {
		fmt.Fprintf(w, "%s\n", cl.help)
	}
	if len(cl.classes) > 0 {
		fmt.Fprintln(w, "classes:")
		for _, sub := range cl.classes {
			fmt.Fprintf(w, "  %-12s %s\n", sub.name, sub.help)
		}
	}
	if len(cl.actions) > 0 {
		fmt.Fprintln(w, "actions:")
		for _, a := range cl.actions {
			name := a.name
			if len(a.aliases) > 0 {
				name += " (" + strings.Join(a.aliases, ", ") + ")"
			}
			fmt.Fprintf(w, "  %-12s %s\n", name, a.help)
		}
	}
	fmt.Fprintln(w, "built in:")
	fmt.Fprintf(w, "  %-12s %s\n", "help", "show this help")
	fmt.Fprintf(w, "  %-12s %s\n", "exit (quit)", "end the session")
}
