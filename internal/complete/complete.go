// Package complete derives line completions from a command namespace.
package complete

import (
	"strings"

	"github.com/funvibe/gorepl/internal/cmdtree"
)

// RootMarker prefixes commands typed at the root of the namespace.
const RootMarker = "."

// Namespace is the view of a command namespace the completers need.
type Namespace interface {
	Structure() []cmdtree.Entry
	Path() string
	AtRoot() bool
	RootName() string
}

// relative rewrites path relative to the namespace position with spaces as
// separators, or reports false when path is not below the position.
func relative(ns Namespace, path string) (string, bool) {
	cur := ns.Path() + "."
	if !strings.HasPrefix(path, cur) {
		return "", false
	}
	parts := strings.FieldsFunc(path[len(cur):], func(r rune) bool { return r == '.' })
	s := strings.Join(parts, " ")
	if ns.AtRoot() {
		s = RootMarker + s
	}
	return s, true
}

// TreeCompleter completes class and action names.
type TreeCompleter struct {
	elements []string
}

// BuildTree snapshots ns at its current position.
func BuildTree(ns Namespace) *TreeCompleter {
	t := &TreeCompleter{}
	for _, e := range ns.Structure() {
		if s, ok := relative(ns, e.Path); ok {
			t.elements = append(t.elements, s)
		}
	}
	return t
}

// Elements returns the space delimited paths, in namespace order.
func (t *TreeCompleter) Elements() []string {
	return t.elements
}

// Complete returns every element consistent with line, trimmed to the part
// starting at wordStart.
func (t *TreeCompleter) Complete(word, line string, wordStart int) []string {
	var out []string
	for _, el := range t.elements {
		if !strings.HasPrefix(el, line) || wordStart > len(el) {
			continue
		}
		out = append(out, el[wordStart:])
	}
	return out
}

type actionMatch struct {
	match         string
	qualifiedPath string
}

// ActionCompleter finds the action a line is invoking.
type ActionCompleter struct {
	actions []actionMatch
}

// Candidate is an action the line has fully named.
type Candidate struct {
	// QualifiedPath is the action's path without the root name.
	QualifiedPath string
	Word          string
	// Line is what follows the action name and its delimiter.
	Line      string
	WordStart int
}

// BuildActions snapshots the actions below ns's current position.
func BuildActions(ns Namespace) *ActionCompleter {
	a := &ActionCompleter{}
	root := ns.RootName() + "."
	for _, e := range ns.Structure() {
		if !e.Action {
			continue
		}
		s, ok := relative(ns, e.Path)
		if !ok {
			continue
		}
		a.actions = append(a.actions, actionMatch{
			match:         strings.TrimPrefix(s, RootMarker),
			qualifiedPath: strings.TrimPrefix(e.Path, root),
		})
	}
	return a
}

// Candidates returns the actions whose name, followed by a space, starts
// line. Requiring the space keeps "foo" from matching a line that is still
// typing "foobar". The root marker on line is optional.
func (a *ActionCompleter) Candidates(word, line string, wordStart int) []Candidate {
	l := strings.TrimPrefix(line, RootMarker)
	var out []Candidate
	for _, am := range a.actions {
		prefix := am.match + " "
		if !strings.HasPrefix(l, prefix) {
			continue
		}
		out = append(out, Candidate{
			QualifiedPath: am.qualifiedPath,
			Word:          word,
			Line:          l[len(prefix):],
			WordStart:     wordStart,
		})
	}
	return out
}
