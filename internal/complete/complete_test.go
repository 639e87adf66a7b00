package complete

import (
	"io"
	"reflect"
	"testing"

	"github.com/funvibe/gorepl/internal/cmdtree"
)

func noop(io.Writer, []string) struct{} { return struct{}{} }

func build(t *testing.T, b *cmdtree.Builder[struct{}]) *cmdtree.Commander[struct{}] {
	t.Helper()
	cmdr, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return cmdr
}

func sampleTree(t *testing.T) *cmdtree.Commander[struct{}] {
	return build(t, cmdtree.NewBuilder[struct{}]("gorepl").
		AddAction("cancel", "", noop).
		BeginClass("mod", "").
		AddAction("switch", "", noop).
		AddAction("list", "", noop).
		EndClass())
}

func TestBuildTree_AtRoot(t *testing.T) {
	tree := BuildTree(sampleTree(t))
	want := []string{".cancel", ".mod", ".mod switch", ".mod list"}
	if !reflect.DeepEqual(tree.Elements(), want) {
		t.Errorf("expected %q, got %q", want, tree.Elements())
	}
}

func TestBuildTree_BelowRoot(t *testing.T) {
	cmdr := sampleTree(t)
	cmdr.ParseLine(".mod", io.Discard)

	tree := BuildTree(cmdr)
	want := []string{"switch", "list"}
	if !reflect.DeepEqual(tree.Elements(), want) {
		t.Errorf("expected %q, got %q", want, tree.Elements())
	}
}

func TestTreeCompleter_Complete(t *testing.T) {
	tree := BuildTree(sampleTree(t))

	got := tree.Complete("s", ".mod s", 5)
	if !reflect.DeepEqual(got, []string{"switch"}) {
		t.Errorf("expected [switch], got %q", got)
	}

	got = tree.Complete(".m", ".m", 0)
	if !reflect.DeepEqual(got, []string{".mod", ".mod switch", ".mod list"}) {
		t.Errorf("unexpected completions %q", got)
	}

	if got := tree.Complete("x", ".x", 1); len(got) != 0 {
		t.Errorf("expected no completions, got %q", got)
	}
}

func TestActionCompleter_Uniqueness(t *testing.T) {
	cmdr := build(t, cmdtree.NewBuilder[struct{}]("root").
		AddAction("foo", "", noop).
		AddAction("foobar", "", noop))
	actions := BuildActions(cmdr)

	got := actions.Candidates("", "foo ", 4)
	if len(got) != 1 || got[0].QualifiedPath != "foo" {
		t.Errorf(`"foo ": expected only foo, got %+v`, got)
	}

	if got := actions.Candidates("foob", "foob", 0); len(got) != 0 {
		t.Errorf(`"foob": expected none, got %+v`, got)
	}

	got = actions.Candidates("", "foobar ", 7)
	if len(got) != 1 || got[0].QualifiedPath != "foobar" {
		t.Errorf(`"foobar ": expected only foobar, got %+v`, got)
	}
}

func TestActionCompleter_CandidateFields(t *testing.T) {
	actions := BuildActions(sampleTree(t))

	got := actions.Candidates("li", ".mod switch li", 12)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %+v", got)
	}
	c := got[0]
	if c.QualifiedPath != "mod.switch" || c.Word != "li" || c.Line != "li" || c.WordStart != 12 {
		t.Errorf("unexpected candidate %+v", c)
	}
}
