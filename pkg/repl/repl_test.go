package repl

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/funvibe/gorepl/internal/journal"
	"github.com/funvibe/gorepl/internal/source"
	"github.com/funvibe/gorepl/pkg/linking"
)

func TestRepl_EndToEnd(t *testing.T) {
	d, tc, ld := newTestData(t)
	tc.fail = []string{`"x" + 1`}
	ld.results["a + 1"] = "2"
	ld.results["a + 2"] = "3"
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, out := step(t, r, ft, "a := 1")
	if out != "" {
		t.Errorf("turn 1: expected no output, got %q", out)
	}

	r, out = step(t, r, ft, "a + 1")
	if out != "2\n" {
		t.Errorf("turn 2: expected 2, got %q", out)
	}

	r, out = step(t, r, ft, `b := "x" + 1`)
	if !strings.Contains(out, "compilation failed") {
		t.Errorf("turn 3: expected compile failure, got %q", out)
	}

	_, out = step(t, r, ft, "a + 2")
	if out != "3\n" {
		t.Errorf("turn 4: expected 3, got %q", out)
	}

	if strings.Contains(tc.last(), `"x" + 1`) {
		t.Error("failed turn left residue in the generated source")
	}
	if n := len(d.File("lib").Contents); n != 3 {
		t.Errorf("expected 3 accepted inputs, got %d", n)
	}
}

func TestRepl_RollbackIdempotence(t *testing.T) {
	d, tc, _ := newTestData(t)
	tc.fail = []string{"undefinedThing"}
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, "x := 1")
	r, _ = step(t, r, ft, "y := x + 1\nz := y * 2")

	before := append([]source.Input(nil), d.File("lib").Contents...)
	sourceBefore := d.Source()

	_, out := step(t, r, ft, "w := undefinedThing")
	if out == "" {
		t.Fatal("expected the failing turn to print an error")
	}

	if !reflect.DeepEqual(d.File("lib").Contents, before) {
		t.Errorf("contents changed after rollback:\nbefore %+v\nafter  %+v", before, d.File("lib").Contents)
	}
	if d.Source() != sourceBefore {
		t.Error("generated source changed after rollback")
	}
}

func TestRepl_AccumulationOrder(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, "import \"strings\"\nx := strings.ToUpper(\"a\")")
	r, _ = step(t, r, ft, "import \"strings\"\ny := x + \"b\"")
	_, _ = step(t, r, ft, "import \"os\"\nn := len(os.Args)")

	src := d.Source()
	if c := strings.Count(src, `import "strings"`); c != 1 {
		t.Errorf("expected strings imported once, got %d", c)
	}

	order := []string{`import "fmt"`, `import "strings"`, `import "os"`, `x := strings.ToUpper("a")`, `y := x + "b"`, `n := len(os.Args)`}
	last := -1
	for _, s := range order {
		i := strings.Index(src, s)
		if i < 0 {
			t.Fatalf("missing %q in:\n%s", s, src)
		}
		if i < last {
			t.Errorf("%q out of order in:\n%s", s, src)
		}
		last = i
	}
}

func TestRepl_ArtifactUniqueness(t *testing.T) {
	d, _, ld := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	for i := 0; i < 5; i++ {
		r, _ = step(t, r, ft, "_ = 1")
	}

	if len(ld.paths) != 5 {
		t.Fatalf("expected 5 loads, got %d", len(ld.paths))
	}
	seen := make(map[string]bool)
	for _, p := range ld.paths {
		if seen[p] {
			t.Errorf("artifact path %s loaded twice", p)
		}
		seen[p] = true
	}
}

func TestRepl_SharedMutableSerialization(t *testing.T) {
	var inside, overlaps int32
	loader := linking.LoaderFunc(func(path, symbol string) (linking.EntryFunc, error) {
		return func(app any) (string, error) {
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.AddInt32(&overlaps, 1)
			}
			*app.(*int)++
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return "", nil
		}, nil
	})

	cell := linking.NewCell(0)
	var evals []*Evaluating
	for i := 0; i < 2; i++ {
		d, _, _ := newTestData(t, WithLoader(loader))
		ft := &fakeTerm{}
		ft.push("_ = 1")
		evals = append(evals, Start(ft, d).Read().EvalAsync(linking.Lock(cell)))
	}

	var wg sync.WaitGroup
	for _, ev := range evals {
		wg.Add(1)
		go func(ev *Evaluating) {
			defer wg.Done()
			if _, err := ev.Wait(); err != nil {
				t.Errorf("Wait failed: %v", err)
			}
		}(ev)
	}
	wg.Wait()

	if overlaps != 0 {
		t.Errorf("entry points ran concurrently %d times", overlaps)
	}
	cell.With(func(v *int) {
		if *v != 2 {
			t.Errorf("expected 2 calls, got %d", *v)
		}
	})
}

func TestRepl_EvalAsyncCompleted(t *testing.T) {
	d, _, ld := newTestData(t)
	ld.results["40 + 2"] = "42"
	ft := &fakeTerm{}
	ft.push("40 + 2")

	ev := Start(ft, d).Read().EvalAsync(linking.Own[any](nil))
	deadline := time.Now().Add(5 * time.Second)
	for !ev.Completed() {
		if time.Now().After(deadline) {
			t.Fatal("evaluation did not complete")
		}
		time.Sleep(time.Millisecond)
	}

	p, err := ev.Wait()
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if out, asOut := p.Output(); out != "42" || !asOut {
		t.Errorf("expected result 42, got %q (%v)", out, asOut)
	}
}

func TestRepl_CancelPendingInput(t *testing.T) {
	d, tc, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, out := step(t, r, ft, "func f() int {", ".cancel")
	if out != "cancelled input\n" {
		t.Errorf("expected cancel message, got %q", out)
	}
	if tc.builds != 0 {
		t.Errorf("cancel should not build, got %d builds", tc.builds)
	}
	if len(d.File("lib").Contents) != 0 {
		t.Error("cancel should not touch the module")
	}
	if len(ft.prompts) < 2 || ft.prompts[1] != continuationPrompt {
		t.Errorf("expected a continuation prompt, got %q", ft.prompts)
	}

	_, out = step(t, r, ft, "x := 2")
	if out != "" {
		t.Errorf("expected clean turn after cancel, got %q", out)
	}
	if strings.Contains(d.Source(), "func f()") {
		t.Error("cancelled input leaked into the program")
	}
}

func TestRepl_MultiLineInput(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	step(t, r, ft, "func sq(n int) int {", "\treturn n * n", "}")

	f := d.File("lib")
	if len(f.Contents) != 1 || len(f.Contents[0].Items) != 1 {
		t.Fatalf("expected one item, got %+v", f.Contents)
	}
	if !strings.Contains(d.Source(), "func sq(n int) int {\n\treturn n * n\n}") {
		t.Errorf("function not emitted verbatim:\n%s", d.Source())
	}
}

func TestRepl_ItemsOnlyNotExecuted(t *testing.T) {
	d, tc, ld := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	step(t, r, ft, "type point struct{ x, y int }")
	if tc.builds != 1 {
		t.Errorf("expected one build, got %d", tc.builds)
	}
	if len(ld.paths) != 0 {
		t.Errorf("expected no execution, got %d loads", len(ld.paths))
	}
}

func TestRepl_VoidTailRetry(t *testing.T) {
	d, tc, _ := newTestData(t)
	tc.noValue = []string{"doit()"}
	ft := &fakeTerm{}
	r := Start(ft, d)

	_, out := step(t, r, ft, "doit()")
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
	if !strings.Contains(tc.last(), "\tdoit()\n") || strings.Contains(tc.last(), "_replShow(doit())") {
		t.Errorf("expected doit() as a plain statement:\n%s", tc.last())
	}
	tail, _ := d.File("lib").Last().Tail()
	if !tail.Void {
		t.Error("expected the tail to be marked void")
	}
}

func TestRepl_InputError(t *testing.T) {
	d, tc, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	_, out := step(t, r, ft, "a := )")
	if !strings.Contains(out, "syntax error") {
		t.Errorf("expected syntax error, got %q", out)
	}
	if tc.builds != 0 || len(d.File("lib").Contents) != 0 {
		t.Error("syntax errors must not reach the toolchain")
	}
}

func TestRepl_SyntaxErrorDoesNotStall(t *testing.T) {
	d, tc, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	for _, bad := range []string{"a := )", "let b = ;", "x := 1 }"} {
		var out string
		r, out = step(t, r, ft, bad)
		if !strings.Contains(out, "syntax error") {
			t.Errorf("%q: expected syntax error, got %q", bad, out)
		}
	}

	_, out := step(t, r, ft, "x := 2")
	if out != "" {
		t.Errorf("expected a clean turn, got %q", out)
	}
	if tc.builds != 1 || len(d.File("lib").Contents) != 1 {
		t.Errorf("expected the next line to be its own turn, got %d builds", tc.builds)
	}
	for _, p := range ft.prompts {
		if p == continuationPrompt {
			t.Errorf("syntax errors must not ask for more input, prompts %q", ft.prompts)
			break
		}
	}
}

func TestRepl_DotLineInPendingInput(t *testing.T) {
	d, tc, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	_, out := step(t, r, ft, "x := math.Floor(", ".5)")
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
	if tc.builds != 1 || len(d.File("lib").Contents) != 1 {
		t.Fatalf("expected one accepted input, got %d builds", tc.builds)
	}
	if !strings.Contains(d.Source(), "x := math.Floor(\n\t.5)") {
		t.Errorf("continuation line missing from the program:\n%s", d.Source())
	}
	if len(ft.prompts) != 2 || ft.prompts[1] != continuationPrompt {
		t.Errorf("expected a continuation prompt, got %q", ft.prompts)
	}
}

func TestRepl_LoadedOnlyAfterExecution(t *testing.T) {
	var calls int32
	loader := linking.LoaderFunc(func(path, symbol string) (linking.EntryFunc, error) {
		n := atomic.AddInt32(&calls, 1)
		return func(any) (string, error) {
			if n > 1 {
				return "", errors.New("boom")
			}
			return "", nil
		}, nil
	})
	d, _, _ := newTestData(t, WithLoader(loader))
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, "a := 1")
	good := d.loaded
	if good == "" {
		t.Fatal("expected the executed artifact to be current")
	}

	r, out := step(t, r, ft, "b := 2")
	if !strings.Contains(out, "boom") {
		t.Fatalf("expected execution error, got %q", out)
	}
	if d.loaded != good {
		t.Errorf("rolled back generation marked current: %s, want %s", d.loaded, good)
	}

	_, out = step(t, r, ft, ".artifacts")
	if !strings.Contains(out, "* "+filepath.Base(good)) {
		t.Errorf("expected %s marked current, got %q", filepath.Base(good), out)
	}
}

func TestRepl_EarlierBuiltinTail(t *testing.T) {
	d, tc, ld := newTestData(t)
	ld.results["len(s)"] = "2"
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, "s := []int{1, 2}")
	r, out := step(t, r, ft, "len(s)")
	if out != "2\n" {
		t.Errorf("expected 2, got %q", out)
	}
	_, out = step(t, r, ft, "x := 3")
	if out != "" {
		t.Errorf("expected no output, got %q", out)
	}
	if !strings.Contains(tc.last(), "\t_replDiscard(len(s))\n") {
		t.Errorf("expected the earlier tail to be discarded:\n%s", tc.last())
	}
}

func TestRepl_ExecutionErrorRollsBack(t *testing.T) {
	loader := linking.LoaderFunc(func(path, symbol string) (linking.EntryFunc, error) {
		return func(any) (string, error) { return "", errors.New("runtime error: integer divide by zero") }, nil
	})
	d, _, _ := newTestData(t, WithLoader(loader))
	ft := &fakeTerm{}
	r := Start(ft, d)

	_, out := step(t, r, ft, "z := 0\n_ = 1 / z")
	if !strings.Contains(out, "integer divide by zero") {
		t.Errorf("expected the runtime error verbatim, got %q", out)
	}
	if len(d.File("lib").Contents) != 0 {
		t.Error("expected rollback after execution error")
	}
}

func TestRepl_Exit(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}

	ft.push(".exit")
	if _, err := Start(ft, d).Read().Eval(linking.Own[any](nil)); !errors.Is(err, ErrExit) {
		t.Errorf("expected ErrExit for .exit, got %v", err)
	}

	r := Start(ft, d)
	ev := r.Read()
	if ev.Result().Kind != Eof {
		t.Fatalf("expected eof, got %v", ev.Result().Kind)
	}
	if _, err := ev.Eval(linking.Own[any](nil)); !errors.Is(err, ErrExit) {
		t.Errorf("expected ErrExit at end of input, got %v", err)
	}
}

func TestRepl_ModuleCommands(t *testing.T) {
	d, tc, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, ".mod switch lib/foo")
	if d.Current() != "lib/foo" {
		t.Fatalf("expected current module lib/foo, got %s", d.Current())
	}
	r, _ = step(t, r, ft, "x := 1")
	if !strings.Contains(tc.last(), "func Eval_lib_foo(") {
		t.Errorf("expected an entry for lib/foo:\n%s", tc.last())
	}

	_, out := step(t, r, ft, ".mod list")
	if !strings.Contains(out, "* lib/foo (script, 1 input)") || !strings.Contains(out, "  lib (script, 0 inputs)") {
		t.Errorf("unexpected module list %q", out)
	}
}

func TestRepl_ClassNavigation(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, ".mod")
	if d.cmdr.AtRoot() {
		t.Fatal("expected to be inside mod")
	}
	r, _ = step(t, r, ft, "switch other")
	if d.Current() != "other" || !d.cmdr.AtRoot() {
		t.Errorf("expected switch to other and return to root, at %s in %s", d.cmdr.Path(), d.Current())
	}
	if ft.prompts[1] != "gorepl.mod> " {
		t.Errorf("unexpected prompt %q", ft.prompts[1])
	}
}

func TestRepl_SourceModule(t *testing.T) {
	d, _, ld := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, ".mod source hand")
	step(t, r, ft, "func Eval_hand(app any) (string, error) {", "\treturn \"hi\", nil", "}")

	if len(ld.paths) != 1 {
		t.Errorf("expected the source module to run, got %d loads", len(ld.paths))
	}
	if strings.Contains(d.Source(), "func Eval_hand(appAny any)") {
		t.Error("source modules must not get a synthesized entry")
	}
}

func TestRepl_DepCommand(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}
	r := Start(ft, d)

	step(t, r, ft, ".dep github.com/google/uuid v1.6.0")
	deps := d.File("lib").Last().Deps
	if len(deps) != 1 || deps[0].Spec != "v1.6.0" {
		t.Errorf("unexpected deps %+v", deps)
	}
}

func TestRepl_Journal(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatal(err)
	}
	d, tc, _ := newTestData(t, WithJournal(j))
	tc.fail = []string{"broken"}
	ft := &fakeTerm{}
	r := Start(ft, d)

	r, _ = step(t, r, ft, "x := 1")
	r, _ = step(t, r, ft, "y := broken")
	r, _ = step(t, r, ft, "func f() {}")

	turns, err := j.Last(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{journal.StatusOK, journal.StatusCompileError, journal.StatusNoExec}
	if len(turns) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(turns))
	}
	for i, s := range want {
		if turns[i].Status != s {
			t.Errorf("turn %d: expected %s, got %s", i, s, turns[i].Status)
		}
	}

	_, out := step(t, r, ft, ".history 2")
	if !strings.Contains(out, "y := broken") || strings.Contains(out, "x := 1") {
		t.Errorf("unexpected history %q", out)
	}
}

func TestRepl_ConsumedStatePanics(t *testing.T) {
	d, _, _ := newTestData(t)
	ft := &fakeTerm{}
	ft.push("x := 1")
	r := Start(ft, d)
	r.Read()

	defer func() {
		if recover() == nil {
			t.Error("expected reuse of a consumed state to panic")
		}
	}()
	r.Read()
}

func TestRepl_WordCompleter(t *testing.T) {
	d, _, _ := newTestData(t)
	d.files["lib/foo"] = source.NewFile("lib/foo", source.Script)
	complete := d.wordCompleter()

	head, got, _ := complete(".mod sw", 7)
	if head != ".mod " || !reflect.DeepEqual(got, []string{"switch"}) {
		t.Errorf("expected [switch] after %q, got %q", head, got)
	}

	head, got, _ = complete(".mod switch lib/", 16)
	if head != ".mod switch " || !reflect.DeepEqual(got, []string{"lib/foo"}) {
		t.Errorf("expected module completion, got %q %q", head, got)
	}

	if _, got, _ := complete("fmt.Pr", 6); got != nil {
		t.Errorf("program input should not complete, got %q", got)
	}
}
