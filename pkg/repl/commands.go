package repl

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/mod/semver"

	"github.com/funvibe/gorepl/internal/artifact"
	"github.com/funvibe/gorepl/internal/cmdtree"
	"github.com/funvibe/gorepl/internal/compile"
	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/internal/journal"
	"github.com/funvibe/gorepl/internal/source"
)

// CommandResult is what a command action asks the loop to do.
type CommandResult int

const (
	// Handled needs nothing further.
	Handled CommandResult = iota
	// CancelInput drops input still waiting for more lines.
	CancelInput
)

const defaultHistory = 20

func (d *Data) commands() (*cmdtree.Commander[CommandResult], error) {
	return cmdtree.NewBuilder[CommandResult](config.AppName).
		AddAction("cancel", "drop pending multi-line input and return to the root", d.cmdCancel, "c").
		AddAction("dep", "declare a dependency: dep <import path> [version]", d.cmdDep).
		AddAction("history", "show the last turns: history [n]", d.cmdHistory).
		AddAction("artifacts", "list built artifact generations", d.cmdArtifacts).
		AddAction("redirect", "capture output of evaluated code: redirect on|off", d.cmdRedirect).
		AddAction("show", "print the generated entry source", d.cmdShow).
		BeginClass("mod", "module commands").
		AddAction("switch", "switch to a script module, creating it: switch <path>", d.cmdModSwitch).
		AddAction("source", "switch to a source module, creating it: source <path>", d.cmdModSource).
		AddAction("list", "list modules", d.cmdModList).
		EndClass().
		Build()
}

func (d *Data) cmdCancel(io.Writer, []string) CommandResult {
	d.cmdr.Reset()
	return CancelInput
}

func (d *Data) cmdModSwitch(w io.Writer, args []string) CommandResult {
	d.switchModule(w, args, source.Script)
	return Handled
}

func (d *Data) cmdModSource(w io.Writer, args []string) CommandResult {
	d.switchModule(w, args, source.Source)
	return Handled
}

func (d *Data) switchModule(w io.Writer, args []string, typ source.FileType) {
	if len(args) != 1 {
		fmt.Fprintln(w, "expected one module path")
		return
	}
	path := strings.Trim(args[0], "/")
	if err := source.ValidateModPath(path); err != nil {
		fmt.Fprintln(w, err)
		return
	}
	f, ok := d.files[path]
	switch {
	case !ok:
		d.files[path] = source.NewFile(path, typ)
	case f.Type != typ:
		fmt.Fprintf(w, "module %s is a %s module\n", path, f.Type)
		return
	}
	d.current = path
	d.cmdr.Reset()
}

func (d *Data) cmdModList(w io.Writer, _ []string) CommandResult {
	for _, p := range d.Modules() {
		f := d.files[p]
		mark := " "
		if p == d.current {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s (%s, %s)\n", mark, p, f.Type, plural(len(f.Contents), "input"))
	}
	return Handled
}

func (d *Data) cmdDep(w io.Writer, args []string) CommandResult {
	if len(args) == 0 || len(args) > 2 {
		fmt.Fprintln(w, "usage: dep <import path> [version]")
		return Handled
	}
	dep := source.Dependency{Name: args[0], Decl: fmt.Sprintf("import %q", args[0])}
	if len(args) == 2 && args[1] != "latest" {
		if !semver.IsValid(args[1]) {
			fmt.Fprintf(w, "invalid version %q\n", args[1])
			return Handled
		}
		dep.Spec = args[1]
	}
	if dep.Std() && dep.Spec != "" {
		fmt.Fprintf(w, "%s is a standard library package and cannot be pinned\n", dep.Name)
		return Handled
	}
	d.file().Append(source.Input{Deps: []source.Dependency{dep}})
	return Handled
}

func (d *Data) cmdHistory(w io.Writer, args []string) CommandResult {
	if d.journal == nil {
		fmt.Fprintln(w, "journal is disabled")
		return Handled
	}
	n := defaultHistory
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(w, "invalid count %q\n", args[0])
			return Handled
		}
		n = v
	}
	turns, err := d.journal.Last(context.Background(), n)
	if err != nil {
		fmt.Fprintln(w, err)
		return Handled
	}
	journal.Format(w, turns, time.Now())
	return Handled
}

func (d *Data) cmdArtifacts(w io.Writer, _ []string) CommandResult {
	dir := filepath.Dir(compile.ArtifactPath(d.dir, d.link))
	gens, err := artifact.List(dir, d.prefix)
	if err != nil {
		fmt.Fprintln(w, err)
		return Handled
	}
	if len(gens) == 0 {
		fmt.Fprintln(w, "no artifacts")
		return Handled
	}
	for _, g := range gens {
		mark := " "
		if g.Path == d.loaded {
			mark = "*"
		}
		fmt.Fprintf(w, "%s %s  %s  %s\n", mark, filepath.Base(g.Path), humanize.Bytes(uint64(g.Size)), humanize.Time(g.ModTime))
	}
	return Handled
}

func (d *Data) cmdRedirect(w io.Writer, args []string) CommandResult {
	if len(args) == 1 {
		switch args[0] {
		case "on":
			d.redirect = true
		case "off":
			d.redirect = false
		default:
			fmt.Fprintln(w, "usage: redirect on|off")
			return Handled
		}
	}
	state := "off"
	if d.redirect {
		state = "on"
	}
	fmt.Fprintf(w, "redirect is %s\n", state)
	return Handled
}

func (d *Data) cmdShow(w io.Writer, _ []string) CommandResult {
	io.WriteString(w, d.Source())
	return Handled
}

// argumentCompleters complete the arguments of actions, keyed by qualified
// action path.
func (d *Data) argumentCompleters() map[string]func(partial string) []string {
	modules := func(partial string) []string {
		var out []string
		for _, p := range d.Modules() {
			if strings.HasPrefix(p, partial) {
				out = append(out, p)
			}
		}
		return out
	}
	words := func(ws ...string) func(string) []string {
		return func(partial string) []string {
			var out []string
			for _, w := range ws {
				if strings.HasPrefix(w, partial) {
					out = append(out, w)
				}
			}
			sort.Strings(out)
			return out
		}
	}
	return map[string]func(string) []string{
		"mod.switch": modules,
		"mod.source": modules,
		"redirect":   words("on", "off"),
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return humanize.Comma(int64(n)) + " " + word + "s"
}
