package repl

import (
	"strings"

	"github.com/funvibe/gorepl/internal/complete"
	"github.com/funvibe/gorepl/internal/term"
)

// wordCompleter completes commands from the namespace position at the time
// it is built. Program input is not completed.
func (d *Data) wordCompleter() term.WordCompleter {
	tree := complete.BuildTree(d.cmdr)
	actions := complete.BuildActions(d.cmdr)
	atRoot := d.cmdr.AtRoot()

	return func(line string, pos int) (string, []string, string) {
		head, tail := line[:pos], line[pos:]
		if atRoot && !strings.HasPrefix(head, complete.RootMarker) {
			return head, nil, tail
		}

		wordStart := strings.LastIndexByte(head, ' ') + 1
		word := head[wordStart:]

		for _, c := range actions.Candidates(word, head, wordStart) {
			if args, ok := d.argCompl[c.QualifiedPath]; ok {
				return head[:wordStart], args(word), tail
			}
		}
		return head[:wordStart], tree.Complete(word, head, wordStart), tail
	}
}
