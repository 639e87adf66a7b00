// Package artifact gives every freshly built plugin a name the dynamic loader
// has never seen.
//
// plugin.Open caches by path and a loaded plugin cannot be unloaded, so a
// rebuilt artifact loaded from the same path would hand back the first
// generation's code. Versioned renames each build to the lowest unused
// <prefix>.<n>; Fixed is the no-op strategy for loaders without that quirk.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/michaelmacinnis/adapted"
)

// Identity assigns a loadable identity to a freshly built artifact and
// returns the path to load it from.
type Identity interface {
	Assign(path string) (string, error)
}

// Fixed always reuses the build path.
type Fixed struct{}

func (Fixed) Assign(path string) (string, error) {
	return path, nil
}

// Versioned renames artifacts to <Prefix>.<n> next to the build output.
type Versioned struct {
	// Prefix of every generation name.
	Prefix string

	// Retain is how many of the newest generations are kept on disk after
	// an assignment. Zero keeps everything.
	Retain int

	mu   sync.Mutex
	next int
}

// NewVersioned returns a versioner whose counter starts at 0.
func NewVersioned(prefix string, retain int) *Versioned {
	return &Versioned{Prefix: prefix, Retain: retain}
}

// Assign moves path to the lowest unused generation name at or above the
// counter. Names are probed on disk so generations left by another process
// in the same directory are skipped rather than overwritten.
func (v *Versioned) Assign(path string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	dir := filepath.Dir(path)
	for {
		target := filepath.Join(dir, v.name(v.next))
		_, err := os.Lstat(target)
		if os.IsNotExist(err) {
			if err := os.Rename(path, target); err != nil {
				return "", fmt.Errorf("renaming artifact: %w", err)
			}
			v.next++
			if err := v.prune(dir); err != nil {
				return target, err
			}
			return target, nil
		}
		if err != nil {
			return "", fmt.Errorf("probing %s: %w", target, err)
		}
		v.next++
	}
}

func (v *Versioned) name(n int) string {
	return v.Prefix + "." + strconv.Itoa(n)
}

func (v *Versioned) prune(dir string) error {
	if v.Retain <= 0 {
		return nil
	}
	gens, err := List(dir, v.Prefix)
	if err != nil {
		return err
	}
	if len(gens) <= v.Retain {
		return nil
	}
	for _, g := range gens[:len(gens)-v.Retain] {
		if err := os.Remove(g.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("pruning %s: %w", g.Path, err)
		}
	}
	return nil
}

// Generation is one renamed artifact on disk.
type Generation struct {
	Path    string
	N       int
	Size    int64
	ModTime time.Time
}

// List returns the generations named <prefix>.<n> in dir, oldest first.
func List(dir, prefix string) ([]Generation, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	pattern := prefix + ".*"
	var gens []Generation
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ok, err := adapted.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", pattern, err)
		}
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(e.Name(), prefix+"."))
		if err != nil || n < 0 {
			continue
		}
		g := Generation{Path: filepath.Join(dir, e.Name()), N: n}
		if info, err := e.Info(); err == nil {
			g.Size = info.Size()
			g.ModTime = info.ModTime()
		}
		gens = append(gens, g)
	}

	sort.Slice(gens, func(i, j int) bool { return gens[i].N < gens[j].N })
	return gens, nil
}
