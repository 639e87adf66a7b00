// Package compile materializes the accumulated program into a compilation
// directory and drives the go toolchain to build it as a plugin.
//
// A compilation directory looks like:
//
//	<dir>/go.mod
//	<dir>/src/main.go
//	<dir>/target/debug/<crate>.so
package compile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/pkg/linking"
)

// Artifact is a built plugin.
type Artifact struct {
	// Path is where the toolchain wrote the plugin.
	Path string
	// Tag is the package path of the plugin, unique per build.
	Tag string
}

// Toolchain invokes the go command.
type Toolchain struct {
	// Go is the go command. Defaults to "go".
	Go string

	// Env is appended to the environment of every invocation.
	Env []string

	// Log receives verbose output. May be nil.
	Log *log.Logger
}

// Process is a running build.
type Process struct {
	cmd      *exec.Cmd
	stderr   io.ReadCloser
	artifact Artifact
	diag     strings.Builder
	drained  bool
}

// ArtifactPath returns where a build of link's crate in dir is written.
func ArtifactPath(dir string, link linking.Config) string {
	name := link.CrateName()
	if runtime.GOOS == "windows" {
		name += ".dll"
	} else {
		name += ".so"
	}
	return filepath.Join(dir, filepath.FromSlash(config.TargetDir), name)
}

// Compile starts building the program in dir and returns without waiting.
// The go toolchain has no warning tier, so only errors and module download
// progress reach the diagnostics stream.
func (t *Toolchain) Compile(dir string, link linking.Config) (*Process, error) {
	goCmd := t.Go
	if goCmd == "" {
		goCmd = config.DefaultGoCommand
	}
	bin, err := exec.LookPath(goCmd)
	if err != nil {
		return nil, &InitialisingError{Kind: NoBuildCommand, Err: err}
	}

	module, err := manifestModule(dir)
	if err != nil {
		return nil, ioError("%v", err)
	}
	artifact := Artifact{
		Path: ArtifactPath(dir, link),
		Tag:  module + "/" + config.SourceDir,
	}
	if err := os.MkdirAll(filepath.Dir(artifact.Path), 0o755); err != nil {
		return nil, ioError("failed creating directory %s: %v", filepath.Dir(artifact.Path), err)
	}

	args := []string{
		"build",
		"-buildmode=plugin",
		"-mod=mod",
		"-o", artifact.Path,
		"./" + config.SourceDir,
	}
	cmd := exec.Command(bin, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off", "CGO_ENABLED=1")
	cmd.Env = append(cmd.Env, t.Env...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, ioError("creating stderr pipe: %v", err)
	}

	logf(t.Log, "%s %s", goCmd, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return nil, &InitialisingError{Kind: NoBuildCommand, Err: err}
	}

	return &Process{cmd: cmd, stderr: stderr, artifact: artifact}, nil
}

// Lines streams the toolchain's diagnostics line by line until the process
// closes its output. fn may be nil.
func (p *Process) Lines(fn func(line string)) error {
	if p.drained {
		return nil
	}
	p.drained = true

	sc := bufio.NewScanner(p.stderr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		p.diag.WriteString(line)
		p.diag.WriteByte('\n')
		if fn != nil {
			fn(line)
		}
	}
	return sc.Err()
}

// Wait blocks until the build exits. A zero status yields the artifact; any
// other status yields a *CompileError.
func (p *Process) Wait() (Artifact, error) {
	if !p.drained {
		_ = p.Lines(nil)
	}

	err := p.cmd.Wait()
	if err == nil {
		return p.artifact, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Artifact{}, &CompileError{Diagnostics: p.diag.String(), ExitCode: exitErr.ExitCode()}
	}
	return Artifact{}, &CompileError{Diagnostics: p.diag.String() + err.Error(), ExitCode: -1}
}

// Build compiles dir, streaming diagnostics to progress, and returns the
// path of the built artifact.
func (t *Toolchain) Build(dir string, link linking.Config, progress func(line string)) (string, error) {
	p, err := t.Compile(dir, link)
	if err != nil {
		return "", err
	}
	if err := p.Lines(progress); err != nil {
		logf(t.Log, "reading diagnostics: %v", err)
	}
	artifact, err := p.Wait()
	if err != nil {
		return "", err
	}
	logf(t.Log, "built %s (%s)", artifact.Path, artifact.Tag)
	return artifact.Path, nil
}

// manifestModule returns the module path written to the manifest in dir.
func manifestModule(dir string) (string, error) {
	path := filepath.Join(dir, config.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	module := modfile.ModulePath(data)
	if module == "" {
		return "", fmt.Errorf("%s has no module directive", path)
	}
	return module, nil
}

// ResolvedVersions reads the manifest in dir after a build and returns the
// module versions the toolchain settled on, ignoring indirect requirements.
func ResolvedVersions(dir string) (map[string]string, error) {
	path := filepath.Join(dir, config.ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	versions := make(map[string]string)
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		versions[r.Mod.Path] = r.Mod.Version
	}
	return versions, nil
}
