package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/gorepl/internal/config"
	"github.com/funvibe/gorepl/internal/term"
	"github.com/funvibe/gorepl/pkg/linking"
	"github.com/funvibe/gorepl/pkg/repl"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, opts.Async); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(opts *options) (*config.Config, error) {
	path := opts.Config
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = config.FindConfig(wd); err != nil {
			return nil, err
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	if opts.Dir != "" {
		cfg.CompileDir = opts.Dir
	} else if dir := os.Getenv(config.EnvDir); dir != "" {
		cfg.CompileDir = dir
	}
	if opts.Verbose {
		cfg.Verbose = true
	}
	if opts.NoRedirect {
		off := false
		cfg.Redirect = &off
	}
	return cfg, nil
}

func run(cfg *config.Config, async bool) error {
	data, err := repl.FromConfig(cfg)
	if err != nil {
		return err
	}
	defer data.Close()

	var t term.Terminal
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		t = term.NewLiner(cfg.HistoryPath())
	} else {
		t = term.NewStream(os.Stdin, os.Stdout)
	}
	defer t.Close()

	if cfg.Verbose {
		fmt.Fprintf(os.Stderr, "[%s] compiling in %s\n", config.AppName, data.Dir())
	}

	read := repl.Start(t, data)
	for {
		eval := read.Read()

		var (
			p   *repl.Print
			err error
		)
		if async {
			p, err = eval.EvalAsync(linking.Own[any](nil)).Wait()
		} else {
			p, err = eval.Eval(linking.Own[any](nil))
		}
		if errors.Is(err, repl.ErrExit) {
			return nil
		}
		if err != nil {
			return err
		}
		read = p.Print()
	}
}
