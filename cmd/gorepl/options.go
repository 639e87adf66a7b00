package main

import (
	"fmt"

	"github.com/docopt/docopt-go"

	"github.com/funvibe/gorepl/internal/config"
)

var usage = `gorepl

Usage:
  gorepl [options]
  gorepl -h | --help
  gorepl --version

Options:
  -c, --config=FILE  Use FILE instead of searching for gorepl.yaml.
  -d, --dir=DIR      Compile in DIR instead of a fresh temporary directory.
  -v, --verbose      Log build steps to stderr.
  -a, --async        Evaluate on a background goroutine.
  --no-redirect      Do not capture output of evaluated code.
  -h, --help         Display this help.
  --version          Print gorepl version.

Lines starting with "." are commands; type .help for the list.
`

type options struct {
	Config     string
	Dir        string
	Verbose    bool
	Async      bool
	NoRedirect bool
}

func parseOptions(argv []string) (*options, error) {
	parser := &docopt.Parser{HelpHandler: docopt.PrintHelpAndExit}
	opts, err := parser.ParseArgs(usage, argv, config.Version)
	if err != nil {
		return nil, fmt.Errorf("parsing arguments: %w", err)
	}

	var o options
	o.Config, _ = opts.String("--config")
	o.Dir, _ = opts.String("--dir")
	o.Verbose, _ = opts.Bool("--verbose")
	o.Async, _ = opts.Bool("--async")
	o.NoRedirect, _ = opts.Bool("--no-redirect")
	return &o, nil
}
