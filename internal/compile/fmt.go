package compile

import (
	"log"
	"os"

	"golang.org/x/tools/imports"
)

// Fmt formats the generated entry source in dir and fixes its imports,
// dropping unused ones and adding missing standard library ones. It is best
// effort: any failure is logged to logger (which may be nil) and leaves the
// file as it was. It reports whether the file was rewritten.
func Fmt(dir string, logger *log.Logger) bool {
	path := EntryPath(dir)
	src, err := os.ReadFile(path)
	if err != nil {
		logf(logger, "fmt: %v", err)
		return false
	}

	out, err := imports.Process(path, src, &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		logf(logger, "fmt: %v", err)
		return false
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		logf(logger, "fmt: %v", err)
		return false
	}
	return true
}

func logf(logger *log.Logger, format string, args ...any) {
	if logger != nil {
		logger.Printf(format, args...)
	}
}
