package config

// AppName is the command name and the root of the command namespace.
const AppName = "gorepl"

// Version is reported by --version.
var Version = "0.3.0"

// Configuration file names, searched for from the working directory upwards.
var ConfigFileNames = []string{"gorepl.yaml", "gorepl.yml"}

// Compilation directory layout.
const (
	ManifestFile = "go.mod"
	SourceDir    = "src"
	EntrySource  = "main.go"
	TargetDir    = "target/debug"
	JournalFile  = "journal.db"
)

// Module defaults.
const (
	RootModule = "lib"
	// EntryPrefix is prepended to the sanitized module path to form the
	// exported entry symbol.
	EntryPrefix = "Eval_"
	// CommandPrefix marks a command line while the namespace is at its root.
	CommandPrefix = "."
)

// Defaults for omitted configuration fields.
const (
	DefaultGoCommand   = "go"
	DefaultRetain      = 2
	DefaultHistoryFile = ".gorepl_history"
)

// Environment variables.
const (
	// EnvDir overrides the compilation directory.
	EnvDir = "GOREPL_DIR"
	// EnvE2E enables tests that drive the real go toolchain.
	EnvE2E = "GOREPL_E2E"
)
