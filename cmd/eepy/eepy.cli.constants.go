package main

// Command names
const (
	CmdNameRender  = "render"
	CmdNameCompile = "compile"
	CmdNameCheck   = "check"
	CmdNameVersion = "version"
)

// Flag names - long form
const (
	FlagBase         = "base"
	FlagConfig       = "config"
	FlagData         = "data"
	FlagDataFile     = "data-file"
	FlagOutput       = "output"
	FlagFilter       = "filter"
	FlagEncoding     = "encoding"
	FlagMaxDepth     = "max-depth"
	FlagExcerpt      = "excerpt-lines"
	FlagInstructions = "instructions"
	FlagFormat       = "format"
	FlagVerbose      = "verbose"
)

// Flag names - short form
const (
	FlagBaseShort     = "b"
	FlagConfigShort   = "c"
	FlagDataShort     = "d"
	FlagDataFileShort = "f"
	FlagOutputShort   = "o"
	FlagFormatShort   = "F"
)

// Flag default values
const (
	FlagDefaultOutput = "-"
	FlagDefaultFormat = OutputFormatText
)

// Output formats
const (
	OutputFormatText = "text"
	OutputFormatJSON = "json"
)

// Exit codes
const (
	ExitCodeSuccess         = 0
	ExitCodeError           = 1
	ExitCodeUsageError      = 2
	ExitCodeValidationError = 3
	ExitCodeInputError      = 4
)

// Input source indicators
const (
	InputSourceStdin = "-"
)

// Error messages
const (
	ErrMsgMissingTemplate   = "template source required"
	ErrMsgInvalidData       = "invalid template data"
	ErrMsgReadFileFailed    = "failed to read file"
	ErrMsgWriteOutputFailed = "failed to write output"
	ErrMsgCompileFailed     = "template compilation failed"
	ErrMsgRenderFailed      = "template rendering failed"
	ErrMsgInvalidFormat     = "invalid output format"
	ErrMsgConfigFailed      = "invalid configuration"
	ErrMsgCheckFailed       = "template check failed"
)

// Usage strings
const (
	UsageRoot         = "Compile and render markup templates with embedded script"
	UsageRender       = "Render a template with data"
	UsageCompile      = "Print the generated script of a template"
	UsageCheck        = "Compile templates and report errors"
	UsageVersion      = "Show version information"
	UsageBase         = "Directory that relative template paths resolve against"
	UsageConfig       = "YAML configuration file"
	UsageData         = "YAML or JSON data string"
	UsageDataFile     = "YAML or JSON data file"
	UsageOutput       = "Output file (default: stdout)"
	UsageFilter       = "Expression filter: identity, escape"
	UsageEncoding     = "Template file encoding"
	UsageMaxDepth     = "Maximum include/extends nesting depth"
	UsageExcerpt      = "Template lines quoted in error excerpts (0: all lines up to the error)"
	UsageInstructions = "Print the instruction list instead of the generated script"
	UsageFormat       = "Output format: text, json"
	UsageVerbose      = "Log template loading to stderr"
	ArgsUsageTemplate = "<template | ->"
	ArgsUsageMany     = "<template>..."
)

// Check output
const (
	CheckTextOK     = "%s: ok"
	CheckTextFailed = "%s:%d: %s"
	CheckExcerpt    = "%s"
)

// Version output
const (
	VersionTextTemplate = "eepy version %s\nGo: %s"
)

// CLI metadata
const (
	CLIName = "eepy"
)

// File permission constant
const (
	FilePermissions = 0644
)

// Format string constants
const (
	FmtNewline = "\n"
)
