package internal

// Marker constants
const (
	MarkOpen        = "<%"
	MarkClose       = "%>"
	MarkEscapeOpen  = "<%%"
	MarkEscapeClose = "%%>"
	MarkTrimClose   = "-%>"
)

// Marker suffix characters
const (
	CharPrint = '='
	CharRaw   = 'r'
	CharTrim  = '-'
)

// Undefined-name hints
const (
	undefinedPrefix    = "undefined: "
	MaxNameSuggestions = 3
)

// Character constants
const (
	CharNewline     = '\n'
	CharCarriageRet = '\r'
	CharSpace       = ' '
	CharTab         = '\t'
	CharFormFeed    = '\f'
	CharVerticalTab = '\v'
	CharDoubleQuote = '"'
	CharSingleQuote = '\''
	CharBackslash   = '\\'
	CharHash        = '#'
	CharColon       = ':'
)

// TabWidth is the column width a tab expands to when measuring indentation.
const TabWidth = 8

// IndentUnit is the indentation emitted per nesting level in generated source.
const IndentUnit = "    "

// Keyword constants
const (
	KeywordIf      = "if"
	KeywordFor     = "for"
	KeywordWhile   = "while"
	KeywordTry     = "try"
	KeywordWith    = "with"
	KeywordDef     = "def"
	KeywordClass   = "class"
	KeywordElif    = "elif"
	KeywordElse    = "else"
	KeywordExcept  = "except"
	KeywordFinally = "finally"
	KeywordEnd     = "end"
	KeywordAs      = "as"
	KeywordPass    = "pass"
)

// Helper names visible to embedded fragments
const (
	HelperConcat     = "concat"
	HelperCapture    = "capture"
	HelperCapturedAs = "captured_as"
	HelperBlock      = "block"
	HelperInclude    = "include"
	HelperExtends    = "extends"
	HelperCycle      = "cycle"
	HelperEscape     = "escape"
	HelperToStr      = "tostr"
	HelperFilter     = "filter"
	HelperTemplate   = "template_name"
)

// Helper keyword arguments
const (
	ArgCaptureAs = "capture_as"
)

// DefaultBlockName is the block name used when block() is called without one.
const DefaultBlockName = "content"

// Generated-source builtins used by the starlark lowering
const (
	BuiltinLiteral  = "__literal__"
	BuiltinEmit     = "__emit__"
	BuiltinEmitRaw  = "__emit_raw__"
	BuiltinEnter    = "__enter__"
	BuiltinExit     = "__exit__"
	BuiltinVars     = "__vars__"
	ThreadLocalKey  = "eepy.render_context"
	BackendStarlark = "starlark"
)

// Default limits
const (
	DefaultMaxDepth     = 100
	DefaultExcerptLines = 0 // whole template up to the failing line
)

// Log message constants
const (
	LogMsgLexerCreated       = "lexer created"
	LogMsgTokenizerEnd       = "tokenization complete"
	LogMsgCompileStart       = "starting compilation"
	LogMsgCompileEnd         = "compiled template program"
	LogMsgBackendCompiled    = "compiled backend unit"
	LogMsgBackendResolved    = "resolved backend program for variable set"
	LogMsgExecutorCreated    = "executor created"
	LogMsgExecutorStart      = "starting execution"
	LogMsgExecutorEnd        = "execution complete"
	LogMsgExecutionFailed    = "execution failed"
	LogMsgHookApplied        = "after-render hook applied"
	LogMsgIncludeStart       = "rendering included template"
	LogMsgExtendsRegistered  = "extends hook registered"
	LogMsgBlockClaimed       = "block already claimed, using registered content"
	LogMsgBlockRegistered    = "block registered"
	LogMsgScriptPrint        = "script print"
	LogMsgBufferStackUnwound = "buffer stack unwound after failure"
)

// Log field names
const (
	LogFieldSource       = "source_length"
	LogFieldTokens       = "token_count"
	LogFieldInstructions = "instruction_count"
	LogFieldTemplate     = "template"
	LogFieldPath         = "path"
	LogFieldLine         = "line"
	LogFieldDepth        = "depth"
	LogFieldBlock        = "block"
	LogFieldBackend      = "backend"
	LogFieldVariables    = "variable_count"
	LogFieldMessage      = "message"
	LogFieldHooks        = "hook_count"
	LogFieldBuffers      = "buffer_count"
)
