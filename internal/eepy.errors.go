package internal

import (
	"fmt"
	"strings"
)

// Error message constants
const (
	ErrMsgUnterminatedFragment = "unterminated fragment"
	ErrMsgEndWithoutBlock      = "end without matching open block"
	ErrMsgRestartWithoutBlock  = "block restart without matching open block"
	ErrMsgMultiLineFirstLine   = "code must not follow the opening marker of a multi-line fragment"
	ErrMsgMultiLineDedent      = "line is dedented below the base indentation of its multi-line fragment"
	ErrMsgSplitBlock           = "block context split across fragments; a multi-line fragment must contain whole blocks"
	ErrMsgEndInMultiLine       = "end marker inside a multi-line fragment"
	ErrMsgEmptyExpression      = "empty expression fragment"
	ErrMsgUnsupportedStatement = "statement is not supported by the script backend"
	ErrMsgBackendSyntax        = "invalid script syntax"
	ErrMsgExecutionFailed      = "template execution failed"
	ErrMsgNoRenderContext      = "helper called outside an active render context"
	ErrMsgNoLoader             = "no template loader available"
	ErrMsgMaxDepthExceeded     = "maximum template nesting depth exceeded"
	ErrMsgScopeMismatch        = "with scope exited out of order (return or break inside a with block?)"
	ErrMsgScopeUnclosed        = "with scope left open at end of template"
	ErrMsgNotAScope            = "value used in with statement is not a block or capture scope"
	ErrMsgBufferUnderflow      = "output buffer stack underflow"
	ErrMsgEmptyCycle           = "cycle requires at least one value"
	ErrMsgInvalidCaptureSink   = "capture target must be a name, a (container, name) pair or a callable"
	ErrMsgInvalidContainer     = "capture container does not support item assignment"
	ErrMsgNilProgram           = "program is nil"
	ErrMsgUnknownBackend       = "unknown script backend"
	ErrMsgInvalidArgument      = "invalid argument"
)

// CompileError reports a failure while turning template text into a program.
type CompileError struct {
	Message  string
	Template string
	Line     int
	Excerpt  string
	Cause    error
}

func (e *CompileError) Error() string {
	var sb strings.Builder
	if e.Template != "" {
		sb.WriteString(e.Template)
		sb.WriteString(":")
	}
	fmt.Fprintf(&sb, "%d: %s", e.Line, e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// RenderError reports a script failure mapped back to its template line.
type RenderError struct {
	Template string
	Line     int
	Excerpt  string
	Cause    error
}

func (e *RenderError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrMsgExecutionFailed)
	if e.Template != "" {
		sb.WriteString(" in ")
		sb.WriteString(e.Template)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d", e.Line)
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *RenderError) Unwrap() error {
	return e.Cause
}

// MisuseError reports a helper used in a way the render protocol forbids.
type MisuseError struct {
	Helper  string
	Message string
}

func (e *MisuseError) Error() string {
	if e.Helper == "" {
		return e.Message
	}
	return e.Helper + ": " + e.Message
}

func newCompileError(msg string, line int) *CompileError {
	return &CompileError{Message: msg, Line: line}
}

// Excerpt returns up to n source lines ending at line, each prefixed with its number.
// A non-positive n returns every line from the top of the source.
func Excerpt(source string, line, n int) string {
	if line <= 0 {
		return ""
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		line = len(lines)
	}
	start := 0
	if n > 0 && line > n {
		start = line - n
	}
	var sb strings.Builder
	for i := start; i < line; i++ {
		fmt.Fprintf(&sb, "%4d | %s", i+1, lines[i])
		if i < line-1 {
			sb.WriteByte(CharNewline)
		}
	}
	return sb.String()
}
