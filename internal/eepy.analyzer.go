package internal

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Role classifies one line of fragment code by its effect on block nesting.
type Role int

// Line roles
const (
	RolePlain Role = iota
	RoleStart
	RoleRestart
	RoleEnd
)

// Role names for debugging and serialization
const (
	RoleNamePlain   = "plain"
	RoleNameStart   = "start"
	RoleNameRestart = "restart"
	RoleNameEnd     = "end"
)

var roleNames = map[Role]string{
	RolePlain:   RoleNamePlain,
	RoleStart:   RoleNameStart,
	RoleRestart: RoleNameRestart,
	RoleEnd:     RoleNameEnd,
}

// String returns the string representation of the role
func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return RoleNamePlain
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	for role, name := range roleNames {
		if name == string(text) {
			*r = role
			return nil
		}
	}
	*r = RolePlain
	return nil
}

var startKeywords = map[string]bool{
	KeywordIf:    true,
	KeywordFor:   true,
	KeywordWhile: true,
	KeywordTry:   true,
	KeywordWith:  true,
	KeywordDef:   true,
	KeywordClass: true,
}

var restartKeywords = map[string]bool{
	KeywordElif:    true,
	KeywordElse:    true,
	KeywordExcept:  true,
	KeywordFinally: true,
}

// endLinePattern matches "end", "end if", "endif" and the like with an optional comment.
var endLinePattern = regexp.MustCompile(`^end\s*(?:(?:if|for|while|with|try|def)\b)?\s*(?:#.*)?$`)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*`)

// LineInfo is the classification of a single line of code.
type LineInfo struct {
	Role    Role
	Keyword string
	Inline  bool // block header with its body on the same line
}

// Classify determines the block role of a single line of fragment code.
func Classify(line string) LineInfo {
	trimmed := strings.TrimSpace(line)
	if endLinePattern.MatchString(trimmed) {
		return LineInfo{Role: RoleEnd, Keyword: KeywordEnd}
	}

	word := identPattern.FindString(trimmed)
	var role Role
	switch {
	case startKeywords[word]:
		role = RoleStart
	case restartKeywords[word]:
		role = RoleRestart
	default:
		return LineInfo{Role: RolePlain}
	}

	rest := trimmed[len(word):]
	colon := headerColon(rest)
	if colon < 0 {
		return LineInfo{Role: RolePlain}
	}
	body := strings.TrimSpace(StripComment(rest[colon+1:]))
	return LineInfo{Role: role, Keyword: word, Inline: body != ""}
}

// headerColon returns the index of the first colon outside strings and brackets,
// or -1 when a comment or the end of the line comes first.
func headerColon(s string) int {
	var quote byte
	depth := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == CharBackslash {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case CharDoubleQuote, CharSingleQuote:
			quote = ch
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case CharHash:
			return -1
		case CharColon:
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// StripComment removes a trailing comment that is not inside a string literal.
func StripComment(s string) string {
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == CharBackslash {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case CharDoubleQuote, CharSingleQuote:
			quote = ch
		case CharHash:
			return s[:i]
		}
	}
	return s
}

// isBlank reports whether a line holds neither code nor anything but a comment.
func isBlank(line string) bool {
	return strings.TrimSpace(StripComment(line)) == ""
}

// indentWidth returns the column of the first non-blank character, expanding tabs.
func indentWidth(line string) (width int, rest string) {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case CharSpace:
			width++
		case CharTab:
			width += TabWidth - width%TabWidth
		case CharFormFeed:
			width = 0
		default:
			return width, line[i:]
		}
	}
	return width, ""
}

// Analyzer tracks block nesting across the fragments of one template.
type Analyzer struct {
	depth      int
	prevInline bool
	logger     *zap.Logger
}

// NewAnalyzer creates an analyzer at depth zero.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{logger: logger}
}

// Depth returns the current nesting depth.
func (a *Analyzer) Depth() int {
	return a.depth
}

// Expression validates a print fragment and returns its instruction.
func (a *Analyzer) Expression(frag *Fragment) (Instruction, error) {
	a.prevInline = false
	if strings.TrimSpace(stripComments(frag.Code)) == "" {
		return Instruction{}, newCompileError(ErrMsgEmptyExpression, frag.Line)
	}
	return Instruction{
		Kind:  InstructionExpression,
		Text:  strings.TrimSpace(frag.Code),
		Raw:   frag.Raw,
		Line:  frag.Line,
		Depth: a.depth,
	}, nil
}

// Statement classifies a statement fragment, updates the nesting depth and returns
// the statement instructions it contributes.
func (a *Analyzer) Statement(frag *Fragment) ([]Instruction, error) {
	lines := strings.Split(frag.Code, "\n")

	code := -1
	count := 0
	for i, line := range lines {
		if !isBlank(line) {
			if code < 0 {
				code = i
			}
			count++
		}
	}

	switch count {
	case 0:
		a.prevInline = false
		return nil, nil
	case 1:
		return a.single(lines[code], frag.CodeLine(code))
	}
	return a.multi(lines, frag)
}

func (a *Analyzer) single(line string, lineNo int) ([]Instruction, error) {
	info := Classify(line)
	text := strings.TrimSpace(line)

	switch info.Role {
	case RoleEnd:
		a.prevInline = false
		a.depth--
		if a.depth < 0 {
			a.depth = 0
			return nil, newCompileError(ErrMsgEndWithoutBlock, lineNo)
		}
		return nil, nil

	case RoleRestart:
		if !a.prevInline {
			a.depth--
		}
		if a.depth < 0 {
			a.depth = 0
			return nil, newCompileError(ErrMsgRestartWithoutBlock, lineNo)
		}
	}

	inst := Instruction{
		Kind:    InstructionStatement,
		Text:    text,
		Role:    info.Role,
		Keyword: info.Keyword,
		Inline:  info.Inline,
		Line:    lineNo,
		Depth:   a.depth,
	}

	a.prevInline = false
	if info.Role == RoleStart || info.Role == RoleRestart {
		a.prevInline = info.Inline
		if !info.Inline {
			a.depth++
		}
	}
	return []Instruction{inst}, nil
}

// multi handles a fragment holding a self-contained block of statements whose
// nesting comes from its own relative indentation.
func (a *Analyzer) multi(lines []string, frag *Fragment) ([]Instruction, error) {
	a.prevInline = false
	if !isBlank(lines[0]) {
		return nil, newCompileError(ErrMsgMultiLineFirstLine, frag.CodeLine(0))
	}

	base := -1
	var out []Instruction
	for i := 1; i < len(lines); i++ {
		if isBlank(lines[i]) {
			continue
		}
		lineNo := frag.CodeLine(i)
		width, rest := indentWidth(lines[i])
		if base < 0 {
			base = width
		}
		if width < base {
			return nil, newCompileError(ErrMsgMultiLineDedent, lineNo)
		}

		info := Classify(rest)
		if info.Role == RoleEnd {
			return nil, newCompileError(ErrMsgEndInMultiLine, lineNo)
		}
		if len(out) == 0 && info.Role == RoleRestart {
			return nil, newCompileError(ErrMsgSplitBlock, lineNo)
		}

		out = append(out, Instruction{
			Kind:    InstructionStatement,
			Text:    strings.TrimRight(rest, " \t"),
			Role:    info.Role,
			Keyword: info.Keyword,
			Inline:  info.Inline,
			Indent:  width - base,
			Multi:   true,
			Line:    lineNo,
			Depth:   a.depth,
		})
	}

	last := out[len(out)-1]
	if (last.Role == RoleStart || last.Role == RoleRestart) && !last.Inline {
		return nil, newCompileError(ErrMsgSplitBlock, last.Line)
	}
	return out, nil
}

// stripComments removes comments from every line of s.
func stripComments(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = StripComment(line)
	}
	return strings.Join(lines, "\n")
}
