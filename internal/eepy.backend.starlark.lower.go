package internal

import (
	"fmt"
	"regexp"
	"strings"
)

// prologueLines is the number of generated lines ahead of the template body.
const prologueLines = 1

const indentWidthUnit = len(IndentUnit)

// captureNamePattern matches a capture scope whose sink is a literal identifier,
// which the lowering binds as a global when the scope closes.
var captureNamePattern = regexp.MustCompile(`^capture\(\s*(["'])([A-Za-z_][A-Za-z0-9_]*)(["'])\s*\)$`)

// captureArgPattern matches an include argument naming a literal capture variable.
var captureArgPattern = regexp.MustCompile(`^capture_as\s*=\s*(["'])([A-Za-z_][A-Za-z0-9_]*)(["'])$`)

var unsupportedKeywords = map[string]bool{
	KeywordTry:     true,
	KeywordExcept:  true,
	KeywordFinally: true,
	KeywordClass:   true,
}

// lowered is the generated script body of a program.
type lowered struct {
	body string
	// owners maps each generated body line (0-based, prologue excluded) to
	// the instruction it came from, or -1.
	owners []int
	// scopes maps a with scope id to the instruction that opened it.
	scopes map[int]int
}

// instructionAt maps a 1-based generated source line to an instruction index.
func (l *lowered) instructionAt(line int) int {
	i := line - prologueLines - 1
	if i < 0 || i >= len(l.owners) {
		return -1
	}
	return l.owners[i]
}

type withFrame struct {
	depth int // template depth of the opening statement
	col   int // generated column of the opening statement
	exit  string
	inst  int
}

// columnFrame is a with scope opened inside a multi-line fragment.
type columnFrame struct {
	src     int // relative source column of the opening statement
	out     int // generated column of the opening statement
	delta   int // body indentation relative to src
	bodySet bool
	exit    string
	inst    int
}

type pendingHeader struct {
	col  int
	inst int
}

type lowerer struct {
	prog   *Program
	lines  []string
	owners []int
	frames []withFrame
	header *pendingHeader
	scopes map[int]int
	nextID int
}

// lower translates a program into starlark source. Literal text never enters the
// generated source; it is referenced by instruction index.
func lower(prog *Program) (*lowered, error) {
	l := &lowerer{prog: prog, scopes: make(map[int]int)}

	insts := prog.Instructions
	for i := 0; i < len(insts); i++ {
		inst := insts[i]
		if inst.Multi {
			j := i
			for j < len(insts) && insts[j].Multi && insts[j].Depth == inst.Depth {
				j++
			}
			if err := l.multi(i, j); err != nil {
				return nil, err
			}
			i = j - 1
			continue
		}
		if err := l.single(i); err != nil {
			return nil, err
		}
	}
	l.closeFrames(0)
	l.emit(0, "", -1)

	return &lowered{
		body:   strings.Join(l.lines, "\n"),
		owners: l.owners,
		scopes: l.scopes,
	}, nil
}

// emit writes text at col. A pending block header whose body would otherwise be
// empty receives a pass statement first.
func (l *lowerer) emit(col int, text string, inst int) {
	if h := l.header; h != nil {
		l.header = nil
		if col <= h.col {
			l.raw(h.col+indentWidthUnit, KeywordPass, h.inst)
		}
	}
	if text == "" {
		return
	}
	l.raw(col, text, inst)
}

func (l *lowerer) raw(col int, text string, inst int) {
	for i, line := range strings.Split(text, "\n") {
		if i == 0 {
			line = strings.Repeat(" ", col) + line
		}
		l.lines = append(l.lines, line)
		l.owners = append(l.owners, inst)
	}
}

// closeFrames emits the exits of with scopes opened at depth or deeper.
func (l *lowerer) closeFrames(depth int) {
	for n := len(l.frames); n > 0 && l.frames[n-1].depth >= depth; n = len(l.frames) {
		f := l.frames[n-1]
		l.frames = l.frames[:n-1]
		l.emit(f.col, f.exit, f.inst)
	}
}

func (l *lowerer) single(i int) error {
	inst := l.prog.Instructions[i]
	l.closeFrames(inst.Depth)
	col := (inst.Depth - len(l.frames)) * indentWidthUnit

	switch inst.Kind {
	case InstructionLiteral:
		l.emit(col, fmt.Sprintf("%s(%d)", BuiltinLiteral, i), i)
		return nil
	case InstructionExpression:
		l.emit(col, emitCall(inst), i)
		return nil
	}

	if unsupportedKeywords[inst.Keyword] {
		return unsupported(inst)
	}
	if inst.Keyword == KeywordWith && inst.Role == RoleStart {
		enter, body, exit, err := l.with(inst, i)
		if err != nil {
			return err
		}
		if inst.Inline {
			l.emit(col, enter+"; "+body+"; "+exit, i)
			return nil
		}
		l.emit(col, enter, i)
		l.frames = append(l.frames, withFrame{depth: inst.Depth, col: col, exit: exit, inst: i})
		return nil
	}

	l.emit(col, captureAssignment(inst), i)
	if (inst.Role == RoleStart || inst.Role == RoleRestart) && !inst.Inline {
		l.header = &pendingHeader{col: col, inst: i}
	}
	return nil
}

// multi lowers instructions [from, to) of one multi-line fragment. Nesting comes
// from the relative columns; with scopes are tracked per column.
func (l *lowerer) multi(from, to int) error {
	depth := l.prog.Instructions[from].Depth
	l.closeFrames(depth)
	base := (depth - len(l.frames)) * indentWidthUnit

	var frames []columnFrame
	closeTo := func(src int) {
		for n := len(frames); n > 0 && frames[n-1].src >= src; n = len(frames) {
			f := frames[n-1]
			frames = frames[:n-1]
			l.emit(base+f.out, f.exit, f.inst)
		}
	}

	for i := from; i < to; i++ {
		inst := l.prog.Instructions[i]
		if unsupportedKeywords[inst.Keyword] {
			return unsupported(inst)
		}

		closeTo(inst.Indent)
		shift := 0
		if n := len(frames); n > 0 && !frames[n-1].bodySet {
			frames[n-1].delta = inst.Indent - frames[n-1].src
			frames[n-1].bodySet = true
		}
		for _, f := range frames {
			shift += f.delta
		}
		out := inst.Indent - shift

		if inst.Keyword == KeywordWith && inst.Role == RoleStart {
			enter, body, exit, err := l.with(inst, i)
			if err != nil {
				return err
			}
			if inst.Inline {
				l.emit(base+out, enter+"; "+body+"; "+exit, i)
				continue
			}
			l.emit(base+out, enter, i)
			frames = append(frames, columnFrame{src: inst.Indent, out: out, exit: exit, inst: i})
			continue
		}
		l.emit(base+out, captureAssignment(inst), i)
	}
	closeTo(0)
	return nil
}

// with splits a with statement into its scope entry, inline body and scope exit.
func (l *lowerer) with(inst Instruction, i int) (enter, body, exit string, err error) {
	rest := strings.TrimSpace(inst.Text[len(KeywordWith):])
	colon := headerColon(rest)
	if colon < 0 {
		return "", "", "", &CompileError{Message: ErrMsgBackendSyntax, Line: inst.Line}
	}
	expr, name := splitAs(strings.TrimSpace(rest[:colon]))
	body = strings.TrimSpace(StripComment(rest[colon+1:]))

	id := l.nextID
	l.nextID++
	l.scopes[id] = i

	enter = fmt.Sprintf("%s(%d, %s)", BuiltinEnter, id, expr)
	if name != "" {
		enter = name + " = " + enter
	}
	exit = fmt.Sprintf("%s(%d)", BuiltinExit, id)
	if m := captureNamePattern.FindStringSubmatch(expr); m != nil && m[1] == m[3] {
		exit = m[2] + " = " + exit
	}
	return enter, body, exit, nil
}

// captureAssignment binds the result of a bare include statement whose capture
// variable is a literal name, so later fragments can refer to it.
func captureAssignment(inst Instruction) string {
	if inst.Role != RolePlain || inst.Keyword != "" {
		return inst.Text
	}
	call := strings.TrimSpace(StripComment(inst.Text))
	if !strings.HasPrefix(call, HelperInclude+"(") {
		return inst.Text
	}
	for _, arg := range callArgs(call[len(HelperInclude):]) {
		m := captureArgPattern.FindStringSubmatch(arg)
		if m != nil && m[1] == m[3] {
			return m[2] + " = " + inst.Text
		}
	}
	return inst.Text
}

// callArgs splits "(a, b=c)" into its top-level arguments. It returns nil unless
// the parentheses enclose the whole text.
func callArgs(s string) []string {
	var (
		args  []string
		quote byte
		depth int
		start = 1
	)
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
			depth--
			if depth == 0 {
				if i != len(s)-1 {
					return nil
				}
				return append(args, strings.TrimSpace(s[start:i]))
			}
		case ',':
			if depth == 1 {
				args = append(args, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return nil
}

// splitAs separates "EXPR as NAME" at the last top-level "as".
func splitAs(header string) (expr, name string) {
	var quote byte
	depth := 0
	at := -1
	for i := 0; i < len(header); i++ {
		ch := header[i]
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
		case CharSpace, CharTab:
			if depth == 0 && strings.HasPrefix(header[i+1:], KeywordAs) {
				after := header[i+1+len(KeywordAs):]
				if after != "" && (after[0] == CharSpace || after[0] == CharTab) {
					at = i
				}
			}
		}
	}
	if at < 0 {
		return header, ""
	}
	return strings.TrimSpace(header[:at]), strings.TrimSpace(header[at+1+len(KeywordAs):])
}

// emitCall wraps an expression in its output builtin. A trailing comment would
// swallow the closing parenthesis, so the call is closed on a new line.
func emitCall(inst Instruction) string {
	fn := BuiltinEmit
	if inst.Raw {
		fn = BuiltinEmitRaw
	}
	text := inst.Text
	if stripComments(text) != text {
		return fn + "(" + text + "\n)"
	}
	return fn + "(" + text + ")"
}

func unsupported(inst Instruction) error {
	return &CompileError{
		Message: fmt.Sprintf("%s: %s", ErrMsgUnsupportedStatement, inst.Keyword),
		Line:    inst.Line,
	}
}
