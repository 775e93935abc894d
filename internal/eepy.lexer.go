package internal

import (
	"strings"

	"go.uber.org/zap"
)

// Lexer splits template source into literal spans and fragments.
type Lexer struct {
	source string
	pos    int // Current byte position
	line   int // Current line (1-indexed)
	done   bool
	logger *zap.Logger
}

// NewLexer creates a lexer over source. Line terminators are normalised to "\n".
func NewLexer(source string, logger *zap.Logger) *Lexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	source = NormalizeNewlines(source)
	logger.Debug(LogMsgLexerCreated, zap.Int(LogFieldSource, len(source)))
	return &Lexer{
		source: source,
		line:   1,
		logger: logger,
	}
}

// NormalizeNewlines converts "\r\n" and "\r" line terminators to "\n".
func NormalizeNewlines(s string) string {
	if strings.IndexByte(s, CharCarriageRet) < 0 {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

// Tokenize consumes the whole source.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, ok, err := l.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}
	l.logger.Debug(LogMsgTokenizerEnd, zap.Int(LogFieldTokens, len(tokens)))
	return tokens, nil
}

// Next returns the next literal span and the fragment following it.
// ok is false once the trailing literal span has been returned.
func (l *Lexer) Next() (tok Token, ok bool, err error) {
	if l.done {
		return Token{}, false, nil
	}

	var text []byte
	textLine := l.line
	for !l.isAtEnd() {
		switch {
		case l.matchStr(MarkEscapeOpen):
			text = append(text, MarkOpen...)
			l.pos += len(MarkEscapeOpen)
		case l.matchStr(MarkEscapeClose):
			text = append(text, MarkClose...)
			l.pos += len(MarkEscapeClose)
		case l.matchStr(MarkOpen):
			frag, trim, err := l.scanFragment()
			if err != nil {
				return Token{}, false, err
			}
			if trim > 0 {
				text = text[:len(text)-trim]
			}
			return Token{Text: string(text), TextLine: textLine, Fragment: frag}, true, nil
		default:
			ch := l.source[l.pos]
			text = append(text, ch)
			l.pos++
			if ch == CharNewline {
				l.line++
			}
		}
	}

	l.done = true
	return Token{Text: string(text), TextLine: textLine}, true, nil
}

// scanFragment scans from an open marker through its close marker.
// trim reports how many trailing bytes of the pending literal the trim-open marker removes.
func (l *Lexer) scanFragment() (frag *Fragment, trim int, err error) {
	openLine := l.line
	openPos := l.pos
	p := l.pos + len(MarkOpen)
	frag = &Fragment{Kind: FragmentStatement, Line: openLine}

	switch {
	case p < len(l.source) && l.source[p] == CharPrint:
		frag.Kind = FragmentExpression
		p++
		if p+1 < len(l.source) && l.source[p] == CharRaw && isSpace(l.source[p+1]) {
			frag.Raw = true
			p++
		}
	case p < len(l.source) && l.source[p] == CharTrim:
		p++
		trim = l.leadingBlanks(openPos)
	}

	var code []byte
	line := openLine
	lines := []int{openLine}
	var quote byte
	inComment := false

	for p < len(l.source) {
		ch := l.source[p]

		if quote != 0 {
			if ch == CharBackslash && p+1 < len(l.source) {
				code = append(code, ch, l.source[p+1])
				if l.source[p+1] == CharNewline {
					line++
					lines = append(lines, line)
				}
				p += 2
				continue
			}
			if ch == quote {
				quote = 0
			}
			if ch == CharNewline {
				line++
				lines = append(lines, line)
			}
			code = append(code, ch)
			p++
			continue
		}

		if strings.HasPrefix(l.source[p:], MarkTrimClose) {
			end := l.trimAfterClose(p + len(MarkTrimClose))
			l.finishFragment(frag, code, lines, end)
			return frag, trim, nil
		}
		if strings.HasPrefix(l.source[p:], MarkEscapeClose) {
			code = append(code, MarkClose...)
			p += len(MarkEscapeClose)
			continue
		}
		if strings.HasPrefix(l.source[p:], MarkClose) {
			l.finishFragment(frag, code, lines, p+len(MarkClose))
			return frag, trim, nil
		}

		switch {
		case ch == CharNewline:
			inComment = false
			line++
			lines = append(lines, line)
		case inComment:
		case ch == CharHash:
			inComment = true
		case ch == CharDoubleQuote || ch == CharSingleQuote:
			quote = ch
		case ch == CharBackslash && p+1 < len(l.source) && l.source[p+1] == CharNewline:
			// Line continuation: join with a single space.
			code = []byte(strings.TrimRight(string(code), " \t"))
			code = append(code, CharSpace)
			p += 2
			line++
			for p < len(l.source) && isSpace(l.source[p]) {
				if l.source[p] == CharNewline {
					line++
				}
				p++
			}
			continue
		}
		code = append(code, ch)
		p++
	}

	return nil, 0, newCompileError(ErrMsgUnterminatedFragment, openLine)
}

// finishFragment stores the scanned body and moves the lexer past the close marker.
func (l *Lexer) finishFragment(frag *Fragment, code []byte, lines []int, end int) {
	frag.Code = string(code)
	frag.Lines = lines
	l.line += strings.Count(l.source[l.pos:end], "\n")
	l.pos = end
}

// trimAfterClose returns the position after the horizontal whitespace and single
// newline following a trim-close marker, or p when other text follows on the line.
func (l *Lexer) trimAfterClose(p int) int {
	q := p
	for q < len(l.source) && isHorizontalSpace(l.source[q]) {
		q++
	}
	if q == len(l.source) {
		return q
	}
	if l.source[q] == CharNewline {
		return q + 1
	}
	return p
}

// leadingBlanks returns the number of blanks between line start and pos, or 0 when
// anything else precedes pos on its line.
func (l *Lexer) leadingBlanks(pos int) int {
	n := 0
	for i := pos - 1; i >= 0; i-- {
		ch := l.source[i]
		if ch == CharNewline {
			break
		}
		if !isHorizontalSpace(ch) {
			return 0
		}
		n++
	}
	return n
}

// isAtEnd returns true if we've reached the end of source
func (l *Lexer) isAtEnd() bool {
	return l.pos >= len(l.source)
}

// matchStr returns true if the remaining source starts with s
func (l *Lexer) matchStr(s string) bool {
	return strings.HasPrefix(l.source[l.pos:], s)
}

func isHorizontalSpace(ch byte) bool {
	return ch == CharSpace || ch == CharTab || ch == CharFormFeed || ch == CharVerticalTab
}

func isSpace(ch byte) bool {
	return isHorizontalSpace(ch) || ch == CharNewline || ch == CharCarriageRet
}
