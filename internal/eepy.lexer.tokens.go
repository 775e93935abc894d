package internal

// FragmentKind distinguishes statement fragments from printed expressions
type FragmentKind int

// Fragment kinds
const (
	FragmentStatement FragmentKind = iota
	FragmentExpression
)

// Fragment kind names for debugging
const (
	FragmentKindNameStatement  = "STATEMENT"
	FragmentKindNameExpression = "EXPRESSION"
)

// String returns the string representation of the fragment kind
func (k FragmentKind) String() string {
	if k == FragmentExpression {
		return FragmentKindNameExpression
	}
	return FragmentKindNameStatement
}

// Fragment is the delimited script region between an open and a close marker.
type Fragment struct {
	Kind FragmentKind
	Raw  bool   // expression bypasses the output filter
	Code string // body with escapes resolved and continuations joined
	Line int    // line of the opening marker
	// Lines holds the source line of every line in Code.
	Lines []int
}

// CodeLine returns the source line of the i-th line of the fragment body.
func (f *Fragment) CodeLine(i int) int {
	if i >= 0 && i < len(f.Lines) {
		return f.Lines[i]
	}
	return f.Line
}

// Token is one literal span optionally followed by a fragment.
// The final token of a template always has a nil Fragment.
type Token struct {
	Text     string
	TextLine int
	Fragment *Fragment
}
