package internal

import (
	"fmt"
	"strings"
)

// Cycle yields its values round-robin.
type Cycle struct {
	values []any
	index  int
}

// NewCycle creates a cycle over values.
func NewCycle(values ...any) (*Cycle, error) {
	if len(values) == 0 {
		return nil, &MisuseError{Helper: HelperCycle, Message: ErrMsgEmptyCycle}
	}
	return &Cycle{values: values}, nil
}

// Next returns the next value.
func (c *Cycle) Next() any {
	v := c.values[c.index]
	c.index = (c.index + 1) % len(c.values)
	return v
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&#39;",
	`"`, "&quot;",
)

// EscapeXML escapes the five XML special characters.
func EscapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// ToStr converts a value to its text form; nil becomes the empty string.
func ToStr(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprint(v)
	}
}
