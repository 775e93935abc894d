package eepy

import (
	"strings"

	"github.com/itsatony/go-eepy/internal"
)

// IdentityFilter emits expression text unchanged.
func IdentityFilter(s string) string { return s }

// EscapeXMLFilter escapes &, <, >, ' and " for XML and HTML output.
func EscapeXMLFilter(s string) string { return internal.EscapeXML(s) }

// FilterByName returns the filter registered under name. The empty name selects
// IdentityFilter.
func FilterByName(name string) (Filter, error) {
	switch strings.ToLower(name) {
	case "", FilterNameIdentity, FilterNameNone:
		return IdentityFilter, nil
	case FilterNameEscape, FilterNameXML, FilterNameHTML:
		return EscapeXMLFilter, nil
	}
	return nil, NewConfigError(ErrMsgUnknownFilter, MetaKeyFilter, name)
}
