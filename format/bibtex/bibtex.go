// Package bibtex provides a format plugin that writes items as BibTeX
// bibliography entries.
package bibtex

import (
	"bytes"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Format implements the BibTeX format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "bibtex"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "BibTeX bibliography format"
}

// Namespace returns "": BibTeX is not XML.
func (f *Format) Namespace() string {
	return ""
}

// CanParse returns true if the input looks like BibTeX.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '@' {
		return false
	}
	lower := bytes.ToLower(peek)
	for _, t := range entryTypes {
		if bytes.HasPrefix(lower, []byte("@"+t+"{")) {
			return true
		}
	}
	return false
}

func init() {
	format.Register(&Format{})
}
