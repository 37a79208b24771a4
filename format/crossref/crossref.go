// Package crossref provides a format plugin that disseminates items as
// CrossRef deposit XML (doi_batch).
package crossref

import (
	"bytes"
	"errors"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Version documents the CrossRef specification this implementation targets.
const Version = "5.3.1"

// Namespace is the deposit schema namespace.
const Namespace = "http://www.crossref.org/schema/" + Version

// ErrMissingTitle is returned for items that have no dc.title.
var ErrMissingTitle = errors.New("item has no title")

// Format implements the CrossRef deposit format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "crossref"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "CrossRef Deposit XML (Schema v" + Version + ")"
}

// Namespace returns the deposit schema namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like CrossRef deposit XML.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}

	patterns := [][]byte{
		[]byte("doi_batch"),
		[]byte("crossref.org/schema"),
	}

	for _, pattern := range patterns {
		if bytes.Contains(peek, pattern) {
			return true
		}
	}

	return false
}

func init() {
	format.Register(&Format{})
}
