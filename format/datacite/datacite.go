// Package datacite provides a format plugin that disseminates items as
// DataCite metadata kernel 4 XML, the payload of the DataCite MDS API.
package datacite

import (
	"bytes"
	"errors"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Version documents the DataCite specification this implementation targets.
const Version = "4.6"

// Namespace is the kernel-4 namespace.
const Namespace = "http://datacite.org/schema/kernel-4"

// ErrMissingTitle is returned for items that have no dc.title.
var ErrMissingTitle = errors.New("item has no title")

// Format implements the DataCite format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "datacite"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "DataCite Metadata Schema (v" + Version + ")"
}

// Namespace returns the kernel-4 namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like DataCite XML.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}
	return bytes.Contains(peek, []byte("datacite.org/schema/kernel"))
}

func init() {
	format.Register(&Format{})
}
