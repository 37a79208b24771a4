// Package dim provides the DSpace Intermediate Metadata format plugin. DIM
// carries every metadata value of an item unchanged, so it is the lossless
// format for repository to repository harvesting.
package dim

import (
	"bytes"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Namespace is the DIM XML namespace.
const Namespace = "http://www.dspace.org/xmlns/dspace/dim"

// Format implements the dim format.
type Format struct{}

var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "dim"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "DSpace Intermediate Metadata"
}

// Namespace returns the DIM namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like DIM.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}
	return bytes.Contains(peek, []byte("dspace.org/xmlns/dspace/dim")) ||
		bytes.Contains(peek, []byte("<dim:dim"))
}

func init() {
	format.Register(&Format{})
}
