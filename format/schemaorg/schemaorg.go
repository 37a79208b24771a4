// Package schemaorg provides a format plugin that writes items as
// schema.org JSON-LD, for embedding in item pages and for search engine
// harvesting.
package schemaorg

import (
	"bytes"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Version is the schema.org version this implementation targets.
const Version = "29.4"

// Context is the JSON-LD @context of every document.
const Context = "https://schema.org"

// Format implements the schema.org JSON-LD format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "schemaorg"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "schema.org JSON-LD (v" + Version + ")"
}

// Namespace returns the schema.org vocabulary URI.
func (f *Format) Namespace() string {
	return Context
}

// CanParse returns true if the input looks like schema.org JSON-LD.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || (peek[0] != '{' && peek[0] != '[') {
		return false
	}
	hasContext := bytes.Contains(peek, []byte(`"@context"`))
	hasType := bytes.Contains(peek, []byte(`"@type"`))
	return (hasContext || hasType) && bytes.Contains(peek, []byte("schema.org"))
}

func init() {
	format.Register(&Format{})
}
