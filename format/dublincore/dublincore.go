// Package dublincore provides the oai_dc format plugin: simple Dublin Core
// as carried in OAI-PMH responses.
package dublincore

import (
	"bytes"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Namespaces used by oai_dc documents.
const (
	Namespace        = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	ElementsNS       = "http://purl.org/dc/elements/1.1/"
	TermsNS          = "http://purl.org/dc/terms/"
	SchemaLocation   = "http://www.openarchives.org/OAI/2.0/oai_dc/ http://www.openarchives.org/OAI/2.0/oai_dc.xsd"
	xsiNamespace     = "http://www.w3.org/2001/XMLSchema-instance"
	dcSchema         = "dc"
	formatIdentifier = "oai_dc"
)

// Elements is the Dublin Core Metadata Element Set.
var Elements = []string{
	"contributor", "coverage", "creator", "date", "description", "format",
	"identifier", "language", "publisher", "relation", "rights", "source",
	"subject", "title", "type",
}

// Format implements the oai_dc format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return formatIdentifier
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "Simple Dublin Core (OAI-PMH oai_dc)"
}

// Namespace returns the oai_dc namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like Dublin Core XML.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}

	dcPatterns := [][]byte{
		[]byte("openarchives.org/OAI/2.0/oai_dc"),
		[]byte("purl.org/dc/elements"),
		[]byte("<oai_dc:dc"),
	}

	for _, pattern := range dcPatterns {
		if bytes.Contains(peek, pattern) {
			return true
		}
	}

	return false
}

func isElement(name string) bool {
	for _, e := range Elements {
		if e == name {
			return true
		}
	}
	return false
}

func init() {
	format.Register(&Format{})
}
