// Package format defines the interface for metadata crosswalk plugins.
//
// A Parser ingests an external metadata document into items carrying
// metadata values; a Serializer disseminates items as an external format.
package format

import (
	"io"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// Format defines the interface that all format plugins must implement.
type Format interface {
	// Name returns the format identifier (e.g., "oai_dc", "dim", "crossref")
	Name() string

	// Description returns a human-readable format description
	Description() string

	// Namespace returns the XML namespace of the format, if any
	Namespace() string

	// CanParse returns true if this format can parse the given input
	CanParse(peek []byte) bool
}

// Parser is a format that can ingest metadata into items.
type Parser interface {
	Format

	// Parse reads input and returns one item per metadata record found.
	// Returned items carry metadata only; they are not persisted.
	Parse(r io.Reader, opts *ParseOptions) ([]*content.Item, error)
}

// Serializer is a format that can write items to output.
type Serializer interface {
	Format

	// Serialize writes items to the output.
	Serialize(w io.Writer, items []*content.Item, opts *SerializeOptions) error
}

// ParseOptions contains options for parsing.
type ParseOptions struct {
	// Strict fails on elements the crosswalk cannot map
	Strict bool

	// DefaultLanguage is applied to values without xml:lang
	DefaultLanguage string

	// SourceName identifies the input in error messages
	SourceName string
}

// SerializeOptions contains options for serialization.
type SerializeOptions struct {
	// Pretty enables indented XML output
	Pretty bool

	// OmitHeader suppresses the XML declaration, for embedding the output
	// inside another document such as an OAI-PMH response
	OmitHeader bool

	// Columns specifies which fields to include (for tabular formats)
	Columns []string

	// MultiValueSeparator is the delimiter for multi-value fields
	MultiValueSeparator string

	// IncludeHeader includes a header row (for tabular formats)
	IncludeHeader bool

	// Depositor, DepositorEmail and Registrant fill deposit headers
	Depositor      string
	DepositorEmail string
	Registrant     string

	// BatchID identifies a deposit; generated when empty
	BatchID string

	// Now is the deposit timestamp; time.Now when zero
	Now time.Time
}

// NewParseOptions creates ParseOptions with defaults.
func NewParseOptions() *ParseOptions {
	return &ParseOptions{}
}

// NewSerializeOptions creates SerializeOptions with defaults.
func NewSerializeOptions() *SerializeOptions {
	return &SerializeOptions{
		MultiValueSeparator: "||",
		IncludeHeader:       true,
	}
}

// Timestamp returns opts.Now or the current time.
func (o *SerializeOptions) Timestamp() time.Time {
	if o == nil || o.Now.IsZero() {
		return time.Now().UTC()
	}
	return o.Now
}
