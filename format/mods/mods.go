// Package mods provides a format plugin for MODS (Metadata Object
// Description Schema), both as a harvestable ingest format and as an
// OAI-PMH dissemination format.
package mods

import (
	"bytes"

	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Version documents the MODS specification this implementation targets.
const Version = "3.8"

// Namespaces used by MODS documents.
const (
	Namespace      = "http://www.loc.gov/mods/v3"
	SchemaLocation = "http://www.loc.gov/mods/v3 http://www.loc.gov/standards/mods/v3/mods-3-8.xsd"
	xsiNamespace   = "http://www.w3.org/2001/XMLSchema-instance"
)

// Format implements the MODS format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "mods"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "MODS (Metadata Object Description Schema v" + Version + ")"
}

// Namespace returns the MODS namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like MODS XML.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}

	patterns := [][]byte{
		[]byte("loc.gov/mods"),
		[]byte("<mods"),
		[]byte("<modsCollection"),
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
