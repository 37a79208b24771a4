// Package csv provides the metadata CSV format: one row per item, an id and
// collection column, then one column per field and language such as
// "dc.title[en]", with repeated values joined by "||".
package csv

import (
	"bytes"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

// Fixed leading columns.
const (
	ColumnID         = "id"
	ColumnCollection = "collection"
	ColumnHandle     = "handle"
)

// Format implements the CSV format.
type Format struct{}

// Ensure Format implements the interfaces
var (
	_ format.Format     = (*Format)(nil)
	_ format.Parser     = (*Format)(nil)
	_ format.Serializer = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "csv"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "Metadata CSV (one column per field and language)"
}

// Namespace returns "" since CSV is not XML.
func (f *Format) Namespace() string {
	return ""
}

// CanParse returns true if the input looks like a metadata CSV.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 {
		return false
	}
	if peek[0] == '{' || peek[0] == '[' || peek[0] == '<' {
		return false
	}
	line := peek
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		line = peek[:i]
	}
	return bytes.HasPrefix(line, []byte(ColumnID+",")) || bytes.HasPrefix(line, []byte(`"`+ColumnID+`",`))
}

// columnName renders a field and language as a header.
func columnName(field, lang string) string {
	if lang == "" {
		return field
	}
	return field + "[" + lang + "]"
}

// parseColumn splits "dc.title[en]" into field and language.
func parseColumn(col string) (field, lang string) {
	col = strings.TrimSpace(col)
	if i := strings.IndexByte(col, '['); i > 0 && strings.HasSuffix(col, "]") {
		return col[:i], col[i+1 : len(col)-1]
	}
	return col, ""
}

// MetadataColumns returns the sorted field columns present across items.
func MetadataColumns(items []*content.Item) []string {
	seen := map[string]bool{}
	for _, item := range items {
		for _, mv := range item.Metadata {
			seen[columnName(mv.Field(), mv.Language)] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func init() {
	format.Register(&Format{})
}
