package dim

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/xmltree"
)

// Parse reads DIM XML and returns one item per <dim:dim> element.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]*content.Item, error) {
	roots, err := xmltree.ParseAll(r, "dim")
	if err != nil {
		return nil, fmt.Errorf("parsing DIM XML: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no DIM metadata elements found in input")
	}

	items := make([]*content.Item, 0, len(roots))
	for i, root := range roots {
		item := &content.Item{}
		if err := Ingest(item, root, opts); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}

// Ingest appends every <dim:field> of root to item.
func Ingest(item *content.Item, root *xmltree.Node, opts *format.ParseOptions) error {
	if opts == nil {
		opts = format.NewParseOptions()
	}
	for i, field := range root.ChildrenNamed("field") {
		schema := strings.TrimSpace(field.Attr("mdschema"))
		element := strings.TrimSpace(field.Attr("element"))
		if schema == "" || element == "" {
			if opts.Strict {
				return fmt.Errorf("field %d: mdschema and element are required", i)
			}
			continue
		}

		value := field.Value()
		if value == "" {
			continue
		}

		mv := content.MetadataValue{
			Schema:     schema,
			Element:    element,
			Qualifier:  strings.TrimSpace(field.Attr("qualifier")),
			Language:   field.Attr("lang"),
			Value:      value,
			Authority:  field.Attr("authority"),
			Confidence: content.ConfidenceUnset,
		}
		if mv.Qualifier == "none" {
			mv.Qualifier = ""
		}
		if mv.Language == "" {
			mv.Language = opts.DefaultLanguage
		}
		if c := field.Attr("confidence"); c != "" {
			n, err := parseConfidence(c)
			if err != nil && opts.Strict {
				return fmt.Errorf("field %d: %w", i, err)
			}
			mv.Confidence = n
		}
		item.AppendValue(mv)
	}
	return nil
}

// confidenceNames maps the symbolic confidence levels DIM may carry.
var confidenceNames = map[string]int{
	"UNSET":     content.ConfidenceUnset,
	"NOVALUE":   0,
	"REJECTED":  100,
	"FAILED":    200,
	"NOTFOUND":  300,
	"AMBIGUOUS": 400,
	"UNCERTAIN": 500,
	"ACCEPTED":  content.ConfidenceAccepted,
}

func parseConfidence(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, ok := confidenceNames[strings.ToUpper(s)]; ok {
		return n, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return content.ConfidenceUnset, fmt.Errorf("invalid confidence %q", s)
	}
	return n, nil
}

func confidenceName(n int) string {
	for name, v := range confidenceNames {
		if v == n {
			return name
		}
	}
	return strconv.Itoa(n)
}
