package dublincore

import (
	"fmt"
	"io"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/xmltree"
)

// termsQualifiers maps DCMI terms refinements onto qualified dc fields.
var termsQualifiers = map[string]string{
	"abstract":              "description.abstract",
	"alternative":           "title.alternative",
	"available":             "date.available",
	"created":               "date.created",
	"issued":                "date.issued",
	"modified":              "date.updated",
	"tableOfContents":       "description.tableofcontents",
	"isPartOf":              "relation.ispartof",
	"hasPart":               "relation.haspart",
	"extent":                "format.extent",
	"bibliographicCitation": "identifier.citation",
	"license":               "rights.uri",
}

// Parse reads oai_dc XML and returns one item per <oai_dc:dc> element.
// Records wrapped in OAI-PMH envelopes are found wherever they sit.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]*content.Item, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}
	roots, err := xmltree.ParseAll(r, "dc")
	if err != nil {
		return nil, fmt.Errorf("parsing dublin core XML: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("no Dublin Core metadata elements found in input")
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

// Ingest appends the values of a parsed <oai_dc:dc> element to item. Each
// dc:* child becomes an unqualified dc.<element> value with its xml:lang.
func Ingest(item *content.Item, root *xmltree.Node, opts *format.ParseOptions) error {
	if opts == nil {
		opts = format.NewParseOptions()
	}
	for _, child := range root.Children {
		value := child.Value()
		if value == "" {
			continue
		}
		lang := child.Lang()
		if lang == "" {
			lang = opts.DefaultLanguage
		}

		field := ""
		switch {
		case child.Name.Space == TermsNS:
			if q, ok := termsQualifiers[child.Name.Local]; ok {
				field = dcSchema + "." + q
			} else if isElement(child.Name.Local) {
				field = dcSchema + "." + child.Name.Local
			}
		case isElement(child.Name.Local):
			field = dcSchema + "." + child.Name.Local
		}

		if field == "" {
			if opts.Strict {
				return fmt.Errorf("unmapped element <%s>", child.Name.Local)
			}
			continue
		}
		item.AddMetadata(field, lang, value)
	}
	return nil
}
