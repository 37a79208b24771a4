package dim

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

// XMLRecord is the marshalable form of one DIM record.
type XMLRecord struct {
	XMLName xml.Name   `xml:"dim:dim"`
	DIM     string     `xml:"xmlns:dim,attr"`
	Fields  []XMLField `xml:"dim:field"`
}

// XMLField is one metadata value.
type XMLField struct {
	Schema     string `xml:"mdschema,attr"`
	Element    string `xml:"element,attr"`
	Qualifier  string `xml:"qualifier,attr,omitempty"`
	Lang       string `xml:"lang,attr,omitempty"`
	Authority  string `xml:"authority,attr,omitempty"`
	Confidence string `xml:"confidence,attr,omitempty"`
	Value      string `xml:",chardata"`
}

// Serialize writes items as DIM XML.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}
	if !opts.OmitHeader && len(items) > 0 {
		if _, err := io.WriteString(w, xml.Header); err != nil {
			return err
		}
	}

	enc := xml.NewEncoder(w)
	if opts.Pretty {
		enc.Indent("", "  ")
	}
	for i, item := range items {
		if err := enc.Encode(ToXML(item)); err != nil {
			return fmt.Errorf("marshaling record %d: %w", i, err)
		}
		if err := enc.Flush(); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// ToXML converts every metadata value of item, in stored order.
func ToXML(item *content.Item) *XMLRecord {
	rec := &XMLRecord{DIM: Namespace}
	for _, mv := range item.Metadata {
		field := XMLField{
			Schema:    mv.Schema,
			Element:   mv.Element,
			Qualifier: mv.Qualifier,
			Lang:      mv.Language,
			Authority: mv.Authority,
			Value:     mv.Value,
		}
		if mv.Authority != "" {
			field.Confidence = confidenceName(mv.Confidence)
		}
		rec.Fields = append(rec.Fields, field)
	}
	return rec
}
