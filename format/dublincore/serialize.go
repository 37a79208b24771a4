package dublincore

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

// XMLRecord is the marshalable form of one oai_dc record.
type XMLRecord struct {
	XMLName        xml.Name     `xml:"oai_dc:dc"`
	OAIDC          string       `xml:"xmlns:oai_dc,attr"`
	DC             string       `xml:"xmlns:dc,attr"`
	XSI            string       `xml:"xmlns:xsi,attr"`
	SchemaLocation string       `xml:"xsi:schemaLocation,attr"`
	Elements       []XMLElement `xml:",any"`
}

// XMLElement is one dc:* element.
type XMLElement struct {
	XMLName xml.Name
	Lang    string `xml:"xml:lang,attr,omitempty"`
	Value   string `xml:",chardata"`
}

// Serialize writes items as oai_dc XML.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	for i, item := range items {
		xmlRecord := ToXML(item)

		var output []byte
		var err error
		if opts.Pretty {
			output, err = xml.MarshalIndent(xmlRecord, "", "  ")
		} else {
			output, err = xml.Marshal(xmlRecord)
		}
		if err != nil {
			return fmt.Errorf("marshaling record %d: %w", i, err)
		}

		if i == 0 && !opts.OmitHeader {
			if _, err := w.Write([]byte(xml.Header)); err != nil {
				return err
			}
		}

		if _, err := w.Write(output); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n")); err != nil {
			return err
		}
	}

	return nil
}

// ToXML maps the dc schema values of item onto the fifteen elements.
// Qualifiers are dropped, except that contributor.author is written as
// creator. Values outside the dc schema are not disseminated.
func ToXML(item *content.Item) *XMLRecord {
	rec := &XMLRecord{
		OAIDC:          Namespace,
		DC:             ElementsNS,
		XSI:            xsiNamespace,
		SchemaLocation: SchemaLocation,
	}
	for _, mv := range item.GetMetadata("dc.*.*") {
		element := mv.Element
		if element == "contributor" && mv.Qualifier == "author" {
			element = "creator"
		}
		if !isElement(element) || strings.TrimSpace(mv.Value) == "" {
			continue
		}
		rec.Elements = append(rec.Elements, XMLElement{
			XMLName: xml.Name{Local: "dc:" + element},
			Lang:    mv.Language,
			Value:   mv.Value,
		})
	}
	return rec
}
