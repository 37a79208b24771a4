package mods

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Serialize writes items as MODS XML, one <mods> element per item.
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

// ToXML maps the qualified Dublin Core of item onto MODS elements.
func ToXML(item *content.Item) *XMLMods {
	m := &XMLMods{
		XmlnsXsi:          xsiNamespace,
		XsiSchemaLocation: SchemaLocation,
		Version:           Version,
	}

	for _, mv := range item.GetMetadata("dc.title.*") {
		ti := XMLTitleInfo{Title: mv.Value, Lang: mv.Language}
		if mv.Qualifier == "alternative" {
			ti.Type = "alternative"
		}
		m.TitleInfo = append(m.TitleInfo, ti)
	}

	for _, v := range item.Values("dc.creator") {
		m.Names = append(m.Names, nameToXML(v, "author"))
	}
	for _, mv := range item.GetMetadata("dc.contributor.*") {
		m.Names = append(m.Names, nameToXML(mv.Value, mv.Qualifier))
	}

	for _, v := range item.Values("dc.type") {
		m.TypeOfResource = appendUnique(m.TypeOfResource, resourceType(v))
		m.Genre = append(m.Genre, v)
	}

	origin := XMLOriginInfo{
		Publishers:     item.Values("dc.publisher"),
		DateIssued:     dates(item.Values("dc.date.issued")),
		DateCreated:    dates(item.Values("dc.date.created")),
		CopyrightDates: dates(item.Values("dc.date.copyright")),
	}
	for _, v := range item.Values("dc.publisher.place") {
		origin.Places = append(origin.Places, XMLPlace{PlaceTerm: XMLPlaceTerm{Type: "text", Value: v}})
	}
	if !origin.empty() {
		m.OriginInfo = []XMLOriginInfo{origin}
	}

	for _, v := range item.Values("dc.language.*") {
		m.Languages = append(m.Languages, XMLLanguage{LanguageTerm: XMLLanguageTerm{
			Type:      "code",
			Authority: "rfc3066",
			Value:     v,
		}})
	}

	m.Abstracts = item.Values("dc.description.abstract")
	m.Notes = item.Values("dc.description")

	if topics := item.Values("dc.subject.*"); len(topics) > 0 {
		m.Subjects = []XMLSubject{{Topics: topics}}
	}

	for _, mv := range item.GetMetadata("dc.identifier.*") {
		m.Identifiers = append(m.Identifiers, XMLIdentifier{Type: mv.Qualifier, Value: mv.Value})
	}

	for _, v := range item.Values("dc.relation.ispartof") {
		m.RelatedItems = append(m.RelatedItems, XMLRelatedItem{Type: "host", TitleInfo: []XMLTitleInfo{{Title: v}}})
	}
	for _, v := range item.Values("dc.relation.ispartofseries") {
		m.RelatedItems = append(m.RelatedItems, XMLRelatedItem{Type: "series", TitleInfo: []XMLTitleInfo{{Title: v}}})
	}

	for _, v := range item.Values("dc.rights") {
		m.AccessConditions = append(m.AccessConditions, XMLAccessCondition{Type: accessUseAndReproduction, Value: v})
	}
	for _, v := range item.Values("dc.rights.uri") {
		m.AccessConditions = append(m.AccessConditions, XMLAccessCondition{Type: accessUseAndReproduction, Href: v})
	}
	return m
}

const accessUseAndReproduction = "use and reproduction"

// nameToXML splits "Family, Given" values into name parts. The role is the
// dc.contributor qualifier, or "contributor" for a bare dc.contributor.
func nameToXML(value, qualifier string) XMLName {
	n := XMLName{Type: "personal"}
	if p := helpers.ParseName(value); p != nil && strings.Contains(value, ",") && p.Given != "" {
		n.NameParts = []XMLNamePart{
			{Type: "family", Value: p.Family},
			{Type: "given", Value: p.GivenNames()},
		}
		if p.Suffix != "" {
			n.NameParts = append(n.NameParts, XMLNamePart{Type: "termsOfAddress", Value: p.Suffix})
		}
	} else {
		n.NameParts = []XMLNamePart{{Value: value}}
	}

	role := qualifier
	if role == "" {
		role = "contributor"
	}
	n.Roles = []XMLRole{{RoleTerms: []XMLRoleTerm{
		{Type: "text", Value: role},
		{Type: "code", Authority: "marcrelator", Value: helpers.RoleFor(qualifier).Relator},
	}}}
	return n
}

// resourceType maps a dc.type value onto the MODS typeOfResource list.
func resourceType(dcType string) string {
	t := strings.ToLower(dcType)
	switch {
	case strings.Contains(t, "image"), strings.Contains(t, "photograph"):
		return "still image"
	case strings.Contains(t, "video"), strings.Contains(t, "moving"):
		return "moving image"
	case strings.Contains(t, "sound"), strings.Contains(t, "audio"):
		return "sound recording"
	case strings.Contains(t, "map"):
		return "cartographic"
	case strings.Contains(t, "software"), strings.Contains(t, "dataset"):
		return "software, multimedia"
	case strings.Contains(t, "musical score"):
		return "notated music"
	case strings.Contains(t, "object"):
		return "three dimensional object"
	}
	return "text"
}

func dates(values []string) []XMLDate {
	var out []XMLDate
	for _, v := range values {
		d := XMLDate{Value: v}
		if _, err := helpers.ParseDate(v); err == nil {
			d.Encoding = "w3cdtf"
		}
		out = append(out, d)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// XML types for MODS. They serve both marshaling and parsing; child
// elements carry no namespace so that prefixed and default-namespace
// documents both decode.

type XMLMods struct {
	XMLName           xml.Name             `xml:"http://www.loc.gov/mods/v3 mods"`
	XmlnsXsi          string               `xml:"xmlns:xsi,attr,omitempty"`
	XsiSchemaLocation string               `xml:"xsi:schemaLocation,attr,omitempty"`
	Version           string               `xml:"version,attr,omitempty"`
	TitleInfo         []XMLTitleInfo       `xml:"titleInfo,omitempty"`
	Names             []XMLName            `xml:"name,omitempty"`
	TypeOfResource    []string             `xml:"typeOfResource,omitempty"`
	Genre             []string             `xml:"genre,omitempty"`
	OriginInfo        []XMLOriginInfo      `xml:"originInfo,omitempty"`
	Languages         []XMLLanguage        `xml:"language,omitempty"`
	Abstracts         []string             `xml:"abstract,omitempty"`
	Notes             []string             `xml:"note,omitempty"`
	Subjects          []XMLSubject         `xml:"subject,omitempty"`
	Identifiers       []XMLIdentifier      `xml:"identifier,omitempty"`
	RelatedItems      []XMLRelatedItem     `xml:"relatedItem,omitempty"`
	AccessConditions  []XMLAccessCondition `xml:"accessCondition,omitempty"`
}

type XMLTitleInfo struct {
	Type     string `xml:"type,attr,omitempty"`
	Lang     string `xml:"lang,attr,omitempty"`
	Title    string `xml:"title"`
	SubTitle string `xml:"subTitle,omitempty"`
}

type XMLName struct {
	Type         string        `xml:"type,attr,omitempty"`
	NameParts    []XMLNamePart `xml:"namePart,omitempty"`
	Roles        []XMLRole     `xml:"role,omitempty"`
	Affiliations []string      `xml:"affiliation,omitempty"`
}

type XMLNamePart struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XMLRole struct {
	RoleTerms []XMLRoleTerm `xml:"roleTerm"`
}

type XMLRoleTerm struct {
	Type      string `xml:"type,attr,omitempty"`
	Authority string `xml:"authority,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type XMLOriginInfo struct {
	Places         []XMLPlace `xml:"place,omitempty"`
	Publishers     []string   `xml:"publisher,omitempty"`
	DateIssued     []XMLDate  `xml:"dateIssued,omitempty"`
	DateCreated    []XMLDate  `xml:"dateCreated,omitempty"`
	CopyrightDates []XMLDate  `xml:"copyrightDate,omitempty"`
	Editions       []string   `xml:"edition,omitempty"`
}

func (o XMLOriginInfo) empty() bool {
	return len(o.Places) == 0 && len(o.Publishers) == 0 && len(o.DateIssued) == 0 &&
		len(o.DateCreated) == 0 && len(o.CopyrightDates) == 0 && len(o.Editions) == 0
}

type XMLDate struct {
	Encoding string `xml:"encoding,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type XMLPlace struct {
	PlaceTerm XMLPlaceTerm `xml:"placeTerm"`
}

type XMLPlaceTerm struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XMLLanguage struct {
	LanguageTerm XMLLanguageTerm `xml:"languageTerm"`
}

type XMLLanguageTerm struct {
	Type      string `xml:"type,attr,omitempty"`
	Authority string `xml:"authority,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type XMLSubject struct {
	Topics []string `xml:"topic,omitempty"`
}

type XMLIdentifier struct {
	Type  string `xml:"type,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XMLRelatedItem struct {
	Type        string          `xml:"type,attr,omitempty"`
	TitleInfo   []XMLTitleInfo  `xml:"titleInfo,omitempty"`
	Identifiers []XMLIdentifier `xml:"identifier,omitempty"`
}

type XMLAccessCondition struct {
	Type  string `xml:"type,attr,omitempty"`
	Href  string `xml:"http://www.w3.org/1999/xlink href,attr,omitempty"`
	Value string `xml:",chardata"`
}
