package schemaorg

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Serialize writes items as JSON-LD. A single item is written as an
// object, several as an array.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	docs := make([]*CreativeWork, 0, len(items))
	for _, item := range items {
		docs = append(docs, ToSchemaOrg(item))
	}

	encoder := json.NewEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	if len(docs) == 1 {
		return encoder.Encode(docs[0])
	}
	return encoder.Encode(docs)
}

// ToSchemaOrg maps the qualified Dublin Core of item onto a CreativeWork
// whose @type follows dc.type.
func ToSchemaOrg(item *content.Item) *CreativeWork {
	cw := &CreativeWork{
		Thing: Thing{
			Context:     Context,
			Type:        determineSchemaType(item.FirstValue("dc.type")),
			Name:        item.FirstValue("dc.title"),
			Description: helpers.TruncateText(helpers.StripHTML(item.FirstValue("dc.description")), 5000),
			URL:         item.FirstValue("dc.identifier.uri"),
		},
		AlternativeTitle: item.FirstValue("dc.title.alternative"),
		Abstract:         helpers.StripHTML(item.FirstValue("dc.description.abstract")),
		DateCreated:      isoDate(item.FirstValue("dc.date.created")),
		DatePublished:    isoDate(item.FirstValue("dc.date.issued")),
		Genre:            item.Values("dc.type"),
		Keywords:         item.Values("dc.subject.*"),
		InLanguage:       item.FirstValue("dc.language.iso"),
		License:          item.FirstValue("dc.rights.uri"),
		CopyrightNotice:  item.FirstValue("dc.rights"),
	}
	if cw.URL != "" {
		cw.ID = cw.URL
	}
	if !item.LastModified.IsZero() {
		cw.DateModified = item.LastModified.UTC().Format("2006-01-02T15:04:05Z")
	}

	doi := item.FirstValue("dc.identifier.doi")
	if doi != "" {
		doi = strings.TrimPrefix(strings.TrimPrefix(doi, "doi:"), "https://doi.org/")
		cw.SameAs = "https://doi.org/" + doi
		cw.Identifier = append(cw.Identifier, PropertyValue{Type: "PropertyValue", PropertyID: "doi", Value: doi})
	}
	if item.Handle != "" {
		cw.Identifier = append(cw.Identifier, PropertyValue{Type: "PropertyValue", PropertyID: "handle", Value: item.Handle})
	}
	for _, q := range []string{"isbn", "issn"} {
		for _, v := range item.Values("dc.identifier." + q) {
			cw.Identifier = append(cw.Identifier, PropertyValue{Type: "PropertyValue", PropertyID: q, Value: v})
		}
	}

	for _, v := range item.Values("dc.creator") {
		cw.Author = append(cw.Author, person(v))
	}
	for _, mv := range item.GetMetadata("dc.contributor.*") {
		switch helpers.RoleFor(mv.Qualifier).Relator {
		case "aut":
			cw.Author = append(cw.Author, person(mv.Value))
		case "edt":
			cw.Editor = append(cw.Editor, person(mv.Value))
		case "fnd", "spn":
			cw.Funder = append(cw.Funder, organization(mv.Value))
		default:
			cw.Contributor = append(cw.Contributor, person(mv.Value))
		}
	}
	if p := item.FirstValue("dc.publisher"); p != "" {
		org := organization(p)
		cw.Publisher = &org
	}

	if container := item.FirstValue("dc.relation.ispartof"); container != "" {
		t := TypeCreativeWork
		if cw.Type == TypeScholarlyArticle {
			t = TypePeriodical
		}
		cw.IsPartOf = append(cw.IsPartOf, CreativeWork{Thing: Thing{Type: t, Name: container}})
	}
	if series := item.FirstValue("dc.relation.ispartofseries"); series != "" {
		cw.IsPartOf = append(cw.IsPartOf, CreativeWork{Thing: Thing{Type: TypeCreativeSeries, Name: series}})
	}

	if cw.Type == TypeThesis {
		cw.InSupportOf = item.FirstValue("thesis.degree.name")
	}

	if b := item.Bundle(content.BundleOriginal); b != nil {
		for _, bs := range b.Bitstreams {
			cw.Encoding = append(cw.Encoding, MediaObject{
				Type:           TypeMediaObject,
				Name:           bs.Name,
				EncodingFormat: bs.MimeType,
				ContentSize:    bs.Size,
			})
		}
	}
	return cw
}

// determineSchemaType maps a dc.type value to a schema.org @type.
func determineSchemaType(dcType string) SchemaType {
	t := strings.ToLower(dcType)
	switch {
	case strings.Contains(t, "thesis"), strings.Contains(t, "dissertation"):
		return TypeThesis
	case strings.Contains(t, "chapter"):
		return TypeChapter
	case strings.Contains(t, "article"), strings.Contains(t, "preprint"):
		return TypeScholarlyArticle
	case strings.Contains(t, "book"):
		return TypeBook
	case strings.Contains(t, "dataset"):
		return TypeDataset
	case strings.Contains(t, "report"):
		return TypeReport
	case strings.Contains(t, "presentation"):
		return TypePresentationDoc
	case strings.Contains(t, "software"):
		return TypeSoftware
	case strings.Contains(t, "map"):
		return TypeMap
	case strings.Contains(t, "image"), strings.Contains(t, "photograph"):
		return TypeImageObject
	case strings.Contains(t, "video"), strings.Contains(t, "moving"):
		return TypeVideoObject
	case strings.Contains(t, "sound"), strings.Contains(t, "audio"):
		return TypeAudioObject
	}
	return TypeCreativeWork
}

func person(value string) Agent {
	a := Agent{Type: TypePerson, Name: value}
	p := helpers.ParseName(value)
	if p == nil || p.Given == "" {
		return a
	}
	a.Name = strings.TrimSpace(p.GivenNames() + " " + strings.TrimSpace(p.Prefix+" "+p.Family))
	a.GivenName = p.GivenNames()
	a.FamilyName = p.Family
	return a
}

func organization(value string) Agent {
	return Agent{Type: TypeOrganization, Name: value}
}

// isoDate normalises a dc.date value to ISO 8601, keeping its precision.
// Unrecognised values pass through.
func isoDate(value string) string {
	if value == "" {
		return ""
	}
	d, err := helpers.ParseDate(value)
	if err != nil {
		return value
	}
	return d.ISO()
}
