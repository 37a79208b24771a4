package datacite

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/crossref"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Serialize writes one <resource> per item.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	for i, item := range items {
		resource, err := ToXML(item, opts)
		if err != nil {
			return fmt.Errorf("converting record %d: %w", i, err)
		}

		var output []byte
		if opts.Pretty {
			output, err = xml.MarshalIndent(resource, "", "  ")
		} else {
			output, err = xml.Marshal(resource)
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

// ToXML maps an item onto the kernel-4 mandatory and recommended
// properties. The publisher falls back to opts.Registrant and the
// publication year to the current year.
func ToXML(item *content.Item, opts *format.SerializeOptions) (*XMLResource, error) {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}
	if strings.TrimSpace(item.Title()) == "" {
		return nil, fmt.Errorf("item %s: %w", item.ID, ErrMissingTitle)
	}

	res := &XMLResource{
		Xmlns:             Namespace,
		XmlnsXsi:          "http://www.w3.org/2001/XMLSchema-instance",
		XsiSchemaLocation: Namespace + " http://schema.datacite.org/meta/kernel-4/metadata.xsd",
		Publisher:         item.FirstValue("dc.publisher"),
		Language:          item.FirstValue("dc.language.iso"),
	}

	if doi := crossref.BareDOI(item.FirstValue("dc.identifier.doi")); doi != "" {
		res.Identifier = &XMLIdentifier{IdentifierType: "DOI", Value: doi}
	}

	for _, mv := range item.GetMetadata("dc.contributor.*") {
		role := helpers.RoleFor(mv.Qualifier)
		parsed := helpers.ParseName(mv.Value)
		if parsed == nil {
			continue
		}
		if role.Creator {
			creator := XMLCreator{
				CreatorName: XMLCreatorName{NameType: "Personal", Value: mv.Value},
				GivenName:   parsed.GivenNames(),
				FamilyName:  parsed.Family,
			}
			if id := orcid(mv.Authority); id != "" {
				creator.NameIdentifiers = append(creator.NameIdentifiers, XMLNameIdentifier{
					NameIdentifierScheme: "ORCID",
					SchemeURI:            "https://orcid.org",
					Value:                id,
				})
			}
			res.Creators = append(res.Creators, creator)
			continue
		}
		res.Contributors = append(res.Contributors, XMLContributor{
			ContributorType: role.DataCite,
			ContributorName: XMLCreatorName{NameType: "Personal", Value: mv.Value},
			GivenName:       parsed.GivenNames(),
			FamilyName:      parsed.Family,
		})
	}
	for _, creator := range item.Values("dc.creator") {
		res.Creators = append(res.Creators, XMLCreator{CreatorName: XMLCreatorName{Value: creator}})
	}
	if len(res.Creators) == 0 {
		res.Creators = append(res.Creators, XMLCreator{CreatorName: XMLCreatorName{Value: "(:unav)"}})
	}

	for _, mv := range item.GetMetadata("dc.title") {
		res.Titles = append(res.Titles, XMLTitle{Lang: mv.Language, Value: mv.Value})
	}
	for _, alt := range item.Values("dc.title.alternative") {
		res.Titles = append(res.Titles, XMLTitle{TitleType: "AlternativeTitle", Value: alt})
	}

	if res.Publisher == "" {
		res.Publisher = opts.Registrant
	}
	if res.Publisher == "" {
		res.Publisher = "(:unav)"
	}

	res.PublicationYear = opts.Timestamp().Year()
	if d, err := helpers.ParseDate(item.FirstValue("dc.date.issued")); err == nil && d.Year > 0 {
		res.PublicationYear = d.Year
	}

	dcType := item.FirstValue("dc.type")
	res.ResourceType = &XMLResourceType{
		ResourceTypeGeneral: ResourceTypeGeneral(dcType),
		Value:               dcType,
	}

	for _, mv := range item.GetMetadata("dc.subject.*") {
		res.Subjects = append(res.Subjects, XMLSubject{Lang: mv.Language, Value: mv.Value})
	}

	for _, mv := range item.GetMetadata("dc.date.*") {
		switch mv.Qualifier {
		case "issued":
			res.Dates = append(res.Dates, XMLDate{DateType: "Issued", Value: mv.Value})
		case "accessioned", "available":
			res.Dates = append(res.Dates, XMLDate{DateType: "Available", Value: mv.Value})
		case "created":
			res.Dates = append(res.Dates, XMLDate{DateType: "Created", Value: mv.Value})
		}
	}

	if uri := item.FirstValue("dc.identifier.uri"); uri != "" {
		res.AlternateIdentifiers = append(res.AlternateIdentifiers, XMLAlternateIdentifier{
			AlternateIdentifierType: "URL",
			Value:                   uri,
		})
	}
	for _, isbn := range item.Values("dc.identifier.isbn") {
		res.RelatedIdentifiers = append(res.RelatedIdentifiers, XMLRelatedIdentifier{
			RelatedIdentifierType: "ISBN",
			RelationType:          "IsIdenticalTo",
			Value:                 isbn,
		})
	}
	for _, issn := range item.Values("dc.identifier.issn") {
		res.RelatedIdentifiers = append(res.RelatedIdentifiers, XMLRelatedIdentifier{
			RelatedIdentifierType: "ISSN",
			RelationType:          "IsPublishedIn",
			Value:                 issn,
		})
	}

	for _, mv := range item.GetMetadata("dc.rights.*") {
		if mv.Qualifier == "uri" {
			res.RightsList = append(res.RightsList, XMLRights{RightsURI: mv.Value})
			continue
		}
		res.RightsList = append(res.RightsList, XMLRights{Value: mv.Value})
	}

	for _, abstract := range item.Values("dc.description.abstract") {
		res.Descriptions = append(res.Descriptions, XMLDescription{
			DescriptionType: "Abstract",
			Value:           helpers.StripHTML(abstract),
		})
	}
	for _, sponsor := range item.Values("dc.description.sponsorship") {
		res.FundingReferences = append(res.FundingReferences, XMLFundingReference{FunderName: sponsor})
	}

	return res, nil
}

// ResourceTypeGeneral maps a dc.type value onto the controlled list.
func ResourceTypeGeneral(dcType string) string {
	lower := strings.ToLower(dcType)
	switch {
	case strings.Contains(lower, "chapter"):
		return "BookChapter"
	case strings.Contains(lower, "book"):
		return "Book"
	case strings.Contains(lower, "thesis"), strings.Contains(lower, "dissertation"):
		return "Dissertation"
	case strings.Contains(lower, "preprint"):
		return "Preprint"
	case strings.Contains(lower, "article"):
		return "JournalArticle"
	case strings.Contains(lower, "conference"):
		return "ConferencePaper"
	case strings.Contains(lower, "dataset"):
		return "Dataset"
	case strings.Contains(lower, "software"):
		return "Software"
	case strings.Contains(lower, "report"), strings.Contains(lower, "working paper"):
		return "Report"
	case strings.Contains(lower, "image"), strings.Contains(lower, "photograph"):
		return "Image"
	case strings.Contains(lower, "video"), strings.Contains(lower, "animation"):
		return "Audiovisual"
	case strings.Contains(lower, "recording"), strings.Contains(lower, "audio"):
		return "Sound"
	case lower == "text":
		return "Text"
	default:
		return "Other"
	}
}

func orcid(authority string) string {
	if strings.HasPrefix(authority, "https://orcid.org/") {
		return authority
	}
	return ""
}

// XML types for DataCite serialization.

type XMLResource struct {
	XMLName              xml.Name                 `xml:"resource"`
	Xmlns                string                   `xml:"xmlns,attr"`
	XmlnsXsi             string                   `xml:"xmlns:xsi,attr"`
	XsiSchemaLocation    string                   `xml:"xsi:schemaLocation,attr"`
	Identifier           *XMLIdentifier           `xml:"identifier"`
	Creators             []XMLCreator             `xml:"creators>creator"`
	Titles               []XMLTitle               `xml:"titles>title"`
	Publisher            string                   `xml:"publisher"`
	PublicationYear      int                      `xml:"publicationYear"`
	ResourceType         *XMLResourceType         `xml:"resourceType,omitempty"`
	Subjects             []XMLSubject             `xml:"subjects>subject,omitempty"`
	Contributors         []XMLContributor         `xml:"contributors>contributor,omitempty"`
	Dates                []XMLDate                `xml:"dates>date,omitempty"`
	Language             string                   `xml:"language,omitempty"`
	AlternateIdentifiers []XMLAlternateIdentifier `xml:"alternateIdentifiers>alternateIdentifier,omitempty"`
	RelatedIdentifiers   []XMLRelatedIdentifier   `xml:"relatedIdentifiers>relatedIdentifier,omitempty"`
	RightsList           []XMLRights              `xml:"rightsList>rights,omitempty"`
	Descriptions         []XMLDescription         `xml:"descriptions>description,omitempty"`
	FundingReferences    []XMLFundingReference    `xml:"fundingReferences>fundingReference,omitempty"`
}

type XMLIdentifier struct {
	IdentifierType string `xml:"identifierType,attr"`
	Value          string `xml:",chardata"`
}

type XMLCreator struct {
	CreatorName     XMLCreatorName      `xml:"creatorName"`
	GivenName       string              `xml:"givenName,omitempty"`
	FamilyName      string              `xml:"familyName,omitempty"`
	NameIdentifiers []XMLNameIdentifier `xml:"nameIdentifier,omitempty"`
}

type XMLContributor struct {
	ContributorType string         `xml:"contributorType,attr"`
	ContributorName XMLCreatorName `xml:"contributorName"`
	GivenName       string         `xml:"givenName,omitempty"`
	FamilyName      string         `xml:"familyName,omitempty"`
}

type XMLCreatorName struct {
	NameType string `xml:"nameType,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type XMLNameIdentifier struct {
	NameIdentifierScheme string `xml:"nameIdentifierScheme,attr"`
	SchemeURI            string `xml:"schemeURI,attr,omitempty"`
	Value                string `xml:",chardata"`
}

type XMLTitle struct {
	Lang      string `xml:"xml:lang,attr,omitempty"`
	TitleType string `xml:"titleType,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type XMLSubject struct {
	Lang  string `xml:"xml:lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type XMLDate struct {
	DateType string `xml:"dateType,attr"`
	Value    string `xml:",chardata"`
}

type XMLResourceType struct {
	ResourceTypeGeneral string `xml:"resourceTypeGeneral,attr"`
	Value               string `xml:",chardata"`
}

type XMLDescription struct {
	DescriptionType string `xml:"descriptionType,attr"`
	Value           string `xml:",chardata"`
}

type XMLRights struct {
	RightsURI string `xml:"rightsURI,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type XMLFundingReference struct {
	FunderName  string `xml:"funderName"`
	AwardNumber string `xml:"awardNumber,omitempty"`
}

type XMLAlternateIdentifier struct {
	AlternateIdentifierType string `xml:"alternateIdentifierType,attr"`
	Value                   string `xml:",chardata"`
}

type XMLRelatedIdentifier struct {
	RelatedIdentifierType string `xml:"relatedIdentifierType,attr,omitempty"`
	RelationType          string `xml:"relationType,attr"`
	Value                 string `xml:",chardata"`
}
