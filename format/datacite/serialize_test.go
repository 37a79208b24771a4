package datacite

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
)

func TestSerialize(t *testing.T) {
	item := &content.Item{}
	item.AddMetadata("dc.title", "en", "Survey Data")
	item.AddMetadata("dc.title.alternative", "", "Raw tables")
	item.AppendValue(content.MetadataValue{
		Schema: "dc", Element: "contributor", Qualifier: "author",
		Value: "Smith, John", Authority: "https://orcid.org/0000-0001-2345-6789",
	})
	item.AddMetadata("dc.contributor.advisor", "", "Boss, Big")
	item.AddMetadata("dc.date.issued", "", "2019-05")
	item.AddMetadata("dc.type", "", "Dataset")
	item.AddMetadata("dc.identifier.doi", "", "doi:10.5072/dspace-7")
	item.AddMetadata("dc.rights.uri", "", "https://creativecommons.org/licenses/by/4.0/")
	item.AddMetadata("dc.description.abstract", "", "Tables <b>and</b> charts")

	var buf bytes.Buffer
	if err := (&Format{}).Serialize(&buf, []*content.Item{item}, &format.SerializeOptions{Pretty: true, Registrant: "Test U"}); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`<resource xmlns="http://datacite.org/schema/kernel-4"`,
		`<identifier identifierType="DOI">10.5072/dspace-7</identifier>`,
		`<creatorName nameType="Personal">Smith, John</creatorName>`,
		`<nameIdentifier nameIdentifierScheme="ORCID" schemeURI="https://orcid.org">https://orcid.org/0000-0001-2345-6789</nameIdentifier>`,
		`<contributor contributorType="Supervisor">`,
		`<title xml:lang="en">Survey Data</title>`,
		`<title titleType="AlternativeTitle">Raw tables</title>`,
		`<publisher>Test U</publisher>`,
		`<publicationYear>2019</publicationYear>`,
		`<resourceType resourceTypeGeneral="Dataset">Dataset</resourceType>`,
		`<date dateType="Issued">2019-05</date>`,
		`<rights rightsURI="https://creativecommons.org/licenses/by/4.0/"></rights>`,
		`<description descriptionType="Abstract">Tables and charts</description>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestToXMLDefaults(t *testing.T) {
	item := &content.Item{}
	item.AddMetadata("dc.title", "", "Untyped")

	opts := format.NewSerializeOptions()
	opts.Now = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	res, err := ToXML(item, opts)
	if err != nil {
		t.Fatalf("ToXML failed: %v", err)
	}
	if res.PublicationYear != 2030 {
		t.Errorf("publication year: got %d, want 2030", res.PublicationYear)
	}
	if res.Publisher != "(:unav)" {
		t.Errorf("publisher: got %q, want %q", res.Publisher, "(:unav)")
	}
	if len(res.Creators) != 1 || res.Creators[0].CreatorName.Value != "(:unav)" {
		t.Errorf("creators: got %+v", res.Creators)
	}
	if res.ResourceType.ResourceTypeGeneral != "Other" {
		t.Errorf("resourceTypeGeneral: got %q, want %q", res.ResourceType.ResourceTypeGeneral, "Other")
	}
	if res.Identifier != nil {
		t.Errorf("identifier: got %+v, want nil", res.Identifier)
	}
}

func TestMissingTitle(t *testing.T) {
	_, err := ToXML(&content.Item{}, nil)
	if !errors.Is(err, ErrMissingTitle) {
		t.Fatalf("got %v, want ErrMissingTitle", err)
	}
}

func TestResourceTypeGeneral(t *testing.T) {
	tests := map[string]string{
		"Book chapter":     "BookChapter",
		"Book":             "Book",
		"Master's thesis":  "Dissertation",
		"Article":          "JournalArticle",
		"Conference paper": "ConferencePaper",
		"Software":         "Software",
		"Technical Report": "Report",
		"Text":             "Text",
		"Learning Object":  "Other",
	}
	for in, want := range tests {
		if got := ResourceTypeGeneral(in); got != want {
			t.Errorf("ResourceTypeGeneral(%q): got %q, want %q", in, got, want)
		}
	}
}
