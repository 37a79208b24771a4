package schemaorg

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

func article() *content.Item {
	item := content.NewItem(uuid.New())
	item.Handle = "123456789/5"
	item.LastModified = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	item.AddMetadata("dc.title", "en", "Molecular Structure of Nucleic Acids")
	item.AddMetadata("dc.contributor.author", "", "Watson, James D.")
	item.AddMetadata("dc.contributor.author", "", "Crick, Francis")
	item.AddMetadata("dc.contributor.advisor", "", "Bragg, Lawrence")
	item.AddMetadata("dc.contributor.sponsor", "", "Medical Research Council")
	item.AddMetadata("dc.type", "", "Article")
	item.AddMetadata("dc.date.issued", "", "1953-04-25")
	item.AddMetadata("dc.relation.ispartof", "", "Nature")
	item.AddMetadata("dc.identifier.doi", "", "doi:10.1038/171737a0")
	item.AddMetadata("dc.identifier.uri", "", "http://hdl.handle.net/123456789/5")
	item.AddMetadata("dc.publisher", "", "Nature Publishing Group")
	item.AddMetadata("dc.description.abstract", "", "<p>We wish to suggest a structure.</p>")
	item.EnsureBundle(content.BundleOriginal).Put(content.NewBitstream("paper.pdf", "application/pdf", "", []byte("%PDF")))
	return item
}

func TestSerializeScholarlyArticle(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Format{}).Serialize(&buf, []*content.Item{article()}, nil); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	cases := []struct {
		key, want string
	}{
		{"@context", "https://schema.org"},
		{"@type", "ScholarlyArticle"},
		{"@id", "http://hdl.handle.net/123456789/5"},
		{"name", "Molecular Structure of Nucleic Acids"},
		{"sameAs", "https://doi.org/10.1038/171737a0"},
		{"datePublished", "1953-04-25"},
		{"dateModified", "2024-03-01T12:30:00Z"},
		{"abstract", "We wish to suggest a structure."},
	}
	for _, tc := range cases {
		if got, _ := doc[tc.key].(string); got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.key, got, tc.want)
		}
	}

	authors, _ := doc["author"].([]any)
	if len(authors) != 2 {
		t.Fatalf("got %d authors, want 2", len(authors))
	}
	first, _ := authors[0].(map[string]any)
	if first["familyName"] != "Watson" || first["givenName"] != "James D." || first["name"] != "James D. Watson" {
		t.Errorf("first author: got %v", first)
	}

	if contributors, _ := doc["contributor"].([]any); len(contributors) != 1 {
		t.Errorf("got %d contributors, want the advisor only", len(contributors))
	}
	if funders, _ := doc["funder"].([]any); len(funders) != 1 {
		t.Errorf("got %d funders, want 1", len(funders))
	}

	parts, _ := doc["isPartOf"].([]any)
	if len(parts) != 1 {
		t.Fatalf("got %d isPartOf, want 1", len(parts))
	}
	if host, _ := parts[0].(map[string]any); host["@type"] != "Periodical" || host["name"] != "Nature" {
		t.Errorf("isPartOf: got %v", host)
	}

	encoding, _ := doc["encoding"].([]any)
	if len(encoding) != 1 {
		t.Fatalf("got %d encodings, want 1", len(encoding))
	}
	if file, _ := encoding[0].(map[string]any); file["encodingFormat"] != "application/pdf" || file["contentSize"] != float64(4) {
		t.Errorf("encoding: got %v", file)
	}
}

func TestSerializeSeveralIsArray(t *testing.T) {
	thesis := content.NewItem(uuid.New())
	thesis.AddMetadata("dc.title", "", "A Thesis")
	thesis.AddMetadata("dc.type", "", "Thesis")
	thesis.AddMetadata("thesis.degree.name", "", "Doctor of Philosophy")
	thesis.AddMetadata("dc.date.issued", "", "2020-05")

	var buf bytes.Buffer
	if err := (&Format{}).Serialize(&buf, []*content.Item{article(), thesis}, nil); err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	var docs []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &docs); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d documents, want 2", len(docs))
	}
	if docs[1]["@type"] != "Thesis" || docs[1]["inSupportOf"] != "Doctor of Philosophy" {
		t.Errorf("thesis: got %v", docs[1])
	}
	if docs[1]["datePublished"] != "2020-05" {
		t.Errorf("datePublished: got %v, want 2020-05", docs[1]["datePublished"])
	}
}

func TestDetermineSchemaType(t *testing.T) {
	tests := map[string]SchemaType{
		"Article":               TypeScholarlyArticle,
		"Book chapter":          TypeChapter,
		"Dataset":               TypeDataset,
		"Image, 3-D":            TypeImageObject,
		"Learning Object":       TypeCreativeWork,
		"Doctoral Dissertation": TypeThesis,
	}
	for in, want := range tests {
		if got := determineSchemaType(in); got != want {
			t.Errorf("determineSchemaType(%q) = %q, want %q", in, got, want)
		}
	}
}
