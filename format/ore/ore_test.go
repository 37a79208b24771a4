package ore

import (
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

const sampleMap = `<atom:entry xmlns:atom="http://www.w3.org/2005/Atom"
    xmlns:oreatom="http://www.openarchives.org/ore/atom/"
    xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
    xmlns:dcterms="http://purl.org/dc/terms/">
  <atom:id>http://repo.example.org/handle/123/4/ore.xml</atom:id>
  <atom:title>Harvested thing</atom:title>
  <atom:link rel="alternate" href="http://repo.example.org/handle/123/4"/>
  <atom:link rel="http://www.openarchives.org/ore/terms/aggregates"
      href="http://repo.example.org/bitstream/123/4/1/paper.pdf"
      title="paper.pdf" type="application/pdf" length="2048"/>
  <atom:link rel="http://www.openarchives.org/ore/terms/aggregates"
      href="http://repo.example.org/bitstream/123/4/2/license.txt?sequence=2"
      type="text/plain"/>
  <oreatom:triples>
    <rdf:Description rdf:about="http://repo.example.org/bitstream/123/4/1/paper.pdf">
      <dcterms:description>ORIGINAL</dcterms:description>
    </rdf:Description>
    <rdf:Description rdf:about="http://repo.example.org/bitstream/123/4/2/license.txt?sequence=2">
      <dcterms:description>LICENSE</dcterms:description>
    </rdf:Description>
  </oreatom:triples>
</atom:entry>`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(sampleMap))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Title != "Harvested thing" {
		t.Errorf("title: got %q", m.Title)
	}
	if len(m.Resources) != 2 {
		t.Fatalf("got %d resources, want 2", len(m.Resources))
	}

	pdf := m.Resources[0]
	if pdf.Title != "paper.pdf" || pdf.MimeType != "application/pdf" || pdf.Length != 2048 {
		t.Errorf("pdf: got %+v", pdf)
	}
	if pdf.Bundle != content.BundleOriginal {
		t.Errorf("pdf bundle: got %q, want %q", pdf.Bundle, content.BundleOriginal)
	}

	license := m.Resources[1]
	if license.Title != "license.txt" {
		t.Errorf("license title from URL: got %q, want %q", license.Title, "license.txt")
	}
	if license.Bundle != "LICENSE" {
		t.Errorf("license bundle: got %q, want %q", license.Bundle, "LICENSE")
	}
}

func TestParseNoEntry(t *testing.T) {
	if _, err := Parse(strings.NewReader(`<feed/>`)); err == nil {
		t.Fatal("expected error for map without entry")
	}
}

func TestFormatParse(t *testing.T) {
	items, err := (&Format{}).Parse(strings.NewReader(sampleMap), nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := items[0].FirstValue("dc.identifier.uri"); got != "http://repo.example.org/handle/123/4/ore.xml" {
		t.Errorf("got %q", got)
	}
}
