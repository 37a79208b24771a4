package content

import (
	"testing"

	"github.com/google/uuid"
)

func TestGetMetadataWildcards(t *testing.T) {
	item := NewItem(uuid.New())
	item.AddMetadata("dc.title", "en", "A Title")
	item.AddMetadata("dc.contributor.author", "", "Smith, Alice")
	item.AddMetadata("dc.contributor.author", "", "Jones, Bob")
	item.AddMetadata("dc.contributor.advisor", "", "Brown, Carol")

	tests := []struct {
		field string
		want  int
	}{
		{"dc.title", 1},
		{"dc.contributor", 0},
		{"dc.contributor.author", 2},
		{"dc.contributor.*", 3},
		{"dc.*.*", 4},
		{"dc", 4},
		{"local.*.*", 0},
	}
	for _, tt := range tests {
		if got := len(item.GetMetadata(tt.field)); got != tt.want {
			t.Errorf("GetMetadata(%q) = %d values, want %d", tt.field, got, tt.want)
		}
	}

	authors := item.GetMetadata("dc.contributor.author")
	if authors[1].Place != 1 {
		t.Errorf("second author place = %d, want 1", authors[1].Place)
	}
}

func TestClearMetadata(t *testing.T) {
	item := NewItem(uuid.New())
	item.AddMetadata("dc.title", "", "T")
	item.AddMetadata("dc.subject", "", "S")
	item.AddMetadata("cris.sourceId", "", "repo::1")

	if n := item.ClearMetadata("dc.*.*"); n != 2 {
		t.Fatalf("cleared %d, want 2", n)
	}
	if got := item.FirstValue("cris.sourceId"); got != "repo::1" {
		t.Errorf("got %q, want %q", got, "repo::1")
	}
}

func TestParseField(t *testing.T) {
	mv := ParseField("dc.identifier.uri")
	if mv.Schema != "dc" || mv.Element != "identifier" || mv.Qualifier != "uri" {
		t.Fatalf("unexpected parse: %+v", mv)
	}
	if got := mv.Field(); got != "dc.identifier.uri" {
		t.Errorf("got %q, want %q", got, "dc.identifier.uri")
	}
	if got := ParseField("dc.title").Field(); got != "dc.title" {
		t.Errorf("got %q, want %q", got, "dc.title")
	}
}

func TestBundlePutReplaces(t *testing.T) {
	item := NewItem(uuid.New())
	b := item.EnsureBundle(BundleORE)
	b.Put(NewBitstream("ORE.xml", "text/xml", "", []byte("one")))
	b.Put(NewBitstream("ORE.xml", "text/xml", "", []byte("second")))

	if got := len(item.Bundle(BundleORE).Bitstreams); got != 1 {
		t.Fatalf("bitstreams = %d, want 1", got)
	}
	bs := item.Bundle(BundleORE).Bitstream("ORE.xml")
	if bs.Size != 6 {
		t.Errorf("size = %d, want 6", bs.Size)
	}
	if bs.Checksum == "" {
		t.Error("expected checksum")
	}
}

func TestIsHarvestable(t *testing.T) {
	hc := HarvestedCollection{HarvestType: HarvestMetadata, OaiSource: "http://x/oai", OaiSetID: "all", MetadataConfigID: "dc"}
	if !hc.IsHarvestable() {
		t.Error("expected harvestable")
	}
	hc.HarvestType = HarvestNone
	if hc.IsHarvestable() {
		t.Error("type none must not be harvestable")
	}
}

func TestRenumberPlaces(t *testing.T) {
	item := NewItem(uuid.New())
	item.AddMetadata("dc.subject", "", "a")
	item.AddMetadata("dc.subject", "", "b")
	item.AddMetadata("dc.subject", "", "c")
	item.Metadata = append(item.Metadata[:0], item.Metadata[1:]...)
	item.RenumberPlaces()

	subjects := item.GetMetadata("dc.subject")
	if subjects[0].Place != 0 || subjects[1].Place != 1 {
		t.Errorf("places = %d,%d, want 0,1", subjects[0].Place, subjects[1].Place)
	}
}

func TestClone(t *testing.T) {
	item := NewItem(uuid.New())
	item.AddMetadata("dc.title", "", "Original")
	item.EnsureBundle(BundleORE).Put(NewBitstream("ORE.xml", "text/xml", "", []byte("<x/>")))

	c := item.Clone()
	c.AddMetadata("dc.identifier.doi", "", "10.5072/x")
	c.Bundle(BundleORE).Bitstreams = nil

	if len(item.Metadata) != 1 {
		t.Errorf("original metadata changed: %v", item.Metadata)
	}
	if len(item.Bundle(BundleORE).Bitstreams) != 1 {
		t.Error("original bundle changed")
	}
	if c.ID != item.ID {
		t.Error("clone should keep the id")
	}
}
