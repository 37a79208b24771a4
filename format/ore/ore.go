// Package ore reads OAI-ORE resource maps serialised as Atom, which
// providers disseminate to describe the files aggregated by an item.
package ore

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/xmltree"
)

// Namespaces used in Atom resource maps.
const (
	Namespace      = "http://www.w3.org/2005/Atom"
	RelAggregates  = "http://www.openarchives.org/ore/terms/aggregates"
	rdfNamespace   = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	termsNamespace = "http://purl.org/dc/terms/"
)

// Resource is one aggregated file.
type Resource struct {
	URL      string
	Title    string
	MimeType string
	Length   int64
	// Bundle is the bundle the provider files the resource under, or
	// ORIGINAL when the map does not say.
	Bundle string
}

// ResourceMap is a parsed Atom resource map.
type ResourceMap struct {
	ID        string
	Title     string
	Resources []Resource
}

// Format implements the ore format. Resource maps are stored as bitstreams,
// not ingested as metadata, so Parse only records the map's title.
type Format struct{}

var (
	_ format.Format = (*Format)(nil)
	_ format.Parser = (*Format)(nil)
)

// Name returns the format identifier.
func (f *Format) Name() string {
	return "ore"
}

// Description returns a human-readable format description.
func (f *Format) Description() string {
	return "OAI-ORE Resource Map (Atom)"
}

// Namespace returns the Atom namespace.
func (f *Format) Namespace() string {
	return Namespace
}

// CanParse returns true if the input looks like an Atom resource map.
func (f *Format) CanParse(peek []byte) bool {
	peek = bytes.TrimSpace(peek)
	if len(peek) == 0 || peek[0] != '<' {
		return false
	}
	return bytes.Contains(peek, []byte("openarchives.org/ore/"))
}

// Parse returns an item per resource map carrying dc.title and the map id
// as dc.identifier.uri.
func (f *Format) Parse(r io.Reader, _ *format.ParseOptions) ([]*content.Item, error) {
	maps, err := ParseAll(r)
	if err != nil {
		return nil, err
	}
	items := make([]*content.Item, 0, len(maps))
	for _, m := range maps {
		item := &content.Item{}
		if m.Title != "" {
			item.AddMetadata("dc.title", "", m.Title)
		}
		if m.ID != "" {
			item.AddMetadata("dc.identifier.uri", "", m.ID)
		}
		items = append(items, item)
	}
	return items, nil
}

// ParseAll reads every Atom entry in r.
func ParseAll(r io.Reader) ([]*ResourceMap, error) {
	entries, err := xmltree.ParseAll(r, "entry")
	if err != nil {
		return nil, fmt.Errorf("parsing ORE resource map: %w", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no atom entry found in resource map")
	}
	maps := make([]*ResourceMap, 0, len(entries))
	for _, entry := range entries {
		maps = append(maps, FromEntry(entry))
	}
	return maps, nil
}

// Parse reads a single resource map.
func Parse(r io.Reader) (*ResourceMap, error) {
	maps, err := ParseAll(r)
	if err != nil {
		return nil, err
	}
	return maps[0], nil
}

// FromEntry extracts the aggregated resources of an atom:entry. Bundle
// names come from the rdf:Description triples describing each resource.
func FromEntry(entry *xmltree.Node) *ResourceMap {
	m := &ResourceMap{
		ID:    entry.ChildValue("id"),
		Title: entry.ChildValue("title"),
	}

	bundles := map[string]string{}
	for _, desc := range entry.Descendants("Description") {
		about := ""
		for _, a := range desc.Attrs {
			if a.Name.Local == "about" && (a.Name.Space == rdfNamespace || a.Name.Space == "") {
				about = a.Value
			}
		}
		if about == "" {
			continue
		}
		if d := desc.Child("description"); d != nil && d.Name.Space == termsNamespace {
			bundles[about] = d.Value()
		}
	}

	for _, link := range entry.ChildrenNamed("link") {
		if link.Attr("rel") != RelAggregates {
			continue
		}
		href := strings.TrimSpace(link.Attr("href"))
		if href == "" {
			continue
		}
		res := Resource{
			URL:      href,
			Title:    link.Attr("title"),
			MimeType: link.Attr("type"),
			Bundle:   content.BundleOriginal,
		}
		if n, err := strconv.ParseInt(link.Attr("length"), 10, 64); err == nil {
			res.Length = n
		}
		if b := bundles[href]; b != "" {
			res.Bundle = b
		}
		if res.Title == "" {
			res.Title = nameFromURL(href)
		}
		m.Resources = append(m.Resources, res)
	}
	return m
}

func nameFromURL(u string) string {
	u = strings.SplitN(u, "?", 2)[0]
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}

func init() {
	format.Register(&Format{})
}
