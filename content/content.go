// Package content defines the repository content model: collections, items,
// their metadata values, bundles and bitstreams, and the bookkeeping rows the
// OAI harvester keeps alongside them.
package content

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Collection groups items and is the unit of harvesting.
type Collection struct {
	ID          uuid.UUID
	Handle      string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Item is a single repository record. Items that are not in the archive are
// workspace items: created but not yet installed.
type Item struct {
	ID               uuid.UUID
	Handle           string
	OwningCollection uuid.UUID
	InArchive        bool
	Withdrawn        bool
	Discoverable     bool
	LastModified     time.Time
	Metadata         []MetadataValue
	Bundles          []Bundle
}

// NewItem returns an empty workspace item owned by collection.
func NewItem(collection uuid.UUID) *Item {
	return &Item{
		ID:               uuid.New(),
		OwningCollection: collection,
		Discoverable:     true,
		LastModified:     time.Now().UTC(),
	}
}

// GetMetadata returns the values matching field. Each part of field may be
// "*" to match anything; a two part field matches only unqualified values
// unless the qualifier is given as "*".
func (i *Item) GetMetadata(field string) []MetadataValue {
	var out []MetadataValue
	for _, mv := range i.Metadata {
		if mv.Matches(field) {
			out = append(out, mv)
		}
	}
	return out
}

// FirstValue returns the first value of field, or "".
func (i *Item) FirstValue(field string) string {
	values := i.GetMetadata(field)
	if len(values) == 0 {
		return ""
	}
	return values[0].Value
}

// Values returns the plain string values of field.
func (i *Item) Values(field string) []string {
	values := i.GetMetadata(field)
	out := make([]string, 0, len(values))
	for _, mv := range values {
		out = append(out, mv.Value)
	}
	return out
}

// AddMetadata appends a value to field, assigning the next place.
func (i *Item) AddMetadata(field, language, value string) {
	mv := ParseField(field)
	mv.Language = language
	mv.Value = value
	mv.Confidence = ConfidenceUnset
	i.AppendValue(mv)
}

// AppendValue appends mv, numbering it after the existing values of its field.
func (i *Item) AppendValue(mv MetadataValue) {
	place := 0
	for _, existing := range i.Metadata {
		if existing.Field() == mv.Field() {
			place++
		}
	}
	mv.Place = place
	i.Metadata = append(i.Metadata, mv)
}

// ClearMetadata removes every value matching field (wildcards as in
// GetMetadata) and returns how many were removed.
func (i *Item) ClearMetadata(field string) int {
	kept := i.Metadata[:0]
	removed := 0
	for _, mv := range i.Metadata {
		if mv.Matches(field) {
			removed++
			continue
		}
		kept = append(kept, mv)
	}
	i.Metadata = kept
	return removed
}

// RenumberPlaces restores consecutive places per field after values were
// removed.
func (i *Item) RenumberPlaces() {
	next := map[string]int{}
	for idx := range i.Metadata {
		field := i.Metadata[idx].Field()
		i.Metadata[idx].Place = next[field]
		next[field]++
	}
}

// Clone returns a copy of i whose metadata and bundle lists can be changed
// without affecting i. Bitstream contents are shared.
func (i *Item) Clone() *Item {
	c := *i
	c.Metadata = append([]MetadataValue(nil), i.Metadata...)
	c.Bundles = make([]Bundle, len(i.Bundles))
	for idx, b := range i.Bundles {
		b.Bitstreams = append([]Bitstream(nil), b.Bitstreams...)
		c.Bundles[idx] = b
	}
	return &c
}

// Bundle returns the named bundle, or nil.
func (i *Item) Bundle(name string) *Bundle {
	for idx := range i.Bundles {
		if i.Bundles[idx].Name == name {
			return &i.Bundles[idx]
		}
	}
	return nil
}

// EnsureBundle returns the named bundle, creating it when missing.
func (i *Item) EnsureBundle(name string) *Bundle {
	if b := i.Bundle(name); b != nil {
		return b
	}
	i.Bundles = append(i.Bundles, Bundle{ID: uuid.New(), Name: name})
	return &i.Bundles[len(i.Bundles)-1]
}

// Title returns dc.title.
func (i *Item) Title() string {
	return i.FirstValue("dc.title")
}

func splitField(field string) (schema, element, qualifier string) {
	parts := strings.SplitN(field, ".", 3)
	switch len(parts) {
	case 1:
		return parts[0], "*", "*"
	case 2:
		return parts[0], parts[1], ""
	default:
		return parts[0], parts[1], parts[2]
	}
}

func matchPart(pattern, value string) bool {
	return pattern == "*" || pattern == value
}

func matchQualifier(pattern, value string) bool {
	if pattern == "*" {
		return true
	}
	return pattern == value
}
