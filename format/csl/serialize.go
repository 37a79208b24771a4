package csl

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Serialize writes items as CSL-JSON. A single item is written as an
// object, several as an array.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	out := make([]JSONItem, 0, len(items))
	for _, item := range items {
		out = append(out, itemToJSON(item))
	}

	encoder := json.NewEncoder(w)
	if opts.Pretty {
		encoder.SetIndent("", "  ")
	}
	if len(out) == 1 {
		return encoder.Encode(out[0])
	}
	return encoder.Encode(out)
}

// itemToJSON maps qualified Dublin Core to a CSL item. The id is the
// handle when the item has one.
func itemToJSON(item *content.Item) JSONItem {
	out := JSONItem{
		ID:             item.Handle,
		Type:           itemType(item.FirstValue("dc.type")),
		Title:          item.FirstValue("dc.title"),
		Abstract:       helpers.StripHTML(item.FirstValue("dc.description.abstract")),
		Language:       item.FirstValue("dc.language.iso"),
		DOI:            strings.TrimPrefix(item.FirstValue("dc.identifier.doi"), "https://doi.org/"),
		URL:            item.FirstValue("dc.identifier.uri"),
		ISBN:           item.FirstValue("dc.identifier.isbn"),
		ISSN:           item.FirstValue("dc.identifier.issn"),
		Publisher:      item.FirstValue("dc.publisher"),
		PublisherPlace: item.FirstValue("dc.publisher.place"),
		ContainerTitle: item.FirstValue("dc.relation.ispartof"),
		Volume:         item.FirstValue("dc.citation.volume"),
		Issue:          item.FirstValue("dc.citation.issue"),
		Note:           strings.Join(item.Values("dc.description"), "; "),
	}
	if out.ID == "" {
		out.ID = item.ID.String()
	}
	if start := item.FirstValue("dc.citation.spage"); start != "" {
		out.Page = start
		if end := item.FirstValue("dc.citation.epage"); end != "" {
			out.Page += "-" + end
		}
	}

	for _, v := range item.Values("dc.creator") {
		out.Author = append(out.Author, toName(v))
	}
	for _, mv := range item.GetMetadata("dc.contributor.*") {
		// Roles with no CSL name list, such as thesis advisors, are dropped.
		switch helpers.RoleFor(mv.Qualifier).Relator {
		case "aut":
			out.Author = append(out.Author, toName(mv.Value))
		case "edt":
			out.Editor = append(out.Editor, toName(mv.Value))
		case "trl":
			out.Translator = append(out.Translator, toName(mv.Value))
		}
	}

	if d, err := helpers.ParseDate(item.FirstValue("dc.date.issued")); err == nil && d.Year > 0 {
		parts := []int{d.Year}
		if d.Month > 0 {
			parts = append(parts, d.Month)
			if d.Day > 0 {
				parts = append(parts, d.Day)
			}
		}
		out.Issued = &JSONDate{DateParts: [][]int{parts}}
	}
	return out
}

func toName(value string) JSONName {
	p := helpers.ParseName(value)
	if p == nil || p.Given == "" {
		return JSONName{Literal: strings.TrimSpace(value)}
	}
	family := p.Family
	if p.Prefix != "" {
		family = p.Prefix + " " + family
	}
	return JSONName{Family: family, Given: p.GivenNames(), Suffix: p.Suffix}
}

// itemType maps a dc.type value to a CSL item type.
func itemType(dcType string) string {
	t := strings.ToLower(dcType)
	switch {
	case strings.Contains(t, "thesis"), strings.Contains(t, "dissertation"):
		return "thesis"
	case strings.Contains(t, "chapter"):
		return "chapter"
	case strings.Contains(t, "conference"):
		return "paper-conference"
	case strings.Contains(t, "article"), strings.Contains(t, "preprint"):
		return "article-journal"
	case strings.Contains(t, "book"):
		return "book"
	case strings.Contains(t, "report"):
		return "report"
	case strings.Contains(t, "dataset"):
		return "dataset"
	case strings.Contains(t, "software"):
		return "software"
	case strings.Contains(t, "image"):
		return "graphic"
	case strings.Contains(t, "video"):
		return "motion_picture"
	case strings.Contains(t, "sound"), strings.Contains(t, "audio"):
		return "song"
	}
	return "document"
}

// JSON types for CSL-JSON output.

type JSONItem struct {
	ID             string     `json:"id"`
	Type           string     `json:"type"`
	Title          string     `json:"title,omitempty"`
	Abstract       string     `json:"abstract,omitempty"`
	Language       string     `json:"language,omitempty"`
	Author         []JSONName `json:"author,omitempty"`
	Editor         []JSONName `json:"editor,omitempty"`
	Translator     []JSONName `json:"translator,omitempty"`
	Issued         *JSONDate  `json:"issued,omitempty"`
	DOI            string     `json:"DOI,omitempty"`
	URL            string     `json:"URL,omitempty"`
	ISBN           string     `json:"ISBN,omitempty"`
	ISSN           string     `json:"ISSN,omitempty"`
	Publisher      string     `json:"publisher,omitempty"`
	PublisherPlace string     `json:"publisher-place,omitempty"`
	ContainerTitle string     `json:"container-title,omitempty"`
	Volume         string     `json:"volume,omitempty"`
	Issue          string     `json:"issue,omitempty"`
	Page           string     `json:"page,omitempty"`
	Note           string     `json:"note,omitempty"`
}

type JSONName struct {
	Family  string `json:"family,omitempty"`
	Given   string `json:"given,omitempty"`
	Suffix  string `json:"suffix,omitempty"`
	Literal string `json:"literal,omitempty"`
}

type JSONDate struct {
	DateParts [][]int `json:"date-parts,omitempty"`
}
