package bibtex

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

var entryTypes = []string{
	"article", "book", "booklet", "inbook", "incollection", "inproceedings",
	"manual", "mastersthesis", "misc", "phdthesis", "proceedings",
	"techreport", "unpublished", "online", "dataset", "software",
}

// entry is one BibTeX record before rendering.
type entry struct {
	kind      string
	key       string
	title     string
	authors   []string
	editors   []string
	year      string
	month     string
	journal   string
	booktitle string
	publisher string
	address   string
	series    string
	school    string
	thesis    string
	doi       string
	isbn      string
	issn      string
	url       string
	keywords  []string
	abstract  string
	language  string
}

// Serialize writes items as BibTeX entries separated by blank lines.
// Citation keys are made unique within one call.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	_ = opts

	seen := make(map[string]int)
	for i, item := range items {
		e := itemToEntry(item)
		if n := seen[e.key]; n > 0 {
			seen[e.key]++
			e.key += string(rune('a' + n - 1))
		} else {
			seen[e.key] = 1
		}

		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, e.render()); err != nil {
			return fmt.Errorf("writing item %s: %w", item.ID, err)
		}
	}
	return nil
}

// itemToEntry maps qualified Dublin Core to BibTeX fields. Advisors and
// other contributor roles are not authors.
func itemToEntry(item *content.Item) *entry {
	e := &entry{
		kind:      entryKind(item.FirstValue("dc.type"), item.FirstValue("thesis.degree.level")),
		title:     item.FirstValue("dc.title"),
		authors:   item.Values("dc.contributor.author"),
		editors:   item.Values("dc.contributor.editor"),
		publisher: item.FirstValue("dc.publisher"),
		address:   item.FirstValue("dc.publisher.place"),
		series:    item.FirstValue("dc.relation.ispartofseries"),
		school:    item.FirstValue("thesis.degree.grantor"),
		thesis:    item.FirstValue("thesis.degree.name"),
		doi:       strings.TrimPrefix(item.FirstValue("dc.identifier.doi"), "https://doi.org/"),
		isbn:      item.FirstValue("dc.identifier.isbn"),
		issn:      item.FirstValue("dc.identifier.issn"),
		url:       item.FirstValue("dc.identifier.uri"),
		keywords:  item.Values("dc.subject"),
		abstract:  item.FirstValue("dc.description.abstract"),
		language:  item.FirstValue("dc.language.iso"),
	}
	if len(e.authors) == 0 {
		e.authors = item.Values("dc.creator")
	}

	if d, err := helpers.ParseDate(item.FirstValue("dc.date.issued")); err == nil && d.Year > 0 {
		e.year = strconv.Itoa(d.Year)
		e.month = monthToString(d.Month)
	}

	if container := item.FirstValue("dc.relation.ispartof"); container != "" {
		if e.kind == "article" {
			e.journal = container
		} else {
			e.booktitle = container
		}
	}

	e.key = citationKey(e)
	return e
}

// entryKind maps a dc.type value to a BibTeX entry type.
func entryKind(dcType, degreeLevel string) string {
	t := strings.ToLower(dcType)
	switch {
	case strings.Contains(t, "dissertation"):
		return "phdthesis"
	case strings.Contains(t, "thesis"):
		if strings.Contains(strings.ToLower(degreeLevel), "doctor") {
			return "phdthesis"
		}
		return "mastersthesis"
	case strings.Contains(t, "chapter"):
		return "incollection"
	case strings.Contains(t, "conference") || strings.Contains(t, "proceedings"):
		return "inproceedings"
	case strings.Contains(t, "article") || strings.Contains(t, "preprint"):
		return "article"
	case strings.Contains(t, "book"):
		return "book"
	case strings.Contains(t, "technical report"):
		return "techreport"
	case strings.Contains(t, "dataset"):
		return "dataset"
	case strings.Contains(t, "software"):
		return "software"
	case strings.Contains(t, "website") || strings.Contains(t, "web page"):
		return "online"
	}
	return "misc"
}

// citationKey builds "familyYEAR" from the first author and issue year.
func citationKey(e *entry) string {
	author := ""
	if len(e.authors) > 0 {
		if n := helpers.ParseName(e.authors[0]); n != nil {
			author = n.Family
		}
	}
	author = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, author)
	if author == "" {
		author = "unknown"
	}

	year := e.year
	if year == "" {
		year = "nd"
	}
	return strings.ToLower(author) + year
}

func monthToString(month int) string {
	months := []string{"", "jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	if month >= 1 && month <= 12 {
		return months[month]
	}
	return ""
}

func (e *entry) render() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "@%s{%s,\n", e.kind, e.key)

	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&sb, "  %s = {%s},\n", name, escapeBibtex(value))
		}
	}

	field("title", e.title)
	field("author", strings.Join(e.authors, " and "))
	field("editor", strings.Join(e.editors, " and "))
	field("year", e.year)
	if e.month != "" {
		// Month macros are written bare.
		fmt.Fprintf(&sb, "  month = %s,\n", e.month)
	}
	field("journal", e.journal)
	field("booktitle", e.booktitle)
	field("publisher", e.publisher)
	field("address", e.address)
	field("series", e.series)
	field("school", e.school)
	field("type", e.thesis)
	// Identifiers are not escaped; DOIs and URLs contain underscores.
	for _, id := range []struct{ name, value string }{
		{"doi", e.doi}, {"isbn", e.isbn}, {"issn", e.issn}, {"url", e.url},
	} {
		if id.value != "" {
			fmt.Fprintf(&sb, "  %s = {%s},\n", id.name, id.value)
		}
	}
	field("keywords", strings.Join(e.keywords, ", "))
	field("abstract", e.abstract)
	field("language", e.language)

	sb.WriteString("}\n")
	return sb.String()
}

// escapeBibtex escapes special characters for BibTeX.
func escapeBibtex(s string) string {
	s = strings.ReplaceAll(s, "&", "\\&")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "$", "\\$")
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}
