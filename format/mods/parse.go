package mods

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Parse reads MODS XML and returns one item per <mods> element. Bare
// records, <modsCollection> wrappers and OAI-PMH envelopes are all
// scanned for <mods> elements regardless of nesting depth.
func (f *Format) Parse(r io.Reader, opts *format.ParseOptions) ([]*content.Item, error) {
	if opts == nil {
		opts = format.NewParseOptions()
	}

	decoder := xml.NewDecoder(r)
	var items []*content.Item
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing MODS XML: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "mods" {
			continue
		}
		// Records without the MODS namespace are accepted as well.
		start.Name.Space = Namespace

		var rec XMLMods
		if err := decoder.DecodeElement(&rec, &start); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(items), err)
		}
		item := &content.Item{}
		if err := rec.ingest(item, opts); err != nil {
			return nil, fmt.Errorf("record %d: %w", len(items), err)
		}
		items = append(items, item)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("no <mods> elements found in input")
	}
	return items, nil
}

// ingest is the inverse of ToXML.
func (m *XMLMods) ingest(item *content.Item, opts *format.ParseOptions) error {
	add := func(field, lang, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if lang == "" {
			lang = opts.DefaultLanguage
		}
		item.AddMetadata(field, lang, value)
	}

	for _, ti := range m.TitleInfo {
		title := ti.Title
		if ti.SubTitle != "" {
			title += ": " + ti.SubTitle
		}
		switch ti.Type {
		case "":
			add("dc.title", ti.Lang, title)
		case "alternative", "translated", "uniform", "abbreviated":
			add("dc.title.alternative", ti.Lang, title)
		default:
			if opts.Strict {
				return fmt.Errorf("unmapped titleInfo type %q", ti.Type)
			}
		}
	}

	for _, n := range m.Names {
		value := n.value()
		if value == "" {
			continue
		}
		field := "dc.contributor"
		if q := n.qualifier(); q != "" {
			field += "." + q
		}
		add(field, "", value)
	}

	for _, g := range m.Genre {
		add("dc.type", "", g)
	}

	for _, o := range m.OriginInfo {
		for _, p := range o.Publishers {
			add("dc.publisher", "", p)
		}
		for _, p := range o.Places {
			if p.PlaceTerm.Type != "code" {
				add("dc.publisher.place", "", p.PlaceTerm.Value)
			}
		}
		for _, d := range o.DateIssued {
			add("dc.date.issued", "", d.Value)
		}
		for _, d := range o.DateCreated {
			add("dc.date.created", "", d.Value)
		}
		for _, d := range o.CopyrightDates {
			add("dc.date.copyright", "", d.Value)
		}
	}

	for _, l := range m.Languages {
		add("dc.language.iso", "", l.LanguageTerm.Value)
	}
	for _, a := range m.Abstracts {
		add("dc.description.abstract", "", helpers.StripHTML(a))
	}
	for _, n := range m.Notes {
		add("dc.description", "", n)
	}
	for _, s := range m.Subjects {
		for _, t := range s.Topics {
			add("dc.subject", "", t)
		}
	}

	for _, id := range m.Identifiers {
		field := "dc.identifier"
		if q := strings.ToLower(strings.TrimSpace(id.Type)); q != "" {
			field += "." + q
		}
		add(field, "", id.Value)
	}

	for _, rel := range m.RelatedItems {
		field := "dc.relation"
		switch rel.Type {
		case "host":
			field = "dc.relation.ispartof"
		case "series":
			field = "dc.relation.ispartofseries"
		}
		for _, ti := range rel.TitleInfo {
			add(field, "", ti.Title)
		}
	}

	for _, ac := range m.AccessConditions {
		add("dc.rights", "", ac.Value)
		add("dc.rights.uri", "", ac.Href)
	}
	return nil
}

// value renders a personal name as "Family, Given" and other names as
// their parts joined. Date parts are dropped.
func (n XMLName) value() string {
	var family, given, suffix string
	var plain []string
	for _, p := range n.NameParts {
		v := strings.TrimSpace(p.Value)
		switch p.Type {
		case "family":
			family = v
		case "given":
			given = strings.TrimSpace(given + " " + v)
		case "termsOfAddress":
			suffix = v
		case "date":
		default:
			plain = append(plain, v)
		}
	}
	if family == "" {
		return strings.Join(plain, " ")
	}
	out := family
	if given != "" {
		out += ", " + given
	}
	if suffix != "" {
		out += ", " + suffix
	}
	return out
}

// qualifier picks the dc.contributor qualifier from the name's roles.
// MARC relator codes win over text terms; names without a role are
// authors and plain contributors get "".
func (n XMLName) qualifier() string {
	var text string
	for _, r := range n.Roles {
		for _, rt := range r.RoleTerms {
			v := strings.ToLower(strings.TrimSpace(rt.Value))
			if rt.Type == "code" {
				for q, role := range helpers.ContributorRoles {
					if role.Relator == v {
						return q
					}
				}
				continue
			}
			if text == "" {
				text = v
			}
		}
	}
	switch text {
	case "", "creator":
		return "author"
	case "contributor":
		return ""
	case "thesis advisor":
		return "advisor"
	}
	if _, ok := helpers.ContributorRoles[text]; ok {
		return text
	}
	return "other"
}
