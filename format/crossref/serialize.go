package crossref

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/helpers"
)

// Serialize writes items as one CrossRef doi_batch.
func (f *Format) Serialize(w io.Writer, items []*content.Item, opts *format.SerializeOptions) error {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}

	deposit, err := BuildDeposit(items, opts)
	if err != nil {
		return err
	}

	if !opts.OmitHeader {
		if _, err := w.Write([]byte(xml.Header)); err != nil {
			return err
		}
	}

	encoder := xml.NewEncoder(w)
	if opts.Pretty {
		encoder.Indent("", "  ")
	}

	return encoder.Encode(deposit)
}

// BuildDeposit converts items to a doi_batch. Every item needs a title.
func BuildDeposit(items []*content.Item, opts *format.SerializeOptions) (*XMLDeposit, error) {
	if opts == nil {
		opts = format.NewSerializeOptions()
	}
	now := opts.Timestamp()

	batchID := opts.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	deposit := &XMLDeposit{
		XMLNS:     Namespace,
		XSI:       "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLoc: Namespace + " http://www.crossref.org/schemas/crossref" + Version + ".xsd",
		Version:   Version,
		Head: &XMLHead{
			DoiBatchID: batchID,
			Timestamp:  now.Format("20060102150405"),
			Depositor: &XMLDepositor{
				DepositorName: opts.Depositor,
				EmailAddress:  opts.DepositorEmail,
			},
			Registrant: opts.Registrant,
		},
		Body: &XMLBody{},
	}

	for _, item := range items {
		if strings.TrimSpace(item.Title()) == "" {
			return nil, fmt.Errorf("item %s: %w", item.ID, ErrMissingTitle)
		}

		switch Classify(item) {
		case KindDissertation:
			deposit.Body.Dissertation = append(deposit.Body.Dissertation, buildDissertation(item))
		case KindBook:
			deposit.Body.Book = append(deposit.Body.Book, buildBook(item))
		case KindDataset:
			if deposit.Body.Database == nil {
				deposit.Body.Database = &XMLDatabase{
					Metadata: &XMLDatabaseMetadata{Titles: &XMLTitles{Title: opts.Registrant + " datasets"}},
				}
			}
			deposit.Body.Database.Dataset = append(deposit.Body.Database.Dataset, buildDataset(item))
		case KindJournalArticle:
			deposit.Body.Journal = append(deposit.Body.Journal, buildJournal(item))
		default:
			deposit.Body.PostedContent = append(deposit.Body.PostedContent, buildPostedContent(item))
		}
	}

	return deposit, nil
}

// Kind is the CrossRef content type chosen for an item.
type Kind string

const (
	KindJournalArticle Kind = "journal_article"
	KindDissertation   Kind = "dissertation"
	KindBook           Kind = "book"
	KindDataset        Kind = "dataset"
	KindPostedContent  Kind = "posted_content"
)

// Classify picks the deposit content type from dc.type, falling back to a
// journal article when journal metadata is present.
func Classify(item *content.Item) Kind {
	for _, t := range item.Values("dc.type") {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "thesis"), strings.Contains(lower, "dissertation"):
			return KindDissertation
		case strings.Contains(lower, "book") && !strings.Contains(lower, "chapter"):
			return KindBook
		case strings.Contains(lower, "dataset"):
			return KindDataset
		case strings.Contains(lower, "preprint"):
			return KindPostedContent
		}
	}
	if journalTitle(item) != "" {
		return KindJournalArticle
	}
	return KindPostedContent
}

func journalTitle(item *content.Item) string {
	if v := item.FirstValue("dc.relation.ispartof"); v != "" {
		return v
	}
	return item.FirstValue("dc.relation.ispartofseries")
}

func buildJournal(item *content.Item) *XMLJournal {
	journal := &XMLJournal{
		Metadata: &XMLJournalMetadata{
			Language:  language(item),
			FullTitle: journalTitle(item),
		},
		Article: &XMLJournalArticle{
			PublicationType: "full_text",
			Titles:          buildTitles(item),
			Contributors:    buildContributors(item),
			PublicationDate: buildPublicationDate(item),
			Abstract:        buildAbstract(item),
			DoiData:         buildDoiData(item),
		},
	}
	for _, issn := range item.Values("dc.identifier.issn") {
		journal.Metadata.ISSN = append(journal.Metadata.ISSN, &XMLISSN{MediaType: "electronic", Value: issn})
	}
	volume := item.FirstValue("dc.relation.volume")
	issue := item.FirstValue("dc.relation.issue")
	if volume != "" || issue != "" {
		journal.Issue = &XMLJournalIssue{
			PublicationDate: buildPublicationDate(item),
			Issue:           issue,
		}
		if volume != "" {
			journal.Issue.Volume = &XMLJournalVolume{Volume: volume}
		}
	}
	if first := item.FirstValue("dc.relation.firstpage"); first != "" {
		journal.Article.Pages = &XMLPages{
			FirstPage: first,
			LastPage:  item.FirstValue("dc.relation.lastpage"),
		}
	}
	return journal
}

func buildDissertation(item *content.Item) *XMLDissertation {
	diss := &XMLDissertation{
		Titles:       buildTitles(item),
		ApprovalDate: buildPublicationDate(item),
		Abstract:     buildAbstract(item),
		DoiData:      buildDoiData(item),
		Degree:       item.FirstValue("dc.description.degree"),
	}
	if diss.Degree == "" {
		diss.Degree = item.FirstValue("thesis.degree.name")
	}

	if authors := item.Values("dc.contributor.author"); len(authors) > 0 {
		diss.PersonName = buildPersonName(authors[0], "author", "first")
	}

	if institution := item.FirstValue("dc.publisher"); institution != "" {
		diss.Institution = &XMLInstitution{InstitutionName: institution}
	}

	return diss
}

func buildPostedContent(item *content.Item) *XMLPostedContent {
	pc := &XMLPostedContent{
		Type:         "other",
		Titles:       buildTitles(item),
		Contributors: buildContributors(item),
		PostedDate:   buildPublicationDate(item),
		Abstract:     buildAbstract(item),
		DoiData:      buildDoiData(item),
	}
	for _, t := range item.Values("dc.type") {
		if strings.Contains(strings.ToLower(t), "preprint") {
			pc.Type = "preprint"
		}
	}
	return pc
}

func buildDataset(item *content.Item) *XMLDataset {
	return &XMLDataset{
		DatasetType:  "record",
		Titles:       buildTitles(item),
		Contributors: buildContributors(item),
		DatabaseDate: buildPublicationDate(item),
		DoiData:      buildDoiData(item),
	}
}

func buildBook(item *content.Item) *XMLBook {
	book := &XMLBook{
		BookType: "monograph",
		BookMetadata: &XMLBookMetadata{
			Language:        language(item),
			Titles:          buildTitles(item),
			Contributors:    buildContributors(item),
			PublicationDate: buildPublicationDate(item),
			EditionNumber:   item.FirstValue("dc.description.edition"),
			DoiData:         buildDoiData(item),
		},
	}

	if isbn := item.FirstValue("dc.identifier.isbn"); isbn != "" {
		book.BookMetadata.ISBN = isbn
	} else {
		book.BookMetadata.NoISBN = &XMLNoISBN{Reason: "monograph"}
	}

	if publisher := item.FirstValue("dc.publisher"); publisher != "" {
		book.BookMetadata.Publisher = &XMLPublisher{PublisherName: publisher}
	}

	return book
}

func buildTitles(item *content.Item) *XMLTitles {
	titles := &XMLTitles{Title: item.Title()}
	if alt := item.FirstValue("dc.title.alternative"); alt != "" {
		titles.Subtitle = alt
	}
	return titles
}

func buildContributors(item *content.Item) *XMLContributors {
	result := &XMLContributors{}
	for _, mv := range item.GetMetadata("dc.contributor.*") {
		role := helpers.RoleFor(mv.Qualifier).CrossRef
		if role == "" {
			continue
		}
		sequence := "additional"
		if len(result.PersonName) == 0 {
			sequence = "first"
		}
		if pn := buildPersonName(mv.Value, role, sequence); pn != nil {
			if strings.HasPrefix(mv.Authority, "https://orcid.org/") {
				pn.ORCID = mv.Authority
			}
			result.PersonName = append(result.PersonName, pn)
		}
	}
	if len(result.PersonName) == 0 {
		return nil
	}
	return result
}

func buildPersonName(name, role, sequence string) *XMLPersonName {
	parsed := helpers.ParseName(name)
	if parsed == nil {
		return nil
	}
	return &XMLPersonName{
		ContributorRole: role,
		Sequence:        sequence,
		GivenName:       parsed.GivenNames(),
		Surname:         parsed.Family,
		Suffix:          parsed.Suffix,
	}
}

func buildPublicationDate(item *content.Item) *XMLPublicationDate {
	raw := item.FirstValue("dc.date.issued")
	if raw == "" {
		return nil
	}
	d, err := helpers.ParseDate(raw)
	if err != nil || d.Year == 0 {
		return nil
	}
	return &XMLPublicationDate{
		MediaType: "online",
		Month:     d.Month,
		Day:       d.Day,
		Year:      d.Year,
	}
}

func buildAbstract(item *content.Item) *XMLAbstract {
	text := item.FirstValue("dc.description.abstract")
	if text == "" {
		return nil
	}
	return &XMLAbstract{Content: helpers.StripHTML(text)}
}

// buildDoiData takes the DOI from dc.identifier.doi and the landing page
// from dc.identifier.uri.
func buildDoiData(item *content.Item) *XMLDoiData {
	doi := BareDOI(item.FirstValue("dc.identifier.doi"))
	if doi == "" {
		return nil
	}
	return &XMLDoiData{
		DOI:      doi,
		Resource: item.FirstValue("dc.identifier.uri"),
	}
}

// BareDOI strips resolver and doi: prefixes.
func BareDOI(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			return s[len(prefix):]
		}
	}
	return s
}

func language(item *content.Item) string {
	lang := item.FirstValue("dc.language.iso")
	if len(lang) >= 2 {
		return strings.ToLower(lang[:2])
	}
	return ""
}

// XML types for CrossRef deposit serialization.

type XMLDeposit struct {
	XMLName   xml.Name `xml:"doi_batch"`
	XMLNS     string   `xml:"xmlns,attr"`
	XSI       string   `xml:"xmlns:xsi,attr"`
	SchemaLoc string   `xml:"xsi:schemaLocation,attr"`
	Version   string   `xml:"version,attr"`
	Head      *XMLHead `xml:"head"`
	Body      *XMLBody `xml:"body"`
}

type XMLHead struct {
	DoiBatchID string        `xml:"doi_batch_id"`
	Timestamp  string        `xml:"timestamp"`
	Depositor  *XMLDepositor `xml:"depositor"`
	Registrant string        `xml:"registrant"`
}

type XMLDepositor struct {
	DepositorName string `xml:"depositor_name"`
	EmailAddress  string `xml:"email_address"`
}

type XMLBody struct {
	Journal       []*XMLJournal       `xml:"journal,omitempty"`
	Book          []*XMLBook          `xml:"book,omitempty"`
	Dissertation  []*XMLDissertation  `xml:"dissertation,omitempty"`
	Database      *XMLDatabase        `xml:"database,omitempty"`
	PostedContent []*XMLPostedContent `xml:"posted_content,omitempty"`
}

type XMLJournal struct {
	Metadata *XMLJournalMetadata `xml:"journal_metadata"`
	Issue    *XMLJournalIssue    `xml:"journal_issue,omitempty"`
	Article  *XMLJournalArticle  `xml:"journal_article"`
}

type XMLJournalMetadata struct {
	Language  string     `xml:"language,attr,omitempty"`
	FullTitle string     `xml:"full_title"`
	ISSN      []*XMLISSN `xml:"issn,omitempty"`
}

type XMLISSN struct {
	MediaType string `xml:"media_type,attr,omitempty"`
	Value     string `xml:",chardata"`
}

type XMLJournalIssue struct {
	PublicationDate *XMLPublicationDate `xml:"publication_date,omitempty"`
	Volume          *XMLJournalVolume   `xml:"journal_volume,omitempty"`
	Issue           string              `xml:"issue,omitempty"`
}

type XMLJournalVolume struct {
	Volume string `xml:"volume"`
}

type XMLJournalArticle struct {
	PublicationType string              `xml:"publication_type,attr"`
	Titles          *XMLTitles          `xml:"titles"`
	Contributors    *XMLContributors    `xml:"contributors,omitempty"`
	Abstract        *XMLAbstract        `xml:"abstract,omitempty"`
	PublicationDate *XMLPublicationDate `xml:"publication_date,omitempty"`
	Pages           *XMLPages           `xml:"pages,omitempty"`
	DoiData         *XMLDoiData         `xml:"doi_data,omitempty"`
}

type XMLPages struct {
	FirstPage string `xml:"first_page"`
	LastPage  string `xml:"last_page,omitempty"`
}

type XMLDissertation struct {
	PersonName   *XMLPersonName      `xml:"person_name,omitempty"`
	Titles       *XMLTitles          `xml:"titles,omitempty"`
	Abstract     *XMLAbstract        `xml:"abstract,omitempty"`
	ApprovalDate *XMLPublicationDate `xml:"approval_date,omitempty"`
	Institution  *XMLInstitution     `xml:"institution,omitempty"`
	Degree       string              `xml:"degree,omitempty"`
	DoiData      *XMLDoiData         `xml:"doi_data,omitempty"`
}

type XMLPostedContent struct {
	Type         string              `xml:"type,attr"`
	Contributors *XMLContributors    `xml:"contributors,omitempty"`
	Titles       *XMLTitles          `xml:"titles,omitempty"`
	PostedDate   *XMLPublicationDate `xml:"posted_date,omitempty"`
	Abstract     *XMLAbstract        `xml:"abstract,omitempty"`
	DoiData      *XMLDoiData         `xml:"doi_data,omitempty"`
}

type XMLDatabase struct {
	Metadata *XMLDatabaseMetadata `xml:"database_metadata"`
	Dataset  []*XMLDataset        `xml:"dataset,omitempty"`
}

type XMLDatabaseMetadata struct {
	Titles *XMLTitles `xml:"titles"`
}

type XMLDataset struct {
	DatasetType  string              `xml:"dataset_type,attr"`
	Contributors *XMLContributors    `xml:"contributors,omitempty"`
	Titles       *XMLTitles          `xml:"titles,omitempty"`
	DatabaseDate *XMLPublicationDate `xml:"database_date>publication_date,omitempty"`
	DoiData      *XMLDoiData         `xml:"doi_data,omitempty"`
}

type XMLBook struct {
	BookType     string           `xml:"book_type,attr"`
	BookMetadata *XMLBookMetadata `xml:"book_metadata,omitempty"`
}

type XMLBookMetadata struct {
	Language        string              `xml:"language,attr,omitempty"`
	Contributors    *XMLContributors    `xml:"contributors,omitempty"`
	Titles          *XMLTitles          `xml:"titles,omitempty"`
	EditionNumber   string              `xml:"edition_number,omitempty"`
	PublicationDate *XMLPublicationDate `xml:"publication_date,omitempty"`
	ISBN            string              `xml:"isbn,omitempty"`
	NoISBN          *XMLNoISBN          `xml:"noisbn,omitempty"`
	Publisher       *XMLPublisher       `xml:"publisher,omitempty"`
	DoiData         *XMLDoiData         `xml:"doi_data,omitempty"`
}

type XMLNoISBN struct {
	Reason string `xml:"reason,attr"`
}

type XMLTitles struct {
	Title    string `xml:"title,omitempty"`
	Subtitle string `xml:"subtitle,omitempty"`
}

type XMLContributors struct {
	PersonName []*XMLPersonName `xml:"person_name,omitempty"`
}

type XMLPersonName struct {
	ContributorRole string `xml:"contributor_role,attr,omitempty"`
	Sequence        string `xml:"sequence,attr,omitempty"`
	GivenName       string `xml:"given_name,omitempty"`
	Surname         string `xml:"surname,omitempty"`
	Suffix          string `xml:"suffix,omitempty"`
	ORCID           string `xml:"ORCID,omitempty"`
}

type XMLPublicationDate struct {
	MediaType string `xml:"media_type,attr,omitempty"`
	Month     int    `xml:"month,omitempty"`
	Day       int    `xml:"day,omitempty"`
	Year      int    `xml:"year,omitempty"`
}

type XMLInstitution struct {
	InstitutionName string `xml:"institution_name,omitempty"`
}

type XMLPublisher struct {
	PublisherName  string `xml:"publisher_name,omitempty"`
	PublisherPlace string `xml:"publisher_place,omitempty"`
}

type XMLDoiData struct {
	DOI      string `xml:"doi,omitempty"`
	Resource string `xml:"resource,omitempty"`
}

type XMLAbstract struct {
	Content string `xml:",chardata"`
}
