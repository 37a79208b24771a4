// Package oai implements an OAI-PMH 2.0 harvesting client and a data
// provider handler.
package oai

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Namespace is the OAI-PMH 2.0 XML namespace.
const Namespace = "http://www.openarchives.org/OAI/2.0/"

// Protocol error codes.
const (
	CodeBadArgument             = "badArgument"
	CodeBadResumptionToken      = "badResumptionToken"
	CodeBadVerb                 = "badVerb"
	CodeCannotDisseminateFormat = "cannotDisseminateFormat"
	CodeIDDoesNotExist          = "idDoesNotExist"
	CodeNoRecordsMatch          = "noRecordsMatch"
	CodeNoMetadataFormats       = "noMetadataFormats"
	CodeNoSetHierarchy          = "noSetHierarchy"
)

// ErrNoMore is returned by iterators once every page has been consumed.
var ErrNoMore = errors.New("no more results")

// Error is one protocol error reported by a provider.
type Error struct {
	Code    string `xml:"code,attr"`
	Message string `xml:",chardata"`
}

func (e Error) Error() string {
	return fmt.Sprintf("OAI-PMH error (%s): %s", e.Code, strings.TrimSpace(e.Message))
}

// ErrorList holds every error element of a response.
type ErrorList []Error

func (l ErrorList) Error() string {
	if len(l) == 1 {
		return l[0].Error()
	}
	return "OAI server response contains the following error codes: [" + strings.Join(l.Codes(), ", ") + "]"
}

// Codes returns the error codes in response order.
func (l ErrorList) Codes() []string {
	codes := make([]string, len(l))
	for i, e := range l {
		codes[i] = e.Code
	}
	return codes
}

// Has reports whether code is among the errors.
func (l ErrorList) Has(code string) bool {
	for _, e := range l {
		if e.Code == code {
			return true
		}
	}
	return false
}

// HasCode reports whether err carries the protocol error code.
func HasCode(err error, code string) bool {
	var list ErrorList
	if errors.As(err, &list) {
		return list.Has(code)
	}
	var single Error
	if errors.As(err, &single) {
		return single.Code == code
	}
	return false
}

// Response is an OAI-PMH envelope. At most one payload is set.
type Response struct {
	XMLName        xml.Name `xml:"OAI-PMH"`
	XMLNS          string   `xml:"xmlns,attr,omitempty"`
	XSI            string   `xml:"xmlns:xsi,attr,omitempty"`
	SchemaLocation string   `xml:"xsi:schemaLocation,attr,omitempty"`
	ResponseDate   string   `xml:"responseDate"`
	Request        Request  `xml:"request"`

	Errors              ErrorList            `xml:"error"`
	Identify            *Identify            `xml:"Identify"`
	ListMetadataFormats *ListMetadataFormats `xml:"ListMetadataFormats"`
	ListSets            *ListSets            `xml:"ListSets"`
	ListIdentifiers     *ListIdentifiers     `xml:"ListIdentifiers"`
	ListRecords         *ListRecords         `xml:"ListRecords"`
	GetRecord           *GetRecord           `xml:"GetRecord"`
}

// Request echoes the request that produced a response.
type Request struct {
	URL             string `xml:",chardata"`
	Verb            string `xml:"verb,attr,omitempty"`
	Identifier      string `xml:"identifier,attr,omitempty"`
	MetadataPrefix  string `xml:"metadataPrefix,attr,omitempty"`
	From            string `xml:"from,attr,omitempty"`
	Until           string `xml:"until,attr,omitempty"`
	Set             string `xml:"set,attr,omitempty"`
	ResumptionToken string `xml:"resumptionToken,attr,omitempty"`
}

type Identify struct {
	RepositoryName    string   `xml:"repositoryName"`
	BaseURL           string   `xml:"baseURL"`
	ProtocolVersion   string   `xml:"protocolVersion"`
	AdminEmail        []string `xml:"adminEmail"`
	EarliestDatestamp string   `xml:"earliestDatestamp"`
	DeletedRecord     string   `xml:"deletedRecord"`
	Granularity       string   `xml:"granularity"`
}

type ListMetadataFormats struct {
	Formats []MetadataFormat `xml:"metadataFormat"`
}

// MetadataFormat is one format a provider can disseminate.
type MetadataFormat struct {
	Prefix    string `xml:"metadataPrefix"`
	Schema    string `xml:"schema"`
	Namespace string `xml:"metadataNamespace"`
}

type ListSets struct {
	Sets            []Set            `xml:"set"`
	ResumptionToken *ResumptionToken `xml:"resumptionToken,omitempty"`
}

type Set struct {
	Spec        string `xml:"setSpec"`
	Name        string `xml:"setName"`
	Description *Inner `xml:"setDescription,omitempty"`
}

type ListIdentifiers struct {
	Headers         []Header         `xml:"header"`
	ResumptionToken *ResumptionToken `xml:"resumptionToken,omitempty"`
}

type ListRecords struct {
	Records         []Record         `xml:"record"`
	ResumptionToken *ResumptionToken `xml:"resumptionToken,omitempty"`
}

type GetRecord struct {
	Record Record `xml:"record"`
}

// Header identifies a record. Datestamp is kept as sent; use
// ParseDatestamp to read it.
type Header struct {
	Status     string   `xml:"status,attr,omitempty"`
	Identifier string   `xml:"identifier"`
	Datestamp  string   `xml:"datestamp"`
	SetSpecs   []string `xml:"setSpec"`
}

// IsDeleted reports whether the provider marked the record deleted.
func (h Header) IsDeleted() bool {
	return h.Status == "deleted"
}

// Record is a header plus the raw XML of its metadata payload.
type Record struct {
	Header   Header `xml:"header"`
	Metadata *Inner `xml:"metadata,omitempty"`
	About    *Inner `xml:"about,omitempty"`
}

// MetadataXML returns the inner XML of the metadata element.
func (r *Record) MetadataXML() string {
	if r.Metadata == nil {
		return ""
	}
	return r.Metadata.XML
}

// Inner captures an element's content verbatim.
type Inner struct {
	XML string `xml:",innerxml"`
}

// ResumptionToken continues an incomplete list.
type ResumptionToken struct {
	Token            string `xml:",chardata"`
	ExpirationDate   string `xml:"expirationDate,attr,omitempty"`
	CompleteListSize string `xml:"completeListSize,attr,omitempty"`
	Cursor           string `xml:"cursor,attr,omitempty"`
}

// Size returns completeListSize, or -1 when absent or malformed.
func (t *ResumptionToken) Size() int {
	if t == nil || t.CompleteListSize == "" {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(t.CompleteListSize))
	if err != nil {
		return -1
	}
	return n
}

// Value returns the trimmed token, "" when the list is complete.
func (t *ResumptionToken) Value() string {
	if t == nil {
		return ""
	}
	return strings.TrimSpace(t.Token)
}
