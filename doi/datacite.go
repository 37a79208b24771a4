package doi

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/datacite"
)

// DataCiteConnector manages DOIs through the DataCite MDS API. A DOI is
// reserved by uploading its metadata and registered by minting its URL.
type DataCiteConnector struct {
	base       string
	username   string
	password   string
	itemURL    string
	registrant string
	http       Doer
}

// NewDataCiteConnector builds a connector from the DOI settings.
func NewDataCiteConnector(cfg config.DOIConfig, d Doer) *DataCiteConnector {
	base := cfg.DataCite.URL
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return &DataCiteConnector{
		base:       base,
		username:   cfg.DataCite.Username,
		password:   cfg.DataCite.Password,
		itemURL:    cfg.ItemURL,
		registrant: cfg.Crossref.Registrant,
		http:       d,
	}
}

func (c *DataCiteConnector) send(ctx context.Context, method, path string, body []byte, contentType, doi string) (int, string, error) {
	var r *bytes.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	auth := func(req *http.Request) {
		req.SetBasicAuth(c.username, c.password)
	}
	if r == nil {
		return do(ctx, c.http, method, c.base+path, nil, contentType, auth, doi)
	}
	return do(ctx, c.http, method, c.base+path, r, contentType, auth, doi)
}

// IsReserved reports whether DataCite holds metadata for doi.
func (c *DataCiteConnector) IsReserved(ctx context.Context, doi string) (bool, error) {
	status, body, err := c.send(ctx, http.MethodGet, "metadata/"+Bare(doi), nil, "", doi)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusGone:
		return false, nil
	}
	slog.Warn("unexpected answer checking DOI reservation", "doi", doi, "status", status, "body", body)
	return false, newError(BadAnswer, "unable to parse an answer from DataCite (HTTP %d)", status)
}

// IsRegistered reports whether doi resolves to a URL at DataCite.
func (c *DataCiteConnector) IsRegistered(ctx context.Context, doi string) (bool, error) {
	status, body, err := c.send(ctx, http.MethodGet, "doi/"+Bare(doi), nil, "", doi)
	if err != nil {
		return false, err
	}
	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNoContent, http.StatusNotFound:
		return false, nil
	}
	slog.Warn("unexpected answer checking DOI registration", "doi", doi, "status", status, "body", body)
	return false, newError(BadAnswer, "unable to parse an answer from DataCite (HTTP %d)", status)
}

// Reserve uploads the item's metadata for doi.
func (c *DataCiteConnector) Reserve(ctx context.Context, item *content.Item, doi string) error {
	return c.putMetadata(ctx, item, doi, "reserve")
}

// Update replaces the metadata of a reserved or registered DOI.
func (c *DataCiteConnector) Update(ctx context.Context, item *content.Item, doi string) error {
	reserved, err := c.IsReserved(ctx, doi)
	if err != nil {
		return err
	}
	if !reserved {
		return newError(DoesNotExist, "trying to update metadata for DOI %s, which is not reserved at DataCite", doi)
	}
	return c.putMetadata(ctx, item, doi, "update")
}

// Register points doi at the item's landing page. DataCite answers 412
// when the metadata was never uploaded.
func (c *DataCiteConnector) Register(ctx context.Context, item *content.Item, doi string) error {
	if item.Handle == "" {
		return newError(ConversionError, "item %s has no handle to build its landing page URL", item.ID)
	}
	landing := fmt.Sprintf(c.itemURL, item.Handle)
	payload := fmt.Sprintf("doi=%s\nurl=%s", Bare(doi), landing)

	status, body, err := c.send(ctx, http.MethodPost, "doi", []byte(payload), "text/plain;charset=UTF-8", doi)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		slog.Info("registered DOI at DataCite", "doi", doi, "url", landing)
		return nil
	case http.StatusPreconditionFailed:
		return newError(RegisterFirst, "DataCite has no metadata for %s; reserve it first", doi)
	}
	slog.Warn("unexpected answer registering DOI", "doi", doi, "status", status, "body", body)
	return newError(BadAnswer, "unable to parse an answer from DataCite (HTTP %d)", status)
}

// Delete marks doi inactive. DataCite keeps the DOI itself.
func (c *DataCiteConnector) Delete(ctx context.Context, doi string) error {
	status, body, err := c.send(ctx, http.MethodDelete, "metadata/"+Bare(doi), nil, "", doi)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return newError(DoesNotExist, "DataCite does not know %s", doi)
	}
	slog.Warn("unexpected answer deleting DOI", "doi", doi, "status", status, "body", body)
	return newError(BadAnswer, "unable to parse an answer from DataCite (HTTP %d)", status)
}

func (c *DataCiteConnector) putMetadata(ctx context.Context, item *content.Item, doi, action string) error {
	clone := item.Clone()
	clone.ClearMetadata("dc.identifier.doi")
	clone.AddMetadata("dc.identifier.doi", "", Bare(doi))

	res, err := datacite.ToXML(clone, &format.SerializeOptions{Registrant: c.registrant})
	if err != nil {
		return &Error{Code: ConversionError, Msg: fmt.Sprintf("converting item %s using crosswalk datacite", item.ID), Err: err}
	}
	out, err := xml.Marshal(res)
	if err != nil {
		return &Error{Code: ConversionError, Msg: "marshaling datacite metadata", Err: err}
	}
	out = append([]byte(xml.Header), out...)

	status, body, err := c.send(ctx, http.MethodPost, "metadata", out, "application/xml;charset=UTF-8", doi)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		slog.Info("uploaded DataCite metadata", "doi", doi, "action", action)
		return nil
	case http.StatusBadRequest:
		return newError(BadRequest, "DataCite rejected the metadata of %s: %s", doi, body)
	}
	slog.Warn("unexpected answer uploading DataCite metadata", "doi", doi, "status", status, "body", body)
	return newError(BadAnswer, "unable to parse an answer from DataCite (HTTP %d)", status)
}
