package doi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/xmlpath.v2"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"

	// deposits are rendered by the crossref serializer
	_ "github.com/lehigh-university-libraries/dspacekit/format/crossref"
)

// ErrManualDeletion is wrapped by CrossrefConnector.Delete.
var ErrManualDeletion = errors.New("CrossRef DOIs must be deleted manually")

var (
	depositDOIPath   = xmlpath.MustCompile("//doi_data/doi")
	queryErrorPath   = xmlpath.MustCompile("/doi_records/doi_record/crossref/error")
	batchStatusPath  = xmlpath.MustCompile("/doi_batch_diagnostic/@status")
	recordCountPath  = xmlpath.MustCompile("/doi_batch_diagnostic/batch_data/record_count")
	successCountPath = xmlpath.MustCompile("/doi_batch_diagnostic/batch_data/success_count")
	failureCountPath = xmlpath.MustCompile("/doi_batch_diagnostic/batch_data/failure_count")
	warningCountPath = xmlpath.MustCompile("/doi_batch_diagnostic/batch_data/warning_count")
)

// CrossrefConnector deposits metadata with CrossRef over its HTTPS
// deposit API. CrossRef has no reservation step and does not delete DOIs.
type CrossrefConnector struct {
	cfg      config.CrossrefConfig
	resolver string
	http     Doer
	now      func() time.Time

	mu sync.Mutex
	// deposits maps a bare DOI to the file name of its last deposit.
	deposits map[string]string
}

// NewCrossrefConnector builds a connector from the DOI settings.
func NewCrossrefConnector(cfg config.DOIConfig, d Doer) *CrossrefConnector {
	return &CrossrefConnector{
		cfg:      cfg.Crossref,
		resolver: cfg.ResolverURL,
		http:     d,
		now:      time.Now,
		deposits: map[string]string{},
	}
}

func (c *CrossrefConnector) endpoint(path string, q url.Values) string {
	scheme := c.cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: scheme, Host: c.cfg.Host, Path: path}
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// IsReserved is always true: CrossRef has no reservation step.
func (c *CrossrefConnector) IsReserved(context.Context, string) (bool, error) {
	return true, nil
}

// IsRegistered asks the query service for the DOI's unixref record.
func (c *CrossrefConnector) IsRegistered(ctx context.Context, doi string) (bool, error) {
	q := url.Values{
		"pid":    {c.cfg.Username + ":" + c.cfg.Password},
		"id":     {Bare(doi)},
		"format": {"unixref"},
	}
	status, body, err := c.send(ctx, http.MethodGet, c.endpoint(c.cfg.QueryPath, q), nil, "", doi)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		slog.Warn("unexpected answer checking DOI registration", "doi", doi, "status", status, "body", body)
		return false, newError(BadAnswer, "unable to parse an answer from the CrossRef query service (HTTP %d)", status)
	}
	if strings.TrimSpace(body) == "" {
		return false, newError(InternalError, "the CrossRef query service returned an empty response for %s", doi)
	}
	root, err := xmlpath.Parse(strings.NewReader(body))
	if err != nil {
		return false, &Error{Code: BadAnswer, Msg: "parsing the CrossRef query response for " + doi, Err: err}
	}
	return !queryErrorPath.Exists(root), nil
}

// Reserve does nothing; CrossRef has no reservation step.
func (c *CrossrefConnector) Reserve(context.Context, *content.Item, string) error {
	return nil
}

// Register deposits the item's metadata for a DOI not yet known to
// CrossRef.
func (c *CrossrefConnector) Register(ctx context.Context, item *content.Item, doi string) error {
	registered, err := c.IsRegistered(ctx, doi)
	if err != nil {
		return err
	}
	if registered {
		slog.Warn("DOI is already registered at CrossRef; will not register it again", "doi", doi)
		return newError(AlreadyExists, "DOI %s is already registered at CrossRef", doi)
	}
	return c.deposit(ctx, item, doi, "registration")
}

// Update deposits new metadata for a registered DOI.
func (c *CrossrefConnector) Update(ctx context.Context, item *content.Item, doi string) error {
	registered, err := c.IsRegistered(ctx, doi)
	if err != nil {
		return err
	}
	if !registered {
		return newError(DoesNotExist, "trying to update metadata for DOI %s, which is not registered at CrossRef", doi)
	}
	return c.deposit(ctx, item, doi, "update")
}

// Delete always fails; deletion has to be requested from CrossRef support.
func (c *CrossrefConnector) Delete(_ context.Context, doi string) error {
	return &Error{Code: BadRequest, Msg: "deletion of DOI " + doi + " must be requested manually", Err: ErrManualDeletion}
}

// DepositFileName returns the file name of the last deposit for doi.
func (c *CrossrefConnector) DepositFileName(doi string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deposits[strings.ToUpper(Bare(doi))]
}

func (c *CrossrefConnector) deposit(ctx context.Context, item *content.Item, doi, action string) error {
	filename := fmt.Sprintf("%s_%s_%s.xml", c.cfg.DepositPrefix,
		strings.ReplaceAll(Bare(doi), "/", "_"), c.now().Format("06-01-02_150405.000"))

	xmlBody, err := c.disseminate(item, doi, strings.TrimSuffix(filename, ".xml"))
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range [][2]string{
		{"operation", "doMDUpload"},
		{"login_id", c.cfg.Username},
		{"login_passwd", c.cfg.Password},
	} {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return err
		}
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="fname"; filename="%s"`, filename))
	h.Set("Content-Type", "text/xml")
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(xmlBody); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	status, respBody, err := c.send(ctx, http.MethodPost, c.endpoint(c.cfg.DepositPath, nil), &body, mw.FormDataContentType(), doi)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		c.mu.Lock()
		c.deposits[strings.ToUpper(Bare(doi))] = filename
		c.mu.Unlock()
		slog.Info("CrossRef deposit accepted", "doi", doi, "action", action, "file", filename)
		return nil
	case http.StatusServiceUnavailable:
		return newError(InternalError, "unable to submit the %s of %s: the CrossRef submission queue is full, retry later", action, doi)
	default:
		slog.Warn("unexpected answer to CrossRef deposit", "doi", doi, "action", action, "status", status, "body", respBody)
		return newError(BadAnswer, "unable to parse an answer from the CrossRef deposit API (HTTP %d)", status)
	}
}

// disseminate renders the deposit for item, carrying doi. An item that
// already names a different DOI is refused.
func (c *CrossrefConnector) disseminate(item *content.Item, doi, batchID string) ([]byte, error) {
	ser, err := format.DefaultRegistry.GetSerializer("crossref")
	if err != nil {
		return nil, &Error{Code: ConversionError, Msg: "crossref crosswalk unavailable", Err: err}
	}
	clone := item.Clone()
	if existing := clone.FirstValue("dc.identifier.doi"); existing == "" {
		clone.AddMetadata("dc.identifier.doi", "", Bare(doi))
	} else if formatted, err := c.existingDOI(existing); err == nil {
		clone.ClearMetadata("dc.identifier.doi")
		clone.AddMetadata("dc.identifier.doi", "", Bare(formatted))
	}

	var buf bytes.Buffer
	err = ser.Serialize(&buf, []*content.Item{clone}, &format.SerializeOptions{
		Depositor:      c.cfg.DepositorName,
		DepositorEmail: c.cfg.DepositorEmail,
		Registrant:     c.cfg.Registrant,
		BatchID:        batchID,
		Now:            c.now(),
	})
	if err != nil {
		return nil, &Error{Code: ConversionError, Msg: fmt.Sprintf("converting item %s using crosswalk crossref", item.ID), Err: err}
	}

	root, err := xmlpath.Parse(bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, &Error{Code: ConversionError, Msg: "reading the crossref deposit", Err: err}
	}
	found, _ := depositDOIPath.String(root)
	found = strings.TrimSpace(found)
	switch {
	case found == "":
		return nil, newError(ConversionError, "cannot add DOI %s to the crossref deposit of item %s", doi, item.ID)
	case !strings.EqualFold(found, Bare(doi)):
		return nil, newError(Mismatch, "item %s already has DOI %s; won't register DOI %s for it", item.ID, found, doi)
	}
	return buf.Bytes(), nil
}

// existingDOI formats a DOI already stored on an item, which may be a link
// through the configured resolver.
func (c *CrossrefConnector) existingDOI(value string) (string, error) {
	v := strings.TrimSpace(value)
	if c.resolver != "" {
		prefix := strings.TrimSuffix(c.resolver, "/") + "/"
		if strings.HasPrefix(strings.ToLower(v), strings.ToLower(prefix)) {
			v = v[len(prefix):]
		}
	}
	return FormatIdentifier(v)
}

// Submission is the outcome of a deposit as reported by CrossRef.
type Submission struct {
	FileName  string
	Status    string
	Records   int
	Successes int
	Failures  int
	Warnings  int
}

// Completed reports whether CrossRef finished processing the deposit.
func (s *Submission) Completed() bool {
	return strings.EqualFold(s.Status, "completed")
}

// CheckSubmission polls the result of the last deposit for doi. Deposits
// still queued return a Submission that is not Completed and no error.
func (c *CrossrefConnector) CheckSubmission(ctx context.Context, doi string) (*Submission, error) {
	filename := c.DepositFileName(doi)
	if filename == "" {
		return nil, newError(BadRequest, "no deposit was sent for %s by this process", doi)
	}
	q := url.Values{
		"type":      {"result"},
		"file_name": {filename},
		"usr":       {c.cfg.Username},
		"pwd":       {c.cfg.Password},
	}
	status, body, err := c.send(ctx, http.MethodGet, c.endpoint(c.cfg.SubmissionPath, q), nil, "", doi)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, newError(BadAnswer, "the query to the CrossRef submission endpoint was not successful (HTTP %d)", status)
	}
	if strings.TrimSpace(body) == "" {
		return nil, newError(InternalError, "the CrossRef submission result for %s is empty", filename)
	}
	return parseSubmission(filename, body)
}

func parseSubmission(filename, body string) (*Submission, error) {
	root, err := xmlpath.Parse(strings.NewReader(body))
	if err != nil {
		return nil, &Error{Code: BadAnswer, Msg: "parsing the CrossRef submission result for " + filename, Err: err}
	}
	sub := &Submission{FileName: filename}
	sub.Status, _ = batchStatusPath.String(root)

	switch {
	case strings.EqualFold(sub.Status, "unknown_submission"):
		return sub, newError(BadRequest, "there is no CrossRef submission for file %s", filename)
	case !sub.Completed():
		return sub, nil
	}

	counts := []struct {
		path *xmlpath.Path
		dst  *int
	}{
		{recordCountPath, &sub.Records},
		{successCountPath, &sub.Successes},
		{failureCountPath, &sub.Failures},
		{warningCountPath, &sub.Warnings},
	}
	for _, cnt := range counts {
		s, ok := cnt.path.String(root)
		if !ok {
			return sub, newError(BadAnswer, "batch_data of %s lacks the record counts", filename)
		}
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return sub, &Error{Code: BadAnswer, Msg: "reading batch_data of " + filename, Err: err}
		}
		*cnt.dst = n
	}

	switch {
	case sub.Records == 1 && sub.Failures == 1:
		return sub, newError(ConversionError, "CrossRef rejected deposit %s with an XML validation error", filename)
	case sub.Successes+sub.Warnings < sub.Records:
		return sub, newError(BadAnswer, "deposit %s had errors (success_count=%d < record_count=%d)",
			filename, sub.Successes, sub.Records)
	case sub.Warnings > 0:
		slog.Warn("CrossRef deposit processed with warnings", "file", filename, "warnings", sub.Warnings)
	}
	return sub, nil
}

// send issues a request and applies the common status mapping.
func (c *CrossrefConnector) send(ctx context.Context, method, target string, body io.Reader, contentType, doi string) (int, string, error) {
	return do(ctx, c.http, method, target, body, contentType, nil, doi)
}

// do is shared by the connectors.
func do(ctx context.Context, d Doer, method, target string, body io.Reader, contentType string, auth func(*http.Request), doi string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, "", err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if auth != nil {
		auth(req)
	}
	resp, err := d.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("reading response to %s %s: %w", method, redact(target), err)
	}
	if err := statusError(resp.StatusCode, doi, string(data)); err != nil {
		return resp.StatusCode, string(data), err
	}
	return resp.StatusCode, string(data), nil
}

// redact drops the query, which may hold credentials.
func redact(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	u.RawQuery = ""
	return u.String()
}
