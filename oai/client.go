package oai

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethgrid/pester"
	"golang.org/x/time/rate"
)

// Doer sends HTTP requests. *http.Client and *pester.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to one OAI-PMH provider.
type Client struct {
	baseURL   *url.URL
	http      Doer
	userAgent string
	limiter   *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying default transport.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithRateLimit spaces requests to at most rps per second. Zero or less
// leaves requests unthrottled.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewRetryingHTTPClient returns a pester client with exponential backoff.
func NewRetryingHTTPClient(maxRetries int, timeout time.Duration) *pester.Client {
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = maxRetries
	client.Timeout = timeout
	client.KeepLog = true
	return client
}

// NewClient creates a client for the provider at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.ParseRequestURI(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid OAI base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid OAI base URL %q: unsupported scheme", baseURL)
	}
	c := &Client{
		baseURL:   u,
		userAgent: "dspacekit-harvester",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = NewRetryingHTTPClient(3, 60*time.Second)
	}
	return c, nil
}

// BaseURL returns the provider URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Fetch issues verb with vals and decodes the envelope. Protocol errors in
// the response are returned as an ErrorList alongside the decoded response.
func (c *Client) Fetch(ctx context.Context, verb string, vals url.Values) (*Response, error) {
	if vals == nil {
		vals = url.Values{}
	}
	vals.Set("verb", verb)

	u := *c.baseURL
	q := u.Query()
	for k, vs := range vals {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/xml, application/xml")

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s request to %s: %w", verb, c.baseURL, err)
		}
	}
	slog.Debug("OAI request", "url", u.String())
	resp, err := c.http.Do(req)
	if err != nil {
		if pc, ok := c.http.(*pester.Client); ok && pc.KeepLog {
			slog.Debug("OAI retries exhausted", "log", pc.LogString())
		}
		return nil, fmt.Errorf("%s request to %s: %w", verb, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%s request to %s: HTTP %d: %s", verb, c.baseURL, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res Response
	if err := xml.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", verb, err)
	}
	if len(res.Errors) > 0 {
		return &res, res.Errors
	}
	return &res, nil
}

// Identify returns the provider description.
func (c *Client) Identify(ctx context.Context) (*Identify, error) {
	res, err := c.Fetch(ctx, "Identify", nil)
	if err != nil {
		return nil, err
	}
	if res.Identify == nil {
		return nil, errors.New("identify response has no Identify element")
	}
	return res.Identify, nil
}

// ListMetadataFormats lists the formats available for identifier, or for
// the whole repository when identifier is empty.
func (c *Client) ListMetadataFormats(ctx context.Context, identifier string) ([]MetadataFormat, error) {
	vals := url.Values{}
	if identifier != "" {
		vals.Set("identifier", identifier)
	}
	res, err := c.Fetch(ctx, "ListMetadataFormats", vals)
	if err != nil {
		return nil, err
	}
	if res.ListMetadataFormats == nil {
		return nil, nil
	}
	return res.ListMetadataFormats.Formats, nil
}

// ResolveNamespaceToPrefix finds the provider's prefix for a metadata
// namespace. It returns "" when the provider does not offer it.
func (c *Client) ResolveNamespaceToPrefix(ctx context.Context, namespace string) (string, error) {
	formats, err := c.ListMetadataFormats(ctx, "")
	if err != nil {
		return "", err
	}
	return PrefixForNamespace(formats, namespace), nil
}

// PrefixForNamespace picks the prefix whose namespace matches.
func PrefixForNamespace(formats []MetadataFormat, namespace string) string {
	want := strings.TrimSpace(namespace)
	for _, f := range formats {
		if strings.TrimSpace(f.Namespace) == want {
			return strings.TrimSpace(f.Prefix)
		}
	}
	return ""
}

// ListSets returns every set, following resumption tokens.
func (c *Client) ListSets(ctx context.Context) ([]Set, error) {
	var sets []Set
	vals := url.Values{}
	for {
		res, err := c.Fetch(ctx, "ListSets", vals)
		if err != nil {
			return sets, err
		}
		if res.ListSets == nil {
			return sets, nil
		}
		sets = append(sets, res.ListSets.Sets...)
		token := res.ListSets.ResumptionToken.Value()
		if token == "" {
			return sets, nil
		}
		vals = url.Values{"resumptionToken": {token}}
	}
}

// GetRecord fetches a single record.
func (c *Client) GetRecord(ctx context.Context, identifier, prefix string) (*Record, error) {
	res, err := c.Fetch(ctx, "GetRecord", url.Values{
		"identifier":     {identifier},
		"metadataPrefix": {prefix},
	})
	if err != nil {
		return nil, err
	}
	if res.GetRecord == nil {
		return nil, fmt.Errorf("GetRecord response for %s has no record", identifier)
	}
	return &res.GetRecord.Record, nil
}

// ListArgs selects records for ListRecords and ListIdentifiers.
type ListArgs struct {
	Prefix string
	// Set is the setSpec; "" and "all" mean no set filter.
	Set         string
	From        time.Time
	Until       time.Time
	Granularity Granularity
}

func (a ListArgs) values() url.Values {
	vals := url.Values{"metadataPrefix": {a.Prefix}}
	g := a.Granularity
	if g == "" {
		g = GranularityDay
	}
	if s := g.Format(a.From); s != "" {
		vals.Set("from", s)
	}
	if s := g.Format(a.Until); s != "" {
		vals.Set("until", s)
	}
	if a.Set != "" && a.Set != "all" {
		vals.Set("set", a.Set)
	}
	return vals
}

// RecordIterator walks a ListRecords result page by page.
type RecordIterator struct {
	client *Client
	page   []Record
	pos    int
	token  string
	// CompleteListSize is the provider's total, or -1 if it never said.
	CompleteListSize int
	// Fetched counts records received so far across pages.
	Fetched int
}

// ListRecords issues the first ListRecords request. Protocol errors on the
// first page, including noRecordsMatch, are returned here.
func (c *Client) ListRecords(ctx context.Context, args ListArgs) (*RecordIterator, error) {
	it := &RecordIterator{client: c, CompleteListSize: -1}
	if err := it.load(ctx, args.values()); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *RecordIterator) load(ctx context.Context, vals url.Values) error {
	res, err := it.client.Fetch(ctx, "ListRecords", vals)
	if err != nil {
		return err
	}
	prev := it.token
	it.page = nil
	it.pos = 0
	it.token = ""
	if res.ListRecords == nil {
		return nil
	}
	it.page = res.ListRecords.Records
	it.Fetched += len(it.page)
	it.token = res.ListRecords.ResumptionToken.Value()
	if err := checkToken(prev, it.token); err != nil {
		it.page, it.token = nil, ""
		return err
	}
	if n := res.ListRecords.ResumptionToken.Size(); n >= 0 {
		it.CompleteListSize = n
	}
	return nil
}

// NextPage returns the unread records of the current page and advances to
// the following page on the next call. It returns ErrNoMore when done.
func (it *RecordIterator) NextPage(ctx context.Context) ([]Record, error) {
	if it.pos < len(it.page) {
		page := it.page[it.pos:]
		it.pos = len(it.page)
		return page, nil
	}
	if it.token == "" {
		return nil, ErrNoMore
	}
	if err := it.load(ctx, url.Values{"resumptionToken": {it.token}}); err != nil {
		return nil, err
	}
	return it.NextPage(ctx)
}

// Next returns the next record, fetching pages as needed.
func (it *RecordIterator) Next(ctx context.Context) (*Record, error) {
	for it.pos >= len(it.page) {
		if it.token == "" {
			return nil, ErrNoMore
		}
		if err := it.load(ctx, url.Values{"resumptionToken": {it.token}}); err != nil {
			return nil, err
		}
	}
	rec := &it.page[it.pos]
	it.pos++
	return rec, nil
}

// ListIdentifiers returns every header matching args, following
// resumption tokens.
func (c *Client) ListIdentifiers(ctx context.Context, args ListArgs) ([]Header, error) {
	var headers []Header
	var token string
	vals := args.values()
	for {
		res, err := c.Fetch(ctx, "ListIdentifiers", vals)
		if err != nil {
			return headers, err
		}
		if res.ListIdentifiers == nil {
			return headers, nil
		}
		headers = append(headers, res.ListIdentifiers.Headers...)
		next := res.ListIdentifiers.ResumptionToken.Value()
		if next == "" {
			return headers, nil
		}
		if err := checkToken(token, next); err != nil {
			return headers, err
		}
		token = next
		vals = url.Values{"resumptionToken": {token}}
	}
}

// checkToken rejects a provider that answers a resumption token with the
// same token, which would never end the list.
func checkToken(prev, next string) error {
	if next != "" && next == prev {
		return ErrorList{{Code: CodeBadResumptionToken, Message: "provider repeated resumption token " + next}}
	}
	return nil
}
