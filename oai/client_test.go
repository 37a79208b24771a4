package oai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewClientRejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "not a url", "ftp://example.org/oai"} {
		if _, err := NewClient(u); err == nil {
			t.Errorf("NewClient(%q): want an error", u)
		}
	}
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.Identify(context.Background())
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Fatalf("got %v, want an HTTP 503 error", err)
	}
}

func TestFetchProtocolErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("verb"); got != "ListSets" {
			t.Errorf("got verb %q", got)
		}
		w.Write([]byte(`<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/">
  <responseDate>2024-01-01T00:00:00Z</responseDate>
  <request verb="ListSets">http://example.org/oai</request>
  <error code="noSetHierarchy">no sets</error>
  <error code="badArgument">also this</error>
</OAI-PMH>`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	_, err := c.ListSets(context.Background())
	if !HasCode(err, CodeNoSetHierarchy) || !HasCode(err, CodeBadArgument) {
		t.Fatalf("got %v", err)
	}
	if got, want := err.Error(), "OAI server response contains the following error codes: [noSetHierarchy, badArgument]"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWithRateLimit(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(`<OAI-PMH><Identify><repositoryName>R</repositoryName></Identify></OAI-PMH>`))
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL, WithHTTPClient(srv.Client()), WithRateLimit(20))
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := c.Identify(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	// one token of burst, then 50ms per request
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("three requests took %v, want at least 100ms", elapsed)
	}
	if hits != 3 {
		t.Errorf("got %d hits, want 3", hits)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Identify(ctx); err == nil {
		t.Error("a cancelled context should stop the limiter")
	}
}

func TestGranularity(t *testing.T) {
	ts := time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("EST", -5*3600))
	if got, want := GranularityDay.Format(ts), "2024-05-06"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got, want := GranularitySecond.Format(ts), "2024-05-06T12:08:09Z"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if GranularityDay.Format(time.Time{}) != "" {
		t.Error("zero time should format as empty")
	}
	if ParseGranularity(" YYYY-MM-DDThh:mm:ssZ ") != GranularitySecond {
		t.Error("second granularity not recognised")
	}
	if ParseGranularity("bogus") != GranularityDay {
		t.Error("unknown granularity should fall back to day")
	}
}

// pagedProvider serves ListRecords and ListIdentifiers in pages keyed by
// resumption token.
type pagedProvider struct {
	t     *testing.T
	pages map[string][]string
	next  map[string]string
	size  int

	mu    sync.Mutex
	calls []string
}

func (p *pagedProvider) tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *pagedProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("resumptionToken")
	if token != "" && q.Get("metadataPrefix") != "" {
		p.t.Errorf("resumed request carries metadataPrefix: %s", r.URL.RawQuery)
	}
	p.mu.Lock()
	p.calls = append(p.calls, token)
	p.mu.Unlock()

	verb := q.Get("verb")
	var body string
	for _, id := range p.pages[token] {
		header := "<header><identifier>" + id + "</identifier><datestamp>2024-01-01T00:00:00Z</datestamp></header>"
		if verb == "ListRecords" {
			body += "<record>" + header + "</record>"
		} else {
			body += header
		}
	}
	if next := p.next[token]; next != "" || token != "" {
		body += `<resumptionToken completeListSize="` + strconv.Itoa(p.size) + `">` + next + `</resumptionToken>`
	}
	fmt.Fprintf(w, `<?xml version="1.0"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><responseDate>2024-01-01T00:00:00Z</responseDate>
<request verb="%s">http://example.org/oai</request><%s>%s</%s></OAI-PMH>`, verb, verb, body, verb)
}

func newPagedClient(t *testing.T, p *pagedProvider) *Client {
	t.Helper()
	p.t = t
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func threePages() *pagedProvider {
	return &pagedProvider{
		pages: map[string][]string{
			"":   {"oai:x:1", "oai:x:2"},
			"p2": {"oai:x:3", "oai:x:4"},
			"p3": {"oai:x:5"},
		},
		next: map[string]string{"": "p2", "p2": "p3"},
		size: 5,
	}
}

func TestRecordIteratorPages(t *testing.T) {
	ctx := context.Background()
	p := threePages()
	c := newPagedClient(t, p)

	it, err := c.ListRecords(ctx, ListArgs{Prefix: "oai_dc"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	if it.CompleteListSize != 5 {
		t.Errorf("got complete list size %d, want 5", it.CompleteListSize)
	}
	var sizes []int
	var ids []string
	for {
		page, err := it.NextPage(ctx)
		if errors.Is(err, ErrNoMore) {
			break
		}
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		sizes = append(sizes, len(page))
		for _, rec := range page {
			ids = append(ids, rec.Header.Identifier)
		}
	}
	if fmt.Sprint(sizes) != "[2 2 1]" {
		t.Errorf("got page sizes %v, want [2 2 1]", sizes)
	}
	if got, want := strings.Join(ids, " "), "oai:x:1 oai:x:2 oai:x:3 oai:x:4 oai:x:5"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if it.Fetched != 5 {
		t.Errorf("got fetched %d, want 5", it.Fetched)
	}
	if got, want := strings.Join(p.tokens(), ","), ",p2,p3"; got != want {
		t.Errorf("got tokens %q, want %q", got, want)
	}
}

func TestRecordIteratorNext(t *testing.T) {
	ctx := context.Background()
	c := newPagedClient(t, threePages())

	it, err := c.ListRecords(ctx, ListArgs{Prefix: "oai_dc"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	var n int
	for {
		rec, err := it.Next(ctx)
		if errors.Is(err, ErrNoMore) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		n++
		if want := "oai:x:" + strconv.Itoa(n); rec.Header.Identifier != want {
			t.Errorf("got %q, want %q", rec.Header.Identifier, want)
		}
	}
	if n != 5 {
		t.Errorf("got %d records, want 5", n)
	}
}

func TestListIdentifiersFollowsTokens(t *testing.T) {
	c := newPagedClient(t, threePages())
	headers, err := c.ListIdentifiers(context.Background(), ListArgs{Prefix: "oai_dc"})
	if err != nil {
		t.Fatalf("ListIdentifiers: %v", err)
	}
	if len(headers) != 5 || headers[4].Identifier != "oai:x:5" {
		t.Errorf("got %+v", headers)
	}
}

func TestRepeatedResumptionToken(t *testing.T) {
	ctx := context.Background()
	stuck := func() *pagedProvider {
		return &pagedProvider{
			pages: map[string][]string{"": {"oai:x:1"}},
			next:  map[string]string{"": "again", "again": "again"},
		}
	}

	p := stuck()
	it, err := newPagedClient(t, p).ListRecords(ctx, ListArgs{Prefix: "oai_dc"})
	if err != nil {
		t.Fatalf("ListRecords: %v", err)
	}
	var pageErr error
	for range 5 {
		if _, pageErr = it.NextPage(ctx); pageErr != nil {
			break
		}
	}
	if !HasCode(pageErr, CodeBadResumptionToken) {
		t.Errorf("NextPage: got %v, want badResumptionToken", pageErr)
	}
	if len(p.tokens()) != 2 {
		t.Errorf("got %d requests, want 2", len(p.tokens()))
	}

	_, err = newPagedClient(t, stuck()).ListIdentifiers(ctx, ListArgs{Prefix: "oai_dc"})
	if !HasCode(err, CodeBadResumptionToken) {
		t.Errorf("ListIdentifiers: got %v, want badResumptionToken", err)
	}
}
