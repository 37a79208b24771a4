package doi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
)

type deposit struct {
	operation string
	login     string
	password  string
	filename  string
	mimeType  string
	body      string
}

// fakeCrossref serves the query, deposit and submission endpoints.
type fakeCrossref struct {
	mu            sync.Mutex
	registered    map[string]bool
	depositStatus int
	deposits      []deposit
	diagnostic    string
}

func (f *fakeCrossref) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case "/servlet/query":
		if r.FormValue("pid") != "user:secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.FormValue("format") != "unixref" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if f.registered[strings.ToUpper(r.FormValue("id"))] {
			io.WriteString(w, `<doi_records><doi_record><crossref><journal/></crossref></doi_record></doi_records>`)
			return
		}
		io.WriteString(w, `<doi_records><doi_record><crossref><error>DOI not found in CrossRef</error></crossref></doi_record></doi_records>`)

	case "/servlet/deposit":
		if f.depositStatus != 0 {
			w.WriteHeader(f.depositStatus)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		file, hdr, err := r.FormFile("fname")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		f.deposits = append(f.deposits, deposit{
			operation: r.FormValue("operation"),
			login:     r.FormValue("login_id"),
			password:  r.FormValue("login_passwd"),
			filename:  hdr.Filename,
			mimeType:  hdr.Header.Get("Content-Type"),
			body:      string(body),
		})
		io.WriteString(w, "<html>SUCCESS</html>")

	case "/servlet/submissionDownload":
		if r.FormValue("type") != "result" || r.FormValue("usr") != "user" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		io.WriteString(w, f.diagnostic)

	default:
		http.NotFound(w, r)
	}
}

func newCrossref(t *testing.T) (*CrossrefConnector, *fakeCrossref) {
	t.Helper()
	fake := &fakeCrossref{registered: map[string]bool{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().DOI
	cfg.Crossref.Scheme = u.Scheme
	cfg.Crossref.Host = u.Host
	cfg.Crossref.Username = "user"
	cfg.Crossref.Password = "secret"
	c := NewCrossrefConnector(cfg, srv.Client())
	c.now = func() time.Time { return time.Date(2024, 3, 5, 14, 7, 9, 123000000, time.UTC) }
	return c, fake
}

func depositItem() *content.Item {
	item := &content.Item{}
	item.AddMetadata("dc.title", "en", "On Harvesting")
	item.AddMetadata("dc.contributor.author", "", "Smith, John")
	item.AddMetadata("dc.date.issued", "", "2021-04-09")
	item.AddMetadata("dc.identifier.uri", "", "http://hdl.handle.net/123456789/1")
	return item
}

func TestCrossrefIsRegistered(t *testing.T) {
	ctx := context.Background()
	c, fake := newCrossref(t)
	fake.registered["10.5072/DSPACE-1"] = true

	got, err := c.IsRegistered(ctx, "doi:10.5072/dspace-1")
	if err != nil {
		t.Fatalf("IsRegistered: %v", err)
	}
	if !got {
		t.Error("a record without an error element should be registered")
	}
	got, err = c.IsRegistered(ctx, "doi:10.5072/dspace-2")
	if err != nil {
		t.Fatalf("IsRegistered: %v", err)
	}
	if got {
		t.Error("an error element means the DOI is not registered")
	}

	c.cfg.Password = "wrong"
	if _, err := c.IsRegistered(ctx, "doi:10.5072/dspace-1"); CodeOf(err) != AuthenticationError {
		t.Errorf("got %v, want AUTHENTICATION_ERROR", err)
	}
}

func TestCrossrefRegister(t *testing.T) {
	ctx := context.Background()
	c, fake := newCrossref(t)

	if err := c.Register(ctx, depositItem(), "doi:10.5072/dspace-1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(fake.deposits) != 1 {
		t.Fatalf("got %d deposits, want 1", len(fake.deposits))
	}
	d := fake.deposits[0]
	if d.operation != "doMDUpload" || d.login != "user" || d.password != "secret" {
		t.Errorf("unexpected form fields: %+v", d)
	}
	if want := "dspace_10.5072_dspace-1_24-03-05_140709.123.xml"; d.filename != want {
		t.Errorf("got %q, want %q", d.filename, want)
	}
	if d.mimeType != "text/xml" {
		t.Errorf("got %q, want %q", d.mimeType, "text/xml")
	}
	for _, want := range []string{"<doi>10.5072/dspace-1</doi>", "<title>On Harvesting</title>", "<depositor_name>DSpace</depositor_name>"} {
		if !strings.Contains(d.body, want) {
			t.Errorf("deposit missing %q:\n%s", want, d.body)
		}
	}
	if got := c.DepositFileName("doi:10.5072/DSPACE-1"); got != d.filename {
		t.Errorf("got %q, want %q", got, d.filename)
	}
}

func TestCrossrefRegisterAlreadyRegistered(t *testing.T) {
	c, fake := newCrossref(t)
	fake.registered["10.5072/DSPACE-1"] = true

	err := c.Register(context.Background(), depositItem(), "doi:10.5072/dspace-1")
	if CodeOf(err) != AlreadyExists {
		t.Fatalf("got %v, want DOI_ALREADY_EXISTS", err)
	}
	if len(fake.deposits) != 0 {
		t.Error("nothing should be deposited")
	}
}

func TestCrossrefRegisterMismatch(t *testing.T) {
	c, fake := newCrossref(t)
	item := depositItem()
	item.AddMetadata("dc.identifier.doi", "", "https://doi.org/10.5072/other")

	err := c.Register(context.Background(), item, "doi:10.5072/dspace-1")
	if CodeOf(err) != Mismatch {
		t.Fatalf("got %v, want MISMATCH", err)
	}
	if len(fake.deposits) != 0 {
		t.Error("nothing should be deposited")
	}
}

func TestCrossrefRegisterExistingResolverLink(t *testing.T) {
	tests := []struct {
		name     string
		resolver string
		value    string
		wantErr  int
	}{
		{"doi.org link", "", "https://doi.org/10.5072/dspace-1", CodeNotSet},
		{"scheme", "", "doi:10.5072/dspace-1", CodeNotSet},
		{"configured resolver", "https://handle.test.datacite.org/", "https://handle.test.datacite.org/10.5072/dspace-1", CodeNotSet},
		{"configured resolver, other doi", "https://handle.test.datacite.org", "https://handle.test.datacite.org/10.5072/other", Mismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newCrossref(t)
			c.resolver = tt.resolver
			item := depositItem()
			item.AddMetadata("dc.identifier.doi", "", tt.value)

			err := c.Register(context.Background(), item, "doi:10.5072/dspace-1")
			if CodeOf(err) != tt.wantErr {
				t.Fatalf("got %v (code %d), want code %d", err, CodeOf(err), tt.wantErr)
			}
			if tt.wantErr != CodeNotSet {
				if len(fake.deposits) != 0 {
					t.Error("nothing should be deposited")
				}
				return
			}
			if len(fake.deposits) != 1 {
				t.Fatalf("got %d deposits, want 1", len(fake.deposits))
			}
			if body := fake.deposits[0].body; !strings.Contains(body, "<doi>10.5072/dspace-1</doi>") {
				t.Errorf("deposit should carry the bare DOI:\n%s", body)
			}
		})
	}
}

func TestCrossrefRegisterWithoutTitle(t *testing.T) {
	c, _ := newCrossref(t)
	item := &content.Item{}
	item.AddMetadata("dc.identifier.uri", "", "http://hdl.handle.net/123456789/1")

	err := c.Register(context.Background(), item, "doi:10.5072/dspace-1")
	if CodeOf(err) != ConversionError {
		t.Fatalf("got %v, want CONVERSION_ERROR", err)
	}
}

func TestCrossrefDepositStatuses(t *testing.T) {
	tests := []struct {
		status int
		want   int
	}{
		{http.StatusServiceUnavailable, InternalError},
		{http.StatusInternalServerError, InternalError},
		{http.StatusForbidden, BadRequest},
		{http.StatusUnauthorized, AuthenticationError},
		{http.StatusTeapot, BadAnswer},
	}
	for _, tt := range tests {
		c, fake := newCrossref(t)
		fake.depositStatus = tt.status
		err := c.Register(context.Background(), depositItem(), "doi:10.5072/dspace-1")
		if got := CodeOf(err); got != tt.want {
			t.Errorf("status %d: got %s, want %s", tt.status, CodeToString(got), CodeToString(tt.want))
		}
	}
}

func TestCrossrefUpdate(t *testing.T) {
	ctx := context.Background()
	c, fake := newCrossref(t)

	if err := c.Update(ctx, depositItem(), "doi:10.5072/dspace-1"); CodeOf(err) != DoesNotExist {
		t.Fatalf("got %v, want DOI_DOES_NOT_EXIST", err)
	}

	fake.registered["10.5072/DSPACE-1"] = true
	if err := c.Update(ctx, depositItem(), "doi:10.5072/dspace-1"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(fake.deposits) != 1 {
		t.Errorf("got %d deposits, want 1", len(fake.deposits))
	}
}

func TestCrossrefReserveAndDelete(t *testing.T) {
	ctx := context.Background()
	c, fake := newCrossref(t)

	if err := c.Reserve(ctx, depositItem(), "doi:10.5072/dspace-1"); err != nil {
		t.Errorf("Reserve: %v", err)
	}
	if ok, _ := c.IsReserved(ctx, "doi:10.5072/dspace-1"); !ok {
		t.Error("CrossRef DOIs are always reserved")
	}
	if len(fake.deposits) != 0 {
		t.Error("reserve should not deposit")
	}
	err := c.Delete(ctx, "doi:10.5072/dspace-1")
	if !errors.Is(err, ErrManualDeletion) {
		t.Errorf("got %v, want ErrManualDeletion", err)
	}
}

func TestCrossrefCheckSubmission(t *testing.T) {
	ctx := context.Background()

	if _, err := func() (*Submission, error) {
		c, _ := newCrossref(t)
		return c.CheckSubmission(ctx, "doi:10.5072/dspace-1")
	}(); CodeOf(err) != BadRequest {
		t.Errorf("no deposit: got %v, want BAD_REQUEST", err)
	}

	tests := []struct {
		name       string
		diagnostic string
		completed  bool
		code       int
		warnings   int
	}{
		{
			name:       "queued",
			diagnostic: `<doi_batch_diagnostic status="queued"/>`,
		},
		{
			name:       "unknown",
			diagnostic: `<doi_batch_diagnostic status="unknown_submission"/>`,
			code:       BadRequest,
		},
		{
			name: "success",
			diagnostic: `<doi_batch_diagnostic status="completed"><batch_data>
				<record_count>1</record_count><success_count>1</success_count>
				<warning_count>0</warning_count><failure_count>0</failure_count>
			</batch_data></doi_batch_diagnostic>`,
			completed: true,
		},
		{
			name: "validation failure",
			diagnostic: `<doi_batch_diagnostic status="completed"><batch_data>
				<record_count>1</record_count><success_count>0</success_count>
				<warning_count>0</warning_count><failure_count>1</failure_count>
			</batch_data></doi_batch_diagnostic>`,
			completed: true,
			code:      ConversionError,
		},
		{
			name: "warnings only",
			diagnostic: `<doi_batch_diagnostic status="completed"><batch_data>
				<record_count>2</record_count><success_count>1</success_count>
				<warning_count>1</warning_count><failure_count>0</failure_count>
			</batch_data></doi_batch_diagnostic>`,
			completed: true,
			warnings:  1,
		},
		{
			name: "partial failure",
			diagnostic: `<doi_batch_diagnostic status="completed"><batch_data>
				<record_count>3</record_count><success_count>1</success_count>
				<warning_count>0</warning_count><failure_count>2</failure_count>
			</batch_data></doi_batch_diagnostic>`,
			completed: true,
			code:      BadAnswer,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake := newCrossref(t)
			if err := c.Register(ctx, depositItem(), "doi:10.5072/dspace-1"); err != nil {
				t.Fatalf("Register: %v", err)
			}
			fake.diagnostic = tt.diagnostic

			sub, err := c.CheckSubmission(ctx, "doi:10.5072/dspace-1")
			if got := CodeOf(err); got != tt.code {
				t.Fatalf("got %s (%v), want %s", CodeToString(got), err, CodeToString(tt.code))
			}
			if sub.Completed() != tt.completed {
				t.Errorf("got completed=%v, want %v", sub.Completed(), tt.completed)
			}
			if sub.Warnings != tt.warnings {
				t.Errorf("got %d warnings, want %d", sub.Warnings, tt.warnings)
			}
			if sub.FileName != fake.deposits[0].filename {
				t.Errorf("got %q, want %q", sub.FileName, fake.deposits[0].filename)
			}
		})
	}
}
