package doi

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
)

// fakeMDS keeps metadata and URLs per upper-cased DOI.
type fakeMDS struct {
	mu       sync.Mutex
	metadata map[string]string
	urls     map[string]string
	requests []string
}

func (f *fakeMDS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path)

	user, pass, ok := r.BasicAuth()
	if !ok || user != "DEMO.REPO" || pass != "secret" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, _ := io.ReadAll(r.Body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/metadata":
		doi := between(string(body), `identifierType="DOI">`, "<")
		if doi == "" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, "no identifier")
			return
		}
		f.metadata[strings.ToUpper(doi)] = string(body)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "OK ("+doi+")")

	case r.Method == http.MethodPost && r.URL.Path == "/doi":
		var doi, url string
		for _, line := range strings.Split(string(body), "\n") {
			k, v, _ := strings.Cut(line, "=")
			switch k {
			case "doi":
				doi = v
			case "url":
				url = v
			}
		}
		if _, ok := f.metadata[strings.ToUpper(doi)]; !ok {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		f.urls[strings.ToUpper(doi)] = url
		w.WriteHeader(http.StatusCreated)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/metadata/"):
		if _, ok := f.metadata[strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/metadata/"))]; ok {
			io.WriteString(w, "<resource/>")
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/doi/"):
		if url, ok := f.urls[strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/doi/"))]; ok {
			io.WriteString(w, url)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/metadata/"):
		key := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/metadata/"))
		if _, ok := f.metadata[key]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.metadata, key)
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func between(s, start, end string) string {
	_, rest, ok := strings.Cut(s, start)
	if !ok {
		return ""
	}
	v, _, _ := strings.Cut(rest, end)
	return v
}

func newDataCite(t *testing.T) (*DataCiteConnector, *fakeMDS) {
	t.Helper()
	fake := &fakeMDS{metadata: map[string]string{}, urls: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	cfg := config.Default().DOI
	cfg.Agency = "datacite"
	cfg.DataCite.URL = srv.URL
	cfg.DataCite.Username = "DEMO.REPO"
	cfg.DataCite.Password = "secret"
	conn, err := NewConnector(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	return conn.(*DataCiteConnector), fake
}

func dataCiteItem() *content.Item {
	item := &content.Item{Handle: "123456789/7"}
	item.AddMetadata("dc.title", "en", "A Dataset")
	item.AddMetadata("dc.contributor.author", "", "Smith, John")
	item.AddMetadata("dc.date.issued", "", "2022")
	return item
}

func TestDataCiteReserveAndRegister(t *testing.T) {
	ctx := context.Background()
	c, fake := newDataCite(t)
	doi := "doi:10.5072/dspace-7"

	if ok, err := c.IsReserved(ctx, doi); err != nil || ok {
		t.Fatalf("IsReserved before reserve: %v, %v", ok, err)
	}
	if err := c.Reserve(ctx, dataCiteItem(), doi); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if !strings.Contains(fake.metadata["10.5072/DSPACE-7"], "A Dataset") {
		t.Errorf("metadata not uploaded: %q", fake.metadata["10.5072/DSPACE-7"])
	}
	if ok, err := c.IsReserved(ctx, doi); err != nil || !ok {
		t.Fatalf("IsReserved after reserve: %v, %v", ok, err)
	}

	if err := c.Register(ctx, dataCiteItem(), doi); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if got, want := fake.urls["10.5072/DSPACE-7"], "http://localhost:8080/handle/123456789/7"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if ok, err := c.IsRegistered(ctx, doi); err != nil || !ok {
		t.Fatalf("IsRegistered: %v, %v", ok, err)
	}
}

func TestDataCiteRegisterFirst(t *testing.T) {
	c, _ := newDataCite(t)
	err := c.Register(context.Background(), dataCiteItem(), "doi:10.5072/dspace-8")
	if CodeOf(err) != RegisterFirst {
		t.Fatalf("got %v, want REGISTER_FIRST", err)
	}
}

func TestDataCiteRegisterWithoutHandle(t *testing.T) {
	c, fake := newDataCite(t)
	item := dataCiteItem()
	item.Handle = ""
	if err := c.Register(context.Background(), item, "doi:10.5072/dspace-8"); CodeOf(err) != ConversionError {
		t.Fatalf("got %v, want CONVERSION_ERROR", err)
	}
	if len(fake.requests) != 0 {
		t.Errorf("no request should be sent, got %v", fake.requests)
	}
}

func TestDataCiteUpdate(t *testing.T) {
	ctx := context.Background()
	c, fake := newDataCite(t)
	doi := "doi:10.5072/dspace-9"

	if err := c.Update(ctx, dataCiteItem(), doi); CodeOf(err) != DoesNotExist {
		t.Fatalf("got %v, want DOI_DOES_NOT_EXIST", err)
	}
	if err := c.Reserve(ctx, dataCiteItem(), doi); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	item := dataCiteItem()
	item.ClearMetadata("dc.title")
	item.AddMetadata("dc.title", "en", "A Better Dataset")
	if err := c.Update(ctx, item, doi); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !strings.Contains(fake.metadata["10.5072/DSPACE-9"], "A Better Dataset") {
		t.Errorf("metadata not replaced: %q", fake.metadata["10.5072/DSPACE-9"])
	}
}

func TestDataCiteDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newDataCite(t)
	doi := "doi:10.5072/dspace-10"

	if err := c.Delete(ctx, doi); CodeOf(err) != DoesNotExist {
		t.Fatalf("got %v, want DOI_DOES_NOT_EXIST", err)
	}
	if err := c.Reserve(ctx, dataCiteItem(), doi); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := c.Delete(ctx, doi); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := c.IsReserved(ctx, doi); ok {
		t.Error("deleted DOI should not be reserved")
	}
}

func TestDataCiteAuthentication(t *testing.T) {
	c, _ := newDataCite(t)
	c.password = "wrong"
	if _, err := c.IsReserved(context.Background(), "doi:10.5072/x"); CodeOf(err) != AuthenticationError {
		t.Fatalf("got %v, want AUTHENTICATION_ERROR", err)
	}
}

func TestNewConnectorUnknownAgency(t *testing.T) {
	cfg := config.Default().DOI
	cfg.Agency = "ezid"
	if _, err := NewConnector(cfg, http.DefaultClient); err == nil {
		t.Fatal("want an error for an unknown agency")
	}
}
