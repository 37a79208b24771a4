package harvest

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

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/notify"
	"github.com/lehigh-university-libraries/dspacekit/store"
	"github.com/lehigh-university-libraries/dspacekit/validate"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// provider is a minimal OAI-PMH endpoint serving canned records.
type provider struct {
	mu sync.Mutex
	// records is the inner XML of ListRecords.
	records string
	// listErrors are returned instead of records when set.
	listErrors []string
	sets       []string
	ore        map[string]string
	files      map[string]string
	noORE      bool
	// pages, when set, are served one per request with resumption tokens
	// and listSize as completeListSize. onPage sees each page number.
	pages    []string
	listSize int
	onPage   func(n int)
}

func (p *provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := strings.CutPrefix(r.URL.Path, "/files/"); ok {
		body, found := p.files[name]
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		fmt.Fprint(w, body)
		return
	}

	q := r.URL.Query()
	var payload string
	switch q.Get("verb") {
	case "Identify":
		payload = `<Identify><repositoryName>Test</repositoryName><baseURL>http://example.org/oai</baseURL>
<protocolVersion>2.0</protocolVersion><earliestDatestamp>2000-01-01T00:00:00Z</earliestDatestamp>
<deletedRecord>persistent</deletedRecord><granularity>YYYY-MM-DDThh:mm:ssZ</granularity></Identify>`
	case "ListMetadataFormats":
		payload = `<ListMetadataFormats>
<metadataFormat><metadataPrefix>oai_dc</metadataPrefix><schema>http://www.openarchives.org/OAI/2.0/oai_dc.xsd</schema>
<metadataNamespace>http://www.openarchives.org/OAI/2.0/oai_dc/</metadataNamespace></metadataFormat>`
		if !p.noORE {
			payload += `<metadataFormat><metadataPrefix>ore</metadataPrefix><schema>http://tweety.lanl.gov/public/schemas/2008-06/atom-tron.sch</schema>
<metadataNamespace>http://www.w3.org/2005/Atom</metadataNamespace></metadataFormat>`
		}
		payload += `</ListMetadataFormats>`
	case "ListSets":
		payload = "<ListSets>"
		for _, s := range p.sets {
			payload += "<set><setSpec>" + s + "</setSpec><setName>" + s + "</setName></set>"
		}
		payload += "</ListSets>"
	case "ListRecords":
		if len(p.listErrors) > 0 {
			for _, code := range p.listErrors {
				payload += `<error code="` + code + `">` + code + `</error>`
			}
			break
		}
		if len(p.pages) > 0 {
			n, _ := strconv.Atoi(q.Get("resumptionToken"))
			if p.onPage != nil {
				p.onPage(n)
			}
			next := ""
			if n+1 < len(p.pages) {
				next = strconv.Itoa(n + 1)
			}
			payload = "<ListRecords>" + p.pages[n] +
				`<resumptionToken completeListSize="` + strconv.Itoa(p.listSize) + `">` + next + "</resumptionToken></ListRecords>"
			break
		}
		payload = "<ListRecords>" + p.records + "</ListRecords>"
	case "GetRecord":
		id := q.Get("identifier")
		entry, ok := p.ore[id]
		if !ok {
			payload = `<error code="idDoesNotExist">unknown</error>`
			break
		}
		payload = `<GetRecord><record><header><identifier>` + id + `</identifier><datestamp>2024-01-01T00:00:00Z</datestamp></header>
<metadata>` + entry + `</metadata></record></GetRecord>`
	default:
		payload = `<error code="badVerb">bad verb</error>`
	}

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<OAI-PMH xmlns="http://www.openarchives.org/OAI/2.0/"><responseDate>2024-06-01T12:00:00Z</responseDate>
<request verb="%s">http://example.org/oai</request>%s</OAI-PMH>`, q.Get("verb"), payload)
}

func (p *provider) setRecords(records ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = strings.Join(records, "\n")
}

func dcRecord(id, datestamp, title string, identifiers ...string) string {
	var ids string
	for _, v := range identifiers {
		ids += "<dc:identifier>" + v + "</dc:identifier>"
	}
	return `<record><header><identifier>` + id + `</identifier><datestamp>` + datestamp + `</datestamp><setSpec>col_1</setSpec></header>
<metadata><oai_dc:dc xmlns:oai_dc="http://www.openarchives.org/OAI/2.0/oai_dc/" xmlns:dc="http://purl.org/dc/elements/1.1/">
<dc:title>` + title + `</dc:title><dc:creator>Smith, Alice</dc:creator><dc:date>2023-05-01</dc:date>` + ids + `
</oai_dc:dc></metadata></record>`
}

func deletedRecord(id string) string {
	return `<record><header status="deleted"><identifier>` + id + `</identifier><datestamp>2024-05-01T00:00:00Z</datestamp></header></record>`
}

type recordingMailer struct {
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

type fixture struct {
	store    *store.Store
	provider *provider
	server   *httptest.Server
	h        *Harvester
	mailer   *recordingMailer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	p := &provider{ore: map[string]string{}, files: map[string]string{}, sets: []string{"col_1"}}
	srv := httptest.NewServer(p)
	t.Cleanup(srv.Close)

	mailer := &recordingMailer{}
	cfg := config.Default()
	cfg.Harvester.TimePadding = 0
	opts = append([]Option{
		WithHTTPClient(srv.Client()),
		WithClock(func() time.Time { return testNow }),
		WithAlerter(&notify.Alerter{Mailer: mailer, Recipient: "admin@example.org"}),
	}, opts...)

	return &fixture{
		store:    s,
		provider: p,
		server:   srv,
		h:        New(s, cfg, opts...),
		mailer:   mailer,
	}
}

func (f *fixture) collection(t *testing.T, typ content.HarvestType) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	col := &content.Collection{Name: "Harvested"}
	if err := f.store.CreateCollection(ctx, col); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	err := f.store.SaveHarvestedCollection(ctx, &content.HarvestedCollection{
		CollectionID:     col.ID,
		HarvestType:      typ,
		OaiSource:        f.server.URL + "/oai",
		OaiSetID:         "col_1",
		MetadataConfigID: "dc",
		HarvestStatus:    content.StatusReady,
	})
	if err != nil {
		t.Fatalf("SaveHarvestedCollection: %v", err)
	}
	return col.ID
}

func (f *fixture) harvested(t *testing.T, id uuid.UUID) *content.HarvestedCollection {
	t.Helper()
	hc, err := f.store.GetHarvestedCollection(context.Background(), id)
	if err != nil {
		t.Fatalf("GetHarvestedCollection: %v", err)
	}
	return hc
}

func (f *fixture) items(t *testing.T, id uuid.UUID) []*content.Item {
	t.Helper()
	items, err := f.store.ListItems(context.Background(), store.ItemFilter{Collection: id})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	return items
}

func TestRunCreatesItems(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(
		dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "First", "http://hdl.handle.net/2345/7"),
		dcRecord("oai:test-harvest:Publications/2", "2024-01-01T00:00:00Z", "Second", "http://hdl.handle.net/123456789/99"),
	)

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Imported != 2 || report.Created != 2 {
		t.Errorf("got imported %d created %d, want 2 and 2", report.Imported, report.Created)
	}

	hc := f.harvested(t, col)
	if hc.HarvestStatus != content.StatusReady {
		t.Errorf("got status %s, want READY", hc.HarvestStatus)
	}
	if want := "Imported 2 records with success"; hc.HarvestMessage != want {
		t.Errorf("got %q, want %q", hc.HarvestMessage, want)
	}
	if !hc.LastHarvested.Equal(testNow) {
		t.Errorf("got last harvested %v, want %v", hc.LastHarvested, testNow)
	}

	ctx := context.Background()
	first, err := f.store.FindItemsByMetadata(ctx, "cris.sourceId", "test-harvest::1", col)
	if err != nil || len(first) != 1 {
		t.Fatalf("source id lookup: %v %d", err, len(first))
	}
	if first[0].Handle != "2345/7" {
		t.Errorf("got handle %q, want %q", first[0].Handle, "2345/7")
	}
	if !first[0].InArchive {
		t.Error("valid item should be installed")
	}
	if got := first[0].Values("dc.identifier.uri"); !contains(got, "http://hdl.handle.net/2345/7") {
		t.Errorf("dc.identifier.uri: got %v", got)
	}
	if len(first[0].GetMetadata("dc.description.provenance")) != 1 {
		t.Error("missing provenance")
	}

	// The rejected prefix is not reused; a local handle is minted instead.
	second, _ := f.store.FindItemsByMetadata(ctx, "cris.sourceId", "test-harvest::2", col)
	if len(second) != 1 || second[0].Handle != "123456789/1" {
		t.Errorf("second item: %+v", second)
	}
	if len(f.mailer.sent) != 0 {
		t.Errorf("got %d alerts, want none", len(f.mailer.sent))
	}
}

func TestRunNoRecordsMatch(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.listErrors = []string{"noRecordsMatch"}

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.NoUpdates() {
		t.Error("report should record that nothing matched")
	}
	hc := f.harvested(t, col)
	if hc.HarvestStatus != content.StatusReady || hc.HarvestMessage != MessageNoRecordsMatch {
		t.Errorf("got %s %q", hc.HarvestStatus, hc.HarvestMessage)
	}
	if !hc.LastHarvested.Equal(testNow) {
		t.Errorf("last harvested should advance, got %v", hc.LastHarvested)
	}
}

func TestRunFatalErrorCodes(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.listErrors = []string{"badArgument", "badResumptionToken"}

	_, err := f.h.Run(context.Background(), col, Options{})
	if err == nil {
		t.Fatal("expected an error")
	}
	hc := f.harvested(t, col)
	if hc.HarvestStatus != content.StatusRetry {
		t.Errorf("got status %s, want RETRY", hc.HarvestStatus)
	}
	want := "Not recoverable error occurs: OAI server response contains the following error codes: [badArgument, badResumptionToken]"
	if hc.HarvestMessage != want {
		t.Errorf("got %q, want %q", hc.HarvestMessage, want)
	}
	if !hc.LastHarvested.IsZero() {
		t.Errorf("last harvested should not change, got %v", hc.LastHarvested)
	}
	if len(f.mailer.sent) != 1 {
		t.Errorf("got %d alerts, want 1", len(f.mailer.sent))
	}
}

// testClock is a clock the provider can move during a harvest.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func pubRecord(n int) string {
	return dcRecord("oai:test-harvest:Publications/"+strconv.Itoa(n), "2024-01-01T00:00:00Z", "Record "+strconv.Itoa(n))
}

func TestRunReportsProgressPerPage(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.pages = []string{
		pubRecord(1) + pubRecord(2),
		pubRecord(3) + pubRecord(4),
		pubRecord(5),
	}
	f.provider.listSize = 5

	var progress []string
	f.provider.onPage = func(n int) {
		if n == 0 {
			return
		}
		hc, err := f.store.GetHarvestedCollection(context.Background(), col)
		if err != nil {
			t.Errorf("page %d: %v", n, err)
			return
		}
		progress = append(progress, hc.HarvestStatus.String()+" "+hc.HarvestMessage)
	}

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		"BUSY Collection is currently being harvested (item 2 of 5)",
		"BUSY Collection is currently being harvested (item 4 of 5)",
	}
	if strings.Join(progress, "\n") != strings.Join(want, "\n") {
		t.Errorf("got progress %q, want %q", progress, want)
	}
	if report.Imported != 5 {
		t.Errorf("got imported %d, want 5", report.Imported)
	}
	if n := len(f.items(t, col)); n != 5 {
		t.Errorf("got %d items, want 5", n)
	}
	if hc := f.harvested(t, col); hc.HarvestMessage != "Imported 5 records with success" {
		t.Errorf("got %q", hc.HarvestMessage)
	}
}

func TestRunThreadTimeout(t *testing.T) {
	clock := &testClock{t: testNow}
	f := newFixture(t, WithClock(clock.now))
	f.h.cfg.ThreadTimeout = time.Minute
	col := f.collection(t, content.HarvestMetadata)
	f.provider.pages = []string{pubRecord(1) + pubRecord(2), pubRecord(3)}
	f.provider.listSize = 3
	f.provider.onPage = func(n int) {
		if n == 1 {
			clock.advance(2 * time.Minute)
		}
	}

	_, err := f.h.Run(context.Background(), col, Options{})
	want := "Harvest timed out for collection " + col.String()
	if err == nil || err.Error() != want {
		t.Fatalf("got %v, want %q", err, want)
	}
	hc := f.harvested(t, col)
	if hc.HarvestStatus != content.StatusRetry {
		t.Errorf("got status %s, want RETRY", hc.HarvestStatus)
	}
	if hc.HarvestMessage != messageFatal+want {
		t.Errorf("got %q, want %q", hc.HarvestMessage, messageFatal+want)
	}
	if n := len(f.items(t, col)); n != 2 {
		t.Errorf("got %d items, want the 2 from the first page", n)
	}
}

func TestRunPartialFailure(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(
		dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "Good"),
		`<record><header><identifier>oai:test-harvest:Publications/2</identifier><datestamp>2024-01-01T00:00:00Z</datestamp></header></record>`,
	)

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].OaiID != "oai:test-harvest:Publications/2" {
		t.Fatalf("failures: %+v", report.Failures)
	}
	hc := f.harvested(t, col)
	want := "Imported 1 records with success - Record import failures: 1"
	if hc.HarvestStatus != content.StatusRetry || hc.HarvestMessage != want {
		t.Errorf("got %s %q, want RETRY %q", hc.HarvestStatus, hc.HarvestMessage, want)
	}
	if !hc.LastHarvested.IsZero() {
		t.Error("last harvested should not advance after failures")
	}
	if len(f.mailer.sent) != 1 || !strings.Contains(f.mailer.sent[0].Body, "Publications/2") {
		t.Errorf("alert should list the failed record: %+v", f.mailer.sent)
	}
	if n := len(f.items(t, col)); n != 1 {
		t.Errorf("got %d items, want 1", n)
	}
}

func TestRunHandleCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := content.NewItem(uuid.Nil)
	other.Handle = "2345/7"
	if err := f.store.CreateItem(ctx, other); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "Dup", "http://hdl.handle.net/2345/7"))

	report, _ := f.h.Run(ctx, col, Options{})
	if len(report.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(report.Failures))
	}
	if msg := report.Failures[0].Err.Error(); !strings.HasPrefix(msg, "Handle collision: attempted to re-assign handle '2345/7'") {
		t.Errorf("got %q", msg)
	}
}

func TestRunDeletesAndSkips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(
		dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "Keep"),
		dcRecord("oai:test-harvest:Publications/2", "2024-01-01T00:00:00Z", "Remove"),
	)
	if _, err := f.h.Run(ctx, col, Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// The local copy was harvested after the record's datestamp.
	f.provider.setRecords(
		dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "Keep (changed)"),
		deletedRecord("oai:test-harvest:Publications/2"),
	)
	report, err := f.h.Run(ctx, col, Options{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Skipped != 1 || report.Deleted != 1 {
		t.Errorf("got skipped %d deleted %d, want 1 and 1", report.Skipped, report.Deleted)
	}
	items := f.items(t, col)
	if len(items) != 1 || items[0].Title() != "Keep" {
		t.Fatalf("items after second run: %+v", items)
	}

	report, err = f.h.Run(ctx, col, Options{ForceSynchronization: true})
	if err != nil {
		t.Fatalf("forced run: %v", err)
	}
	if report.Updated != 1 {
		t.Errorf("got updated %d, want 1", report.Updated)
	}
	items = f.items(t, col)
	if len(items) != 1 || items[0].Title() != "Keep (changed)" {
		t.Errorf("forced run should update the item: %+v", items)
	}
	if items[0].Handle != "123456789/1" {
		t.Errorf("update should keep the handle, got %q", items[0].Handle)
	}
}

func TestRunFullHarvestStoresFiles(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestFull)
	id := "oai:test-harvest:Publications/1"
	f.provider.setRecords(dcRecord(id, "2024-01-01T00:00:00Z", "With files"))
	f.provider.files["paper.pdf"] = "%PDF-1.4 test"
	f.provider.ore[id] = `<atom:entry xmlns:atom="http://www.w3.org/2005/Atom">
<atom:id>` + f.server.URL + `/handle/1/ore.xml</atom:id><atom:title>With files</atom:title>
<atom:link rel="http://www.openarchives.org/ore/terms/aggregates" href="` + f.server.URL + `/files/paper.pdf" title="paper.pdf"/>
</atom:entry>`

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Failures) > 0 {
		t.Fatalf("failures: %v", report.Failures[0].Err)
	}
	items := f.items(t, col)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	item, err := f.store.GetItem(context.Background(), items[0].ID)
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	ore := item.Bundle(content.BundleORE)
	if ore == nil || ore.Bitstream(OREBitstream) == nil {
		t.Fatal("missing ORE.xml")
	}
	original := item.Bundle(content.BundleOriginal)
	if original == nil || original.Bitstream("paper.pdf") == nil {
		t.Fatal("missing downloaded file")
	}
	bs := original.Bitstream("paper.pdf")
	if string(bs.Content) != "%PDF-1.4 test" || bs.MimeType != "application/pdf" {
		t.Errorf("got %q %q", bs.Content, bs.MimeType)
	}
}

func TestRunORENotSupported(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadataAndReferences)
	f.provider.noORE = true

	_, err := f.h.Run(context.Background(), col, Options{})
	if err == nil || !strings.Contains(err.Error(), "ORE") {
		t.Fatalf("got %v, want ORE error", err)
	}
	if hc := f.harvested(t, col); hc.HarvestStatus != content.StatusRetry {
		t.Errorf("got status %s, want RETRY", hc.HarvestStatus)
	}
}

func TestRunInvalidRecordStaysInWorkspace(t *testing.T) {
	v := validate.NewValidator()
	rs, err := validate.LoadRuleSetFromBytes([]byte("rules:\n  - field: dc.publisher\n    required: true\n"))
	if err != nil {
		t.Fatalf("LoadRuleSetFromBytes: %v", err)
	}
	v.Set("dc", rs)
	f := newFixture(t, WithValidator(v))
	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "No publisher"))

	report, err := f.h.Run(context.Background(), col, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Imported != 1 || len(report.Invalid) != 1 {
		t.Errorf("got imported %d invalid %d, want 1 and 1", report.Imported, len(report.Invalid))
	}
	items := f.items(t, col)
	if len(items) != 1 || items[0].InArchive || items[0].Handle != "" {
		t.Errorf("invalid item should stay in the workspace: %+v", items)
	}
	if hc := f.harvested(t, col); hc.HarvestStatus != content.StatusReady {
		t.Errorf("got status %s, want READY", hc.HarvestStatus)
	}
	if len(f.mailer.sent) != 1 {
		t.Errorf("got %d alerts, want 1", len(f.mailer.sent))
	}
}

func TestRunSettingsErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.h.Run(ctx, uuid.New(), Options{})
	if !IsSettingsError(err) || err.Error() != "Provided collection is not set up for harvesting" {
		t.Errorf("got %v", err)
	}

	col := f.collection(t, content.HarvestMetadata)
	hc := f.harvested(t, col)
	hc.MetadataConfigID = "marc"
	if err := f.store.SaveHarvestedCollection(ctx, hc); err != nil {
		t.Fatal(err)
	}
	_, err = f.h.Run(ctx, col, Options{})
	if !IsSettingsError(err) || err.Error() != "Metadata declaration not found" {
		t.Errorf("got %v", err)
	}
	if got := f.harvested(t, col); got.HarvestStatus != content.StatusReady {
		t.Errorf("settings errors should not change the status, got %s", got.HarvestStatus)
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFixture(t)
	col := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.h.Run(ctx, col, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
	if hc := f.harvested(t, col); hc.HarvestStatus != content.StatusRetry {
		t.Errorf("got status %s, want RETRY", hc.HarvestStatus)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := f.server.URL + "/oai"

	if problems := f.h.Verify(ctx, source, "col_1", "dc", true); len(problems) != 0 {
		t.Errorf("got %v, want no problems", problems)
	}

	problems := f.h.Verify(ctx, source, "missing", "dim", false)
	if len(problems) != 2 {
		t.Fatalf("got %v, want 2 problems", problems)
	}
	if !strings.HasPrefix(problems[0], ProblemMetadataNotSupported) || !strings.HasPrefix(problems[1], ProblemNoSuchSet) {
		t.Errorf("got %v", problems)
	}

	f.provider.noORE = true
	problems = f.h.Verify(ctx, source, content.SetAll, "dc", true)
	if len(problems) != 1 || !strings.HasPrefix(problems[0], ProblemORENotSupported) {
		t.Errorf("got %v", problems)
	}

	problems = f.h.Verify(ctx, "ftp://example.org/oai", "", "dc", false)
	if len(problems) != 1 || !strings.HasPrefix(problems[0], ProblemInvalidAddress) {
		t.Errorf("got %v", problems)
	}
}

func TestAvailableMetadataFormats(t *testing.T) {
	f := newFixture(t)
	got := f.h.AvailableMetadataFormats()
	if len(got) != 3 || got[0].ID != "dc" || got[1].ID != "dim" || got[2].ID != "mods" {
		t.Fatalf("got %+v", got)
	}
	if got[0].Label != "Simple Dublin Core" {
		t.Errorf("got %q, want %q", got[0].Label, "Simple Dublin Core")
	}
}

func TestExtractHandle(t *testing.T) {
	accepted := []string{"hdl.handle.net"}
	rejected := []string{"123456789"}
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"handle url", []string{"http://hdl.handle.net/2345/7"}, "2345/7"},
		{"https", []string{"https://hdl.handle.net/10673/4"}, "10673/4"},
		{"rejected prefix", []string{"http://hdl.handle.net/123456789/4"}, ""},
		{"other server", []string{"http://repo.example.org/2345/7"}, ""},
		{"extra path", []string{"http://hdl.handle.net/2345/7/1"}, ""},
		{"first usable wins", []string{"10.1000/xyz", "http://hdl.handle.net/2345/8"}, "2345/8"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := content.NewItem(uuid.Nil)
			for _, v := range tt.values {
				item.AddMetadata("dc.identifier.uri", "", v)
			}
			if got := ExtractHandle(item, accepted, rejected); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceID(t *testing.T) {
	tests := map[string]string{
		"oai:test-harvest:Publications/3": "test-harvest::3",
		"oai:repo.example.org:123/45":     "repo.example.org::45",
		"oai:repo:plain":                  "repo::plain",
		"not-an-oai-id":                   "",
	}
	for in, want := range tests {
		if got := SourceID(in); got != want {
			t.Errorf("SourceID(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestProcessDate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.FixedZone("EST", -5*3600))
	if got, want := ProcessDate(ts, time.Hour), "2024-03-01T14:30:00Z"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := ProcessDate(time.Time{}, 0); got != "" {
		t.Errorf("got %q, want empty", got)
	}
}

func TestSchedulerRunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.collection(t, content.HarvestMetadata)
	b := f.collection(t, content.HarvestMetadata)
	f.provider.setRecords(dcRecord("oai:test-harvest:Publications/1", "2024-01-01T00:00:00Z", "Shared"))

	s := NewScheduler(f.h)
	s.MaxThreads = 1
	n, err := s.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d harvests, want 2", n)
	}
	for _, id := range []uuid.UUID{a, b} {
		if hc := f.harvested(t, id); hc.HarvestStatus != content.StatusReady || !hc.LastHarvested.Equal(testNow) {
			t.Errorf("collection %s: %s %v", id, hc.HarvestStatus, hc.LastHarvested)
		}
	}

	// Both were just harvested, so nothing is due.
	if n, _ := s.RunOnce(ctx); n != 0 {
		t.Errorf("got %d harvests, want 0", n)
	}
}

func TestSchedulerRejectedSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	col := f.collection(t, content.HarvestMetadata)
	hc := f.harvested(t, col)
	hc.MetadataConfigID = "marc"
	if err := f.store.SaveHarvestedCollection(ctx, hc); err != nil {
		t.Fatal(err)
	}

	s := NewScheduler(f.h)
	if n, err := s.RunOnce(ctx); err != nil || n != 1 {
		t.Fatalf("RunOnce: got %d %v, want 1 harvest", n, err)
	}
	got := f.harvested(t, col)
	if got.HarvestStatus != content.StatusUnknownError {
		t.Errorf("got status %s, want UNKNOWN_ERROR", got.HarvestStatus)
	}
	if got.HarvestMessage != msgNoDeclaration {
		t.Errorf("got %q, want %q", got.HarvestMessage, msgNoDeclaration)
	}
	if n, _ := s.RunOnce(ctx); n != 0 {
		t.Errorf("got %d harvests, want 0", n)
	}
}

func TestSchedulerReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	col := f.collection(t, content.HarvestMetadata)
	hc := f.harvested(t, col)
	hc.HarvestStatus = content.StatusBusy
	if err := f.store.SaveHarvestedCollection(ctx, hc); err != nil {
		t.Fatal(err)
	}
	if err := NewScheduler(f.h).Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if got := f.harvested(t, col); got.HarvestStatus != content.StatusReady {
		t.Errorf("got status %s, want READY", got.HarvestStatus)
	}
}
