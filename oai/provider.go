package oai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

// ProvidedFormat is a metadata format the Handler disseminates through a
// registered serializer.
type ProvidedFormat struct {
	Prefix    string
	Schema    string
	Namespace string
	Crosswalk string
}

// DefaultFormats are oai_dc, which OAI-PMH requires, DIM and MODS. A
// format is only offered once its crosswalk is registered.
var DefaultFormats = []ProvidedFormat{
	{
		Prefix:    "oai_dc",
		Schema:    "http://www.openarchives.org/OAI/2.0/oai_dc.xsd",
		Namespace: config.NamespaceOAIDC,
		Crosswalk: "oai_dc",
	},
	{
		Prefix:    "dim",
		Schema:    "http://www.dspace.org/schema/dim.xsd",
		Namespace: config.NamespaceDIM,
		Crosswalk: "dim",
	},
	{
		Prefix:    "mods",
		Schema:    "http://www.loc.gov/standards/mods/v3/mods-3-8.xsd",
		Namespace: config.NamespaceMODS,
		Crosswalk: "mods",
	},
}

// Handler is an OAI-PMH 2.0 data provider over the archived items of a
// store. Each collection with a handle is a set.
type Handler struct {
	store    *store.Store
	cfg      config.OAIConfig
	formats  []ProvidedFormat
	registry *format.Registry
	now      func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithFormats replaces DefaultFormats.
func WithFormats(f ...ProvidedFormat) HandlerOption {
	return func(h *Handler) { h.formats = f }
}

// WithRegistry resolves crosswalks in r instead of format.DefaultRegistry.
func WithRegistry(r *format.Registry) HandlerOption {
	return func(h *Handler) { h.registry = r }
}

// WithResponseClock sets the clock used for responseDate.
func WithResponseClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler returns a provider serving s as described by cfg.
func NewHandler(s *store.Store, cfg config.OAIConfig, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:    s,
		cfg:      cfg,
		formats:  DefaultFormats,
		registry: format.DefaultRegistry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.cfg.PageSize <= 0 {
		h.cfg.PageSize = 100
	}
	if h.cfg.IdentifierPrefix == "" {
		h.cfg.IdentifierPrefix = "localhost"
	}
	return h
}

// verbArgs lists the required and optional arguments of each verb.
var verbArgs = map[string]struct{ required, optional []string }{
	"Identify":            {},
	"ListMetadataFormats": {optional: []string{"identifier"}},
	"ListSets":            {optional: []string{"resumptionToken"}},
	"GetRecord":           {required: []string{"identifier", "metadataPrefix"}},
	"ListIdentifiers":     {required: []string{"metadataPrefix"}, optional: []string{"from", "until", "set", "resumptionToken"}},
	"ListRecords":         {required: []string{"metadataPrefix"}, optional: []string{"from", "until", "set", "resumptionToken"}},
}

func protoErr(code, format string, args ...any) ErrorList {
	return ErrorList{{Code: code, Message: fmt.Sprintf(format, args...)}}
}

// checkArgs validates the request arguments against the verb.
func checkArgs(verb string, vals url.Values) error {
	spec, ok := verbArgs[verb]
	if !ok {
		if verb == "" {
			return protoErr(CodeBadVerb, "missing verb argument")
		}
		return protoErr(CodeBadVerb, "illegal verb %q", verb)
	}
	allowed := map[string]bool{"verb": true}
	for _, a := range append(append([]string(nil), spec.required...), spec.optional...) {
		allowed[a] = true
	}
	for k, vs := range vals {
		if !allowed[k] {
			return protoErr(CodeBadArgument, "illegal argument %q for verb %s", k, verb)
		}
		if len(vs) > 1 {
			return protoErr(CodeBadArgument, "argument %q is repeated", k)
		}
	}
	if vals.Has("resumptionToken") {
		if len(vals) > 2 {
			return protoErr(CodeBadArgument, "resumptionToken is an exclusive argument")
		}
		return nil
	}
	for _, a := range spec.required {
		if vals.Get(a) == "" {
			return protoErr(CodeBadArgument, "missing required argument %q", a)
		}
	}
	return nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	vals := r.Form
	verb := vals.Get("verb")

	res := &Response{
		XMLNS:          Namespace,
		XSI:            "http://www.w3.org/2001/XMLSchema-instance",
		SchemaLocation: Namespace + " http://www.openarchives.org/OAI/2.0/OAI-PMH.xsd",
		ResponseDate:   GranularitySecond.Format(h.now()),
		Request:        Request{URL: h.cfg.BaseURL},
	}

	err := checkArgs(verb, vals)
	if err == nil {
		res.Request = Request{
			URL:             h.cfg.BaseURL,
			Verb:            verb,
			Identifier:      vals.Get("identifier"),
			MetadataPrefix:  vals.Get("metadataPrefix"),
			From:            vals.Get("from"),
			Until:           vals.Get("until"),
			Set:             vals.Get("set"),
			ResumptionToken: vals.Get("resumptionToken"),
		}
		err = h.dispatch(r.Context(), verb, vals, res)
	}

	var list ErrorList
	switch {
	case errors.As(err, &list):
		res.Errors = list
	case err != nil:
		slog.Error("OAI-PMH request failed", "verb", verb, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(res); err != nil {
		slog.Error("encoding OAI-PMH response", "verb", verb, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handler) dispatch(ctx context.Context, verb string, vals url.Values, res *Response) error {
	var err error
	switch verb {
	case "Identify":
		res.Identify, err = h.identify(ctx)
	case "ListMetadataFormats":
		res.ListMetadataFormats, err = h.listMetadataFormats(ctx, vals.Get("identifier"))
	case "ListSets":
		res.ListSets, err = h.listSets(ctx, vals.Get("resumptionToken"))
	case "GetRecord":
		res.GetRecord, err = h.getRecord(ctx, vals.Get("identifier"), vals.Get("metadataPrefix"))
	case "ListIdentifiers", "ListRecords":
		var q *listQuery
		if q, err = h.parseList(vals); err != nil {
			return err
		}
		var pg *page
		if pg, err = h.list(ctx, q, verb == "ListRecords"); err != nil {
			return err
		}
		if verb == "ListRecords" {
			res.ListRecords = &ListRecords{Records: pg.records, ResumptionToken: pg.token}
		} else {
			res.ListIdentifiers = &ListIdentifiers{Headers: pg.headers, ResumptionToken: pg.token}
		}
	}
	return err
}

func (h *Handler) identify(ctx context.Context) (*Identify, error) {
	earliest := h.now()
	first, err := h.store.ListItems(ctx, store.ItemFilter{ArchivedOnly: true, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(first) > 0 {
		earliest = first[0].LastModified
	}
	return &Identify{
		RepositoryName:    h.cfg.RepositoryName,
		BaseURL:           h.cfg.BaseURL,
		ProtocolVersion:   "2.0",
		AdminEmail:        []string{h.cfg.AdminEmail},
		EarliestDatestamp: GranularitySecond.Format(earliest),
		DeletedRecord:     "no",
		Granularity:       string(GranularitySecond),
	}, nil
}

// available returns the formats whose crosswalk is registered.
func (h *Handler) available() []ProvidedFormat {
	var out []ProvidedFormat
	for _, f := range h.formats {
		if _, err := h.registry.GetSerializer(f.Crosswalk); err == nil {
			out = append(out, f)
		}
	}
	return out
}

func (h *Handler) formatFor(prefix string) (ProvidedFormat, format.Serializer, bool) {
	for _, f := range h.available() {
		if f.Prefix == prefix {
			ser, _ := h.registry.GetSerializer(f.Crosswalk)
			return f, ser, true
		}
	}
	return ProvidedFormat{}, nil, false
}

func (h *Handler) listMetadataFormats(ctx context.Context, identifier string) (*ListMetadataFormats, error) {
	if identifier != "" {
		if _, err := h.itemFor(ctx, identifier); err != nil {
			return nil, err
		}
	}
	formats := h.available()
	if len(formats) == 0 {
		return nil, protoErr(CodeNoMetadataFormats, "no metadata formats are available")
	}
	out := &ListMetadataFormats{}
	for _, f := range formats {
		out.Formats = append(out.Formats, MetadataFormat{Prefix: f.Prefix, Schema: f.Schema, Namespace: f.Namespace})
	}
	return out, nil
}

// SetSpec names the set of a collection handle: col_<prefix>_<suffix>.
func SetSpec(handle string) string {
	return "col_" + strings.ReplaceAll(handle, "/", "_")
}

// sets maps set specs to collections.
func (h *Handler) sets(ctx context.Context) (map[string]*content.Collection, error) {
	cols, err := h.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*content.Collection, len(cols))
	for _, c := range cols {
		if c.Handle != "" {
			out[SetSpec(c.Handle)] = c
		}
	}
	return out, nil
}

func (h *Handler) listSets(ctx context.Context, token string) (*ListSets, error) {
	if token != "" {
		return nil, protoErr(CodeBadResumptionToken, "set lists are never partitioned")
	}
	cols, err := h.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	out := &ListSets{}
	for _, c := range cols {
		if c.Handle != "" {
			out.Sets = append(out.Sets, Set{Spec: SetSpec(c.Handle), Name: c.Name})
		}
	}
	if len(out.Sets) == 0 {
		return nil, protoErr(CodeNoSetHierarchy, "this repository does not support sets")
	}
	return out, nil
}

// Identifier renders the OAI identifier of a handle.
func (h *Handler) Identifier(handle string) string {
	return "oai:" + h.cfg.IdentifierPrefix + ":" + handle
}

func (h *Handler) itemFor(ctx context.Context, identifier string) (*content.Item, error) {
	handle, ok := strings.CutPrefix(identifier, "oai:"+h.cfg.IdentifierPrefix+":")
	if !ok || handle == "" {
		return nil, protoErr(CodeIDDoesNotExist, "unknown identifier %q", identifier)
	}
	target, err := h.store.ResolveHandle(ctx, handle)
	if errors.Is(err, store.ErrNotFound) {
		return nil, protoErr(CodeIDDoesNotExist, "unknown identifier %q", identifier)
	}
	if err != nil {
		return nil, err
	}
	if target.Type != store.ResourceItem {
		return nil, protoErr(CodeIDDoesNotExist, "%q does not identify an item", identifier)
	}
	item, err := h.store.GetItem(ctx, target.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, protoErr(CodeIDDoesNotExist, "unknown identifier %q", identifier)
	}
	if err != nil {
		return nil, err
	}
	if !item.InArchive || item.Withdrawn {
		return nil, protoErr(CodeIDDoesNotExist, "unknown identifier %q", identifier)
	}
	return item, nil
}

func (h *Handler) header(item *content.Item, specs map[uuid.UUID]string) Header {
	hd := Header{
		Identifier: h.Identifier(item.Handle),
		Datestamp:  GranularitySecond.Format(item.LastModified),
	}
	if spec, ok := specs[item.OwningCollection]; ok {
		hd.SetSpecs = []string{spec}
	}
	return hd
}

func (h *Handler) record(item *content.Item, ser format.Serializer, specs map[uuid.UUID]string) (Record, error) {
	var buf bytes.Buffer
	if err := ser.Serialize(&buf, []*content.Item{item}, &format.SerializeOptions{OmitHeader: true}); err != nil {
		return Record{}, err
	}
	return Record{Header: h.header(item, specs), Metadata: &Inner{XML: buf.String()}}, nil
}

func (h *Handler) specsByCollection(ctx context.Context) (map[uuid.UUID]string, error) {
	sets, err := h.sets(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]string, len(sets))
	for spec, c := range sets {
		out[c.ID] = spec
	}
	return out, nil
}

func (h *Handler) getRecord(ctx context.Context, identifier, prefix string) (*GetRecord, error) {
	item, err := h.itemFor(ctx, identifier)
	if err != nil {
		return nil, err
	}
	_, ser, ok := h.formatFor(prefix)
	if !ok {
		return nil, protoErr(CodeCannotDisseminateFormat, "metadata format %q is not supported", prefix)
	}
	specs, err := h.specsByCollection(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := h.record(item, ser, specs)
	if err != nil {
		slog.Warn("unable to disseminate item", "item", item.ID, "prefix", prefix, "err", err)
		return nil, protoErr(CodeCannotDisseminateFormat, "item cannot be disseminated as %q", prefix)
	}
	return &GetRecord{Record: rec}, nil
}

// listQuery is the state of a list request; it round-trips through
// resumption tokens.
type listQuery struct {
	prefix string
	set    string
	from   string
	until  string
	offset int
}

func (q *listQuery) token() string {
	v := url.Values{}
	v.Set("p", q.prefix)
	v.Set("o", strconv.Itoa(q.offset))
	if q.set != "" {
		v.Set("s", q.set)
	}
	if q.from != "" {
		v.Set("f", q.from)
	}
	if q.until != "" {
		v.Set("u", q.until)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(v.Encode()))
}

func parseToken(token string) (*listQuery, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, protoErr(CodeBadResumptionToken, "invalid resumption token")
	}
	v, err := url.ParseQuery(string(raw))
	if err != nil || v.Get("p") == "" {
		return nil, protoErr(CodeBadResumptionToken, "invalid resumption token")
	}
	offset, err := strconv.Atoi(v.Get("o"))
	if err != nil || offset < 0 {
		return nil, protoErr(CodeBadResumptionToken, "invalid resumption token")
	}
	return &listQuery{prefix: v.Get("p"), set: v.Get("s"), from: v.Get("f"), until: v.Get("u"), offset: offset}, nil
}

func (h *Handler) parseList(vals url.Values) (*listQuery, error) {
	if token := vals.Get("resumptionToken"); token != "" {
		return parseToken(token)
	}
	return &listQuery{
		prefix: vals.Get("metadataPrefix"),
		set:    vals.Get("set"),
		from:   vals.Get("from"),
		until:  vals.Get("until"),
	}, nil
}

// bounds parses from and until. A day-granularity until covers the whole
// day.
func (q *listQuery) bounds() (time.Time, time.Time, error) {
	var from, until time.Time
	var err error
	if q.from != "" {
		if from, err = parseArgDate(q.from); err != nil {
			return from, until, err
		}
	}
	if q.until != "" {
		if until, err = parseArgDate(q.until); err != nil {
			return from, until, err
		}
		// until covers the whole day or second it names
		if len(q.until) == len(GranularityDay) {
			until = until.Add(24*time.Hour - time.Nanosecond)
		} else {
			until = until.Add(time.Second - time.Nanosecond)
		}
	}
	if q.from != "" && q.until != "" {
		if len(q.from) != len(q.until) {
			return from, until, protoErr(CodeBadArgument, "from and until must have the same granularity")
		}
		if from.After(until) {
			return from, until, protoErr(CodeBadArgument, "from is later than until")
		}
	}
	return from, until, nil
}

func parseArgDate(s string) (time.Time, error) {
	for _, g := range []Granularity{GranularityDay, GranularitySecond} {
		if len(s) != len(g) {
			continue
		}
		if t, err := time.Parse(g.Layout(), s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, protoErr(CodeBadArgument, "invalid datestamp %q", s)
}

type page struct {
	headers []Header
	records []Record
	token   *ResumptionToken
}

func (h *Handler) list(ctx context.Context, q *listQuery, withMetadata bool) (*page, error) {
	_, ser, ok := h.formatFor(q.prefix)
	if !ok {
		return nil, protoErr(CodeCannotDisseminateFormat, "metadata format %q is not supported", q.prefix)
	}
	from, until, err := q.bounds()
	if err != nil {
		return nil, err
	}

	sets, err := h.sets(ctx)
	if err != nil {
		return nil, err
	}
	filter := store.ItemFilter{ArchivedOnly: true, ModifiedFrom: from, ModifiedUntil: until}
	if q.set != "" {
		c, ok := sets[q.set]
		if !ok {
			return nil, protoErr(CodeNoRecordsMatch, "no set with spec %q", q.set)
		}
		filter.Collection = c.ID
	}
	specs := make(map[uuid.UUID]string, len(sets))
	for spec, c := range sets {
		specs[c.ID] = spec
	}

	total, err := h.store.CountItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, protoErr(CodeNoRecordsMatch, "the combination of arguments results in an empty list")
	}
	if q.offset >= total {
		return nil, protoErr(CodeBadResumptionToken, "resumption token is past the end of the list")
	}
	filter.Offset, filter.Limit = q.offset, h.cfg.PageSize
	items, err := h.store.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}

	p := &page{}
	for _, item := range items {
		if item.Handle == "" {
			continue
		}
		if !withMetadata {
			p.headers = append(p.headers, h.header(item, specs))
			continue
		}
		rec, err := h.record(item, ser, specs)
		if err != nil {
			slog.Warn("skipping item that cannot be disseminated", "item", item.ID, "prefix", q.prefix, "err", err)
			continue
		}
		p.records = append(p.records, rec)
	}

	next := q.offset + len(items)
	switch {
	case next < total:
		nq := *q
		nq.offset = next
		p.token = &ResumptionToken{
			Token:            nq.token(),
			CompleteListSize: strconv.Itoa(total),
			Cursor:           strconv.Itoa(q.offset),
		}
	case q.offset > 0:
		p.token = &ResumptionToken{CompleteListSize: strconv.Itoa(total), Cursor: strconv.Itoa(q.offset)}
	}
	return p, nil
}
