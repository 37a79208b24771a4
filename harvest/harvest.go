// Package harvest pulls records from OAI-PMH providers into collections.
//
// A harvest walks ListRecords for a collection's source and set, crosswalks
// each record's metadata into an item, and creates, updates or deletes the
// matching local item. Every record is stored in its own transaction so a
// failing record never undoes the records before it.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/metrics"
	"github.com/lehigh-university-libraries/dspacekit/notify"
	"github.com/lehigh-university-libraries/dspacekit/oai"
	"github.com/lehigh-university-libraries/dspacekit/store"
	"github.com/lehigh-university-libraries/dspacekit/transform"
	"github.com/lehigh-university-libraries/dspacekit/validate"

	// crosswalks selected by name from harvester.metadata_formats
	_ "github.com/lehigh-university-libraries/dspacekit/format/dim"
	_ "github.com/lehigh-university-libraries/dspacekit/format/dublincore"
	_ "github.com/lehigh-university-libraries/dspacekit/format/mods"
)

// Status messages written to the harvested collection.
const (
	MessageInitializing   = "Collection harvesting is initializing..."
	MessageNoRecordsMatch = "noRecordsMatch: OAI server did not contain any updates"
	messageProgress       = "Collection is currently being harvested (item %d of %d)"
	messageSuccess        = "Imported %d records with success"
	messageFailures       = " - Record import failures: %d"
	messageFatal          = "Not recoverable error occurs: "

	msgNotHarvestable = "Provided collection is not set up for harvesting"
	msgNoDeclaration  = "Metadata declaration not found"
)

// Error is a harvest-level failure. Record-level failures are collected in
// the Report instead.
type Error struct {
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

// Options adjust a single harvest.
type Options struct {
	// ForceSynchronization requests the full list from the provider and
	// re-imports records even when the local copy is newer.
	ForceSynchronization bool
}

// Harvester runs collection harvests.
type Harvester struct {
	store     *store.Store
	cfg       config.HarvesterConfig
	handles   config.HandleConfig
	formats   *format.Registry
	transform *transform.Transformer
	validator *validate.Validator
	alerter   *notify.Alerter
	http      oai.Doer
	now       func() time.Time

	prefixes singleflight.Group
}

// Option configures a Harvester.
type Option func(*Harvester)

// WithTransformer installs the pre/post transform rule sets.
func WithTransformer(t *transform.Transformer) Option {
	return func(h *Harvester) { h.transform = t }
}

// WithValidator installs the validation profiles.
func WithValidator(v *validate.Validator) Option {
	return func(h *Harvester) { h.validator = v }
}

// WithAlerter sends harvest error reports through a.
func WithAlerter(a *notify.Alerter) Option {
	return func(h *Harvester) { h.alerter = a }
}

// WithHTTPClient replaces the retrying client used for OAI requests and
// file downloads.
func WithHTTPClient(d oai.Doer) Option {
	return func(h *Harvester) { h.http = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Harvester) { h.now = now }
}

// New creates a Harvester over s.
func New(s *store.Store, cfg *config.Config, opts ...Option) *Harvester {
	h := &Harvester{
		store:     s,
		cfg:       cfg.Harvester,
		handles:   cfg.Handle,
		formats:   format.DefaultRegistry,
		transform: transform.New(),
		validator: validate.NewValidator(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.http == nil {
		h.http = oai.NewRetryingHTTPClient(h.cfg.MaxRetries, h.cfg.HTTPTimeout)
	}
	return h
}

func (h *Harvester) client(source string) (*oai.Client, error) {
	return oai.NewClient(source, oai.WithHTTPClient(h.http), oai.WithRateLimit(h.cfg.RequestsPerSecond))
}

// resolvePrefix maps namespace to the provider's metadata prefix. Concurrent
// harvests from the same provider share one ListMetadataFormats request.
func (h *Harvester) resolvePrefix(ctx context.Context, c *oai.Client, namespace string) (string, error) {
	v, err, _ := h.prefixes.Do(c.BaseURL()+"\x00"+namespace, func() (any, error) {
		return c.ResolveNamespaceToPrefix(ctx, namespace)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// run is the state of one collection harvest.
type run struct {
	hc        *content.HarvestedCollection
	configID  string
	parser    format.Parser
	client    *oai.Client
	prefix    string
	orePrefix string
	opts      Options
	report    *Report
}

// Run harvests one collection. Settings errors are returned before the
// harvest starts; a collection already QUEUED for the harvest is moved to
// UNKNOWN_ERROR with the reason so it is not left waiting. Once the harvest
// has started its outcome is recorded on the harvested collection and also
// returned, together with the report.
func (h *Harvester) Run(ctx context.Context, collectionID uuid.UUID, opts Options) (*Report, error) {
	hc, err := h.store.GetHarvestedCollection(ctx, collectionID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading harvest settings: %w", err)
	}
	if hc == nil || !hc.IsHarvestable() {
		return nil, h.reject(ctx, hc, errorf(msgNotHarvestable))
	}
	mf, ok := h.cfg.MetadataFormat(hc.MetadataConfigID)
	if !ok || mf.Namespace == "" {
		return nil, h.reject(ctx, hc, errorf(msgNoDeclaration))
	}
	parser, err := h.formats.GetParser(mf.Crosswalk)
	if err != nil {
		return nil, h.reject(ctx, hc, &Error{Msg: fmt.Sprintf("no ingestion crosswalk for %s", hc.MetadataConfigID), Err: err})
	}
	client, err := h.client(hc.OaiSource)
	if err != nil {
		return nil, h.reject(ctx, hc, &Error{Msg: err.Error(), Err: err})
	}

	r := &run{
		hc:       hc,
		configID: hc.MetadataConfigID,
		parser:   parser,
		client:   client,
		opts:     opts,
		report:   newReport(hc, h.now()),
	}
	logger := slog.With("collection", collectionID, "source", hc.OaiSource, "set", hc.OaiSetID)
	logger.Info("harvest starting", "type", hc.HarvestType, "force", opts.ForceSynchronization)

	err = h.harvest(ctx, r, mf.Namespace, logger)
	r.report.Finished = h.now()
	metrics.HarvestDuration.Observe(r.report.Finished.Sub(r.report.Started).Seconds())

	switch {
	case err != nil:
		hc.HarvestStatus = content.StatusRetry
		hc.HarvestMessage = messageFatal + err.Error()
		r.report.Fatal = err
		logger.Error("harvest failed", "err", err)
	case r.report.noUpdates:
		hc.HarvestStatus = content.StatusReady
		hc.HarvestMessage = MessageNoRecordsMatch
		hc.LastHarvested = r.report.Started
	case len(r.report.Failures) > 0:
		hc.HarvestStatus = content.StatusRetry
		hc.HarvestMessage = fmt.Sprintf(messageSuccess+messageFailures, r.report.Imported, len(r.report.Failures))
	default:
		hc.HarvestStatus = content.StatusReady
		hc.HarvestMessage = fmt.Sprintf(messageSuccess, r.report.Imported)
		hc.LastHarvested = r.report.Started
	}
	metrics.HarvestRuns.WithLabelValues(hc.HarvestStatus.String()).Inc()

	// The caller's context may be the reason the harvest stopped; the final
	// state is still recorded.
	saveCtx := context.WithoutCancel(ctx)
	if saveErr := h.store.SaveHarvestedCollection(saveCtx, hc); saveErr != nil {
		err = errors.Join(err, fmt.Errorf("saving harvest status: %w", saveErr))
	}
	logger.Info("harvest finished", "status", hc.HarvestStatus, "message", hc.HarvestMessage,
		"took", r.report.Finished.Sub(r.report.Started))

	if r.report.NeedsAttention() {
		h.alerter.Harvest(saveCtx, notify.HarvestError{
			CollectionID: collectionID.String(),
			Date:         r.report.Finished,
			Status:       hc.HarvestStatus.String(),
			Message:      hc.HarvestMessage,
			Report:       r.report.String(),
		})
	}
	return r.report, err
}

// reject returns a settings error for hc. A QUEUED collection records it.
func (h *Harvester) reject(ctx context.Context, hc *content.HarvestedCollection, err *Error) error {
	if hc == nil || hc.HarvestStatus != content.StatusQueued {
		return err
	}
	hc.HarvestStatus = content.StatusUnknownError
	hc.HarvestMessage = err.Error()
	if saveErr := h.store.SaveHarvestedCollection(context.WithoutCancel(ctx), hc); saveErr != nil {
		return errors.Join(err, fmt.Errorf("saving harvest status: %w", saveErr))
	}
	slog.Warn("queued harvest rejected", "collection", hc.CollectionID, "err", err)
	return err
}

func (h *Harvester) harvest(ctx context.Context, r *run, namespace string, logger *slog.Logger) error {
	hc := r.hc

	identify, err := r.client.Identify(ctx)
	if err != nil {
		return unreachable(err)
	}
	granularity := oai.ParseGranularity(identify.Granularity)

	args := oai.ListArgs{
		Set:         hc.OaiSetID,
		Until:       r.report.Started,
		Granularity: granularity,
	}
	if !hc.LastHarvested.IsZero() && !r.opts.ForceSynchronization {
		args.From = hc.LastHarvested.Add(-h.cfg.TimePadding)
	}

	r.prefix, err = h.resolvePrefix(ctx, r.client, namespace)
	if err != nil {
		return unreachable(err)
	}
	if r.prefix == "" {
		return errorf("The OAI server does not support this metadata format: %s", namespace)
	}
	args.Prefix = r.prefix

	if hc.HarvestType > content.HarvestMetadata {
		r.orePrefix, err = h.resolvePrefix(ctx, r.client, h.cfg.OREFormat)
		if err != nil {
			return unreachable(err)
		}
		if r.orePrefix == "" {
			return errorf("The OAI server does not support ORE dissemination in the configured serialization format: %s", h.cfg.OREFormat)
		}
	}

	hc.HarvestStatus = content.StatusBusy
	hc.HarvestMessage = MessageInitializing
	hc.HarvestStartTime = r.report.Started
	if err := h.store.SaveHarvestedCollection(ctx, hc); err != nil {
		return fmt.Errorf("saving harvest status: %w", err)
	}

	logger.Debug("harvesting request parameters",
		"from", ProcessDate(args.From, 0), "until", ProcessDate(args.Until, 0), "prefix", args.Prefix)

	it, err := r.client.ListRecords(ctx, args)
	if err != nil {
		if oai.HasCode(err, oai.CodeNoRecordsMatch) {
			logger.Info("noRecordsMatch: OAI server did not contain any updates")
			r.report.noUpdates = true
			return nil
		}
		return listError(err)
	}

	deadline := r.report.Started.Add(h.cfg.ThreadTimeout)
	current := 0
	for {
		page, err := it.NextPage(ctx)
		if errors.Is(err, oai.ErrNoMore) {
			break
		}
		if err != nil {
			return listError(err)
		}
		if len(page) > 0 {
			logger.Info("found records to process", "count", len(page))
		}

		for i := range page {
			if ctx.Err() != nil {
				return &Error{Msg: fmt.Sprintf("Harvest process for %s interrupted", hc.CollectionID), Err: ctx.Err()}
			}
			if h.cfg.ThreadTimeout > 0 && h.now().After(deadline) {
				return errorf("Harvest timed out for collection %s", hc.CollectionID)
			}
			current++
			h.processRecord(ctx, r, &page[i])
		}

		hc.HarvestMessage = fmt.Sprintf(messageProgress, current, max(it.CompleteListSize, current))
		if err := h.store.SaveHarvestedCollection(ctx, hc); err != nil {
			return fmt.Errorf("saving harvest progress: %w", err)
		}
	}
	return nil
}

// listError renders protocol errors from ListRecords with every code the
// provider sent.
func listError(err error) error {
	var list oai.ErrorList
	if errors.As(err, &list) {
		return &Error{
			Msg: "OAI server response contains the following error codes: [" + strings.Join(list.Codes(), ", ") + "]",
			Err: err,
		}
	}
	return err
}

func unreachable(err error) error {
	return &Error{Msg: "The OAI server did not respond: " + err.Error(), Err: err}
}

// ProcessDate renders t in UTC, minus pad, in the OAI second granularity.
func ProcessDate(t time.Time, pad time.Duration) string {
	if t.IsZero() {
		return ""
	}
	return t.Add(-pad).UTC().Format("2006-01-02T15:04:05Z")
}

// download fetches a URL with the harvester's HTTP client.
func (h *Harvester) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := h.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("downloading %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("downloading %s: %w", url, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
