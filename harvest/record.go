package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/format"
	"github.com/lehigh-university-libraries/dspacekit/format/ore"
	"github.com/lehigh-university-libraries/dspacekit/metrics"
	"github.com/lehigh-university-libraries/dspacekit/oai"
	"github.com/lehigh-university-libraries/dspacekit/store"
	"github.com/lehigh-university-libraries/dspacekit/validate"
)

// OREBitstream is the name of the stored resource map.
const OREBitstream = "ORE.xml"

// Record outcomes, also used as metric labels.
const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeDeleted = "deleted"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// processRecord imports one record and files the result in the report.
func (h *Harvester) processRecord(ctx context.Context, r *run, rec *oai.Record) {
	oaiID := strings.TrimSpace(rec.Header.Identifier)
	logger := slog.With("collection", r.hc.CollectionID, "oai_id", oaiID)

	outcome, result, err := h.importRecord(ctx, r, rec, logger)
	if err != nil {
		logger.Error("record import failed", "err", err)
		r.report.fail(oaiID, err)
		metrics.HarvestedRecords.WithLabelValues(outcomeFailed).Inc()
		return
	}
	r.report.record(outcome)
	metrics.HarvestedRecords.WithLabelValues(outcome).Inc()
	if result != nil && (!result.IsValid() || result.HasWarnings()) {
		r.report.invalid(oaiID, result)
		if !result.IsValid() {
			metrics.InvalidRecords.Inc()
		}
	}
}

func (h *Harvester) importRecord(ctx context.Context, r *run, rec *oai.Record, logger *slog.Logger) (string, *validate.Result, error) {
	oaiID := strings.TrimSpace(rec.Header.Identifier)
	if oaiID == "" {
		return "", nil, errors.New("record header has no identifier")
	}

	existing, hi, err := h.findExisting(ctx, r, oaiID)
	if err != nil {
		return "", nil, err
	}

	if rec.Header.IsDeleted() {
		logger.Info("record marked as deleted on the OAI server")
		if existing == nil {
			return outcomeSkipped, nil, nil
		}
		err := h.store.InTx(ctx, func(tx *store.Store) error {
			return tx.DeleteItem(ctx, existing.ID)
		})
		if err != nil {
			return "", nil, fmt.Errorf("deleting item %s: %w", existing.ID, err)
		}
		return outcomeDeleted, nil, nil
	}

	if existing != nil && hi != nil && !r.opts.ForceSynchronization {
		datestamp, err := oai.ParseDatestamp(rec.Header.Datestamp)
		if err == nil && !hi.HarvestDate.IsZero() && datestamp.Before(hi.HarvestDate) {
			logger.Info("item was harvested more recently than the last update reported by the OAI server; skipping",
				"item", existing.ID)
			return outcomeSkipped, nil, nil
		}
	}

	// Remote documents are fetched before the transaction opens.
	var oreXML string
	var files []resource
	if r.hc.HarvestType > content.HarvestMetadata {
		oreXML, err = h.fetchResourceMap(ctx, r, oaiID)
		if err != nil {
			return "", nil, err
		}
		if r.hc.HarvestType == content.HarvestFull {
			files, err = h.fetchResources(ctx, oreXML)
			if err != nil {
				return "", nil, err
			}
		}
	}

	item := existing
	if item == nil {
		item = content.NewItem(r.hc.CollectionID)
	}
	if err := h.crosswalk(r, rec, item); err != nil {
		return "", nil, err
	}
	if oreXML != "" {
		if r.hc.HarvestType == content.HarvestFull {
			item.Bundles = nil
			for _, f := range files {
				item.EnsureBundle(f.bundle).Put(f.bitstream)
			}
		}
		item.EnsureBundle(content.BundleORE).Put(content.NewBitstream(OREBitstream, "text/xml", oaiID, []byte(oreXML)))
	}

	result := &validate.Result{}
	if h.cfg.ValidateRecords {
		result = h.validator.Validate(r.configID, item)
	}

	harvested := &content.HarvestedItem{
		ItemID:       item.ID,
		CollectionID: r.hc.CollectionID,
		OaiID:        oaiID,
		HarvestDate:  h.now(),
	}

	if existing != nil {
		err = h.store.InTx(ctx, func(tx *store.Store) error {
			if item.InArchive || result.IsValid() {
				if err := h.install(ctx, tx, item, ""); err != nil {
					return err
				}
			}
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
			if item.Handle != "" {
				if err := tx.CreateHandle(ctx, item.Handle, store.ResourceItem, item.ID); err != nil {
					return err
				}
			}
			return tx.SaveHarvestedItem(ctx, harvested)
		})
		if err != nil {
			return "", nil, fmt.Errorf("updating item %s: %w", item.ID, err)
		}
		return outcomeUpdated, result, nil
	}

	handle := ExtractHandle(item, h.cfg.AcceptedHandleServers, h.cfg.RejectedHandlePrefixes)
	if handle != "" {
		_, err := h.store.ResolveHandle(ctx, handle)
		if err == nil {
			return "", nil, errorf("Handle collision: attempted to re-assign handle '%s' to an incoming harvested item '%s'.", handle, oaiID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", nil, err
		}
	}

	err = h.store.InTx(ctx, func(tx *store.Store) error {
		if result.IsValid() {
			if err := h.install(ctx, tx, item, handle); err != nil {
				return err
			}
		}
		if err := tx.CreateItem(ctx, item); err != nil {
			return err
		}
		return tx.SaveHarvestedItem(ctx, harvested)
	})
	if err != nil {
		return "", nil, fmt.Errorf("creating item: %w", err)
	}
	if !result.IsValid() {
		logger.Warn("record failed validation; left in workspace", "item", item.ID, "errors", len(result.Errors))
	}
	return outcomeCreated, result, nil
}

// findExisting locates the local copy of a record by OAI identifier, then
// by source id.
func (h *Harvester) findExisting(ctx context.Context, r *run, oaiID string) (*content.Item, *content.HarvestedItem, error) {
	hi, err := h.store.GetHarvestedItemByOaiID(ctx, oaiID, r.hc.CollectionID)
	switch {
	case err == nil:
		item, err := h.store.GetItem(ctx, hi.ItemID)
		if err == nil {
			return item, hi, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
	case !errors.Is(err, store.ErrNotFound):
		return nil, nil, err
	}

	if h.cfg.SourceIDField == "" {
		return nil, nil, nil
	}
	sourceID := SourceID(oaiID)
	if sourceID == "" {
		return nil, nil, nil
	}
	items, err := h.store.FindItemsByMetadata(ctx, h.cfg.SourceIDField, sourceID, r.hc.CollectionID)
	if err != nil {
		return nil, nil, err
	}
	if len(items) == 0 {
		return nil, nil, nil
	}
	hi, err = h.store.GetHarvestedItem(ctx, items[0].ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, nil, err
	}
	return items[0], hi, nil
}

// crosswalk replaces the metadata of item with the record's.
func (h *Harvester) crosswalk(r *run, rec *oai.Record, item *content.Item) error {
	oaiID := strings.TrimSpace(rec.Header.Identifier)
	payload := rec.MetadataXML()
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("record %s has no metadata", oaiID)
	}

	payload, err := h.transform.PreTransform(r.configID, payload)
	if err != nil {
		return err
	}
	parsed, err := r.parser.Parse(strings.NewReader(payload), &format.ParseOptions{SourceName: oaiID})
	if err != nil {
		return fmt.Errorf("crosswalk %s: %w", r.parser.Name(), err)
	}
	if len(parsed) == 0 {
		return fmt.Errorf("crosswalk %s found no metadata in record %s", r.parser.Name(), oaiID)
	}

	// Accession dates belong to the local copy and survive re-harvests.
	var kept []content.MetadataValue
	for _, field := range []string{"dc.date.accessioned", "dc.date.available"} {
		kept = append(kept, item.GetMetadata(field)...)
	}
	item.Metadata = nil
	for _, mv := range kept {
		item.AppendValue(mv)
	}
	for _, mv := range parsed[0].Metadata {
		item.AppendValue(mv)
	}
	h.transform.PostTransform(r.configID, item)

	if h.cfg.SourceIDField != "" {
		if sourceID := SourceID(oaiID); sourceID != "" {
			item.ClearMetadata(h.cfg.SourceIDField)
			item.AddMetadata(h.cfg.SourceIDField, "", sourceID)
		}
	}
	item.AddMetadata("dc.description.provenance", "en", fmt.Sprintf("Harvested from %s (%s) on %s",
		r.client.BaseURL(), oaiID, h.now().Format("2006-01-02T15:04:05Z")))
	return nil
}

// install archives item under handle, minting one when handle is empty.
func (h *Harvester) install(ctx context.Context, tx *store.Store, item *content.Item, handle string) error {
	if item.Handle == "" {
		if handle == "" {
			minted, err := tx.MintHandle(ctx, h.handles.Prefix)
			if err != nil {
				return err
			}
			handle = minted
		}
		item.Handle = handle
	}
	item.InArchive = true

	now := h.now().Format("2006-01-02T15:04:05Z")
	if len(item.GetMetadata("dc.date.accessioned")) == 0 {
		item.AddMetadata("dc.date.accessioned", "", now)
	}
	if len(item.GetMetadata("dc.date.available")) == 0 {
		item.AddMetadata("dc.date.available", "", now)
	}
	uri := strings.TrimSuffix(h.handles.ResolverURL, "/") + "/" + item.Handle
	for _, v := range item.Values("dc.identifier.uri") {
		if v == uri {
			return nil
		}
	}
	item.AddMetadata("dc.identifier.uri", "", uri)
	return nil
}

func (h *Harvester) fetchResourceMap(ctx context.Context, r *run, oaiID string) (string, error) {
	rec, err := r.client.GetRecord(ctx, oaiID, r.orePrefix)
	if err != nil {
		var list oai.ErrorList
		if errors.As(err, &list) {
			return "", fmt.Errorf("OAI server returned the following errors during GetRecord execution: [%s]",
				strings.Join(list.Codes(), ", "))
		}
		return "", err
	}
	oreXML := strings.TrimSpace(rec.MetadataXML())
	if oreXML == "" {
		return "", fmt.Errorf("record %s has no ORE resource map", oaiID)
	}
	return oreXML, nil
}

type resource struct {
	bundle    string
	bitstream content.Bitstream
}

// fetchResources downloads every resource aggregated by the map.
func (h *Harvester) fetchResources(ctx context.Context, oreXML string) ([]resource, error) {
	rm, err := ore.Parse(strings.NewReader(oreXML))
	if err != nil {
		return nil, fmt.Errorf("reading resource map: %w", err)
	}
	var files []resource
	for _, res := range rm.Resources {
		data, contentType, err := h.download(ctx, res.URL)
		if err != nil {
			return nil, err
		}
		mimeType := res.MimeType
		if mimeType == "" && contentType != "" {
			mimeType, _, _ = mime.ParseMediaType(contentType)
		}
		if mimeType == "" {
			mimeType = mime.TypeByExtension(path.Ext(res.Title))
		}
		bundle := res.Bundle
		if bundle == "" {
			bundle = content.BundleOriginal
		}
		files = append(files, resource{
			bundle:    bundle,
			bitstream: content.NewBitstream(res.Title, mimeType, res.URL, data),
		})
	}
	return files, nil
}

// ExtractHandle looks for a handle URL among the dc.identifier values, on
// one of the accepted handle servers and outside the rejected prefixes.
// It returns "" when none is found.
func ExtractHandle(item *content.Item, acceptedServers, rejectedPrefixes []string) string {
	if len(acceptedServers) == 0 {
		acceptedServers = []string{"hdl.handle.net"}
	}
	for _, mv := range item.GetMetadata("dc.identifier.*") {
		// scheme: "" server prefix suffix
		//   https://hdl.handle.net/1234/12
		pieces := strings.Split(strings.TrimSpace(mv.Value), "/")
		if len(pieces) != 5 || pieces[1] != "" {
			continue
		}
		if !contains(acceptedServers, pieces[2]) || contains(rejectedPrefixes, pieces[3]) {
			continue
		}
		if pieces[3] == "" || pieces[4] == "" {
			continue
		}
		return pieces[3] + "/" + pieces[4]
	}
	return ""
}

// SourceID derives the cross-repository id of a record from its OAI
// identifier: oai:<repo>:<set>/<local id> gives <repo>::<local id>.
func SourceID(oaiID string) string {
	parts := strings.SplitN(oaiID, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return ""
	}
	local := parts[2]
	if _, rest, found := strings.Cut(local, "/"); found && rest != "" {
		local = rest
	}
	return parts[1] + "::" + local
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
