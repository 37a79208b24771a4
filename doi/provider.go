package doi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

// MetadataField holds the resolver URL of an item's registered DOI.
const MetadataField = "dc.identifier.doi"

// Provider mints DOIs and moves DOI rows through their statuses. The queue
// operations only change statuses; the *Online operations talk to the
// agency through the Connector.
type Provider struct {
	store     *store.Store
	connector Connector
	cfg       config.DOIConfig
}

// NewProvider returns a Provider minting under cfg.Prefix and cfg.Namespace.
func NewProvider(s *store.Store, c Connector, cfg config.DOIConfig) *Provider {
	return &Provider{store: s, connector: c, cfg: cfg}
}

// URL renders doi as a resolver link.
func (p *Provider) URL(doi string) string {
	resolver := p.cfg.ResolverURL
	if resolver == "" {
		resolver = "https://doi.org/"
	}
	return strings.TrimSuffix(resolver, "/") + "/" + Bare(doi)
}

func (p *Provider) checkPrefix(doi string) error {
	if p.cfg.Prefix == "" {
		return errors.New("no DOI prefix configured")
	}
	if !strings.HasPrefix(strings.ToUpper(Bare(doi)), strings.ToUpper(p.cfg.Prefix)+"/") {
		return newError(ForeignDOI, "%s does not use prefix %s", doi, p.cfg.Prefix)
	}
	return nil
}

func isDeleted(row *content.DOI) bool {
	return row.Status == content.DOIDeleted || row.Status == content.DOIToBeDeleted
}

// activeRow returns the item's DOI row unless it is deleted or about to be.
func activeRow(ctx context.Context, s *store.Store, item uuid.UUID) (*content.DOI, error) {
	row, err := s.GetDOIByItem(ctx, item)
	if err != nil {
		return nil, err
	}
	if isDeleted(row) {
		return nil, store.ErrNotFound
	}
	return row, nil
}

// Lookup returns the active DOI of an item, formatted.
func (p *Provider) Lookup(ctx context.Context, item uuid.UUID) (string, error) {
	row, err := activeRow(ctx, p.store, item)
	if err != nil {
		return "", err
	}
	return Scheme + row.DOI, nil
}

// Mint returns the item's DOI, creating a row when the item has none. A
// DOI under the configured prefix already in the item's metadata is
// adopted; otherwise the next prefix/namespace<n> is used.
func (p *Provider) Mint(ctx context.Context, item *content.Item) (string, error) {
	if p.cfg.Prefix == "" {
		return "", errors.New("no DOI prefix configured")
	}
	var minted string
	err := p.store.InTx(ctx, func(tx *store.Store) error {
		row, err := activeRow(ctx, tx, item.ID)
		if err == nil {
			minted = Scheme + row.DOI
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		doi := p.fromMetadata(item)
		if doi == "" {
			base := p.cfg.Prefix + "/" + p.cfg.Namespace
			n, err := tx.NextDOISuffix(ctx, base)
			if err != nil {
				return err
			}
			doi = fmt.Sprintf("%s%s%d", Scheme, base, n)
		}
		row, err = p.loadOrCreate(ctx, tx, item.ID, doi)
		if err != nil {
			return err
		}
		minted = Scheme + row.DOI
		return nil
	})
	if err != nil {
		return "", err
	}
	slog.Debug("minted DOI", "item", item.ID, "doi", minted)
	return minted, nil
}

func (p *Provider) fromMetadata(item *content.Item) string {
	for _, v := range item.Values(MetadataField) {
		doi, err := FormatIdentifier(v)
		if err != nil {
			continue
		}
		if p.checkPrefix(doi) == nil {
			return doi
		}
	}
	return ""
}

// loadOrCreate returns the row for doi bound to item, creating or binding
// it as needed. A row bound to another item is a MISMATCH.
func (p *Provider) loadOrCreate(ctx context.Context, tx *store.Store, item uuid.UUID, doi string) (*content.DOI, error) {
	row, err := tx.GetDOI(ctx, Bare(doi))
	switch {
	case errors.Is(err, store.ErrNotFound):
		row = &content.DOI{DOI: strings.ToUpper(Bare(doi)), ItemID: item, Status: content.DOIStatusNone}
		if err := tx.CreateDOI(ctx, row); err != nil {
			return nil, err
		}
		return row, nil
	case err != nil:
		return nil, err
	}
	if row.HasItem() && row.ItemID != item {
		return nil, newError(Mismatch, "%s is bound to item %s, not %s", doi, row.ItemID, item)
	}
	if !row.HasItem() {
		row.ItemID = item
		if err := tx.UpdateDOI(ctx, row); err != nil {
			return nil, err
		}
	}
	return row, nil
}

// queue loads or creates the row and applies next to its status.
func (p *Provider) queue(ctx context.Context, item *content.Item, doi string, next func(content.DOIStatus) content.DOIStatus) (string, error) {
	doi, err := FormatIdentifier(doi)
	if err != nil {
		return "", err
	}
	if err := p.checkPrefix(doi); err != nil {
		return "", err
	}
	err = p.store.InTx(ctx, func(tx *store.Store) error {
		row, err := p.loadOrCreate(ctx, tx, item.ID, doi)
		if err != nil {
			return err
		}
		if isDeleted(row) {
			return newError(IsDeleted, "%s was deleted and cannot be restored", doi)
		}
		status := next(row.Status)
		if status == row.Status {
			return nil
		}
		slog.Debug("queued DOI", "doi", doi, "from", row.Status, "to", status)
		row.Status = status
		return tx.UpdateDOI(ctx, row)
	})
	return doi, err
}

// Register queues doi for registration.
func (p *Provider) Register(ctx context.Context, item *content.Item, doi string) (string, error) {
	return p.queue(ctx, item, doi, func(s content.DOIStatus) content.DOIStatus {
		if s == content.DOIIsRegistered {
			return s
		}
		return content.DOIToBeRegistered
	})
}

// Reserve queues doi for reservation. DOIs already on their way to the
// agency are left alone.
func (p *Provider) Reserve(ctx context.Context, item *content.Item, doi string) (string, error) {
	return p.queue(ctx, item, doi, func(s content.DOIStatus) content.DOIStatus {
		if s == content.DOIStatusNone {
			return content.DOIToBeReserved
		}
		return s
	})
}

// UpdateMetadata queues a metadata update for doi.
func (p *Provider) UpdateMetadata(ctx context.Context, item *content.Item, doi string) (string, error) {
	return p.queue(ctx, item, doi, func(s content.DOIStatus) content.DOIStatus {
		switch s {
		case content.DOIIsRegistered:
			return content.DOIUpdateRegistered
		case content.DOIToBeRegistered:
			return content.DOIUpdateBeforeRegistration
		case content.DOIIsReserved:
			return content.DOIUpdateReserved
		}
		return s
	})
}

// row loads the row for an online operation on item.
func (p *Provider) row(ctx context.Context, item *content.Item, doi string) (string, *content.DOI, error) {
	doi, err := FormatIdentifier(doi)
	if err != nil {
		return "", nil, err
	}
	if err := p.checkPrefix(doi); err != nil {
		return "", nil, err
	}
	row, err := p.store.GetDOI(ctx, Bare(doi))
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, newError(DoesNotExist, "%s is not stored in the database", doi)
	}
	if err != nil {
		return "", nil, err
	}
	if isDeleted(row) {
		return "", nil, newError(IsDeleted, "%s was deleted", doi)
	}
	if item != nil && row.HasItem() && row.ItemID != item.ID {
		return "", nil, newError(Mismatch, "%s is bound to item %s, not %s", doi, row.ItemID, item.ID)
	}
	return doi, row, nil
}

func (p *Provider) setStatus(ctx context.Context, row *content.DOI, status content.DOIStatus) error {
	row.Status = status
	return p.store.UpdateDOI(ctx, row)
}

// ReserveOnline sends the item's metadata for doi to the agency.
func (p *Provider) ReserveOnline(ctx context.Context, item *content.Item, doi string) error {
	doi, row, err := p.row(ctx, item, doi)
	if err != nil {
		return err
	}
	if err := p.connector.Reserve(ctx, item, doi); err != nil {
		return err
	}
	if row.Status == content.DOIIsRegistered {
		return nil
	}
	return p.setStatus(ctx, row, content.DOIIsReserved)
}

// RegisterOnline registers doi with the agency, reserving it first when
// the agency asks for it, and records the DOI in the item's metadata.
func (p *Provider) RegisterOnline(ctx context.Context, item *content.Item, doi string) error {
	doi, row, err := p.row(ctx, item, doi)
	if err != nil {
		return err
	}
	err = p.connector.Register(ctx, item, doi)
	if CodeOf(err) == RegisterFirst {
		slog.Info("agency asked to reserve before registering", "doi", doi)
		if err := p.connector.Reserve(ctx, item, doi); err != nil {
			return err
		}
		err = p.connector.Register(ctx, item, doi)
	}
	if err != nil {
		return err
	}

	link := p.URL(doi)
	return p.store.InTx(ctx, func(tx *store.Store) error {
		if !contains(item.Values(MetadataField), link) {
			item.AddMetadata(MetadataField, "", link)
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}
		row.Status = content.DOIIsRegistered
		return tx.UpdateDOI(ctx, row)
	})
}

// UpdateMetadataOnline sends the item's current metadata for doi. A DOI
// updated before registration goes back to TO_BE_REGISTERED; the
// registration carries the new metadata.
func (p *Provider) UpdateMetadataOnline(ctx context.Context, item *content.Item, doi string) error {
	doi, row, err := p.row(ctx, item, doi)
	if err != nil {
		return err
	}
	switch row.Status {
	case content.DOIUpdateBeforeRegistration:
		return p.setStatus(ctx, row, content.DOIToBeRegistered)
	case content.DOIStatusNone, content.DOIToBeRegistered, content.DOIToBeReserved:
		return newError(RegisterFirst, "%s is not known to the agency yet", doi)
	}
	if err := p.connector.Update(ctx, item, doi); err != nil {
		return err
	}
	switch row.Status {
	case content.DOIUpdateRegistered:
		return p.setStatus(ctx, row, content.DOIIsRegistered)
	case content.DOIUpdateReserved:
		return p.setStatus(ctx, row, content.DOIIsReserved)
	}
	return nil
}

// Delete queues doi for deletion and removes it from the item's metadata.
// DOIs never sent to the agency are deleted at once.
func (p *Provider) Delete(ctx context.Context, item *content.Item, doi string) error {
	doi, err := FormatIdentifier(doi)
	if err != nil {
		return err
	}
	return p.store.InTx(ctx, func(tx *store.Store) error {
		row, err := tx.GetDOI(ctx, Bare(doi))
		if errors.Is(err, store.ErrNotFound) {
			return newError(DoesNotExist, "%s is not stored in the database", doi)
		}
		if err != nil {
			return err
		}
		if row.HasItem() && row.ItemID != item.ID {
			return newError(Mismatch, "%s is bound to item %s, not %s", doi, row.ItemID, item.ID)
		}

		if removeDOIValue(item, doi) {
			if err := tx.UpdateItem(ctx, item); err != nil {
				return err
			}
		}

		switch row.Status {
		case content.DOIDeleted, content.DOIToBeDeleted:
			return nil
		case content.DOIStatusNone, content.DOIToBeRegistered, content.DOIToBeReserved:
			row.Status = content.DOIDeleted
		default:
			row.Status = content.DOIToBeDeleted
		}
		return tx.UpdateDOI(ctx, row)
	})
}

// DeleteOnline asks the agency to delete a DOI queued for deletion.
func (p *Provider) DeleteOnline(ctx context.Context, doi string) error {
	doi, err := FormatIdentifier(doi)
	if err != nil {
		return err
	}
	row, err := p.store.GetDOI(ctx, Bare(doi))
	if errors.Is(err, store.ErrNotFound) {
		return newError(DoesNotExist, "%s is not stored in the database", doi)
	}
	if err != nil {
		return err
	}
	switch row.Status {
	case content.DOIDeleted:
		return nil
	case content.DOIToBeDeleted:
	default:
		return newError(BadRequest, "%s is not queued for deletion", doi)
	}
	if err := p.connector.Delete(ctx, doi); err != nil {
		return err
	}
	return p.setStatus(ctx, row, content.DOIDeleted)
}

// removeDOIValue drops every dc.identifier.doi value naming doi.
func removeDOIValue(item *content.Item, doi string) bool {
	kept := item.Metadata[:0]
	removed := false
	for _, mv := range item.Metadata {
		if mv.Matches(MetadataField) {
			if f, err := FormatIdentifier(mv.Value); err == nil && strings.EqualFold(f, doi) {
				removed = true
				continue
			}
		}
		kept = append(kept, mv)
	}
	item.Metadata = kept
	if removed {
		item.RenumberPlaces()
	}
	return removed
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
