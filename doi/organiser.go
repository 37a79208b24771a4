package doi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/metrics"
	"github.com/lehigh-university-libraries/dspacekit/notify"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

// Process is a group of queued statuses handled by one organiser pass.
type Process struct {
	Name     string
	Statuses []content.DOIStatus
}

// Processes in the order List prints them.
var Processes = []Process{
	{Name: "reservation", Statuses: []content.DOIStatus{content.DOIToBeReserved}},
	{Name: "registration", Statuses: []content.DOIStatus{content.DOIToBeRegistered}},
	{Name: "update", Statuses: []content.DOIStatus{
		content.DOIUpdateBeforeRegistration,
		content.DOIUpdateRegistered,
		content.DOIUpdateReserved,
	}},
	{Name: "deletion", Statuses: []content.DOIStatus{content.DOIToBeDeleted}},
}

// Summary counts the outcome of a batch pass.
type Summary struct {
	Processed int
	Failed    int
}

// Organiser sends queued DOI changes to the agency. Failures are logged,
// mailed to the alert recipient and, unless Quiet, reported on Err.
type Organiser struct {
	store    *store.Store
	provider *Provider
	alerter  *notify.Alerter
	now      func() time.Time

	Quiet bool
	Out   io.Writer
	Err   io.Writer
}

// NewOrganiser returns an Organiser printing to stdout and stderr.
func NewOrganiser(s *store.Store, p *Provider, alerter *notify.Alerter) *Organiser {
	return &Organiser{
		store:    s,
		provider: p,
		alerter:  alerter,
		now:      time.Now,
		Out:      os.Stdout,
		Err:      os.Stderr,
	}
}

func (o *Organiser) printf(format string, args ...any) {
	if !o.Quiet {
		fmt.Fprintf(o.Out, format, args...)
	}
}

func (o *Organiser) errorf(format string, args ...any) {
	if !o.Quiet {
		fmt.Fprintf(o.Err, format, args...)
	}
}

// List prints the DOIs queued for a process.
func (o *Organiser) List(ctx context.Context, p Process) error {
	rows, err := o.store.ListDOIsByStatus(ctx, p.Statuses...)
	if err != nil {
		return fmt.Errorf("listing DOIs queued for %s: %w", p.Name, err)
	}
	if len(rows) == 0 {
		fmt.Fprintf(o.Out, "There are no DOIs queued for %s.\n\n", p.Name)
		return nil
	}
	fmt.Fprintf(o.Out, "DOIs queued for %s: \n", p.Name)
	for _, row := range rows {
		handle := ""
		if row.HasItem() {
			if item, err := o.store.GetItem(ctx, row.ItemID); err == nil {
				handle = item.Handle
			}
		}
		if handle != "" {
			fmt.Fprintf(o.Out, "    %s%s (belongs to item with handle %s)\n", Scheme, row.DOI, handle)
		} else {
			fmt.Fprintf(o.Out, "    %s%s (cannot determine handle of assigned object)\n", Scheme, row.DOI)
		}
	}
	fmt.Fprintln(o.Out)
	return nil
}

// ListAll prints every process queue.
func (o *Organiser) ListAll(ctx context.Context) error {
	for _, p := range Processes {
		if err := o.List(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (o *Organiser) item(ctx context.Context, row *content.DOI) (*content.Item, error) {
	if !row.HasItem() {
		return nil, fmt.Errorf("%s%s is not bound to an item", Scheme, row.DOI)
	}
	item, err := o.store.GetItem(ctx, row.ItemID)
	if err != nil {
		return nil, fmt.Errorf("loading item %s of %s%s: %w", row.ItemID, Scheme, row.DOI, err)
	}
	return item, nil
}

// online runs one agency operation for row and handles its failure.
func (o *Organiser) online(ctx context.Context, action string, row *content.DOI, fn func(*content.Item, string) error) error {
	doi := Scheme + row.DOI
	item, err := o.item(ctx, row)
	if err != nil {
		metrics.DOIOperations.WithLabelValues(action, metrics.Outcome(err)).Inc()
		o.errorf("It wasn't possible to %s this identifier: %s\n", verbs[action], doi)
		return err
	}
	err = fn(item, doi)
	metrics.DOIOperations.WithLabelValues(action, metrics.Outcome(err)).Inc()
	if err != nil {
		o.fail(ctx, action, item.ID.String(), doi, err)
		return err
	}
	slog.Info("DOI "+verbs[action]+" succeeded", "doi", doi, "item", item.ID)
	return nil
}

var verbs = map[string]string{
	"Register": "register",
	"Reserve":  "reserve",
	"Update":   "update",
	"Delete":   "delete",
}

func (o *Organiser) fail(ctx context.Context, action, objectID, doi string, err error) {
	reason := CodeToString(CodeOf(err))
	slog.Error("DOI maintenance failed", "action", action, "doi", doi, "code", reason, "err", err)
	o.alerter.DOI(ctx, notify.DOIError{
		Action:     action,
		Date:       o.now(),
		ObjectType: "Item",
		ObjectID:   objectID,
		DOI:        doi,
		Reason:     reason,
	})
	o.errorf("It wasn't possible to %s this identifier: %s\n", verbs[action], doi)
}

// Register registers row's DOI online.
func (o *Organiser) Register(ctx context.Context, row *content.DOI) error {
	err := o.online(ctx, "Register", row, func(item *content.Item, doi string) error {
		return o.provider.RegisterOnline(ctx, item, doi)
	})
	if err == nil {
		o.printf("This identifier: %s%s is successfully registered.\n", Scheme, row.DOI)
	}
	return err
}

// Reserve reserves row's DOI online.
func (o *Organiser) Reserve(ctx context.Context, row *content.DOI) error {
	err := o.online(ctx, "Reserve", row, func(item *content.Item, doi string) error {
		return o.provider.ReserveOnline(ctx, item, doi)
	})
	if err == nil {
		o.printf("This identifier : %s%s is successfully reserved.\n", Scheme, row.DOI)
	}
	return err
}

// Update sends the current metadata of row's item.
func (o *Organiser) Update(ctx context.Context, row *content.DOI) error {
	err := o.online(ctx, "Update", row, func(item *content.Item, doi string) error {
		return o.provider.UpdateMetadataOnline(ctx, item, doi)
	})
	if err == nil {
		o.printf("Successfully updated metadata of DOI %s%s.\n", Scheme, row.DOI)
	}
	return err
}

// Delete deletes a DOI queued for deletion online. identifier must be a
// DOI known to the database.
func (o *Organiser) Delete(ctx context.Context, identifier string) error {
	doi, err := FormatIdentifier(identifier)
	if err != nil {
		o.errorf("It wasn't possible to detect this identifier: %s\n", identifier)
		return err
	}
	row, err := o.store.GetDOI(ctx, Bare(doi))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("you specified a valid DOI, %s, that is not stored in the database", doi)
	}
	if err != nil {
		return err
	}
	err = o.provider.DeleteOnline(ctx, doi)
	metrics.DOIOperations.WithLabelValues("Delete", metrics.Outcome(err)).Inc()
	if err != nil {
		objectID := ""
		if row.HasItem() {
			objectID = row.ItemID.String()
		}
		o.fail(ctx, "Delete", objectID, doi, err)
		return err
	}
	o.printf("It was possible to delete this identifier: %s online.\n", doi)
	return nil
}

func (o *Organiser) batch(ctx context.Context, status content.DOIStatus, what string, fn func(*content.DOI) error, more ...content.DOIStatus) (Summary, error) {
	rows, err := o.store.ListDOIsByStatus(ctx, append([]content.DOIStatus{status}, more...)...)
	if err != nil {
		return Summary{}, err
	}
	if len(rows) == 0 {
		o.errorf("There are no objects in the database %s.\n", what)
	}
	var sum Summary
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Processed++
		if err := fn(row); err != nil {
			sum.Failed++
		}
	}
	return sum, nil
}

// RegisterAll registers every DOI queued for registration.
func (o *Organiser) RegisterAll(ctx context.Context) (Summary, error) {
	return o.batch(ctx, content.DOIToBeRegistered, "that could be registered",
		func(row *content.DOI) error { return o.Register(ctx, row) })
}

// ReserveAll reserves every DOI queued for reservation.
func (o *Organiser) ReserveAll(ctx context.Context) (Summary, error) {
	return o.batch(ctx, content.DOIToBeReserved, "that could be reserved",
		func(row *content.DOI) error { return o.Reserve(ctx, row) })
}

// UpdateAll sends every queued metadata update.
func (o *Organiser) UpdateAll(ctx context.Context) (Summary, error) {
	return o.batch(ctx, content.DOIUpdateBeforeRegistration, "whose metadata needs an update",
		func(row *content.DOI) error { return o.Update(ctx, row) },
		content.DOIUpdateReserved, content.DOIUpdateRegistered)
}

// DeleteAll deletes every DOI queued for deletion.
func (o *Organiser) DeleteAll(ctx context.Context) (Summary, error) {
	return o.batch(ctx, content.DOIToBeDeleted, "that could be deleted",
		func(row *content.DOI) error { return o.Delete(ctx, Scheme+row.DOI) })
}

// ResolveToDOI finds the DOI row for an item UUID, a handle or a DOI, in
// that order. Items without a DOI get one minted.
func (o *Organiser) ResolveToDOI(ctx context.Context, identifier string) (*content.DOI, error) {
	if identifier == "" {
		return nil, errors.New("identifier is empty")
	}

	if id, err := uuid.Parse(identifier); err == nil && len(identifier) == 36 {
		item, err := o.store.GetItem(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("you specified an item id, %s, that is not stored in the database", identifier)
		}
		if err != nil {
			return nil, err
		}
		return o.rowFor(ctx, item)
	}

	target, err := o.store.ResolveHandle(ctx, identifier)
	switch {
	case err == nil:
		if target.Type != store.ResourceItem {
			return nil, fmt.Errorf("handle %s identifies a %s; DOIs are supported for items only", identifier, target.Type)
		}
		item, err := o.store.GetItem(ctx, target.ID)
		if err != nil {
			return nil, err
		}
		return o.rowFor(ctx, item)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	doi, err := FormatIdentifier(identifier)
	if err != nil {
		o.errorf("It wasn't possible to detect this identifier: %s\n", identifier)
		return nil, err
	}
	row, err := o.store.GetDOI(ctx, Bare(doi))
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("you specified a valid DOI, %s, that is not stored in the database", doi)
	}
	return row, err
}

func (o *Organiser) rowFor(ctx context.Context, item *content.Item) (*content.DOI, error) {
	row, err := activeRow(ctx, o.store, item.ID)
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	doi, err := o.provider.Mint(ctx, item)
	if err != nil {
		return nil, err
	}
	return o.store.GetDOI(ctx, Bare(doi))
}
