package doi

import (
	"context"
	"errors"
	"testing"

	"github.com/lehigh-university-libraries/dspacekit/config"
	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

// fakeConnector records calls and fails the ones listed in errs.
type fakeConnector struct {
	calls    []string
	errs     map[string]error
	reserved map[string]bool
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{errs: map[string]error{}, reserved: map[string]bool{}}
}

func (f *fakeConnector) call(name, doi string) error {
	f.calls = append(f.calls, name+" "+doi)
	err := f.errs[name]
	delete(f.errs, name)
	return err
}

func (f *fakeConnector) IsReserved(_ context.Context, doi string) (bool, error) {
	return f.reserved[doi], nil
}

func (f *fakeConnector) IsRegistered(context.Context, string) (bool, error) {
	return false, nil
}

func (f *fakeConnector) Reserve(_ context.Context, _ *content.Item, doi string) error {
	if err := f.call("reserve", doi); err != nil {
		return err
	}
	f.reserved[doi] = true
	return nil
}

func (f *fakeConnector) Register(_ context.Context, _ *content.Item, doi string) error {
	if !f.reserved[doi] {
		f.calls = append(f.calls, "register "+doi)
		return newError(RegisterFirst, "reserve first")
	}
	return f.call("register", doi)
}

func (f *fakeConnector) Update(_ context.Context, _ *content.Item, doi string) error {
	return f.call("update", doi)
}

func (f *fakeConnector) Delete(_ context.Context, doi string) error {
	return f.call("delete", doi)
}

type providerFixture struct {
	store     *store.Store
	connector *fakeConnector
	provider  *Provider
	item      *content.Item
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	col := &content.Collection{Name: "Datasets"}
	if err := s.CreateCollection(ctx, col); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	item := content.NewItem(col.ID)
	item.Handle = "123456789/5"
	item.InArchive = true
	item.AddMetadata("dc.title", "en", "A Dataset")
	if err := s.CreateItem(ctx, item); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}

	conn := newFakeConnector()
	cfg := config.Default().DOI
	return &providerFixture{store: s, connector: conn, provider: NewProvider(s, conn, cfg), item: item}
}

func (f *providerFixture) status(t *testing.T, doi string) content.DOIStatus {
	t.Helper()
	row, err := f.store.GetDOI(context.Background(), Bare(doi))
	if err != nil {
		t.Fatalf("GetDOI(%s): %v", doi, err)
	}
	return row.Status
}

func TestMint(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)

	doi, err := f.provider.Mint(ctx, f.item)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if want := "doi:10.5072/DSPACE-1"; doi != want {
		t.Errorf("got %q, want %q", doi, want)
	}
	again, err := f.provider.Mint(ctx, f.item)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if again != doi {
		t.Errorf("minting twice: got %q, want %q", again, doi)
	}
	if got := f.status(t, doi); got != content.DOIStatusNone {
		t.Errorf("got %v, want %v", got, content.DOIStatusNone)
	}

	other := content.NewItem(f.item.OwningCollection)
	other.AddMetadata("dc.title", "", "Another")
	if err := f.store.CreateItem(ctx, other); err != nil {
		t.Fatal(err)
	}
	next, err := f.provider.Mint(ctx, other)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if want := "doi:10.5072/DSPACE-2"; next != want {
		t.Errorf("got %q, want %q", next, want)
	}
}

func TestMintAdoptsMetadataDOI(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)
	f.item.AddMetadata(MetadataField, "", "https://doi.org/10.5072/legacy-42")
	f.item.AddMetadata(MetadataField, "", "https://doi.org/10.9999/foreign")

	doi, err := f.provider.Mint(ctx, f.item)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if want := "doi:10.5072/LEGACY-42"; doi != want {
		t.Errorf("got %q, want %q", doi, want)
	}
}

func TestRegisterQueue(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)

	doi, err := f.provider.Register(ctx, f.item, "10.5072/dspace-1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if doi != "doi:10.5072/dspace-1" {
		t.Errorf("got %q, want %q", doi, "doi:10.5072/dspace-1")
	}
	if got := f.status(t, doi); got != content.DOIToBeRegistered {
		t.Errorf("got %v, want %v", got, content.DOIToBeRegistered)
	}
	if len(f.connector.calls) != 0 {
		t.Errorf("queueing must not contact the agency: %v", f.connector.calls)
	}

	if _, err := f.provider.Register(ctx, f.item, "doi:10.9999/x"); CodeOf(err) != ForeignDOI {
		t.Errorf("got %v, want FOREIGN_DOI", err)
	}
}

func TestReserveQueue(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)

	doi, err := f.provider.Reserve(ctx, f.item, "doi:10.5072/dspace-1")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := f.status(t, doi); got != content.DOIToBeReserved {
		t.Errorf("got %v, want %v", got, content.DOIToBeReserved)
	}
	if _, err := f.provider.Register(ctx, f.item, doi); err != nil {
		t.Fatal(err)
	}
	if _, err := f.provider.Reserve(ctx, f.item, doi); err != nil {
		t.Fatal(err)
	}
	if got := f.status(t, doi); got != content.DOIToBeRegistered {
		t.Errorf("reserve must not undo a queued registration: got %v", got)
	}
}

func TestRegisterOnlineReservesFirst(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)

	doi, err := f.provider.Register(ctx, f.item, "doi:10.5072/dspace-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.provider.RegisterOnline(ctx, f.item, doi); err != nil {
		t.Fatalf("RegisterOnline: %v", err)
	}
	want := []string{"register " + doi, "reserve " + doi, "register " + doi}
	if len(f.connector.calls) != len(want) {
		t.Fatalf("got calls %v, want %v", f.connector.calls, want)
	}
	for i := range want {
		if f.connector.calls[i] != want[i] {
			t.Errorf("call %d: got %q, want %q", i, f.connector.calls[i], want[i])
		}
	}
	if got := f.status(t, doi); got != content.DOIIsRegistered {
		t.Errorf("got %v, want %v", got, content.DOIIsRegistered)
	}

	item, err := f.store.GetItem(ctx, f.item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := item.FirstValue(MetadataField), "https://doi.org/10.5072/dspace-1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRegisterOnlineFailureKeepsQueue(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)
	doi, _ := f.provider.Register(ctx, f.item, "doi:10.5072/dspace-1")
	f.connector.reserved[doi] = true
	f.connector.errs["register"] = newError(BadAnswer, "bad gateway")

	if err := f.provider.RegisterOnline(ctx, f.item, doi); CodeOf(err) != BadAnswer {
		t.Fatalf("got %v, want BAD_ANSWER", err)
	}
	if got := f.status(t, doi); got != content.DOIToBeRegistered {
		t.Errorf("got %v, want %v", got, content.DOIToBeRegistered)
	}
}

func TestRegisterOnlineUnknownDOI(t *testing.T) {
	f := newProviderFixture(t)
	err := f.provider.RegisterOnline(context.Background(), f.item, "doi:10.5072/nope")
	if CodeOf(err) != DoesNotExist {
		t.Fatalf("got %v, want DOI_DOES_NOT_EXIST", err)
	}
}

func TestUpdateMetadataTransitions(t *testing.T) {
	tests := []struct {
		from, queued, after content.DOIStatus
		online              bool
	}{
		{content.DOIIsRegistered, content.DOIUpdateRegistered, content.DOIIsRegistered, true},
		{content.DOIIsReserved, content.DOIUpdateReserved, content.DOIIsReserved, true},
		{content.DOIToBeRegistered, content.DOIUpdateBeforeRegistration, content.DOIToBeRegistered, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newProviderFixture(t)
			doi, err := f.provider.Mint(ctx, f.item)
			if err != nil {
				t.Fatal(err)
			}
			row, _ := f.store.GetDOI(ctx, Bare(doi))
			row.Status = tt.from
			if err := f.store.UpdateDOI(ctx, row); err != nil {
				t.Fatal(err)
			}

			if _, err := f.provider.UpdateMetadata(ctx, f.item, doi); err != nil {
				t.Fatalf("UpdateMetadata: %v", err)
			}
			if got := f.status(t, doi); got != tt.queued {
				t.Fatalf("queued: got %v, want %v", got, tt.queued)
			}
			if err := f.provider.UpdateMetadataOnline(ctx, f.item, doi); err != nil {
				t.Fatalf("UpdateMetadataOnline: %v", err)
			}
			if got := f.status(t, doi); got != tt.after {
				t.Errorf("after: got %v, want %v", got, tt.after)
			}
			if sent := len(f.connector.calls) == 1; sent != tt.online {
				t.Errorf("got calls %v, online=%v", f.connector.calls, tt.online)
			}
		})
	}
}

func TestDeleteNeverSentIsImmediate(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)
	doi, _ := f.provider.Register(ctx, f.item, "doi:10.5072/dspace-1")

	if err := f.provider.Delete(ctx, f.item, doi); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.status(t, doi); got != content.DOIDeleted {
		t.Errorf("got %v, want %v", got, content.DOIDeleted)
	}
	if _, err := f.provider.Register(ctx, f.item, doi); CodeOf(err) != IsDeleted {
		t.Errorf("got %v, want DOI_IS_DELETED", err)
	}
}

func TestDeleteRegistered(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)
	doi, _ := f.provider.Register(ctx, f.item, "doi:10.5072/dspace-1")
	f.connector.reserved[doi] = true
	if err := f.provider.RegisterOnline(ctx, f.item, doi); err != nil {
		t.Fatal(err)
	}

	if err := f.provider.DeleteOnline(ctx, doi); CodeOf(err) != BadRequest {
		t.Errorf("deleting an unqueued DOI: got %v, want BAD_REQUEST", err)
	}
	if err := f.provider.Delete(ctx, f.item, doi); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := f.status(t, doi); got != content.DOIToBeDeleted {
		t.Errorf("got %v, want %v", got, content.DOIToBeDeleted)
	}
	item, _ := f.store.GetItem(ctx, f.item.ID)
	if v := item.Values(MetadataField); len(v) != 0 {
		t.Errorf("DOI should be removed from metadata, got %v", v)
	}

	if err := f.provider.DeleteOnline(ctx, doi); err != nil {
		t.Fatalf("DeleteOnline: %v", err)
	}
	if got := f.status(t, doi); got != content.DOIDeleted {
		t.Errorf("got %v, want %v", got, content.DOIDeleted)
	}

	// A deleted DOI no longer belongs to the item; minting gives a new one.
	next, err := f.provider.Mint(ctx, f.item)
	if err != nil {
		t.Fatal(err)
	}
	if next == doi {
		t.Errorf("got the deleted DOI %q again", next)
	}
}

func TestBoundToAnotherItem(t *testing.T) {
	ctx := context.Background()
	f := newProviderFixture(t)
	doi, _ := f.provider.Mint(ctx, f.item)

	other := content.NewItem(f.item.OwningCollection)
	if err := f.store.CreateItem(ctx, other); err != nil {
		t.Fatal(err)
	}
	_, err := f.provider.Register(ctx, other, doi)
	if CodeOf(err) != Mismatch {
		t.Fatalf("got %v, want MISMATCH", err)
	}
	var de *Error
	if !errors.As(err, &de) {
		t.Fatal("want a *doi.Error")
	}
}
