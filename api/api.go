// Package api serves the read-only REST surface of the repository, the
// OAI-PMH provider and the Prometheus metrics over one HTTP mux.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/lehigh-university-libraries/dspacekit/content"
	"github.com/lehigh-university-libraries/dspacekit/harvest"
	"github.com/lehigh-university-libraries/dspacekit/metrics"
	"github.com/lehigh-university-libraries/dspacekit/store"
)

const defaultPageSize = 20

// Server holds what the handlers need.
type Server struct {
	store     *store.Store
	harvester *harvest.Harvester
	oai       http.Handler

	// queued harvests run in the background; one per collection at a time
	harvests singleflight.Group
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithHarvester enables POST /api/core/collections/{uuid}/harvester.
func WithHarvester(h *harvest.Harvester) Option {
	return func(s *Server) { s.harvester = h }
}

// WithOAI mounts an OAI-PMH provider at /oai/request.
func WithOAI(h http.Handler) Option {
	return func(s *Server) { s.oai = h }
}

// New returns a Server reading from st.
func New(st *store.Store, opts ...Option) *Server {
	s := &Server{store: st}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/core/collections", s.listCollections)
	mux.HandleFunc("GET /api/core/collections/{uuid}", s.getCollection)
	mux.HandleFunc("GET /api/core/collections/{uuid}/items", s.listCollectionItems)
	mux.HandleFunc("GET /api/core/collections/{uuid}/harvester", s.getHarvester)
	mux.HandleFunc("POST /api/core/collections/{uuid}/harvester", s.queueHarvest)
	mux.HandleFunc("GET /api/core/items/{uuid}", s.getItem)
	mux.HandleFunc("GET /api/identifiers/dois", s.listDOIs)
	if s.oai != nil {
		mux.Handle("/oai/request", s.oai)
	}
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Wait blocks until queued harvests have finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	st, err := toStruct(body)
	if err != nil {
		slog.Error("building response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	out, err := protojson.Marshal(st)
	if err != nil {
		slog.Error("encoding response", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(out)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"status":  status,
		"error":   http.StatusText(status),
		"message": fmt.Sprintf(format, args...),
	})
}

// storeError maps a store failure to a response.
func storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no resource found at %s", r.URL.Path)
		return
	}
	slog.Error("request failed", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%q is not a valid UUID", r.PathValue("uuid"))
		return uuid.Nil, false
	}
	return id, true
}

// paging reads the page and size query parameters.
func paging(w http.ResponseWriter, r *http.Request) (number, size int, ok bool) {
	q := r.URL.Query()
	size = defaultPageSize
	if v := q.Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid page size %q", v)
			return 0, 0, false
		}
		size = n
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid page number %q", v)
			return 0, 0, false
		}
		number = n
	}
	return number, size, true
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	cols, err := s.store.ListCollections(r.Context())
	if err != nil {
		storeError(w, r, err)
		return
	}
	entries := make([]any, 0, len(cols))
	for _, c := range cols {
		entries = append(entries, collectionDTO(c))
	}
	writeJSON(w, http.StatusOK, pageDTO("collections", entries, 0, len(cols), len(cols)))
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	c, err := s.store.GetCollection(r.Context(), id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collectionDTO(c))
}

func (s *Server) listCollectionItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	number, size, ok := paging(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetCollection(ctx, id); err != nil {
		storeError(w, r, err)
		return
	}
	filter := store.ItemFilter{Collection: id}
	total, err := s.store.CountItems(ctx, filter)
	if err != nil {
		storeError(w, r, err)
		return
	}
	filter.Offset, filter.Limit = number*size, size
	items, err := s.store.ListItems(ctx, filter)
	if err != nil {
		storeError(w, r, err)
		return
	}
	entries := make([]any, 0, len(items))
	for _, item := range items {
		entries = append(entries, itemDTO(item))
	}
	writeJSON(w, http.StatusOK, pageDTO("items", entries, number, size, total))
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	item, err := s.store.GetItem(r.Context(), id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemDTO(item))
}

func (s *Server) getHarvester(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if _, err := s.store.GetCollection(ctx, id); err != nil {
		storeError(w, r, err)
		return
	}
	hc, err := s.store.GetHarvestedCollection(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		// a collection that was never set up reports harvest type NONE
		hc = &content.HarvestedCollection{CollectionID: id}
	} else if err != nil {
		storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, harvesterDTO(hc))
}

// queueHarvest marks the collection QUEUED and harvests it in the
// background. The response carries the queued settings.
func (s *Server) queueHarvest(w http.ResponseWriter, r *http.Request) {
	if s.harvester == nil {
		writeError(w, http.StatusNotImplemented, "harvesting is not enabled on this server")
		return
	}
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	hc, err := s.store.GetHarvestedCollection(ctx, id)
	if err != nil {
		storeError(w, r, err)
		return
	}
	if !hc.IsHarvestable() {
		writeError(w, http.StatusUnprocessableEntity, "collection %s is not set up for harvesting", id)
		return
	}
	if hc.HarvestStatus == content.StatusBusy || hc.HarvestStatus == content.StatusQueued {
		writeError(w, http.StatusConflict, "collection %s is already %s", id, hc.HarvestStatus)
		return
	}
	hc.HarvestStatus = content.StatusQueued
	if err := s.store.SaveHarvestedCollection(ctx, hc); err != nil {
		storeError(w, r, err)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_, err, _ := s.harvests.Do(id.String(), func() (any, error) {
			return s.harvester.Run(runCtx, id, harvest.Options{})
		})
		if err != nil {
			slog.Warn("queued harvest failed", "collection", id, "err", err)
		}
	}()
	slog.Info("harvest queued", "collection", id)
	writeJSON(w, http.StatusAccepted, harvesterDTO(hc))
}

func (s *Server) listDOIs(w http.ResponseWriter, r *http.Request) {
	var statuses []content.DOIStatus
	for _, v := range r.URL.Query()["status"] {
		n, err := strconv.Atoi(v)
		if err != nil || n < int(content.DOIStatusNone) || n > int(content.DOIDeleted) {
			writeError(w, http.StatusBadRequest, "invalid DOI status %q", v)
			return
		}
		statuses = append(statuses, content.DOIStatus(n))
	}
	dois, err := s.store.ListDOIsByStatus(r.Context(), statuses...)
	if err != nil {
		storeError(w, r, err)
		return
	}
	entries := make([]any, 0, len(dois))
	for _, d := range dois {
		entries = append(entries, doiDTO(d))
	}
	writeJSON(w, http.StatusOK, pageDTO("dois", entries, 0, len(dois), len(dois)))
}
