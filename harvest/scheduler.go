package harvest

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/dspacekit/content"
)

// Scheduler runs due harvests periodically.
type Scheduler struct {
	h *Harvester
	// Interval is the minimum time between two harvests of a collection.
	Interval time.Duration
	// PollInterval is how often the scheduler looks for due collections.
	PollInterval time.Duration
	// MaxThreads bounds concurrent harvests.
	MaxThreads int
}

// NewScheduler returns a Scheduler using the harvester's settings.
func NewScheduler(h *Harvester) *Scheduler {
	return &Scheduler{
		h:            h,
		Interval:     h.cfg.Interval,
		PollInterval: h.cfg.PollInterval,
		MaxThreads:   h.cfg.MaxThreads,
	}
}

// Start resets collections left BUSY or QUEUED by a previous process and
// then harvests due collections until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reset(ctx); err != nil {
		return err
	}
	poll := s.PollInterval
	if poll <= 0 {
		poll = time.Minute
	}
	slog.Info("harvest scheduler started", "interval", s.Interval, "poll", poll, "max_threads", s.MaxThreads)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduled harvest pass failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("harvest scheduler stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Reset returns stale BUSY and QUEUED collections to READY.
func (s *Scheduler) Reset(ctx context.Context) error {
	for _, from := range []content.HarvestStatus{content.StatusBusy, content.StatusQueued} {
		n, err := s.h.store.ResetStatus(ctx, from, content.StatusReady, "Harvest was interrupted; collection reset")
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Warn("reset stale harvest status", "from", from, "count", n)
		}
	}
	return nil
}

// RunOnce queues every collection due for harvest and runs them, at most
// MaxThreads at a time. It returns the number of harvests started.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	due, err := s.h.store.FindReadyToHarvest(ctx, s.h.now().Add(-s.Interval))
	if err != nil {
		return 0, err
	}
	var queued []*content.HarvestedCollection
	for _, hc := range due {
		if !hc.IsHarvestable() {
			continue
		}
		hc.HarvestStatus = content.StatusQueued
		if err := s.h.store.SaveHarvestedCollection(ctx, hc); err != nil {
			return 0, err
		}
		queued = append(queued, hc)
	}
	if len(queued) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if s.MaxThreads > 0 {
		g.SetLimit(s.MaxThreads)
	}
	for _, hc := range queued {
		g.Go(func() error {
			// Harvest failures are recorded on the collection; only
			// cancellation stops the pass.
			if _, err := s.h.Run(gctx, hc.CollectionID, Options{}); err != nil {
				slog.Warn("scheduled harvest failed", "collection", hc.CollectionID, "err", err)
			}
			return gctx.Err()
		})
	}
	return len(queued), g.Wait()
}
