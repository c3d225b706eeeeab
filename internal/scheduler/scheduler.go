// Package scheduler drives auctions through their timed transitions. Each
// tick pops every due start and end from the time index and hands the ids to
// the lifecycle service, which decides whether a transition actually applies.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/internal/schedule"
	"auction-engine/utils"

	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval = 2 * time.Second
	defaultWorkers  = 8
)

// Lifecycle applies the timed transitions. Both methods report false
// without error when the auction is not due or already past the transition.
type Lifecycle interface {
	Activate(ctx context.Context, auctionID string) (bool, error)
	End(ctx context.Context, auctionID string) (bool, error)
}

// AuctionLister is the read side used to rebuild the time index
type AuctionLister interface {
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
}

// CacheWarmer refreshes the cached leading bid of an active auction
type CacheWarmer interface {
	RebuildHighestBid(ctx context.Context, auctionID string) error
}

type Scheduler struct {
	index        schedule.TimeIndex
	lifecycle    Lifecycle
	auctions     AuctionLister
	warmer       CacheWarmer
	clock        clock.Clock
	interval     time.Duration
	workers      int
	rebuildEvery int
}

type Option func(*Scheduler)

// WithInterval sets the tick period
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithWorkers bounds how many transitions run concurrently within a tick
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithCacheWarmer rebuilds the highest bid cache of active auctions on Rebuild
func WithCacheWarmer(w CacheWarmer) Option {
	return func(s *Scheduler) {
		s.warmer = w
	}
}

// WithRebuildEvery re-derives the time index from the store every n ticks
func WithRebuildEvery(n int) Option {
	return func(s *Scheduler) {
		s.rebuildEvery = n
	}
}

// New creates a scheduler over the given time index
func New(index schedule.TimeIndex, lifecycle Lifecycle, auctions AuctionLister, clk clock.Clock, opts ...Option) *Scheduler {
	s := &Scheduler{
		index:     index,
		lifecycle: lifecycle,
		auctions:  auctions,
		clock:     clk,
		interval:  defaultInterval,
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TickResult counts what one tick did
type TickResult struct {
	Activated int
	Ended     int
	Skipped   int
	Failed    int
}

type phase struct {
	name  string
	pop   func(context.Context, time.Time) ([]string, error)
	apply func(context.Context, string) (bool, error)
	add   func(context.Context, time.Time, string) error
	done  *int
}

// Tick promotes everything due at the current clock reading. Starts are
// processed before ends, so an auction whose whole window has passed moves
// through both transitions in one tick.
func (s *Scheduler) Tick(ctx context.Context) TickResult {
	var res TickResult
	now := s.clock.Now()

	phases := []phase{
		{name: "activate", pop: s.index.PopDueStarts, apply: s.lifecycle.Activate, add: s.index.AddStart, done: &res.Activated},
		{name: "end", pop: s.index.PopDueEnds, apply: s.lifecycle.End, add: s.index.AddEnd, done: &res.Ended},
	}

	for _, p := range phases {
		applied, skipped, failed := s.run(ctx, p, now)
		*p.done += applied
		res.Skipped += skipped
		res.Failed += failed
	}

	if res.Activated+res.Ended+res.Failed > 0 {
		utils.Info("scheduler: tick", map[string]any{
			"activated": res.Activated,
			"ended":     res.Ended,
			"skipped":   res.Skipped,
			"failed":    res.Failed,
		})
	}
	return res
}

func (s *Scheduler) run(ctx context.Context, p phase, now time.Time) (applied, skipped, failed int) {
	ids, err := p.pop(ctx, now)
	if err != nil {
		utils.Error("scheduler: failed to read due auctions", map[string]any{"phase": p.name, "error": err.Error()})
		return 0, 0, 0
	}
	if len(ids) == 0 {
		return 0, 0, 0
	}

	var nApplied, nSkipped, nFailed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, id := range ids {
		g.Go(func() error {
			ok, err := p.apply(gctx, id)
			switch {
			case err == nil && ok:
				nApplied.Add(1)
			case err == nil:
				nSkipped.Add(1)
			case errors.Is(err, biddingerrors.ErrNotFound):
				utils.Warn("scheduler: dropping entry for unknown auction", map[string]any{"phase": p.name, "auction_id": id})
				nSkipped.Add(1)
			default:
				nFailed.Add(1)
				utils.Error("scheduler: transition failed, will retry", map[string]any{
					"phase":      p.name,
					"auction_id": id,
					"error":      err.Error(),
				})
				// due again immediately; the next tick retries it
				if addErr := p.add(context.WithoutCancel(ctx), now, id); addErr != nil {
					utils.Error("scheduler: failed to requeue auction", map[string]any{"phase": p.name, "auction_id": id, "error": addErr.Error()})
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	return int(nApplied.Load()), int(nSkipped.Load()), int(nFailed.Load())
}

// Rebuild re-derives the time index from durable auction state. It is safe
// to run while ticking: entries are keyed by auction and transitions are
// idempotent.
func (s *Scheduler) Rebuild(ctx context.Context) error {
	scheduled, err := s.auctions.ListAuctions(ctx, model.StatusScheduled)
	if err != nil {
		return err
	}
	for _, a := range scheduled {
		if err := s.index.AddStart(ctx, a.GoLiveAt, a.AuctionID); err != nil {
			return err
		}
	}

	active, err := s.auctions.ListAuctions(ctx, model.StatusActive)
	if err != nil {
		return err
	}
	for _, a := range active {
		if err := s.index.AddEnd(ctx, a.EndsAt(), a.AuctionID); err != nil {
			return err
		}
		if s.warmer == nil {
			continue
		}
		if err := s.warmer.RebuildHighestBid(ctx, a.AuctionID); err != nil {
			utils.Warn("scheduler: failed to warm highest bid", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
		}
	}

	// a pending auction without bids is one whose close failed; End finishes
	// it and skips the ones waiting on their seller
	pending, err := s.auctions.ListAuctions(ctx, model.StatusDecisionPending)
	if err != nil {
		return err
	}
	for _, a := range pending {
		if err := s.index.AddEnd(ctx, a.EndsAt(), a.AuctionID); err != nil {
			return err
		}
	}

	utils.Debug("scheduler: index rebuilt", map[string]any{"scheduled": len(scheduled), "active": len(active), "pending": len(pending)})
	return nil
}

// Run rebuilds the index and ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Rebuild(ctx); err != nil {
		utils.Error("scheduler: initial rebuild failed", map[string]any{"error": err.Error()})
	}

	utils.Info("scheduler: started", map[string]any{"interval": s.interval.String(), "workers": s.workers})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			utils.Info("scheduler: stopped", nil)
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
			ticks++
			if s.rebuildEvery > 0 && ticks%s.rebuildEvery == 0 {
				if err := s.Rebuild(ctx); err != nil {
					utils.Error("scheduler: rebuild failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}
}
