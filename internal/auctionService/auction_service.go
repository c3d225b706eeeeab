package auction

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/lock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"auction-engine/internal/schedule"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Seller decisions
const (
	ActionAccept = "accept"
	ActionReject = "reject"
)

const defaultLeaseDuration = 3 * time.Second

// AuctionService owns auction creation and every lifecycle transition.
// Scheduler-driven transitions (Activate, End) are guarded by a status
// compare-and-swap in the store, so repeated discovery of the same due
// auction is harmless.
type AuctionService struct {
	repo     repository.AuctionDB
	cache    cache.HighestBidCache
	locks    lock.Locker
	index    schedule.TimeIndex
	notifier notifier.Notifier
	clock    clock.Clock
	leaseFor time.Duration
}

type Option func(*AuctionService)

// WithLeaseDuration overrides how long End may hold the auction lease
func WithLeaseDuration(d time.Duration) Option {
	return func(s *AuctionService) {
		if d > 0 {
			s.leaseFor = d
		}
	}
}

// NewAuctionService creates a new AuctionService instance
func NewAuctionService(repo repository.AuctionDB, highest cache.HighestBidCache, locks lock.Locker, index schedule.TimeIndex, n notifier.Notifier, clk clock.Clock, opts ...Option) *AuctionService {
	s := &AuctionService{
		repo:     repo,
		cache:    highest,
		locks:    locks,
		index:    index,
		notifier: n,
		clock:    clk,
		leaseFor: defaultLeaseDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateAuctionInput carries the seller-provided listing
type CreateAuctionInput struct {
	SellerID        string
	ItemName        string
	Description     string
	StartingPrice   float64
	BidIncrement    float64
	GoLiveAt        time.Time
	DurationSeconds int
}

func (in CreateAuctionInput) validate() error {
	switch {
	case in.SellerID == "":
		return fmt.Errorf("service: %w - missing seller", biddingerrors.ErrInvalidAuction)
	case strings.TrimSpace(in.ItemName) == "":
		return fmt.Errorf("service: %w - missing item name", biddingerrors.ErrInvalidAuction)
	case !positive(in.StartingPrice):
		return fmt.Errorf("service: %w - starting price must be positive", biddingerrors.ErrInvalidAuction)
	case !positive(in.BidIncrement):
		return fmt.Errorf("service: %w - bid increment must be positive", biddingerrors.ErrInvalidAuction)
	case in.GoLiveAt.IsZero():
		return fmt.Errorf("service: %w - missing go-live time", biddingerrors.ErrInvalidAuction)
	case in.DurationSeconds < model.MinDurationSeconds:
		return fmt.Errorf("service: %w - duration must be at least %d seconds", biddingerrors.ErrInvalidAuction, model.MinDurationSeconds)
	}
	return nil
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// CreateAuction stores a scheduled auction and registers its go-live time
func (s *AuctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (model.Auction, error) {
	if err := in.validate(); err != nil {
		return model.Auction{}, err
	}

	now := s.clock.Now()
	a := model.Auction{
		AuctionID:       utils.GenerateID(),
		SellerID:        in.SellerID,
		ItemName:        strings.TrimSpace(in.ItemName),
		Description:     in.Description,
		StartingPrice:   in.StartingPrice,
		BidIncrement:    in.BidIncrement,
		GoLiveAt:        in.GoLiveAt.UTC(),
		DurationSeconds: in.DurationSeconds,
		Status:          model.StatusScheduled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		if errors.Is(err, biddingerrors.ErrValidationFailed) {
			return model.Auction{}, fmt.Errorf("service: %w", err)
		}
		return model.Auction{}, biddingerrors.Storage("service: failed to create auction", err)
	}

	if err := s.index.AddStart(ctx, a.GoLiveAt, a.AuctionID); err != nil {
		// the schedule is rebuilt from the store, so the auction is not lost
		utils.Error("service: failed to register auction start", map[string]any{
			"auction_id": a.AuctionID,
			"error":      err.Error(),
		})
	}

	utils.Info("service: auction created", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  a.SellerID,
		"go_live_at": a.GoLiveAt.Format(time.RFC3339),
	})
	return a, nil
}

// GetAuction returns a single auction
func (s *AuctionService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidAuction)
	}
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns auctions with the given status (all when empty), by go-live time
func (s *AuctionService) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrInvalidAuction, status)
	}
	auctions, err := s.repo.ListAuctions(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// Activate promotes a due auction from scheduled to active. It returns
// false without error when the auction is not due or already past
// scheduled.
func (s *AuctionService) Activate(ctx context.Context, auctionID string) (bool, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("service: activate %s: %w", auctionID, err)
	}

	switch a.Status {
	case model.StatusScheduled:
	case model.StatusActive:
		// a previous activation may have failed to register the end entry
		if err := s.index.AddEnd(ctx, a.EndsAt(), auctionID); err != nil {
			return false, biddingerrors.Storage("service: register auction end", err)
		}
		logSkipped("activate", a)
		return false, nil
	default:
		logSkipped("activate", a)
		return false, nil
	}

	now := s.clock.Now()
	if now.Before(a.GoLiveAt) {
		return false, s.index.AddStart(ctx, a.GoLiveAt, auctionID)
	}

	promoted := a
	promoted.Status = model.StatusActive
	promoted.UpdatedAt = now
	if ok, err := s.swap(ctx, promoted, model.StatusScheduled); !ok || err != nil {
		return false, err
	}

	// the status is committed, so the room hears about it even if the end
	// entry has to be registered on a later tick
	ev := notifier.NewEvent(notifier.KindAuctionActive, auctionID, now)
	ev.CountdownSeconds = a.DurationSeconds
	ev.Status = model.StatusActive
	notifier.PublishAll(ctx, s.notifier, notifier.Message{Topic: notifier.AuctionTopic(auctionID), Event: ev})
	utils.Info("service: auction active", map[string]any{"auction_id": auctionID, "ends_at": a.EndsAt().Format(time.RFC3339)})

	if err := s.index.AddEnd(ctx, a.EndsAt(), auctionID); err != nil {
		return true, biddingerrors.Storage("service: register auction end", err)
	}
	return true, nil
}

// End closes bidding on an expired auction and asks the seller for a
// decision. It holds the auction's bid lease so the snapshot of the leading
// bid cannot race an admission.
func (s *AuctionService) End(ctx context.Context, auctionID string) (bool, error) {
	lease, err := s.locks.Acquire(ctx, lock.AuctionKey(auctionID), s.leaseFor)
	if err != nil {
		return false, fmt.Errorf("service: end %s: %w", auctionID, err)
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lease); err != nil {
			utils.Error("service: failed to release auction lease", map[string]any{"auction_id": auctionID, "error": err.Error()})
		}
	}()

	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return false, fmt.Errorf("service: end %s: %w", auctionID, err)
	}
	switch {
	case a.Status == model.StatusActive:
	case a.Status == model.StatusDecisionPending:
		return s.retryCloseNoWinner(ctx, a)
	default:
		logSkipped("end", a)
		return false, nil
	}

	now := s.clock.Now()
	if now.Before(a.EndsAt()) {
		return false, s.index.AddEnd(ctx, a.EndsAt(), auctionID)
	}

	highest, err := s.snapshotHighest(ctx, auctionID)
	if err != nil {
		return false, err
	}

	pending := a
	pending.Status = model.StatusDecisionPending
	pending.UpdatedAt = now
	if ok, err := s.swap(ctx, pending, model.StatusActive); !ok || err != nil {
		return false, err
	}

	ended := notifier.NewEvent(notifier.KindAuctionEnded, auctionID, now)
	ended.Highest = highest
	ended.Status = model.StatusDecisionPending
	msgs := []notifier.Message{{Topic: notifier.AuctionTopic(auctionID), Event: ended}}

	if highest != nil {
		action := notifier.NewEvent(notifier.KindSellerActionRequired, auctionID, now)
		action.Highest = highest
		action.BidderID = highest.BidderID
		action.Amount = highest.Amount
		msgs = append(msgs, notifier.Message{Topic: notifier.UserTopic(a.SellerID), Event: action})
		notifier.PublishAll(ctx, s.notifier, msgs...)
		utils.Info("service: auction awaiting decision", map[string]any{"auction_id": auctionID, "highest": highest.Amount})
		return true, nil
	}

	notifier.PublishAll(ctx, s.notifier, msgs...)

	// nobody bid: there is nothing to decide. A failed close leaves the
	// auction pending; the requeued end entry finishes it.
	if _, err := s.closeNoWinner(ctx, pending, now); err != nil {
		utils.Error("service: failed to close auction without bids", map[string]any{"auction_id": auctionID, "error": err.Error()})
		return true, err
	}
	return true, nil
}

// retryCloseNoWinner finishes an auction left pending by a failed close.
// Auctions with a leading bid wait for the seller instead.
func (s *AuctionService) retryCloseNoWinner(ctx context.Context, a model.Auction) (bool, error) {
	highest, err := s.snapshotHighest(ctx, a.AuctionID)
	if err != nil {
		return false, err
	}
	if highest != nil {
		logSkipped("end", a)
		return false, nil
	}
	if _, err := s.closeNoWinner(ctx, a, s.clock.Now()); err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotPending) {
			logSkipped("end", a)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Decide applies the seller's accept or reject to an auction awaiting a
// decision. When no bid exists the auction is closed without a winner
// whatever the action.
func (s *AuctionService) Decide(ctx context.Context, auctionID, sellerID, action string) (model.Auction, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: decide %s: %w", auctionID, err)
	}
	if sellerID != a.SellerID {
		return model.Auction{}, fmt.Errorf("service: %w - user %s on auction %s", biddingerrors.ErrNotSeller, sellerID, auctionID)
	}
	action = strings.ToLower(strings.TrimSpace(action))
	if action != ActionAccept && action != ActionReject {
		return model.Auction{}, fmt.Errorf("service: %w - %q", biddingerrors.ErrInvalidDecision, action)
	}
	if a.Status != model.StatusDecisionPending {
		return model.Auction{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotPending, auctionID, a.Status)
	}

	highest, err := s.snapshotHighest(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}

	now := s.clock.Now()
	if highest == nil {
		return s.closeNoWinner(ctx, a, now)
	}

	resolved := a
	resolved.UpdatedAt = now
	decision := string(model.StatusRejected)
	if action == ActionAccept {
		winner := highest.BidderID
		price := highest.Amount
		resolved.Status = model.StatusAccepted
		resolved.WinnerID = &winner
		resolved.FinalPrice = &price
		decision = string(model.StatusAccepted)
	} else {
		resolved.Status = model.StatusRejected
	}

	if err := s.repo.SaveAuction(ctx, resolved, model.StatusDecisionPending); err != nil {
		if errors.Is(err, biddingerrors.ErrStatusConflict) {
			return model.Auction{}, fmt.Errorf("service: %w - auction %s already decided", biddingerrors.ErrAuctionNotPending, auctionID)
		}
		return model.Auction{}, biddingerrors.Storage("service: failed to save decision for auction "+auctionID, err)
	}
	s.clearHighest(ctx, auctionID)

	toBidder := notifier.NewEvent(notifier.KindSellerDecision, auctionID, now)
	toBidder.Decision = decision
	toBidder.Amount = highest.Amount
	toBidder.BidderID = highest.BidderID

	result := notifier.NewEvent(notifier.KindAuctionResult, auctionID, now)
	result.Status = resolved.Status
	result.Highest = highest
	result.Decision = decision
	roomResult := result
	roomResult.EventID = utils.GenerateID()

	notifier.PublishAll(ctx, s.notifier,
		notifier.Message{Topic: notifier.UserTopic(highest.BidderID), Event: toBidder},
		notifier.Message{Topic: notifier.UserTopic(a.SellerID), Event: result},
		notifier.Message{Topic: notifier.AuctionTopic(auctionID), Event: roomResult},
	)

	utils.Info("service: auction decided", map[string]any{
		"auction_id": auctionID,
		"decision":   decision,
		"bidder_id":  highest.BidderID,
		"amount":     highest.Amount,
	})
	return resolved, nil
}

// closeNoWinner moves a decision_pending auction without bids to closed_no_winner
// and tells the seller.
func (s *AuctionService) closeNoWinner(ctx context.Context, a model.Auction, now time.Time) (model.Auction, error) {
	closed := a
	closed.Status = model.StatusClosedNoWinner
	closed.UpdatedAt = now
	if err := s.repo.SaveAuction(ctx, closed, model.StatusDecisionPending); err != nil {
		if errors.Is(err, biddingerrors.ErrStatusConflict) {
			return model.Auction{}, fmt.Errorf("service: %w - auction %s already decided", biddingerrors.ErrAuctionNotPending, a.AuctionID)
		}
		return model.Auction{}, biddingerrors.Storage("service: failed to close auction "+a.AuctionID, err)
	}
	s.clearHighest(ctx, a.AuctionID)

	result := notifier.NewEvent(notifier.KindAuctionResult, a.AuctionID, now)
	result.Status = model.StatusClosedNoWinner
	result.Message = "No bids placed. Auction closed."
	roomResult := result
	roomResult.EventID = utils.GenerateID()
	notifier.PublishAll(ctx, s.notifier,
		notifier.Message{Topic: notifier.UserTopic(a.SellerID), Event: result},
		notifier.Message{Topic: notifier.AuctionTopic(a.AuctionID), Event: roomResult},
	)

	utils.Info("service: auction closed without winner", map[string]any{"auction_id": a.AuctionID})
	return closed, nil
}

// swap commits a status transition. A lost race is reported as (false, nil).
func (s *AuctionService) swap(ctx context.Context, a model.Auction, expected model.AuctionStatus) (bool, error) {
	if !expected.CanTransitionTo(a.Status) {
		return false, fmt.Errorf("service: %w - %s -> %s on auction %s", biddingerrors.ErrInvalidState, expected, a.Status, a.AuctionID)
	}
	err := s.repo.SaveAuction(ctx, a, expected)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, biddingerrors.ErrStatusConflict) {
		utils.Info("service: transition already applied", map[string]any{
			"auction_id": a.AuctionID,
			"from":       expected,
			"to":         a.Status,
		})
		return false, nil
	}
	return false, biddingerrors.Storage(fmt.Sprintf("service: transition %s -> %s for auction %s", expected, a.Status, a.AuctionID), err)
}

func (s *AuctionService) snapshotHighest(ctx context.Context, auctionID string) (*model.HighestBidRecord, error) {
	rec, ok, err := s.cache.Get(ctx, auctionID)
	if err == nil && ok {
		return &rec, nil
	}
	if err != nil {
		utils.Warn("service: highest bid cache read failed, using bid history", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}

	latest, err := s.repo.LatestBid(ctx, auctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return nil, nil
	}
	if err != nil {
		return nil, biddingerrors.Storage("service: failed to read latest bid for auction "+auctionID, err)
	}
	rec = model.HighestFromBid(latest)
	return &rec, nil
}

func (s *AuctionService) clearHighest(ctx context.Context, auctionID string) {
	if err := s.cache.Clear(ctx, auctionID); err != nil {
		utils.Warn("service: failed to clear highest bid", map[string]any{"auction_id": auctionID, "error": err.Error()})
	}
}

func logSkipped(transition string, a model.Auction) {
	utils.Info("service: transition skipped, auction already past it", map[string]any{
		"transition": transition,
		"auction_id": a.AuctionID,
		"status":     a.Status,
	})
}
