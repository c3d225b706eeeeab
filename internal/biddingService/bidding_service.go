package bidding

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/lock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"time"
)

const defaultLeaseDuration = 3 * time.Second

// BiddingService admits bids. For any one auction, admissions are serialized
// by a lease so the read-validate-write of one bid happens before the next
// bid reads the leading amount.
type BiddingService struct {
	repo     repository.AuctionDB
	cache    cache.HighestBidCache
	locks    lock.Locker
	notifier notifier.Notifier
	clock    clock.Clock
	leaseFor time.Duration
}

type Option func(*BiddingService)

// WithLeaseDuration overrides how long an admission may hold the auction lease
func WithLeaseDuration(d time.Duration) Option {
	return func(s *BiddingService) {
		if d > 0 {
			s.leaseFor = d
		}
	}
}

// WithClock sets the clock used to timestamp bids
func WithClock(c clock.Clock) Option {
	return func(s *BiddingService) {
		s.clock = c
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, highest cache.HighestBidCache, locks lock.Locker, n notifier.Notifier, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:     repo,
		cache:    highest,
		locks:    locks,
		notifier: n,
		clock:    clock.NewSystem(),
		leaseFor: defaultLeaseDuration,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type admission struct {
	bid      model.Bid
	auction  model.Auction
	previous *model.HighestBidRecord
}

// PlaceBid validates and commits a bid. ErrBusy means the auction lease could
// not be obtained in time and the caller may retry. A call that fails with a
// context error may still have committed; reconcile with GetHighestBid.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount float64) (model.Bid, error) {
	if auctionID == "" || bidderID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrInvalidBid)
	}

	lease, err := s.locks.Acquire(ctx, lock.AuctionKey(auctionID), s.leaseFor)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to acquire lease for auction %s: %w", auctionID, err)
	}

	result, err := s.admit(ctx, lease, auctionID, bidderID, amount)
	if err != nil {
		return model.Bid{}, err
	}

	s.publishBid(ctx, result)
	return result.bid, nil
}

// admit runs with the lease held and always releases it, panics included.
func (s *BiddingService) admit(ctx context.Context, lease lock.Lease, auctionID, bidderID string, amount float64) (admission, error) {
	defer s.release(ctx, lease)

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNotFound) {
			return admission{}, fmt.Errorf("service: %w", err)
		}
		return admission{}, biddingerrors.Storage("service: load auction "+auctionID, err)
	}
	if auction.Status != model.StatusActive {
		return admission{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrAuctionNotActive, auctionID, auction.Status)
	}
	if bidderID == auction.SellerID {
		return admission{}, fmt.Errorf("service: %w", biddingerrors.ErrSellerCannotBid)
	}
	if err := validAmount(amount); err != nil {
		return admission{}, fmt.Errorf("service: %w - malformed amount %v", err, amount)
	}

	highest, err := s.currentHighest(ctx, auctionID, true)
	if err != nil {
		return admission{}, err
	}

	minBid := MinimumBid(auction, highest)
	if !meetsMinimum(amount, minBid) {
		return admission{}, fmt.Errorf("service: %w - minimum bid is %s", biddingerrors.ErrBidTooLow, minBid.StringFixed(monetaryPrecision))
	}

	// once the durable write starts it must finish even if the caller gives up
	commitCtx := context.WithoutCancel(ctx)

	bid, err := s.repo.AppendBid(commitCtx, auctionID, bidderID, amount, s.clock.Now())
	if err != nil {
		return admission{}, biddingerrors.Storage(fmt.Sprintf("service: failed to record bid for auction %s by bidder %s", auctionID, bidderID), err)
	}

	if err := s.cache.Set(commitCtx, model.HighestFromBid(bid)); err != nil {
		// the bid is durable; drop the stale entry so the next reader rebuilds it
		utils.Warn("service: highest bid cache write failed", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bid.BidID,
			"error":      err.Error(),
		})
		if clearErr := s.cache.Clear(commitCtx, auctionID); clearErr != nil {
			utils.Error("service: highest bid cache clear failed", map[string]any{
				"auction_id": auctionID,
				"error":      clearErr.Error(),
			})
		}
	}

	return admission{bid: bid, auction: auction, previous: highest}, nil
}

func (s *BiddingService) release(ctx context.Context, lease lock.Lease) {
	if err := s.locks.Release(context.WithoutCancel(ctx), lease); err != nil {
		utils.Error("service: failed to release auction lease", map[string]any{
			"key":   lease.Key,
			"error": err.Error(),
		})
	}
}

// currentHighest reads the leading bid from the cache, falling back to the
// durable bid history on a miss. Only a lease holder may pass rebuild.
func (s *BiddingService) currentHighest(ctx context.Context, auctionID string, rebuild bool) (*model.HighestBidRecord, error) {
	rec, ok, err := s.cache.Get(ctx, auctionID)
	if err != nil {
		utils.Warn("service: highest bid cache read failed, using bid history", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	} else if ok {
		return &rec, nil
	}

	latest, err := s.repo.LatestBid(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			return nil, nil
		}
		return nil, biddingerrors.Storage("service: failed to read latest bid for auction "+auctionID, err)
	}

	rec = model.HighestFromBid(latest)
	if rebuild {
		if err := s.cache.Set(ctx, rec); err != nil {
			utils.Warn("service: failed to rebuild highest bid cache", map[string]any{
				"auction_id": auctionID,
				"error":      err.Error(),
			})
		}
	}
	return &rec, nil
}

func (s *BiddingService) publishBid(ctx context.Context, a admission) {
	at := a.bid.CreatedAt

	newBid := notifier.NewEvent(notifier.KindNewBid, a.bid.AuctionID, at)
	newBid.BidderID = a.bid.BidderID
	newBid.Amount = a.bid.Amount
	msgs := []notifier.Message{{Topic: notifier.AuctionTopic(a.bid.AuctionID), Event: newBid}}

	if a.previous != nil && a.previous.BidderID != a.bid.BidderID {
		outbid := notifier.NewEvent(notifier.KindOutbid, a.bid.AuctionID, at)
		outbid.BidderID = a.bid.BidderID
		outbid.Amount = a.bid.Amount
		msgs = append(msgs, notifier.Message{Topic: notifier.UserTopic(a.previous.BidderID), Event: outbid})
	}

	if a.auction.SellerID != a.bid.BidderID {
		seller := notifier.NewEvent(notifier.KindSellerNotified, a.bid.AuctionID, at)
		seller.BidderID = a.bid.BidderID
		seller.Amount = a.bid.Amount
		msgs = append(msgs, notifier.Message{Topic: notifier.UserTopic(a.auction.SellerID), Event: seller})
	}

	notifier.PublishAll(ctx, s.notifier, msgs...)
}

// GetBidsForAuction returns all bids for an auction in commit order
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetHighestBid returns the current leading bid, or ErrNoBids
func (s *BiddingService) GetHighestBid(ctx context.Context, auctionID string) (model.HighestBidRecord, error) {
	if auctionID == "" {
		return model.HighestBidRecord{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	highest, err := s.currentHighest(ctx, auctionID, false)
	if err != nil {
		return model.HighestBidRecord{}, err
	}
	if highest == nil {
		return model.HighestBidRecord{}, fmt.Errorf("service: auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return *highest, nil
}

// RebuildHighestBid replaces the cached leading bid of an auction with the
// latest bid from durable storage.
func (s *BiddingService) RebuildHighestBid(ctx context.Context, auctionID string) error {
	lease, err := s.locks.Acquire(ctx, lock.AuctionKey(auctionID), s.leaseFor)
	if err != nil {
		return fmt.Errorf("service: failed to acquire lease for auction %s: %w", auctionID, err)
	}
	defer s.release(ctx, lease)

	latest, err := s.repo.LatestBid(ctx, auctionID)
	if errors.Is(err, biddingerrors.ErrNoBids) {
		return s.cache.Clear(ctx, auctionID)
	}
	if err != nil {
		return biddingerrors.Storage("service: failed to read latest bid for auction "+auctionID, err)
	}
	return s.cache.Set(ctx, model.HighestFromBid(latest))
}
