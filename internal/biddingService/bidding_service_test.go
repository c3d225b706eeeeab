package bidding

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/lock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notifier.Message
}

func (r *recordingNotifier) Publish(_ context.Context, topic string, event notifier.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, notifier.Message{Topic: topic, Event: event})
	return nil
}

func (r *recordingNotifier) kinds() map[string][]notifier.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]notifier.EventKind)
	for _, m := range r.msgs {
		out[m.Topic] = append(out[m.Topic], m.Event.Kind)
	}
	return out
}

type fixture struct {
	svc     *BiddingService
	repo    *repository.MemoryRepo
	cache   *cache.MemoryCache
	backend *lock.MemoryBackend
	locks   *lock.Manager
	events  *recordingNotifier
}

func newFixture(t *testing.T, lockWait time.Duration) *fixture {
	t.Helper()
	f := &fixture{
		repo:    repository.NewMemoryRepo(),
		cache:   cache.NewMemoryCache(),
		backend: lock.NewMemoryBackend(),
		events:  &recordingNotifier{},
	}
	f.locks = lock.NewManager(f.backend, clock.NewSystem(), lockWait, lock.WithRetryInterval(time.Millisecond))
	f.svc = NewBiddingService(f.repo, f.cache, f.locks, f.events, WithClock(clock.NewFixed(now)))
	return f
}

func (f *fixture) addAuction(t *testing.T, id string, status model.AuctionStatus) model.Auction {
	t.Helper()
	a := model.Auction{
		AuctionID:       id,
		SellerID:        "seller",
		ItemName:        "lamp",
		StartingPrice:   100,
		BidIncrement:    10,
		GoLiveAt:        now.Add(-time.Minute),
		DurationSeconds: 120,
		Status:          status,
	}
	require.NoError(t, f.repo.CreateAuction(context.Background(), a))
	return a
}

func (f *fixture) highest(t *testing.T, id string) (model.HighestBidRecord, bool) {
	t.Helper()
	rec, ok, err := f.cache.Get(context.Background(), id)
	require.NoError(t, err)
	return rec, ok
}

// Tests the worked example: starting price 100, increment 10
func TestBiddingService_PlaceBid_Sequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	steps := []struct {
		name     string
		bidderID string
		amount   float64
		wantErr  error
	}{
		{name: "equal_to_starting_price", bidderID: "bidderA", amount: 100},
		{name: "below_increment", bidderID: "bidderB", amount: 105, wantErr: biddingerrors.ErrBidTooLow},
		{name: "exactly_minimum", bidderID: "bidderB", amount: 110},
		{name: "stale_minimum", bidderID: "bidderA", amount: 119.99, wantErr: biddingerrors.ErrValidationFailed},
		{name: "above_minimum", bidderID: "bidderA", amount: 150},
	}

	for _, step := range steps {
		bid, err := f.svc.PlaceBid(ctx, "a1", step.bidderID, step.amount)
		if step.wantErr != nil {
			require.ErrorIs(t, err, step.wantErr, step.name)
			continue
		}
		require.NoError(t, err, step.name)
		require.Equal(t, step.amount, bid.Amount)
		require.Equal(t, step.bidderID, bid.BidderID)
		require.Equal(t, now, bid.CreatedAt)

		rec, ok := f.highest(t, "a1")
		require.True(t, ok)
		require.Equal(t, step.amount, rec.Amount)
		require.Equal(t, step.bidderID, rec.BidderID)
	}

	bids, err := f.repo.GetBidsByAuction(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 3)
}

// Tests precondition errors and their order
func TestBiddingService_PlaceBid_Preconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "active", model.StatusActive)
	f.addAuction(t, "scheduled", model.StatusScheduled)
	f.addAuction(t, "pending", model.StatusDecisionPending)

	tests := []struct {
		name      string
		auctionID string
		bidderID  string
		amount    float64
		wantErr   error
	}{
		{name: "empty_auctionID", auctionID: "", bidderID: "b", amount: 100, wantErr: biddingerrors.ErrValidationFailed},
		{name: "empty_bidderID", auctionID: "active", bidderID: "", amount: 100, wantErr: biddingerrors.ErrInvalidBid},
		{name: "zero_amount", auctionID: "active", bidderID: "b", amount: 0, wantErr: biddingerrors.ErrInvalidBid},
		{name: "negative_amount", auctionID: "active", bidderID: "b", amount: -50, wantErr: biddingerrors.ErrInvalidBid},
		{name: "nan_amount", auctionID: "active", bidderID: "b", amount: math.NaN(), wantErr: biddingerrors.ErrInvalidBid},
		{name: "infinite_amount", auctionID: "active", bidderID: "b", amount: math.Inf(1), wantErr: biddingerrors.ErrInvalidBid},
		{name: "sub_cent_amount", auctionID: "active", bidderID: "b", amount: 100.001, wantErr: biddingerrors.ErrInvalidBid},
		{name: "missing_auction", auctionID: "nope", bidderID: "b", amount: 100, wantErr: biddingerrors.ErrNotFound},
		{name: "not_yet_live", auctionID: "scheduled", bidderID: "b", amount: 100, wantErr: biddingerrors.ErrInvalidState},
		{name: "already_ended", auctionID: "pending", bidderID: "b", amount: 100, wantErr: biddingerrors.ErrAuctionNotActive},
		// state is checked before ownership
		{name: "seller_on_ended_auction", auctionID: "pending", bidderID: "seller", amount: 100, wantErr: biddingerrors.ErrInvalidState},
		{name: "seller_bids_own_auction", auctionID: "active", bidderID: "seller", amount: 500, wantErr: biddingerrors.ErrUnauthorized},
		// existence, state and ownership are checked before the amount is parsed
		{name: "malformed_amount_on_missing_auction", auctionID: "nope", bidderID: "b", amount: -50, wantErr: biddingerrors.ErrAuctionNotFound},
		{name: "malformed_amount_on_ended_auction", auctionID: "pending", bidderID: "b", amount: math.NaN(), wantErr: biddingerrors.ErrAuctionNotActive},
		{name: "seller_malformed_amount", auctionID: "active", bidderID: "seller", amount: 100.001, wantErr: biddingerrors.ErrSellerCannotBid},
		// ownership is checked before amount
		{name: "seller_bids_too_low", auctionID: "active", bidderID: "seller", amount: 1, wantErr: biddingerrors.ErrSellerCannotBid},
		{name: "below_starting_price", auctionID: "active", bidderID: "b", amount: 99.99, wantErr: biddingerrors.ErrBidTooLow},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PlaceBid(ctx, tc.auctionID, tc.bidderID, tc.amount)
			require.Error(t, err)
			require.True(t, errors.Is(err, tc.wantErr), "expected error: %v, got: %v", tc.wantErr, err)
		})
	}

	// nothing was applied
	for _, id := range []string{"active", "scheduled", "pending"} {
		bids, err := f.repo.GetBidsByAuction(ctx, id)
		require.NoError(t, err)
		require.Empty(t, bids)
		_, ok := f.highest(t, id)
		require.False(t, ok)
		require.False(t, f.backend.Held(lock.AuctionKey(id), time.Now()))
	}
	require.Empty(t, f.events.kinds())
}

// Tests two simultaneous bids after a leading 110: whichever commits first
// wins and the other no longer meets the new minimum.
func TestBiddingService_PlaceBid_ConcurrentPair(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5*time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	_, err := f.svc.PlaceBid(ctx, "a1", "bidderB", 110)
	require.NoError(t, err)

	amounts := map[string]float64{"bidderC": 120, "bidderD": 115}
	errs := make(map[string]error)
	var mu sync.Mutex
	var wg sync.WaitGroup
	start := make(chan struct{})
	for bidder, amount := range amounts {
		wg.Add(1)
		go func(bidder string, amount float64) {
			defer wg.Done()
			<-start
			_, err := f.svc.PlaceBid(ctx, "a1", bidder, amount)
			mu.Lock()
			errs[bidder] = err
			mu.Unlock()
		}(bidder, amount)
	}
	close(start)
	wg.Wait()

	var winners []string
	for bidder, err := range errs {
		if err == nil {
			winners = append(winners, bidder)
			continue
		}
		require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	}
	require.Len(t, winners, 1)

	rec, ok := f.highest(t, "a1")
	require.True(t, ok)
	require.Equal(t, winners[0], rec.BidderID)
	require.Equal(t, amounts[winners[0]], rec.Amount)
}

// Tests that concurrent admissions are linearized: accepted bids form a
// sequence where every bid meets the minimum set by its predecessor.
func TestBiddingService_PlaceBid_Linearizable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 10*time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	const bidders = 40
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := float64(100 + (i%10)*7 + (i/10)*40)
			_, err := f.svc.PlaceBid(ctx, "a1", fmt.Sprintf("bidder-%d", i), amount)
			if err != nil {
				require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
			}
		}(i)
	}
	wg.Wait()

	bids, err := f.repo.GetBidsByAuction(ctx, "a1")
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	require.GreaterOrEqual(t, bids[0].Amount, 100.0)

	maxAmount := bids[0].Amount
	for i := 1; i < len(bids); i++ {
		require.GreaterOrEqual(t, bids[i].Amount, bids[i-1].Amount+10, "bid %d admitted below the minimum", i)
		require.Greater(t, bids[i].BidID, bids[i-1].BidID)
		maxAmount = math.Max(maxAmount, bids[i].Amount)
	}

	rec, ok := f.highest(t, "a1")
	require.True(t, ok)
	require.Equal(t, maxAmount, rec.Amount)
	require.Equal(t, bids[len(bids)-1].BidderID, rec.BidderID)
}

// Tests that lease contention surfaces as a retryable busy error
func TestBiddingService_PlaceBid_Busy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0)
	f.addAuction(t, "a1", model.StatusActive)

	held, err := f.locks.Acquire(ctx, lock.AuctionKey("a1"), time.Minute)
	require.NoError(t, err)

	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.ErrorIs(t, err, biddingerrors.ErrBusy)
	require.NotErrorIs(t, err, biddingerrors.ErrValidationFailed)

	bids, _ := f.repo.GetBidsByAuction(ctx, "a1")
	require.Empty(t, bids)

	require.NoError(t, f.locks.Release(ctx, held))
	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)
}

// Tests that a failed durable write leaves the cache untouched
func TestBiddingService_PlaceBid_StorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockRepo := repository.NewMockAuctionDB(ctrl)
	highest := cache.NewMemoryCache()
	backend := lock.NewMemoryBackend()
	events := &recordingNotifier{}
	svc := NewBiddingService(mockRepo, highest, lock.NewManager(backend, clock.NewSystem(), 0), events)

	prev := model.HighestBidRecord{AuctionID: "a1", Amount: 110, BidderID: "bidderB"}
	require.NoError(t, highest.Set(ctx, prev))

	mockRepo.EXPECT().GetAuction(gomock.Any(), "a1").
		Return(model.Auction{AuctionID: "a1", SellerID: "seller", StartingPrice: 100, BidIncrement: 10, Status: model.StatusActive}, nil)
	mockRepo.EXPECT().AppendBid(gomock.Any(), "a1", "bidderC", 120.0, gomock.Any()).
		Return(model.Bid{}, errors.New("repo write failed"))

	_, err := svc.PlaceBid(ctx, "a1", "bidderC", 120)
	require.ErrorIs(t, err, biddingerrors.ErrStorageFailure)

	rec, ok, err := highest.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, prev, rec)
	require.False(t, backend.Held(lock.AuctionKey("a1"), time.Now()))
	require.Empty(t, events.kinds())
}

// Tests that a panic during admission does not leave the lease held
func TestBiddingService_PlaceBid_PanicReleasesLease(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := repository.NewMockAuctionDB(ctrl)
	backend := lock.NewMemoryBackend()
	svc := NewBiddingService(mockRepo, cache.NewMemoryCache(), lock.NewManager(backend, clock.NewSystem(), 0), notifier.Nop{})

	mockRepo.EXPECT().GetAuction(gomock.Any(), "a1").
		DoAndReturn(func(context.Context, string) (model.Auction, error) {
			panic("driver exploded")
		})

	require.Panics(t, func() {
		_, _ = svc.PlaceBid(context.Background(), "a1", "bidderA", 100)
	})
	require.False(t, backend.Held(lock.AuctionKey("a1"), time.Now()))
}

// Tests that a lost cache is rebuilt from the durable bid history
func TestBiddingService_PlaceBid_CacheRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	_, err := f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(ctx, "a1", "bidderB", 130)
	require.NoError(t, err)

	// simulate a restarted cache
	require.NoError(t, f.cache.Clear(ctx, "a1"))

	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 135)
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)

	rec, ok := f.highest(t, "a1")
	require.True(t, ok, "cache should be rebuilt from the store")
	require.Equal(t, 130.0, rec.Amount)

	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 140)
	require.NoError(t, err)
}

type failingCache struct {
	*cache.MemoryCache
	cleared []string
}

func (c *failingCache) Set(context.Context, model.HighestBidRecord) error {
	return errors.New("cache unavailable")
}

func (c *failingCache) Clear(ctx context.Context, auctionID string) error {
	c.cleared = append(c.cleared, auctionID)
	return c.MemoryCache.Clear(ctx, auctionID)
}

// Tests that a bid persisted with a failed cache write is still accepted
func TestBiddingService_PlaceBid_CacheWriteFailure(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	require.NoError(t, repo.CreateAuction(ctx, model.Auction{AuctionID: "a1", SellerID: "seller", StartingPrice: 100, BidIncrement: 10, Status: model.StatusActive}))

	fc := &failingCache{MemoryCache: cache.NewMemoryCache()}
	svc := NewBiddingService(repo, fc, lock.NewManager(lock.NewMemoryBackend(), clock.NewSystem(), 0), notifier.Nop{})

	bid, err := svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)
	require.Equal(t, []string{"a1"}, fc.cleared)

	latest, err := repo.LatestBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, bid, latest)

	// the next admission validates against the store
	_, err = svc.PlaceBid(ctx, "a1", "bidderB", 105)
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
}

// Tests the events published for accepted bids
func TestBiddingService_PlaceBid_Events(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	_, err := f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)
	// raising your own bid does not outbid yourself
	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 110)
	require.NoError(t, err)
	_, err = f.svc.PlaceBid(ctx, "a1", "bidderB", 120)
	require.NoError(t, err)

	kinds := f.events.kinds()
	require.Equal(t, []notifier.EventKind{notifier.KindNewBid, notifier.KindNewBid, notifier.KindNewBid}, kinds["auction:a1"])
	require.Equal(t, []notifier.EventKind{notifier.KindOutbid}, kinds["user:bidderA"])
	require.Equal(t, []notifier.EventKind{notifier.KindSellerNotified, notifier.KindSellerNotified, notifier.KindSellerNotified}, kinds["user:seller"])
	require.Empty(t, kinds["user:bidderB"])

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	last := f.events.msgs[len(f.events.msgs)-1]
	require.Equal(t, "user:seller", last.Topic)
	require.Equal(t, 120.0, last.Event.Amount)
	require.Equal(t, "bidderB", last.Event.BidderID)
}

// Tests GetHighestBid and RebuildHighestBid
func TestBiddingService_HighestBid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	_, err := f.svc.GetHighestBid(ctx, "a1")
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)

	_, err = f.svc.GetHighestBid(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)

	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)

	rec, err := f.svc.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 100.0, rec.Amount)

	// reads fall back to the store without repopulating the cache
	require.NoError(t, f.cache.Clear(ctx, "a1"))
	rec, err = f.svc.GetHighestBid(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, "bidderA", rec.BidderID)
	_, ok := f.highest(t, "a1")
	require.False(t, ok)

	require.NoError(t, f.svc.RebuildHighestBid(ctx, "a1"))
	rec, ok = f.highest(t, "a1")
	require.True(t, ok)
	require.Equal(t, 100.0, rec.Amount)

	// rebuilding an auction without bids clears stale entries
	f.addAuction(t, "a2", model.StatusActive)
	require.NoError(t, f.cache.Set(ctx, model.HighestBidRecord{AuctionID: "a2", Amount: 999}))
	require.NoError(t, f.svc.RebuildHighestBid(ctx, "a2"))
	_, ok = f.highest(t, "a2")
	require.False(t, ok)
}

// Tests GetBidsForAuction
func TestBiddingService_GetBidsForAuction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Second)
	f.addAuction(t, "a1", model.StatusActive)

	_, err := f.svc.GetBidsForAuction(ctx, "")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidBid)

	_, err = f.svc.GetBidsForAuction(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	_, err = f.svc.PlaceBid(ctx, "a1", "bidderA", 100)
	require.NoError(t, err)
	bids, err := f.svc.GetBidsForAuction(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 1)
}

func TestMinimumBid(t *testing.T) {
	a := model.Auction{StartingPrice: 100, BidIncrement: 0.1}
	require.Equal(t, "100.00", MinimumBid(a, nil).StringFixed(2))

	// 100.2 + 0.1 must be exactly 100.30, not 100.30000000000001
	min := MinimumBid(a, &model.HighestBidRecord{Amount: 100.2})
	require.Equal(t, "100.30", min.StringFixed(2))
	require.True(t, meetsMinimum(100.3, min))
	require.False(t, meetsMinimum(100.29, min))
}
