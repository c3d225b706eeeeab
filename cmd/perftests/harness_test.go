package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/cache"
	"auction-engine/internal/clock"
	"auction-engine/internal/lock"
	model "auction-engine/internal/models"
	"auction-engine/internal/notifier"
	"auction-engine/internal/repository"
)

// newBiddingStack creates the bidding service over in-memory stores with
// numAuctions live auctions named auction_0..auction_n-1
func newBiddingStack(tb testing.TB, numAuctions int) (*repository.MemoryRepo, *bidding.BiddingService) {
	tb.Helper()

	repo := repository.NewMemoryRepo()
	clk := clock.NewSystem()
	locks := lock.NewManager(lock.NewMemoryBackend(), clk, time.Second, lock.WithRetryInterval(100*time.Microsecond))
	svc := bidding.NewBiddingService(repo, cache.NewMemoryCache(), locks, notifier.NewHub(), bidding.WithClock(clk))

	now := clk.Now()
	for i := 0; i < numAuctions; i++ {
		err := repo.CreateAuction(context.Background(), model.Auction{
			AuctionID:       fmt.Sprintf("auction_%d", i),
			SellerID:        "seller",
			ItemName:        fmt.Sprintf("item_%d", i),
			StartingPrice:   50,
			BidIncrement:    1,
			GoLiveAt:        now.Add(-time.Minute),
			DurationSeconds: 3600,
			Status:          model.StatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			tb.Fatalf("failed to seed auction: %v", err)
		}
	}
	return repo, svc
}
