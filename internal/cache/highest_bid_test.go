package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	model "auction-engine/internal/models"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGetClear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_, ok, err := c.Get(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)

	rec := model.HighestBidRecord{AuctionID: "a1", Amount: 110, BidderID: "bidderB", ObservedAt: time.Now().UTC()}
	require.NoError(t, c.Set(ctx, rec))

	got, ok, err := c.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec, got)

	// overwrite
	rec.Amount = 120
	rec.BidderID = "bidderC"
	require.NoError(t, c.Set(ctx, rec))
	got, _, _ = c.Get(ctx, "a1")
	require.Equal(t, 120.0, got.Amount)
	require.Equal(t, "bidderC", got.BidderID)

	require.NoError(t, c.Clear(ctx, "a1"))
	_, ok, _ = c.Get(ctx, "a1")
	require.False(t, ok)
	require.Equal(t, 0, c.Len())

	// clearing a missing key is not an error
	require.NoError(t, c.Clear(ctx, "missing"))
}

func TestMemoryCache_ConcurrentAuctions(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("auction-%d", i)
			require.NoError(t, c.Set(ctx, model.HighestBidRecord{AuctionID: id, Amount: float64(i)}))
		}(i)
	}
	wg.Wait()

	require.Equal(t, 50, c.Len())
	got, ok, err := c.Get(ctx, "auction-42")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 42.0, got.Amount)
}

func TestNone_AlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var c HighestBidCache = None{}

	require.NoError(t, c.Set(ctx, model.HighestBidRecord{AuctionID: "a1", Amount: 10}))
	_, ok, err := c.Get(ctx, "a1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Clear(ctx, "a1"))
}
