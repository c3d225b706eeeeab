package cache

import (
	"context"
	"sync"

	model "auction-engine/internal/models"
)

// HighestBidCache holds the leading bid per auction. It is a derived
// projection: anything stored here can be rebuilt from the bid history.
type HighestBidCache interface {
	Get(ctx context.Context, auctionID string) (model.HighestBidRecord, bool, error)
	Set(ctx context.Context, record model.HighestBidRecord) error
	Clear(ctx context.Context, auctionID string) error
}

// MemoryCache is a concurrency-safe in-process HighestBidCache
type MemoryCache struct {
	mu      sync.RWMutex
	records map[string]model.HighestBidRecord // key: auctionID
}

// NewMemoryCache creates an empty cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{records: make(map[string]model.HighestBidRecord)}
}

func (c *MemoryCache) Get(_ context.Context, auctionID string) (model.HighestBidRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[auctionID]
	return rec, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, record model.HighestBidRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.records[record.AuctionID] = record
	return nil
}

func (c *MemoryCache) Clear(_ context.Context, auctionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.records, auctionID)
	return nil
}

// Len returns the number of cached auctions
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// None never holds a record, so every read falls back to bid history. It is
// used when several processes share one store and a process-local cache
// could go stale.
type None struct{}

func (None) Get(context.Context, string) (model.HighestBidRecord, bool, error) {
	return model.HighestBidRecord{}, false, nil
}

func (None) Set(context.Context, model.HighestBidRecord) error { return nil }

func (None) Clear(context.Context, string) error { return nil }
