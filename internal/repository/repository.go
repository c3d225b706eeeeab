package repository

import (
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the durable storage interface for auctions and bids
type AuctionDB interface {
	CreateAuction(ctx context.Context, auction model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error)
	// SaveAuction writes status, winner and final price only if the stored
	// status still equals expected. Other fields are immutable.
	SaveAuction(ctx context.Context, auction model.Auction, expected model.AuctionStatus) error
	AppendBid(ctx context.Context, auctionID, bidderID string, amount float64, at time.Time) (model.Bid, error)
	LatestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error)
}

// NotificationDB stores user notifications
type NotificationDB interface {
	AddNotification(ctx context.Context, n model.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) error
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB and NotificationDB
type MemoryRepo struct {
	mu            sync.RWMutex
	auctions      map[string]model.Auction      // key: auctionID
	bids          map[string][]model.Bid        // key: auctionID -> bids in commit order
	notifications map[string]model.Notification // key: notificationID
	userNotes     map[string][]string           // key: userID -> notification ids
	nextBidID     int64
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:      make(map[string]model.Auction),
		bids:          make(map[string][]model.Bid),
		notifications: make(map[string]model.Notification),
		userNotes:     make(map[string][]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, auction model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[auction.AuctionID]; exists {
		return fmt.Errorf("create auction %s: %w", auction.AuctionID, biddingerrors.ErrInvalidAuction)
	}
	r.auctions[auction.AuctionID] = auction
	return nil
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListAuctions returns auctions ordered by go-live time; an empty status matches all
func (r *MemoryRepo) ListAuctions(_ context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].GoLiveAt.Equal(out[j].GoLiveAt) {
			return out[i].AuctionID < out[j].AuctionID
		}
		return out[i].GoLiveAt.Before(out[j].GoLiveAt)
	})
	return out, nil
}

// SaveAuction performs a compare-and-swap on the auction status
func (r *MemoryRepo) SaveAuction(_ context.Context, auction model.Auction, expected model.AuctionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.auctions[auction.AuctionID]
	if !ok {
		return fmt.Errorf("save auction %s: %w", auction.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	if cur.Status != expected {
		return fmt.Errorf("save auction %s: status is %s, expected %s: %w", auction.AuctionID, cur.Status, expected, biddingerrors.ErrStatusConflict)
	}

	cur.Status = auction.Status
	cur.WinnerID = auction.WinnerID
	cur.FinalPrice = auction.FinalPrice
	cur.UpdatedAt = auction.UpdatedAt
	r.auctions[auction.AuctionID] = cur
	return nil
}

// AppendBid records a bid and assigns it the next sequence number
func (r *MemoryRepo) AppendBid(_ context.Context, auctionID, bidderID string, amount float64, at time.Time) (model.Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return model.Bid{}, fmt.Errorf("append bid for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	r.nextBidID++
	bid := model.Bid{
		BidID:     r.nextBidID,
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: at,
	}
	r.bids[auctionID] = append(r.bids[auctionID], bid)
	return bid, nil
}

// LatestBid returns the most recently committed bid for an auction
func (r *MemoryRepo) LatestBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("latest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return bids[len(bids)-1], nil
}

// GetBidsByAuction returns all bids for an auction in commit order
func (r *MemoryRepo) GetBidsByAuction(_ context.Context, auctionID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return append([]model.Bid{}, r.bids[auctionID]...), nil
}

// AddNotification stores a notification; an existing id is left untouched
func (r *MemoryRepo) AddNotification(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.notifications[n.NotificationID]; exists {
		return nil
	}
	r.notifications[n.NotificationID] = n
	r.userNotes[n.UserID] = append(r.userNotes[n.UserID], n.NotificationID)
	return nil
}

// ListNotifications returns a user's notifications, newest first
func (r *MemoryRepo) ListNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.userNotes[userID]
	out := make([]model.Notification, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, r.notifications[ids[i]])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkNotificationRead flags a user's notification as read
func (r *MemoryRepo) MarkNotificationRead(_ context.Context, userID, notificationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.notifications[notificationID]
	if !ok || n.UserID != userID {
		return fmt.Errorf("mark notification %s read: %w", notificationID, biddingerrors.ErrNotificationNotFound)
	}
	n.Read = true
	r.notifications[notificationID] = n
	return nil
}
