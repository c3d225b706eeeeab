// Package postgres implements the durable store, the lease backend and the
// schedule index on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements repository.AuctionDB and repository.NotificationDB
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn in a transaction; store calls made with the ctx passed to fn join it
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

const auctionColumns = `auction_id, seller_id, item_name, description, starting_price, bid_increment,
	go_live_at, duration_seconds, status, winner_id, final_price, created_at, updated_at`

func scanAuction(row pgx.Row) (model.Auction, error) {
	var a model.Auction
	err := row.Scan(
		&a.AuctionID, &a.SellerID, &a.ItemName, &a.Description, &a.StartingPrice, &a.BidIncrement,
		&a.GoLiveAt, &a.DurationSeconds, &a.Status, &a.WinnerID, &a.FinalPrice, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.GoLiveAt = a.GoLiveAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (s *Store) CreateAuction(ctx context.Context, a model.Auction) error {
	const stmt = `
INSERT INTO auctions (` + auctionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := conn(ctx, s.pool).Exec(ctx, stmt,
		a.AuctionID, a.SellerID, a.ItemName, a.Description, a.StartingPrice, a.BidIncrement,
		a.GoLiveAt, a.DurationSeconds, a.Status, a.WinnerID, a.FinalPrice, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrInvalidAuction)
		}
		return fmt.Errorf("create auction: %w", err)
	}
	return nil
}

func (s *Store) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	const query = `SELECT ` + auctionColumns + ` FROM auctions WHERE auction_id = $1`
	a, err := scanAuction(conn(ctx, s.pool).QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	return a, nil
}

func (s *Store) ListAuctions(ctx context.Context, status model.AuctionStatus) ([]model.Auction, error) {
	const query = `
SELECT ` + auctionColumns + `
FROM auctions
WHERE $1::text = '' OR status = $1::text
ORDER BY go_live_at ASC, auction_id ASC`
	rows, err := conn(ctx, s.pool).Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}
	defer rows.Close()

	auctions := []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate auctions: %w", rows.Err())
	}
	return auctions, nil
}

// SaveAuction locks the row, checks it still holds expected and writes the
// transition in one transaction
func (s *Store) SaveAuction(ctx context.Context, a model.Auction, expected model.AuctionStatus) error {
	return s.WithTx(ctx, func(ctx context.Context) error {
		q := conn(ctx, s.pool)

		var current model.AuctionStatus
		err := q.QueryRow(ctx, `SELECT status FROM auctions WHERE auction_id = $1 FOR UPDATE`, a.AuctionID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("save auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
		}
		if err != nil {
			return fmt.Errorf("check auction status: %w", err)
		}
		if current != expected {
			return fmt.Errorf("save auction %s: status is %s, expected %s: %w", a.AuctionID, current, expected, biddingerrors.ErrStatusConflict)
		}

		const stmt = `
UPDATE auctions
SET status = $2, winner_id = $3, final_price = $4, updated_at = $5
WHERE auction_id = $1`
		if _, err := q.Exec(ctx, stmt, a.AuctionID, a.Status, a.WinnerID, a.FinalPrice, a.UpdatedAt); err != nil {
			return fmt.Errorf("save auction: %w", err)
		}
		return nil
	})
}

const bidColumns = `bid_id, auction_id, bidder_id, amount, created_at`

func scanBid(row pgx.Row) (model.Bid, error) {
	var b model.Bid
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (s *Store) AppendBid(ctx context.Context, auctionID, bidderID string, amount float64, at time.Time) (model.Bid, error) {
	const stmt = `
INSERT INTO bids (auction_id, bidder_id, amount, created_at)
VALUES ($1, $2, $3, $4)
RETURNING ` + bidColumns
	b, err := scanBid(conn(ctx, s.pool).QueryRow(ctx, stmt, auctionID, bidderID, amount, at))
	if err != nil {
		if isForeignKeyViolation(err) {
			return model.Bid{}, fmt.Errorf("append bid for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Bid{}, fmt.Errorf("append bid: %w", err)
	}
	return b, nil
}

func (s *Store) LatestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	const query = `
SELECT ` + bidColumns + `
FROM bids
WHERE auction_id = $1
ORDER BY bid_id DESC
LIMIT 1`
	b, err := scanBid(conn(ctx, s.pool).QueryRow(ctx, query, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("latest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
		}
		return model.Bid{}, fmt.Errorf("latest bid: %w", err)
	}
	return b, nil
}

func (s *Store) GetBidsByAuction(ctx context.Context, auctionID string) ([]model.Bid, error) {
	q := conn(ctx, s.pool)

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check auction: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	const query = `
SELECT ` + bidColumns + `
FROM bids
WHERE auction_id = $1
ORDER BY bid_id ASC`
	rows, err := q.Query(ctx, query, auctionID)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	defer rows.Close()

	bids := []model.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate bids: %w", rows.Err())
	}
	return bids, nil
}

func (s *Store) AddNotification(ctx context.Context, n model.Notification) error {
	const stmt = `
INSERT INTO notifications (notification_id, user_id, kind, auction_id, message, read, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (notification_id) DO NOTHING`
	_, err := conn(ctx, s.pool).Exec(ctx, stmt, n.NotificationID, n.UserID, n.Kind, n.AuctionID, n.Message, n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("add notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	const query = `
SELECT notification_id, user_id, kind, auction_id, message, read, created_at
FROM notifications
WHERE user_id = $1
ORDER BY created_at DESC, seq DESC`
	rows, err := conn(ctx, s.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.NotificationID, &n.UserID, &n.Kind, &n.AuctionID, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt = n.CreatedAt.UTC()
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate notifications: %w", rows.Err())
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	const stmt = `UPDATE notifications SET read = TRUE WHERE notification_id = $1 AND user_id = $2`
	tag, err := conn(ctx, s.pool).Exec(ctx, stmt, notificationID, userID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark notification %s read: %w", notificationID, biddingerrors.ErrNotificationNotFound)
	}
	return nil
}
