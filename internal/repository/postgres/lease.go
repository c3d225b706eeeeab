package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseBackend keeps auction leases in the leases table so several engine
// processes can share one database. It implements lock.Backend.
type LeaseBackend struct {
	pool *pgxpool.Pool
}

func NewLeaseBackend(pool *pgxpool.Pool) *LeaseBackend {
	return &LeaseBackend{pool: pool}
}

// TryAcquire takes key when it is free or its previous lease has expired
func (b *LeaseBackend) TryAcquire(ctx context.Context, key, token string, now, expiresAt time.Time) (bool, error) {
	const stmt = `
INSERT INTO leases (lease_key, token, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (lease_key) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
WHERE leases.expires_at <= $4`
	tag, err := b.pool.Exec(ctx, stmt, key, token, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops key only if token still holds it
func (b *LeaseBackend) Release(ctx context.Context, key, token string) error {
	const stmt = `DELETE FROM leases WHERE lease_key = $1 AND token = $2`
	if _, err := b.pool.Exec(ctx, stmt, key, token); err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	return nil
}
