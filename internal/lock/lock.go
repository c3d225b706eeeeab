package lock

import (
	"context"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	"auction-engine/utils"
)

// Lease is an exclusive, time-bounded claim on a key. Only the holder of the
// token can release it; otherwise it lapses at ExpiresAt.
type Lease struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// Backend is a keyed set-if-absent-or-expired primitive.
type Backend interface {
	// TryAcquire stores token under key unless an unexpired lease exists.
	TryAcquire(ctx context.Context, key, token string, now, expiresAt time.Time) (bool, error)
	// Release drops the lease on key if it is still held by token.
	Release(ctx context.Context, key, token string) error
}

// Locker is what services need from a lease manager
type Locker interface {
	Acquire(ctx context.Context, key string, leaseFor time.Duration) (Lease, error)
	Release(ctx context.Context, lease Lease) error
}

// AuctionKey is the lease key serializing work on one auction
func AuctionKey(auctionID string) string {
	return "auction:" + auctionID + ":lock"
}

const defaultRetryEvery = 10 * time.Millisecond

// Manager hands out leases with a bounded acquisition wait
type Manager struct {
	backend    Backend
	clock      clock.Clock
	wait       time.Duration
	retryEvery time.Duration
}

type ManagerOption func(*Manager)

// WithRetryInterval sets how often a contended key is re-tried while waiting
func WithRetryInterval(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.retryEvery = d
		}
	}
}

// NewManager creates a Manager. wait bounds how long Acquire blocks before
// giving up with ErrLeaseBusy; zero means a single attempt.
func NewManager(backend Backend, clk clock.Clock, wait time.Duration, opts ...ManagerOption) *Manager {
	m := &Manager{
		backend:    backend,
		clock:      clk,
		wait:       wait,
		retryEvery: defaultRetryEvery,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire obtains an exclusive lease on key valid for leaseFor.
func (m *Manager) Acquire(ctx context.Context, key string, leaseFor time.Duration) (Lease, error) {
	token := utils.GenerateID()
	deadline := time.NewTimer(m.wait)
	defer deadline.Stop()

	for {
		now := m.clock.Now()
		ok, err := m.backend.TryAcquire(ctx, key, token, now, now.Add(leaseFor))
		if err != nil {
			return Lease{}, biddingerrors.Storage("lock: acquire "+key, err)
		}
		if ok {
			return Lease{Key: key, Token: token, ExpiresAt: now.Add(leaseFor)}, nil
		}
		if m.wait <= 0 {
			return Lease{}, fmt.Errorf("lock: %s: %w", key, biddingerrors.ErrLeaseBusy)
		}

		select {
		case <-ctx.Done():
			return Lease{}, fmt.Errorf("lock: %s: %w: %w", key, biddingerrors.ErrLeaseBusy, ctx.Err())
		case <-deadline.C:
			return Lease{}, fmt.Errorf("lock: %s: %w", key, biddingerrors.ErrLeaseBusy)
		case <-time.After(m.retryEvery):
		}
	}
}

// Release gives the lease back. Releasing a lease that already lapsed, or
// was taken over after expiry, is a no-op.
func (m *Manager) Release(ctx context.Context, lease Lease) error {
	if err := m.backend.Release(ctx, lease.Key, lease.Token); err != nil {
		return biddingerrors.Storage("lock: release "+lease.Key, err)
	}
	return nil
}
