package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	entryStart = "start"
	entryEnd   = "end"
)

// ScheduleIndex is the durable form of schedule.TimeIndex. A pop deletes
// the due rows and returns them in one statement, so concurrent sweepers on
// different nodes never receive the same entry.
type ScheduleIndex struct {
	pool *pgxpool.Pool
}

func NewScheduleIndex(pool *pgxpool.Pool) *ScheduleIndex {
	return &ScheduleIndex{pool: pool}
}

func (s *ScheduleIndex) AddStart(ctx context.Context, at time.Time, auctionID string) error {
	return s.add(ctx, entryStart, at, auctionID)
}

func (s *ScheduleIndex) AddEnd(ctx context.Context, at time.Time, auctionID string) error {
	return s.add(ctx, entryEnd, at, auctionID)
}

func (s *ScheduleIndex) PopDueStarts(ctx context.Context, now time.Time) ([]string, error) {
	return s.popDue(ctx, entryStart, now)
}

func (s *ScheduleIndex) PopDueEnds(ctx context.Context, now time.Time) ([]string, error) {
	return s.popDue(ctx, entryEnd, now)
}

func (s *ScheduleIndex) add(ctx context.Context, kind string, at time.Time, auctionID string) error {
	const stmt = `
INSERT INTO schedule_entries (kind, auction_id, due_at)
VALUES ($1, $2, $3)
ON CONFLICT (kind, auction_id) DO UPDATE SET due_at = EXCLUDED.due_at`
	if _, err := s.pool.Exec(ctx, stmt, kind, auctionID, at); err != nil {
		return fmt.Errorf("add %s entry for auction %s: %w", kind, auctionID, err)
	}
	return nil
}

func (s *ScheduleIndex) popDue(ctx context.Context, kind string, now time.Time) ([]string, error) {
	const stmt = `
DELETE FROM schedule_entries
WHERE kind = $1 AND due_at <= $2
RETURNING auction_id, due_at`
	rows, err := s.pool.Query(ctx, stmt, kind, now)
	if err != nil {
		return nil, fmt.Errorf("pop due %s entries: %w", kind, err)
	}
	defer rows.Close()

	type due struct {
		id string
		at time.Time
	}
	var entries []due
	for rows.Next() {
		var d due
		if err := rows.Scan(&d.id, &d.at); err != nil {
			return nil, fmt.Errorf("scan %s entry: %w", kind, err)
		}
		entries = append(entries, d)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate %s entries: %w", kind, rows.Err())
	}

	// RETURNING order is unspecified
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].at.Equal(entries[j].at) {
			return entries[i].id < entries[j].id
		}
		return entries[i].at.Before(entries[j].at)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids, nil
}
