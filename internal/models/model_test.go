package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuctionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from AuctionStatus
		to   AuctionStatus
		want bool
	}{
		{StatusScheduled, StatusActive, true},
		{StatusActive, StatusDecisionPending, true},
		{StatusDecisionPending, StatusAccepted, true},
		{StatusDecisionPending, StatusRejected, true},
		{StatusDecisionPending, StatusClosedNoWinner, true},
		{StatusScheduled, StatusDecisionPending, false},
		{StatusActive, StatusAccepted, false},
		{StatusAccepted, StatusRejected, false},
		{StatusActive, StatusScheduled, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			require.Equal(t, tc.want, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestAuctionStatus_IsTerminal(t *testing.T) {
	require.False(t, StatusScheduled.IsTerminal())
	require.False(t, StatusActive.IsTerminal())
	require.False(t, StatusDecisionPending.IsTerminal())
	require.True(t, StatusAccepted.IsTerminal())
	require.True(t, StatusRejected.IsTerminal())
	require.True(t, StatusClosedNoWinner.IsTerminal())
	require.False(t, AuctionStatus("ended").Valid())
}

func TestAuction_EndsAt(t *testing.T) {
	start := time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC)
	a := Auction{GoLiveAt: start, DurationSeconds: 90}
	require.Equal(t, start.Add(90*time.Second), a.EndsAt())
}
