package models

import "time"

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusScheduled       AuctionStatus = "scheduled"
	StatusActive          AuctionStatus = "active"
	StatusDecisionPending AuctionStatus = "decision_pending"
	StatusAccepted        AuctionStatus = "accepted"
	StatusRejected        AuctionStatus = "rejected"
	StatusClosedNoWinner  AuctionStatus = "closed_no_winner"
)

// MinDurationSeconds is the shortest auction a seller may list
const MinDurationSeconds = 60

var transitions = map[AuctionStatus][]AuctionStatus{
	StatusScheduled:       {StatusActive},
	StatusActive:          {StatusDecisionPending},
	StatusDecisionPending: {StatusAccepted, StatusRejected, StatusClosedNoWinner},
}

// CanTransitionTo reports whether next is a legal successor of s
func (s AuctionStatus) CanTransitionTo(next AuctionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s AuctionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Valid reports whether s is one of the known states
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusActive, StatusDecisionPending, StatusAccepted, StatusRejected, StatusClosedNoWinner:
		return true
	}
	return false
}

// Auction represents a timed single-item auction
type Auction struct {
	AuctionID       string        `json:"auction_id"`
	SellerID        string        `json:"seller_id"`
	ItemName        string        `json:"item_name"`
	Description     string        `json:"description,omitempty"`
	StartingPrice   float64       `json:"starting_price"`
	BidIncrement    float64       `json:"bid_increment"`
	GoLiveAt        time.Time     `json:"go_live_at"`
	DurationSeconds int           `json:"duration_seconds"`
	Status          AuctionStatus `json:"status"`
	WinnerID        *string       `json:"winner_id,omitempty"`
	FinalPrice      *float64      `json:"final_price,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// EndsAt returns the instant bidding closes
func (a Auction) EndsAt() time.Time {
	return a.GoLiveAt.Add(time.Duration(a.DurationSeconds) * time.Second)
}

// Bid represents an accepted bid. Bids are append-only.
type Bid struct {
	BidID     int64     `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// HighestBidRecord is the cached leading bid of an auction
type HighestBidRecord struct {
	AuctionID  string    `json:"auction_id"`
	Amount     float64   `json:"amount"`
	BidderID   string    `json:"bidder_id"`
	ObservedAt time.Time `json:"observed_at"`
}

// HighestFromBid derives the cache record for a committed bid
func HighestFromBid(b Bid) HighestBidRecord {
	return HighestBidRecord{
		AuctionID:  b.AuctionID,
		Amount:     b.Amount,
		BidderID:   b.BidderID,
		ObservedAt: b.CreatedAt,
	}
}

// Notification is a persisted, user-targeted message
type Notification struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Kind           string    `json:"kind"`
	AuctionID      string    `json:"auction_id"`
	Message        string    `json:"message"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}
