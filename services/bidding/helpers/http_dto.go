package helpers

import (
	"time"

	model "auction-engine/internal/models"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

type BidResponse struct {
	BidID     int64   `json:"bid_id"`
	AuctionID string  `json:"auction_id"`
	BidderID  string  `json:"bidder_id"`
	Amount    float64 `json:"amount"`
	CreatedAt string  `json:"created_at"`
}

func NewBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type HighestBidResponse struct {
	AuctionID  string  `json:"auction_id"`
	BidderID   string  `json:"bidder_id"`
	Amount     float64 `json:"amount"`
	ObservedAt string  `json:"observed_at"`
}

func NewHighestBidResponse(h model.HighestBidRecord) HighestBidResponse {
	return HighestBidResponse{
		AuctionID:  h.AuctionID,
		BidderID:   h.BidderID,
		Amount:     h.Amount,
		ObservedAt: h.ObservedAt.UTC().Format(time.RFC3339Nano),
	}
}

type CreateAuctionRequest struct {
	ItemName        string    `json:"item_name" binding:"required"`
	Description     string    `json:"description"`
	StartingPrice   float64   `json:"starting_price" binding:"required,gt=0"`
	BidIncrement    float64   `json:"bid_increment" binding:"required,gt=0"`
	GoLiveAt        time.Time `json:"go_live_at" binding:"required"`
	DurationSeconds int       `json:"duration_seconds" binding:"required,gte=60"`
}

type DecisionRequest struct {
	Action string `json:"action" binding:"required"`
}
