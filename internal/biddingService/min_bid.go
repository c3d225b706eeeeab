package bidding

import (
	"math"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

const monetaryPrecision = 2

// MinimumBid returns the lowest acceptable next bid: the starting price when
// nobody has bid yet, otherwise the leading amount plus the increment.
func MinimumBid(auction model.Auction, highest *model.HighestBidRecord) decimal.Decimal {
	if highest == nil {
		return decimal.NewFromFloat(auction.StartingPrice).Round(monetaryPrecision)
	}
	return decimal.NewFromFloat(highest.Amount).
		Add(decimal.NewFromFloat(auction.BidIncrement)).
		Round(monetaryPrecision)
}

// meetsMinimum reports amount >= min. Equality is accepted.
func meetsMinimum(amount float64, min decimal.Decimal) bool {
	return decimal.NewFromFloat(amount).GreaterThanOrEqual(min)
}

// validAmount rejects non-finite, non-positive and sub-cent amounts.
func validAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return biddingerrors.ErrInvalidBid
	}
	if amount <= 0 {
		return biddingerrors.ErrInvalidBid
	}
	d := decimal.NewFromFloat(amount)
	if !d.Equal(d.Round(monetaryPrecision)) {
		return biddingerrors.ErrInvalidBid
	}
	return nil
}
