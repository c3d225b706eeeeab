package biddingerrors

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the services wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrValidationFailed = errors.New("validation failed")
	ErrBusy             = errors.New("busy")
	ErrStorageFailure   = errors.New("storage failure")
)

// Repository-level errors
var (
	ErrAuctionNotFound      = fmt.Errorf("auction %w", ErrNotFound)
	ErrNoBids               = fmt.Errorf("no bids for auction: %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
	ErrStatusConflict       = fmt.Errorf("auction status changed concurrently: %w", ErrInvalidState)
)

// business logic errors
var (
	ErrAuctionNotActive  = fmt.Errorf("auction not active: %w", ErrInvalidState)
	ErrAuctionNotPending = fmt.Errorf("auction not awaiting decision: %w", ErrInvalidState)
	ErrSellerCannotBid   = fmt.Errorf("seller cannot bid on own auction: %w", ErrUnauthorized)
	ErrNotSeller         = fmt.Errorf("only the seller can decide: %w", ErrUnauthorized)
	ErrInvalidBid        = fmt.Errorf("invalid bid: %w", ErrValidationFailed)
	ErrBidTooLow         = fmt.Errorf("bid amount too low: %w", ErrValidationFailed)
	ErrInvalidAuction    = fmt.Errorf("invalid auction: %w", ErrValidationFailed)
	ErrInvalidDecision   = fmt.Errorf("invalid decision: %w", ErrValidationFailed)
	ErrLeaseBusy         = fmt.Errorf("auction is busy, retry: %w", ErrBusy)
)

// Storage wraps a persistence failure so it matches ErrStorageFailure while
// keeping the underlying cause inspectable.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
