package notifier

import (
	"context"
	"fmt"

	model "auction-engine/internal/models"
)

// NotificationWriter persists notifications. AddNotification must ignore a
// notification whose id already exists.
type NotificationWriter interface {
	AddNotification(ctx context.Context, n model.Notification) error
}

// Recorder stores every user-targeted event as a notification. Room-wide
// events are ignored. The event id doubles as the notification id, so
// redelivery does not duplicate rows.
type Recorder struct {
	store NotificationWriter
}

func NewRecorder(store NotificationWriter) *Recorder {
	return &Recorder{store: store}
}

func (r *Recorder) Publish(ctx context.Context, topic string, event Event) error {
	userID, ok := UserFromTopic(topic)
	if !ok {
		return nil
	}

	n := model.Notification{
		NotificationID: event.EventID,
		UserID:         userID,
		Kind:           string(event.Kind),
		AuctionID:      event.AuctionID,
		Message:        Describe(event),
		CreatedAt:      event.OccurredAt,
	}
	if err := r.store.AddNotification(ctx, n); err != nil {
		return fmt.Errorf("record notification for %s: %w", userID, err)
	}
	return nil
}

// Describe renders a short human-readable message for an event
func Describe(e Event) string {
	if e.Message != "" {
		return e.Message
	}
	switch e.Kind {
	case KindNewBid:
		return fmt.Sprintf("New bid of %.2f", e.Amount)
	case KindOutbid:
		return fmt.Sprintf("You were outbid, the leading bid is now %.2f", e.Amount)
	case KindSellerNotified:
		return fmt.Sprintf("Your auction received a bid of %.2f", e.Amount)
	case KindAuctionActive:
		return fmt.Sprintf("Auction is live for %d seconds", e.CountdownSeconds)
	case KindAuctionEnded:
		return "Auction has ended"
	case KindSellerActionRequired:
		if e.Highest != nil {
			return fmt.Sprintf("Auction ended with a top bid of %.2f, accept or reject it", e.Highest.Amount)
		}
		return "Auction ended, a decision is required"
	case KindSellerDecision:
		return fmt.Sprintf("The seller %s your bid", e.Decision)
	case KindAuctionResult:
		return fmt.Sprintf("Auction closed as %s", e.Status)
	default:
		return string(e.Kind)
	}
}
