// Package notifier defines the events the auction core publishes and the
// adapters that deliver them.
package notifier

import (
	"context"
	"errors"
	"time"

	model "auction-engine/internal/models"
	"auction-engine/utils"
)

// EventKind names what happened
type EventKind string

const (
	KindNewBid               EventKind = "new_bid"
	KindOutbid               EventKind = "outbid"
	KindSellerNotified       EventKind = "seller_notified"
	KindAuctionActive        EventKind = "auction_active"
	KindAuctionEnded         EventKind = "auction_ended"
	KindSellerActionRequired EventKind = "seller_action_required"
	KindSellerDecision       EventKind = "seller_decision"
	KindAuctionResult        EventKind = "auction_result"
)

// Event is the payload delivered to subscribers. Optional fields are set
// depending on Kind.
type Event struct {
	EventID          string                  `json:"event_id"`
	Kind             EventKind               `json:"kind"`
	AuctionID        string                  `json:"auction_id"`
	BidderID         string                  `json:"bidder_id,omitempty"`
	Amount           float64                 `json:"amount,omitempty"`
	CountdownSeconds int                     `json:"countdown_seconds,omitempty"`
	Highest          *model.HighestBidRecord `json:"highest,omitempty"`
	Decision         string                  `json:"decision,omitempty"`
	Status           model.AuctionStatus     `json:"status,omitempty"`
	Message          string                  `json:"message,omitempty"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

// NewEvent stamps a fresh id and time on an event of the given kind.
func NewEvent(kind EventKind, auctionID string, at time.Time) Event {
	return Event{
		EventID:    utils.GenerateID(),
		Kind:       kind,
		AuctionID:  auctionID,
		OccurredAt: at,
	}
}

// Notifier publishes an event to a topic
type Notifier interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// AuctionTopic is the room every watcher of an auction receives
func AuctionTopic(auctionID string) string {
	return "auction:" + auctionID
}

// UserTopic addresses a single user
func UserTopic(userID string) string {
	return "user:" + userID
}

// UserFromTopic returns the user id of a user topic
func UserFromTopic(topic string) (string, bool) {
	const prefix = "user:"
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	return topic[len(prefix):], true
}

// Multi delivers every event to all of its notifiers, even if some fail.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, topic string, event Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, topic, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, Event) error { return nil }

// LogNotifier writes every event to the structured log
type LogNotifier struct{}

func (LogNotifier) Publish(_ context.Context, topic string, event Event) error {
	utils.Info("event published", map[string]any{
		"topic":      topic,
		"event_id":   event.EventID,
		"kind":       event.Kind,
		"auction_id": event.AuctionID,
	})
	return nil
}

// PublishAll sends each (topic, event) pair and logs failures. Events are
// published after state is committed, so a delivery failure never undoes
// the change that caused it.
func PublishAll(ctx context.Context, n Notifier, msgs ...Message) {
	for _, msg := range msgs {
		if err := n.Publish(ctx, msg.Topic, msg.Event); err != nil {
			utils.Warn("failed to publish event", map[string]any{
				"topic":      msg.Topic,
				"kind":       msg.Event.Kind,
				"auction_id": msg.Event.AuctionID,
				"error":      err.Error(),
			})
		}
	}
}

// Message pairs an event with its destination topic
type Message struct {
	Topic string
	Event Event
}
