package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	model "auction-engine/internal/models"

	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 8, 19, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recordingNotifier) Publish(_ context.Context, topic string, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, Message{Topic: topic, Event: event})
	return r.err
}

type memoryWriter struct {
	mu    sync.Mutex
	byID  map[string]model.Notification
	fail  bool
	calls int
}

func (w *memoryWriter) AddNotification(_ context.Context, n model.Notification) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.fail {
		return errors.New("db down")
	}
	if w.byID == nil {
		w.byID = make(map[string]model.Notification)
	}
	if _, ok := w.byID[n.NotificationID]; !ok {
		w.byID[n.NotificationID] = n
	}
	return nil
}

func TestTopics(t *testing.T) {
	require.Equal(t, "auction:a1", AuctionTopic("a1"))
	require.Equal(t, "user:u1", UserTopic("u1"))

	id, ok := UserFromTopic("user:u1")
	require.True(t, ok)
	require.Equal(t, "u1", id)

	_, ok = UserFromTopic("auction:a1")
	require.False(t, ok)
	_, ok = UserFromTopic("user:")
	require.False(t, ok)
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(KindNewBid, "a1", now)
	require.NotEmpty(t, e.EventID)
	require.Equal(t, KindNewBid, e.Kind)
	require.Equal(t, "a1", e.AuctionID)
	require.Equal(t, now, e.OccurredAt)
	require.NotEqual(t, e.EventID, NewEvent(KindNewBid, "a1", now).EventID)
}

func TestHub_SubscribePublish(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()

	room, cancelRoom := hub.Subscribe(AuctionTopic("a1"))
	user, cancelUser := hub.Subscribe(UserTopic("u1"))
	defer cancelUser()
	require.Equal(t, 1, hub.Subscribers(AuctionTopic("a1")))

	ev := NewEvent(KindNewBid, "a1", now)
	require.NoError(t, hub.Publish(ctx, AuctionTopic("a1"), ev))

	select {
	case got := <-room:
		require.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("expected event on room topic")
	}

	select {
	case <-user:
		t.Fatal("user topic must not receive room events")
	default:
	}

	cancelRoom()
	cancelRoom() // idempotent
	_, open := <-room
	require.False(t, open)
	require.Equal(t, 0, hub.Subscribers(AuctionTopic("a1")))

	// publishing without subscribers is fine
	require.NoError(t, hub.Publish(ctx, AuctionTopic("a1"), ev))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	ch, cancel := hub.Subscribe("auction:a1")
	defer cancel()

	for i := 0; i < defaultSubscriberBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, "auction:a1", NewEvent(KindNewBid, "a1", now)))
	}
	require.Len(t, ch, defaultSubscriberBuffer)
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("transport down")}
	m := Multi{failing, ok}

	err := m.Publish(context.Background(), "auction:a1", NewEvent(KindAuctionEnded, "a1", now))
	require.Error(t, err)
	require.Len(t, ok.msgs, 1)
	require.Len(t, failing.msgs, 1)
}

func TestPublishAll_IgnoresFailures(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("transport down")}
	PublishAll(context.Background(), failing,
		Message{Topic: "auction:a1", Event: NewEvent(KindNewBid, "a1", now)},
		Message{Topic: "user:u1", Event: NewEvent(KindOutbid, "a1", now)},
	)
	require.Len(t, failing.msgs, 2)
}

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	w := &memoryWriter{}
	r := NewRecorder(w)

	// room events are not persisted
	require.NoError(t, r.Publish(ctx, AuctionTopic("a1"), NewEvent(KindNewBid, "a1", now)))
	require.Equal(t, 0, w.calls)

	ev := NewEvent(KindOutbid, "a1", now)
	ev.Amount = 120
	require.NoError(t, r.Publish(ctx, UserTopic("u1"), ev))
	// redelivery is absorbed by the id
	require.NoError(t, r.Publish(ctx, UserTopic("u1"), ev))

	require.Len(t, w.byID, 1)
	n := w.byID[ev.EventID]
	require.Equal(t, "u1", n.UserID)
	require.Equal(t, "outbid", n.Kind)
	require.Equal(t, "a1", n.AuctionID)
	require.Contains(t, n.Message, "120.00")
	require.False(t, n.Read)

	w.fail = true
	require.Error(t, r.Publish(ctx, UserTopic("u1"), NewEvent(KindOutbid, "a1", now)))
}

func TestDescribe(t *testing.T) {
	highest := &model.HighestBidRecord{Amount: 150}
	tests := []struct {
		event Event
		want  string
	}{
		{Event{Kind: KindAuctionActive, CountdownSeconds: 60}, "Auction is live for 60 seconds"},
		{Event{Kind: KindSellerActionRequired, Highest: highest}, "Auction ended with a top bid of 150.00, accept or reject it"},
		{Event{Kind: KindSellerDecision, Decision: "rejected"}, "The seller rejected your bid"},
		{Event{Kind: KindAuctionResult, Status: model.StatusClosedNoWinner}, "Auction closed as closed_no_winner"},
		{Event{Kind: KindAuctionEnded, Message: "custom"}, "custom"},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, Describe(tc.event))
	}
}
