package pubsub

import (
	"testing"

	"github.com/tokmesh/cluster/internal/core/clusterid"
)

type recordingSubscriber struct {
	received [][]any
}

func (s *recordingSubscriber) Deliver(envelope []any) error {
	s.received = append(s.received, envelope)
	return nil
}

func alwaysOwns(clusterid.Slot) bool { return true }

func TestPublishFanoutToTwoSubscribers(t *testing.T) {
	b := New(alwaysOwns)
	c1 := &recordingSubscriber{}
	c2 := &recordingSubscriber{}

	b.Subscribe(1, c1, []string{"canal1"})
	b.Subscribe(2, c2, []string{"canal1"})

	count := b.Publish("canal1", "hello")

	if count != 2 {
		t.Fatalf("expected 2 deliveries, got %d", count)
	}
	if len(c1.received) != 1 || c1.received[0][2] != "hello" {
		t.Fatalf("c1 did not receive the message: %v", c1.received)
	}
	if len(c2.received) != 1 || c2.received[0][2] != "hello" {
		t.Fatalf("c2 did not receive the message: %v", c2.received)
	}
}

func TestPatternSubscriptionReceivesPmessage(t *testing.T) {
	b := New(alwaysOwns)
	sub := &recordingSubscriber{}
	b.PSubscribe(1, sub, []string{"news.*"})

	b.Publish("news.sports", "goal")

	if len(sub.received) != 1 {
		t.Fatalf("expected 1 pmessage, got %v", sub.received)
	}
	env := sub.received[0]
	if env[0] != "pmessage" || env[1] != "news.*" || env[2] != "news.sports" {
		t.Fatalf("unexpected envelope: %v", env)
	}
}

func TestSSubscribeOutOfRangeReturnsMovedPlaceholder(t *testing.T) {
	b := New(func(clusterid.Slot) bool { return false })
	sub := &recordingSubscriber{}

	results := b.SSubscribe(1, sub, []string{"foo"})

	if len(results) != 1 || results[0].Moved == nil {
		t.Fatalf("expected a MovedError placeholder, got %+v", results)
	}
}

func TestUnsubscribeAllClearsEverySet(t *testing.T) {
	b := New(alwaysOwns)
	sub := &recordingSubscriber{}
	b.Subscribe(1, sub, []string{"a", "b"})
	b.PSubscribe(1, sub, []string{"p.*"})

	b.UnsubscribeAll(1)

	if b.totalSubs(1) != 0 {
		t.Fatalf("expected 0 remaining subscriptions after UnsubscribeAll, got %d", b.totalSubs(1))
	}
}
