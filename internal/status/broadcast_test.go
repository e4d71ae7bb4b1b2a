package status

import (
	"testing"
	"time"
)

func makeEvent(sessionID string, n Status) StatusChangeEvent {
	return StatusChangeEvent{
		SessionID: sessionID,
		Previous:  StatusIdle,
		New:       n,
		Timestamp: time.Now(),
	}
}

func TestPublishReachesSessionAndWildcardSubscribers(t *testing.T) {
	b := NewBroadcaster()
	scoped := b.Subscribe("s1")
	defer scoped.Close()
	wild := b.SubscribeAll()
	defer wild.Close()
	other := b.Subscribe("s2")
	defer other.Close()

	b.Publish(makeEvent("s1", StatusWorking))

	select {
	case ev := <-scoped.C:
		if ev.SessionID != "s1" {
			t.Errorf("unexpected event %+v", ev)
		}
	default:
		t.Error("session subscriber missed its event")
	}
	select {
	case <-wild.C:
	default:
		t.Error("wildcard subscriber missed the event")
	}
	select {
	case ev := <-other.C:
		t.Errorf("unrelated subscriber received %+v", ev)
	default:
	}
}

func TestEventsDeliveredInTransitionOrder(t *testing.T) {
	b := NewBroadcaster()
	sub := b.Subscribe("s1")
	defer sub.Close()

	statuses := []Status{StatusWorking, StatusWaiting, StatusError, StatusIdle}
	for _, st := range statuses {
		b.Publish(makeEvent("s1", st))
	}
	for i, want := range statuses {
		ev := <-sub.C
		if ev.New != want {
			t.Fatalf("event %d: expected %s, got %s", i, want, ev.New)
		}
	}
}

func TestSlowSubscriberIsIsolated(t *testing.T) {
	b := NewBroadcaster()
	slow := b.Subscribe("s1") // never drained
	defer slow.Close()
	healthy := b.Subscribe("s1")
	defer healthy.Close()

	// Overflow the slow subscriber's buffer.
	for i := 0; i < subscriptionBuffer+10; i++ {
		b.Publish(makeEvent("s1", StatusWorking))
		// Keep the healthy subscriber drained so it never overflows.
		select {
		case <-healthy.C:
		default:
			t.Fatal("healthy subscriber lost an event while another overflowed")
		}
	}
}

func TestSubscriberCount(t *testing.T) {
	b := NewBroadcaster()
	if b.SubscriberCount() != 0 {
		t.Fatalf("expected 0, got %d", b.SubscriberCount())
	}
	s1 := b.Subscribe("a")
	s2 := b.SubscribeAll()
	if b.SubscriberCount() != 2 {
		t.Errorf("expected 2, got %d", b.SubscriberCount())
	}
	s1.Close()
	if b.SubscriberCount() != 1 {
		t.Errorf("expected 1 after close, got %d", b.SubscriberCount())
	}
	s1.Close() // double close is safe
	if b.SubscriberCount() != 1 {
		t.Errorf("double close must not change the count")
	}
	s2.Close()
	if b.SubscriberCount() != 0 {
		t.Errorf("expected 0 after closing all, got %d", b.SubscriberCount())
	}
}

func TestDropSessionClosesScopedSubscriptionsOnly(t *testing.T) {
	b := NewBroadcaster()
	scoped := b.Subscribe("s1")
	wild := b.SubscribeAll()
	defer wild.Close()

	b.DropSession("s1")

	if _, open := <-scoped.C; open {
		t.Error("scoped subscription should be closed")
	}
	if b.SubscriberCount() != 1 {
		t.Errorf("wildcard subscription must survive, count %d", b.SubscriberCount())
	}
	// Closing an already dropped subscription is safe.
	scoped.Close()

	b.Publish(makeEvent("s2", StatusError))
	select {
	case <-wild.C:
	default:
		t.Error("wildcard subscriber should keep receiving after a drop")
	}
}
