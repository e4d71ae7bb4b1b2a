package status

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/AsabiAlgo/masterdashboard/internal/logging"
)

var broadcastLog = logging.ForComponent(logging.CompBroadcast)

// WildcardSession subscribes to status changes for every session.
const WildcardSession = "*"

// subscriptionBuffer is the per-subscriber channel depth. A consumer that
// falls further behind than this loses its own events only.
const subscriptionBuffer = 64

// Subscription is a handle for one consumer of status-change events.
// Events arrive on C in transition order for any single session. Close
// releases the handle; C is closed afterwards.
type Subscription struct {
	ID        string
	SessionID string
	C         <-chan StatusChangeEvent

	ch   chan StatusChangeEvent
	once sync.Once
	b    *Broadcaster
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.remove(s)
		close(s.ch)
	})
}

// Broadcaster fans StatusChangeEvents out to subscribers. Delivery failure
// for one subscriber (full buffer, gone consumer) is isolated and never
// affects delivery to others or the transition itself.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscription // sessionID ("*" = wildcard) -> subID -> sub
	n    int
}

// NewBroadcaster returns an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a consumer for one session's status changes.
func (b *Broadcaster) Subscribe(sessionID string) *Subscription {
	ch := make(chan StatusChangeEvent, subscriptionBuffer)
	sub := &Subscription{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		C:         ch,
		ch:        ch,
		b:         b,
	}
	b.mu.Lock()
	byID := b.subs[sessionID]
	if byID == nil {
		byID = make(map[string]*Subscription)
		b.subs[sessionID] = byID
	}
	byID[sub.ID] = sub
	b.n++
	b.mu.Unlock()
	return sub
}

// SubscribeAll registers a dashboard-wide consumer for every session.
func (b *Broadcaster) SubscribeAll() *Subscription {
	return b.Subscribe(WildcardSession)
}

// Publish delivers ev to all subscribers for its session plus all wildcard
// subscribers. Sends never block: a full subscriber buffer drops the event
// for that subscriber only.
func (b *Broadcaster) Publish(ev StatusChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.deliverLocked(b.subs[ev.SessionID], ev)
	if ev.SessionID != WildcardSession {
		b.deliverLocked(b.subs[WildcardSession], ev)
	}
}

func (b *Broadcaster) deliverLocked(byID map[string]*Subscription, ev StatusChangeEvent) {
	for _, sub := range byID {
		select {
		case sub.ch <- ev:
		default:
			logging.Aggregate(logging.CompBroadcast, "subscriber_event_dropped",
				slog.String("session_id", ev.SessionID),
				slog.String("subscription_id", sub.ID))
		}
	}
}

// SubscriberCount returns the number of active subscriptions, for health
// reporting. Subscriber identities are not exposed.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.n
}

// DropSession closes every subscription scoped to sessionID. Wildcard
// subscribers are unaffected. Called when a session ends.
func (b *Broadcaster) DropSession(sessionID string) {
	b.mu.Lock()
	byID := b.subs[sessionID]
	delete(b.subs, sessionID)
	b.n -= len(byID)
	b.mu.Unlock()
	for _, sub := range byID {
		// The map entry is already gone; only the channel needs closing.
		sub.once.Do(func() { close(sub.ch) })
	}
	if len(byID) > 0 {
		broadcastLog.Debug("session_subscriptions_dropped",
			slog.String("session_id", sessionID),
			slog.Int("count", len(byID)))
	}
}

func (b *Broadcaster) remove(sub *Subscription) {
	b.mu.Lock()
	byID := b.subs[sub.SessionID]
	if _, ok := byID[sub.ID]; ok {
		delete(byID, sub.ID)
		if len(byID) == 0 {
			delete(b.subs, sub.SessionID)
		}
		b.n--
	}
	b.mu.Unlock()
}
