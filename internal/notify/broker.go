// Package notify fans slot and request changes out to interested
// subscribers. Notifications are re-fetch signals: they identify what
// changed, carry no state, are delivered at most once per subscriber per
// publish, may be dropped when a subscriber falls behind, and are never
// replayed.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Topic is the entity type a change belongs to.
type Topic string

const (
	TopicSlots    Topic = "slots"
	TopicRequests Topic = "requests"
)

// ParseTopic validates a topic name. The empty string selects every topic.
func ParseTopic(s string) (Topic, error) {
	switch t := Topic(s); t {
	case "", TopicSlots, TopicRequests:
		return t, nil
	}
	return "", fmt.Errorf("unknown topic %q", s)
}

// Kind describes what happened to the entity.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// Change identifies one committed mutation. UserIDs lists the slot owners
// or request participants the change concerns.
type Change struct {
	Topic    Topic     `json:"topic"`
	Kind     Kind      `json:"kind"`
	EntityID string    `json:"entity_id"`
	UserIDs  []string  `json:"user_ids"`
	At       time.Time `json:"at"`
	// Origin is empty for changes made by this process and holds the
	// publishing instance id for changes relayed from a peer.
	Origin string `json:"origin,omitempty"`
}

// Filter selects changes. A zero Topic matches every topic and an empty
// UserID matches every user.
type Filter struct {
	Topic  Topic
	UserID string
}

// Matches reports whether c passes the filter.
func (f Filter) Matches(c Change) bool {
	if f.Topic != "" && f.Topic != c.Topic {
		return false
	}
	if f.UserID == "" {
		return true
	}
	return slices.Contains(c.UserIDs, f.UserID)
}

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 16

// Broker is an in-process publish/subscribe hub. The zero value is not
// usable; construct with NewBroker.
type Broker struct {
	mu     sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	closed bool
}

// NewBroker returns a broker whose subscriptions buffer up to buffer
// changes. A non-positive buffer uses DefaultBuffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{subs: make(map[uint64]*Subscription), buffer: buffer}
}

// Subscription is one registered interest. Receive from C until it is
// closed; call Close to unsubscribe.
type Subscription struct {
	id      uint64
	filter  Filter
	ch      chan Change
	broker  *Broker
	once    sync.Once
	dropped atomic.Uint64
}

// C returns the delivery channel. It is closed by Close or by Broker.Close.
func (s *Subscription) C() <-chan Change { return s.ch }

// Dropped counts changes discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unsubscribes and closes the channel. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s.id)
	})
}

// Release closes the subscription and reports, under name, how many changes
// it missed while the subscriber was behind.
func (s *Subscription) Release(ctx context.Context, log *slog.Logger, name string) {
	s.Close()
	if n := s.Dropped(); n > 0 {
		log.WarnContext(ctx, "subscriber missed changes",
			slog.String("subscriber", name),
			slog.String("topic", string(s.filter.Topic)),
			slog.Uint64("dropped", n))
	}
}

// Subscribe registers a new subscription.
func (b *Broker) Subscribe(f Filter) (*Subscription, error) {
	if _, err := ParseTopic(string(f.Topic)); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("broker closed")
	}
	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		filter: f,
		ch:     make(chan Change, b.buffer),
		broker: b,
	}
	b.subs[s.id] = s
	return s, nil
}

// Publish delivers c to every matching subscription without blocking. A
// subscriber whose buffer is full misses this change; since every change is
// only a prompt to re-read, the next one it receives covers the gap.
func (b *Broker) Publish(_ context.Context, c Change) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if !s.filter.Matches(c) {
			continue
		}
		select {
		case s.ch <- c:
		default:
			s.dropped.Add(1)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.ch)
	}
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.ch)
	}
}
