package schedule

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/calendar-engine/event"
	"github.com/warp/calendar-engine/internal/log"
)

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the full live event set at one committed version.
type Snapshot struct {
	Version uint64
	Events  []event.Record
	At      time.Time
}

// =============================================================================
// BUS - Latest-value broadcast
// =============================================================================

// Bus fans committed snapshots out to subscribers. Each subscriber has a
// one-slot mailbox: a publish replaces any snapshot the subscriber has not
// read yet, so slow readers skip versions but never block the writer and
// never see an older version after a newer one.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]*Subscription
	latest *Snapshot
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscription)}
}

// Publish delivers s to every subscriber. Snapshots that are not newer than
// the latest published one are dropped.
func (b *Bus) Publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || (b.latest != nil && s.Version <= b.latest.Version) {
		return
	}
	b.latest = &s
	for _, sub := range b.subs {
		sub.deliver(s)
	}
}

// Subscribe registers a new subscriber. If anything has been published it
// receives the latest snapshot immediately.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		id:  uuid.NewString(),
		ch:  make(chan Snapshot, 1),
		bus: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	if b.latest != nil {
		sub.deliver(*b.latest)
	}
	log.Debug("bus subscriber added", "sub", sub.id, "subscribers", len(b.subs))
	return sub
}

// Latest returns the most recently published snapshot.
func (b *Bus) Latest() (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest == nil {
		return Snapshot{}, false
	}
	return *b.latest, true
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions start closed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		sub.closeLocked()
		delete(b.subs, id)
	}
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	sub.closeLocked()
	log.Debug("bus subscriber removed", "sub", sub.id, "subscribers", len(b.subs))
}

// =============================================================================
// SUBSCRIPTION
// =============================================================================

// Subscription is one reader's mailbox on the bus.
type Subscription struct {
	id     string
	ch     chan Snapshot
	bus    *Bus
	closed bool // guarded by bus.mu
}

// ID is a unique identifier for logging.
func (s *Subscription) ID() string { return s.id }

// C returns the mailbox. It is closed when the subscription or the bus is
// closed.
func (s *Subscription) C() <-chan Snapshot { return s.ch }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.remove(s)
}

// deliver replaces whatever is in the mailbox with snap. Called with bus.mu
// held, so this is the only sender and the send after the drain cannot block.
func (s *Subscription) deliver(snap Snapshot) {
	if s.closed {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
