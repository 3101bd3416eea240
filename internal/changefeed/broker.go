package changefeed

import (
	"context"
	"sync"
)

// Subscription receives signals for one patient, or for every patient when the
// filter is empty.
type Subscription struct {
	id        uint64
	patientID string
	ch        chan Change
}

// C returns the signal channel. It is closed on Unsubscribe.
func (s *Subscription) C() <-chan Change {
	return s.ch
}

// Broker is the in-process fan-out of changes to subscribers.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
	buffer int
}

// NewBroker creates a broker whose subscriptions buffer up to buffer signals.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a subscription. An empty patientID receives everything.
func (b *Broker) Subscribe(patientID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:        b.nextID,
		patientID: patientID,
		ch:        make(chan Change, b.buffer),
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to call twice.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
}

// Publish delivers changes without blocking. A full subscriber already has a pending
// signal that will trigger a re-read, so the extra one is dropped.
func (b *Broker) Publish(_ context.Context, changes ...Change) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, c := range changes {
		for _, sub := range b.subs {
			if sub.patientID != "" && c.PatientID != "" && sub.patientID != c.PatientID {
				continue
			}
			select {
			case sub.ch <- c:
			default:
			}
		}
	}
	return nil
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
