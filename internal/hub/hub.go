package hub

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned when registering on a hub that has shut down.
	ErrClosed = errors.New("hub is closed")
)

// defaultBuffer is the per-subscriber channel depth. A subscriber that falls
// this far behind is dropped rather than allowed to stall publishers.
const defaultBuffer = 16

// Subscriber is one registered output sink. Messages arrive on Messages()
// until the subscriber is unregistered or dropped, after which the channel
// is closed.
type Subscriber struct {
	id string
	ch chan []byte
}

// ID returns the subscriber's registry key.
func (s *Subscriber) ID() string { return s.id }

// Messages returns the receive channel. It is closed on unregistration.
func (s *Subscriber) Messages() <-chan []byte { return s.ch }

// Hub fans serialized messages out to a changing set of subscribers.
// Delivery is best-effort per subscriber: a subscriber whose buffer is full
// is unregistered and its channel closed, without delaying the others.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*Subscriber
	closed      bool

	published uint64
	dropped   uint64
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]*Subscriber),
	}
}

// Register adds a subscriber and queues the given initial messages before
// any concurrent Publish can interleave, so a late joiner always sees its
// snapshot before incremental updates.
func (h *Hub) Register(initial ...[]byte) (*Subscriber, error) {
	buffer := defaultBuffer
	if len(initial) >= buffer {
		buffer = len(initial) + 1
	}

	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan []byte, buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	for _, msg := range initial {
		sub.ch <- msg
	}
	h.subscribers[sub.id] = sub
	return sub, nil
}

// Unregister removes a subscriber and closes its channel. Unknown ids are
// ignored so disconnect paths can call it unconditionally.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		delete(h.subscribers, id)
		close(sub.ch)
	}
}

// Publish delivers msg to every registered subscriber. Subscribers that
// cannot accept the message are dropped.
func (h *Hub) Publish(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	atomic.AddUint64(&h.published, 1)

	for id, sub := range h.subscribers {
		select {
		case sub.ch <- msg:
		default:
			atomic.AddUint64(&h.dropped, 1)
			delete(h.subscribers, id)
			close(sub.ch)
		}
	}
}

// Count returns the number of registered subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// Stats returns the total published messages and dropped subscribers.
func (h *Hub) Stats() (published, dropped uint64) {
	return atomic.LoadUint64(&h.published), atomic.LoadUint64(&h.dropped)
}

// Close unregisters all subscribers and rejects further registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		close(sub.ch)
	}
}
