// Package notify provides a process-wide broadcast channel for the cart item
// count. Cart mutators publish the current count; view fragments (the nav
// badge, the cart command output) subscribe under a named slot and re-render
// on every publish.
package notify

import (
	"sort"
	"sync"
)

// Subscriber receives the current cart item count on every publish.
type Subscriber func(count int)

// Hub is a synchronous publish-subscribe channel keyed by subscriber slot.
// Registration is last-writer-wins per slot: only one callback per logical
// role ("nav-badge", "cart-page") listens at a time. Subscribers are invoked
// synchronously on the publishing goroutine, in deterministic slot order.
type Hub struct {
	mu          sync.Mutex
	count       int
	subscribers map[string]Subscriber
}

// NewHub creates an empty hub with a count of zero.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]Subscriber),
	}
}

// Subscribe registers fn under the given slot, replacing any previous
// callback for that slot. A nil fn removes the slot.
func (h *Hub) Subscribe(slot string, fn Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if fn == nil {
		delete(h.subscribers, slot)
		return
	}
	h.subscribers[slot] = fn
}

// Unsubscribe removes the callback registered under slot, if any.
func (h *Hub) Unsubscribe(slot string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, slot)
}

// SetCount updates the count and broadcasts it to all subscribers.
func (h *Hub) SetCount(n int) {
	h.mu.Lock()
	h.count = n
	subs := h.snapshot()
	h.mu.Unlock()

	// Invoke outside the lock so a subscriber may call back into the hub.
	for _, fn := range subs {
		fn(n)
	}
}

// Increment bumps the count by one and broadcasts. It exists so a caller that
// already knows the new logical count after a successful add can skip a full
// cart re-fetch.
func (h *Hub) Increment() {
	h.mu.Lock()
	h.count++
	n := h.count
	subs := h.snapshot()
	h.mu.Unlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Count returns the last published count.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// snapshot returns subscribers in slot order. Caller must hold h.mu.
func (h *Hub) snapshot() []Subscriber {
	slots := make([]string, 0, len(h.subscribers))
	for slot := range h.subscribers {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	subs := make([]Subscriber, 0, len(slots))
	for _, slot := range slots {
		subs = append(subs, h.subscribers[slot])
	}
	return subs
}
