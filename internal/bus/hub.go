package bus

import "sync"

// Hub is a typed observer list. Publish notifies subscribers synchronously in
// subscription order. The subscriber list is snapshotted before dispatch, so
// subscribing or unsubscribing from inside a handler is safe; unsubscribing
// twice is a no-op.
type Hub[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewHub creates an empty hub.
func NewHub[T any]() *Hub[T] {
	return &Hub[T]{}
}

// Subscribe registers a handler and returns its unsubscribe function.
func (h *Hub[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs = append(h.subs, subscriber[T]{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, s := range h.subs {
			if s.id == id {
				h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers e to every subscriber registered at call time.
func (h *Hub[T]) Publish(e T) {
	h.mu.Lock()
	snapshot := make([]subscriber[T], len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, s := range snapshot {
		s.fn(e)
	}
}

// Len returns the current subscriber count.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
