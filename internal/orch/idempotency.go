package orch

import "sync"

// IdempotencyStore remembers every client order id ever submitted so a
// duplicate submission is refused instead of re-executed.
type IdempotencyStore struct {
	seen sync.Map // clientOrderID -> struct{}
}

// NewIdempotencyStore creates an empty store.
func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{}
}

// Register records the id. It returns false when the id was seen before.
func (s *IdempotencyStore) Register(clientOrderID string) bool {
	_, loaded := s.seen.LoadOrStore(clientOrderID, struct{}{})
	return !loaded
}

// Seen reports whether the id was registered.
func (s *IdempotencyStore) Seen(clientOrderID string) bool {
	_, ok := s.seen.Load(clientOrderID)
	return ok
}
