package orch

import "sync"

// UnknownSource is the fallback owner for fills on orders the orchestrator
// never saw.
const UnknownSource = "UNKNOWN"

// OwnershipStore maps orders to the source that placed them.
type OwnershipStore struct {
	mu       sync.Mutex
	bySource map[string]map[string]struct{}
	byOrder  map[string]string
}

// NewOwnershipStore creates an empty store.
func NewOwnershipStore() *OwnershipStore {
	return &OwnershipStore{
		bySource: make(map[string]map[string]struct{}),
		byOrder:  make(map[string]string),
	}
}

// Record registers the order under the source.
func (s *OwnershipStore) Record(orderID, sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOrder[orderID] = sourceID
	set, ok := s.bySource[sourceID]
	if !ok {
		set = make(map[string]struct{})
		s.bySource[sourceID] = set
	}
	set[orderID] = struct{}{}
}

// Owner resolves the order's source, falling back to UnknownSource.
func (s *OwnershipStore) Owner(orderID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.byOrder[orderID]
	if !ok {
		return UnknownSource
	}
	return src
}

// OrdersOf lists the order ids currently owned by the source.
func (s *OwnershipStore) OrdersOf(sourceID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.bySource[sourceID]))
	for id := range s.bySource[sourceID] {
		out = append(out, id)
	}
	return out
}

// Forget drops the order from both directions, typically once terminal.
func (s *OwnershipStore) Forget(orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.byOrder[orderID]
	if !ok {
		return
	}
	delete(s.byOrder, orderID)
	delete(s.bySource[src], orderID)
	if len(s.bySource[src]) == 0 {
		delete(s.bySource, src)
	}
}

// OrderIDMap maps client order ids to engine order ids.
type OrderIDMap struct {
	mu sync.Mutex
	m  map[string]string
}

// NewOrderIDMap creates an empty map.
func NewOrderIDMap() *OrderIDMap {
	return &OrderIDMap{m: make(map[string]string)}
}

// Record stores the mapping.
func (s *OrderIDMap) Record(clientOrderID, orderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[clientOrderID] = orderID
}

// Resolve looks the client order id up.
func (s *OrderIDMap) Resolve(clientOrderID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.m[clientOrderID]
	return id, ok
}

// Forget drops the mapping, typically once the order is terminal.
func (s *OrderIDMap) Forget(clientOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, clientOrderID)
}
