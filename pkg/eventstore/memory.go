package eventstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an Inserter double with the same dedup semantics as the
// partitioned table's unique constraint.
type MemoryStore struct {
	mutex  sync.Mutex
	events []StopEvent
	seen   map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: map[string]bool{}}
}

func (s *MemoryStore) Insert(_ context.Context, event StopEvent) (bool, error) {
	key := fmt.Sprintf("%s:%s:%d", event.TripID, event.ServiceDate.Format("2006-01-02"), event.StopSequence)

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.seen[key] {
		return false, nil
	}

	s.seen[key] = true
	s.events = append(s.events, event)

	return true, nil
}

func (s *MemoryStore) Events() []StopEvent {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]StopEvent{}, s.events...)
}
