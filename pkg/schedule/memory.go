package schedule

import (
	"context"
	"sync"
)

type memorySnapshot struct {
	routes    map[string]Route
	stops     map[string]Stop
	trips     map[string]Trip
	stopTimes map[string]map[int]StopTime
	hashes    map[string]string
}

// MemoryStore is an in-memory Store used by tests and local tooling. Replace
// swaps the whole snapshot atomically, mirroring the importer contract.
type MemoryStore struct {
	mutex    sync.RWMutex
	snapshot memorySnapshot
}

func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{}
	store.Replace(nil, nil, nil, nil, nil)

	return store
}

func (s *MemoryStore) Replace(routes []Route, stops []Stop, trips []Trip, stopTimes []StopTime, hashes map[string]string) {
	snapshot := memorySnapshot{
		routes:    map[string]Route{},
		stops:     map[string]Stop{},
		trips:     map[string]Trip{},
		stopTimes: map[string]map[int]StopTime{},
		hashes:    map[string]string{},
	}

	for _, route := range routes {
		snapshot.routes[route.ID] = route
	}
	for _, stop := range stops {
		snapshot.stops[stop.ID] = stop
	}
	for _, trip := range trips {
		snapshot.trips[trip.ID] = trip
	}
	for _, stopTime := range stopTimes {
		if snapshot.stopTimes[stopTime.TripID] == nil {
			snapshot.stopTimes[stopTime.TripID] = map[int]StopTime{}
		}
		snapshot.stopTimes[stopTime.TripID][stopTime.StopSequence] = stopTime
	}
	for agency, hash := range hashes {
		snapshot.hashes[agency] = hash
	}

	s.mutex.Lock()
	s.snapshot = snapshot
	s.mutex.Unlock()
}

func (s *MemoryStore) LookupStopTime(_ context.Context, tripID string, stopSequence int) (*StopTime, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stopTime, exists := s.snapshot.stopTimes[tripID][stopSequence]; exists {
		return &stopTime, nil
	}

	return nil, nil
}

func (s *MemoryStore) LookupTrip(_ context.Context, tripID string) (*Trip, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if trip, exists := s.snapshot.trips[tripID]; exists {
		return &trip, nil
	}

	return nil, nil
}

func (s *MemoryStore) LookupRoute(_ context.Context, routeID string) (*Route, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if route, exists := s.snapshot.routes[routeID]; exists {
		return &route, nil
	}

	return nil, nil
}

func (s *MemoryStore) LookupStop(_ context.Context, stopID string) (*Stop, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if stop, exists := s.snapshot.stops[stopID]; exists {
		return &stop, nil
	}

	return nil, nil
}

func (s *MemoryStore) FirstArrivalSeconds(_ context.Context, tripID string) (int, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	first := 0
	found := false
	for _, stopTime := range s.snapshot.stopTimes[tripID] {
		if !found || stopTime.StopSequence < first {
			first = stopTime.StopSequence
			found = true
		}
	}

	if !found {
		return 0, nil
	}

	return s.snapshot.stopTimes[tripID][first].ArrivalSeconds, nil
}

func (s *MemoryStore) ActiveHash(_ context.Context, agency string) (string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.snapshot.hashes[agency], nil
}
