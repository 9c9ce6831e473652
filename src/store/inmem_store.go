package store

import "sync"

// InmemStore implements the Store interface with a plain map. It is used by
// tests and by servers that negotiate over graphs built on the fly.
type InmemStore struct {
	sync.RWMutex
	parents map[string][]string
}

// NewInmemStore creates an empty in-memory store.
func NewInmemStore() *InmemStore {
	return &InmemStore{
		parents: make(map[string][]string),
	}
}

// AddRevision implements the Store interface.
func (s *InmemStore) AddRevision(id string, parents []string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.parents[id]; ok {
		return NewErr(RevisionExists, id)
	}
	cp := make([]string, len(parents))
	copy(cp, parents)
	s.parents[id] = cp
	return nil
}

// HasRevision implements the Store interface.
func (s *InmemStore) HasRevision(id string) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.parents[id]
	return ok, nil
}

// AllRevisionIDs implements the Store interface.
func (s *InmemStore) AllRevisionIDs() ([]string, error) {
	s.RLock()
	defer s.RUnlock()
	ids := make([]string, 0, len(s.parents))
	for id := range s.parents {
		ids = append(ids, id)
	}
	return ids, nil
}

// GetParentMap implements the Store interface.
func (s *InmemStore) GetParentMap(ids []string) (map[string][]string, error) {
	s.RLock()
	defer s.RUnlock()
	res := make(map[string][]string)
	for _, id := range ids {
		if parents, ok := s.parents[id]; ok {
			cp := make([]string, len(parents))
			copy(cp, parents)
			res[id] = cp
		}
	}
	return res, nil
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
