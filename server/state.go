package server

import (
	"sort"
	"sync"
)

const defaultRunCapacity = 256

// RunStore keeps the most recent indexing runs in memory.
type RunStore struct {
	mu       sync.RWMutex
	runs     map[string]RunInfo
	order    []string
	capacity int
}

func newRunStore(capacity int) *RunStore {
	if capacity <= 0 {
		capacity = defaultRunCapacity
	}
	return &RunStore{
		runs:     make(map[string]RunInfo),
		capacity: capacity,
	}
}

// Add records r, evicting the oldest run when full.
func (s *RunStore) Add(r RunInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.runs[r.ID] = r

	for len(s.order) > s.capacity {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *RunStore) Get(id string) (RunInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// List returns runs newest first.
func (s *RunStore) List() []RunInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]RunInfo, 0, len(s.runs))
	for _, r := range s.runs {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	return result
}
