package store

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// MemoryStore is a bounded in-memory Repository. When full, the oldest
// analysis is evicted.
type MemoryStore struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	items    map[string]*Analysis
	order    []string
	capacity int
}

// NewMemoryStore creates a MemoryStore holding at most capacity analyses.
// A non-positive capacity means unbounded.
func NewMemoryStore(capacity int, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		logger:   logger,
		items:    make(map[string]*Analysis),
		capacity: capacity,
	}
}

// Save assigns an ID to the analysis and stores it
func (s *MemoryStore) Save(analysis *Analysis) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(analysis)

	if s.capacity > 0 && len(s.order) >= s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
		s.logger.Debug("evicted analysis", zap.String("id", oldest))
	}

	s.items[analysis.ID] = analysis
	s.order = append(s.order, analysis.ID)

	s.logger.Info("stored analysis", zap.String("id", analysis.ID), zap.String("source", analysis.Source))
	return analysis.ID, nil
}

// Get returns the analysis with the given ID
func (s *MemoryStore) Get(id string) (*Analysis, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return analysis, nil
}

// Delete removes an analysis
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	for i, stored := range s.order {
		if stored == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns stored analyses, newest first
func (s *MemoryStore) List() ([]*Analysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Analysis, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.items[s.order[i]])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Len returns the number of stored analyses
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
