package tabular

import (
	"sync"

	"github.com/google/uuid"
)

// Store maps dataset ids to their published tables. Tables are immutable, so
// Snapshot hands out the current reference; a concurrent Replace or Remove
// cannot corrupt an in-flight read.
type Store struct {
	mu     sync.RWMutex
	tables map[uuid.UUID]*Table
}

// NewStore creates an empty table store.
func NewStore() *Store {
	return &Store{tables: make(map[uuid.UUID]*Table)}
}

// Snapshot returns the currently published table for a dataset.
func (s *Store) Snapshot(datasetID uuid.UUID) (*Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[datasetID]
	return t, ok
}

// Replace publishes a fully built table for a dataset, displacing any
// previous one. In-flight readers keep their old snapshot.
func (s *Store) Replace(datasetID uuid.UUID, t *Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[datasetID] = t
}

// Remove drops the table for a deleted dataset.
func (s *Store) Remove(datasetID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, datasetID)
}

// Len returns the number of published tables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables)
}
