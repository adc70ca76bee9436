package storage

import (
	"context"
	"sync"

	"vitalwatch/internal/models"
)

// MemoryStore keeps patients in a map. Returned records are copies.
type MemoryStore struct {
	mu       sync.RWMutex
	patients map[string]models.PatientInfo
}

// NewMemoryStore creates a store seeded with the given records
func NewMemoryStore(patients ...models.PatientInfo) *MemoryStore {
	s := &MemoryStore{patients: make(map[string]models.PatientInfo, len(patients))}
	for _, p := range patients {
		s.patients[p.ID] = p
	}
	return s
}

// Add inserts or replaces a record
func (s *MemoryStore) Add(p models.PatientInfo) error {
	p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients[p.ID] = p
	return nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (*models.PatientInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patients)
}

func (s *MemoryStore) Close() error { return nil }
