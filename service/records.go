package service

import (
	"errors"
	"sync"
	"time"
)

// Record is one completed query/response exchange.
type Record struct {
	ID        string    `json:"id"`
	ContextID string    `json:"contextId"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Payer     string    `json:"payer,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ErrRecordNotFound is returned for unknown record ids.
var ErrRecordNotFound = errors.New("record not found")

// RecordStore persists completed exchanges. The in-memory implementation
// below is the default; an external store only needs the same two calls.
type RecordStore interface {
	Save(record Record) error
	Get(id string) (Record, error)
}

// MemoryRecordStore keeps records in memory.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRecordStore creates an empty record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]Record)}
}

func (s *MemoryRecordStore) Save(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.ID] = record
	return nil
}

func (s *MemoryRecordStore) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return record, nil
}
