// Package conversation accumulates prior turns per conversation, keyed by
// context id. The store is the memory a work producer sees; retention is an
// external concern and there is no delete operation here.
package conversation

import (
	"sync"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// entry holds one conversation and its lock. All reads and writes of a
// single conversation serialize on entry.mu; the store map lock is held
// only for lookup and insert, so unrelated conversations never contend.
type entry struct {
	mu    sync.Mutex
	turns []Turn
}

// Store is an in-memory conversation store safe for concurrent use.
// Swapping in an external key-value store only requires keeping the same
// per-key atomicity for Get, Append and Update.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*entry
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{contexts: make(map[string]*entry)}
}

// Get returns a copy of the ordered turn sequence for a context, empty if
// the context has never been written.
func (s *Store) Get(contextID string) []Turn {
	s.mu.RLock()
	e, ok := s.contexts[contextID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Turn(nil), e.turns...)
}

// Append atomically appends one or more turns to a context. Turns passed
// in a single call land adjacent in the sequence; concurrent appends for
// the same context never interleave within a call or lose turns.
func (s *Store) Append(contextID string, turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	e := s.entry(contextID)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, turns...)
}

// Update runs fn with the current turn sequence under the context's lock
// and appends whatever fn returns. Use it when the appended turns depend on
// the turns already present; the read-then-append is atomic with respect to
// concurrent requests on the same context.
func (s *Store) Update(contextID string, fn func(turns []Turn) []Turn) {
	e := s.entry(contextID)

	e.mu.Lock()
	defer e.mu.Unlock()
	appended := fn(append([]Turn(nil), e.turns...))
	e.turns = append(e.turns, appended...)
}

// Len returns the number of turns recorded for a context.
func (s *Store) Len(contextID string) int {
	s.mu.RLock()
	e, ok := s.contexts[contextID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.turns)
}

func (s *Store) entry(contextID string) *entry {
	s.mu.RLock()
	e, ok := s.contexts[contextID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.contexts[contextID]; ok {
		return e
	}
	e = &entry{}
	s.contexts[contextID] = e
	return e
}
