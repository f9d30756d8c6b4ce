// Package store persists the coaching session to a single storage slot.
package store

import "github.com/confusedguy/firstpr-coach/internal/model/chat"

// Store reads and writes the one session record the service owns. Load on a
// missing or corrupt slot returns the empty session; first run and a damaged
// slot are indistinguishable on purpose.
type Store interface {
	Save(session chat.Session) error
	Load() (chat.Session, error)
}

// MemoryStore keeps the slot in process memory. Used by tests and ephemeral
// runs.
type MemoryStore struct {
	raw []byte
}

// NewMemoryStore returns an empty in-memory slot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save overwrites the slot with a serialized snapshot.
func (s *MemoryStore) Save(session chat.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}
	s.raw = data
	return nil
}

// Load restores the slot, or the empty session when nothing was saved.
func (s *MemoryStore) Load() (chat.Session, error) {
	if s.raw == nil {
		return chat.Session{}, nil
	}
	return decode(s.raw), nil
}
