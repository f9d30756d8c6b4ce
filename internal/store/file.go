package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/confusedguy/firstpr-coach/internal/model/chat"
)

// FileStore keeps the slot as one JSON file at a fixed path.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by the file at path. The parent
// directory is created on the first save, not here.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save serializes the session and replaces the slot atomically via a
// temp-file rename, so a crash mid-write leaves the previous snapshot intact.
func (s *FileStore) Save(session chat.Session) error {
	data, err := encode(session)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// Load restores the slot. A missing file or one that fails to parse yields
// the empty session; corruption is treated as first run, never surfaced.
func (s *FileStore) Load() (chat.Session, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return chat.Session{}, nil
	}
	return decode(raw), nil
}

func encode(session chat.Session) ([]byte, error) {
	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

// decode is deliberately lenient: any parse failure or unexpected shape
// collapses to the empty session, and message roles are kept exactly as
// stored so replay preserves the transcript byte for byte.
func decode(raw []byte) chat.Session {
	var session chat.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return chat.Session{}
	}
	return session
}
