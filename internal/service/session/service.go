// Package session owns the mutable coaching session: repository, skills,
// active issue and transcript. Every mutation is flushed to the store so a
// reload restores the exact state the user left.
package session

import (
	"log"
	"strings"
	"sync"

	"github.com/confusedguy/firstpr-coach/internal/model/chat"
	"github.com/confusedguy/firstpr-coach/internal/store"
)

// Service guards one chat.Session. The surrounding shell owns exactly one
// instance and passes it into the controller; there is no package-level
// state.
type Service struct {
	mu      sync.RWMutex
	session chat.Session
	store   store.Store
}

// NewService restores the prior session from the store, if any, and wraps it.
// A missing or unreadable slot starts a fresh session.
func NewService(st store.Store) *Service {
	restored, err := st.Load()
	if err != nil {
		log.Printf("[session] restore failed, starting fresh: %v", err)
		restored = chat.Session{}
	}
	return &Service{session: restored, store: st}
}

// SetRepository records the repository and skill list and clears the active
// issue, before any backend call runs. Skills are trimmed and blanks dropped;
// duplicates stay. There are no failure modes beyond the flush itself.
func (s *Service) SetRepository(repoURL string, skills []string) {
	s.mu.Lock()
	s.session.RepoURL = strings.TrimSpace(repoURL)
	s.session.Skills = normalizeSkills(skills)
	// A new repository must never inherit the previous one's issue context.
	s.session.ActiveIssueURL = ""
	s.mu.Unlock()
	s.flush()
}

// SetActiveIssue commits issueURL as the active conversation context. Called
// only after a plan exchange round-trips the backend without failing.
func (s *Service) SetActiveIssue(issueURL string) {
	s.mu.Lock()
	s.session.ActiveIssueURL = issueURL
	s.mu.Unlock()
	s.flush()
}

// Append adds one message to the transcript. Blank content is allowed; the
// transcript imposes no validation of its own.
func (s *Service) Append(role chat.Role, content string) chat.Message {
	msg := chat.Message{Role: role, Content: content}
	s.mu.Lock()
	s.session.Messages = append(s.session.Messages, msg)
	s.mu.Unlock()
	s.flush()
	return msg
}

// RepoURL returns the current repository, empty when none is loaded.
func (s *Service) RepoURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.RepoURL
}

// ActiveIssueURL returns the committed issue context, empty when none.
func (s *Service) ActiveIssueURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ActiveIssueURL
}

// History returns a copy of the trailing n transcript messages, oldest first.
// Fewer are returned when the transcript is shorter.
func (s *Service) History(n int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.session.Messages
	if n < len(messages) {
		messages = messages[len(messages)-n:]
	}
	out := make([]chat.Message, len(messages))
	copy(out, messages)
	return out
}

// Snapshot returns a deep copy of the whole session for handlers and tests.
func (s *Service) Snapshot() chat.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Clone()
}

// flush persists the current state. Persistence problems are logged, not
// surfaced; the in-memory session stays authoritative for the rest of the
// run.
func (s *Service) flush() {
	s.mu.RLock()
	snapshot := s.session.Clone()
	s.mu.RUnlock()

	if err := s.store.Save(snapshot); err != nil {
		log.Printf("[session] persist failed: %v", err)
	}
}

func normalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	for _, skill := range skills {
		trimmed := strings.TrimSpace(skill)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
