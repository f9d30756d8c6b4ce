package chat

// Session is the full persisted record of one coaching conversation: the
// repository being worked on, the user's declared skills, the issue currently
// engaged, and the ordered transcript. The zero value means "first run".
//
// ActiveIssueURL is non-empty only after a plan exchange has succeeded since
// RepoURL was last set; setting a new repository always clears it.
type Session struct {
	RepoURL        string    `json:"repoUrl"`
	Skills         []string  `json:"skills"`
	ActiveIssueURL string    `json:"activeIssueUrl"`
	Messages       []Message `json:"messages"`
}

// Clone returns a deep copy so callers can hand out snapshots without
// aliasing the live transcript.
func (s Session) Clone() Session {
	out := s
	if s.Skills != nil {
		out.Skills = append([]string(nil), s.Skills...)
	}
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	return out
}
