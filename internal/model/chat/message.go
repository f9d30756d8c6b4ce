package chat

// Role identifies who authored a message. Only two values are valid.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the two closed role values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single transcript turn. Content holds raw text or markdown
// source, never pre-rendered markup; rendering happens at the display
// boundary.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
