// Package controller routes each user action to the right backend operation
// and keeps the session, transcript and event feed in step. It is the only
// writer of session state during a conversation.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/confusedguy/firstpr-coach/internal/classify"
	"github.com/confusedguy/firstpr-coach/internal/model/chat"
	sessionservice "github.com/confusedguy/firstpr-coach/internal/service/session"
)

// ErrBusy is returned when a dispatch arrives while another backend exchange
// is still outstanding. The controller is strictly single-flight.
var ErrBusy = errors.New("another request is still in flight")

// Backend is the remote coaching service as consumed by the router. The
// concrete HTTP client satisfies it; tests substitute fakes.
type Backend interface {
	Init(ctx context.Context, skills []string) error
	Recommend(ctx context.Context, repoURL string, maxIssues int) (string, error)
	Plan(ctx context.Context, repoURL, issueURL, constraints string) (string, error)
	Chat(ctx context.Context, repoURL, issueURL string, history []chat.Message) (string, error)
}

const (
	maxRecommendedIssues = 15
	chatHistoryWindow    = 12
)

// Canned assistant texts. These are conversation content, so they live here
// with the routing decisions that emit them.
const (
	msgMissingRepoForm = "Please enter a repository URL and at least one skill."
	msgLoadRepoFirst   = "First load a repository and your skills above, then paste the issue URL."
	msgPasteIssueURL   = "Please paste the exact GitHub issue URL you want to work on."
	msgAfterRecommend  = "Paste an issue URL and I'll guide you step-by-step (no code)."
	msgNoIssues        = "No suitable issues found."
	msgPlanFallback    = "I couldn't create a plan. Try another issue."
	msgNoReply         = "No reply."
)

// EventType tags feed events for connected clients.
type EventType string

const (
	// EventMessage reports a transcript append.
	EventMessage EventType = "message"
	// EventTyping reports the awaiting-response indicator turning on or off.
	EventTyping EventType = "typing"
)

// Event is one notification pushed to subscribers. Message is set for
// EventMessage, Typing for EventTyping.
type Event struct {
	Type    EventType
	Message *chat.Message
	Typing  bool
}

type flightState int

const (
	stateIdle flightState = iota
	stateAwaiting
)

// Controller is the request router. It owns no transport; the HTTP shell
// calls SubmitRepository and Send, and forwards events to its clients.
type Controller struct {
	mu      sync.Mutex
	state   flightState
	session *sessionservice.Service
	backend Backend

	subMu sync.RWMutex
	subs  []func(Event)
}

// New wires the router to its session state and backend.
func New(session *sessionservice.Service, backend Backend) *Controller {
	return &Controller{session: session, backend: backend}
}

// Subscribe registers fn for every future event. Events are delivered
// synchronously from the dispatching goroutine, in transcript order.
func (c *Controller) Subscribe(fn func(Event)) {
	c.subMu.Lock()
	c.subs = append(c.subs, fn)
	c.subMu.Unlock()
}

// Session exposes the underlying session service for read-only shell use.
func (c *Controller) Session() *sessionservice.Service {
	return c.session
}

// SubmitRepository handles the repository/skills form: commit the new
// repository (which always drops the previous issue context), then ask the
// backend to register skills and recommend starter issues. Validation
// problems and backend failures both degrade to assistant messages; the
// only error returned is ErrBusy.
func (c *Controller) SubmitRepository(ctx context.Context, repoURL string, skills []string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	// State is committed before validation, matching the form's behavior:
	// even an incomplete submission resets the issue context.
	c.session.SetRepository(repoURL, skills)

	snapshot := c.session.Snapshot()
	if snapshot.RepoURL == "" || len(snapshot.Skills) == 0 {
		c.append(chat.RoleAssistant, msgMissingRepoForm)
		return nil
	}

	c.setTyping(true)
	err := c.backend.Init(ctx, snapshot.Skills)
	var recommendation string
	if err == nil {
		recommendation, err = c.backend.Recommend(ctx, snapshot.RepoURL, maxRecommendedIssues)
	}
	c.setTyping(false)

	if err != nil {
		c.append(chat.RoleAssistant, fmt.Sprintf("Error: %s", err))
		return nil
	}

	if recommendation == "" {
		recommendation = msgNoIssues
	}
	c.append(chat.RoleAssistant, recommendation)
	c.append(chat.RoleAssistant, msgAfterRecommend)
	return nil
}

// Send handles one free-form user message. Exactly one of four things
// happens: a local guidance message, a plan request (input contained an
// issue URL), a chat request (an issue is already active), or a prompt to
// paste an issue URL.
func (c *Controller) Send(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	c.append(chat.RoleUser, trimmed)

	if c.session.RepoURL() == "" {
		c.append(chat.RoleAssistant, msgLoadRepoFirst)
		return nil
	}

	if res := classify.Classify(trimmed); res.Kind == classify.KindURL {
		c.handlePlan(ctx, res.URL)
		return nil
	}
	// An index classification is deliberately not routed anywhere; numeric
	// references fall through to the same paths as plain text.

	if issueURL := c.session.ActiveIssueURL(); issueURL != "" {
		c.handleChat(ctx, issueURL)
		return nil
	}

	c.append(chat.RoleAssistant, msgPasteIssueURL)
	return nil
}

// handlePlan asks for a plan and, when the exchange round-trips without
// failing, commits the URL as the active issue — even when the backend could
// only produce the fallback text. A failed exchange leaves the previous
// active issue untouched.
func (c *Controller) handlePlan(ctx context.Context, issueURL string) {
	c.setTyping(true)
	plan, err := c.backend.Plan(ctx, c.session.RepoURL(), issueURL, "")
	c.setTyping(false)

	if err != nil {
		c.append(chat.RoleAssistant, fmt.Sprintf("Error: %s", err))
		return
	}

	if plan == "" {
		plan = msgPlanFallback
	}
	c.append(chat.RoleAssistant, plan)
	c.session.SetActiveIssue(issueURL)
}

// handleChat continues the active issue conversation. The history window is
// taken after the user's message was appended and before the reply lands, so
// the user's latest turn is the last element the backend sees.
func (c *Controller) handleChat(ctx context.Context, issueURL string) {
	history := c.session.History(chatHistoryWindow)

	c.setTyping(true)
	reply, err := c.backend.Chat(ctx, c.session.RepoURL(), issueURL, history)
	c.setTyping(false)

	if err != nil {
		c.append(chat.RoleAssistant, fmt.Sprintf("Error: %s", err))
		return
	}

	if reply == "" {
		reply = msgNoReply
	}
	c.append(chat.RoleAssistant, reply)
}

func (c *Controller) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateIdle {
		return ErrBusy
	}
	c.state = stateAwaiting
	return nil
}

func (c *Controller) end() {
	c.mu.Lock()
	c.state = stateIdle
	c.mu.Unlock()
}

func (c *Controller) append(role chat.Role, content string) {
	msg := c.session.Append(role, content)
	c.notify(Event{Type: EventMessage, Message: &msg})
}

func (c *Controller) setTyping(active bool) {
	c.notify(Event{Type: EventTyping, Typing: active})
}

func (c *Controller) notify(ev Event) {
	c.subMu.RLock()
	subs := c.subs
	c.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}
}
