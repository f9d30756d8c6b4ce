package controller_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/confusedguy/firstpr-coach/internal/backend"
	"github.com/confusedguy/firstpr-coach/internal/model/chat"
	"github.com/confusedguy/firstpr-coach/internal/service/controller"
	sessionservice "github.com/confusedguy/firstpr-coach/internal/service/session"
	"github.com/confusedguy/firstpr-coach/internal/store"
)

type planCall struct {
	repoURL, issueURL, constraints string
}

type chatCall struct {
	repoURL, issueURL string
	history           []chat.Message
}

type fakeBackend struct {
	initErr      error
	initCalls    [][]string
	recommendMsg string
	recommendErr error
	recommends   int

	planText  string
	planErr   error
	planCalls []planCall

	chatReply string
	chatErr   error
	chatCalls []chatCall

	// When non-nil, Chat blocks until the channel closes.
	chatGate chan struct{}
	// Closed once Chat has been entered, so tests can race a second send.
	chatEntered chan struct{}
}

func (f *fakeBackend) Init(_ context.Context, skills []string) error {
	f.initCalls = append(f.initCalls, skills)
	return f.initErr
}

func (f *fakeBackend) Recommend(_ context.Context, repoURL string, maxIssues int) (string, error) {
	f.recommends++
	if maxIssues != 15 {
		return "", fmt.Errorf("unexpected maxIssues %d", maxIssues)
	}
	return f.recommendMsg, f.recommendErr
}

func (f *fakeBackend) Plan(_ context.Context, repoURL, issueURL, constraints string) (string, error) {
	f.planCalls = append(f.planCalls, planCall{repoURL, issueURL, constraints})
	return f.planText, f.planErr
}

func (f *fakeBackend) Chat(_ context.Context, repoURL, issueURL string, history []chat.Message) (string, error) {
	f.chatCalls = append(f.chatCalls, chatCall{repoURL, issueURL, history})
	if f.chatEntered != nil {
		close(f.chatEntered)
		f.chatEntered = nil
	}
	if f.chatGate != nil {
		<-f.chatGate
	}
	return f.chatReply, f.chatErr
}

func newController(fb *fakeBackend) *controller.Controller {
	return controller.New(sessionservice.NewService(store.NewMemoryStore()), fb)
}

func lastMessage(t *testing.T, c *controller.Controller) chat.Message {
	t.Helper()
	messages := c.Session().Snapshot().Messages
	if len(messages) == 0 {
		t.Fatal("transcript is empty")
	}
	return messages[len(messages)-1]
}

func TestSendWithoutRepository(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(fb)

	if err := c.Send(context.Background(), "https://github.com/acme/widgets/issues/1"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	msg := lastMessage(t, c)
	if msg.Role != chat.RoleAssistant || msg.Content != "First load a repository and your skills above, then paste the issue URL." {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if len(fb.planCalls) != 0 || len(fb.chatCalls) != 0 {
		t.Fatal("backend must not be called without a repository")
	}
}

func TestSendNoURLNoActiveIssue(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues"}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	if err := c.Send(context.Background(), "please help"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	msg := lastMessage(t, c)
	if msg.Content != "Please paste the exact GitHub issue URL you want to work on." {
		t.Fatalf("unexpected message: %q", msg.Content)
	}
	if len(fb.planCalls) != 0 || len(fb.chatCalls) != 0 {
		t.Fatal("no backend call expected")
	}
}

func TestSendURLCreatesPlanAndCommitsIssue(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "Step 1..."}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	issue := "https://github.com/acme/widgets/issues/42"
	if err := c.Send(context.Background(), issue); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if len(fb.planCalls) != 1 {
		t.Fatalf("expected 1 plan call, got %d", len(fb.planCalls))
	}
	call := fb.planCalls[0]
	if call.issueURL != issue || call.repoURL != "https://github.com/acme/widgets" || call.constraints != "" {
		t.Fatalf("unexpected plan call: %+v", call)
	}
	if got := lastMessage(t, c); got.Content != "Step 1..." || got.Role != chat.RoleAssistant {
		t.Fatalf("plan text not appended: %+v", got)
	}
	if got := c.Session().ActiveIssueURL(); got != issue {
		t.Fatalf("active issue not committed: %q", got)
	}
}

func TestSendURLStripsTrailingPunctuation(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan"}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	if err := c.Send(context.Background(), "try https://github.com/acme/widgets/issues/7."); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if fb.planCalls[0].issueURL != "https://github.com/acme/widgets/issues/7" {
		t.Fatalf("punctuation not stripped: %q", fb.planCalls[0].issueURL)
	}
}

func TestEmptyPlanStillCommitsIssue(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: ""}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	issue := "https://github.com/acme/widgets/issues/9"
	if err := c.Send(context.Background(), issue); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if got := lastMessage(t, c); got.Content != "I couldn't create a plan. Try another issue." {
		t.Fatalf("fallback text missing: %q", got.Content)
	}
	if got := c.Session().ActiveIssueURL(); got != issue {
		t.Fatalf("issue must be committed even for fallback plan: %q", got)
	}
}

func TestFailedPlanLeavesActiveIssueUntouched(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan"}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	first := "https://github.com/acme/widgets/issues/1"
	if err := c.Send(context.Background(), first); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	fb.planErr = &backend.APIError{Status: 500, Reason: "issue not found"}
	if err := c.Send(context.Background(), "https://github.com/acme/widgets/issues/2"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if got := lastMessage(t, c); got.Content != "Error: issue not found" {
		t.Fatalf("unexpected error message: %q", got.Content)
	}
	if got := c.Session().ActiveIssueURL(); got != first {
		t.Fatalf("active issue mutated on failure: %q", got)
	}
}

func TestChatUsesTrailingHistoryWindow(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan", chatReply: "keep going"}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	issue := "https://github.com/acme/widgets/issues/3"
	if err := c.Send(context.Background(), issue); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	// Pad the transcript well past the window.
	for i := 0; i < 10; i++ {
		if err := c.Send(context.Background(), fmt.Sprintf("question %d", i)); err != nil {
			t.Fatalf("Send err: %v", err)
		}
	}

	if err := c.Send(context.Background(), "what's next?"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	last := fb.chatCalls[len(fb.chatCalls)-1]
	if last.issueURL != issue {
		t.Fatalf("chat routed to wrong issue: %q", last.issueURL)
	}
	if len(last.history) != 12 {
		t.Fatalf("expected 12-message window, got %d", len(last.history))
	}
	tail := last.history[len(last.history)-1]
	if tail.Role != chat.RoleUser || tail.Content != "what's next?" {
		t.Fatalf("user turn must be last in window: %+v", tail)
	}
	if got := lastMessage(t, c); got.Content != "keep going" {
		t.Fatalf("reply not appended: %q", got.Content)
	}
}

func TestChatFailureSurfacesDetail(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan"}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	issue := "https://github.com/acme/widgets/issues/4"
	if err := c.Send(context.Background(), issue); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	fb.chatErr = &backend.APIError{Status: 500, Reason: "server overloaded"}
	if err := c.Send(context.Background(), "stuck on step 2"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	if got := lastMessage(t, c); got.Content != "Error: server overloaded" {
		t.Fatalf("unexpected error message: %q", got.Content)
	}
	if got := c.Session().ActiveIssueURL(); got != issue {
		t.Fatalf("active issue mutated on chat failure: %q", got)
	}
}

func TestEmptyChatReplyFallsBack(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan", chatReply: ""}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	if err := c.Send(context.Background(), "https://github.com/acme/widgets/issues/5"); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if err := c.Send(context.Background(), "anything"); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if got := lastMessage(t, c); got.Content != "No reply." {
		t.Fatalf("expected fallback reply, got %q", got.Content)
	}
}

func TestBlankSendIsIgnored(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(fb)

	if err := c.Send(context.Background(), "   \n "); err != nil {
		t.Fatalf("Send err: %v", err)
	}
	if got := len(c.Session().Snapshot().Messages); got != 0 {
		t.Fatalf("blank input must not reach the transcript, got %d messages", got)
	}
}

func TestSubmitRepositoryMissingFields(t *testing.T) {
	fb := &fakeBackend{}
	c := newController(fb)
	c.Session().SetActiveIssue("https://github.com/acme/widgets/issues/1")

	if err := c.SubmitRepository(context.Background(), "https://github.com/acme/widgets", nil); err != nil {
		t.Fatalf("SubmitRepository err: %v", err)
	}

	if got := lastMessage(t, c); got.Content != "Please enter a repository URL and at least one skill." {
		t.Fatalf("unexpected message: %q", got.Content)
	}
	if len(fb.initCalls) != 0 || fb.recommends != 0 {
		t.Fatal("backend must not be called on invalid form")
	}
	// The clear happens before validation, so the stale issue is gone anyway.
	if got := c.Session().ActiveIssueURL(); got != "" {
		t.Fatalf("active issue survived form submit: %q", got)
	}
}

func TestSubmitRepositorySuccess(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "Here are 3 issues to try."}
	c := newController(fb)

	if err := c.SubmitRepository(context.Background(), "https://github.com/acme/widgets", []string{"go", "docs"}); err != nil {
		t.Fatalf("SubmitRepository err: %v", err)
	}

	if len(fb.initCalls) != 1 || len(fb.initCalls[0]) != 2 {
		t.Fatalf("init not called with skills: %+v", fb.initCalls)
	}
	if fb.recommends != 1 {
		t.Fatalf("expected 1 recommend call, got %d", fb.recommends)
	}

	messages := c.Session().Snapshot().Messages
	if len(messages) != 2 {
		t.Fatalf("expected 2 assistant messages, got %d", len(messages))
	}
	if messages[0].Content != "Here are 3 issues to try." {
		t.Fatalf("recommendation missing: %q", messages[0].Content)
	}
	if messages[1].Content != "Paste an issue URL and I'll guide you step-by-step (no code)." {
		t.Fatalf("instructional message missing: %q", messages[1].Content)
	}
}

func TestSubmitRepositoryEmptyRecommendation(t *testing.T) {
	fb := &fakeBackend{recommendMsg: ""}
	c := newController(fb)

	if err := c.SubmitRepository(context.Background(), "https://github.com/acme/widgets", []string{"go"}); err != nil {
		t.Fatalf("SubmitRepository err: %v", err)
	}
	messages := c.Session().Snapshot().Messages
	if messages[0].Content != "No suitable issues found." {
		t.Fatalf("fallback missing: %q", messages[0].Content)
	}
}

func TestSubmitRepositoryBackendFailure(t *testing.T) {
	fb := &fakeBackend{initErr: &backend.APIError{Status: 503, Reason: "warming up"}}
	c := newController(fb)
	c.Session().SetActiveIssue("https://github.com/acme/widgets/issues/1")

	if err := c.SubmitRepository(context.Background(), "https://github.com/acme/widgets", []string{"go"}); err != nil {
		t.Fatalf("SubmitRepository err: %v", err)
	}

	if got := lastMessage(t, c); got.Content != "Error: warming up" {
		t.Fatalf("unexpected message: %q", got.Content)
	}
	if fb.recommends != 0 {
		t.Fatal("recommend must not run after init failure")
	}
	if got := c.Session().ActiveIssueURL(); got != "" {
		t.Fatalf("active issue must clear even when the backend fails: %q", got)
	}
}

func TestSecondDispatchWhileAwaitingIsRejected(t *testing.T) {
	fb := &fakeBackend{
		recommendMsg: "issues",
		planText:     "plan",
		chatReply:    "ok",
		chatGate:     make(chan struct{}),
		chatEntered:  make(chan struct{}),
	}
	c := newController(fb)
	mustSubmit(t, c, "https://github.com/acme/widgets", "go")
	if err := c.Send(context.Background(), "https://github.com/acme/widgets/issues/6"); err != nil {
		t.Fatalf("Send err: %v", err)
	}

	entered := fb.chatEntered
	gate := fb.chatGate
	done := make(chan error, 1)
	go func() {
		done <- c.Send(context.Background(), "first question")
	}()
	<-entered

	if err := c.Send(context.Background(), "second question"); !errors.Is(err, controller.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first send err: %v", err)
	}

	// Idle again: the next dispatch must be accepted.
	if err := c.Send(context.Background(), "third question"); err != nil {
		t.Fatalf("Send after idle err: %v", err)
	}
}

func TestEventsFollowTranscriptOrder(t *testing.T) {
	fb := &fakeBackend{recommendMsg: "issues", planText: "plan"}
	c := newController(fb)

	var events []controller.Event
	c.Subscribe(func(ev controller.Event) {
		events = append(events, ev)
	})

	mustSubmit(t, c, "https://github.com/acme/widgets", "go")

	// typing on, typing off, recommendation, instructional message.
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Type != controller.EventTyping || !events[0].Typing {
		t.Fatalf("expected typing-on first: %+v", events[0])
	}
	if events[1].Type != controller.EventTyping || events[1].Typing {
		t.Fatalf("expected typing-off second: %+v", events[1])
	}
	if events[2].Type != controller.EventMessage || events[2].Message.Content != "issues" {
		t.Fatalf("expected recommendation event: %+v", events[2])
	}
}

func mustSubmit(t *testing.T, c *controller.Controller, repoURL string, skills ...string) {
	t.Helper()
	if err := c.SubmitRepository(context.Background(), repoURL, skills); err != nil {
		t.Fatalf("SubmitRepository err: %v", err)
	}
}
