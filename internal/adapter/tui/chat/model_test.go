package chat

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/usecase"
)

type stubDesk struct {
	askErr    error
	needsOK   bool
	asked     []string
	requester string
	resolved  []bool
	approvers []string
	feedbacks []bool
}

func (d *stubDesk) Ask(_ context.Context, sessionID, userID, message string) (usecase.Reply, error) {
	if d.askErr != nil {
		return usecase.Reply{}, d.askErr
	}
	d.asked = append(d.asked, message)
	d.requester = userID
	r := usecase.Reply{
		SessionID:   "S1",
		TurnID:      "T" + string(rune('0'+len(d.asked))),
		Response:    "Checked your VPN.",
		Handler:     "Workflow",
		RoutingPath: []string{"Intake", "Workflow"},
		Confidence:  0.9,
		Urgency:     domain.UrgencyMedium,
	}
	if d.needsOK {
		r.RequiresApproval = true
		r.ApprovalAction = "reboot_server"
	}
	return r, nil
}

func (d *stubDesk) ResolveApproval(_ context.Context, sessionID, approverID string, approve bool) (usecase.Reply, error) {
	if approve && approverID == d.requester {
		return usecase.Reply{}, domain.NewDomainError("Desk.ResolveApproval", domain.ErrApproverInvalid, "self")
	}
	d.resolved = append(d.resolved, approve)
	d.approvers = append(d.approvers, approverID)
	return usecase.Reply{SessionID: sessionID, Handler: "Workflow", Response: "Approved."}, nil
}

func (d *stubDesk) Feedback(_ context.Context, _, _ string, positive bool) error {
	d.feedbacks = append(d.feedbacks, positive)
	return nil
}

func (d *stubDesk) Metrics() usecase.MetricsSnapshot {
	return usecase.MetricsSnapshot{TotalRequests: 1, Automated: 1, AutomationRate: 1, Satisfaction: -1}
}

// run executes cmd and any batched commands, returning the messages that
// are not spinner ticks.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	switch msg.(type) {
	case ReplyMsg, ErrMsg, FeedbackMsg, MetricsMsg, tea.QuitMsg:
		return []tea.Msg{msg}
	}
	return nil
}

func typeLine(t *testing.T, m Model, text string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(text)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

// exchange types text and feeds every resulting message back in.
func exchange(t *testing.T, m Model, text string) Model {
	t.Helper()
	m, cmd := typeLine(t, m, text)
	for _, msg := range run(cmd) {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	return m
}

func TestAskShowsReply(t *testing.T) {
	desk := &stubDesk{}
	m := exchange(t, New(desk, "user123", ""), "my vpn is down")

	if m.SessionID() != "S1" {
		t.Errorf("SessionID = %q", m.SessionID())
	}
	if len(desk.asked) != 1 || desk.asked[0] != "my vpn is down" {
		t.Errorf("asked = %v", desk.asked)
	}
	out := m.transcript()
	for _, want := range []string{"my vpn is down", "Workflow", "90%"} {
		if !strings.Contains(out, want) {
			t.Errorf("transcript missing %q:\n%s", want, out)
		}
	}
	if m.waiting {
		t.Error("still waiting after reply")
	}
}

func TestApprovalFlow(t *testing.T) {
	desk := &stubDesk{needsOK: true}
	m := exchange(t, New(desk, "user_dev", ""), "reboot prod-web-1")
	if m.pending != "reboot_server" {
		t.Fatalf("pending = %q", m.pending)
	}
	if !strings.Contains(m.transcript(), "needs approval") {
		t.Error("approval prompt not shown")
	}

	m = exchange(t, m, "/approve it_admin")
	if len(desk.resolved) != 1 || !desk.resolved[0] {
		t.Errorf("resolved = %v", desk.resolved)
	}
	if len(desk.approvers) != 1 || desk.approvers[0] != "it_admin" {
		t.Errorf("approvers = %v", desk.approvers)
	}
	if m.pending != "" {
		t.Errorf("pending after approve = %q", m.pending)
	}
}

func TestSelfApprovalRefused(t *testing.T) {
	desk := &stubDesk{needsOK: true}
	m := exchange(t, New(desk, "user_dev", ""), "reboot prod-web-1")

	m = exchange(t, m, "/approve")
	if len(desk.resolved) != 0 {
		t.Errorf("resolved = %v", desk.resolved)
	}
	if m.pending != "reboot_server" {
		t.Errorf("pending = %q, want it kept", m.pending)
	}
	if !strings.Contains(m.transcript(), "Approval Not Allowed") {
		t.Errorf("transcript missing refusal:\n%s", m.transcript())
	}
}

func TestApproveWithNothingPending(t *testing.T) {
	desk := &stubDesk{}
	m, cmd := typeLine(t, New(desk, "u", ""), "/deny")
	if cmd != nil {
		t.Error("no command expected")
	}
	if len(desk.resolved) != 0 {
		t.Errorf("resolved = %v", desk.resolved)
	}
	if !strings.Contains(m.transcript(), "Nothing is waiting") {
		t.Errorf("transcript = %s", m.transcript())
	}
}

func TestCancelDropsLateReply(t *testing.T) {
	desk := &stubDesk{}
	m, cmd := typeLine(t, New(desk, "u", ""), "hello")
	if !m.waiting {
		t.Fatal("expected waiting after submit")
	}
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = next.(Model)
	if m.waiting || m.quitting {
		t.Fatalf("waiting=%v quitting=%v after cancel", m.waiting, m.quitting)
	}

	for _, msg := range run(cmd) {
		next, _ := m.Update(msg)
		m = next.(Model)
	}
	if m.SessionID() != "" {
		t.Errorf("stale reply applied, session = %q", m.SessionID())
	}
}

func TestFeedbackCommands(t *testing.T) {
	desk := &stubDesk{}
	m, _ := typeLine(t, New(desk, "u", ""), "/good")
	if len(desk.feedbacks) != 0 || !strings.Contains(m.transcript(), "no answer to rate") {
		t.Fatalf("feedback before any answer: %v", desk.feedbacks)
	}

	m = exchange(t, m, "printer jammed")
	m = exchange(t, m, "/bad")
	if len(desk.feedbacks) != 1 || desk.feedbacks[0] {
		t.Errorf("feedbacks = %v", desk.feedbacks)
	}
}

func TestDeskErrorIsHumanized(t *testing.T) {
	desk := &stubDesk{askErr: domain.NewDomainError("Desk.Ask", domain.ErrSessionNotFound, "S9")}
	m := exchange(t, New(desk, "u", "S9"), "hello?")
	if !strings.Contains(m.transcript(), "Conversation Not Found") {
		t.Errorf("transcript = %s", m.transcript())
	}
}

func TestNewConversationResetsSession(t *testing.T) {
	m := exchange(t, New(&stubDesk{}, "u", ""), "hello")
	m = exchange(t, m, "/new")
	if m.SessionID() != "" || m.lastTurn != "" {
		t.Errorf("session=%q turn=%q after /new", m.SessionID(), m.lastTurn)
	}
}

func TestMetricsCommand(t *testing.T) {
	m := exchange(t, New(&stubDesk{}, "u", ""), "/metrics")
	if !strings.Contains(m.transcript(), "Requests") {
		t.Errorf("transcript = %s", m.transcript())
	}
}

func TestCtrlCQuitsWhenIdle(t *testing.T) {
	next, cmd := New(&stubDesk{}, "u", "").Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !next.(Model).quitting {
		t.Error("not quitting")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.Quit")
	}
}
