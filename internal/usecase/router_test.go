package usecase

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-ai/internal/adapter/itops"
	kstore "helpdesk-ai/internal/adapter/knowledge"
	"helpdesk-ai/internal/adapter/ticket"
	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/usecase/classifier"
	"helpdesk-ai/internal/usecase/escalation"
	"helpdesk-ai/internal/usecase/knowledge"
	"helpdesk-ai/internal/usecase/loganalysis"
	"helpdesk-ai/internal/usecase/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// scripted answers with a fixed classification, the way a model would for
// phrasings the keyword rules do not cover.
type scripted struct {
	c   domain.Classification
	err error
}

func (s scripted) Classify(context.Context, string, string) (domain.Classification, error) {
	return s.c, s.err
}

func intentOf(i domain.Intent) scripted {
	c := domain.DefaultClassification()
	c.Intent = i
	return scripted{c: c}
}

// opSpy counts calls to the sensitive operations.
type opSpy struct {
	domain.ITOps
	mu    sync.Mutex
	calls []string
}

func (s *opSpy) record(op string) {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	s.mu.Unlock()
}

func (s *opSpy) OffboardUser(ctx context.Context, userID string) (string, error) {
	s.record("offboard_user")
	return s.ITOps.OffboardUser(ctx, userID)
}

func (s *opSpy) GrantTempAdmin(ctx context.Context, userID string, hours int) (string, error) {
	s.record("grant_temp_admin")
	return s.ITOps.GrantTempAdmin(ctx, userID, hours)
}

func (s *opSpy) RebootServer(ctx context.Context, serverID string) (string, error) {
	s.record("reboot_server")
	return s.ITOps.RebootServer(ctx, serverID)
}

func (s *opSpy) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

type fixture struct {
	router   *Router
	ops      *opSpy
	workflow *workflow.Handler
}

func newFixture(t *testing.T, c domain.Classifier) *fixture {
	t.Helper()
	dir := itops.NewDirectory()
	spy := &opSpy{ITOps: itops.NewMock(dir, discard)}
	contexts := itops.NewContextProvider(dir, discard)
	tickets := ticket.NewJiraClient(config.JiraConfig{Project: "IT"}, discard)
	require.Equal(t, ticket.ModeDemo, tickets.Mode())

	wf := workflow.New(spy, workflow.KeywordSelector{}, nil, discard)
	handlers := map[domain.Intent]Handler{
		domain.IntentKnowledge:   knowledge.New(kstore.NewKeywordStore(), nil, nil, knowledge.Config{}, discard),
		domain.IntentWorkflow:    wf,
		domain.IntentEscalation:  escalation.New(tickets, contexts, escalation.Config{Project: "IT"}, discard),
		domain.IntentLogAnalyzer: loganalysis.New(itops.NewLogStore(discard), nil, tickets, loganalysis.Config{Project: "IT"}, discard),
	}
	return &fixture{
		router:   NewRouter(c, contexts, handlers, discard),
		ops:      spy,
		workflow: wf,
	}
}

func ask(userID, message string) domain.ConversationState {
	return domain.ConversationState{
		UserID:   userID,
		Messages: []domain.Message{{Role: domain.RoleUser, Content: message}},
	}
}

func TestDecide(t *testing.T) {
	vip := domain.UserContext{VIP: true}
	regular := domain.UserContext{}
	cls := func(i domain.Intent, s domain.Sentiment, u domain.Urgency) domain.Classification {
		return domain.Classification{Intent: i, Sentiment: s, Urgency: u}
	}

	tests := []struct {
		name string
		c    domain.Classification
		user domain.UserContext
		want domain.Intent
	}{
		{"vip high", cls(domain.IntentKnowledge, domain.SentimentNeutral, domain.UrgencyHigh), vip, domain.IntentEscalation},
		{"vip critical", cls(domain.IntentWorkflow, domain.SentimentPositive, domain.UrgencyCritical), vip, domain.IntentEscalation},
		{"vip medium keeps intent", cls(domain.IntentWorkflow, domain.SentimentNeutral, domain.UrgencyMedium), vip, domain.IntentWorkflow},
		{"frustrated", cls(domain.IntentLogAnalyzer, domain.SentimentFrustrated, domain.UrgencyLow), regular, domain.IntentEscalation},
		{"critical", cls(domain.IntentKnowledge, domain.SentimentNeutral, domain.UrgencyCritical), regular, domain.IntentEscalation},
		{"regular high keeps intent", cls(domain.IntentWorkflow, domain.SentimentNeutral, domain.UrgencyHigh), regular, domain.IntentWorkflow},
		{"empty intent", cls("", domain.SentimentNeutral, domain.UrgencyMedium), regular, domain.IntentKnowledge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.c, tt.user))
		})
	}
}

func TestRouteVIPOverride(t *testing.T) {
	c := intentOf(domain.IntentKnowledge)
	c.c.Urgency = domain.UrgencyHigh
	f := newFixture(t, c)

	out := f.router.Route(context.Background(), ask("user_ceo", "What is the wifi password?"))
	assert.Equal(t, string(domain.IntentEscalation), out.Turn.Handler)
	assert.Equal(t, domain.PriorityCriticalVIP, out.Turn.Priority)

	out = f.router.Route(context.Background(), ask("user123", "What is the wifi password?"))
	assert.Equal(t, string(domain.IntentKnowledge), out.Turn.Handler)
}

func TestRouteFrustrationOverride(t *testing.T) {
	c := intentOf(domain.IntentWorkflow)
	c.c.Sentiment = domain.SentimentFrustrated
	f := newFixture(t, c)

	out := f.router.Route(context.Background(), ask("user123", "reset my mfa"))
	assert.Equal(t, []string{domain.AgentIntake, string(domain.IntentEscalation)}, out.RoutingPath)
	assert.Empty(t, f.ops.Calls())
}

func TestRouteClassifierFailureFallsBackToKnowledge(t *testing.T) {
	f := newFixture(t, scripted{err: domain.ErrLLMOutput})

	out := f.router.Route(context.Background(), ask("user123", "reboot the prod server"))
	assert.Equal(t, string(domain.IntentKnowledge), out.Turn.Handler)
	assert.Equal(t, domain.SentimentNeutral, out.Sentiment)
	assert.Equal(t, domain.UrgencyMedium, out.Urgency)
}

func TestRouteUnregisteredIntentUsesKnowledge(t *testing.T) {
	f := newFixture(t, intentOf(domain.Intent("Billing")))

	out := f.router.Route(context.Background(), ask("user123", "password policy"))
	assert.Equal(t, string(domain.IntentKnowledge), out.Turn.Handler)
}

func TestRouteDoesNotMutateInput(t *testing.T) {
	f := newFixture(t, classifier.NewRules())
	in := ask("user123", "Reboot the dev server.")
	in.AuditLog = []domain.AuditRecord{domain.NewAuditRecord("Test", "seed", "user123", nil)}
	in.RoutingPath = []string{"Intake", "Knowledge"}

	out := f.router.Route(context.Background(), in)

	assert.Len(t, in.Messages, 1)
	assert.Len(t, in.AuditLog, 1)
	assert.Equal(t, []string{"Intake", "Knowledge"}, in.RoutingPath)
	assert.Nil(t, in.Confidence)

	assert.Len(t, out.Messages, 2)
	assert.Equal(t, domain.RoleAssistant, out.Messages[1].Role)
	assert.Equal(t, []string{domain.AgentIntake, string(domain.IntentWorkflow)}, out.RoutingPath)
}

func TestRouteCompletedTurnInvariant(t *testing.T) {
	f := newFixture(t, classifier.NewRules())
	for _, msg := range []string{
		"What is the password policy?",
		"I hate this laptop",
		"check my logs",
		"order me a new mouse",
		"hello",
	} {
		out := f.router.Route(context.Background(), ask("user123", msg))
		assert.GreaterOrEqual(t, len(out.RoutingPath), 2, msg)
		assert.Equal(t, domain.AgentIntake, out.RoutingPath[0], msg)
		assert.Equal(t, domain.AgentEnd, out.NextAgent, msg)
		require.NotNil(t, out.Confidence, msg)
		assert.GreaterOrEqual(t, *out.Confidence, 0.0, msg)
		assert.LessOrEqual(t, *out.Confidence, 1.0, msg)
		assert.NotEmpty(t, out.Turn.ID, msg)
	}
}

func TestSensitiveOperationsAreGated(t *testing.T) {
	tests := []struct {
		message string
		action  string
	}{
		{"Grant me admin access for 2 hours.", "grant_temp_admin"},
		{"Please offboard user_bob, he is leaving", "offboard_user"},
		{"Reboot prod-db-1 now", "reboot_server"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			f := newFixture(t, intentOf(domain.IntentWorkflow))

			out := f.router.Route(context.Background(), ask("user123", tt.message))
			assert.Equal(t, string(domain.IntentWorkflow), out.Turn.Handler)
			assert.True(t, out.RequiresApproval)
			assert.Equal(t, tt.action, out.ApprovalAction)
			assert.Empty(t, f.ops.Calls(), "sensitive operation ran without approval")
		})
	}
}

func TestVPNLockedAutoUnlock(t *testing.T) {
	f := newFixture(t, classifier.NewRules())

	out := f.router.Route(context.Background(), ask("user_locked", "My VPN won't connect"))
	require.Equal(t, string(domain.IntentWorkflow), out.Turn.Handler)
	reply := out.LastMessage()
	assert.Contains(t, reply, "Account Locked")
	assert.Contains(t, reply, "Account Unlocked")
	assert.False(t, out.RequiresApproval)
}

func TestScenarioPasswordPolicy(t *testing.T) {
	f := newFixture(t, intentOf(domain.IntentKnowledge))

	out := f.router.Route(context.Background(), ask("user123", "What is the password policy?"))
	assert.Equal(t, string(domain.IntentKnowledge), out.Turn.Handler)
	assert.Contains(t, out.LastMessage(), "Minimum 12 characters")
	assert.Greater(t, out.ConfidenceValue(), 0.0)
}

func TestScenarioFuriousUser(t *testing.T) {
	f := newFixture(t, classifier.NewRules())

	out := f.router.Route(context.Background(), ask("user123", "I am absolutely furious! Nothing is working!"))
	assert.Equal(t, string(domain.IntentEscalation), out.Turn.Handler)
	assert.Equal(t, domain.PriorityHigh, out.Turn.Priority)
	assert.InDelta(t, 0.95, out.ConfidenceValue(), 1e-9)
	require.NotNil(t, out.Turn.Ticket)
	assert.True(t, strings.HasPrefix(out.Turn.Ticket.Key, "IT-"))

	out = f.router.Route(context.Background(), ask("user_ceo", "I am absolutely furious! Nothing is working!"))
	assert.Equal(t, string(domain.IntentEscalation), out.Turn.Handler)
	assert.Equal(t, domain.PriorityCriticalVIP, out.Turn.Priority)
}

func TestScenarioGrantAdmin(t *testing.T) {
	f := newFixture(t, intentOf(domain.IntentWorkflow))

	out := f.router.Route(context.Background(), ask("user123", "Grant me admin access for 2 hours."))
	assert.Equal(t, string(domain.IntentWorkflow), out.Turn.Handler)
	assert.True(t, out.RequiresApproval)
	assert.Equal(t, "grant_temp_admin", out.ApprovalAction)
	assert.Equal(t, "2", out.ApprovalArgs["duration_hours"])
	assert.InDelta(t, 0.95, out.ConfidenceValue(), 1e-9)
}

func TestScenarioRebootDevServer(t *testing.T) {
	f := newFixture(t, classifier.NewRules())

	out := f.router.Route(context.Background(), ask("user123", "Reboot the dev server."))
	assert.Equal(t, string(domain.IntentWorkflow), out.Turn.Handler)
	assert.False(t, out.RequiresApproval)
	assert.Contains(t, out.LastMessage(), "rebooting")
	assert.Equal(t, []string{"reboot_server"}, f.ops.Calls())
}

func TestScenarioRansomwareLogs(t *testing.T) {
	f := newFixture(t, classifier.NewRules())

	out := f.router.Route(context.Background(), ask("user_ransomware", "Can you check my security logs?"))
	assert.Equal(t, string(domain.IntentLogAnalyzer), out.Turn.Handler)
	assert.Contains(t, out.Turn.Threats, "ransomware")
	assert.Equal(t, loganalysis.SeverityCritical, out.Turn.Severity)
	require.NotNil(t, out.Turn.Ticket)
	assert.Contains(t, out.LastMessage(), out.Turn.Ticket.Key)
}

type countingSummarizer struct{ calls int }

func (s *countingSummarizer) Summarize(_ context.Context, history []domain.Message) (string, error) {
	s.calls++
	return "earlier: " + history[0].Content, nil
}

type summaryProbe struct{ got string }

func (p *summaryProbe) Classify(_ context.Context, _ string, summary string) (domain.Classification, error) {
	p.got = summary
	return domain.DefaultClassification(), nil
}

func TestRouteSummarizesHistory(t *testing.T) {
	probe := &summaryProbe{}
	sum := &countingSummarizer{}
	f := newFixture(t, probe)
	r := NewRouter(probe, nil, f.router.handlers, discard, WithSummarizer(sum))

	// A single message has no history to summarize.
	r.Route(context.Background(), ask("user123", "hi"))
	assert.Equal(t, 0, sum.calls)

	state := ask("user123", "my vpn is down")
	state.Messages = append(state.Messages,
		domain.Message{Role: domain.RoleAssistant, Content: "checking"},
		domain.Message{Role: domain.RoleUser, Content: "still down"},
	)
	out := r.Route(context.Background(), state)
	assert.Equal(t, 1, sum.calls)
	assert.Equal(t, "earlier: my vpn is down", probe.got)
	assert.Equal(t, "earlier: my vpn is down", out.ConversationSummary)
}
