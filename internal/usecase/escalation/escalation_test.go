package escalation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helpdesk-ai/internal/adapter/itops"
	"helpdesk-ai/internal/adapter/ticket"
	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTickets struct {
	reqs []domain.TicketRequest
	err  error
}

func (f *fakeTickets) CreateTicket(_ context.Context, req domain.TicketRequest) (*domain.Ticket, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Ticket{Key: "IT-42", URL: "https://jira.example/browse/IT-42", Priority: req.Priority}, nil
}

func (f *fakeTickets) GetTicket(context.Context, string) (*domain.Ticket, error) {
	return nil, domain.ErrTicketNotFound
}

func (f *fakeTickets) Mode() string { return "live" }

func newHandler(t *fakeTickets) *Handler {
	return New(t, itops.NewContextProvider(nil, discard), Config{}, discard)
}

func TestAssignPriority(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		vip       bool
		sentiment domain.Sentiment
		urgency   domain.Urgency
		want      domain.Priority
	}{
		{"vip wins", "hello", true, domain.SentimentPositive, domain.UrgencyLow, domain.PriorityCriticalVIP},
		{"frustrated", "hello", false, domain.SentimentFrustrated, domain.UrgencyMedium, domain.PriorityHigh},
		{"urgent word", "URGENT help", false, domain.SentimentNeutral, domain.UrgencyMedium, domain.PriorityHigh},
		{"critical word", "critical outage", false, domain.SentimentNeutral, domain.UrgencyMedium, domain.PriorityHigh},
		{"positive low", "no rush, thanks!", false, domain.SentimentPositive, domain.UrgencyLow, domain.PriorityLow},
		{"positive medium", "thanks!", false, domain.SentimentPositive, domain.UrgencyMedium, domain.PriorityMedium},
		{"default", "talk to a human", false, domain.SentimentNeutral, domain.UrgencyMedium, domain.PriorityMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignPriority(tt.msg, tt.vip, tt.sentiment, tt.urgency))
		})
	}
	assert.Equal(t, 15, ETAMinutes[domain.PriorityCriticalVIP])
	assert.Equal(t, 120, ETAMinutes[domain.PriorityLow])
}

func TestSelectTone(t *testing.T) {
	tone, intro := SelectTone("hi", domain.UserContext{Role: "Executive", VIP: true}, domain.SentimentFrustrated)
	assert.Equal(t, ToneWhiteGlove, tone)
	assert.Equal(t, "Welcome, Executive. Your request is being prioritized immediately by our senior team.", intro)

	tone, _ = SelectTone("I hate this", domain.UserContext{}, domain.SentimentNeutral)
	assert.Equal(t, ToneApologetic, tone)
	tone, _ = SelectTone("hi", domain.UserContext{}, domain.SentimentFrustrated)
	assert.Equal(t, ToneApologetic, tone)

	tone, intro = SelectTone("please call me", domain.UserContext{}, domain.SentimentNeutral)
	assert.Equal(t, ToneProfessional, tone)
	assert.Equal(t, "I understand this is a complex issue.", intro)
}

func TestWorkaround(t *testing.T) {
	assert.Contains(t, Workaround("VPN and email are down"), "Restart your VPN client")
	assert.Contains(t, Workaround("my printer jammed"), "PrintDeploy")
	assert.Contains(t, Workaround("wifi drops"), "Forget the network")
	assert.Equal(t, "", Workaround("nothing matches"))
}

func TestEscalateFurious(t *testing.T) {
	tickets := &fakeTickets{}
	res := newHandler(tickets).Escalate(context.Background(),
		"I am absolutely furious! Nothing is working!", "user_123", domain.SentimentFrustrated, domain.UrgencyMedium)

	assert.Equal(t, domain.PriorityHigh, res.Priority)
	assert.Equal(t, 30, res.ETAMinutes)
	assert.Equal(t, ToneApologetic, res.Tone)
	assert.Equal(t, Confidence, res.Confidence)

	r := res.Response
	assert.Contains(t, r, "I am truly sorry for the frustration this has caused.")
	assert.Contains(t, r, "I have escalated this to our Tier 2 Human Support team.")
	assert.Contains(t, r, "**🎫 Ticket Created:** [IT-42](https://jira.example/browse/IT-42)")
	assert.Contains(t, r, "**⚡ Priority:** High")
	assert.Contains(t, r, "**🕐 Estimated Response:** 30 minutes")
	assert.Contains(t, r, "**👔 Service Level:** Apologetic")
	assert.Contains(t, r, `**📝 Summary:** "I am absolutely furious! Nothing is working!"`)
	assert.Contains(t, r, "Notification sent to #it-support-urgent on Slack")
	assert.NotContains(t, r, "While You Wait")

	require.Len(t, tickets.reqs, 1)
	req := tickets.reqs[0]
	assert.Equal(t, "IT", req.Project)
	assert.Equal(t, domain.PriorityHigh, req.Priority)
	assert.Contains(t, req.Summary, "user_123")
	assert.Contains(t, req.Description, "Department: Engineering")
	assert.Contains(t, req.Description, "VIP: false")
	assert.Contains(t, req.Description, "Sentiment: Frustrated")
}

func TestEscalateVIP(t *testing.T) {
	res := newHandler(&fakeTickets{}).Escalate(context.Background(),
		"my vpn is down", "user_ceo", domain.SentimentNeutral, domain.UrgencyMedium)

	assert.Equal(t, domain.PriorityCriticalVIP, res.Priority)
	assert.Equal(t, 15, res.ETAMinutes)
	assert.Contains(t, res.Response, "Welcome, Executive.")
	assert.Contains(t, res.Response, "**💡 While You Wait:**\nWhile waiting, you can try: 1) Restart your VPN client")
}

func TestEscalateSummaryTruncated(t *testing.T) {
	msg := strings.Repeat("ä", 100)
	res := newHandler(&fakeTickets{}).Escalate(context.Background(), msg, "u", domain.SentimentNeutral, domain.UrgencyMedium)
	assert.Contains(t, res.Response, `"`+strings.Repeat("ä", 80)+`..."`)
}

func TestEscalateTicketFailureIsPending(t *testing.T) {
	res := newHandler(&fakeTickets{err: errors.New("jira down")}).Escalate(context.Background(),
		"help", "u", domain.SentimentNeutral, domain.UrgencyMedium)

	assert.Nil(t, res.Ticket)
	assert.Error(t, res.TicketErr)
	assert.Equal(t, Confidence, res.Confidence)
	assert.Contains(t, res.Response, "**🎫 Ticket Created:** pending")

	res = New(nil, nil, Config{}, discard).Escalate(context.Background(), "help", "u", domain.SentimentNeutral, domain.UrgencyMedium)
	assert.Contains(t, res.Response, "pending")
}

func TestEscalateDemoJira(t *testing.T) {
	jira := ticket.NewJiraClient(config.JiraConfig{Project: "IT"}, discard)
	h := New(jira, itops.NewContextProvider(nil, discard), Config{SlackChannel: "#helpdesk"}, discard)

	res := h.Escalate(context.Background(), "need a human", "u", domain.SentimentNeutral, domain.UrgencyMedium)
	require.NotNil(t, res.Ticket)
	assert.Regexp(t, regexp.MustCompile(`^IT-\d{3}$`), res.Ticket.Key)
	assert.Contains(t, res.Response, "https://demo.atlassian.net/browse/"+res.Ticket.Key)
	assert.Contains(t, res.Response, "Notification sent to #helpdesk on Slack")
}

func TestHandle(t *testing.T) {
	h := newHandler(&fakeTickets{})
	state := domain.ConversationState{
		UserID:    "user_vip",
		Sentiment: domain.SentimentNeutral,
		Urgency:   domain.UrgencyHigh,
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "my laptop crashed"}},
	}
	user := itops.NewContextProvider(nil, discard).GetContext(context.Background(), "user_vip")
	res := h.Handle(context.Background(), state, user)

	assert.Equal(t, Name, res.Agent)
	assert.Equal(t, domain.PriorityCriticalVIP, res.Priority)
	assert.Equal(t, 15, res.ETAMinutes)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, "IT-42", res.Ticket.Key)
	assert.Contains(t, res.Response, "Save your work frequently")

	require.Len(t, res.Audit, 1)
	a := res.Audit[0]
	assert.Equal(t, "escalated", a.Action)
	assert.Equal(t, "IT-42", a.Details["ticket"])
	assert.Equal(t, "Critical (VIP)", a.Details["priority"])
	assert.Equal(t, true, a.Details["vip"])
}
