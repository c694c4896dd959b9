// Package escalation hands a request to human support: it picks a
// priority and tone, opens one ticket and composes the hand-off message.
package escalation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"helpdesk-ai/internal/domain"
)

// Name is the handler name recorded in routing paths.
const Name = "Escalation"

const auditAgent = "EscalationAgent"

// Confidence is fixed: escalation always hands off.
const Confidence = 0.95

// Tone is the service level of the hand-off message.
type Tone string

const (
	ToneWhiteGlove   Tone = "White Glove"
	ToneApologetic   Tone = "Apologetic"
	ToneProfessional Tone = "Professional"
)

// ETAMinutes maps priorities to the promised response time.
var ETAMinutes = map[domain.Priority]int{
	domain.PriorityCriticalVIP: 15,
	domain.PriorityHigh:        30,
	domain.PriorityMedium:      60,
	domain.PriorityLow:         120,
}

type workaround struct {
	keyword string
	text    string
}

// workarounds are checked in order; the first keyword found wins.
var workarounds = []workaround{
	{"vpn", "While waiting, you can try: 1) Restart your VPN client, 2) Connect to a different region, 3) Use mobile hotspot temporarily."},
	{"email", "While waiting, you can: 1) Access webmail at mail.company.com, 2) Check spam folder, 3) Clear Outlook cache."},
	{"password", "While waiting, try: 1) Use 'Forgot Password' on the login page, 2) Check if Caps Lock is on."},
	{"slow", "While waiting, try: 1) Close unused browser tabs, 2) Restart your computer, 3) Run disk cleanup."},
	{"crash", "While waiting, try: 1) Save your work frequently, 2) Check for software updates, 3) Increase RAM allocation if possible."},
	{"printer", "While waiting, try: 1) Re-map the printer with the PrintDeploy agent in your system tray, 2) Power-cycle the printer, 3) Print to the nearest floor printer."},
	{"wifi", "While waiting, try: 1) Forget the network and reconnect, 2) Move closer to an access point, 3) Use a wired connection or mobile hotspot."},
}

// Config tunes the handler.
type Config struct {
	Project      string
	SlackChannel string
	Timeout      time.Duration
}

// Result is the outcome of Escalate.
type Result struct {
	Response   string
	Confidence float64
	Priority   domain.Priority
	ETAMinutes int
	Tone       Tone
	Ticket     *domain.Ticket
	TicketErr  error
}

// Handler is the Escalation handler.
type Handler struct {
	tickets  domain.TicketService
	contexts domain.ContextProvider
	cfg      Config
	logger   *slog.Logger
}

// New creates an Escalation handler. tickets may be nil, in which case
// every escalation reports a pending ticket.
func New(tickets domain.TicketService, contexts domain.ContextProvider, cfg Config, logger *slog.Logger) *Handler {
	if cfg.Project == "" {
		cfg.Project = "IT"
	}
	if cfg.SlackChannel == "" {
		cfg.SlackChannel = "#it-support-urgent"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Handler{tickets: tickets, contexts: contexts, cfg: cfg, logger: logger}
}

// Escalate looks up userID and hands message to human support.
func (h *Handler) Escalate(ctx context.Context, message, userID string, sentiment domain.Sentiment, urgency domain.Urgency) Result {
	user := domain.UserContext{UserID: userID, Role: "Employee"}
	if h.contexts != nil {
		user = h.contexts.GetContext(ctx, userID)
	}
	return h.escalate(ctx, message, user, sentiment, urgency)
}

// Handle escalates the newest message in state.
func (h *Handler) Handle(ctx context.Context, state domain.ConversationState, user domain.UserContext) domain.HandlerResult {
	if user.UserID == "" {
		user.UserID = state.UserID
	}
	res := h.escalate(ctx, state.LastMessage(), user, state.Sentiment, state.Urgency)

	ref := "pending"
	if res.Ticket != nil {
		ref = res.Ticket.Key
	}
	return domain.HandlerResult{
		Agent:      Name,
		Response:   res.Response,
		Confidence: res.Confidence,
		Ticket:     res.Ticket,
		Priority:   res.Priority,
		ETAMinutes: res.ETAMinutes,
		Audit: []domain.AuditRecord{domain.NewAuditRecord(auditAgent, "escalated", state.UserID, map[string]any{
			"ticket":   ref,
			"priority": string(res.Priority),
			"vip":      user.VIP,
		})},
	}
}

func (h *Handler) escalate(ctx context.Context, message string, user domain.UserContext, sentiment domain.Sentiment, urgency domain.Urgency) Result {
	priority := AssignPriority(message, user.VIP, sentiment, urgency)
	eta := ETAMinutes[priority]
	tone, intro := SelectTone(message, user, sentiment)

	ticket, err := h.openTicket(ctx, message, user, sentiment, priority)
	if err != nil {
		h.logger.Warn("escalation ticket failed", "user_id", user.UserID, "error", err)
	}

	ticketLine := "pending"
	if ticket != nil {
		ticketLine = ticket.Key
		if ticket.URL != "" {
			ticketLine = fmt.Sprintf("[%s](%s)", ticket.Key, ticket.URL)
		}
	}

	parts := []string{
		intro + " I have escalated this to our Tier 2 Human Support team.\n",
		"**🎫 Ticket Created:** " + ticketLine,
		fmt.Sprintf("**⚡ Priority:** %s", priority),
		fmt.Sprintf("**🕐 Estimated Response:** %d minutes", eta),
		fmt.Sprintf("**👔 Service Level:** %s", tone),
		"**📝 Summary:** \"" + truncate(message, 80) + "\"",
	}
	if w := Workaround(message); w != "" {
		parts = append(parts, "\n**💡 While You Wait:**\n"+w)
	}
	parts = append(parts, fmt.Sprintf("\n---\n📲 *Notification sent to %s on Slack*\nA human agent will reach out within %d minutes.",
		h.cfg.SlackChannel, eta))

	return Result{
		Response:   strings.Join(parts, "\n"),
		Confidence: Confidence,
		Priority:   priority,
		ETAMinutes: eta,
		Tone:       tone,
		Ticket:     ticket,
		TicketErr:  err,
	}
}

func (h *Handler) openTicket(ctx context.Context, message string, user domain.UserContext, sentiment domain.Sentiment, priority domain.Priority) (*domain.Ticket, error) {
	if h.tickets == nil {
		return nil, domain.NewDomainError("escalation.openTicket", domain.ErrTicketCreate, "no ticket service")
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	short := truncate(message, 80)
	desc := fmt.Sprintf("Escalated by the AI support desk.\n\nUser: %s\nDepartment: %s\nVIP: %t\nSentiment: %s\n\nMessage: %s",
		user.UserID, user.Department, user.VIP, sentiment, short)
	return h.tickets.CreateTicket(ctx, domain.TicketRequest{
		Project:     h.cfg.Project,
		Summary:     fmt.Sprintf("[Escalation] %s: %s", user.UserID, short),
		Description: desc,
		Priority:    priority,
	})
}

// AssignPriority applies the escalation priority rules, highest first.
func AssignPriority(message string, vip bool, sentiment domain.Sentiment, urgency domain.Urgency) domain.Priority {
	m := strings.ToLower(message)
	switch {
	case vip:
		return domain.PriorityCriticalVIP
	case sentiment == domain.SentimentFrustrated, strings.Contains(m, "urgent"), strings.Contains(m, "critical"):
		return domain.PriorityHigh
	case sentiment == domain.SentimentPositive && urgency == domain.UrgencyLow:
		return domain.PriorityLow
	}
	return domain.PriorityMedium
}

// SelectTone returns the service level and the opening sentence.
func SelectTone(message string, user domain.UserContext, sentiment domain.Sentiment) (Tone, string) {
	m := strings.ToLower(message)
	switch {
	case user.VIP:
		role := user.Role
		if role == "" {
			role = "Executive"
		}
		return ToneWhiteGlove, fmt.Sprintf("Welcome, %s. Your request is being prioritized immediately by our senior team.", role)
	case strings.Contains(m, "furious"), strings.Contains(m, "hate"), sentiment == domain.SentimentFrustrated:
		return ToneApologetic, "I am truly sorry for the frustration this has caused. We value your patience and are treating this as a priority."
	}
	return ToneProfessional, "I understand this is a complex issue."
}

// Workaround returns the first matching self-help tip, or "".
func Workaround(message string) string {
	m := strings.ToLower(message)
	for _, w := range workarounds {
		if strings.Contains(m, w.keyword) {
			return w.text
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
