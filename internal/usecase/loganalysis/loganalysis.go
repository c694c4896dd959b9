// Package loganalysis scans a user's recent logs for threat signatures and
// diagnoses everything else with a language model.
package loganalysis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"helpdesk-ai/internal/domain"
)

// Name is the handler name recorded in routing paths.
const Name = "LogAnalyzer"

const auditAgent = "LogAnalysisAgent"

// Severity levels.
const (
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityCritical = "Critical"
)

// Confidence per outcome.
const (
	ThreatConfidence     = 0.9
	FailureConfidence    = 0.3
	UnparsedConfidence   = 0.5
	DefaultLLMConfidence = 0.7
)

// Signature is a threat category and the substrings that reveal it.
type Signature struct {
	Category string
	Patterns []string
	Fix      string
}

// Signatures are matched case-insensitively, in order.
var Signatures = []Signature{
	{
		Category: "ransomware",
		Patterns: []string{"ransomware", ".crypt", "encryption process", "wannacry"},
		Fix:      "Disconnect the machine from the network immediately and do not power it off. Security will image the disk.",
	},
	{
		Category: "phishing",
		Patterns: []string{"credential harvest", "phishing", "clicked link", "company-update"},
		Fix:      "Reset your password and MFA now, and forward the message to security@company.com.",
	},
	{
		Category: "exfiltration",
		Patterns: []string{"exfiltration", "dlp policy violation", "upload started", "sensitive data pattern"},
		Fix:      "Stop any running uploads. Security will review DLP events and revoke external sharing links.",
	},
	{
		Category: "intrusion",
		Patterns: []string{"port scanning", "impossible travel", "unauthorized", "failed login attempts"},
		Fix:      "Sessions for this account will be revoked. Change your password and review recent sign-ins.",
	},
}

// DetectThreats returns the categories whose signatures appear in logs.
func DetectThreats(logs string) []string {
	l := strings.ToLower(logs)
	var found []string
	for _, sig := range Signatures {
		for _, p := range sig.Patterns {
			if strings.Contains(l, p) {
				found = append(found, sig.Category)
				break
			}
		}
	}
	return found
}

const diagnosePrompt = `You are a Senior Site Reliability Engineer. Analyze the following system logs and identify the root cause of the failure.
Reply with exactly one line in the form:
diagnosis|severity|fix|confidence
where severity is one of Low, Medium, High, Critical and confidence is a number between 0 and 1.`

// Diagnosis is a parsed model verdict.
type Diagnosis struct {
	Diagnosis  string
	Severity   string
	Fix        string
	Confidence float64
}

// ParseDiagnosis reads "diagnosis|severity|fix|confidence". The confidence
// field is optional and defaults to 0.7.
func ParseDiagnosis(s string) (Diagnosis, bool) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`"))
	for _, line := range strings.Split(s, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) < 3 {
			continue
		}
		d := Diagnosis{
			Diagnosis:  strings.TrimSpace(parts[0]),
			Severity:   normalizeSeverity(parts[1]),
			Fix:        strings.TrimSpace(parts[2]),
			Confidence: DefaultLLMConfidence,
		}
		if d.Diagnosis == "" {
			continue
		}
		if len(parts) > 3 {
			if f, err := strconv.ParseFloat(strings.TrimSpace(parts[3]), 64); err == nil {
				d.Confidence = min(max(f, 0), 1)
			}
		}
		return d, true
	}
	return Diagnosis{}, false
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	}
	return SeverityMedium
}

// Config tunes the handler.
type Config struct {
	Project string
	Timeout time.Duration
}

// Result is the outcome of Analyze.
type Result struct {
	Response   string
	Confidence float64
	Severity   string
	Threats    []string
	Diagnosis  string
	Fix        string
	Ticket     *domain.Ticket
}

// Handler is the log/threat analyzer.
type Handler struct {
	logs     domain.LogSource
	provider domain.LLMProvider
	tickets  domain.TicketService
	cfg      Config
	logger   *slog.Logger
}

// New creates an analyzer. provider and tickets may be nil.
func New(logs domain.LogSource, provider domain.LLMProvider, tickets domain.TicketService, cfg Config, logger *slog.Logger) *Handler {
	if cfg.Project == "" {
		cfg.Project = "IT"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Handler{logs: logs, provider: provider, tickets: tickets, cfg: cfg, logger: logger}
}

// Analyze fetches and inspects the logs for userID.
func (h *Handler) Analyze(ctx context.Context, userID string) Result {
	logs, err := h.fetch(ctx, userID)
	if err != nil {
		h.logger.Warn("log fetch failed", "user_id", userID, "error", err)
		res := Result{
			Severity:   SeverityMedium,
			Confidence: FailureConfidence,
			Diagnosis:  fmt.Sprintf("Unable to retrieve recent logs for %s.", userID),
			Fix:        "An engineer will pull the logs manually.",
		}
		res.Response = h.render(userID, res, "")
		return res
	}

	res := Result{Threats: DetectThreats(logs)}
	if len(res.Threats) > 0 {
		res.Severity = SeverityCritical
		res.Confidence = ThreatConfidence
		res.Diagnosis = "Security threat detected: " + strings.Join(res.Threats, ", ") + "."
		res.Fix = remediation(res.Threats)
	} else {
		h.diagnose(ctx, logs, &res)
	}

	ticketLine := ""
	if res.Severity == SeverityCritical || strings.Contains(strings.ToLower(logs), "critical") {
		res.Ticket, ticketLine = h.openTicket(ctx, userID, res)
	}
	res.Response = h.render(userID, res, ticketLine)
	return res
}

// Handle analyzes the logs of the requesting user.
func (h *Handler) Handle(ctx context.Context, state domain.ConversationState, _ domain.UserContext) domain.HandlerResult {
	res := h.Analyze(ctx, state.UserID)
	threats := res.Threats
	if threats == nil {
		threats = []string{}
	}
	return domain.HandlerResult{
		Agent:      Name,
		Response:   res.Response,
		Confidence: res.Confidence,
		Ticket:     res.Ticket,
		Threats:    res.Threats,
		Severity:   res.Severity,
		Audit: []domain.AuditRecord{domain.NewAuditRecord(auditAgent, "log_analyzed", state.UserID, map[string]any{
			"threats":    threats,
			"severity":   res.Severity,
			"confidence": res.Confidence,
		})},
	}
}

func (h *Handler) fetch(ctx context.Context, userID string) (string, error) {
	if h.logs == nil {
		return "", domain.NewDomainError("loganalysis.fetch", domain.ErrLogSource, "no log source")
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	return h.logs.FetchLogs(ctx, userID)
}

func (h *Handler) diagnose(ctx context.Context, logs string, res *Result) {
	fail := func(err error) {
		h.logger.Warn("log diagnosis failed", "error", err)
		res.Severity = SeverityMedium
		res.Confidence = FailureConfidence
		res.Diagnosis = "Automated log analysis is unavailable right now."
		res.Fix = "An engineer will review the logs manually."
	}
	if h.provider == nil {
		fail(domain.ErrProviderNotFound)
		return
	}

	cctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	resp, err := h.provider.Chat(cctx, domain.Prompt(diagnosePrompt, "Logs:\n"+logs))
	if err != nil {
		fail(err)
		return
	}

	raw := strings.TrimSpace(resp.Message.Content)
	d, ok := ParseDiagnosis(raw)
	if !ok {
		res.Severity = SeverityMedium
		res.Confidence = UnparsedConfidence
		res.Diagnosis = raw
		return
	}
	res.Severity = d.Severity
	res.Confidence = d.Confidence
	res.Diagnosis = d.Diagnosis
	res.Fix = d.Fix
}

func (h *Handler) openTicket(ctx context.Context, userID string, res Result) (*domain.Ticket, string) {
	pending := "I tried to open a support ticket for this critical issue, but the ticketing system is unavailable. Status: pending."
	if h.tickets == nil {
		return nil, pending
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	desc := res.Diagnosis
	if len(res.Threats) > 0 {
		desc = "Detected threats: " + strings.Join(res.Threats, ", ") + "\n\n" + res.Diagnosis
	}
	if res.Fix != "" {
		desc += "\n\nRecommended fix: " + res.Fix
	}
	t, err := h.tickets.CreateTicket(ctx, domain.TicketRequest{
		Project:     h.cfg.Project,
		Summary:     "Automated Log Analysis: " + userID,
		Description: desc,
		Priority:    domain.PriorityCritical,
	})
	if err != nil {
		h.logger.Warn("log analysis ticket failed", "user_id", userID, "error", err)
		return nil, pending
	}
	ref := t.Key
	if t.URL != "" {
		ref = fmt.Sprintf("[%s](%s)", t.Key, t.URL)
	}
	return t, "I have automatically created a support ticket for this critical issue: " + ref
}

func (h *Handler) render(userID string, res Result, ticketLine string) string {
	lines := []string{fmt.Sprintf("**🔍 Log Analysis for %s**\n", userID)}
	if len(res.Threats) > 0 {
		lines = append(lines, "**🚨 Threats Detected:** "+strings.Join(res.Threats, ", "))
	}
	lines = append(lines,
		"**Severity:** "+res.Severity,
		"**Diagnosis:** "+res.Diagnosis,
	)
	if res.Fix != "" {
		lines = append(lines, "**Recommended Fix:** "+res.Fix)
	}
	if ticketLine != "" {
		lines = append(lines, "", ticketLine)
	}
	return strings.Join(lines, "\n")
}

func remediation(threats []string) string {
	var fixes []string
	for _, sig := range Signatures {
		for _, t := range threats {
			if t == sig.Category {
				fixes = append(fixes, sig.Fix)
			}
		}
	}
	return strings.Join(fixes, " ")
}
