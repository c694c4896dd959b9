package domain

import (
	"context"
	"maps"
	"slices"
	"strings"
	"time"
)

// Intent names the handler category chosen for a request.
type Intent string

const (
	IntentKnowledge   Intent = "Knowledge"
	IntentWorkflow    Intent = "Workflow"
	IntentEscalation  Intent = "Escalation"
	IntentLogAnalyzer Intent = "LogAnalyzer"
)

// ParseIntent accepts both handler names and the agent labels used in
// classifier prompts ("WorkflowAgent", "LogAnalysisAgent", ...).
// Unrecognized input returns the empty intent.
func ParseIntent(s string) Intent {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "knowledge", "knowledgeagent":
		return IntentKnowledge
	case "workflow", "workflowagent":
		return IntentWorkflow
	case "escalation", "escalationagent":
		return IntentEscalation
	case "loganalyzer", "loganalysis", "loganalysisagent", "loganalyzeragent":
		return IntentLogAnalyzer
	}
	return ""
}

// Sentiment is the classifier's read of the user's mood.
type Sentiment string

const (
	SentimentPositive   Sentiment = "Positive"
	SentimentNeutral    Sentiment = "Neutral"
	SentimentNegative   Sentiment = "Negative"
	SentimentFrustrated Sentiment = "Frustrated"
)

// ParseSentiment normalizes s, defaulting to Neutral.
func ParseSentiment(s string) Sentiment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive":
		return SentimentPositive
	case "negative":
		return SentimentNegative
	case "frustrated":
		return SentimentFrustrated
	}
	return SentimentNeutral
}

// Urgency is the classifier's estimate of how time-critical a request is.
type Urgency string

const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// ParseUrgency normalizes s, defaulting to Medium.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow
	case "high":
		return UrgencyHigh
	case "critical":
		return UrgencyCritical
	}
	return UrgencyMedium
}

// Routing markers.
const (
	AgentIntake = "Intake"
	AgentEnd    = "END"
)

// AuditRecord is one immutable entry in a conversation's audit trail.
type AuditRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id"`
	Details   map[string]any `json:"details,omitempty"`
}

// NewAuditRecord stamps a record with the current time.
func NewAuditRecord(agent, action, userID string, details map[string]any) AuditRecord {
	return AuditRecord{
		Timestamp: time.Now().UTC(),
		Agent:     agent,
		Action:    action,
		UserID:    userID,
		Details:   details,
	}
}

// TurnInfo carries per-turn observability fields for presentation layers.
type TurnInfo struct {
	ID         string        `json:"id,omitempty"`
	Handler    string        `json:"handler,omitempty"`
	Ticket     *Ticket       `json:"ticket,omitempty"`
	Threats    []string      `json:"threats,omitempty"`
	Severity   string        `json:"severity,omitempty"`
	Priority   Priority      `json:"priority,omitempty"`
	ETAMinutes int           `json:"eta_minutes,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
}

// ConversationState is the value passed through the router. The router
// never mutates the state it receives; it returns a new one.
type ConversationState struct {
	Messages            []Message         `json:"messages"`
	UserID              string            `json:"user_id"`
	NextAgent           string            `json:"next_agent,omitempty"`
	RoutingPath         []string          `json:"routing_path,omitempty"`
	Entities            map[string]string `json:"entities,omitempty"`
	Sentiment           Sentiment         `json:"sentiment,omitempty"`
	Urgency             Urgency           `json:"urgency,omitempty"`
	Confidence          *float64          `json:"confidence,omitempty"`
	RequiresApproval    bool              `json:"requires_approval"`
	ApprovalAction      string            `json:"approval_action,omitempty"`
	ApprovalArgs        map[string]string `json:"approval_args,omitempty"`
	ConversationSummary string            `json:"conversation_summary,omitempty"`
	AuditLog            []AuditRecord     `json:"audit_log,omitempty"`
	Turn                TurnInfo          `json:"turn"`
}

// Clone returns a deep copy so that appends on the copy never alias the
// original's backing arrays.
func (s ConversationState) Clone() ConversationState {
	c := s
	c.Messages = slices.Clone(s.Messages)
	c.RoutingPath = slices.Clone(s.RoutingPath)
	c.AuditLog = slices.Clone(s.AuditLog)
	c.Entities = maps.Clone(s.Entities)
	c.ApprovalArgs = maps.Clone(s.ApprovalArgs)
	if s.Confidence != nil {
		v := *s.Confidence
		c.Confidence = &v
	}
	c.Turn.Threats = slices.Clone(s.Turn.Threats)
	return c
}

// LastMessage returns the content of the newest message, or "".
func (s ConversationState) LastMessage() string {
	if len(s.Messages) == 0 {
		return ""
	}
	return s.Messages[len(s.Messages)-1].Content
}

// ConfidenceValue returns the confidence or 0 when no handler has run.
func (s ConversationState) ConfidenceValue() float64 {
	if s.Confidence == nil {
		return 0
	}
	return *s.Confidence
}

// HandlerResult is what a handler hands back to the router for merging.
type HandlerResult struct {
	Agent            string
	Response         string
	Confidence       float64
	RequiresApproval bool
	ApprovalAction   string
	ApprovalArgs     map[string]string
	Audit            []AuditRecord
	Ticket           *Ticket
	Threats          []string
	Severity         string
	Priority         Priority
	ETAMinutes       int
}

// Classification is the output of a Classifier.
type Classification struct {
	Intent    Intent            `json:"intent"`
	Sentiment Sentiment         `json:"sentiment"`
	Urgency   Urgency           `json:"urgency"`
	Entities  map[string]string `json:"entities,omitempty"`
}

// DefaultClassification is used when every classifier failed.
func DefaultClassification() Classification {
	return Classification{
		Intent:    IntentKnowledge,
		Sentiment: SentimentNeutral,
		Urgency:   UrgencyMedium,
		Entities:  map[string]string{},
	}
}

// Classifier maps a message to intent, sentiment, urgency and entities.
type Classifier interface {
	Classify(ctx context.Context, message, summary string) (Classification, error)
}

// Summarizer condenses recent conversation history.
type Summarizer interface {
	Summarize(ctx context.Context, history []Message) (string, error)
}
