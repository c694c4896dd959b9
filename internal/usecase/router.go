package usecase

import (
	"context"
	"log/slog"
	"time"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/tracer"
)

// Handler is one specialized desk handler. Handlers absorb their own
// failures and always return a result.
type Handler interface {
	Handle(ctx context.Context, state domain.ConversationState, user domain.UserContext) domain.HandlerResult
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, state domain.ConversationState, user domain.UserContext) domain.HandlerResult

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, state domain.ConversationState, user domain.UserContext) domain.HandlerResult {
	return f(ctx, state, user)
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithSummarizer enables conversation summaries before classification.
func WithSummarizer(s domain.Summarizer) RouterOption {
	return func(r *Router) { r.summarizer = s }
}

// WithTurnIDs overrides the turn id generator.
func WithTurnIDs(fn func() string) RouterOption {
	return func(r *Router) { r.newID = fn }
}

// Router runs one turn: classify, pick exactly one handler, merge.
type Router struct {
	classifier domain.Classifier
	summarizer domain.Summarizer
	contexts   domain.ContextProvider
	handlers   map[domain.Intent]Handler
	newID      func() string
	logger     *slog.Logger
}

// NewRouter creates a router. handlers must contain at least the
// Knowledge handler, which is used for unknown intents.
func NewRouter(classifier domain.Classifier, contexts domain.ContextProvider, handlers map[domain.Intent]Handler, logger *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		classifier: classifier,
		contexts:   contexts,
		handlers:   handlers,
		newID:      func() string { return generateULID(time.Now()) },
		logger:     logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Route takes the prior state by value and returns the state after one
// completed turn. The input is never modified.
func (r *Router) Route(ctx context.Context, prev domain.ConversationState) domain.ConversationState {
	start := time.Now()
	ctx, span := tracer.StartSpan(ctx, "router.route")
	defer span.End()

	state := prev.Clone()
	state.RoutingPath = []string{domain.AgentIntake}
	state.Turn = domain.TurnInfo{ID: r.newID()}
	state.RequiresApproval = false
	state.ApprovalAction = ""
	state.ApprovalArgs = nil

	user := r.userContext(ctx, state.UserID)
	message := state.LastMessage()

	if r.summarizer != nil && len(state.Messages) > 1 {
		if summary, err := r.summarizer.Summarize(ctx, state.Messages[:len(state.Messages)-1]); err == nil {
			state.ConversationSummary = summary
		}
	}

	c, err := r.classifier.Classify(ctx, message, state.ConversationSummary)
	if err != nil {
		r.logger.Warn("classifier failed, using defaults", "error", err, "user_id", state.UserID)
		c = domain.DefaultClassification()
	}
	state.Sentiment = c.Sentiment
	state.Urgency = c.Urgency
	if len(c.Entities) > 0 {
		if state.Entities == nil {
			state.Entities = make(map[string]string, len(c.Entities))
		}
		for k, v := range c.Entities {
			state.Entities[k] = v
		}
	}

	intent := Decide(c, user)
	handler, ok := r.handlers[intent]
	if !ok {
		intent = domain.IntentKnowledge
		handler = r.handlers[intent]
	}
	state.NextAgent = string(intent)

	span.SetAttributes(
		tracer.StringAttr("router.intent", string(c.Intent)),
		tracer.StringAttr("router.handler", string(intent)),
		tracer.StringAttr("router.sentiment", string(c.Sentiment)),
		tracer.StringAttr("router.urgency", string(c.Urgency)),
	)

	res := handler.Handle(ctx, state, user)
	state = merge(state, string(intent), res)
	state.Turn.Duration = time.Since(start)

	span.SetAttributes(tracer.FloatAttr("router.confidence", res.Confidence))
	tracer.SetOK(span)
	r.logger.Info("turn routed",
		"user_id", state.UserID,
		"intent", c.Intent,
		"handler", intent,
		"confidence", res.Confidence,
		"duration", state.Turn.Duration,
	)
	return state
}

func (r *Router) userContext(ctx context.Context, userID string) domain.UserContext {
	if r.contexts == nil {
		return domain.UserContext{UserID: userID}
	}
	return r.contexts.GetContext(ctx, userID)
}

// Decide applies the routing overrides to a classification, first match
// wins: VIP with High/Critical urgency, then frustration or Critical
// urgency, then the classified intent. Empty intents map to Knowledge.
func Decide(c domain.Classification, user domain.UserContext) domain.Intent {
	switch {
	case user.VIP && (c.Urgency == domain.UrgencyHigh || c.Urgency == domain.UrgencyCritical):
		return domain.IntentEscalation
	case c.Sentiment == domain.SentimentFrustrated || c.Urgency == domain.UrgencyCritical:
		return domain.IntentEscalation
	case c.Intent == "":
		return domain.IntentKnowledge
	}
	return c.Intent
}

func merge(state domain.ConversationState, name string, res domain.HandlerResult) domain.ConversationState {
	state.RoutingPath = append(state.RoutingPath, name)
	state.Messages = append(state.Messages, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   res.Response,
		Timestamp: time.Now().UTC(),
	})
	state.AuditLog = append(state.AuditLog, res.Audit...)

	conf := clamp01(res.Confidence)
	state.Confidence = &conf
	state.RequiresApproval = res.RequiresApproval
	state.ApprovalAction = res.ApprovalAction
	state.ApprovalArgs = res.ApprovalArgs

	state.Turn.Handler = name
	state.Turn.Ticket = res.Ticket
	state.Turn.Threats = res.Threats
	state.Turn.Severity = res.Severity
	state.Turn.Priority = res.Priority
	state.Turn.ETAMinutes = res.ETAMinutes
	state.NextAgent = domain.AgentEnd
	return state
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
