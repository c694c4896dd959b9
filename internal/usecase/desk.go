package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"helpdesk-ai/internal/domain"
)

// ApprovalRunner executes a deferred sensitive operation once a human
// approved it.
type ApprovalRunner interface {
	RunApproved(ctx context.Context, action string, args map[string]string, userID string) (string, error)
}

// TurnAuditor is the durable audit sink used by the desk.
type TurnAuditor interface {
	Log(ctx context.Context, event domain.AuditEvent) error
	LogRecords(ctx context.Context, sessionID string, records []domain.AuditRecord) error
}

// Reply is what presentation layers render after a turn.
type Reply struct {
	SessionID        string           `json:"session_id"`
	TurnID           string           `json:"turn_id"`
	Response         string           `json:"response"`
	Handler          string           `json:"handler"`
	RoutingPath      []string         `json:"routing_path"`
	Confidence       float64          `json:"confidence"`
	Sentiment        domain.Sentiment `json:"sentiment"`
	Urgency          domain.Urgency   `json:"urgency"`
	RequiresApproval bool             `json:"requires_approval"`
	ApprovalAction   string           `json:"approval_action,omitempty"`
	Ticket           *domain.Ticket   `json:"ticket,omitempty"`
	Threats          []string         `json:"threats,omitempty"`
	Severity         string           `json:"severity,omitempty"`
	Priority         domain.Priority  `json:"priority,omitempty"`
	ETAMinutes       int              `json:"eta_minutes,omitempty"`
	Duration         time.Duration    `json:"duration"`
}

func replyFrom(sessionID string, state domain.ConversationState) Reply {
	return Reply{
		SessionID:        sessionID,
		TurnID:           state.Turn.ID,
		Response:         state.LastMessage(),
		Handler:          state.Turn.Handler,
		RoutingPath:      state.RoutingPath,
		Confidence:       state.ConfidenceValue(),
		Sentiment:        state.Sentiment,
		Urgency:          state.Urgency,
		RequiresApproval: state.RequiresApproval,
		ApprovalAction:   state.ApprovalAction,
		Ticket:           state.Turn.Ticket,
		Threats:          state.Turn.Threats,
		Severity:         state.Turn.Severity,
		Priority:         state.Turn.Priority,
		ETAMinutes:       state.Turn.ETAMinutes,
		Duration:         state.Turn.Duration,
	}
}

// DeskOption configures a Desk.
type DeskOption func(*Desk)

// WithEventBus publishes desk events on bus.
func WithEventBus(bus domain.EventBus) DeskOption {
	return func(d *Desk) { d.bus = bus }
}

// WithAuditor writes audit records to a durable sink.
func WithAuditor(a TurnAuditor) DeskOption {
	return func(d *Desk) { d.auditor = a }
}

// WithApprovalRunner enables approving pending operations.
func WithApprovalRunner(r ApprovalRunner) DeskOption {
	return func(d *Desk) { d.approvals = r }
}

// WithApprovers restricts who may approve a pending operation. Without
// it any identity other than the requester may.
func WithApprovers(ids []string) DeskOption {
	return func(d *Desk) {
		if len(ids) == 0 {
			return
		}
		d.approvers = make(map[string]bool, len(ids))
		for _, id := range ids {
			d.approvers[id] = true
		}
	}
}

// WithMetrics shares a metrics accumulator.
func WithMetrics(m *Metrics) DeskOption {
	return func(d *Desk) { d.metrics = m }
}

// Desk is the entry point used by every surface: it owns sessions,
// serializes turns per session, runs the router and reports the outcome.
type Desk struct {
	router    *Router
	sessions  *SessionManager
	locker    *SessionLocker
	bus       domain.EventBus
	auditor   TurnAuditor
	approvals ApprovalRunner
	approvers map[string]bool
	metrics   *Metrics
	logger    *slog.Logger
}

// NewDesk wires a desk around router and sessions.
func NewDesk(router *Router, sessions *SessionManager, logger *slog.Logger, opts ...DeskOption) *Desk {
	d := &Desk{
		router:   router,
		sessions: sessions,
		locker:   NewSessionLocker(),
		metrics:  NewMetrics(),
		logger:   logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// NewSession starts an empty conversation for userID.
func (d *Desk) NewSession(ctx context.Context, userID string) (*Session, error) {
	s := d.sessions.Create(userID)
	if err := d.sessions.Save(s.ID); err != nil {
		return nil, err
	}
	d.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditSessionCreate,
		Actor:    userID,
		Resource: s.ID,
		Action:   "create",
		Outcome:  "ok",
	})
	d.publish(ctx, domain.EventSessionCreated, s.ID, map[string]string{"user_id": userID})
	return s, nil
}

// Session returns an existing session.
func (d *Desk) Session(id string) (*Session, error) {
	return d.sessions.Get(id)
}

// DeleteSession removes a session and its persisted state.
func (d *Desk) DeleteSession(ctx context.Context, id string) error {
	if err := d.sessions.Delete(id); err != nil {
		return err
	}
	d.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditSessionDelete,
		Resource: id,
		Action:   "delete",
		Outcome:  "ok",
	})
	d.publish(ctx, domain.EventSessionDeleted, id, map[string]string{})
	return nil
}

// Ask runs one turn for message in sessionID. An empty sessionID starts
// a new session; the reply carries its id.
func (d *Desk) Ask(ctx context.Context, sessionID, userID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, domain.NewDomainError("Desk.Ask", domain.ErrInvalidInput, "empty message")
	}

	s, err := d.sessions.GetOrCreate(sessionID, userID)
	if err != nil {
		return Reply{}, err
	}
	release, err := d.locker.Lock(ctx, s.ID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	mark := s.mark()
	state := s.AddMessage(domain.Message{Role: domain.RoleUser, Content: message})
	if state.UserID == "" {
		state.UserID = userID
	}
	before := len(state.AuditLog)

	next := d.router.Route(ctx, state)
	s.Commit(next)
	if err := d.sessions.Save(s.ID); err != nil {
		// A retry must not find this turn already applied.
		s.rollback(mark)
		d.logger.Warn("session save failed", "session_id", s.ID, "error", err)
		return Reply{}, err
	}

	escalated := next.Turn.Handler == string(domain.IntentEscalation)
	d.metrics.RecordTurn(next.Turn.Handler, escalated, next.Turn.Duration)

	if d.auditor != nil {
		if err := d.auditor.LogRecords(ctx, s.ID, next.AuditLog[before:]); err != nil {
			d.logger.Warn("audit write failed", "session_id", s.ID, "error", err)
		}
	}
	d.publishTurn(ctx, s.ID, next, escalated)

	return replyFrom(s.ID, next), nil
}

func (d *Desk) publishTurn(ctx context.Context, sessionID string, state domain.ConversationState, escalated bool) {
	d.publish(ctx, domain.EventTurnRouted, sessionID, domain.TurnRoutedPayload{
		UserID:     state.UserID,
		Handler:    state.Turn.Handler,
		Confidence: state.ConfidenceValue(),
		Escalated:  escalated,
		Duration:   state.Turn.Duration,
	})
	if state.RequiresApproval {
		d.publish(ctx, domain.EventApprovalRequested, sessionID, domain.ApprovalPayload{
			UserID: state.UserID,
			Action: state.ApprovalAction,
		})
	}
	if state.Turn.Ticket != nil {
		d.publish(ctx, domain.EventTicketCreated, sessionID, domain.TicketCreatedPayload{
			UserID:  state.UserID,
			Handler: state.Turn.Handler,
			Ticket:  *state.Turn.Ticket,
		})
	}
	if len(state.Turn.Threats) > 0 {
		d.publish(ctx, domain.EventThreatDetected, sessionID, domain.ThreatDetectedPayload{
			UserID:   state.UserID,
			Threats:  state.Turn.Threats,
			Severity: state.Turn.Severity,
		})
	}
}

// ResolveApproval approves or denies the pending operation of a session
// on behalf of approverID. Approving runs the operation; either way an
// audit record is appended. The requester may deny but never approve
// their own request.
func (d *Desk) ResolveApproval(ctx context.Context, sessionID, approverID string, approve bool) (Reply, error) {
	approverID = strings.TrimSpace(approverID)
	if approverID == "" {
		return Reply{}, domain.NewDomainError("Desk.ResolveApproval", domain.ErrInvalidInput, "approver is required")
	}
	s, err := d.sessions.Get(sessionID)
	if err != nil {
		return Reply{}, err
	}
	release, err := d.locker.Lock(ctx, s.ID)
	if err != nil {
		return Reply{}, err
	}
	defer release()

	if approve && d.approvals == nil {
		return Reply{}, domain.NewDomainError("Desk.ResolveApproval", domain.ErrOperationFailed, "approvals are not enabled")
	}
	userID := s.Snapshot().UserID
	if err := d.checkApprover(approverID, userID, approve); err != nil {
		d.logger.Warn("approval refused", "session_id", s.ID, "approver", approverID, "error", err)
		return Reply{}, err
	}
	p := s.TakePending()
	if p == nil {
		return Reply{}, domain.NewDomainError("Desk.ResolveApproval", domain.ErrNoPendingApproval, sessionID)
	}

	details := map[string]any{"action": p.Action, "turn_id": p.TurnID, "approver": approverID}
	for k, v := range p.Args {
		details["arg_"+k] = v
	}

	var reply, action, outcome string
	if approve {
		action = "approval_granted"
		out, runErr := d.approvals.RunApproved(ctx, p.Action, p.Args, userID)
		if runErr != nil {
			outcome = "error"
			details["error"] = runErr.Error()
			reply = fmt.Sprintf("✅ Approved `%s`, but it failed: %v", p.Action, runErr)
		} else {
			outcome = "executed"
			details["result"] = out
			reply = fmt.Sprintf("✅ Approved. Executing: `%s`...\n**Result**: %s", p.Action, out)
		}
	} else {
		action = "approval_denied"
		outcome = "denied"
		reply = fmt.Sprintf("🚫 Denied. `%s` was not executed.", p.Action)
	}

	rec := domain.NewAuditRecord("Approver", action, userID, details)
	state := s.Resolve(reply, rec)
	if err := d.sessions.Save(s.ID); err != nil {
		return Reply{}, err
	}

	d.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditApprovalResolve,
		Actor:    approverID,
		Resource: s.ID,
		Action:   p.Action,
		Outcome:  outcome,
		Detail:   map[string]string{"decision": action, "turn_id": p.TurnID, "requester": userID},
	})
	approved := approve
	d.publish(ctx, domain.EventApprovalResolved, s.ID, domain.ApprovalPayload{
		UserID:     userID,
		Action:     p.Action,
		ApproverID: approverID,
		Approved:   &approved,
	})
	d.logger.Info("approval resolved", "session_id", s.ID, "action", p.Action, "approver", approverID, "approved", approve, "outcome", outcome)

	r := replyFrom(s.ID, state)
	r.TurnID = p.TurnID
	r.Handler = string(domain.IntentWorkflow)
	r.RoutingPath = nil
	return r, nil
}

func (d *Desk) checkApprover(approverID, requester string, approve bool) error {
	if approverID == requester {
		if approve {
			return domain.NewDomainError("Desk.ResolveApproval", domain.ErrApproverInvalid, "requester cannot approve their own request")
		}
		return nil
	}
	if d.approvers != nil && !d.approvers[approverID] {
		return domain.NewDomainError("Desk.ResolveApproval", domain.ErrApproverInvalid, approverID+" is not an approver")
	}
	return nil
}

// Feedback records a thumbs up or down for a turn. An empty turnID rates
// the latest turn.
func (d *Desk) Feedback(ctx context.Context, sessionID, turnID string, positive bool) error {
	s, err := d.sessions.Get(sessionID)
	if err != nil {
		return err
	}
	release, err := d.locker.Lock(ctx, s.ID)
	if err != nil {
		return err
	}
	defer release()

	if turnID == "" {
		turnID = s.Snapshot().Turn.ID
	}
	if turnID == "" || !s.HasTurn(turnID) {
		return domain.NewDomainError("Desk.Feedback", domain.ErrNotFound, "turn "+turnID)
	}
	userID := s.Snapshot().UserID

	rating := "negative"
	if positive {
		rating = "positive"
	}
	s.RecordFeedback(turnID, positive, domain.NewAuditRecord("User", "feedback_"+rating, userID, map[string]any{"turn_id": turnID}))
	if err := d.sessions.Save(s.ID); err != nil {
		return err
	}
	d.metrics.RecordFeedback(positive)

	d.audit(ctx, domain.AuditEvent{
		Type:     domain.AuditFeedback,
		Actor:    userID,
		Resource: s.ID,
		Action:   "rate",
		Outcome:  rating,
		Detail:   map[string]string{"turn_id": turnID},
	})
	d.publish(ctx, domain.EventFeedbackRecorded, s.ID, domain.FeedbackPayload{
		UserID:   userID,
		TurnID:   turnID,
		Positive: positive,
	})
	return nil
}

// Metrics returns a snapshot of desk activity.
func (d *Desk) Metrics() MetricsSnapshot {
	return d.metrics.Snapshot()
}

// ReapSessions removes sessions idle for longer than maxAge.
func (d *Desk) ReapSessions(_ context.Context, maxAge time.Duration) int {
	n := d.sessions.ReapStaleSessions(maxAge)
	if n > 0 {
		d.logger.Info("reaped stale sessions", "count", n)
	}
	return n
}

func (d *Desk) audit(ctx context.Context, ev domain.AuditEvent) {
	if d.auditor == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := d.auditor.Log(ctx, ev); err != nil {
		d.logger.Warn("audit write failed", "type", ev.Type, "error", err)
	}
}

func (d *Desk) publish(ctx context.Context, t domain.EventType, sessionID string, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, domain.NewEvent(t, sessionID, payload))
}
