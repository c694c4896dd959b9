package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventTurnRouted        EventType = "turn.routed"
	EventApprovalRequested EventType = "approval.requested"
	EventApprovalResolved  EventType = "approval.resolved"
	EventTicketCreated     EventType = "ticket.created"
	EventThreatDetected    EventType = "threat.detected"
	EventFeedbackRecorded  EventType = "feedback.recorded"
	EventSessionCreated    EventType = "session.created"
	EventSessionDeleted    EventType = "session.deleted"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TurnRoutedPayload is the payload of EventTurnRouted.
type TurnRoutedPayload struct {
	UserID     string        `json:"user_id"`
	Handler    string        `json:"handler"`
	Confidence float64       `json:"confidence"`
	Escalated  bool          `json:"escalated"`
	Duration   time.Duration `json:"duration"`
}

// TicketCreatedPayload is the payload of EventTicketCreated.
type TicketCreatedPayload struct {
	UserID  string `json:"user_id"`
	Handler string `json:"handler"`
	Ticket  Ticket `json:"ticket"`
}

// ThreatDetectedPayload is the payload of EventThreatDetected.
type ThreatDetectedPayload struct {
	UserID   string   `json:"user_id"`
	Threats  []string `json:"threats"`
	Severity string   `json:"severity"`
}

// ApprovalPayload is the payload of approval events.
type ApprovalPayload struct {
	UserID     string `json:"user_id"`
	Action     string `json:"action"`
	ApproverID string `json:"approver_id,omitempty"`
	Approved   *bool  `json:"approved,omitempty"`
}

// FeedbackPayload is the payload of EventFeedbackRecorded.
type FeedbackPayload struct {
	UserID   string `json:"user_id"`
	TurnID   string `json:"turn_id"`
	Positive bool   `json:"positive"`
}

// NewEvent marshals payload into an event envelope.
func NewEvent(t EventType, sessionID string, payload any) Event {
	data, _ := json.Marshal(payload)
	return Event{Type: t, Timestamp: time.Now(), SessionID: sessionID, Payload: data}
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
