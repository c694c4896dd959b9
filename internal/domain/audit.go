package domain

import (
	"context"
	"time"
)

// AuditEventType classifies durable audit log entries.
type AuditEventType string

const (
	AuditHandlerAction   AuditEventType = "handler_action"
	AuditApprovalResolve AuditEventType = "approval_resolve"
	AuditSessionCreate   AuditEventType = "session_create"
	AuditSessionDelete   AuditEventType = "session_delete"
	AuditFeedback        AuditEventType = "feedback"
)

// AuditEvent represents a single auditable action written to the durable sink.
type AuditEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      AuditEventType    `json:"type"`
	Detail    map[string]string `json:"detail"`

	Actor    string `json:"actor,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

// AuditLogger writes audit events to a persistent log.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Close() error
}
