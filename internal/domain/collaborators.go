package domain

import (
	"context"
	"time"
)

// UserContext is the static profile of a requester.
type UserContext struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	Role       string `json:"role"`
	Location   string `json:"location"`
	Department string `json:"department"`
	VIP        bool   `json:"vip"`
}

// ContextProvider looks up user profiles. Lookups never fail; unknown users
// get a default profile.
type ContextProvider interface {
	GetContext(ctx context.Context, userID string) UserContext
}

// Priority is a ticket/escalation priority label.
type Priority string

const (
	PriorityLow         Priority = "Low"
	PriorityMedium      Priority = "Medium"
	PriorityHigh        Priority = "High"
	PriorityCritical    Priority = "Critical"
	PriorityCriticalVIP Priority = "Critical (VIP)"
)

// Ticket is an issue in the external ticketing system (or its demo stand-in).
type Ticket struct {
	Key         string    `json:"key"`
	ID          string    `json:"id,omitempty"`
	URL         string    `json:"url"`
	Summary     string    `json:"summary,omitempty"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status,omitempty"`
	Priority    Priority  `json:"priority,omitempty"`
	Assignee    string    `json:"assignee,omitempty"`
	Labels      []string  `json:"labels,omitempty"`
	Demo        bool      `json:"demo,omitempty"`
	Created     time.Time `json:"created,omitempty"`
}

// TicketRequest describes an issue to open.
type TicketRequest struct {
	Project     string
	Summary     string
	Description string
	IssueType   string
	Priority    Priority
	Labels      []string
}

// TicketService opens and reads tickets. Live and demo modes satisfy the
// same contract.
type TicketService interface {
	CreateTicket(ctx context.Context, req TicketRequest) (*Ticket, error)
	GetTicket(ctx context.Context, key string) (*Ticket, error)
	// Mode reports "live" or "demo".
	Mode() string
}

// LogSource returns the recent log blob for a user or device.
type LogSource interface {
	FetchLogs(ctx context.Context, userID string) (string, error)
}

// Document is a knowledge snippet.
type Document struct {
	ID       string  `json:"id"`
	Category string  `json:"category,omitempty"`
	Topic    string  `json:"topic,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score,omitempty"`
}

// KnowledgeStore is a ranked top-k lookup.
type KnowledgeStore interface {
	Search(ctx context.Context, query string, k int) ([]Document, error)
}

// KnowledgeIndexer accepts documents for later retrieval.
type KnowledgeIndexer interface {
	Index(ctx context.Context, docs []Document) error
}

// Notification is a message fanned out to chat-ops channels.
type Notification struct {
	Channel  string
	Title    string
	Text     string
	Severity string
	Fields   map[string]string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Name() string
}

// SystemHealth is the monitoring status of an infrastructure system.
type SystemHealth struct {
	SystemID string `json:"system_id"`
	Status   string `json:"status"`
	Uptime   string `json:"uptime,omitempty"`
	Region   string `json:"region,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ITOps is the backend that performs IT operations on behalf of the
// workflow handler and the MCP server.
type ITOps interface {
	CheckVPNStatus(ctx context.Context, userID string) (string, error)
	UnlockAccount(ctx context.Context, userID string) (string, error)
	CheckLicenseAvailability(ctx context.Context, software string) (bool, error)
	ProvisionLicense(ctx context.Context, userID, software string) (string, error)
	ResetMFA(ctx context.Context, userID string) (string, error)
	ResetPassword(ctx context.Context, userID string) (string, error)
	OnboardUser(ctx context.Context, name, department string) (string, error)
	OffboardUser(ctx context.Context, userID string) (string, error)
	GrantTempAdmin(ctx context.Context, userID string, hours int) (string, error)
	CheckHardwareEligibility(ctx context.Context, userID string) (string, error)
	OrderPeripheral(ctx context.Context, userID, item string) (string, error)
	RebootServer(ctx context.Context, serverID string) (string, error)
	SubmitFacilityRequest(ctx context.Context, location, issue string) (string, error)
	CheckSystemHealth(ctx context.Context, systemID string) (SystemHealth, error)
}

type approvedKey struct{}

// WithApproval marks ctx as carrying a human approval for the operation
// about to run. Backends may refuse sensitive work without it.
func WithApproval(ctx context.Context) context.Context {
	return context.WithValue(ctx, approvedKey{}, true)
}

// IsApproved reports whether ctx carries a human approval.
func IsApproved(ctx context.Context) bool {
	v, _ := ctx.Value(approvedKey{}).(bool)
	return v
}
