// Package uxerror translates raw errors into user-friendly messages with
// recovery hints for the terminal chat.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"helpdesk-ai/internal/adapter/tui/theme"
	"helpdesk-ai/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string   // short heading, e.g. "Conversation Not Found"
	Message string   // one-liner explanation
	Hints   []string // actionable recovery suggestions
	Raw     string   // original error text (for debug)
}

// Render formats the FriendlyError for display in the TUI message list.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			sb.WriteString(fmt.Sprintf("\n    %s %s", theme.SymbolBullet, h))
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	{
		match:   sentinel(domain.ErrNoPendingApproval),
		produce: constantError("Nothing To Approve", "There is no operation waiting for approval in this conversation.", []string{"Ask for the operation again", "Use /approve only after the desk asks for approval"}),
	},
	{
		match:   sentinel(domain.ErrApproverInvalid),
		produce: constantError("Approval Not Allowed", "A different person must approve this operation.", []string{"Ask an IT approver to run /approve <your-id>", "Use /deny to cancel the request"}),
	},
	{
		match:   sentinel(domain.ErrSessionNotFound),
		produce: constantError("Conversation Not Found", "This conversation no longer exists. It may have expired.", []string{"Start a new conversation with /new"}),
	},
	{
		match:   sentinel(domain.ErrInvalidInput),
		produce: constantError("Empty Request", "Type a question or describe the problem.", nil),
	},
	{
		match:   sentinel(domain.ErrOperationFailed),
		produce: constantError("Operation Not Available", "The desk could not run that operation.", []string{"Check that approvals are enabled", "Contact IT support directly"}),
	},
	{
		match:   sentinel(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The language model provider rejected the credentials.", []string{"Check the provider API key environment variable", "Switch classifier.mode to rules"}),
	},
	{
		match:   sentinel(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "Too many requests were sent to an upstream service.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach a backing service.", []string{"Check your network connection", "Verify service URLs in the config file"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout", "busy"),
		produce: constantError("Request Timed Out", "The desk took too long to answer.", []string{"Try again in a moment"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}

	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}

	// Fallback for unrecognized errors.
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Set HELPDESK_LOGGER_LEVEL=debug for details"},
		Raw:     err.Error(),
	}
}

func sentinel(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny returns a match func that checks if the error string contains
// any of the given substrings (case-insensitive).
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

// constantError returns a produce func that always returns the same FriendlyError.
func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{
			Title:   title,
			Message: message,
			Hints:   hints,
			Raw:     err.Error(),
		}
	}
}
