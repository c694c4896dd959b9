// Package chat is the interactive terminal front end of the desk.
package chat

import "helpdesk-ai/internal/usecase"

// ReplyMsg carries a desk reply for request generation Gen.
type ReplyMsg struct {
	Reply usecase.Reply
	Gen   uint64
}

// ErrMsg reports a failed desk call for request generation Gen.
type ErrMsg struct {
	Err error
	Gen uint64
}

// FeedbackMsg confirms a rating.
type FeedbackMsg struct {
	Positive bool
	Err      error
}

// MetricsMsg carries a metrics snapshot.
type MetricsMsg struct {
	Snapshot usecase.MetricsSnapshot
}
