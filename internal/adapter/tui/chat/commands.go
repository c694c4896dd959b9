package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// askCmd runs one desk turn in the background. gen lets the model drop
// replies from requests the user already cancelled.
func askCmd(ctx context.Context, desk Desk, sessionID, userID, text string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		reply, err := desk.Ask(ctx, sessionID, userID, text)
		if err != nil {
			return ErrMsg{Err: err, Gen: gen}
		}
		return ReplyMsg{Reply: reply, Gen: gen}
	}
}

func resolveCmd(ctx context.Context, desk Desk, sessionID, approverID string, approve bool, gen uint64) tea.Cmd {
	return func() tea.Msg {
		reply, err := desk.ResolveApproval(ctx, sessionID, approverID, approve)
		if err != nil {
			return ErrMsg{Err: err, Gen: gen}
		}
		return ReplyMsg{Reply: reply, Gen: gen}
	}
}

func feedbackCmd(desk Desk, sessionID, turnID string, positive bool) tea.Cmd {
	return func() tea.Msg {
		err := desk.Feedback(context.Background(), sessionID, turnID, positive)
		return FeedbackMsg{Positive: positive, Err: err}
	}
}

func metricsCmd(desk Desk) tea.Cmd {
	return func() tea.Msg {
		return MetricsMsg{Snapshot: desk.Metrics()}
	}
}
