// Package notify fans desk events out to chat-ops channels.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"helpdesk-ai/internal/domain"
)

// LogNotifier writes notifications to the structured log. It is the
// fallback when no chat integration is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Name implements domain.Notifier.
func (l *LogNotifier) Name() string { return "log" }

// Notify implements domain.Notifier.
func (l *LogNotifier) Notify(_ context.Context, n domain.Notification) error {
	l.logger.Info("notification",
		"channel", n.Channel,
		"title", n.Title,
		"severity", n.Severity,
		"text", n.Text,
	)
	return nil
}

// Fanout delivers each notification to every configured notifier.
type Fanout struct {
	notifiers []domain.Notifier
	channel   string
	logger    *slog.Logger
}

// NewFanout creates a fan-out over notifiers. channel is the default
// destination for event-driven notifications.
func NewFanout(channel string, logger *slog.Logger, notifiers ...domain.Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, channel: channel, logger: logger}
}

// Name implements domain.Notifier.
func (f *Fanout) Name() string {
	names := make([]string, len(f.notifiers))
	for i, n := range f.notifiers {
		names[i] = n.Name()
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

// Notify implements domain.Notifier. Every notifier is attempted; their
// errors are joined.
func (f *Fanout) Notify(ctx context.Context, n domain.Notification) error {
	var errs []error
	for _, nt := range f.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			f.logger.Warn("notifier failed", "notifier", nt.Name(), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleEvent turns ticket and threat events into notifications. It is
// registered as an event bus subscriber.
func (f *Fanout) HandleEvent(ctx context.Context, ev domain.Event) {
	n, ok := f.fromEvent(ev)
	if !ok {
		return
	}
	if err := f.Notify(ctx, n); err != nil {
		f.logger.Warn("event notification failed", "event", ev.Type, "error", err)
	}
}

func (f *Fanout) fromEvent(ev domain.Event) (domain.Notification, bool) {
	switch ev.Type {
	case domain.EventTicketCreated:
		var p domain.TicketCreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return domain.Notification{}, false
		}
		return domain.Notification{
			Channel:  f.channel,
			Title:    fmt.Sprintf("Ticket %s opened by %s", p.Ticket.Key, p.Handler),
			Text:     p.Ticket.Summary,
			Severity: string(p.Ticket.Priority),
			Fields: map[string]string{
				"user":     p.UserID,
				"priority": string(p.Ticket.Priority),
				"url":      p.Ticket.URL,
			},
		}, true
	case domain.EventThreatDetected:
		var p domain.ThreatDetectedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return domain.Notification{}, false
		}
		return domain.Notification{
			Channel:  f.channel,
			Title:    "Security threat detected for " + p.UserID,
			Text:     "Detected: " + strings.Join(p.Threats, ", "),
			Severity: p.Severity,
			Fields:   map[string]string{"user": p.UserID, "severity": p.Severity},
		}, true
	}
	return domain.Notification{}, false
}

var _ domain.Notifier = (*Fanout)(nil)
