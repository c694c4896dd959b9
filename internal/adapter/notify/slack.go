package notify

import (
	"context"
	"log/slog"
	"sort"

	"github.com/slack-go/slack"

	"helpdesk-ai/internal/domain"
)

// SlackOption configures the Slack notifier.
type SlackOption func(*slackOptions)

type slackOptions struct {
	apiURL string
}

// WithSlackAPIURL points the client at another API root (must end in "/").
func WithSlackAPIURL(u string) SlackOption {
	return func(o *slackOptions) { o.apiURL = u }
}

// SlackNotifier posts notifications to a Slack channel with a bot token.
type SlackNotifier struct {
	api     *slack.Client
	channel string
	logger  *slog.Logger
}

// NewSlackNotifier creates a notifier posting to channel by default.
func NewSlackNotifier(token, channel string, logger *slog.Logger, opts ...SlackOption) *SlackNotifier {
	var o slackOptions
	for _, opt := range opts {
		opt(&o)
	}
	var clientOpts []slack.Option
	if o.apiURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(o.apiURL))
	}
	return &SlackNotifier{
		api:     slack.New(token, clientOpts...),
		channel: channel,
		logger:  logger,
	}
}

// Name implements domain.Notifier.
func (s *SlackNotifier) Name() string { return "slack" }

// Notify implements domain.Notifier.
func (s *SlackNotifier) Notify(ctx context.Context, n domain.Notification) error {
	channel := n.Channel
	if channel == "" {
		channel = s.channel
	}

	att := slack.Attachment{
		Color:    severityColor(n.Severity),
		Title:    n.Title,
		Text:     n.Text,
		Fallback: n.Title,
	}
	for _, k := range sortedKeys(n.Fields) {
		att.Fields = append(att.Fields, slack.AttachmentField{Title: k, Value: n.Fields[k], Short: true})
	}

	_, ts, err := s.api.PostMessageContext(ctx, channel,
		slack.MsgOptionText(n.Title, false),
		slack.MsgOptionAttachments(att),
	)
	if err != nil {
		return domain.NewDomainError("Slack.Notify", domain.ErrNotifyFailed, err.Error())
	}
	s.logger.Debug("slack notification sent", "channel", channel, "ts", ts)
	return nil
}

func severityColor(sev string) string {
	switch sev {
	case "Critical", "Critical (VIP)":
		return "danger"
	case "High":
		return "warning"
	default:
		return "good"
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ domain.Notifier = (*SlackNotifier)(nil)
