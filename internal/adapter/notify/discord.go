package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"helpdesk-ai/internal/domain"
)

// discordSender is the slice of *discordgo.Session we use.
type discordSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordNotifier posts notifications as embeds over the Discord REST API.
type DiscordNotifier struct {
	session   discordSender
	channelID string
	logger    *slog.Logger
}

// NewDiscordNotifier creates a bot-token notifier. No gateway connection
// is opened; only REST calls are made.
func NewDiscordNotifier(token, channelID string, logger *slog.Logger) (*DiscordNotifier, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return &DiscordNotifier{session: dg, channelID: channelID, logger: logger}, nil
}

// Name implements domain.Notifier.
func (d *DiscordNotifier) Name() string { return "discord" }

// Notify implements domain.Notifier. Notification.Channel is a Slack
// channel name, so Discord always posts to its configured channel.
func (d *DiscordNotifier) Notify(ctx context.Context, n domain.Notification) error {
	embed := &discordgo.MessageEmbed{
		Title:       n.Title,
		Description: n.Text,
		Color:       embedColor(n.Severity),
	}
	for _, k := range sortedKeys(n.Fields) {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: k, Value: n.Fields[k], Inline: true})
	}
	if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return domain.NewDomainError("Discord.Notify", domain.ErrNotifyFailed, err.Error())
	}
	d.logger.Debug("discord notification sent", "channel_id", d.channelID)
	return nil
}

func embedColor(sev string) int {
	switch severityColor(sev) {
	case "danger":
		return 0xD00000
	case "warning":
		return 0xF2C744
	default:
		return 0x2EB67D
	}
}

var _ domain.Notifier = (*DiscordNotifier)(nil)
