package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"helpdesk-ai/internal/adapter/notify"
	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/security"
	"helpdesk-ai/internal/usecase"
)

// sessionKeyEnv holds the passphrase for encrypted session files.
const sessionKeyEnv = "HELPDESK_SESSION_KEY"

// openSessions creates the session store, encrypting files at rest when
// configured. The salt lives beside the session files.
func openSessions(cfg config.SessionConfig) (*usecase.SessionManager, error) {
	if !cfg.Encryption {
		return usecase.NewSessionManager(cfg.DataDir), nil
	}
	pass := os.Getenv(sessionKeyEnv)
	if pass == "" {
		return nil, fmt.Errorf("session encryption enabled but %s is not set", sessionKeyEnv)
	}
	salt, err := security.LoadOrCreateSalt(filepath.Join(cfg.DataDir, ".salt"))
	if err != nil {
		return nil, err
	}
	cipher, err := security.NewSessionCipher(pass, salt)
	if err != nil {
		return nil, fmt.Errorf("session cipher: %w", err)
	}
	return usecase.NewSessionManager(cfg.DataDir, usecase.WithCipher(cipher)), nil
}

// openAudit opens the audit log and applies its retention policy.
func openAudit(cfg config.AuditConfig) (*security.FileAuditLogger, error) {
	policy, err := security.ParseRetention(cfg.Retention.MaxAge, cfg.Retention.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("audit retention: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	audit, err := security.NewFileAuditLogger(cfg.Path)
	if err != nil {
		return nil, err
	}
	audit.SetRetention(policy)
	return audit, nil
}

// buildNotifier fans desk events out to the log and any enabled chat-ops
// channel. A Discord session that cannot be created is skipped.
func buildNotifier(cfg *config.Config, log *slog.Logger) *notify.Fanout {
	notifiers := []domain.Notifier{notify.NewLogNotifier(log)}

	if s := cfg.Notify.Slack; s.Enabled && s.Token != "" {
		var opts []notify.SlackOption
		if s.APIURL != "" {
			opts = append(opts, notify.WithSlackAPIURL(s.APIURL))
		}
		notifiers = append(notifiers, notify.NewSlackNotifier(s.Token, s.Channel, log, opts...))
	}
	if d := cfg.Notify.Discord; d.Enabled && d.Token != "" {
		dn, err := notify.NewDiscordNotifier(d.Token, d.ChannelID, log)
		if err != nil {
			log.Warn("discord notifier disabled", "error", err)
		} else {
			notifiers = append(notifiers, dn)
		}
	}

	channel := cfg.Escalation.SlackChannel
	if channel == "" {
		channel = cfg.Notify.Slack.Channel
	}
	return notify.NewFanout(channel, log, notifiers...)
}
