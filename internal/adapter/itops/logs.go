package itops

import (
	"context"
	"log/slog"
	"strings"

	"helpdesk-ai/internal/domain"
)

// cannedLogs are recent system logs keyed by user or device id.
var cannedLogs = map[string][]string{
	"user_hacker": {
		"[2025-12-02 14:00:01] WARN: Multiple failed login attempts (IP: 192.168.1.666)",
		"[2025-12-02 14:00:05] WARN: Sudo access denied for user 'guest'",
		"[2025-12-02 14:00:10] CRITICAL: Port scanning detected on internal firewall.",
		"[2025-12-02 14:00:15] ALERT: Unauthorized data exfiltration attempt blocked.",
	},
	"user_dev": {
		"[2025-12-02 10:00:01] INFO: Application started",
		"[2025-12-02 10:05:23] WARN: High memory usage detected (85%)",
		"[2025-12-02 10:06:00] ERROR: ConnectionRefusedError: Unable to connect to database at db.prod.internal:5432",
		"[2025-12-02 10:06:01] CRITICAL: Transaction rollback failed. Data inconsistency possible.",
	},
	"user_quantum": {
		"[2025-12-02 09:00:00] INFO: Q-1000 System Online. Coherence: 99.9%",
		"[2025-12-02 09:15:00] WARN: Temporal drift detected in Sector 7.",
		"[2025-12-02 09:15:05] ERROR: Qubit decoherence event. Superposition collapse imminent.",
		"[2025-12-02 09:15:10] CRITICAL: Reality integrity compromised. Please reboot the universe.",
	},
	"user_ceo": {
		"[2025-12-02 08:00:00] INFO: VIP Login. Welcome, CEO.",
		"[2025-12-02 08:05:00] ERROR: Email sync failed. Latency > 5ms.",
		"[2025-12-02 08:05:01] WARN: Coffee machine API not responding.",
	},
	"user_ransomware": {
		"[2025-12-02 03:00:00] INFO: Backup service started.",
		"[2025-12-02 03:15:00] WARN: High disk write activity detected on /shared/finance.",
		"[2025-12-02 03:15:05] ALERT: File extension .crypt detected.",
		"[2025-12-02 03:15:10] CRITICAL: Ransomware signature matched (WannaCry_2025). Isolating host.",
		"[2025-12-02 03:15:15] ERROR: Encryption process active. 5000 files affected.",
	},
	"user_network": {
		"[2025-12-02 11:00:00] INFO: Link status up. Speed: 1Gbps.",
		"[2025-12-02 11:05:00] WARN: High latency to gateway (500ms).",
		"[2025-12-02 11:05:30] ERROR: Packet loss > 15%. Voice call quality degraded.",
		"[2025-12-02 11:06:00] CRITICAL: BGP session flap detected. Rerouting traffic.",
	},
	"user_ssl": {
		"[2025-12-02 09:00:00] INFO: Web server started (Apache/2.4).",
		"[2025-12-02 09:00:01] WARN: SSL Certificate for secure.company.com expires in 0 days.",
		"[2025-12-02 09:00:05] ERROR: Handshake failed: Certificate Expired.",
		"[2025-12-02 09:00:10] CRITICAL: Service outage. Clients cannot connect securely.",
	},
	"user_phishing": {
		"[2025-12-02 10:00] INFO: Email received from 'ceo@company-update.com' (External).",
		"[2025-12-02 10:01] WARN: User clicked link 'http://login-company.com/reset'.",
		"[2025-12-02 10:02] ALERT: Credential harvest page detected.",
	},
	"user_compromised": {
		"[2025-12-02 02:00] INFO: Login success for user123.",
		"[2025-12-02 02:00] WARN: Login location: Pyongyang, North Korea (GeoIP).",
		"[2025-12-02 02:01] ALERT: Impossible travel detected (Last login: NYC, 1 hour ago).",
	},
	"user_exfil": {
		"[2025-12-02 15:00] INFO: User connected to 'Dropbox'.",
		"[2025-12-02 15:05] WARN: Upload started: 'customer_db.csv' (2.5 GB).",
		"[2025-12-02 15:10] CRITICAL: DLP Policy Violation. Sensitive data pattern matched.",
	},
}

var defaultLogs = []string{
	"[2025-12-02 12:00:00] INFO: System running normally.",
	"[2025-12-02 12:05:00] INFO: User logged in.",
	"[2025-12-02 12:10:00] INFO: File saved successfully.",
}

// LogStore serves canned logs. Unknown ids get a quiet INFO-only log.
type LogStore struct {
	logger *slog.Logger
}

// NewLogStore creates a log source over the canned log database.
func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

// FetchLogs implements domain.LogSource.
func (s *LogStore) FetchLogs(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", domain.NewDomainError("LogStore.FetchLogs", domain.ErrLogSource, err.Error())
	}
	lines, ok := cannedLogs[userID]
	if !ok {
		lines = defaultLogs
	}
	s.logger.Debug("logs fetched", "user_id", userID, "lines", len(lines))
	return strings.Join(lines, "\n"), nil
}

var _ domain.LogSource = (*LogStore)(nil)
