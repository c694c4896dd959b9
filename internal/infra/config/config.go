package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
	LLM        LLMConfig        `yaml:"llm"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Confidence ConfidenceConfig `yaml:"confidence"`
	Workflow   WorkflowConfig   `yaml:"workflow"`
	Escalation EscalationConfig `yaml:"escalation"`
	Jira       JiraConfig       `yaml:"jira"`
	Notify     NotifyConfig     `yaml:"notify"`
	Session    SessionConfig    `yaml:"session"`
	Audit      AuditConfig      `yaml:"audit"`
	Approval   ApprovalConfig   `yaml:"approval"`
	HTTP       HTTPConfig       `yaml:"http"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// LLMConfig holds text-generation provider settings. With no providers
// configured every capability runs on its rule-based implementation.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"` // openai, gemini, bedrock
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Region      string        `yaml:"region,omitempty"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// ClassifierConfig selects the request classifier implementation.
type ClassifierConfig struct {
	Mode               string        `yaml:"mode"` // llm, rules
	Timeout            time.Duration `yaml:"timeout"`
	Summarize          bool          `yaml:"summarize"`
	SummaryWindow      int           `yaml:"summary_window"`
	SummaryTokenBudget int           `yaml:"summary_token_budget"`
}

// KnowledgeConfig holds retrieval and answer-composition settings.
type KnowledgeConfig struct {
	Backend            string          `yaml:"backend"` // keyword, sqlite
	DBPath             string          `yaml:"db_path"`
	TopK               int             `yaml:"top_k"`
	Verify             bool            `yaml:"verify"`
	RetrievalWeight    float64         `yaml:"retrieval_weight"`
	VerificationWeight float64         `yaml:"verification_weight"`
	MinSimilarity      float64         `yaml:"min_similarity"` // sqlite vector match floor
	Timeout            time.Duration   `yaml:"timeout"`
	Embedding          EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig holds text embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // hash, openai
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// ConfidenceConfig holds the display banding thresholds.
type ConfidenceConfig struct {
	High   float64 `yaml:"high"`
	Medium float64 `yaml:"medium"`
}

// WorkflowConfig selects the tool selector implementation.
type WorkflowConfig struct {
	Selector string        `yaml:"selector"` // llm, keyword
	Timeout  time.Duration `yaml:"timeout"`
}

// EscalationConfig holds human hand-off settings.
type EscalationConfig struct {
	Project      string        `yaml:"project"`
	SlackChannel string        `yaml:"slack_channel"`
	Timeout      time.Duration `yaml:"timeout"`
}

// JiraConfig holds Jira Cloud credentials. Missing credentials select demo mode.
type JiraConfig struct {
	Domain    string        `yaml:"domain"`
	Email     string        `yaml:"email"`
	APIToken  string        `yaml:"api_token"`
	Project   string        `yaml:"project"`
	IssueType string        `yaml:"issue_type"`
	Labels    []string      `yaml:"labels"`
	RateLimit float64       `yaml:"rate_limit"` // requests per second
	Burst     int           `yaml:"burst"`
	Timeout   time.Duration `yaml:"timeout"`
}

// NotifyConfig holds chat-ops notification settings.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot settings.
type SlackConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
	APIURL  string `yaml:"api_url,omitempty"`
}

// DiscordConfig holds Discord bot settings.
type DiscordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// SessionConfig holds conversation persistence settings.
// The encryption passphrase is read from HELPDESK_SESSION_KEY.
type SessionConfig struct {
	DataDir    string        `yaml:"data_dir"`
	TTL        time.Duration `yaml:"ttl"`
	Encryption bool          `yaml:"encryption"`
}

// AuditConfig holds audit logging settings.
type AuditConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Path      string          `yaml:"path"`
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig holds audit log retention policy settings.
type RetentionConfig struct {
	MaxAge  string `yaml:"max_age"`  // duration string, e.g. "2160h" (90 days)
	MaxSize string `yaml:"max_size"` // e.g. "100MB"
}

// ApprovalConfig overrides the built-in sensitivity policy per operation
// and names who may approve. An empty Approvers list lets anyone but the
// requester approve.
type ApprovalConfig struct {
	AlwaysApprove []string `yaml:"always_approve"`
	AlwaysDeny    []string `yaml:"always_deny"`
	Approvers     []string `yaml:"approvers"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	RateLimit      int      `yaml:"rate_limit"` // requests per minute per IP
	RateBurst      int      `yaml:"rate_burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"` // cron expression or duration string
	Action   string `yaml:"action"`
}

// defaultDataDir returns the persistent data directory under $HOME/.helpdesk.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".helpdesk")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		LLM: LLMConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Classifier: ClassifierConfig{
			Mode:               "llm",
			Timeout:            10 * time.Second,
			Summarize:          true,
			SummaryWindow:      5,
			SummaryTokenBudget: 1500,
		},
		Knowledge: KnowledgeConfig{
			Backend:            "keyword",
			DBPath:             filepath.Join(dataDir, "knowledge.db"),
			TopK:               3,
			Verify:             false,
			RetrievalWeight:    0.4,
			VerificationWeight: 0.6,
			MinSimilarity:      0.2,
			Timeout:            10 * time.Second,
			Embedding: EmbeddingConfig{
				Provider:   "hash",
				Dimensions: 768,
				CacheSize:  512,
			},
		},
		Confidence: ConfidenceConfig{
			High:   0.7,
			Medium: 0.4,
		},
		Workflow: WorkflowConfig{
			Selector: "llm",
			Timeout:  10 * time.Second,
		},
		Escalation: EscalationConfig{
			Project:      "IT",
			SlackChannel: "#it-support-urgent",
			Timeout:      10 * time.Second,
		},
		Jira: JiraConfig{
			Project:   "IT",
			IssueType: "Task",
			Labels:    []string{"ai-support", "it-support-genius"},
			RateLimit: 5,
			Burst:     5,
			Timeout:   10 * time.Second,
		},
		Notify: NotifyConfig{
			Slack: SlackConfig{Channel: "#it-support-urgent"},
		},
		Session: SessionConfig{
			DataDir: filepath.Join(dataDir, "sessions"),
			TTL:     24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    filepath.Join(dataDir, "audit.jsonl"),
			Retention: RetentionConfig{
				MaxAge:  "2160h",
				MaxSize: "100MB",
			},
		},
		HTTP: HTTPConfig{
			Addr:      ":8080",
			RateLimit: 100,
			RateBurst: 20,
		},
		Scheduler: SchedulerConfig{
			Enabled: true,
			Tasks: []ScheduledTaskConfig{
				{Name: "audit-retention", Schedule: "0 3 * * *", Action: "audit_retention"},
				{Name: "session-reap", Schedule: "1h", Action: "session_reap"},
			},
		},
	}
}

// Load reads the YAML config at path, applies env overrides and validates.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("HELPDESK_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnvOverrides reads HELPDESK_* variables (and the JIRA_* / GOOGLE_API_KEY
// variables the desk has always honoured) on top of cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HELPDESK_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("HELPDESK_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("HELPDESK_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("HELPDESK_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
	if v := os.Getenv("HELPDESK_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	for i := range cfg.LLM.Providers {
		p := &cfg.LLM.Providers[i]
		envKey := "HELPDESK_LLM_PROVIDER_" + strings.ToUpper(p.Name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			p.APIKey = v
		}
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" && len(cfg.LLM.Providers) == 0 {
		cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
			Name:   "gemini",
			Type:   "gemini",
			APIKey: v,
			Model:  "gemini-2.5-flash-lite",
		})
		if cfg.LLM.DefaultProvider == "" {
			cfg.LLM.DefaultProvider = "gemini"
		}
	}
	if v := os.Getenv("HELPDESK_CLASSIFIER_MODE"); v != "" {
		cfg.Classifier.Mode = v
	}
	if v := os.Getenv("HELPDESK_CLASSIFIER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Classifier.Timeout = d
		}
	}
	if v := os.Getenv("HELPDESK_KNOWLEDGE_BACKEND"); v != "" {
		cfg.Knowledge.Backend = v
	}
	if v := os.Getenv("HELPDESK_KNOWLEDGE_DB_PATH"); v != "" {
		cfg.Knowledge.DBPath = v
	}
	if v := os.Getenv("HELPDESK_KNOWLEDGE_VERIFY"); v != "" {
		cfg.Knowledge.Verify = v == "true"
	}
	if v := os.Getenv("HELPDESK_KNOWLEDGE_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Knowledge.TopK = n
		}
	}
	if v := os.Getenv("HELPDESK_EMBEDDING_PROVIDER"); v != "" {
		cfg.Knowledge.Embedding.Provider = v
	}
	if v := os.Getenv("HELPDESK_EMBEDDING_API_KEY"); v != "" {
		cfg.Knowledge.Embedding.APIKey = v
	}
	if v := os.Getenv("HELPDESK_WORKFLOW_SELECTOR"); v != "" {
		cfg.Workflow.Selector = v
	}
	if v := firstEnv("HELPDESK_JIRA_DOMAIN", "JIRA_DOMAIN"); v != "" {
		cfg.Jira.Domain = v
	}
	if v := firstEnv("HELPDESK_JIRA_EMAIL", "JIRA_EMAIL"); v != "" {
		cfg.Jira.Email = v
	}
	if v := firstEnv("HELPDESK_JIRA_API_TOKEN", "JIRA_API_TOKEN"); v != "" {
		cfg.Jira.APIToken = v
	}
	if v := os.Getenv("HELPDESK_JIRA_PROJECT"); v != "" {
		cfg.Jira.Project = v
	}
	if v := os.Getenv("HELPDESK_SLACK_TOKEN"); v != "" {
		cfg.Notify.Slack.Token = v
		cfg.Notify.Slack.Enabled = true
	}
	if v := os.Getenv("HELPDESK_SLACK_CHANNEL"); v != "" {
		cfg.Notify.Slack.Channel = v
	}
	if v := os.Getenv("HELPDESK_DISCORD_TOKEN"); v != "" {
		cfg.Notify.Discord.Token = v
		cfg.Notify.Discord.Enabled = true
	}
	if v := os.Getenv("HELPDESK_DISCORD_CHANNEL_ID"); v != "" {
		cfg.Notify.Discord.ChannelID = v
	}
	if v := os.Getenv("HELPDESK_SESSION_DATA_DIR"); v != "" {
		cfg.Session.DataDir = v
	}
	if v := os.Getenv("HELPDESK_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("HELPDESK_AUDIT_PATH"); v != "" {
		cfg.Audit.Path = v
	}
	if v := os.Getenv("HELPDESK_AUDIT_ENABLED"); v != "" {
		cfg.Audit.Enabled = v == "true"
	}
	if v := os.Getenv("HELPDESK_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("HELPDESK_HTTP_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTP.RateLimit = n
		}
	}
	if v := os.Getenv("HELPDESK_SCHEDULER_ENABLED"); v != "" {
		cfg.Scheduler.Enabled = v == "true"
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if strings.HasPrefix(key, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
			}
			cfg.LLM.Providers[i].APIKey = decrypted
		}
	}

	secrets := map[string]*string{
		"knowledge.embedding.api_key": &cfg.Knowledge.Embedding.APIKey,
		"jira.api_token":              &cfg.Jira.APIToken,
		"notify.slack.token":          &cfg.Notify.Slack.Token,
		"notify.discord.token":        &cfg.Notify.Discord.Token,
	}
	for name, fp := range secrets {
		if strings.HasPrefix(*fp, "enc:") {
			decrypted, err := DecryptValue(strings.TrimPrefix(*fp, "enc:"), passphrase)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*fp = decrypted
		}
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	// Argon2id, 64 MiB, 4 lanes.
	key := argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

func isDuration(s string) bool {
	d, err := time.ParseDuration(s)
	return err == nil && d > 0
}
