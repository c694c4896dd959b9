package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateLLM(cfg, ve)
	validateClassifier(cfg, ve)
	validateKnowledge(cfg, ve)
	validateConfidence(cfg, ve)
	validateWorkflow(cfg, ve)
	validateJira(cfg, ve)
	validateNotify(cfg, ve)
	validateSession(cfg, ve)
	validateAudit(cfg, ve)
	validateApproval(cfg, ve)
	validateHTTP(cfg, ve)
	validateScheduler(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	if f := cfg.Logger.Format; f != "json" && f != "text" {
		ve.Add("logger.format %q is invalid (want: json, text)", f)
	}
}

var validProviderTypes = map[string]bool{
	"openai":  true,
	"gemini":  true,
	"bedrock": true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if len(cfg.LLM.Providers) == 0 {
		if cfg.LLM.DefaultProvider != "" {
			ve.Add("llm.default_provider %q set but no providers are configured", cfg.LLM.DefaultProvider)
		}
		return
	}
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty when providers are configured")
	}

	seen := make(map[string]bool)
	foundDefault := false
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, gemini, bedrock)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "bedrock" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via HELPDESK_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, strings.ToUpper(p.Name))
		}
		if p.Name == cfg.LLM.DefaultProvider {
			foundDefault = true
		}
	}

	if !foundDefault && cfg.LLM.DefaultProvider != "" {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled && cb.MaxFailures == 0 {
		ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
	}
}

func validateClassifier(cfg *Config, ve *ValidationError) {
	if m := cfg.Classifier.Mode; m != "llm" && m != "rules" {
		ve.Add("classifier.mode %q is invalid (want: llm, rules)", m)
	}
	if cfg.Classifier.Timeout <= 0 {
		ve.Add("classifier.timeout must be > 0")
	}
	if cfg.Classifier.SummaryWindow < 0 || cfg.Classifier.SummaryWindow > 20 {
		ve.Add("classifier.summary_window must be between 0 and 20")
	}
}

func validateKnowledge(cfg *Config, ve *ValidationError) {
	k := cfg.Knowledge
	switch k.Backend {
	case "keyword":
	case "sqlite":
		if k.DBPath == "" {
			ve.Add("knowledge.db_path is required for the sqlite backend")
		}
		if p := k.Embedding.Provider; p != "hash" && p != "openai" && p != "gemini" {
			ve.Add("knowledge.embedding.provider %q is invalid (want: hash, openai, gemini)", p)
		}
		if k.Embedding.Provider != "hash" && k.Embedding.APIKey == "" {
			ve.Add("knowledge.embedding.api_key is required for the %s embedding provider", k.Embedding.Provider)
		}
	default:
		ve.Add("knowledge.backend %q is invalid (want: keyword, sqlite)", k.Backend)
	}
	if k.TopK <= 0 {
		ve.Add("knowledge.top_k must be > 0")
	}
	if k.RetrievalWeight < 0 || k.VerificationWeight < 0 {
		ve.Add("knowledge weights must be >= 0")
	}
	if sum := k.RetrievalWeight + k.VerificationWeight; sum < 0.999 || sum > 1.001 {
		ve.Add("knowledge.retrieval_weight + knowledge.verification_weight must equal 1 (got %.3f)", sum)
	}
	if k.MinSimilarity < 0 || k.MinSimilarity >= 1 {
		ve.Add("knowledge.min_similarity must be in [0, 1)")
	}
}

func validateConfidence(cfg *Config, ve *ValidationError) {
	c := cfg.Confidence
	if c.Medium < 0 || c.High > 1 || c.Medium >= c.High {
		ve.Add("confidence bands must satisfy 0 <= medium < high <= 1 (got medium=%.2f high=%.2f)", c.Medium, c.High)
	}
}

func validateWorkflow(cfg *Config, ve *ValidationError) {
	if s := cfg.Workflow.Selector; s != "llm" && s != "keyword" {
		ve.Add("workflow.selector %q is invalid (want: llm, keyword)", s)
	}
	if cfg.Workflow.Timeout <= 0 {
		ve.Add("workflow.timeout must be > 0")
	}
}

func validateJira(cfg *Config, ve *ValidationError) {
	if cfg.Jira.Project == "" {
		ve.Add("jira.project must not be empty")
	}
	if cfg.Jira.RateLimit <= 0 {
		ve.Add("jira.rate_limit must be > 0")
	}
	if cfg.Jira.Domain != "" && strings.Contains(cfg.Jira.Domain, "/") {
		ve.Add("jira.domain %q must be a bare host name (e.g. acme.atlassian.net)", cfg.Jira.Domain)
	}
}

func validateNotify(cfg *Config, ve *ValidationError) {
	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.Token == "" {
		ve.Add("notify.slack.token is required when slack is enabled")
	}
	if cfg.Notify.Discord.Enabled {
		if cfg.Notify.Discord.Token == "" {
			ve.Add("notify.discord.token is required when discord is enabled")
		}
		if cfg.Notify.Discord.ChannelID == "" {
			ve.Add("notify.discord.channel_id is required when discord is enabled")
		}
	}
}

func validateSession(cfg *Config, ve *ValidationError) {
	if cfg.Session.DataDir == "" {
		ve.Add("session.data_dir must not be empty")
	}
	if cfg.Session.TTL <= 0 {
		ve.Add("session.ttl must be > 0")
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		ve.Add("audit.path is required when audit is enabled")
	}
}

func validateApproval(cfg *Config, ve *ValidationError) {
	deny := make(map[string]bool, len(cfg.Approval.AlwaysDeny))
	for _, op := range cfg.Approval.AlwaysDeny {
		deny[op] = true
	}
	for _, op := range cfg.Approval.AlwaysApprove {
		if deny[op] {
			ve.Add("approval: operation %q is in both always_approve and always_deny", op)
		}
	}
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.Addr == "" {
		ve.Add("http.addr must not be empty")
	}
	if cfg.HTTP.RateLimit <= 0 || cfg.HTTP.RateBurst <= 0 {
		ve.Add("http.rate_limit and http.rate_burst must be > 0")
	}
}

var validScheduledActions = map[string]bool{
	"audit_retention": true,
	"session_reap":    true,
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		} else if _, err := parser.Parse(t.Schedule); err != nil && !isDuration(t.Schedule) {
			ve.Add("scheduler.tasks[%d].schedule %q is neither a cron expression nor a duration", i, t.Schedule)
		}
		if !validScheduledActions[t.Action] {
			ve.Add("scheduler.tasks[%d].action %q is invalid (want: audit_retention, session_reap)", i, t.Action)
		}
	}
}
