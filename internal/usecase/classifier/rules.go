package classifier

import (
	"context"
	"strings"

	"helpdesk-ai/internal/domain"
)

var (
	frustrationWords = []string{"angry", "furious", "frustrated", "hate", "worst"}
	logWords         = []string{"log", "error", "security", "suspicious", "hack", "breach"}
	workflowWords    = []string{"reset", "unlock", "password", "mfa", "vpn", "reboot", "order", "install"}
	urgentWords      = []string{"urgent", "critical", "emergency", "now", "asap"}
)

// Rules is the deterministic keyword classifier. It never fails.
type Rules struct{}

// NewRules returns the keyword classifier.
func NewRules() Rules { return Rules{} }

// Classify implements domain.Classifier. Matching is a case-insensitive
// substring test, checked in order: frustration, logs, workflow.
func (Rules) Classify(_ context.Context, message, _ string) (domain.Classification, error) {
	m := strings.ToLower(message)
	c := domain.DefaultClassification()

	switch {
	case containsAny(m, frustrationWords):
		c.Intent = domain.IntentEscalation
		c.Sentiment = domain.SentimentFrustrated
	case containsAny(m, logWords):
		c.Intent = domain.IntentLogAnalyzer
	case containsAny(m, workflowWords):
		c.Intent = domain.IntentWorkflow
	}
	if containsAny(m, urgentWords) {
		c.Urgency = domain.UrgencyHigh
	}
	return c, nil
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

var _ domain.Classifier = Rules{}
