package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/usecase/llmjson"
)

const classifyPrompt = `You are an AI Intake Specialist for IT Support. Analyze the user's message.

1. Classify intent:
   - WorkflowAgent: actionable technical tasks (VPN, hardware, software, identity, network).
   - LogAnalysisAgent: logs, errors, crashes, security alerts (ransomware, phishing).
   - KnowledgeAgent: policy questions, "how to", general info.
   - EscalationAgent: human request, high frustration, complex unknown issues.
2. Sentiment: Positive, Neutral, Negative, or Frustrated.
3. Urgency: Low, Medium, High, or Critical.
4. Entities: user_id, device, software, error codes, location and similar, as string values.

Reply with a single JSON object:
{"intent": "...", "sentiment": "...", "urgency": "...", "entities": {"key": "value"}}`

var classificationSchema = llmjson.MustCompile(`{
	"type": "object",
	"required": ["intent"],
	"properties": {
		"intent": {
			"type": "string",
			"enum": ["WorkflowAgent", "LogAnalysisAgent", "KnowledgeAgent", "EscalationAgent",
			         "Workflow", "LogAnalyzer", "Knowledge", "Escalation"]
		},
		"sentiment": {"type": "string"},
		"urgency": {"type": "string"},
		"entities": {"type": "object"}
	}
}`)

type llmReply struct {
	Intent    string         `json:"intent"`
	Sentiment string         `json:"sentiment"`
	Urgency   string         `json:"urgency"`
	Entities  map[string]any `json:"entities"`
}

// LLM classifies with a language model and a validated JSON reply.
type LLM struct {
	provider domain.LLMProvider
	logger   *slog.Logger
}

// NewLLM creates a model-backed classifier.
func NewLLM(provider domain.LLMProvider, logger *slog.Logger) *LLM {
	return &LLM{provider: provider, logger: logger}
}

// Classify implements domain.Classifier.
func (c *LLM) Classify(ctx context.Context, message, summary string) (domain.Classification, error) {
	user := "User Message: " + message
	if summary != "" {
		user = "Conversation so far: " + summary + "\n\n" + user
	}
	req := domain.Prompt(classifyPrompt, user)
	req.JSONOutput = true

	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("classify: %w", err)
	}

	var r llmReply
	if err := llmjson.Decode(resp.Message.Content, classificationSchema, &r); err != nil {
		return domain.Classification{}, fmt.Errorf("classify: %w", err)
	}

	out := domain.Classification{
		Intent:    domain.ParseIntent(r.Intent),
		Sentiment: domain.ParseSentiment(r.Sentiment),
		Urgency:   domain.ParseUrgency(r.Urgency),
		Entities:  make(map[string]string, len(r.Entities)),
	}
	for k, v := range r.Entities {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			out.Entities[k] = s
		}
	}
	c.logger.Debug("llm classification", "intent", out.Intent, "sentiment", out.Sentiment, "urgency", out.Urgency)
	return out, nil
}

var _ domain.Classifier = (*LLM)(nil)
