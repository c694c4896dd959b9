package domain

import "testing"

func TestParseIntent(t *testing.T) {
	tests := []struct {
		in   string
		want Intent
	}{
		{"KnowledgeAgent", IntentKnowledge},
		{"workflowagent", IntentWorkflow},
		{" EscalationAgent ", IntentEscalation},
		{"LogAnalysisAgent", IntentLogAnalyzer},
		{"LogAnalyzer", IntentLogAnalyzer},
		{"BillingAgent", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ParseIntent(tt.in); got != tt.want {
			t.Errorf("ParseIntent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSentimentAndUrgencyDefaults(t *testing.T) {
	if got := ParseSentiment("ecstatic"); got != SentimentNeutral {
		t.Errorf("ParseSentiment default = %q", got)
	}
	if got := ParseSentiment("FRUSTRATED"); got != SentimentFrustrated {
		t.Errorf("ParseSentiment = %q", got)
	}
	if got := ParseUrgency("whenever"); got != UrgencyMedium {
		t.Errorf("ParseUrgency default = %q", got)
	}
	if got := ParseUrgency("critical"); got != UrgencyCritical {
		t.Errorf("ParseUrgency = %q", got)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	c := 0.5
	orig := ConversationState{
		Messages:    make([]Message, 1, 8),
		RoutingPath: make([]string, 0, 8),
		AuditLog:    make([]AuditRecord, 0, 8),
		Entities:    map[string]string{"device": "laptop"},
		Confidence:  &c,
	}
	cp := orig.Clone()
	cp.Messages = append(cp.Messages, Message{Role: RoleAssistant, Content: "x"})
	cp.RoutingPath = append(cp.RoutingPath, AgentIntake)
	cp.Entities["device"] = "phone"
	*cp.Confidence = 0.9

	if len(orig.Messages) != 1 {
		t.Errorf("original messages changed: %d", len(orig.Messages))
	}
	if orig.Messages[:cap(orig.Messages)][1].Content == "x" {
		t.Error("clone shares the messages backing array")
	}
	if orig.Entities["device"] != "laptop" {
		t.Error("clone shares the entities map")
	}
	if *orig.Confidence != 0.5 {
		t.Error("clone shares the confidence pointer")
	}
}

func TestLastMessage(t *testing.T) {
	var s ConversationState
	if s.LastMessage() != "" {
		t.Error("empty state should have empty last message")
	}
	s.Messages = []Message{{Role: RoleUser, Content: "a"}, {Role: RoleUser, Content: "b"}}
	if s.LastMessage() != "b" {
		t.Errorf("LastMessage = %q", s.LastMessage())
	}
	if s.ConfidenceValue() != 0 {
		t.Error("nil confidence should read as 0")
	}
}
