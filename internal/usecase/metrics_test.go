package usecase

import (
	"testing"
	"time"
)

func TestMetricsEmpty(t *testing.T) {
	s := NewMetrics().Snapshot()
	if s.TotalRequests != 0 || s.AutomationRate != 0 || s.AvgResponseTime != 0 {
		t.Errorf("empty snapshot = %+v", s)
	}
	if s.Satisfaction != -1 {
		t.Errorf("Satisfaction = %v, want -1 with no ratings", s.Satisfaction)
	}
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordTurn("Knowledge", false, 100*time.Millisecond)
	m.RecordTurn("Escalation", true, 300*time.Millisecond)
	m.RecordTurn("Knowledge", false, 200*time.Millisecond)
	m.RecordTurn("Workflow", false, 200*time.Millisecond)
	m.RecordFeedback(true)
	m.RecordFeedback(true)
	m.RecordFeedback(false)

	s := m.Snapshot()
	if s.TotalRequests != 4 || s.Escalated != 1 || s.Automated != 3 {
		t.Errorf("counts = %+v", s)
	}
	if s.AutomationRate != 0.75 {
		t.Errorf("AutomationRate = %v", s.AutomationRate)
	}
	if s.AvgResponseTime != 200*time.Millisecond {
		t.Errorf("AvgResponseTime = %v", s.AvgResponseTime)
	}
	want := []HandlerCount{{"Knowledge", 2}, {"Escalation", 1}, {"Workflow", 1}}
	if len(s.Handlers) != len(want) {
		t.Fatalf("Handlers = %+v", s.Handlers)
	}
	for i := range want {
		if s.Handlers[i] != want[i] {
			t.Errorf("Handlers[%d] = %+v, want %+v", i, s.Handlers[i], want[i])
		}
	}
	if s.Satisfaction < 0.66 || s.Satisfaction > 0.67 {
		t.Errorf("Satisfaction = %v", s.Satisfaction)
	}
}
