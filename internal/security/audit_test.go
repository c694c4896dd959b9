package security

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"helpdesk-ai/internal/domain"
)

func newTestAuditLogger(t *testing.T) (*FileAuditLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	return l, path
}

func TestFileAuditLogger_WriteAndRead(t *testing.T) {
	l, path := newTestAuditLogger(t)

	err := l.Log(context.Background(), domain.AuditEvent{
		Type:   domain.AuditApprovalResolve,
		Actor:  "user_dev",
		Action: "approval_granted",
		Detail: map[string]string{"operation": "grant_temp_admin"},
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	l.Close()

	events, err := ReadRecent(path, 10)
	if err != nil {
		t.Fatalf("ReadRecent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.Type != domain.AuditApprovalResolve {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.Detail["operation"] != "grant_temp_admin" {
		t.Errorf("Detail = %v", ev.Detail)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be filled in")
	}
}

func TestFileAuditLogger_RedactsDetail(t *testing.T) {
	l, path := newTestAuditLogger(t)
	l.Log(context.Background(), domain.AuditEvent{
		Type:   domain.AuditHandlerAction,
		Detail: map[string]string{"query": "mail jane@corp.com or call 555-123-4567"},
	})
	l.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if strings.Contains(s, "jane@corp.com") || strings.Contains(s, "555-123-4567") {
		t.Errorf("PII leaked into audit log: %s", s)
	}
	if !strings.Contains(s, EmailRedacted) {
		t.Errorf("missing email marker: %s", s)
	}
}

func TestFileAuditLogger_LogRecords(t *testing.T) {
	l, path := newTestAuditLogger(t)
	records := []domain.AuditRecord{
		domain.NewAuditRecord("Knowledge", "knowledge_query", "user123", map[string]any{"docs_found": 2, "confidence": 0.68}),
		domain.NewAuditRecord("Escalation", "escalated", "user123", map[string]any{"ticket": "IT-123", "vip": false}),
	}
	if err := l.LogRecords(context.Background(), "sess-1", records); err != nil {
		t.Fatalf("LogRecords: %v", err)
	}
	l.Close()

	events, err := ReadRecent(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Resource != "sess-1" || events[0].Action != "knowledge_query" {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].Detail["docs_found"] != "2" {
		t.Errorf("docs_found = %q", events[0].Detail["docs_found"])
	}
	if events[1].Detail["ticket"] != "IT-123" || events[1].Detail["vip"] != "false" {
		t.Errorf("second detail = %v", events[1].Detail)
	}
}

func TestFileAuditLogger_ConcurrentWrites(t *testing.T) {
	l, path := newTestAuditLogger(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFeedback})
		}()
	}
	wg.Wait()
	l.Close()

	events, err := ReadRecent(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 20 {
		t.Errorf("got %d events, want 20", len(events))
	}
}

func TestFileAuditLogger_WriteAfterClose(t *testing.T) {
	l, _ := newTestAuditLogger(t)
	l.Close()
	err := l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFeedback})
	if err == nil {
		t.Fatal("expected error after close")
	}
	if domain.ErrorCodeOf(err) != domain.CodeAuditWrite {
		t.Errorf("code = %s", domain.ErrorCodeOf(err))
	}
}

func TestFileAuditLogger_FilePermissions(t *testing.T) {
	l, path := newTestAuditLogger(t)
	defer l.Close()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestFileAuditLogger_SpanEvent(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	l, _ := newTestAuditLogger(t)
	defer l.Close()

	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	l.Log(ctx, domain.AuditEvent{Type: domain.AuditHandlerAction, Actor: "user123"})
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans", len(spans))
	}
	if len(spans[0].Events) != 1 || spans[0].Events[0].Name != "audit.handler_action" {
		t.Errorf("events = %+v", spans[0].Events)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxAge(t *testing.T) {
	l, path := newTestAuditLogger(t)
	defer l.Close()

	old := time.Now().Add(-48 * time.Hour)
	l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFeedback, Timestamp: old})
	l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFeedback, Timestamp: old})
	l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditSessionCreate})

	l.SetRetention(RetentionPolicy{MaxAge: 24 * time.Hour})
	removed, err := l.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	// Logger keeps appending after the rewrite.
	if err := l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditSessionDelete}); err != nil {
		t.Fatalf("Log after retention: %v", err)
	}
	events, _ := ReadRecent(path, 0)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].Type != domain.AuditSessionDelete {
		t.Errorf("last type = %q", events[1].Type)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxSize(t *testing.T) {
	l, path := newTestAuditLogger(t)
	defer l.Close()

	for i := 0; i < 10; i++ {
		l.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFeedback, Detail: map[string]string{"n": strings.Repeat("x", 50)}})
	}
	l.SetRetention(RetentionPolicy{MaxSize: 400})
	removed, err := l.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed == 0 {
		t.Error("expected entries to be trimmed")
	}
	info, _ := os.Stat(path)
	if info.Size() > 400 {
		t.Errorf("size = %d, want <= 400", info.Size())
	}
}

func TestFileAuditLogger_EnforceRetention_NoPolicy(t *testing.T) {
	l, _ := newTestAuditLogger(t)
	defer l.Close()
	removed, err := l.EnforceRetention(context.Background())
	if err != nil || removed != 0 {
		t.Errorf("removed=%d err=%v", removed, err)
	}
}

func TestParseRetention(t *testing.T) {
	p, err := ParseRetention("2160h", "100MB")
	if err != nil {
		t.Fatal(err)
	}
	if p.MaxAge != 2160*time.Hour || p.MaxSize != 100<<20 {
		t.Errorf("policy = %+v", p)
	}
	if _, err := ParseRetention("ninety days", ""); err == nil {
		t.Error("expected duration error")
	}
}

func TestParseRetentionMaxSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512", 512},
		{"10B", 10},
		{"4kb", 4096},
		{"100MB", 100 << 20},
		{"1GB", 1 << 30},
	}
	for _, tt := range tests {
		got, err := ParseRetentionMaxSize(tt.in)
		if err != nil {
			t.Errorf("%q: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q = %d, want %d", tt.in, got, tt.want)
		}
	}
	if _, err := ParseRetentionMaxSize("lots"); err == nil {
		t.Error("expected error")
	}
}

func TestFlattenDetails(t *testing.T) {
	out := flattenDetails(map[string]any{"threats": []string{"phishing"}, "confidence": 0.9})
	var threats []string
	if err := json.Unmarshal([]byte(out["threats"]), &threats); err != nil || threats[0] != "phishing" {
		t.Errorf("threats = %q", out["threats"])
	}
	if out["confidence"] != "0.9" {
		t.Errorf("confidence = %q", out["confidence"])
	}
}
