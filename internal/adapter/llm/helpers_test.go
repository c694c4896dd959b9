package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"helpdesk-ai/internal/domain"
)

// mockProvider is a scriptable domain.LLMProvider.
type mockProvider struct {
	name     string
	chatFunc func(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	return &domain.ChatResponse{}, nil
}

func (m *mockProvider) Name() string { return m.name }

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{429, domain.ErrRateLimit},
		{401, domain.ErrAuthInvalid},
		{403, domain.ErrAuthInvalid},
		{413, domain.ErrContextOverflow},
		{500, domain.ErrUpstream},
		{502, domain.ErrUpstream},
		{503, domain.ErrUpstream},
		{400, domain.ErrProviderError},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte(`{"error":"x"}`))
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: got %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestMapHTTPErrorIncludesBody(t *testing.T) {
	err := mapHTTPError(400, []byte("model not found"))
	if !strings.Contains(err.Error(), "model not found") {
		t.Errorf("error should include body: %v", err)
	}
}

func TestMapHTTPErrorTruncatesBody(t *testing.T) {
	err := mapHTTPError(500, []byte(strings.Repeat("a", 2000)))
	if len(err.Error()) > 700 {
		t.Errorf("error too long: %d", len(err.Error()))
	}
}
