package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
)

func TestOpenAIProviderChat(t *testing.T) {
	var got openaiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth: %s", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(openaiResponse{
			ID:    "chatcmpl-1",
			Model: "gpt-4o-mini",
			Choices: []openaiChoice{{
				Message:      openaiMessage{Role: "assistant", Content: `{"intent":"WorkflowAgent"}`},
				FinishReason: "stop",
			}},
			Usage: openaiUsage{PromptTokens: 10, CompletionTokens: 8, TotalTokens: 18},
		})
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{
		Name: "test", BaseURL: server.URL, APIKey: "test-key", Model: "gpt-4o-mini",
	}, slog.Default())

	req := domain.Prompt("system prompt", "reset my password")
	req.JSONOutput = true
	resp, err := p.Chat(context.Background(), req)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != `{"intent":"WorkflowAgent"}` {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if got.Model != "gpt-4o-mini" {
		t.Errorf("default model not applied: %q", got.Model)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" {
		t.Errorf("Messages = %+v", got.Messages)
	}
}

func TestOpenAIProviderHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, slog.Default())
	_, err := p.Chat(context.Background(), domain.Prompt("", "hi"))
	if !errors.Is(err, domain.ErrRateLimit) {
		t.Errorf("err = %v, want ErrRateLimit", err)
	}
}

func TestOpenAIProviderNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"x","choices":[]}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, slog.Default())
	_, err := p.Chat(context.Background(), domain.Prompt("", "hi"))
	if !errors.Is(err, domain.ErrLLMOutput) {
		t.Errorf("err = %v, want ErrLLMOutput", err)
	}
}

func TestOpenAIProviderInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, slog.Default())
	if _, err := p.Chat(context.Background(), domain.Prompt("", "hi")); err == nil {
		t.Fatal("expected unmarshal error")
	}
}

func TestOpenAIProviderContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	p := NewOpenAIProvider(config.ProviderConfig{Name: "t", BaseURL: server.URL}, slog.Default())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Chat(ctx, domain.Prompt("", "hi")); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestOpenAIRequestNoMaxTokensNoTemp(t *testing.T) {
	r := toOpenAIRequest(domain.Prompt("", "hi"))
	if r.MaxTokens != 0 || r.Temperature != nil || r.ResponseFormat != nil {
		t.Errorf("unexpected optional fields: %+v", r)
	}
}
