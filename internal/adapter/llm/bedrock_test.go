//go:build bedrock

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"helpdesk-ai/internal/domain"
)

type mockBedrockClient struct {
	converseFunc func(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

func (m *mockBedrockClient) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	if m.converseFunc != nil {
		return m.converseFunc(ctx, params, optFns...)
	}
	return nil, fmt.Errorf("not implemented")
}

func TestBedrockChat(t *testing.T) {
	var received *bedrockruntime.ConverseInput
	mock := &mockBedrockClient{
		converseFunc: func(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
			received = params
			return &bedrockruntime.ConverseOutput{
				Output: &types.ConverseOutputMemberMessage{
					Value: types.Message{
						Role:    types.ConversationRoleAssistant,
						Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "Workflow"}},
					},
				},
				Usage: &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5)},
			}, nil
		},
	}

	p := newBedrockProviderWithClient("bedrock-test", "anthropic.claude-3-haiku", mock, slog.Default())
	resp, err := p.Chat(context.Background(), domain.Prompt("You are an IT triage system.", "reset my vpn"))
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "Workflow" {
		t.Errorf("Content = %q", resp.Message.Content)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}
	if aws.ToString(received.ModelId) != "anthropic.claude-3-haiku" {
		t.Errorf("ModelId = %q", aws.ToString(received.ModelId))
	}
	if len(received.System) != 1 || len(received.Messages) != 1 {
		t.Errorf("system=%d messages=%d", len(received.System), len(received.Messages))
	}
}

type mockAPIError struct {
	code    string
	message string
}

func (e *mockAPIError) Error() string                 { return e.message }
func (e *mockAPIError) ErrorCode() string             { return e.code }
func (e *mockAPIError) ErrorMessage() string          { return e.message }
func (e *mockAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultServer }

func TestBedrockErrorMapping(t *testing.T) {
	tests := []struct {
		code, msg string
		want      error
	}{
		{"ThrottlingException", "rate limited", domain.ErrRateLimit},
		{"AccessDeniedException", "no access", domain.ErrAuthInvalid},
		{"ValidationException", "input is too long", domain.ErrContextOverflow},
		{"InternalServerException", "boom", domain.ErrUpstream},
		{"SomethingElse", "odd", domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			mock := &mockBedrockClient{
				converseFunc: func(context.Context, *bedrockruntime.ConverseInput, ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
					return nil, &mockAPIError{code: tt.code, message: tt.msg}
				},
			}
			p := newBedrockProviderWithClient("test", "model", mock, slog.Default())
			_, err := p.Chat(context.Background(), domain.Prompt("", "hi"))
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBedrockJSONOutputAddsInstruction(t *testing.T) {
	req := domain.Prompt("classify", "hi")
	req.JSONOutput = true
	in := toBedrockConverseInput(req)
	if len(in.System) != 2 {
		t.Errorf("System len = %d, want 2", len(in.System))
	}
	if aws.ToInt32(in.InferenceConfig.MaxTokens) != 1024 {
		t.Errorf("MaxTokens = %d", aws.ToInt32(in.InferenceConfig.MaxTokens))
	}
}
