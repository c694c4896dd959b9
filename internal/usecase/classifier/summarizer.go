package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"helpdesk-ai/internal/domain"
)

const (
	defaultSummaryWindow = 5
	defaultSummaryBudget = 1024
	fallbackSummaryRunes = 100
	summaryEncoding      = "cl100k_base"
)

const summarizePrompt = "Summarize the following IT support conversation in 1-2 sentences. " +
	"Keep user ids, device names, error codes and the outcome so far."

// TokenCounter returns the token count of s.
type TokenCounter func(s string) int

// EstimateTokens approximates four runes per token.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// SummarizerOption configures an LLMSummarizer.
type SummarizerOption func(*LLMSummarizer)

// WithTokenCounter replaces the tiktoken counter.
func WithTokenCounter(fn TokenCounter) SummarizerOption {
	return func(s *LLMSummarizer) { s.count = fn }
}

// WithWindow sets how many trailing messages are summarized.
func WithWindow(n int) SummarizerOption {
	return func(s *LLMSummarizer) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithTokenBudget caps the transcript sent to the model.
func WithTokenBudget(n int) SummarizerOption {
	return func(s *LLMSummarizer) {
		if n > 0 {
			s.budget = n
		}
	}
}

// WithSummaryTimeout bounds each summarization call.
func WithSummaryTimeout(d time.Duration) SummarizerOption {
	return func(s *LLMSummarizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// LLMSummarizer condenses the recent history with a language model.
type LLMSummarizer struct {
	provider domain.LLMProvider
	logger   *slog.Logger
	window   int
	budget   int
	timeout  time.Duration

	once  sync.Once
	count TokenCounter
}

// NewSummarizer creates a summarizer. provider may be nil, in which case
// Summarize always takes the fallback path.
func NewSummarizer(provider domain.LLMProvider, logger *slog.Logger, opts ...SummarizerOption) *LLMSummarizer {
	s := &LLMSummarizer{
		provider: provider,
		logger:   logger,
		window:   defaultSummaryWindow,
		budget:   defaultSummaryBudget,
		timeout:  10 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *LLMSummarizer) tokens(text string) int {
	s.once.Do(func() {
		if s.count != nil {
			return
		}
		enc, err := tiktoken.GetEncoding(summaryEncoding)
		if err != nil {
			s.logger.Warn("tiktoken encoding unavailable, estimating tokens", "encoding", summaryEncoding, "error", err)
			s.count = EstimateTokens
			return
		}
		s.count = func(t string) int { return len(enc.Encode(t, nil, nil)) }
	})
	return s.count(text)
}

// Summarize implements domain.Summarizer. It never returns an error; on
// failure the newest message's first 100 runes stand in for a summary.
func (s *LLMSummarizer) Summarize(ctx context.Context, history []domain.Message) (string, error) {
	if len(history) == 0 {
		return "", nil
	}
	if s.provider == nil {
		return fallbackSummary(history), nil
	}

	transcript := s.transcript(history)
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := domain.Prompt(summarizePrompt, transcript)
	req.MaxTokens = 120
	resp, err := s.provider.Chat(cctx, req)
	if err != nil {
		s.logger.Warn("summarization failed", "error", err)
		return fallbackSummary(history), nil
	}
	out := strings.TrimSpace(resp.Message.Content)
	if out == "" {
		return fallbackSummary(history), nil
	}
	return out, nil
}

// transcript renders the trailing window, dropping the oldest lines until
// the text fits the token budget.
func (s *LLMSummarizer) transcript(history []domain.Message) string {
	start := max(0, len(history)-s.window)
	lines := make([]string, 0, len(history)-start)
	for _, m := range history[start:] {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	for len(lines) > 1 && s.tokens(strings.Join(lines, "\n")) > s.budget {
		lines = lines[1:]
	}
	text := strings.Join(lines, "\n")
	if s.tokens(text) > s.budget {
		text = truncateRunes(text, s.budget*4)
	}
	return text
}

func fallbackSummary(history []domain.Message) string {
	return truncateRunes(history[len(history)-1].Content, fallbackSummaryRunes)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

var _ domain.Summarizer = (*LLMSummarizer)(nil)
