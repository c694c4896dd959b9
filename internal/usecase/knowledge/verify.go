package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"helpdesk-ai/internal/domain"
)

// Verification is the outcome of checking an answer against its sources.
type Verification struct {
	Supported bool
	Score     float64
}

// Verifier decides whether an answer is supported only by the context.
type Verifier interface {
	Verify(ctx context.Context, answer, docs string) (Verification, error)
}

const verifyPrompt = `You are a fact checker. Decide whether the ANSWER is fully supported by the CONTEXT and nothing else.
Reply with exactly one line: SUPPORTED|<score> or UNSUPPORTED|<score>, where <score> is your confidence between 0 and 1.`

// LLMVerifier asks the model for a SUPPORTED|score verdict.
type LLMVerifier struct {
	provider domain.LLMProvider
}

// NewLLMVerifier creates a model-backed verifier.
func NewLLMVerifier(provider domain.LLMProvider) *LLMVerifier {
	return &LLMVerifier{provider: provider}
}

// Verify implements Verifier.
func (v *LLMVerifier) Verify(ctx context.Context, answer, docs string) (Verification, error) {
	req := domain.Prompt(verifyPrompt, fmt.Sprintf("CONTEXT:\n%s\n\nANSWER:\n%s", docs, answer))
	req.MaxTokens = 16
	resp, err := v.provider.Chat(ctx, req)
	if err != nil {
		return Verification{}, fmt.Errorf("verify: %w", err)
	}
	return ParseVerdict(resp.Message.Content)
}

// ParseVerdict reads "SUPPORTED|0.9" or "UNSUPPORTED|0.2". A missing score
// takes 1 for SUPPORTED and 0 otherwise; scores are clamped to [0,1].
func ParseVerdict(s string) (Verification, error) {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "`"))
	if line, _, ok := strings.Cut(s, "\n"); ok {
		s = strings.TrimSpace(line)
	}
	label, rest, hasScore := strings.Cut(s, "|")

	var out Verification
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "SUPPORTED":
		out = Verification{Supported: true, Score: 1}
	case "UNSUPPORTED":
		out = Verification{Supported: false, Score: 0}
	default:
		return Verification{}, fmt.Errorf("%w: verdict %q", domain.ErrLLMOutput, s)
	}
	if hasScore {
		f, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return Verification{}, fmt.Errorf("%w: verdict score %q", domain.ErrLLMOutput, rest)
		}
		out.Score = clamp(f)
	}
	return out, nil
}

// OverlapVerifier is the rule-based verifier: the share of the answer's
// content words (4+ letters) found in the context.
type OverlapVerifier struct {
	// Threshold is the minimum share for an answer to count as supported.
	Threshold float64
}

// Verify implements Verifier. It never fails.
func (v OverlapVerifier) Verify(_ context.Context, answer, docs string) (Verification, error) {
	threshold := v.Threshold
	if threshold <= 0 {
		threshold = 0.6
	}
	words := contentWords(answer)
	if len(words) == 0 {
		return Verification{Supported: false, Score: 0}, nil
	}
	have := make(map[string]struct{})
	for _, w := range contentWords(docs) {
		have[w] = struct{}{}
	}
	hits := 0
	for _, w := range words {
		if _, ok := have[w]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(words))
	return Verification{Supported: score >= threshold, Score: score}, nil
}

func contentWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 4 {
			out = append(out, f)
		}
	}
	return out
}

func clamp(f float64) float64 {
	return min(max(f, 0), 1)
}
