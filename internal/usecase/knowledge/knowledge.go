// Package knowledge answers policy and how-to questions from retrieved
// documentation only.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/security"
)

// Name is the handler name recorded in routing paths.
const Name = "Knowledge"

const auditAgent = "KnowledgeAgent"

// Confidence levels for the degraded paths.
const (
	SnippetConfidence = 0.6
	EmptyConfidence   = 0.25
	// UnverifiedCap bounds the confidence of an answer that failed verification.
	UnverifiedCap = 0.5
	// unverifiedScore is used when no verifier is configured.
	unverifiedScore = 0.85
)

const (
	contactSupport = "I don't have specific information about this in our knowledge base. " +
		"Let me connect you with our IT team.\n\n📞 IT Support: (555) 123-4567 / 📧 support@company.com"
	disclaimer = "_Note: parts of this answer could not be verified against our documentation. " +
		"Please confirm with IT Support before acting on it._"
)

const composePrompt = `You are an IT support assistant. Answer the user's question based ONLY on the following context. ` +
	`If the answer is not in the context, say you don't know and suggest escalating.`

// Result is the outcome of Answer.
type Result struct {
	Response   string
	Confidence float64
	DocsFound  int
	Verified   *bool
}

// Weights blends retrieval coverage with verification confidence.
type Weights struct {
	Retrieval    float64
	Verification float64
}

// DefaultWeights are 0.4 retrieval / 0.6 verification.
var DefaultWeights = Weights{Retrieval: 0.4, Verification: 0.6}

// Config tunes the handler.
type Config struct {
	TopK    int
	Weights Weights
	Bands   Bands
	Timeout time.Duration
}

// Handler is the Knowledge handler.
type Handler struct {
	store    domain.KnowledgeStore
	provider domain.LLMProvider
	verifier Verifier
	cfg      Config
	logger   *slog.Logger
}

// New creates a Knowledge handler. provider and verifier may be nil.
func New(store domain.KnowledgeStore, provider domain.LLMProvider, verifier Verifier, cfg Config, logger *slog.Logger) *Handler {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights
	}
	if cfg.Bands == (Bands{}) {
		cfg.Bands = DefaultBands
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Handler{store: store, provider: provider, verifier: verifier, cfg: cfg, logger: logger}
}

// Answer composes a reply to query from the knowledge store.
func (h *Handler) Answer(ctx context.Context, query, summary string) Result {
	query = security.RedactPII(query)

	docs := h.search(ctx, query)
	if len(docs) == 0 {
		return Result{Response: contactSupport, Confidence: EmptyConfidence}
	}

	sources := joinDocs(docs)
	coverage := min(float64(len(docs))/3, 1)

	answer, err := h.compose(ctx, query, summary, sources)
	if err != nil {
		if h.provider != nil {
			h.logger.Warn("knowledge compose failed, returning best snippet", "error", err)
		}
		return Result{
			Response:   "Based on our IT documentation:\n\n" + docs[0].Content,
			Confidence: SnippetConfidence,
			DocsFound:  len(docs),
		}
	}

	res := Result{Response: answer, DocsFound: len(docs)}
	if h.verifier == nil {
		res.Confidence = h.blend(coverage, unverifiedScore)
		return res
	}

	v, err := h.verify(ctx, answer, sources)
	if err != nil {
		h.logger.Warn("knowledge verification failed", "error", err)
		v = Verification{Supported: false, Score: UnverifiedCap}
	}
	res.Verified = &v.Supported
	res.Confidence = h.blend(coverage, v.Score)
	if !v.Supported {
		res.Response += "\n\n" + disclaimer
		res.Confidence = min(res.Confidence, UnverifiedCap)
	}
	return res
}

// Handle runs Answer for the newest message in state.
func (h *Handler) Handle(ctx context.Context, state domain.ConversationState, _ domain.UserContext) domain.HandlerResult {
	query := state.LastMessage()
	res := h.Answer(ctx, query, state.ConversationSummary)

	audit := domain.NewAuditRecord(auditAgent, "knowledge_query", state.UserID, map[string]any{
		"query":      prefix(security.RedactPII(query), 50),
		"docs_found": res.DocsFound,
		"confidence": res.Confidence,
	})
	return domain.HandlerResult{
		Agent:      Name,
		Response:   h.cfg.Bands.Annotate(res.Response, res.Confidence),
		Confidence: res.Confidence,
		Audit:      []domain.AuditRecord{audit},
	}
}

func (h *Handler) search(ctx context.Context, query string) []domain.Document {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	docs, err := h.store.Search(ctx, query, h.cfg.TopK)
	if err != nil {
		h.logger.Warn("knowledge search failed", "error", err)
		return nil
	}
	if len(docs) > h.cfg.TopK {
		docs = docs[:h.cfg.TopK]
	}
	return docs
}

func (h *Handler) compose(ctx context.Context, query, summary, sources string) (string, error) {
	if h.provider == nil {
		return "", domain.ErrProviderNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	var user strings.Builder
	fmt.Fprintf(&user, "Context:\n%s\n\n", sources)
	if summary != "" {
		fmt.Fprintf(&user, "Conversation so far: %s\n\n", summary)
	}
	fmt.Fprintf(&user, "Question: %s", query)

	resp, err := h.provider.Chat(ctx, domain.Prompt(composePrompt, user.String()))
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Message.Content)
	if out == "" {
		return "", fmt.Errorf("%w: empty answer", domain.ErrLLMOutput)
	}
	return out, nil
}

func (h *Handler) verify(ctx context.Context, answer, sources string) (Verification, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()
	return h.verifier.Verify(ctx, answer, sources)
}

func (h *Handler) blend(coverage, verification float64) float64 {
	w := h.cfg.Weights
	return clamp(w.Retrieval*coverage + w.Verification*verification)
}

func joinDocs(docs []domain.Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.Content
	}
	return strings.Join(parts, "\n\n")
}

func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
