package knowledge

import (
	"context"
	"strings"

	"helpdesk-ai/internal/domain"
)

// DefaultTopK is the number of snippets retrieved per query.
const DefaultTopK = 3

// KeywordStore searches the built-in catalog by keyword. It needs no
// external services and is the default knowledge store.
type KeywordStore struct {
	categories []Category
}

// NewKeywordStore creates a store over the built-in catalog.
func NewKeywordStore() *KeywordStore {
	return &KeywordStore{categories: Catalog()}
}

// NewKeywordStoreWith creates a store over custom categories.
func NewKeywordStoreWith(categories []Category) *KeywordStore {
	return &KeywordStore{categories: categories}
}

// Search implements domain.KnowledgeStore.
//
// A category whose name appears in the query contributes all its topics.
// When no category matches, each topic is checked against the query by
// topic-name words and by the leading query words.
func (s *KeywordStore) Search(_ context.Context, query string, k int) ([]domain.Document, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	q := strings.ToLower(query)

	var out []domain.Document
	for _, c := range s.categories {
		if !strings.Contains(q, strings.ReplaceAll(c.Name, "_", " ")) && !strings.Contains(q, c.Name) {
			continue
		}
		for _, t := range c.Topics {
			out = append(out, toDocument(c, t, 1))
		}
	}

	if len(out) == 0 {
		lead := leadingWords(q, 3)
		for _, c := range s.categories {
			for _, t := range c.Topics {
				if topicMatches(q, t, lead) {
					out = append(out, toDocument(c, t, 0.5))
				}
			}
		}
	}

	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func topicMatches(q string, t Topic, lead []string) bool {
	for _, w := range strings.Split(t.Name, "_") {
		if len(w) >= 3 && strings.Contains(q, w) {
			return true
		}
	}
	content := strings.ToLower(t.Content)
	for _, w := range lead {
		if strings.Contains(content, w) {
			return true
		}
	}
	return false
}

// leadingWords returns up to n of the first words of q, skipping words
// shorter than three letters so "i" or "my" never match everything.
func leadingWords(q string, n int) []string {
	fields := strings.FieldsFunc(q, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) > n {
		fields = fields[:n]
	}
	out := fields[:0]
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}

func toDocument(c Category, t Topic, score float64) domain.Document {
	return domain.Document{
		ID:       c.Name + "/" + t.Name,
		Category: c.Name,
		Topic:    t.Name,
		Content:  t.Content,
		Score:    score,
	}
}

var _ domain.KnowledgeStore = (*KeywordStore)(nil)
