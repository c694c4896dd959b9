package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/tracer"
)

// SQLiteStore is a hybrid knowledge store: BM25 over an FTS5 index merged
// with cosine similarity over document embeddings.
type SQLiteStore struct {
	db       *sql.DB
	embedder domain.EmbeddingProvider
	logger   *slog.Logger

	// minSimilarity is the cosine score a document must reach to count
	// as a vector match.
	minSimilarity float32

	mu      sync.RWMutex
	vectors map[string]indexedDoc
	loaded  bool
}

// DefaultMinSimilarity drops vector matches that share little more than
// common words with the query.
const DefaultMinSimilarity = 0.2

// StoreOption configures a SQLiteStore.
type StoreOption func(*SQLiteStore)

// WithMinSimilarity sets the vector match threshold. Values <= 0 keep
// the default.
func WithMinSimilarity(v float64) StoreOption {
	return func(s *SQLiteStore) {
		if v > 0 {
			s.minSimilarity = float32(v)
		}
	}
}

type indexedDoc struct {
	doc       domain.Document
	embedding []float32
}

// NewSQLiteStore opens (or creates) the database at dbPath. A nil embedder
// makes the store keyword-only.
func NewSQLiteStore(dbPath string, embedder domain.EmbeddingProvider, logger *slog.Logger, opts ...StoreOption) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open db: %v", domain.ErrKnowledgeStore, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: pragma: %v", domain.ErrKnowledgeStore, err)
		}
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", domain.ErrKnowledgeStore, err)
	}

	s := &SQLiteStore{
		db:            db,
		embedder:      embedder,
		logger:        logger,
		minSimilarity: DefaultMinSimilarity,
		vectors:       make(map[string]indexedDoc),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func migrate(db *sql.DB) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			category   TEXT NOT NULL DEFAULT '',
			topic      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			embedding  BLOB,
			indexed_at TEXT NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
			content, topic, content=documents, content_rowid=rowid
		);

		CREATE TRIGGER IF NOT EXISTS documents_ai AFTER INSERT ON documents BEGIN
			INSERT INTO documents_fts(rowid, content, topic) VALUES (new.rowid, new.content, new.topic);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_ad AFTER DELETE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, topic) VALUES ('delete', old.rowid, old.content, old.topic);
		END;

		CREATE TRIGGER IF NOT EXISTS documents_au AFTER UPDATE ON documents BEGIN
			INSERT INTO documents_fts(documents_fts, rowid, content, topic) VALUES ('delete', old.rowid, old.content, old.topic);
			INSERT INTO documents_fts(rowid, content, topic) VALUES (new.rowid, new.content, new.topic);
		END;
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Index implements domain.KnowledgeIndexer. Documents are upserted by id
// and embedded in a single batch.
func (s *SQLiteStore) Index(ctx context.Context, docs []domain.Document) error {
	if len(docs) == 0 {
		return nil
	}

	var embeddings [][]float32
	if s.embedder != nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Content
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("%w: embed: %v", domain.ErrKnowledgeStore, err)
		}
		if len(vecs) != len(docs) {
			return fmt.Errorf("%w: embed: got %d vectors for %d documents", domain.ErrKnowledgeStore, len(vecs), len(docs))
		}
		embeddings = vecs
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin tx: %v", domain.ErrKnowledgeStore, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (id, category, topic, content, embedding, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			topic = excluded.topic,
			content = excluded.content,
			embedding = excluded.embedding,
			indexed_at = excluded.indexed_at`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", domain.ErrKnowledgeStore, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for i, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("%w: document %d has no id", domain.ErrKnowledgeStore, i)
		}
		var blob []byte
		if embeddings != nil {
			blob = float32ToBytes(embeddings[i])
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Category, d.Topic, d.Content, blob, now); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", domain.ErrKnowledgeStore, d.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrKnowledgeStore, err)
	}

	s.mu.Lock()
	for i, d := range docs {
		d.Score = 0
		ie := indexedDoc{doc: d}
		if embeddings != nil {
			ie.embedding = embeddings[i]
		}
		s.vectors[d.ID] = ie
	}
	s.mu.Unlock()

	s.logger.Info("knowledge documents indexed", "count", len(docs))
	return nil
}

// Count returns the number of indexed documents.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %v", domain.ErrKnowledgeStore, err)
	}
	return n, nil
}

// Search implements domain.KnowledgeStore.
func (s *SQLiteStore) Search(ctx context.Context, query string, k int) ([]domain.Document, error) {
	if k <= 0 {
		k = DefaultTopK
	}
	ctx, span := tracer.StartSpan(ctx, "knowledge.search",
		trace.WithAttributes(tracer.IntAttr("knowledge.top_k", k)),
	)
	defer span.End()

	fetch := k * 2
	kw, kwErr := s.keywordSearch(ctx, query, fetch)
	vec, vecErr := s.vectorSearch(ctx, query, fetch)
	if kwErr != nil && vecErr != nil {
		err := fmt.Errorf("%w: %v", domain.ErrKnowledgeSearch, kwErr)
		tracer.RecordError(span, err)
		return nil, err
	}
	if vecErr != nil {
		s.logger.Warn("knowledge vector search failed, using keyword results", "error", vecErr)
	}

	var scored []domain.Document
	switch {
	case kwErr != nil:
		scored = rankScores(vec)
	case vecErr != nil || len(vec) == 0:
		scored = rankScores(kw)
	default:
		scored = reciprocalRankFusion(kw, vec)
	}
	if len(scored) > k {
		scored = scored[:k]
	}

	span.SetAttributes(tracer.IntAttr("knowledge.results", len(scored)))
	tracer.SetOK(span)
	return scored, nil
}

// keywordSearch runs an FTS5 BM25 query built from the query's words.
func (s *SQLiteStore) keywordSearch(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT d.id, d.category, d.topic, d.content
		 FROM documents_fts f
		 JOIN documents d ON d.rowid = f.rowid
		 WHERE documents_fts MATCH ?
		 ORDER BY bm25(documents_fts)
		 LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return s.likeSearch(ctx, query, limit)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func (s *SQLiteStore) likeSearch(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, category, topic, content FROM documents WHERE content LIKE ? LIMIT ?",
		"%"+query+"%", limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Category, &d.Topic, &d.Content); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an OR of quoted terms so punctuation in
// user questions never reaches the FTS5 parser.
func ftsQuery(query string) string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < 2 || stopwords[w] {
			continue
		}
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopwords = map[string]bool{
	"the": true, "is": true, "an": true, "and": true, "or": true, "to": true,
	"of": true, "in": true, "on": true, "my": true, "me": true, "what": true,
	"how": true, "do": true, "can": true, "for": true, "it": true, "a": true,
}

func (s *SQLiteStore) vectorSearch(ctx context.Context, query string, limit int) ([]domain.Document, error) {
	if s.embedder == nil {
		return nil, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	if err := s.loadVectors(ctx); err != nil {
		return nil, err
	}
	q := vecs[0]

	type candidate struct {
		doc   domain.Document
		score float32
	}
	s.mu.RLock()
	candidates := make([]candidate, 0, len(s.vectors))
	for _, ie := range s.vectors {
		if sim := cosineSimilarity(q, ie.embedding); sim >= s.minSimilarity {
			candidates = append(candidates, candidate{doc: ie.doc, score: sim})
		}
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].doc.ID < candidates[j].doc.ID
		}
		return candidates[i].score > candidates[j].score
	})
	out := make([]domain.Document, 0, min(limit, len(candidates)))
	for i := 0; i < len(candidates) && i < limit; i++ {
		out = append(out, candidates[i].doc)
	}
	return out, nil
}

// loadVectors fills the in-memory embedding cache from the database once.
func (s *SQLiteStore) loadVectors(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, category, topic, content, embedding FROM documents WHERE embedding IS NOT NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var (
			d    domain.Document
			blob []byte
		)
		if err := rows.Scan(&d.ID, &d.Category, &d.Topic, &d.Content, &blob); err != nil {
			return err
		}
		s.vectors[d.ID] = indexedDoc{doc: d, embedding: bytesToFloat32(blob)}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

// cosineSimilarity returns 0 for empty or mismatched vectors.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	denom := float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB)))
	if denom == 0 {
		return 0
	}
	r := dot / denom
	if math.IsNaN(float64(r)) || math.IsInf(float64(r), 0) {
		return 0
	}
	return r
}

// rankScores assigns 1/(rank+1) when only one result list is available.
func rankScores(docs []domain.Document) []domain.Document {
	out := make([]domain.Document, len(docs))
	for i, d := range docs {
		d.Score = 1.0 / float64(i+1)
		out[i] = d
	}
	return out
}

// reciprocalRankFusion merges two ranked lists using RRF (k=60).
func reciprocalRankFusion(a, b []domain.Document) []domain.Document {
	const k = 60
	scores := make(map[string]float64)
	docs := make(map[string]domain.Document)
	for _, list := range [][]domain.Document{a, b} {
		for rank, d := range list {
			scores[d.ID] += 1.0 / float64(k+rank+1)
			docs[d.ID] = d
		}
	}

	out := make([]domain.Document, 0, len(scores))
	for id, score := range scores {
		d := docs[id]
		d.Score = score
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToFloat32(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}

var (
	_ domain.KnowledgeStore   = (*SQLiteStore)(nil)
	_ domain.KnowledgeIndexer = (*SQLiteStore)(nil)
)
