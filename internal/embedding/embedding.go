// Package embedding implements the Embedding Index (spec §4.2): lazy
// vector embedding of artifacts/blueprints/traces, and semantic search
// over them with a text-search fallback when embeddings are disabled or
// unavailable.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/antigravity-dev/ptc/internal/store"
)

// maxInputChars bounds how much text is sent to the embedding backend —
// spec §4.2: "Input is truncated to a platform-specific budget (≈ 2,000
// characters)."
const maxInputChars = 2000

// Backend produces a single embedding vector for a piece of text.
// Grounded on the shape of the codenerd pack's embedding engine
// interface (internal/embedding/engine.go): one method, one text in,
// one vector or an error out.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index is the Embedding Index. A nil Backend means embeddings are
// disabled — every EmbedText call then returns nil, and SemanticSearch
// falls back to text search, matching spec §4.2's "must not be a hard
// dependency: every operation degrades gracefully."
type Index struct {
	backend Backend
	store   *store.Store
	submit  func(func())
	logger  *slog.Logger
}

// New builds an Embedding Index. backend may be nil (embeddings
// disabled). submit may be nil, in which case EmbedAndStore runs
// synchronously — useful for tests and for callers with no effects pool.
func New(backend Backend, s *store.Store, submit func(func()), logger *slog.Logger) *Index {
	return &Index{backend: backend, store: s, submit: submit, logger: logger}
}

// Enabled reports whether a real embedding backend is wired in.
func (idx *Index) Enabled() bool {
	return idx.backend != nil
}

func truncate(text string) string {
	if len(text) <= maxInputChars {
		return text
	}
	return text[:maxInputChars]
}

// EmbedText returns the embedding vector for text, or nil if embeddings
// are disabled or the backend errors — spec §4.2: "`null` if embeddings
// are disabled or the model is unavailable," never an error the caller
// must handle.
func (idx *Index) EmbedText(ctx context.Context, text string) []float32 {
	if idx.backend == nil {
		return nil
	}
	vec, err := idx.backend.Embed(ctx, truncate(text))
	if err != nil {
		if idx.logger != nil {
			idx.logger.Warn("embedding: backend call failed, degrading to nil", "error", err)
		}
		return nil
	}
	return vec
}

// EmbedAndStore embeds text and persists it (plus the raw text, for the
// text-search fallback) against collection/id. Fire-and-forget: it never
// blocks the caller's pipeline and any failure is logged, not returned —
// matching spec §5's fire-and-forget effect classes. When no submit func
// was configured it runs synchronously, which is what the test suite and
// any caller without an effects pool want.
func (idx *Index) EmbedAndStore(collection, id, text string) {
	do := func() {
		vec := idx.EmbedText(context.Background(), text)
		if err := idx.store.PutVector(collection, id, text, vec); err != nil && idx.logger != nil {
			idx.logger.Warn("embedding: store failed", "collection", collection, "id", id, "error", err)
		}
	}
	if idx.submit != nil {
		idx.submit(do)
		return
	}
	do()
}

// Match is one ranked result of a SemanticSearch.
type Match struct {
	ID    string
	Score float64
}

// SemanticSearch ranks the rows of collection against query. When the
// backend is enabled it embeds the query, scores a candidate pool made
// of the first limit*10 stored rows in ListVectors order (most recently
// created first; older rows are not scored) by cosine similarity, and
// returns the top `limit`. When the backend is disabled — or a stored
// row has no embedding — it falls back to a token-overlap text score
// over the same rows. Ties are broken by id so ordering is stable run
// to run, matching the "stable score ordering" testable property.
func (idx *Index) SemanticSearch(ctx context.Context, collection, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := idx.store.ListVectors(collection)
	if err != nil {
		return nil, fmt.Errorf("embedding: list vectors in %s: %w", collection, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	candidates := rows
	if n := limit * 10; n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}

	queryVec := idx.EmbedText(ctx, query)

	matches := make([]Match, 0, len(candidates))
	for _, row := range candidates {
		var score float64
		switch {
		case queryVec != nil && len(row.Embedding) == len(queryVec) && len(queryVec) > 0:
			score = cosineSimilarity(queryVec, row.Embedding)
		default:
			score = textScore(query, row.Text)
		}
		matches = append(matches, Match{ID: row.ID, Score: score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// FindSimilarBlueprints wraps SemanticSearch with a type marker
// prepended to the query, biasing the text-search fallback and keeping
// the intent consistent with what was embedded at store time.
func (idx *Index) FindSimilarBlueprints(ctx context.Context, intent string, limit int) ([]Match, error) {
	return idx.SemanticSearch(ctx, "blueprints", "blueprint: "+intent, limit)
}

// FindSimilarTraces wraps SemanticSearch over the traces collection.
func (idx *Index) FindSimilarTraces(ctx context.Context, intent string, limit int) ([]Match, error) {
	return idx.SemanticSearch(ctx, "traces", "trace: "+intent, limit)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// textScore is the fallback ranking when no usable embedding exists:
// fraction of query tokens present in text, a plain substring/overlap
// measure good enough to order results deterministically without a
// vector backend.
func textScore(query, text string) float64 {
	qTokens := strings.Fields(strings.ToLower(query))
	if len(qTokens) == 0 {
		return 0
	}
	lowerText := strings.ToLower(text)
	var hits int
	for _, tok := range qTokens {
		if strings.Contains(lowerText, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(qTokens))
}
