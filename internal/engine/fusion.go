package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"engram/internal/config"
	"engram/internal/store"
	"engram/internal/vector"
)

// ErrIndexUnavailable is returned when the vector index or embedder fails
// and lexical fallback is disabled.
var ErrIndexUnavailable = errors.New("vector index unavailable")

const (
	// RRF dampening constant; rank 1 in one list contributes 1/61.
	rrfK = 60

	// how many indexed records feed the lexical ranking
	maxLexicalCandidates = 200

	// results found by only one ranking cap out below 100%
	singleSourcePenalty = 0.9
)

// Scored is one retrieval result with its fused score and a bounded
// relevance percentage for display.
type Scored struct {
	Record       store.MemoryRecord
	Fused        float64
	Relevance    int  // 0..100
	SemanticRank int  // 0 = not ranked semantically
	LexicalRank  int  // 0 = not ranked lexically
	Degraded     bool // true when the semantic side was unavailable
}

// Retriever fuses semantic and lexical rankings over a user's indexed
// memories with reciprocal rank fusion.
type Retriever struct {
	db        *store.DB
	index     *vector.Index
	embedder  Embedder
	lifecycle *Lifecycle
	cfg       config.MemoryConfig
	logger    *log.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(db *store.DB, index *vector.Index, embedder Embedder, lifecycle *Lifecycle, cfg config.MemoryConfig, logger *log.Logger) *Retriever {
	if logger == nil {
		logger = log.New(log.Writer(), "[retrieve] ", log.LstdFlags)
	}
	return &Retriever{db: db, index: index, embedder: embedder, lifecycle: lifecycle, cfg: cfg, logger: logger}
}

// Retrieve returns the user's most relevant memories for a query.
//
// Candidates come from two rankings over the indexed tier: cosine
// similarity on the vector index and a BM25-style lexical score over the
// record summaries. Rankings are fused with RRF, so a record needs to
// appear in only one list to qualify. Returned records are reinforced
// once per call.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, topK int) ([]Scored, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	if topK <= 0 {
		topK = 3
	}

	candidates, err := r.db.ListIndexed(userID, maxLexicalCandidates)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	byID := make(map[string]int, len(candidates))
	for i, rec := range candidates {
		byID[rec.ID] = i
	}

	// semantic ranking
	semRank := make(map[string]int)
	semSim := make(map[string]float64)
	degraded := false
	hits, err := r.semanticHits(ctx, userID, query, topK)
	if err != nil {
		if !r.cfg.LexicalFallback {
			return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
		}
		r.logger.Printf("semantic ranking unavailable, lexical only: %v", err)
		degraded = true
	}
	rank := 0
	for _, h := range hits {
		if _, ok := byID[h.ID]; !ok {
			continue // stale index entry for an archival-only record
		}
		rank++
		semRank[h.ID] = rank
		semSim[h.ID] = float64(h.Similarity)
	}

	// lexical ranking over the same candidate set
	texts := make([]string, len(candidates))
	for i, rec := range candidates {
		texts[i] = rec.Summary
	}
	scorer := newLexicalScorer(texts)
	queryTokens := Tokenize(query)
	lexRank := make(map[string]int)
	for i, idx := range scorer.Rank(queryTokens) {
		lexRank[candidates[idx].ID] = i + 1
	}

	// reciprocal rank fusion across both lists
	fused := make(map[string]float64)
	for id, rk := range semRank {
		fused[id] += 1.0 / float64(rrfK+rk)
	}
	for id, rk := range lexRank {
		fused[id] += 1.0 / float64(rrfK+rk)
	}
	if len(fused) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(fused))
	for id := range fused {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool {
		if fused[ids[a]] != fused[ids[b]] {
			return fused[ids[a]] > fused[ids[b]]
		}
		return ids[a] < ids[b]
	})
	if len(ids) > topK {
		ids = ids[:topK]
	}

	best := fused[ids[0]]
	results := make([]Scored, 0, len(ids))
	for _, id := range ids {
		s := Scored{
			Record:       candidates[byID[id]],
			Fused:        fused[id],
			SemanticRank: semRank[id],
			LexicalRank:  lexRank[id],
			Degraded:     degraded,
		}
		s.Relevance = relevancePercent(fused[id], best, semSim[id], s.SemanticRank > 0, s.LexicalRank > 0)
		results = append(results, s)
	}

	if r.lifecycle != nil {
		if err := r.lifecycle.Reinforce(ids...); err != nil {
			r.logger.Printf("reinforce after retrieval: %v", err)
		}
	}
	return results, nil
}

func (r *Retriever) semanticHits(ctx context.Context, userID, query string, topK int) ([]vector.Hit, error) {
	if r.index == nil || r.embedder == nil {
		return nil, errors.New("no index configured")
	}
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	n := topK * 3
	if n > 15 {
		n = 15
	}
	return r.index.Query(ctx, userID, emb, n)
}

// relevancePercent converts a fused score into a bounded display
// percentage. The score is normalized against the best fused score, then
// damped by a quality factor derived from semantic distance so that 100%
// requires an exact-match top hit in both rankings.
func relevancePercent(fusedScore, best, similarity float64, inSem, inLex bool) int {
	if best <= 0 {
		return 0
	}
	raw := fusedScore / best * 100

	quality := 1.0
	if inSem {
		distance := 1 - similarity
		quality = (1.5 - distance) / 1.5
		if quality < 0 {
			quality = 0
		}
		if quality > 1 {
			quality = 1
		}
	}
	if !inSem || !inLex {
		quality *= singleSourcePenalty
	}

	pct := int(raw * quality)
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return pct
}
