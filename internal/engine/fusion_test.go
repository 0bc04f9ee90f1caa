package engine

import (
	"context"
	"testing"

	"engram/internal/config"
	"engram/internal/store"
	"engram/internal/vector"
)

func testRetriever(t *testing.T) (*store.DB, *vector.Index, *Retriever) {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	index, err := vector.Open("")
	if err != nil {
		t.Fatalf("vector.Open: %v", err)
	}

	cfg := config.Default().Memory
	lifecycle := NewLifecycle(db, index, cfg, nil)
	r := NewRetriever(db, index, NewHashEmbedder(256), lifecycle, cfg, nil)
	return db, index, r
}

func seedMemory(t *testing.T, db *store.DB, index *vector.Index, id, userID, summary string) {
	t.Helper()
	rec := &store.MemoryRecord{ID: id, UserID: userID, Summary: summary}
	if err := db.CreateRecord(rec); err != nil {
		t.Fatalf("CreateRecord %s: %v", id, err)
	}
	emb, _ := NewHashEmbedder(256).Embed(context.Background(), summary)
	if err := index.Upsert(context.Background(), id, userID, summary, emb); err != nil {
		t.Fatalf("Upsert %s: %v", id, err)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	_, _, r := testRetriever(t)
	results, err := r.Retrieve(context.Background(), "u1", "   ", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if results != nil {
		t.Errorf("empty query returned %d results", len(results))
	}
}

func TestRetrieveNoMemories(t *testing.T) {
	_, _, r := testRetriever(t)
	results, err := r.Retrieve(context.Background(), "u1", "西瓜", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for empty corpus", len(results))
	}
}

func TestRetrieveFusedRanking(t *testing.T) {
	db, index, r := testRetriever(t)
	seedMemory(t, db, index, "hike", "u1", "今天和朋友去爬山了，天气不错")
	seedMemory(t, db, index, "melon", "u1", "今天吃了西瓜，很甜，我说最喜欢夏天的西瓜")
	seedMemory(t, db, index, "movie", "u1", "看了一部太空电影")

	results, err := r.Retrieve(context.Background(), "u1", "我想吃西瓜", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].Record.ID != "melon" {
		t.Errorf("top result = %s, want melon", results[0].Record.ID)
	}
	if results[0].Relevance <= 0 || results[0].Relevance > 100 {
		t.Errorf("relevance = %d, want (0,100]", results[0].Relevance)
	}
	if results[0].SemanticRank == 0 || results[0].LexicalRank == 0 {
		t.Errorf("top result should rank in both lists: sem=%d lex=%d",
			results[0].SemanticRank, results[0].LexicalRank)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Fused > results[i-1].Fused {
			t.Errorf("results not sorted by fused score at %d", i)
		}
	}
}

func TestRetrieveIsolatesUsers(t *testing.T) {
	db, index, r := testRetriever(t)
	seedMemory(t, db, index, "mine", "u1", "watermelon at the beach")
	seedMemory(t, db, index, "theirs", "u2", "watermelon at the market")

	results, err := r.Retrieve(context.Background(), "u1", "watermelon", 5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, res := range results {
		if res.Record.UserID != "u1" {
			t.Errorf("leaked record %s from user %s", res.Record.ID, res.Record.UserID)
		}
	}
}

func TestRetrieveReinforces(t *testing.T) {
	db, index, r := testRetriever(t)
	seedMemory(t, db, index, "melon", "u1", "ate watermelon today")

	if _, err := r.Retrieve(context.Background(), "u1", "watermelon", 3); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	rec, _ := db.GetRecord("melon")
	if rec.ActiveScore != 120 {
		t.Errorf("score after retrieval = %f, want 120", rec.ActiveScore)
	}
}

func TestRetrieveExcludesArchivalOnly(t *testing.T) {
	db, index, r := testRetriever(t)
	seedMemory(t, db, index, "melon", "u1", "ate watermelon today")

	// flip the flag but leave the index entry stale on purpose
	if err := db.MarkArchivalOnly([]string{"melon"}); err != nil {
		t.Fatalf("MarkArchivalOnly: %v", err)
	}

	results, err := r.Retrieve(context.Background(), "u1", "watermelon", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, res := range results {
		if res.Record.ID == "melon" {
			t.Error("archival-only record returned by retrieval")
		}
	}
}

func TestRetrieveLexicalFallback(t *testing.T) {
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer db.Close()
	db.CreateRecord(&store.MemoryRecord{ID: "melon", UserID: "u1", Summary: "ate watermelon today"})

	cfg := config.Default().Memory

	// no index at all, fallback on: lexical-only degraded results
	r := NewRetriever(db, nil, nil, nil, cfg, nil)
	results, err := r.Retrieve(context.Background(), "u1", "watermelon", 3)
	if err != nil {
		t.Fatalf("Retrieve with fallback: %v", err)
	}
	if len(results) != 1 || !results[0].Degraded {
		t.Fatalf("expected one degraded result, got %+v", results)
	}
	if results[0].Relevance >= 100 {
		t.Errorf("single-ranking result at %d%%, must stay below 100", results[0].Relevance)
	}

	// fallback off: hard error
	cfg.LexicalFallback = false
	r = NewRetriever(db, nil, nil, nil, cfg, nil)
	if _, err := r.Retrieve(context.Background(), "u1", "watermelon", 3); err == nil {
		t.Error("expected ErrIndexUnavailable with fallback disabled")
	}
}

func TestRelevancePercent(t *testing.T) {
	// exact top match in both rankings is the only way to 100
	if got := relevancePercent(0.03, 0.03, 1.0, true, true); got != 100 {
		t.Errorf("exact dual match = %d, want 100", got)
	}
	// single-source caps below 100 even at best score
	if got := relevancePercent(0.03, 0.03, 1.0, true, false); got >= 100 {
		t.Errorf("semantic-only = %d, want < 100", got)
	}
	if got := relevancePercent(0.03, 0.03, 0, false, true); got >= 100 {
		t.Errorf("lexical-only = %d, want < 100", got)
	}
	// weaker similarity drags the display down
	strong := relevancePercent(0.03, 0.03, 0.9, true, true)
	weak := relevancePercent(0.03, 0.03, 0.3, true, true)
	if weak >= strong {
		t.Errorf("weak similarity %d should display below strong %d", weak, strong)
	}
	// never negative
	if got := relevancePercent(0.01, 0.03, -2.0, true, true); got < 0 {
		t.Errorf("relevance went negative: %d", got)
	}
}
