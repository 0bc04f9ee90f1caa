package engine

import (
	"context"
	"testing"
	"time"

	"engram/internal/config"
	"engram/internal/store"
	"engram/internal/vector"
)

func testLifecycle(t *testing.T) (*store.DB, *vector.Index, *Lifecycle) {
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
	return db, index, NewLifecycle(db, index, config.Default().Memory, nil)
}

func TestRunDailyOncePerDay(t *testing.T) {
	db, _, l := testLifecycle(t)
	db.CreateRecord(&store.MemoryRecord{ID: "r1", UserID: "u1", Summary: "x"})

	now := time.Date(2026, 8, 29, 0, 5, 0, 0, time.UTC)
	if err := l.RunDaily(context.Background(), now); err != nil {
		t.Fatalf("RunDaily: %v", err)
	}
	// same day again, including a simulated restart: no second decay
	if err := l.RunDaily(context.Background(), now.Add(2*time.Hour)); err != nil {
		t.Fatalf("RunDaily repeat: %v", err)
	}

	rec, _ := db.GetRecord("r1")
	if rec.ActiveScore != 99 {
		t.Errorf("score = %f, want 99 after exactly one decay", rec.ActiveScore)
	}

	// next day decays again
	if err := l.RunDaily(context.Background(), now.AddDate(0, 0, 1)); err != nil {
		t.Fatalf("RunDaily next day: %v", err)
	}
	rec, _ = db.GetRecord("r1")
	if rec.ActiveScore != 98 {
		t.Errorf("score = %f, want 98", rec.ActiveScore)
	}
}

func TestPruneColdRemovesFromIndexFirst(t *testing.T) {
	db, index, l := testLifecycle(t)
	ctx := context.Background()

	db.CreateRecord(&store.MemoryRecord{ID: "cold", UserID: "u1", Summary: "fading"})
	emb, _ := NewHashEmbedder(64).Embed(ctx, "fading")
	index.Upsert(ctx, "cold", "u1", "fading", emb)

	if _, err := db.Exec("UPDATE memory_records SET active_score = 0 WHERE id = 'cold'"); err != nil {
		t.Fatalf("set score: %v", err)
	}

	pruned, err := l.PruneCold(ctx)
	if err != nil {
		t.Fatalf("PruneCold: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned %d, want 1", pruned)
	}
	if index.Count() != 0 {
		t.Errorf("index count = %d, want 0", index.Count())
	}

	rec, _ := db.GetRecord("cold")
	if rec == nil {
		t.Fatal("pruned record row was deleted, should be retained")
	}
	if rec.Indexed {
		t.Error("pruned record still indexed")
	}

	// second pass is a no-op
	pruned, err = l.PruneCold(ctx)
	if err != nil {
		t.Fatalf("PruneCold repeat: %v", err)
	}
	if pruned != 0 {
		t.Errorf("second pass pruned %d, want 0", pruned)
	}
}

func TestDecayThenPruneSamePass(t *testing.T) {
	db, _, l := testLifecycle(t)
	ctx := context.Background()

	db.CreateRecord(&store.MemoryRecord{ID: "r1", UserID: "u1", Summary: "x", ActiveScore: 1})

	// one decay takes the score to 0, at the prune threshold
	decayed, pruned, err := l.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if decayed != 1 || pruned != 1 {
		t.Errorf("decayed=%d pruned=%d, want 1 and 1", decayed, pruned)
	}
}

func TestDecayRunsCompose(t *testing.T) {
	// two passes at rate r must equal one pass at 2r
	dbTwice, _, _ := testLifecycle(t)
	dbTwice.CreateRecord(&store.MemoryRecord{ID: "r1", UserID: "u1", Summary: "x"})
	for i := 0; i < 2; i++ {
		if _, err := dbTwice.BulkDecay(1); err != nil {
			t.Fatalf("BulkDecay: %v", err)
		}
	}

	dbOnce, _, _ := testLifecycle(t)
	dbOnce.CreateRecord(&store.MemoryRecord{ID: "r1", UserID: "u1", Summary: "x"})
	if _, err := dbOnce.BulkDecay(2); err != nil {
		t.Fatalf("BulkDecay: %v", err)
	}

	twice, _ := dbTwice.GetRecord("r1")
	once, _ := dbOnce.GetRecord("r1")
	if twice.ActiveScore != 98 || once.ActiveScore != twice.ActiveScore {
		t.Errorf("scores %f and %f, want both 98", twice.ActiveScore, once.ActiveScore)
	}
}

func TestReinforceIdempotentSetOfIDs(t *testing.T) {
	db, _, l := testLifecycle(t)
	db.CreateRecord(&store.MemoryRecord{ID: "r1", UserID: "u1", Summary: "x"})

	// the same id twice in one call must not double the bonus
	if err := l.Reinforce("r1", "r1"); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}
	rec, _ := db.GetRecord("r1")
	if rec.ActiveScore != 120 {
		t.Errorf("score = %f, want 120", rec.ActiveScore)
	}
}
