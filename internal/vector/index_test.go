package vector

import (
	"context"
	"testing"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return ix
}

func emb(vals ...float32) []float32 {
	v := make([]float32, 4)
	copy(v, vals)
	return v
}

func TestUpsertAndQuery(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()

	ix.Upsert(ctx, "a", "u1", "doc a", emb(1, 0, 0))
	ix.Upsert(ctx, "b", "u1", "doc b", emb(0, 1, 0))

	hits, err := ix.Query(ctx, "u1", emb(1, 0, 0), 2)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != "a" {
		t.Fatalf("hits = %+v, want a first", hits)
	}
}

func TestQueryClampsTopK(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()
	ix.Upsert(ctx, "a", "u1", "doc a", emb(1, 0, 0))

	// topK larger than the collection must not error
	hits, err := ix.Query(ctx, "u1", emb(1, 0, 0), 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("hits = %d, want 1", len(hits))
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	ix := testIndex(t)
	hits, err := ix.Query(context.Background(), "u1", emb(1, 0, 0), 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %+v, want nil", hits)
	}
}

func TestQueryFiltersByUser(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()
	ix.Upsert(ctx, "mine", "u1", "mine", emb(1, 0, 0))
	ix.Upsert(ctx, "theirs", "u2", "theirs", emb(1, 0, 0))

	hits, err := ix.Query(ctx, "u1", emb(1, 0, 0), 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	for _, h := range hits {
		if h.ID != "mine" {
			t.Errorf("leaked hit %s", h.ID)
		}
	}
}

func TestDeleteUser(t *testing.T) {
	ix := testIndex(t)
	ctx := context.Background()
	ix.Upsert(ctx, "a", "u1", "a", emb(1, 0, 0))
	ix.Upsert(ctx, "b", "u2", "b", emb(0, 1, 0))

	if err := ix.DeleteUser(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if ix.Count() != 1 {
		t.Errorf("count = %d, want 1", ix.Count())
	}
}
