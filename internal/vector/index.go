// Package vector wraps chromem-go, a pure-Go embedded vector database, as
// the searchable index tier for memory records. The relational store remains
// the source of truth; the index only ever holds records whose lifecycle
// flag says they are searchable.
package vector

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "memories"

// Hit is one vector query result.
type Hit struct {
	ID         string
	Similarity float32
}

// Index is the embedded vector index over memory summaries.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

// Open creates a persistent index at path, or an in-memory one when path
// is empty.
func Open(path string) (*Index, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("open collection: %w", err)
	}
	return &Index{db: db, col: col}, nil
}

// Upsert stores (or replaces) the embedding for a record id.
func (ix *Index) Upsert(ctx context.Context, id, userID, content string, embedding []float32) error {
	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata:  map[string]string{"user_id": userID},
	}
	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	return nil
}

// Query returns up to topK hits for a user, most similar first.
func (ix *Index) Query(ctx context.Context, userID string, embedding []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	// chromem rejects nResults above the collection size
	if n := ix.col.Count(); n < topK {
		if n == 0 {
			return nil, nil
		}
		topK = n
	}

	where := map[string]string{"user_id": userID}
	results, err := ix.col.QueryEmbedding(ctx, embedding, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: r.ID, Similarity: r.Similarity})
	}
	return hits, nil
}

// Delete physically removes the given ids from the index.
func (ix *Index) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := ix.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}
	return nil
}

// DeleteUser removes every indexed document belonging to a user.
func (ix *Index) DeleteUser(ctx context.Context, userID string) error {
	if err := ix.col.Delete(ctx, map[string]string{"user_id": userID}, nil); err != nil {
		return fmt.Errorf("delete user from index: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (ix *Index) Count() int {
	return ix.col.Count()
}
