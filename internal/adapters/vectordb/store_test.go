package vectordb

import (
	"context"
	"math"
	"testing"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

type testStore interface {
	Store(ctx context.Context, chunks []entities.Chunk) error
	Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error)
	Delete(ctx context.Context, documentID string) error
	Clear(ctx context.Context) error
	Replace(ctx context.Context, chunks []entities.Chunk) error
	Stats(ctx context.Context) (entities.IndexStats, error)
}

// forEachStore runs fn against both store implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, store testStore)) {
	t.Run("sqlite", func(t *testing.T) {
		store, err := NewSQLiteStore(t.TempDir())
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		defer store.Close()
		fn(t, store)
	})
	t.Run("memory", func(t *testing.T) {
		fn(t, NewInMemoryStore())
	})
}

func TestStore_StoreAndSearch(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		chunks := []entities.Chunk{
			{ID: "c1", DocumentID: "doc1", Source: "budget.pdf", Content: "charges", Index: 0, Embedding: []float32{1.0, 0.0, 0.0}},
			{ID: "c2", DocumentID: "doc1", Source: "budget.pdf", Content: "travaux", Index: 1, Embedding: []float32{0.0, 1.0, 0.0}},
			{ID: "c3", DocumentID: "doc2", Source: "pv-ag.txt", Content: "vote", Index: 0, Embedding: []float32{0.7, 0.7, 0.0}},
		}

		if err := store.Store(ctx, chunks); err != nil {
			t.Fatalf("store failed: %v", err)
		}

		results, err := store.Search(ctx, []float32{1.0, 0.0, 0.0}, 2)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}

		if len(results) != 2 {
			t.Fatalf("expected 2 results, got %d", len(results))
		}
		if results[0].Chunk.ID != "c1" || results[1].Chunk.ID != "c3" {
			t.Errorf("unexpected order: %s, %s", results[0].Chunk.ID, results[1].Chunk.ID)
		}
		if results[0].SourceDoc != "budget.pdf" || results[1].SourceDoc != "pv-ag.txt" {
			t.Errorf("unexpected sources: %s, %s", results[0].SourceDoc, results[1].SourceDoc)
		}
		if results[0].Chunk.Content != "charges" {
			t.Errorf("unexpected content: %s", results[0].Chunk.Content)
		}
		if math.Abs(results[0].Score-1.0) > 1e-6 {
			t.Errorf("expected score 1.0, got %f", results[0].Score)
		}
	})
}

func TestStore_SearchZeroTopK(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		store.Store(ctx, []entities.Chunk{{ID: "c1", DocumentID: "d", Embedding: []float32{1}}})

		results, err := store.Search(ctx, []float32{1}, 0)
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected no results, got %d", len(results))
		}
	})
}

func TestStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		store.Store(ctx, []entities.Chunk{
			{ID: "c1", DocumentID: "doc1", Content: "test", Embedding: []float32{1, 0, 0}},
			{ID: "c2", DocumentID: "doc2", Content: "keep", Embedding: []float32{1, 0, 0}},
		})

		if err := store.Delete(ctx, "doc1"); err != nil {
			t.Fatalf("delete failed: %v", err)
		}

		results, _ := store.Search(ctx, []float32{1, 0, 0}, 10)
		if len(results) != 1 || results[0].Chunk.ID != "c2" {
			t.Errorf("only c2 should remain, got %d results", len(results))
		}
	})
}

func TestStore_ClearAndStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		store.Store(ctx, []entities.Chunk{
			{ID: "c1", DocumentID: "doc1", Embedding: []float32{1, 0, 0}},
			{ID: "c2", DocumentID: "doc1", Embedding: []float32{0, 1, 0}},
			{ID: "c3", DocumentID: "doc2", Embedding: []float32{0, 0, 1}},
		})

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats failed: %v", err)
		}
		if stats.Documents != 2 || stats.Chunks != 3 {
			t.Errorf("unexpected stats: %+v", stats)
		}

		store.Clear(ctx)

		stats, _ = store.Stats(ctx)
		if stats.Chunks != 0 || stats.Documents != 0 {
			t.Errorf("expected empty store after clear, got %+v", stats)
		}
	})
}

func TestStore_ReplaceSameID(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		store.Store(ctx, []entities.Chunk{{ID: "c1", DocumentID: "doc1", Content: "old", Embedding: []float32{1, 0}}})
		store.Store(ctx, []entities.Chunk{{ID: "c1", DocumentID: "doc1", Content: "new", Embedding: []float32{1, 0}}})

		results, _ := store.Search(ctx, []float32{1, 0}, 10)
		if len(results) != 1 || results[0].Chunk.Content != "new" {
			t.Errorf("expected replaced chunk, got %+v", results)
		}
	})
}

func TestStore_ReplaceSwapsWholeIndex(t *testing.T) {
	forEachStore(t, func(t *testing.T, store testStore) {
		ctx := context.Background()
		store.Store(ctx, []entities.Chunk{
			{ID: "old1", DocumentID: "doc1", Embedding: []float32{1, 0}},
			{ID: "old2", DocumentID: "doc2", Embedding: []float32{0, 1}},
		})

		err := store.Replace(ctx, []entities.Chunk{
			{ID: "new1", DocumentID: "doc3", Source: "budget.pdf", Embedding: []float32{1, 0}},
		})
		if err != nil {
			t.Fatalf("replace failed: %v", err)
		}

		results, _ := store.Search(ctx, []float32{1, 0}, 10)
		if len(results) != 1 || results[0].Chunk.ID != "new1" {
			t.Fatalf("expected only new1, got %+v", results)
		}
		stats, _ := store.Stats(ctx)
		if stats.Documents != 1 || stats.Chunks != 1 {
			t.Errorf("unexpected stats after replace: %+v", stats)
		}

		if err := store.Delete(ctx, "doc3"); err != nil {
			t.Fatalf("delete after replace failed: %v", err)
		}
		stats, _ = store.Stats(ctx)
		if stats.Chunks != 0 {
			t.Errorf("document index not rebuilt by replace: %+v", stats)
		}
	})
}

func TestSQLiteStore_ReplaceRollsBackOnCancel(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	store.Store(context.Background(), []entities.Chunk{{ID: "keep", DocumentID: "doc1", Embedding: []float32{1, 0}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Replace(ctx, []entities.Chunk{{ID: "new", DocumentID: "doc2", Embedding: []float32{1, 0}}}); err == nil {
		t.Fatal("expected replace with a cancelled context to fail")
	}

	results, _ := store.Search(context.Background(), []float32{1, 0}, 10)
	if len(results) != 1 || results[0].Chunk.ID != "keep" {
		t.Errorf("previous index should survive a failed replace, got %+v", results)
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	store.Store(ctx, []entities.Chunk{{ID: "c1", DocumentID: "doc1", Source: "reglement.md", Embedding: []float32{0.25, -0.5}}})
	store.Close()

	reopened, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	results, _ := reopened.Search(ctx, []float32{0.25, -0.5}, 1)
	if len(results) != 1 || results[0].SourceDoc != "reglement.md" {
		t.Fatalf("expected persisted chunk, got %+v", results)
	}
	if results[0].Chunk.Embedding[1] != -0.5 {
		t.Errorf("embedding not round-tripped: %v", results[0].Chunk.Embedding)
	}
}

func TestDecodeEmbedding_Corrupt(t *testing.T) {
	if _, err := decodeEmbedding([]byte{1, 2, 3}); err == nil {
		t.Error("should reject a blob that is not a multiple of 4 bytes")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	same := cosineSimilarity(a, b)
	diff := cosineSimilarity(a, c)

	if same != 1.0 {
		t.Errorf("same vectors should have score 1.0, got %f", same)
	}
	if diff != 0.0 {
		t.Errorf("orthogonal vectors should have score 0.0, got %f", diff)
	}
	if cosineSimilarity(a, []float32{1, 0}) != 0 {
		t.Error("mismatched dimensions should score 0")
	}
}
