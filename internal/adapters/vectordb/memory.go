package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
)

// InMemoryStore is a process-local vector store, used when no index
// directory is configured and in tests.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]entities.Chunk // chunkID -> chunk
	docs   map[string]map[string]struct{}
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks: make(map[string]entities.Chunk),
		docs:   make(map[string]map[string]struct{}),
	}
}

// Store saves chunks with their embeddings.
func (s *InMemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addChunks(s.chunks, s.docs, chunks)
	return nil
}

// Replace swaps the whole index for chunks.
func (s *InMemoryStore) Replace(ctx context.Context, chunks []entities.Chunk) error {
	byID := make(map[string]entities.Chunk, len(chunks))
	docs := make(map[string]map[string]struct{})
	addChunks(byID, docs, chunks)

	s.mu.Lock()
	s.chunks, s.docs = byID, docs
	s.mu.Unlock()
	return nil
}

func addChunks(byID map[string]entities.Chunk, docs map[string]map[string]struct{}, chunks []entities.Chunk) {
	for _, chunk := range chunks {
		byID[chunk.ID] = chunk
		ids, ok := docs[chunk.DocumentID]
		if !ok {
			ids = make(map[string]struct{})
			docs[chunk.DocumentID] = ids
		}
		ids[chunk.ID] = struct{}{}
	}
}

// Search finds the most similar chunks to a query embedding.
func (s *InMemoryStore) Search(ctx context.Context, embedding []float32, topK int) ([]entities.QueryResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]entities.QueryResult, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		results = append(results, entities.QueryResult{
			Chunk:     chunk,
			Score:     cosineSimilarity(embedding, chunk.Embedding),
			SourceDoc: chunk.Source,
		})
	}

	return topResults(results, topK), nil
}

// Delete removes all chunks for a document.
func (s *InMemoryStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.docs[documentID] {
		delete(s.chunks, id)
	}
	delete(s.docs, documentID)
	return nil
}

// Clear removes all data from the store.
func (s *InMemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]entities.Chunk)
	s.docs = make(map[string]map[string]struct{})
	return nil
}

// Stats returns the number of indexed documents and chunks.
func (s *InMemoryStore) Stats(ctx context.Context) (entities.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return entities.IndexStats{Documents: len(s.docs), Chunks: len(s.chunks)}, nil
}
