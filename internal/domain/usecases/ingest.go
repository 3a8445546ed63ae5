// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - just the assistant's business logic.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

// IngestUseCase builds the retrieval index from documents.
type IngestUseCase struct {
	embedder     ports.EmbeddingService
	vectorStore  ports.VectorStore
	loader       ports.DocumentLoader
	chunkSize    int
	chunkOverlap int
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
func NewIngestUseCase(
	embedder ports.EmbeddingService,
	vectorStore ports.VectorStore,
	loader ports.DocumentLoader,
	chunkSize, chunkOverlap int,
) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = 500 // characters
	}
	if chunkOverlap < 0 {
		chunkOverlap = 50
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 10
	}
	return &IngestUseCase{
		embedder:     embedder,
		vectorStore:  vectorStore,
		loader:       loader,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest processes a document: chunks it, embeds it, stores it.
// Returns the number of chunks stored.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) (int, error) {
	chunks, err := uc.embedDocument(ctx, doc)
	if err != nil || len(chunks) == 0 {
		return 0, err
	}

	if err := uc.vectorStore.Store(ctx, chunks); err != nil {
		return 0, fmt.Errorf("storing %s: %w", doc.Name, err)
	}
	return len(chunks), nil
}

// IngestDirectory rebuilds the index from every supported file in dir.
// Files that fail to load are logged and skipped; embedding or storage
// failures abort the run. The store is swapped only once every document is
// embedded, so a failed run leaves the previous index in place.
func (uc *IngestUseCase) IngestDirectory(ctx context.Context, dir string) (entities.IndexStats, error) {
	var stats entities.IndexStats

	paths, err := uc.listSupported(dir)
	if err != nil {
		return stats, newError(ErrorIndex, "list_data_dir", err)
	}

	var all []entities.Chunk
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, newError(ErrorIndex, "cancelled", err)
		}

		doc, err := uc.loader.Load(ctx, path)
		if err != nil {
			log.Printf("[WARN] [IngestUseCase.IngestDirectory] skipping %s: %v", path, err)
			stats.Skipped++
			continue
		}

		chunks, err := uc.embedDocument(ctx, doc)
		if err != nil {
			return stats, newError(ErrorIndex, "ingest_document", err)
		}
		all = append(all, chunks...)
		stats.Documents++
		stats.Chunks += len(chunks)
		log.Printf("[OK] Embedded %s (%d chunks)", doc.Name, len(chunks))
	}

	if err := uc.vectorStore.Replace(ctx, all); err != nil {
		return stats, newError(ErrorIndex, "replace_index", err)
	}

	log.Printf("[INFO] Index built from %s: %d documents, %d chunks, %d skipped",
		dir, stats.Documents, stats.Chunks, stats.Skipped)
	return stats, nil
}

// embedDocument chunks doc and attaches an embedding to every chunk.
func (uc *IngestUseCase) embedDocument(ctx context.Context, doc *entities.Document) ([]entities.Chunk, error) {
	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", doc.Name, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.Name, len(embeddings), len(chunks))
	}

	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	return chunks, nil
}

// Delete removes a document from the store.
func (uc *IngestUseCase) Delete(ctx context.Context, documentID string) error {
	return uc.vectorStore.Delete(ctx, documentID)
}

func (uc *IngestUseCase) listSupported(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	supported := make(map[string]bool)
	for _, ext := range uc.loader.SupportedExtensions() {
		supported[strings.ToLower(ext)] = true
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if supported[strings.ToLower(filepath.Ext(e.Name()))] {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// chunkDocument splits document content into overlapping chunks.
// Sizes are counted in runes so accented text is never cut mid-character.
func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	content := []rune(strings.TrimSpace(doc.Content))
	if len(content) == 0 {
		return nil
	}

	var chunks []entities.Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		}

		// Try to break at word boundary
		if end < len(content) {
			for i := end - 1; i > start; i-- {
				if unicode.IsSpace(content[i]) {
					end = i
					break
				}
			}
		}

		chunkContent := strings.TrimSpace(string(content[start:end]))
		if len(chunkContent) > 0 {
			chunks = append(chunks, entities.Chunk{
				ID:         generateChunkID(doc.ID, index),
				DocumentID: doc.ID,
				Source:     doc.Name,
				Content:    chunkContent,
				Index:      index,
			})
			index++
		}

		if end >= len(content) {
			break
		}
		next := end - uc.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", docID, index)))
	return hex.EncodeToString(hash[:8])
}
