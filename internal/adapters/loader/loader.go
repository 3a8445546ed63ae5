// Package loader provides document loading adapters.
package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/0xcro3dile/syndic-rag/internal/domain/entities"
	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
	"github.com/0xcro3dile/syndic-rag/internal/domain/usecases"
)

// ErrNoText is returned when a document yields no extractable text
// (scanned PDF without OCR layer, empty file).
var ErrNoText = errors.New("no extractable text")

// ErrUnsupported is returned for an extension no registered loader handles.
var ErrUnsupported = errors.New("unsupported file type")

// TextLoader loads plain text documents (.txt, .md).
type TextLoader struct{}

// NewTextLoader creates a new text document loader.
func NewTextLoader() *TextLoader {
	return &TextLoader{}
}

// Load reads a text document from the given path.
func (l *TextLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}

	return newDocument(path, norm.NFC.String(string(content)), info.ModTime()), nil
}

// SupportedExtensions returns file extensions this loader handles.
func (l *TextLoader) SupportedExtensions() []string {
	return []string{".txt", ".md", ".markdown"}
}

// PDFLoader loads PDF documents through a page extractor. The content keeps
// the "--- Page N ---" markers so retrieved chunks can be traced to a page.
type PDFLoader struct {
	extractor ports.PageExtractor
}

// NewPDFLoader creates a PDF loader on top of extractor.
func NewPDFLoader(extractor ports.PageExtractor) *PDFLoader {
	return &PDFLoader{extractor: extractor}
}

// Load extracts the PDF's pages and joins them into one document.
func (l *PDFLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	pages, err := l.extractor.ExtractPages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extracting %s: %w", filepath.Base(path), err)
	}

	blank := true
	for _, p := range pages {
		if strings.TrimSpace(p) != "" {
			blank = false
			break
		}
	}
	if blank {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoText)
	}

	return newDocument(path, usecases.FormatPages(pages), info.ModTime()), nil
}

// SupportedExtensions returns file extensions.
func (l *PDFLoader) SupportedExtensions() []string {
	return []string{".pdf"}
}

// MultiLoader combines multiple loaders.
type MultiLoader struct {
	loaders map[string]ports.DocumentLoader
}

// NewMultiLoader creates a loader that handles text files and, when
// extractor is non-nil, PDFs.
func NewMultiLoader(extractor ports.PageExtractor) *MultiLoader {
	m := &MultiLoader{loaders: make(map[string]ports.DocumentLoader)}
	m.Register(NewTextLoader())
	if extractor != nil {
		m.Register(NewPDFLoader(extractor))
	}
	return m
}

// Register adds l for every extension it supports, replacing earlier loaders.
func (m *MultiLoader) Register(l ports.DocumentLoader) {
	for _, ext := range l.SupportedExtensions() {
		m.loaders[strings.ToLower(ext)] = l
	}
}

// Load dispatches to the appropriate loader based on extension.
func (m *MultiLoader) Load(ctx context.Context, path string) (*entities.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrUnsupported)
	}
	return loader.Load(ctx, path)
}

// SupportedExtensions returns all supported extensions, sorted.
func (m *MultiLoader) SupportedExtensions() []string {
	exts := make([]string, 0, len(m.loaders))
	for ext := range m.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func newDocument(path, content string, modTime time.Time) *entities.Document {
	return &entities.Document{
		ID:        generateDocID(path),
		Name:      filepath.Base(path),
		Path:      path,
		Content:   content,
		CreatedAt: modTime,
		UpdatedAt: time.Now(),
	}
}

// generateDocID creates a deterministic ID for a document.
func generateDocID(path string) string {
	hash := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(hash[:8])
}
