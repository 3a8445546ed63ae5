// Package parser provides document parsing adapters.
// Clean Architecture: Adapter implementing ports.PageExtractor.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

// ErrNoPages is returned for a PDF whose page tree is empty.
var ErrNoPages = errors.New("pdf has no pages")

// PDFParser extracts per-page plain text from PDF files in process.
type PDFParser struct{}

// NewPDFParser creates a new PDF parser.
func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

// ExtractPages returns the text of every page of the PDF at path, in page order.
// A page without extractable text yields an empty string so page numbering is kept.
func (p *PDFParser) ExtractPages(ctx context.Context, path string) (pages []string, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("parsing %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	n := r.NumPage()
	if n == 0 {
		return nil, ErrNoPages
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Printf("[WARN] [PDFParser.ExtractPages] %s page %d: %v", path, i, err)
			pages = append(pages, "")
			continue
		}
		pages = append(pages, CleanText(text))
	}

	return pages, nil
}

// SupportedFormats returns formats this parser handles.
func (p *PDFParser) SupportedFormats() []string {
	return []string{".pdf"}
}

// CleanText drops control characters left by PDF text operators and
// normalizes to NFC so accented letters compare and embed consistently.
func CleanText(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) && r != unicode.ReplacementChar {
			cleaned.WriteRune(r)
		}
	}
	return norm.NFC.String(strings.TrimSpace(cleaned.String()))
}
