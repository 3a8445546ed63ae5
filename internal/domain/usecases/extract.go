package usecases

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/0xcro3dile/syndic-rag/internal/domain/ports"
)

const separator = "=================================================="

// ExtractionReport summarizes an extraction run.
type ExtractionReport struct {
	Converted []string          // written .txt paths
	Failed    map[string]string // PDF name -> error
}

// ExtractionJob converts every PDF of an input directory into a text file.
// Progress is printed to out; a failing file is reported and skipped.
type ExtractionJob struct {
	extractor ports.PageExtractor
	out       io.Writer
}

// NewExtractionJob creates an ExtractionJob. A nil out discards progress output.
func NewExtractionJob(extractor ports.PageExtractor, out io.Writer) *ExtractionJob {
	if out == nil {
		out = io.Discard
	}
	return &ExtractionJob{extractor: extractor, out: out}
}

// Run extracts inputDir/*.pdf into outputDir/<name>.txt.
func (j *ExtractionJob) Run(ctx context.Context, inputDir, outputDir string) (ExtractionReport, error) {
	report := ExtractionReport{Failed: make(map[string]string)}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return report, fmt.Errorf("creating output directory: %w", err)
	}

	pdfs, err := listPDFs(inputDir)
	if err != nil {
		return report, fmt.Errorf("listing %s: %w", inputDir, err)
	}

	if len(pdfs) == 0 {
		fmt.Fprintf(j.out, "No PDF files found in %s directory\n", inputDir)
		return report, nil
	}

	fmt.Fprintf(j.out, "Found %d PDF file(s):\n", len(pdfs))
	for _, p := range pdfs {
		fmt.Fprintf(j.out, "  - %s\n", filepath.Base(p))
	}
	fmt.Fprintf(j.out, "\n%s\n", separator)

	for _, p := range pdfs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := filepath.Base(p)
		fmt.Fprintf(j.out, "\nProcessing: %s\n", name)
		fmt.Fprintf(j.out, "%s\n", strings.Repeat("-", 30))

		outPath, chars, err := j.extractOne(ctx, p, outputDir)
		if err != nil {
			log.Printf("[ERROR] [ExtractionJob.Run] %s: %v", name, err)
			fmt.Fprintf(j.out, "Error reading %s: %v\n", name, err)
			report.Failed[name] = err.Error()
			continue
		}

		report.Converted = append(report.Converted, outPath)
		fmt.Fprintf(j.out, "Extracted text saved to: %s\n", outPath)
		fmt.Fprintf(j.out, "Text length: %d characters\n", chars)
		fmt.Fprintf(j.out, "\n%s\n", separator)
	}

	fmt.Fprintf(j.out, "\nAll PDF files processed. Text files saved in: %s\n", outputDir)
	return report, nil
}

func (j *ExtractionJob) extractOne(ctx context.Context, path, outputDir string) (string, int, error) {
	pages, err := j.extractor.ExtractPages(ctx, path)
	if err != nil {
		return "", 0, err
	}
	fmt.Fprintf(j.out, "Number of pages: %d\n", len(pages))

	text := FormatPages(pages)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(outputDir, stem+".txt")

	if err := os.WriteFile(outPath, []byte(text), 0o644); err != nil {
		return "", 0, fmt.Errorf("writing %s: %w", outPath, err)
	}
	return outPath, utf8.RuneCountInString(text), nil
}

// FormatPages joins page texts, each preceded by a "--- Page N ---" marker.
func FormatPages(pages []string) string {
	var sb strings.Builder
	for i, page := range pages {
		fmt.Fprintf(&sb, "--- Page %d ---\n", i+1)
		sb.WriteString(page)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func listPDFs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var pdfs []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".pdf" {
			pdfs = append(pdfs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(pdfs)
	return pdfs, nil
}
