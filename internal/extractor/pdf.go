package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
)

// PDFExtractor returns the plain text of every page, joined by newlines.
// Scanned PDFs without a text layer yield ErrExtraction.
type PDFExtractor struct{}

func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

func (e *PDFExtractor) Kind() Kind { return KindPDF }

func (e *PDFExtractor) Extensions() []string { return []string{".pdf"} }

func (e *PDFExtractor) Extract(ctx context.Context, content []byte, filename string) (string, error) {
	if err := checkExtension(filename, e.Extensions()); err != nil {
		return "", err
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return "", extractionError("open pdf: %v", err)
	}
	defer doc.Close()

	var pages []string
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: page %d: %w", ErrExtraction, i+1, err)
		}
		text, err := doc.Text(i)
		if err != nil {
			return "", extractionError("read page %d: %v", i+1, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	text := strings.TrimSpace(strings.Join(pages, "\n"))
	if text == "" {
		return "", extractionError("no text layer in %s", filename)
	}
	return text, nil
}
