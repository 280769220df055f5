package router

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// Extractor dispatches on the file extension.
type Extractor struct {
	byExt map[string]ports.TextExtractor
}

func New(pdf, text ports.TextExtractor) *Extractor {
	return &Extractor{byExt: map[string]ports.TextExtractor{
		".pdf":      pdf,
		".txt":      text,
		".md":       text,
		".markdown": text,
	}}
}

func (e *Extractor) Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, error) {
	ext := strings.ToLower(filepath.Ext(doc.Filename))
	extractor, ok := e.byExt[ext]
	if !ok || extractor == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "extract text", fmt.Errorf("unsupported file type %q", ext))
	}
	return extractor.Extract(ctx, doc)
}

// Supports reports whether Extract can handle filename.
func (e *Extractor) Supports(filename string) bool {
	extractor, ok := e.byExt[strings.ToLower(filepath.Ext(filename))]
	return ok && extractor != nil
}
