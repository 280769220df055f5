package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

const defaultEmbedBatchSize = 32

// IndexDocumentUseCase turns one stored document into embedded passages in
// the passage store.
type IndexDocumentUseCase struct {
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	index     ports.PassageIndex
	batchSize int
}

func NewIndexDocumentUseCase(
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.PassageIndex,
	batchSize int,
) *IndexDocumentUseCase {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &IndexDocumentUseCase{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
	}
}

// Index returns the number of passages written.
func (uc *IndexDocumentUseCase) Index(ctx context.Context, doc *domain.Document) (int, error) {
	pages, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("extract pages: %w", err)
	}

	passages := BuildPassages(doc, pages, uc.chunker)
	if len(passages) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("document produced zero passages"))
	}

	for start := 0; start < len(passages); start += uc.batchSize {
		end := start + uc.batchSize
		if end > len(passages) {
			end = len(passages)
		}
		if err := uc.embedBatch(ctx, passages[start:end]); err != nil {
			return 0, err
		}
	}

	if err := uc.index.UpsertPassages(ctx, passages); err != nil {
		return 0, fmt.Errorf("upsert passages: %w", err)
	}
	return len(passages), nil
}

func (uc *IndexDocumentUseCase) embedBatch(ctx context.Context, batch []domain.Passage) error {
	texts := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Text
	}
	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed passages: %w", err)
	}
	if len(vectors) != len(batch) {
		return domain.WrapError(
			domain.ErrInvalidInput,
			"embed passages",
			fmt.Errorf("vectors/passages mismatch: %d/%d", len(vectors), len(batch)),
		)
	}
	for i := range batch {
		batch[i].Embedding = vectors[i]
	}
	return nil
}

// BuildPassages splits each page and numbers passages across the whole
// document, so "<document id>:<n>" is stable for the same input.
func BuildPassages(doc *domain.Document, pages []domain.Page, chunker ports.Chunker) []domain.Passage {
	origin := doc.Origin
	if origin == "" {
		origin = domain.OriginPDF
	}
	framework := doc.Framework
	if framework == "" {
		framework = domain.DetectFramework(doc.Filename)
	}

	out := make([]domain.Passage, 0)
	idx := 0
	for _, page := range pages {
		for _, chunk := range chunker.Split(page.Text) {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			out = append(out, domain.Passage{
				ID:   fmt.Sprintf("%s:%d", doc.ID, idx),
				Text: chunk,
				Metadata: map[string]string{
					domain.MetaSource:     doc.Filename,
					domain.MetaPage:       strconv.Itoa(page.Number),
					domain.MetaFramework:  framework,
					domain.MetaOrigin:     string(origin),
					domain.MetaDocumentID: doc.ID,
					domain.MetaChunkIndex: strconv.Itoa(idx),
				},
			})
			idx++
		}
	}
	return out
}
