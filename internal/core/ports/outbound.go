package ports

import (
	"context"
	"io"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// PassageStore is the vector database holding the passage corpus.
type PassageStore interface {
	SearchByVector(ctx context.Context, vector []float32, limit int) ([]domain.Candidate, error)
	ListAllPassages(ctx context.Context) ([]domain.Passage, error)
	GetByIDs(ctx context.Context, ids []string) ([]domain.Passage, error)
}

// PassageIndex is the write side of the passage store.
type PassageIndex interface {
	UpsertPassages(ctx context.Context, passages []domain.Passage) error
}

// Embedder builds vectors for passages and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CrossEncoderScorer scores (query, text) pairs jointly. The returned slice
// is aligned with texts.
type CrossEncoderScorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// WebSearcher fetches supplemental passages from the live web.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Passage, error)
}

// AnswerGenerator creates the final user-facing guidance text.
type AnswerGenerator interface {
	GenerateGuidance(ctx context.Context, req domain.GuidanceRequest, sources []domain.Citation) (string, error)
}

// SupplementalSearchPolicy decides whether fused results need web results.
type SupplementalSearchPolicy interface {
	NeedsSupplementalSearch(result *domain.FusionResult) bool
}

// DocumentRepository persists and reads ingestion records.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	FindByStoragePath(ctx context.Context, storagePath string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	MarkReady(ctx context.Context, id string, passageCount int) error
}

// ObjectInfo describes one source file in the data directory.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage exposes source documents.
type ObjectStorage interface {
	List(ctx context.Context) ([]ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue carries ingestion requests and corpus change events.
type MessageQueue interface {
	PublishIngestRequested(ctx context.Context, documentID string) error
	SubscribeIngestRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishCorpusUpdated(ctx context.Context, documentID string) error
	SubscribeCorpusUpdated(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts page texts from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) ([]domain.Page, error)
}

// Chunker splits text into passages.
type Chunker interface {
	Split(text string) []string
}
