package ports

import (
	"context"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// PassageRetriever is the inbound contract of the hybrid retrieval core.
type PassageRetriever interface {
	Retrieve(ctx context.Context, query domain.Query) (*domain.FusionResult, error)
}

// GuidanceService answers security questions from retrieved passages.
type GuidanceService interface {
	Answer(ctx context.Context, req domain.GuidanceRequest) (*domain.Guidance, error)
}

// DocumentReader is the inbound read model for ingestion state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// CorpusRefresher rebuilds derived indexes after the passage corpus changed.
type CorpusRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// ControlGuideService browses the standards catalog and writes per-control
// implementation guides.
type ControlGuideService interface {
	Standards() []domain.Standard
	Controls(standardID string, highPriorityOnly bool) ([]domain.Control, error)
	Control(standardID, controlID string) (domain.Control, error)
	Implement(ctx context.Context, req domain.ImplementationRequest) (*domain.ImplementationGuide, error)
}
