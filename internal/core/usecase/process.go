package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// CorpusEvents announces that the passage corpus changed.
type CorpusEvents interface {
	PublishCorpusUpdated(ctx context.Context, documentID string) error
}

type ProcessDocumentUseCase struct {
	repo    ports.DocumentRepository
	indexer *IndexDocumentUseCase
	events  CorpusEvents
	logger  *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	indexer *IndexDocumentUseCase,
	events CorpusEvents,
	logger *slog.Logger,
) *ProcessDocumentUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessDocumentUseCase{
		repo:    repo,
		indexer: indexer,
		events:  events,
		logger:  logger,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.processPipeline(ctx, documentID)
	if err != nil {
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.MarkReady(ctx, documentID, count); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}

	if uc.events != nil {
		// best effort: the next corpus event rebuilds the lexical index
		if err := uc.events.PublishCorpusUpdated(ctx, documentID); err != nil {
			uc.logger.Warn("corpus_updated_publish_failed", "document_id", documentID, "error", err)
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) (int, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("fetch document by id: %w", err)
	}
	return uc.indexer.Index(ctx, doc)
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
