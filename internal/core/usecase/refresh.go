package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/secguide/internal/core/retrieval"
)

type SnapshotObserver interface {
	SetLexicalSnapshotPassages(n int)
}

// CorpusRefreshUseCase keeps the lexical snapshot in step with the passage
// store.
type CorpusRefreshUseCase struct {
	lexical  *retrieval.LexicalRanker
	store    retrieval.PassageLister
	observer SnapshotObserver
	logger   *slog.Logger
}

func NewCorpusRefreshUseCase(
	lexical *retrieval.LexicalRanker,
	store retrieval.PassageLister,
	observer SnapshotObserver,
	logger *slog.Logger,
) *CorpusRefreshUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &CorpusRefreshUseCase{lexical: lexical, store: store, observer: observer, logger: logger}
}

// Refresh rebuilds the snapshot and returns the number of indexed passages.
func (uc *CorpusRefreshUseCase) Refresh(ctx context.Context) (int, error) {
	snap, err := uc.lexical.Rebuild(ctx, uc.store)
	if err != nil {
		return 0, fmt.Errorf("refresh lexical index: %w", err)
	}
	if uc.observer != nil {
		uc.observer.SetLexicalSnapshotPassages(snap.Len())
	}
	return snap.Len(), nil
}

// HandleCorpusUpdated is the corpus.updated subscriber. Invalidation happens
// before the rebuild so queries never see the old snapshot as current.
func (uc *CorpusRefreshUseCase) HandleCorpusUpdated(ctx context.Context, documentID string) error {
	uc.lexical.Invalidate()
	n, err := uc.Refresh(ctx)
	if err != nil {
		return err
	}
	uc.logger.Info("corpus_refreshed", "document_id", documentID, "passages", n)
	return nil
}
