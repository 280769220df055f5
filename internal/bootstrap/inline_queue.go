package bootstrap

import (
	"context"
	"log/slog"

	"github.com/kirillkom/secguide/internal/core/ports"
)

// inlineQueue runs ingest requests and corpus refreshes synchronously in the
// publishing process. It backs single-process runs of the CLI, where no
// worker is listening on NATS.
type inlineQueue struct {
	process ports.DocumentProcessor
	refresh interface {
		HandleCorpusUpdated(ctx context.Context, documentID string) error
	}
	logger *slog.Logger
}

func (q *inlineQueue) PublishIngestRequested(ctx context.Context, documentID string) error {
	if err := q.process.ProcessByID(ctx, documentID); err != nil {
		// the document is marked failed; a later scan retries it
		q.logger.Error("inline_ingest_failed", "document_id", documentID, "error", err)
	}
	return nil
}

func (q *inlineQueue) PublishCorpusUpdated(ctx context.Context, documentID string) error {
	return q.refresh.HandleCorpusUpdated(ctx, documentID)
}

func (q *inlineQueue) SubscribeIngestRequested(ctx context.Context, _ func(context.Context, string) error) error {
	<-ctx.Done()
	return nil
}

func (q *inlineQueue) SubscribeCorpusUpdated(ctx context.Context, _ func(context.Context, string) error) error {
	<-ctx.Done()
	return nil
}
