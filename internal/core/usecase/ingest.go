package usecase

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// IngestCorpusUseCase registers source files from the data directory and
// hands them to the worker through the message queue.
type IngestCorpusUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	now     func() time.Time
}

type IngestReport struct {
	Scanned   int                `json:"scanned"`
	Enqueued  int                `json:"enqueued"`
	Skipped   int                `json:"skipped"`
	Documents []*domain.Document `json:"documents"`
}

func NewIngestCorpusUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestCorpusUseCase {
	return &IngestCorpusUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Scan enqueues every file that has not been ingested yet. progress, when
// set, is called after each file.
func (uc *IngestCorpusUseCase) Scan(ctx context.Context, progress func(done, total int)) (IngestReport, error) {
	objects, err := uc.storage.List(ctx)
	if err != nil {
		return IngestReport{}, fmt.Errorf("list data directory: %w", err)
	}

	report := IngestReport{Scanned: len(objects), Documents: make([]*domain.Document, 0, len(objects))}
	for i, obj := range objects {
		doc, enqueued, err := uc.Enqueue(ctx, obj.Key)
		if err != nil {
			return report, err
		}
		if enqueued {
			report.Enqueued++
			report.Documents = append(report.Documents, doc)
		} else {
			report.Skipped++
		}
		if progress != nil {
			progress(i+1, len(objects))
		}
	}
	return report, nil
}

// Enqueue registers one file and publishes an ingest request. Files already
// registered are skipped unless their last processing failed.
func (uc *IngestCorpusUseCase) Enqueue(ctx context.Context, key string) (*domain.Document, bool, error) {
	existing, err := uc.repo.FindByStoragePath(ctx, key)
	switch {
	case err == nil && existing.Status != domain.StatusFailed:
		return existing, false, nil
	case err == nil:
		if err := uc.repo.UpdateStatus(ctx, existing.ID, domain.StatusUploaded, ""); err != nil {
			return nil, false, fmt.Errorf("reset failed document: %w", err)
		}
		existing.Status = domain.StatusUploaded
		existing.Error = ""
		if err := uc.queue.PublishIngestRequested(ctx, existing.ID); err != nil {
			return nil, false, fmt.Errorf("publish ingest request: %w", err)
		}
		return existing, true, nil
	case !domain.IsKind(err, domain.ErrDocumentNotFound):
		return nil, false, fmt.Errorf("find document by path: %w", err)
	}

	now := uc.now()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		Filename:    filepath.Base(key),
		MimeType:    mimeTypeFor(key),
		StoragePath: key,
		Framework:   domain.DetectFramework(key),
		Origin:      domain.OriginPDF,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, false, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishIngestRequested(ctx, doc.ID); err != nil {
		return nil, false, fmt.Errorf("publish ingest request: %w", err)
	}
	return doc, true, nil
}

func mimeTypeFor(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	switch ext {
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
