package router

import (
	"context"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type stubExtractor struct {
	name  string
	calls int
}

func (s *stubExtractor) Extract(context.Context, *domain.Document) ([]domain.Page, error) {
	s.calls++
	return []domain.Page{{Number: 1, Text: s.name}}, nil
}

func TestExtractDispatchesByExtension(t *testing.T) {
	pdf := &stubExtractor{name: "pdf"}
	text := &stubExtractor{name: "text"}
	e := New(pdf, text)

	pages, err := e.Extract(context.Background(), &domain.Document{Filename: "CIS_Controls_v8.PDF"})
	if err != nil || pages[0].Text != "pdf" {
		t.Fatalf("unexpected result: %v %v", pages, err)
	}
	if _, err := e.Extract(context.Background(), &domain.Document{Filename: "notes.md"}); err != nil {
		t.Fatalf("markdown extract error = %v", err)
	}
	if pdf.calls != 1 || text.calls != 1 {
		t.Fatalf("unexpected calls pdf=%d text=%d", pdf.calls, text.calls)
	}
}

func TestExtractRejectsUnknownExtension(t *testing.T) {
	e := New(&stubExtractor{}, &stubExtractor{})
	_, err := e.Extract(context.Background(), &domain.Document{Filename: "scan.tiff"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if e.Supports("scan.tiff") || !e.Supports("a.txt") {
		t.Fatalf("unexpected Supports() result")
	}
}
