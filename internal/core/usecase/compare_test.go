package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

func TestCompareModesRecordsOverlap(t *testing.T) {
	degraded := fusionResult("a", "c")
	degraded.Degraded = true
	retriever := &retrieverFake{byMode: map[domain.RetrievalMode]*domain.FusionResult{
		domain.ModeSimple: fusionResult("a", "b"),
		domain.ModeHybrid: degraded,
	}}
	uc := NewCompareModesUseCase(retriever)

	rows, err := uc.Compare(context.Background(), []string{"mfa", " ", "backups"}, 2)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected blank query skipped, got %d rows", len(rows))
	}
	row := rows[0]
	if !reflect.DeepEqual(row.SimpleIDs, []string{"a", "b"}) || !reflect.DeepEqual(row.HybridIDs, []string{"a", "c"}) {
		t.Fatalf("unexpected ids: %+v", row)
	}
	if row.Overlap != 1.0/3.0 || !row.TopAgreement || !row.HybridDegraded {
		t.Fatalf("unexpected comparison: %+v", row)
	}
}

func TestCompareModesKeepsGoingAfterFailure(t *testing.T) {
	uc := NewCompareModesUseCase(&retrieverFake{err: errors.New("qdrant down")})
	rows, err := uc.Compare(context.Background(), []string{"a", "b"}, 3)
	if err != nil {
		t.Fatalf("Compare() error = %v", err)
	}
	if len(rows) != 2 || rows[0].Error == "" || rows[1].Error == "" {
		t.Fatalf("expected per-row errors, got %+v", rows)
	}
}
