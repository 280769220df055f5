package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// CompareModesUseCase runs the same queries through simple (dense only) and
// hybrid retrieval, the baseline used to judge fusion changes.
type CompareModesUseCase struct {
	retriever ports.PassageRetriever
}

func NewCompareModesUseCase(retriever ports.PassageRetriever) *CompareModesUseCase {
	return &CompareModesUseCase{retriever: retriever}
}

// Compare records per-query failures in the row and keeps going; it only
// stops when ctx is done.
func (uc *CompareModesUseCase) Compare(ctx context.Context, queries []string, topK int) ([]domain.ModeComparison, error) {
	out := make([]domain.ModeComparison, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		row := domain.ModeComparison{Query: q}
		simple, simpleDur, err := uc.run(ctx, q, topK, domain.ModeSimple)
		if err != nil {
			row.Error = "simple: " + err.Error()
			out = append(out, row)
			continue
		}
		hybrid, hybridDur, err := uc.run(ctx, q, topK, domain.ModeHybrid)
		if err != nil {
			row.Error = "hybrid: " + err.Error()
			out = append(out, row)
			continue
		}

		row.SimpleIDs = simple.IDs()
		row.HybridIDs = hybrid.IDs()
		row.Overlap = jaccard(row.SimpleIDs, row.HybridIDs)
		row.TopAgreement = len(row.SimpleIDs) > 0 && len(row.HybridIDs) > 0 && row.SimpleIDs[0] == row.HybridIDs[0]
		row.HybridDegraded = hybrid.Degraded
		row.SimpleLatencyMS = float64(simpleDur.Microseconds()) / 1000.0
		row.HybridLatencyMS = float64(hybridDur.Microseconds()) / 1000.0
		out = append(out, row)
	}
	return out, nil
}

func (uc *CompareModesUseCase) run(ctx context.Context, q string, topK int, mode domain.RetrievalMode) (*domain.FusionResult, time.Duration, error) {
	start := time.Now()
	result, err := uc.retriever.Retrieve(ctx, domain.Query{Text: q, TopK: topK, Mode: mode})
	return result, time.Since(start), err
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, id := range b {
		if _, ok := set[id]; ok {
			inter++
			continue
		}
		union++
	}
	return float64(inter) / float64(union)
}
