package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/secguide/internal/core/domain"
)

const (
	comparisonSheet = "comparison"
	summarySheet    = "summary"
)

var comparisonHeader = []any{
	"query", "simple_ids", "hybrid_ids", "overlap", "top_agreement",
	"hybrid_degraded", "simple_latency_ms", "hybrid_latency_ms", "error",
}

// WriteComparison renders mode comparison rows as a workbook with one row per
// query and an aggregate summary sheet.
func WriteComparison(w io.Writer, rows []domain.ModeComparison) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", comparisonSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(comparisonSheet, "A1", &comparisonHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(comparisonSheet, "A1", "I1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	var (
		overlapSum                   float64
		simpleLatency, hybridLatency float64
		agreements, degraded         int
		failures                     int
	)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []any{
			r.Query,
			strings.Join(r.SimpleIDs, ", "),
			strings.Join(r.HybridIDs, ", "),
			r.Overlap,
			r.TopAgreement,
			r.HybridDegraded,
			r.SimpleLatencyMS,
			r.HybridLatencyMS,
			r.Error,
		}
		if err := f.SetSheetRow(comparisonSheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
		if r.Error != "" {
			failures++
			continue
		}
		overlapSum += r.Overlap
		simpleLatency += r.SimpleLatencyMS
		hybridLatency += r.HybridLatencyMS
		if r.TopAgreement {
			agreements++
		}
		if r.HybridDegraded {
			degraded++
		}
	}
	_ = f.SetColWidth(comparisonSheet, "A", "A", 60)
	_ = f.SetColWidth(comparisonSheet, "B", "C", 40)

	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	ok := len(rows) - failures
	summary := [][]any{
		{"queries", len(rows)},
		{"failed", failures},
		{"mean_overlap", mean(overlapSum, ok)},
		{"top_agreement_rate", mean(float64(agreements), ok)},
		{"hybrid_degraded", degraded},
		{"mean_simple_latency_ms", mean(simpleLatency, ok)},
		{"mean_hybrid_latency_ms", mean(hybridLatency, ok)},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
