package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/usecase"
	"github.com/kirillkom/secguide/internal/infrastructure/report/xlsx"
)

var (
	compareQueries string
	compareOut     string
	compareTopK    int
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare simple and hybrid retrieval over a query set",
	Long: `Run every query from a file in both retrieval modes and write an Excel
workbook with per-query overlap and latency plus a summary sheet.

The queries file holds one query per line; blank lines and lines starting
with # are ignored.

Examples:
  secguide compare --queries eval/queries.txt
  secguide compare --queries eval/queries.txt --top-k 5 --out hybrid.xlsx`,
	Args: cobra.NoArgs,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	compareCmd.Flags().StringVar(&compareQueries, "queries", "", "file with one query per line (required)")
	compareCmd.Flags().StringVarP(&compareOut, "out", "o", "comparison.xlsx", "output workbook")
	compareCmd.Flags().IntVarP(&compareTopK, "top-k", "k", 0, "passages per query (default from config)")
	_ = compareCmd.MarkFlagRequired("queries")
}

func readQueries(r io.Reader) ([]string, error) {
	var queries []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return queries, nil
}

func runCompare(cmd *cobra.Command, args []string) error {
	f, err := os.Open(compareQueries)
	if err != nil {
		return fmt.Errorf("open queries: %w", err)
	}
	queries, err := readQueries(f)
	_ = f.Close()
	if err != nil {
		return fmt.Errorf("read queries: %w", err)
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries in %s", compareQueries)
	}

	core, err := openRetrieval(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	rows, err := usecase.NewCompareModesUseCase(core.Orchestrator).Compare(cmd.Context(), queries, compareTopK)
	if err != nil {
		return fmt.Errorf("compare: %w", err)
	}

	out, err := os.Create(compareOut)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := xlsx.WriteComparison(out, rows); err != nil {
		_ = out.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	printComparisonSummary(cmd.OutOrStdout(), rows)
	fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to %s\n", compareOut)
	return nil
}

func printComparisonSummary(w io.Writer, rows []domain.ModeComparison) {
	var (
		ok, failed, agree, degraded int
		overlap                     float64
	)
	for _, r := range rows {
		if r.Error != "" {
			failed++
			continue
		}
		ok++
		overlap += r.Overlap
		if r.TopAgreement {
			agree++
		}
		if r.HybridDegraded {
			degraded++
		}
	}
	fmt.Fprintf(w, "Queries:          %d (%d failed)\n", len(rows), failed)
	if ok == 0 {
		return
	}
	fmt.Fprintf(w, "Mean overlap:     %.3f\n", overlap/float64(ok))
	fmt.Fprintf(w, "Top-1 agreement:  %d/%d\n", agree, ok)
	fmt.Fprintf(w, "Hybrid degraded:  %d\n", degraded)
}
