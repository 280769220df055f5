package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/secguide/internal/core/domain"
)

var (
	queryText string
	queryMode string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve fused passages for a question",
	Long: `Run one retrieval and print the ranked passages.

Examples:
  secguide query -q "multi-factor authentication for admins"
  secguide query -q "log retention" --mode simple --top-k 5 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "question text (required)")
	queryCmd.Flags().StringVar(&queryMode, "mode", "", "simple or hybrid (default from RETRIEVAL_MODE)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of passages (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	q := domain.Query{Text: queryText, TopK: queryTopK}
	if queryMode != "" {
		mode, ok := domain.ParseRetrievalMode(queryMode)
		if !ok {
			return fmt.Errorf("unknown mode %q: use simple or hybrid", queryMode)
		}
		q.Mode = mode
	}

	core, err := openRetrieval(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	result, err := core.Orchestrator.Retrieve(cmd.Context(), q)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	if queryJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func printResult(w io.Writer, result *domain.FusionResult) {
	if result.Len() == 0 {
		fmt.Fprintln(w, "No passages found.")
		return
	}
	fmt.Fprintf(w, "Mode: %s\n", result.Mode)
	if result.Degraded {
		fmt.Fprintf(w, "Degraded: skipped %s\n", joinRankers(result.Skipped))
	}
	fmt.Fprintln(w)
	for i, p := range result.Passages {
		fmt.Fprintf(w, "%d. [%.4f] %s\n", i+1, p.Score, describePassage(p.Passage))
		fmt.Fprintf(w, "   %s\n\n", preview(p.Passage.Text, 200))
	}
}

func describePassage(p domain.Passage) string {
	source := p.Metadata[domain.MetaSource]
	if source == "" {
		source = p.ID
	}
	if page := p.Metadata[domain.MetaPage]; page != "" {
		source += " p." + page
	}
	if fw := p.Metadata[domain.MetaFramework]; fw != "" {
		source = fw + " " + source
	}
	return source
}

func preview(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}

func joinRankers(names []domain.RankerName) string {
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, string(n))
	}
	return strings.Join(parts, ", ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
