package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kirillkom/secguide/internal/core/domain"
)

var (
	guidanceQuestion  string
	guidanceMode      string
	guidanceRetrieval string
	guidanceCompany   string
	guidanceSize      string
	guidanceIndustry  string
	guidanceStack     []string
	guidanceJSON      bool
)

var guidanceCmd = &cobra.Command{
	Use:   "guidance",
	Short: "Answer a security question with cited guidance",
	Long: `Retrieve passages, optionally supplement them with web results, and ask
the language model for guidance grounded in those sources.

Examples:
  secguide guidance -q "How should we store API secrets?"
  secguide guidance -q "Assess our backup policy" --mode assessment \
    --company Acme --industry fintech --stack aws,postgres`,
	Args: cobra.NoArgs,
	RunE: runGuidance,
}

func init() {
	rootCmd.AddCommand(guidanceCmd)
	guidanceCmd.Flags().StringVarP(&guidanceQuestion, "question", "q", "", "question text (required)")
	guidanceCmd.Flags().StringVar(&guidanceMode, "mode", string(domain.GuidanceImplementation), "assessment or implementation")
	guidanceCmd.Flags().StringVar(&guidanceRetrieval, "retrieval", "", "simple or hybrid (default from config)")
	guidanceCmd.Flags().StringVar(&guidanceCompany, "company", "", "company name")
	guidanceCmd.Flags().StringVar(&guidanceSize, "size", "", "company size")
	guidanceCmd.Flags().StringVar(&guidanceIndustry, "industry", "", "industry")
	guidanceCmd.Flags().StringSliceVar(&guidanceStack, "stack", nil, "technology stack, comma separated")
	guidanceCmd.Flags().BoolVar(&guidanceJSON, "json", false, "output as JSON")
	_ = guidanceCmd.MarkFlagRequired("question")
}

func buildGuidanceRequest() (domain.GuidanceRequest, error) {
	req := domain.GuidanceRequest{Question: guidanceQuestion}
	switch domain.GuidanceMode(guidanceMode) {
	case domain.GuidanceAssessment, domain.GuidanceImplementation:
		req.Mode = domain.GuidanceMode(guidanceMode)
	default:
		return req, fmt.Errorf("unknown guidance mode %q: use assessment or implementation", guidanceMode)
	}
	if guidanceRetrieval != "" {
		mode, ok := domain.ParseRetrievalMode(guidanceRetrieval)
		if !ok {
			return req, fmt.Errorf("unknown retrieval mode %q: use simple or hybrid", guidanceRetrieval)
		}
		req.Retrieval = mode
	}
	if guidanceCompany != "" || guidanceSize != "" || guidanceIndustry != "" || len(guidanceStack) > 0 {
		req.Profile = &domain.CompanyProfile{
			Name:      guidanceCompany,
			Size:      guidanceSize,
			Industry:  guidanceIndustry,
			TechStack: guidanceStack,
		}
	}
	return req, nil
}

func runGuidance(cmd *cobra.Command, args []string) error {
	req, err := buildGuidanceRequest()
	if err != nil {
		return err
	}

	core, err := openRetrieval(cmd)
	if err != nil {
		return err
	}
	defer core.Close()

	guidance, err := core.NewGuidanceUseCase().Answer(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("guidance: %w", err)
	}
	if guidanceJSON {
		return writeJSON(cmd.OutOrStdout(), guidance)
	}
	printGuidance(cmd.OutOrStdout(), guidance)
	return nil
}

func printGuidance(w io.Writer, g *domain.Guidance) {
	fmt.Fprintln(w, g.Text)
	if len(g.Sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for i, s := range g.Sources {
		label := s.SourceMetadata[domain.MetaURL]
		if label == "" {
			label = describePassage(domain.Passage{ID: s.PassageID, Metadata: s.SourceMetadata})
		}
		fmt.Fprintf(w, "  [%d] %s\n", i+1, label)
	}
	if g.Degraded {
		fmt.Fprintf(w, "\nRetrieval degraded: skipped %s\n", joinRankers(g.Skipped))
	}
}
