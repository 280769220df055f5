package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"ingest", "query", "guidance", "compare", "mcp"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestQueryRejectsUnknownModeBeforeConnecting(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"query", "-q", "password policy", "--mode", "semantic"})
	defer func() {
		rootCmd.SetArgs(nil)
		queryMode = ""
		queryText = ""
	}()

	err := rootCmd.Execute()
	if err == nil || !strings.Contains(err.Error(), `unknown mode "semantic"`) {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}

func TestReadQueriesSkipsBlankAndComments(t *testing.T) {
	input := "# baseline set\nmfa for admins\n\n  log retention  \n#skip\n"
	queries, err := readQueries(strings.NewReader(input))
	if err != nil {
		t.Fatalf("readQueries() error = %v", err)
	}
	if len(queries) != 2 || queries[0] != "mfa for admins" || queries[1] != "log retention" {
		t.Fatalf("unexpected queries: %q", queries)
	}
}

func TestPrintResultShowsDegradedRankers(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, &domain.FusionResult{
		Mode:     domain.ModeHybrid,
		Degraded: true,
		Skipped:  []domain.RankerName{domain.RankerLexical, domain.RankerCrossEncoder},
		Passages: []domain.FusedPassage{{
			Passage: domain.Passage{
				ID:   "cis:12",
				Text: "Ensure   multi-factor\nauthentication is enabled",
				Metadata: map[string]string{
					domain.MetaSource:    "CIS_Controls_v8.pdf",
					domain.MetaPage:      "14",
					domain.MetaFramework: domain.FrameworkCIS,
				},
			},
			Score: 0.0123,
		}},
	})

	text := out.String()
	for _, want := range []string{
		"Mode: hybrid",
		"skipped lexical, cross_encoder",
		"1. [0.0123] CIS CIS_Controls_v8.pdf p.14",
		"Ensure multi-factor authentication is enabled",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestPrintResultEmpty(t *testing.T) {
	var out bytes.Buffer
	printResult(&out, &domain.FusionResult{Mode: domain.ModeSimple})
	if strings.TrimSpace(out.String()) != "No passages found." {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestPreviewTruncatesOnRunes(t *testing.T) {
	got := preview("пароль пароль", 6)
	if got != "пароль..." {
		t.Fatalf("preview() = %q", got)
	}
}

func TestBuildGuidanceRequest(t *testing.T) {
	defer func() {
		guidanceQuestion, guidanceMode, guidanceRetrieval = "", string(domain.GuidanceImplementation), ""
		guidanceCompany, guidanceIndustry, guidanceStack = "", "", nil
	}()

	guidanceQuestion = "How do we rotate keys?"
	guidanceMode = "assessment"
	guidanceRetrieval = "simple"
	guidanceCompany = "Acme"
	guidanceStack = []string{"aws", "postgres"}

	req, err := buildGuidanceRequest()
	if err != nil {
		t.Fatalf("buildGuidanceRequest() error = %v", err)
	}
	if req.Mode != domain.GuidanceAssessment || req.Retrieval != domain.ModeSimple {
		t.Fatalf("unexpected modes: %+v", req)
	}
	if req.Profile == nil || req.Profile.Name != "Acme" || len(req.Profile.TechStack) != 2 {
		t.Fatalf("unexpected profile: %+v", req.Profile)
	}

	guidanceMode = "audit"
	if _, err := buildGuidanceRequest(); err == nil {
		t.Fatalf("expected error for unknown guidance mode")
	}
}

func TestPrintComparisonSummary(t *testing.T) {
	var out bytes.Buffer
	printComparisonSummary(&out, []domain.ModeComparison{
		{Query: "a", Overlap: 1, TopAgreement: true},
		{Query: "b", Overlap: 0.5, HybridDegraded: true},
		{Query: "c", Error: "simple: retrieval unavailable"},
	})

	text := out.String()
	for _, want := range []string{"3 (1 failed)", "Mean overlap:     0.750", "Top-1 agreement:  1/2", "Hybrid degraded:  1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("summary missing %q:\n%s", want, text)
		}
	}
}
