package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type retrieverFake struct {
	result *domain.FusionResult
	err    error
	byMode map[domain.RetrievalMode]*domain.FusionResult
	got    []domain.Query
}

func (f *retrieverFake) Retrieve(_ context.Context, q domain.Query) (*domain.FusionResult, error) {
	f.got = append(f.got, q)
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.byMode[q.Mode]; ok {
		return r, nil
	}
	return f.result, nil
}

type generatorFake struct {
	sources []domain.Citation
	req     domain.GuidanceRequest
	calls   int
	err     error
}

func (f *generatorFake) GenerateGuidance(_ context.Context, req domain.GuidanceRequest, sources []domain.Citation) (string, error) {
	f.calls++
	f.req = req
	f.sources = sources
	if f.err != nil {
		return "", f.err
	}
	return "Enable MFA on remote access.", nil
}

type webFake struct {
	passages []domain.Passage
	err      error
	calls    int
}

func (f *webFake) Search(context.Context, string, int) ([]domain.Passage, error) {
	f.calls++
	return f.passages, f.err
}

func fusionResult(ids ...string) *domain.FusionResult {
	out := &domain.FusionResult{Mode: domain.ModeHybrid}
	for i, id := range ids {
		out.Passages = append(out.Passages, domain.FusedPassage{
			Passage: domain.Passage{ID: id, Text: "passage " + id, Metadata: map[string]string{domain.MetaSource: "CIS.pdf", domain.MetaPage: "4"}},
			Score:   0.02 - float64(i)*0.001,
		})
	}
	return out
}

func TestGuidanceAnswerUsesFusedSources(t *testing.T) {
	retriever := &retrieverFake{result: fusionResult("p1", "p2")}
	generator := &generatorFake{}
	web := &webFake{}
	uc := NewGuidanceUseCase(retriever, generator, web, ThresholdPolicy{MinPassages: 1}, 3, nil)

	got, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "  How do I secure remote access? ", TopK: 2})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if got.Text == "" || len(got.Sources) != 2 || got.UsedWebSearch {
		t.Fatalf("unexpected guidance: %+v", got)
	}
	if got.Sources[0].SourceMetadata[domain.MetaPage] != "4" || got.Sources[0].FusedScore != 0.02 {
		t.Fatalf("unexpected citation: %+v", got.Sources[0])
	}
	if web.calls != 0 {
		t.Fatalf("web search must not run when retrieval is sufficient")
	}
	if retriever.got[0].Text != "How do I secure remote access?" || retriever.got[0].TopK != 2 {
		t.Fatalf("unexpected retrieval query: %+v", retriever.got[0])
	}
	if generator.req.Mode != domain.GuidanceImplementation {
		t.Fatalf("expected implementation mode by default, got %q", generator.req.Mode)
	}
}

func TestGuidanceAnswerAddsWebResultsWhenPolicyAsks(t *testing.T) {
	retriever := &retrieverFake{result: fusionResult("p1")}
	generator := &generatorFake{}
	web := &webFake{passages: []domain.Passage{
		{ID: "web:https://example.org/mfa", Text: "MFA rollout guide", Metadata: map[string]string{domain.MetaURL: "https://example.org/mfa"}},
		{ID: "web:empty"},
	}}
	uc := NewGuidanceUseCase(retriever, generator, web, ThresholdPolicy{MinPassages: 3}, 3, nil)

	got, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "mfa rollout", Mode: domain.GuidanceImplementation})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !got.UsedWebSearch || len(got.Sources) != 2 {
		t.Fatalf("expected one fused and one web source, got %+v", got.Sources)
	}
	if got.Sources[1].SourceMetadata[domain.MetaOrigin] != string(domain.OriginWeb) {
		t.Fatalf("expected web origin, got %+v", got.Sources[1].SourceMetadata)
	}
	if len(generator.sources) != 2 {
		t.Fatalf("generator must see web sources too")
	}
}

func TestGuidanceAnswerHidesRetrievalFailure(t *testing.T) {
	retriever := &retrieverFake{err: domain.WrapError(domain.ErrRetrievalUnavailable, "dense search", errors.New("qdrant down"))}
	generator := &generatorFake{}
	uc := NewGuidanceUseCase(retriever, generator, nil, nil, 3, nil)

	got, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "backup policy"})
	if err != nil {
		t.Fatalf("expected graceful answer, got %v", err)
	}
	if got.Text != NoGuidanceFound || !got.Degraded {
		t.Fatalf("expected no-guidance answer, got %+v", got)
	}
	if generator.calls != 0 {
		t.Fatalf("generator must not run without sources")
	}
}

func TestGuidanceAnswerPropagatesDegradedFlag(t *testing.T) {
	result := fusionResult("p1")
	result.Degraded = true
	result.Skipped = []domain.RankerName{domain.RankerCrossEncoder}
	uc := NewGuidanceUseCase(&retrieverFake{result: result}, &generatorFake{}, nil, nil, 3, nil)

	got, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "asset inventory"})
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !got.Degraded || len(got.Skipped) != 1 || got.Skipped[0] != domain.RankerCrossEncoder {
		t.Fatalf("expected degraded guidance, got %+v", got)
	}
}

func TestGuidanceAnswerRejectsInvalidRequests(t *testing.T) {
	uc := NewGuidanceUseCase(&retrieverFake{result: fusionResult()}, &generatorFake{}, nil, nil, 3, nil)

	if _, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "  "}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty question, got %v", err)
	}
	if _, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "x", Mode: "audit"}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for unknown mode, got %v", err)
	}

	badMode := &retrieverFake{err: domain.WrapError(domain.ErrInvalidQuery, "retrieve", errors.New(`unknown retrieval mode "sparse"`))}
	gen := &generatorFake{}
	uc = NewGuidanceUseCase(badMode, gen, nil, nil, 3, nil)
	if _, err := uc.Answer(context.Background(), domain.GuidanceRequest{Question: "x", Retrieval: "sparse"}); !domain.IsKind(err, domain.ErrInvalidQuery) {
		t.Fatalf("expected invalid query for unknown retrieval mode, got %v", err)
	}
	if gen.calls != 0 {
		t.Fatalf("generator must not run for a rejected query")
	}
}

func TestThresholdPolicy(t *testing.T) {
	p := ThresholdPolicy{MinPassages: 2, MinTopScore: 0.01}
	if !p.NeedsSupplementalSearch(&domain.FusionResult{}) {
		t.Fatalf("empty result needs web search")
	}
	if !p.NeedsSupplementalSearch(fusionResult("a")) {
		t.Fatalf("too few passages needs web search")
	}
	if p.NeedsSupplementalSearch(fusionResult("a", "b")) {
		t.Fatalf("enough passages above score threshold must not need web search")
	}
	low := fusionResult("a", "b")
	low.Passages[0].Score = 0.001
	if !p.NeedsSupplementalSearch(low) {
		t.Fatalf("low top score needs web search")
	}
}
