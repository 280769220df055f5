package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

const NoGuidanceFound = "No relevant guidance was found in the indexed security standards for this question."

type GuidanceUseCase struct {
	retriever  ports.PassageRetriever
	generator  ports.AnswerGenerator
	web        ports.WebSearcher
	policy     ports.SupplementalSearchPolicy
	webResults int
	logger     *slog.Logger
}

// NewGuidanceUseCase wires retrieval and generation. web may be nil, in which
// case the supplemental search policy is never consulted.
func NewGuidanceUseCase(
	retriever ports.PassageRetriever,
	generator ports.AnswerGenerator,
	web ports.WebSearcher,
	policy ports.SupplementalSearchPolicy,
	webResults int,
	logger *slog.Logger,
) *GuidanceUseCase {
	if policy == nil {
		policy = ThresholdPolicy{MinPassages: 1}
	}
	if webResults <= 0 {
		webResults = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GuidanceUseCase{
		retriever:  retriever,
		generator:  generator,
		web:        web,
		policy:     policy,
		webResults: webResults,
		logger:     logger,
	}
}

func (uc *GuidanceUseCase) Answer(ctx context.Context, req domain.GuidanceRequest) (*domain.Guidance, error) {
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer guidance", errors.New("question is required"))
	}
	switch req.Mode {
	case "":
		req.Mode = domain.GuidanceImplementation
	case domain.GuidanceAssessment, domain.GuidanceImplementation:
	default:
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer guidance", fmt.Errorf("unknown guidance mode %q", req.Mode))
	}

	result, err := uc.retriever.Retrieve(ctx, domain.Query{Text: req.Question, TopK: req.TopK, Mode: req.Retrieval})
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) || domain.IsKind(err, domain.ErrInvalidQuery) {
			return nil, err
		}
		uc.logger.Warn("guidance_retrieval_failed", "error", err)
		result = &domain.FusionResult{
			Passages: []domain.FusedPassage{},
			Degraded: true,
			Skipped:  []domain.RankerName{domain.RankerDense},
		}
	}

	sources := result.Citations()
	usedWeb := false
	if uc.web != nil && uc.policy.NeedsSupplementalSearch(result) {
		webSources, err := uc.searchWeb(ctx, req.Question)
		if err != nil {
			uc.logger.Warn("supplemental_search_failed", "error", err)
		} else if len(webSources) > 0 {
			sources = append(sources, webSources...)
			usedWeb = true
		}
	}

	guidance := &domain.Guidance{
		Sources:       sources,
		Degraded:      result.Degraded,
		Skipped:       result.Skipped,
		UsedWebSearch: usedWeb,
	}
	if len(sources) == 0 {
		guidance.Text = NoGuidanceFound
		return guidance, nil
	}

	text, err := uc.generator.GenerateGuidance(ctx, req, sources)
	if err != nil {
		return nil, fmt.Errorf("generate guidance: %w", err)
	}
	guidance.Text = text
	return guidance, nil
}

func (uc *GuidanceUseCase) searchWeb(ctx context.Context, question string) ([]domain.Citation, error) {
	passages, err := uc.web.Search(ctx, question, uc.webResults)
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}
	out := make([]domain.Citation, 0, len(passages))
	for _, p := range passages {
		if !p.Resolvable() {
			continue
		}
		meta := domain.CloneMetadata(p.Metadata)
		meta[domain.MetaOrigin] = string(domain.OriginWeb)
		out = append(out, domain.Citation{PassageID: p.ID, Text: p.Text, SourceMetadata: meta})
	}
	return out, nil
}
