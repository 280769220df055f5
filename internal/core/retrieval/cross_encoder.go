package retrieval

import (
	"context"
	"fmt"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// CrossEncoderReranker rescores a bounded candidate list with a joint
// query-passage model.
type CrossEncoderReranker struct {
	scorer        ports.CrossEncoderScorer
	maxCandidates int
}

func NewCrossEncoderReranker(scorer ports.CrossEncoderScorer, maxCandidates int) *CrossEncoderReranker {
	if maxCandidates <= 0 {
		maxCandidates = DefaultCrossEncoderMaxCandidates
	}
	return &CrossEncoderReranker{scorer: scorer, maxCandidates: maxCandidates}
}

// Rerank returns at most m candidates ordered by the scorer, ranked from 1.
// Input beyond the configured cap is not sent to the scorer.
func (r *CrossEncoderReranker) Rerank(ctx context.Context, query string, input domain.RankedList, m int) (domain.RankedList, error) {
	empty := domain.RankedList{Ranker: domain.RankerCrossEncoder, Candidates: []domain.Candidate{}}

	head := make([]domain.Candidate, 0, len(input.Candidates))
	for _, c := range input.Candidates {
		if !c.Passage.Resolvable() {
			continue
		}
		head = append(head, c)
		if len(head) == r.maxCandidates {
			break
		}
	}
	if len(head) == 0 || m <= 0 {
		return empty, nil
	}

	texts := make([]string, len(head))
	for i, c := range head {
		texts[i] = c.Passage.Text
	}
	scores, err := r.scorer.Score(ctx, query, texts)
	if err != nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "cross-encoder score", err)
	}
	if len(scores) != len(texts) {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "cross-encoder score", fmt.Errorf("got %d scores for %d passages", len(scores), len(texts)))
	}

	rescored := make([]domain.Candidate, len(head))
	for i, c := range head {
		rescored[i] = domain.Candidate{Passage: c.Passage, Score: scores[i]}
	}
	return domain.NewRankedList(domain.RankerCrossEncoder, rescored).Head(m), nil
}
