package retrieval

import (
	"context"
	"fmt"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

// DenseRanker embeds the query and asks the passage store for its nearest
// neighbours.
type DenseRanker struct {
	embedder ports.Embedder
	store    ports.PassageStore
}

func NewDenseRanker(embedder ports.Embedder, store ports.PassageStore) *DenseRanker {
	return &DenseRanker{embedder: embedder, store: store}
}

func (r *DenseRanker) Rank(ctx context.Context, query string, n int) (domain.RankedList, error) {
	empty := domain.RankedList{Ranker: domain.RankerDense, Candidates: []domain.Candidate{}}
	if n <= 0 {
		return empty, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "dense embed query", err)
	}
	if len(vector) == 0 {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "dense embed query", fmt.Errorf("empty query vector"))
	}

	candidates, err := r.store.SearchByVector(ctx, vector, n)
	if err != nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "dense search", err)
	}
	candidates, err = r.hydrate(ctx, candidates)
	if err != nil {
		return empty, err
	}

	return domain.NewRankedList(domain.RankerDense, candidates).Head(n), nil
}

// hydrate fills in passages the store returned without text. Ids the store
// cannot resolve stay empty and are dropped later by fusion.
func (r *DenseRanker) hydrate(ctx context.Context, candidates []domain.Candidate) ([]domain.Candidate, error) {
	missing := make([]string, 0)
	for _, c := range candidates {
		if c.Passage.ID != "" && c.Passage.Text == "" {
			missing = append(missing, c.Passage.ID)
		}
	}
	if len(missing) == 0 {
		return candidates, nil
	}

	passages, err := r.store.GetByIDs(ctx, missing)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "dense resolve passages", err)
	}
	byID := make(map[string]domain.Passage, len(passages))
	for _, p := range passages {
		byID[p.ID] = p
	}

	out := make([]domain.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if out[i].Passage.Text != "" {
			continue
		}
		if p, ok := byID[out[i].Passage.ID]; ok {
			out[i].Passage = p
		}
	}
	return out, nil
}
