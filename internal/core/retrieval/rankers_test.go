package retrieval

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return f.vector, f.err
}

type fakeStore struct {
	candidates []domain.Candidate
	byID       map[string]domain.Passage
	searchErr  error
	gotLimit   int
	gotIDs     []string
}

func (f *fakeStore) SearchByVector(_ context.Context, _ []float32, limit int) ([]domain.Candidate, error) {
	f.gotLimit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.candidates, nil
}

func (f *fakeStore) ListAllPassages(context.Context) ([]domain.Passage, error) {
	out := make([]domain.Passage, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []string) ([]domain.Passage, error) {
	f.gotIDs = append(f.gotIDs, ids...)
	out := make([]domain.Passage, 0, len(ids))
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeScorer struct {
	scores map[string]float64
	err    error
	got    []string
}

func (f *fakeScorer) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.got = texts
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(texts))
	for i, text := range texts {
		out[i] = f.scores[text]
	}
	return out, nil
}

func TestDenseRankerOrdersAndHydrates(t *testing.T) {
	store := &fakeStore{
		candidates: []domain.Candidate{
			{Passage: domain.Passage{ID: "b"}, Score: 0.7},
			{Passage: passage("a"), Score: 0.9},
			{Passage: passage("c"), Score: 0.7},
		},
		byID: map[string]domain.Passage{"b": passage("b")},
	}
	ranker := NewDenseRanker(&fakeEmbedder{vector: []float32{1, 0}}, store)

	list, err := ranker.Rank(context.Background(), "asset inventory", 3)
	if err != nil {
		t.Fatalf("rank: %v", err)
	}
	got := []string{}
	for _, c := range list.Candidates {
		got = append(got, c.Passage.ID)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected order: %v", got)
	}
	if list.Candidates[1].Passage.Text == "" {
		t.Fatalf("expected passage b to be resolved by id")
	}
	if !reflect.DeepEqual(store.gotIDs, []string{"b"}) || store.gotLimit != 3 {
		t.Fatalf("unexpected store calls: ids=%v limit=%d", store.gotIDs, store.gotLimit)
	}
}

func TestDenseRankerWrapsStoreFailure(t *testing.T) {
	ranker := NewDenseRanker(&fakeEmbedder{vector: []float32{1}}, &fakeStore{searchErr: errors.New("dial tcp: refused")})
	_, err := ranker.Rank(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected retrieval unavailable, got %v", err)
	}

	ranker = NewDenseRanker(&fakeEmbedder{err: errors.New("ollama down")}, &fakeStore{})
	_, err = ranker.Rank(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected retrieval unavailable on embed failure, got %v", err)
	}
}

func TestCrossEncoderRerankCapsInputAndOutput(t *testing.T) {
	scorer := &fakeScorer{scores: map[string]float64{
		"text of a": 0.1,
		"text of b": 0.9,
		"text of c": 0.5,
		"text of d": 0.99,
	}}
	reranker := NewCrossEncoderReranker(scorer, 3)

	list, err := reranker.Rerank(context.Background(), "q", rankedIDs(domain.RankerDense, "a", "b", "c", "d"), 2)
	if err != nil {
		t.Fatalf("rerank: %v", err)
	}
	if len(scorer.got) != 3 {
		t.Fatalf("expected scorer input capped at 3, got %d", len(scorer.got))
	}
	if list.Ranker != domain.RankerCrossEncoder || list.Len() != 2 {
		t.Fatalf("unexpected reranked list: %+v", list)
	}
	if list.Candidates[0].Passage.ID != "b" || list.Candidates[0].Rank != 1 || list.Candidates[1].Passage.ID != "c" {
		t.Fatalf("unexpected reranked order: %+v", list.Candidates)
	}
}

func TestCrossEncoderRerankFailsSoft(t *testing.T) {
	reranker := NewCrossEncoderReranker(&fakeScorer{err: errors.New("429 too many requests")}, 10)
	_, err := reranker.Rerank(context.Background(), "q", rankedIDs(domain.RankerDense, "a"), 1)
	if !domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		t.Fatalf("expected unavailable error for orchestrator to degrade on, got %v", err)
	}
}
