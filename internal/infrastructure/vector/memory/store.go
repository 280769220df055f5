package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// Store keeps passages in process and answers vector queries by exhaustive
// cosine similarity. It backs VECTOR_STORE_MODE=memory.
type Store struct {
	mu       sync.RWMutex
	passages map[string]domain.Passage
}

func New() *Store {
	return &Store{passages: make(map[string]domain.Passage)}
}

func (s *Store) UpsertPassages(_ context.Context, passages []domain.Passage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range passages {
		stored := p
		stored.Metadata = domain.CloneMetadata(p.Metadata)
		stored.Embedding = append([]float32(nil), p.Embedding...)
		s.passages[p.ID] = stored
	}
	return nil
}

func (s *Store) SearchByVector(ctx context.Context, vector []float32, limit int) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.Candidate{}, nil
	}

	s.mu.RLock()
	out := make([]domain.Candidate, 0, len(s.passages))
	for _, p := range s.passages {
		if len(p.Embedding) != len(vector) {
			continue
		}
		out = append(out, domain.Candidate{Passage: p, Score: cosine(vector, p.Embedding)})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListAllPassages(ctx context.Context) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]domain.Passage, 0, len(s.passages))
	for _, p := range s.passages {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetByIDs(_ context.Context, ids []string) ([]domain.Passage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Passage, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.passages[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
