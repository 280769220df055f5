package retrieval

import (
	"log/slog"
	"sort"

	"github.com/kirillkom/secguide/internal/core/domain"
)

// Fusion merges ranked lists with weighted reciprocal rank fusion:
// every appearance of a passage at rank r in list i adds w_i/(k+r).
type Fusion struct {
	weights Weights
	k       int
	logger  *slog.Logger
}

func NewFusion(weights Weights, k int, logger *slog.Logger) *Fusion {
	if k <= 0 {
		k = DefaultRRFK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fusion{weights: weights, k: k, logger: logger}
}

type fusedEntry struct {
	passage     domain.Passage
	score       float64
	appearances int
	ranks       map[domain.RankerName]int
}

// Fuse returns at most topK passages ordered by fused score, then by the
// number of lists a passage appeared in, then by passage id. Entries that do
// not resolve to passage text are logged and dropped. The output depends only
// on the input lists, never on map iteration order.
func (f *Fusion) Fuse(lists []domain.RankedList, topK int) []domain.FusedPassage {
	if topK <= 0 {
		return []domain.FusedPassage{}
	}

	acc := make(map[string]*fusedEntry)
	order := make([]string, 0)
	for _, list := range lists {
		weight := f.weights.For(list.Ranker)
		seen := make(map[string]struct{}, len(list.Candidates))
		for i, c := range list.Candidates {
			if !c.Passage.Resolvable() {
				f.logger.Warn("fusion_input_mismatch",
					"ranker", string(list.Ranker),
					"passage_id", c.Passage.ID,
					"error", domain.ErrFusionInputMismatch.Error(),
				)
				continue
			}
			id := c.Passage.ID
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			rank := c.Rank
			if rank <= 0 {
				rank = i + 1
			}

			entry, ok := acc[id]
			if !ok {
				entry = &fusedEntry{passage: c.Passage, ranks: make(map[domain.RankerName]int, len(lists))}
				acc[id] = entry
				order = append(order, id)
			}
			entry.score += weight / float64(f.k+rank)
			entry.appearances++
			entry.ranks[list.Ranker] = rank
		}
	}

	out := make([]domain.FusedPassage, 0, len(order))
	for _, id := range order {
		e := acc[id]
		out = append(out, domain.FusedPassage{
			Passage:     e.passage,
			Score:       e.score,
			Appearances: e.appearances,
			Ranks:       e.ranks,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Appearances != out[j].Appearances {
			return out[i].Appearances > out[j].Appearances
		}
		return out[i].Passage.ID < out[j].Passage.ID
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
