package domain

import (
	"sort"
	"strings"
)

type RankerName string

const (
	RankerDense        RankerName = "dense"
	RankerLexical      RankerName = "lexical"
	RankerCrossEncoder RankerName = "cross_encoder"
)

type RetrievalMode string

const (
	ModeSimple RetrievalMode = "simple"
	ModeHybrid RetrievalMode = "hybrid"
)

func ParseRetrievalMode(raw string) (RetrievalMode, bool) {
	switch RetrievalMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSimple:
		return ModeSimple, true
	case ModeHybrid:
		return ModeHybrid, true
	default:
		return "", false
	}
}

// Candidate is a passage as scored by one ranker. Scores are only
// comparable within the list that produced them.
type Candidate struct {
	Passage Passage `json:"passage"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

type RankedList struct {
	Ranker     RankerName  `json:"ranker"`
	Candidates []Candidate `json:"candidates"`
}

// NewRankedList orders candidates by score descending with ties broken by
// passage id, then assigns ranks starting at 1.
func NewRankedList(ranker RankerName, candidates []Candidate) RankedList {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Passage.ID < out[j].Passage.ID
		}
		return out[i].Score > out[j].Score
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return RankedList{Ranker: ranker, Candidates: out}
}

func (l RankedList) Len() int {
	return len(l.Candidates)
}

// Head returns the first n candidates of the list.
func (l RankedList) Head(n int) RankedList {
	if n < 0 {
		n = 0
	}
	if n >= len(l.Candidates) {
		return l
	}
	return RankedList{Ranker: l.Ranker, Candidates: l.Candidates[:n]}
}

type Query struct {
	Text              string        `json:"query"`
	TopK              int           `json:"top_k"`
	CandidatePoolSize int           `json:"candidate_pool_size,omitempty"`
	Mode              RetrievalMode `json:"mode"`
}

type FusedPassage struct {
	Passage     Passage            `json:"passage"`
	Score       float64            `json:"fused_score"`
	Appearances int                `json:"appearances"`
	Ranks       map[RankerName]int `json:"ranks,omitempty"`
}

type FusionResult struct {
	Mode     RetrievalMode  `json:"mode"`
	Passages []FusedPassage `json:"passages"`
	Degraded bool           `json:"degraded"`
	Skipped  []RankerName   `json:"skipped,omitempty"`
}

func (r *FusionResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Passages)
}

// TopScore is the fused score of the best passage, zero for empty results.
func (r *FusionResult) TopScore() float64 {
	if r.Len() == 0 {
		return 0
	}
	return r.Passages[0].Score
}

func (r *FusionResult) IDs() []string {
	if r == nil {
		return nil
	}
	ids := make([]string, 0, len(r.Passages))
	for _, p := range r.Passages {
		ids = append(ids, p.Passage.ID)
	}
	return ids
}

// Citation is the shape handed to answer generation and API clients.
type Citation struct {
	PassageID      string            `json:"passage_id"`
	Text           string            `json:"text"`
	SourceMetadata map[string]string `json:"source_metadata"`
	FusedScore     float64           `json:"fused_score"`
}

func (r *FusionResult) Citations() []Citation {
	if r == nil {
		return []Citation{}
	}
	out := make([]Citation, 0, len(r.Passages))
	for _, p := range r.Passages {
		out = append(out, Citation{
			PassageID:      p.Passage.ID,
			Text:           p.Passage.Text,
			SourceMetadata: CloneMetadata(p.Passage.Metadata),
			FusedScore:     p.Score,
		})
	}
	return out
}
