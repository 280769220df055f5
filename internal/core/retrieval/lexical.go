package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/secguide/internal/core/domain"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// PassageLister is the part of the passage store a lexical rebuild needs.
type PassageLister interface {
	ListAllPassages(ctx context.Context) ([]domain.Passage, error)
}

type posting struct {
	doc int
	tf  int
}

// LexicalSnapshot is an immutable BM25 index over one version of the corpus.
// It keeps the analyzer it was built with so queries are tokenized the same
// way as the passages.
type LexicalSnapshot struct {
	generation uint64
	builtAt    time.Time
	analyzer   *Analyzer
	passages   []domain.Passage
	docLens    []int
	avgDocLen  float64
	postings   map[string][]posting
}

func BuildLexicalSnapshot(passages []domain.Passage, analyzer *Analyzer) *LexicalSnapshot {
	if analyzer == nil {
		analyzer = NewAnalyzer()
	}
	s := &LexicalSnapshot{
		builtAt:  time.Now().UTC(),
		analyzer: analyzer,
		passages: make([]domain.Passage, 0, len(passages)),
		docLens:  make([]int, 0, len(passages)),
		postings: make(map[string][]posting),
	}

	seen := make(map[string]struct{}, len(passages))
	total := 0
	for _, p := range passages {
		if !p.Resolvable() {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}

		doc := len(s.passages)
		tokens := analyzer.Tokenize(p.Text)
		tf := make(map[string]int, len(tokens))
		terms := make([]string, 0, len(tokens))
		for _, t := range tokens {
			if tf[t] == 0 {
				terms = append(terms, t)
			}
			tf[t]++
		}
		for _, t := range terms {
			s.postings[t] = append(s.postings[t], posting{doc: doc, tf: tf[t]})
		}
		s.passages = append(s.passages, p)
		s.docLens = append(s.docLens, len(tokens))
		total += len(tokens)
	}
	if len(s.passages) > 0 {
		s.avgDocLen = float64(total) / float64(len(s.passages))
	}
	return s
}

func (s *LexicalSnapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.passages)
}

func (s *LexicalSnapshot) Generation() uint64 {
	return s.generation
}

func (s *LexicalSnapshot) BuiltAt() time.Time {
	return s.builtAt
}

// Search scores every passage sharing at least one term with the query.
// Passages without overlap are absent rather than scored zero.
func (s *LexicalSnapshot) Search(query string, n int) []domain.Candidate {
	if s.Len() == 0 || n <= 0 {
		return []domain.Candidate{}
	}
	terms := uniqueTerms(s.analyzer.Tokenize(query))
	if len(terms) == 0 {
		return []domain.Candidate{}
	}

	N := float64(len(s.passages))
	scores := make(map[int]float64)
	for _, term := range terms {
		plist := s.postings[term]
		if len(plist) == 0 {
			continue
		}
		df := float64(len(plist))
		idf := math.Log((N-df+0.5)/(df+0.5) + 1)
		for _, p := range plist {
			tf := float64(p.tf)
			norm := 1.0
			if s.avgDocLen > 0 {
				norm = 1 - bm25B + bm25B*float64(s.docLens[p.doc])/s.avgDocLen
			}
			scores[p.doc] += idf * (tf * (bm25K1 + 1)) / (tf + bm25K1*norm)
		}
	}

	out := make([]domain.Candidate, 0, len(scores))
	for doc, score := range scores {
		out = append(out, domain.Candidate{Passage: s.passages[doc], Score: score})
	}
	return domain.NewRankedList(domain.RankerLexical, out).Head(n).Candidates
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// LexicalRanker serves BM25 queries from the current snapshot. Rebuilds
// build a new snapshot off to the side and swap it in atomically; readers
// never block on a rebuild.
type LexicalRanker struct {
	analyzer *Analyzer
	logger   *slog.Logger

	current atomic.Pointer[LexicalSnapshot]
	changes atomic.Uint64

	rebuildMu sync.Mutex
}

func NewLexicalRanker(analyzer *Analyzer, logger *slog.Logger) *LexicalRanker {
	if analyzer == nil {
		analyzer = NewAnalyzer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LexicalRanker{analyzer: analyzer, logger: logger}
}

// Invalidate records that the corpus changed. Until a snapshot built after
// this call is swapped in, Rank reports the index as unavailable.
func (r *LexicalRanker) Invalidate() {
	r.changes.Add(1)
}

// Load builds a snapshot from the given passages and swaps it in.
func (r *LexicalRanker) Load(passages []domain.Passage) *LexicalSnapshot {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()
	return r.swap(passages, r.changes.Load())
}

// Rebuild lists the whole corpus and swaps in a fresh snapshot.
func (r *LexicalRanker) Rebuild(ctx context.Context, lister PassageLister) (*LexicalSnapshot, error) {
	r.rebuildMu.Lock()
	defer r.rebuildMu.Unlock()

	generation := r.changes.Load()
	passages, err := lister.ListAllPassages(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrRetrievalUnavailable, "rebuild lexical index", err)
	}
	return r.swap(passages, generation), nil
}

func (r *LexicalRanker) swap(passages []domain.Passage, generation uint64) *LexicalSnapshot {
	snap := BuildLexicalSnapshot(passages, r.analyzer)
	snap.generation = generation
	r.current.Store(snap)

	if snap.Len() == 0 {
		r.logger.Warn("lexical_snapshot_swapped", "passages", 0, "generation", generation, "warning", domain.ErrEmptyCorpus.Error())
	} else {
		r.logger.Info("lexical_snapshot_swapped", "passages", snap.Len(), "terms", len(snap.postings), "generation", generation)
	}
	return snap
}

func (r *LexicalRanker) Snapshot() *LexicalSnapshot {
	return r.current.Load()
}

// Stale reports whether a corpus change has not been indexed yet.
func (r *LexicalRanker) Stale() bool {
	snap := r.current.Load()
	return snap == nil || snap.generation < r.changes.Load()
}

func (r *LexicalRanker) Rank(ctx context.Context, query string, n int) (domain.RankedList, error) {
	empty := domain.RankedList{Ranker: domain.RankerLexical, Candidates: []domain.Candidate{}}
	if err := ctx.Err(); err != nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical rank", err)
	}

	snap := r.current.Load()
	if snap == nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical rank", fmt.Errorf("index not built"))
	}
	if pending := r.changes.Load(); snap.generation < pending {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical rank", fmt.Errorf("index generation %d behind corpus generation %d", snap.generation, pending))
	}

	candidates := snap.Search(query, n)
	if err := ctx.Err(); err != nil {
		return empty, domain.WrapError(domain.ErrRetrievalUnavailable, "lexical rank", err)
	}
	return domain.RankedList{Ranker: domain.RankerLexical, Candidates: candidates}, nil
}
