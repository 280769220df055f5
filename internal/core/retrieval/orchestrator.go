package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/secguide/internal/core/domain"
)

type Ranker interface {
	Rank(ctx context.Context, query string, n int) (domain.RankedList, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, input domain.RankedList, m int) (domain.RankedList, error)
}

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Observer receives timing of each ranker call and of whole retrievals.
type Observer interface {
	ObserveRanker(ranker domain.RankerName, outcome string, elapsed time.Duration)
	ObserveRetrieval(mode domain.RetrievalMode, degraded bool, passages int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRanker(domain.RankerName, string, time.Duration) {}
func (nopObserver) ObserveRetrieval(domain.RetrievalMode, bool, int, time.Duration) {}

type Orchestrator struct {
	dense    Ranker
	lexical  Ranker
	reranker Reranker

	opts        Options
	defaultMode domain.RetrievalMode
	fusion      *Fusion
	logger      *slog.Logger
	observer    Observer
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithObserver(observer Observer) OrchestratorOption {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observer = observer
		}
	}
}

func WithDefaultMode(mode domain.RetrievalMode) OrchestratorOption {
	return func(o *Orchestrator) {
		if parsed, ok := domain.ParseRetrievalMode(string(mode)); ok {
			o.defaultMode = parsed
		}
	}
}

// NewOrchestrator validates opts and wires the rankers. dense is required;
// lexical and reranker may be nil, in which case hybrid mode runs without
// them and the result is not marked degraded.
func NewOrchestrator(dense Ranker, lexical Ranker, reranker Reranker, opts Options, options ...OrchestratorOption) (*Orchestrator, error) {
	if dense == nil {
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new orchestrator", fmt.Errorf("dense ranker is required"))
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.normalize()

	o := &Orchestrator{
		dense:       dense,
		lexical:     lexical,
		reranker:    reranker,
		opts:        opts,
		defaultMode: domain.ModeHybrid,
		logger:      slog.Default(),
		observer:    nopObserver{},
	}
	for _, option := range options {
		option(o)
	}
	o.fusion = NewFusion(opts.Weights, opts.RRFK, o.logger)
	return o, nil
}

func (o *Orchestrator) Options() Options {
	return o.opts
}

func (o *Orchestrator) Retrieve(ctx context.Context, q domain.Query) (*domain.FusionResult, error) {
	mode := o.defaultMode
	if strings.TrimSpace(string(q.Mode)) != "" {
		parsed, ok := domain.ParseRetrievalMode(string(q.Mode))
		if !ok {
			return nil, domain.WrapError(domain.ErrInvalidQuery, "retrieve", fmt.Errorf("unknown retrieval mode %q", q.Mode))
		}
		mode = parsed
	}

	text := strings.TrimSpace(q.Text)
	if text == "" {
		o.logger.Debug("retrieval_query_rejected", "reason", domain.ErrInvalidQuery.Error())
		return &domain.FusionResult{Mode: mode, Passages: []domain.FusedPassage{}}, nil
	}

	topK := q.TopK
	if topK <= 0 {
		topK = o.opts.DefaultTopK
	}

	start := time.Now()
	var (
		result *domain.FusionResult
		err    error
	)
	switch mode {
	case domain.ModeSimple:
		result, err = o.retrieveSimple(ctx, text, topK)
	default:
		result, err = o.retrieveHybrid(ctx, q, text, topK)
	}
	if err != nil {
		return nil, err
	}
	o.observer.ObserveRetrieval(mode, result.Degraded, len(result.Passages), time.Since(start))
	return result, nil
}

// retrieveSimple is the dense-only baseline: its output is the dense
// ranker's top_k unchanged, scored with the raw similarity.
func (o *Orchestrator) retrieveSimple(ctx context.Context, text string, topK int) (*domain.FusionResult, error) {
	list, err := o.callRanker(ctx, o.dense, domain.RankerDense, text, topK, o.opts.DenseTimeout)
	if err != nil {
		return nil, asUnavailable("dense rank", err)
	}

	passages := make([]domain.FusedPassage, 0, list.Len())
	for i, c := range list.Candidates {
		if !c.Passage.Resolvable() {
			o.logger.Warn("fusion_input_mismatch", "ranker", string(domain.RankerDense), "passage_id", c.Passage.ID)
			continue
		}
		passages = append(passages, domain.FusedPassage{
			Passage:     c.Passage,
			Score:       c.Score,
			Appearances: 1,
			Ranks:       map[domain.RankerName]int{domain.RankerDense: i + 1},
		})
	}
	return &domain.FusionResult{Mode: domain.ModeSimple, Passages: passages}, nil
}

func (o *Orchestrator) retrieveHybrid(ctx context.Context, q domain.Query, text string, topK int) (*domain.FusionResult, error) {
	pool := o.opts.poolSize(q, topK)

	var (
		denseList, lexicalList, rerankedList domain.RankedList
		lexicalErr, rerankErr                error
		reranked                             bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := o.callRanker(gctx, o.dense, domain.RankerDense, text, pool, o.opts.DenseTimeout)
		if err != nil {
			return asUnavailable("dense rank", err)
		}
		denseList = list
		if o.reranker == nil || list.Len() == 0 {
			return nil
		}
		m := o.opts.crossEncoderOutput(pool, topK)
		rerankedList, rerankErr = o.callReranker(gctx, text, list, m)
		reranked = true
		return nil
	})
	if o.lexical != nil {
		g.Go(func() error {
			lexicalList, lexicalErr = o.callRanker(gctx, o.lexical, domain.RankerLexical, text, pool, o.opts.LexicalTimeout)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &domain.FusionResult{Mode: domain.ModeHybrid}
	lists := []domain.RankedList{denseList}
	if o.lexical != nil {
		if lexicalErr != nil {
			o.skip(result, domain.RankerLexical, lexicalErr)
		} else {
			lists = append(lists, lexicalList)
		}
	}
	if reranked {
		if rerankErr != nil {
			o.skip(result, domain.RankerCrossEncoder, rerankErr)
		} else {
			lists = append(lists, rerankedList)
		}
	}

	result.Passages = o.fusion.Fuse(lists, topK)
	return result, nil
}

func (o *Orchestrator) skip(result *domain.FusionResult, ranker domain.RankerName, err error) {
	result.Degraded = true
	result.Skipped = append(result.Skipped, ranker)
	o.logger.Warn("ranker_skipped", "ranker", string(ranker), "status", "skipped", "error", err)
}

func (o *Orchestrator) callRanker(ctx context.Context, r Ranker, name domain.RankerName, text string, n int, timeout time.Duration) (domain.RankedList, error) {
	start := time.Now()
	list, err := callWithTimeout(ctx, timeout, func(callCtx context.Context) (domain.RankedList, error) {
		return r.Rank(callCtx, text, n)
	})
	o.observer.ObserveRanker(name, outcome(err), time.Since(start))
	if err != nil {
		return domain.RankedList{Ranker: name}, err
	}
	list.Ranker = name
	return list, nil
}

func (o *Orchestrator) callReranker(ctx context.Context, text string, input domain.RankedList, m int) (domain.RankedList, error) {
	start := time.Now()
	list, err := callWithTimeout(ctx, o.opts.CrossEncoderTimeout, func(callCtx context.Context) (domain.RankedList, error) {
		return o.reranker.Rerank(callCtx, text, input, m)
	})
	o.observer.ObserveRanker(domain.RankerCrossEncoder, outcome(err), time.Since(start))
	if err != nil {
		return domain.RankedList{Ranker: domain.RankerCrossEncoder}, err
	}
	list.Ranker = domain.RankerCrossEncoder
	return list, nil
}

// callWithTimeout bounds fn by timeout even when fn ignores its context.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type callResult struct {
		value T
		err   error
	}
	done := make(chan callResult, 1)
	go func() {
		v, err := fn(callCtx)
		done <- callResult{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		var zero T
		return zero, domain.WrapError(domain.ErrRetrievalUnavailable, "ranker call", callCtx.Err())
	}
}

func asUnavailable(op string, err error) error {
	if domain.IsKind(err, domain.ErrRetrievalUnavailable) {
		return err
	}
	return domain.WrapError(domain.ErrRetrievalUnavailable, op, err)
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
