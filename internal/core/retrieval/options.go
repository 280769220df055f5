package retrieval

import (
	"fmt"
	"math"
	"time"

	"github.com/kirillkom/secguide/internal/core/domain"
)

const (
	DefaultRRFK                      = 60
	DefaultTopK                      = 3
	DefaultPoolMultiplier            = 5
	DefaultCrossEncoderMaxCandidates = 50
	DefaultDenseTimeout              = 10 * time.Second
	DefaultLexicalTimeout            = 5 * time.Second
	DefaultCrossEncoderTimeout       = 15 * time.Second

	weightSumTolerance = 1e-9
)

// Weights are the per-ranker fusion weights. They must be non-negative and
// sum to 1.
type Weights struct {
	Dense        float64 `yaml:"dense" json:"dense"`
	Lexical      float64 `yaml:"lexical" json:"lexical"`
	CrossEncoder float64 `yaml:"cross_encoder" json:"cross_encoder"`
}

func DefaultWeights() Weights {
	return Weights{Dense: 0.4, Lexical: 0.3, CrossEncoder: 0.3}
}

func (w Weights) For(ranker domain.RankerName) float64 {
	switch ranker {
	case domain.RankerDense:
		return w.Dense
	case domain.RankerLexical:
		return w.Lexical
	case domain.RankerCrossEncoder:
		return w.CrossEncoder
	default:
		return 0
	}
}

func (w Weights) Sum() float64 {
	return w.Dense + w.Lexical + w.CrossEncoder
}

// Options is the validated retrieval configuration. Zero values for sizes
// mean "derive from top_k".
type Options struct {
	DefaultTopK int
	// CandidatePoolSize is the per-ranker depth in hybrid mode. Zero means
	// PoolMultiplier * top_k.
	CandidatePoolSize int
	PoolMultiplier    int
	// CrossEncoderOutputSize is how many reranked candidates enter fusion.
	// Zero means max(top_k, pool/2).
	CrossEncoderOutputSize    int
	CrossEncoderMaxCandidates int
	Weights                   Weights
	RRFK                      int

	DenseTimeout        time.Duration
	LexicalTimeout      time.Duration
	CrossEncoderTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		DefaultTopK:               DefaultTopK,
		PoolMultiplier:            DefaultPoolMultiplier,
		CrossEncoderMaxCandidates: DefaultCrossEncoderMaxCandidates,
		Weights:                   DefaultWeights(),
		RRFK:                      DefaultRRFK,
		DenseTimeout:              DefaultDenseTimeout,
		LexicalTimeout:            DefaultLexicalTimeout,
		CrossEncoderTimeout:       DefaultCrossEncoderTimeout,
	}
}

// WithoutCrossEncoder spreads the cross-encoder weight over dense and
// lexical in proportion to their own weights.
func (o Options) WithoutCrossEncoder() Options {
	out := o
	base := o.Weights.Dense + o.Weights.Lexical
	if base <= 0 {
		out.Weights = Weights{Dense: 0.5, Lexical: 0.5}
		return out
	}
	out.Weights = Weights{
		Dense:   o.Weights.Dense / base,
		Lexical: o.Weights.Lexical / base,
	}
	return out
}

func (o Options) Validate() error {
	w := o.Weights
	for _, item := range []struct {
		name  string
		value float64
	}{
		{"dense", w.Dense},
		{"lexical", w.Lexical},
		{"cross_encoder", w.CrossEncoder},
	} {
		if item.value < 0 || math.IsNaN(item.value) || math.IsInf(item.value, 0) {
			return domain.WrapError(domain.ErrInvalidConfig, "validate options", fmt.Errorf("weight %s must be a non-negative number, got %v", item.name, item.value))
		}
	}
	if math.Abs(w.Sum()-1) > weightSumTolerance {
		return domain.WrapError(domain.ErrInvalidConfig, "validate options", fmt.Errorf("fusion weights must sum to 1, got %v", w.Sum()))
	}
	if o.RRFK <= 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "validate options", fmt.Errorf("rrf_k must be positive, got %d", o.RRFK))
	}
	if o.CandidatePoolSize < 0 || o.CrossEncoderOutputSize < 0 || o.PoolMultiplier < 0 || o.CrossEncoderMaxCandidates < 0 || o.DefaultTopK < 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "validate options", fmt.Errorf("sizes must not be negative"))
	}
	if o.DenseTimeout < 0 || o.LexicalTimeout < 0 || o.CrossEncoderTimeout < 0 {
		return domain.WrapError(domain.ErrInvalidConfig, "validate options", fmt.Errorf("timeouts must not be negative"))
	}
	return nil
}

func (o Options) normalize() Options {
	out := o
	def := DefaultOptions()
	if out.DefaultTopK == 0 {
		out.DefaultTopK = def.DefaultTopK
	}
	if out.PoolMultiplier == 0 {
		out.PoolMultiplier = def.PoolMultiplier
	}
	if out.CrossEncoderMaxCandidates == 0 {
		out.CrossEncoderMaxCandidates = def.CrossEncoderMaxCandidates
	}
	if out.DenseTimeout == 0 {
		out.DenseTimeout = def.DenseTimeout
	}
	if out.LexicalTimeout == 0 {
		out.LexicalTimeout = def.LexicalTimeout
	}
	if out.CrossEncoderTimeout == 0 {
		out.CrossEncoderTimeout = def.CrossEncoderTimeout
	}
	return out
}

func (o Options) poolSize(q domain.Query, topK int) int {
	pool := q.CandidatePoolSize
	if pool <= 0 {
		pool = o.CandidatePoolSize
	}
	if pool <= 0 {
		pool = o.PoolMultiplier * topK
	}
	if pool < topK {
		pool = topK
	}
	return pool
}

func (o Options) crossEncoderOutput(pool, topK int) int {
	if o.CrossEncoderOutputSize > 0 {
		if o.CrossEncoderOutputSize > pool {
			return pool
		}
		return o.CrossEncoderOutputSize
	}
	m := pool / 2
	if m < topK {
		m = topK
	}
	return m
}
