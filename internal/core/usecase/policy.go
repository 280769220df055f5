package usecase

import "github.com/kirillkom/secguide/internal/core/domain"

// ThresholdPolicy asks for web results when retrieval returned fewer than
// MinPassages passages or the best fused score is below MinTopScore.
// A zero MinTopScore disables the score check.
type ThresholdPolicy struct {
	MinPassages int
	MinTopScore float64
}

func (p ThresholdPolicy) NeedsSupplementalSearch(result *domain.FusionResult) bool {
	if result.Len() < p.MinPassages || result.Len() == 0 {
		return true
	}
	return p.MinTopScore > 0 && result.TopScore() < p.MinTopScore
}

// PolicyFunc adapts a plain function to ports.SupplementalSearchPolicy.
type PolicyFunc func(result *domain.FusionResult) bool

func (f PolicyFunc) NeedsSupplementalSearch(result *domain.FusionResult) bool {
	return f(result)
}
