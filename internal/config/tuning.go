package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/retrieval"
)

// tuningFile mirrors the optional YAML overlay. Pointer fields distinguish
// "absent" from an explicit zero.
type tuningFile struct {
	DefaultTopK               *int               `yaml:"default_top_k"`
	CandidatePoolSize         *int               `yaml:"candidate_pool_size"`
	PoolMultiplier            *int               `yaml:"pool_multiplier"`
	CrossEncoderOutputSize    *int               `yaml:"cross_encoder_output_size"`
	CrossEncoderMaxCandidates *int               `yaml:"cross_encoder_max_candidates"`
	RRFK                      *int               `yaml:"rrf_k"`
	FusionWeights             *retrieval.Weights `yaml:"fusion_weights"`
	Timeouts                  struct {
		Dense        string `yaml:"dense"`
		Lexical      string `yaml:"lexical"`
		CrossEncoder string `yaml:"cross_encoder"`
	} `yaml:"timeouts"`
}

// ApplyTuningFile overlays the YAML file at path onto opts. An empty path
// returns opts unchanged.
func ApplyTuningFile(path string, opts retrieval.Options) (retrieval.Options, error) {
	if path == "" {
		return opts, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return opts, domain.WrapError(domain.ErrInvalidConfig, "read tuning file", err)
	}
	return applyTuning(raw, opts)
}

func applyTuning(raw []byte, opts retrieval.Options) (retrieval.Options, error) {
	var tf tuningFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return opts, domain.WrapError(domain.ErrInvalidConfig, "parse tuning file", err)
	}

	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setInt(&opts.DefaultTopK, tf.DefaultTopK)
	setInt(&opts.CandidatePoolSize, tf.CandidatePoolSize)
	setInt(&opts.PoolMultiplier, tf.PoolMultiplier)
	setInt(&opts.CrossEncoderOutputSize, tf.CrossEncoderOutputSize)
	setInt(&opts.CrossEncoderMaxCandidates, tf.CrossEncoderMaxCandidates)
	setInt(&opts.RRFK, tf.RRFK)
	if tf.FusionWeights != nil {
		opts.Weights = *tf.FusionWeights
	}

	timeouts := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"dense", tf.Timeouts.Dense, &opts.DenseTimeout},
		{"lexical", tf.Timeouts.Lexical, &opts.LexicalTimeout},
		{"cross_encoder", tf.Timeouts.CrossEncoder, &opts.CrossEncoderTimeout},
	}
	for _, t := range timeouts {
		if t.raw == "" {
			continue
		}
		d, err := time.ParseDuration(t.raw)
		if err != nil {
			return opts, domain.WrapError(domain.ErrInvalidConfig, "parse tuning file", fmt.Errorf("timeouts.%s: %w", t.name, err))
		}
		*t.dst = d
	}
	return opts, nil
}
