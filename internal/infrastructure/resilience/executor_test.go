package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errUpstream = errors.New("upstream 503")

func retryUpstream(err error) ErrorClassification {
	return ErrorClassification{Retryable: errors.Is(err, errUpstream), RecordFailure: true}
}

func fastRetries(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	exec := NewExecutor(fastRetries(3))

	attempts := 0
	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errUpstream
		}
		return nil
	}, retryUpstream)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteStopsOnNonRetryableError(t *testing.T) {
	exec := NewExecutor(fastRetries(3))

	attempts := 0
	errBadRequest := errors.New("400 bad request")
	err := exec.Execute(context.Background(), "tavily.search", func(context.Context) error {
		attempts++
		return errBadRequest
	}, retryUpstream)
	if !errors.Is(err, errBadRequest) || attempts != 1 {
		t.Fatalf("expected one attempt with the original error, got %d attempts, err=%v", attempts, err)
	}
}

func TestOperationOverrideDisablesRetries(t *testing.T) {
	exec := NewExecutor(fastRetries(3), WithOperationConfig("cohere.rerank", fastRetries(1)))

	rerankCalls, embedCalls := 0, 0
	_ = exec.Execute(context.Background(), "cohere.rerank", func(context.Context) error {
		rerankCalls++
		return errUpstream
	}, retryUpstream)
	_ = exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		embedCalls++
		return errUpstream
	}, retryUpstream)

	if rerankCalls != 1 {
		t.Fatalf("override should allow one attempt, got %d", rerankCalls)
	}
	if embedCalls != 3 {
		t.Fatalf("default policy should allow three attempts, got %d", embedCalls)
	}
}

func TestExecuteSkipsRetryThatCannotFinishBeforeDeadline(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	started := time.Now()
	err := exec.Execute(ctx, "cohere.rerank", func(context.Context) error {
		attempts++
		return errUpstream
	}, retryUpstream)
	if !errors.Is(err, errUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected no retry past the deadline, got %d attempts", attempts)
	}
	if time.Since(started) > 40*time.Millisecond {
		t.Fatalf("executor waited for a backoff it could not use")
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(fastRetries(2))

	attempts := 0
	scores, err := Call(context.Background(), exec, "cohere.rerank", func(context.Context) ([]float64, error) {
		attempts++
		if attempts == 1 {
			return nil, errUpstream
		}
		return []float64{0.9, 0.1}, nil
	}, retryUpstream)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(scores) != 2 || scores[0] != 0.9 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}

func TestCallWithoutExecutorRunsOnce(t *testing.T) {
	n, err := Call(context.Background(), nil, "op", func(context.Context) (int, error) {
		return 7, nil
	}, nil)
	if err != nil || n != 7 {
		t.Fatalf("Call() = %d, %v", n, err)
	}
}

func TestBreakerOpensAndReportsTransition(t *testing.T) {
	var transitions []string
	cfg := fastRetries(1)
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	exec := NewExecutor(cfg, WithStateListener(func(operation, from, to string) {
		transitions = append(transitions, operation+":"+from+"->"+to)
	}))

	failing := func(context.Context) error { return errUpstream }
	for i := 0; i < 2; i++ {
		if err := exec.Execute(context.Background(), "cohere.rerank", failing, nil); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: expected upstream error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "cohere.rerank", func(context.Context) error {
		t.Fatalf("open circuit must not call the dependency")
		return nil
	}, nil)
	if !IsCircuitOpen(err) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open circuit, got %v", err)
	}
	if exec.State("cohere.rerank") != "open" || exec.State("ollama.embed") != "closed" {
		t.Fatalf("unexpected states: rerank=%s embed=%s", exec.State("cohere.rerank"), exec.State("ollama.embed"))
	}
	if len(transitions) != 1 || transitions[0] != "cohere.rerank:closed->open" {
		t.Fatalf("unexpected transitions: %v", transitions)
	}
}
