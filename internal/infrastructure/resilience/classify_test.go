package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/secguide/internal/core/domain"
)

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{"canceled", fmt.Errorf("rerank: %w", context.Canceled), Ignored},
		{"deadline", context.DeadlineExceeded, Ignored},
		{"open circuit", gobreaker.ErrOpenState, Transient},
		{"throttled", &StatusError{StatusCode: http.StatusTooManyRequests}, Transient},
		{"upstream 502", fmt.Errorf("wrap: %w", &StatusError{StatusCode: http.StatusBadGateway}), Transient},
		{"bad request", &StatusError{StatusCode: http.StatusBadRequest}, Ignored},
		{"unauthorized", &StatusError{StatusCode: http.StatusUnauthorized}, Ignored},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, Transient},
		{"decode", errors.New("unexpected EOF in json"), Failure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyHTTP(tc.err); got != tc.want {
				t.Fatalf("ClassifyHTTP(%v) = %+v, want %+v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassifyAppliesSharedRulesFirst(t *testing.T) {
	calls := 0
	classifier := Classify(func(error) ErrorClassification {
		calls++
		return Transient
	})

	if got := classifier(context.Canceled); got != Ignored {
		t.Fatalf("canceled = %+v", got)
	}
	if got := classifier(errors.New("no responders")); got != Transient {
		t.Fatalf("custom rule = %+v", got)
	}
	if calls != 1 {
		t.Fatalf("custom classifier calls = %d, want 1", calls)
	}
}

func TestWrapTemporary(t *testing.T) {
	retryable := &StatusError{Service: "cohere", Operation: "rerank", StatusCode: http.StatusServiceUnavailable, Status: "503 Service Unavailable"}
	if err := WrapTemporary("cohere rerank", retryable, ClassifyHTTP); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if err := WrapTemporary("cohere rerank", gobreaker.ErrOpenState, ClassifyHTTP); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to be temporary, got %v", err)
	}

	permanent := &StatusError{StatusCode: http.StatusBadRequest}
	err := WrapTemporary("cohere rerank", permanent, ClassifyHTTP)
	if domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, permanent) {
		t.Fatalf("permanent error must pass through unchanged, got %v", err)
	}
	if WrapTemporary("op", nil, ClassifyHTTP) != nil {
		t.Fatalf("nil must stay nil")
	}
}

func TestReadStatusErrorTrimsBody(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Status:     "429 Too Many Requests",
		Body:       io.NopCloser(strings.NewReader("  rate limited \n")),
	}
	err := ReadStatusError("tavily", "search", resp)
	if err.Body != "rate limited" {
		t.Fatalf("body = %q", err.Body)
	}
	if err.Error() != "tavily search status: 429 Too Many Requests: rate limited" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
