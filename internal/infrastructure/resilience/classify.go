package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kirillkom/secguide/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Failure counts against the breaker without a retry.
	Failure = ErrorClassification{RecordFailure: true}
	// Ignored is neither retried nor counted: the caller gave up or sent a
	// request the dependency rightly refused.
	Ignored = ErrorClassification{}
)

// StatusError is a non-2xx answer from an HTTP dependency.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %s", e.Service, e.Operation, e.Status)
	}
	return fmt.Sprintf("%s %s status: %s: %s", e.Service, e.Operation, e.Status, e.Body)
}

// ReadStatusError consumes at most 2 KiB of the response body.
func ReadStatusError(service, operation string, resp *http.Response) *StatusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(raw)),
	}
}

// IsRetryableHTTPStatus reports statuses worth retrying against HTTP
// dependencies: timeouts, throttling and upstream 5xx.
func IsRetryableHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// ClassifyHTTP is the classifier for JSON-over-HTTP dependencies. Client
// errors other than 408 and 429 are Ignored so a malformed request cannot
// open the breaker for everyone else.
func ClassifyHTTP(err error) ErrorClassification {
	if class, ok := classifyCommon(err); ok {
		return class
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if IsRetryableHTTPStatus(statusErr.StatusCode) {
			return Transient
		}
		return Ignored
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Failure
}

func classifyCommon(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return Ignored, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Ignored, true
	case IsCircuitOpen(err):
		return Transient, true
	}
	return ErrorClassification{}, false
}

// Classify applies the shared rules for cancellation and open circuits and
// defers everything else to fn.
func Classify(fn ErrorClassifier) ErrorClassifier {
	return func(err error) ErrorClassification {
		if class, ok := classifyCommon(err); ok {
			return class
		}
		return fn(err)
	}
}

// WrapTemporary marks err as domain.ErrTemporary when classifier says a later
// attempt could succeed.
func WrapTemporary(op string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if IsCircuitOpen(err) || classifier(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return err
}
