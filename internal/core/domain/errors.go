package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrControlNotFound  = errors.New("control not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")

	// ErrRetrievalUnavailable marks a ranker or store that could not answer.
	// Dense failures surface it to callers, lexical and cross-encoder
	// failures degrade the result instead.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	ErrInvalidQuery         = errors.New("invalid query")
	ErrInvalidConfig        = errors.New("invalid retrieval config")
	ErrFusionInputMismatch  = errors.New("fusion input mismatch")
	// ErrEmptyCorpus is informational. Rankers return an empty list for an
	// empty corpus; the error only appears in logs and build reports.
	ErrEmptyCorpus = errors.New("empty corpus")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
