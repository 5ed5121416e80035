package types

import (
	"errors"
	"fmt"
)

// Error kinds. Upstream failures are wrapped in a ServiceError carrying one
// of these as its Kind so callers can tell them apart with errors.Is.
var (
	ErrInvalidQuery     = errors.New("invalid query")
	ErrInvalidContent   = errors.New("invalid content")
	ErrEmptyBatch       = errors.New("embedding batch must contain non-empty strings")
	ErrEmbeddingService = errors.New("embedding service failure")
	ErrVectorIndex      = errors.New("vector index failure")
	ErrAnswerService    = errors.New("answer service failure")
	ErrContentStore     = errors.New("content store failure")
	ErrContentNotFound  = errors.New("content not found")
	ErrShareNotFound    = errors.New("shared vault not found")
	ErrUnauthenticated  = errors.New("not authenticated")
)

// ServiceError is a failure of an external dependency.
type ServiceError struct {
	Kind error
	Err  error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ServiceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) && se.Kind == kind {
		return err
	}
	return &ServiceError{Kind: kind, Err: err}
}

func EmbeddingError(err error) error { return wrap(ErrEmbeddingService, err) }
func VectorIndexError(err error) error { return wrap(ErrVectorIndex, err) }
func AnswerError(err error) error { return wrap(ErrAnswerService, err) }
func ContentStoreError(err error) error { return wrap(ErrContentStore, err) }

// InvalidQuery reports a user-correctable problem with a search query.
func InvalidQuery(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, reason)
}

func InvalidContent(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidContent, reason)
}

// IsUpstream reports whether err is a failure of an external dependency.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrEmbeddingService) ||
		errors.Is(err, ErrVectorIndex) ||
		errors.Is(err, ErrAnswerService) ||
		errors.Is(err, ErrContentStore)
}
