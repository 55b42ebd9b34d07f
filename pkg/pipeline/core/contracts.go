package core

import (
	"context"
	"time"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/table"
)

// DatasetSource loads the harmonized dataset a run operates on.
type DatasetSource interface {
	Load(ctx context.Context) (*table.Table, error)
}

// DatasetSink persists the enriched dataset produced by a run.
type DatasetSink interface {
	Store(ctx context.Context, t *table.Table) error
}

// ProcessFunc is one unit of work executed by the worker runner.
type ProcessFunc[In any, Out any] func(ctx context.Context, in In) (Out, error)

// TransientError marks an error as retryable by worker implementations.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// LimitedTransientError is retryable, but only for ExtraRetries additional attempts
// regardless of the configured attempt budget.
type LimitedTransientError struct {
	Err          error
	ExtraRetries int
}

func (e *LimitedTransientError) Error() string {
	if e == nil || e.Err == nil {
		return "transient error"
	}
	return e.Err.Error()
}

func (e *LimitedTransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// MaxExtraRetries caps the retry budget for this error.
func (e *LimitedTransientError) MaxExtraRetries() int {
	if e == nil {
		return 0
	}
	return e.ExtraRetries
}

// RetryAfterError is a transient error carrying a server-provided minimum wait
// (for example an HTTP Retry-After header on 429).
type RetryAfterError struct {
	Err   error
	After time.Duration
}

func (e *RetryAfterError) Error() string {
	if e == nil || e.Err == nil {
		return "retry later"
	}
	return e.Err.Error()
}

func (e *RetryAfterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RetryAfter returns the minimum delay before the next attempt.
func (e *RetryAfterError) RetryAfter() time.Duration {
	if e == nil || e.After < 0 {
		return 0
	}
	return e.After
}
