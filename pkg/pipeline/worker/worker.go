// Package worker runs a processor over a list of items one at a time, with a global
// throttle, per-attempt timeouts and exponential backoff on transient failures.
//
// Items are processed strictly in input order. The runner never starts a second
// attempt or item while one is in flight.
package worker

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/core"
)

type FailurePolicy int

const (
	FailurePolicyPartialOutput FailurePolicy = iota
	FailurePolicyFailFast
)

type Options struct {
	// MaxAttempts is the total number of attempts per item, first try included.
	MaxAttempts    int
	RequestTimeout time.Duration

	// Throttle is the minimum spacing between the start of consecutive attempts.
	// Set to <=0 to disable.
	Throttle time.Duration

	FailurePolicy FailurePolicy

	// BackoffUnit is the sleep before the first retry; retry n sleeps
	// BackoffUnit * BackoffBase^n.
	BackoffUnit time.Duration
	// BackoffBase is the exponential growth factor.
	BackoffBase float64
	// BackoffMax caps exponential backoff.
	BackoffMax time.Duration
	// BackoffJitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	BackoffJitterFrac float64
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	Index    int
	Input    In
	Output   Out
	Err      error
	Attempts int
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 1
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 90 * time.Second
	}
	if o.BackoffUnit <= 0 {
		o.BackoffUnit = time.Second
	}
	if o.BackoffBase < 1 {
		o.BackoffBase = 2
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 2 * time.Minute
	}
	if o.BackoffJitterFrac < 0 {
		o.BackoffJitterFrac = 0
	}
	return o
}

// ProcessAll runs the processor over all input items.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor core.ProcessFunc[In, Out],
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes onResult
// after each item settles. A callback error stops the run.
//
// Under FailurePolicyPartialOutput a failed item is recorded in its Result and the run
// continues; under FailurePolicyFailFast the first failure is returned. Cancellation of
// ctx is checked between items and attempts and is always returned.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor core.ProcessFunc[In, Out],
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	var limiter *rate.Limiter
	if opts.Throttle > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.Throttle), 1)
	}

	out := make([]Result[In, Out], 0, len(items))
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := processOne(ctx, i, item, processor, limiter, opts)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, res)
		if onResult != nil {
			if err := onResult(res); err != nil {
				return nil, err
			}
		}
		if res.Err != nil && opts.FailurePolicy == FailurePolicyFailFast {
			return nil, res.Err
		}
	}
	return out, nil
}

func processOne[In any, Out any](
	ctx context.Context,
	idx int,
	item In,
	processor core.ProcessFunc[In, Out],
	limiter *rate.Limiter,
	opts Options,
) Result[In, Out] {
	res, attempts, err := processWithRetry(ctx, item, processor, limiter, opts)
	return Result[In, Out]{
		Index:    idx,
		Input:    item,
		Output:   res,
		Err:      err,
		Attempts: attempts,
	}
}

func processWithRetry[In any, Out any](
	ctx context.Context,
	item In,
	processor core.ProcessFunc[In, Out],
	limiter *rate.Limiter,
	opts Options,
) (Out, int, error) {
	var lastOut Out
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return lastOut, attempt, err
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return lastOut, attempt, err
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
		result, err := processor(reqCtx, item)
		cancel()
		lastOut = result
		if err == nil {
			return result, attempt + 1, nil
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return lastOut, attempt + 1, ctx.Err()
		}
		maxRetries := maxExtraRetries(opts.MaxAttempts-1, err)
		if !isTransient(err) || attempt >= maxRetries {
			return lastOut, attempt + 1, err
		}

		sleep := backoffSleep(opts.BackoffUnit, opts.BackoffBase, opts.BackoffMax, opts.BackoffJitterFrac, attempt)
		if after := retryAfter(err); after > sleep {
			sleep = max(sleep, min(after, retryAfterCap(opts)))
		}
		t := time.NewTimer(sleep)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return lastOut, attempt + 1, ctx.Err()
		}
	}
}

type retryCap interface {
	MaxExtraRetries() int
}

func maxExtraRetries(defaultRetries int, err error) int {
	if defaultRetries < 0 {
		defaultRetries = 0
	}
	var capErr retryCap
	if errors.As(err, &capErr) {
		limited := capErr.MaxExtraRetries()
		if limited < 0 {
			limited = 0
		}
		if limited < defaultRetries {
			return limited
		}
	}
	return defaultRetries
}

// retryAfterCap bounds server-requested delays so a bad header cannot stall the run.
func retryAfterCap(opts Options) time.Duration {
	return max(opts.BackoffMax, opts.RequestTimeout)
}

type retryDelay interface {
	RetryAfter() time.Duration
}

func retryAfter(err error) time.Duration {
	var rd retryDelay
	if errors.As(err, &rd) {
		return rd.RetryAfter()
	}
	return 0
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	return isTransient(err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *core.TransientError
	if errors.As(err, &te) {
		return true
	}
	var lte *core.LimitedTransientError
	if errors.As(err, &lte) {
		return true
	}
	var rae *core.RetryAfterError
	if errors.As(err, &rae) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// BackoffDelay is the sleep before retry number attempt (0-based) without jitter.
func BackoffDelay(unit time.Duration, base float64, max time.Duration, attempt int) time.Duration {
	return backoffSleep(unit, base, max, 0, attempt)
}

func backoffSleep(unit time.Duration, base float64, max time.Duration, jitterFrac float64, attempt int) time.Duration {
	f := float64(unit) * math.Pow(base, float64(attempt))
	sleep := max
	if f < float64(max) {
		sleep = time.Duration(f)
	}
	if jitterFrac <= 0 {
		return sleep
	}
	// Apply +/- jitterFrac.
	j := 1 + (rand.Float64()*2-1)*jitterFrac
	return time.Duration(float64(sleep) * j)
}
