package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/openenergytransition/qidmerge/internal/merge"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/worker"
)

// tracedLookup logs every query attempt the runner makes.
type tracedLookup struct {
	next        merge.Lookup
	logger      *zap.Logger
	maxAttempts int

	mu       sync.Mutex
	attempts map[string]int
}

func newTracedLookup(next merge.Lookup, logger *zap.Logger, maxAttempts int) *tracedLookup {
	return &tracedLookup{
		next:        next,
		logger:      logger,
		maxAttempts: maxAttempts,
		attempts:    make(map[string]int),
	}
}

func (t *tracedLookup) Lookup(ctx context.Context, q merge.Query) (map[string][]merge.Entity, error) {
	attempt := t.nextAttempt(q)
	deadlineIn := "none"
	if d, ok := ctx.Deadline(); ok {
		deadlineIn = time.Until(d).Round(time.Millisecond).String()
	}
	fields := []zap.Field{
		zap.String("property", q.Property),
		zap.Int("values", len(q.Values)),
		zap.String("first", first(q.Values)),
		zap.Int("attempt", attempt),
	}
	t.logger.Debug("query request", append(fields, zap.String("deadline_in", deadlineIn))...)

	start := time.Now()
	out, err := t.next.Lookup(ctx, q)
	fields = append(fields, zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	if err != nil {
		retryable := worker.IsTransient(err)
		willRetry := retryable && attempt < t.maxAttempts && !errors.Is(err, context.Canceled)
		t.logger.Warn("query error", append(fields,
			zap.Bool("retryable", retryable),
			zap.Bool("will_retry", willRetry),
			zap.Error(err),
		)...)
		return out, err
	}

	hits := 0
	for _, ents := range out {
		hits += len(ents)
	}
	t.logger.Debug("query response", append(fields, zap.Int("hits", hits))...)
	return out, nil
}

func (t *tracedLookup) nextAttempt(q merge.Query) int {
	key := q.Property + "|" + strings.Join(q.Values, "\x1f")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.attempts[key]++
	return t.attempts[key]
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
