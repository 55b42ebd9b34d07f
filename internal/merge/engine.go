package merge

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/openenergytransition/qidmerge/pkg/pipeline/schema"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/table"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/worker"
)

// Options configures an Engine.
type Options struct {
	// Properties are the matching properties, queried in this order for every batch.
	Properties []string
	Languages  []string
	BatchSize  int

	Columns   schema.Spec
	Overwrite bool

	Worker worker.Options
	// Disambiguator breaks ties between entities; nil uses ExtTokenDisambiguator over
	// Languages.
	Disambiguator Disambiguator
	Logger        *zap.Logger
}

// QueryOutcome records one settled lookup query.
type QueryOutcome struct {
	Batch    int
	Property string
	Values   int
	Hits     int
	Attempts int
	Err      error
}

// Result is everything a run produced.
type Result struct {
	Table     *table.Table
	Summary   Summary
	Decisions []Decision
	Queries   []QueryOutcome
	Contract  schema.DatasetContract
}

// Engine runs the extraction, lookup, resolution and merge stages over a table.
type Engine struct {
	lookup Lookup
	opts   Options
}

func NewEngine(lookup Lookup, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Disambiguator == nil {
		opts.Disambiguator = ExtTokenDisambiguator{Languages: opts.Languages}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 75
	}
	return &Engine{lookup: lookup, opts: opts}
}

// validate rejects options that would fail only after queries were sent.
func (e *Engine) validate() error {
	if len(e.opts.Properties) == 0 {
		return errors.New("merge: no matching properties configured")
	}
	for _, p := range e.opts.Properties {
		if err := ValidateProperty(p); err != nil {
			return errors.Wrap(err, "merge")
		}
	}
	if strings.TrimSpace(e.opts.Columns.OutputColumn) == "" {
		return errors.New("merge: output column is empty")
	}
	return nil
}

type batchQuery struct {
	batch int
	query Query
}

// Run enriches t. Failed queries degrade their values to unresolved; the returned
// error is non-nil only when ctx ends, when the worker runs fail-fast, or when the
// options are unusable. t is not modified.
func (e *Engine) Run(ctx context.Context, t *table.Table) (*Result, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	log := e.opts.Logger
	start := time.Now()

	contract := schema.Resolve(t.Columns, e.opts.Columns)
	if len(contract.Identifiers) == 0 {
		log.Warn("no candidate identifier column in input", zap.Strings("candidates", e.opts.Columns.Candidates))
	} else {
		log.Info("identifier columns resolved",
			zap.String("primary", contract.Identifiers[0].Name),
			zap.Int("present", len(contract.Identifiers)),
			zap.Bool("hints", contract.HasHints()),
		)
	}

	ex := NewExtractor(contract)
	decisions := make([]Decision, len(t.Rows))
	cands := make([]Candidate, 0, len(t.Rows))
	for i, r := range t.Rows {
		c, ok := ex.Extract(r)
		decisions[i] = Decision{Row: r.Index, Column: c.Column, Value: c.Value, Hint: c.Hint}
		if !ok {
			decisions[i].Resolution = Resolution{Status: StatusUnresolved, Reason: ReasonNoIdentifier}
			continue
		}
		if err := ValidateIdentifier(c.Value); err != nil {
			log.Warn("identifier rejected", zap.Int("row", r.Index), zap.Error(err))
			decisions[i].Resolution = Resolution{Status: StatusUnresolved, Reason: ReasonInvalidIdentifier}
			continue
		}
		cands = append(cands, c)
	}

	values := UniqueValues(cands)
	batches := Batch(values, e.opts.BatchSize)
	queries := make([]batchQuery, 0, len(batches)*len(e.opts.Properties))
	for bi, b := range batches {
		for _, p := range e.opts.Properties {
			queries = append(queries, batchQuery{
				batch: bi,
				query: Query{Property: p, Values: b, Languages: e.opts.Languages},
			})
		}
	}
	log.Info("lookup planned",
		zap.Int("rows", len(t.Rows)),
		zap.Int("candidates", len(cands)),
		zap.Int("unique_values", len(values)),
		zap.Int("batches", len(batches)),
		zap.Int("queries", len(queries)),
	)

	acc := NewAccumulator()
	outcomes := make([]QueryOutcome, 0, len(queries))
	process := func(ctx context.Context, bq batchQuery) (map[string][]Entity, error) {
		return e.lookup.Lookup(ctx, bq.query)
	}
	onResult := func(r worker.Result[batchQuery, map[string][]Entity]) error {
		bq := r.Input
		o := QueryOutcome{
			Batch:    bq.batch,
			Property: bq.query.Property,
			Values:   len(bq.query.Values),
			Attempts: r.Attempts,
			Err:      r.Err,
		}
		if r.Err != nil {
			acc.Fail(bq.query.Values)
			log.Warn("query failed; batch marked unresolved",
				zap.Int("batch", bq.batch),
				zap.String("property", bq.query.Property),
				zap.Int("values", len(bq.query.Values)),
				zap.Int("attempts", r.Attempts),
				zap.Error(r.Err),
			)
		} else {
			o.Hits = acc.Add(bq.query.Property, bq.query.Values, r.Output)
			log.Info("batch done",
				zap.Int("batch", bq.batch),
				zap.String("property", bq.query.Property),
				zap.Int("size", len(bq.query.Values)),
				zap.Int("hits", o.Hits),
				zap.Int("cumulative_candidates", acc.Hits),
			)
		}
		outcomes = append(outcomes, o)
		return nil
	}
	if _, err := worker.ProcessAllWithCallback(ctx, queries, process, onResult, e.opts.Worker); err != nil {
		return nil, errors.Wrap(err, "lookup")
	}
	if acc.Dropped > 0 {
		log.Warn("dropped hits outside their batch", zap.Int("dropped", acc.Dropped))
	}

	resolved := make(map[Key]Resolution)
	for i := range decisions {
		d := &decisions[i]
		if d.Status != "" {
			continue
		}
		k := Key{Value: d.Value, Hint: d.Hint}
		res, ok := resolved[k]
		if !ok {
			res = Resolve(acc.Entities(d.Value), acc.Failed(d.Value), d.Hint, e.opts.Disambiguator)
			resolved[k] = res
		}
		d.Resolution = res
	}

	out, sum, err := Write(t, contract, decisions, WriterOptions{
		OutputColumn: e.opts.Columns.OutputColumn,
		Overwrite:    e.opts.Overwrite,
	})
	if err != nil {
		return nil, err
	}
	sum.FailedQueries = acc.FailedQueries

	log.Info("merge complete",
		zap.Int("rows", sum.Rows),
		zap.Int("with_qid", sum.WithQID),
		zap.Int("unresolved", sum.Unresolved),
		zap.Int("ambiguous", sum.Ambiguous),
		zap.Int("conflicts", sum.Conflicts),
		zap.Int("failed_queries", sum.FailedQueries),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return &Result{Table: out, Summary: sum, Decisions: decisions, Queries: outcomes, Contract: contract}, nil
}
