// Package app runs a merge end to end: load the dataset, query the service, write the
// enriched copy and the audit report.
package app

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openenergytransition/qidmerge/internal/config"
	"github.com/openenergytransition/qidmerge/internal/merge"
	"github.com/openenergytransition/qidmerge/internal/report"
	"github.com/openenergytransition/qidmerge/internal/wdqs"
	"github.com/openenergytransition/qidmerge/pkg/pipeline/core"
	localio "github.com/openenergytransition/qidmerge/pkg/pipeline/io/local"
)

// Options configures RunLocal.
type Options struct {
	Input  string
	Output string
	// Report is an optional audit report path; the extension picks the format.
	Report string

	Config *config.Config
	Logger *zap.Logger
	// Stdout receives the summary table; nil discards it.
	Stdout io.Writer
	// Lookup replaces the query service client when set.
	Lookup merge.Lookup
}

// Outcome is what a completed run produced.
type Outcome struct {
	RunID  string
	Result *merge.Result
}

// RunLocal merges identifiers into the CSV at opts.Input and writes the result to
// opts.Output. The output and report are written only when the run succeeds.
func RunLocal(ctx context.Context, opts Options) (*Outcome, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	cfg := opts.Config
	runID := uuid.NewString()
	base := opts.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logger := base.With(zap.String("run_id", runID))
	started := time.Now()

	logger.Info("merge run start",
		zap.String("input", opts.Input),
		zap.String("output", opts.Output),
		zap.String("dataset", cfg.Dataset),
		zap.Strings("properties", cfg.MatchProps),
		zap.Strings("languages", cfg.Languages),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Float64("throttle_s", cfg.Throttle),
		zap.Int("retries", cfg.Retries),
		zap.Bool("overwrite", cfg.Overwrite),
		zap.Bool("fail_fast", cfg.FailFast),
	)

	lookup := opts.Lookup
	if lookup == nil {
		cc := cfg.ClientConfig()
		cc.Logger = logger
		client, err := wdqs.NewClient(cc)
		if err != nil {
			return nil, errors.Wrap(err, "build query client")
		}
		lookup = client
	}

	var (
		source core.DatasetSource = localio.CSVFile{Path: opts.Input}
		sink   core.DatasetSink   = localio.CSVFile{Path: opts.Output, BOM: cfg.BOM}
	)

	readStart := time.Now()
	in, err := source.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load input")
	}
	logger.Info("input loaded",
		zap.Int("rows", len(in.Rows)),
		zap.Int("columns", len(in.Columns)),
		zap.Duration("duration", time.Since(readStart).Round(time.Millisecond)),
	)

	engine := merge.NewEngine(newTracedLookup(lookup, logger, cfg.Retries), merge.Options{
		Properties: cfg.MatchProps,
		Languages:  cfg.Languages,
		BatchSize:  cfg.BatchSize,
		Columns:    cfg.ColumnSpec(),
		Overwrite:  cfg.Overwrite,
		Worker:     cfg.WorkerOptions(),
		Logger:     logger,
	})
	res, err := engine.Run(ctx, in)
	if err != nil {
		return nil, err
	}

	if err := sink.Store(ctx, res.Table); err != nil {
		return nil, errors.Wrap(err, "write output")
	}
	logger.Info("output written", zap.String("path", opts.Output), zap.Bool("bom", cfg.BOM))

	if opts.Report != "" {
		r := report.Report{
			RunID:      runID,
			StartedAt:  started,
			FinishedAt: time.Now(),
			Input:      opts.Input,
			Output:     opts.Output,
			Dataset:    cfg.Dataset,
			Properties: cfg.MatchProps,
			Summary:    res.Summary,
			Decisions:  res.Decisions,
		}
		if err := report.Write(ctx, opts.Report, r); err != nil {
			return nil, errors.Wrap(err, "write report")
		}
		logger.Info("report written", zap.String("path", opts.Report))
	}

	if opts.Stdout != nil {
		RenderSummary(opts.Stdout, res.Summary)
	}
	logger.Info("merge run complete", zap.Duration("duration", time.Since(started).Round(time.Millisecond)))
	return &Outcome{RunID: runID, Result: res}, nil
}
