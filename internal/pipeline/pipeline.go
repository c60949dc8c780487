package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
)

// Fetcher makes a dataset available as a local file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
	Release(path string) error
}

// FieldReader decodes a variable from a local dataset, keeping cells valid in mask.
type FieldReader interface {
	ReadField(ctx context.Context, path, variable string, mask domain.Mask) (*domain.Field, error)
}

// Transformer turns the field of a job into output records.
type Transformer interface {
	Transform(ctx context.Context, job domain.Job, field *domain.Field) ([]domain.Record, error)
}

// BatchLoader writes multiple output records to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.Record) error
}

// Ledger remembers completed jobs.
type Ledger interface {
	Done(ctx context.Context, job domain.Job) (bool, error)
	MarkDone(ctx context.Context, job domain.Job, runID string) error
}

// Options holds the optional collaborators and switches of a Pipeline.
type Options struct {
	RunID      string
	Mask       domain.Mask
	Ledger     Ledger             // nil disables skipping of completed jobs
	Selections []domain.Selection // nil disables the selection check
	Force      bool               // run jobs the ledger already holds
	Clock      clockwork.Clock    // defaults to the real clock
}

// Progress is a snapshot of the jobs handled so far.
type Progress struct {
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped"`
	Current   string `json:"current,omitempty"`
}

// Pipeline orchestrates fetch, decode, summarize, and load for each job.
type Pipeline struct {
	fetcher     Fetcher
	reader      FieldReader
	transformer Transformer
	loaders     []BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	clock       clockwork.Clock
	ready       atomic.Bool

	mu       sync.Mutex
	progress Progress
}

// New creates a Pipeline with the given stages and observability. Records are
// loaded into every loader in order.
func New(f Fetcher, r FieldReader, t Transformer, loaders []BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pipeline{
		fetcher:     f,
		reader:      r,
		transformer: t,
		loaders:     loaders,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
		clock:       clock,
	}
}

// CheckReadiness returns nil once a job has completed, or an error describing
// why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed any jobs yet")
	}
	return nil
}

// Progress returns a snapshot of the jobs handled so far.
func (p *Pipeline) Progress() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

// RunBatch runs jobs in order. A failed job is logged and counted, and the
// batch moves on. The returned error joins every failure.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []domain.Job) error {
	p.logger.Info("batch started", "jobs", len(jobs))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	p.update(func(pr *Progress) { pr.Total += len(jobs) })

	var errs []error
	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			p.logger.Info("batch stopping", "reason", err)
			errs = append(errs, err)
			break
		}
		if err := p.Run(ctx, job); err != nil {
			errs = append(errs, err)
		}
	}

	pr := p.Progress()
	p.logger.Info("batch finished",
		"completed", pr.Completed,
		"failed", pr.Failed,
		"skipped", pr.Skipped,
	)
	return errors.Join(errs...)
}

// Run processes a single job.
func (p *Pipeline) Run(ctx context.Context, job domain.Job) error {
	logger := p.logger.With("job", job.Key())
	p.update(func(pr *Progress) { pr.Current = job.Key() })
	defer p.update(func(pr *Progress) { pr.Current = "" })

	if p.opts.Ledger != nil && !p.opts.Force {
		done, err := p.opts.Ledger.Done(ctx, job)
		if err != nil {
			return p.fail(logger, job, err)
		}
		if done {
			logger.Info("job already completed, skipping")
			p.metrics.JobsSkipped.Inc()
			p.update(func(pr *Progress) { pr.Skipped++ })
			return nil
		}
	}

	p.metrics.JobsStarted.Inc()
	start := p.clock.Now()
	logger.Info("job started", "urls", len(job.URLs))

	if p.opts.Selections != nil && !selected(p.opts.Selections, job) {
		logger.Warn("no selection row for job month, processing anyway",
			"projection_slice_id", job.ProjectionID, "year", job.Year, "month", job.Month)
	}

	field, err := p.extract(ctx, logger, job)
	if err != nil {
		return p.fail(logger, job, err)
	}

	stage := p.clock.Now()
	records, err := p.transformer.Transform(ctx, job, field)
	if err != nil {
		return p.fail(logger, job, fmt.Errorf("summarize: %w", err))
	}
	p.observeStage("summarize", stage)

	if err := p.load(ctx, records); err != nil {
		return p.fail(logger, job, err)
	}

	if p.opts.Ledger != nil {
		if err := p.opts.Ledger.MarkDone(ctx, job, p.opts.RunID); err != nil {
			return p.fail(logger, job, err)
		}
	}

	for _, r := range records {
		p.metrics.RecordsWritten.WithLabelValues(r.Kind()).Inc()
	}
	p.metrics.JobsCompleted.Inc()
	p.update(func(pr *Progress) { pr.Completed++ })
	p.ready.Store(true)
	logger.Info("job completed", "records", len(records), "duration", p.clock.Since(start))
	return nil
}

// extract fetches and decodes every URL of job and joins the fields along time.
func (p *Pipeline) extract(ctx context.Context, logger *slog.Logger, job domain.Job) (*domain.Field, error) {
	start := p.clock.Now()
	defer p.observeStage("fetch", start)

	var field *domain.Field
	for _, url := range job.URLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := p.readURL(ctx, logger, url, job.Variable)
		if err != nil {
			return nil, err
		}
		if field == nil {
			field = next
			continue
		}
		if field, err = field.Concat(next); err != nil {
			return nil, fmt.Errorf("join %s: %w", url, err)
		}
	}
	if field == nil {
		return nil, errors.New("job has no urls")
	}
	return field, nil
}

func (p *Pipeline) readURL(ctx context.Context, logger *slog.Logger, url, variable string) (*domain.Field, error) {
	path, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() {
		if err := p.fetcher.Release(path); err != nil {
			logger.Warn("release download failed", "path", path, "error", err)
		}
	}()

	f, err := p.reader.ReadField(ctx, path, variable, p.opts.Mask)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	logger.Debug("field read", "path", path, "cells", len(f.Cells), "steps", len(f.Times))
	return f, nil
}

func (p *Pipeline) load(ctx context.Context, records []domain.Record) error {
	start := p.clock.Now()
	for _, l := range p.loaders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.LoadBatch(ctx, records); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	p.observeStage("load", start)
	return nil
}

func (p *Pipeline) fail(logger *slog.Logger, job domain.Job, err error) error {
	logger.Error("job failed", "error", err)
	p.metrics.JobsFailed.Inc()
	p.update(func(pr *Progress) { pr.Failed++ })
	return fmt.Errorf("job %s: %w", job.Key(), err)
}

func (p *Pipeline) observeStage(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(p.clock.Since(start).Seconds())
}

func (p *Pipeline) update(fn func(*Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.progress)
}

func selected(sel []domain.Selection, job domain.Job) bool {
	for _, s := range sel {
		if s.ProjectionID == job.ProjectionID && s.Year == job.Year && s.Month == job.Month {
			return true
		}
	}
	return false
}
