package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/ceda"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/csvfile"
	httpadapter "github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/kafka"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/adapter/ukcpapi"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/config"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/domain"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/observability"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/pipeline"
	"github.com/couchcryptid/ukcp-rainfall-etl/internal/postprocess"
)

// jobOptions are the inputs shared by the process and batch commands.
type jobOptions struct {
	OutDir       string
	ProjectionID int
	Member       int
	Variable     string
	ConfigPath   string
	MaskPath     string
	Selections   string
	Force        bool
}

// app is a fully wired pipeline plus the resources to release after the run.
type app struct {
	pipeline   *pipeline.Pipeline
	processing *config.Processing
	selections []domain.Selection
	logger     *slog.Logger
	closers    []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func runProcess(ctx context.Context, cfg *config.Config, logger *slog.Logger, url string, opts jobOptions) error {
	job, err := domain.NewJob(url, opts.ProjectionID, opts.Member, opts.Variable)
	if err != nil {
		return err
	}
	a, err := newApp(cfg, logger, opts, false)
	if err != nil {
		return err
	}
	defer a.close()
	return a.pipeline.Run(ctx, job)
}

func runBatch(ctx context.Context, cfg *config.Config, logger *slog.Logger, urlTemplate string, opts jobOptions) error {
	a, err := newApp(cfg, logger, opts, true)
	if err != nil {
		return err
	}
	defer a.close()

	if urlTemplate == "" {
		urlTemplate = a.processing.URLTemplate
	}
	jobs, err := batchJobs(a.selections, urlTemplate, opts)
	if err != nil {
		return err
	}
	return a.pipeline.RunBatch(ctx, jobs)
}

// batchJobs builds one job per distinct selected month, in table order.
func batchJobs(sel []domain.Selection, urlTemplate string, opts jobOptions) ([]domain.Job, error) {
	seen := make(map[string]bool, len(sel))
	jobs := make([]domain.Job, 0, len(sel))
	for _, s := range sel {
		url := domain.ExpandURLTemplate(urlTemplate, opts.Member, opts.Variable, s.Year, s.Month)
		job, err := domain.NewJob(url, opts.ProjectionID, opts.Member, opts.Variable)
		if err != nil {
			return nil, fmt.Errorf("selection %04d-%02d: %w", s.Year, s.Month, err)
		}
		if seen[job.Key()] {
			continue
		}
		seen[job.Key()] = true
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// newApp wires the pipeline for opts. With requireSelections unset, a missing
// default selection table only disables the selection check.
func newApp(cfg *config.Config, logger *slog.Logger, opts jobOptions, requireSelections bool) (*app, error) {
	proc, err := config.LoadProcessing(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	settings, err := proc.Settings()
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	a := &app{processing: proc, logger: logger}

	sel, err := csvfile.ReadSelections(opts.Selections, opts.ProjectionID)
	switch {
	case err == nil:
		a.selections = sel
	case !requireSelections && opts.Selections == defaultSelections && errors.Is(err, os.ErrNotExist):
		logger.Warn("selection table not found, skipping selection check", "path", opts.Selections)
	default:
		return nil, err
	}

	reader := netcdf.NewReader(logger)
	mask, err := reader.ReadMask(opts.MaskPath, proc.MaskVariable)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	var tokens ceda.TokenSource
	if cfg.TokenEnabled {
		client := ceda.NewTokenClient(cfg, ceda.NewCredentialsProvider(cfg), clock, logger, metrics)
		tokens = ceda.NewCachedTokenSource(client, cfg.TokenCacheTTL, clock)
	}
	downloader := ceda.NewDownloader(cfg, tokens, logger, metrics)

	loaders := []pipeline.BatchLoader{csvfile.NewSink(opts.OutDir, logger)}
	if cfg.KafkaEnabled() {
		w := kafkaadapter.NewWriter(cfg, runID, logger)
		loaders = append(loaders, w)
		a.closers = append(a.closers, func() {
			if err := w.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		})
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	pOpts := pipeline.Options{
		RunID:      runID,
		Mask:       mask,
		Selections: a.selections,
		Force:      opts.Force,
		Clock:      clock,
	}
	if cfg.LedgerPath != "" {
		ledger, err := sqlite.Open(cfg.LedgerPath)
		if err != nil {
			a.close()
			return nil, err
		}
		pOpts.Ledger = ledger
		a.closers = append(a.closers, func() {
			if err := ledger.Close(); err != nil {
				logger.Error("ledger close error", "error", err)
			}
		})
	}

	transformer := pipeline.NewTransformer(mask, settings, logger)
	a.pipeline = pipeline.New(downloader, reader, transformer, loaders, logger, metrics, pOpts)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, a.pipeline, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		a.closers = append(a.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		})
	}
	return a, nil
}

func runPostprocess(ctx context.Context, logger *slog.Logger, inDir, outDir, ensID string) error {
	p := postprocess.New(netcdf.NewReader(logger), logger)
	return p.Run(ctx, inDir, outDir, ensID)
}

func runToken(ctx context.Context, cfg *config.Config, logger *slog.Logger, refresh bool) error {
	client := ceda.NewTokenClient(cfg, ceda.NewCredentialsProvider(cfg), clockwork.NewRealClock(), logger, observability.NewMetrics())

	var (
		t   ceda.Token
		err error
	)
	if refresh {
		t, err = client.Refresh(ctx)
	} else {
		t, err = client.Current(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Printf("token %s expires %s\n", t.Redacted(), t.Expires.Format(time.RFC3339))
	return nil
}

func runWPSURL(endpoint string, in ukcpapi.Inputs) error {
	u, err := ukcpapi.RequestURL(endpoint, in)
	if err != nil {
		return err
	}
	fmt.Println(u)
	return nil
}
