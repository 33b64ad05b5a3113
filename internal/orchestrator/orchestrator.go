// Package orchestrator fans landmark IDs out to a fixed pool of
// pipeline workers and aggregates their results into one run summary.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/models"
	"github.com/nyc-landmarks/vectordb/internal/pipeline"
)

// Config tunes one ingestion run.
type Config struct {
	// Source names the processor the run drives, "pdf" or "wikipedia".
	Source string
	// Parallelism fixes the worker count and the queue depth.
	Parallelism int
	// PerLandmarkTimeout bounds one landmark end to end. A landmark
	// that exceeds it is recorded as failed with reason "timeout".
	PerLandmarkTimeout time.Duration
	// GlobalTimeout bounds the whole run. Once it elapses no new work
	// is dispatched and in-flight landmarks are cancelled.
	GlobalTimeout time.Duration
	// ReportDir receives the JSON run report when set.
	ReportDir string
}

// Orchestrator runs landmark ingestion over a bounded work queue.
// Each worker owns one Processor instance for its lifetime; processors
// are never shared across workers.
type Orchestrator struct {
	cfg     Config
	factory func() pipeline.Processor
	logger  *zap.Logger
}

// New builds an orchestrator. factory is invoked once per worker at
// startup.
func New(cfg Config, factory func() pipeline.Processor, logger *zap.Logger) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.PerLandmarkTimeout <= 0 {
		cfg.PerLandmarkTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:     cfg,
		factory: factory,
		logger:  logging.Module(logger, "orchestrator"),
	}
}

// Run drains the feed through the worker pool and returns the
// aggregated summary. Cancelling ctx stops dispatch, cancels in-flight
// landmarks, and still returns the summary for the work already done.
// The returned error reports feed failures only; per-landmark failures
// live in the summary.
func (o *Orchestrator) Run(ctx context.Context, feed Feed) (*RunSummary, error) {
	runCtx, cancel := o.runContext(ctx)
	defer cancel()

	queue := make(chan string, o.cfg.Parallelism)
	results := make(chan pipeline.Result)

	var workers sync.WaitGroup
	for i := 0; i < o.cfg.Parallelism; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			proc := o.factory()
			for lp := range queue {
				results <- o.processOne(runCtx, proc, lp)
			}
		}()
	}

	feedErr := make(chan error, 1)
	go func() {
		defer close(queue)
		feedErr <- feed(runCtx, func(lpNumber string) error {
			select {
			case queue <- lpNumber:
				return nil
			case <-runCtx.Done():
				return runCtx.Err()
			}
		})
	}()

	go func() {
		workers.Wait()
		close(results)
	}()

	summary := newRunSummary(o.cfg.Source)
	o.logger.Info("ingestion run started",
		zap.String("source", o.cfg.Source),
		zap.Int("parallelism", o.cfg.Parallelism),
	)
	for res := range results {
		summary.add(res)
		o.logger.Debug("landmark finished",
			zap.String("lp_number", res.LandmarkID),
			zap.String("outcome", res.Outcome.String()),
			zap.Int("chunks", res.Chunks),
		)
	}
	summary.finish()

	err := <-feedErr
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The run was cut short, not broken: the summary already
		// carries the cancelled landmarks.
		err = nil
	}

	o.logger.Info("ingestion run complete",
		zap.String("source", summary.Source),
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("no_content", summary.NoContent),
		zap.Int("failed", summary.Failed),
		zap.Int("chunks", summary.Chunks),
		zap.Duration("duration", summary.Finished.Sub(summary.Started)),
	)

	if o.cfg.ReportDir != "" {
		path, werr := summary.WriteReport(o.cfg.ReportDir)
		if werr != nil {
			o.logger.Error("writing run report failed", zap.Error(werr))
		} else {
			o.logger.Info("run report written", zap.String("path", path))
		}
	}
	return summary, err
}

func (o *Orchestrator) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.GlobalTimeout > 0 {
		return context.WithTimeout(ctx, o.cfg.GlobalTimeout)
	}
	return context.WithCancel(ctx)
}

// processOne executes a single landmark under the per-landmark
// timeout, normalizing timeout and cancellation into stable failure
// reasons.
func (o *Orchestrator) processOne(ctx context.Context, proc pipeline.Processor, lpNumber string) pipeline.Result {
	if ctx.Err() != nil {
		return pipeline.Failed(models.NormalizeLpNumber(lpNumber), proc.Source(), "cancelled")
	}

	itemCtx, cancel := context.WithTimeout(ctx, o.cfg.PerLandmarkTimeout)
	defer cancel()

	res := proc.Process(itemCtx, lpNumber)
	if res.Outcome == pipeline.OutcomeFailed {
		switch {
		case ctx.Err() != nil:
			res.Errors = []string{"cancelled"}
		case errors.Is(itemCtx.Err(), context.DeadlineExceeded):
			res.Errors = []string{"timeout"}
		}
	}
	return res
}
