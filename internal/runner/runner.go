// Package runner executes the benchmark matrix: every combination of
// workload, storage encoding, and optimizer configuration, strictly in
// sequence so trials never contend for resources. Individual trial
// failures are recorded and the run continues; only harness-level
// problems (a log that cannot be appended to) abort a run.
package runner

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/stratabench/stratabench/internal/config"
	"github.com/stratabench/stratabench/internal/engine"
	"github.com/stratabench/stratabench/internal/errors"
	"github.com/stratabench/stratabench/internal/format"
	"github.com/stratabench/stratabench/internal/metrics"
	"github.com/stratabench/stratabench/internal/plancontrol"
	"github.com/stratabench/stratabench/pkg/types"
)

// TrialSession is one configured execution scope.
type TrialSession interface {
	Execute(ctx context.Context, w types.Workload, enc types.Encoding) (*engine.Result, *engine.PlanDescriptor, error)
	Release()
}

// TrialExecutor hands out configured sessions. The plan controller is the
// production implementation; tests substitute failure-injecting fakes.
type TrialExecutor interface {
	Acquire(cfg types.OptimizerConfig) TrialSession
}

type controllerExecutor struct {
	controller *plancontrol.Controller
}

func (e controllerExecutor) Acquire(cfg types.OptimizerConfig) TrialSession {
	return e.controller.WithConfig(cfg)
}

// Runner drives one benchmark run over the configured matrix.
type Runner struct {
	cfg      *config.Config
	store    *format.Store
	executor TrialExecutor
	recorder *metrics.Recorder
	runID    string
}

// New creates a Runner over the plan controller.
func New(cfg *config.Config, store *format.Store, controller *plancontrol.Controller, recorder *metrics.Recorder) *Runner {
	return newRunner(cfg, store, controllerExecutor{controller: controller}, recorder)
}

func newRunner(cfg *config.Config, store *format.Store, executor TrialExecutor, recorder *metrics.Recorder) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    store,
		executor: executor,
		recorder: recorder,
		runID:    uuid.New().String(),
	}
}

// RunID returns the identifier tagging this run's trials.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes the matrix sequentially. It returns the trials of this
// invocation (skipped cells excluded) and an error only when the harness
// itself fails; failed trials are reported through their log records.
func (r *Runner) Run(ctx context.Context) ([]types.Trial, error) {
	var completed map[types.CellID]bool
	if r.cfg.Benchmark.Resume {
		var err error
		completed, err = metrics.Completed(r.recorder.Path())
		if err != nil {
			return nil, err
		}
	}

	encodings := r.cfg.MatrixEncodings()
	workloads := r.cfg.MatrixWorkloads()
	configs := r.cfg.MatrixConfigs()
	total := len(encodings) * len(workloads) * len(configs)
	log.Printf("run %s: %d cells (%d encodings x %d workloads x %d configs), %d already done",
		r.runID, total, len(encodings), len(workloads), len(configs), len(completed))

	// Storage footprint is a property of the encoding, measured once.
	sizes := make(map[types.Encoding]int64, len(encodings))
	for _, enc := range encodings {
		size, err := r.store.EncodingSize(enc)
		if err != nil {
			return nil, err
		}
		sizes[enc] = size
	}

	var trials []types.Trial
	for _, enc := range encodings {
		for _, w := range workloads {
			for _, oc := range configs {
				if err := ctx.Err(); err != nil {
					return trials, errors.NewInternal("run cancelled", err)
				}

				cell := types.CellID{Workload: w.Name, Encoding: enc, Config: oc.Name}
				if completed[cell] {
					log.Printf("skip %s: already recorded", cell)
					continue
				}

				trial := r.runTrial(ctx, w, enc, oc, sizes[enc])
				if err := r.recorder.Append(&trial); err != nil {
					return trials, err
				}
				trials = append(trials, trial)

				if trial.Status == types.TrialSuccess {
					log.Printf("done %s: %s, %d rows", cell, trial.Elapsed, trial.RowsReturned)
				} else {
					log.Printf("FAIL %s: %s", cell, trial.ErrorKind)
				}
			}
		}
	}
	return trials, nil
}

// runTrial executes one matrix cell. A transient failure earns exactly one
// retry in a fresh session; everything else fails the trial immediately.
func (r *Runner) runTrial(ctx context.Context, w types.Workload, enc types.Encoding, oc types.OptimizerConfig, storageBytes int64) types.Trial {
	trial := types.Trial{
		RunID:        r.runID,
		Workload:     w.Name,
		Encoding:     enc,
		Config:       oc.Name,
		Seed:         r.cfg.Dataset.Seed,
		StorageBytes: storageBytes,
		StartedAt:    time.Now(),
	}

	res, desc, elapsed, err := r.attempt(ctx, w, enc, oc)
	if err != nil && errors.IsRetryable(err) {
		log.Printf("retry %s: %v", trial.Cell(), err)
		res, desc, elapsed, err = r.attempt(ctx, w, enc, oc)
	}

	if err != nil {
		trial.Status = types.TrialFailed
		trial.ErrorKind = errors.Code(err)
		if desc != nil {
			trial.PlanHash = desc.Hash
		}
		return trial
	}

	trial.Status = types.TrialSuccess
	trial.Elapsed = elapsed
	trial.BytesRead = res.Stats.BytesRead
	trial.ShuffleBytesRead = res.Stats.ShuffleBytesRead
	trial.ShuffleBytesWritten = res.Stats.ShuffleBytesWritten
	trial.RowsReturned = res.Rows
	trial.ResultChecksum = res.Checksum
	trial.PlanHash = desc.Hash
	return trial
}

// attempt runs the workload once in its own session, timing only the
// measured execution. Cached configurations get one untimed warmup first
// so the timed run measures the cache, not the fill.
func (r *Runner) attempt(ctx context.Context, w types.Workload, enc types.Encoding, oc types.OptimizerConfig) (*engine.Result, *engine.PlanDescriptor, time.Duration, error) {
	session := r.executor.Acquire(oc)
	defer session.Release()

	trialCtx := ctx
	if r.cfg.Benchmark.TrialTimeout > 0 {
		var cancel context.CancelFunc
		trialCtx, cancel = context.WithTimeout(ctx, r.cfg.Benchmark.TrialTimeout)
		defer cancel()
	}

	if oc.CacheEnabled {
		if _, _, err := session.Execute(trialCtx, w, enc); err != nil {
			return nil, nil, 0, r.classify(trialCtx, err, "warmup")
		}
	}

	start := time.Now()
	res, desc, err := session.Execute(trialCtx, w, enc)
	elapsed := time.Since(start)
	if err != nil {
		return nil, desc, 0, r.classify(trialCtx, err, "execution")
	}
	return res, desc, elapsed, nil
}

// classify maps a deadline overrun onto the timeout error kind; other
// errors pass through with their own taxonomy.
func (r *Runner) classify(ctx context.Context, err error, phase string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.NewTimeout(phase + " exceeded the trial timeout")
	}
	return err
}
