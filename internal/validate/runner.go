// Package validate decodes whole result dumps and reports what fails.
package validate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pingsantohq/atlasdecode/internal/config"
	"github.com/pingsantohq/atlasdecode/internal/corpus"
	"github.com/pingsantohq/atlasdecode/internal/failures"
	"github.com/pingsantohq/atlasdecode/internal/metrics"
	"github.com/pingsantohq/atlasdecode/internal/worker"
	"github.com/pingsantohq/atlasdecode/pkg/measurement"
)

// ErrSignatureRequired is returned when signatures are required but no key is configured.
var ErrSignatureRequired = errors.New("corpus signature required but no public key configured")

// Dependencies holds collaborators of a Runner. Nil fields get quiet defaults.
type Dependencies struct {
	Logger           *log.Logger
	Sink             failures.Sink
	Metrics          metrics.DecodeRecorder
	Verifier         *corpus.Verifier
	RequireSignature bool
	Decoder          worker.Decoder
}

// Report summarizes one run. ByType counts records per measurement type and ByKind
// counts failures per error kind.
type Report struct {
	RunID    string         `json:"run_id"`
	Records  int            `json:"records"`
	Decoded  int            `json:"decoded"`
	Failures int            `json:"failures"`
	ByType   map[string]int `json:"by_type"`
	ByKind   map[string]int `json:"by_kind"`
	Aborted  bool           `json:"aborted"`
}

type Runner struct {
	cfg  config.ValidateConfig
	deps Dependencies
}

func New(cfg config.ValidateConfig, deps Dependencies) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.FailureLogRate <= 0 {
		cfg.FailureLogRate = 1
	}
	if cfg.FailureLogBurst <= 0 {
		cfg.FailureLogBurst = 1
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Sink == nil {
		deps.Sink = failures.Discard
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NoopDecodeRecorder{}
	}
	if deps.Decoder == nil {
		deps.Decoder = measurement.Decode
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Run decodes every record in paths. It stops early once MaxFailures failures have
// been seen; that is reported through Report.Aborted, not as an error.
func (r *Runner) Run(ctx context.Context, paths ...string) (Report, error) {
	report := Report{
		RunID:  uuid.NewString(),
		ByType: make(map[string]int),
		ByKind: make(map[string]int),
	}
	logger := r.deps.Logger
	logger.Printf("run %s: validating %d file(s) with %d workers (strict=%v)", report.RunID, len(paths), r.cfg.Workers, r.cfg.Strict)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	records := make(chan corpus.Record, r.cfg.Workers*4)
	results := make(chan worker.Result, r.cfg.Workers*4)

	grp, grpCtx := errgroup.WithContext(runCtx)
	grp.Go(func() error {
		defer close(records)
		for _, path := range paths {
			if err := r.verify(grpCtx, path); err != nil {
				return err
			}
			if err := corpus.Stream(grpCtx, path, records); err != nil {
				return err
			}
		}
		return nil
	})

	pool := worker.NewPool(records, worker.ChanSink(results),
		worker.WithWorkerCount(r.cfg.Workers),
		worker.WithDecoder(r.deps.Decoder),
		worker.WithDecodeOptions(measurement.WithStrict(r.cfg.Strict)),
		worker.WithInvariantChecks(r.cfg.CheckInvariants),
	)
	wg := pool.Start(grpCtx)
	grp.Go(func() error {
		wg.Wait()
		close(results)
		return nil
	})

	limiter := rate.NewLimiter(rate.Limit(r.cfg.FailureLogRate), r.cfg.FailureLogBurst)
	var sinkErr error
	for res := range results {
		if report.Aborted || sinkErr != nil {
			continue
		}
		kind := string(res.Type)
		if kind == "" {
			kind = "unknown"
		}
		report.Records++
		report.ByType[kind]++
		r.deps.Metrics.ObserveRecord(kind)
		if res.Err == nil {
			report.Decoded++
			r.deps.Metrics.ObserveDecoded(kind)
			continue
		}

		f := failures.FromError(report.RunID, res.Record, res.Type, res.Err)
		report.Failures++
		report.ByKind[f.Kind]++
		r.deps.Metrics.ObserveFailure(kind, f.Kind)
		if limiter.Allow() {
			logger.Printf("run %s: %s:%d %s %s at %q: %s\n%s", report.RunID, f.Source, f.Line, kind, f.Kind, f.Path, f.Message, f.Pretty())
		}
		if err := r.deps.Sink.Record(ctx, f); err != nil {
			sinkErr = err
			cancel()
			continue
		}
		if r.cfg.MaxFailures > 0 && report.Failures >= r.cfg.MaxFailures {
			logger.Printf("run %s: stopping after %d failures", report.RunID, report.Failures)
			report.Aborted = true
			cancel()
		}
	}

	err := grp.Wait()
	if sinkErr != nil {
		return report, fmt.Errorf("record failure: %w", sinkErr)
	}
	if err != nil && !(report.Aborted && errors.Is(err, context.Canceled) && ctx.Err() == nil) {
		return report, err
	}
	logger.Printf("run %s: %d records, %d decoded, %d failed", report.RunID, report.Records, report.Decoded, report.Failures)
	return report, nil
}

func (r *Runner) verify(ctx context.Context, path string) error {
	if r.deps.Verifier == nil {
		if r.deps.RequireSignature {
			return fmt.Errorf("verify %q: %w", path, ErrSignatureRequired)
		}
		return nil
	}
	err := r.deps.Verifier.VerifyFile(ctx, path)
	if errors.Is(err, corpus.ErrNoSignature) && !r.deps.RequireSignature {
		r.deps.Logger.Printf("no signature for %s, reading unverified", path)
		return nil
	}
	return err
}
