package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pingsantohq/atlasdecode/internal/config"
	"github.com/pingsantohq/atlasdecode/internal/corpus"
	"github.com/pingsantohq/atlasdecode/internal/failures"
	"github.com/pingsantohq/atlasdecode/internal/logging"
	"github.com/pingsantohq/atlasdecode/internal/metrics"
	"github.com/pingsantohq/atlasdecode/internal/server"
	"github.com/pingsantohq/atlasdecode/internal/validate"
	"github.com/pingsantohq/atlasdecode/pkg/measurement"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "validate":
		err = runValidate(ctx, os.Args[2:], os.Stdout)
	case "decode":
		err = runDecode(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "route":
		err = runRoute(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "failures":
		err = runFailures(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "command %s failed: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("atlasdecode: decode and check measurement results")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  atlasdecode validate [--config path] [--strict] [--workers n] [--max-failures n] [--metrics] FILE...")
	fmt.Println("  atlasdecode decode [--strict] [--type ping|traceroute|dns|http|ntp|sslcert] [FILE|-]")
	fmt.Println("  atlasdecode route [--strict] [FILE|-]")
	fmt.Println("  atlasdecode serve [--config path] [--addr host:port]")
	fmt.Println("  atlasdecode failures [--config path] [--dir spill-dir] [--batch n] [--forward]")
}

func loadConfig(ctx context.Context, path string) (config.Config, error) {
	if path == "" {
		return config.LoadFromEnv(ctx)
	}
	return config.Load(ctx, path)
}

func runValidate(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	strict := fs.Bool("strict", false, "Reject fields the decoder does not know")
	workers := fs.Int("workers", 0, "Decode workers (default from config)")
	maxFailures := fs.Int("max-failures", -1, "Stop after this many failures, 0 for never (default from config)")
	printMetrics := fs.Bool("metrics", false, "Print Prometheus metrics after the run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		return errors.New("at least one dump file is required")
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *strict {
		cfg.Validate.Strict = true
	}
	if *workers > 0 {
		cfg.Validate.Workers = *workers
	}
	if *maxFailures >= 0 {
		cfg.Validate.MaxFailures = *maxFailures
	}

	logger := logging.New("validate")
	store := metrics.NewStore()

	sink, closeSink, err := openSink(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeSink()

	var verifier *corpus.Verifier
	key, err := cfg.Corpus.ResolvePublicKey()
	if err != nil {
		return err
	}
	if key != "" {
		if verifier, err = corpus.NewVerifier(key); err != nil {
			return fmt.Errorf("load corpus public key: %w", err)
		}
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := validate.New(cfg.Validate, validate.Dependencies{
		Logger:           logger,
		Sink:             sink,
		Metrics:          store.DecodeRecorder(),
		Verifier:         verifier,
		RequireSignature: cfg.Corpus.RequireSignature,
	})
	report, err := runner.Run(runCtx, paths...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if *printMetrics {
		if err := store.WritePrometheus(out); err != nil {
			return err
		}
	}
	if report.Failures > 0 {
		return fmt.Errorf("%d of %d record(s) failed to decode", report.Failures, report.Records)
	}
	return nil
}

// openSink picks the failure sink: PostgreSQL when a DSN is configured, then the spill
// directory, otherwise failures are only counted and logged.
func openSink(ctx context.Context, cfg config.Config, store *metrics.Store) (failures.Sink, func(), error) {
	if cfg.Failures.PostgresDSN != "" {
		pg, err := failures.NewPostgresSink(ctx, cfg.Failures.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	if cfg.Spill.Dir != "" {
		capBytes, segmentBytes, err := cfg.Spill.Limits()
		if err != nil {
			return nil, nil, err
		}
		spill, err := failures.OpenSpill(cfg.Spill.Dir, capBytes, segmentBytes, failures.WithSpillRecorder(store.SpillRecorder()))
		if err != nil {
			return nil, nil, fmt.Errorf("open spill store: %w", err)
		}
		return spill, func() { spill.Close() }, nil
	}
	return failures.Discard, func() {}, nil
}

func openInput(path string, stdin io.Reader) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), "stdin", nil
	}
	rc, err := corpus.Open(path)
	return rc, path, err
}

// eachRecord calls fn for every record in r, stopping at the first error.
func eachRecord(ctx context.Context, r io.Reader, source string, fn func(corpus.Record) error) error {
	records := make(chan corpus.Record)
	grp, grpCtx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer close(records)
		return corpus.Records(grpCtx, r, source, records)
	})
	grp.Go(func() error {
		for rec := range records {
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	return grp.Wait()
}

func runDecode(ctx context.Context, args []string, stdin io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "Reject fields the decoder does not know")
	typeName := fs.String("type", "", "Decode as this measurement type instead of reading the type field")
	if err := fs.Parse(args); err != nil {
		return err
	}

	decode := measurement.Decode
	if *typeName != "" {
		kind, err := measurement.ParseMeasurementType(*typeName)
		if err != nil {
			return err
		}
		decode = func(data []byte, opts ...measurement.Option) (measurement.Result, error) {
			return measurement.DecodeAs(kind, data, opts...)
		}
	}

	rc, source, err := openInput(fs.Arg(0), stdin)
	if err != nil {
		return err
	}
	defer rc.Close()

	enc := json.NewEncoder(out)
	failed := 0
	err = eachRecord(ctx, rc, source, func(rec corpus.Record) error {
		res, err := decode(rec.Raw, measurement.WithStrict(*strict))
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", rec.Source, rec.Line, err)
			return nil
		}
		return enc.Encode(res)
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d record(s) failed to decode", failed)
	}
	return nil
}

func runRoute(ctx context.Context, args []string, stdin io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "Reject fields the decoder does not know")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rc, source, err := openInput(fs.Arg(0), stdin)
	if err != nil {
		return err
	}
	defer rc.Close()

	return eachRecord(ctx, rc, source, func(rec corpus.Record) error {
		res, err := measurement.DecodeTraceroute(rec.Raw, measurement.WithStrict(*strict))
		if err != nil {
			return fmt.Errorf("%s:%d: %w", rec.Source, rec.Line, err)
		}
		fmt.Fprintf(out, "msm %d probe %d: %s -> %s\n", res.MeasurementID, res.ProbeID, res.From, res.DstName)
		for group := range res.RouteWithTimeouts() {
			fmt.Fprintf(out, "  %s\n", strings.Join(group, ","))
		}
		return nil
	})
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	addr := fs.String("addr", "", "Listen address (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *addr != "" {
		cfg.Serve.Addr = *addr
	}
	bodyLimit, err := cfg.Serve.BodyLimit()
	if err != nil {
		return err
	}

	logger := logging.New("serve")
	srv := server.New(server.Config{
		Addr:         cfg.Serve.Addr,
		ReadTimeout:  cfg.Serve.ReadTimeout,
		WriteTimeout: cfg.Serve.WriteTimeout,
		IdleTimeout:  cfg.Serve.IdleTimeout,
		MaxBodyBytes: bodyLimit,
	}, server.Dependencies{
		Logger:  logger,
		Metrics: metrics.NewStore(),
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	grp, groupCtx := errgroup.WithContext(runCtx)
	grp.Go(func() error {
		logger.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	grp.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := grp.Wait(); err != nil {
		return err
	}
	logger.Printf("stopped")
	return nil
}

func runFailures(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("failures", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	dir := fs.String("dir", "", "Spill directory (default from config)")
	batchSize := fs.Int("batch", 256, "Failures read per batch")
	forward := fs.Bool("forward", false, "Insert drained failures into PostgreSQL instead of printing them")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *dir != "" {
		cfg.Spill.Dir = *dir
	}
	if cfg.Spill.Dir == "" {
		return errors.New("spill dir must be configured")
	}
	capBytes, segmentBytes, err := cfg.Spill.Limits()
	if err != nil {
		return err
	}
	spill, err := failures.OpenSpill(cfg.Spill.Dir, capBytes, segmentBytes)
	if err != nil {
		return fmt.Errorf("open spill store: %w", err)
	}
	defer spill.Close()

	var dest failures.Sink
	if *forward {
		if cfg.Failures.PostgresDSN == "" {
			return errors.New("--forward needs failures.postgres_dsn")
		}
		pg, err := failures.NewPostgresSink(ctx, cfg.Failures.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		dest = pg
	}

	enc := json.NewEncoder(out)
	for {
		batch, err := spill.ReadBatch(*batchSize)
		if err != nil {
			return err
		}
		if len(batch.Failures) == 0 {
			return nil
		}
		for _, f := range batch.Failures {
			if dest != nil {
				if err := dest.Record(ctx, f); err != nil {
					return fmt.Errorf("forward failure: %w", err)
				}
				continue
			}
			if err := enc.Encode(f); err != nil {
				return err
			}
		}
		if err := spill.Ack(batch); err != nil {
			return fmt.Errorf("ack batch: %w", err)
		}
	}
}
