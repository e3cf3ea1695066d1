package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tableflow/internal/config"
	"tableflow/internal/loader"
	"tableflow/internal/logging"
	"tableflow/internal/metrics"
	"tableflow/internal/metrics/datadog"
	"tableflow/internal/metrics/prompush"
	"tableflow/internal/pipeline"
	"tableflow/internal/report"
	"tableflow/internal/storage"
	"tableflow/internal/transformer"
)

// errRunFailed means the run completed but some rows or tables failed.
var errRunFailed = errors.New("run finished with failures")

// Seams for tests.
var (
	openSink   = storage.New
	newBackend = metricsBackend
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		concurrency int
		failures    int
	)
	cmd := &cobra.Command{
		Use:   "run [table-id...]",
		Short: "Run the pipeline",
		Long: `Load every configured table (or only the named ones), process the rows
and print a per-table summary. The exit status is non-zero when any row or
table failed.

Examples:
  tableflow run -c pipelines/nightly.yaml
  tableflow run -c pipelines/nightly.yaml t1 t3 --concurrency 16`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				p.Runtime.ConcurrencyLimit = concurrency
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rr, err := runPipeline(ctx, p, args, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), rr, failures)
			if rr.HasFailures() {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "row tasks in flight per table (overrides config)")
	cmd.Flags().IntVar(&failures, "show-failures", 10, "failed rows to print per table")
	return cmd
}

// runPipeline wires config into logging, metrics, storage, loader and
// orchestrator, and runs the selected tables.
func runPipeline(ctx context.Context, p config.Pipeline, only []string, stderr io.Writer) (report.RunReport, error) {
	if err := checkPipeline(stderr, p); err != nil {
		return report.RunReport{}, err
	}
	pred, xform, err := transformer.Build(p)
	if err != nil {
		return report.RunReport{}, err
	}

	log, closeLog := logging.Setup(stderr, p.Log.File, logging.ParseLevel(p.Log.Level))
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(stderr, "close log file: %v\n", err)
		}
	}()
	log = log.With("job", p.Job)

	b, closeBackend, err := newBackend(p)
	if err != nil {
		return report.RunReport{}, fmt.Errorf("metrics: %w", err)
	}
	metrics.SetBackend(b)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Warn("metrics flush failed", "err", err)
		}
		if closeBackend != nil {
			_ = closeBackend()
		}
		metrics.Reset()
	}()

	start := time.Now()
	sink, err := openSink(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DSN, Database: p.Storage.Database})
	metrics.RecordStep(p.Job, "open_storage", err, time.Since(start))
	if err != nil {
		return report.RunReport{}, err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("close storage", "err", err)
		}
	}()

	orch, err := pipeline.New(pipeline.Config{
		WorkerConfig: pipeline.WorkerConfig{
			Predicate:   pred,
			Transform:   xform,
			Sink:        sink,
			Collection:  p.Collection,
			Concurrency: p.Runtime.ConcurrencyLimit,
			Logger:      log,
		},
		MaxParallelTables: p.Runtime.MaxParallelTables,
	})
	if err != nil {
		return report.RunReport{}, err
	}

	sources, ids, err := tableSources(p, only)
	if err != nil {
		return report.RunReport{}, err
	}
	catalog := loader.NewCatalog(sources, loader.NewHTTPFetcher(httpConfig(p.HTTP)), log)

	start = time.Now()
	rr, err := orch.LoadAndRun(ctx, catalog, ids)
	metrics.RecordStep(p.Job, "run", runErr(rr, err), time.Since(start))
	if err != nil {
		return rr, err
	}
	log.Info("pipeline finished", "run_id", rr.RunID, "failed", rr.HasFailures(), "elapsed", time.Since(start))
	return rr, nil
}

func runErr(rr report.RunReport, err error) error {
	if err == nil && rr.HasFailures() {
		return errRunFailed
	}
	return err
}

// tableSources maps configured tables to loader sources. only, when set,
// restricts the run to those IDs in the given order.
func tableSources(p config.Pipeline, only []string) (map[string]loader.Source, []string, error) {
	sources := make(map[string]loader.Source, len(p.Tables))
	ids := make([]string, 0, len(p.Tables))
	for _, t := range p.Tables {
		sources[t.ID] = loader.Source{Location: t.Path, Options: decodeOptions(t)}
		ids = append(ids, t.ID)
	}
	if len(only) == 0 {
		return sources, ids, nil
	}
	for _, id := range only {
		if _, ok := sources[id]; !ok {
			return nil, nil, fmt.Errorf("unknown table %q", id)
		}
	}
	return sources, only, nil
}

func decodeOptions(t config.Table) loader.Options {
	return loader.Options{
		Format:      loader.Format(t.Format),
		Comma:       t.Options.Rune("comma", 0),
		TrimSpace:   t.Options.Bool("trim_space", false),
		LazyQuotes:  t.Options.Bool("lazy_quotes", false),
		HeaderMap:   t.Options.StringMap("header_map"),
		AllowArrays: t.Options.Bool("allow_arrays", false),
	}
}

func httpConfig(h config.HTTP) loader.HTTPConfig {
	cfg := loader.HTTPConfig{
		Timeout:            time.Duration(h.TimeoutSeconds) * time.Second,
		MaxRetries:         h.MaxRetries,
		InsecureSkipVerify: h.InsecureSkipVerify,
	}
	if len(h.Headers) > 0 {
		cfg.Header = http.Header{}
		for k, v := range h.Headers {
			cfg.Header.Set(k, v)
		}
	}
	return cfg
}

// metricsBackend builds the configured backend. The returned close func may
// be nil.
func metricsBackend(p config.Pipeline) (metrics.Backend, func() error, error) {
	switch p.Metrics.Backend {
	case "", "none":
		return nil, nil, nil
	case "pushgateway":
		b, err := prompush.NewBackend(p.Job, p.Metrics.PushgatewayURL)
		if err != nil {
			return nil, nil, err
		}
		return b, nil, nil
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       p.Metrics.DatadogAddr,
			Namespace:  "tableflow.",
			GlobalTags: append([]string{"job:" + p.Job}, p.Metrics.Tags...),
		})
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics backend %q", p.Metrics.Backend)
	}
}
