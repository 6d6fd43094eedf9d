// Command reconciler is the process entry point: it loads configuration,
// opens the persistence store, wires the IPAM client and resolver cache,
// parses the input CSV, resolves a fresh-vs-resumed session, runs the
// reconciliation, and serves the status HTTP surface for the run's duration.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/DoesN0tCompute/bamreconciler/internal/config"
	"github.com/DoesN0tCompute/bamreconciler/internal/csvsource"
	"github.com/DoesN0tCompute/bamreconciler/internal/diffengine"
	"github.com/DoesN0tCompute/bamreconciler/internal/executor"
	"github.com/DoesN0tCompute/bamreconciler/internal/httpclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/ipamclient"
	"github.com/DoesN0tCompute/bamreconciler/internal/metrics"
	"github.com/DoesN0tCompute/bamreconciler/internal/persistence"
	"github.com/DoesN0tCompute/bamreconciler/internal/planner"
	"github.com/DoesN0tCompute/bamreconciler/internal/reconcile"
	"github.com/DoesN0tCompute/bamreconciler/internal/resilience"
	"github.com/DoesN0tCompute/bamreconciler/internal/resolvercache"
	"github.com/DoesN0tCompute/bamreconciler/internal/throttle"
	promclient "github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configPath  = flag.String("config", "config.yaml", "Path to engine configuration file")
		inputPath   = flag.String("input", "", "Path to the desired-state CSV input file")
		ipamBaseURL = flag.String("ipam-url", "", "Base URL of the IPAM REST API (falls back to BAMRECONCILER_IPAM_URL)")
		sessionID   = flag.String("session-id", "", "Session id to resume; a new uuid is generated when empty and no resumable session is found")
		dryRun      = flag.Bool("dry-run", false, "Compute and plan without mutating the IPAM server")
		allowDelete = flag.Bool("allow-dangerous-delete", false, "Permit DELETE operations against the IPAM server")
	)
	flag.Parse()

	log := logrus.StandardLogger()
	if *inputPath == "" {
		log.Fatal("--input is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load config")
	}
	configureLogging(log, cfg)

	watcher, err := config.Watch(*configPath, cfg, log)
	if err != nil {
		log.WithError(err).Warn("config hot-reload disabled")
	} else {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Warn("shutting down")
		cancel()
	}()

	store, err := openStore(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open persistence store")
	}
	defer store.Close()

	_, shutdownTracing := setupTracing(ctx, cfg, log)
	defer shutdownTracing(context.Background())

	registry := promclient.NewRegistry()
	registry.MustRegister(promclient.NewGoCollector(), promclient.NewProcessCollector(promclient.ProcessCollectorOpts{}))
	metricsRegistry := metrics.New(registry)

	baseURL := *ipamBaseURL
	if baseURL == "" {
		baseURL = os.Getenv("BAMRECONCILER_IPAM_URL")
	}
	if baseURL == "" {
		log.Fatal("--ipam-url or BAMRECONCILER_IPAM_URL is required")
	}
	ipamClient := ipamclient.NewHTTPClient(baseURL, httpclient.New(httpclient.DefaultOptions()), resilience.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		ResetTimeout:     time.Duration(cfg.Circuit.ResetTimeoutSec) * time.Second,
	})

	cache := buildResolverCache(cfg, log)

	exec := buildExecutor(cfg, store, cache, ipamClient, log)

	sess := &reconcile.Session{
		Diff: diffengine.New(diffengine.Policy{
			UpdateMode:            diffengine.UpdateMode(cfg.Diff.UpdateMode),
			SafeMode:              cfg.Diff.SafeMode,
			EnableOrphanDetection: cfg.Diff.EnableOrphanDetection,
		}),
		Resolver: reconcile.NewIPAMResolver(ipamClient, cache),
		Planner:  planner.Options{MaxBatchSize: cfg.Planner.MaxBatchSize},
		Executor: exec,
		Log:      log,
	}

	inputFile, err := os.Open(*inputPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open input file")
	}
	defer inputFile.Close()
	inputHash, err := hashFile(*inputPath)
	if err != nil {
		log.WithError(err).Fatal("failed to hash input file")
	}

	rows, parseErrs := csvsource.Parse(inputFile)
	for _, perr := range parseErrs {
		log.WithError(perr).Warn("skipping malformed input row")
	}
	if len(rows) == 0 {
		log.Fatal("no valid rows parsed from input")
	}

	id, opts, err := resolveSession(ctx, store, *sessionID, inputHash, exec, log)
	if err != nil {
		log.WithError(err).Fatal("failed to resolve session")
	}
	opts.DryRun = *dryRun
	opts.AllowDangerousDelete = *allowDelete

	var orphans []diffengine.OrphanResult // orphan detection needs a full current-state listing the IPAM client has no call for

	statusMu := newRunStatus()
	srv := &http.Server{
		Addr:    cfg.Metrics.Listen,
		Handler: metrics.NewServer(metricsRegistry, func() bool { return true }, statusMu.snapshot),
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Error("status server stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	runCtx, span := otel.Tracer("bamreconciler/cmd").Start(ctx, "run_session")
	statusMu.start(id, len(rows))
	plan, results, err := sess.Run(runCtx, rows, orphans, opts)
	span.End()
	if err != nil {
		_ = store.MarkSessionFailed(context.Background(), id, err.Error())
		log.WithError(err).Fatal("reconciliation run failed")
	}

	failures := 0
	for _, r := range results {
		if !r.Success {
			if skipped, _ := r.Metadata["skipped"].(bool); skipped {
				continue
			}
			failures++
		}
	}
	statusMu.finish(id, exec.Stats())

	if failures == 0 {
		if err := store.MarkSessionCompleted(context.Background(), id); err != nil {
			log.WithError(err).Warn("failed to mark session completed")
		}
	} else {
		_ = store.MarkSessionFailed(context.Background(), id, fmt.Sprintf("%d operations failed", failures))
	}

	log.WithFields(logrus.Fields{
		"session_id": id, "batches": len(plan.Batches), "total_operations": plan.TotalOperations, "failures": failures,
	}).Info("reconciliation run complete")

	os.Exit(failures)
}

func configureLogging(log *logrus.Logger, cfg *config.Config) {
	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{})
	}
}

func openStore(cfg *config.Config) (persistence.Store, error) {
	switch cfg.Persistence.Driver {
	case "postgres":
		return persistence.OpenPostgres(cfg.Persistence.DSN)
	default:
		return persistence.OpenSQLite(cfg.Persistence.DSN)
	}
}

// setupTracing builds a real TracerProvider when tracing is enabled, or a
// no-op provider otherwise; the returned shutdown func is always safe to
// call.
func setupTracing(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*sdktrace.TracerProvider, func(context.Context) error) {
	if !cfg.Tracing.Enabled || cfg.Tracing.ExporterEndpoint == "" {
		return nil, func(context.Context) error { return nil }
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.Tracing.ExporterEndpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		log.WithError(err).Warn("tracing exporter setup failed, continuing without tracing")
		return nil, func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}

func buildResolverCache(cfg *config.Config, log *logrus.Logger) resolvercache.Cache {
	if cfg.ResolverCache.RedisAddress == "" {
		return resolvercache.NewInProcess()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.ResolverCache.RedisAddress})
	return resolvercache.NewRedisMirrored(client, log)
}

func buildExecutor(cfg *config.Config, store persistence.Store, cache resolvercache.Cache, client ipamclient.Client, log *logrus.Logger) *executor.Executor {
	reg := executor.NewRegistry()
	executor.RegisterDefaults(reg, client)
	th := throttle.New(throttle.Config{
		InitialConcurrency:  cfg.Throttle.InitialConcurrency,
		MinConcurrency:      cfg.Throttle.MinConcurrency,
		MaxConcurrency:      cfg.Throttle.MaxConcurrency,
		SuccessStreakToGrow: cfg.Throttle.SuccessStreakToGrow,
		LatencyBudgetMS:     cfg.Throttle.LatencyBudgetMS,
	})
	return executor.New(reg, th, store, cache, log)
}

// resolveSession reuses an in-progress session matching inputHash, preloading
// its created-resource state, or mints a fresh session id.
func resolveSession(ctx context.Context, store persistence.Store, requestedID, inputHash string, exec *executor.Executor, log *logrus.Logger) (string, executor.Options, error) {
	if requestedID == "" {
		if resumable, err := store.FindResumableSession(ctx, inputHash); err == nil && resumable != nil {
			requestedID = resumable.SessionID
		}
	}
	if requestedID == "" {
		requestedID = uuid.NewString()
		return requestedID, executor.Options{SessionID: requestedID, InputHash: inputHash}, nil
	}

	created, err := store.LoadCreatedResources(ctx, requestedID)
	if err != nil {
		return "", executor.Options{}, err
	}
	if len(created) > 0 {
		exec.PreloadCreatedResources(created)
		log.WithField("session_id", requestedID).Info("resuming session, preloaded created-resource state")
	}
	return requestedID, executor.Options{SessionID: requestedID, InputHash: inputHash}, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// runStatus backs the /sessions/{id} status endpoint with the one run this
// process drives; it never tracks more than a single session at a time.
type runStatus struct {
	id        string
	total     int
	startedAt time.Time
	done      bool
	stats     executor.Statistics
}

func newRunStatus() *runStatus { return &runStatus{} }

func (r *runStatus) start(id string, total int) {
	r.id = id
	r.total = total
	r.startedAt = time.Now()
}

func (r *runStatus) finish(id string, stats executor.Statistics) {
	r.done = true
	r.stats = stats
}

func (r *runStatus) snapshot(id string) (map[string]any, bool) {
	if id != r.id {
		return nil, false
	}
	return map[string]any{
		"session_id": r.id,
		"total_rows": r.total,
		"done":       r.done,
		"started_at": r.startedAt,
		"succeeded":  r.stats.Succeeded,
		"failed":     r.stats.Failed,
		"skipped":    r.stats.Skipped,
	}, true
}
