// Command healthd aggregates the health of the service's dependencies and
// serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jonwraymond/healthops/config"
	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/observe"
	"github.com/jonwraymond/healthops/resilience"
	"github.com/jonwraymond/healthops/server"
)

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "dotenv file loaded before the environment")
	manifest := flag.String("manifest", "", "probe manifest path (overrides HEALTHD_MANIFEST_PATH)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envFile, *manifest); err != nil {
		fmt.Fprintln(os.Stderr, "healthd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile, manifestPath string) error {
	cfg, err := config.Load(ctx, config.LoadOptions{EnvFile: envFile})
	if err != nil {
		return err
	}
	if manifestPath != "" {
		cfg.Manifest.Path = manifestPath
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	obsCfg := cfg.Observe(version)
	obsCfg.Metrics.Registerer = promRegistry
	obs, err := observe.NewObserver(ctx, obsCfg)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	logger := obs.Logger().WithComponent("healthd")
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintln(os.Stderr, "healthd: telemetry shutdown:", err)
		}
	}()

	deps, err := openDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	registry := health.NewRegistry(cfg.Health.ProbeTimeout)
	resolver, err := newResolver(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = resolver.Close() }()

	apply := func(ctx context.Context, m *config.Manifest) error {
		if err := m.ResolveSecrets(ctx, resolver); err != nil {
			return err
		}
		descs, err := deps.builders.BuildAll(m.Probes)
		if err != nil {
			return err
		}
		if err := registry.Replace(descs); err != nil {
			return err
		}
		logger.Info(ctx, "probe manifest applied",
			observe.Field{Key: "path", Value: cfg.Manifest.Path},
			observe.Field{Key: "probes", Value: len(descs)},
		)
		return nil
	}

	m, err := config.LoadManifest(cfg.Manifest.Path)
	if err != nil {
		return err
	}
	if err := apply(ctx, m); err != nil {
		return fmt.Errorf("manifest %s: %w", cfg.Manifest.Path, err)
	}

	hook, err := observe.ProbeHookFromObserver(obs)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	agg := health.NewAggregator(registry, health.AggregatorConfig{
		MaxConcurrency: cfg.Health.MaxConcurrency,
		Policy:         cfg.HealthPolicy(),
		Hook:           hook,
	})

	startedAt := time.Now()
	stats := observe.NewRequestStats()
	metrics := health.MetricsSourceFunc(func() health.RequestMetrics {
		snap := stats.Snapshot()
		return health.RequestMetrics{
			RequestsPerMinute:   snap.RequestsPerMinute,
			AverageResponseTime: snap.AverageResponseTimeMs,
			ErrorRate:           snap.ErrorRate,
			CacheHitRatio:       deps.cache.Stats().HitRatio(),
		}
	})

	handler := health.NewHandler(agg, health.HandlerConfig{
		FreshFor:         cfg.Health.FreshFor,
		BasicTimeout:     cfg.Health.BasicTimeout,
		ReadinessTimeout: cfg.Health.ReadinessTimeout,
		DetailedTimeout:  cfg.Health.DetailedTimeout,
		StartedAt:        startedAt,
		Metrics:          metrics,
	})

	srv := server.New(server.Config{
		Addr:              cfg.Server.Addr,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
		ServiceName:       cfg.Telemetry.ServiceName,
		Version:           version,
		StartedAt:         startedAt,
		CORSOrigins:       cfg.Server.CORSOrigins,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		DetailedLimiter: resilience.NewRateLimiter(resilience.RateLimiterConfig{
			Name:  "detailed-endpoint",
			Rate:  cfg.Server.DetailedRate,
			Burst: cfg.Server.DetailedBurst,
		}),
	}, server.Deps{
		Handler:  handler,
		Logger:   obs.Logger(),
		Stats:    stats,
		Metrics:  metrics,
		Gatherer: promRegistry,
	})

	scheduler := health.NewScheduler(agg, health.SchedulerConfig{
		Interval: cfg.Health.Interval,
		OnResult: deps.onResult(ctx, logger),
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	go scheduler.Run(runCtx)
	if cfg.Manifest.Watch {
		w := config.NewManifestWatcher(cfg.Manifest.Path, cfg.Manifest.Debounce, obs.Logger(), apply)
		go func() {
			if err := w.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errc <- fmt.Errorf("manifest watcher: %w", err)
			}
		}()
	}
	go func() { errc <- srv.ListenAndServe(runCtx) }()

	logger.Info(ctx, "healthd started",
		observe.Field{Key: "addr", Value: cfg.Server.Addr},
		observe.Field{Key: "version", Value: version},
		observe.Field{Key: "probes", Value: registry.Len()},
	)

	select {
	case <-ctx.Done():
		logger.Info(context.Background(), "shutting down")
		cancel()
		return <-errc
	case err := <-errc:
		return err
	}
}
