package main

import (
	"context"
	"fmt"

	"github.com/jonwraymond/healthops/cache"
	"github.com/jonwraymond/healthops/config"
	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/observe"
	"github.com/jonwraymond/healthops/postgres"
	"github.com/jonwraymond/healthops/pricefeed"
	"github.com/jonwraymond/healthops/probes"
	"github.com/jonwraymond/healthops/queue"
	"github.com/jonwraymond/healthops/secret"
)

// transitionJobKind is published whenever the overall status changes.
const transitionJobKind = "health.transition"

const defaultTransitionsKey = "healthd:transitions"

type statsCache interface {
	cache.Cache
	cache.StatsReporter
}

// dependencies holds the collaborators whose health is reported and the
// builders that expose them to the probe manifest as "checker" probes.
type dependencies struct {
	builders *probes.Builders
	cache    statsCache
	redis    *cache.RedisCache
	queue    *queue.RedisQueue
	events   *queue.RedisQueue
	prices   *pricefeed.Client
	db       *postgres.Pool
}

func openDependencies(ctx context.Context, cfg *config.Config, logger observe.Logger) (*dependencies, error) {
	d := &dependencies{builders: probes.NewBuilders()}

	if cfg.Redis.Addr != "" {
		d.redis = cache.NewRedisCache(cache.RedisConfig{
			Addr:          cfg.Redis.Addr,
			Password:      cfg.Redis.Password,
			DB:            cfg.Redis.DB,
			Prefix:        cfg.Redis.Prefix,
			SlowThreshold: cfg.Redis.SlowThreshold,
		})
		d.cache = d.redis
		d.queue = queue.New(d.redis.Client(), queue.Config{
			Key:        cfg.Queue.Key,
			MaxBacklog: cfg.Queue.MaxBacklog,
		})
		// The transition feed is capped and has no consumer here, so it is
		// not a checker.
		eventsKey := cfg.Queue.TransitionsKey
		if eventsKey == "" {
			eventsKey = defaultTransitionsKey
		}
		d.events = queue.New(d.redis.Client(), queue.Config{
			Name:   "transitions",
			Key:    eventsKey,
			MaxLen: max(cfg.Queue.TransitionsMaxLen, 1),
		})
		d.builders.RegisterChecker(d.redis)
		d.builders.RegisterChecker(d.queue)
	} else {
		mem := cache.NewMemoryCache("memory-cache")
		d.cache = mem
		d.builders.RegisterChecker(mem)
		logger.Warn(ctx, "redis not configured, using in-memory cache")
	}

	if cfg.PriceFeed.Enabled {
		loader, err := cache.NewLoader(d.cache, cache.NewDefaultKeyer(), cache.DefaultPolicy())
		if err != nil {
			d.Close(logger)
			return nil, fmt.Errorf("price cache: %w", err)
		}
		d.prices = pricefeed.New(pricefeed.Config{
			BaseURL: cfg.PriceFeed.BaseURL,
			APIKey:  cfg.PriceFeed.APIKey,
			Timeout: cfg.PriceFeed.Timeout,
			Loader:  loader,
		})
		exec := d.prices.Executor()
		d.builders.RegisterChecker(d.prices)
		d.builders.RegisterChecker(exec.CircuitBreaker())
		d.builders.RegisterChecker(exec.RateLimiter())
	}

	if cfg.Postgres.DSN != "" {
		db, err := postgres.New(ctx, postgres.Config{
			DSN:        cfg.Postgres.DSN,
			MaxConns:   cfg.Postgres.MaxConns,
			Saturation: cfg.Postgres.Saturation,
		})
		if err != nil {
			d.Close(logger)
			return nil, err
		}
		d.db = db
		d.builders.RegisterChecker(db)
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Warn(ctx, "transition history unavailable", observe.Field{Key: "error", Value: err.Error()})
		}
	}

	return d, nil
}

// onResult logs overall status changes, records them in Postgres and
// publishes them on the transition feed when those are configured.
func (d *dependencies) onResult(ctx context.Context, logger observe.Logger) func(prev *health.AggregateResult, next health.AggregateResult) {
	return func(prev *health.AggregateResult, next health.AggregateResult) {
		if prev == nil {
			logger.Info(ctx, "initial health computed",
				observe.Field{Key: "status", Value: next.Overall.String()},
				observe.Field{Key: "probes", Value: len(next.PerProbe)},
			)
			return
		}
		if prev.Overall == next.Overall {
			return
		}

		from := prev.Overall
		fields := []observe.Field{
			{Key: "from", Value: from.String()},
			{Key: "to", Value: next.Overall.String()},
		}
		if next.Overall == health.StatusUnhealthy {
			logger.Error(ctx, "overall health changed", fields...)
		} else {
			logger.Info(ctx, "overall health changed", fields...)
		}

		if d.db != nil {
			if err := d.db.RecordTransition(ctx, from, next); err != nil {
				logger.Warn(ctx, "record transition failed", observe.Field{Key: "error", Value: err.Error()})
			}
		}
		if d.events != nil {
			payload := map[string]string{"from": from.String(), "to": next.Overall.String()}
			if _, err := d.events.Enqueue(ctx, transitionJobKind, payload); err != nil {
				logger.Warn(ctx, "publish transition failed", observe.Field{Key: "error", Value: err.Error()})
			}
		}
	}
}

// Close releases every open collaborator.
func (d *dependencies) Close(logger observe.Logger) {
	if d.db != nil {
		d.db.Close()
	}
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Warn(context.Background(), "redis close failed", observe.Field{Key: "error", Value: err.Error()})
		}
	}
}

func newResolver(cfg *config.Config) (*secret.Resolver, error) {
	r, err := secret.DefaultRegistry.NewResolverFrom(true, map[string]any{"baseDir": cfg.SecretsDir})
	if err != nil {
		return nil, fmt.Errorf("secret resolver: %w", err)
	}
	return r, nil
}
