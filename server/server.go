// Package server exposes the health endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonwraymond/healthops/health"
	"github.com/jonwraymond/healthops/observe"
	"github.com/jonwraymond/healthops/resilience"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// ServiceName names the server spans.
	ServiceName string

	// Version and StartedAt are reported by GET /metrics.
	// StartedAt defaults to the time New is called.
	Version   string
	StartedAt time.Time

	// CORSOrigins lists allowed origins. Empty disables CORS headers.
	CORSOrigins []string

	// RequestsPerMinute is the per-client-IP limit. Zero disables it.
	RequestsPerMinute int

	// DetailedLimiter guards /health/detailed, which always runs every
	// probe. Nil disables it.
	DetailedLimiter *resilience.RateLimiter
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Handler *health.Handler
	Logger  observe.Logger

	// Stats records every request. Optional.
	Stats *observe.RequestStats

	// Metrics backs GET /metrics. Optional.
	Metrics health.MetricsSource

	// Gatherer backs GET /metrics/prometheus. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

// Server is the healthd HTTP server.
type Server struct {
	config Config
	deps   Deps
	router http.Handler
	logger observe.Logger
}

// New creates a server.
func New(config Config, deps Deps) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.ServiceName == "" {
		config.ServiceName = "healthd"
	}
	if config.StartedAt.IsZero() {
		config.StartedAt = time.Now()
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{config: config, deps: deps, logger: deps.Logger.WithComponent("server")}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observe.NewMiddleware(s.deps.Logger, s.deps.Stats).Handler)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", health.RequestIDHeader},
			ExposedHeaders: []string{health.RequestIDHeader},
			MaxAge:         300,
		}))
	}
	if s.config.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(
			s.config.RequestsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "60")
				health.WriteError(w, r, http.StatusTooManyRequests, "Too many requests", "request rate limit exceeded")
			}),
		))
	}

	h := s.deps.Handler
	r.Get("/health/live", h.Liveness())
	r.Get("/health/ready", h.Readiness())
	r.Get("/health", h.Basic())
	r.With(s.limitDetailed).Get("/health/detailed", h.Detailed())
	r.Get("/health/probes/{name}", func(w http.ResponseWriter, r *http.Request) {
		h.ServeProbe(w, r, chi.URLParam(r, "name"))
	})
	r.Get("/metrics", s.processMetrics)
	r.Handle("/metrics/prometheus", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		health.WriteError(w, r, http.StatusNotFound, "Not found", r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		health.WriteError(w, r, http.StatusMethodNotAllowed, "Method not allowed", r.Method)
	})

	return otelhttp.NewHandler(r, s.config.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// requestID makes sure every request carries an id before any handler or
// log line reads it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(health.RequestIDHeader, health.RequestID(r))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) limitDetailed(next http.Handler) http.Handler {
	rl := s.config.DetailedLimiter
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow() {
			w.Header().Set("Retry-After", "1")
			health.WriteError(w, r, http.StatusTooManyRequests, "Too many requests", resilience.ErrRateLimitExceeded.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ProcessMetrics is the GET /metrics body: a read-only snapshot of this
// process plus the request figures.
type ProcessMetrics struct {
	Version  string                `json:"version"`
	Uptime   float64               `json:"uptime"`
	Memory   MemoryMetrics         `json:"memory"`
	CPU      CPUMetrics            `json:"cpu"`
	Requests health.RequestMetrics `json:"requests"`
}

// MemoryMetrics are Go runtime memory figures in bytes.
type MemoryMetrics struct {
	HeapAlloc uint64 `json:"heapAlloc"`
	HeapInuse uint64 `json:"heapInuse"`
	Sys       uint64 `json:"sys"`
	NumGC     uint32 `json:"numGC"`
}

// CPUMetrics describes scheduler capacity and load.
type CPUMetrics struct {
	NumCPU     int `json:"numCPU"`
	GOMAXPROCS int `json:"gomaxprocs"`
	Goroutines int `json:"goroutines"`
}

func (s *Server) snapshot() ProcessMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := ProcessMetrics{
		Version: s.config.Version,
		Uptime:  time.Since(s.config.StartedAt).Seconds(),
		Memory: MemoryMetrics{
			HeapAlloc: ms.HeapAlloc,
			HeapInuse: ms.HeapInuse,
			Sys:       ms.Sys,
			NumGC:     ms.NumGC,
		},
		CPU: CPUMetrics{
			NumCPU:     runtime.NumCPU(),
			GOMAXPROCS: runtime.GOMAXPROCS(0),
			Goroutines: runtime.NumGoroutine(),
		},
	}
	if s.deps.Metrics != nil {
		m.Requests = s.deps.Metrics.RequestMetrics()
	}
	return m
}

func (s *Server) processMetrics(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(health.Envelope{
		Success:   true,
		Data:      s.snapshot(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		RequestID: health.RequestID(r),
	})
	if err != nil {
		health.WriteError(w, r, http.StatusInternalServerError, "Encoding failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(append(body, '\n'))
}

// ListenAndServe serves until ctx is done, then shuts down gracefully
// within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadTimeout:       s.config.ReadTimeout,
		ReadHeaderTimeout: s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info(ctx, "http server listening", observe.Field{Key: "addr", Value: ln.Addr().String()})

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	s.logger.Info(ctx, "http server stopped")
	return nil
}
