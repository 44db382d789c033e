package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// RequestIDHeader carries the caller's request id.
const RequestIDHeader = "X-Request-ID"

// RequestMetrics are service-level figures reported by the detailed endpoint.
type RequestMetrics struct {
	RequestsPerMinute   float64 `json:"requestsPerMinute"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	ErrorRate           float64 `json:"errorRate"`
	CacheHitRatio       float64 `json:"cacheHitRatio"`
}

// MetricsSource supplies RequestMetrics.
type MetricsSource interface {
	RequestMetrics() RequestMetrics
}

// MetricsSourceFunc adapts an ordinary function to MetricsSource.
type MetricsSourceFunc func() RequestMetrics

// RequestMetrics calls f().
func (f MetricsSourceFunc) RequestMetrics() RequestMetrics {
	return f()
}

// HandlerConfig configures the health endpoints.
type HandlerConfig struct {
	// FreshFor is the maximum age of a cached result served by the basic and
	// readiness endpoints. Default: 30 seconds.
	FreshFor time.Duration

	// BasicTimeout bounds the run triggered by a stale basic request.
	// Default: 5 seconds.
	//
	// Each endpoint bound is raised to the longest registered probe
	// timeout plus a short grace, so probes always reach their own
	// timeout before the endpoint gives up on them.
	BasicTimeout time.Duration

	// ReadinessTimeout bounds the critical-only run. Default: 5 seconds.
	ReadinessTimeout time.Duration

	// DetailedTimeout bounds the detailed run. Default: 10 seconds.
	DetailedTimeout time.Duration

	// StartedAt is the process start used for uptime. Default: now.
	StartedAt time.Time

	// Metrics feeds the detailed endpoint. Optional.
	Metrics MetricsSource
}

// Handler serves the liveness, readiness, basic and detailed endpoints.
type Handler struct {
	agg    *Aggregator
	config HandlerConfig
	group  singleflight.Group
}

// NewHandler creates endpoint handlers backed by agg and its status cache.
func NewHandler(agg *Aggregator, config ...HandlerConfig) *Handler {
	var cfg HandlerConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.FreshFor <= 0 {
		cfg.FreshFor = 30 * time.Second
	}
	if cfg.BasicTimeout <= 0 {
		cfg.BasicTimeout = 5 * time.Second
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 5 * time.Second
	}
	if cfg.DetailedTimeout <= 0 {
		cfg.DetailedTimeout = 10 * time.Second
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Handler{agg: agg, config: cfg}
}

// Envelope is the response wrapper of the basic and detailed endpoints and
// of every error response.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp"`
	RequestID string `json:"requestId"`
}

// LivenessResponse is the body of the liveness endpoint.
type LivenessResponse struct {
	Alive  bool    `json:"alive"`
	Uptime float64 `json:"uptime"`
}

// ReadinessResponse is the body of the readiness endpoint.
type ReadinessResponse struct {
	Ready    bool            `json:"ready"`
	Services map[string]bool `json:"services"`
}

// BasicStatus is the data of the basic endpoint.
type BasicStatus struct {
	Status Status  `json:"status"`
	Uptime float64 `json:"uptime"`
}

// ServiceReport is the per-probe entry of the detailed endpoint.
type ServiceReport struct {
	Status    ProbeStatus    `json:"status"`
	Critical  bool           `json:"critical"`
	LatencyMs int64          `json:"latencyMs"`
	Error     string         `json:"error,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	LastCheck string         `json:"lastCheck"`
}

// DetailedStatus is the data of the detailed endpoint.
type DetailedStatus struct {
	Status     Status                   `json:"status"`
	Uptime     float64                  `json:"uptime"`
	DurationMs int64                    `json:"durationMs"`
	ComputedAt string                   `json:"computedAt"`
	Services   map[string]ServiceReport `json:"services"`
	Metrics    RequestMetrics           `json:"metrics"`
}

// Liveness reports that the process is running. It performs no I/O.
func (h *Handler) Liveness() http.HandlerFunc {
	return h.guard(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, LivenessResponse{Alive: true, Uptime: h.uptime()})
	})
}

// Readiness reports whether every critical probe is available. It serves a
// fresh cached result when one exists and otherwise runs the critical
// probes only.
func (h *Handler) Readiness() http.HandlerFunc {
	return h.guard(func(w http.ResponseWriter, r *http.Request) {
		result, ok := h.agg.Cache().Fresh(time.Now(), h.config.FreshFor)
		if !ok {
			ctx, cancel := context.WithTimeout(r.Context(), h.bound(h.config.ReadinessTimeout))
			defer cancel()
			result = h.agg.RunCritical(ctx)
		}

		resp := ReadinessResponse{Ready: true, Services: make(map[string]bool)}
		for name, p := range result.PerProbe {
			if !p.Critical {
				continue
			}
			up := p.Status != ProbeDown
			resp.Services[name] = up
			if !up {
				resp.Ready = false
			}
		}

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, r, status, resp)
	})
}

// Basic reports the overall status from the cache, refreshing it with a
// bounded run when the cached result is missing or stale. Concurrent stale
// requests share one run.
func (h *Handler) Basic() http.HandlerFunc {
	return h.guard(func(w http.ResponseWriter, r *http.Request) {
		result := h.current(r.Context())
		writeJSON(w, r, httpStatus(result.Overall), Envelope{
			Success:   result.Overall != StatusUnhealthy,
			Data:      BasicStatus{Status: result.Overall, Uptime: h.uptime()},
			Timestamp: timestamp(),
			RequestID: RequestID(r),
		})
	})
}

// Detailed always performs a fresh bounded run and reports every probe.
// The run outlives a disconnected client because it replaces the cache.
//
// The body is an Envelope whose data field holds a DetailedStatus, so the
// per-probe reports are at data.services and the request counters at
// data.metrics:
//
//	{"success":true,"data":{"status":"healthy","uptime":12.5,
//	  "durationMs":41,"computedAt":"...","services":{"db":{...}},
//	  "metrics":{...}},"timestamp":"...","requestId":"..."}
func (h *Handler) Detailed() http.HandlerFunc {
	return h.guard(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.bound(h.config.DetailedTimeout))
		defer cancel()
		result := h.agg.RunAll(ctx)

		data := DetailedStatus{
			Status:     result.Overall,
			Uptime:     h.uptime(),
			DurationMs: result.Duration.Milliseconds(),
			ComputedAt: result.ComputedAt.UTC().Format(time.RFC3339),
			Services:   make(map[string]ServiceReport, len(result.PerProbe)),
		}
		for name, p := range result.PerProbe {
			data.Services[name] = report(p)
		}
		if h.config.Metrics != nil {
			data.Metrics = h.config.Metrics.RequestMetrics()
		}

		writeJSON(w, r, httpStatus(result.Overall), Envelope{
			Success:   result.Overall != StatusUnhealthy,
			Data:      data,
			Timestamp: timestamp(),
			RequestID: RequestID(r),
		})
	})
}

// ServeProbe runs a single named probe and reports it.
func (h *Handler) ServeProbe(w http.ResponseWriter, r *http.Request, name string) {
	h.guard(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.config.DetailedTimeout)
		defer cancel()

		p, err := h.agg.Check(ctx, name)
		if err != nil {
			WriteError(w, r, http.StatusNotFound, "Probe not found", err.Error())
			return
		}

		status := http.StatusOK
		if p.Status == ProbeDown {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, r, status, Envelope{
			Success:   p.Status != ProbeDown,
			Data:      report(p),
			Timestamp: timestamp(),
			RequestID: RequestID(r),
		})
	})(w, r)
}

// RegisterHandlers registers every health endpoint on mux.
func RegisterHandlers(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /health/live", h.Liveness())
	mux.Handle("GET /health/ready", h.Readiness())
	mux.Handle("GET /health", h.Basic())
	mux.Handle("GET /health/detailed", h.Detailed())
	mux.HandleFunc("GET /health/probes/{name}", func(w http.ResponseWriter, r *http.Request) {
		h.ServeProbe(w, r, r.PathValue("name"))
	})
}

// WriteError renders the error envelope.
func WriteError(w http.ResponseWriter, r *http.Request, status int, errText, message string) {
	writeJSON(w, r, status, Envelope{
		Success:   false,
		Error:     errText,
		Message:   message,
		Timestamp: timestamp(),
		RequestID: RequestID(r),
	})
}

// RequestID returns the inbound request id, generating one when absent.
// Middleware that assigns ids should set the request header so every
// handler sees the same value.
func RequestID(r *http.Request) string {
	if id := r.Header.Get(RequestIDHeader); id != "" {
		return id
	}
	id := uuid.NewString()
	r.Header.Set(RequestIDHeader, id)
	return id
}

func (h *Handler) current(ctx context.Context) AggregateResult {
	if result, ok := h.agg.Cache().Fresh(time.Now(), h.config.FreshFor); ok {
		return result
	}

	// The shared run must not be cut short when the first caller goes away.
	v, _, _ := h.group.Do("run-all", func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.bound(h.config.BasicTimeout))
		defer cancel()
		return h.agg.RunAll(runCtx), nil
	})
	return v.(AggregateResult)
}

func (h *Handler) bound(base time.Duration) time.Duration {
	return runBound(h.agg.Registry(), base)
}

// guard converts a panic inside an endpoint into the 503 error envelope.
// Handlers build their whole body before writing, so nothing has been sent
// when a panic is recovered.
func (h *Handler) guard(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				WriteError(w, r, http.StatusServiceUnavailable, "Health check failed", fmt.Sprint(v))
			}
		}()
		fn(w, r)
	}
}

func (h *Handler) uptime() float64 {
	return time.Since(h.config.StartedAt).Seconds()
}

func report(p ProbeResult) ServiceReport {
	return ServiceReport{
		Status:    p.Status,
		Critical:  p.Critical,
		LatencyMs: p.Latency.Milliseconds(),
		Error:     p.Error,
		Detail:    p.Detail,
		LastCheck: p.CheckedAt.UTC().Format(time.RFC3339),
	}
}

func httpStatus(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		status = http.StatusServiceUnavailable
		data, _ = json.Marshal(Envelope{
			Success:   false,
			Error:     "Health check failed",
			Message:   err.Error(),
			Timestamp: timestamp(),
			RequestID: RequestID(r),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(RequestIDHeader, RequestID(r))
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}
