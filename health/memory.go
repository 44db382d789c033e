package health

import (
	"context"
	"fmt"
	"runtime"
)

// MemoryProbeConfig configures the process memory probe.
type MemoryProbeConfig struct {
	// WarningThreshold is the heap usage ratio that reports degraded.
	// Value should be between 0 and 1. Default: 0.8 (80%)
	WarningThreshold float64

	// CriticalThreshold is the heap usage ratio that reports down.
	// Value should be between 0 and 1. Default: 0.95 (95%)
	CriticalThreshold float64

	// MaxAlloc is the heap budget in bytes. Zero uses the memory obtained
	// from the OS.
	MaxAlloc uint64
}

// MemoryProbe reports heap usage of the current process.
type MemoryProbe struct {
	config MemoryProbeConfig
}

// NewMemoryProbe creates a memory probe.
func NewMemoryProbe(config MemoryProbeConfig) *MemoryProbe {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold + 0.1
		if config.CriticalThreshold > 1 {
			config.CriticalThreshold = 0.99
		}
	}

	return &MemoryProbe{config: config}
}

// Run samples runtime memory statistics.
func (m *MemoryProbe) Run(ctx context.Context) Outcome {
	if err := ctx.Err(); err != nil {
		return DownOutcome(fmt.Errorf("%w: %v", ErrProbeCancelled, err), nil)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	maxAlloc := m.config.MaxAlloc
	if maxAlloc == 0 {
		maxAlloc = stats.Sys
	}

	detail := map[string]any{
		"allocBytes": stats.Alloc,
		"sysBytes":   stats.Sys,
		"heapInUse":  stats.HeapInuse,
		"numGC":      stats.NumGC,
		"goroutines": runtime.NumGoroutine(),
	}
	if maxAlloc == 0 {
		return UpOutcome(detail)
	}

	usage := float64(stats.Alloc) / float64(maxAlloc)
	detail["maxAlloc"] = maxAlloc
	detail["usagePercent"] = usage * 100

	switch {
	case usage >= m.config.CriticalThreshold:
		return DownOutcome(fmt.Errorf("memory usage critical: %.1f%%", usage*100), detail)
	case usage >= m.config.WarningThreshold:
		return DegradedOutcome(fmt.Sprintf("memory usage high: %.1f%%", usage*100), detail)
	default:
		return UpOutcome(detail)
	}
}
