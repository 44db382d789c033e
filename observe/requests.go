package observe

import (
	"sync"
	"time"
)

const statsWindowSeconds = 60

// RequestSnapshot summarizes the last minute of HTTP traffic.
type RequestSnapshot struct {
	RequestsPerMinute     float64
	AverageResponseTimeMs float64
	ErrorRate             float64
}

type statsBucket struct {
	second  int64
	count   int64
	errors  int64
	totalMs float64
}

// RequestStats keeps a sliding one-minute window of request counts,
// latencies and server errors in one-second buckets.
//
// The zero value is not usable; construct with NewRequestStats.
type RequestStats struct {
	mu      sync.Mutex
	buckets [statsWindowSeconds]statsBucket
	now     func() time.Time
}

// NewRequestStats creates an empty window.
func NewRequestStats() *RequestStats {
	return &RequestStats{now: time.Now}
}

// Record adds one request.
func (s *RequestStats) Record(d time.Duration, failed bool) {
	sec := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	b := &s.buckets[sec%statsWindowSeconds]
	if b.second != sec {
		*b = statsBucket{second: sec}
	}
	b.count++
	b.totalMs += float64(d.Microseconds()) / 1000
	if failed {
		b.errors++
	}
}

// Snapshot returns the figures for the last minute.
func (s *RequestStats) Snapshot() RequestSnapshot {
	cutoff := s.now().Unix() - statsWindowSeconds

	s.mu.Lock()
	defer s.mu.Unlock()

	var count, errs int64
	var totalMs float64
	for _, b := range s.buckets {
		if b.second <= cutoff || b.count == 0 {
			continue
		}
		count += b.count
		errs += b.errors
		totalMs += b.totalMs
	}
	if count == 0 {
		return RequestSnapshot{}
	}
	return RequestSnapshot{
		RequestsPerMinute:     float64(count),
		AverageResponseTimeMs: totalMs / float64(count),
		ErrorRate:             float64(errs) / float64(count),
	}
}
