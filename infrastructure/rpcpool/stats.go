package rpcpool

import (
	"time"
)

const (
	maxRecoveryAttempts = 10
	maxBackoffSeconds   = 300
	errorTruncateBytes  = 512
	truncatedSuffix     = "...(truncated)"
)

// EndpointStats is the mutable per-endpoint record: counters, EMA latency,
// health flag, and the recovery-attempt counter used for backoff. One
// instance exists per endpoint for the life of its Pool, keyed by url.
//
// EndpointStats carries no lock of its own; the Pool serializes access to
// every entry under its single statsMu mutex (see pool.go).
type EndpointStats struct {
	URL  string
	Name string

	Total   uint64
	Success uint64
	Fail    uint64

	AvgLatencyMs  float64
	LastLatencyMs float64

	LastError     string
	LastErrorTime time.Time
	HasLastError  bool

	IsHealthy         bool
	ConsecutiveErrors uint64
	RecoveryAttempts  uint32
}

// NewEndpointStats creates a fresh, healthy stats entry for an endpoint.
func NewEndpointStats(e Endpoint) *EndpointStats {
	return &EndpointStats{
		URL:       e.URL,
		Name:      e.Name,
		IsHealthy: true,
	}
}

// Clone returns a value copy, used to hand strategies a read-consistent
// snapshot without holding the pool's lock across their computation.
func (s *EndpointStats) Clone() EndpointStats {
	return *s
}

// RecordSuccess increments total/success, applies the EMA update, resets
// consecutive_errors, and marks the endpoint healthy. It does not touch
// RecoveryAttempts (spec.md §4.3).
func (s *EndpointStats) RecordSuccess(latencyMs float64) {
	s.Total++
	s.Success++
	s.updateLatency(latencyMs)
	s.ConsecutiveErrors = 0
	s.IsHealthy = true
}

// RecordFailure increments total/fail, increments consecutive_errors,
// records the (truncated) error, and returns true iff consecutive_errors
// has now reached maxConsecutive — in which case it also marks the
// endpoint unhealthy.
func (s *EndpointStats) RecordFailure(msg string, maxConsecutive uint64) bool {
	s.Total++
	s.Fail++
	s.ConsecutiveErrors++
	s.LastError = truncateError(msg)
	s.LastErrorTime = time.Now()
	s.HasLastError = true

	if s.ConsecutiveErrors >= maxConsecutive {
		s.IsHealthy = false
		return true
	}
	return false
}

// updateLatency applies the EMA update from spec.md §3: the first
// observation seeds the average directly, every later one blends 0.9 of
// history with 0.1 of the new sample.
func (s *EndpointStats) updateLatency(x float64) {
	if s.AvgLatencyMs == 0 {
		s.AvgLatencyMs = x
	} else {
		s.AvgLatencyMs = 0.9*s.AvgLatencyMs + 0.1*x
	}
	s.LastLatencyMs = x
}

// UpdateLatency is the standalone EMA operation from spec.md §4.3, usable
// outside of a full RecordSuccess (e.g. by tests exercising EMA directly).
func (s *EndpointStats) UpdateLatency(x float64) {
	s.updateLatency(x)
}

// CurrentRetryDelay returns delay(baseDelay, RecoveryAttempts) per the
// backoff schedule in spec.md §3: min(B * 2^k, 300s), k clamped to <=10.
func CurrentRetryDelay(base time.Duration, recoveryAttempts uint32) time.Duration {
	k := recoveryAttempts
	if k > maxRecoveryAttempts {
		k = maxRecoveryAttempts
	}
	delay := base * time.Duration(uint64(1)<<k)
	cap := time.Duration(maxBackoffSeconds) * time.Second
	if delay > cap || delay < 0 {
		return cap
	}
	return delay
}

// CurrentRetryDelay is the per-instance form used by the health loop.
func (s *EndpointStats) CurrentRetryDelay(base time.Duration) time.Duration {
	return CurrentRetryDelay(base, s.RecoveryAttempts)
}

// CanRetry reports whether enough time has elapsed since the last error for
// a health probe to be attempted again.
func (s *EndpointStats) CanRetry(base time.Duration) bool {
	if !s.HasLastError {
		return true
	}
	return time.Since(s.LastErrorTime) >= s.CurrentRetryDelay(base)
}

// IncrementRecoveryAttempts increments the counter, capped at 10 (a no-op
// once the cap is reached).
func (s *EndpointStats) IncrementRecoveryAttempts() {
	if s.RecoveryAttempts < maxRecoveryAttempts {
		s.RecoveryAttempts++
	}
}

// MarkRecovered resets health state after a successful probe.
func (s *EndpointStats) MarkRecovered() {
	s.IsHealthy = true
	s.ConsecutiveErrors = 0
	s.RecoveryAttempts = 0
}

// SuccessRate returns a percentage in [0, 100]; an endpoint with no
// observations reports 100.0 (optimistic default).
func (s *EndpointStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 100.0
	}
	return 100.0 * float64(s.Success) / float64(s.Total)
}

func truncateError(msg string) string {
	if len(msg) <= errorTruncateBytes {
		return msg
	}
	return msg[:errorTruncateBytes] + truncatedSuffix
}
