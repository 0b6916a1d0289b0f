package rpcpool

import (
	"sync"
	"sync/atomic"
	"time"
)

// SelectionStrategy picks the next endpoint to try given the pool's
// endpoints (priority-ascending), a read-consistent stats snapshot, and the
// set of urls already tried in the current request. Implementations may
// carry mutable internal state; the Pool serializes all calls to select
// under a single writer lock.
type SelectionStrategy interface {
	// Select returns the chosen endpoint, or false if no non-excluded
	// candidate exists at all.
	Select(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) (Endpoint, bool)
	// Name is a short identifier used in logs and metrics.
	Name() string
}

func firstNonExcluded(endpoints []Endpoint, exclude map[string]bool) (Endpoint, bool) {
	for _, e := range endpoints {
		if !exclude[e.URL] {
			return e, true
		}
	}
	return Endpoint{}, false
}

func healthyCandidates(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) []Endpoint {
	out := make([]Endpoint, 0, len(endpoints))
	for _, e := range endpoints {
		if exclude[e.URL] {
			continue
		}
		if st, ok := stats[e.URL]; ok && !st.IsHealthy {
			continue
		}
		out = append(out, e)
	}
	return out
}

// FailoverStrategy scans endpoints in priority order and returns the first
// healthy, non-excluded one; falls back to the first non-excluded endpoint
// regardless of health. Deterministic, no mutable state.
type FailoverStrategy struct{}

func NewFailoverStrategy() *FailoverStrategy { return &FailoverStrategy{} }

func (s *FailoverStrategy) Select(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) (Endpoint, bool) {
	for _, e := range endpoints {
		if exclude[e.URL] {
			continue
		}
		if st, ok := stats[e.URL]; !ok || st.IsHealthy {
			return e, true
		}
	}
	return firstNonExcluded(endpoints, exclude)
}

func (s *FailoverStrategy) Name() string { return "failover" }

// RoundRobinStrategy cycles through the healthy, non-excluded endpoints
// (input order preserved) using an atomically incremented counter, so
// concurrent callers observe distinct successive values.
type RoundRobinStrategy struct {
	counter uint64
}

func NewRoundRobinStrategy() *RoundRobinStrategy { return &RoundRobinStrategy{} }

func (s *RoundRobinStrategy) Select(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) (Endpoint, bool) {
	candidates := healthyCandidates(endpoints, stats, exclude)
	if len(candidates) == 0 {
		return firstNonExcluded(endpoints, exclude)
	}
	n := atomic.AddUint64(&s.counter, 1) - 1
	return candidates[n%uint64(len(candidates))], true
}

func (s *RoundRobinStrategy) Name() string { return "round-robin" }

// LatencyBasedStrategy returns the healthy, non-excluded endpoint with the
// lowest avg_latency_ms, treating "no observation" (0) as the most
// preferred value. Ties are broken by input order.
type LatencyBasedStrategy struct{}

func NewLatencyBasedStrategy() *LatencyBasedStrategy { return &LatencyBasedStrategy{} }

func (s *LatencyBasedStrategy) Select(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) (Endpoint, bool) {
	candidates := healthyCandidates(endpoints, stats, exclude)
	if len(candidates) == 0 {
		return firstNonExcluded(endpoints, exclude)
	}

	best := candidates[0]
	bestLatency := stats[best.URL].AvgLatencyMs
	for _, e := range candidates[1:] {
		latency := stats[e.URL].AvgLatencyMs
		if latency < bestLatency {
			best = e
			bestLatency = latency
		}
	}
	return best, true
}

func (s *LatencyBasedStrategy) Name() string { return "latency-based" }

// RateAwareStrategy selects the healthy, non-excluded endpoint that has
// been idle longest, naturally spreading load across all endpoints. Select
// does not consult minInterval: an endpoint is still picked when its
// interval has not elapsed; IsReady reports whether it has.
type RateAwareStrategy struct {
	mu          sync.Mutex
	lastUse     map[string]time.Time
	minInterval time.Duration
}

// NewRateAwareStrategy creates a strategy with the default 1 second minimum
// interval between uses of the same endpoint.
func NewRateAwareStrategy() *RateAwareStrategy {
	return NewRateAwareStrategyWithInterval(time.Second)
}

func NewRateAwareStrategyWithInterval(minInterval time.Duration) *RateAwareStrategy {
	return &RateAwareStrategy{
		lastUse:     make(map[string]time.Time),
		minInterval: minInterval,
	}
}

func (s *RateAwareStrategy) Select(endpoints []Endpoint, stats map[string]EndpointStats, exclude map[string]bool) (Endpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := healthyCandidates(endpoints, stats, exclude)
	if len(candidates) == 0 {
		return firstNonExcluded(endpoints, exclude)
	}

	var selected Endpoint
	var maxIdle time.Duration = -1
	now := time.Now()
	for _, e := range candidates {
		var idle time.Duration
		if last, ok := s.lastUse[e.URL]; ok {
			idle = now.Sub(last)
		} else {
			idle = time.Duration(1<<63 - 1) // never used: treat as +infinity
		}
		if idle > maxIdle {
			maxIdle = idle
			selected = e
		}
	}

	s.lastUse[selected.URL] = now
	return selected, true
}

func (s *RateAwareStrategy) Name() string { return "rate-aware" }

// IsReady reports whether minInterval has elapsed since the endpoint's last
// selection.
func (s *RateAwareStrategy) IsReady(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastUse[url]
	if !ok {
		return true
	}
	return time.Since(last) >= s.minInterval
}
