package rpcpool

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/rpcpool/infrastructure/logging"
	"github.com/R3E-Network/rpcpool/infrastructure/metrics"
)

// ProbeFunc is the health-probe transport contract (spec.md §6): given a
// URL, perform one minimum-work read-only probe and report success via a
// nil error.
type ProbeFunc func(ctx context.Context, url string) error

// OpFunc is the transport contract consumed by Execute: given a URL,
// perform one transport interaction and produce a result or an error. The
// pool is ignorant of HTTP, JSON-RPC, or TLS; url is an opaque identifier.
type OpFunc[T any] func(ctx context.Context, url string) (T, error)

const (
	defaultRequestTimeout      = 10 * time.Second
	defaultHealthCheckInterval = 30 * time.Second
	defaultHealthCheckTimeout  = 5 * time.Second
	defaultMaxConsecutiveErrs  = uint64(3)
	defaultRetryDelay          = 5 * time.Second
	shutdownGracePeriod        = 5 * time.Second
)

// Config configures a Pool at construction time.
type Config struct {
	Name      string
	Endpoints []Endpoint
	Strategy  SelectionStrategy

	RequestTimeout       time.Duration
	HealthCheckInterval  time.Duration
	HealthCheckTimeout   time.Duration
	MaxConsecutiveErrors uint64
	RetryDelay           time.Duration

	HealthProbe ProbeFunc
	Logger      *logging.Logger
	Collectors  *metrics.PoolCollectors
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = defaultHealthCheckTimeout
	}
	if c.MaxConsecutiveErrors == 0 {
		c.MaxConsecutiveErrors = defaultMaxConsecutiveErrs
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.Strategy == nil {
		c.Strategy = NewFailoverStrategy()
	}
	return c
}

// HealthSummary is the read-only view returned by Pool.HealthSummary().
type HealthSummary struct {
	Healthy      int
	Unhealthy    int
	Total        int
	AllUnhealthy bool
	HealthyPct   float64
}

// EndpointMetrics is the per-endpoint view embedded in a MetricsSnapshot.
type EndpointMetrics struct {
	URL               string
	Name              string
	Total             uint64
	Success           uint64
	Fail              uint64
	AvgLatencyMs      float64
	IsHealthy         bool
	ConsecutiveErrors uint64
	RecoveryAttempts  uint32
}

// MetricsSnapshot is the read-only aggregated view for monitoring, returned
// by Pool.Metrics().
type MetricsSnapshot struct {
	TotalRequests   uint64
	Failovers       uint64
	CurrentEndpoint string
	Endpoints       []EndpointMetrics
}

// Pool holds an ordered endpoint list, per-endpoint stats, a selection
// strategy, policy knobs, and the background health-check lifecycle.
// Callers share a Pool via its pointer; the health task holds a second
// reference for as long as it runs.
type Pool struct {
	name string

	endpoints []Endpoint // immutable after construction, priority-ascending

	statsMu sync.Mutex
	stats   map[string]*EndpointStats

	strategyMu sync.Mutex
	strategy   SelectionStrategy

	requestTimeout       time.Duration
	healthCheckInterval  time.Duration
	healthCheckTimeout   time.Duration
	maxConsecutiveErrors uint64
	retryDelay           time.Duration

	healthProbe ProbeFunc
	logger      *logging.Logger
	collectors  *metrics.PoolCollectors

	totalRequests uint64 // atomic
	failovers     uint64 // atomic

	ctx      context.Context
	cancelFn context.CancelFunc

	healthMu      sync.Mutex
	healthRunning bool
	healthDone    chan struct{}
}

// New constructs a Pool. The config must contain at least one endpoint.
// Endpoints are deduplicated by url (first occurrence wins) and sorted by
// priority ascending, stable with respect to input order for ties.
func New(cfg Config) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, errNoEndpointsConfigured()
	}
	cfg = cfg.withDefaults()

	seen := make(map[string]bool, len(cfg.Endpoints))
	deduped := make([]Endpoint, 0, len(cfg.Endpoints))
	removed := 0
	for _, e := range cfg.Endpoints {
		if seen[e.URL] {
			removed++
			continue
		}
		seen[e.URL] = true
		deduped = append(deduped, e)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Priority < deduped[j].Priority
	})

	stats := make(map[string]*EndpointStats, len(deduped))
	for _, e := range deduped {
		stats[e.URL] = NewEndpointStats(e)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		name:                 cfg.Name,
		endpoints:            deduped,
		stats:                stats,
		strategy:             cfg.Strategy,
		requestTimeout:       cfg.RequestTimeout,
		healthCheckInterval:  cfg.HealthCheckInterval,
		healthCheckTimeout:   cfg.HealthCheckTimeout,
		maxConsecutiveErrors: cfg.MaxConsecutiveErrors,
		retryDelay:           cfg.RetryDelay,
		healthProbe:          cfg.HealthProbe,
		logger:               cfg.Logger,
		collectors:           cfg.Collectors,
		ctx:                  ctx,
		cancelFn:             cancel,
	}

	if removed > 0 && p.logger != nil {
		p.logger.WithFields(map[string]interface{}{
			"pool":    p.name,
			"removed": removed,
		}).Warn("deduplicated endpoints with repeated urls")
	}

	return p, nil
}

// IsShutdown reports whether the pool's cancellation signal has fired.
func (p *Pool) IsShutdown() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// CancellationSignal returns the pool's shared cancellation handle. It is
// closed exactly once, when Shutdown is called.
func (p *Pool) CancellationSignal() <-chan struct{} {
	return p.ctx.Done()
}

// AllURLs returns every endpoint's url, priority-ascending.
func (p *Pool) AllURLs() []string {
	urls := make([]string, len(p.endpoints))
	for i, e := range p.endpoints {
		urls[i] = e.URL
	}
	return urls
}

// CurrentURL reports the url strategy.Select would currently pick with an
// empty exclude set, without perturbing counters beyond whatever the
// strategy's own side effects are (see Metrics).
func (p *Pool) CurrentURL() (string, bool) {
	snapshot := p.snapshotStats()
	p.strategyMu.Lock()
	chosen, ok := p.strategy.Select(p.endpoints, snapshot, map[string]bool{})
	p.strategyMu.Unlock()
	if !ok {
		return "", false
	}
	return chosen.URL, true
}

// MarkUnhealthy marks the endpoint unhealthy immediately. Unknown urls leave
// all stats unchanged; the only effect is a warning, logged when the pool
// has a logger.
func (p *Pool) MarkUnhealthy(url string) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	st, ok := p.stats[url]
	if !ok {
		if p.logger != nil {
			p.logger.WithFields(map[string]interface{}{"pool": p.name, "url": url}).
				Warn("mark_unhealthy on unknown endpoint")
		}
		return
	}
	st.IsHealthy = false
	st.LastErrorTime = time.Now()
	st.HasLastError = true
}

// HealthSummary reports counts of healthy/unhealthy endpoints.
func (p *Pool) HealthSummary() HealthSummary {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	total := len(p.stats)
	healthy := 0
	for _, st := range p.stats {
		if st.IsHealthy {
			healthy++
		}
	}
	unhealthy := total - healthy
	pct := 100.0
	if total > 0 {
		pct = 100.0 * float64(healthy) / float64(total)
	}
	return HealthSummary{
		Healthy:      healthy,
		Unhealthy:    unhealthy,
		Total:        total,
		AllUnhealthy: total > 0 && healthy == 0,
		HealthyPct:   pct,
	}
}

// Metrics returns a snapshot of pool-wide and per-endpoint counters. The
// probe call to strategy.Select (for CurrentEndpoint) may perturb
// strategies with side effects (RoundRobin's counter, RateAware's last-use
// map); this is accepted per spec.md §4.2 since Metrics is informational.
func (p *Pool) Metrics() MetricsSnapshot {
	current, _ := p.CurrentURL()

	p.statsMu.Lock()
	endpoints := make([]EndpointMetrics, 0, len(p.stats))
	for _, e := range p.endpoints {
		st := p.stats[e.URL]
		endpoints = append(endpoints, EndpointMetrics{
			URL:               st.URL,
			Name:              st.Name,
			Total:             st.Total,
			Success:           st.Success,
			Fail:              st.Fail,
			AvgLatencyMs:      st.AvgLatencyMs,
			IsHealthy:         st.IsHealthy,
			ConsecutiveErrors: st.ConsecutiveErrors,
			RecoveryAttempts:  st.RecoveryAttempts,
		})
		if p.collectors != nil {
			healthy := 0.0
			if st.IsHealthy {
				healthy = 1.0
			}
			p.collectors.EndpointHealthy.WithLabelValues(p.name, e.URL).Set(healthy)
		}
	}
	p.statsMu.Unlock()

	return MetricsSnapshot{
		TotalRequests:   atomic.LoadUint64(&p.totalRequests),
		Failovers:       atomic.LoadUint64(&p.failovers),
		CurrentEndpoint: current,
		Endpoints:       endpoints,
	}
}

func (p *Pool) snapshotStats() map[string]EndpointStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	snapshot := make(map[string]EndpointStats, len(p.stats))
	for url, st := range p.stats {
		snapshot[url] = st.Clone()
	}
	return snapshot
}

type opResult[T any] struct {
	value T
	err   error
}

// Execute runs op against the pool's endpoints in the order the strategy
// picks, trying each endpoint at most once per call, and returns the first
// success. If every endpoint fails (or the exclude set exhausts the
// strategy's candidates), it returns AllEndpointsFailed with the last
// observed error's text.
func Execute[T any](ctx context.Context, p *Pool, op OpFunc[T]) (T, error) {
	var zero T

	if p.IsShutdown() {
		return zero, errPoolShutdown()
	}

	atomic.AddUint64(&p.totalRequests, 1)
	if p.collectors != nil {
		p.collectors.RequestsTotal.WithLabelValues(p.name).Inc()
	}

	tried := make(map[string]bool, len(p.endpoints))
	var lastErr error

	for i := 0; i < len(p.endpoints); i++ {
		select {
		case <-p.ctx.Done():
			return zero, errPoolShutdown()
		default:
		}

		snapshot := p.snapshotStats()
		p.strategyMu.Lock()
		chosen, ok := p.strategy.Select(p.endpoints, snapshot, tried)
		p.strategyMu.Unlock()
		if !ok {
			break
		}
		tried[chosen.URL] = true

		result, elapsedMs := invoke(ctx, p, chosen.URL, op)

		if result.err == nil {
			p.recordSuccess(chosen.URL, elapsedMs)
			return result.value, nil
		}

		p.recordFailure(chosen.URL, result.err.Error())
		atomic.AddUint64(&p.failovers, 1)
		if p.collectors != nil {
			p.collectors.FailoversTotal.WithLabelValues(p.name).Inc()
		}
		lastErr = result.err
	}

	lastText := ""
	if lastErr != nil {
		lastText = lastErr.Error()
	}
	if p.logger != nil {
		summary := p.HealthSummary()
		p.logger.WithFields(map[string]interface{}{
			"pool":      p.name,
			"healthy":   summary.Healthy,
			"unhealthy": summary.Unhealthy,
			"total":     summary.Total,
			"last_error": lastText,
		}).Warn("all endpoints failed")
	}
	return zero, errAllEndpointsFailed(lastText)
}

// invoke races op(url) against the request timeout and the pool's
// cancellation signal. Cancellation is checked both before and after the
// race resolves so it takes precedence over a coincident timeout.
func invoke[T any](ctx context.Context, p *Pool, url string, op OpFunc[T]) (opResult[T], float64) {
	start := time.Now()
	opCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	resultCh := make(chan opResult[T], 1)
	go func() {
		v, err := op(opCtx, url)
		resultCh <- opResult[T]{value: v, err: err}
	}()

	var result opResult[T]
	var zero T
	select {
	case <-p.ctx.Done():
		return opResult[T]{value: zero, err: errPoolShutdown()}, 0
	case result = <-resultCh:
		select {
		case <-p.ctx.Done():
			return opResult[T]{value: zero, err: errPoolShutdown()}, 0
		default:
		}
	case <-opCtx.Done():
		select {
		case <-p.ctx.Done():
			return opResult[T]{value: zero, err: errPoolShutdown()}, 0
		default:
		}
		select {
		case result = <-resultCh:
		default:
			result = opResult[T]{value: zero, err: errTimeout(p.requestTimeout.Milliseconds())}
		}
	}

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0
	return result, elapsedMs
}

func (p *Pool) recordSuccess(url string, latencyMs float64) {
	p.statsMu.Lock()
	st := p.stats[url]
	st.RecordSuccess(latencyMs)
	p.statsMu.Unlock()

	if p.collectors != nil {
		p.collectors.EndpointLatency.WithLabelValues(p.name, url).Observe(latencyMs)
		p.collectors.EndpointHealthy.WithLabelValues(p.name, url).Set(1)
	}
}

func (p *Pool) recordFailure(url, msg string) {
	p.statsMu.Lock()
	st := p.stats[url]
	quarantined := st.RecordFailure(msg, p.maxConsecutiveErrors)
	p.statsMu.Unlock()

	if quarantined && p.logger != nil {
		p.logger.WithFields(map[string]interface{}{
			"pool": p.name,
			"url":  url,
		}).Warn("endpoint quarantined after consecutive failures")
	}
	if p.collectors != nil && quarantined {
		p.collectors.EndpointHealthy.WithLabelValues(p.name, url).Set(0)
	}
}

// StartHealthCheck starts the background health-probe loop if it is not
// already running. At most one loop runs per pool at a time.
func (p *Pool) StartHealthCheck() {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()
	if p.healthRunning {
		return
	}
	p.healthRunning = true
	p.healthDone = make(chan struct{})
	taskID := uuid.NewString()

	go p.healthLoop(taskID, p.healthDone)
}

func (p *Pool) healthLoop(taskID string, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.healthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runHealthCycle(taskID)
		}
	}
}

func (p *Pool) runHealthCycle(taskID string) {
	checked := 0
	recovered := 0

	for _, e := range p.endpoints {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		p.statsMu.Lock()
		st := p.stats[e.URL]
		skip := st.IsHealthy || !st.CanRetry(p.retryDelay)
		p.statsMu.Unlock()
		if skip {
			continue
		}

		checked++
		if p.probe(e.URL) {
			p.statsMu.Lock()
			st.MarkRecovered()
			p.statsMu.Unlock()
			recovered++
			if p.collectors != nil {
				p.collectors.EndpointHealthy.WithLabelValues(p.name, e.URL).Set(1)
			}
		} else {
			p.statsMu.Lock()
			st.LastErrorTime = time.Now()
			st.HasLastError = true
			st.IncrementRecoveryAttempts()
			p.statsMu.Unlock()
		}
	}

	if checked > 0 && p.logger != nil {
		p.logger.WithFields(map[string]interface{}{
			"pool":      p.name,
			"task":      taskID,
			"checked":   checked,
			"recovered": recovered,
		}).Debug("health check cycle complete")
	}
}

func (p *Pool) probe(url string) bool {
	if p.healthProbe == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.healthCheckTimeout)
	defer cancel()
	return p.healthProbe(ctx, url) == nil
}

// Shutdown signals cancellation and waits up to 5 seconds for the health
// task to finish. It is idempotent: subsequent calls return immediately.
// Subsequent calls to Execute return PoolShutdown.
func (p *Pool) Shutdown() {
	p.cancelFn()

	p.healthMu.Lock()
	done := p.healthDone
	p.healthMu.Unlock()

	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownGracePeriod):
	}
}
