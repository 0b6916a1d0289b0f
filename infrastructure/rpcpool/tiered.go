package rpcpool

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/R3E-Network/rpcpool/infrastructure/chains"
	"github.com/R3E-Network/rpcpool/infrastructure/fallback"
	"github.com/R3E-Network/rpcpool/infrastructure/logging"
	"github.com/R3E-Network/rpcpool/infrastructure/metrics"
	"github.com/R3E-Network/rpcpool/infrastructure/ratelimit"
)

// Tier is the coarse classification TieredPool uses for priority-based
// routing.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierFree     Tier = "free"
)

// RequestPriority is the caller-supplied priority TieredPool routes by.
type RequestPriority int

const (
	PriorityCritical RequestPriority = iota
	PriorityNormal
	PriorityLow
)

// TieredPool composes up to three Pools keyed by tier and routes each
// request by caller-supplied priority, falling back to other tiers on
// configured policy. A tier with no endpoints is simply absent from the
// mapping.
type TieredPool struct {
	pools map[Tier]*Pool

	allowCriticalFallback bool
	allowLowEscalation    bool

	// freeTierLimiter is an additive aggregate throttle across the whole
	// Free tier, independent of RateAwareStrategy's own per-endpoint idle
	// spacing; see SPEC_FULL.md DOMAIN STACK.
	freeTierLimiter *ratelimit.RateLimiter
}

// tierOrder computes the sequence of tiers to try for a given priority, per
// spec.md §4.4.
func tierOrder(priority RequestPriority, allowCriticalFallback, allowLowEscalation bool) []Tier {
	switch priority {
	case PriorityCritical:
		if allowCriticalFallback {
			return []Tier{TierPremium, TierStandard, TierFree}
		}
		return []Tier{TierPremium}
	case PriorityLow:
		if allowLowEscalation {
			return []Tier{TierFree, TierStandard, TierPremium}
		}
		return []Tier{TierFree}
	default: // PriorityNormal
		return []Tier{TierStandard, TierFree}
	}
}

func (tp *TieredPool) presentOrder(priority RequestPriority) []Tier {
	order := tierOrder(priority, tp.allowCriticalFallback, tp.allowLowEscalation)
	present := make([]Tier, 0, len(order))
	for _, tier := range order {
		if _, ok := tp.pools[tier]; ok {
			present = append(present, tier)
		}
	}
	return present
}

// TieredExecute iterates the tier order for priority, calling each present
// tier's Execute in turn and returning the first success. Each inner Execute
// already performs per-tier failover across its own endpoints; TieredExecute
// only contributes cross-tier fallback, never cross-tier retry of the same
// failed endpoint. Tiers are tried back-to-back with no backoff between
// them; the only wait is the optional Free-tier rate limiter, which may
// block before the Free tier is tried.
func TieredExecute[T any](ctx context.Context, tp *TieredPool, priority RequestPriority, op OpFunc[T]) (T, error) {
	var zero T

	present := tp.presentOrder(priority)
	if len(present) == 0 {
		return zero, errNoEndpointsConfigured()
	}

	labels := make([]string, len(present))
	attempts := make([]fallback.Func, len(present))
	for i, tier := range present {
		tier := tier
		labels[i] = string(tier)
		attempts[i] = func(ctx context.Context) (interface{}, error) {
			if tier == TierFree && tp.freeTierLimiter != nil {
				if err := tp.freeTierLimiter.Wait(ctx); err != nil {
					return nil, err
				}
			}
			return Execute(ctx, tp.pools[tier], op)
		}
	}

	result := fallback.Execute(ctx, labels, attempts...)
	if result.Err != nil {
		return zero, result.Err
	}
	return result.Value.(T), nil
}

// Shutdown shuts down every inner pool.
func (tp *TieredPool) Shutdown() {
	for _, pool := range tp.pools {
		pool.Shutdown()
	}
}

// StartHealthCheck starts the background health loop on every inner pool.
func (tp *TieredPool) StartHealthCheck() {
	for _, pool := range tp.pools {
		pool.StartHealthCheck()
	}
}

// Pool returns the inner pool for a tier, if present.
func (tp *TieredPool) Pool(tier Tier) (*Pool, bool) {
	p, ok := tp.pools[tier]
	return p, ok
}

// TieredPoolBuilder assembles a TieredPool tier by tier. Endpoints are
// added by tier; duplicate urls across tiers are removed, first add wins.
type TieredPoolBuilder struct {
	seenURLs map[string]bool

	premium  []Endpoint
	standard []Endpoint
	free     []Endpoint

	allowCriticalFallback bool
	allowLowEscalation    bool

	maxConsecutiveErrors uint64
	healthProbe          ProbeFunc
	logger               *logging.Logger
	registerer           prometheus.Registerer
	freeTierRateLimit    *ratelimit.RateLimitConfig
}

// NewTieredPoolBuilder creates a builder with spec.md's defaults:
// allow_critical_fallback=true, allow_low_escalation=false.
func NewTieredPoolBuilder() *TieredPoolBuilder {
	return &TieredPoolBuilder{
		seenURLs:              make(map[string]bool),
		allowCriticalFallback: true,
		allowLowEscalation:    false,
	}
}

func (b *TieredPoolBuilder) addTo(dst *[]Endpoint, endpoints []Endpoint) {
	for _, e := range endpoints {
		if b.seenURLs[e.URL] {
			continue
		}
		b.seenURLs[e.URL] = true
		*dst = append(*dst, e)
	}
}

func (b *TieredPoolBuilder) AddPremium(endpoints ...Endpoint) *TieredPoolBuilder {
	b.addTo(&b.premium, endpoints)
	return b
}

func (b *TieredPoolBuilder) AddStandard(endpoints ...Endpoint) *TieredPoolBuilder {
	b.addTo(&b.standard, endpoints)
	return b
}

func (b *TieredPoolBuilder) AddFree(endpoints ...Endpoint) *TieredPoolBuilder {
	b.addTo(&b.free, endpoints)
	return b
}

// LoadFreePresets bulk-loads the Free tier from a preset network registry,
// applying the §3 capability priority adjustment to each endpoint as it is
// added (spec.md §4.4).
func (b *TieredPoolBuilder) LoadFreePresets(cfg *chains.Config) *TieredPoolBuilder {
	if cfg == nil {
		return b
	}
	for _, network := range cfg.ActiveNetworks() {
		for _, url := range network.RPCUrls {
			e := NewEndpoint(url).WithName(network.Name).WithChainID(network.ChainID)
			e = e.WithPriority(AdjustedPriority(e.Priority, e.Capabilities))
			b.addTo(&b.free, []Endpoint{e})
		}
	}
	return b
}

func (b *TieredPoolBuilder) WithAllowCriticalFallback(allow bool) *TieredPoolBuilder {
	b.allowCriticalFallback = allow
	return b
}

func (b *TieredPoolBuilder) WithAllowLowEscalation(allow bool) *TieredPoolBuilder {
	b.allowLowEscalation = allow
	return b
}

func (b *TieredPoolBuilder) WithLogger(logger *logging.Logger) *TieredPoolBuilder {
	b.logger = logger
	return b
}

func (b *TieredPoolBuilder) WithRegisterer(registerer prometheus.Registerer) *TieredPoolBuilder {
	b.registerer = registerer
	return b
}

func (b *TieredPoolBuilder) WithHealthProbe(probe ProbeFunc) *TieredPoolBuilder {
	b.healthProbe = probe
	return b
}

func (b *TieredPoolBuilder) WithMaxConsecutiveErrors(n uint64) *TieredPoolBuilder {
	b.maxConsecutiveErrors = n
	return b
}

// WithFreeTierRateLimit installs an aggregate throttle across the whole
// Free tier, additive to RateAwareStrategy's own per-endpoint spacing.
func (b *TieredPoolBuilder) WithFreeTierRateLimit(cfg ratelimit.RateLimitConfig) *TieredPoolBuilder {
	b.freeTierRateLimit = &cfg
	return b
}

func (b *TieredPoolBuilder) collectorsFor(tier string) *metrics.PoolCollectors {
	if b.registerer == nil {
		return nil
	}
	return metrics.NewPoolCollectors(b.registerer, tier)
}

func (b *TieredPoolBuilder) buildTier(name string, endpoints []Endpoint, strategy SelectionStrategy) (*Pool, error) {
	if len(endpoints) == 0 {
		return nil, nil
	}
	return New(Config{
		Name:                 name,
		Endpoints:            endpoints,
		Strategy:             strategy,
		MaxConsecutiveErrors: b.maxConsecutiveErrors,
		HealthProbe:          b.healthProbe,
		Logger:               b.logger,
		Collectors:           b.collectorsFor(name),
	})
}

// Build assembles the TieredPool. At least one tier must have endpoints.
func (b *TieredPoolBuilder) Build() (*TieredPool, error) {
	pools := make(map[Tier]*Pool, 3)

	premium, err := b.buildTier(string(TierPremium), b.premium, NewFailoverStrategy())
	if err != nil {
		return nil, err
	}
	if premium != nil {
		pools[TierPremium] = premium
	}

	standard, err := b.buildTier(string(TierStandard), b.standard, NewFailoverStrategy())
	if err != nil {
		return nil, err
	}
	if standard != nil {
		pools[TierStandard] = standard
	}

	free, err := b.buildTier(string(TierFree), b.free, NewRateAwareStrategy())
	if err != nil {
		return nil, err
	}
	if free != nil {
		pools[TierFree] = free
	}

	if len(pools) == 0 {
		return nil, errNoEndpointsConfigured()
	}

	var limiter *ratelimit.RateLimiter
	if b.freeTierRateLimit != nil && free != nil {
		limiter = ratelimit.New(*b.freeTierRateLimit)
	}

	return &TieredPool{
		pools:                 pools,
		allowCriticalFallback: b.allowCriticalFallback,
		allowLowEscalation:    b.allowLowEscalation,
		freeTierLimiter:       limiter,
	}, nil
}
