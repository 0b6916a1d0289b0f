package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolCollectors holds the Prometheus collectors an rpcpool.Pool updates on
// every metrics() snapshot and execute() outcome.
type PoolCollectors struct {
	RequestsTotal   *prometheus.CounterVec
	FailoversTotal  *prometheus.CounterVec
	EndpointHealthy *prometheus.GaugeVec
	EndpointLatency *prometheus.HistogramVec
}

// NewPoolCollectors creates and registers the rpcpool collector set for one
// named pool (e.g. "premium", "standard", "free").
func NewPoolCollectors(registerer prometheus.Registerer, pool string) *PoolCollectors {
	return newPoolCollectorsWithLabel(registerer, pool)
}

func newPoolCollectorsWithLabel(registerer prometheus.Registerer, pool string) *PoolCollectors {
	c := &PoolCollectors{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_requests_total",
				Help: "Total number of execute() calls made against the pool.",
			},
			[]string{"pool"},
		),
		FailoversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpcpool_failovers_total",
				Help: "Total number of endpoint attempts that failed during execute().",
			},
			[]string{"pool"},
		),
		EndpointHealthy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rpcpool_endpoint_healthy",
				Help: "1 if the endpoint is currently healthy, 0 if quarantined.",
			},
			[]string{"pool", "url"},
		),
		EndpointLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpcpool_endpoint_latency_ms",
				Help:    "Observed per-request latency in milliseconds, per endpoint.",
				Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"pool", "url"},
		),
	}

	if registerer != nil {
		register := func(col prometheus.Collector) prometheus.Collector {
			if err := registerer.Register(col); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					return are.ExistingCollector
				}
				panic(err)
			}
			return col
		}
		c.RequestsTotal = register(c.RequestsTotal).(*prometheus.CounterVec)
		c.FailoversTotal = register(c.FailoversTotal).(*prometheus.CounterVec)
		c.EndpointHealthy = register(c.EndpointHealthy).(*prometheus.GaugeVec)
		c.EndpointLatency = register(c.EndpointLatency).(*prometheus.HistogramVec)
	}

	// Pre-create the zero-value series so the pool label always appears.
	c.RequestsTotal.WithLabelValues(pool)
	c.FailoversTotal.WithLabelValues(pool)

	return c
}
