package rpcpool

import (
	"strings"

	"github.com/R3E-Network/rpcpool/infrastructure/config"
)

// ConfigFromEnv builds a Config from the RPC_POOL_* environment variables:
//
//	RPC_POOL_ENDPOINTS               comma-separated urls, priority-ascending
//	RPC_POOL_STRATEGY                failover (default) | round-robin | latency | rate-aware
//	RPC_POOL_REQUEST_TIMEOUT         duration, default 10s
//	RPC_POOL_HEALTH_CHECK_INTERVAL   duration, default 30s
//	RPC_POOL_HEALTH_CHECK_TIMEOUT    duration, default 5s
//	RPC_POOL_MAX_CONSECUTIVE_ERRORS  integer, default 3
//	RPC_POOL_RETRY_DELAY             duration, default 5s
//
// Endpoints are assigned priority by list position (0, 1, 2, ...). Callers
// needing per-endpoint alt_url/name/capabilities should build Endpoints
// directly and skip this helper.
func ConfigFromEnv(name string) Config {
	urls := config.SplitAndTrimCSV(config.GetEnv("RPC_POOL_ENDPOINTS", ""))
	endpoints := make([]Endpoint, 0, len(urls))
	for i, url := range urls {
		endpoints = append(endpoints, NewEndpoint(url).WithPriority(uint32(i)))
	}

	return Config{
		Name:                 name,
		Endpoints:            endpoints,
		Strategy:             strategyFromEnv(config.GetEnv("RPC_POOL_STRATEGY", "failover")),
		RequestTimeout:       config.ParseDurationOrDefault(config.GetEnv("RPC_POOL_REQUEST_TIMEOUT", ""), defaultRequestTimeout),
		HealthCheckInterval:  config.ParseDurationOrDefault(config.GetEnv("RPC_POOL_HEALTH_CHECK_INTERVAL", ""), defaultHealthCheckInterval),
		HealthCheckTimeout:   config.ParseDurationOrDefault(config.GetEnv("RPC_POOL_HEALTH_CHECK_TIMEOUT", ""), defaultHealthCheckTimeout),
		MaxConsecutiveErrors: uint64(config.ParseIntOrDefault(config.GetEnv("RPC_POOL_MAX_CONSECUTIVE_ERRORS", ""), int(defaultMaxConsecutiveErrs))),
		RetryDelay:           config.ParseDurationOrDefault(config.GetEnv("RPC_POOL_RETRY_DELAY", ""), defaultRetryDelay),
	}
}

func strategyFromEnv(raw string) SelectionStrategy {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "round-robin", "round_robin", "roundrobin":
		return NewRoundRobinStrategy()
	case "latency", "latency-based", "latency_based":
		return NewLatencyBasedStrategy()
	case "rate-aware", "rate_aware", "rateaware":
		return NewRateAwareStrategy()
	default:
		return NewFailoverStrategy()
	}
}
