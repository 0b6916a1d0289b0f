package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/R3E-Network/rpcpool/infrastructure/metrics"
	"github.com/R3E-Network/rpcpool/infrastructure/resilience"
	"github.com/R3E-Network/rpcpool/infrastructure/rpcpool"
)

// EndpointReport is one row of the capability report (spec.md §6).
type EndpointReport struct {
	Name         string             `json:"name"`
	URL          string             `json:"url"`
	ChainID      uint64             `json:"chain_id"`
	ChainName    string             `json:"chain_name"`
	Reachable    bool               `json:"reachable"`
	AvgLatencyMs *uint64            `json:"avg_latency_ms,omitempty"`
	Capabilities rpcpool.Capability `json:"capabilities"`
	Grade        string             `json:"grade"`
}

// EvaluationReport is the top-level document the evaluator emits.
type EvaluationReport struct {
	Timestamp string           `json:"timestamp"`
	Endpoints []EndpointReport `json:"endpoints"`
	Summary   ReportSummary    `json:"summary"`
}

// ReportSummary aggregates counts across every evaluated endpoint.
type ReportSummary struct {
	Total       int `json:"total"`
	Reachable   int `json:"reachable"`
	Unreachable int `json:"unreachable"`
	GradeA      int `json:"grade_a"`
	GradeB      int `json:"grade_b"`
	GradeC      int `json:"grade_c"`
	GradeD      int `json:"grade_d"`
	GradeF      int `json:"grade_f"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

var batchSizes = []int{1, 10, 50, 100, 500, 1000}
var blockRanges = []uint64{100, 1_000, 5_000, 10_000, 50_000, 100_000}

// evaluator probes one endpoint at a time under a shared HTTP client and
// retry policy. Each endpoint gets its own resilience.CircuitBreaker, keyed
// by URL: evaluateAll runs many evaluators' probe sequences concurrently
// across endpoints, and once an endpoint's breaker trips, the remaining
// probes in that endpoint's own sequence (log support, batch escalation,
// block-range escalation) fail fast instead of each re-running the full
// retry/timeout cycle against a confirmed-dead endpoint.
type evaluator struct {
	client     *http.Client
	retry      resilience.RetryConfig
	timeout    time.Duration
	metrics    *metrics.Metrics
	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
}

func newEvaluator(timeout time.Duration) *evaluator {
	return &evaluator{
		client:   &http.Client{Timeout: timeout},
		retry:    resilience.DefaultRetryConfig(),
		timeout:  timeout,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// breakerFor returns the circuit breaker for url, creating it on first use.
func (ev *evaluator) breakerFor(url string) *resilience.CircuitBreaker {
	ev.breakersMu.Lock()
	defer ev.breakersMu.Unlock()
	cb, ok := ev.breakers[url]
	if !ok {
		cb = resilience.New(resilience.DefaultConfig())
		ev.breakers[url] = cb
	}
	return cb
}

func (ev *evaluator) rpcCall(ctx context.Context, url, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var result json.RawMessage
	err = ev.breakerFor(url).Execute(ctx, func() error {
		return resilience.Retry(ctx, ev.retry, func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := ev.client.Do(req)
			if err != nil {
				return fmt.Errorf("http error: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("http %d", resp.StatusCode)
			}

			var decoded jsonRPCResponse
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return fmt.Errorf("json decode error: %w", err)
			}
			if len(decoded.Error) > 0 && string(decoded.Error) != "null" {
				return fmt.Errorf("rpc error: %s", decoded.Error)
			}
			if len(decoded.Result) == 0 {
				return fmt.Errorf("no result in response")
			}
			result = decoded.Result
			return nil
		})
	})

	if ev.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
			ev.metrics.RecordError("rpc-evaluator", "rpc_call", method)
		}
		ev.metrics.RecordHTTPRequest("rpc-evaluator", method, url, status, time.Since(start))
	}
	return result, err
}

func (ev *evaluator) rpcBatchCall(ctx context.Context, url string, batchSize int) error {
	batch := make([]map[string]interface{}, batchSize)
	for i := range batch {
		batch[i] = map[string]interface{}{
			"jsonrpc": "2.0",
			"method":  "eth_blockNumber",
			"params":  []interface{}{},
			"id":      i + 1,
		}
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}

	return ev.breakerFor(url).Execute(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := ev.client.Do(req)
		if err != nil {
			return fmt.Errorf("http error: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("http %d", resp.StatusCode)
		}

		var results []jsonRPCResponse
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return fmt.Errorf("batch decode error: %w", err)
		}
		if len(results) != batchSize {
			return fmt.Errorf("expected %d results, got %d", batchSize, len(results))
		}
		for _, r := range results {
			if len(r.Error) > 0 && string(r.Error) != "null" {
				return fmt.Errorf("batch response contains errors")
			}
		}
		return nil
	})
}

// evaluate runs the full probe sequence for one endpoint: reachability (3
// eth_blockNumber samples), log support, max batch size, and max block
// range, then grades the result.
func (ev *evaluator) evaluate(ctx context.Context, p preset) EndpointReport {
	report := EndpointReport{
		Name:      p.Name,
		URL:       p.URL,
		ChainID:   p.ChainID,
		ChainName: p.Chain,
	}

	var latencies []uint64
	var latestBlock uint64
	haveBlock := false

	for i := 0; i < 3; i++ {
		start := time.Now()
		result, err := ev.rpcCall(ctx, p.URL, "eth_blockNumber", []interface{}{})
		if err != nil {
			continue
		}
		report.Reachable = true
		latencies = append(latencies, uint64(time.Since(start).Milliseconds()))
		if !haveBlock {
			var hex string
			if json.Unmarshal(result, &hex) == nil {
				if block, err := strconv.ParseUint(strings.TrimPrefix(hex, "0x"), 16, 64); err == nil {
					latestBlock = block
					haveBlock = true
				}
			}
		}
	}

	if !report.Reachable {
		report.Capabilities = rpcpool.Capability{}
		report.Grade = rpcpool.GradeF.String()
		return report
	}

	if len(latencies) > 0 {
		var sum uint64
		for _, l := range latencies {
			sum += l
		}
		avg := sum / uint64(len(latencies))
		report.AvgLatencyMs = &avg
	}

	supportsLogs := false
	if haveBlock {
		from := uint64(0)
		if latestBlock > 10 {
			from = latestBlock - 10
		}
		_, err := ev.rpcCall(ctx, p.URL, "eth_getLogs", []interface{}{logsParams(from, latestBlock)})
		supportsLogs = err == nil
	}

	maxBatch := uint64(0)
	for _, size := range batchSizes {
		if err := ev.rpcBatchCall(ctx, p.URL, size); err != nil {
			break
		}
		maxBatch = uint64(size)
	}
	if maxBatch >= 1000 {
		maxBatch = 0 // unlimited
	}

	maxRange := uint64(0)
	if supportsLogs && haveBlock {
		for _, r := range blockRanges {
			from := uint64(0)
			if latestBlock > r {
				from = latestBlock - r
			}
			_, err := ev.rpcCall(ctx, p.URL, "eth_getLogs", []interface{}{logsParams(from, latestBlock)})
			if err != nil {
				break
			}
			maxRange = r
		}
		if maxRange >= 100_000 {
			maxRange = 0 // unlimited
		}
	}

	capabilities := rpcpool.Capability{
		SupportsLogs: &supportsLogs,
		MaxBatch:     &maxBatch,
		MaxRange:     &maxRange,
	}

	report.Capabilities = capabilities
	report.Grade = rpcpool.GradeEndpoint(capabilities).String()
	return report
}

func logsParams(from, to uint64) map[string]string {
	return map[string]string{
		"fromBlock": fmt.Sprintf("0x%x", from),
		"toBlock":   fmt.Sprintf("0x%x", to),
	}
}

func buildSummary(reports []EndpointReport) ReportSummary {
	s := ReportSummary{Total: len(reports)}
	for _, r := range reports {
		if r.Reachable {
			s.Reachable++
		} else {
			s.Unreachable++
		}
		switch r.Grade {
		case "A":
			s.GradeA++
		case "B":
			s.GradeB++
		case "C":
			s.GradeC++
		case "D":
			s.GradeD++
		case "F":
			s.GradeF++
		}
	}
	return s
}
