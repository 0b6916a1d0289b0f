// Command rpc-evaluator probes RPC endpoints from the preset registry (or a
// custom chains.Config) and prints a capability report: reachability,
// latency, eth_getLogs support, max batch size, max block range, and the
// resulting grade.
//
// Usage:
//
//	rpc-evaluator -chain-id 1
//	rpc-evaluator -chain-id 0 -format json -output report.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/R3E-Network/rpcpool/infrastructure/metrics"
)

func main() {
	_ = godotenv.Load()

	var (
		chainID     uint64
		format      string
		output      string
		concurrency int
		timeoutSecs int
		metricsAddr string
	)

	flag.Uint64Var(&chainID, "chain-id", 0, "chain id to evaluate (0 = all chains)")
	flag.StringVar(&format, "format", "table", "output format: table or json")
	flag.StringVar(&output, "output", "", "output file path (stdout if empty)")
	flag.IntVar(&concurrency, "concurrency", 4, "max concurrent evaluations")
	flag.IntVar(&timeoutSecs, "timeout", 10, "request timeout in seconds")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus /metrics on this address while evaluating")
	flag.Parse()

	presets := loadPresets(chainID)
	if len(presets) == 0 {
		fmt.Fprintln(os.Stderr, "No endpoints to evaluate. Check chain id or CHAINS_CONFIG_PATH.")
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Evaluating %d endpoints with concurrency=%d...\n", len(presets), concurrency)

	ev := newEvaluator(time.Duration(timeoutSecs) * time.Second)
	if metricsAddr != "" {
		ev.metrics = metrics.Init("rpc-evaluator")
		serveMetrics(metricsAddr)
	}
	reports := evaluateAll(ev, presets, concurrency)

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].ChainID != reports[j].ChainID {
			return reports[i].ChainID < reports[j].ChainID
		}
		return reports[i].Name < reports[j].Name
	})

	evalReport := EvaluationReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Endpoints: reports,
		Summary:   buildSummary(reports),
	}

	if format == "json" {
		writeJSON(evalReport, output)
		return
	}
	printTable(evalReport)
}

// serveMetrics starts a /metrics endpoint in the background. It does not
// block startup and does not fail the run if the port is unavailable: a
// metrics scrape target is best-effort, never a reason to skip evaluation.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server stopped: %v\n", err)
		}
	}()
	fmt.Fprintf(os.Stderr, "Serving Prometheus metrics on %s/metrics\n", addr)
}

// evaluateAll evaluates every preset with at most concurrency evaluations
// in flight, using a buffered channel as a counting semaphore.
func evaluateAll(ev *evaluator, presets []preset, concurrency int) []EndpointReport {
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	reports := make([]EndpointReport, 0, len(presets))

	for _, p := range presets {
		wg.Add(1)
		sem <- struct{}{}
		go func(p preset) {
			defer wg.Done()
			defer func() { <-sem }()

			fmt.Fprintf(os.Stderr, "  Evaluating: %s (%s)\n", p.Name, p.URL)
			report := ev.evaluate(context.Background(), p)

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return reports
}

func writeJSON(report EvaluationReport, output string) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode report: %v\n", err)
		os.Exit(1)
	}

	if output == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to write output file: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "Report written to: %s\n", output)
}

func printTable(report EvaluationReport) {
	fmt.Printf("\n%-25s %-6s %-8s %-10s %-8s %-10s %-12s\n",
		"Name", "Grade", "Reach", "Latency", "Logs", "Batch", "BlockRange")
	fmt.Println(strings.Repeat("-", 85))

	currentChain := uint64(0)
	for _, ep := range report.Endpoints {
		if ep.ChainID != currentChain {
			currentChain = ep.ChainID
			fmt.Printf("\n--- %s (chain_id: %d) ---\n", ep.ChainName, ep.ChainID)
		}

		latency := "-"
		if ep.AvgLatencyMs != nil {
			latency = fmt.Sprintf("%dms", *ep.AvgLatencyMs)
		}
		logs := "?"
		if ep.Capabilities.SupportsLogs != nil {
			if *ep.Capabilities.SupportsLogs {
				logs = "yes"
			} else {
				logs = "no"
			}
		}
		batch := capField(ep.Capabilities.MaxBatch)
		blockRange := capField(ep.Capabilities.MaxRange)

		reach := "FAIL"
		if ep.Reachable {
			reach = "OK"
		}

		name := ep.Name
		if len(name) > 24 {
			name = name[:24]
		}
		fmt.Printf("%-25s %-6s %-8s %-10s %-8s %-10s %-12s\n",
			name, ep.Grade, reach, latency, logs, batch, blockRange)
	}

	fmt.Println("\n--- Summary ---")
	fmt.Printf("Total endpoints: %d\n", report.Summary.Total)
	fmt.Printf("Reachable: %d / Unreachable: %d\n", report.Summary.Reachable, report.Summary.Unreachable)
	fmt.Printf("Grades: A=%d B=%d C=%d D=%d F=%d\n",
		report.Summary.GradeA, report.Summary.GradeB, report.Summary.GradeC,
		report.Summary.GradeD, report.Summary.GradeF)
}

func capField(v *uint64) string {
	if v == nil {
		return "?"
	}
	if *v == 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", *v)
}
