package rpcpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func alwaysSucceed(v string) OpFunc[string] {
	return func(ctx context.Context, url string) (string, error) {
		return v, nil
	}
}

func alwaysFail(msg string) OpFunc[string] {
	return func(ctx context.Context, url string) (string, error) {
		return "", errors.New(msg)
	}
}

func failThenSucceedByURL(failURL string) OpFunc[string] {
	return func(ctx context.Context, url string) (string, error) {
		if url == failURL {
			return "", errors.New("boom")
		}
		return url, nil
	}
}

func TestNewDedupesAndSortsByPriority(t *testing.T) {
	p, err := New(Config{
		Endpoints: []Endpoint{
			NewEndpoint("https://b").WithPriority(2),
			NewEndpoint("https://a").WithPriority(1),
			NewEndpoint("https://b").WithPriority(2), // duplicate, dropped
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	got := p.AllURLs()
	want := []string{"https://a", "https://b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("AllURLs() = %v, want %v", got, want)
	}
}

func TestNewRejectsEmptyEndpoints(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatalf("expected error for empty endpoint list")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindNoEndpointsConfigured {
		t.Fatalf("expected KindNoEndpointsConfigured, got %v", err)
	}
}

func TestExecuteReturnsFirstSuccess(t *testing.T) {
	p, err := New(Config{
		Endpoints: []Endpoint{
			NewEndpoint("https://a").WithPriority(0),
			NewEndpoint("https://b").WithPriority(1),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	got, err := Execute(context.Background(), p, alwaysSucceed("ok"))
	if err != nil || got != "ok" {
		t.Fatalf("Execute() = %v, %v, want ok, nil", got, err)
	}
}

func TestExecuteFailsOverToNextEndpoint(t *testing.T) {
	p, err := New(Config{
		Endpoints: []Endpoint{
			NewEndpoint("https://a").WithPriority(0),
			NewEndpoint("https://b").WithPriority(1),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	got, err := Execute(context.Background(), p, failThenSucceedByURL("https://a"))
	if err != nil || got != "https://b" {
		t.Fatalf("Execute() = %v, %v, want https://b, nil", got, err)
	}

	m := p.Metrics()
	if m.Failovers != 1 {
		t.Fatalf("Failovers = %d, want 1", m.Failovers)
	}
}

func TestExecuteReturnsAllEndpointsFailedWhenExhausted(t *testing.T) {
	p, err := New(Config{
		Endpoints: []Endpoint{NewEndpoint("https://a")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	_, err = Execute(context.Background(), p, alwaysFail("connection refused"))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAllEndpointsFailed {
		t.Fatalf("expected KindAllEndpointsFailed, got %v", err)
	}
}

func TestExecuteQuarantinesAfterConsecutiveFailures(t *testing.T) {
	p, err := New(Config{
		Endpoints:            []Endpoint{NewEndpoint("https://a"), NewEndpoint("https://b").WithPriority(1)},
		MaxConsecutiveErrors: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	_, err = Execute(context.Background(), p, failThenSucceedByURL("https://a"))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	m := p.Metrics()
	for _, e := range m.Endpoints {
		if e.URL == "https://a" && e.IsHealthy {
			t.Fatalf("endpoint https://a should be quarantined after one failure with MaxConsecutiveErrors=1")
		}
	}
}

func TestExecuteOnShutdownPoolReturnsPoolShutdown(t *testing.T) {
	p, err := New(Config{Endpoints: []Endpoint{NewEndpoint("https://a")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.Shutdown()

	_, err = Execute(context.Background(), p, alwaysSucceed("ok"))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindPoolShutdown {
		t.Fatalf("expected KindPoolShutdown, got %v", err)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p, err := New(Config{Endpoints: []Endpoint{NewEndpoint("https://a")}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.StartHealthCheck()
	p.Shutdown()
	p.Shutdown() // must not panic or block

	if !p.IsShutdown() {
		t.Fatalf("IsShutdown() = false after Shutdown()")
	}
	select {
	case <-p.CancellationSignal():
	default:
		t.Fatalf("CancellationSignal() should be closed after Shutdown()")
	}
}

func TestHealthSummaryAllUnhealthy(t *testing.T) {
	p, err := New(Config{
		Endpoints:            []Endpoint{NewEndpoint("https://a")},
		MaxConsecutiveErrors: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	_, _ = Execute(context.Background(), p, alwaysFail("down"))

	summary := p.HealthSummary()
	if !summary.AllUnhealthy || summary.Healthy != 0 || summary.Unhealthy != 1 {
		t.Fatalf("HealthSummary() = %+v, want all unhealthy", summary)
	}
}

func TestConcurrentExecuteIsRaceFree(t *testing.T) {
	p, err := New(Config{
		Endpoints: []Endpoint{NewEndpoint("https://a"), NewEndpoint("https://b").WithPriority(1)},
		Strategy:  NewRoundRobinStrategy(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	var successes int64
	done := make(chan struct{})
	for i := 0; i < 20; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := Execute(context.Background(), p, alwaysSucceed("ok")); err == nil {
				atomic.AddInt64(&successes, 1)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		<-done
	}
	if atomic.LoadInt64(&successes) != 20 {
		t.Fatalf("successes = %d, want 20", successes)
	}
}

func TestInvokeTimesOut(t *testing.T) {
	p, err := New(Config{
		Endpoints:      []Endpoint{NewEndpoint("https://a")},
		RequestTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown()

	slow := func(ctx context.Context, url string) (string, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return "too slow", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	_, err = Execute(context.Background(), p, OpFunc[string](slow))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAllEndpointsFailed {
		t.Fatalf("expected the single slow endpoint to exhaust as AllEndpointsFailed, got %v", err)
	}
}
