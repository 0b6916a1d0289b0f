package rpcpool

import (
	"context"
	"errors"
	"testing"

	"github.com/R3E-Network/rpcpool/infrastructure/chains"
)

func TestTierOrderCritical(t *testing.T) {
	got := tierOrder(PriorityCritical, true, false)
	want := []Tier{TierPremium, TierStandard, TierFree}
	if !tiersEqual(got, want) {
		t.Fatalf("tierOrder(critical, fallback=true) = %v, want %v", got, want)
	}

	got = tierOrder(PriorityCritical, false, false)
	want = []Tier{TierPremium}
	if !tiersEqual(got, want) {
		t.Fatalf("tierOrder(critical, fallback=false) = %v, want %v", got, want)
	}
}

func TestTierOrderNormal(t *testing.T) {
	got := tierOrder(PriorityNormal, true, true)
	want := []Tier{TierStandard, TierFree}
	if !tiersEqual(got, want) {
		t.Fatalf("tierOrder(normal) = %v, want %v", got, want)
	}
}

func TestTierOrderLow(t *testing.T) {
	got := tierOrder(PriorityLow, true, false)
	want := []Tier{TierFree}
	if !tiersEqual(got, want) {
		t.Fatalf("tierOrder(low, escalation=false) = %v, want %v", got, want)
	}

	got = tierOrder(PriorityLow, true, true)
	want = []Tier{TierFree, TierStandard, TierPremium}
	if !tiersEqual(got, want) {
		t.Fatalf("tierOrder(low, escalation=true) = %v, want %v", got, want)
	}
}

func tiersEqual(a, b []Tier) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuilderDedupesAcrossTiersFirstAddWins(t *testing.T) {
	b := NewTieredPoolBuilder()
	b.AddPremium(NewEndpoint("https://shared"))
	b.AddStandard(NewEndpoint("https://shared"))
	tp, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	if _, ok := tp.Pool(TierPremium); !ok {
		t.Fatalf("premium tier should have been built with the shared endpoint")
	}
	if _, ok := tp.Pool(TierStandard); ok {
		t.Fatalf("standard tier should be absent: its only endpoint was a duplicate dropped in favor of premium")
	}
}

func TestBuildRequiresAtLeastOneTier(t *testing.T) {
	_, err := NewTieredPoolBuilder().Build()
	if err == nil {
		t.Fatalf("expected error when no tier has endpoints")
	}
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindNoEndpointsConfigured {
		t.Fatalf("expected KindNoEndpointsConfigured, got %v", err)
	}
}

func TestTieredExecuteRoutesByPriorityAndFallsBack(t *testing.T) {
	tp, err := NewTieredPoolBuilder().
		AddPremium(NewEndpoint("https://premium-down")).
		AddStandard(NewEndpoint("https://standard-up")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	op := func(ctx context.Context, url string) (string, error) {
		if url == "https://premium-down" {
			return "", errors.New("down")
		}
		return url, nil
	}

	got, err := TieredExecute(context.Background(), tp, PriorityCritical, OpFunc[string](op))
	if err != nil || got != "https://standard-up" {
		t.Fatalf("TieredExecute() = %v, %v, want fallback to standard tier", got, err)
	}
}

func TestTieredExecuteCriticalWithoutFallbackStaysOnPremium(t *testing.T) {
	tp, err := NewTieredPoolBuilder().
		WithAllowCriticalFallback(false).
		AddPremium(NewEndpoint("https://premium-down")).
		AddStandard(NewEndpoint("https://standard-up")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	op := func(ctx context.Context, url string) (string, error) {
		return "", errors.New("down")
	}

	_, err = TieredExecute(context.Background(), tp, PriorityCritical, OpFunc[string](op))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindAllEndpointsFailed {
		t.Fatalf("expected premium-only exhaustion, got %v", err)
	}
}

func TestTieredExecuteNoMatchingTierPresent(t *testing.T) {
	// Only the Free tier is built, but Critical without fallback only ever
	// considers Premium (tierOrder(Critical, false, _) == [Premium]), so no
	// tier in the order is present at all.
	tp, err := NewTieredPoolBuilder().
		WithAllowCriticalFallback(false).
		AddFree(NewEndpoint("https://free")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	called := false
	op := func(ctx context.Context, url string) (string, error) {
		called = true
		return "ok", nil
	}

	_, err = TieredExecute(context.Background(), tp, PriorityCritical, OpFunc[string](op))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindNoEndpointsConfigured {
		t.Fatalf("expected KindNoEndpointsConfigured when no tier in the priority order is present, got %v", err)
	}
	if called {
		t.Fatalf("op must not be invoked when no tier is present")
	}
}

func TestTieredExecuteLowPriorityWithoutFreeTierReturnsNoEndpointsConfigured(t *testing.T) {
	// spec.md §8 S6: execute(Low) when the Free tier is absent returns
	// NoEndpointsConfigured without touching Premium.
	tp, err := NewTieredPoolBuilder().
		AddPremium(NewEndpoint("https://premium")).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	called := false
	op := func(ctx context.Context, url string) (string, error) {
		called = true
		return "ok", nil
	}

	_, err = TieredExecute(context.Background(), tp, PriorityLow, OpFunc[string](op))
	var perr *Error
	if !errors.As(err, &perr) || perr.Kind != KindNoEndpointsConfigured {
		t.Fatalf("expected KindNoEndpointsConfigured for Low priority with no Free tier, got %v", err)
	}
	if called {
		t.Fatalf("Premium must never be touched when routing a Low-priority request")
	}
}

func TestLoadFreePresetsAppliesAdjustedPriority(t *testing.T) {
	cfg := &chains.Config{
		Networks: []chains.NetworkConfig{
			{ID: "eth", Name: "ethereum", ChainID: 1, RPCUrls: []string{"https://eth.example.com"}},
		},
	}
	b := NewTieredPoolBuilder().LoadFreePresets(cfg)
	tp, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer tp.Shutdown()

	pool, ok := tp.Pool(TierFree)
	if !ok {
		t.Fatalf("expected free tier to be populated from presets")
	}
	urls := pool.AllURLs()
	if len(urls) != 1 || urls[0] != "https://eth.example.com" {
		t.Fatalf("AllURLs() = %v, want the single preset url", urls)
	}
	if want := AdjustedPriority(0, Capability{}); pool.endpoints[0].Priority != want {
		t.Fatalf("preset priority = %d, want adjusted priority %d", pool.endpoints[0].Priority, want)
	}
}
