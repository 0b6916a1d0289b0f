package fallback

import (
	"context"
	"errors"
	"testing"
)

func ok(v interface{}) Func {
	return func(ctx context.Context) (interface{}, error) { return v, nil }
}

func fail(msg string) Func {
	return func(ctx context.Context) (interface{}, error) { return nil, errors.New(msg) }
}

func TestExecuteReturnsFirstSuccess(t *testing.T) {
	result := Execute(context.Background(), []string{"a", "b"}, fail("nope"), ok("yes"))
	if result.Err != nil || result.Value != "yes" {
		t.Fatalf("Execute() = %+v, want success from second attempt", result)
	}
	if result.Source != "b" || result.Attempts != 2 {
		t.Fatalf("Execute() source/attempts = %q/%d, want b/2", result.Source, result.Attempts)
	}
}

func TestExecuteExhaustsAllAttempts(t *testing.T) {
	result := Execute(context.Background(), []string{"a", "b"}, fail("first"), fail("second"))
	if result.Err == nil {
		t.Fatalf("expected an error when every attempt fails")
	}
	if result.Err.Error() != "second" {
		t.Fatalf("Execute() error = %v, want the last attempt's error", result.Err)
	}
	if result.Source != "exhausted" || result.Attempts != 2 {
		t.Fatalf("Execute() source/attempts = %q/%d, want exhausted/2", result.Source, result.Attempts)
	}
}

func TestExecuteLabelsBeyondListFallBackToIndex(t *testing.T) {
	result := Execute(context.Background(), nil, ok("first"))
	if result.Source != "attempt-0" {
		t.Fatalf("Source = %q, want attempt-0 for an unlabeled attempt", result.Source)
	}
}

func TestExecuteStopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	attempt := func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("down")
	}

	result := Execute(ctx, []string{"a", "b"}, attempt, attempt)
	if calls != 1 {
		t.Fatalf("expected Execute to stop after the first attempt once ctx is cancelled, got %d calls", calls)
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", result.Err)
	}
}

func TestExecuteNoAttempts(t *testing.T) {
	result := Execute(context.Background(), nil)
	if result.Err != nil {
		t.Fatalf("Err = %v, want nil for zero attempts", result.Err)
	}
	if result.Attempts != 0 || result.Source != "exhausted" {
		t.Fatalf("Attempts/Source = %d/%q, want 0/exhausted", result.Attempts, result.Source)
	}
}
