// Package fallback runs an ordered chain of attempts and returns the first
// success, recording which attempt won and how many were tried. It backs
// TieredPool's cross-tier execution, where each attempt is itself a full
// per-tier Pool.Execute (with its own endpoint failover) and there is no
// artificial delay between attempts — the tiers are the backoff.
package fallback

import (
	"context"
	"fmt"
)

// Func is one attempt in a fallback chain.
type Func func(ctx context.Context) (interface{}, error)

// Result records the outcome of an Execute call: the winning value and
// which attempt produced it, or the last error if every attempt failed.
type Result struct {
	Value    interface{}
	Err      error
	Source   string
	Attempts int
}

// Execute tries each attempt in order, returning as soon as one succeeds.
// labels names each attempt for Result.Source; an attempt beyond the end of
// labels is named "attempt-N". Execute stops early and returns ctx.Err() if
// the context is cancelled between attempts.
func Execute(ctx context.Context, labels []string, attempts ...Func) *Result {
	var lastErr error

	for i, attempt := range attempts {
		source := label(labels, i)

		value, err := attempt(ctx)
		if err == nil {
			return &Result{Value: value, Source: source, Attempts: i + 1}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return &Result{Err: ctx.Err(), Source: source, Attempts: i + 1}
		default:
		}
	}

	return &Result{Err: lastErr, Source: "exhausted", Attempts: len(attempts)}
}

func label(labels []string, i int) string {
	if i < len(labels) {
		return labels[i]
	}
	return fmt.Sprintf("attempt-%d", i)
}
