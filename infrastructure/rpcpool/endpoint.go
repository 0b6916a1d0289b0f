// Package rpcpool implements a client-side, high-availability connection
// pool for JSON-RPC style HTTP endpoints: endpoint selection, failover
// execution, per-endpoint health statistics with exponential-backoff
// quarantine/recovery, and a priority-tiered multi-pool dispatcher.
package rpcpool

import "encoding/json"

// Endpoint is an immutable descriptor for one upstream server participating
// in a pool. Construct with NewEndpoint; all fields are read-only after
// that.
type Endpoint struct {
	URL          string     `json:"url"`
	AltURL       string     `json:"alt_url,omitempty"`
	Name         string     `json:"name"`
	Priority     uint32     `json:"priority"`
	ChainID      uint64     `json:"chain_id"`
	Capabilities Capability `json:"capabilities"`
}

// NewEndpoint builds an Endpoint with the given url and sensible zero
// values for everything else. Use the With* helpers to fill in optional
// fields.
func NewEndpoint(url string) Endpoint {
	return Endpoint{URL: url, Name: url}
}

func (e Endpoint) WithAltURL(altURL string) Endpoint {
	e.AltURL = altURL
	return e
}

func (e Endpoint) WithName(name string) Endpoint {
	e.Name = name
	return e
}

func (e Endpoint) WithPriority(priority uint32) Endpoint {
	e.Priority = priority
	return e
}

func (e Endpoint) WithChainID(chainID uint64) Endpoint {
	e.ChainID = chainID
	return e
}

func (e Endpoint) WithCapabilities(c Capability) Endpoint {
	e.Capabilities = c
	return e
}

// Capability is a declarative, immutable feature-metadata block for an
// endpoint. A nil *bool / *uint64 field means "untested"/"unknown"; see
// Grade for how absence is treated.
type Capability struct {
	SupportsLogs  *bool
	MaxBatch      *uint64
	MaxRange      *uint64
	SupportsTrace *bool
	SupportsWS    bool
	RateLimitRPS  *uint64
}

// capabilityJSON mirrors Capability for wire round-tripping, keeping the
// external field names stable even if the in-memory struct changes shape.
type capabilityJSON struct {
	SupportsLogs  *bool   `json:"supports_logs,omitempty"`
	MaxBatch      *uint64 `json:"max_batch,omitempty"`
	MaxRange      *uint64 `json:"max_range,omitempty"`
	SupportsTrace *bool   `json:"supports_trace,omitempty"`
	SupportsWS    bool    `json:"supports_websocket"`
	RateLimitRPS  *uint64 `json:"rate_limit_rps,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Capability) MarshalJSON() ([]byte, error) {
	return json.Marshal(capabilityJSON{
		SupportsLogs:  c.SupportsLogs,
		MaxBatch:      c.MaxBatch,
		MaxRange:      c.MaxRange,
		SupportsTrace: c.SupportsTrace,
		SupportsWS:    c.SupportsWS,
		RateLimitRPS:  c.RateLimitRPS,
	})
}

// UnmarshalJSON implements json.Unmarshaler. A missing capabilities object
// entirely (the zero-value case called from Endpoint decoding) leaves every
// field at its "unknown" zero value and SupportsWS at false, matching
// spec.md's default-decode contract.
func (c *Capability) UnmarshalJSON(data []byte) error {
	var wire capabilityJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	c.SupportsLogs = wire.SupportsLogs
	c.MaxBatch = wire.MaxBatch
	c.MaxRange = wire.MaxRange
	c.SupportsTrace = wire.SupportsTrace
	c.SupportsWS = wire.SupportsWS
	c.RateLimitRPS = wire.RateLimitRPS
	return nil
}

// Grade is an ordered classification of an endpoint's capability surface,
// F < D < C < B < A.
type Grade int

const (
	GradeF Grade = iota
	GradeD
	GradeC
	GradeB
	GradeA
)

func (g Grade) String() string {
	switch g {
	case GradeA:
		return "A"
	case GradeB:
		return "B"
	case GradeC:
		return "C"
	case GradeD:
		return "D"
	default:
		return "F"
	}
}

// GradeEndpoint is the pure grading function from spec.md §3. It is stable
// across runs: no randomness, no time dependence.
func GradeEndpoint(c Capability) Grade {
	if c.SupportsLogs == nil {
		return GradeD
	}
	if !*c.SupportsLogs {
		return GradeD
	}

	var b, r uint64
	if c.MaxBatch != nil {
		b = *c.MaxBatch
	}
	if c.MaxRange != nil {
		r = *c.MaxRange
	}

	if (b == 0 || b >= 100) && (r == 0 || r >= 10_000) {
		return GradeA
	}
	if (b == 0 || b >= 10) && (r == 0 || r >= 1_000) {
		return GradeB
	}
	return GradeC
}

// PriorityAdjustment returns the signed priority delta associated with a
// grade, per spec.md §3. dataKnown distinguishes "D because data says so"
// from "D because nothing is known" (both grade D, different adjustment).
func PriorityAdjustment(g Grade, dataKnown bool) int {
	switch g {
	case GradeA:
		return -20
	case GradeB:
		return -10
	case GradeC:
		return 0
	case GradeD:
		if dataKnown {
			return 10
		}
		return 0
	default: // GradeF
		return 50
	}
}

// AdjustedPriority applies PriorityAdjustment to oldPriority, clamped at 0,
// as used when bulk-adding Free-tier endpoints (spec.md §3).
func AdjustedPriority(oldPriority uint32, c Capability) uint32 {
	grade := GradeEndpoint(c)
	dataKnown := c.SupportsLogs != nil || c.MaxBatch != nil || c.MaxRange != nil ||
		c.SupportsTrace != nil || c.RateLimitRPS != nil
	adjustment := PriorityAdjustment(grade, dataKnown)
	adjusted := int64(oldPriority) + int64(adjustment)
	if adjusted < 0 {
		return 0
	}
	return uint32(adjusted)
}
