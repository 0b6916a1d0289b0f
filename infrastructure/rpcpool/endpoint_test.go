package rpcpool

import (
	"encoding/json"
	"testing"
)

func boolPtr(b bool) *bool    { return &b }
func u64Ptr(v uint64) *uint64 { return &v }

func TestGradeEndpointTotalFunction(t *testing.T) {
	cases := []struct {
		name string
		cap  Capability
		want Grade
	}{
		{"unknown logs support", Capability{}, GradeD},
		{"logs explicitly unsupported", Capability{SupportsLogs: boolPtr(false)}, GradeD},
		{"logs supported, unknown batch/range", Capability{SupportsLogs: boolPtr(true)}, GradeA},
		{"top tier", Capability{SupportsLogs: boolPtr(true), MaxBatch: u64Ptr(500), MaxRange: u64Ptr(50_000)}, GradeA},
		{"mid tier", Capability{SupportsLogs: boolPtr(true), MaxBatch: u64Ptr(20), MaxRange: u64Ptr(2_000)}, GradeB},
		{"low tier", Capability{SupportsLogs: boolPtr(true), MaxBatch: u64Ptr(5), MaxRange: u64Ptr(100)}, GradeC},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := GradeEndpoint(tc.cap); got != tc.want {
				t.Fatalf("GradeEndpoint(%+v) = %s, want %s", tc.cap, got, tc.want)
			}
		})
	}
}

func TestPriorityAdjustmentConsistentWithGrade(t *testing.T) {
	cases := []struct {
		grade     Grade
		dataKnown bool
		want      int
	}{
		{GradeA, true, -20},
		{GradeB, true, -10},
		{GradeC, true, 0},
		{GradeD, true, 10},
		{GradeD, false, 0},
		{GradeF, true, 50},
	}
	for _, tc := range cases {
		if got := PriorityAdjustment(tc.grade, tc.dataKnown); got != tc.want {
			t.Fatalf("PriorityAdjustment(%s, %v) = %d, want %d", tc.grade, tc.dataKnown, got, tc.want)
		}
	}
}

func TestAdjustedPriorityClampsAtZero(t *testing.T) {
	supports := true
	c := Capability{SupportsLogs: &supports, MaxBatch: u64Ptr(500), MaxRange: u64Ptr(50_000)} // grade A, -20
	if got := AdjustedPriority(5, c); got != 0 {
		t.Fatalf("AdjustedPriority(5, gradeA) = %d, want 0 (clamped)", got)
	}
	if got := AdjustedPriority(30, c); got != 10 {
		t.Fatalf("AdjustedPriority(30, gradeA) = %d, want 10", got)
	}
}

func TestCapabilityJSONRoundTrip(t *testing.T) {
	e := NewEndpoint("https://rpc.example.com").
		WithAltURL("wss://rpc.example.com").
		WithName("example").
		WithPriority(1).
		WithChainID(1).
		WithCapabilities(Capability{SupportsLogs: boolPtr(true), SupportsWS: true})

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Endpoint
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.URL != e.URL || decoded.AltURL != e.AltURL || decoded.Name != e.Name {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, e)
	}
	if decoded.Capabilities.SupportsLogs == nil || !*decoded.Capabilities.SupportsLogs {
		t.Fatalf("supports_logs lost in round trip: %+v", decoded.Capabilities)
	}
	if !decoded.Capabilities.SupportsWS {
		t.Fatalf("supports_websocket lost in round trip")
	}
}

func TestCapabilityUnmarshalMissingFieldsDefaultUnknown(t *testing.T) {
	var c Capability
	if err := json.Unmarshal([]byte(`{}`), &c); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if c.SupportsLogs != nil || c.MaxBatch != nil || c.MaxRange != nil {
		t.Fatalf("expected all-unknown capability, got %+v", c)
	}
	if c.SupportsWS {
		t.Fatalf("expected supports_websocket to default false")
	}
}
