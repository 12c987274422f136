package config

import "testing"

func intPtr(v int) *int { return &v }

func TestTraceChecksum_Deterministic(t *testing.T) {
	cfg := &Config{Manager: ManagerConfig{SafeCapacity: 92, PerDeviceMax: 40}}
	cfg.Trace = []EventConfig{
		{T: 0, Action: ActionConnect, Device: "A", Consumption: intPtr(40)},
		{T: 1, Action: ActionDisconnect, Device: "A"},
	}
	s1, err := TraceChecksum(cfg)
	if err != nil {
		t.Fatalf("TraceChecksum: %v", err)
	}
	s2, err := TraceChecksum(cfg)
	if err != nil {
		t.Fatalf("TraceChecksum again: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected same checksum, got %q vs %q", s1, s2)
	}
	if len(s1) != 6 {
		t.Fatalf("expected 6-char checksum, got %q (len=%d)", s1, len(s1))
	}
}

func TestTraceChecksum_ChangesWhenTraceChanges(t *testing.T) {
	cfg := &Config{Manager: ManagerConfig{SafeCapacity: 92, PerDeviceMax: 40}}
	cfg.Trace = []EventConfig{
		{T: 0, Action: ActionConnect, Device: "A", Consumption: intPtr(40)},
	}
	s1, err := TraceChecksum(cfg)
	if err != nil {
		t.Fatalf("TraceChecksum: %v", err)
	}

	cfg.Trace[0].Consumption = intPtr(30)
	s2, err := TraceChecksum(cfg)
	if err != nil {
		t.Fatalf("TraceChecksum after change: %v", err)
	}
	if s1 == s2 {
		t.Fatalf("expected checksum to change, got %q", s1)
	}

	cfg.Manager.SafeCapacity = 80
	s3, err := TraceChecksum(cfg)
	if err != nil {
		t.Fatalf("TraceChecksum after limit change: %v", err)
	}
	if s3 == s2 {
		t.Fatalf("expected checksum to follow limits, got %q", s3)
	}
}

func TestTraceChecksum_NilConfig(t *testing.T) {
	s, err := TraceChecksum(nil)
	if err != nil || s != "" {
		t.Fatalf("got %q, %v", s, err)
	}
}
