package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"power-budget/internal/trace"
)

func TestWriteSpoolArtifact_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "spool")
	run, step := sampleStep()
	md := CollectRunMetadata(run, nil, []trace.Step{step}, step.Report, time.Unix(200, 0), "1.0.0")
	artifact := BuildSpoolArtifact(run, "manager:\n  name: rack\n", md, []trace.Step{step}, step.Report, time.Unix(200, 0))

	path, err := WriteSpoolArtifact(dir, artifact)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "run_") || !strings.HasSuffix(base, "_run1_abc123.json.gz") {
		t.Fatalf("unexpected name %q", base)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the final file, got %d entries", len(entries))
	}

	got, err := ReadSpoolArtifact(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != "run-1" || got.ManagerName != "rack" || got.Version != 1 {
		t.Fatalf("artifact=%+v", got)
	}
	if got.Final.String() != "A: 40, B: 40, C: 12" {
		t.Fatalf("final=%q", got.Final.String())
	}
	if len(got.Steps) != 1 || len(got.Steps[0].Throttles) != 1 {
		t.Fatalf("steps=%+v", got.Steps)
	}
}

func TestWriteSpoolArtifact_Nil(t *testing.T) {
	if _, err := WriteSpoolArtifact(t.TempDir(), nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultSpoolDir_FromEnv(t *testing.T) {
	t.Setenv("POWER_BUDGET_SPOOL_DIR", "/tmp/power-spool")
	if got := DefaultSpoolDir(); got != "/tmp/power-spool" {
		t.Fatalf("dir=%q", got)
	}
	t.Setenv("POWER_BUDGET_SPOOL_DIR", "")
	if got := DefaultSpoolDir(); got != "spool" {
		t.Fatalf("dir=%q", got)
	}
}
