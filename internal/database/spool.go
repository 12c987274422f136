package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"power-budget/internal/power"
	"power-budget/internal/trace"
)

type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	RunID         string `json:"run_id"`
	ManagerName   string `json:"manager_name"`
	TraceChecksum string `json:"trace_checksum"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	ConfigContent string `json:"config_content"`

	Metadata *RunMetadata `json:"metadata"`
	Steps    []trace.Step `json:"steps"`
	Final    power.Report `json:"final"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("POWER_BUDGET_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.TraceChecksum
	if checksum == "" {
		checksum = "nocsum"
	}
	name := fmt.Sprintf(
		"run_%s_%s_%s.json.gz",
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		shortID(artifact.RunID),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := os.CreateTemp(dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = os.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

func ReadSpoolArtifact(path string) (*SpoolArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()

	var artifact SpoolArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("decode spool artifact: %w", err)
	}
	return &artifact, nil
}

// BuildSpoolArtifact constructs a spool artifact from the in-memory replay results.
func BuildSpoolArtifact(
	run *trace.Run,
	configContent string,
	metadata *RunMetadata,
	steps []trace.Step,
	final power.Report,
	endTime time.Time,
) *SpoolArtifact {
	a := &SpoolArtifact{
		Version:       1,
		CreatedAt:     time.Now(),
		EndTime:       endTime,
		ConfigContent: configContent,
		Metadata:      metadata,
		Steps:         steps,
		Final:         final,
	}
	if run != nil {
		a.RunID = run.ID
		a.ManagerName = run.Name
		a.TraceChecksum = run.Checksum
		a.StartTime = run.StartTime
	}
	return a
}

func shortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if id == "" {
		return "norun"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
