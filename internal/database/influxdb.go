package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"power-budget/internal/config"
	"power-budget/internal/logging"
	"power-budget/internal/power"
	"power-budget/internal/trace"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	allocationMeasurement = "power_allocation"
	budgetMeasurement     = "power_budget"
	runMeasurement        = "power_run"
)

// DatabaseClient persists replay steps and run metadata.
type DatabaseClient interface {
	trace.Recorder
	WriteRunMetadata(ctx context.Context, metadata *RunMetadata) error
	Close()
}

// RunMetadata summarises one replay.
type RunMetadata struct {
	RunID         string `json:"run_id"`
	ManagerName   string `json:"manager_name"`
	Description   string `json:"description"`
	TraceChecksum string `json:"trace_checksum"`
	StartTime     string `json:"start_time"` // RFC3339 timestamp
	EndTime       string `json:"end_time"`   // RFC3339 timestamp
	TotalSteps    int    `json:"total_steps"`
	TotalThrottle int    `json:"total_throttles"`
	SafeCapacity  int    `json:"safe_capacity"`
	MaxCapacity   int    `json:"max_capacity"`
	PerDeviceMax  int    `json:"per_device_max"`
	FinalTotal    int    `json:"final_total"`
	FinalDevices  int    `json:"final_devices"`
	DriverVersion string `json:"driver_version"`
	Hostname      string `json:"hostname"`
	OSInfo        string `json:"os_info"`
}

// pointWriter is the part of api.WriteAPIBlocking the client uses.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

type InfluxDBClient struct {
	client   influxdb2.Client
	writeAPI pointWriter
	bucket   string
	org      string
	logger   logrus.FieldLogger
}

func NewInfluxDBClient(config config.DatabaseConfig) (*InfluxDBClient, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(config.Host, config.Password)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", config.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    config.Host,
			"status":  health.Status,
			"message": msg,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb health check failed: status %s", health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   config.Host,
		"bucket": config.Name,
		"org":    config.Org,
	}).Info("Connected to InfluxDB")

	return &InfluxDBClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(config.Org, config.Name),
		bucket:   config.Name,
		org:      config.Org,
		logger:   logger,
	}, nil
}

// Record writes one point per device plus one budget point for the step.
func (idb *InfluxDBClient) Record(ctx context.Context, run *trace.Run, step trace.Step) error {
	points := StepPoints(run, step)
	if len(points) == 0 {
		return nil
	}
	if err := idb.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write step %d: %w", step.Index, err)
	}
	return nil
}

func (idb *InfluxDBClient) WriteRunMetadata(ctx context.Context, metadata *RunMetadata) error {
	if metadata == nil {
		return fmt.Errorf("run metadata is nil")
	}
	point := influxdb2.NewPoint(runMeasurement,
		map[string]string{
			"run_id":       metadata.RunID,
			"manager_name": metadata.ManagerName,
		},
		map[string]interface{}{
			"description":     metadata.Description,
			"trace_checksum":  metadata.TraceChecksum,
			"start_time":      metadata.StartTime,
			"end_time":        metadata.EndTime,
			"total_steps":     metadata.TotalSteps,
			"total_throttles": metadata.TotalThrottle,
			"safe_capacity":   metadata.SafeCapacity,
			"max_capacity":    metadata.MaxCapacity,
			"per_device_max":  metadata.PerDeviceMax,
			"final_total":     metadata.FinalTotal,
			"final_devices":   metadata.FinalDevices,
			"driver_version":  metadata.DriverVersion,
			"hostname":        metadata.Hostname,
			"os_info":         metadata.OSInfo,
		},
		time.Now())

	if err := idb.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write run metadata: %w", err)
	}
	return nil
}

func (idb *InfluxDBClient) Close() {
	if idb.client != nil {
		idb.client.Close()
	}
}

// StepPoints converts a replay step into InfluxDB points.
func StepPoints(run *trace.Run, step trace.Step) []*write.Point {
	runID := ""
	if run != nil {
		runID = run.ID
	}
	ts := step.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	points := make([]*write.Point, 0, len(step.Report.Devices)+1)
	for _, a := range step.Report.Devices {
		points = append(points, influxdb2.NewPoint(allocationMeasurement,
			map[string]string{
				"run_id":   runID,
				"device":   a.Name,
				"position": fmt.Sprintf("%d", a.Position),
			},
			map[string]interface{}{
				"consumption": a.Consumption,
				"requested":   a.Requested,
				"state":       string(a.State),
				"step":        step.Index,
			},
			ts))
	}
	points = append(points, influxdb2.NewPoint(budgetMeasurement,
		map[string]string{
			"run_id": runID,
			"action": string(step.Event.Action),
		},
		map[string]interface{}{
			"total":         step.Report.Total,
			"headroom":      step.Report.Headroom,
			"safe_capacity": step.Report.SafeCapacity,
			"devices":       len(step.Report.Devices),
			"throttled":     len(step.Throttles),
			"matched":       step.Matched,
			"step":          step.Index,
		},
		ts))
	return points
}

func CollectRunMetadata(run *trace.Run, cfg *config.Config, steps []trace.Step, final power.Report, endTime time.Time, driverVersion string) *RunMetadata {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	throttles := 0
	for _, s := range steps {
		throttles += len(s.Throttles)
	}

	md := &RunMetadata{
		TotalSteps:    len(steps),
		TotalThrottle: throttles,
		SafeCapacity:  final.SafeCapacity,
		MaxCapacity:   final.MaxCapacity,
		FinalTotal:    final.Total,
		FinalDevices:  len(final.Devices),
		EndTime:       endTime.Format(time.RFC3339),
		DriverVersion: driverVersion,
		Hostname:      hostname,
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
	}
	if run != nil {
		md.RunID = run.ID
		md.ManagerName = run.Name
		md.TraceChecksum = run.Checksum
		md.StartTime = run.StartTime.Format(time.RFC3339)
	}
	if cfg != nil {
		md.Description = cfg.Manager.Description
		md.PerDeviceMax = cfg.Manager.PerDeviceMax
	}
	return md
}
