package trace

import (
	"context"
	"fmt"
	"time"

	"power-budget/internal/config"
	"power-budget/internal/logging"
	"power-budget/internal/power"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Run identifies one replay of a trace.
type Run struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	StartTime time.Time `json:"start_time"`
}

func NewRun(name, checksum string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Name:      name,
		Checksum:  checksum,
		StartTime: time.Now(),
	}
}

// Step is the state of the manager right after one trace event was applied.
type Step struct {
	Index     int                `json:"index"`
	Event     config.EventConfig `json:"event"`
	Matched   bool               `json:"matched"`
	Error     string             `json:"error,omitempty"`
	Throttles []power.Throttle   `json:"throttles,omitempty"`
	Report    power.Report       `json:"report"`
	Timestamp time.Time          `json:"timestamp"`
}

// Recorder receives every step of a replay, e.g. to persist or publish it.
type Recorder interface {
	Record(ctx context.Context, run *Run, step Step) error
}

type Replayer struct {
	manager   *power.Manager
	recorders []Recorder
	logger    logrus.FieldLogger
}

func NewReplayer(manager *power.Manager, logger logrus.FieldLogger) *Replayer {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Replayer{
		manager: manager,
		logger:  logger,
	}
}

func (r *Replayer) AddRecorder(rec Recorder) {
	if rec != nil {
		r.recorders = append(r.recorders, rec)
	}
}

// Replay applies events in order. Misses and rejected connects are recorded
// on the step and do not stop the replay; a failing recorder or a cancelled
// context does.
func (r *Replayer) Replay(ctx context.Context, run *Run, events []config.EventConfig) ([]Step, error) {
	if r.manager == nil {
		return nil, fmt.Errorf("power manager is nil")
	}
	if run == nil {
		run = NewRun("", "")
	}

	steps := make([]Step, 0, len(events))
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return steps, err
		}

		step := Step{Index: i, Event: ev}
		matched, err := r.apply(ev)
		step.Matched = matched
		if err != nil {
			step.Error = err.Error()
		}
		if matched {
			step.Throttles = r.manager.LastThrottles()
		}
		step.Report = r.manager.Snapshot()
		step.Timestamp = time.Now()

		r.logStep(run, step)

		for _, rec := range r.recorders {
			if err := rec.Record(ctx, run, step); err != nil {
				return steps, fmt.Errorf("record step %d: %w", i, err)
			}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func (r *Replayer) apply(ev config.EventConfig) (bool, error) {
	switch ev.Action {
	case config.ActionConnect:
		if err := r.manager.ConnectDevice(ev.Device, ev.GetConsumption(), ev.T); err != nil {
			return false, err
		}
		return true, nil
	case config.ActionDisconnect:
		return r.manager.DisconnectDevice(ev.Device), nil
	case config.ActionChange:
		return r.manager.ChangeDeviceConsumption(ev.Device, ev.GetConsumption()), nil
	default:
		return false, fmt.Errorf("unknown action %q", ev.Action)
	}
}

func (r *Replayer) logStep(run *Run, step Step) {
	entry := r.logger.WithFields(logrus.Fields{
		"run_id":    run.ID,
		"step":      step.Index,
		"t":         step.Event.T,
		"action":    step.Event.Action,
		"device":    step.Event.Device,
		"matched":   step.Matched,
		"total":     step.Report.Total,
		"headroom":  step.Report.Headroom,
		"throttled": len(step.Throttles),
	})
	switch {
	case step.Error != "":
		entry.WithField("error", step.Error).Warn("Trace event rejected")
	case !step.Matched:
		entry.Debug("Trace event had no matching device")
	default:
		entry.Debug("Trace event applied")
	}
}
