package trace

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"power-budget/internal/config"
	"power-budget/internal/power"

	"github.com/sirupsen/logrus/hooks/test"
)

type fakeRecorder struct {
	mu    sync.Mutex
	steps []Step
	runs  []string
	fail  bool
}

func (f *fakeRecorder) Record(_ context.Context, run *Run, step Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("boom")
	}
	f.steps = append(f.steps, step)
	f.runs = append(f.runs, run.ID)
	return nil
}

func newTestReplayer(t *testing.T, opts power.Options) (*Replayer, *power.Manager) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opts.Logger = logger
	m, err := power.NewManager(opts)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return NewReplayer(m, logger), m
}

func TestReplayer_ReferenceScenario(t *testing.T) {
	r, m := newTestReplayer(t, power.Options{})
	rec := &fakeRecorder{}
	r.AddRecorder(rec)

	run := NewRun("reference", "abc123")
	steps, err := r.Replay(context.Background(), run, ReferenceScenario())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(steps) != 6 || len(rec.steps) != 6 {
		t.Fatalf("steps=%d recorded=%d", len(steps), len(rec.steps))
	}
	for _, id := range rec.runs {
		if id != run.ID {
			t.Fatalf("recorded run id %q want %q", id, run.ID)
		}
	}

	third := steps[2]
	if len(third.Throttles) != 1 || third.Throttles[0].Device != "C" || third.Throttles[0].To != 12 {
		t.Fatalf("step 2 throttles=%+v", third.Throttles)
	}
	if third.Report.String() != "A: 40, B: 40, C: 12" {
		t.Fatalf("step 2 report=%q", third.Report.String())
	}
	for i, s := range steps {
		if !s.Matched {
			t.Fatalf("step %d did not match", i)
		}
		if i != 2 && len(s.Throttles) != 0 {
			t.Fatalf("step %d throttles=%+v", i, s.Throttles)
		}
	}
	if got := m.Snapshot().String(); got != "A: 20, C: 32" {
		t.Fatalf("final=%q", got)
	}
}

func TestReplayer_MissAndDuplicateAreRecorded(t *testing.T) {
	r, m := newTestReplayer(t, power.Options{UniqueNames: true})
	amount := 10
	events := []config.EventConfig{
		{T: 0, Action: config.ActionConnect, Device: "A", Consumption: &amount},
		{T: 1, Action: config.ActionConnect, Device: "A", Consumption: &amount},
		{T: 2, Action: config.ActionDisconnect, Device: "Z"},
	}
	steps, err := r.Replay(context.Background(), nil, events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if steps[1].Matched || steps[1].Error == "" {
		t.Fatalf("duplicate step=%+v", steps[1])
	}
	if steps[2].Matched || steps[2].Error != "" {
		t.Fatalf("miss step=%+v", steps[2])
	}
	if m.Len() != 1 {
		t.Fatalf("len=%d want 1", m.Len())
	}
}

func TestReplayer_RecorderFailureStops(t *testing.T) {
	r, _ := newTestReplayer(t, power.Options{})
	r.AddRecorder(&fakeRecorder{fail: true})
	steps, err := r.Replay(context.Background(), NewRun("x", ""), ReferenceScenario())
	if err == nil {
		t.Fatalf("expected recorder error")
	}
	if len(steps) != 0 {
		t.Fatalf("steps=%d want 0", len(steps))
	}
}

func TestReplayer_CancelledContext(t *testing.T) {
	r, m := newTestReplayer(t, power.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Replay(ctx, NewRun("x", ""), ReferenceScenario()); err == nil {
		t.Fatalf("expected context error")
	}
	if m.Len() != 0 {
		t.Fatalf("len=%d want 0", m.Len())
	}
}

func TestNewRun_UniqueIDs(t *testing.T) {
	a := NewRun("a", "")
	b := NewRun("a", "")
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids %q %q", a.ID, b.ID)
	}
}
