package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"power-budget/internal/config"
	"power-budget/internal/power"
	"power-budget/internal/trace"

	"github.com/sirupsen/logrus/hooks/test"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs    []published
	fail    bool
	flushed bool
	closed  bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	if f.fail {
		return fmt.Errorf("boom")
	}
	f.msgs = append(f.msgs, published{subject: subj, data: data})
	return nil
}

func (f *fakeConn) FlushTimeout(time.Duration) error {
	f.flushed = true
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func TestSubject_SanitizesManagerName(t *testing.T) {
	cases := map[string]string{
		"":           "power.allocation",
		"rack-1":     "power.allocation.rack-1",
		"lab rack.2": "power.allocation.lab_rack_2",
		"bad*name>":  "power.allocation.bad_name_",
	}
	for manager, want := range cases {
		if got := Subject("power.allocation", manager); got != want {
			t.Fatalf("Subject(%q)=%q want %q", manager, got, want)
		}
	}
}

func TestServerURL(t *testing.T) {
	if got := ServerURL(config.NATSConfig{Server: "localhost", Port: "4222"}); got != "nats://localhost:4222" {
		t.Fatalf("url=%q", got)
	}
	if got := ServerURL(config.NATSConfig{Server: "tls://broker"}); got != "tls://broker" {
		t.Fatalf("url=%q", got)
	}
}

func TestNATSPublisher_RecordPublishesJSON(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fc := &fakeConn{}
	p := &NATSPublisher{conn: fc, subject: "power.allocation", logger: logger}

	run := &trace.Run{ID: "run-1", Name: "rack", Checksum: "abc123"}
	step := trace.Step{
		Index:   1,
		Event:   config.EventConfig{T: 1, Action: config.ActionDisconnect, Device: "B"},
		Matched: true,
		Report: power.Report{
			Devices: []power.Allocation{{Name: "A", Consumption: 20, Requested: 20, State: power.GrantFull}},
			Total:   20,
		},
	}
	if err := p.Record(context.Background(), run, step); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(fc.msgs) != 1 || fc.msgs[0].subject != "power.allocation.rack" {
		t.Fatalf("msgs=%+v", fc.msgs)
	}

	var msg StepMessage
	if err := json.Unmarshal(fc.msgs[0].data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.RunID != "run-1" || msg.Step.Event.Device != "B" || msg.Step.Report.String() != "A: 20" {
		t.Fatalf("msg=%+v", msg)
	}

	p.Close()
	if !fc.flushed || !fc.closed {
		t.Fatalf("flushed=%v closed=%v", fc.flushed, fc.closed)
	}
}

func TestNATSPublisher_RecordErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()
	fc := &fakeConn{fail: true}
	p := &NATSPublisher{conn: fc, subject: "power.allocation", logger: logger}
	if err := p.Record(context.Background(), nil, trace.Step{}); err == nil {
		t.Fatalf("expected publish error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fc.fail = false
	if err := p.Record(ctx, nil, trace.Step{}); err == nil {
		t.Fatalf("expected context error")
	}
	if len(fc.msgs) != 0 {
		t.Fatalf("msgs=%d want 0", len(fc.msgs))
	}
}

func TestNewNATSPublisher_RequiresServer(t *testing.T) {
	if _, err := NewNATSPublisher(config.NATSConfig{}); err == nil {
		t.Fatalf("expected error without server")
	}
}
