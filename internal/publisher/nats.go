package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"power-budget/internal/config"
	"power-budget/internal/logging"
	"power-budget/internal/trace"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// conn is the subset of *nats.Conn used for publishing.
type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// StepMessage is the JSON payload published for each replay step.
type StepMessage struct {
	RunID    string     `json:"run_id"`
	Manager  string     `json:"manager"`
	Checksum string     `json:"checksum,omitempty"`
	Step     trace.Step `json:"step"`
}

// NATSPublisher publishes allocation snapshots to <subject>.<manager>.
type NATSPublisher struct {
	conn    conn
	subject string
	logger  logrus.FieldLogger
}

func ServerURL(cfg config.NATSConfig) string {
	server := cfg.Server
	if !strings.Contains(server, "://") {
		server = fmt.Sprintf("nats://%s", server)
	}
	if len(cfg.Port) > 0 {
		server += fmt.Sprintf(":%s", cfg.Port)
	}
	return server
}

func NewNATSPublisher(cfg config.NATSConfig) (*NATSPublisher, error) {
	logger := logging.GetLogger()
	if cfg.Server == "" {
		return nil, fmt.Errorf("nats server is not configured")
	}

	server := ServerURL(cfg)
	nc, err := nats.Connect(server, nats.Name("power-budget"))
	if err != nil {
		logger.WithField("server", server).WithError(err).Error("Failed to connect to NATS")
		return nil, fmt.Errorf("failed to connect to NATS server %s: %w", server, err)
	}

	logger.WithFields(logrus.Fields{
		"server":  server,
		"subject": cfg.Subject,
	}).Info("Connected to NATS")

	return &NATSPublisher{conn: nc, subject: cfg.Subject, logger: logger}, nil
}

func (p *NATSPublisher) Record(ctx context.Context, run *trace.Run, step trace.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := StepMessage{Step: step}
	manager := ""
	if run != nil {
		msg.RunID = run.ID
		msg.Manager = run.Name
		msg.Checksum = run.Checksum
		manager = run.Name
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode step %d: %w", step.Index, err)
	}

	subject := Subject(p.subject, manager)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish step %d to %s: %w", step.Index, subject, err)
	}
	p.logger.WithFields(logrus.Fields{
		"subject": subject,
		"step":    step.Index,
		"bytes":   len(data),
	}).Debug("Published allocation step")
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.FlushTimeout(5 * time.Second); err != nil {
		p.logger.WithError(err).Warn("Failed to flush NATS connection")
	}
	p.conn.Close()
}

// Subject appends the manager name as a final token. Characters that carry
// meaning in NATS subjects are replaced with '_'.
func Subject(base, manager string) string {
	if manager == "" {
		return base
	}
	token := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, manager)
	return base + "." + token
}
