package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher emits workflow events to NATS for downstream consumers
// (notification service, analytics).
//
// Subject convention: bidboard.proposals.<event_type>
//
// All publish operations are non-fatal. Errors are logged but never
// propagated, so an unreachable broker never interrupts board operations.
type Publisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// StageChangedEvent is published when a proposal moves between board columns.
type StageChangedEvent struct {
	EventType      string    `json:"event_type"`
	OrganizationID string    `json:"organization_id"`
	ProposalID     string    `json:"proposal_id"`
	ActorID        string    `json:"actor_id"`
	FromColumnID   string    `json:"from_column_id"`
	ToColumnID     string    `json:"to_column_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// MigrationCompletedEvent is published after a board migration run finishes.
type MigrationCompletedEvent struct {
	EventType         string    `json:"event_type"`
	OrganizationID    string    `json:"organization_id"`
	ActorID           string    `json:"actor_id"`
	ConfigsUpdated    int       `json:"configs_updated"`
	ProposalsMigrated int       `json:"proposals_migrated"`
	ErrorCount        int       `json:"error_count"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// Connect dials the NATS server. A connection failure is reported to the
// caller so main can decide to run without events.
func Connect(url string, log zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &Publisher{conn: conn, log: log}, nil
}

// NewPublisher wraps an existing connection. conn may be nil, in which case
// every publish is a no-op.
func NewPublisher(conn *nats.Conn, log zerolog.Logger) *Publisher {
	return &Publisher{conn: conn, log: log}
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("events: drain failed")
	}
}

// PublishStageChanged emits a stage-change event.
func (p *Publisher) PublishStageChanged(ev StageChangedEvent) {
	ev.EventType = "stage_changed"
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	p.publish("bidboard.proposals.stage_changed", ev)
}

// PublishMigrationCompleted emits a migration summary event.
func (p *Publisher) PublishMigrationCompleted(ev MigrationCompletedEvent) {
	ev.EventType = "migration_completed"
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	p.publish("bidboard.proposals.migration_completed", ev)
}

func (p *Publisher) publish(subject string, ev any) {
	if p == nil || p.conn == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("events: failed to marshal event")
		return
	}

	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).Str("subject", subject).Msg("events: failed to publish (non-fatal)")
		return
	}

	p.log.Debug().Str("subject", subject).Msg("events: published")
}
