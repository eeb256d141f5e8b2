package consumer

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createAuditTable = `CREATE TABLE IF NOT EXISTS roster_audit (
    event_id          TEXT PRIMARY KEY,
    event_type        TEXT NOT NULL,
    activity          TEXT NOT NULL,
    email             TEXT NOT NULL,
    participant_count INTEGER NOT NULL,
    max_participants  INTEGER NOT NULL,
    occurred_at       TIMESTAMPTZ NOT NULL,
    schema_id         INTEGER NOT NULL,
    topic             TEXT NOT NULL,
    partition         INTEGER NOT NULL,
    record_offset     BIGINT NOT NULL,
    payload           JSONB NOT NULL,
    received_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PersistenceHandler writes consumed roster events into Postgres for auditing.
type PersistenceHandler struct {
	pool *pgxpool.Pool
}

// NewPersistenceHandler constructs a handler backed by the provided pool.
func NewPersistenceHandler(pool *pgxpool.Pool) *PersistenceHandler {
	return &PersistenceHandler{pool: pool}
}

// Sink reports the metric label for this handler.
func (h *PersistenceHandler) Sink() string { return sinkPostgres }

// EnsureSchema creates the roster_audit table if it does not exist.
func (h *PersistenceHandler) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("create roster_audit: %w", err)
	}
	return nil
}

// Handle stores the event in roster_audit. Redelivered events are ignored.
func (h *PersistenceHandler) Handle(ctx context.Context, msg Message) error {
	event, err := decodeRosterEvent(msg)
	if err != nil {
		return err
	}

	tag, err := h.pool.Exec(ctx,
		`INSERT INTO roster_audit (event_id, event_type, activity, email, participant_count, max_participants, occurred_at, schema_id, topic, partition, record_offset, payload)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (event_id) DO NOTHING`,
		event.EventID,
		event.EventType,
		event.Activity,
		event.Email,
		event.ParticipantCount,
		event.MaxParticipants,
		event.OccurredAt,
		msg.SchemaID,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
	)
	if err != nil {
		return fmt.Errorf("insert roster event %s: %w", event.EventID, err)
	}

	inserted := tag.RowsAffected() > 0
	recordAuditRow(inserted)
	if inserted {
		recordActivityChange(event.Activity, event.EventType)
	}
	return nil
}
