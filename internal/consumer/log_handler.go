package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"example.com/signup/internal/domain"
)

// LogHandler writes every roster event to the audit log.
type LogHandler struct {
	logger zerolog.Logger
}

// NewLogHandler constructs a LogHandler.
func NewLogHandler(logger zerolog.Logger) *LogHandler {
	return &LogHandler{logger: logger}
}

// Sink reports the metric label for this handler.
func (h *LogHandler) Sink() string { return sinkLog }

// Handle decodes the roster event and logs it.
func (h *LogHandler) Handle(_ context.Context, msg Message) error {
	event, err := decodeRosterEvent(msg)
	if err != nil {
		return err
	}
	h.logger.Info().
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Str("activity", event.Activity).
		Str("email", event.Email).
		Int("participant_count", event.ParticipantCount).
		Int("max_participants", event.MaxParticipants).
		Time("occurred_at", event.OccurredAt).
		Int64("offset", msg.Offset).
		Msg("roster event")
	recordActivityChange(event.Activity, event.EventType)
	return nil
}

func decodeRosterEvent(msg Message) (domain.RosterEvent, error) {
	var event domain.RosterEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return domain.RosterEvent{}, fmt.Errorf("decode roster event: %w", err)
	}
	if event.EventType == "" {
		event.EventType = msg.EventType
	}
	if event.EventID == "" {
		event.EventID = msg.EventID
	}
	if event.EventID == "" || event.Activity == "" {
		return domain.RosterEvent{}, fmt.Errorf("roster event at offset %d is missing event_id or activity", msg.Offset)
	}
	return event, nil
}
