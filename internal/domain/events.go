package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Roster event types emitted after a successful mutation.
const (
	EventParticipantSignedUp = "participant.signed_up"
	EventParticipantRemoved  = "participant.removed"
)

// RosterEvent describes a single roster change.
type RosterEvent struct {
	EventID          string    `json:"event_id"`
	EventType        string    `json:"event_type"`
	Activity         string    `json:"activity"`
	Email            string    `json:"email"`
	ParticipantCount int       `json:"participant_count"`
	MaxParticipants  int       `json:"max_participants"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// EventPublisher hands roster events to downstream delivery. Implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event RosterEvent)
}

// NoopPublisher discards every event.
type NoopPublisher struct{}

// Publish performs no action.
func (NoopPublisher) Publish(context.Context, RosterEvent) {}

func newRosterEvent(eventType, name, email string, activity Activity) RosterEvent {
	return RosterEvent{
		EventID:          uuid.NewString(),
		EventType:        eventType,
		Activity:         name,
		Email:            email,
		ParticipantCount: len(activity.Participants),
		MaxParticipants:  activity.MaxParticipants,
		OccurredAt:       time.Now().UTC(),
	}
}
