package outbox

import (
	"context"

	"github.com/rs/zerolog"

	"example.com/signup/internal/domain"
)

// Queue buffers roster events in memory until the Dispatcher drains them.
// Events are lost on restart, like the registry they describe.
type Queue struct {
	events chan domain.RosterEvent
	logger zerolog.Logger
}

// NewQueue constructs a Queue holding at most size events.
func NewQueue(size int, logger zerolog.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		events: make(chan domain.RosterEvent, size),
		logger: logger,
	}
}

// Publish implements domain.EventPublisher. It never blocks; when the buffer is
// full the event is dropped and counted.
func (q *Queue) Publish(_ context.Context, event domain.RosterEvent) {
	select {
	case q.events <- event:
		queuedCounter.Inc()
	default:
		droppedCounter.WithLabelValues(dropQueueFull).Inc()
		q.logger.Warn().
			Str("event_id", event.EventID).
			Str("event_type", event.EventType).
			Str("activity", event.Activity).
			Msg("outbox queue full, dropping roster event")
	}
}

// Len reports the number of buffered events.
func (q *Queue) Len() int {
	return len(q.events)
}

// drain removes up to max buffered events without blocking.
func (q *Queue) drain(max int) []domain.RosterEvent {
	out := make([]domain.RosterEvent, 0, min(max, len(q.events)))
	for len(out) < max {
		select {
		case event := <-q.events:
			out = append(out, event)
		default:
			return out
		}
	}
	return out
}
