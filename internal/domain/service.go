// Package domain defines the activity registry and the signup workflows around it.
package domain

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"example.com/signup/internal/observability"
)

const (
	opSignup = "signup"
	opRemove = "remove"
)

// Option configures optional behaviour for the Service.
type Option func(*Service)

// WithLogger overrides the logger used to report roster changes.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublisher sets the destination for roster events.
func WithPublisher(publisher EventPublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// Service orchestrates signup workflows on top of the registry.
type Service struct {
	registry  *Registry
	publisher EventPublisher
	logger    zerolog.Logger
}

// NewService constructs a Service and primes the roster gauges.
func NewService(registry *Registry, opts ...Option) *Service {
	s := &Service{
		registry:  registry,
		publisher: NoopPublisher{},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	for name, activity := range registry.List() {
		observability.RecordRoster(name, len(activity.Participants), activity.MaxParticipants)
	}
	return s
}

// ListActivities returns a snapshot of every activity.
func (s *Service) ListActivities(ctx context.Context) Snapshot {
	return s.registry.List()
}

// Signup enrolls email in the named activity and returns a confirmation message.
func (s *Service) Signup(ctx context.Context, name, email string) (string, error) {
	activity, err := s.registry.enroll(name, email)
	if err != nil {
		s.reject(opSignup, name, err)
		return "", err
	}

	observability.RecordSignup(name)
	observability.RecordRoster(name, len(activity.Participants), activity.MaxParticipants)
	if activity.SpotsLeft() < 0 {
		observability.RecordOverCapacity(name)
		s.logger.Warn().
			Str("activity", name).
			Int("participants", len(activity.Participants)).
			Int("max_participants", activity.MaxParticipants).
			Msg("signup accepted above capacity")
	}

	s.logger.Info().Str("activity", name).Str("email", email).Msg("participant signed up")
	s.publisher.Publish(ctx, newRosterEvent(EventParticipantSignedUp, name, email, activity))
	return signupMessage(name, email), nil
}

// Remove unenrolls email from the named activity and returns a confirmation message.
func (s *Service) Remove(ctx context.Context, name, email string) (string, error) {
	activity, err := s.registry.unenroll(name, email)
	if err != nil {
		s.reject(opRemove, name, err)
		return "", err
	}

	observability.RecordRemoval(name)
	observability.RecordRoster(name, len(activity.Participants), activity.MaxParticipants)

	s.logger.Info().Str("activity", name).Str("email", email).Msg("participant removed")
	s.publisher.Publish(ctx, newRosterEvent(EventParticipantRemoved, name, email, activity))
	return removeMessage(name, email), nil
}

func (s *Service) reject(op, name string, err error) {
	reason := RejectionReason(err)
	observability.RecordRejected(op, reason)
	s.logger.Debug().Str("operation", op).Str("activity", name).Str("reason", reason).Err(err).Msg("roster change rejected")
}

// RejectionReason maps a registry error to a metric label.
func RejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrActivityNotFound):
		return observability.ReasonActivityNotFound
	case errors.Is(err, ErrParticipantNotFound):
		return observability.ReasonParticipantNotFound
	case errors.Is(err, ErrAlreadySignedUp):
		return observability.ReasonAlreadySignedUp
	case errors.Is(err, ErrMissingParameter):
		return observability.ReasonMissingParameter
	default:
		return observability.ReasonOther
	}
}
