package domain

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"example.com/signup/internal/observability"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []RosterEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event RosterEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func TestServicePublishesRosterEvents(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	service := NewService(NewRegistry(DefaultSeed()), WithPublisher(publisher))

	msg, err := service.Signup(ctx, "Art Club", "painter@mergington.edu")
	require.NoError(t, err)
	require.Equal(t, "painter@mergington.edu signed up for Art Club", msg)

	msg, err = service.Remove(ctx, "Art Club", "painter@mergington.edu")
	require.NoError(t, err)
	require.Equal(t, "painter@mergington.edu removed from Art Club", msg)

	require.Len(t, publisher.events, 2)
	signed, removed := publisher.events[0], publisher.events[1]
	require.Equal(t, EventParticipantSignedUp, signed.EventType)
	require.Equal(t, "Art Club", signed.Activity)
	require.Equal(t, "painter@mergington.edu", signed.Email)
	require.Equal(t, 2, signed.ParticipantCount)
	require.Equal(t, 15, signed.MaxParticipants)
	require.NotEmpty(t, signed.EventID)
	require.False(t, signed.OccurredAt.IsZero())

	require.Equal(t, EventParticipantRemoved, removed.EventType)
	require.Equal(t, 1, removed.ParticipantCount)
	require.NotEqual(t, signed.EventID, removed.EventID)
}

func TestServiceDoesNotPublishOnFailure(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	service := NewService(NewRegistry(DefaultSeed()), WithPublisher(publisher))

	_, err := service.Signup(ctx, "Nonexistent Activity", "a@m.edu")
	require.ErrorIs(t, err, ErrActivityNotFound)
	_, err = service.Remove(ctx, "Chess Club", "ghost@m.edu")
	require.ErrorIs(t, err, ErrParticipantNotFound)
	_, err = service.Signup(ctx, "Chess Club", "")
	require.ErrorIs(t, err, ErrMissingParameter)

	require.Empty(t, publisher.events)
}

func TestServiceRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	service := NewService(NewRegistry(map[string]Activity{
		"Metrics Club": {Description: "d", Schedule: "s", MaxParticipants: 1},
	}))

	signups := testutil.ToFloat64(observability.SignupCount("Metrics Club"))
	removals := testutil.ToFloat64(observability.RemovalCount("Metrics Club"))
	rejected := testutil.ToFloat64(observability.RejectedCount(opSignup, observability.ReasonAlreadySignedUp))

	_, err := service.Signup(ctx, "Metrics Club", "a@m.edu")
	require.NoError(t, err)
	_, err = service.Signup(ctx, "Metrics Club", "a@m.edu")
	require.Error(t, err)
	require.InDelta(t, 1, testutil.ToFloat64(observability.Participants("Metrics Club")), 0.0001)

	_, err = service.Remove(ctx, "Metrics Club", "a@m.edu")
	require.NoError(t, err)

	require.InDelta(t, signups+1, testutil.ToFloat64(observability.SignupCount("Metrics Club")), 0.0001)
	require.InDelta(t, removals+1, testutil.ToFloat64(observability.RemovalCount("Metrics Club")), 0.0001)
	require.InDelta(t, rejected+1, testutil.ToFloat64(observability.RejectedCount(opSignup, observability.ReasonAlreadySignedUp)), 0.0001)
	require.InDelta(t, 0, testutil.ToFloat64(observability.Participants("Metrics Club")), 0.0001)
}

func TestServiceWarnsAboveCapacity(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	service := NewService(NewRegistry(map[string]Activity{
		"Full Club": {Description: "d", Schedule: "s", MaxParticipants: 1, Participants: []string{"a@m.edu"}},
	}), WithLogger(logger))

	before := testutil.ToFloat64(observability.OverCapacityCount("Full Club"))

	_, err := service.Signup(context.Background(), "Full Club", "b@m.edu")
	require.NoError(t, err)

	require.InDelta(t, before+1, testutil.ToFloat64(observability.OverCapacityCount("Full Club")), 0.0001)
	require.Contains(t, buf.String(), "signup accepted above capacity")
}

func TestRejectionReason(t *testing.T) {
	require.Equal(t, observability.ReasonActivityNotFound, RejectionReason(ErrActivityNotFound))
	require.Equal(t, observability.ReasonParticipantNotFound, RejectionReason(ErrParticipantNotFound))
	require.Equal(t, observability.ReasonAlreadySignedUp, RejectionReason(ErrAlreadySignedUp))
	require.Equal(t, observability.ReasonMissingParameter, RejectionReason(requireEmail("")))
	require.Equal(t, observability.ReasonOther, RejectionReason(context.Canceled))
}
