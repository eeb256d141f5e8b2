package domain

import (
	"errors"
	"slices"
)

var (
	// ErrActivityNotFound is returned when an activity name is not in the registry.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrParticipantNotFound is returned when removing an email that is not enrolled.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrAlreadySignedUp is returned when an email is already on the roster.
	ErrAlreadySignedUp = errors.New("student is already signed up")
	// ErrMissingParameter is wrapped with the name of the absent request parameter.
	ErrMissingParameter = errors.New("missing required parameter")
)

// Activity is a named extracurricular offering with its roster.
type Activity struct {
	Description     string   `json:"description" yaml:"description"`
	Schedule        string   `json:"schedule" yaml:"schedule"`
	MaxParticipants int      `json:"max_participants" yaml:"max_participants"`
	Participants    []string `json:"participants" yaml:"participants"`
}

// Enrolled reports whether email is on the roster.
func (a Activity) Enrolled(email string) bool {
	return slices.Contains(a.Participants, email)
}

// SpotsLeft returns the remaining capacity. It is negative when the roster is over capacity.
func (a Activity) SpotsLeft() int {
	return a.MaxParticipants - len(a.Participants)
}

func (a Activity) clone() Activity {
	out := a
	out.Participants = make([]string, len(a.Participants))
	copy(out.Participants, a.Participants)
	return out
}
