package domain

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Registry stores every activity in memory for the lifetime of the process.
type Registry struct {
	mu         sync.RWMutex
	activities map[string]*Activity
}

// Snapshot is a point-in-time copy of the registry keyed by activity name.
type Snapshot map[string]Activity

// NewRegistry constructs a registry populated with the provided seed activities.
func NewRegistry(seed map[string]Activity) *Registry {
	r := &Registry{activities: make(map[string]*Activity, len(seed))}
	for name, activity := range seed {
		a := activity.clone()
		r.activities[name] = &a
	}
	return r
}

// List returns a copy of every activity.
func (r *Registry) List() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(Snapshot, len(r.activities))
	for name, activity := range r.activities {
		out[name] = activity.clone()
	}
	return out
}

// Get returns a copy of a single activity.
func (r *Registry) Get(name string) (Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.activities[name]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	return activity.clone(), nil
}

// Signup appends email to the activity roster. Capacity is not enforced.
func (r *Registry) Signup(name, email string) (string, error) {
	if _, err := r.enroll(name, email); err != nil {
		return "", err
	}
	return signupMessage(name, email), nil
}

// Remove deletes email from the activity roster, keeping the order of the others.
func (r *Registry) Remove(name, email string) (string, error) {
	if _, err := r.unenroll(name, email); err != nil {
		return "", err
	}
	return removeMessage(name, email), nil
}

// enroll appends email and returns a copy of the updated activity.
func (r *Registry) enroll(name, email string) (Activity, error) {
	if err := requireEmail(email); err != nil {
		return Activity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	if activity.Enrolled(email) {
		return Activity{}, ErrAlreadySignedUp
	}

	activity.Participants = append(activity.Participants, email)
	return activity.clone(), nil
}

// unenroll removes email and returns a copy of the updated activity.
func (r *Registry) unenroll(name, email string) (Activity, error) {
	if err := requireEmail(email); err != nil {
		return Activity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.activities[name]
	if !ok {
		return Activity{}, ErrActivityNotFound
	}
	idx := slices.Index(activity.Participants, email)
	if idx < 0 {
		return Activity{}, ErrParticipantNotFound
	}

	activity.Participants = slices.Delete(activity.Participants, idx, idx+1)
	return activity.clone(), nil
}

// Snapshot captures the current rosters so they can be restored later.
func (r *Registry) Snapshot() Snapshot {
	return r.List()
}

// Restore resets participant lists to the captured snapshot. Activities missing
// from the registry are ignored; the set of activities never changes.
func (r *Registry) Restore(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, saved := range snapshot {
		activity, ok := r.activities[name]
		if !ok {
			continue
		}
		activity.Participants = saved.clone().Participants
	}
}

func signupMessage(name, email string) string {
	return fmt.Sprintf("%s signed up for %s", email, name)
}

func removeMessage(name, email string) string {
	return fmt.Sprintf("%s removed from %s", email, name)
}

// requireEmail treats a blank email, including one of only whitespace, as missing.
func requireEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email", ErrMissingParameter)
	}
	return nil
}
