package domain

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// DefaultSeed returns the built-in activity catalog.
func DefaultSeed() map[string]Activity {
	seed, err := LoadSeed(bytes.NewReader(defaultSeed))
	if err != nil {
		panic(fmt.Sprintf("domain: embedded seed is invalid: %v", err))
	}
	return seed
}

// LoadSeedFile reads a YAML activity catalog from disk.
func LoadSeedFile(path string) (map[string]Activity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// LoadSeed decodes a YAML catalog of the form `<name>: {description, schedule,
// max_participants, participants}` and validates every entry.
func LoadSeed(r io.Reader) (map[string]Activity, error) {
	var seed map[string]Activity
	if err := yaml.NewDecoder(r).Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("seed catalog is empty")
		}
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if len(seed) == 0 {
		return nil, errors.New("seed catalog is empty")
	}

	var errs []error
	for name, activity := range seed {
		if err := validateSeedActivity(name, activity); err != nil {
			errs = append(errs, err)
		}
		if activity.Participants == nil {
			activity.Participants = []string{}
			seed[name] = activity
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return seed, nil
}

func validateSeedActivity(name string, activity Activity) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("activity name must not be empty")
	}
	if activity.MaxParticipants <= 0 {
		return fmt.Errorf("%s: max_participants must be > 0", name)
	}
	if len(activity.Participants) > activity.MaxParticipants {
		return fmt.Errorf("%s: %d participants exceed capacity %d", name, len(activity.Participants), activity.MaxParticipants)
	}
	seen := make(map[string]struct{}, len(activity.Participants))
	for _, email := range activity.Participants {
		if strings.TrimSpace(email) == "" {
			return fmt.Errorf("%s: empty participant email", name)
		}
		if _, dup := seen[email]; dup {
			return fmt.Errorf("%s: duplicate participant %s", name, email)
		}
		seen[email] = struct{}{}
	}
	return nil
}
