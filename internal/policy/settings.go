// Package policy implements the crash-rate limit that decides whether a
// crashed child may be restarted.
package policy

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultMaxRetries applies when neither a per-minute nor a per-hour limit
	// is configured.
	DefaultMaxRetries = 4

	MaxSetting = 255

	minute = time.Minute
	hour   = time.Hour
)

var (
	ErrConflictingLimits = errors.New("--per-minute and --per-hour cannot be combined")
	ErrOutOfRange        = errors.New("value out of range")
)

// Settings is the resolved restart policy for a supervisor run.
type Settings struct {
	MaxRetries int           `yaml:"max_retries"`
	Window     time.Duration `yaml:"window"`
	Label      string        `yaml:"window_label"`
	Delay      time.Duration `yaml:"delay"`
}

// NewWindow builds an empty crash window for the settings.
func (s Settings) NewWindow() *Window {
	return NewWindow(s.MaxRetries, s.Window)
}

// Resolve turns the raw limit flags into settings. Zero means "not provided":
// a per-minute limit wins over a per-hour limit, and when both are zero the
// default of four crashes per minute applies.
func Resolve(perMinute, perHour, delaySeconds int) (Settings, error) {
	for _, v := range []struct {
		name  string
		value int
	}{
		{"per-minute", perMinute},
		{"per-hour", perHour},
		{"delay", delaySeconds},
	} {
		if v.value < 0 || v.value > MaxSetting {
			return Settings{}, fmt.Errorf("%w: %s must be between 0 and %d, got %d", ErrOutOfRange, v.name, MaxSetting, v.value)
		}
	}
	if perMinute > 0 && perHour > 0 {
		return Settings{}, ErrConflictingLimits
	}

	settings := Settings{
		MaxRetries: DefaultMaxRetries,
		Window:     minute,
		Label:      "minute",
		Delay:      time.Duration(delaySeconds) * time.Second,
	}
	switch {
	case perMinute > 0:
		settings.MaxRetries = perMinute
	case perHour > 0:
		settings.MaxRetries = perHour
		settings.Window = hour
		settings.Label = "hour"
	}
	return settings, nil
}
