package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration resolves a duration-string config field. An empty value takes
// def; negative values are rejected because every duration in this config
// (poll timeout, busy timeout, retention) is a length, not an offset.
func Duration(field, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", field)
	}
	return d, nil
}

// Durations are the resolved duration fields of a config snapshot, computed
// once so validation and wiring agree on the same values.
type Durations struct {
	TelegramPollTimeout time.Duration
	SessionBusyTimeout  time.Duration
	SessionRetention    time.Duration
}

// ResolveDurations parses every duration field, applying this daemon's
// defaults. It is the single place new duration fields get added.
func (c *Config) ResolveDurations() (Durations, error) {
	var (
		d   Durations
		err error
	)
	if d.TelegramPollTimeout, err = Duration("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return Durations{}, err
	}
	if d.SessionBusyTimeout, err = Duration("sessions.busy_timeout", c.Sessions.BusyTimeout, 0); err != nil {
		return Durations{}, err
	}
	if d.SessionRetention, err = Duration("sessions.retention", c.Sessions.Retention, 0); err != nil {
		return Durations{}, err
	}
	return d, nil
}
