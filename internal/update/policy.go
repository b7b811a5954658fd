package update

import (
	"time"
)

// Frequency controls how often the automatic update check runs.
type Frequency int

const (
	FrequencyOnLaunch Frequency = iota
	FrequencyDaily
	FrequencyWeekly
	FrequencyMonthly
	FrequencyNever
)

// Check intervals per frequency.
const (
	dailyInterval   = 24 * time.Hour
	weeklyInterval  = 7 * 24 * time.Hour
	monthlyInterval = 30 * 24 * time.Hour
)

// ParseFrequency maps a configuration label to a Frequency. Unrecognized
// labels fall back to weekly rather than failing.
func ParseFrequency(label string) Frequency {
	switch label {
	case "on-launch":
		return FrequencyOnLaunch
	case "daily":
		return FrequencyDaily
	case "weekly":
		return FrequencyWeekly
	case "monthly":
		return FrequencyMonthly
	case "never":
		return FrequencyNever
	default:
		return FrequencyWeekly
	}
}

// String returns the configuration label for a Frequency.
func (f Frequency) String() string {
	switch f {
	case FrequencyOnLaunch:
		return "on-launch"
	case FrequencyDaily:
		return "daily"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyNever:
		return "never"
	default:
		return "weekly"
	}
}

// ShouldCheck decides whether an update check is due. lastCheck is the
// persisted ISO-8601 timestamp of the previous check; an empty or
// unparseable value means this is a first run and a check is due.
// Self-update never runs against a development build.
func ShouldCheck(now time.Time, lastCheck string, freq Frequency, enabled, devMode bool) bool {
	if !enabled {
		return false
	}
	if devMode {
		return false
	}
	if freq == FrequencyOnLaunch {
		return true
	}

	// A missing or unreadable timestamp means no check ever ran; that
	// first run checks even when the frequency is "never".
	last, err := time.Parse(time.RFC3339, lastCheck)
	if err != nil {
		return true
	}

	elapsed := now.Sub(last)
	switch freq {
	case FrequencyNever:
		return false
	case FrequencyDaily:
		return elapsed >= dailyInterval
	case FrequencyMonthly:
		return elapsed >= monthlyInterval
	default:
		return elapsed >= weeklyInterval
	}
}
