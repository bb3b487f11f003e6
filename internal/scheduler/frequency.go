package scheduler

import (
	"time"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// Frequency is how often a tier gets an automated re-run.
type Frequency string

const (
	FrequencyManual  Frequency = "manual"
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ParseFrequency maps a config string to a Frequency. Unknown values
// degrade to manual, which never schedules.
func ParseFrequency(s string) Frequency {
	switch Frequency(s) {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyManual:
		return Frequency(s)
	}
	return FrequencyManual
}

// Interval is the re-run period. Manual has no interval.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyDaily:
		return 24 * time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	case FrequencyMonthly:
		return 30 * 24 * time.Hour
	}
	return 0
}

// FrequencyForTier resolves a tier's frequency from configuration.
// Unmapped tiers are manual.
func FrequencyForTier(tier model.Tier, frequencies map[string]string) Frequency {
	if raw, ok := frequencies[string(tier)]; ok {
		return ParseFrequency(raw)
	}
	return FrequencyManual
}
