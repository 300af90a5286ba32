package telemetry

import (
	"fmt"
	"time"
)

const (
	// The fixed window used for the most stable rate estimate,
	// regardless of what lookback the user is displaying.
	stableWindow = 24 * time.Hour

	// Estimates beyond this are shown as ">99h".
	remainingCapHours = 99

	// The two-point fallback needs at least this span (in hours)
	// between the first and last sample to be meaningful.
	minFallbackSpanHours = 0.1
)

// Projector turns a device's current level and observed drain into a
// remaining-time estimate.
type Projector struct {
	store *Store
}

func NewProjector(store *Store) *Projector {
	return &Projector{store: store}
}

// Estimate returns the projected time until the battery is empty.
// Rates are tried in order of stability: the mean rate over a fixed
// 24 hour window, then over the user's display window, then a linear
// two-point estimate over the 24 hour window. False when every step
// comes up undefined or the level is already zero.
//
// The two-point fallback is intentionally a different estimator from
// DrainRate (total drop over total time, not a mean of pair rates).
func (p *Projector) Estimate(deviceID string, currentLevel int, displayLookback time.Duration) (time.Duration, bool) {
	if currentLevel <= 0 {
		return 0, false
	}

	rate, ok := DrainRate(p.store.Query(deviceID, stableWindow))
	if !ok {
		rate, ok = DrainRate(p.store.Query(deviceID, displayLookback))
	}
	if !ok {
		rate, ok = twoPointRate(p.store.Query(deviceID, stableWindow))
	}
	if !ok {
		return 0, false
	}

	hours := float64(currentLevel) / rate
	return time.Duration(hours * float64(time.Hour)), true
}

func twoPointRate(records []SampleRecord) (float64, bool) {
	if len(records) < 2 {
		return 0, false
	}
	first := records[0]
	last := records[len(records)-1]
	span := last.Timestamp.Sub(first.Timestamp).Hours()
	drop := first.Level - last.Level
	if span <= minFallbackSpanHours || drop <= 0 {
		return 0, false
	}
	return float64(drop) / span, true
}

// FormatRemaining renders an estimate as "Hh Mm", dropping the hour
// component when it is zero, and capping at ">99h".
func FormatRemaining(d time.Duration) string {
	if d > remainingCapHours*time.Hour {
		return ">99h"
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
