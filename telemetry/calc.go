package telemetry

import "time"

const (
	// Gaps of an hour or more between samples are treated as a
	// logging discontinuity (machine asleep, app closed) and never
	// counted towards usage or drain figures.
	maxPairGap = time.Hour

	// Pairs closer together than this are too noisy to give a
	// meaningful per-hour rate.
	minRatePairGap = time.Minute
)

// UsageTime sums the connected time within a window of records. Only
// gaps where both ends were connected and shorter than an hour count.
func UsageTime(records []SampleRecord) time.Duration {
	if len(records) < 2 {
		return 0
	}
	var total time.Duration
	for i := 1; i < len(records); i++ {
		if !records[i].Connected || !records[i-1].Connected {
			continue
		}
		gap := records[i].Timestamp.Sub(records[i-1].Timestamp)
		if gap < maxPairGap {
			total += gap
		}
	}
	return total
}

// DrainRate estimates the discharge rate in %/hour over a window of
// records. Only connected samples are considered; for each consecutive
// pair with 1 minute < gap < 1 hour and a strictly positive level drop
// a per-pair rate is computed, and the result is the unweighted
// arithmetic mean of those rates. The mean is deliberately not
// time-weighted: a single short, steep drop does not dominate a long
// shallow series, at the cost of rates not being proportional to
// observation density.
//
// Returns false when no qualifying pair exists; a returned rate is
// always strictly positive.
func DrainRate(records []SampleRecord) (float64, bool) {
	var connected []SampleRecord
	for _, r := range records {
		if r.Connected {
			connected = append(connected, r)
		}
	}
	if len(connected) < 2 {
		return 0, false
	}

	var sum float64
	var count int
	for i := 1; i < len(connected); i++ {
		gap := connected[i].Timestamp.Sub(connected[i-1].Timestamp)
		drop := connected[i-1].Level - connected[i].Level
		if gap <= minRatePairGap || gap >= maxPairGap || drop <= 0 {
			continue
		}
		sum += float64(drop) / gap.Hours()
		count++
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// LastChangeDelta is the level difference between the two most recent
// records, positive when the battery went up. False with fewer than
// two records.
func LastChangeDelta(records []SampleRecord) (int, bool) {
	if len(records) < 2 {
		return 0, false
	}
	return records[len(records)-1].Level - records[len(records)-2].Level, true
}
