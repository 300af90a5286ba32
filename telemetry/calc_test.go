package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(offset time.Duration, level int, connected bool) SampleRecord {
	return SampleRecord{
		Timestamp: testStart.Add(offset),
		Level:     level,
		Connected: connected,
	}
}

func TestUsageTimeFullHour(t *testing.T) {
	// 7 connected samples spaced exactly 10 minutes apart.
	var records []SampleRecord
	for i := 0; i <= 6; i++ {
		records = append(records, record(time.Duration(i)*10*time.Minute, 80, true))
	}
	assert.Equal(t, time.Hour, UsageTime(records))
}

func TestUsageTimeSkipsLongGaps(t *testing.T) {
	records := []SampleRecord{
		record(0, 80, true),
		record(10*time.Minute, 79, true),
		// A 2 hour gap: sleep or app closed, not usage.
		record(2*time.Hour+10*time.Minute, 70, true),
		record(2*time.Hour+20*time.Minute, 69, true),
	}
	assert.Equal(t, 20*time.Minute, UsageTime(records))
}

func TestUsageTimeSkipsDisconnectedPairs(t *testing.T) {
	records := []SampleRecord{
		record(0, 80, true),
		record(10*time.Minute, 80, false),
		record(20*time.Minute, 80, true),
	}
	assert.Equal(t, time.Duration(0), UsageTime(records))
}

func TestUsageTimeTooFewRecords(t *testing.T) {
	assert.Equal(t, time.Duration(0), UsageTime(nil))
	assert.Equal(t, time.Duration(0), UsageTime([]SampleRecord{record(0, 80, true)}))
}

func TestDrainRateMeanOfSegments(t *testing.T) {
	records := []SampleRecord{
		record(0, 100, true),
		record(30*time.Minute, 90, true),
		record(60*time.Minute, 80, true),
	}
	rate, ok := DrainRate(records)
	require.True(t, ok)
	assert.InDelta(t, 20.0, rate, 0.0001)
}

func TestDrainRateUnweightedMean(t *testing.T) {
	// One steep 10-minute drop and one shallow 50-minute drop. The
	// mean of the two pair rates, not the time-weighted total.
	records := []SampleRecord{
		record(0, 100, true),
		record(10*time.Minute, 90, true), // 60 %/h
		record(60*time.Minute, 80, true), // 12 %/h
	}
	rate, ok := DrainRate(records)
	require.True(t, ok)
	assert.InDelta(t, 36.0, rate, 0.0001)
}

func TestDrainRateUndefinedWhenNotDraining(t *testing.T) {
	records := []SampleRecord{
		record(0, 80, true),
		record(30*time.Minute, 80, true),
		record(60*time.Minute, 85, true), // charging
	}
	_, ok := DrainRate(records)
	assert.False(t, ok)
}

func TestDrainRateIgnoresDisconnectedSamples(t *testing.T) {
	records := []SampleRecord{
		record(0, 100, false),
		record(30*time.Minute, 50, false),
	}
	_, ok := DrainRate(records)
	assert.False(t, ok)
}

func TestDrainRateIgnoresOutOfBoundGaps(t *testing.T) {
	records := []SampleRecord{
		record(0, 100, true),
		record(30*time.Second, 99, true), // too close together
		record(2*time.Hour, 50, true),    // too far apart
	}
	_, ok := DrainRate(records)
	assert.False(t, ok)
}

func TestLastChangeDelta(t *testing.T) {
	_, ok := LastChangeDelta([]SampleRecord{record(0, 80, true)})
	assert.False(t, ok)

	delta, ok := LastChangeDelta([]SampleRecord{
		record(0, 80, true),
		record(10*time.Minute, 77, true),
	})
	require.True(t, ok)
	assert.Equal(t, -3, delta)

	delta, ok = LastChangeDelta([]SampleRecord{
		record(0, 80, true),
		record(10*time.Minute, 90, true),
	})
	require.True(t, ok)
	assert.Equal(t, 10, delta)
}
