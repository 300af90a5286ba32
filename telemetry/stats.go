package telemetry

import "time"

// Stats bundles the windowed figures shown for one device. Undefined
// values carry ok=false rather than an error; "no data" is a normal
// state here.
type Stats struct {
	UsageTime    time.Duration
	DrainRate    float64
	DrainRateOK  bool
	Remaining    time.Duration
	RemainingOK  bool
	LastChange   int
	LastChangeOK bool
}

// Stats computes the statistics bundle for a device over the given
// display lookback.
func (s *Store) Stats(deviceID string, lookback time.Duration) Stats {
	windowed := s.Query(deviceID, lookback)

	st := Stats{UsageTime: UsageTime(windowed)}
	st.DrainRate, st.DrainRateOK = DrainRate(windowed)

	series, ok := s.Get(deviceID)
	if !ok || len(series.Records) == 0 {
		return st
	}
	st.LastChange, st.LastChangeOK = LastChangeDelta(series.Records)

	level := series.Records[len(series.Records)-1].Level
	st.Remaining, st.RemainingOK = NewProjector(s).Estimate(deviceID, level, lookback)
	return st
}
