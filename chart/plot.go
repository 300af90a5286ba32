package chart

import "github.com/batterysense/batterysense/telemetry"

// Plot filters a window of records down to the ones that belong on the
// chart line: AxisMin <= timestamp <= DataMax. Records newer than
// DataMax are dropped on purpose, not a bug — they would place the
// rightmost point off the grid.
func (b Bounds) Plot(records []telemetry.SampleRecord) []telemetry.SampleRecord {
	var out []telemetry.SampleRecord
	for _, r := range records {
		if r.Timestamp.Before(b.AxisMin) || r.Timestamp.After(b.DataMax) {
			continue
		}
		out = append(out, r)
	}
	return out
}
