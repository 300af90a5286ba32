// Package chart computes stable time-axis bounds for battery history
// charts. All boundaries are deterministic functions of wall-clock
// time, so redrawing on a timer or on resize never shifts the grid.
package chart

import "time"

// Range is the lookback class a chart is displaying.
type Range int

const (
	Range1h Range = iota
	Range6h
	Range24h
)

// RangeFromHours maps a configured lookback in hours onto a range
// class. Values other than 1, 6 and 24 fall into the nearest class up.
func RangeFromHours(hours int) Range {
	switch {
	case hours <= 1:
		return Range1h
	case hours <= 6:
		return Range6h
	default:
		return Range24h
	}
}

func (r Range) Hours() int {
	switch r {
	case Range1h:
		return 1
	case Range6h:
		return 6
	default:
		return 24
	}
}

func (r Range) Duration() time.Duration {
	return time.Duration(r.Hours()) * time.Hour
}

// Granularity is the interval axis bounds are rounded to.
func (r Range) Granularity() time.Duration {
	switch r {
	case Range1h:
		return 10 * time.Minute
	case Range6h:
		return 30 * time.Minute
	default:
		return time.Hour
	}
}

// LabelInterval is the stride between gridlines and time labels. It is
// independent of the granularity: the 24 hour range keeps hourly
// rounding but only labels every 2 hours.
func (r Range) LabelInterval() time.Duration {
	switch r {
	case Range1h:
		return 10 * time.Minute
	case Range6h:
		return 30 * time.Minute
	default:
		return 2 * time.Hour
	}
}

func (r Range) String() string {
	switch r {
	case Range1h:
		return "1h"
	case Range6h:
		return "6h"
	default:
		return "24h"
	}
}

// Bounds are the aligned chart bounds for one draw. AxisMax/AxisMin
// frame the plot; records newer than DataMax are excluded from the
// plotted line so the rightmost point always lands on a grid-aligned
// position.
type Bounds struct {
	AxisMin   time.Time
	AxisMax   time.Time
	DataMax   time.Time
	Gridlines []time.Time
}

// Align computes the bounds for the latest sample timestamp t. AxisMax
// is t rounded up to the range's granularity (t itself when already on
// a boundary), AxisMin trails it by the full range, and DataMax is t
// rounded down.
func Align(t time.Time, r Range) Bounds {
	g := r.Granularity()
	dataMax := t.Truncate(g)
	axisMax := dataMax
	if axisMax.Before(t) {
		axisMax = axisMax.Add(g)
	}

	b := Bounds{
		AxisMin: axisMax.Add(-r.Duration()),
		AxisMax: axisMax,
		DataMax: dataMax,
	}
	for ts := b.AxisMin; !ts.After(b.AxisMax); ts = ts.Add(r.LabelInterval()) {
		b.Gridlines = append(b.Gridlines, ts)
	}
	return b
}

// X maps an instant to a horizontal position within a plot of the
// given width, clamped to [0, width].
func (b Bounds) X(ts time.Time, width float64) float64 {
	span := b.AxisMax.Sub(b.AxisMin)
	if span <= 0 {
		return 0
	}
	x := ts.Sub(b.AxisMin).Seconds() / span.Seconds() * width
	if x < 0 {
		return 0
	}
	if x > width {
		return width
	}
	return x
}

// Y maps a battery level to a vertical position, 0% at the bottom and
// 100% at the top. Levels are clamped to [0,100] before mapping.
func Y(level int, height float64) float64 {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return (1 - float64(level)/100) * height
}
