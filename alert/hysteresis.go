// Package alert decides whether a low-battery notification should
// fire. It only answers "should an event fire now"; how the user is
// notified is someone else's problem.
package alert

import (
	"sort"
	"sync"
)

// Config holds the alerting knobs supplied by the settings store.
type Config struct {
	Threshold int
	Enabled   bool
}

// Event is emitted when a device first drops to or below the
// threshold. At most one fires per threshold crossing.
type Event struct {
	DeviceID  string
	Level     int
	Threshold int
}

// Step applies one sample to the alerted set. It is a pure state
// transition: callers own the set and its persistence. Returns whether
// the set changed and the event to emit, if any.
//
// While alerting is disabled no transitions happen and the set is left
// untouched, so re-enabling resumes the prior state instead of
// re-alerting every low device at once.
func Step(alerted map[string]bool, deviceID string, level int, cfg Config) (changed bool, event *Event) {
	if !cfg.Enabled {
		return false, nil
	}
	if level <= cfg.Threshold {
		if alerted[deviceID] {
			return false, nil
		}
		alerted[deviceID] = true
		return true, &Event{DeviceID: deviceID, Level: level, Threshold: cfg.Threshold}
	}
	// Recovery above the threshold clears silently.
	if alerted[deviceID] {
		delete(alerted, deviceID)
		return true, nil
	}
	return false, nil
}

// Hysteresis owns the alerted set for a running daemon and persists it
// through a callback whenever it changes.
type Hysteresis struct {
	mu      sync.Mutex
	alerted map[string]bool
	cfg     Config
	persist func(alerted []string)
}

func New(cfg Config, persist func(alerted []string)) *Hysteresis {
	return &Hysteresis{
		alerted: make(map[string]bool),
		cfg:     cfg,
		persist: persist,
	}
}

// Restore seeds the alerted set from persisted state.
func (h *Hysteresis) Restore(deviceIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range deviceIDs {
		h.alerted[id] = true
	}
}

// Observe applies a new sample, atomically with respect to other
// observations for the same store. Returns the event to emit, if any.
func (h *Hysteresis) Observe(deviceID string, level int) *Event {
	h.mu.Lock()
	changed, event := Step(h.alerted, deviceID, level, h.cfg)
	var snapshot []string
	if changed {
		snapshot = h.alertedLocked()
	}
	h.mu.Unlock()

	if changed && h.persist != nil {
		h.persist(snapshot)
	}
	return event
}

// SetThreshold installs a new threshold and unconditionally clears the
// alerted set, forcing every known device to be re-evaluated against
// the new value.
func (h *Hysteresis) SetThreshold(threshold int) {
	h.mu.Lock()
	h.cfg.Threshold = threshold
	h.alerted = make(map[string]bool)
	h.mu.Unlock()

	if h.persist != nil {
		h.persist(nil)
	}
}

// SetEnabled toggles alerting. The alerted set is left as is.
func (h *Hysteresis) SetEnabled(enabled bool) {
	h.mu.Lock()
	h.cfg.Enabled = enabled
	h.mu.Unlock()
}

// Alerted returns the device IDs currently in the alerted state,
// sorted for stable persistence.
func (h *Hysteresis) Alerted() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alertedLocked()
}

func (h *Hysteresis) alertedLocked() []string {
	out := make([]string, 0, len(h.alerted))
	for id := range h.alerted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
