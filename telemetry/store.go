package telemetry

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
)

var log = logging.NewLogger("info")

const (
	// MaxRecordsPerDevice bounds each series; oldest records are
	// evicted first once the cap is exceeded.
	MaxRecordsPerDevice = 500

	// DefaultRetention is how far back Cleanup keeps records.
	DefaultRetention = 30 * 24 * time.Hour
)

// SampleRecord is one battery observation. Immutable once appended.
type SampleRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Level     int       `json:"level"`
	Connected bool      `json:"connected"`
}

// DeviceSeries holds the bounded sample history for one device.
// Records are ordered non-decreasing by timestamp.
type DeviceSeries struct {
	DeviceID       string         `json:"deviceId"`
	Name           string         `json:"name"`
	FirstSeen      time.Time      `json:"firstSeen"`
	LastSeen       time.Time      `json:"lastSeen"`
	ConnectionType string         `json:"connectionType"`
	Records        []SampleRecord `json:"records"`
}

func (d *DeviceSeries) snapshot() DeviceSeries {
	out := *d
	out.Records = append([]SampleRecord(nil), d.Records...)
	return out
}

// Store keeps per-device battery history and persists it as a single
// JSON document. Persistence is best-effort: a missing or malformed
// file never prevents startup.
type Store struct {
	mu     sync.Mutex
	series map[string]*DeviceSeries
	path   string
	dirty  bool
	now    func() time.Time

	// Held for the whole of Save so two savers can't interleave
	// writes to the same temp file.
	saveMu sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{
		series: make(map[string]*DeviceSeries),
		path:   path,
		now:    time.Now,
	}
}

// Load reads the history document from disk. Any failure leaves the
// store empty.
func (s *Store) Load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("Failed to read telemetry history: %v", err)
		}
		return
	}
	series := make(map[string]*DeviceSeries)
	if err := json.Unmarshal(data, &series); err != nil {
		log.Errorf("Malformed telemetry history, starting empty: %v", err)
		return
	}
	// A null or out-of-order entry would break every later append and
	// windowed query for that device; drop it and keep the rest.
	for id, d := range series {
		if d == nil || !sortedByTime(d.Records) {
			log.Errorf("Dropping malformed history for device %s", id)
			delete(series, id)
		}
	}
	s.mu.Lock()
	s.series = series
	s.mu.Unlock()
	log.Printf("Loaded battery history for %d devices", len(series))
}

// Save writes the history document if anything changed since the last
// save. The write goes through a temp file so a crash mid-write can't
// corrupt the previous document.
func (s *Store) Save() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(s.series, "", "  ")
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.dirty = false
	s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		s.markDirty()
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.markDirty()
		return err
	}
	return nil
}

func (s *Store) markDirty() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Append records a new sample for a device, creating the series on
// first use. Levels outside [0,100] are clamped rather than rejected.
func (s *Store) Append(deviceID, name string, level int, connected bool, connectionType string) {
	level = ClampLevel(level)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	series, ok := s.series[deviceID]
	if !ok {
		series = &DeviceSeries{
			DeviceID:  deviceID,
			FirstSeen: now,
		}
		s.series[deviceID] = series
	}
	series.Name = name
	series.LastSeen = now
	series.ConnectionType = connectionType
	series.Records = append(series.Records, SampleRecord{
		Timestamp: now,
		Level:     level,
		Connected: connected,
	})
	if n := len(series.Records); n > MaxRecordsPerDevice {
		series.Records = append(series.Records[:0:0], series.Records[n-MaxRecordsPerDevice:]...)
	}
	s.dirty = true
}

// Get returns a snapshot of a device's series, so callers never see a
// series mid-append or mid-trim.
func (s *Store) Get(deviceID string) (DeviceSeries, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[deviceID]
	if !ok {
		return DeviceSeries{}, false
	}
	return series.snapshot(), true
}

// Devices returns snapshots of every series, ordered by device ID.
func (s *Store) Devices() []DeviceSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeviceSeries, 0, len(s.series))
	for _, series := range s.series {
		out = append(out, series.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (s *Store) DeviceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.series)
}

// Query returns the device's records no older than the lookback,
// in chronological order. Unknown devices yield an empty result.
func (s *Store) Query(deviceID string, lookback time.Duration) []SampleRecord {
	cutoff := s.now().Add(-lookback)

	s.mu.Lock()
	defer s.mu.Unlock()
	series, ok := s.series[deviceID]
	if !ok {
		return nil
	}
	recs := series.Records
	i := sort.Search(len(recs), func(i int) bool {
		return !recs[i].Timestamp.Before(cutoff)
	})
	if i == len(recs) {
		return nil
	}
	return append([]SampleRecord(nil), recs[i:]...)
}

// Cleanup drops records older than the retention and removes devices
// left with no records. Returns how many records and devices were
// dropped.
func (s *Store) Cleanup(retention time.Duration) (records, devices int) {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, series := range s.series {
		recs := series.Records
		if len(recs) == 0 {
			delete(s.series, id)
			devices++
			continue
		}
		i := sort.Search(len(recs), func(i int) bool {
			return !recs[i].Timestamp.Before(cutoff)
		})
		if i == 0 {
			continue
		}
		records += i
		if i == len(recs) {
			delete(s.series, id)
			devices++
			continue
		}
		series.Records = append(recs[:0:0], recs[i:]...)
	}
	if records > 0 || devices > 0 {
		s.dirty = true
	}
	return records, devices
}

// ClampLevel forces a reported level into [0,100]. Out-of-range values
// from a sample source are stored clamped rather than rejected.
func ClampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

func sortedByTime(records []SampleRecord) bool {
	for i := 1; i < len(records); i++ {
		if records[i].Timestamp.Before(records[i-1].Timestamp) {
			return false
		}
	}
	return true
}
