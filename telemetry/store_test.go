package telemetry

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

// newTestStore returns a store with a controllable clock. Advance the
// returned time pointer to move "now".
func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	cur := testStart
	s := NewStore(filepath.Join(t.TempDir(), "device_history.json"))
	s.now = func() time.Time { return cur }
	return s, &cur
}

func TestAppendCreatesAndUpdatesSeries(t *testing.T) {
	s, cur := newTestStore(t)

	s.Append("dev1", "Mouse", 80, true, "BLE")
	series, ok := s.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, "dev1", series.DeviceID)
	assert.Equal(t, "Mouse", series.Name)
	assert.Equal(t, testStart, series.FirstSeen)
	assert.Equal(t, testStart, series.LastSeen)
	assert.Equal(t, "BLE", series.ConnectionType)
	require.Len(t, series.Records, 1)
	assert.Equal(t, 80, series.Records[0].Level)
	assert.True(t, series.Records[0].Connected)

	*cur = cur.Add(time.Minute)
	s.Append("dev1", "Mouse MX", 79, true, "Bluetooth")
	series, ok = s.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, "Mouse MX", series.Name)
	assert.Equal(t, testStart, series.FirstSeen)
	assert.Equal(t, *cur, series.LastSeen)
	assert.Equal(t, "Bluetooth", series.ConnectionType)
	assert.Len(t, series.Records, 2)
}

func TestAppendClampsLevel(t *testing.T) {
	s, cur := newTestStore(t)

	s.Append("dev1", "Mouse", -5, true, "BLE")
	*cur = cur.Add(time.Minute)
	s.Append("dev1", "Mouse", 150, true, "BLE")

	series, ok := s.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, 0, series.Records[0].Level)
	assert.Equal(t, 100, series.Records[1].Level)
}

func TestAppendEnforcesRecordCap(t *testing.T) {
	s, cur := newTestStore(t)

	for i := 0; i < MaxRecordsPerDevice+100; i++ {
		s.Append("dev1", "Mouse", 50, true, "BLE")
		*cur = cur.Add(time.Minute)
	}

	series, ok := s.Get("dev1")
	require.True(t, ok)
	assert.Len(t, series.Records, MaxRecordsPerDevice)
	// The oldest 100 records were evicted.
	assert.Equal(t, testStart.Add(100*time.Minute), series.Records[0].Timestamp)
	for i := 1; i < len(series.Records); i++ {
		assert.False(t, series.Records[i].Timestamp.Before(series.Records[i-1].Timestamp))
	}
}

func TestGetReturnsSnapshot(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append("dev1", "Mouse", 80, true, "BLE")

	series, ok := s.Get("dev1")
	require.True(t, ok)
	series.Records[0].Level = 5

	again, ok := s.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, 80, again.Records[0].Level)
}

func TestGetUnknownDevice(t *testing.T) {
	s, _ := newTestStore(t)
	_, ok := s.Get("nope")
	assert.False(t, ok)
}

func TestQueryWindow(t *testing.T) {
	s, cur := newTestStore(t)

	for i := 0; i < 10; i++ {
		s.Append("dev1", "Mouse", 90-i, true, "BLE")
		*cur = cur.Add(10 * time.Minute)
	}
	// Clock is now 100 minutes past start; a 35 minute lookback spans
	// the samples at +70, +80 and +90 minutes.
	records := s.Query("dev1", 35*time.Minute)
	require.Len(t, records, 3)
	assert.Equal(t, testStart.Add(70*time.Minute), records[0].Timestamp)
	assert.Equal(t, testStart.Add(90*time.Minute), records[2].Timestamp)

	assert.Empty(t, s.Query("unknown", time.Hour))
	assert.Empty(t, s.Query("dev1", time.Nanosecond))
}

func TestCleanup(t *testing.T) {
	s, cur := newTestStore(t)

	s.Append("old", "Old", 50, true, "BLE")
	*cur = cur.Add(40 * 24 * time.Hour)
	s.Append("fresh", "Fresh", 70, true, "BLE")
	*cur = cur.Add(time.Hour)

	records, devices := s.Cleanup(DefaultRetention)
	assert.Equal(t, 1, records)
	assert.Equal(t, 1, devices)

	_, ok := s.Get("old")
	assert.False(t, ok)
	fresh, ok := s.Get("fresh")
	require.True(t, ok)
	assert.Len(t, fresh.Records, 1)
}

func TestCleanupTrimsWithinSeries(t *testing.T) {
	s, cur := newTestStore(t)

	s.Append("dev1", "Mouse", 90, true, "BLE")
	*cur = cur.Add(40 * 24 * time.Hour)
	s.Append("dev1", "Mouse", 60, true, "BLE")

	records, devices := s.Cleanup(DefaultRetention)
	assert.Equal(t, 1, records)
	assert.Equal(t, 0, devices)

	series, ok := s.Get("dev1")
	require.True(t, ok)
	require.Len(t, series.Records, 1)
	assert.Equal(t, 60, series.Records[0].Level)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_history.json")
	s := NewStore(path)
	cur := testStart
	s.now = func() time.Time { return cur }

	levels := []int{90, 85, 81}
	for _, level := range levels {
		s.Append("dev1", "Keyboard", level, true, "BLE")
		cur = cur.Add(10 * time.Minute)
	}
	s.Append("dev1", "Keyboard", 80, false, "BLE")
	require.NoError(t, s.Save())

	loaded := NewStore(path)
	loaded.Load()
	got, ok := loaded.Get("dev1")
	require.True(t, ok)

	want, ok := s.Get("dev1")
	require.True(t, ok)
	require.Len(t, got.Records, len(want.Records))
	for i := range want.Records {
		assert.True(t, got.Records[i].Timestamp.Equal(want.Records[i].Timestamp))
		assert.Equal(t, want.Records[i].Level, got.Records[i].Level)
		assert.Equal(t, want.Records[i].Connected, got.Records[i].Connected)
	}
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.ConnectionType, got.ConnectionType)
	assert.True(t, got.FirstSeen.Equal(want.FirstSeen))
	assert.True(t, got.LastSeen.Equal(want.LastSeen))
}

func TestLoadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "does_not_exist.json"))
	s.Load()
	assert.Equal(t, 0, s.DeviceCount())
}

func TestLoadDropsNullSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_history.json")
	doc := `{
		"dev1": null,
		"dev2": {
			"deviceId": "dev2",
			"name": "Keyboard",
			"records": [{"timestamp": "2025-06-10T12:00:00Z", "level": 80, "connected": true}]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s := NewStore(path)
	s.Load()

	_, ok := s.Get("dev1")
	assert.False(t, ok)
	kept, ok := s.Get("dev2")
	require.True(t, ok)
	assert.Len(t, kept.Records, 1)

	// The null entry must not poison later appends for that device.
	s.Append("dev1", "Mouse", 50, true, "BLE")
	series, ok := s.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, 50, series.Records[0].Level)
}

func TestLoadDropsOutOfOrderSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_history.json")
	doc := `{
		"dev1": {
			"deviceId": "dev1",
			"records": [
				{"timestamp": "2025-06-10T13:00:00Z", "level": 70, "connected": true},
				{"timestamp": "2025-06-10T12:00:00Z", "level": 80, "connected": true}
			]
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s := NewStore(path)
	s.Load()
	_, ok := s.Get("dev1")
	assert.False(t, ok)
}

func TestConcurrentSaveAndAppend(t *testing.T) {
	s, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Append("dev1", "Mouse", 50, true, "BLE")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.Save()
			}
		}()
	}
	wg.Wait()

	require.NoError(t, s.Save())
	loaded := NewStore(s.path)
	loaded.Load()
	series, ok := loaded.Get("dev1")
	require.True(t, ok)
	assert.Equal(t, 200, len(series.Records))
}

func TestSaveSkippedWhenClean(t *testing.T) {
	s, _ := newTestStore(t)
	// No appends, nothing dirty: no file should appear.
	require.NoError(t, s.Save())
	loaded := NewStore(s.path)
	loaded.Load()
	assert.Equal(t, 0, loaded.DeviceCount())
}

func TestDevicesSorted(t *testing.T) {
	s, _ := newTestStore(t)
	s.Append("b", "B", 50, true, "BLE")
	s.Append("a", "A", 60, true, "BLE")
	s.Append("c", "C", 70, true, "BLE")

	devices := s.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, "a", devices[0].DeviceID)
	assert.Equal(t, "b", devices[1].DeviceID)
	assert.Equal(t, "c", devices[2].DeviceID)
}
