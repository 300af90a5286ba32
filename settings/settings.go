// Package settings holds the user-facing configuration document:
// alert threshold and toggle, chart lookback, refresh interval, and
// the persisted set of already-alerted devices.
package settings

import (
	"os"
	"sync"

	"github.com/TheCacophonyProject/go-utils/logging"
	"gopkg.in/yaml.v3"
)

var log = logging.NewLogger("info")

// Settings is the on-disk document. Hidden devices and aliases are
// carried for the presentation layer; the daemon itself only reads the
// alerting and lookback fields.
type Settings struct {
	LowBatteryThreshold        int               `yaml:"low-battery-threshold"`
	EnableLowBatteryAlert      bool              `yaml:"enable-low-battery-alert"`
	LookbackHours              int               `yaml:"lookback-hours"`
	EnableAutoRefresh          bool              `yaml:"enable-auto-refresh"`
	AutoRefreshIntervalMinutes int               `yaml:"auto-refresh-interval-minutes"`
	HiddenDeviceIDs            []string          `yaml:"hidden-device-ids,omitempty"`
	DeviceAliases              map[string]string `yaml:"device-aliases,omitempty"`
	AlertedDevices             []string          `yaml:"alerted-devices,omitempty"`
}

func Default() Settings {
	return Settings{
		LowBatteryThreshold:        30,
		EnableLowBatteryAlert:      true,
		LookbackHours:              24,
		EnableAutoRefresh:          true,
		AutoRefreshIntervalMinutes: 5,
	}
}

// Manager serializes access to the settings document and writes it
// back on every change.
type Manager struct {
	mu   sync.Mutex
	path string
	s    Settings
}

// Load reads the settings file, falling back to defaults when the file
// is missing or unreadable. Settings are never a reason to refuse to
// start.
func Load(path string) *Manager {
	m := &Manager{path: path, s: Default()}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("Failed to read settings, using defaults: %v", err)
		}
		return m
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		log.Errorf("Malformed settings, using defaults: %v", err)
		return m
	}
	m.s = validate(s)
	return m
}

func validate(s Settings) Settings {
	if s.LowBatteryThreshold < 1 {
		s.LowBatteryThreshold = 1
	}
	if s.LowBatteryThreshold > 100 {
		s.LowBatteryThreshold = 100
	}
	switch s.LookbackHours {
	case 1, 6, 24:
	default:
		s.LookbackHours = 24
	}
	if s.AutoRefreshIntervalMinutes < 1 {
		s.AutoRefreshIntervalMinutes = 1
	}
	return s
}

// Get returns a copy of the current settings.
func (m *Manager) Get() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

// Update mutates the settings under the manager's lock and writes the
// document back.
func (m *Manager) Update(fn func(*Settings)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.s)
	m.s = validate(m.s)
	data, err := yaml.Marshal(m.s)
	if err != nil {
		return err
	}
	// Written under the lock so concurrent updates can't interleave
	// writes to the temp file.
	return m.write(data)
}

// SaveAlerted persists just the alerted-device set.
func (m *Manager) SaveAlerted(deviceIDs []string) error {
	return m.Update(func(s *Settings) {
		s.AlertedDevices = deviceIDs
	})
}

func (m *Manager) write(data []byte) error {
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}
