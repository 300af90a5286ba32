/*
batterysensed - battery telemetry for paired wireless peripherals
Copyright (C) 2025, The batterysense authors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/TheCacophonyProject/go-utils/logging"
	arg "github.com/alexflint/go-arg"

	"github.com/batterysense/batterysense/alert"
	"github.com/batterysense/batterysense/metrics"
	"github.com/batterysense/batterysense/settings"
	"github.com/batterysense/batterysense/telemetry"
)

const (
	historyFileName  = "device_history.json"
	settingsFileName = "settings.yaml"

	cleanupInterval = time.Hour
	flushInterval   = time.Minute
)

var (
	version = "<not set>"
	log     = logging.NewLogger("info")
)

type Args struct {
	StateDir      string `arg:"--state-dir" help:"directory holding telemetry history and settings"`
	MetricsAddr   string `arg:"--metrics" help:"address to serve Prometheus metrics on, empty to disable"`
	RetentionDays int    `arg:"--retention-days" help:"days of battery history to keep"`
	logging.LogArgs
}

func (Args) Version() string {
	return version
}

func procArgs() Args {
	args := Args{
		StateDir:      "/var/lib/batterysense",
		RetentionDays: 30,
	}
	arg.MustParse(&args)
	return args
}

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

func runMain() error {
	args := procArgs()

	log = logging.NewLogger(args.LogLevel)

	log.Printf("Running version: %s", version)

	if err := os.MkdirAll(args.StateDir, 0755); err != nil {
		return err
	}

	conf := settings.Load(filepath.Join(args.StateDir, settingsFileName))
	store := telemetry.NewStore(filepath.Join(args.StateDir, historyFileName))
	store.Load()

	s := conf.Get()
	hysteresis := alert.New(alert.Config{
		Threshold: s.LowBatteryThreshold,
		Enabled:   s.EnableLowBatteryAlert,
	}, func(alerted []string) {
		if err := conf.SaveAlerted(alerted); err != nil {
			log.Errorf("Failed to persist alerted devices: %v", err)
		}
	})
	hysteresis.Restore(s.AlertedDevices)

	metrics.RegisterDeviceCount(func() float64 {
		return float64(store.DeviceCount())
	})
	if args.MetricsAddr != "" {
		go func() {
			log.Printf("Serving metrics on %s", args.MetricsAddr)
			if err := metrics.Serve(args.MetricsAddr); err != nil {
				log.Errorf("Metrics server stopped: %v", err)
			}
		}()
	}

	if err := startService(store, hysteresis, conf); err != nil {
		return err
	}
	log.Info("Telemetry service started.")

	retention := time.Duration(args.RetentionDays) * 24 * time.Hour
	go cleanupLoop(store, retention)
	go flushLoop(store)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("Shutting down, saving telemetry.")
	if err := store.Save(); err != nil {
		log.Errorf("Failed to save telemetry on shutdown: %v", err)
	}
	return nil
}

// cleanupLoop periodically drops records past the retention and
// flushes the result.
func cleanupLoop(store *telemetry.Store, retention time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		records, devices := store.Cleanup(retention)
		if records > 0 || devices > 0 {
			log.Printf("Cleanup removed %d records and %d empty devices", records, devices)
		}
	}
}

// flushLoop writes the store to disk when dirty. Persistence is
// best-effort; losing the last few seconds of telemetry on a crash is
// acceptable.
func flushLoop(store *telemetry.Store) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for range ticker.C {
		if err := store.Save(); err != nil {
			metrics.SaveFailures.Inc()
			log.Errorf("Failed to save telemetry: %v", err)
		}
	}
}
