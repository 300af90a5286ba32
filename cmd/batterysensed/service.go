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
	"encoding/json"
	"errors"
	"time"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/batterysense/batterysense/alert"
	"github.com/batterysense/batterysense/chart"
	"github.com/batterysense/batterysense/metrics"
	"github.com/batterysense/batterysense/settings"
	"github.com/batterysense/batterysense/telemetry"
)

const (
	dbusName = "org.batterysense.Telemetry"
	dbusPath = "/org/batterysense/Telemetry"
)

type service struct {
	store      *telemetry.Store
	hysteresis *alert.Hysteresis
	conf       *settings.Manager
}

func startService(store *telemetry.Store, hysteresis *alert.Hysteresis, conf *settings.Manager) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		store:      store,
		hysteresis: hysteresis,
		conf:       conf,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// Record is the sample ingestion path. The sample source pushes one
// reading per device per refresh cycle; the alert decision runs in the
// same call so it can't race a later append for the same device.
func (s service) Record(deviceID, name string, level int32, connected bool, connectionType string) *dbus.Error {
	// Clamp once so the stored record and the alert decision see the
	// same value.
	lvl := telemetry.ClampLevel(int(level))
	s.store.Append(deviceID, name, lvl, connected, connectionType)
	metrics.SamplesAppended.Inc()

	if event := s.hysteresis.Observe(deviceID, lvl); event != nil {
		metrics.AlertsFired.Inc()
		log.Printf("Low battery alert: %s at %d%% (threshold %d%%)", name, event.Level, event.Threshold)
		reportAlertEvent(event, name)
		if err := sendLowBatterySignal(event); err != nil {
			log.Error("Error sending low battery signal:", err)
		}
	}
	return nil
}

// Devices returns the IDs of every device with history.
func (s service) Devices() ([]string, *dbus.Error) {
	series := s.store.Devices()
	ids := make([]string, 0, len(series))
	for _, d := range series {
		ids = append(ids, d.DeviceID)
	}
	return ids, nil
}

type statsReply struct {
	UsageTimeSeconds int64    `json:"usageTimeSeconds"`
	DrainRatePerHour *float64 `json:"drainRatePerHour"`
	RemainingSeconds *int64   `json:"remainingSeconds"`
	RemainingDisplay string   `json:"remainingDisplay"`
	LastChange       *int     `json:"lastChange"`
}

// Stats returns the statistics bundle for a device over the configured
// display lookback, as JSON.
func (s service) Stats(deviceID string) (string, *dbus.Error) {
	lookback := chart.RangeFromHours(s.conf.Get().LookbackHours).Duration()
	st := s.store.Stats(deviceID, lookback)

	reply := statsReply{
		UsageTimeSeconds: int64(st.UsageTime.Seconds()),
		RemainingDisplay: "unknown",
	}
	if st.DrainRateOK {
		rate := st.DrainRate
		reply.DrainRatePerHour = &rate
	}
	if st.RemainingOK {
		seconds := int64(st.Remaining.Seconds())
		reply.RemainingSeconds = &seconds
		reply.RemainingDisplay = telemetry.FormatRemaining(st.Remaining)
	}
	if st.LastChangeOK {
		change := st.LastChange
		reply.LastChange = &change
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return "", makeDbusError(".Stats", err)
	}
	return string(data), nil
}

// History returns the device's records within the given lookback, as
// JSON, oldest first.
func (s service) History(deviceID string, lookbackHours int32) (string, *dbus.Error) {
	lookback := chart.RangeFromHours(int(lookbackHours)).Duration()
	records := s.store.Query(deviceID, lookback)
	data, err := json.Marshal(records)
	if err != nil {
		return "", makeDbusError(".History", err)
	}
	return string(data), nil
}

type axisReply struct {
	AxisMin   time.Time   `json:"axisMin"`
	AxisMax   time.Time   `json:"axisMax"`
	DataMax   time.Time   `json:"dataMax"`
	Gridlines []time.Time `json:"gridlines"`
}

// ChartBounds returns the aligned chart bounds for a device's latest
// sample, so every renderer draws the same grid no matter when it
// redraws.
func (s service) ChartBounds(deviceID string, lookbackHours int32) (string, *dbus.Error) {
	t := time.Now()
	if series, ok := s.store.Get(deviceID); ok && len(series.Records) > 0 {
		t = series.Records[len(series.Records)-1].Timestamp
	}
	b := chart.Align(t, chart.RangeFromHours(int(lookbackHours)))
	data, err := json.Marshal(axisReply{
		AxisMin:   b.AxisMin,
		AxisMax:   b.AxisMax,
		DataMax:   b.DataMax,
		Gridlines: b.Gridlines,
	})
	if err != nil {
		return "", makeDbusError(".ChartBounds", err)
	}
	return string(data), nil
}

// SetThreshold installs a new low-battery threshold and clears the
// alerted set so every device is re-evaluated against it.
func (s service) SetThreshold(threshold int32) *dbus.Error {
	if threshold < 1 || threshold > 100 {
		return makeDbusError(".SetThreshold", errors.New("threshold must be in [1,100]"))
	}
	if err := s.conf.Update(func(conf *settings.Settings) {
		conf.LowBatteryThreshold = int(threshold)
	}); err != nil {
		return makeDbusError(".SetThreshold", err)
	}
	s.hysteresis.SetThreshold(int(threshold))
	log.Printf("Low battery threshold set to %d%%", threshold)
	return nil
}

// SetAlertsEnabled toggles low battery alerting. The alerted set is
// kept, so re-enabling doesn't re-alert every low device at once.
func (s service) SetAlertsEnabled(enabled bool) *dbus.Error {
	if err := s.conf.Update(func(conf *settings.Settings) {
		conf.EnableLowBatteryAlert = enabled
	}); err != nil {
		return makeDbusError(".SetAlertsEnabled", err)
	}
	s.hysteresis.SetEnabled(enabled)
	return nil
}

// SetLookbackHours selects the display window (1, 6 or 24 hours).
func (s service) SetLookbackHours(hours int32) *dbus.Error {
	switch hours {
	case 1, 6, 24:
	default:
		return makeDbusError(".SetLookbackHours", errors.New("lookback must be 1, 6 or 24 hours"))
	}
	if err := s.conf.Update(func(conf *settings.Settings) {
		conf.LookbackHours = int(hours)
	}); err != nil {
		return makeDbusError(".SetLookbackHours", err)
	}
	return nil
}

func makeDbusError(name string, err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + name,
		Body: []interface{}{err.Error()},
	}
}
