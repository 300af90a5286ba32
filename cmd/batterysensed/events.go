package main

import (
	"time"

	"github.com/TheCacophonyProject/event-reporter/v3/eventclient"
	"github.com/godbus/dbus"

	"github.com/batterysense/batterysense/alert"
)

// sendLowBatterySignal broadcasts a low battery alert on the bus so
// any presentation layer can react without polling.
func sendLowBatterySignal(event *alert.Event) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}

	sig := &dbus.Signal{
		Path: dbus.ObjectPath(dbusPath),
		Name: dbusName + ".LowBattery",
		Body: []interface{}{event.DeviceID, int32(event.Level), int32(event.Threshold)},
	}

	return conn.Emit(sig.Path, sig.Name, sig.Body...)
}

// reportAlertEvent records the alert in the event system.
func reportAlertEvent(event *alert.Event, name string) {
	err := eventclient.AddEvent(eventclient.Event{
		Timestamp: time.Now(),
		Type:      "lowBattery",
		Details: map[string]interface{}{
			"deviceId":  event.DeviceID,
			"name":      name,
			"battery":   event.Level,
			"threshold": event.Threshold,
		},
	})
	if err != nil {
		log.Error("Error sending low battery event:", err)
	}
}
