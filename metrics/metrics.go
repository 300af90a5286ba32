// Package metrics exposes the daemon's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const prefix = "batterysense_"

var (
	SamplesAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "samples_appended_total",
		Help: "Battery samples appended to the telemetry store",
	})
	AlertsFired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "alerts_fired_total",
		Help: "Low battery alert events emitted",
	})
	SaveFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: prefix + "save_failures_total",
		Help: "Failed telemetry store saves",
	})
)

func init() {
	prometheus.MustRegister(SamplesAppended, AlertsFired, SaveFailures)
}

// RegisterDeviceCount publishes a gauge backed by the store's current
// device count.
func RegisterDeviceCount(count func() float64) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: prefix + "tracked_devices",
			Help: "Devices with battery history in the store",
		},
		count,
	))
}

// Serve blocks serving /metrics on the given address.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
