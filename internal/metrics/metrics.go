// Package metrics holds the bridge's Prometheus instrumentation. None of
// this is published to MQTT; it exists only behind the admin surface's
// /metrics route.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for TransactionsTotal.
const (
	OutcomeOK         = "ok"
	OutcomeTimeout    = "timeout"
	OutcomeSendFailed = "send_failed"
)

var (
	// TransactionsTotal counts every bus transaction by outcome.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cerebro_transactions_total",
		Help: "Bus transactions, partitioned by outcome.",
	}, []string{"outcome"})

	// PollSweepDuration records how long a full polling sweep takes.
	PollSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cerebro_poll_sweep_duration_seconds",
		Help:    "Duration of a full device polling sweep.",
		Buckets: prometheus.DefBuckets,
	})

	// SerialReconnects counts successful serial port opens, the initial
	// open included.
	SerialReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cerebro_serial_reconnects_total",
		Help: "Number of successful serial port opens, including the first.",
	})

	// MQTTConnected is 1 while the broker connection is up, 0 otherwise.
	MQTTConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cerebro_mqtt_connected",
		Help: "Whether the MQTT broker connection is currently open.",
	})
)
