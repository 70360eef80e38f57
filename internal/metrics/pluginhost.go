// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PluginCommandLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veditcore_plugin_command_duration_seconds",
		Help:    "Latency of handle_command calls, per plugin",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms to ~16s
	}, []string{"plugin"})

	PluginCommandErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_plugin_command_errors_total",
		Help: "Total handle_command calls that returned an error",
	}, []string{"plugin"})

	PluginEventDispatchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_plugin_event_dispatch_errors_total",
		Help: "Total handle_event calls that returned an error",
	}, []string{"plugin", "event"})

	PluginFSMTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_plugin_fsm_transitions_total",
		Help: "Total plugin state machine transitions",
	}, []string{"from", "to"})

	PluginsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veditcore_plugins_loaded",
		Help: "Current number of loaded plugin instances",
	})
)

// RecordPluginCommand records latency and, on failure, the error counter for
// a handle_command call.
func RecordPluginCommand(plugin string, seconds float64, err error) {
	PluginCommandLatency.WithLabelValues(plugin).Observe(seconds)
	if err != nil {
		PluginCommandErrors.WithLabelValues(plugin).Inc()
	}
}

// RecordPluginEventError records a handle_event failure for plugin/event.
func RecordPluginEventError(plugin, event string) {
	PluginEventDispatchErrors.WithLabelValues(plugin, event).Inc()
}

// RecordPluginTransition records a state machine transition.
func RecordPluginTransition(from, to string) {
	PluginFSMTransitions.WithLabelValues(from, to).Inc()
}

// SetPluginsLoaded publishes the current loaded-instance count.
func SetPluginsLoaded(n int) {
	PluginsLoaded.Set(float64(n))
}
