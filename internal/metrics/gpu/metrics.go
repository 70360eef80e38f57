// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gpu

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GPUUtilization tracks GPU utilization percentage during encoding.
	GPUUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "veditcore",
			Subsystem: "gpu",
			Name:      "utilization_percent",
			Help:      "GPU utilization percentage (0-100)",
		},
		[]string{"device", "mode"}, // device: "renderD128"/"cuda0", mode: "video|audio"
	)

	// GPUVRAMUsage tracks VRAM usage in bytes.
	GPUVRAMUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "veditcore",
			Subsystem: "gpu",
			Name:      "vram_usage_bytes",
			Help:      "GPU VRAM usage in bytes",
		},
		[]string{"device"},
	)

	// EncodeLatency is the per-frame encode latency histogram.
	EncodeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "veditcore",
			Subsystem: "gpu",
			Name:      "encode_latency_seconds",
			Help:      "Time to encode a frame (histogram)",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to 512ms
		},
		[]string{"codec", "resolution", "device"},
	)

	// ActiveJobsByMode tracks concurrently running render jobs by encoder mode.
	ActiveJobsByMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "veditcore",
			Name:      "active_jobs_by_mode",
			Help:      "Number of active render jobs per encoder mode",
		},
		[]string{"mode"}, // "software", "nvenc", "vaapi", ...
	)

	// EncodeErrors tracks encoder failures by codec and reason.
	EncodeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "veditcore",
			Subsystem: "gpu",
			Name:      "encode_errors_total",
			Help:      "Total encoder errors",
		},
		[]string{"codec", "reason"}, // reason: "timeout|invalid_format|device_busy"
	)
)

// RecordEncodeLatency records the latency of an encode operation.
func RecordEncodeLatency(codec, resolution, device string, latency float64) {
	EncodeLatency.WithLabelValues(codec, resolution, device).Observe(latency)
}

// UpdateGPUUtilization updates the current GPU utilization.
func UpdateGPUUtilization(device, mode string, percent float64) {
	GPUUtilization.WithLabelValues(device, mode).Set(percent)
}

// UpdateVRAMUsage updates the current VRAM usage.
func UpdateVRAMUsage(device string, bytes int64) {
	GPUVRAMUsage.WithLabelValues(device).Set(float64(bytes))
}

// IncActiveJobs increments the active-job count for an encoder mode.
func IncActiveJobs(mode string) {
	ActiveJobsByMode.WithLabelValues(mode).Inc()
}

// DecActiveJobs decrements the active-job count for an encoder mode.
func DecActiveJobs(mode string) {
	ActiveJobsByMode.WithLabelValues(mode).Dec()
}

// RecordEncodeError records an encoder failure.
func RecordEncodeError(codec, reason string) {
	EncodeErrors.WithLabelValues(codec, reason).Inc()
}
