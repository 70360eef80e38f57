// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration tracks wall-clock time spent in each render pipeline
	// stage, labeled by stage name and outcome (ok/error/cancelled).
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "veditcore_pipeline_stage_duration_seconds",
		Help:    "Duration of render pipeline stage execution",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms..~80s
	}, []string{"stage", "outcome"})

	// EncoderExitTotal tracks encoder subprocess exits by reason.
	EncoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_pipeline_encoder_exit_total",
		Help: "Total encoder subprocess exits by reason",
	}, []string{"reason"})

	// JobsActive is the current number of jobs occupying an admission slot.
	JobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "veditcore_pipeline_jobs_active",
		Help: "Number of render jobs currently holding an admission slot",
	})

	// JobsQueued tracks jobs waiting for admission, by priority.
	JobsQueued = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "veditcore_pipeline_jobs_queued",
		Help: "Number of render jobs waiting for an admission slot",
	}, []string{"priority"})

	// JobsRejectedTotal tracks admission rejections by reason.
	JobsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_pipeline_jobs_rejected_total",
		Help: "Total render jobs rejected at admission",
	}, []string{"reason"})

	// JobsCompletedTotal tracks terminal job outcomes.
	JobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "veditcore_pipeline_jobs_completed_total",
		Help: "Total render jobs reaching a terminal status",
	}, []string{"status"})

	// GPUFallbackTotal counts renders that fell back to software encoding
	// after a GPU encoder failure.
	GPUFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "veditcore_pipeline_gpu_fallback_total",
		Help: "Total renders that retried with software encoding after a GPU failure",
	})
)

// ObserveStage records a stage's duration and outcome.
func ObserveStage(stage, outcome string, seconds float64) {
	StageDuration.WithLabelValues(stage, outcome).Observe(seconds)
}

// IncEncoderExit records an encoder subprocess exit reason (e.g. "clean",
// "nonzero", "killed").
func IncEncoderExit(reason string) {
	EncoderExitTotal.WithLabelValues(reason).Inc()
}

// IncJobRejected records an admission rejection.
func IncJobRejected(reason string) {
	JobsRejectedTotal.WithLabelValues(reason).Inc()
}

// IncJobCompleted records a job reaching a terminal RenderStatus.
func IncJobCompleted(status string) {
	JobsCompletedTotal.WithLabelValues(status).Inc()
}
