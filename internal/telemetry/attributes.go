// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys used across the render pipeline and plugin host.
const (
	JobIDKey       = "job.id"
	JobStatusKey   = "job.status"
	StageNameKey   = "stage.name"
	EncoderKey     = "encoder.name"
	EncoderGPUKey  = "encoder.gpu_accelerated"
	PluginIDKey    = "plugin.id"
	FramesCountKey = "frames.processed"
)

// JobAttributes creates job-level span attributes.
func JobAttributes(jobID, projectName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String("job.project", projectName),
	}
}

// StageAttributes creates per-stage span attributes.
func StageAttributes(stageName string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StageNameKey, stageName),
	}
}

// EncoderAttributes creates per-encoder-invocation span attributes.
func EncoderAttributes(encoder string, gpuAccelerated bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(EncoderKey, encoder),
		attribute.Bool(EncoderGPUKey, gpuAccelerated),
	}
}
