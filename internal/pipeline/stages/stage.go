// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package stages implements the five ordered render pipeline stages —
// Validation, Preprocessing, Composition, Encoding, Finalization — each
// operating on a shared, mutable *model.PipelineContext.
package stages

import (
	"context"
	"time"

	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/model"
)

// Prober probes a media file for codec/resolution/duration metadata.
// Satisfied by ffmpeg.Prober; stubbed in tests.
type Prober interface {
	Probe(ctx context.Context, path string) (ffmpeg.StreamInfo, error)
}

// Runner executes an encoder/ffmpeg command line to completion, streaming
// progress updates. Satisfied by ffmpeg.Runner; stubbed in tests.
type Runner interface {
	Run(ctx context.Context, args []string, parser ffmpeg.ProgressParser, pctx *model.PipelineContext, progressCh chan model.RenderProgress) (int, error)
}

// Dependencies bundles the external collaborators stages need, so tests can
// substitute fakes without touching real subprocesses.
type Dependencies struct {
	Prober        Prober
	Runner        Runner
	EngineVersion string
}

// Stage is one step of the render pipeline (spec §4.3).
type Stage interface {
	Name() string
	Process(ctx context.Context, pctx *model.PipelineContext) error
	EstimatedDuration(pctx *model.PipelineContext) time.Duration
	CanSkip(pctx *model.PipelineContext) bool
}

// Ordered returns the fixed, spec-mandated stage sequence.
func Ordered(deps Dependencies) []Stage {
	return []Stage{
		NewValidationStage(),
		NewPreprocessingStage(deps.Prober),
		NewCompositionStage(deps.Runner),
		NewEncodingStage(deps.Runner, deps.EngineVersion),
		NewFinalizationStage(deps.Runner, deps.EngineVersion),
	}
}
