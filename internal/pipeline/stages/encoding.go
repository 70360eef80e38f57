// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stages

import (
	"context"
	"time"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/hardware"
	"github.com/veditcore/engine/internal/pipeline/model"
)

// EncodingStage runs the final encoder pass over the composed video/audio
// intermediates, selecting a codec profile from the GPU encoder catalog and
// streaming progress to ProgressCh (spec §4.3 Encoding).
type EncodingStage struct {
	runner        Runner
	engineVersion string
}

func NewEncodingStage(runner Runner, engineVersion string) *EncodingStage {
	return &EncodingStage{runner: runner, engineVersion: engineVersion}
}

func (s *EncodingStage) Name() string { return "encoding" }

func (s *EncodingStage) EstimatedDuration(pctx *model.PipelineContext) time.Duration {
	if pctx.Project == nil {
		return 0
	}
	return time.Duration(pctx.Project.Timeline.Duration) * time.Second
}

func (s *EncodingStage) CanSkip(pctx *model.PipelineContext) bool { return false }

func (s *EncodingStage) Process(ctx context.Context, pctx *model.PipelineContext) error {
	logger := log.WithContext(ctx, log.WithComponent("encoding"))
	settings := pctx.Project.Export

	encoder := settings.PreferredGPUEncoder
	if encoder == "" {
		encoder = model.GPUSoftware
	}

	// Fail-closed VAAPI gating (spec §9): never hand hwaccel=vaapi to ffmpeg
	// unless the real encode preflight has already verified it.
	if encoder == model.GPUVaapi && !hardware.IsVAAPIReady() {
		logger.Warn().Msg("VAAPI requested but not preflight-verified, falling back to software")
		encoder = model.GPUSoftware
	}

	codec := settings.VideoCodec
	if codec == "" {
		codec = "h264"
	}

	profile, matched := ffmpeg.ResolveCodecProfile(encoder, codec)
	if !matched {
		logger.Info().Str("requested_encoder", string(encoder)).Str("codec", codec).
			Msg("no catalog entry for requested GPU encoder/codec, using software fallback")
	}

	videoIn := pctx.IntermediateFiles["video_composite"]
	audioIn := pctx.IntermediateFiles["audio_composite"]

	args := ffmpeg.EncodeArgs(videoIn, audioIn, settings, profile, codec, pctx.OutputPath)
	parser := ffmpeg.ProgressParser{TotalDuration: pctx.Project.Timeline.Duration}

	_, err := s.runner.Run(ctx, args, parser, pctx, pctx.ProgressCh)
	if err != nil {
		engErr, ok := enginerr.As(err)
		if ok && engErr.Kind == enginerr.KindCancelled {
			return err
		}
		if ok && settings.HWAccel && encoder != model.GPUSoftware {
			return enginerr.GPUFallbackError(engErr)
		}
		return err
	}
	return nil
}
