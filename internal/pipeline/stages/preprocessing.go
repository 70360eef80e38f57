// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/pipeline/model"
)

// needsTranscodeExt is the set of container formats ffmpeg can demux but
// that composition steps should normalize to an intermediate mp4 before
// filtering, rather than re-probing their quirks at every later step (spec
// §8 "Preprocessing extension rule").
var needsTranscodeExt = map[string]bool{
	".avi": true,
	".flv": true,
	".wmv": true,
	".mkv": true,
}

// PreprocessingStage probes every video-track clip and reserves the
// intermediate file paths later stages will write into (spec §4.3
// Preprocessing). Audio-track clips are not probed: ffmpeg.Prober reports
// the first video stream only.
type PreprocessingStage struct {
	prober Prober
}

func NewPreprocessingStage(prober Prober) *PreprocessingStage {
	return &PreprocessingStage{prober: prober}
}

func (s *PreprocessingStage) Name() string { return "preprocessing" }

func (s *PreprocessingStage) EstimatedDuration(pctx *model.PipelineContext) time.Duration {
	if pctx.Project == nil {
		return 0
	}
	clips := 0
	for _, track := range pctx.Project.Tracks {
		clips += len(track.Clips)
	}
	return time.Duration(clips) * 200 * time.Millisecond
}

func (s *PreprocessingStage) CanSkip(pctx *model.PipelineContext) bool { return false }

func (s *PreprocessingStage) Process(ctx context.Context, pctx *model.PipelineContext) error {
	logger := log.WithContext(ctx, log.WithComponent("preprocessing"))

	for _, track := range pctx.Project.Tracks {
		trackOutputs := make([]string, 0, len(track.Clips))
		for _, clip := range track.Clips {
			if track.Kind == model.TrackVideo {
				if _, err := s.prober.Probe(ctx, clip.MediaPath); err != nil {
					return err
				}
			}

			ext := strings.ToLower(filepath.Ext(clip.MediaPath))
			if needsTranscodeExt[ext] {
				pctx.UserData[transcodeKey(clip.ID)] = true
				logger.Debug().Str("clip", clip.ID).Str("ext", ext).Msg("flagged clip for transcode normalization")
			}

			clipOut := filepath.Join(pctx.TempDir, fmt.Sprintf("clip_%s.mp4", clip.ID))
			pctx.IntermediateFiles[clipIntermediateKey(clip.ID)] = clipOut
			trackOutputs = append(trackOutputs, clipOut)
		}
		pctx.IntermediateFiles[trackIntermediateKey(track.ID)] = filepath.Join(pctx.TempDir, fmt.Sprintf("track_%s.mp4", track.ID))
	}

	pctx.IntermediateFiles["video_composite"] = filepath.Join(pctx.TempDir, "video_composite.mp4")
	pctx.IntermediateFiles["audio_composite"] = filepath.Join(pctx.TempDir, "audio_composite.mp4")

	return nil
}

func transcodeKey(clipID string) string       { return "transcode:" + clipID }
func clipIntermediateKey(clipID string) string { return "clip:" + clipID }
func trackIntermediateKey(trackID string) string { return "track:" + trackID }

// needsTranscode reports whether Preprocessing flagged clipID for container
// normalization before composition.
func needsTranscode(pctx *model.PipelineContext, clipID string) bool {
	v, _ := pctx.UserData[transcodeKey(clipID)].(bool)
	return v
}
