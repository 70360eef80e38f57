// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/model"
)

// CompositionStage trims, filters, positions and concatenates clips into
// per-track outputs, then layers the video tracks and mixes the audio
// tracks into the two intermediates the Encoding stage consumes (spec
// §4.3 Composition).
type CompositionStage struct {
	runner Runner
}

func NewCompositionStage(runner Runner) *CompositionStage {
	return &CompositionStage{runner: runner}
}

func (s *CompositionStage) Name() string { return "composition" }

func (s *CompositionStage) EstimatedDuration(pctx *model.PipelineContext) time.Duration {
	if pctx.Project == nil {
		return 0
	}
	return time.Duration(pctx.Project.Timeline.Duration) * time.Second / 4
}

func (s *CompositionStage) CanSkip(pctx *model.PipelineContext) bool { return false }

func (s *CompositionStage) Process(ctx context.Context, pctx *model.PipelineContext) error {
	project := pctx.Project

	var videoOutputs, audioOutputs []string
	for _, track := range project.Tracks {
		out, err := s.composeTrack(ctx, pctx, project, track)
		if err != nil {
			return err
		}
		if track.Kind == model.TrackVideo {
			videoOutputs = append(videoOutputs, out)
		} else {
			audioOutputs = append(audioOutputs, out)
		}
	}

	videoComposite := pctx.IntermediateFiles["video_composite"]
	if len(videoOutputs) > 0 {
		if err := s.run(ctx, pctx, ffmpeg.OverlayArgs(videoOutputs, videoComposite)); err != nil {
			return err
		}
	}

	audioComposite := pctx.IntermediateFiles["audio_composite"]
	switch len(audioOutputs) {
	case 0:
	case 1:
		audioComposite = audioOutputs[0]
		pctx.IntermediateFiles["audio_composite"] = audioComposite
	default:
		if err := s.run(ctx, pctx, ffmpeg.AmixArgs(audioOutputs, audioComposite)); err != nil {
			return err
		}
	}

	return nil
}

// composeTrack runs each clip through trim -> effects -> filters ->
// position, then concatenates the track's clips in timeline order.
func (s *CompositionStage) composeTrack(ctx context.Context, pctx *model.PipelineContext, project *model.ProjectSchema, track model.Track) (string, error) {
	clips := make([]model.Clip, len(track.Clips))
	copy(clips, track.Clips)
	sort.Slice(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })

	clipOutputs := make([]string, 0, len(clips))
	for _, clip := range clips {
		out, err := s.composeClip(ctx, pctx, project, track, clip)
		if err != nil {
			return "", err
		}
		clipOutputs = append(clipOutputs, out)
	}

	trackOut := pctx.IntermediateFiles[trackIntermediateKey(track.ID)]
	if len(clipOutputs) == 1 {
		return clipOutputs[0], nil
	}

	listFile := filepath.Join(pctx.TempDir, fmt.Sprintf("concat_%s.txt", track.ID))
	if err := writeConcatList(listFile, clipOutputs); err != nil {
		return "", enginerr.Wrap(enginerr.KindIO, err, "failed to write concat list")
	}
	if err := s.run(ctx, pctx, ffmpeg.ConcatArgs(listFile, trackOut)); err != nil {
		return "", err
	}
	return trackOut, nil
}

func (s *CompositionStage) composeClip(ctx context.Context, pctx *model.PipelineContext, project *model.ProjectSchema, track model.Track, clip model.Clip) (string, error) {
	current := clip.MediaPath
	final := pctx.IntermediateFiles[clipIntermediateKey(clip.ID)]

	trimmed := withSuffix(final, "trim")
	trimArgs := ffmpeg.TrimArgs(current, clip.SourceStart, clip.SourceEnd, trimmed)
	if needsTranscode(pctx, clip.ID) {
		// Legacy container: normalize to mp4/H.264 now instead of carrying
		// its quirks through the rest of the filter chain (spec §8
		// Preprocessing extension rule).
		trimArgs = ffmpeg.EffectArgs(current, fmt.Sprintf("trim=start=%.3f:end=%.3f,setpts=PTS-STARTPTS", clip.SourceStart, clip.SourceEnd), trimmed)
	}
	if err := s.run(ctx, pctx, trimArgs); err != nil {
		return "", err
	}
	current = trimmed

	for i, effectID := range clip.EffectIDs {
		effect, ok := project.Effects[effectID]
		if !ok {
			continue
		}
		stepOut := withSuffix(final, fmt.Sprintf("fx%d", i))
		if err := s.run(ctx, pctx, ffmpeg.EffectArgs(current, effectFilterExpr(effect), stepOut)); err != nil {
			return "", err
		}
		current = stepOut
	}

	if len(clip.FilterIDs) > 0 {
		exprs := make([]string, 0, len(clip.FilterIDs))
		for _, id := range clip.FilterIDs {
			if f, ok := project.Filters[id]; ok {
				exprs = append(exprs, f.Expr)
			}
		}
		if len(exprs) > 0 {
			stepOut := withSuffix(final, "filters")
			if err := s.run(ctx, pctx, ffmpeg.FilterComplexArgs(current, exprs, stepOut)); err != nil {
				return "", err
			}
			current = stepOut
		}
	}

	if track.Kind == model.TrackVideo && (clip.ScaleX > 0 || clip.ScaleY > 0) {
		if err := s.run(ctx, pctx, ffmpeg.PositionArgs(current, project.Timeline.Width, project.Timeline.Height,
			orDefault(clip.ScaleX), orDefault(clip.ScaleY), clip.PositionX, clip.PositionY, final)); err != nil {
			return "", err
		}
		current = final
	}

	if current != final {
		if err := os.Rename(current, final); err != nil {
			return "", enginerr.Wrap(enginerr.KindIO, err, "failed to finalize clip intermediate")
		}
	}
	return final, nil
}

func (s *CompositionStage) run(ctx context.Context, pctx *model.PipelineContext, args []string) error {
	_, err := s.runner.Run(ctx, args, ffmpeg.ProgressParser{}, pctx, nil)
	return err
}

func effectFilterExpr(e model.Effect) string {
	var b strings.Builder
	b.WriteString(e.Kind)
	if len(e.Params) == 0 {
		return b.String()
	}
	b.WriteByte('=')
	first := true
	for k, v := range e.Params {
		if !first {
			b.WriteByte(':')
		}
		first = false
		fmt.Fprintf(&b, "%s=%v", k, v)
	}
	return b.String()
}

func writeConcatList(path string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(f, "'", "'\\''"))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func withSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s.%s%s", base, suffix, ext)
}

func orDefault(scale float64) float64 {
	if scale <= 0 {
		return 1
	}
	return scale
}
