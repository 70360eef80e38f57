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
	"github.com/veditcore/engine/internal/pipeline/model"
)

// supportedFormats maps each track kind to its allowed media file
// extensions.
var supportedFormats = map[model.TrackKind]map[string]bool{
	model.TrackVideo: {".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true, ".flv": true, ".wmv": true},
	model.TrackAudio: {".wav": true, ".mp3": true, ".aac": true, ".flac": true, ".m4a": true, ".ogg": true},
}

const validationFreshness = 5 * time.Minute

// ValidationStage checks a project for structural and referential
// correctness before any stage touches the filesystem destructively (spec
// §4.3 Validation).
type ValidationStage struct{}

func NewValidationStage() *ValidationStage { return &ValidationStage{} }

func (s *ValidationStage) Name() string { return "validation" }

func (s *ValidationStage) EstimatedDuration(pctx *model.PipelineContext) time.Duration {
	return 500 * time.Millisecond
}

// CanSkip honors a prior validation timestamp recorded in UserData within
// the last 5 minutes (spec §4.3: "Can be skipped if a prior validation
// timestamp within 5 minutes is found in ctx.user_data").
func (s *ValidationStage) CanSkip(pctx *model.PipelineContext) bool {
	v, ok := pctx.UserData["validated_at"]
	if !ok {
		return false
	}
	t, ok := v.(time.Time)
	if !ok {
		return false
	}
	return time.Since(t) < validationFreshness
}

func (s *ValidationStage) Process(ctx context.Context, pctx *model.PipelineContext) error {
	project := pctx.Project
	if project == nil || len(project.Tracks) == 0 {
		return enginerr.New(enginerr.KindValidation, "project has no tracks")
	}

	for _, track := range project.Tracks {
		if len(track.Clips) == 0 {
			return enginerr.New(enginerr.KindValidation, fmt.Sprintf("track %q has no clips", track.ID))
		}
		if err := validateClips(track); err != nil {
			return err
		}
	}

	pctx.UserData["validated_at"] = time.Now()
	return nil
}

func validateClips(track model.Track) error {
	formats := supportedFormats[track.Kind]

	clips := make([]model.Clip, len(track.Clips))
	copy(clips, track.Clips)
	sort.Slice(clips, func(i, j int) bool { return clips[i].StartTime < clips[j].StartTime })

	for i, clip := range clips {
		if clip.StartTime < 0 {
			return enginerr.New(enginerr.KindValidation, fmt.Sprintf("clip %q has negative start_time", clip.ID))
		}
		if clip.EndTime <= clip.StartTime {
			return enginerr.New(enginerr.KindValidation, fmt.Sprintf("clip %q end_time must be greater than start_time", clip.ID))
		}

		if _, err := os.Stat(clip.MediaPath); err != nil {
			return enginerr.MediaFileError(clip.MediaPath, "referenced media file does not exist")
		}
		ext := strings.ToLower(filepath.Ext(clip.MediaPath))
		if formats != nil && !formats[ext] {
			return enginerr.UnsupportedFormatError(ext, clip.MediaPath)
		}

		if i > 0 && clip.StartTime < clips[i-1].EndTime {
			return enginerr.New(enginerr.KindValidation,
				fmt.Sprintf("clips %q and %q overlap on track %q", clips[i-1].ID, clip.ID, track.ID))
		}
	}
	return nil
}
