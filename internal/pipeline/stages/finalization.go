// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/model"
)

// FinalizationStage verifies the encoder output, re-muxes in project
// metadata, writes the *.stats.json sidecar and cleans up the job's temp
// directory (spec §4.3 Finalization, §3.3 "temp files are removed unless
// the job was cancelled").
type FinalizationStage struct {
	runner        Runner
	engineVersion string
}

func NewFinalizationStage(runner Runner, engineVersion string) *FinalizationStage {
	return &FinalizationStage{runner: runner, engineVersion: engineVersion}
}

func (s *FinalizationStage) Name() string { return "finalization" }

func (s *FinalizationStage) EstimatedDuration(pctx *model.PipelineContext) time.Duration {
	return 2 * time.Second
}

func (s *FinalizationStage) CanSkip(pctx *model.PipelineContext) bool { return false }

func (s *FinalizationStage) Process(ctx context.Context, pctx *model.PipelineContext) error {
	logger := log.WithContext(ctx, log.WithComponent("finalization"))

	if _, err := os.Stat(pctx.OutputPath); err != nil {
		return enginerr.MediaFileError(pctx.OutputPath, "encoder produced no output file")
	}

	metadata := remuxMetadata(pctx, s.engineVersion)
	remuxed := withSuffix(pctx.OutputPath, "remux")
	if _, err := s.runner.Run(ctx, ffmpeg.RemuxWithMetadataArgs(pctx.OutputPath, metadata, remuxed), ffmpeg.ProgressParser{}, pctx, nil); err != nil {
		// Demoted to a warning: the un-muxed output is still a valid,
		// playable render (spec §4.3 Finalization failure semantics).
		logger.Warn().Err(err).Msg("metadata remux failed, keeping unmuxed output")
	} else if err := os.Rename(remuxed, pctx.OutputPath); err != nil {
		logger.Warn().Err(err).Msg("failed to promote remuxed output, keeping unmuxed output")
	}

	if err := writeStatsSidecar(pctx, s.engineVersion); err != nil {
		return err
	}

	if !pctx.Cancelled() {
		if err := os.RemoveAll(pctx.TempDir); err != nil {
			logger.Warn().Err(err).Msg("failed to remove temp directory")
		}
	}

	return nil
}

// remuxMetadata builds the container tag set the finalization stage injects
// via remux (spec §4.3 Finalization: "title, artist, date, comment").
func remuxMetadata(pctx *model.PipelineContext, engineVersion string) map[string]string {
	em := pctx.Project.Export.Metadata

	title := em.Title
	if title == "" {
		title = pctx.Project.Name
	}
	date := em.Date
	if date == "" {
		date = time.Now().Format(time.RFC3339)
	}

	metadata := map[string]string{
		"title":         title,
		"date":          date,
		"encoding_tool": fmt.Sprintf("veditcore/%s", engineVersion),
	}
	if em.Artist != "" {
		metadata["artist"] = em.Artist
	}
	if em.Comment != "" {
		metadata["comment"] = em.Comment
	}
	return metadata
}

func writeStatsSidecar(pctx *model.PipelineContext, engineVersion string) error {
	sidecarPath := pctx.OutputPath + ".stats.json"
	pending, err := renameio.NewPendingFile(sidecarPath)
	if err != nil {
		return enginerr.Wrap(enginerr.KindIO, err, "failed to create pending stats sidecar")
	}
	defer func() { _ = pending.Cleanup() }()

	sidecar := model.StatsSidecar{
		ProjectName:      pctx.Project.Name,
		OutputFile:       pctx.OutputPath,
		TotalDurationSec: pctx.Project.Timeline.Duration,
		FramesProcessed:  pctx.Statistics.FramesProcessed,
		MemoryUsed:       pctx.Statistics.MemoryUsedBytes,
		ErrorCount:       pctx.Statistics.ErrorCount,
		WarningCount:     pctx.Statistics.WarningCount,
		RenderDate:       time.Now(),
		EngineVersion:    engineVersion,
	}

	enc := json.NewEncoder(pending)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sidecar); err != nil {
		return enginerr.Wrap(enginerr.KindIO, err, "failed to encode stats sidecar")
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return enginerr.Wrap(enginerr.KindIO, err, "failed to atomically replace stats sidecar")
	}
	return nil
}
