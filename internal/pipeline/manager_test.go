// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/veditcore/engine/internal/pipeline/admission"
	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/fsm"
	"github.com/veditcore/engine/internal/pipeline/ledger"
	"github.com/veditcore/engine/internal/pipeline/model"
	"github.com/veditcore/engine/internal/pipeline/stages"
)

type stubProber struct{}

func (stubProber) Probe(ctx context.Context, path string) (ffmpeg.StreamInfo, error) {
	return ffmpeg.StreamInfo{CodecName: "h264", Width: 1920, Height: 1080, FPS: 30, Duration: 5}, nil
}

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, args []string, parser ffmpeg.ProgressParser, pctx *model.PipelineContext, progressCh chan model.RenderProgress) (int, error) {
	if len(args) > 0 {
		_ = os.WriteFile(args[len(args)-1], []byte("fake"), 0o644)
	}
	return 0, nil
}

func testManager(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := ledger.Open(filepath.Join(dir, "ledger.sqlite"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(Config{
		Admission: admission.NewQueue(admission.Config{MaxConcurrentJobs: 2, MaxQueueSize: 10, MaxWaitTime: time.Minute}),
		Stages: stages.Dependencies{
			Prober:        stubProber{},
			Runner:        stubRunner{},
			EngineVersion: "test-version",
		},
		Ledger:   store,
		TempRoot: dir,
	})
	return m, dir
}

func testProject(t *testing.T, dir string) *model.ProjectSchema {
	t.Helper()
	media := filepath.Join(dir, "source.mp4")
	if err := os.WriteFile(media, []byte("fake"), 0o644); err != nil {
		t.Fatalf("seed media file: %v", err)
	}
	return &model.ProjectSchema{
		Name: "render-test",
		Tracks: []model.Track{
			{ID: "v0", Kind: model.TrackVideo, Clips: []model.Clip{
				{ID: "clip-1", MediaPath: media, StartTime: 0, EndTime: 5, SourceStart: 0, SourceEnd: 5},
			}},
		},
		Timeline: model.Timeline{Width: 1280, Height: 720, Duration: 5},
		Export:   model.ExportSettings{Format: "mp4", VideoCodec: "h264", Quality: 70},
	}
}

func waitTerminal(t *testing.T, m *Manager, jobID string) model.RenderProgress {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := m.GetProgress(jobID)
		if err != nil {
			t.Fatalf("GetProgress: %v", err)
		}
		if p.Status.IsTerminal() {
			return p
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state in time")
	return model.RenderProgress{}
}

func TestManager_SubmitRunsToCompletion(t *testing.T) {
	m, dir := testManager(t)
	project := testProject(t, dir)
	outputPath := filepath.Join(dir, "out.mp4")

	jobID, err := m.Submit(context.Background(), project, outputPath, admission.PriorityBatch)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	final := waitTerminal(t, m, jobID)
	if final.Status != model.StatusCompleted {
		t.Fatalf("expected job to complete, got status %v", final.Status)
	}

	active := m.ListActive()
	for _, a := range active {
		if a.JobID == jobID {
			t.Error("completed job should not appear in ListActive")
		}
	}
}

func TestManager_CancelStopsAQueuedJob(t *testing.T) {
	m, dir := testManager(t)
	project := testProject(t, dir)
	outputPath := filepath.Join(dir, "out.mp4")

	jobID, err := m.Submit(context.Background(), project, outputPath, admission.PriorityBatch)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_ = m.Cancel(jobID)

	final := waitTerminal(t, m, jobID)
	if final.Status != model.StatusCompleted && final.Status != model.StatusCancelled {
		t.Fatalf("expected job to finish completed or cancelled, got %v", final.Status)
	}
}

func TestManager_CompletedJobSurvivesInLedger(t *testing.T) {
	m, dir := testManager(t)
	project := testProject(t, dir)
	outputPath := filepath.Join(dir, "out.mp4")

	jobID, err := m.Submit(context.Background(), project, outputPath, admission.PriorityBatch)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, m, jobID)

	entry, ok, err := m.ledger.Get(context.Background(), jobID)
	if err != nil {
		t.Fatalf("ledger Get: %v", err)
	}
	if !ok {
		t.Fatal("expected ledger entry for completed job")
	}
	if entry.Status != model.StatusCompleted {
		t.Fatalf("expected ledger status completed, got %v", entry.Status)
	}
}

func TestManager_SubmitRetryChainsParentJobInLedger(t *testing.T) {
	m, dir := testManager(t)
	project := testProject(t, dir)

	gpuAttemptID, err := m.Submit(context.Background(), project, filepath.Join(dir, "gpu-attempt.mp4"), admission.PriorityBatch)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, m, gpuAttemptID)

	retryID, err := m.SubmitRetry(context.Background(), project, filepath.Join(dir, "sw-retry.mp4"), admission.PriorityBatch, gpuAttemptID)
	if err != nil {
		t.Fatalf("SubmitRetry: %v", err)
	}
	waitTerminal(t, m, retryID)

	children, err := m.ledger.ListByParent(context.Background(), gpuAttemptID)
	if err != nil {
		t.Fatalf("ListByParent: %v", err)
	}
	if len(children) != 1 || children[0].JobID != retryID {
		t.Fatalf("expected retry job %q chained under %q, got %+v", retryID, gpuAttemptID, children)
	}
}

func TestManager_SubmitRetryRequiresParentJobID(t *testing.T) {
	m, dir := testManager(t)
	project := testProject(t, dir)

	if _, err := m.SubmitRetry(context.Background(), project, filepath.Join(dir, "out.mp4"), admission.PriorityBatch, ""); err == nil {
		t.Fatal("expected SubmitRetry to reject an empty parentJobID")
	}
}

func TestManager_DetectTimeoutsReportsWithoutCancelling(t *testing.T) {
	m, dir := testManager(t)
	staleMachine, err := fsm.New(model.StatusProcessing, jobTransitions)
	if err != nil {
		t.Fatalf("fsm.New: %v", err)
	}
	freshMachine, err := fsm.New(model.StatusProcessing, jobTransitions)
	if err != nil {
		t.Fatalf("fsm.New: %v", err)
	}
	stale := &job{
		record:  model.RenderJob{JobID: "stale-job", CreatedAt: time.Now().Add(-time.Hour)},
		pctx:    model.NewPipelineContext("stale-job", "stale-job", nil, filepath.Join(dir, "stale.mp4"), dir),
		machine: staleMachine,
		cancel:  func() {},
	}
	fresh := &job{
		record:  model.RenderJob{JobID: "fresh-job", CreatedAt: time.Now()},
		pctx:    model.NewPipelineContext("fresh-job", "fresh-job", nil, filepath.Join(dir, "fresh.mp4"), dir),
		machine: freshMachine,
		cancel:  func() {},
	}

	m.mu.Lock()
	m.jobs["stale-job"] = stale
	m.jobs["fresh-job"] = fresh
	m.mu.Unlock()

	suspects := m.DetectTimeouts(time.Minute)
	if len(suspects) != 1 || suspects[0].JobID != "stale-job" {
		t.Fatalf("expected exactly one suspect (stale-job), got %+v", suspects)
	}

	if stale.machine.State().IsTerminal() {
		t.Fatal("DetectTimeouts must only report, never cancel")
	}
}

func TestManager_GetProgressUnknownJob(t *testing.T) {
	m, _ := testManager(t)
	if _, err := m.GetProgress("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown job id")
	}
}
