// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeline composes the admission queue, the five ordered render
// stages and a per-job registry into the engine's render job API: Submit,
// GetProgress, Cancel, ListActive (spec §4.3/§9).
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/eventbus"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/metrics"
	"github.com/veditcore/engine/internal/pipeline/admission"
	"github.com/veditcore/engine/internal/pipeline/fsm"
	"github.com/veditcore/engine/internal/pipeline/ledger"
	"github.com/veditcore/engine/internal/pipeline/model"
	"github.com/veditcore/engine/internal/pipeline/stages"
	"github.com/veditcore/engine/internal/telemetry"
)

var tracer = telemetry.Tracer("veditcore.pipeline")

// Topics published on the event bus as a job moves through its lifecycle.
const (
	TopicRenderStarted   = "render.started"
	TopicRenderStage     = "render.stage"
	TopicRenderCompleted = "render.completed"
	TopicRenderFailed    = "render.failed"
	TopicRenderCancelled = "render.cancelled"
)

// StageEvent is published on TopicRenderStage after each stage finishes.
type StageEvent struct {
	JobID string
	Stage string
	Err   error
}

type jobEvent string

const (
	eventBegin   jobEvent = "begin"
	eventSucceed jobEvent = "succeed"
	eventFail    jobEvent = "fail"
	eventCancel  jobEvent = "cancel"
)

var jobTransitions = []fsm.Transition[model.RenderStatus, jobEvent]{
	{From: model.StatusQueued, Event: eventBegin, To: model.StatusProcessing},
	{From: model.StatusQueued, Event: eventCancel, To: model.StatusCancelled},
	{From: model.StatusQueued, Event: eventFail, To: model.StatusFailed},
	{From: model.StatusProcessing, Event: eventSucceed, To: model.StatusCompleted},
	{From: model.StatusProcessing, Event: eventFail, To: model.StatusFailed},
	{From: model.StatusProcessing, Event: eventCancel, To: model.StatusCancelled},
}

// job is the registry's internal record for one in-flight or finished
// render.
type job struct {
	record  model.RenderJob
	pctx    *model.PipelineContext
	machine *fsm.Machine[model.RenderStatus, jobEvent]
	cancel  context.CancelFunc

	mu       sync.Mutex
	progress model.RenderProgress
	lastErr  error
}

// Manager owns the job registry and drives every submitted render through
// the admission queue and stage sequence.
type Manager struct {
	admission *admission.Queue
	deps      stages.Dependencies
	bus       eventbus.Bus
	ledger    *ledger.Store
	tempRoot  string

	mu   sync.RWMutex
	jobs map[string]*job
}

// Config wires a Manager's collaborators.
type Config struct {
	Admission *admission.Queue
	Stages    stages.Dependencies
	Bus       eventbus.Bus  // optional; nil disables event publication
	Ledger    *ledger.Store // optional; nil disables terminal-job persistence
	TempRoot  string        // defaults to os.TempDir()
}

// NewManager constructs a Manager. If cfg.Admission is nil, a queue with
// DefaultConfig is created and owned by the Manager.
func NewManager(cfg Config) *Manager {
	q := cfg.Admission
	if q == nil {
		q = admission.NewQueue(admission.DefaultConfig())
	}
	tempRoot := cfg.TempRoot
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	return &Manager{
		admission: q,
		deps:      cfg.Stages,
		bus:       cfg.Bus,
		ledger:    cfg.Ledger,
		tempRoot:  tempRoot,
		jobs:      make(map[string]*job),
	}
}

// Submit registers a new render job and starts it asynchronously. It
// returns the job's ID immediately; use GetProgress to poll status.
func (m *Manager) Submit(ctx context.Context, project *model.ProjectSchema, outputPath string, priority admission.Priority) (string, error) {
	return m.submit(ctx, project, outputPath, priority, "")
}

// SubmitRetry registers a software-fallback retry chained to parentJobID —
// typically the GPU attempt a caller observed fail with
// enginerr.ShouldFallbackToCPU()==true (spec §7). The retry's RenderJob
// carries ParentJobID so ledger.Store.ListByParent can trace it back to the
// attempt it follows.
func (m *Manager) SubmitRetry(ctx context.Context, project *model.ProjectSchema, outputPath string, priority admission.Priority, parentJobID string) (string, error) {
	if parentJobID == "" {
		return "", enginerr.New(enginerr.KindValidation, "parentJobID is required for a fallback retry")
	}
	return m.submit(ctx, project, outputPath, priority, parentJobID)
}

func (m *Manager) submit(ctx context.Context, project *model.ProjectSchema, outputPath string, priority admission.Priority, parentJobID string) (string, error) {
	if project == nil {
		return "", enginerr.New(enginerr.KindValidation, "project is nil")
	}

	jobID := uuid.New().String()
	tempDir := filepath.Join(m.tempRoot, fmt.Sprintf("veditcore-render-%s", jobID))
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", enginerr.Wrap(enginerr.KindIO, err, "failed to create job temp directory")
	}

	machine, err := fsm.New(model.StatusQueued, jobTransitions)
	if err != nil {
		return "", enginerr.Wrap(enginerr.KindInternal, err, "failed to build job state machine")
	}

	pctx := model.NewPipelineContext(jobID, jobID, project, outputPath, tempDir)
	pctx.ProgressCh = make(chan model.RenderProgress, 8)

	jobCtx, cancel := context.WithCancel(context.Background())
	j := &job{
		record: model.RenderJob{
			JobID:       jobID,
			ProjectName: project.Name,
			OutputPath:  outputPath,
			CreatedAt:   time.Now(),
			ParentJobID: parentJobID,
		},
		pctx:    pctx,
		machine: machine,
		cancel:  cancel,
		progress: model.RenderProgress{
			JobID:  jobID,
			Status: model.StatusQueued,
		},
	}

	m.mu.Lock()
	m.jobs[jobID] = j
	m.mu.Unlock()

	go m.run(jobCtx, j, priority)

	return jobID, nil
}

func (m *Manager) run(ctx context.Context, j *job, priority admission.Priority) {
	logger := log.WithContext(ctx, log.WithComponent("pipeline")).With().Str("job_id", j.record.JobID).Logger()

	ctx, jobSpan := tracer.Start(ctx, "pipeline.job",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(telemetry.JobAttributes(j.record.JobID, j.record.ProjectName)...),
	)
	defer jobSpan.End()

	release, err := m.admission.Acquire(ctx, priority)
	if err != nil {
		if j.pctx.Cancelled() {
			jobSpan.SetStatus(codes.Ok, "cancelled")
			m.finishCancelled(ctx, j)
			return
		}
		logger.Warn().Err(err).Msg("render job rejected at admission")
		jobSpan.RecordError(err)
		jobSpan.SetStatus(codes.Error, "admission rejected")
		m.finishWithError(ctx, j, err)
		return
	}
	defer release()

	if _, err := j.machine.Fire(ctx, eventBegin); err != nil {
		jobSpan.RecordError(err)
		jobSpan.SetStatus(codes.Error, "state transition rejected")
		m.finishWithError(ctx, j, err)
		return
	}
	m.publish(ctx, TopicRenderStarted, StageEvent{JobID: j.record.JobID})

	drainDone := make(chan struct{})
	go m.drainProgress(j, drainDone)
	defer close(drainDone)

	for _, stage := range stages.Ordered(m.deps) {
		if j.pctx.Cancelled() {
			jobSpan.SetStatus(codes.Ok, "cancelled")
			m.finishCancelled(ctx, j)
			return
		}
		if stage.CanSkip(j.pctx) {
			continue
		}

		stageCtx, stageSpan := tracer.Start(ctx, "pipeline.stage."+stage.Name(),
			trace.WithAttributes(telemetry.StageAttributes(stage.Name())...),
		)
		start := time.Now()
		stageErr := stage.Process(stageCtx, j.pctx)
		outcome := "ok"
		if stageErr != nil {
			outcome = "error"
			stageSpan.RecordError(stageErr)
			stageSpan.SetStatus(codes.Error, stageErr.Error())
		}
		metrics.ObserveStage(stage.Name(), outcome, time.Since(start).Seconds())
		stageSpan.End()
		m.publish(ctx, TopicRenderStage, StageEvent{JobID: j.record.JobID, Stage: stage.Name(), Err: stageErr})

		if stageErr != nil {
			if engErr, ok := enginerr.As(stageErr); ok && engErr.Kind == enginerr.KindCancelled {
				jobSpan.SetStatus(codes.Ok, "cancelled")
				m.finishCancelled(ctx, j)
				return
			}
			jobSpan.SetStatus(codes.Error, "stage failed")
			m.finishWithError(ctx, j, stageErr)
			return
		}
	}

	j.mu.Lock()
	j.progress = model.RenderProgress{JobID: j.record.JobID, Stage: "finalization", Percentage: 100, Status: model.StatusCompleted}
	j.mu.Unlock()
	if _, err := j.machine.Fire(ctx, eventSucceed); err != nil {
		logger.Error().Err(err).Msg("job state machine rejected success transition")
	}
	jobSpan.SetStatus(codes.Ok, "")
	metrics.IncJobCompleted("completed")
	m.recordLedger(j, "")
	m.publish(ctx, TopicRenderCompleted, StageEvent{JobID: j.record.JobID})
}

// recordLedger persists j's terminal outcome. Failures to write are logged,
// never propagated — the ledger is a durability aid, not a render dependency.
func (m *Manager) recordLedger(j *job, errMsg string) {
	if m.ledger == nil {
		return
	}
	j.mu.Lock()
	entry := ledger.Entry{
		JobID:           j.record.JobID,
		ParentJobID:     j.record.ParentJobID,
		ProjectName:     j.record.ProjectName,
		OutputPath:      j.record.OutputPath,
		Status:          j.machine.State(),
		ErrorMessage:    errMsg,
		FramesProcessed: j.progress.CurrentFrame,
		CreatedAt:       j.record.CreatedAt,
		FinishedAt:      time.Now(),
	}
	j.mu.Unlock()

	if err := m.ledger.Record(context.Background(), entry); err != nil {
		log.L().Warn().Err(err).Str("job_id", j.record.JobID).Msg("failed to persist render job to ledger")
	}
}

func (m *Manager) drainProgress(j *job, done <-chan struct{}) {
	for {
		select {
		case p, ok := <-j.pctx.ProgressCh:
			if !ok {
				return
			}
			j.mu.Lock()
			j.progress = p
			j.mu.Unlock()
		case <-done:
			return
		}
	}
}

func (m *Manager) finishWithError(ctx context.Context, j *job, err error) {
	j.mu.Lock()
	j.lastErr = err
	j.progress.Status = model.StatusFailed
	j.mu.Unlock()
	if _, fireErr := j.machine.Fire(ctx, eventFail); fireErr != nil {
		log.L().Error().Err(fireErr).Str("job_id", j.record.JobID).Msg("job state machine rejected failure transition")
	}
	metrics.IncJobCompleted("failed")
	m.recordLedger(j, err.Error())
	m.publish(ctx, TopicRenderFailed, StageEvent{JobID: j.record.JobID, Err: err})
}

func (m *Manager) finishCancelled(ctx context.Context, j *job) {
	j.mu.Lock()
	j.progress.Status = model.StatusCancelled
	j.mu.Unlock()
	if _, err := j.machine.Fire(ctx, eventCancel); err != nil {
		log.L().Error().Err(err).Str("job_id", j.record.JobID).Msg("job state machine rejected cancel transition")
	}
	metrics.IncJobCompleted("cancelled")
	m.recordLedger(j, "")
	m.publish(ctx, TopicRenderCancelled, StageEvent{JobID: j.record.JobID})
}

func (m *Manager) publish(ctx context.Context, topic string, msg eventbus.Message) {
	if m.bus == nil {
		return
	}
	if err := m.bus.Publish(ctx, topic, msg); err != nil {
		log.L().Debug().Err(err).Str("topic", topic).Msg("failed to publish pipeline event")
	}
}

// GetProgress returns the most recent progress snapshot for jobID.
func (m *Manager) GetProgress(jobID string) (model.RenderProgress, error) {
	j, ok := m.lookup(jobID)
	if !ok {
		return model.RenderProgress{}, jobNotFoundError(jobID)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	p := j.progress
	p.Status = j.machine.State()
	return p, nil
}

// Cancel requests cooperative cancellation of jobID. Cancellation is
// advisory: the job stops at the next stage boundary or encoder stderr
// line, never mid-write (spec §9).
func (m *Manager) Cancel(jobID string) error {
	j, ok := m.lookup(jobID)
	if !ok {
		return jobNotFoundError(jobID)
	}
	if j.machine.State().IsTerminal() {
		return enginerr.New(enginerr.KindInvalidParameter, "job already reached a terminal state")
	}
	j.pctx.RequestCancel()
	j.cancel()
	return nil
}

// ListActive returns every job that has not yet reached a terminal status.
func (m *Manager) ListActive() []model.RenderJob {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := make([]model.RenderJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		if !j.machine.State().IsTerminal() {
			active = append(active, j.record)
		}
	}
	return active
}

// TimeoutSuspect names an active job whose age has crossed a threshold.
// Reporting is advisory: the decision to cancel is the caller's (spec §9
// "Job timeouts: detection is advisory. The decision to cancel is the
// operator's.").
type TimeoutSuspect struct {
	JobID  string
	Age    time.Duration
	Status model.RenderStatus
	Stage  string
}

// DetectTimeouts compares every active job's created_at against threshold
// and reports, without cancelling, every job older than it.
func (m *Manager) DetectTimeouts(threshold time.Duration) []TimeoutSuspect {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	var suspects []TimeoutSuspect
	for _, j := range m.jobs {
		if j.machine.State().IsTerminal() {
			continue
		}
		age := now.Sub(j.record.CreatedAt)
		if age < threshold {
			continue
		}
		j.mu.Lock()
		stage := j.progress.Stage
		j.mu.Unlock()
		suspects = append(suspects, TimeoutSuspect{
			JobID:  j.record.JobID,
			Age:    age,
			Status: j.machine.State(),
			Stage:  stage,
		})
	}
	return suspects
}

func (m *Manager) lookup(jobID string) (*job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[jobID]
	return j, ok
}

func jobNotFoundError(jobID string) *enginerr.Error {
	return enginerr.New(enginerr.KindInvalidParameter, fmt.Sprintf("unknown render job %q", jobID))
}

// Close stops the admission queue and closes the ledger, if one was
// configured. It does not wait for in-flight jobs to finish.
func (m *Manager) Close() error {
	m.admission.Stop()
	if m.ledger == nil {
		return nil
	}
	return m.ledger.Close()
}
