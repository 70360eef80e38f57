// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model defines the render pipeline's data shapes: the project
// schema a caller submits, the mutable context threaded stage-to-stage, and
// the progress/status types surfaced back to the caller.
package model

import "time"

// RenderStatus is the client-visible lifecycle of a render job.
type RenderStatus string

const (
	StatusQueued     RenderStatus = "QUEUED"
	StatusProcessing RenderStatus = "PROCESSING"
	StatusPaused     RenderStatus = "PAUSED"
	StatusCompleted  RenderStatus = "COMPLETED"
	StatusFailed     RenderStatus = "FAILED"
	StatusCancelled  RenderStatus = "CANCELLED"
)

// IsTerminal reports whether status is a final state.
func (s RenderStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// GPUEncoder is the closed set of hardware encoder families the pipeline
// knows how to target (spec §6 GPU encoder catalog).
type GPUEncoder string

const (
	GPUNone         GPUEncoder = "none"
	GPUNvenc        GPUEncoder = "nvenc"
	GPUQuickSync    GPUEncoder = "quicksync"
	GPUVaapi        GPUEncoder = "vaapi"
	GPUVideoToolbox GPUEncoder = "videotoolbox"
	GPUAmf          GPUEncoder = "amf"
	GPUV4l2         GPUEncoder = "v4l2"
	GPUSoftware     GPUEncoder = "software"
)

// Clip references a span of a media file placed on a Track.
type Clip struct {
	ID          string
	MediaPath   string
	StartTime   float64 // position on the track timeline, seconds
	EndTime     float64
	SourceStart float64 // in-point within the source media, seconds
	SourceEnd   float64
	EffectIDs   []string
	FilterIDs   []string
	ScaleX      float64 // 0..1, fraction of canvas width
	ScaleY      float64
	PositionX   float64 // 0..1, fraction of canvas width
	PositionY   float64
}

// Track is an ordered list of non-overlapping clips, either video or audio.
type Track struct {
	ID    string
	Kind  TrackKind
	Clips []Clip
}

// TrackKind distinguishes video from audio tracks for composition purposes.
type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Effect is a named, parameterized transform applied to a single clip.
type Effect struct {
	ID     string
	Kind   string
	Params map[string]any
}

// Filter is a named ffmpeg filter-graph fragment applied across a track.
type Filter struct {
	ID   string
	Expr string
}

// Transition describes a cross-fade/wipe/etc. between two adjacent clips.
type Transition struct {
	ID       string
	Kind     string
	Duration float64
}

// Subtitle is a subtitle track referenced by id, burned in or muxed as a
// soft stream depending on ExportSettings.
type Subtitle struct {
	ID   string
	Path string
	Lang string
}

// Timeline carries the project's canvas and sampling parameters.
type Timeline struct {
	Duration     float64
	FPS          float64
	Width        int
	Height       int
	SampleRate   int
	AspectRatioW int
	AspectRatioH int
}

// ExportSettings controls the encoding stage's output format and codec
// parameters.
type ExportSettings struct {
	Format              string // container, e.g. "mp4"
	VideoCodec          string // "h264" or "hevc"
	VideoBitrateKbps    int
	AudioBitrateKbps    int
	CodecProfile        string
	RateControl         string // "cbr", "vbr", "crf"
	Quality             int    // 0-100, monotonic across encoders
	HWAccel             bool
	PreferredGPUEncoder GPUEncoder
	Metadata            ExportMetadata
}

// ExportMetadata carries the container tags the finalization stage injects
// via remux (spec §4.3 Finalization: "title, artist, date, comment"). Title
// falls back to ProjectSchema.Name and Date to the render's completion time
// when left empty; Artist and Comment have no fallback and are omitted from
// the remux tag set if unset.
type ExportMetadata struct {
	Title   string
	Artist  string
	Date    string
	Comment string
}

// ProjectSchema is the full, self-contained description of a render job's
// input: tracks, referenced asset libraries, timeline and export settings.
type ProjectSchema struct {
	Name        string
	Tracks      []Track
	Effects     map[string]Effect
	Filters     map[string]Filter
	Transitions map[string]Transition
	Subtitles   map[string]Subtitle
	Timeline    Timeline
	Export      ExportSettings
}

// RenderJob is the caller-visible submission record for a render.
type RenderJob struct {
	JobID       string
	ProjectName string
	OutputPath  string
	CreatedAt   time.Time
	// ParentJobID links a software-fallback retry to the GPU attempt that
	// failed ahead of it (spec §7 ShouldFallbackToCPU).
	ParentJobID string
}

// Statistics accumulates observations across a job's lifetime for the
// finalization sidecar.
type Statistics struct {
	FramesProcessed int64
	MemoryUsedBytes int64
	ErrorCount      int
	WarningCount    int
}

// PipelineContext is the mutable state threaded through every stage of a
// single job. It is owned by the job's goroutine and must never be shared
// across jobs.
type PipelineContext struct {
	JobID         string
	CorrelationID string
	Project       *ProjectSchema
	OutputPath    string
	TempDir       string

	// IntermediateFiles maps a stage-chosen label (e.g. "video_composite")
	// to the temp path holding that artifact.
	IntermediateFiles map[string]string

	UserData map[string]any

	Statistics Statistics

	// EncoderArgs is populated by the composition stage and consumed by the
	// encoding stage.
	EncoderArgs []string

	// ProgressCh receives RenderProgress updates emitted during encoding.
	// Nil is valid and simply discards progress (used for intermediate
	// composition steps that run silently).
	ProgressCh chan RenderProgress

	// Cancel is closed cooperatively to request the job stop at the next
	// stage boundary or stderr line.
	Cancel    chan struct{}
	cancelled bool
}

// NewPipelineContext builds a fresh context for a job.
func NewPipelineContext(jobID, correlationID string, project *ProjectSchema, outputPath, tempDir string) *PipelineContext {
	return &PipelineContext{
		JobID:             jobID,
		CorrelationID:     correlationID,
		Project:           project,
		OutputPath:        outputPath,
		TempDir:           tempDir,
		IntermediateFiles: make(map[string]string),
		UserData:          make(map[string]any),
		Cancel:            make(chan struct{}),
	}
}

// RequestCancel marks the context cancelled. Safe to call more than once.
func (c *PipelineContext) RequestCancel() {
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.Cancel)
}

// Cancelled reports whether cancellation has been requested.
func (c *PipelineContext) Cancelled() bool {
	select {
	case <-c.Cancel:
		return true
	default:
		return false
	}
}

// ObserveFrame records a monotonic frame-processed high-water mark (spec §4.3
// "stored in ctx.statistics.frames_processed (monotonic max)").
func (c *PipelineContext) ObserveFrame(frame int64) {
	if frame > c.Statistics.FramesProcessed {
		c.Statistics.FramesProcessed = frame
	}
}

// RenderProgress is a single progress update emitted during encoding.
type RenderProgress struct {
	JobID             string
	Stage             string
	Percentage        float64
	CurrentFrame      int64
	TotalFrames       int64
	Elapsed           time.Duration
	EstimatedRemaining time.Duration
	Status            RenderStatus
	Message           string
}

// StatsSidecar is the persisted *.stats.json written on successful finalization.
type StatsSidecar struct {
	ProjectName      string    `json:"project_name"`
	OutputFile       string    `json:"output_file"`
	TotalDurationSec float64   `json:"total_duration_sec"`
	FramesProcessed  int64     `json:"frames_processed"`
	MemoryUsed       int64     `json:"memory_used"`
	ErrorCount       int       `json:"error_count"`
	WarningCount     int       `json:"warning_count"`
	RenderDate       time.Time `json:"render_date"`
	EngineVersion    string    `json:"engine_version"`
}
