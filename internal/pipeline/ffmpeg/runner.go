// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg supervises the external encoder/probe subprocesses the
// render pipeline shells out to: building their argument lists, running
// them with cooperative cancellation, and parsing their stderr progress
// stream.
package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/metrics"
	"github.com/veditcore/engine/internal/pipeline/model"
	"github.com/veditcore/engine/internal/procgroup"
	"github.com/veditcore/engine/internal/telemetry"
)

var tracer = telemetry.Tracer("veditcore.ffmpeg")

// Runner supervises a single encoder subprocess invocation.
type Runner struct {
	BinPath     string
	killTimeout time.Duration

	mu  sync.Mutex
	cmd *exec.Cmd

	ring *LineRing
}

// NewRunner creates a Runner. killTimeout bounds how long Stop waits after
// SIGTERM before escalating to SIGKILL.
func NewRunner(binPath string, killTimeout time.Duration) *Runner {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	return &Runner{
		BinPath:     binPath,
		killTimeout: killTimeout,
		ring:        NewLineRing(256),
	}
}

// Run executes the encoder with args, streaming parsed progress updates
// into progressCh and recording the running high-water mark via
// pctx.ObserveFrame. It returns the process exit code and, on a non-zero
// exit or start failure, an *enginerr.Error describing the failure.
//
// Run polls pctx.Cancelled() after every stderr line (spec §4.3
// "Concurrency and cancellation") and on cancellation calls Stop, which
// sends SIGTERM to the child's process group and SIGKILL once killTimeout
// has passed.
func (r *Runner) Run(ctx context.Context, args []string, parser ProgressParser, pctx *model.PipelineContext, progressCh chan model.RenderProgress) (int, error) {
	ctx, span := tracer.Start(ctx, "ffmpeg.invoke", trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(telemetry.EncoderAttributes(r.BinPath, hasHWAccelFlag(args))...),
	)
	defer span.End()

	code, err := r.run(ctx, args, parser, pctx, progressCh)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return code, err
}

// hasHWAccelFlag reports whether args requests a GPU encoder, for span
// attribution only.
func hasHWAccelFlag(args []string) bool {
	for _, a := range args {
		switch a {
		case "h264_nvenc", "hevc_nvenc", "h264_qsv", "hevc_qsv", "h264_vaapi", "hevc_vaapi",
			"h264_videotoolbox", "hevc_videotoolbox", "h264_amf", "hevc_amf", "h264_v4l2m2m":
			return true
		}
	}
	return false
}

func (r *Runner) run(ctx context.Context, args []string, parser ProgressParser, pctx *model.PipelineContext, progressCh chan model.RenderProgress) (int, error) {
	cmd := exec.CommandContext(ctx, r.BinPath, args...) // #nosec G204 -- args built internally from validated project data
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, enginerr.Wrap(enginerr.KindEncoder, err, "failed to attach encoder stderr")
	}

	r.mu.Lock()
	r.cmd = cmd
	r.mu.Unlock()

	logger := log.WithContext(ctx, log.WithComponent("ffmpeg"))
	logger.Info().Str("command", cmd.String()).Msg("starting encoder process")

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return 1, enginerr.Wrap(enginerr.KindDependencyMissing, err, "encoder binary not found")
		}
		return 1, enginerr.Wrap(enginerr.KindEncoder, err, "failed to start encoder")
	}

	cancelled := false
	var ioWg sync.WaitGroup
	ioWg.Add(1)
	go func() {
		defer ioWg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			_, _ = r.ring.Write([]byte(line + "\n"))

			if frame, _, elapsed, pct, ok := parser.ParseLine(line); ok {
				pctx.ObserveFrame(frame)
				sendLatest(progressCh, model.RenderProgress{
					JobID:        pctx.JobID,
					Stage:        "encoding",
					Percentage:   pct,
					CurrentFrame: frame,
					Elapsed:      elapsed,
					Status:       model.StatusProcessing,
				})
			}

			if pctx.Cancelled() && !cancelled {
				cancelled = true
				logger.Warn().Msg("cancellation requested, terminating encoder")
				_ = r.Stop(ctx)
			}
		}
	}()

	waitErr := cmd.Wait()
	ioWg.Wait()

	code := 0
	if waitErr != nil {
		code = 1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	if cancelled {
		metrics.IncEncoderExit("killed")
		return code, enginerr.CancelledError(pctx.JobID)
	}
	if code == 0 {
		metrics.IncEncoderExit("clean")
		return 0, nil
	}

	metrics.IncEncoderExit("nonzero")
	return code, enginerr.FFmpegError(code, strings.Join(r.LastLogLines(20), "\n"), args)
}

// Stop sends SIGTERM to the running process group, escalating to SIGKILL
// after killTimeout.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := procgroup.Kill(cmd, syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.NewTimer(r.killTimeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
		return procgroup.Kill(cmd, syscall.SIGKILL)
	case <-deadline.C:
		return procgroup.Kill(cmd, syscall.SIGKILL)
	}
}

// LastLogLines returns the last n lines of captured stderr, for error
// reporting and diagnostics.
func (r *Runner) LastLogLines(n int) []string {
	lines := r.ring.LastN(n)
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}

// sendLatest delivers p to ch without blocking the caller: if ch is full,
// the oldest buffered update is dropped in favor of the newest (spec §9
// "Progress channel back-pressure... prefer dropping older updates over
// blocking the encoder reader; keep the latest").
func sendLatest(ch chan model.RenderProgress, p model.RenderProgress) {
	if ch == nil {
		return
	}
	select {
	case ch <- p:
		return
	default:
	}
	// Channel full: best-effort drop-oldest. Safe to race with a concurrent
	// reader; worst case we retry the send against a channel that just
	// drained and the select above would have succeeded anyway.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- p:
	default:
	}
}
