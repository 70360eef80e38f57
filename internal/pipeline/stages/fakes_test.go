// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package stages

import (
	"context"
	"errors"
	"os"

	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/model"
)

var errBoom = errors.New("boom")

// fakeRunner records every invocation and, instead of shelling out,
// creates an empty file at the command's final argument (the output path
// every ffmpeg.*Args builder appends last) so downstream os.Stat checks
// succeed.
type fakeRunner struct {
	calls   [][]string
	failOn  func(args []string) error
}

func (f *fakeRunner) Run(ctx context.Context, args []string, parser ffmpeg.ProgressParser, pctx *model.PipelineContext, progressCh chan model.RenderProgress) (int, error) {
	f.calls = append(f.calls, args)
	if f.failOn != nil {
		if err := f.failOn(args); err != nil {
			return 1, err
		}
	}
	if len(args) > 0 {
		out := args[len(args)-1]
		_ = os.WriteFile(out, []byte("fake-output"), 0o644)
	}
	return 0, nil
}

type fakeProber struct {
	info ffmpeg.StreamInfo
}

func (f *fakeProber) Probe(ctx context.Context, path string) (ffmpeg.StreamInfo, error) {
	return f.info, nil
}
