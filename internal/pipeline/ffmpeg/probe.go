// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/veditcore/engine/internal/enginerr"
)

// StreamInfo is the subset of an ffprobe video-stream report the
// preprocessing stage needs.
type StreamInfo struct {
	CodecName string
	Width     int
	Height    int
	FPS       float64
	Duration  float64
}

type probeStream struct {
	CodecName   string `json:"codec_name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	RFrameRate  string `json:"r_frame_rate"`
	DurationStr string `json:"duration"`
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

// Prober runs the external probe subcommand (spec §6: "ffprobe -v error
// -select_streams v:0 -show_entries stream=codec_name,width,height,r_frame_rate,duration
// -of json <path>").
type Prober struct {
	BinPath string // defaults to "ffprobe"
}

// Probe inspects path's first video stream.
func (p Prober) Probe(ctx context.Context, path string) (StreamInfo, error) {
	bin := p.BinPath
	if bin == "" {
		bin = "ffprobe"
	}

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,duration",
		"-of", "json",
		path,
	}

	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- path is an engine-managed media asset path
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return StreamInfo{}, enginerr.Wrap(enginerr.KindDependencyMissing, err, "ffprobe binary not found")
		}
		return StreamInfo{}, enginerr.MediaFileError(path, fmt.Sprintf("probe failed: %s", stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return StreamInfo{}, enginerr.MediaFileError(path, "probe produced invalid JSON")
	}
	if len(out.Streams) == 0 {
		return StreamInfo{}, enginerr.MediaFileError(path, "no video stream found")
	}

	s := out.Streams[0]
	info := StreamInfo{CodecName: s.CodecName, Width: s.Width, Height: s.Height}
	info.FPS = parseRFrameRate(s.RFrameRate)
	if d, err := strconv.ParseFloat(s.DurationStr, 64); err == nil {
		info.Duration = d
	}
	return info, nil
}

// parseRFrameRate parses ffprobe's "num/den" frame rate representation.
func parseRFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	num, errN := strconv.ParseFloat(parts[0], 64)
	den, errD := strconv.ParseFloat(parts[1], 64)
	if errN != nil || errD != nil || den == 0 {
		return 0
	}
	return num / den
}

// AvailableEncoders runs "ffmpeg -encoders" and reports whether name appears
// as a registered codec token (spec §6 "Encoder-availability probe").
func AvailableEncoders(ctx context.Context, binPath string, names ...string) (map[string]bool, error) {
	if binPath == "" {
		binPath = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binPath, "-encoders") // #nosec G204 -- fixed flag, no user input
	out, err := cmd.Output()
	if err != nil {
		return nil, enginerr.Wrap(enginerr.KindDependencyMissing, err, "ffmpeg -encoders failed")
	}
	tokens := make(map[string]bool)
	for _, tok := range strings.Fields(string(out)) {
		tokens[tok] = true
	}
	found := make(map[string]bool, len(names))
	for _, name := range names {
		found[name] = tokens[name]
	}
	return found, nil
}
