// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/veditcore/engine/internal/pipeline/model"
)

// TrimArgs builds a stream-copy time-trim command for one clip's source
// span (spec §4.3 composition step 1).
func TrimArgs(input string, sourceStart, sourceEnd float64, output string) []string {
	return []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", sourceStart),
		"-to", fmt.Sprintf("%.3f", sourceEnd),
		"-i", input,
		"-c", "copy",
		output,
	}
}

// EffectArgs builds a single-filter re-encode command applying one effect
// (spec §4.3 composition step 2: "each producing a new temp file").
func EffectArgs(input, filterExpr, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-vf", filterExpr,
		output,
	}
}

// FilterComplexArgs builds a command applying a chain of filters as a
// single filter_complex graph (spec §4.3 composition step 3).
func FilterComplexArgs(input string, filters []string, output string) []string {
	return []string{
		"-y",
		"-i", input,
		"-filter_complex", strings.Join(filters, ","),
		output,
	}
}

// PositionArgs scales a clip to (scaleX*W, scaleY*H) and pads it onto a
// WxH black canvas at (posX*W, posY*H) (spec §4.3 composition step 4).
func PositionArgs(input string, canvasW, canvasH int, scaleX, scaleY, posX, posY float64, output string) []string {
	scaledW := int(scaleX * float64(canvasW))
	scaledH := int(scaleY * float64(canvasH))
	offsetX := int(posX * float64(canvasW))
	offsetY := int(posY * float64(canvasH))

	filter := fmt.Sprintf(
		"scale=%d:%d,pad=%d:%d:%d:%d:color=black",
		scaledW, scaledH, canvasW, canvasH, offsetX, offsetY,
	)
	return []string{
		"-y",
		"-i", input,
		"-vf", filter,
		output,
	}
}

// ConcatArgs builds a concat-demuxer command joining a track's clip outputs
// into one file, given a pre-written concat list file.
func ConcatArgs(listFile, output string) []string {
	return []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
}

// OverlayArgs composes track outputs with stacked overlay filters, track 0
// on the bottom and higher-indexed tracks layered on top (spec §4.3
// composition: "tracks are then composed with stacked overlay filters").
func OverlayArgs(trackOutputs []string, output string) []string {
	args := []string{"-y"}
	for _, path := range trackOutputs {
		args = append(args, "-i", path)
	}

	if len(trackOutputs) == 1 {
		args = append(args, "-c", "copy", output)
		return args
	}

	var chain strings.Builder
	prev := "0:v"
	for i := 1; i < len(trackOutputs); i++ {
		label := fmt.Sprintf("ov%d", i)
		if i < len(trackOutputs)-1 {
			fmt.Fprintf(&chain, "[%s][%d:v]overlay=0:0[%s];", prev, i, label)
			prev = label
		} else {
			fmt.Fprintf(&chain, "[%s][%d:v]overlay=0:0", prev, i)
		}
	}

	args = append(args, "-filter_complex", chain.String(), output)
	return args
}

// AmixArgs mixes N audio tracks into one with ffmpeg's amix filter (spec
// §4.3: "Audio tracks with >1 clip are mixed with amix=inputs=N:duration=longest").
func AmixArgs(inputs []string, output string) []string {
	args := []string{"-y"}
	for _, path := range inputs {
		args = append(args, "-i", path)
	}
	filter := fmt.Sprintf("amix=inputs=%d:duration=longest", len(inputs))
	args = append(args, "-filter_complex", filter, output)
	return args
}

// EncodeArgs builds the final encoder invocation from the composed
// video/audio intermediates and the project's export settings (spec §4.3
// Encoding stage).
func EncodeArgs(videoIn, audioIn string, settings model.ExportSettings, profile CodecProfile, codec string, output string) []string {
	args := []string{"-y", "-i", videoIn}
	if audioIn != "" && audioIn != videoIn {
		args = append(args, "-i", audioIn)
	}

	args = append(args, "-c:v", profile.EncoderName)
	if profile.Preset != "" {
		args = append(args, "-preset", profile.Preset)
	}
	if profile.RateControl != "" {
		args = append(args, "-rc", profile.RateControl)
	}
	if profile.QualityFlag != nil {
		flag, value := profile.QualityFlag(settings.Quality)
		args = append(args, flag, value)
	}
	if settings.VideoBitrateKbps > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", settings.VideoBitrateKbps))
	}
	if settings.CodecProfile != "" {
		args = append(args, "-profile:v", settings.CodecProfile)
	}

	args = append(args, "-c:a", "aac")
	if settings.AudioBitrateKbps > 0 {
		args = append(args, "-b:a", fmt.Sprintf("%dk", settings.AudioBitrateKbps))
	}

	_ = codec
	args = append(args, output)
	return args
}

// RemuxWithMetadataArgs re-muxes output through the encoder with stream
// copy, injecting metadata tags (spec §4.3 Finalization).
func RemuxWithMetadataArgs(input string, metadata map[string]string, output string) []string {
	args := []string{"-y", "-i", input, "-c", "copy"}
	for k, v := range metadata {
		args = append(args, "-metadata", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, output)
	return args
}
