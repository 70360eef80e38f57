// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"strconv"

	"github.com/veditcore/engine/internal/pipeline/model"
)

// CodecProfile names the ffmpeg encoder and the flags needed to reach a
// given quality level for one (GPUEncoder, codec) pair.
type CodecProfile struct {
	EncoderName string // ffmpeg -c:v value, e.g. "h264_nvenc"
	Preset      string
	RateControl string // ffmpeg -rc value, where applicable

	// QualityFlag builds the quality-controlling flag/value pair for this
	// encoder given a 0-100 quality integer. Higher quality must always
	// produce a "better" parameter value (spec §6: "monotonic — higher
	// quality ⇒ better quality").
	QualityFlag func(quality int) (flag, value string)
}

// catalog tabulates H.264 and HEVC profiles for every GPUEncoder (V4L2:
// H.264 only). Quality mapping direction per encoder:
//   - CRF/CQ/QP-style knobs (x264/x265, nvenc, vaapi, amf) and QSV
//     "global_quality": lower numeric value is better quality, so
//     value = worst - quality-scaled (scaleInverse).
//   - VideoToolbox -q:v and the V4L2 bitrate: higher value is better
//     quality, so the value rises with quality.
var catalog = map[model.GPUEncoder]map[string]CodecProfile{
	model.GPUSoftware: {
		"h264": {EncoderName: "libx264", Preset: "medium", QualityFlag: crfFlag(51, 0)},
		"hevc": {EncoderName: "libx265", Preset: "medium", QualityFlag: crfFlag(51, 0)},
	},
	model.GPUNvenc: {
		"h264": {EncoderName: "h264_nvenc", Preset: "p4", RateControl: "vbr", QualityFlag: cqFlag(51, 0)},
		"hevc": {EncoderName: "hevc_nvenc", Preset: "p4", RateControl: "vbr", QualityFlag: cqFlag(51, 0)},
	},
	model.GPUQuickSync: {
		"h264": {EncoderName: "h264_qsv", Preset: "medium", QualityFlag: globalQualityFlag(51, 1)},
		"hevc": {EncoderName: "hevc_qsv", Preset: "medium", QualityFlag: globalQualityFlag(51, 1)},
	},
	model.GPUVaapi: {
		"h264": {EncoderName: "h264_vaapi", QualityFlag: qpFlag(51, 0)},
		"hevc": {EncoderName: "hevc_vaapi", QualityFlag: qpFlag(51, 0)},
	},
	model.GPUVideoToolbox: {
		"h264": {EncoderName: "h264_videotoolbox", QualityFlag: vtQualityFlag()},
		"hevc": {EncoderName: "hevc_videotoolbox", QualityFlag: vtQualityFlag()},
	},
	model.GPUAmf: {
		"h264": {EncoderName: "h264_amf", QualityFlag: qpFlag(51, 0)},
		"hevc": {EncoderName: "hevc_amf", QualityFlag: qpFlag(51, 0)},
	},
	model.GPUV4l2: {
		"h264": {EncoderName: "h264_v4l2m2m", QualityFlag: bitrateFromQualityFlag()},
	},
}

// ResolveCodecProfile looks up the encoder profile for a (encoder, codec)
// pair, falling back to software libx264/libx265 if the requested hardware
// path has no entry (e.g. V4L2 has no HEVC entry in the catalog).
func ResolveCodecProfile(encoder model.GPUEncoder, codec string) (CodecProfile, bool) {
	if byCodec, ok := catalog[encoder]; ok {
		if profile, ok := byCodec[codec]; ok {
			return profile, true
		}
	}
	return catalog[model.GPUSoftware][codec], false
}

// crfFlag maps quality linearly onto a CRF-style range where lower is
// better; worst maps to quality=0, best to quality=100.
func crfFlag(worst, best int) func(int) (string, string) {
	return func(quality int) (string, string) {
		return "-crf", strconv.Itoa(scaleInverse(quality, worst, best))
	}
}

func cqFlag(worst, best int) func(int) (string, string) {
	return func(quality int) (string, string) {
		return "-cq", strconv.Itoa(scaleInverse(quality, worst, best))
	}
}

func qpFlag(worst, best int) func(int) (string, string) {
	return func(quality int) (string, string) {
		return "-qp", strconv.Itoa(scaleInverse(quality, worst, best))
	}
}

func globalQualityFlag(worst, best int) func(int) (string, string) {
	return func(quality int) (string, string) {
		return "-global_quality", strconv.Itoa(scaleInverse(quality, worst, best))
	}
}

func vtQualityFlag() func(int) (string, string) {
	return func(quality int) (string, string) {
		// VideoToolbox's -q:v is 0-100, higher is better: direct mapping.
		if quality < 0 {
			quality = 0
		}
		if quality > 100 {
			quality = 100
		}
		return "-q:v", strconv.Itoa(quality)
	}
}

func bitrateFromQualityFlag() func(int) (string, string) {
	return func(quality int) (string, string) {
		if quality < 0 {
			quality = 0
		}
		if quality > 100 {
			quality = 100
		}
		// V4L2 M2M has no quality knob; approximate via bitrate, 500k-8000k.
		kbps := 500 + (quality*(8000-500))/100
		return "-b:v", strconv.Itoa(kbps) + "k"
	}
}

// scaleInverse maps quality (0-100, higher=better) onto [best, worst] where
// a numerically smaller output is better quality, preserving monotonicity.
func scaleInverse(quality, worst, best int) int {
	if quality < 0 {
		quality = 0
	}
	if quality > 100 {
		quality = 100
	}
	return worst - (quality*(worst-best))/100
}

