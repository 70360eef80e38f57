// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"regexp"
	"strconv"
	"time"
)

// progressLineRE matches ffmpeg's periodic stderr progress line:
//
//	frame=  120 fps=30.0 q=28.0 size=1024kB time=00:00:04.00 bitrate=2097.2kbits/s speed=1.0x
var progressLineRE = regexp.MustCompile(
	`frame=\s*(\d+)\s+fps=\s*([\d.]+)\s.*\btime=(\d\d):(\d\d):(\d\d(?:\.\d+)?)\s`,
)

// ProgressParser extracts RenderProgress updates from an encoder's stderr
// stream, given the project's total duration in seconds.
type ProgressParser struct {
	TotalDuration float64
}

// ParseLine parses a single stderr line. ok is false when the line does not
// match the progress format (most lines during startup/shutdown do not).
func (p ProgressParser) ParseLine(line string) (frame int64, fps float64, elapsed time.Duration, percentage float64, ok bool) {
	m := progressLineRE.FindStringSubmatch(line)
	if m == nil {
		return 0, 0, 0, 0, false
	}

	frame, _ = strconv.ParseInt(m[1], 10, 64)
	fps, _ = strconv.ParseFloat(m[2], 64)

	hours, _ := strconv.Atoi(m[3])
	minutes, _ := strconv.Atoi(m[4])
	seconds, _ := strconv.ParseFloat(m[5], 64)
	totalSeconds := float64(hours)*3600 + float64(minutes)*60 + seconds
	elapsed = time.Duration(totalSeconds * float64(time.Second))

	percentage = 0
	if p.TotalDuration > 0 {
		percentage = totalSeconds / p.TotalDuration * 100
		if percentage > 100 {
			percentage = 100
		}
	}

	return frame, fps, elapsed, percentage, true
}
