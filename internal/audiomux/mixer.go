//go:build cgo
// +build cgo

// Package audiomux provides an optional CGO-accelerated audio track mixer
// that mixes PCM tracks in-process. The composition stage does not call
// it; audio tracks are mixed with the encoder's own amix filter. Builds
// without CGO get a stub whose constructor always fails (see
// mixer_nocgo.go).
//
// # Build Requirements
//
// CGO must be enabled and the native mixer library built first:
//
//	cd native/audiomux && cargo build --release
//	CGO_ENABLED=1 go build
package audiomux

// #cgo LDFLAGS: -L${SRCDIR}/../../native/audiomux/target/release -lveditcore_audiomux
// #cgo darwin LDFLAGS: -framework CoreFoundation -framework Security
// #cgo linux LDFLAGS: -ldl -lm -lpthread
// #include <stdlib.h>
// #include "audiomux_bindings.h"
import "C"
import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

// NativeMixer wraps the native audio mixer for safe Go usage, managing the
// lifecycle of a single mixer instance.
type NativeMixer struct {
	handle     C.veditcore_mixer_handle
	sampleRate int
	channels   int
	bitrate    int
	isClosed   bool
}

// NewNativeMixer creates a mixer instance for the given output format. The
// caller must call Close() when done.
func NewNativeMixer(sampleRate, channels, bitrate int) (*NativeMixer, error) {
	handle := C.veditcore_audiomux_init(
		C.int(sampleRate),
		C.int(channels),
		C.int(bitrate),
	)
	if handle == nil {
		return nil, errors.New("failed to initialize native audio mixer")
	}

	mixer := &NativeMixer{
		handle:     handle,
		sampleRate: sampleRate,
		channels:   channels,
		bitrate:    bitrate,
	}
	runtime.SetFinalizer(mixer, (*NativeMixer).finalize)
	return mixer, nil
}

// Mix combines the tracks in input (concatenated PCM buffers, track-major)
// into a single output buffer at the mixer's configured format.
func (m *NativeMixer) Mix(input []byte) ([]byte, error) {
	if m.isClosed {
		return nil, fmt.Errorf("%w: mixer is closed", ErrMixerUnavailable)
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: input is empty", ErrInvalidInput)
	}

	outputCapacity := len(input)
	output := make([]byte, outputCapacity)
	defer runtime.KeepAlive(input)

	written := C.veditcore_audiomux_process(
		m.handle,
		(*C.uint8_t)(unsafe.Pointer(&input[0])),
		C.size_t(len(input)),
		(*C.uint8_t)(unsafe.Pointer(&output[0])),
		C.size_t(outputCapacity),
	)
	if written < 0 {
		return nil, fmt.Errorf("mixing failed (error code: %d)", written)
	}
	return output[:int(written)], nil
}

// Close releases the native mixer's resources. Safe to call multiple times.
func (m *NativeMixer) Close() error {
	if m.isClosed {
		return nil
	}
	if m.handle != nil {
		C.veditcore_audiomux_free(m.handle)
		m.handle = nil
	}
	m.isClosed = true
	runtime.SetFinalizer(m, nil)
	return nil
}

func (m *NativeMixer) finalize() {
	if !m.isClosed {
		_ = m.Close()
	}
}

// Config returns the mixer's configured output format.
func (m *NativeMixer) Config() (sampleRate, channels, bitrate int) {
	return m.sampleRate, m.channels, m.bitrate
}

// Version returns the native mixer library version.
func Version() string {
	return C.GoString(C.veditcore_audiomux_version())
}
