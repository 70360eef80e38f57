//go:build !cgo
// +build !cgo

package audiomux

import "fmt"

// NativeMixer stub used in builds without CGO; NewNativeMixer always fails
// and Mix always reports ErrMixerUnavailable.
type NativeMixer struct{}

// NewNativeMixer always fails without CGO.
func NewNativeMixer(_, _, _ int) (*NativeMixer, error) {
	return nil, fmt.Errorf("%w: build requires CGO_ENABLED=1", ErrMixerUnavailable)
}

func (m *NativeMixer) Mix(_ []byte) ([]byte, error) {
	return nil, ErrMixerUnavailable
}

func (m *NativeMixer) Close() error { return nil }

func (m *NativeMixer) Config() (sampleRate, channels, bitrate int) { return 0, 0, 0 }

// Version reports unavailability for non-CGO builds.
func Version() string { return "unavailable (CGO disabled)" }
