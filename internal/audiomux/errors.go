package audiomux

import "errors"

var (
	// ErrOutputTooSmall reports that the mixed data does not fit the output
	// buffer. Mix sizes its output buffer to the input length itself and
	// reports native failures by numeric error code, so it does not return
	// this value.
	ErrOutputTooSmall = errors.New("output buffer too small")

	// ErrInvalidInput is returned when the input data is invalid (e.g. empty
	// or overlapping with output).
	ErrInvalidInput = errors.New("invalid input")

	// ErrMixerUnavailable is returned when the native mixer is not available
	// (not built with CGO, or the handle is closed).
	ErrMixerUnavailable = errors.New("native audio mixer unavailable")
)
