package enginerr

import (
	"errors"
	"testing"
)

func TestClassificationPredicates(t *testing.T) {
	cases := []struct {
		kind       Kind
		critical   bool
		retryable  bool
		fallback   bool
		wantedCode string
	}{
		{KindDependencyMissing, true, false, false, "DEPENDENCY_MISSING"},
		{KindResource, true, false, false, "RESOURCE_ERROR"},
		{KindInternal, true, false, false, "INTERNAL_ERROR"},
		{KindIO, false, true, false, "IO_ERROR"},
		{KindTimeout, false, true, false, "TIMEOUT_ERROR"},
		{KindCache, false, true, false, "CACHE_ERROR"},
		{KindGpu, false, false, true, "GPU_ERROR"},
		{KindGpuUnavailable, false, false, true, "GPU_UNAVAILABLE"},
		{KindValidation, false, false, false, "VALIDATION_ERROR"},
	}

	for _, tc := range cases {
		e := New(tc.kind, "x")
		if got := e.IsCritical(); got != tc.critical {
			t.Errorf("%s: IsCritical() = %v, want %v", tc.kind, got, tc.critical)
		}
		if got := e.IsRetryable(); got != tc.retryable {
			t.Errorf("%s: IsRetryable() = %v, want %v", tc.kind, got, tc.retryable)
		}
		if got := e.ShouldFallbackToCPU(); got != tc.fallback {
			t.Errorf("%s: ShouldFallbackToCPU() = %v, want %v", tc.kind, got, tc.fallback)
		}
		if e.Code() != tc.wantedCode {
			t.Errorf("%s: Code() = %v, want %v", tc.kind, e.Code(), tc.wantedCode)
		}
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("boom")
	e := Wrap(KindIO, cause, "write failed")
	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find wrapped cause")
	}
}

func TestGPUFallbackErrorPropagatesDetail(t *testing.T) {
	inner := FFmpegError(1, "nvenc init failed", []string{"ffmpeg", "-i", "in.mp4"})
	wrapped := GPUFallbackError(inner)

	if !wrapped.ShouldFallbackToCPU() {
		t.Error("expected GPU-wrapped error to signal fallback")
	}
	if wrapped.ExitCode != 1 || wrapped.Stderr != "nvenc init failed" {
		t.Error("expected GPU wrapper to carry through encoder failure detail")
	}
	if !errors.Is(wrapped, inner) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

func TestAsHelper(t *testing.T) {
	var err error = New(KindValidation, "bad clip")
	e, ok := As(err)
	if !ok || e.Kind != KindValidation {
		t.Fatal("expected As to extract *Error")
	}

	_, ok = As(errors.New("plain"))
	if ok {
		t.Error("expected As to fail for a non-engine error")
	}
}

func TestWithFieldChains(t *testing.T) {
	e := New(KindCache, "oversized value").WithField("key", "k1").WithField("bytes", 4096)
	if e.Fields["key"] != "k1" || e.Fields["bytes"] != 4096 {
		t.Error("expected WithField to accumulate fields")
	}
}
