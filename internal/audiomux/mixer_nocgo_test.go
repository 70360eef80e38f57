//go:build !cgo

package audiomux

import (
	"strings"
	"testing"
)

func TestNewNativeMixer_Stub(t *testing.T) {
	mixer, err := NewNativeMixer(48000, 2, 192000)
	if err == nil {
		t.Fatal("expected error from stub NewNativeMixer, got nil")
	}
	if mixer != nil {
		t.Errorf("expected nil mixer from stub, got %v", mixer)
	}
	if !strings.Contains(err.Error(), "CGO_ENABLED=1") {
		t.Errorf("error should mention CGO_ENABLED=1, got: %s", err.Error())
	}
}

func TestNativeMixer_Mix_Stub(t *testing.T) {
	mixer := &NativeMixer{}
	output, err := mixer.Mix([]byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected error from stub Mix, got nil")
	}
	if output != nil {
		t.Errorf("expected nil output from stub, got %v", output)
	}
}

func TestNativeMixer_Close_Stub(t *testing.T) {
	mixer := &NativeMixer{}
	if err := mixer.Close(); err != nil {
		t.Errorf("stub Close returned unexpected error: %v", err)
	}
	if err := mixer.Close(); err != nil {
		t.Errorf("stub Close (second call) returned unexpected error: %v", err)
	}
}

func TestNativeMixer_Config_Stub(t *testing.T) {
	mixer := &NativeMixer{}
	sampleRate, channels, bitrate := mixer.Config()
	if sampleRate != 0 || channels != 0 || bitrate != 0 {
		t.Errorf("expected all-zero config from stub, got (%d,%d,%d)", sampleRate, channels, bitrate)
	}
}

func TestVersion_Stub(t *testing.T) {
	version := Version()
	if !strings.Contains(version, "unavailable") {
		t.Errorf("expected version to contain 'unavailable', got: %s", version)
	}
}
