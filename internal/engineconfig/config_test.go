// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engineconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_NoPathReturnsDefaults(t *testing.T) {
	resolved, err := NewLoader("").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultResolved(), resolved)
}

func TestLoader_MergesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
cache:
  defaultMaxEntries: 500
pipeline:
  maxConcurrentJobs: 4
encoders:
  ffmpegPath: /usr/local/bin/ffmpeg
`)
	resolved, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", resolved.LogLevel)
	assert.Equal(t, 500, resolved.CacheDefaultMaxEntries)
	assert.Equal(t, 4, resolved.MaxConcurrentJobs)
	assert.Equal(t, "/usr/local/bin/ffmpeg", resolved.FFmpegPath)
	// untouched fields keep their default
	assert.Equal(t, DefaultResolved().CacheDefaultMaxBytes, resolved.CacheDefaultMaxBytes)
}

func TestLoader_RejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "totallyUnknownField: true\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestLoader_RejectsNonYAMLExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestLoader_RejectsTrailingDocument(t *testing.T) {
	path := writeConfig(t, "logLevel: debug\n---\nlogLevel: info\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}

func TestValidate_RejectsNonPositiveLimits(t *testing.T) {
	cfg := DefaultResolved()
	cfg.MaxConcurrentJobs = 0
	assert.Error(t, Validate(cfg))

	cfg = DefaultResolved()
	cfg.CacheDefaultMaxEntries = -1
	assert.Error(t, Validate(cfg))

	cfg = DefaultResolved()
	cfg.FFmpegPath = ""
	assert.Error(t, Validate(cfg))
}

func TestValidate_RejectsBadOverrideTTL(t *testing.T) {
	cfg := DefaultResolved()
	cfg.CacheOverrides = map[string]CacheOverride{"preview": {TTL: "not-a-duration"}}
	assert.Error(t, Validate(cfg))
}
