// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package engineconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultResolved returns the configuration applied when no file is
// provided and no override is set.
func DefaultResolved() Resolved {
	return Resolved{
		LogLevel: "info",

		CacheDefaultMaxEntries: 10_000,
		CacheDefaultMaxBytes:   256 << 20, // 256 MiB
		CacheDefaultTTL:        30 * time.Minute,
		CacheCleanupInterval:   time.Minute,
		CacheOverrides:         map[string]CacheOverride{},

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		GPUEncoders: []string{},
		PreferGPU:   true,

		DefaultPermissions: PermissionsConfig{},
		PluginOverrides:    map[string]PermissionsConfig{},

		MaxConcurrentJobs: 2,
		JobTimeout:        2 * time.Hour,
		LedgerPath:        "render_ledger.sqlite",

		SandboxMaxMemoryBytes: 512 << 20,
		SandboxMaxOpenFiles:   64,
	}
}

// Loader reads FileConfig from disk with strict YAML parsing (unknown
// fields are rejected) and resolves it against DefaultResolved.
type Loader struct {
	configPath string
}

// NewLoader returns a Loader reading from configPath. An empty path means
// defaults only — Load then never touches the filesystem.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads, strictly parses, merges and validates the configuration.
func (l *Loader) Load() (Resolved, error) {
	resolved := DefaultResolved()

	if l.configPath == "" {
		return resolved, nil
	}

	fileCfg, err := l.loadFile(l.configPath)
	if err != nil {
		return resolved, fmt.Errorf("load config file: %w", err)
	}

	merge(&resolved, fileCfg)

	if err := Validate(resolved); err != nil {
		return resolved, fmt.Errorf("config validation failed: %w", err)
	}
	return resolved, nil
}

// loadFile parses path with strict YAML decoding: unknown fields and
// trailing documents are both configuration errors, not warnings.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// merge overlays non-zero fields from file onto dst, which starts from
// DefaultResolved.
func merge(dst *Resolved, file *FileConfig) {
	if file.LogLevel != "" {
		dst.LogLevel = file.LogLevel
	}

	if file.Cache.DefaultMaxEntries > 0 {
		dst.CacheDefaultMaxEntries = file.Cache.DefaultMaxEntries
	}
	if file.Cache.DefaultMaxBytes > 0 {
		dst.CacheDefaultMaxBytes = file.Cache.DefaultMaxBytes
	}
	if d, err := time.ParseDuration(file.Cache.DefaultTTL); err == nil && file.Cache.DefaultTTL != "" {
		dst.CacheDefaultTTL = d
	}
	if d, err := time.ParseDuration(file.Cache.CleanupInterval); err == nil && file.Cache.CleanupInterval != "" {
		dst.CacheCleanupInterval = d
	}
	if len(file.Cache.Overrides) > 0 {
		dst.CacheOverrides = file.Cache.Overrides
	}
	if file.Cache.DiskTierPath != "" {
		dst.CacheDiskTierPath = file.Cache.DiskTierPath
	}
	if file.Cache.RemoteTierAddr != "" {
		dst.CacheRemoteTierAddr = file.Cache.RemoteTierAddr
	}

	if file.Encoders.FFmpegPath != "" {
		dst.FFmpegPath = file.Encoders.FFmpegPath
	}
	if file.Encoders.FFprobePath != "" {
		dst.FFprobePath = file.Encoders.FFprobePath
	}
	if len(file.Encoders.GPUEncoders) > 0 {
		dst.GPUEncoders = file.Encoders.GPUEncoders
	}
	dst.PreferGPU = file.Encoders.PreferGPU || dst.PreferGPU

	dst.DefaultPermissions = file.Plugins.DefaultPermissions
	if len(file.Plugins.Overrides) > 0 {
		dst.PluginOverrides = file.Plugins.Overrides
	}

	if file.Pipeline.MaxConcurrentJobs > 0 {
		dst.MaxConcurrentJobs = file.Pipeline.MaxConcurrentJobs
	}
	if d, err := time.ParseDuration(file.Pipeline.JobTimeout); err == nil && file.Pipeline.JobTimeout != "" {
		dst.JobTimeout = d
	}
	if file.Pipeline.LedgerPath != "" {
		dst.LedgerPath = file.Pipeline.LedgerPath
	}

	if file.Sandbox.MaxMemoryBytes > 0 {
		dst.SandboxMaxMemoryBytes = file.Sandbox.MaxMemoryBytes
	}
	if file.Sandbox.MaxOpenFiles > 0 {
		dst.SandboxMaxOpenFiles = file.Sandbox.MaxOpenFiles
	}
}

// Validate rejects a Resolved configuration that would leave the engine in
// an inconsistent state.
func Validate(cfg Resolved) error {
	if cfg.CacheDefaultMaxEntries <= 0 {
		return fmt.Errorf("cache.defaultMaxEntries must be positive")
	}
	if cfg.CacheDefaultMaxBytes <= 0 {
		return fmt.Errorf("cache.defaultMaxBytes must be positive")
	}
	if cfg.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("pipeline.maxConcurrentJobs must be positive")
	}
	if cfg.FFmpegPath == "" {
		return fmt.Errorf("encoders.ffmpegPath must not be empty")
	}
	for name, ov := range cfg.CacheOverrides {
		if ov.TTL != "" {
			if _, err := time.ParseDuration(ov.TTL); err != nil {
				return fmt.Errorf("cache.overrides[%s].ttl: %w", name, err)
			}
		}
	}
	return nil
}
