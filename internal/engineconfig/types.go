// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package engineconfig loads and hot-reloads the engine's on-disk
// configuration: cache defaults, encoder tool paths, default plugin
// permissions, and the render pipeline's admission ceilings.
package engineconfig

import "time"

// FileConfig is the YAML configuration structure read from disk.
type FileConfig struct {
	LogLevel string `yaml:"logLevel,omitempty"`

	Cache       CacheConfig       `yaml:"cache,omitempty"`
	Encoders    EncodersConfig    `yaml:"encoders,omitempty"`
	Plugins     PluginsConfig     `yaml:"plugins,omitempty"`
	Pipeline    PipelineConfig    `yaml:"pipeline,omitempty"`
	Sandbox     SandboxConfig     `yaml:"sandbox,omitempty"`
}

// CacheConfig holds the default tuning applied to caches created by name
// at startup (metadata, prerender, preview, thumbnail). A per-cache
// override map lets the preview cache run a smaller ceiling than the
// metadata cache, for instance.
type CacheConfig struct {
	DefaultMaxEntries int           `yaml:"defaultMaxEntries,omitempty"`
	DefaultMaxBytes   int64         `yaml:"defaultMaxBytes,omitempty"`
	DefaultTTL        string        `yaml:"defaultTTL,omitempty"`
	CleanupInterval   string        `yaml:"cleanupInterval,omitempty"`
	Overrides         map[string]CacheOverride `yaml:"overrides,omitempty"`

	DiskTierPath  string `yaml:"diskTierPath,omitempty"`
	RemoteTierAddr string `yaml:"remoteTierAddr,omitempty"`
}

// CacheOverride overrides a subset of CacheConfig's defaults for one named
// cache instance.
type CacheOverride struct {
	MaxEntries int    `yaml:"maxEntries,omitempty"`
	MaxBytes   int64  `yaml:"maxBytes,omitempty"`
	TTL        string `yaml:"ttl,omitempty"`
	Policy     string `yaml:"policy,omitempty"`
}

// EncodersConfig locates the external encoder/prober binaries and declares
// which GPU encoders are eligible for this install.
type EncodersConfig struct {
	FFmpegPath     string   `yaml:"ffmpegPath,omitempty"`
	FFprobePath    string   `yaml:"ffprobePath,omitempty"`
	GPUEncoders    []string `yaml:"gpuEncoders,omitempty"`
	PreferGPU      bool     `yaml:"preferGPU,omitempty"`
}

// PluginsConfig declares the default permission grant used when a plugin
// is loaded without an explicit override, plus per-plugin overrides keyed
// by PluginId.
type PluginsConfig struct {
	DefaultPermissions PermissionsConfig            `yaml:"defaultPermissions,omitempty"`
	Overrides          map[string]PermissionsConfig `yaml:"overrides,omitempty"`
}

// PermissionsConfig mirrors pluginhost.Permissions in a YAML-friendly shape.
type PermissionsConfig struct {
	UIAccess             bool     `yaml:"uiAccess,omitempty"`
	ProcessSpawn         bool     `yaml:"processSpawn,omitempty"`
	Network              bool     `yaml:"network,omitempty"`
	FilesystemPaths      []string `yaml:"filesystemPaths,omitempty"`
	MaxCommandsPerSecond float64  `yaml:"maxCommandsPerSecond,omitempty"`
}

// PipelineConfig bounds how many render jobs may run at once and how long a
// job may run before the advisory timeout checker flags it.
type PipelineConfig struct {
	MaxConcurrentJobs int    `yaml:"maxConcurrentJobs,omitempty"`
	JobTimeout        string `yaml:"jobTimeout,omitempty"`
	LedgerPath        string `yaml:"ledgerPath,omitempty"`
}

// SandboxConfig bounds the resource ledger every plugin sandbox is checked
// against before a violation is flagged.
type SandboxConfig struct {
	MaxMemoryBytes int64 `yaml:"maxMemoryBytes,omitempty"`
	MaxOpenFiles   int64 `yaml:"maxOpenFiles,omitempty"`
}

// Resolved is FileConfig after defaulting and duration parsing — the shape
// the rest of the engine actually consumes.
type Resolved struct {
	LogLevel string

	CacheDefaultMaxEntries int
	CacheDefaultMaxBytes   int64
	CacheDefaultTTL        time.Duration
	CacheCleanupInterval   time.Duration
	CacheOverrides         map[string]CacheOverride
	CacheDiskTierPath      string
	CacheRemoteTierAddr    string

	FFmpegPath  string
	FFprobePath string
	GPUEncoders []string
	PreferGPU   bool

	DefaultPermissions PermissionsConfig
	PluginOverrides    map[string]PermissionsConfig

	MaxConcurrentJobs int
	JobTimeout        time.Duration
	LedgerPath        string

	SandboxMaxMemoryBytes int64
	SandboxMaxOpenFiles   int64
}
