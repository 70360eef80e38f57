// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package pluginhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxManager_CreateGetRemove(t *testing.T) {
	m := NewSandboxManager()
	sb := m.Create("p1", Permissions{FilesystemPaths: []string{"/tmp/p1"}})
	require.NotNil(t, sb)

	got, ok := m.Get("p1")
	require.True(t, ok)
	assert.Same(t, sb, got)

	m.Remove("p1")
	_, ok = m.Get("p1")
	assert.False(t, ok)
}

func TestSandbox_CheckPathWithinRoot(t *testing.T) {
	sb := &Sandbox{PluginID: "p1", Permissions: Permissions{FilesystemPaths: []string{"/tmp/p1"}}}
	assert.NoError(t, sb.CheckPath("/tmp/p1/out.json"))
	assert.NoError(t, sb.CheckPath("/tmp/p1"))
}

func TestSandbox_CheckPathOutsideRootFlags(t *testing.T) {
	sb := &Sandbox{PluginID: "p1", Permissions: Permissions{FilesystemPaths: []string{"/tmp/p1"}}}
	err := sb.CheckPath("/etc/passwd")
	require.Error(t, err)
	assert.True(t, sb.Stats().ViolationFlag)
}

func TestSandboxManager_GetViolatingAndReset(t *testing.T) {
	m := NewSandboxManager()
	sb := m.Create("p1", Permissions{})
	sb.Flag()

	violating := m.GetViolating()
	require.Len(t, violating, 1)
	assert.Equal(t, PluginId("p1"), violating[0])

	m.ResetViolation("p1")
	assert.False(t, sb.Stats().ViolationFlag)
	assert.Empty(t, m.GetViolating())
}

func TestSandbox_CheckRateUnlimitedByDefault(t *testing.T) {
	sb := &Sandbox{PluginID: "p1"}
	for i := 0; i < 100; i++ {
		assert.NoError(t, sb.CheckRate())
	}
}

func TestSandboxManager_CreateAppliesRateLimit(t *testing.T) {
	m := NewSandboxManager()
	sb := m.Create("p1", Permissions{MaxCommandsPerSecond: 1})

	require.NoError(t, sb.CheckRate())
	err := sb.CheckRate()
	require.Error(t, err, "second immediate call should exceed a 1/s burst-1 limiter")
	assert.True(t, sb.Stats().ViolationFlag)
}

func TestSandboxManager_AllStats(t *testing.T) {
	m := NewSandboxManager()
	sb1 := m.Create("p1", Permissions{})
	sb1.RecordCPUTime(50)
	m.Create("p2", Permissions{})

	stats := m.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(50), stats["p1"].CPUTimeMsUsed)
	assert.Equal(t, int64(0), stats["p2"].CPUTimeMsUsed)
}
