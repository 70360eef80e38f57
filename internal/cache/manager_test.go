package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ClearAllWithZeroRegistrations(t *testing.T) {
	m := NewManager()
	m.ClearAll() // must not panic
	assert.Empty(t, m.Names())
}

func TestManager_RegisterAndClearAll(t *testing.T) {
	m := NewManager()

	c1 := NewMemory[string, strVal]("metadata", Config{MaxEntries: 10})
	defer c1.Close()
	c2 := NewMemory[string, Bytes]("artifacts", Config{MaxEntries: 10})
	defer c2.Close()

	m.Register(c1)
	m.Register(c2)

	c1.Put("k", "v")
	c2.Put("k", Bytes("v"))

	m.ClearAll()

	assert.True(t, c1.IsEmpty())
	assert.True(t, c2.IsEmpty())
}

func TestManager_GetAndUnregister(t *testing.T) {
	m := NewManager()
	c := NewMemory[string, strVal]("x", Config{MaxEntries: 10})
	defer c.Close()

	m.Register(c)
	got, ok := m.Get("x")
	require.True(t, ok)
	assert.Equal(t, "x", got.Name())

	m.Unregister("x")
	_, ok = m.Get("x")
	assert.False(t, ok)
}
