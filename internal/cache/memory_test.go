package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemory_GetPutRemove(t *testing.T) {
	m := NewMemory[string, strVal]("artifacts", Config{MaxEntries: 10, MaxBytes: 1000, Policy: EvictionLRU})
	defer m.Close()

	m.Put("k1", "v1")
	v, ok := m.Get("k1")
	require.True(t, ok)
	assert.Equal(t, strVal("v1"), v)

	_, ok = m.Remove("k1")
	assert.True(t, ok)
	_, ok = m.Get("k1")
	assert.False(t, ok)
}

func TestMemory_Name(t *testing.T) {
	m := NewMemory[string, strVal]("previews", Config{MaxEntries: 10})
	defer m.Close()
	assert.Equal(t, "previews", m.Name())
}

func TestMemory_JanitorSweepsExpired(t *testing.T) {
	m := NewMemory[string, strVal]("ttl-cache", Config{
		MaxEntries:      100,
		MaxBytes:        1000,
		TTL:             20 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
		Policy:          EvictionLRU,
	})
	defer m.Close()

	m.Put("a", "1")
	m.Put("b", "2")

	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 0, m.Len(), "janitor should have swept both expired entries")
	assert.GreaterOrEqual(t, m.Stats().ExpiredRemovals, int64(2))
}

func TestMemory_JanitorSkipsContendedTick(t *testing.T) {
	m := NewMemory[string, strVal]("contended", Config{
		MaxEntries:      100,
		MaxBytes:        1000,
		TTL:             5 * time.Millisecond,
		CleanupInterval: 5 * time.Millisecond,
	})
	defer m.Close()

	// Hold the write lock across several janitor ticks; the janitor must
	// skip rather than block.
	m.mu.Lock()
	time.Sleep(30 * time.Millisecond)
	m.mu.Unlock()

	// No panic, no deadlock: the janitor degraded gracefully.
}

func TestMemory_ConcurrentAccess(t *testing.T) {
	m := NewMemory[string, strVal]("concurrent", Config{MaxEntries: 1000, MaxBytes: 1 << 20, Policy: EvictionLRU})
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Put("key", "value")
		}()
		go func() {
			defer wg.Done()
			m.Get("key")
		}()
	}
	wg.Wait()
}

func TestMemory_CloseIsIdempotent(t *testing.T) {
	m := NewMemory[string, strVal]("closeable", Config{CleanupInterval: time.Millisecond})
	m.Close()
	m.Close() // must not panic or block
}
