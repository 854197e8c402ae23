package journal

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock hands out strictly increasing microsecond timestamps.
type fakeClock struct {
	mu sync.Mutex
	us int64
}

func (c *fakeClock) now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.us += 100
	return c.us
}

func newTestWriter(t *testing.T, opts ...Option) (*Writer, string) {
	t.Helper()
	path := SessionPath(t.TempDir(), "exp01")
	clk := &fakeClock{}
	w, err := Open(path, clk.now, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, path
}

func TestSessionPath(t *testing.T) {
	got := SessionPath("/data/logs", "m42_2026-08-30")
	assert.Equal(t, filepath.Join("/data/logs", "SESSION_m42_2026-08-30.db"), got)
}

func TestAppendAndReadBack(t *testing.T) {
	w, path := newTestWriter(t)

	require.NoError(t, w.Append(SourceScheduler, "session_start", map[string]any{"task": "pse50"}))
	require.NoError(t, w.Append(SourceSensor, "lick", nil))
	require.NoError(t, w.Append(SourceActuator, "assert", map[string]any{"actuator": "Water"}))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.All()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, int64(1), entries[0].Seq)
	assert.Equal(t, SourceScheduler, entries[0].Source)
	assert.Equal(t, "session_start", entries[0].Kind)
	assert.Equal(t, "pse50", entries[0].Payload["task"])

	assert.Equal(t, "lick", entries[1].Kind)
	assert.Nil(t, entries[1].Payload)

	assert.Equal(t, "Water", entries[2].Payload["actuator"])
}

func TestTimestampsNonDecreasingAcrossSources(t *testing.T) {
	w, path := newTestWriter(t)

	var wg sync.WaitGroup
	for _, src := range []Source{SourceScheduler, SourceSensor, SourceActuator} {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				require.NoError(t, w.Append(src, "tick", nil))
			}
		}(src)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.All()
	require.NoError(t, err)
	require.Len(t, entries, 150)

	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Seq+1, entries[i].Seq, "seq gap at %d", i)
		assert.GreaterOrEqual(t, entries[i].TimestampUS, entries[i-1].TimestampUS,
			"timestamp regression at seq %d", entries[i].Seq)
	}
}

func TestBatchFlushOnThreshold(t *testing.T) {
	w, path := newTestWriter(t, WithFlushEvery(4))

	for i := 0; i < 4; i++ {
		require.NoError(t, w.Append(SourceScheduler, "tick", nil))
	}

	// The batch hit the threshold, so it is durable without Close.
	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.All()
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestFlushMakesPendingDurable(t *testing.T) {
	w, path := newTestWriter(t)

	require.NoError(t, w.Append(SourceScheduler, "tick", nil))
	require.NoError(t, w.Flush())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	entries, err := r.All()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestByKind(t *testing.T) {
	w, path := newTestWriter(t)

	require.NoError(t, w.Append(SourceSensor, "lick", nil))
	require.NoError(t, w.Append(SourceScheduler, "node_enter", nil))
	require.NoError(t, w.Append(SourceSensor, "lick", nil))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	licks, err := r.ByKind("lick")
	require.NoError(t, err)
	require.Len(t, licks, 2)
	assert.Equal(t, int64(1), licks[0].Seq)
	assert.Equal(t, int64(3), licks[1].Seq)
}

func TestMetaRoundTrip(t *testing.T) {
	w, path := newTestWriter(t)

	require.NoError(t, w.SetMeta("seed", "42"))
	require.NoError(t, w.SetMeta("seed", "43"))
	require.NoError(t, w.SetMeta("rng", "halton"))
	require.NoError(t, w.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	seed, err := r.Meta("seed")
	require.NoError(t, err)
	assert.Equal(t, "43", seed)

	_, err = r.Meta("absent")
	assert.Error(t, err)
}

func TestAppendAfterCloseFails(t *testing.T) {
	w, _ := newTestWriter(t)
	require.NoError(t, w.Close())

	err := w.Append(SourceScheduler, "tick", nil)
	assert.ErrorContains(t, err, "journal closed")

	// Double close is fine.
	assert.NoError(t, w.Close())
}
