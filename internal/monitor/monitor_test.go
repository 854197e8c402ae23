package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/journal"
)

type fixture struct {
	monitor *Monitor
	licks   *hal.SimLickSource
	encoder *hal.SimEncoder
	camera  *hal.SimCamera
	path    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	var us atomic.Int64
	now := func() int64 { return us.Add(100) }

	path := journal.SessionPath(t.TempDir(), "mon")
	w, err := journal.Open(path, now, journal.WithFlushEvery(1))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	licks := hal.NewSimLickSource()
	encoder := hal.NewSimEncoder()
	camera := hal.NewSimCamera()

	return &fixture{
		monitor: NewMonitor(w, licks, encoder, camera, now, WithEncoderHz(2000)),
		licks:   licks,
		encoder: encoder,
		camera:  camera,
		path:    path,
	}
}

func (f *fixture) entries(t *testing.T, kind string) []journal.Entry {
	t.Helper()
	r, err := journal.OpenReader(f.path)
	require.NoError(t, err)
	defer r.Close()
	entries, err := r.ByKind(kind)
	require.NoError(t, err)
	return entries
}

func TestLicksFoldIntoSnapshotAndJournal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.monitor.Start(context.Background()))

	f.licks.Lick(1500)
	f.licks.Lick(2500)

	require.Eventually(t, func() bool {
		return f.monitor.Snapshot().LickCount == 2
	}, time.Second, time.Millisecond)

	snap := f.monitor.Snapshot()
	assert.Equal(t, int64(2500), snap.LastLickUS)

	require.NoError(t, f.monitor.Stop())

	licks := f.entries(t, KindLick)
	require.Len(t, licks, 2)
	assert.Equal(t, float64(1500), licks[0].Payload["ts_us"])
	assert.Equal(t, float64(2500), licks[1].Payload["ts_us"])
}

func TestWheelMovementJournaledWithDelta(t *testing.T) {
	f := newFixture(t)
	f.encoder.Set(10)
	require.NoError(t, f.monitor.Start(context.Background()))

	// Initial position is read at Start, so this is pure movement.
	assert.Equal(t, int64(10), f.monitor.Snapshot().Position)

	f.encoder.Set(25)
	require.Eventually(t, func() bool {
		return f.monitor.Snapshot().Position == 25
	}, time.Second, time.Millisecond)

	f.encoder.Set(18)
	require.Eventually(t, func() bool {
		return f.monitor.Snapshot().Position == 18
	}, time.Second, time.Millisecond)

	require.NoError(t, f.monitor.Stop())

	moves := f.entries(t, KindLocomotion)
	require.Len(t, moves, 2)
	assert.Equal(t, float64(25), moves[0].Payload["position"])
	assert.Equal(t, float64(15), moves[0].Payload["delta"])
	assert.Equal(t, float64(18), moves[1].Payload["position"])
	assert.Equal(t, float64(-7), moves[1].Payload["delta"])
}

func TestStationaryWheelIsSilent(t *testing.T) {
	f := newFixture(t)
	f.encoder.Set(5)
	require.NoError(t, f.monitor.Start(context.Background()))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.monitor.Stop())

	assert.Empty(t, f.entries(t, KindLocomotion))
}

func TestCameraLifecycleJournaled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.monitor.StartCamera(ctx))
	assert.True(t, f.camera.Recording())

	require.NoError(t, f.monitor.StopCamera(ctx))
	assert.False(t, f.camera.Recording())

	require.Len(t, f.entries(t, KindCameraStart), 1)
	require.Len(t, f.entries(t, KindCameraStop), 1)
}

func TestEncoderFailureSurfacesFromStop(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.monitor.Start(context.Background()))

	f.encoder.SetError(errors.New("bus fault"))

	// Wait for the sampler to hit the fault before shutting down, so
	// Stop reports the fault rather than a clean cancellation.
	require.Eventually(t, func() bool {
		return f.encoder.FailedReads() > 0
	}, time.Second, time.Millisecond)

	err := f.monitor.Stop()
	require.ErrorContains(t, err, "bus fault")
	require.ErrorContains(t, err, "read wheel position")
}

func TestFailedInitialEncoderReadRejectsStart(t *testing.T) {
	f := newFixture(t)
	f.encoder.SetError(errors.New("bus fault"))

	err := f.monitor.Start(context.Background())
	require.ErrorContains(t, err, "initial wheel position")
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.monitor.Stop())
}

func TestLickSourceCloseEndsLoopCleanly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.monitor.Start(context.Background()))

	require.NoError(t, f.licks.Close())
	assert.NoError(t, f.monitor.Stop())
}
