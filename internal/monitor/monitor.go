package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/journal"
)

// DefaultEncoderHz is the wheel sampling rate when none is configured.
const DefaultEncoderHz = 100

// Journal entry kinds written by the monitor.
const (
	KindLick        = "lick"
	KindLocomotion  = "locomotion"
	KindCameraStart = "camera_start"
	KindCameraStop  = "camera_stop"
)

// Monitor owns the sensor goroutines for one session.
//
// Lifecycle: NewMonitor, Start, read Snapshot at will, Stop. A journal
// append failure inside either loop cancels the group; the error
// surfaces from Stop and the session must treat it as fatal.
type Monitor struct {
	journal *journal.Writer
	licks   hal.LickSource
	encoder hal.Encoder
	camera  hal.Camera
	now     func() int64

	encoderHz float64

	mu        sync.Mutex
	lickCount int64
	lastLick  int64
	position  int64
	snap      atomic.Pointer[hal.Snapshot]

	g      *errgroup.Group
	cancel context.CancelFunc
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithEncoderHz overrides the wheel sampling rate.
func WithEncoderHz(hz float64) Option {
	return func(m *Monitor) {
		if hz > 0 {
			m.encoderHz = hz
		}
	}
}

// NewMonitor wires the sensor loops to a journal writer. The camera
// may be hal.NopCamera{} on rigs without one. now supplies monotonic
// microseconds and must match the clock the journal stamps with.
func NewMonitor(w *journal.Writer, licks hal.LickSource, enc hal.Encoder, cam hal.Camera, now func() int64, opts ...Option) *Monitor {
	m := &Monitor{
		journal:   w,
		licks:     licks,
		encoder:   enc,
		camera:    cam,
		now:       now,
		encoderHz: DefaultEncoderHz,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap.Store(&hal.Snapshot{})
	return m
}

// Start launches the lick listener and encoder sampler.
// The initial encoder position is read synchronously so the first
// snapshot is grounded before any trial runs.
func (m *Monitor) Start(ctx context.Context) error {
	pos, err := m.encoder.Position()
	if err != nil {
		return fmt.Errorf("read initial wheel position: %w", err)
	}
	m.mu.Lock()
	m.position = pos
	m.mu.Unlock()
	m.publish()

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.g, ctx = errgroup.WithContext(ctx)

	m.g.Go(func() error { return m.lickLoop(ctx) })
	m.g.Go(func() error { return m.encoderLoop(ctx) })
	return nil
}

// Stop shuts the loops down and waits for them.
// Returns the first loop fault, if any. The loops treat their own
// cancellation as a clean exit, so the group error is reserved for
// real faults and Stop keeps reporting one once observed.
func (m *Monitor) Stop() error {
	if m.cancel == nil {
		return nil
	}
	m.cancel()
	return m.g.Wait()
}

// Snapshot returns the most recently published sensor state.
func (m *Monitor) Snapshot() hal.Snapshot {
	return *m.snap.Load()
}

// StartCamera begins video recording and journals the moment, so the
// recorder's frames can be aligned against session time offline.
func (m *Monitor) StartCamera(ctx context.Context) error {
	if err := m.camera.Start(ctx); err != nil {
		return fmt.Errorf("start camera: %w", err)
	}
	return m.journal.Append(journal.SourceSensor, KindCameraStart, nil)
}

// StopCamera ends video recording and journals the moment.
func (m *Monitor) StopCamera(ctx context.Context) error {
	if err := m.camera.Stop(ctx); err != nil {
		return fmt.Errorf("stop camera: %w", err)
	}
	return m.journal.Append(journal.SourceSensor, KindCameraStop, nil)
}

// lickLoop drains the detector channel until cancellation or channel
// close. Every lick is journaled and folded into the snapshot.
func (m *Monitor) lickLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-m.licks.Licks():
			if !ok {
				return nil
			}
			m.mu.Lock()
			m.lickCount++
			m.lastLick = ev.TimestampUS
			m.mu.Unlock()
			m.publish()
			if err := m.journal.Append(journal.SourceSensor, KindLick, map[string]any{
				"ts_us": ev.TimestampUS,
			}); err != nil {
				return err
			}
		}
	}
}

// encoderLoop samples the wheel position at encoderHz and journals
// only actual movement.
func (m *Monitor) encoderLoop(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(m.encoderHz), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		pos, err := m.encoder.Position()
		if err != nil {
			return fmt.Errorf("read wheel position: %w", err)
		}

		m.mu.Lock()
		delta := pos - m.position
		m.position = pos
		m.mu.Unlock()

		if delta == 0 {
			continue
		}
		m.publish()
		if err := m.journal.Append(journal.SourceSensor, KindLocomotion, map[string]any{
			"position": pos,
			"delta":    delta,
		}); err != nil {
			return err
		}
	}
}

// publish swaps in a fresh snapshot built from the current state.
func (m *Monitor) publish() {
	m.mu.Lock()
	snap := &hal.Snapshot{
		LickCount:  m.lickCount,
		LastLickUS: m.lastLick,
		Position:   m.position,
		CapturedUS: m.now(),
	}
	m.mu.Unlock()
	m.snap.Store(snap)
}
