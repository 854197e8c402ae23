package hal

import (
	"context"
	"fmt"
	"sync"
)

// Transition records one actuator state change on a SimActuator.
type Transition struct {
	Kind        ActuatorKind
	On          bool
	TimestampUS int64
}

// SimActuator is an in-memory Actuator for tests and dry runs.
//
// Every Assert/Deassert is recorded with a timestamp from the supplied
// clock function, so tests can check command ordering (e.g. that an
// abort deasserts the puff valve after the assertion that opened it).
//
// Thread-safety: all methods are safe for concurrent use.
type SimActuator struct {
	mu          sync.Mutex
	now         func() int64
	transitions []Transition
	asserted    map[ActuatorKind]bool

	// FailAssert, when set, makes Assert on that kind return an error.
	// Used to exercise the hardware error path.
	FailAssert map[ActuatorKind]error
}

// NewSimActuator creates a SimActuator stamping transitions with now.
// A nil now stamps everything with 0.
func NewSimActuator(now func() int64) *SimActuator {
	if now == nil {
		now = func() int64 { return 0 }
	}
	return &SimActuator{
		now:      now,
		asserted: make(map[ActuatorKind]bool),
	}
}

// Assert records the line going high.
func (a *SimActuator) Assert(ctx context.Context, kind ActuatorKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err, ok := a.FailAssert[kind]; ok {
		return fmt.Errorf("sim assert %s: %w", kind, err)
	}
	a.asserted[kind] = true
	a.transitions = append(a.transitions, Transition{Kind: kind, On: true, TimestampUS: a.now()})
	return nil
}

// Deassert records the line going low. Deasserting an already-low line
// is recorded too: cleanup passes deassert everything unconditionally.
func (a *SimActuator) Deassert(ctx context.Context, kind ActuatorKind) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.asserted[kind] = false
	a.transitions = append(a.transitions, Transition{Kind: kind, On: false, TimestampUS: a.now()})
	return nil
}

// Asserted reports whether kind is currently high.
func (a *SimActuator) Asserted(kind ActuatorKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.asserted[kind]
}

// Transitions returns a copy of all recorded state changes in order.
func (a *SimActuator) Transitions() []Transition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Transition, len(a.transitions))
	copy(out, a.transitions)
	return out
}

// SimLickSource is a LickSource tests drive by hand.
type SimLickSource struct {
	ch        chan LickEvent
	closeOnce sync.Once
}

// NewSimLickSource creates a lick source with a buffered channel.
func NewSimLickSource() *SimLickSource {
	return &SimLickSource{ch: make(chan LickEvent, 64)}
}

// Lick injects one lick event. Drops the event if the buffer is full,
// matching the never-block contract of real detectors.
func (s *SimLickSource) Lick(timestampUS int64) {
	select {
	case s.ch <- LickEvent{TimestampUS: timestampUS}:
	default:
	}
}

// Licks returns the event channel.
func (s *SimLickSource) Licks() <-chan LickEvent { return s.ch }

// Close closes the event channel. Safe to call more than once.
func (s *SimLickSource) Close() error {
	s.closeOnce.Do(func() { close(s.ch) })
	return nil
}

// SimEncoder is an Encoder whose position tests set directly.
type SimEncoder struct {
	mu          sync.Mutex
	pos         int64
	err         error
	failedReads int
}

// NewSimEncoder creates an encoder at position 0.
func NewSimEncoder() *SimEncoder { return &SimEncoder{} }

// Set moves the encoder to pos.
func (e *SimEncoder) Set(pos int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pos = pos
}

// SetError makes subsequent Position calls fail with err.
func (e *SimEncoder) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Position returns the current tick count.
func (e *SimEncoder) Position() (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		e.failedReads++
	}
	return e.pos, e.err
}

// FailedReads reports how many Position calls returned the injected
// error. Tests use it to wait until a reader has observed the fault.
func (e *SimEncoder) FailedReads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failedReads
}

// SimCamera records Start/Stop calls.
type SimCamera struct {
	mu        sync.Mutex
	recording bool
	starts    int
	stops     int
}

// NewSimCamera creates a stopped camera.
func NewSimCamera() *SimCamera { return &SimCamera{} }

// Start marks the camera recording.
func (c *SimCamera) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = true
	c.starts++
	return nil
}

// Stop marks the camera stopped.
func (c *SimCamera) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recording = false
	c.stops++
	return nil
}

// Recording reports whether the camera is currently recording.
func (c *SimCamera) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recording
}

// Counts returns how many times Start and Stop were called.
func (c *SimCamera) Counts() (starts, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts, c.stops
}
