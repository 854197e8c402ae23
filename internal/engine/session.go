package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/journal"
	"github.com/causalrig/pavlov/internal/seq"
	"github.com/causalrig/pavlov/internal/task"
)

// State is the session lifecycle phase.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
	StateFailed    State = "failed"
)

// Journal entry kinds written by the session.
const (
	KindSessionStart    = "session_start"
	KindSessionEnd      = "session_end"
	KindTrialStart      = "trial_start"
	KindTrialEnd        = "trial_end"
	KindSleep           = "sleep"
	KindChoice          = "choice"
	KindResponse        = "response"
	KindAssert          = "assert"
	KindDeassert        = "deassert"
	KindTimingViolation = "timing_violation"
)

// Defaults for the actuator command cycle and response polling.
const (
	DefaultAckGrace        = 50 * time.Millisecond
	DefaultAssertRetries   = 2
	DefaultPollInterval    = 200 * time.Millisecond
	DefaultTimingTolerance = 5 * time.Millisecond
)

// Sensors exposes the latest published sensor snapshot.
// Satisfied by *monitor.Monitor.
type Sensors interface {
	Snapshot() hal.Snapshot
}

// Config carries the wired dependencies for one session.
// All fields are required except Clock, which defaults to a WallClock.
type Config struct {
	Spec     *task.Spec
	Seed     uint64
	Sequence seq.Provider
	Actuator hal.Actuator
	Sensors  Sensors
	Journal  *journal.Writer
	Clock    Clock
}

// Session executes one task tree, once.
//
// Thread-safety model:
//   - Run(): must be called from exactly one goroutine, exactly once
//   - Abort(): safe from any goroutine
//   - State(): safe from any goroutine
//
// All tree evaluation, sequence draws, and actuator commands happen on
// the Run goroutine. That single-writer discipline is what makes a
// session's journal a deterministic function of (task, seed, sensor
// trace).
type Session struct {
	spec     *task.Spec
	seed     uint64
	sequence seq.Provider
	actuator hal.Actuator
	sensors  Sensors
	journal  *journal.Writer
	clock    Clock

	id              string
	ackGrace        time.Duration
	assertRetries   int
	pollInterval    time.Duration
	timingTolerance time.Duration
	waterVolume     time.Duration

	mu    sync.Mutex
	state State

	abort     chan struct{}
	abortOnce sync.Once
}

// Option configures a Session.
type Option func(*Session)

// WithAckGrace sets the per-command acknowledgment window.
func WithAckGrace(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.ackGrace = d
		}
	}
}

// WithAssertRetries sets how many times a failed Assert is retried
// inside the grace window before the session fails.
func WithAssertRetries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.assertRetries = n
		}
	}
}

// WithPollInterval sets the Response condition polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithTimingTolerance sets the hold overshoot that triggers a
// timing_violation entry.
func WithTimingTolerance(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timingTolerance = d
		}
	}
}

// WithWaterVolume caps Water holds at the rig's calibrated volume.
// Zero disables the cap.
func WithWaterVolume(d time.Duration) Option {
	return func(s *Session) { s.waterVolume = d }
}

// WithIDGenerator overrides the session ID source.
func WithIDGenerator(gen IDGenerator) Option {
	return func(s *Session) { s.id = gen.Generate() }
}

// NewSession validates cfg and builds a session in StateIdle.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	switch {
	case cfg.Spec == nil:
		return nil, errors.New("new session: nil task spec")
	case cfg.Sequence == nil:
		return nil, errors.New("new session: nil sequence provider")
	case cfg.Actuator == nil:
		return nil, errors.New("new session: nil actuator")
	case cfg.Sensors == nil:
		return nil, errors.New("new session: nil sensors")
	case cfg.Journal == nil:
		return nil, errors.New("new session: nil journal")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewWallClock()
	}

	s := &Session{
		spec:            cfg.Spec,
		seed:            cfg.Seed,
		sequence:        cfg.Sequence,
		actuator:        cfg.Actuator,
		sensors:         cfg.Sensors,
		journal:         cfg.Journal,
		clock:           clock,
		id:              UUIDv7Generator{}.Generate(),
		ackGrace:        DefaultAckGrace,
		assertRetries:   DefaultAssertRetries,
		pollInterval:    DefaultPollInterval,
		timingTolerance: DefaultTimingTolerance,
		state:           StateIdle,
		abort:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Abort requests a cooperative stop. The request takes effect at the
// next node boundary; a hold or sleep in progress completes first.
// Safe to call from any goroutine, any number of times.
func (s *Session) Abort() {
	s.abortOnce.Do(func() { close(s.abort) })
}

// Run executes the task tree to completion, abort, or failure.
//
// The cleanup pass always runs: every actuator line is deasserted and
// the journal is flushed regardless of how the session ended. Returns
// nil on completion, ErrAborted on operator abort, and the causing
// error on failure.
func (s *Session) Run(ctx context.Context) error {
	if err := s.transition(StateIdle, StateRunning, "run"); err != nil {
		return err
	}

	slog.Info("session starting",
		"session_id", s.id,
		"task", s.spec.Name,
		"rng", string(s.spec.RNG),
		"seed", s.seed,
	)

	if err := s.writeSessionMeta(); err != nil {
		s.setState(StateFailed)
		return err
	}
	if err := s.journal.Append(journal.SourceScheduler, KindSessionStart, map[string]any{
		"session_id": s.id,
		"task":       s.spec.Name,
		"rng":        string(s.spec.RNG),
		"seed":       s.seed,
	}); err != nil {
		s.setState(StateFailed)
		return err
	}

	runErr := s.exec(ctx, s.spec.Root)
	// An abort that lands while the last node is already holding has no
	// remaining boundary to observe it; account for it here.
	if runErr == nil && s.aborted() {
		runErr = ErrAborted
	}
	cleanupErr := s.cleanup()

	final, result := s.resolve(runErr, cleanupErr)
	s.setState(final)

	if err := s.journal.Append(journal.SourceScheduler, KindSessionEnd, map[string]any{
		"session_id": s.id,
		"state":      string(final),
	}); err != nil && result == nil {
		result = err
	}
	if err := s.journal.Flush(); err != nil && result == nil {
		result = err
	}

	slog.Info("session finished",
		"session_id", s.id,
		"state", string(final),
		"elapsed_us", s.clock.NowMicros(),
	)
	return result
}

// resolve maps the run and cleanup outcomes to a final state and the
// error Run should return. Cleanup failure trumps a clean run or an
// abort: a valve that would not close is a hardware failure even if
// the schedule itself went fine.
func (s *Session) resolve(runErr, cleanupErr error) (State, error) {
	switch {
	case runErr == nil && cleanupErr == nil:
		return StateCompleted, nil
	case errors.Is(runErr, ErrAborted) && cleanupErr == nil:
		return StateAborted, ErrAborted
	case cleanupErr != nil && (runErr == nil || errors.Is(runErr, ErrAborted)):
		return StateFailed, cleanupErr
	default:
		return StateFailed, runErr
	}
}

// cleanup deasserts every actuator line unconditionally. Runs under a
// fresh context so a cancelled session context cannot leave a valve
// open.
func (s *Session) cleanup() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.ackGrace*time.Duration(len(hal.ActuatorKinds)+1))
	defer cancel()

	var firstErr error
	for _, kind := range hal.ActuatorKinds {
		if err := s.actuator.Deassert(ctx, kind); err != nil {
			he := &HardwareError{Code: ErrCodeDeassertFailed, Actuator: kind, Attempts: 1, Err: err}
			slog.Error("cleanup deassert failed", "session_id", s.id, "actuator", string(kind), "error", err)
			if firstErr == nil {
				firstErr = he
			}
			continue
		}
		// Cleanup deasserts are journaled like any other so the log
		// replays as the hardware actually moved.
		if err := s.journal.Append(journal.SourceActuator, KindDeassert, map[string]any{
			"actuator": string(kind),
			"cleanup":  true,
		}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// writeSessionMeta records the replay parameters.
func (s *Session) writeSessionMeta() error {
	meta := map[string]string{
		"session_id": s.id,
		"task":       s.spec.Name,
		"rng":        string(s.spec.RNG),
		"seed":       strconv.FormatUint(s.seed, 10),
	}
	for k, v := range meta {
		if err := s.journal.SetMeta(k, v); err != nil {
			return fmt.Errorf("record session meta: %w", err)
		}
	}
	return nil
}

// transition moves from -> to or fails if the session is elsewhere.
func (s *Session) transition(from, to State, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return stateError(op, s.state)
	}
	s.state = to
	return nil
}

func (s *Session) setState(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
}

// aborted reports whether an abort has been requested.
func (s *Session) aborted() bool {
	select {
	case <-s.abort:
		return true
	default:
		return false
	}
}
