package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/journal"
	"github.com/causalrig/pavlov/internal/task"
)

// exec evaluates one node. Every call is a node boundary: hard
// cancellation and cooperative abort are both observed here and
// nowhere inside a node.
func (s *Session) exec(ctx context.Context, n task.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.aborted() {
		return ErrAborted
	}

	switch n := n.(type) {
	case *task.Timeline:
		for _, child := range n.Children {
			if err := s.exec(ctx, child); err != nil {
				return err
			}
		}
		return nil
	case *task.Trials:
		return s.execTrials(ctx, n)
	case *task.Sleep:
		return s.execSleep(ctx, n)
	case *task.Choice:
		return s.execChoice(ctx, n)
	case *task.Response:
		return s.execResponse(ctx, n)
	case *task.Action:
		return s.execAction(ctx, n)
	default:
		return fmt.Errorf("unknown node kind %q", n.Kind())
	}
}

// execTrials repeats the body until the stop policy is met. The
// policy is checked only between trials, so a trial in progress always
// runs to its end even when the duration budget expires mid-trial.
func (s *Session) execTrials(ctx context.Context, n *task.Trials) error {
	startUS := s.clock.NowMicros()
	trial := 0

	for {
		if s.aborted() {
			return ErrAborted
		}
		if n.Stop.ByDuration() {
			if s.clock.NowMicros()-startUS >= n.Stop.TotalDuration.Microseconds() {
				return nil
			}
		} else if trial >= n.Stop.TotalCount {
			return nil
		}

		if err := s.journal.Append(journal.SourceScheduler, KindTrialStart, map[string]any{
			"trial": trial,
		}); err != nil {
			return err
		}
		if err := s.exec(ctx, n.Body); err != nil {
			return err
		}
		if err := s.journal.Append(journal.SourceScheduler, KindTrialEnd, map[string]any{
			"trial": trial,
		}); err != nil {
			return err
		}
		trial++
	}
}

// execSleep draws the delay once and sleeps it out. Like an actuator
// hold, the realized delay is checked against the timing tolerance.
func (s *Session) execSleep(ctx context.Context, n *task.Sleep) error {
	d, err := s.sampleValue(n.Duration)
	if err != nil {
		return err
	}
	if err := s.journal.Append(journal.SourceScheduler, KindSleep, map[string]any{
		"duration_us": d.Microseconds(),
	}); err != nil {
		return err
	}

	startUS := s.clock.NowMicros()
	if err := s.clock.Sleep(ctx, d); err != nil {
		return err
	}

	actualUS := s.clock.NowMicros() - startUS
	if over := actualUS - d.Microseconds(); over > s.timingTolerance.Microseconds() {
		slog.Warn("sleep overshot",
			"session_id", s.id,
			"planned_us", d.Microseconds(),
			"actual_us", actualUS,
		)
		if err := s.journal.Append(journal.SourceScheduler, KindTimingViolation, map[string]any{
			"planned_us": d.Microseconds(),
			"actual_us":  actualUS,
		}); err != nil {
			return err
		}
	}
	return nil
}

// execChoice selects one branch from a single sequence draw.
// The draw, the selected index, and the weight table are all journaled
// so replay can re-derive the selection without re-running the rig.
func (s *Session) execChoice(ctx context.Context, n *task.Choice) error {
	draw, err := s.sequence.Next()
	if err != nil {
		return fmt.Errorf("draw for choice: %w", err)
	}

	weights := make([]float64, len(n.Branches))
	for i, b := range n.Branches {
		weights[i] = b.Weight
	}
	idx := SelectBranch(draw, weights)

	if err := s.journal.Append(journal.SourceScheduler, KindChoice, map[string]any{
		"draw":    draw,
		"branch":  idx,
		"weights": weights,
	}); err != nil {
		return err
	}
	return s.exec(ctx, n.Branches[idx].Node)
}

// SelectBranch maps a draw in [0, 1) to a branch index by walking the
// cumulative weights. The last branch absorbs any residual from
// floating-point weight sums.
func SelectBranch(draw float64, weights []float64) int {
	cum := 0.0
	for i, w := range weights {
		cum += w
		if draw < cum {
			return i
		}
	}
	return len(weights) - 1
}

// execResponse polls the sensor snapshot until the condition holds or
// the window times out. Lick counts in the predicate environment are
// relative to window entry.
//
// The condition is evaluated once immediately, so a lick that landed
// just before the window opened in the same poll interval still
// counts. At the deadline the condition gets a final look before the
// timeout branch is taken.
func (s *Session) execResponse(ctx context.Context, n *task.Response) error {
	if n.Condition == nil {
		return fmt.Errorf("response node has no compiled condition")
	}

	entry := s.sensors.Snapshot()
	entryUS := s.clock.NowMicros()
	deadlineUS := entryUS + n.Timeout.Microseconds()

	for {
		nowUS := s.clock.NowMicros()
		snap := s.sensors.Snapshot()
		env := task.PredicateEnv{
			Licks:      snap.LickCount - entry.LickCount,
			LastLickUS: snap.LastLickUS,
			Position:   snap.Position,
			ElapsedUS:  nowUS - entryUS,
		}

		ok, err := n.Condition.Eval(env)
		if err != nil {
			return err
		}
		if ok {
			if err := s.journal.Append(journal.SourceScheduler, KindResponse, map[string]any{
				"satisfied":  true,
				"condition":  n.Condition.Source(),
				"elapsed_us": env.ElapsedUS,
				"licks":      env.Licks,
			}); err != nil {
				return err
			}
			return s.exec(ctx, n.OnSatisfied)
		}
		if nowUS >= deadlineUS {
			if err := s.journal.Append(journal.SourceScheduler, KindResponse, map[string]any{
				"satisfied":  false,
				"condition":  n.Condition.Source(),
				"elapsed_us": env.ElapsedUS,
				"licks":      env.Licks,
			}); err != nil {
				return err
			}
			return s.exec(ctx, n.OnTimeout)
		}

		wait := s.pollInterval
		if remaining := time.Duration(deadlineUS-nowUS) * time.Microsecond; remaining < wait {
			wait = remaining
		}
		if err := s.clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// execAction runs the assert, hold, deassert cycle for one actuator.
// The line is deasserted even when the hold is cut short by hard
// cancellation, and the overshoot is checked against the timing
// tolerance afterwards.
func (s *Session) execAction(ctx context.Context, n *task.Action) error {
	hold, err := s.sampleValue(n.Duration)
	if err != nil {
		return err
	}
	if n.Actuator == hal.Water && s.waterVolume > 0 && hold > s.waterVolume {
		slog.Warn("water hold capped at calibrated volume",
			"session_id", s.id,
			"requested_us", hold.Microseconds(),
			"capped_us", s.waterVolume.Microseconds(),
		)
		hold = s.waterVolume
	}

	if err := s.assertWithRetry(ctx, n.Actuator); err != nil {
		return err
	}
	if err := s.journal.Append(journal.SourceActuator, KindAssert, map[string]any{
		"actuator": string(n.Actuator),
		"hold_us":  hold.Microseconds(),
	}); err != nil {
		return err
	}

	startUS := s.clock.NowMicros()
	holdErr := s.clock.Sleep(ctx, hold)

	// Fresh context: the line comes down even if the session context
	// is already cancelled.
	dctx, cancel := context.WithTimeout(context.Background(), s.ackGrace)
	defer cancel()
	if err := s.actuator.Deassert(dctx, n.Actuator); err != nil {
		return &HardwareError{Code: ErrCodeDeassertFailed, Actuator: n.Actuator, Attempts: 1, Err: err}
	}
	if err := s.journal.Append(journal.SourceActuator, KindDeassert, map[string]any{
		"actuator": string(n.Actuator),
	}); err != nil {
		return err
	}

	actualUS := s.clock.NowMicros() - startUS
	if over := actualUS - hold.Microseconds(); over > s.timingTolerance.Microseconds() {
		slog.Warn("actuator hold overshot",
			"session_id", s.id,
			"actuator", string(n.Actuator),
			"planned_us", hold.Microseconds(),
			"actual_us", actualUS,
		)
		if err := s.journal.Append(journal.SourceActuator, KindTimingViolation, map[string]any{
			"actuator":   string(n.Actuator),
			"planned_us": hold.Microseconds(),
			"actual_us":  actualUS,
		}); err != nil {
			return err
		}
	}
	return holdErr
}

// assertWithRetry raises the line, retrying inside one acknowledgment
// grace window before giving up.
func (s *Session) assertWithRetry(ctx context.Context, kind hal.ActuatorKind) error {
	actx, cancel := context.WithTimeout(ctx, s.ackGrace)
	defer cancel()

	var lastErr error
	attempts := 0
	for attempts <= s.assertRetries {
		attempts++
		lastErr = s.actuator.Assert(actx, kind)
		if lastErr == nil {
			return nil
		}
		if actx.Err() != nil {
			break
		}
	}
	return &HardwareError{Code: ErrCodeAssertFailed, Actuator: kind, Attempts: attempts, Err: lastErr}
}

// sampleValue resolves a duration, drawing from the sequence exactly
// once for ranged values. Scalars consume no draw.
func (s *Session) sampleValue(v task.Value) (time.Duration, error) {
	if !v.Ranged {
		return v.Lo, nil
	}
	u, err := s.sequence.Next()
	if err != nil {
		return 0, fmt.Errorf("draw duration sample: %w", err)
	}
	d := v.Lo + time.Duration(u*float64(v.Hi-v.Lo))
	return d.Truncate(time.Microsecond), nil
}
