package seq

import (
	"errors"
	"fmt"
)

// Kind selects a draw stream implementation.
// The values match the task document's task_rng field.
type Kind string

const (
	// KindDefault is seeded uniform pseudorandomness.
	KindDefault Kind = "default"
	// KindHalton is a scrambled low-discrepancy sequence.
	KindHalton Kind = "halton"
)

// ErrSequenceExhausted is returned when a replay stream is asked for
// more draws than were recorded. A live provider never exhausts; during
// replay this means the decision path diverged and the session must fail.
var ErrSequenceExhausted = errors.New("sequence exhausted")

// Provider is a deterministic, resumable source of draws in [0, 1).
//
// Implementations are NOT safe for concurrent use: the interpreter is
// the only consumer, and serial consumption is what makes the draw
// index meaningful.
type Provider interface {
	// Next returns the next draw in [0, 1) and advances the stream.
	Next() (float64, error)

	// InRange maps the next draw onto [lo, hi).
	InRange(lo, hi float64) (float64, error)

	// Index returns the number of draws consumed so far.
	Index() uint64

	// Resume repositions the stream so the next draw is draw number
	// index. For a fixed seed, Resume(i) followed by Next yields the
	// same value as the i-th call on a fresh provider.
	Resume(index uint64) error
}

// New constructs the provider named by kind.
// Unknown kinds are an error so bad task_rng values fail at load time.
func New(kind Kind, seed uint64) (Provider, error) {
	switch kind {
	case KindDefault, "":
		return NewUniform(seed), nil
	case KindHalton:
		return NewHalton(seed), nil
	default:
		return nil, fmt.Errorf("unknown sequence kind %q", kind)
	}
}

// inRange maps draw from [0,1) onto [lo,hi). Shared by implementations.
func inRange(draw, lo, hi float64) float64 {
	return lo + draw*(hi-lo)
}
