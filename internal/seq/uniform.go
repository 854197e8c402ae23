package seq

import (
	"math/rand/v2"
)

// Uniform is a seeded PCG stream for task_rng "default".
//
// Draws are independent uniforms, so within-session balance is only
// statistical - use the Halton provider when balanced conditions over
// a short session matter.
type Uniform struct {
	seed  uint64
	index uint64
	rng   *rand.Rand
}

// NewUniform creates a uniform stream from seed.
func NewUniform(seed uint64) *Uniform {
	return &Uniform{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, seed)),
	}
}

// Next returns the next draw in [0, 1).
func (u *Uniform) Next() (float64, error) {
	u.index++
	return u.rng.Float64(), nil
}

// InRange maps the next draw onto [lo, hi).
func (u *Uniform) InRange(lo, hi float64) (float64, error) {
	d, err := u.Next()
	if err != nil {
		return 0, err
	}
	return inRange(d, lo, hi), nil
}

// Index returns the number of draws consumed.
func (u *Uniform) Index() uint64 {
	return u.index
}

// Resume rebuilds the generator from the seed and discards index draws.
// PCG has no cheap jump-ahead, so this is O(index); resumption happens
// once per crash recovery, never on the hot path.
func (u *Uniform) Resume(index uint64) error {
	u.rng = rand.New(rand.NewPCG(u.seed, u.seed))
	u.index = 0
	for u.index < index {
		u.index++
		_ = u.rng.Float64()
	}
	return nil
}
