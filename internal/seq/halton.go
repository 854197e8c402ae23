package seq

import (
	"math"
	"math/rand/v2"
)

// haltonBase is the radix of the one-dimensional sequence. Base 2 has
// the lowest discrepancy of any single Halton dimension.
const haltonBase = 2

// maxDigits bounds the fractional positions a uint64 index can produce
// in base 2, and therefore in any larger base.
const maxDigits = 64

// Halton is a resumable digitally-shifted Halton sequence over [0, 1).
//
// The value at index i is the radical inverse of i in the base, with a
// seed-derived shift added to each digit position. Digital shifting
// decorrelates sessions with different seeds while preserving the
// sequence's equidistribution. The whole generator is a plain value
// (base, shift table, index); jumping to an arbitrary index is
// O(digits), which is what makes crash resumption cheap.
//
// Seed 0 applies no shift, which is handy in tests because the first
// draws are then the textbook 1/2, 1/4, 3/4, 1/8, ... series.
type Halton struct {
	base  uint64
	index uint64
	shift [maxDigits]uint64
}

// NewHalton creates a base-2 Halton stream shifted by seed.
// The first call to Next returns the value at index 1 (index 0 is the
// degenerate 0.0 point and is skipped).
func NewHalton(seed uint64) *Halton {
	return NewHaltonBase(haltonBase, seed)
}

// NewHaltonBase creates a Halton stream with an explicit base.
// Bases should be prime; a base below 2 falls back to base 2.
func NewHaltonBase(base, seed uint64) *Halton {
	if base < 2 {
		base = haltonBase
	}
	h := &Halton{base: base}
	if seed != 0 {
		rng := rand.New(rand.NewPCG(seed, seed))
		for i := range h.shift {
			h.shift[i] = rng.Uint64N(base)
		}
	}
	return h
}

// Next returns the next draw and advances the index.
func (h *Halton) Next() (float64, error) {
	h.index++
	return h.at(h.index), nil
}

// InRange maps the next draw onto [lo, hi).
func (h *Halton) InRange(lo, hi float64) (float64, error) {
	d, err := h.Next()
	if err != nil {
		return 0, err
	}
	return inRange(d, lo, hi), nil
}

// Index returns the number of draws consumed.
func (h *Halton) Index() uint64 {
	return h.index
}

// Resume repositions the stream; the next draw is draw number index+1
// of a fresh stream with the same seed. Resume(Index()) is a no-op.
func (h *Halton) Resume(index uint64) error {
	h.index = index
	return nil
}

// at computes the digitally-shifted radical inverse of i. Every digit
// position contributes its shift, including positions above the most
// significant digit of i, so the shift stays a bijection on digit
// vectors and seeded streams keep the sequence's equidistribution.
func (h *Halton) at(i uint64) float64 {
	var (
		value float64
		frac  = 1.0 / float64(h.base)
	)
	for pos := 0; pos < maxDigits; pos++ {
		digit := (i%h.base + h.shift[pos]) % h.base
		value += float64(digit) * frac
		frac /= float64(h.base)
		i /= h.base
	}
	// A full run of maximal shifted digits can round up to 1.0.
	if value >= 1 {
		value = math.Nextafter(1, 0)
	}
	return value
}
