package seq

// Fixed replays a recorded draw stream.
//
// Used for deterministic replay of a logged session: the journal's draw
// entries are loaded in order and the interpreter re-walks the tree
// consuming them. Requesting a draw past the end of the recording is
// ErrSequenceExhausted - the decision path no longer matches the log
// and continuing would fabricate data.
type Fixed struct {
	draws []float64
	index uint64
}

// NewFixed creates a replay stream over draws.
// The slice is copied so later mutation cannot skew the replay.
func NewFixed(draws []float64) *Fixed {
	cp := make([]float64, len(draws))
	copy(cp, draws)
	return &Fixed{draws: cp}
}

// Next returns the next recorded draw.
func (f *Fixed) Next() (float64, error) {
	if f.index >= uint64(len(f.draws)) {
		return 0, ErrSequenceExhausted
	}
	d := f.draws[f.index]
	f.index++
	return d, nil
}

// InRange maps the next recorded draw onto [lo, hi).
func (f *Fixed) InRange(lo, hi float64) (float64, error) {
	d, err := f.Next()
	if err != nil {
		return 0, err
	}
	return inRange(d, lo, hi), nil
}

// Index returns the number of draws consumed.
func (f *Fixed) Index() uint64 {
	return f.index
}

// Resume repositions the replay cursor.
// Resuming past the end exhausts on the next draw, not here, so a
// fully-consumed recording can still be resumed to its end position.
func (f *Fixed) Resume(index uint64) error {
	f.index = index
	return nil
}

// Remaining returns how many recorded draws are left.
func (f *Fixed) Remaining() int {
	if f.index >= uint64(len(f.draws)) {
		return 0
	}
	return len(f.draws) - int(f.index)
}
