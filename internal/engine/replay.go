package engine

import (
	"fmt"

	"github.com/causalrig/pavlov/internal/journal"
)

// ChoiceCheck is the replay result for one recorded selection.
type ChoiceCheck struct {
	Seq      int64
	Draw     float64
	Recorded int
	Derived  int
}

// OK reports whether the recorded branch matches the re-derived one.
func (c ChoiceCheck) OK() bool { return c.Recorded == c.Derived }

// VerifyChoices re-derives every recorded branch selection from its
// journaled draw and weight table and compares it with what the
// session actually took. A mismatch means the journal does not
// describe the session that wrote it, which is the one corruption a
// replay must catch.
func VerifyChoices(entries []journal.Entry) ([]ChoiceCheck, error) {
	var checks []ChoiceCheck
	for _, e := range entries {
		if e.Kind != KindChoice {
			continue
		}

		draw, ok := e.Payload["draw"].(float64)
		if !ok {
			return nil, fmt.Errorf("choice at seq %d: missing draw", e.Seq)
		}
		branchRaw, ok := e.Payload["branch"].(float64)
		if !ok {
			return nil, fmt.Errorf("choice at seq %d: missing branch", e.Seq)
		}
		weightsRaw, ok := e.Payload["weights"].([]any)
		if !ok {
			return nil, fmt.Errorf("choice at seq %d: missing weights", e.Seq)
		}

		weights := make([]float64, len(weightsRaw))
		for i, w := range weightsRaw {
			f, ok := w.(float64)
			if !ok {
				return nil, fmt.Errorf("choice at seq %d: weight %d is %T", e.Seq, i, w)
			}
			weights[i] = f
		}

		checks = append(checks, ChoiceCheck{
			Seq:      e.Seq,
			Draw:     draw,
			Recorded: int(branchRaw),
			Derived:  SelectBranch(draw, weights),
		})
	}
	return checks, nil
}
