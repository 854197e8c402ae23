// Package seq provides the deterministic draw streams that drive every
// randomized quantity in a session: probabilistic branch selection and
// ranged sleep durations.
//
// DETERMINISM:
//
// A provider is a plain value (kind, seed, current index). For a fixed
// seed the draw sequence is a pure function of call order - identical
// across runs and across resumptions from the same index. Nothing here
// touches global generator state.
//
// All randomized quantities in a task tree consume the SAME advancing
// stream. The draw index at any point is fully determined by the
// structural decisions taken so far, which are themselves deterministic
// given the same draws, so a logged draw-index sequence replays a
// session exactly.
//
// WHY LOW-DISCREPANCY:
//
// Behavioral sessions run a few dozen to a few hundred trials, and
// experimenters need realized branch frequencies close to the target
// probabilities WITHIN a session, not merely in the limit. The Halton
// provider's star discrepancy shrinks like log(n)/n versus 1/sqrt(n)
// for independent sampling, so a 0.5/0.5 choice lands near 50:50 after
// tens of draws rather than hundreds.
package seq
