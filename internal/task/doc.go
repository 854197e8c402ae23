// Package task loads and validates the declarative task documents that
// describe one behavioral session.
//
// A document is JSON or YAML with three fields: task_name, task_rng,
// and task_content - a nested tree of [node-type, value] pairs drawn
// from a fixed, closed vocabulary (Timeline, Trials, Sleep, Choice,
// Response, and the six hardware actions). Loading happens in stages:
//
//  1. Grammar gate: the raw document is unified against an embedded CUE
//     schema, so structural errors carry positions before any decoding.
//  2. Decode: the document becomes an immutable typed Node tree - a
//     sealed tagged variant, never dynamic dispatch on type names.
//  3. Validate: numeric invariants (Choice weights sum to 1 within
//     1e-6, durations non-negative, ranges ordered, one Trials stop
//     policy) are enforced with errors naming the offending node path.
//  4. Predicates: Response conditions compile against the fixed sensor
//     environment; a bad expression is a load error, never a runtime
//     surprise.
//
// No partial execution is ever attempted on an invalid tree: Load
// returns either a fully validated Spec or a ConfigurationError.
package task
