// Package journal is the durable, append-only event log for a session.
//
// One SQLite file per session, named after the experiment identifier,
// readable on its own for offline analysis. Every scheduler decision,
// actuator command, and sensor detection becomes one immutable Entry
// with a monotonic microsecond timestamp and an arrival-order seq.
//
// ORDERING:
//
// Entries are stamped under the writer's lock at append time, so seq
// order IS arrival order and timestamps are non-decreasing across the
// whole log - scheduler entries interleave with sensor entries but are
// never reordered relative to them.
//
// DURABILITY:
//
// Appends accumulate in a pending batch flushed to SQLite (WAL mode)
// in a single transaction, either when the batch fills or when the
// caller flushes at a trial boundary. A crash loses at most the last
// unflushed batch and never corrupts prior records. A write fault is
// surfaced to the caller - never swallowed - so the session can run
// its actuator-safe shutdown and report Failed. Biological data is
// irreproducible; losing it silently is the one unforgivable bug.
package journal
