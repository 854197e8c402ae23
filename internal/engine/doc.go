// Package engine runs a loaded task tree against a rig.
//
// A Session is the single-writer execution loop: it walks the tree,
// draws from the session's sequence provider, commands actuators, and
// journals every decision. All tree evaluation happens on the Run
// goroutine; sensor state arrives only through immutable snapshots, so
// two sessions with the same task, seed, and sensor trace make
// identical decisions.
//
// Aborts are cooperative. An abort request takes effect at the next
// node boundary; an actuator hold or a sleep in progress runs to
// completion first, and cleanup always deasserts every line.
package engine
