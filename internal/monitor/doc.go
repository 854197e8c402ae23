// Package monitor runs the session's sensor goroutines and publishes
// their readings to the interpreter as immutable snapshots.
//
// One goroutine drains the lick detector channel, one samples the
// wheel encoder at a fixed rate, and both journal what they see. The
// interpreter never touches hardware inputs directly: it reads the
// latest Snapshot through an atomic pointer swap, so a Response node
// polling mid-trial costs no lock and can never observe a torn write.
package monitor
