// Package hal defines the hardware abstraction contract between the task
// engine and the rig's drivers.
//
// The engine never touches GPIO directly. It issues actuator commands
// through the Actuator interface and observes sensors through channels
// and polled reads. Real drivers (solenoid relays, the PWM buzzer, the
// lickport comparator, the quadrature encoder, the camera) live outside
// this module and implement these interfaces; the Sim* types in this
// package implement the same contract for tests and dry runs.
//
// CONTRACT:
//
// Actuator commands are serialized by the caller - at most one command
// is in flight at a time. Assert and Deassert must be fast (the hold
// time is the caller's responsibility); a driver that cannot acknowledge
// within the caller's grace window causes a hardware error upstream.
//
// Sensor surfaces never block their producers: the lick channel is
// buffered and drops are the consumer's problem, encoder reads are
// instantaneous register reads.
package hal
