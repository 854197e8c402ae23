package hal

import (
	"context"
)

// ActuatorKind identifies an actuator role on the rig.
//
// The set is closed: these are the only hardware actions the task
// vocabulary can name. NoWater and Blank drive dummy relays so that
// reward and puff branches stay acoustically and electrically symmetric.
type ActuatorKind string

const (
	Buzzer         ActuatorKind = "Buzzer"
	VerticalPuff   ActuatorKind = "VerticalPuff"
	HorizontalPuff ActuatorKind = "HorizontalPuff"
	Water          ActuatorKind = "Water"
	NoWater        ActuatorKind = "NoWater"
	Blank          ActuatorKind = "Blank"
)

// ActuatorKinds lists all actuator roles in a fixed order.
// Used by cleanup passes that must deassert everything.
var ActuatorKinds = []ActuatorKind{
	Buzzer, VerticalPuff, HorizontalPuff, Water, NoWater, Blank,
}

// ValidActuatorKind reports whether k names a known actuator role.
func ValidActuatorKind(k ActuatorKind) bool {
	switch k {
	case Buzzer, VerticalPuff, HorizontalPuff, Water, NoWater, Blank:
		return true
	}
	return false
}

// Actuator is the command surface for the rig's output lines.
//
// Assert raises the line and returns once the driver has acknowledged
// the command; Deassert lowers it. Hold duration is the caller's
// responsibility. Both must respect ctx cancellation - a driver that
// ignores it defeats the caller's acknowledgment grace window.
type Actuator interface {
	Assert(ctx context.Context, kind ActuatorKind) error
	Deassert(ctx context.Context, kind ActuatorKind) error
}

// LickEvent is a single lick detection from the lickport comparator.
type LickEvent struct {
	// TimestampUS is microseconds on the session's monotonic clock.
	TimestampUS int64
}

// LickSource delivers lick detections as they happen.
//
// The channel is closed when the source shuts down. Producers must not
// block: implementations buffer and drop rather than stall the
// interrupt path.
type LickSource interface {
	Licks() <-chan LickEvent
	Close() error
}

// Encoder reads the running wheel's quadrature position.
// Position is a signed tick count; direction is the sign of the delta.
type Encoder interface {
	Position() (int64, error)
}

// Camera controls the rig camera's recording lifecycle.
// Start and Stop are idempotent; the recorder's own timestamps are
// aligned offline against the journaled start/stop entries.
type Camera interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Snapshot is the read-only sensor state published to the interpreter.
//
// Snapshots are immutable values: the monitor builds a fresh one per
// update and swaps a pointer, so readers never observe a torn write.
type Snapshot struct {
	// LickCount is the total licks observed since session start.
	LickCount int64
	// LastLickUS is the monotonic timestamp of the most recent lick,
	// or 0 if none has been observed.
	LastLickUS int64
	// Position is the latest encoder tick count.
	Position int64
	// CapturedUS is when this snapshot was published.
	CapturedUS int64
}

// NopCamera is a Camera for rigs without one.
type NopCamera struct{}

func (NopCamera) Start(context.Context) error { return nil }
func (NopCamera) Stop(context.Context) error  { return nil }
