package task

import (
	"math"
	"time"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/seq"
)

// Spec is one immutable, validated task specification.
// Loaded once per session; never mutated afterwards.
type Spec struct {
	Name string
	RNG  seq.Kind
	Root Node
}

// Node is a sealed tagged variant over the closed task vocabulary.
// Only the types in this file implement it.
type Node interface {
	node()
	// Kind returns the node-type name as it appears in documents.
	Kind() string
}

// Timeline executes its children strictly in order.
type Timeline struct {
	Children []Node
}

func (*Timeline) node()        {}
func (*Timeline) Kind() string { return "Timeline" }

// StopPolicy bounds a Trials loop. Exactly one field is set.
type StopPolicy struct {
	// TotalDuration stops the loop once the trial phase has run at
	// least this long, checked only at trial boundaries.
	TotalDuration time.Duration
	// TotalCount stops the loop after this many completed trials.
	TotalCount int
}

// ByDuration reports whether the policy is duration-bounded.
func (p StopPolicy) ByDuration() bool { return p.TotalDuration > 0 }

// Trials repeats Body until the stop policy is met.
// A trial in progress is never interrupted mid-way.
type Trials struct {
	Body Node
	Stop StopPolicy
}

func (*Trials) node()        {}
func (*Trials) Kind() string { return "Trials" }

// Sleep is a pure delay.
type Sleep struct {
	Duration Value
}

func (*Sleep) node()        {}
func (*Sleep) Kind() string { return "Sleep" }

// Branch is one weighted alternative of a Choice.
type Branch struct {
	Weight float64
	Node   Node
}

// Choice selects one branch per visit from a sequence draw by walking
// the branch list and taking the first whose cumulative weight exceeds
// the draw. Weights sum to 1 within WeightEpsilon, enforced at load.
type Choice struct {
	Branches []Branch
}

func (*Choice) node()        {}
func (*Choice) Kind() string { return "Choice" }

// Response branches on live sensor state: OnSatisfied if Condition
// holds before Timeout elapses, OnTimeout otherwise.
type Response struct {
	Condition   *Predicate
	Timeout     time.Duration
	OnSatisfied Node
	OnTimeout   Node
}

func (*Response) node()        {}
func (*Response) Kind() string { return "Response" }

// Action is a timed actuator command. NoWater and Blank drive dummy
// relays so probabilistic branches stay symmetric.
type Action struct {
	Actuator hal.ActuatorKind
	Duration Value
}

func (*Action) node()          {}
func (a *Action) Kind() string { return string(a.Actuator) }

// Value is a scalar duration or a [lo, hi] range sampled at run time.
// One sample is drawn per invocation, never re-sampled mid-node.
type Value struct {
	Lo     time.Duration
	Hi     time.Duration
	Ranged bool
}

// ScalarValue builds a fixed duration.
func ScalarValue(d time.Duration) Value {
	return Value{Lo: d, Hi: d}
}

// RangeValue builds a sampled range.
func RangeValue(lo, hi time.Duration) Value {
	return Value{Lo: lo, Hi: hi, Ranged: true}
}

// secondsToDuration converts document seconds to a Duration, rounded
// to microsecond resolution to match the journal's timestamps.
func secondsToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec*1e6)) * time.Microsecond
}

// WeightEpsilon is the tolerance on a Choice's weight sum.
const WeightEpsilon = 1e-6
