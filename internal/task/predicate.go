package task

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// DefaultCondition is the predicate used when a Response node names
// none: did the animal lick since the node was entered.
const DefaultCondition = "licks > 0"

// PredicateEnv is the fixed sensor environment a Response condition
// sees. All counters are relative to node entry so predicates like
// "licks > 0" mean "since this response window opened".
type PredicateEnv struct {
	// Licks is the number of licks observed since node entry.
	Licks int64
	// LastLickUS is the monotonic timestamp of the most recent lick in
	// the whole session, 0 if none.
	LastLickUS int64
	// Position is the current encoder tick count.
	Position int64
	// ElapsedUS is microseconds since node entry.
	ElapsedUS int64
}

func (e PredicateEnv) vars() map[string]any {
	return map[string]any{
		"licks":        e.Licks,
		"last_lick_us": e.LastLickUS,
		"position":     e.Position,
		"elapsed_us":   e.ElapsedUS,
	}
}

// Predicate is a Response condition compiled at load time.
// Compilation failures are ConfigurationErrors; evaluation against a
// snapshot cannot fail on type grounds afterwards.
type Predicate struct {
	src  string
	prog *vm.Program
}

// CompilePredicate compiles src against the sensor environment.
// An empty src compiles DefaultCondition.
func CompilePredicate(src string) (*Predicate, error) {
	if src == "" {
		src = DefaultCondition
	}
	prog, err := expr.Compile(src,
		expr.Env(PredicateEnv{}.vars()),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile condition %q: %w", src, err)
	}
	return &Predicate{src: src, prog: prog}, nil
}

// Source returns the original condition text.
func (p *Predicate) Source() string {
	return p.src
}

// Eval runs the predicate against env.
func (p *Predicate) Eval(env PredicateEnv) (bool, error) {
	out, err := expr.Run(p.prog, env.vars())
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", p.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition %q evaluated to %T, want bool", p.src, out)
	}
	return b, nil
}
