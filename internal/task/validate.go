package task

import (
	"fmt"
	"math"
)

// maxTreeDepth bounds nesting so a pathological document cannot drive
// unbounded recursion. Real tasks nest four or five levels.
const maxTreeDepth = 64

// Validate enforces every numeric and structural invariant on a tree.
// Documents arriving through Parse are already grammar-gated; Validate
// also covers trees constructed programmatically.
func Validate(spec *Spec) error {
	if spec.Root == nil {
		return configErrorf("task_content", "task_content is required")
	}
	return validateNode(spec.Root, "task_content", 0)
}

func validateNode(n Node, path string, depth int) error {
	if depth > maxTreeDepth {
		return configErrorf(path, "tree deeper than %d levels", maxTreeDepth)
	}

	switch node := n.(type) {
	case *Timeline:
		for i, child := range node.Children {
			if err := validateNode(child, fmt.Sprintf("%s/Timeline[%d]", path, i), depth+1); err != nil {
				return err
			}
		}
		return nil

	case *Trials:
		p := path + "/Trials"
		byDuration := node.Stop.TotalDuration > 0
		byCount := node.Stop.TotalCount > 0
		if byDuration == byCount {
			return configErrorf(p, "exactly one of total_duration and total_trials must be set")
		}
		if node.Body == nil {
			return configErrorf(p, "trial_content is required")
		}
		return validateNode(node.Body, p+"/trial_content", depth+1)

	case *Sleep:
		return validateValue(node.Duration, path+"/Sleep")

	case *Choice:
		p := path + "/Choice"
		if len(node.Branches) == 0 {
			return configErrorf(p, "at least one branch is required")
		}
		var sum float64
		for i, b := range node.Branches {
			if b.Weight < 0 {
				return configErrorf(fmt.Sprintf("%s[%d]", p, i), "weight %v is negative", b.Weight)
			}
			sum += b.Weight
			if err := validateNode(b.Node, fmt.Sprintf("%s[%d]", p, i), depth+1); err != nil {
				return err
			}
		}
		if math.Abs(sum-1) > WeightEpsilon {
			return configErrorf(p, "branch weights sum to %v, want 1 within %v", sum, WeightEpsilon)
		}
		return nil

	case *Response:
		p := path + "/Response"
		if node.Timeout < 0 {
			return configErrorf(p, "timeout is negative")
		}
		if node.Condition == nil {
			return configErrorf(p, "condition is required")
		}
		if node.OnSatisfied == nil || node.OnTimeout == nil {
			return configErrorf(p, "on_satisfied and on_timeout are required")
		}
		if err := validateNode(node.OnSatisfied, p+"/on_satisfied", depth+1); err != nil {
			return err
		}
		return validateNode(node.OnTimeout, p+"/on_timeout", depth+1)

	case *Action:
		return validateValue(node.Duration, path+"/"+string(node.Actuator))

	default:
		return configErrorf(path, "unknown node type %T", n)
	}
}

func validateValue(v Value, path string) error {
	if v.Lo < 0 || v.Hi < 0 {
		return configErrorf(path, "duration is negative")
	}
	if v.Ranged && v.Lo > v.Hi {
		return configErrorf(path, "range lo %v exceeds hi %v", v.Lo, v.Hi)
	}
	return nil
}
