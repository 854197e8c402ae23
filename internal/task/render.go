package task

import (
	"fmt"
	"strconv"
	"strings"
)

// Render returns a plain-text outline of a task tree for operator
// review before a session starts. One node per line, two-space indent.
func Render(spec *Spec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (rng=%s)\n", spec.Name, spec.RNG)
	renderNode(&b, spec.Root, 0)
	return b.String()
}

func renderNode(b *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)

	switch node := n.(type) {
	case *Timeline:
		fmt.Fprintf(b, "%sTimeline\n", indent)
		for _, child := range node.Children {
			renderNode(b, child, depth+1)
		}

	case *Trials:
		if node.Stop.ByDuration() {
			fmt.Fprintf(b, "%sTrials total_duration=%s\n", indent, formatSeconds(node.Stop.TotalDuration.Seconds()))
		} else {
			fmt.Fprintf(b, "%sTrials total_trials=%d\n", indent, node.Stop.TotalCount)
		}
		renderNode(b, node.Body, depth+1)

	case *Sleep:
		fmt.Fprintf(b, "%sSleep %s\n", indent, formatValue(node.Duration))

	case *Choice:
		fmt.Fprintf(b, "%sChoice\n", indent)
		for _, branch := range node.Branches {
			fmt.Fprintf(b, "%s  %d%% ->\n", indent, int(branch.Weight*100))
			renderNode(b, branch.Node, depth+2)
		}

	case *Response:
		fmt.Fprintf(b, "%sResponse %q timeout=%s\n", indent, node.Condition.Source(), formatSeconds(node.Timeout.Seconds()))
		fmt.Fprintf(b, "%s  satisfied ->\n", indent)
		renderNode(b, node.OnSatisfied, depth+2)
		fmt.Fprintf(b, "%s  timeout ->\n", indent)
		renderNode(b, node.OnTimeout, depth+2)

	case *Action:
		fmt.Fprintf(b, "%s%s %s\n", indent, node.Actuator, formatValue(node.Duration))
	}
}

func formatValue(v Value) string {
	if v.Ranged {
		return formatSeconds(v.Lo.Seconds()) + "~" + formatSeconds(v.Hi.Seconds())
	}
	return formatSeconds(v.Lo.Seconds())
}

func formatSeconds(sec float64) string {
	return strconv.FormatFloat(sec, 'g', -1, 64) + "s"
}
