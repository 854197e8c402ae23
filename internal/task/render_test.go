package task

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"
)

// Golden files regenerate with: go test ./internal/task -update
func TestRenderCanonicalTask(t *testing.T) {
	spec, err := Parse([]byte(pse50JSON), FormatJSON, "pse50.json")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "render_pse50", []byte(Render(spec)))
}

func TestRenderResponseTask(t *testing.T) {
	doc := `{
  "task_name": "acc80active",
  "task_rng": "default",
  "task_content": ["Trials", {
    "total_trials": 3,
    "trial_content": ["Response", {
      "timeout": 2,
      "on_satisfied": ["Water", 0.04],
      "on_timeout": ["NoWater", 0.04]
    }]
  }]
}`
	spec, err := Parse([]byte(doc), FormatJSON, "acc80active.json")
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "render_acc80active", []byte(Render(spec)))
}
