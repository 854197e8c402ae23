package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/seq"
)

const pse50JSON = `{
  "task_name": "pse50",
  "task_rng": "halton",
  "task_content": ["Timeline", [
    ["Sleep", 100],
    ["Trials", {"total_duration": 400, "trial_content":
      ["Timeline", [
        ["Sleep", [12, 18]],
        ["Buzzer", 0.1],
        ["Sleep", [1.2, 1.8]],
        ["Choice", [
          [0.5, ["VerticalPuff", 0.2]],
          [0.5, ["Blank", 0.2]]
        ]]
      ]]
    }],
    ["Sleep", 100]
  ]]
}`

func TestParseCanonicalDocument(t *testing.T) {
	spec, err := Parse([]byte(pse50JSON), FormatJSON, "pse50.json")
	require.NoError(t, err)

	assert.Equal(t, "pse50", spec.Name)
	assert.Equal(t, seq.KindHalton, spec.RNG)

	tl, ok := spec.Root.(*Timeline)
	require.True(t, ok, "root should be a Timeline")
	require.Len(t, tl.Children, 3)

	sleep, ok := tl.Children[0].(*Sleep)
	require.True(t, ok)
	assert.Equal(t, 100*time.Second, sleep.Duration.Lo)
	assert.False(t, sleep.Duration.Ranged)

	trials, ok := tl.Children[1].(*Trials)
	require.True(t, ok)
	assert.Equal(t, 400*time.Second, trials.Stop.TotalDuration)
	assert.True(t, trials.Stop.ByDuration())

	body, ok := trials.Body.(*Timeline)
	require.True(t, ok)
	require.Len(t, body.Children, 4)

	ranged, ok := body.Children[0].(*Sleep)
	require.True(t, ok)
	assert.True(t, ranged.Duration.Ranged)
	assert.Equal(t, 12*time.Second, ranged.Duration.Lo)
	assert.Equal(t, 18*time.Second, ranged.Duration.Hi)

	buzzer, ok := body.Children[1].(*Action)
	require.True(t, ok)
	assert.Equal(t, hal.Buzzer, buzzer.Actuator)
	assert.Equal(t, 100*time.Millisecond, buzzer.Duration.Lo)

	choice, ok := body.Children[3].(*Choice)
	require.True(t, ok)
	require.Len(t, choice.Branches, 2)
	assert.Equal(t, 0.5, choice.Branches[0].Weight)
	puff, ok := choice.Branches[0].Node.(*Action)
	require.True(t, ok)
	assert.Equal(t, hal.VerticalPuff, puff.Actuator)
}

func TestParseRejectsBadWeights(t *testing.T) {
	doc := `{
  "task_name": "bad-weights",
  "task_content": ["Choice", [
    [0.6, ["Water", 0.04]],
    [0.5, ["NoWater", 0.04]]
  ]]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "weights sum")
}

func TestParseRejectsUnknownNodeType(t *testing.T) {
	doc := `{
  "task_name": "bad-node",
  "task_content": ["Teleport", 1]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestParseRejectsUnknownRNG(t *testing.T) {
	doc := `{
  "task_name": "bad-rng",
  "task_rng": "mersenne",
  "task_content": ["Sleep", 1]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestParseRejectsNegativeDuration(t *testing.T) {
	doc := `{
  "task_name": "bad-duration",
  "task_content": ["Sleep", -5]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestParseRejectsInvertedRange(t *testing.T) {
	doc := `{
  "task_name": "bad-range",
  "task_content": ["Sleep", [18, 12]]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "lo")
}

func TestParseTrialsRequiresOnePolicy(t *testing.T) {
	both := `{
  "task_name": "both-policies",
  "task_content": ["Trials", {
    "total_duration": 400, "total_trials": 10,
    "trial_content": ["Sleep", 1]
  }]
}`
	_, err := Parse([]byte(both), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")

	neither := `{
  "task_name": "no-policy",
  "task_content": ["Trials", {"trial_content": ["Sleep", 1]}]
}`
	_, err = Parse([]byte(neither), FormatJSON, "bad.json")
	require.Error(t, err)
}

func TestParseCountPolicy(t *testing.T) {
	doc := `{
  "task_name": "counted",
  "task_content": ["Trials", {
    "total_trials": 20,
    "trial_content": ["Water", 0.04]
  }]
}`
	spec, err := Parse([]byte(doc), FormatJSON, "counted.json")
	require.NoError(t, err)

	trials, ok := spec.Root.(*Trials)
	require.True(t, ok)
	assert.Equal(t, 20, trials.Stop.TotalCount)
	assert.False(t, trials.Stop.ByDuration())
}

func TestParseResponseNode(t *testing.T) {
	doc := `{
  "task_name": "active",
  "task_content": ["Response", {
    "condition": "licks > 0",
    "timeout": 2,
    "on_satisfied": ["Water", 0.04],
    "on_timeout": ["NoWater", 0.04]
  }]
}`
	spec, err := Parse([]byte(doc), FormatJSON, "active.json")
	require.NoError(t, err)

	resp, ok := spec.Root.(*Response)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, resp.Timeout)
	assert.Equal(t, "licks > 0", resp.Condition.Source())
}

func TestParseResponseBadCondition(t *testing.T) {
	doc := `{
  "task_name": "bad-cond",
  "task_content": ["Response", {
    "condition": "licks +",
    "timeout": 2,
    "on_satisfied": ["Water", 0.04],
    "on_timeout": ["NoWater", 0.04]
  }]
}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestParseYAMLDocument(t *testing.T) {
	doc := `
task_name: yaml-task
task_rng: default
task_content:
  - Timeline
  - - [Sleep, 5]
    - [Buzzer, 0.1]
`
	spec, err := Parse([]byte(doc), FormatYAML, "task.yaml")
	require.NoError(t, err)
	assert.Equal(t, "yaml-task", spec.Name)
	assert.Equal(t, seq.KindDefault, spec.RNG)

	tl, ok := spec.Root.(*Timeline)
	require.True(t, ok)
	require.Len(t, tl.Children, 2)
}

func TestParseRequiresTaskName(t *testing.T) {
	doc := `{"task_content": ["Sleep", 1]}`
	_, err := Parse([]byte(doc), FormatJSON, "bad.json")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
