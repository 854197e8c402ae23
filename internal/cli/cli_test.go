package cli

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/causalrig/pavlov/internal/engine"
	"github.com/causalrig/pavlov/internal/journal"
)

const quickTaskJSON = `{
  "task_name": "quick",
  "task_rng": "halton",
  "task_content": ["Timeline", [
    ["Sleep", 0.001],
    ["Trials", {"total_trials": 8, "trial_content":
      ["Timeline", [
        ["Buzzer", 0.001],
        ["Choice", [
          [0.5, ["VerticalPuff", 0.001]],
          [0.5, ["Blank", 0.001]]
        ]]
      ]]
    }]
  ]]
}`

const badTaskJSON = `{
  "task_name": "bad",
  "task_content": ["Timeline", [
    ["Choice", [
      [0.6, ["VerticalPuff", 0.2]],
      [0.5, ["Blank", 0.2]]
    ]]
  ]]
}`

func writeTask(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "task.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// execute runs the CLI with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateAcceptsGoodTask(t *testing.T) {
	path := writeTask(t, quickTaskJSON)
	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick is valid")
}

func TestValidateRejectsBadWeights(t *testing.T) {
	path := writeTask(t, badTaskJSON)
	out, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗")
}

func TestValidateMissingFileIsCommandError(t *testing.T) {
	_, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateJSONFormat(t *testing.T) {
	path := writeTask(t, quickTaskJSON)
	out, err := execute(t, "--format", "json", "validate", path)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestShowPrintsOutline(t *testing.T) {
	path := writeTask(t, quickTaskJSON)
	out, err := execute(t, "show", path)
	require.NoError(t, err)
	assert.Contains(t, out, "quick (rng=halton)")
	assert.Contains(t, out, "Trials total_trials=8")
	assert.Contains(t, out, "50% ->")
}

func TestRejectsUnknownFormat(t *testing.T) {
	path := writeTask(t, quickTaskJSON)
	_, err := execute(t, "--format", "yaml", "validate", path)
	require.ErrorContains(t, err, "invalid format")
}

func TestRunDryRunProducesVerifiableJournal(t *testing.T) {
	taskPath := writeTask(t, quickTaskJSON)
	outDir := t.TempDir()

	out, err := execute(t, "run", taskPath,
		"--dry-run",
		"--seed", "7",
		"--out", outDir,
		"--experiment", "cli01",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "finished completed")

	journalPath := journal.SessionPath(outDir, "cli01")
	require.FileExists(t, journalPath)

	// The journal the run produced passes its own replay check.
	out, err = execute(t, "replay", journalPath)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "8 selections verified")
}

func TestRunRefusesToOverwriteJournal(t *testing.T) {
	taskPath := writeTask(t, quickTaskJSON)
	outDir := t.TempDir()

	_, err := execute(t, "run", taskPath, "--dry-run", "--out", outDir, "--experiment", "dup")
	require.NoError(t, err)

	_, err = execute(t, "run", taskPath, "--dry-run", "--out", outDir, "--experiment", "dup")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// A sensor loop that died mid-session leaves holes in the journal, so
// its shutdown error must fail the run instead of being logged away.
// Only a real run error outranks it.
func TestShutdownErrorFailsCleanRun(t *testing.T) {
	fault := errors.New("read wheel position: bus fault")
	runFailed := errors.New("assert vertical_puff: driver nak")

	assert.NoError(t, foldShutdownError(nil, nil))
	assert.ErrorIs(t, foldShutdownError(nil, fault), fault)
	assert.ErrorIs(t, foldShutdownError(engine.ErrAborted, fault), fault)
	assert.ErrorIs(t, foldShutdownError(engine.ErrAborted, nil), engine.ErrAborted)
	assert.ErrorIs(t, foldShutdownError(runFailed, fault), runFailed)
}

func TestReplayMissingJournalIsCommandError(t *testing.T) {
	_, err := execute(t, "replay", filepath.Join(t.TempDir(), "SESSION_none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

// tamperChoice flips the recorded branch on the first choice entry.
func tamperChoice(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var seq int64
	var payload string
	row := db.QueryRow(`SELECT seq, payload FROM entries WHERE kind = 'choice' ORDER BY seq LIMIT 1`)
	require.NoError(t, row.Scan(&seq, &payload))

	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &m))
	m["branch"] = float64(1) - m["branch"].(float64)
	doctored, err := json.Marshal(m)
	require.NoError(t, err)

	_, err = db.Exec(`UPDATE entries SET payload = ? WHERE seq = ?`, string(doctored), seq)
	require.NoError(t, err)
}

func TestReplayFlagsDoctoredJournal(t *testing.T) {
	taskPath := writeTask(t, quickTaskJSON)
	outDir := t.TempDir()

	_, err := execute(t, "run", taskPath, "--dry-run", "--seed", "3", "--out", outDir, "--experiment", "tamper")
	require.NoError(t, err)

	journalPath := journal.SessionPath(outDir, "tamper")
	tamperChoice(t, journalPath)

	out, err := execute(t, "replay", journalPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E_MISMATCH")
}
