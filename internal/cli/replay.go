package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causalrig/pavlov/internal/engine"
	"github.com/causalrig/pavlov/internal/journal"
)

// ReplayResult summarizes a journal verification.
type ReplayResult struct {
	SessionID  string `json:"session_id"`
	Task       string `json:"task"`
	Seed       string `json:"seed"`
	Entries    int    `json:"entries"`
	Choices    int    `json:"choices"`
	Mismatches int    `json:"mismatches"`
}

func (r ReplayResult) String() string {
	if r.Mismatches > 0 {
		return fmt.Sprintf("✗ session %s: %d of %d recorded selections do not match their draws",
			r.SessionID, r.Mismatches, r.Choices)
	}
	return fmt.Sprintf("✓ session %s (%s, seed %s): %d entries, %d selections verified",
		r.SessionID, r.Task, r.Seed, r.Entries, r.Choices)
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-journal>",
		Short: "Verify a recorded session against its own draws",
		Long: `Re-derive every recorded branch selection from the journaled draw
and weight table and compare it with what the session took. Also
checks that sequence numbers are gapless and timestamps never go
backwards.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], cmd)
		},
	}
}

func runReplay(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error("E_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "journal not found", err)
	}

	reader, err := journal.OpenReader(path)
	if err != nil {
		_ = formatter.Error("E_JOURNAL", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer reader.Close()

	result := ReplayResult{}
	for key, dst := range map[string]*string{
		"session_id": &result.SessionID,
		"task":       &result.Task,
		"seed":       &result.Seed,
	} {
		v, err := reader.Meta(key)
		if err != nil {
			_ = formatter.Error("E_META", err.Error(), nil)
			return WrapExitError(ExitFailure, "incomplete session meta", err)
		}
		*dst = v
	}

	entries, err := reader.All()
	if err != nil {
		_ = formatter.Error("E_JOURNAL", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read journal", err)
	}
	result.Entries = len(entries)

	for i := 1; i < len(entries); i++ {
		if entries[i].Seq != entries[i-1].Seq+1 {
			msg := fmt.Sprintf("seq gap between %d and %d", entries[i-1].Seq, entries[i].Seq)
			_ = formatter.Error("E_SEQ_GAP", msg, nil)
			return NewExitError(ExitFailure, msg)
		}
		if entries[i].TimestampUS < entries[i-1].TimestampUS {
			msg := fmt.Sprintf("timestamp regression at seq %d", entries[i].Seq)
			_ = formatter.Error("E_TS_ORDER", msg, nil)
			return NewExitError(ExitFailure, msg)
		}
	}

	checks, err := engine.VerifyChoices(entries)
	if err != nil {
		_ = formatter.Error("E_CHOICE", err.Error(), nil)
		return WrapExitError(ExitFailure, "verify selections", err)
	}
	result.Choices = len(checks)
	for _, c := range checks {
		if !c.OK() {
			result.Mismatches++
			formatter.VerboseLog("seq %d: draw %.6f recorded branch %d, derived %d",
				c.Seq, c.Draw, c.Recorded, c.Derived)
		}
	}

	if result.Mismatches > 0 {
		_ = formatter.Error("E_MISMATCH", result.String(), result)
		return NewExitError(ExitFailure, "replay mismatch")
	}
	return formatter.Success(result)
}
