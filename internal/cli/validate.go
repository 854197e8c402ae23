package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/causalrig/pavlov/internal/task"
)

// ValidationResult holds the outcome of validating one task file.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Task  string `json:"task,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <task-file>",
		Short: "Validate a task document without running it",
		Long: `Check a task document against the schema and structural rules.

Catches unknown node types, bad branch weights, inverted ranges, and
uncompilable response conditions before an animal is on the rig.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); err != nil {
		_ = formatter.Error("E_NOT_FOUND", err.Error(), nil)
		return WrapExitError(ExitCommandError, "task file not found", err)
	}

	spec, err := task.Load(path)
	if err != nil {
		if formatter.Format == "json" {
			_ = formatter.Success(ValidationResult{Valid: false, Error: err.Error()})
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %s\n", err)
		}
		return WrapExitError(ExitFailure, "task validation failed", err)
	}

	formatter.VerboseLog("loaded %s (rng=%s)", spec.Name, spec.RNG)
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Task: spec.Name})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s is valid\n", spec.Name)
	return nil
}
