package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/causalrig/pavlov/internal/task"
)

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <task-file>",
		Short:         "Print a task document as a readable outline",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(rootOpts, args[0], cmd)
		},
	}
}

func runShow(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	spec, err := task.Load(path)
	if err != nil {
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return WrapExitError(ExitFailure, "load task", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(map[string]any{
			"task":    spec.Name,
			"rng":     string(spec.RNG),
			"outline": task.Render(spec),
		})
	}
	fmt.Fprint(formatter.Writer, task.Render(spec))
	return nil
}
