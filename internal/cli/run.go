package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/causalrig/pavlov/internal/engine"
	"github.com/causalrig/pavlov/internal/hal"
	"github.com/causalrig/pavlov/internal/journal"
	"github.com/causalrig/pavlov/internal/monitor"
	"github.com/causalrig/pavlov/internal/seq"
	"github.com/causalrig/pavlov/internal/task"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Seed       uint64
	OutDir     string
	Experiment string
	RigPath    string
	DryRun     bool
}

// RunResult summarizes a finished session for command output.
type RunResult struct {
	SessionID string `json:"session_id"`
	Task      string `json:"task"`
	State     string `json:"state"`
	Journal   string `json:"journal"`
}

func (r RunResult) String() string {
	return fmt.Sprintf("session %s (%s) finished %s\njournal: %s", r.SessionID, r.Task, r.State, r.Journal)
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <task-file>",
		Short: "Run a task as one recorded session",
		Long: `Execute a task document against the rig and journal every event.

The first interrupt requests a cooperative abort: the current node
finishes, every actuator line is lowered, and the journal is flushed.
A second interrupt cancels hard.

With --dry-run the session runs on a virtual clock against simulated
hardware, so a full-length protocol can be vetted in milliseconds.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(rootOpts, opts, args[0], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "sequence seed recorded for replay")
	cmd.Flags().StringVar(&opts.OutDir, "out", ".", "directory for the session journal")
	cmd.Flags().StringVar(&opts.Experiment, "experiment", "", "experiment id (default: task name + start time)")
	cmd.Flags().StringVar(&opts.RigPath, "rig", "", "rig config YAML (default: built-in bench wiring)")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "run on a virtual clock with simulated hardware")

	return cmd
}

// foldShutdownError keeps the run error unless shutdown failed on an
// otherwise clean or merely aborted session, in which case the
// shutdown fault wins.
func foldShutdownError(runErr, shutdownErr error) error {
	if shutdownErr == nil {
		return runErr
	}
	if runErr == nil || errors.Is(runErr, engine.ErrAborted) {
		return shutdownErr
	}
	return runErr
}

func runSession(rootOpts *RootOptions, opts *RunOptions, taskPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	spec, err := task.Load(taskPath)
	if err != nil {
		_ = formatter.Error("E_LOAD", err.Error(), nil)
		return WrapExitError(ExitFailure, "load task", err)
	}

	rig := hal.DefaultRigConfig()
	if opts.RigPath != "" {
		rig, err = hal.LoadRigConfig(opts.RigPath)
		if err != nil {
			_ = formatter.Error("E_RIG", err.Error(), nil)
			return WrapExitError(ExitCommandError, "load rig config", err)
		}
	}

	experiment := opts.Experiment
	if experiment == "" {
		experiment = fmt.Sprintf("%s_%s", spec.Name, time.Now().Format("2006-01-02_150405"))
	}

	journalPath := journal.SessionPath(opts.OutDir, experiment)
	if _, err := os.Stat(journalPath); err == nil {
		msg := fmt.Sprintf("journal %s already exists", journalPath)
		_ = formatter.Error("E_EXISTS", msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	var clock engine.Clock
	if opts.DryRun {
		clock = engine.NewSimClock()
	} else {
		clock = engine.NewWallClock()
	}

	w, err := journal.Open(journalPath, clock.NowMicros)
	if err != nil {
		_ = formatter.Error("E_JOURNAL", err.Error(), nil)
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer w.Close()

	// Simulated backends; hardware drivers plug in behind the same
	// interfaces with the pin map from the rig config.
	actuator := hal.NewSimActuator(clock.NowMicros)
	licks := hal.NewSimLickSource()
	encoder := hal.NewSimEncoder()
	var camera hal.Camera = hal.NopCamera{}
	if rig.Camera.FrameRate > 0 {
		camera = hal.NewSimCamera()
	}

	mon := monitor.NewMonitor(w, licks, encoder, camera, clock.NowMicros)

	provider, err := seq.New(spec.RNG, opts.Seed)
	if err != nil {
		_ = formatter.Error("E_RNG", err.Error(), nil)
		return WrapExitError(ExitFailure, "sequence provider", err)
	}

	session, err := engine.NewSession(engine.Config{
		Spec:     spec,
		Seed:     opts.Seed,
		Sequence: provider,
		Actuator: actuator,
		Sensors:  mon,
		Journal:  w,
		Clock:    clock,
	},
		engine.WithWaterVolume(time.Duration(rig.UniversalWaterVolumeS*float64(time.Second))),
	)
	if err != nil {
		_ = formatter.Error("E_SESSION", err.Error(), nil)
		return WrapExitError(ExitCommandError, "build session", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// First interrupt aborts cooperatively, a second cancels hard.
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			formatter.VerboseLog("abort requested, finishing current node")
			session.Abort()
		case <-ctx.Done():
			return
		}
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := mon.Start(ctx); err != nil {
		_ = formatter.Error("E_MONITOR", err.Error(), nil)
		return WrapExitError(ExitCommandError, "start monitor", err)
	}
	if err := mon.StartCamera(ctx); err != nil {
		_ = formatter.Error("E_CAMERA", err.Error(), nil)
		return WrapExitError(ExitCommandError, "start camera", err)
	}

	formatter.VerboseLog("session %s starting: task=%s seed=%d journal=%s",
		session.ID(), spec.Name, opts.Seed, journalPath)

	runErr := session.Run(ctx)

	// Shutdown faults must fail the command: a monitor loop that died
	// mid-session means the journal is missing sensor events.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	runErr = foldShutdownError(runErr, mon.StopCamera(stopCtx))
	runErr = foldShutdownError(runErr, mon.Stop())
	runErr = foldShutdownError(runErr, w.Close())

	result := RunResult{
		SessionID: session.ID(),
		Task:      spec.Name,
		State:     string(session.State()),
		Journal:   journalPath,
	}

	if runErr != nil && !errors.Is(runErr, engine.ErrAborted) {
		_ = formatter.Error("E_RUN", runErr.Error(), result)
		return WrapExitError(ExitFailure, "session failed", runErr)
	}
	return formatter.Success(result)
}
