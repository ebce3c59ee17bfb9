package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/incr/internal/harness"
	"github.com/roach88/incr/internal/journal"
	"github.com/roach88/incr/internal/metrics"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	DBPath string
}

// RunResult is what the run command reports.
type RunResult struct {
	RunID    string   `json:"run_id"`
	Scenario string   `json:"scenario"`
	Cycles   int      `json:"cycles"`
	Pass     bool     `json:"pass"`
	Digest   string   `json:"digest"`
	Errors   []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario>",
		Short: "Run one scenario and journal its cycles",
		Long: `Run a scenario file and record every cycle in a SQLite journal.

The run can be inspected afterwards with "incr trace".

Examples:
  incr run ./scenarios/basic_column.yaml --db ./incr.db
  incr run ./scenarios/relation_move.cue --db ./incr.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runScenario(cmd *cobra.Command, opts *RunOptions, path string) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}

	j, err := journal.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("running scenario", "scenario", scenario.Name, "db", opts.DBPath)
	result, err := harness.Run(ctx, scenario,
		harness.WithJournal(j),
		harness.WithLogger(logger),
		harness.WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	if err != nil {
		return WrapExitError(ExitFailure, "scenario aborted", err)
	}

	out := RunResult{
		RunID:    result.RunID,
		Scenario: result.Scenario,
		Cycles:   len(result.Trace),
		Pass:     result.Pass,
		Digest:   result.Digest,
		Errors:   result.Errors,
	}
	status := "ok"
	if !out.Pass {
		status = "error"
	}
	if err := emit(cmd.OutOrStdout(), opts.Format, status, out, func(w io.Writer) {
		mark := "✓"
		if !out.Pass {
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s (%d cycles)\n", mark, out.Scenario, out.Cycles)
		for _, e := range out.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
		fmt.Fprintf(w, "run:    %s\n", out.RunID)
		fmt.Fprintf(w, "digest: %s\n", out.Digest)
	}); err != nil {
		return err
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", out.Scenario))
	}
	return nil
}
