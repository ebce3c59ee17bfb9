package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/incr/internal/canonical"
	"github.com/roach88/incr/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	DBPath string
	RunID  string
}

// TraceCycle is one journaled cycle in command output.
type TraceCycle struct {
	Cycle   int64  `json:"cycle"`
	Total   int    `json:"total"`
	Digest  string `json:"digest"`
	Changes any    `json:"changes"`
}

// TraceResult is what the trace command reports.
type TraceResult struct {
	Run    journal.Run  `json:"run"`
	Cycles []TraceCycle `json:"cycles"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled cycles of a run",
		Long: `Print every cycle a run recorded in the journal.

Without --run the most recent run is shown.

Examples:
  incr trace --db ./incr.db
  incr trace --db ./incr.db --run 01920c4e-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.DBPath, "db", "", "journal database path (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: latest run)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runTrace(cmd *cobra.Command, opts *TraceOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	j, err := journal.Open(opts.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var run journal.Run
	if opts.RunID == "" {
		run, err = j.LatestRun(ctx)
	} else {
		run, err = j.Run(ctx, opts.RunID)
	}
	if errors.Is(err, journal.ErrRunNotFound) {
		return WrapExitError(ExitCommandError, "no such run", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	cycles, err := j.Cycles(ctx, run.ID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read cycles", err)
	}

	out := TraceResult{Run: run, Cycles: make([]TraceCycle, len(cycles))}
	for i, c := range cycles {
		out.Cycles[i] = TraceCycle{
			Cycle:   c.Cycle,
			Total:   c.Total,
			Digest:  c.Digest,
			Changes: canonical.ToAny(c.Changes),
		}
	}

	return emit(cmd.OutOrStdout(), opts.Format, "ok", out, func(w io.Writer) {
		fmt.Fprintf(w, "run %s  scenario=%s  status=%s\n", run.ID, run.Scenario, run.Status)
		for _, c := range cycles {
			data, err := canonical.Marshal(c.Changes)
			if err != nil {
				data = []byte(err.Error())
			}
			fmt.Fprintf(w, "  cycle %d  %d changes  %s\n", c.Cycle, c.Total, data)
		}
	})
}
