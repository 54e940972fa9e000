package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SyncResult is the output of `rollbook sync`.
type SyncResult struct {
	Online    bool `json:"online"`
	Processed int  `json:"processed"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Pending   int  `json:"pending"`
}

func (r SyncResult) Text() string {
	if !r.Online {
		return fmt.Sprintf("Remote unreachable; %d pending action(s) kept\n", r.Pending)
	}
	return fmt.Sprintf("Synced: processed=%d failed=%d skipped=%d pending=%d\n",
		r.Processed, r.Failed, r.Skipped, r.Pending)
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay queued writes if the remote is reachable",
		Long: `Probe the remote once. When it answers, replay the pending-action queue
in order and reload classes and recent sessions.

Exits 1 when actions remain that failed to replay.

Example:
  rollbook sync
  rollbook sync --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, cmd)
		},
	}
	return cmd
}

func runSync(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)
	ctx := cmd.Context()

	a, err := openApp(ctx, opts)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()

	online := a.monitor.Check(ctx)
	syncErr := a.coord.HandleConnectivity(ctx, online)

	res := SyncResult{
		Online:  online,
		Pending: a.coord.Status().Pending,
	}
	if a.drainer.ran {
		res.Processed = a.drainer.result.Processed
		res.Failed = a.drainer.result.Failed
		res.Skipped = a.drainer.result.Skipped
	}
	if syncErr != nil {
		return report(out, WrapExitError(ExitFailure, "sync failed", syncErr))
	}
	if err := out.Success(res); err != nil {
		return err
	}
	if res.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d action(s) failed to replay", res.Failed))
	}
	return nil
}
