package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Probe connectivity and sync on every reconnect",
		Long: `Run until interrupted. The remote is probed periodically; every time it
becomes reachable the pending-action queue is replayed and classes and
sessions are reloaded.

When metrics.addr is set in the config, Prometheus metrics are served on
/metrics at that address.

Example:
  rollbook watch --config ~/.rollbook/config.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(rootOpts, cmd)
		},
	}
	return cmd
}

func runWatch(opts *RootOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	a, err := openApp(cmd.Context(), opts)
	if err != nil {
		return report(out, err)
	}
	defer a.Close()

	ctx, cancel := signalContext(cmd.Context(), a.logger)
	defer cancel()

	if a.cfg.Metrics.Addr != "" {
		stop, err := serveMetrics(ctx, a)
		if err != nil {
			return report(out, WrapExitError(ExitCommandError, "failed to serve metrics", err))
		}
		defer stop()
	}

	// The listener runs under the monitor's lock; it only signals, and the
	// loop below reads the current status.
	changed := make(chan struct{}, 1)
	unsubscribe := a.monitor.Subscribe(func(bool) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	a.logger.Info("watching connectivity", "probe", a.cfg.ProbeURL(), "interval", a.cfg.Connectivity.Interval)
	fmt.Fprintln(cmd.OutOrStdout(), "Watching connectivity. Press Ctrl-C to stop.")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch stopped")
			return nil
		case <-changed:
			online := a.monitor.Online()
			if err := a.coord.HandleConnectivity(ctx, online); err != nil && ctx.Err() == nil {
				a.logger.Warn("sync after reconnect failed", "error", err)
			}
			out.VerboseLog("online=%t pending=%d", online, a.coord.Status().Pending)
		}
	}
}

// serveMetrics serves the app's registry on cfg.Metrics.Addr until the
// returned stop is called.
func serveMetrics(ctx context.Context, a *app) (stop func(), err error) {
	ln, err := net.Listen("tcp", a.cfg.Metrics.Addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}, nil
}
