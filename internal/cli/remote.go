package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/rollbook/internal/domain"
	"github.com/roach88/rollbook/internal/remote"
)

// RemoteServeOptions holds flags for the remote serve command.
type RemoteServeOptions struct {
	*RootOptions
	Addr string
}

// NewRemoteCommand creates the remote command and its subcommands.
func NewRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemoteServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run a system of record",
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve an in-memory system of record over HTTP",
		Long: `Serve the remote API backed by memory. State is lost on exit. Useful
for trying rollbook locally and for exercising offline behaviour by
stopping and starting the server.

Example:
  rollbook remote serve --addr 127.0.0.1:8750`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemoteServe(opts, cmd)
		},
	}
	serve.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8750", "listen address")

	cmd.AddCommand(serve)
	return cmd
}

func runRemoteServe(opts *RemoteServeOptions, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return report(out, WrapExitError(ExitCommandError, "failed to listen", err))
	}

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	backend := remote.NewMemory(domain.UUIDv7Generator{}, domain.SystemClock{})
	srv := &http.Server{
		Handler:           remote.NewServer(backend),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	logger.Info("remote serving", "addr", ln.Addr().String())
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s. Press Ctrl-C to stop.\n", ln.Addr())

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return report(out, WrapExitError(ExitFailure, "server error", err))
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return report(out, WrapExitError(ExitFailure, "shutdown failed", err))
	}
	logger.Info("remote stopped gracefully")
	return nil
}
