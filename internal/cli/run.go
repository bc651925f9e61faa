package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Recover the store and run housekeeping",
		Long: `Open the data directory, recover the state from the newest snapshot and
the WAL, then run the housekeeping loop: deferred and periodic snapshot
saves, and WAL rotation after a successful save. A final snapshot is
written on shutdown.

Example:
  kds run --data-dir ./data
  kds run --config kds.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStore(rootOpts, cmd)
		},
	}
}

func runStore(opts *RootOptions, cmd *cobra.Command) error {
	st, cfg, err := openStore(opts, cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing store", "error", closeErr)
		}
	}()
	slog.SetDefault(newLogger(opts, cfg, cmd))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	session := st.Session()
	slog.Info("store ready", "data_dir", cfg.DataDir, "session_id", session.SessionID)
	fmt.Fprintf(cmd.OutOrStdout(), "Store open at %s (session %s).\n", cfg.DataDir, session.SessionID)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := st.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "housekeeping error", err)
	}

	slog.Info("store stopped gracefully")
	return nil
}
