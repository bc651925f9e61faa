package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/kds/internal/config"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/store"
)

// loadConfig reads the config file, dotenv file and environment, then
// applies the --data-dir flag.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config, opts.EnvFile)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	return cfg, nil
}

// newLogger writes text logs to the command's stderr. --verbose forces
// debug level.
func newLogger(opts *RootOptions, cfg config.Config, cmd *cobra.Command) *slog.Logger {
	level := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// bootstrapWith seeds a new state with the default catalog and the
// configured numbering range.
func bootstrapWith(cfg config.Config) domain.BootstrapFunc {
	return func(st *domain.State, now int64) error {
		st.Settings.Numbering = domain.Numbering{Min: cfg.Numbering.Min, Max: cfg.Numbering.Max}
		return domain.Bootstrap(st, now)
	}
}

// openStore loads the config and opens the store it names.
func openStore(opts *RootOptions, cmd *cobra.Command) (*store.Store, config.Config, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, cfg, err
	}
	logger := newLogger(opts, cfg, cmd)

	st, err := store.Open(cmd.Context(), store.Options{
		DataDir:          cfg.DataDir,
		Retain:           cfg.WALRetain,
		SnapshotInterval: cfg.SnapshotInterval,
		RotateInterval:   cfg.RotateInterval,
		TickInterval:     cfg.TickInterval,
		Bootstrap:        bootstrapWith(cfg),
		Logger:           logger,
	})
	if err != nil {
		return nil, cfg, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	return st, cfg, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
