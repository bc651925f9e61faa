package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Config names an optional YAML file, EnvFile an optional dotenv file.
	Config  string
	EnvFile string

	// DataDir overrides the configured data directory when set.
	DataDir string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the kds CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

// Execute runs the kds command line with args and returns the process exit
// code. A failure is reported in the format the flags asked for.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &RootOptions{}
	cmd := newRootCommand(opts)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	out := &OutputFormatter{Format: opts.Format, Writer: stdout, ErrWriter: stderr, Verbose: opts.Verbose}
	if !slices.Contains(ValidFormats, out.Format) {
		out.Format = "text"
	}
	if ferr := out.Fail(err); ferr != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return GetExitCode(err)
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kds",
		Short: "kds - kitchen display order store",
		Long: `Durable order store for a food-stall kitchen display.

State lives in one data directory: A/B snapshots, a write-ahead log, the
order archive, the sales summary and the number counters.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with KDS_* overrides")
	cmd.PersistentFlags().StringVarP(&opts.DataDir, "data-dir", "d", "", "data directory (overrides config)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewRecoverCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewSummaryCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewRotateCommand(opts))

	return cmd
}
