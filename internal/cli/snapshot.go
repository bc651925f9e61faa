package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// SnapshotOutput is the output of the snapshot command.
type SnapshotOutput struct {
	Path     string          `json:"path"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// WriteText prints the snapshot body, indented.
func (s SnapshotOutput) WriteText(w io.Writer) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.Snapshot, "", "  "); err != nil {
		return fmt.Errorf("format snapshot: %w", err)
	}
	if s.Path != "" {
		fmt.Fprintf(w, "# %s\n", s.Path)
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

// NewSnapshotCommand creates the snapshot command.
func NewSnapshotCommand(rootOpts *RootOptions) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the newest snapshot",
		Long: `Print the body of the newest usable snapshot slot.

With --save, the recovered state is written to the next slot first.

Examples:
  kds snapshot --data-dir ./data
  kds snapshot --data-dir ./data --save`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if save {
				if err := st.SnapshotSave(); err != nil {
					return WrapExitError(ExitFailure, "snapshot save failed", err)
				}
			}
			body, path, err := st.LatestSnapshotJSON()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read snapshot", err)
			}
			return newFormatter(rootOpts, cmd).Success(SnapshotOutput{Path: path, Snapshot: body})
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "save a fresh snapshot first")
	return cmd
}
