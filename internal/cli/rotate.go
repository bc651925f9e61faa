package cli

import (
	"github.com/spf13/cobra"
)

// RotateOutput is the output of the rotate command.
type RotateOutput struct {
	Generation string `json:"generation,omitempty"`
}

func (r RotateOutput) String() string {
	if r.Generation == "" {
		return "WAL is empty; nothing rotated."
	}
	return "Rotated WAL to " + r.Generation
}

// NewRotateCommand creates the rotate command.
func NewRotateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Save a snapshot and rotate the WAL",
		Long: `Save a snapshot, then move wal.log to a new generation and prune old
generations beyond the retention count. Nothing is rotated if the save
fails.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			gen, err := st.Rotate()
			if err != nil {
				return WrapExitError(ExitFailure, "rotate failed", err)
			}
			return newFormatter(rootOpts, cmd).Success(RotateOutput{Generation: gen})
		},
	}
}
