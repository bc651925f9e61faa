package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kds/internal/atomicfile"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the running session as CSV",
		Long: `Write one CSV row per order line: active orders first, then the archived
orders of the running session. The file is UTF-8 with a BOM and CRLF line
ends. --format does not apply.

Examples:
  kds export --data-dir ./data > session.csv
  kds export --data-dir ./data -o session.csv`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if output == "" {
				if _, err := st.ExportCSV(cmd.OutOrStdout()); err != nil {
					return WrapExitError(ExitFailure, "export failed", err)
				}
				return nil
			}

			var orders int
			err = atomicfile.Replace(output, func(w io.Writer) error {
				n, err := st.ExportCSV(w)
				orders = n
				return err
			})
			if err != nil {
				return WrapExitError(ExitFailure, "export failed", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d orders to %s\n", orders, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	return cmd
}
