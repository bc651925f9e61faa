package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/kds/internal/summary"
)

// SummaryOutput is the output of the summary command.
type SummaryOutput struct {
	summary.Report
}

// WriteText prints the report as aligned key/value lines.
func (s SummaryOutput) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Session:    %s\n", s.SessionID)
	fmt.Fprintf(w, "Orders:     %d confirmed, %d cancelled, %d total\n", s.ConfirmedOrders, s.CancelledOrders, s.TotalOrders)
	fmt.Fprintf(w, "Net sales:  %d %s\n", s.NetSales, s.Currency)
	fmt.Fprintf(w, "Cancelled:  %d %s\n", s.CancelledAmount, s.Currency)
	_, err := fmt.Fprintf(w, "Gross:      %d %s\n", s.GrossSales, s.Currency)
	return err
}

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the sales summary of the running session",
		Long: `Show the sales summary of the running session.

Recovery already rebuilds the summary from the active orders and the
session archive; --rebuild does it again and saves the result.

Examples:
  kds summary --data-dir ./data
  kds summary --data-dir ./data --rebuild --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			if rebuild {
				if err := st.RecalculateSalesSummary(); err != nil {
					return WrapExitError(ExitFailure, "failed to rebuild summary", err)
				}
			}
			return newFormatter(rootOpts, cmd).Success(SummaryOutput{st.SalesSummary()})
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "recalculate from orders and archive")
	return cmd
}
