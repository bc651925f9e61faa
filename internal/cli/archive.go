package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/kds/internal/archive"
)

// ArchiveEntry is one archived order as listed by the archive command.
type ArchiveEntry struct {
	SessionID  string `json:"session_id"`
	OrderNo    string `json:"order_no"`
	Status     string `json:"status"`
	Items      int    `json:"items"`
	Total      int    `json:"total"`
	ArchivedAt int64  `json:"archived_at"`
}

// ArchiveListing is the output of the archive command.
type ArchiveListing struct {
	Session string         `json:"session,omitempty"`
	Orders  []ArchiveEntry `json:"orders"`
}

// WriteText prints one row per archived order.
func (l ArchiveListing) WriteText(w io.Writer) error {
	if len(l.Orders) == 0 {
		_, err := fmt.Fprintln(w, "No archived orders.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tORDER\tSTATUS\tITEMS\tTOTAL\tARCHIVED")
	for _, e := range l.Orders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			e.SessionID, e.OrderNo, e.Status, e.Items, e.Total,
			time.Unix(e.ArchivedAt, 0).Format(time.DateTime))
	}
	return tw.Flush()
}

// NewArchiveCommand creates the archive command.
func NewArchiveCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		session string
		all     bool
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "List archived orders",
		Long: `List finalized orders from orders_archive.jsonl.

By default only the running session is listed.

Examples:
  kds archive --data-dir ./data
  kds archive --data-dir ./data --session 2025-09-25-AM
  kds archive --data-dir ./data --all --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore(rootOpts, cmd)
			if err != nil {
				return err
			}
			defer st.Close()

			filter := session
			switch {
			case all:
				filter = ""
			case filter == "":
				filter = st.Session().SessionID
			}

			listing := ArchiveListing{Session: filter, Orders: []ArchiveEntry{}}
			err = st.ArchiveForEach(filter, func(rec archive.Record) bool {
				listing.Orders = append(listing.Orders, ArchiveEntry{
					SessionID:  rec.SessionID,
					OrderNo:    rec.Order.OrderNo,
					Status:     string(rec.Order.Status),
					Items:      len(rec.Order.Items),
					Total:      rec.Order.Total(),
					ArchivedAt: rec.ArchivedAt,
				})
				return true
			})
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read archive", err)
			}
			return newFormatter(rootOpts, cmd).Success(listing)
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "session id to list (default: running session)")
	cmd.Flags().BoolVar(&all, "all", false, "list every session")
	return cmd
}
