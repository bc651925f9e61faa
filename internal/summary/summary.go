// Package summary maintains the running sales totals of the current session.
//
// The totals are updated incrementally as orders are accepted and
// cancelled, and persisted after every change. Recalculate rebuilds them
// from the active orders and the session's archive; it is the
// reconciliation path after recovery.
package summary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/atomicfile"
	"github.com/roach88/kds/internal/clock"
	"github.com/roach88/kds/internal/domain"
)

// FileName is the summary file inside the data directory.
const FileName = "sales_summary.json"

// Currency is reported alongside amounts.
const Currency = "JPY"

// Summary is the persisted aggregate. Amounts are integer yen.
type Summary struct {
	ConfirmedOrders int   `json:"confirmedOrders"`
	CancelledOrders int   `json:"cancelledOrders"`
	Revenue         int   `json:"revenue"`
	CancelledAmount int   `json:"cancelledAmount"`
	LastUpdated     int64 `json:"lastUpdated"`
}

// Report is the view handed to operators.
type Report struct {
	SessionID       string `json:"sessionId"`
	UpdatedAt       int64  `json:"updatedAt"`
	ConfirmedOrders int    `json:"confirmedOrders"`
	CancelledOrders int    `json:"cancelledOrders"`
	TotalOrders     int    `json:"totalOrders"`
	NetSales        int    `json:"netSales"`
	CancelledAmount int    `json:"cancelledAmount"`
	GrossSales      int    `json:"grossSales"`
	Currency        string `json:"currency"`
}

// Report derives the operator view for sessionID.
func (s Summary) Report(sessionID string) Report {
	return Report{
		SessionID:       sessionID,
		UpdatedAt:       s.LastUpdated,
		ConfirmedOrders: s.ConfirmedOrders,
		CancelledOrders: s.CancelledOrders,
		TotalOrders:     s.ConfirmedOrders + s.CancelledOrders,
		NetSales:        s.Revenue,
		CancelledAmount: s.CancelledAmount,
		GrossSales:      s.Revenue + s.CancelledAmount,
		Currency:        Currency,
	}
}

// ArchiveReader is the part of the archive Recalculate scans.
type ArchiveReader interface {
	ForEach(sessionFilter string, visit func(archive.Record) bool) error
}

// Options configures a Maintainer.
type Options struct {
	Dir     string
	Archive ArchiveReader
	Clock   clock.Clock
	Logger  *slog.Logger
}

// Maintainer owns the in-memory summary and its file.
//
// Maintainer is not safe for concurrent use; the owning store serializes
// calls.
type Maintainer struct {
	path    string
	archive ArchiveReader
	clock   clock.Clock
	logger  *slog.Logger
	sum     Summary
}

// New creates a Maintainer holding an empty summary.
func New(opts Options) *Maintainer {
	m := &Maintainer{
		path:    filepath.Join(opts.Dir, FileName),
		archive: opts.Archive,
		clock:   opts.Clock,
		logger:  opts.Logger,
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Path returns the summary file path.
func (m *Maintainer) Path() string { return m.path }

// Get returns the current summary.
func (m *Maintainer) Get() Summary { return m.sum }

func chargeable(o domain.Order) int {
	return max(o.Total(), 0)
}

// ApplyOrder counts a newly accepted order and persists.
func (m *Maintainer) ApplyOrder(o domain.Order) error {
	m.sum.ConfirmedOrders++
	m.sum.Revenue += chargeable(o)
	m.sum.LastUpdated = m.clock.Now()
	return m.Save()
}

// ApplyCancellation moves a cancelled order from confirmed to cancelled
// and persists.
func (m *Maintainer) ApplyCancellation(o domain.Order) error {
	amount := chargeable(o)
	m.sum.ConfirmedOrders = max(m.sum.ConfirmedOrders-1, 0)
	m.sum.CancelledOrders++
	m.sum.Revenue = max(m.sum.Revenue-amount, 0)
	m.sum.CancelledAmount += amount
	m.sum.LastUpdated = m.clock.Now()
	return m.Save()
}

// Recalculate rebuilds the summary from the active orders in st and the
// archive records of st's session, then persists. An order present in both
// is counted once, from the active set.
func (m *Maintainer) Recalculate(st *domain.State) error {
	var sum Summary
	add := func(o domain.Order) {
		amount := chargeable(o)
		if o.Status == domain.StatusCancelled {
			sum.CancelledOrders++
			sum.CancelledAmount += amount
			return
		}
		sum.ConfirmedOrders++
		sum.Revenue += amount
	}

	active := make(map[string]bool, len(st.Orders))
	for _, o := range st.Orders {
		active[o.OrderNo] = true
		add(o)
	}

	if m.archive != nil && st.Session.SessionID != "" {
		err := m.archive.ForEach(st.Session.SessionID, func(rec archive.Record) bool {
			if !active[rec.Order.OrderNo] {
				add(rec.Order)
			}
			return true
		})
		if err != nil {
			return fmt.Errorf("recalculate sales summary: %w", err)
		}
	}

	sum.LastUpdated = m.clock.Now()
	m.sum = sum
	m.logger.Info("sales summary recalculated",
		"session_id", st.Session.SessionID,
		"confirmed", sum.ConfirmedOrders,
		"cancelled", sum.CancelledOrders,
		"revenue", sum.Revenue,
	)
	return m.Save()
}

// Reset clears the summary, e.g. when a new session starts, and persists.
func (m *Maintainer) Reset() error {
	m.sum = Summary{LastUpdated: m.clock.Now()}
	return m.Save()
}

// Save writes the summary through the atomic replace helper.
func (m *Maintainer) Save() error {
	data, err := json.Marshal(m.sum)
	if err != nil {
		return fmt.Errorf("encode sales summary: %w", err)
	}
	if err := atomicfile.WriteFile(m.path, data); err != nil {
		return fmt.Errorf("save sales summary: %w", err)
	}
	return nil
}

// Load reads the persisted summary. A missing file yields an empty summary.
// On a parse failure the in-memory summary is left unchanged.
func (m *Maintainer) Load() error {
	if _, err := atomicfile.Restore(m.path); err != nil {
		return fmt.Errorf("load sales summary: %w", err)
	}
	data, err := os.ReadFile(m.path)
	if errors.Is(err, fs.ErrNotExist) {
		m.sum = Summary{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("load sales summary: %w", err)
	}
	var sum Summary
	if err := json.Unmarshal(data, &sum); err != nil {
		return fmt.Errorf("decode sales summary: %w", err)
	}
	m.sum = sum
	return nil
}
