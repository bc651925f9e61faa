package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
)

// utf8BOM precedes the header row.
const utf8BOM = "\xEF\xBB\xBF"

// ExportHeader is the first row of ExportCSV.
var ExportHeader = []string{
	"ts", "sessionId", "orderNo", "lineNo", "sku", "name", "qty",
	"unitPriceApplied", "priceMode", "kind", "lineTotal", "status",
}

// ExportCSV writes one row per line item: active orders first, then the
// archived orders of the running session. It returns the number of orders
// written.
func (s *Store) ExportCSV(w io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return 0, fmt.Errorf("export csv: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(ExportHeader); err != nil {
		return 0, fmt.Errorf("export csv: %w", err)
	}

	sessionID := s.state.Session.SessionID
	orders := 0
	for _, o := range s.state.Orders {
		if err := writeOrderRows(cw, sessionID, o); err != nil {
			return orders, fmt.Errorf("export csv: %w", err)
		}
		orders++
	}

	var writeErr error
	err := s.archive.ForEach(sessionID, func(rec archive.Record) bool {
		if writeErr = writeOrderRows(cw, rec.SessionID, rec.Order); writeErr != nil {
			return false
		}
		orders++
		return true
	})
	if err == nil {
		err = writeErr
	}
	if err != nil {
		return orders, fmt.Errorf("export csv: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return orders, fmt.Errorf("export csv: %w", err)
	}
	return orders, nil
}

func writeOrderRows(cw *csv.Writer, sessionID string, o domain.Order) error {
	for i, it := range o.Items {
		row := []string{
			strconv.FormatInt(o.TS, 10),
			sessionID,
			o.OrderNo,
			strconv.Itoa(i + 1),
			it.SKU,
			it.Name,
			strconv.Itoa(it.Qty),
			strconv.Itoa(it.UnitPriceApplied),
			string(it.PriceMode),
			string(it.Kind),
			strconv.Itoa(it.Subtotal()),
			string(o.Status),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
