package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/wal"
)

const testSession = "2025-09-25-AM"

// recordingWAL captures appended records; err makes every append fail.
type recordingWAL struct {
	records []wal.Record
	err     error
}

func (w *recordingWAL) Append(rec wal.Record) (wal.Record, error) {
	if w.err != nil {
		return rec, w.err
	}
	w.records = append(w.records, rec)
	return rec, nil
}

var errWALDown = errors.New("wal down")

func createTestStore(t *testing.T) (*Store, *recordingWAL) {
	t.Helper()
	w := &recordingWAL{}
	return New(Options{Dir: t.TempDir(), WAL: w}), w
}

func testOrder(no string, qty int) domain.Order {
	return domain.Order{
		OrderNo: no,
		Status:  domain.StatusDone,
		TS:      1758790000,
		Items: []domain.LineItem{
			{SKU: "main_0001", Name: "A", Qty: qty, UnitPriceApplied: 500, Kind: domain.KindMain},
		},
	}
}

func collect(t *testing.T, s *Store, sessionFilter string) []Record {
	t.Helper()
	var recs []Record
	require.NoError(t, s.ForEach(sessionFilter, func(rec Record) bool {
		recs = append(recs, rec)
		return true
	}))
	return recs
}
