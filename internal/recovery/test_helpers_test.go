package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/summary"
	"github.com/roach88/kds/internal/testutil"
	"github.com/roach88/kds/internal/wal"
)

const (
	testEpoch   = 1758790000
	testSession = "2025-09-25-AM"
)

// fixture wires real components over one temp data dir, the way the store
// facade does.
type fixture struct {
	dir       string
	clock     *testutil.FakeClock
	log       *wal.Log
	snapshots *snapshot.Manager
	archive   *archive.Store
	summary   *summary.Maintainer
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return openFixture(t, t.TempDir())
}

// openFixture builds fresh components over dir, as after a reboot.
func openFixture(t *testing.T, dir string) *fixture {
	t.Helper()
	f := &fixture{dir: dir, clock: testutil.NewFakeClock(testEpoch)}
	f.log = wal.New(wal.Options{Dir: dir, Clock: f.clock, IDs: testutil.NewSequentialIDs("wal")})
	f.snapshots = snapshot.New(snapshot.Options{Dir: dir, Clock: f.clock, Bootstrap: domain.Bootstrap})
	f.archive = archive.New(archive.Options{Dir: dir, WAL: f.log})
	f.summary = summary.New(summary.Options{Dir: dir, Archive: f.archive, Clock: f.clock})
	f.engine = New(Options{Snapshots: f.snapshots, WAL: f.log, Archive: f.archive, Summary: f.summary})
	return f
}

func (f *fixture) append(t *testing.T, rec wal.Record) {
	t.Helper()
	_, err := f.log.Append(rec)
	require.NoError(t, err)
}

// liveState returns a bootstrapped state for testSession, saved as the
// starting snapshot.
func (f *fixture) liveState(t *testing.T) *domain.State {
	t.Helper()
	st := domain.NewState()
	st.Session = domain.Session{SessionID: testSession, StartedAt: testEpoch, NextOrderSeq: 1}
	require.NoError(t, domain.Bootstrap(st, testEpoch))
	require.NoError(t, f.snapshots.Save(st))
	return st
}

func burgerOrder(no string, qty int) domain.Order {
	return domain.Order{
		OrderNo: no,
		Status:  domain.StatusCooking,
		TS:      testEpoch,
		Items: []domain.LineItem{
			{SKU: "main_0001", Name: "Aバーガー", Qty: qty, UnitPriceApplied: 500, PriceMode: domain.PriceModeNormal, Kind: domain.KindMain},
		},
	}
}

func (f *fixture) archived(t *testing.T) []archive.Record {
	t.Helper()
	var recs []archive.Record
	require.NoError(t, f.archive.ForEach("", func(rec archive.Record) bool {
		recs = append(recs, rec)
		return true
	}))
	return recs
}
