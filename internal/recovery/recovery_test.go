package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/summary"
	"github.com/roach88/kds/internal/wal"
)

func TestRecover_CancelAfterCrash(t *testing.T) {
	f := newFixture(t)
	st := f.liveState(t)

	// Accept order 0001, then cancel it; both reach the WAL, no snapshot.
	o := burgerOrder("0001", 2)
	st.PutOrder(o)
	f.append(t, wal.OrderCreate(o))
	require.NoError(t, f.summary.ApplyOrder(o))
	assert.Equal(t, 1, f.summary.Get().ConfirmedOrders)
	assert.Equal(t, 1000, f.summary.Get().Revenue)

	require.NoError(t, st.FindOrder("0001").Cancel("customer left"))
	f.append(t, wal.OrderCancel("0001", "customer left", false))
	require.NoError(t, f.summary.ApplyCancellation(*st.FindOrder("0001")))
	incremental := f.summary.Get()

	// Reboot.
	r := openFixture(t, f.dir)
	recovered := domain.NewState()
	res, err := r.engine.Recover(recovered)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, "wal-0002", res.LastID)
	assert.Equal(t, st, recovered)

	got := r.summary.Get()
	assert.Equal(t, 0, got.ConfirmedOrders)
	assert.Equal(t, 1, got.CancelledOrders)
	assert.Equal(t, 0, got.Revenue)
	assert.Equal(t, 1000, got.CancelledAmount)
	assert.Equal(t, incremental, got)
}

func TestRecover_TwiceConverges(t *testing.T) {
	f := newFixture(t)
	st := f.liveState(t)

	for _, no := range []string{"0001", "0002", "0003"} {
		o := burgerOrder(no, 1)
		st.PutOrder(o)
		f.append(t, wal.OrderCreate(o))
	}
	st.FindOrder("0001").MarkCooked()
	f.append(t, wal.OrderCooked("0001"))
	st.FindOrder("0001").MarkPicked()
	f.append(t, wal.OrderPicked("0001"))
	require.NoError(t, f.archive.ArchiveAndRemove(st, "0001", testSession, testEpoch+60, archive.Live))
	f.append(t, wal.OrderCancel("0002", "mistake", false))

	first := domain.NewState()
	_, err := f.engine.Recover(first)
	require.NoError(t, err)
	firstSummary := f.summary.Get()

	second := domain.NewState()
	_, err = f.engine.Recover(second)
	require.NoError(t, err)

	assert.Equal(t, first, second, "states diverged:\n%s", spew.Sdump(first, second))
	assert.Equal(t, firstSummary, f.summary.Get())
	assert.Len(t, f.archived(t), 1)
	assert.False(t, second.HasOrder("0001"))
	assert.Equal(t, domain.StatusCancelled, second.FindOrder("0002").Status)
}

func TestApply_SameGenerationTwiceEqualsOnce(t *testing.T) {
	f := newFixture(t)
	st := f.liveState(t)

	o1, o2 := burgerOrder("0001", 1), burgerOrder("0002", 3)
	st.PutOrder(o1)
	f.append(t, wal.OrderCreate(o1))
	st.PutOrder(o2)
	f.append(t, wal.OrderCreate(o2))
	st.FindOrder("0002").MarkCooked()
	f.append(t, wal.OrderUpdate(*st.FindOrder("0002")))
	require.NoError(t, f.archive.ArchiveAndRemove(st, "0001", testSession, testEpoch+5, archive.Live))
	patch := wal.SettingsPatch{QRPrint: &domain.QRPrint{Enabled: true, Content: "thanks"}}
	patch.Apply(&st.Settings)
	f.append(t, wal.SettingsUpdate(patch))
	nuggets := domain.MenuItem{SKU: "side_0006", Name: "ナゲット", Category: domain.CategorySide, Active: true, PriceSingle: 400, PriceAsSide: 250}
	_, err := st.UpsertMenuItem(nuggets)
	require.NoError(t, err)
	f.append(t, wal.MenuUpsert(nuggets))

	replay := func(times int) *domain.State {
		out := domain.NewState()
		_, err := f.snapshots.Load(out)
		require.NoError(t, err)
		for i := 0; i < times; i++ {
			_, err := wal.ReadFile(f.log.Path(), func(rec wal.Record, _ int) error {
				_, err := f.engine.Apply(out, rec)
				return err
			})
			require.NoError(t, err)
		}
		return out
	}

	once := replay(1)
	twice := replay(2)
	assert.Equal(t, once, twice, "replay not idempotent:\n%s", spew.Sdump(once, twice))
	assert.Equal(t, st, once)
	assert.Len(t, f.archived(t), 1)
}

func TestRecover_GenerationsBeforeCurrent(t *testing.T) {
	f := newFixture(t)
	f.liveState(t)

	o := burgerOrder("0001", 1)
	f.append(t, wal.OrderCreate(o))
	_, err := f.log.Rotate()
	require.NoError(t, err)
	f.clock.Advance(60)

	o.Items[0].Qty = 4
	f.append(t, wal.OrderCreate(o))
	_, err = f.log.Rotate()
	require.NoError(t, err)
	f.clock.Advance(60)

	f.append(t, wal.OrderCooked("0001"))

	st := domain.NewState()
	res, err := f.engine.Recover(st)
	require.NoError(t, err)

	require.Len(t, res.Files, 3)
	assert.Equal(t, f.log.Path(), res.Files[2])
	got := st.FindOrder("0001")
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Items[0].Qty)
	assert.True(t, got.Cooked)
}

func TestRecover_SkipsWithDiagnostics(t *testing.T) {
	f := newFixture(t)
	f.liveState(t)

	f.append(t, wal.Record{Action: wal.ActionOrderCreate, OrderNo: "0009"})
	f.append(t, wal.OrderCooked("0042"))
	f.append(t, wal.OrderPicked("0042"))

	fh, err := os.OpenFile(f.log.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString(`{"ts":1,"action":"ORDER_CRE`)
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	st := domain.NewState()
	res, err := f.engine.Recover(st)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, res.Malformed)
	require.Len(t, res.Diagnostics, 4)
	assert.Equal(t, wal.ActionOrderCreate, res.Diagnostics[0].Action)
	assert.Equal(t, 1, res.Diagnostics[0].Line)
	assert.Equal(t, wal.CurrentName, res.Diagnostics[0].File)
	assert.Equal(t, 4, res.Diagnostics[3].Line)
	assert.Empty(t, st.Orders)
	assert.Zero(t, res.LastTS)
}

func TestRecover_ArchiveRecordForMissingOrder(t *testing.T) {
	f := newFixture(t)
	f.liveState(t)

	// The snapshot predates the order and its creation record was pruned;
	// only the archive record survives.
	o := burgerOrder("0007", 1)
	f.append(t, wal.OrderArchive(o, testSession, testEpoch+30))

	st := domain.NewState()
	_, err := f.engine.Recover(st)
	require.NoError(t, err)
	_, err = f.engine.Recover(st)
	require.NoError(t, err)

	recs := f.archived(t)
	require.Len(t, recs, 1)
	assert.Equal(t, "0007", recs[0].Order.OrderNo)
	assert.Equal(t, int64(testEpoch+30), recs[0].ArchivedAt)
	assert.Equal(t, 1, f.summary.Get().ConfirmedOrders)
}

func TestRecover_SessionEnd(t *testing.T) {
	f := newFixture(t)
	f.liveState(t)

	f.append(t, wal.OrderCreate(burgerOrder("0001", 1)))
	f.append(t, wal.SessionEnd(domain.Session{SessionID: "2025-09-25-PM", StartedAt: testEpoch + 3600}))
	f.append(t, wal.OrderCreate(burgerOrder("0001", 2)))

	st := domain.NewState()
	_, err := f.engine.Recover(st)
	require.NoError(t, err)

	assert.Equal(t, "2025-09-25-PM", st.Session.SessionID)
	require.Len(t, st.Orders, 1)
	assert.Equal(t, 2, st.Orders[0].Items[0].Qty)
	assert.Len(t, st.Menu, 8)
}

func TestRecover_SnapshotFailureAborts(t *testing.T) {
	dir := t.TempDir()
	log := wal.New(wal.Options{Dir: dir})
	arc := archive.New(archive.Options{Dir: dir, WAL: log})
	e := New(Options{
		Snapshots: snapshot.New(snapshot.Options{Dir: dir}),
		WAL:       log,
		Archive:   arc,
		Summary:   summary.New(summary.Options{Dir: dir, Archive: arc}),
	})

	_, err := e.Recover(domain.NewState())
	assert.ErrorIs(t, err, snapshot.ErrNoUsableSnapshot)
	assert.NoFileExists(t, filepath.Join(dir, summary.FileName))
}

func TestApply_UnknownActionSkipped(t *testing.T) {
	f := newFixture(t)
	out, err := f.engine.Apply(domain.NewState(), wal.Record{Action: "SYSTEM_RESET"})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Contains(t, out.Reason, "SYSTEM_RESET")
}

func TestApply_UpsertInfersCategory(t *testing.T) {
	f := newFixture(t)
	st := domain.NewState()

	out, err := f.engine.Apply(st, wal.Record{Action: wal.ActionSideUpsert, Item: &domain.MenuItem{SKU: "side_0009", Name: "x"}})
	require.NoError(t, err)
	require.True(t, out.Applied)
	assert.Equal(t, domain.CategorySide, st.FindMenuItem("side_0009").Category)
}

func TestApply_UpdateWithUnknownStatusSkipped(t *testing.T) {
	f := newFixture(t)
	st := domain.NewState()
	st.PutOrder(burgerOrder("0001", 1))

	out, err := f.engine.Apply(st, wal.Record{Action: wal.ActionOrderUpdate, OrderNo: "0001", Status: "BOGUS"})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Contains(t, out.Reason, "BOGUS")
	assert.Equal(t, domain.StatusCooking, st.FindOrder("0001").Status)
}
