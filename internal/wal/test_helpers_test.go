package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/testutil"
)

const testEpoch = 1758790000

// createTestLog returns a log in a fresh temp dir with a frozen clock and
// sequential ids.
func createTestLog(t *testing.T) (*Log, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(testEpoch)
	l := New(Options{
		Dir:   t.TempDir(),
		Clock: clk,
		IDs:   testutil.NewSequentialIDs("wal"),
	})
	return l, clk
}

func readAll(t *testing.T, path string) ([]Record, ScanStats) {
	t.Helper()
	var recs []Record
	stats, err := ReadFile(path, func(rec Record, _ int) error {
		recs = append(recs, rec)
		return nil
	})
	require.NoError(t, err)
	return recs, stats
}
