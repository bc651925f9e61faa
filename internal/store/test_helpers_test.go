package store

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/testutil"
)

const (
	testEpoch   = 1758790000
	testSession = "2025-09-25-AM"
)

// testBootstrap pins the first session name so files written in tests do
// not depend on the local time zone.
func testBootstrap(st *domain.State, now int64) error {
	if st.Session.SessionID == "" {
		st.Session = domain.Session{SessionID: testSession, StartedAt: now, NextOrderSeq: 1}
	}
	return domain.Bootstrap(st, now)
}

type testEnv struct {
	dir   string
	clock *testutil.FakeClock
	ids   *testutil.SequentialIDs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return &testEnv{
		dir:   t.TempDir(),
		clock: testutil.NewFakeClock(testEpoch),
		ids:   testutil.NewSequentialIDs("wal"),
	}
}

// open opens a store over the env's data dir, closed on cleanup.
func (e *testEnv) open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		DataDir:   e.dir,
		Clock:     e.clock,
		IDs:       e.ids,
		Bootstrap: testBootstrap,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// reopen closes s and opens a fresh store over the same files, as after a
// restart.
func (e *testEnv) reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	require.NoError(t, s.Close())
	return e.open(t)
}

// slotFiles captures both snapshot slots so a test can roll them back to
// simulate a crash before the next save. A missing slot is recorded as nil.
func (e *testEnv) slotFiles(t *testing.T) map[string][]byte {
	t.Helper()
	out := make(map[string][]byte, 2)
	for _, name := range []string{snapshot.SlotA, snapshot.SlotB} {
		data, err := os.ReadFile(filepath.Join(e.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			out[name] = nil
			continue
		}
		require.NoError(t, err)
		out[name] = data
	}
	return out
}

func (e *testEnv) restoreSlots(t *testing.T, slots map[string][]byte) {
	t.Helper()
	for name, data := range slots {
		path := filepath.Join(e.dir, name)
		if data == nil {
			err := os.Remove(path)
			if !errors.Is(err, fs.ErrNotExist) {
				require.NoError(t, err)
			}
			continue
		}
		require.NoError(t, os.WriteFile(path, data, 0o644))
	}
}

func mainSingle(sku string, qty int) domain.LineRequest {
	return domain.LineRequest{Type: domain.LineMainSingle, MainSKU: sku, Qty: qty}
}

func createOrder(t *testing.T, s *Store, reqs ...domain.LineRequest) domain.Order {
	t.Helper()
	o, err := s.CreateOrder(context.Background(), reqs)
	require.NoError(t, err)
	return o
}
