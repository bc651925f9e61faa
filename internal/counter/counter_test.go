package counter

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), FileName))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	if err := s.verifyPragma("journal_mode", "wal"); err != nil {
		t.Error(err)
	}
	if err := s.verifyPragma("user_version", "1"); err != nil {
		t.Error(err)
	}
}

func TestOpen_MigratesVersionZeroDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	// A database from before updated_at existed.
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE counters (key TEXT PRIMARY KEY, value INTEGER NOT NULL)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO counters (key, value) VALUES ('orderNo', 41)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Next(context.Background(), "orderNo", 1, 9999)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), n)
}

func TestNext_StartsAtMinAndIncrements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for want := uint16(1); want <= 3; want++ {
		got, err := s.Next(ctx, "orderNo", 1, 9999)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := s.Next(ctx, "sku.main", 1, 9999)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), got, "keys are independent")
}

func TestNext_WrapsAtMax(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	var got []uint16
	for i := 0; i < 5; i++ {
		n, err := s.Next(ctx, "orderNo", 7, 9)
		require.NoError(t, err)
		got = append(got, n)
	}
	assert.Equal(t, []uint16{7, 8, 9, 7, 8}, got)
}

func TestNext_ClampsIntoNarrowedRange(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := s.Next(ctx, "orderNo", 1, 9999)
		require.NoError(t, err)
	}
	n, err := s.Next(ctx, "orderNo", 100, 200)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), n)
}

func TestNext_InvalidRange(t *testing.T) {
	s := createTestStore(t)
	_, err := s.Next(context.Background(), "orderNo", 10, 1)
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, err = s.Next(context.Background(), "orderNo", 1, 70000)
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestNext_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	ctx := context.Background()

	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.Next(ctx, "orderNo", 1, 9999)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	n, err := s2.Next(ctx, "orderNo", 1, 9999)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), n)
}

func TestPeekAndReset(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, ok, err := s.Peek(ctx, "orderNo")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Next(ctx, "orderNo", 1, 9999)
	require.NoError(t, err)
	v, ok, err := s.Peek(ctx, "orderNo")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, s.Reset(ctx, "orderNo"))
	n, err := s.Next(ctx, "orderNo", 1, 9999)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), n)
}
