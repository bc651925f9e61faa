package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kds/internal/wal"
)

func TestTick_NothingToDo(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t)

	env.clock.Advance(3600)
	res, err := s.Tick()
	require.NoError(t, err)
	assert.False(t, res.Saved, "clean state is not saved again")
}

func TestTick_RequestedSave(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t)
	_, before, err := s.LatestSnapshotJSON()
	require.NoError(t, err)

	s.RequestSnapshotSave()
	res, err := s.Tick()
	require.NoError(t, err)
	assert.True(t, res.Saved)
	assert.Empty(t, res.Rotated)
	assert.False(t, s.ConsumeSnapshotSaveRequest())

	_, after, err := s.LatestSnapshotJSON()
	require.NoError(t, err)
	assert.NotEqual(t, before, after, "saves alternate slots")
}

func TestTick_PeriodicSave(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t)

	_, err := s.WALAppend(wal.OrderCooked("0001"))
	require.NoError(t, err)

	env.clock.Advance(60)
	res, err := s.Tick()
	require.NoError(t, err)
	assert.False(t, res.Saved, "interval not elapsed")

	env.clock.Advance(int64(DefaultSnapshotInterval / time.Second))
	res, err = s.Tick()
	require.NoError(t, err)
	assert.True(t, res.Saved)
}

func TestTick_RotatesAfterSave(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t)
	createOrder(t, s, mainSingle("main_0001", 1))
	want := s.View()

	env.clock.Advance(int64(DefaultRotateInterval/time.Second) + 1)
	s.RequestSnapshotSave()
	res, err := s.Tick()
	require.NoError(t, err)
	assert.True(t, res.Saved)
	require.NotEmpty(t, res.Rotated)
	assert.Equal(t, env.dir, filepath.Dir(res.Rotated))
	assert.FileExists(t, res.Rotated)
	assert.NoFileExists(t, filepath.Join(env.dir, wal.CurrentName))

	s.RequestSnapshotSave()
	res, err = s.Tick()
	require.NoError(t, err)
	assert.Empty(t, res.Rotated, "rotate interval restarts")

	s = env.reopen(t, s)
	assert.Equal(t, want.Orders, s.View().Orders)
}

func TestRotate_KeepsRetainedGenerations(t *testing.T) {
	env := newTestEnv(t)
	s := env.open(t)

	var rotated []string
	for range 4 {
		createOrder(t, s, mainSingle("main_0001", 1))
		gen, err := s.Rotate()
		require.NoError(t, err)
		rotated = append(rotated, gen)
	}

	for _, gen := range rotated[:2] {
		assert.NoFileExists(t, gen)
	}
	for _, gen := range rotated[2:] {
		assert.FileExists(t, gen)
	}

	want := s.View()
	s = env.reopen(t, s)
	assert.Equal(t, want.Orders, s.View().Orders)
}

func TestRun_StopsOnCancel(t *testing.T) {
	env := newTestEnv(t)
	s, err := Open(context.Background(), Options{
		DataDir:      env.dir,
		Clock:        env.clock,
		IDs:          env.ids,
		Bootstrap:    testBootstrap,
		TickInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	s.RequestSnapshotSave()
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return !s.saveRequested
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
