package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/clock"
	"github.com/roach88/kds/internal/counter"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/recovery"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/summary"
	"github.com/roach88/kds/internal/wal"
)

// Default housekeeping intervals.
const (
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultRotateInterval   = 30 * time.Minute
	DefaultTickInterval     = time.Second
)

// Counter hands out wrapping sequence numbers per key.
type Counter interface {
	Next(ctx context.Context, key string, min, max int) (uint16, error)
	Reset(ctx context.Context, key string) error
}

// Options configures Open. Only DataDir is required.
type Options struct {
	DataDir string

	// Retain is how many rotated WAL generations are kept.
	Retain int

	SnapshotInterval time.Duration
	RotateInterval   time.Duration
	TickInterval     time.Duration

	Clock clock.Clock
	IDs   wal.IDGenerator

	// Counter defaults to a SQLite counter in DataDir, closed by Close.
	Counter Counter

	// Bootstrap seeds a state when no usable snapshot exists.
	Bootstrap domain.BootstrapFunc

	Logger *slog.Logger
}

// Store serializes all access to the live state and its files.
type Store struct {
	mu sync.Mutex

	dir    string
	clock  clock.Clock
	logger *slog.Logger

	state     *domain.State
	wal       *wal.Log
	snapshots *snapshot.Manager
	archive   *archive.Store
	summary   *summary.Maintainer
	recovery  *recovery.Engine

	counter     Counter
	ownsCounter bool

	snapshotEvery int64
	rotateEvery   int64
	tickInterval  time.Duration

	saveRequested bool
	dirty         bool
	lastSnapshot  int64
	lastRotate    int64
	lastRecovery  recovery.Result
}

// Open creates the data directory if needed, wires the components and
// recovers the state. A recovery failure is returned and leaves nothing
// open.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.DataDir == "" {
		return nil, errors.New("open store: data dir is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{
		dir:          opts.DataDir,
		clock:        opts.Clock,
		logger:       opts.Logger,
		counter:      opts.Counter,
		tickInterval: opts.TickInterval,
	}
	if s.clock == nil {
		s.clock = clock.System{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tickInterval <= 0 {
		s.tickInterval = DefaultTickInterval
	}
	s.snapshotEvery = seconds(opts.SnapshotInterval, DefaultSnapshotInterval)
	s.rotateEvery = seconds(opts.RotateInterval, DefaultRotateInterval)

	if s.counter == nil {
		c, err := counter.Open(filepath.Join(opts.DataDir, counter.FileName))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.counter = c
		s.ownsCounter = true
	}

	bootstrap := opts.Bootstrap
	if bootstrap == nil {
		bootstrap = domain.Bootstrap
	}

	s.wal = wal.New(wal.Options{
		Dir:    opts.DataDir,
		Retain: opts.Retain,
		Clock:  s.clock,
		IDs:    opts.IDs,
		Logger: s.logger,
	})
	s.snapshots = snapshot.New(snapshot.Options{
		Dir:       opts.DataDir,
		Clock:     s.clock,
		Bootstrap: bootstrap,
		Logger:    s.logger,
	})
	s.archive = archive.New(archive.Options{
		Dir:    opts.DataDir,
		WAL:    s.wal,
		Logger: s.logger,
	})
	s.summary = summary.New(summary.Options{
		Dir:     opts.DataDir,
		Archive: s.archive,
		Clock:   s.clock,
		Logger:  s.logger,
	})
	s.recovery = recovery.New(recovery.Options{
		Snapshots: s.snapshots,
		WAL:       s.wal,
		Archive:   s.archive,
		Summary:   s.summary,
		Logger:    s.logger,
	})

	if err := s.summary.Load(); err != nil {
		s.logger.Warn("sales summary unreadable, will be rebuilt", "error", err)
	}

	if _, err := s.RecoverToLatest(); err != nil {
		s.closeCounter()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}

func seconds(d, def time.Duration) int64 {
	if d <= 0 {
		d = def
	}
	return int64(d / time.Second)
}

// Close releases the counter if the store opened it. It does not save a
// snapshot; call SnapshotSave first for a clean shutdown.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCounter()
}

func (s *Store) closeCounter() error {
	if !s.ownsCounter {
		return nil
	}
	s.ownsCounter = false
	if c, ok := s.counter.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// RecoverToLatest rebuilds the state from the newest usable snapshot and
// the WAL. On failure the current state is kept.
func (s *Store) RecoverToLatest() (recovery.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := domain.NewState()
	res, err := s.recovery.Recover(st)
	if err != nil {
		return res, err
	}

	now := s.clock.Now()
	s.state = st
	s.lastRecovery = res
	s.lastSnapshot = now
	s.lastRotate = now
	s.saveRequested = false
	s.dirty = res.Applied > 0

	s.logger.Info("state recovered",
		"snapshot", res.Snapshot.Path,
		"bootstrapped", res.Snapshot.Bootstrapped,
		"wal_files", len(res.Files),
		"applied", res.Applied,
		"skipped", res.Skipped,
		"malformed", res.Malformed,
		"orders", len(st.Orders),
		"session_id", st.Session.SessionID,
	)

	if res.Snapshot.Bootstrapped {
		if err := s.saveLocked(); err != nil {
			s.logger.Warn("initial snapshot failed", "error", err)
		}
	}
	return res, nil
}

// LastRecovery returns the result of the most recent recovery.
func (s *Store) LastRecovery() recovery.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRecovery
}

// View returns a deep copy of the live state.
func (s *Store) View() *domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Session returns the running session.
func (s *Store) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Session
}
