package store

import (
	"context"
	"fmt"
	"time"
)

// TickResult reports what one housekeeping pass did.
type TickResult struct {
	Saved   bool
	Rotated string
}

// Tick runs one housekeeping pass. It saves a snapshot when a save was
// requested, or when the state changed and the snapshot interval elapsed.
// The WAL is rotated only right after a successful save, once the rotate
// interval has elapsed, so every rotated generation is covered by a
// snapshot.
func (s *Store) Tick() (TickResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res TickResult
	now := s.clock.Now()

	due := s.saveRequested || (s.dirty && now-s.lastSnapshot >= s.snapshotEvery)
	if !due {
		return res, nil
	}
	requested := s.saveRequested
	if err := s.saveLocked(); err != nil {
		s.saveRequested = requested
		return res, fmt.Errorf("housekeeping: %w", err)
	}
	res.Saved = true

	if now-s.lastRotate < s.rotateEvery {
		return res, nil
	}
	rotated, err := s.wal.Rotate()
	if err != nil {
		return res, fmt.Errorf("housekeeping: %w", err)
	}
	s.lastRotate = now
	res.Rotated = rotated
	return res, nil
}

// Rotate saves a snapshot and then rotates the WAL, regardless of the
// intervals. Nothing is rotated if the save fails.
func (s *Store) Rotate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.saveLocked(); err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	rotated, err := s.wal.Rotate()
	if err != nil {
		return "", fmt.Errorf("rotate: %w", err)
	}
	s.lastRotate = s.clock.Now()
	return rotated, nil
}

// Run drives Tick until ctx is done, then makes a final save if anything
// is pending.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info("housekeeping starting", "tick", s.tickInterval)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("housekeeping stopping: context cancelled")
			if err := s.flush(); err != nil {
				s.logger.Error("final snapshot failed", "error", err)
				return err
			}
			return ctx.Err()

		case <-ticker.C:
			res, err := s.Tick()
			if err != nil {
				// The request flag survives a failed save; the next tick retries.
				s.logger.Error("housekeeping failed", "error", err)
				continue
			}
			if res.Rotated != "" {
				s.logger.Info("wal rotated", "generation", res.Rotated)
			}
		}
	}
}

func (s *Store) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty && !s.saveRequested {
		return nil
	}
	return s.saveLocked()
}
