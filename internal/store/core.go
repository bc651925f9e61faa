package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/summary"
	"github.com/roach88/kds/internal/wal"
)

// SnapshotSave writes the live state to the next snapshot slot now.
func (s *Store) SnapshotSave() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := s.snapshots.Save(s.state); err != nil {
		return err
	}
	s.dirty = false
	s.saveRequested = false
	s.lastSnapshot = s.clock.Now()
	return nil
}

// RequestSnapshotSave marks the state for saving on the next tick.
func (s *Store) RequestSnapshotSave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveRequested = true
}

// ConsumeSnapshotSaveRequest reports whether a save was requested and
// clears the request.
func (s *Store) ConsumeSnapshotSaveRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	requested := s.saveRequested
	s.saveRequested = false
	return requested
}

// WALAppend durably appends rec and returns it with its id and timestamp.
func (s *Store) WALAppend(rec wal.Record) (wal.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(rec)
}

func (s *Store) appendLocked(rec wal.Record) (wal.Record, error) {
	out, err := s.wal.Append(rec)
	if err != nil {
		return out, err
	}
	s.dirty = true
	return out, nil
}

// ArchiveAppend appends a finalized order to the archive.
func (s *Store) ArchiveAppend(o domain.Order, sessionID string, archivedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive.Append(o, sessionID, archivedAt)
}

// ArchiveFindOrder returns the first archive record for orderNo. An empty
// sessionFilter searches all sessions.
func (s *Store) ArchiveFindOrder(sessionFilter, orderNo string) (archive.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive.FindOrder(sessionFilter, orderNo)
}

// ArchiveForEach visits archive records in file order until visit returns
// false. visit runs with the store locked and must not call back into it.
func (s *Store) ArchiveForEach(sessionFilter string, visit func(archive.Record) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive.ForEach(sessionFilter, visit)
}

// ArchiveReplaceOrder rewrites the archive record of o.
func (s *Store) ArchiveReplaceOrder(o domain.Order, sessionID string, archivedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archive.ReplaceOrder(o, sessionID, archivedAt)
}

// ArchiveOrderAndRemove finalizes an active order into the current
// session's archive and logs ORDER_ARCHIVE.
func (s *Store) ArchiveOrderAndRemove(orderNo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.archiveLocked(orderNo)
}

func (s *Store) archiveLocked(orderNo string) error {
	err := s.archive.ArchiveAndRemove(s.state, orderNo, s.state.Session.SessionID, s.clock.Now(), archive.Live)
	if !s.state.HasOrder(orderNo) {
		s.dirty = true
	}
	return err
}

// SalesSummary returns the current session report.
func (s *Store) SalesSummary() summary.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Get().Report(s.state.Session.SessionID)
}

// LoadSalesSummary rereads sales_summary.json.
func (s *Store) LoadSalesSummary() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Load()
}

// SaveSalesSummary writes sales_summary.json.
func (s *Store) SaveSalesSummary() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Save()
}

// RecalculateSalesSummary rebuilds the summary from the active orders and
// the session archive.
func (s *Store) RecalculateSalesSummary() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.Recalculate(s.state)
}

// ApplyOrderToSalesSummary counts a newly accepted order.
func (s *Store) ApplyOrderToSalesSummary(o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.ApplyOrder(o)
}

// ApplyCancellationToSalesSummary moves o from confirmed to cancelled.
func (s *Store) ApplyCancellationToSalesSummary(o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary.ApplyCancellation(o)
}

// LatestSnapshotJSON returns the body of the newest usable snapshot slot
// and its path. Before the first save it encodes the live state instead
// and returns an empty path.
func (s *Store) LatestSnapshotJSON() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, path, err := s.snapshots.Latest()
	if err == nil {
		return body, path, nil
	}
	if !errors.Is(err, snapshot.ErrNoUsableSnapshot) {
		return nil, "", err
	}
	body, err = json.Marshal(snapshot.Document{SavedAt: s.clock.Now(), State: *s.state})
	if err != nil {
		return nil, "", fmt.Errorf("latest snapshot: %w", err)
	}
	return body, "", nil
}
