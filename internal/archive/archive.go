// Package archive stores finalized orders in an append-only JSON-lines file
// keyed by (sessionId, orderNo).
//
// Uniqueness of the key is enforced by the writer: live finalization appends
// once, replay checks Exists before appending. Whole-file rewrites (a late
// cancellation of an archived order) go through atomicfile.
package archive

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/kds/internal/atomicfile"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/wal"
)

// FileName is the archive file inside the data directory.
const FileName = "orders_archive.jsonl"

const maxLineSize = 1 << 20

// ErrNotArchived is returned by ReplaceOrder when no record has the key.
var ErrNotArchived = errors.New("order not in archive")

// Record is one archived order.
type Record struct {
	SessionID  string       `json:"sessionId"`
	ArchivedAt int64        `json:"archivedAt"`
	Order      domain.Order `json:"order"`
}

// Mode selects how ArchiveAndRemove treats the WAL and duplicates.
type Mode int

const (
	// Live is a first-time finalization: append, then log ORDER_ARCHIVE.
	Live Mode = iota

	// Replay re-applies a logged finalization: no WAL record, and the
	// append is skipped when the key is already archived.
	Replay
)

// WALAppender is the part of the WAL the archive writes to.
type WALAppender interface {
	Append(rec wal.Record) (wal.Record, error)
}

// Options configures a Store.
type Options struct {
	Dir    string
	WAL    WALAppender
	Logger *slog.Logger
}

// Store reads and writes the archive file.
//
// Store is not safe for concurrent use; the owning store serializes calls.
type Store struct {
	path   string
	wal    WALAppender
	logger *slog.Logger
}

// New creates a Store. The file is created on first append.
func New(opts Options) *Store {
	s := &Store{
		path:   filepath.Join(opts.Dir, FileName),
		wal:    opts.WAL,
		logger: opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Path returns the archive file path.
func (s *Store) Path() string { return s.path }

// Repair finishes or rolls back a rewrite interrupted by a crash.
func (s *Store) Repair() error {
	restored, err := atomicfile.Restore(s.path)
	if err != nil {
		return fmt.Errorf("repair archive: %w", err)
	}
	if restored {
		s.logger.Warn("archive restored from backup", "path", s.path)
	}
	return nil
}

// Append adds one record to the end of the file and fsyncs it.
func (s *Store) Append(o domain.Order, sessionID string, archivedAt int64) error {
	line, err := json.Marshal(Record{SessionID: sessionID, ArchivedAt: archivedAt, Order: o})
	if err != nil {
		return fmt.Errorf("encode archive record %s: %w", o.OrderNo, err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(line))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("append archive record %s: %w", o.OrderNo, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync archive: %w", err)
	}
	return f.Close()
}

// ForEach streams records whose session matches sessionFilter (empty
// matches all) in file order. The visitor returns false to stop. Malformed
// lines are logged and skipped. A missing file has no records.
func (s *Store) ForEach(sessionFilter string, visit func(Record) bool) error {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	return scan(f, func(rec Record) bool {
		if sessionFilter != "" && rec.SessionID != sessionFilter {
			return true
		}
		return visit(rec)
	}, s.logger)
}

func scan(r io.Reader, fn func(rec Record) bool, logger *slog.Logger) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil || rec.Order.OrderNo == "" {
			logger.Warn("skipping malformed archive line", "line", lineNo, "error", err)
			continue
		}
		if !fn(rec) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	return nil
}

// FindOrder returns the first record for orderNo within sessionFilter.
func (s *Store) FindOrder(sessionFilter, orderNo string) (Record, bool, error) {
	var (
		found Record
		ok    bool
	)
	err := s.ForEach(sessionFilter, func(rec Record) bool {
		if rec.Order.OrderNo == orderNo {
			found, ok = rec, true
			return false
		}
		return true
	})
	return found, ok, err
}

// Exists reports whether (sessionID, orderNo) is archived.
func (s *Store) Exists(sessionID, orderNo string) (bool, error) {
	_, ok, err := s.FindOrder(sessionID, orderNo)
	return ok, err
}

// ReplaceOrder rewrites the file with the record for (sessionID,
// o.OrderNo) replaced. Every other line, malformed ones included, is copied
// verbatim.
func (s *Store) ReplaceOrder(o domain.Order, sessionID string, archivedAt int64) error {
	src, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("replace archived order %s: %w", o.OrderNo, ErrNotArchived)
	}
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	replacement, err := json.Marshal(Record{SessionID: sessionID, ArchivedAt: archivedAt, Order: o})
	if err != nil {
		return fmt.Errorf("encode archive record %s: %w", o.OrderNo, err)
	}

	replaced := false
	err = atomicfile.Replace(s.path, func(w io.Writer) error {
		scanner := bufio.NewScanner(src)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			out := line
			if !replaced {
				var rec Record
				if json.Unmarshal(line, &rec) == nil && rec.SessionID == sessionID && rec.Order.OrderNo == o.OrderNo {
					out, replaced = replacement, true
				}
			}
			if _, err := w.Write(out); err != nil {
				return err
			}
			if _, err := w.Write([]byte{'\n'}); err != nil {
				return err
			}
		}
		if err := scanner.Err(); err != nil {
			return err
		}
		if !replaced {
			return ErrNotArchived
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace archived order %s: %w", o.OrderNo, err)
	}

	s.logger.Info("archived order replaced", "order_no", o.OrderNo, "session_id", sessionID)
	return nil
}

// ArchiveAndRemove finalizes an active order: it appends the order to the
// archive, removes it from st and, in Live mode, logs ORDER_ARCHIVE.
// A (sessionID, orderNo) already in the archive is never appended twice:
// Replay keeps the existing record, Live replaces it with o.
//
// If the append fails the order stays in st. If the WAL append fails the
// order is already archived and removed; the error is still returned so the
// caller can escalate.
func (s *Store) ArchiveAndRemove(st *domain.State, orderNo, sessionID string, archivedAt int64, mode Mode) error {
	active := st.FindOrder(orderNo)
	if active == nil {
		return fmt.Errorf("archive order %s: %w", orderNo, domain.ErrOrderNotFound)
	}
	o := active.Clone()

	exists, err := s.Exists(sessionID, orderNo)
	if err != nil {
		return fmt.Errorf("archive order %s: %w", orderNo, err)
	}
	switch {
	case !exists:
		err = s.Append(o, sessionID, archivedAt)
	case mode == Live:
		// Archived before a crash that lost the ORDER_ARCHIVE record.
		s.logger.Warn("order already archived, replacing record", "order_no", orderNo, "session_id", sessionID)
		err = s.ReplaceOrder(o, sessionID, archivedAt)
	}
	if err != nil {
		return fmt.Errorf("archive order %s: %w", orderNo, err)
	}

	st.RemoveOrder(orderNo)

	if mode == Live && s.wal != nil {
		rec := wal.OrderArchive(o, sessionID, archivedAt)
		rec.TS = archivedAt
		if _, err := s.wal.Append(rec); err != nil {
			return fmt.Errorf("archive order %s: log: %w", orderNo, err)
		}
	}

	s.logger.Debug("order archived", "order_no", orderNo, "session_id", sessionID, "replay", mode == Replay)
	return nil
}
