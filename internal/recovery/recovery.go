package recovery

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/roach88/kds/internal/archive"
	"github.com/roach88/kds/internal/domain"
	"github.com/roach88/kds/internal/snapshot"
	"github.com/roach88/kds/internal/wal"
)

// SnapshotLoader loads the newest usable snapshot into a state.
type SnapshotLoader interface {
	Load(st *domain.State) (snapshot.LoadResult, error)
}

// LogFiles lists WAL files in replay order.
type LogFiles interface {
	Files() ([]string, error)
}

// Archiver is the part of the archive replay needs.
type Archiver interface {
	Repair() error
	Exists(sessionID, orderNo string) (bool, error)
	Append(o domain.Order, sessionID string, archivedAt int64) error
	ArchiveAndRemove(st *domain.State, orderNo, sessionID string, archivedAt int64, mode archive.Mode) error
}

// Recalculator rebuilds derived totals after replay.
type Recalculator interface {
	Recalculate(st *domain.State) error
}

// Diagnostic describes a line or record that was not applied.
type Diagnostic struct {
	File     string     `json:"file"`
	Line     int        `json:"line"`
	Action   wal.Action `json:"action,omitempty"`
	RecordID string     `json:"recordId,omitempty"`
	Reason   string     `json:"reason"`
}

// Result reports what a recovery run did.
type Result struct {
	Snapshot snapshot.LoadResult `json:"-"`
	Files    []string            `json:"files"`

	Applied   int `json:"applied"`
	Skipped   int `json:"skipped"`
	Malformed int `json:"malformed"`

	// LastTS and LastID mark the last applied record. Both are empty when
	// nothing was replayed.
	LastTS int64  `json:"lastTs"`
	LastID string `json:"lastId,omitempty"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Options wires an Engine to its collaborators.
type Options struct {
	Snapshots SnapshotLoader
	WAL       LogFiles
	Archive   Archiver
	Summary   Recalculator
	Logger    *slog.Logger
}

// Engine runs recovery.
type Engine struct {
	snapshots SnapshotLoader
	wal       LogFiles
	archive   Archiver
	summary   Recalculator
	logger    *slog.Logger
}

// New creates an Engine. Summary may be nil.
func New(opts Options) *Engine {
	e := &Engine{
		snapshots: opts.Snapshots,
		wal:       opts.WAL,
		archive:   opts.Archive,
		summary:   opts.Summary,
		logger:    opts.Logger,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Recover replaces st with snapshot + WAL. A snapshot load failure aborts
// before st is touched by replay.
func (e *Engine) Recover(st *domain.State) (Result, error) {
	var res Result

	loaded, err := e.snapshots.Load(st)
	res.Snapshot = loaded
	if err != nil {
		return res, fmt.Errorf("recover: load snapshot: %w", err)
	}

	if err := e.archive.Repair(); err != nil {
		return res, fmt.Errorf("recover: %w", err)
	}

	files, err := e.wal.Files()
	if err != nil {
		return res, fmt.Errorf("recover: list wal files: %w", err)
	}
	res.Files = files

	for _, path := range files {
		name := filepath.Base(path)
		stats, err := wal.ReadFile(path, func(rec wal.Record, line int) error {
			out, err := e.Apply(st, rec)
			if err != nil {
				return fmt.Errorf("%s:%d %s: %w", name, line, rec.Action, err)
			}
			if out.Applied {
				res.Applied++
				res.LastTS, res.LastID = rec.TS, rec.ID
				return nil
			}
			res.Skipped++
			res.Diagnostics = append(res.Diagnostics, Diagnostic{
				File:     name,
				Line:     line,
				Action:   rec.Action,
				RecordID: rec.ID,
				Reason:   out.Reason,
			})
			e.logger.Debug("wal record skipped", "path", name, "line", line, "action", rec.Action, "reason", out.Reason)
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("recover: replay %s: %w", name, err)
		}
		res.Malformed += stats.Malformed
		for _, bad := range stats.Bad {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{File: name, Line: bad.Line, Reason: bad.Reason})
			e.logger.Warn("malformed wal line", "path", name, "line", bad.Line, "reason", bad.Reason)
		}
	}

	if e.summary != nil {
		if err := e.summary.Recalculate(st); err != nil {
			return res, fmt.Errorf("recover: %w", err)
		}
	}

	e.logger.Info("recovery complete",
		"files", len(files),
		"applied", res.Applied,
		"skipped", res.Skipped,
		"malformed", res.Malformed,
		"last_ts", res.LastTS,
		"orders", len(st.Orders),
	)
	return res, nil
}
