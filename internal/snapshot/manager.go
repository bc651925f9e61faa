// Package snapshot persists the whole state into one of two alternating slot
// files and loads the most recent valid one at boot.
//
// A save always targets the slot that does not hold the latest good copy, so
// a crash mid-write damages at most one slot. Each slot ends with an
// integrity trailer; a torn write fails verification and the other slot is
// used instead.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/roach88/kds/internal/clock"
	"github.com/roach88/kds/internal/domain"
)

// Slot file names.
const (
	SlotA = "snapA.json"
	SlotB = "snapB.json"
)

// ErrNoUsableSnapshot is returned by Load when neither slot can be used and
// no bootstrap hook is configured, and by Latest when no slot is valid.
var ErrNoUsableSnapshot = errors.New("no usable snapshot")

// Options configures a Manager.
type Options struct {
	Dir       string
	Clock     clock.Clock
	Bootstrap domain.BootstrapFunc
	Logger    *slog.Logger
}

// LoadResult describes what Load did.
type LoadResult struct {
	// Path is the slot that was loaded; empty when bootstrapped from nothing.
	Path string
	Seq  uint64

	// FellBack is set when the most recently modified slot was unusable and
	// the older one was loaded instead.
	FellBack bool

	// Bootstrapped is set when the bootstrap hook ran.
	Bootstrapped bool

	// Rejected lists slots that exist but failed to verify or parse.
	Rejected []SlotError
}

// SlotError pairs a slot path with the reason it was rejected.
type SlotError struct {
	Path string
	Err  error
}

// Manager owns the two slot files.
//
// Manager is not safe for concurrent use; the owning store serializes calls.
type Manager struct {
	dir       string
	clock     clock.Clock
	bootstrap domain.BootstrapFunc
	logger    *slog.Logger

	scanned bool
	next    string
	seq     uint64
}

// New creates a Manager. The slot files are inspected lazily.
func New(opts Options) *Manager {
	m := &Manager{
		dir:       opts.Dir,
		clock:     opts.Clock,
		bootstrap: opts.Bootstrap,
		logger:    opts.Logger,
	}
	if m.clock == nil {
		m.clock = clock.System{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Paths returns the two slot paths, A first.
func (m *Manager) Paths() [2]string {
	return [2]string{filepath.Join(m.dir, SlotA), filepath.Join(m.dir, SlotB)}
}

// NextPath returns the slot the next Save will write.
func (m *Manager) NextPath() string {
	m.ensureScanned()
	return m.next
}

// Save writes the complete state to the least recently written slot. On
// failure the slot pointer does not move, so the next Save retries the same
// slot.
func (m *Manager) Save(st *domain.State) error {
	m.ensureScanned()
	target := m.next

	doc := Document{Seq: m.seq + 1, SavedAt: m.clock.Now(), State: *st}
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	if err := writeSlot(target, data); err != nil {
		m.logger.Error("snapshot save failed", "slot", filepath.Base(target), "error", err)
		return fmt.Errorf("save snapshot: %w", err)
	}

	m.seq = doc.Seq
	m.next = m.other(target)
	m.logger.Debug("snapshot saved", "slot", filepath.Base(target), "seq", doc.Seq, "orders", len(st.Orders))
	return nil
}

func writeSlot(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = fmt.Errorf("short write: %d of %d bytes", n, len(data))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// Load replaces st with the newest usable slot. When neither slot is
// usable, or the loaded catalog is empty, the bootstrap hook seeds st.
func (m *Manager) Load(st *domain.State) (LoadResult, error) {
	var res LoadResult
	slots := m.inspect()

	newestModified := ""
	var newestMod time.Time
	for _, s := range slots {
		if s.exists && (newestModified == "" || s.modTime.After(newestMod)) {
			newestModified, newestMod = s.path, s.modTime
		}
		if s.err != nil {
			res.Rejected = append(res.Rejected, SlotError{Path: s.path, Err: s.err})
			m.logger.Warn("snapshot slot unusable", "slot", filepath.Base(s.path), "error", s.err)
		}
	}

	best := pickNewest(slots)
	m.scanned = true
	if best == nil {
		if m.bootstrap == nil {
			return res, ErrNoUsableSnapshot
		}
		st.Reset()
		if err := m.bootstrap(st, m.clock.Now()); err != nil {
			return res, fmt.Errorf("bootstrap default catalog: %w", err)
		}
		res.Bootstrapped = true
		m.seq = maxSeq(slots)
		m.next = m.writeTarget(slots)
		m.logger.Info("no usable snapshot, bootstrapped default catalog")
		return res, nil
	}

	*st = best.doc.State
	res.Path = best.path
	res.Seq = best.doc.Seq
	res.FellBack = newestModified != "" && newestModified != best.path
	m.seq = maxSeq(slots)
	m.next = m.other(best.path)

	if len(st.Menu) == 0 && m.bootstrap != nil {
		if err := m.bootstrap(st, m.clock.Now()); err != nil {
			return res, fmt.Errorf("bootstrap default catalog: %w", err)
		}
		res.Bootstrapped = true
	}

	m.logger.Info("snapshot loaded",
		"slot", filepath.Base(best.path),
		"seq", best.doc.Seq,
		"orders", len(st.Orders),
		"menu", len(st.Menu),
		"fell_back", res.FellBack,
	)
	return res, nil
}

// Latest returns the JSON body of the newest usable slot and its path.
func (m *Manager) Latest() ([]byte, string, error) {
	slots := m.inspect()
	best := pickNewest(slots)
	if best == nil {
		return nil, "", ErrNoUsableSnapshot
	}
	return best.body, best.path, nil
}

type slotInfo struct {
	path    string
	exists  bool
	modTime time.Time
	body    []byte
	doc     Document
	err     error
}

func (s *slotInfo) usable() bool { return s.exists && s.err == nil }

func (m *Manager) inspect() []*slotInfo {
	paths := m.Paths()
	slots := make([]*slotInfo, 0, len(paths))
	for _, path := range paths {
		s := &slotInfo{path: path}
		slots = append(slots, s)

		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			s.exists, s.err = true, err
			continue
		}
		s.exists, s.modTime = true, info.ModTime()

		data, err := os.ReadFile(path)
		if err != nil {
			s.err = err
			continue
		}
		if s.body, err = Body(data); err != nil {
			s.err = err
			continue
		}
		if s.doc, err = Decode(data); err != nil {
			s.err = err
		}
	}
	return slots
}

// pickNewest orders usable slots by seq, then modification time.
func pickNewest(slots []*slotInfo) *slotInfo {
	var usable []*slotInfo
	for _, s := range slots {
		if s.usable() {
			usable = append(usable, s)
		}
	}
	if len(usable) == 0 {
		return nil
	}
	sort.SliceStable(usable, func(i, j int) bool {
		if usable[i].doc.Seq != usable[j].doc.Seq {
			return usable[i].doc.Seq > usable[j].doc.Seq
		}
		return usable[i].modTime.After(usable[j].modTime)
	})
	return usable[0]
}

func maxSeq(slots []*slotInfo) uint64 {
	var seq uint64
	for _, s := range slots {
		if s.usable() && s.doc.Seq > seq {
			seq = s.doc.Seq
		}
	}
	return seq
}

// writeTarget chooses the least recently written slot: a missing or
// unusable slot first, else the one that is not the newest.
func (m *Manager) writeTarget(slots []*slotInfo) string {
	for _, s := range slots {
		if !s.usable() {
			return s.path
		}
	}
	return m.other(pickNewest(slots).path)
}

func (m *Manager) ensureScanned() {
	if m.scanned {
		return
	}
	slots := m.inspect()
	m.seq = maxSeq(slots)
	m.next = m.writeTarget(slots)
	m.scanned = true
}

func (m *Manager) other(path string) string {
	paths := m.Paths()
	if path == paths[0] {
		return paths[1]
	}
	return paths[0]
}
