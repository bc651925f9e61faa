package wal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/kds/internal/clock"
)

// CurrentName is the file name of the log that receives appends.
const CurrentName = "wal.log"

// DefaultRetain is the number of rotated generations kept by Prune.
const DefaultRetain = 2

// ErrShortWrite is returned when the file accepted fewer bytes than the
// encoded record.
var ErrShortWrite = errors.New("wal: short write")

// Options configures a Log.
type Options struct {
	// Dir holds wal.log and the generations. Created on first append.
	Dir string

	// Retain is the number of generations kept. Zero means DefaultRetain.
	Retain int

	Clock  clock.Clock
	IDs    IDGenerator
	Logger *slog.Logger
}

// Log appends records to the current file and manages generations.
//
// Log is not safe for concurrent use; the owning store serializes calls.
type Log struct {
	dir    string
	retain int
	clock  clock.Clock
	ids    IDGenerator
	logger *slog.Logger
}

// New creates a Log. No file is touched until the first Append.
func New(opts Options) *Log {
	l := &Log{
		dir:    opts.Dir,
		retain: opts.Retain,
		clock:  opts.Clock,
		ids:    opts.IDs,
		logger: opts.Logger,
	}
	if l.retain <= 0 {
		l.retain = DefaultRetain
	}
	if l.clock == nil {
		l.clock = clock.System{}
	}
	if l.ids == nil {
		l.ids = UUIDv7Generator{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Dir returns the directory the log lives in.
func (l *Log) Dir() string { return l.dir }

// Path returns the path of the current log file.
func (l *Log) Path() string { return filepath.Join(l.dir, CurrentName) }

// Append stamps rec with an id and timestamp when missing, writes it as one
// line and fsyncs the file. It returns the record as written.
func (l *Log) Append(rec Record) (Record, error) {
	if !rec.Action.Known() {
		return rec, fmt.Errorf("append wal record: unknown action %q", rec.Action)
	}
	if rec.ID == "" {
		rec.ID = l.ids.NewID()
	}
	if rec.TS == 0 {
		rec.TS = l.clock.Now()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return rec, fmt.Errorf("encode wal record %s: %w", rec.Action, err)
	}
	line = append(line, '\n')

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return rec, fmt.Errorf("create wal directory: %w", err)
	}

	f, err := os.OpenFile(l.Path(), os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return rec, fmt.Errorf("open wal: %w", err)
	}

	torn, err := endsTorn(f)
	if err != nil {
		f.Close()
		return rec, fmt.Errorf("check wal tail: %w", err)
	}
	if torn {
		// Terminate the fragment so it stays a line of its own.
		l.logger.Warn("wal ends in a partial line", "path", l.Path())
		line = append([]byte{'\n'}, line...)
	}

	n, err := f.Write(line)
	if err == nil && n < len(line) {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(line))
	}
	if err != nil {
		f.Close()
		l.logger.Error("wal append failed", "action", rec.Action, "error", err)
		return rec, fmt.Errorf("write wal record %s: %w", rec.Action, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return rec, fmt.Errorf("sync wal: %w", err)
	}
	if err := f.Close(); err != nil {
		return rec, fmt.Errorf("close wal: %w", err)
	}

	l.logger.Debug("wal append", "action", rec.Action, "order_no", rec.OrderNo, "id", rec.ID)
	return rec, nil
}

// endsTorn reports whether f is non-empty and its last byte is not a
// newline, as left by a crash in the middle of a write.
func endsTorn(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, err
	}
	return last[0] != '\n', nil
}

// Rotate renames the current log into a new generation and prunes old
// generations. It returns the generation path, or "" when the current log
// is missing or empty.
func (l *Log) Rotate() (string, error) {
	info, err := os.Stat(l.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat wal: %w", err)
	}
	if info.Size() == 0 {
		return "", nil
	}

	gens, err := l.Generations()
	if err != nil {
		return "", err
	}
	// Counters keep growing within one second even after older
	// generations of that second were pruned.
	epoch, n := l.clock.Now(), 1
	for _, g := range gens {
		if e, gn, ok := ParseGenerationName(filepath.Base(g)); ok && e == epoch && gn >= n {
			n = gn + 1
		}
	}
	target := filepath.Join(l.dir, GenerationName(epoch, n))

	if err := os.Rename(l.Path(), target); err != nil {
		return "", fmt.Errorf("rotate wal: %w", err)
	}
	l.logger.Info("wal rotated", "path", target)

	if _, err := l.Prune(); err != nil {
		return target, err
	}
	return target, nil
}

// Prune deletes all but the newest Retain generations and returns the
// deleted paths.
func (l *Log) Prune() ([]string, error) {
	gens, err := l.Generations()
	if err != nil {
		return nil, err
	}
	if len(gens) <= l.retain {
		return nil, nil
	}

	var removed []string
	for _, path := range gens[:len(gens)-l.retain] {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("prune wal generation: %w", err)
		}
		l.logger.Info("wal generation pruned", "path", path)
		removed = append(removed, path)
	}
	return removed, nil
}

// Generations lists rotated generation files, oldest first.
func (l *Log) Generations() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list wal directory: %w", err)
	}

	type gen struct {
		path  string
		epoch int64
		n     int
	}
	var gens []gen
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		epoch, n, ok := ParseGenerationName(e.Name())
		if !ok {
			continue
		}
		gens = append(gens, gen{filepath.Join(l.dir, e.Name()), epoch, n})
	}
	sort.Slice(gens, func(i, j int) bool {
		if gens[i].epoch != gens[j].epoch {
			return gens[i].epoch < gens[j].epoch
		}
		return gens[i].n < gens[j].n
	})

	paths := make([]string, len(gens))
	for i, g := range gens {
		paths[i] = g.path
	}
	return paths, nil
}

// Files lists every file recovery must replay: generations oldest first,
// then the current log if it exists.
func (l *Log) Files() ([]string, error) {
	files, err := l.Generations()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(l.Path()); err == nil {
		files = append(files, l.Path())
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("stat wal: %w", err)
	}
	return files, nil
}

// GenerationName formats the file name of a rotated generation.
func GenerationName(epoch int64, n int) string {
	return fmt.Sprintf("wal-%010d-%d.log", epoch, n)
}

// ParseGenerationName extracts the rotation epoch and counter from a
// generation file name.
func ParseGenerationName(name string) (epoch int64, n int, ok bool) {
	rest, found := strings.CutPrefix(name, "wal-")
	if !found {
		return 0, 0, false
	}
	rest, found = strings.CutSuffix(rest, ".log")
	if !found {
		return 0, 0, false
	}
	epochStr, nStr, found := strings.Cut(rest, "-")
	if !found || len(epochStr) != 10 {
		return 0, 0, false
	}
	epoch, err := strconv.ParseInt(epochStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	n, err = strconv.Atoi(nStr)
	if err != nil {
		return 0, 0, false
	}
	return epoch, n, true
}
