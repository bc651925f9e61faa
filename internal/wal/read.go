package wal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// maxLineSize bounds a single record. An order with every catalog item on
// it stays far below this.
const maxLineSize = 1 << 20

// BadLine describes a line the reader skipped.
type BadLine struct {
	Line   int
	Reason string
}

// ScanStats summarizes one pass over a log file.
type ScanStats struct {
	Lines     int
	Records   int
	Malformed int
	Bad       []BadLine
}

// Visitor receives each decoded record with its 1-based line number.
// Returning an error stops the scan.
type Visitor func(rec Record, line int) error

// ReadFile decodes path line by line. Blank lines are ignored. Lines that
// are not valid JSON, or carry no action, are counted in the stats and
// skipped; a record torn by a crash mid-append is one such line.
func ReadFile(path string, fn Visitor) (ScanStats, error) {
	var stats ScanStats

	f, err := os.Open(path)
	if err != nil {
		return stats, fmt.Errorf("open wal file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			stats.skip(lineNo, fmt.Sprintf("decode: %v", err))
			continue
		}
		if rec.Action == "" {
			stats.skip(lineNo, "missing action")
			continue
		}

		stats.Records++
		if err := fn(rec, lineNo); err != nil {
			return stats, err
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read wal file %s: %w", path, err)
	}
	return stats, nil
}

func (s *ScanStats) skip(line int, reason string) {
	s.Malformed++
	s.Bad = append(s.Bad, BadLine{Line: line, Reason: reason})
}
