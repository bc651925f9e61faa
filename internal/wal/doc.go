// Package wal implements the write-ahead log: an append-only file of JSON
// records, one per line, that is replayed on top of the latest snapshot.
//
// The current log is <dir>/wal.log. Rotation renames it to
// wal-<epoch10>-<n>.log and the next append starts a fresh file. Only the
// newest Retain generations are kept; older ones are deleted whole.
//
// Every append is fsync'd before it returns. A failed or short write is
// reported to the caller; the mutation that produced the record is not
// rolled back. Readers skip malformed lines, including a torn final line,
// and count them instead of failing.
package wal
