// Package store is the single entry point the request layer talks to.
//
// It owns the live state and the persistence components under one data
// directory:
//   - snapA.json / snapB.json: A/B snapshot slots
//   - wal.log and rotated wal-<epoch>-<n>.log generations
//   - orders_archive.jsonl: finalized orders, one per line
//   - sales_summary.json: derived per-session totals
//   - counters.db: SQLite counters for order numbers and skus
//
// # Concurrency
//
// Every exported method takes the store mutex for its whole duration, so a
// request is one indivisible unit of work. The components below the store
// take no locks of their own.
//
// # Durability
//
// Mutations follow the same order everywhere: change the in-memory state,
// append the WAL record, then save a snapshot or leave a save request for
// the next housekeeping tick. Recovery loads the newest usable snapshot
// and replays every WAL file on top of it.
package store
