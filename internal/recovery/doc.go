// Package recovery rebuilds the live state after a restart or on operator
// request: load the newest snapshot, replay every WAL generation oldest
// first and the current log last, then recompute the sales summary.
//
// Replay is a fold of Apply over the records. Each step is idempotent, so
// running recovery twice without new WAL records converges on the same
// state, and replaying a generation that the snapshot already covers is
// harmless. Records that cannot be applied are skipped and reported as
// diagnostics; only I/O failures abort.
package recovery
