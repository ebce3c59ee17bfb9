// Package journal records what a driver observed, one row per cycle, in a
// SQLite database.
//
// The journal is a diagnostic log. Collections never read it back, so it is
// not a persistence layer for engine state.
//
// # Layout
//
//   - runs: one row per scenario run, ordered by seq (a logical counter,
//     never wall time)
//   - cycles: one row per (run, cycle) holding the changes of every observed
//     root as msgpack plus a digest of their canonical JSON form
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a run is being written
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
package journal
