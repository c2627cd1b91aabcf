// Package store provides the persistent key/value storage behind the offline
// queues.
//
// Each queue keeps its entire pending list under a single key, so the only
// operations are whole-value Get and Set. Backends report errors; the KV
// adapter turns them into log lines so that callers never see a storage
// failure (last write wins, no transactions).
//
// # Backends
//
//   - SQLite: local file, used by the CLI and the daemon
//   - Redis: shared store when several daemons serve one device fleet
//   - Memory: tests and throwaway runs
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
