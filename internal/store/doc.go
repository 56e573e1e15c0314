// Package store provides SQLite-backed persistence for built models and
// migration history.
//
// Two kinds of storage live here:
//   - Store: a standalone SQLite database caching built models by context
//     key. It implements services.ModelStore, so a configured process can
//     skip model building on warm start.
//   - History: the migration history table inside an application database,
//     one row per applied migration with the model snapshot and its hash.
//
// # Critical Patterns
//
// Logical ordering
//   - History rows are ordered by seq INTEGER (a per-table counter), never
//     by timestamps
//   - Queries use ORDER BY seq ASC, migration_id COLLATE BINARY ASC
//
// Canonical snapshots
//   - Models are stored as canonical JSON (internal/ir), so equal models
//     produce equal bytes and equal hashes
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
