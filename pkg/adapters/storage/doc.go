// Package storage provides task storage implementations.
//
// Implementations:
//   - memory: in-process map, used by tests and the one-shot CLI
//   - redis: Redis with JSON serialization and TTL
//   - badger: embedded Badger key-value store
//   - sqlite: embedded SQLite database (pure Go driver)
//
// Every backend stores whole task snapshots and returns domain.ErrTaskNotFound
// for unknown ids. ListTasks returns tasks ordered by submission time.
package storage
