// Package storage selects and opens the invoice store backend.
//
// Three drivers are supported:
//
//   - sqlite: embedded SQLite via mattn/go-sqlite3, the default
//   - postgres: PostgreSQL via lib/pq
//   - memory: a process-local map, for tests and local runs
//
// The SQL drivers share one implementation in sqlstore; both apply status
// transitions as a single conditional UPDATE so that concurrent writers
// can't both succeed.
//
//	store, err := storage.Open(ctx, storage.Config{Driver: "sqlite", DSN: "file:invoices.db"}, metrics)
package storage
