// Package storage is the durable repository for scheduled jobs, pending
// conversations and view statistics.
//
// Engines:
//   - "memory": process-local, for tests and dry runs
//   - "sqlite": single file database (modernc.org/sqlite, no cgo)
//   - "postgres": shared database (lib/pq); also guards dispatch ticks
//     across processes with an advisory lock
package storage
