// Package storage holds the optional operator audit log.
//
// Entries are appended by the reminder core after every lifecycle change and
// are never read back by it. Two drivers exist:
//   - "file": append-only JSON Lines (<prefix>.audit.jsonl)
//   - "sqlite": a SQLite database (build with -tags sqlite)
package storage
