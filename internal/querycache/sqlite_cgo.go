//go:build cgo_sqlite

package querycache

import (
	_ "github.com/mattn/go-sqlite3" // registers driver "sqlite3"
)

// sqliteDriverName selects the CGO-backed mattn/go-sqlite3 driver when
// built with -tags cgo_sqlite, matching the teacher's go.mod carrying
// both the CGO driver and the pure-Go modernc.org/sqlite fallback used
// by default (see sqlite_default.go).
const sqliteDriverName = "sqlite3"
