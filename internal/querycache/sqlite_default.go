//go:build !cgo_sqlite

package querycache

// sqliteDriverName selects the pure-Go modernc.org/sqlite driver by
// default, so corecache needs no cgo toolchain to build or run; build
// with -tags cgo_sqlite to switch to mattn/go-sqlite3 instead.
const sqliteDriverName = "sqlite"
