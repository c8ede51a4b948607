package querycache

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver registered as "sqlite"
)

// sqliteL3 is the disk-backed L3 tier: one SQLite database per cache
// instance, grounded on spec.md §4.10's "SQLite-backed L2/L3" query
// cache tier and the teacher's go.mod carrying both a CGO sqlite driver
// (mattn/go-sqlite3, wired as the alternate build-tagged driver in
// sqlite_cgo.go) and a pure-Go fallback (modernc.org/sqlite, used here
// by default so the CLI needs no cgo toolchain to run).
type sqliteL3 struct {
	db *sql.DB
}

func openSQLiteL3(dir string) (*sqliteL3, error) {
	dbPath := filepath.Join(dir, "querycache.db")
	db, err := sql.Open(sqliteDriverName, dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("querycache: open sqlite l3: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS query_cache (
		key TEXT PRIMARY KEY,
		ids TEXT NOT NULL,
		ts_unix_nano INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("querycache: create sqlite l3 schema: %w", err)
	}

	return &sqliteL3{db: db}, nil
}

func (s *sqliteL3) get(key string) (Result, bool) {
	var idsJoined string
	var tsNano int64
	row := s.db.QueryRow(`SELECT ids, ts_unix_nano FROM query_cache WHERE key = ?`, key)
	if err := row.Scan(&idsJoined, &tsNano); err != nil {
		return Result{}, false
	}

	var ids []string
	if idsJoined != "" {
		ids = strings.Split(idsJoined, "\x1f")
	}
	return Result{IDs: ids, Timestamp: time.Unix(0, tsNano)}, true
}

func (s *sqliteL3) set(key string, r Result) error {
	_, err := s.db.Exec(
		`INSERT INTO query_cache (key, ids, ts_unix_nano) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET ids = excluded.ids, ts_unix_nano = excluded.ts_unix_nano`,
		key, strings.Join(r.IDs, "\x1f"), r.Timestamp.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("querycache: write sqlite l3: %w", err)
	}
	return nil
}

func (s *sqliteL3) close() error {
	return s.db.Close()
}
