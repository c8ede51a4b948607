// Package daemon runs corecache's background indexing engine: it wires
// the scanner, watcher, parser, symbol extractor, change detector,
// coordinator, vector store and query cache into one long-lived process,
// and exposes index/search/status over a Unix domain socket to
// daemon.Client callers. The CLI's search and stats commands do not use
// the socket; each builds its own in-process Indexer.
//
// Grounded on the teacher's internal/daemon (socket lifecycle, PID file,
// JSON-RPC 2.0 control protocol); the request/response wire format is
// kept as-is, with SearchParams/SearchResult and the method set replaced
// to match corecache's symbol-level search instead of the teacher's
// chunk-level BM25/vector fusion search.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: ~/.corecache/daemon.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: ~/.corecache/daemon.pid
	PIDPath string

	// Timeout is the maximum duration for client-daemon communication.
	Timeout time.Duration

	// ShutdownGracePeriod is the time to wait for graceful shutdown.
	ShutdownGracePeriod time.Duration

	// MaxProjects is a project-count limit that Validate requires to be
	// positive. The Indexer's LRU limit is the maxProjects argument of
	// NewIndexer, not this field.
	MaxProjects int

	// AutoStart is carried in the config; no code reads it.
	AutoStart bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "/tmp"
	}

	dir := filepath.Join(home, ".corecache")

	return Config{
		SocketPath:          filepath.Join(dir, "daemon.sock"),
		PIDPath:             filepath.Join(dir, "daemon.pid"),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
		MaxProjects:         5,
		AutoStart:           false,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	if c.MaxProjects <= 0 {
		return fmt.Errorf("max projects must be positive")
	}
	return nil
}

// EnsureDir creates the directory for the socket and PID files if it
// does not exist.
func (c Config) EnsureDir() error {
	socketDir := filepath.Dir(c.SocketPath)
	if err := os.MkdirAll(socketDir, 0o755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	pidDir := filepath.Dir(c.PIDPath)
	if pidDir != socketDir {
		if err := os.MkdirAll(pidDir, 0o755); err != nil {
			return fmt.Errorf("failed to create PID directory: %w", err)
		}
	}

	return nil
}
