package watcher

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestHybridWatcher_StopLeavesNoGoroutines verifies Stop ends both Start's
// fsnotify loop (run here on its own goroutine, since Start blocks) and the
// debounce-forwarding goroutine HybridWatcher.Start spawns, per spec.md
// §4.6's watcher lifecycle.
func TestHybridWatcher_StopLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	tempDir := t.TempDir()
	opts := Options{
		DebounceWindow:  20 * time.Millisecond,
		EventBufferSize: 16,
	}.WithDefaults()

	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx, tempDir) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, w.Stop())
	require.NoError(t, <-startErr)
	cancel()

	// Give the forwarder goroutine a moment to observe ctx.Done/closed
	// channels and return before goleak samples goroutine state.
	time.Sleep(50 * time.Millisecond)
}
