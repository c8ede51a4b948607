package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcaster_SimpleFanOut(t *testing.T) {
	tempDir := t.TempDir()

	opts := Options{
		DebounceWindow:  10 * time.Millisecond,
		EventBufferSize: 100,
	}.WithDefaults()

	w, err := NewHybridWatcher(opts)
	require.NoError(t, err)

	b := NewBroadcaster(w, 8)
	ch1, unsub1 := b.Subscribe()
	ch2, unsub2 := b.Subscribe()
	defer unsub1()
	defer unsub2()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start blocks while the watcher runs, so it gets its own goroutine.
	startErr := make(chan error, 1)
	go func() { startErr <- b.Start(ctx, tempDir) }()
	defer func() { _ = b.Stop() }()
	time.Sleep(100 * time.Millisecond) // Wait for the watcher to add tempDir

	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "a.go"), []byte("package a"), 0o644))

	var got1, got2 BatchEvent
	select {
	case got1 = <-ch1:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber 1 never received a batch")
	}
	select {
	case got2 = <-ch2:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber 2 never received a batch")
	}

	assert.NotEmpty(t, got1.ID)
	assert.Equal(t, got1.ID, got2.ID)
	assert.NotZero(t, got1.Timestamp)
	assert.NotEmpty(t, got1.Events)

	require.NoError(t, b.Stop())
	require.NoError(t, <-startErr)
}

func TestBroadcaster_SlowSubscriberDropsOldestBatch(t *testing.T) {
	b := &Broadcaster{
		subs:        make(map[int]*subscription),
		mailboxSize: 1,
	}

	sub := &subscription{ch: make(chan BatchEvent, 1)}
	b.subs[0] = sub

	first := BatchEvent{ID: "first"}
	second := BatchEvent{ID: "second"}

	b.deliver(first)
	b.deliver(second)

	// The mailbox holds one slot; the slow subscriber should have dropped
	// "first" in favor of "second" rather than blocking delivery.
	got := <-sub.ch
	assert.Equal(t, "second", got.ID)
	assert.EqualValues(t, 1, sub.dropped.load())
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := &Broadcaster{
		subs:        make(map[int]*subscription),
		mailboxSize: 4,
	}

	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}
