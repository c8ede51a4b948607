package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIgnoreDirs are the directory names ignored everywhere, regardless
// of .gitignore contents: VCS metadata, build output, and the usual
// package-manager / editor caches. Matched against any path component, not
// just the root.
var DefaultIgnoreDirs = []string{
	".git",
	".hg",
	".svn",
	"node_modules",
	"vendor",
	"dist",
	"build",
	"target",
	".idea",
	".vscode",
	"__pycache__",
	".venv",
	".pytest_cache",
}

// BatchEvent is one coalesced, debounced batch of file events delivered to
// broadcast subscribers. ID is generated fresh per batch so a subscriber
// that drops a batch can still log which one it lost.
type BatchEvent struct {
	ID        string
	Events    []FileEvent
	Timestamp time.Time
}

// subscription is a subscriber's mailbox. Capacity bounds how many batches
// it can be behind before Broadcaster starts dropping its oldest unread
// batch rather than blocking the watcher for every other subscriber.
type subscription struct {
	ch      chan BatchEvent
	dropped atomic64
}

type atomic64 struct {
	mu sync.Mutex
	n  uint64
}

func (a *atomic64) add() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return a.n
}

func (a *atomic64) load() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}

// Broadcaster fans a single underlying Watcher's batched events out to any
// number of subscribers. A slow subscriber never blocks the watcher or its
// siblings: when its mailbox is full, Broadcaster drops the oldest queued
// batch to make room for the new one, per spec.md §4.6.
type Broadcaster struct {
	watcher interface {
		Start(ctx context.Context, path string) error
		Stop() error
		Events() <-chan []FileEvent
		Errors() <-chan error
	}

	mu   sync.Mutex
	subs map[int]*subscription
	next int

	mailboxSize int
}

// NewBroadcaster wraps watcher, fanning its event batches out to
// subscribers with a per-subscriber mailbox of mailboxSize batches.
func NewBroadcaster(watcher *HybridWatcher, mailboxSize int) *Broadcaster {
	if mailboxSize <= 0 {
		mailboxSize = 32
	}
	return &Broadcaster{
		watcher:     watcher,
		subs:        make(map[int]*subscription),
		mailboxSize: mailboxSize,
	}
}

// Start starts the fan-out goroutine and then runs the underlying watcher's
// Start, so it blocks until the watcher stops or ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context, path string) error {
	go b.pump(ctx)
	return b.watcher.Start(ctx, path)
}

// Stop stops the underlying watcher. Subscriber channels are closed once
// the fan-out goroutine observes the underlying Events channel close.
func (b *Broadcaster) Stop() error {
	return b.watcher.Stop()
}

// Errors exposes the underlying watcher's error channel directly; errors
// are not batched or subscriber-fanned, matching the teacher's single-
// reader error-reporting model.
func (b *Broadcaster) Errors() <-chan error {
	return b.watcher.Errors()
}

// Subscribe registers a new receiver and returns its channel plus an
// unsubscribe function. The caller must drain the channel or call
// unsubscribe; forgetting to do either leaks nothing beyond one map entry,
// since Broadcaster never blocks on a subscriber.
func (b *Broadcaster) Subscribe() (<-chan BatchEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	sub := &subscription{ch: make(chan BatchEvent, b.mailboxSize)}
	b.subs[id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s, ok := b.subs[id]; ok {
			close(s.ch)
			delete(b.subs, id)
		}
	}
	return sub.ch, unsubscribe
}

func (b *Broadcaster) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events, ok := <-b.watcher.Events():
			if !ok {
				b.mu.Lock()
				for id, sub := range b.subs {
					close(sub.ch)
					delete(b.subs, id)
				}
				b.mu.Unlock()
				return
			}
			batch := BatchEvent{ID: uuid.NewString(), Events: events, Timestamp: time.Now()}
			b.deliver(batch)
		}
	}
}

// deliver fans batch out to every current subscriber, dropping each
// subscriber's oldest unread batch in turn if its mailbox is full rather
// than blocking on any one of them.
func (b *Broadcaster) deliver(batch BatchEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- batch:
		default:
			select {
			case <-sub.ch:
				sub.dropped.add()
			default:
			}
			select {
			case sub.ch <- batch:
			default:
				sub.dropped.add()
			}
		}
	}
}

// DroppedCount reports how many batches a still-subscribed receiver has
// lost to mailbox overflow. Returns 0 for an unknown id.
func (b *Broadcaster) DroppedCount(ch <-chan BatchEvent) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		if sub.ch == ch {
			return sub.dropped.load()
		}
	}
	return 0
}
