// Package parserpool amortizes tree-sitter parser-handle creation: callers
// acquire a handle already configured for a language, use it for one parse,
// and release it back to the pool.
//
// Grounded on the teacher's single-parser internal/chunk.Parser
// (smacker/go-tree-sitter), generalized into a real per-language pool since
// the teacher only ever kept one *sitter.Parser alive at a time.
package parserpool

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/standardbeagle/corecache/internal/langregistry"
)

// DefaultCapacityPerLanguage is the number of parser handles kept warm for
// each language before Acquire blocks.
const DefaultCapacityPerLanguage = 4

// lane is a fixed-capacity slot pool for one language. It is pre-seeded
// with `capacity` nil slots; a nil received from the channel means "slot
// available, parser not yet created" and a non-nil means "idle parser
// ready for reuse". Either way the channel's capacity bounds the number
// of handles concurrently checked out for this language.
type lane chan *sitter.Parser

// Pool hands out tree-sitter parser handles, one per thread-of-use.
type Pool struct {
	mu       sync.Mutex
	capacity int
	lanes    map[langregistry.Tag]lane
	registry *langregistry.Registry
}

// New creates a pool with the given per-language capacity. A capacity of
// zero uses DefaultCapacityPerLanguage.
func New(registry *langregistry.Registry, capacity int) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacityPerLanguage
	}
	return &Pool{
		capacity: capacity,
		lanes:    make(map[langregistry.Tag]lane),
		registry: registry,
	}
}

func (p *Pool) laneFor(tag langregistry.Tag) lane {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.lanes[tag]
	if ok {
		return l
	}
	l = make(lane, p.capacity)
	for i := 0; i < p.capacity; i++ {
		l <- nil
	}
	p.lanes[tag] = l
	return l
}

// Guard is a borrowed parser handle. Release must be called exactly once.
type Guard struct {
	l      lane
	parser *sitter.Parser
}

// Parser returns the underlying tree-sitter parser, valid until Release.
func (g *Guard) Parser() *sitter.Parser { return g.parser }

// Release returns the handle to the pool after resetting it so residual
// state from this parse cannot leak into the next caller.
func (g *Guard) Release() {
	g.parser.Reset()
	g.l <- g.parser
}

// Acquire returns a handle configured for the given language. It blocks if
// no slot is free, until either a handle is released or ctx is cancelled.
// Fairness is best-effort FIFO via the channel's internal ordering; strict
// FIFO is not guaranteed under contention, which is acceptable per the
// pool's starvation-avoidance contract.
func (p *Pool) Acquire(ctx context.Context, tag langregistry.Tag) (*Guard, error) {
	info, err := p.registry.ByName(string(tag))
	if err != nil {
		return nil, err
	}

	l := p.laneFor(tag)

	select {
	case slot := <-l:
		parser := slot
		if parser == nil {
			parser = sitter.NewParser()
		}
		parser.SetLanguage(info.Grammar())
		return &Guard{l: l, parser: parser}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("parserpool: acquire %s: %w", tag, ctx.Err())
	}
}

// Len reports the configured per-language capacity.
func (p *Pool) Len() int { return p.capacity }
