// Package pager tracks incremental "load more" state over a filtered entry
// list.
//
// The source has no cursor, so every page load re-runs the full filter and
// slices out the next page. Each first-page load starts a new generation;
// a load that resolves after a newer generation was issued is discarded and
// reported as types.ErrStaleResult, so pages from an old filter are never
// merged into new results.
package pager

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Source runs a filter over the whole collection, newest first.
type Source interface {
	GetFiltered(filter types.Filter) ([]types.Entry, error)
}

// Snapshot is the pager state after a load.
type Snapshot struct {
	Page       int           `json:"page"`
	HasMore    bool          `json:"hasMore"`
	Items      []types.Entry `json:"items"`
	Generation uint64        `json:"generation"`
}

// Pager accumulates pages of a filtered result set.
type Pager struct {
	src  Source
	size int
	log  *zap.Logger

	mu      sync.Mutex
	started bool
	filter  types.Filter
	page    int
	hasMore bool
	items   []types.Entry
	gen     uint64
	loading bool
}

// Option configures a Pager.
type Option func(*Pager)

// WithLogger sets the pager logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pager) { p.log = l }
}

// New creates a Pager over src with the given page size. A non-positive
// size uses the default.
func New(src Source, size int, opts ...Option) *Pager {
	if size <= 0 {
		size = types.DefaultPageSize
	}
	p := &Pager{src: src, size: size}
	for _, opt := range opts {
		opt(p)
	}
	p.log = logger.OrNop(p.log).Named("pager")
	return p
}

// LoadFirstPage discards accumulated pages and loads page one of filter.
func (p *Pager) LoadFirstPage(ctx context.Context, filter types.Filter) (Snapshot, error) {
	p.mu.Lock()
	p.gen++
	gen := p.gen
	p.started = true
	p.filter = filter
	p.page = 0
	p.hasMore = false
	p.items = nil
	p.loading = true
	p.mu.Unlock()

	entries, err := p.fetch(ctx, filter)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.log.Debug("discarding stale first page", zap.Uint64("generation", gen))
		return Snapshot{}, types.ErrStaleResult
	}
	p.loading = false
	if err != nil {
		return p.snapshotLocked(), err
	}

	end := min(p.size, len(entries))
	p.items = append([]types.Entry(nil), entries[:end]...)
	p.page = 1
	p.hasMore = p.size < len(entries)
	return p.snapshotLocked(), nil
}

// LoadNextPage appends the next page. It does nothing while a load is in
// flight or when no more entries remain. A filter different from the
// current one, or a first page that never loaded, starts over with
// LoadFirstPage.
func (p *Pager) LoadNextPage(ctx context.Context, filter types.Filter) (Snapshot, error) {
	p.mu.Lock()
	if !p.started || !filter.Equal(p.filter) || (p.page == 0 && !p.loading) {
		p.mu.Unlock()
		return p.LoadFirstPage(ctx, filter)
	}
	if p.loading || !p.hasMore {
		snap := p.snapshotLocked()
		p.mu.Unlock()
		return snap, nil
	}
	p.loading = true
	gen := p.gen
	page := p.page
	p.mu.Unlock()

	entries, err := p.fetch(ctx, filter)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		p.log.Debug("discarding stale page", zap.Uint64("generation", gen), zap.Int("page", page+1))
		return Snapshot{}, types.ErrStaleResult
	}
	p.loading = false
	if err != nil {
		return p.snapshotLocked(), err
	}

	start := min(page*p.size, len(entries))
	end := min((page+1)*p.size, len(entries))
	p.items = append(p.items, entries[start:end]...)
	p.page = page + 1
	p.hasMore = end < len(entries)
	return p.snapshotLocked(), nil
}

// Snapshot returns the current state.
func (p *Pager) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pager) fetch(ctx context.Context, filter types.Filter) ([]types.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.src.GetFiltered(filter)
}

func (p *Pager) snapshotLocked() Snapshot {
	items := make([]types.Entry, len(p.items))
	copy(items, p.items)
	return Snapshot{Page: p.page, HasMore: p.hasMore, Items: items, Generation: p.gen}
}
