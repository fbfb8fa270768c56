// Package diary wires the storage engine, write coalescer, repository,
// query cache and sorter into one attachable backend.
package diary

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/bolt"
	"github.com/mesh-intelligence/fooddiary/internal/coalescer"
	"github.com/mesh-intelligence/fooddiary/internal/kvstore"
	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/internal/pager"
	"github.com/mesh-intelligence/fooddiary/internal/querycache"
	"github.com/mesh-intelligence/fooddiary/internal/repository"
	"github.com/mesh-intelligence/fooddiary/internal/scheduler"
	"github.com/mesh-intelligence/fooddiary/internal/sorting"
	"github.com/mesh-intelligence/fooddiary/internal/sqlite"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Diary is the food diary backend. It is not usable until attached.
type Diary struct {
	log   *zap.Logger
	clock scheduler.Clock

	mu       sync.RWMutex
	attached bool
	config   types.Config
	engine   types.Engine
	store    *kvstore.Store
	sched    *scheduler.Scheduler
	writer   *coalescer.Coalescer
	repo     *repository.Repository
	cache    *querycache.Cache
	sorter   sorting.Sorter
}

// Option configures a Diary.
type Option func(*Diary)

// WithLogger sets the logger passed to every component.
func WithLogger(l *zap.Logger) Option {
	return func(d *Diary) { d.log = l }
}

// WithClock sets the clock for timers, audit timestamps, cache expiry and
// day titles.
func WithClock(c scheduler.Clock) Option {
	return func(d *Diary) { d.clock = c }
}

// New creates a detached Diary.
func New(opts ...Option) *Diary {
	d := &Diary{clock: scheduler.RealClock{}}
	for _, opt := range opts {
		opt(d)
	}
	d.log = logger.OrNop(d.log)
	return d
}

// Attach opens the configured engine and builds the components. Zero
// tuning values take their defaults. Returns ErrAlreadyAttached if already
// attached.
func (d *Diary) Attach(config types.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.attached {
		return types.ErrAlreadyAttached
	}

	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return err
	}
	loc, err := config.Location()
	if err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	engine, err := openEngine(config.Backend, dataDir)
	if err != nil {
		return err
	}

	cache, err := querycache.New(config.CacheMaxEntries,
		querycache.WithClock(d.clock),
		querycache.WithLogger(d.log),
		querycache.WithDefaultTTL(config.CacheTTL),
	)
	if err != nil {
		return multierr.Append(err, engine.Close())
	}

	d.engine = engine
	d.store = kvstore.New(engine, kvstore.WithLogger(d.log))
	d.sched = scheduler.New(d.clock)
	d.writer = coalescer.New(d.store, d.sched,
		coalescer.WithLogger(d.log),
		coalescer.WithFlushDelay(config.FlushDelay),
		coalescer.WithDebounceDelay(config.DebounceDelay),
	)
	d.repo = repository.New(d.store, d.writer,
		repository.WithLogger(d.log),
		repository.WithClock(d.clock),
	)
	d.cache = cache
	d.sorter = sorting.Sorter{Bands: config.SectionBands, Location: loc, Now: d.clock.Now}
	d.config = config
	d.attached = true

	d.log.Debug("attached", zap.String("backend", config.Backend), zap.String("data_dir", dataDir))
	return nil
}

func openEngine(backend, dataDir string) (types.Engine, error) {
	switch backend {
	case types.BackendSQLite:
		e, err := sqlite.Open(dataDir)
		if err != nil {
			return nil, err
		}
		return e, nil
	case types.BackendBolt:
		e, err := bolt.Open(dataDir)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("%w: %s", types.ErrBackendUnknown, backend)
	}
}

// Detach flushes pending writes, cancels timers and closes the engine.
// After Detach every operation returns ErrDetached. Detach is idempotent.
func (d *Diary) Detach() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.attached {
		return nil
	}

	err := d.writer.Close(context.Background())
	err = multierr.Append(err, d.engine.Close())

	d.attached = false
	d.engine = nil
	d.store = nil
	d.sched = nil
	d.writer = nil
	d.repo = nil
	d.cache = nil
	return err
}

// Config returns the effective configuration.
func (d *Diary) Config() types.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Entries returns the entry repository.
func (d *Diary) Entries() (*repository.Repository, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.attached {
		return nil, types.ErrDetached
	}
	return d.repo, nil
}

// NewPager returns a pager over the repository with the configured page
// size.
func (d *Diary) NewPager() (*pager.Pager, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.attached {
		return nil, types.ErrDetached
	}
	return pager.New(d.repo, d.config.PageSize, pager.WithLogger(d.log)), nil
}

// Sections returns the entries matching filter grouped by method. Results
// are cached under a key derived from the method, the matching entries and
// the search text. If sorting or caching fails the entries are sorted by
// date-desc uncached instead, so a readable result is always returned
// unless the entries themselves cannot be read.
func (d *Diary) Sections(ctx context.Context, filter types.Filter, method types.SortMethod) ([]types.SortedSection, error) {
	d.mu.RLock()
	if !d.attached {
		d.mu.RUnlock()
		return nil, types.ErrDetached
	}
	repo, cache, sorter, ttl := d.repo, d.cache, d.sorter, d.config.CacheTTL
	d.mu.RUnlock()

	entries, err := repo.GetFiltered(filter)
	if err != nil {
		return nil, err
	}

	key := querycache.SectionsKey(method, sorter.Day(method), entries, filter.SearchQuery)
	sections, err := querycache.GetCachedData(ctx, cache, key, func(context.Context) ([]types.SortedSection, error) {
		return sorter.Sort(entries, method)
	}, ttl)
	if err == nil {
		return cloneSections(sections), nil
	}

	d.log.Warn("sorting failed, falling back to date order",
		zap.String("method", string(method)), zap.Error(err))
	fallback, ferr := sorter.Sort(entries, types.DefaultSortMethod)
	if ferr != nil {
		return nil, multierr.Append(err, ferr)
	}
	return fallback, nil
}

// Flush forces every pending and debounced write to storage.
func (d *Diary) Flush(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.attached {
		return types.ErrDetached
	}
	return d.writer.Flush(ctx)
}

// StorageInfo reports the key count and estimated size of the whole
// engine.
func (d *Diary) StorageInfo() (types.StorageInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.attached {
		return types.StorageInfo{}, types.ErrDetached
	}
	return d.store.StorageInfo()
}

// cloneSections copies cached sections so callers cannot modify the cached
// value.
func cloneSections(in []types.SortedSection) []types.SortedSection {
	out := make([]types.SortedSection, len(in))
	for i, s := range in {
		items := make([]types.Entry, len(s.Items))
		for j := range s.Items {
			items[j] = s.Items[j].Clone()
		}
		out[i] = types.SortedSection{Title: s.Title, Items: items}
	}
	return out
}
