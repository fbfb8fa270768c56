// Package repository implements the diary's entry repository.
//
// The whole collection is persisted as one JSON array under
// types.EntriesKey. The repository keeps the decoded collection in memory
// (insertion order plus an id index) and loads it lazily on first use.
// Every mutation builds the new collection, hands the whole array to the
// write coalescer, and commits the in-memory state only when the write was
// accepted.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/internal/scheduler"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Loader reads the persisted collection.
type Loader interface {
	GetRaw(key string) ([]byte, error)
}

// Writer persists the collection. The coalescer satisfies it.
type Writer interface {
	Write(key string, value any) error
	WriteImmediate(key string, value any) error
	WriteDebounced(key string, value any) error
}

// Repository is the in-memory indexed entry collection.
type Repository struct {
	loader Loader
	writer Writer
	clock  scheduler.Clock
	newID  func() (string, error)
	log    *zap.Logger

	mu      sync.Mutex
	loaded  bool
	entries []types.Entry  // newest insertion first
	index   map[string]int // id -> position in entries
}

var _ types.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the repository logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Repository) { r.log = l }
}

// WithClock sets the clock used for audit timestamps.
func WithClock(c scheduler.Clock) Option {
	return func(r *Repository) { r.clock = c }
}

// WithIDFunc replaces the UUID v7 generator.
func WithIDFunc(fn func() (string, error)) Option {
	return func(r *Repository) { r.newID = fn }
}

// New creates a Repository reading through loader and writing through
// writer.
func New(loader Loader, writer Writer, opts ...Option) *Repository {
	r := &Repository{
		loader: loader,
		writer: writer,
		clock:  scheduler.RealClock{},
		newID:  newV7,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = logger.OrNop(r.log).Named("repository")
	return r
}

func newV7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		// Fall back to v4 if v7 generation fails.
		return uuid.New().String(), nil
	}
	return id.String(), nil
}

// Save assigns an ID and audit timestamps, validates and prepends the entry.
func (r *Repository) Save(entry types.Entry) (types.Entry, error) {
	if err := entry.Validate(); err != nil {
		return types.Entry{}, err
	}
	id, err := r.newID()
	if err != nil {
		return types.Entry{}, fmt.Errorf("generating id: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return types.Entry{}, err
	}

	now := r.clock.Now()
	e := entry.Clone()
	e.ID = id
	e.CreatedAt = now
	e.UpdatedAt = now

	next := make([]types.Entry, 0, len(r.entries)+1)
	next = append(next, e)
	next = append(next, r.entries...)
	if err := r.commitLocked("save", next, r.writer.Write); err != nil {
		return types.Entry{}, err
	}
	return e.Clone(), nil
}

// Update merges patch into the entry with the given ID.
func (r *Repository) Update(id string, patch types.EntryPatch) (types.Entry, error) {
	return r.update(id, patch, r.writer.Write)
}

// UpdateDebounced merges patch like Update but persists through the
// debounced write path. Used for live note editing.
func (r *Repository) UpdateDebounced(id string, patch types.EntryPatch) (types.Entry, error) {
	return r.update(id, patch, r.writer.WriteDebounced)
}

func (r *Repository) update(id string, patch types.EntryPatch, write func(string, any) error) (types.Entry, error) {
	if id == "" {
		return types.Entry{}, types.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return types.Entry{}, err
	}

	pos, ok := r.index[id]
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	e := patch.Apply(r.entries[pos])
	if err := e.Validate(); err != nil {
		return types.Entry{}, err
	}
	e.UpdatedAt = r.clock.Now()

	next := make([]types.Entry, len(r.entries))
	copy(next, r.entries)
	next[pos] = e
	if err := r.commitLocked("update", next, write); err != nil {
		return types.Entry{}, err
	}
	return e.Clone(), nil
}

// Delete removes the entry. Deleting a missing ID is a no-op.
func (r *Repository) Delete(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return err
	}

	pos, ok := r.index[id]
	if !ok {
		return nil
	}
	next := make([]types.Entry, 0, len(r.entries)-1)
	next = append(next, r.entries[:pos]...)
	next = append(next, r.entries[pos+1:]...)
	return r.commitLocked("delete", next, r.writer.WriteImmediate)
}

// GetByID returns a copy of the entry or ErrNotFound.
func (r *Repository) GetByID(id string) (types.Entry, error) {
	if id == "" {
		return types.Entry{}, types.ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return types.Entry{}, err
	}
	pos, ok := r.index[id]
	if !ok {
		return types.Entry{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	return r.entries[pos].Clone(), nil
}

// GetAll returns the collection in insertion order, newest insertion
// first. Callers that need timestamp order sort explicitly.
func (r *Repository) GetAll() ([]types.Entry, error) {
	return r.collect(func(*types.Entry) bool { return true }, false)
}

// GetFiltered returns the entries matching filter, newest first.
func (r *Repository) GetFiltered(filter types.Filter) ([]types.Entry, error) {
	return r.collect(filter.Matches, true)
}

// GetForDate returns the entries of the calendar day containing date, in
// date's location.
func (r *Repository) GetForDate(date time.Time) ([]types.Entry, error) {
	return r.GetFiltered(types.ForDay(date))
}

// GetNutritionStats aggregates nutrition over entries with timestamps in
// [start, end].
func (r *Repository) GetNutritionStats(start, end time.Time) (types.NutritionStats, error) {
	entries, err := r.GetFiltered(types.Filter{StartDate: &start, EndDate: &end})
	if err != nil {
		return types.NutritionStats{}, err
	}
	var stats types.NutritionStats
	for i := range entries {
		stats.Add(&entries[i])
	}
	stats.Finish()
	return stats, nil
}

// Count returns the number of entries.
func (r *Repository) Count() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return 0, err
	}
	return len(r.entries), nil
}

func (r *Repository) collect(match func(*types.Entry) bool, byTime bool) ([]types.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return nil, err
	}

	out := make([]types.Entry, 0, len(r.entries))
	for i := range r.entries {
		if match(&r.entries[i]) {
			out = append(out, r.entries[i].Clone())
		}
	}
	if byTime {
		SortNewestFirst(out)
	}
	return out, nil
}

// SortNewestFirst orders entries by timestamp descending. Ties break by
// CreatedAt then ID, both descending.
func SortNewestFirst(entries []types.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := &entries[i], &entries[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

// loadLocked reads the collection on first use. A corrupt collection is
// logged and treated as empty.
func (r *Repository) loadLocked() error {
	if r.loaded {
		return nil
	}
	raw, err := r.loader.GetRaw(types.EntriesKey)
	if err != nil {
		return err
	}

	var entries []types.Entry
	if raw != nil {
		if err := json.Unmarshal(raw, &entries); err != nil {
			r.log.Warn("entries collection is corrupt, starting empty",
				zap.String("key", types.EntriesKey),
				zap.Error(fmt.Errorf("%w: %w", types.ErrDecode, err)))
			entries = nil
		}
	}
	r.setLocked(entries)
	r.loaded = true
	r.log.Debug("loaded entries", zap.Int("count", len(entries)))
	return nil
}

// commitLocked persists next through write and installs it in memory.
func (r *Repository) commitLocked(op string, next []types.Entry, write func(string, any) error) error {
	if err := write(types.EntriesKey, next); err != nil {
		var pe *types.PersistenceError
		if errors.As(err, &pe) || errors.Is(err, types.ErrDetached) {
			return err
		}
		return &types.PersistenceError{Op: op, Keys: []string{types.EntriesKey}, Err: err}
	}
	r.setLocked(next)
	return nil
}

func (r *Repository) setLocked(entries []types.Entry) {
	if entries == nil {
		entries = []types.Entry{}
	}
	r.entries = entries
	r.index = make(map[string]int, len(entries))
	for i := range entries {
		r.index[entries[i].ID] = i
	}
}
