// Package coalescer batches and debounces writes before they reach the
// key/value store.
//
// Coalesced writes collect in a pending map keyed by storage key, so only
// the newest value of a key is ever persisted. One shared timer, re-armed
// on every coalesced write, drains the whole map in a single batch call.
// At most one drain runs at a time: a timer that fires while a drain is in
// flight does nothing, and the running drain picks the new values up on its
// next cycle.
//
// A failed timer-driven drain keeps its values and retries on the batch
// timer with a doubling delay, capped at MaxRetryDelay.
//
// Debounced writes give each key its own timer that every new value resets.
// The value is also mirrored into the pending map without arming the batch
// timer, so a forced Flush never loses the latest edit.
package coalescer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/fooddiary/internal/kvstore"
	"github.com/mesh-intelligence/fooddiary/internal/logger"
	"github.com/mesh-intelligence/fooddiary/internal/scheduler"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

// Store is the write side of the key/value store.
type Store interface {
	SetRaw(values map[string][]byte) error
	RemoveMultiple(keys []string) error
}

// Scheduler keys. The NUL prefix keeps them apart from storage keys.
const (
	batchTimerKey     = "\x00batch"
	debounceKeyPrefix = "\x00debounce:"
)

// MaxRetryDelay caps the backoff between retries of a failed batch.
const MaxRetryDelay = 30 * time.Second

// Coalescer implements the coalesced, immediate and debounced write modes.
type Coalescer struct {
	store         Store
	sched         *scheduler.Scheduler
	flushDelay    time.Duration
	debounceDelay time.Duration
	log           *zap.Logger

	// writeMu orders every store write issued by the coalescer, so a batch
	// taken before an immediate write can never land after it.
	writeMu sync.Mutex

	mu        sync.Mutex
	pending   map[string][]byte
	debounced map[string][]byte
	flushing  bool
	idle      chan struct{} // closed when the running drain finishes
	closed    bool
	flushes   int
	failures  int // consecutive failed timer drains
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithLogger sets the coalescer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coalescer) { c.log = l }
}

// WithFlushDelay sets the batch timer delay.
func WithFlushDelay(d time.Duration) Option {
	return func(c *Coalescer) { c.flushDelay = d }
}

// WithDebounceDelay sets the per-key debounce delay.
func WithDebounceDelay(d time.Duration) Option {
	return func(c *Coalescer) { c.debounceDelay = d }
}

// New creates a Coalescer writing into store, with timers on sched.
func New(store Store, sched *scheduler.Scheduler, opts ...Option) *Coalescer {
	c := &Coalescer{
		store:         store,
		sched:         sched,
		flushDelay:    types.DefaultFlushDelay,
		debounceDelay: types.DefaultDebounceDelay,
		pending:       make(map[string][]byte),
		debounced:     make(map[string][]byte),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.OrNop(c.log).Named("coalescer")
	return c
}

// Write queues value for key and re-arms the batch timer. A newer write to
// the same key before the flush replaces this one.
func (c *Coalescer) Write(key string, value any) error {
	raw, err := kvstore.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrDetached
	}
	c.pending[key] = raw
	if _, ok := c.debounced[key]; ok {
		delete(c.debounced, key)
		c.sched.Cancel(debounceKeyPrefix + key)
	}
	c.mu.Unlock()

	c.sched.Arm(batchTimerKey, c.flushDelay, c.onBatchTimer)
	return nil
}

// WriteImmediate writes value at once, bypassing the batch. Any pending or
// debounced value of key is discarded since this one is newer.
func (c *Coalescer) WriteImmediate(key string, value any) error {
	raw, err := kvstore.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrDetached
	}
	c.evictLocked(key)
	c.mu.Unlock()

	return c.store.SetRaw(map[string][]byte{key: raw})
}

// WriteDebounced records value for key and (re)starts the key's debounce
// timer. When the timer fires the latest value is written immediately.
func (c *Coalescer) WriteDebounced(key string, value any) error {
	raw, err := kvstore.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return types.ErrDetached
	}
	c.debounced[key] = raw
	c.pending[key] = raw
	c.mu.Unlock()

	c.sched.Arm(debounceKeyPrefix+key, c.debounceDelay, func() {
		if err := c.commitDebounced(key); err != nil {
			c.log.Error("debounced write failed", zap.String("key", key), zap.Error(err))
		}
	})
	return nil
}

// Remove deletes key from the store and drops its pending and debounced
// values, so a deleted key never reappears through a stale write.
func (c *Coalescer) Remove(key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	c.evictLocked(key)
	c.mu.Unlock()

	return c.store.RemoveMultiple([]string{key})
}

// Flush cancels every debounce timer, commits the debounced values along
// with the batch, and waits until the pending map is drained.
func (c *Coalescer) Flush(ctx context.Context) error {
	c.mu.Lock()
	for key, raw := range c.debounced {
		c.sched.Cancel(debounceKeyPrefix + key)
		c.pending[key] = raw
	}
	c.debounced = make(map[string][]byte)
	c.mu.Unlock()
	c.sched.Cancel(batchTimerKey)

	for {
		c.mu.Lock()
		if c.flushing {
			idle := c.idle
			c.mu.Unlock()
			select {
			case <-idle:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		empty := len(c.pending) == 0
		c.mu.Unlock()

		if empty {
			return nil
		}
		if err := c.drain(); err != nil {
			c.mu.Lock()
			retry := !c.closed
			c.mu.Unlock()
			if retry {
				c.sched.ArmIfIdle(batchTimerKey, c.flushDelay, c.onBatchTimer)
			}
			return err
		}
	}
}

// Close rejects further writes, then flushes everything. Close is
// idempotent.
func (c *Coalescer) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	err := c.Flush(ctx)

	for _, key := range c.sched.CancelAll() {
		c.log.Debug("cancelled timer on close", zap.String("timer", key))
	}
	return err
}

// Pending returns the number of keys waiting to be flushed.
func (c *Coalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Flushes returns the number of batch calls made to the store.
func (c *Coalescer) Flushes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

func (c *Coalescer) onBatchTimer() {
	err := c.drain()

	c.mu.Lock()
	if err == nil {
		c.failures = 0
		c.mu.Unlock()
		return
	}
	c.failures++
	delay := c.retryDelayLocked()
	retry := !c.closed && len(c.pending) > 0
	c.mu.Unlock()

	c.log.Error("batch flush failed", zap.Error(err), zap.Duration("retry_in", delay))
	if retry {
		// A write that re-armed the timer meanwhile keeps its own delay.
		c.sched.ArmIfIdle(batchTimerKey, delay, c.onBatchTimer)
	}
}

// retryDelayLocked doubles the flush delay per consecutive failure.
func (c *Coalescer) retryDelayLocked() time.Duration {
	d := c.flushDelay
	for i := 0; i < c.failures && d < MaxRetryDelay; i++ {
		d *= 2
	}
	return min(d, MaxRetryDelay)
}

// drain writes the pending map until it is empty. It returns immediately
// when another drain is already running.
func (c *Coalescer) drain() error {
	c.mu.Lock()
	if c.flushing {
		c.mu.Unlock()
		return nil
	}
	c.flushing = true
	c.idle = make(chan struct{})
	c.mu.Unlock()

	var err error
	for err == nil {
		c.writeMu.Lock()
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			c.writeMu.Unlock()
			break
		}
		batch := c.pending
		c.pending = make(map[string][]byte)
		c.flushes++
		c.mu.Unlock()

		err = c.store.SetRaw(batch)
		if err != nil {
			c.requeue(batch)
		} else {
			c.log.Debug("flushed batch", zap.Int("keys", len(batch)))
		}
		c.writeMu.Unlock()
	}

	c.mu.Lock()
	c.flushing = false
	close(c.idle)
	c.mu.Unlock()
	return err
}

// commitDebounced writes the settled value of key.
func (c *Coalescer) commitDebounced(key string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	raw, ok := c.debounced[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.debounced, key)
	if bytes.Equal(c.pending[key], raw) {
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if err := c.store.SetRaw(map[string][]byte{key: raw}); err != nil {
		c.requeue(map[string][]byte{key: raw})
		c.sched.Arm(batchTimerKey, c.flushDelay, c.onBatchTimer)
		return err
	}
	return nil
}

// requeue puts back the values of a failed write unless a newer value for
// the key arrived meanwhile.
func (c *Coalescer) requeue(batch map[string][]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs error
	for k, v := range batch {
		if _, newer := c.pending[k]; newer {
			errs = multierr.Append(errs, fmt.Errorf("%s superseded", k))
			continue
		}
		c.pending[k] = v
	}
	if errs != nil {
		c.log.Debug("failed values dropped for newer ones", zap.Error(errs))
	}
}

func (c *Coalescer) evictLocked(key string) {
	delete(c.pending, key)
	if _, ok := c.debounced[key]; ok {
		delete(c.debounced, key)
		c.sched.Cancel(debounceKeyPrefix + key)
	}
}
