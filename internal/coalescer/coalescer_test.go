package coalescer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mesh-intelligence/fooddiary/internal/scheduler"
	"github.com/mesh-intelligence/fooddiary/pkg/types"
)

var epoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

const (
	flushDelay    = 30 * time.Millisecond
	debounceDelay = 400 * time.Millisecond
)

// recordingStore records every call. When gated, SetRaw signals entered and
// blocks until release is sent.
type recordingStore struct {
	mu        sync.Mutex
	sets      []map[string][]byte
	removes   [][]string
	active    int
	maxActive int
	err       error

	gated   bool
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *recordingStore {
	return &recordingStore{
		gated:   true,
		entered: make(chan struct{}, 4),
		release: make(chan struct{}),
	}
}

func (r *recordingStore) SetRaw(values map[string][]byte) error {
	r.mu.Lock()
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	cp := make(map[string][]byte, len(values))
	for k, v := range values {
		cp[k] = v
	}
	r.sets = append(r.sets, cp)
	err := r.err
	r.mu.Unlock()

	if r.gated {
		r.entered <- struct{}{}
		<-r.release
	}

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return err
}

func (r *recordingStore) RemoveMultiple(keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes = append(r.removes, keys)
	return r.err
}

func (r *recordingStore) calls() []map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string][]byte(nil), r.sets...)
}

func setup(t *testing.T, store Store) (*Coalescer, *scheduler.FakeClock, *scheduler.Scheduler, *observer.ObservedLogs) {
	t.Helper()
	clock := scheduler.NewFakeClock(epoch)
	sched := scheduler.New(clock)
	core, logs := observer.New(zap.DebugLevel)
	c := New(store, sched,
		WithLogger(zap.New(core)),
		WithFlushDelay(flushDelay),
		WithDebounceDelay(debounceDelay),
	)
	return c, clock, sched, logs
}

func TestWritesCoalesceIntoOneBatch(t *testing.T) {
	store := &recordingStore{}
	c, clock, _, _ := setup(t, store)

	for i := 1; i <= 5; i++ {
		require.NoError(t, c.Write("entries", i))
		clock.Advance(5 * time.Millisecond)
	}
	require.NoError(t, c.Write("other", "x"))
	assert.Empty(t, store.calls(), "nothing is written inside the window")
	assert.Equal(t, 2, c.Pending())

	clock.Advance(flushDelay)

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string][]byte{
		"entries": []byte("5"),
		"other":   []byte(`"x"`),
	}, calls[0])
	assert.Zero(t, c.Pending())
	assert.Equal(t, 1, c.Flushes())
}

func TestNoConcurrentFlush(t *testing.T) {
	store := newGatedStore()
	c, clock, _, _ := setup(t, store)

	require.NoError(t, c.Write("a", 1))
	done := make(chan struct{})
	go func() {
		clock.Advance(flushDelay)
		close(done)
	}()
	<-store.entered

	// A second timer fires while the first flush is still in flight.
	require.NoError(t, c.Write("b", 2))
	clock.Advance(flushDelay)
	assert.Len(t, store.calls(), 1, "the second trigger does not start a flush")

	store.release <- struct{}{}
	<-store.entered
	store.release <- struct{}{}
	<-done

	calls := store.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, map[string][]byte{"a": []byte("1")}, calls[0])
	assert.Equal(t, map[string][]byte{"b": []byte("2")}, calls[1], "the running flush drains the newer values")
	assert.Equal(t, 1, store.maxActive)
	assert.Zero(t, c.Pending())
}

func TestWriteImmediateSupersedesPending(t *testing.T) {
	store := &recordingStore{}
	c, clock, _, _ := setup(t, store)

	require.NoError(t, c.Write("entries", "old"))
	require.NoError(t, c.WriteImmediate("entries", "new"))

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []byte(`"new"`), calls[0]["entries"])
	assert.Zero(t, c.Pending())

	clock.Advance(flushDelay)
	assert.Len(t, store.calls(), 1, "the stale batch value is never written")
}

func TestWriteDebounced(t *testing.T) {
	store := &recordingStore{}
	c, clock, sched, _ := setup(t, store)

	for _, v := range []string{"p", "pa", "pas", "past", "pasta"} {
		require.NoError(t, c.WriteDebounced("note", v))
		clock.Advance(100 * time.Millisecond)
	}
	assert.Empty(t, store.calls(), "edits inside the debounce window are not written")
	assert.Equal(t, 1, c.Pending(), "the latest edit is mirrored into the batch")

	clock.Advance(debounceDelay)

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string][]byte{"note": []byte(`"pasta"`)}, calls[0])
	assert.Zero(t, c.Pending())
	assert.Zero(t, sched.Len())
}

func TestFlushCommitsDebouncedValues(t *testing.T) {
	store := &recordingStore{}
	c, clock, sched, _ := setup(t, store)

	require.NoError(t, c.WriteDebounced("note", "abc"))
	require.NoError(t, c.Write("entries", 1))
	require.NoError(t, c.Flush(context.Background()))

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, map[string][]byte{
		"note":    []byte(`"abc"`),
		"entries": []byte("1"),
	}, calls[0])
	assert.Zero(t, sched.Len(), "flush cancels every timer")

	clock.Advance(time.Second)
	assert.Len(t, store.calls(), 1, "no write after the flush")
}

func TestWriteAfterDebouncedWins(t *testing.T) {
	store := &recordingStore{}
	c, clock, _, _ := setup(t, store)

	require.NoError(t, c.WriteDebounced("note", "draft"))
	require.NoError(t, c.Write("note", "final"))
	clock.Advance(time.Second)

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []byte(`"final"`), calls[0]["note"])
}

func TestRemoveDropsPendingValues(t *testing.T) {
	store := &recordingStore{}
	c, clock, sched, _ := setup(t, store)

	require.NoError(t, c.Write("a", 1))
	require.NoError(t, c.WriteDebounced("b", 2))
	require.NoError(t, c.Remove("a"))
	require.NoError(t, c.Remove("b"))

	assert.Equal(t, [][]string{{"a"}, {"b"}}, store.removes)
	assert.Zero(t, c.Pending())
	assert.False(t, sched.Armed(debounceKeyPrefix+"b"))

	clock.Advance(time.Second)
	assert.Empty(t, store.calls(), "removed keys are never written back")
}

func TestFailedFlushKeepsValues(t *testing.T) {
	boom := errors.New("disk full")
	store := &recordingStore{err: boom}
	c, clock, _, logs := setup(t, store)

	require.NoError(t, c.Write("entries", 1))
	clock.Advance(flushDelay)

	assert.Equal(t, 1, c.Pending(), "failed values are queued again")
	assert.Equal(t, 1, logs.FilterMessage("batch flush failed").Len())

	err := c.Flush(context.Background())
	require.ErrorIs(t, err, boom)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	require.NoError(t, c.Flush(context.Background()))
	assert.Zero(t, c.Pending())
}

func TestFlushWaitsForInFlightDrain(t *testing.T) {
	store := newGatedStore()
	c, clock, _, _ := setup(t, store)

	require.NoError(t, c.Write("a", 1))
	go clock.Advance(flushDelay)
	<-store.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Flush(ctx), context.DeadlineExceeded)

	flushed := make(chan error, 1)
	go func() { flushed <- c.Flush(context.Background()) }()
	store.release <- struct{}{}
	require.NoError(t, <-flushed)
	assert.Len(t, store.calls(), 1)
}

func TestCloseRejectsWrites(t *testing.T) {
	store := &recordingStore{}
	c, _, _, _ := setup(t, store)

	require.NoError(t, c.Write("a", 1))
	require.NoError(t, c.Close(context.Background()))
	assert.Len(t, store.calls(), 1)

	assert.ErrorIs(t, c.Write("a", 2), types.ErrDetached)
	assert.ErrorIs(t, c.WriteImmediate("a", 2), types.ErrDetached)
	assert.ErrorIs(t, c.WriteDebounced("a", 2), types.ErrDetached)
	require.NoError(t, c.Close(context.Background()))
}

func TestEncodeFailure(t *testing.T) {
	c, _, _, _ := setup(t, &recordingStore{})
	err := c.Write("bad", make(chan int))
	require.Error(t, err)
	assert.Zero(t, c.Pending())
}

func TestFailedBatchIsRetried(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	c, clock, sched, _ := setup(t, store)

	require.NoError(t, c.Write("entries", 1))
	clock.Advance(flushDelay)
	require.Len(t, store.calls(), 1)
	assert.Equal(t, 1, c.Pending())
	assert.True(t, sched.Armed(batchTimerKey), "a retry is scheduled")

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	clock.Advance(time.Hour)

	calls := store.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []byte("1"), calls[1]["entries"])
	assert.Zero(t, c.Pending())
	assert.False(t, sched.Armed(batchTimerKey))
}

func TestRetryDelayDoubles(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	c, clock, _, logs := setup(t, store)

	require.NoError(t, c.Write("entries", 1))
	clock.Advance(flushDelay)
	require.Len(t, store.calls(), 1)

	clock.Advance(2*flushDelay - time.Millisecond)
	assert.Len(t, store.calls(), 1)
	clock.Advance(time.Millisecond)
	assert.Len(t, store.calls(), 2)

	clock.Advance(4 * flushDelay)
	assert.Len(t, store.calls(), 3)
	assert.Equal(t, 3, logs.FilterMessage("batch flush failed").Len())

	c.mu.Lock()
	c.failures = 20
	assert.Equal(t, MaxRetryDelay, c.retryDelayLocked())
	c.mu.Unlock()
}

func TestFailedFlushSchedulesRetry(t *testing.T) {
	store := &recordingStore{err: errors.New("disk full")}
	c, clock, _, _ := setup(t, store)

	require.NoError(t, c.WriteDebounced("entries", 1))
	require.Error(t, c.Flush(context.Background()))

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	clock.Advance(time.Minute)
	assert.Zero(t, c.Pending())
}

func TestWritesDuringCloseAreRejected(t *testing.T) {
	store := newGatedStore()
	c, _, _, _ := setup(t, store)

	require.NoError(t, c.Write("a", 1))
	closed := make(chan error, 1)
	go func() { closed <- c.Close(context.Background()) }()
	<-store.entered

	assert.ErrorIs(t, c.Write("b", 2), types.ErrDetached)
	assert.ErrorIs(t, c.WriteDebounced("b", 2), types.ErrDetached)

	store.release <- struct{}{}
	require.NoError(t, <-closed)
	calls := store.calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0], "b")
}
