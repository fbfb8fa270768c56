package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

func TestFakeClockAdvance(t *testing.T) {
	c := NewFakeClock(epoch)
	var fired []string

	c.AfterFunc(20*time.Millisecond, func() { fired = append(fired, "b") })
	c.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "a") })
	stopped := c.AfterFunc(15*time.Millisecond, func() { fired = append(fired, "x") })
	require.True(t, stopped.Stop())
	assert.False(t, stopped.Stop(), "second stop reports already stopped")

	c.Advance(5 * time.Millisecond)
	assert.Empty(t, fired)

	c.Advance(15 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, epoch.Add(20*time.Millisecond), c.Now())
	assert.Zero(t, c.Pending())
}

func TestFakeClockNowDuringCallback(t *testing.T) {
	c := NewFakeClock(epoch)
	var at time.Time
	c.AfterFunc(time.Second, func() { at = c.Now() })
	c.Advance(time.Minute)
	assert.Equal(t, epoch.Add(time.Second), at, "callbacks observe their own deadline")
	assert.Equal(t, epoch.Add(time.Minute), c.Now())
}

func TestSchedulerArmReplaces(t *testing.T) {
	c := NewFakeClock(epoch)
	s := New(c)
	count := 0

	for i := 0; i < 5; i++ {
		s.Arm("note", 100*time.Millisecond, func() { count++ })
		c.Advance(50 * time.Millisecond)
	}
	assert.Zero(t, count, "each re-arm pushes the deadline out")
	assert.True(t, s.Armed("note"))

	c.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, count)
	assert.False(t, s.Armed("note"))
}

func TestSchedulerArmIfIdle(t *testing.T) {
	c := NewFakeClock(epoch)
	s := New(c)
	count := 0

	assert.True(t, s.ArmIfIdle("batch", 10*time.Millisecond, func() { count++ }))
	assert.False(t, s.ArmIfIdle("batch", 10*time.Millisecond, func() { count += 10 }))
	c.Advance(10 * time.Millisecond)
	assert.Equal(t, 1, count)
}

func TestSchedulerCancel(t *testing.T) {
	c := NewFakeClock(epoch)
	s := New(c)
	fired := map[string]bool{}

	s.Arm("a", time.Second, func() { fired["a"] = true })
	s.Arm("b", time.Second, func() { fired["b"] = true })
	s.Arm("c", time.Second, func() { fired["c"] = true })

	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))
	assert.Equal(t, 2, s.Len())

	keys := s.CancelAll()
	assert.ElementsMatch(t, []string{"b", "c"}, keys)

	c.Advance(time.Minute)
	assert.Empty(t, fired)
}

func TestSchedulerIgnoresStaleCallback(t *testing.T) {
	c := NewFakeClock(epoch)
	s := New(c)
	var got []int

	s.Arm("k", time.Second, func() { got = append(got, 1) })
	old := s.timers["k"]
	s.Arm("k", time.Second, func() { got = append(got, 2) })

	// Simulate the first timer's callback having been queued before the
	// re-arm stopped it.
	s.fire("k", old.seq, func() { got = append(got, 1) })
	assert.Empty(t, got)

	c.Advance(time.Second)
	assert.Equal(t, []int{2}, got)
}
