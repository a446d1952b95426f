package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/praxislabs/codelab-engine/internal/schedule"
)

func newTestCountdown(duration int, onTick func(int), onExpire func()) (*Countdown, *schedule.FakeClock) {
	clock := schedule.NewFakeClock()
	sched := schedule.NewScheduler(clock)
	return New(sched, duration, onTick, onExpire), clock
}

func TestCountdownTicks(t *testing.T) {
	var seen []int
	c, clock := newTestCountdown(5, func(r int) { seen = append(seen, r) }, nil)
	c.Start()

	clock.Advance(3 * time.Second)
	assert.Equal(t, []int{4, 3, 2}, seen)
	assert.Equal(t, 2, c.Remaining())
	assert.Equal(t, 3, c.Spent())
	assert.False(t, c.Expired())
}

func TestCountdownSingleFireOnExpiry(t *testing.T) {
	expirations := 0
	var seen []int
	c, clock := newTestCountdown(3, func(r int) { seen = append(seen, r) }, func() { expirations++ })
	c.Start()

	// Advance well past expiry: exactly one expiry, zero further decrements.
	clock.Advance(time.Minute)

	assert.Equal(t, 1, expirations)
	assert.Equal(t, []int{2, 1, 0}, seen)
	assert.Equal(t, 0, c.Remaining())
	assert.Equal(t, 3, c.Spent())
	assert.True(t, c.Expired())
}

func TestStopCancelsDeterministically(t *testing.T) {
	ticks := 0
	expirations := 0
	c, clock := newTestCountdown(10, func(int) { ticks++ }, func() { expirations++ })
	c.Start()

	clock.Advance(4 * time.Second)
	c.Stop()
	clock.Advance(time.Hour)

	assert.Equal(t, 4, ticks)
	assert.Equal(t, 0, expirations)
	assert.Equal(t, 6, c.Remaining())
	assert.False(t, c.Expired())
}

func TestStopIsIdempotent(t *testing.T) {
	c, clock := newTestCountdown(5, nil, nil)
	c.Start()
	c.Stop()
	c.Stop()
	clock.Advance(time.Minute)
	assert.Equal(t, 5, c.Remaining())
}

func TestStartTwiceDoesNotDoubleTick(t *testing.T) {
	ticks := 0
	c, clock := newTestCountdown(10, func(int) { ticks++ }, nil)
	c.Start()
	c.Start()

	clock.Advance(3 * time.Second)
	assert.Equal(t, 3, ticks)
}

func TestZeroDurationNeverFires(t *testing.T) {
	expirations := 0
	c, clock := newTestCountdown(0, nil, func() { expirations++ })
	c.Start()
	clock.Advance(time.Minute)

	assert.Equal(t, 0, expirations)
	assert.True(t, c.Expired())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "0:00", Format(0))
	assert.Equal(t, "0:09", Format(9))
	assert.Equal(t, "1:00", Format(60))
	assert.Equal(t, "2:05", Format(125))
	assert.Equal(t, "60:00", Format(3600))
	assert.Equal(t, "0:00", Format(-7))
}
