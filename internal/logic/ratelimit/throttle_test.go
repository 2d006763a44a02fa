package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestThrottle(interval time.Duration) (*Throttle[int], *ManualClock, *[]int) {
	clock := NewManualClock(time.Unix(1_700_000_000, 0))
	var calls []int
	th := NewThrottle(interval, clock, func(v int) { calls = append(calls, v) })
	return th, clock, &calls
}

func TestThrottleBurstYieldsOneImmediateAndOneTrailing(t *testing.T) {
	th, clock, calls := newTestThrottle(250 * time.Millisecond)

	assert.Equal(t, Immediate, th.Call(1))
	for v := 2; v <= 10; v++ {
		clock.Advance(10 * time.Millisecond)
		d := th.Call(v)
		if v == 2 {
			assert.Equal(t, Deferred, d)
		} else {
			assert.Equal(t, Coalesced, d)
		}
	}
	assert.Equal(t, []int{1}, *calls)
	assert.True(t, th.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, []int{1, 10}, *calls, "trailing call uses the latest value")
	assert.False(t, th.Pending())
}

func TestThrottleTrailingFiresWhenCooldownElapses(t *testing.T) {
	th, clock, calls := newTestThrottle(250 * time.Millisecond)

	th.Call(1)
	clock.Advance(100 * time.Millisecond)
	th.Call(2)

	clock.Advance(149 * time.Millisecond)
	assert.Equal(t, []int{1}, *calls)
	clock.Advance(time.Millisecond)
	assert.Equal(t, []int{1, 2}, *calls)
}

func TestThrottleSpacedEventsRunImmediately(t *testing.T) {
	th, clock, calls := newTestThrottle(250 * time.Millisecond)

	assert.Equal(t, Immediate, th.Call(1))
	clock.Advance(300 * time.Millisecond)
	assert.Equal(t, Immediate, th.Call(2))
	assert.Equal(t, []int{1, 2}, *calls)
	assert.Equal(t, 0, clock.PendingTimers())
}

func TestThrottleCooldownRestartsAfterTrailingCall(t *testing.T) {
	th, clock, calls := newTestThrottle(250 * time.Millisecond)

	th.Call(1)
	th.Call(2)
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, *calls)

	// right after the trailing call we are in a new cooldown
	assert.Equal(t, Deferred, th.Call(3))
	clock.Advance(250 * time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, *calls)
}

func TestThrottleStopCancelsTrailingCall(t *testing.T) {
	th, clock, calls := newTestThrottle(250 * time.Millisecond)

	th.Call(1)
	th.Call(2)
	th.Stop()
	clock.Advance(time.Second)

	assert.Equal(t, []int{1}, *calls)
	assert.Equal(t, Dropped, th.Call(3))
}

func TestThrottleRealClock(t *testing.T) {
	done := make(chan int, 2)
	th := NewThrottle(20*time.Millisecond, nil, func(v int) { done <- v })

	th.Call(1)
	th.Call(2)

	assert.Equal(t, 1, <-done)
	select {
	case v := <-done:
		assert.Equal(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatal("trailing call never fired")
	}
}
