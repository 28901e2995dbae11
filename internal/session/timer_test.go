package session

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadlineTimerRemainingRecomputesFromClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	timer := NewDeadlineTimer(now.Add(90*time.Second), time.Second, clock)
	require.Equal(t, 90*time.Second, timer.Remaining())

	// A jump past the deadline clamps at zero instead of going negative.
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	require.Equal(t, time.Duration(0), timer.Remaining())
}

func TestDeadlineTimerExpiresExactlyOnce(t *testing.T) {
	var expirations atomic.Int64
	done := make(chan struct{})

	timer := NewDeadlineTimer(time.Now().Add(30*time.Millisecond), 10*time.Millisecond, nil)
	timer.Start(nil, func() {
		if expirations.Add(1) == 1 {
			close(done)
		}
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never expired")
	}

	// The run loop exits after firing; give any stray tick time to surface.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int64(1), expirations.Load())
}

func TestDeadlineTimerTicksWithRemaining(t *testing.T) {
	ticks := make(chan time.Duration, 16)

	timer := NewDeadlineTimer(time.Now().Add(time.Hour), 10*time.Millisecond, nil)
	defer timer.Stop()
	timer.Start(func(remaining time.Duration) {
		select {
		case ticks <- remaining:
		default:
		}
	}, nil)

	select {
	case remaining := <-ticks:
		require.Greater(t, remaining, 59*time.Minute)
	case <-time.After(2 * time.Second):
		t.Fatal("no tick delivered")
	}
}

func TestDeadlineTimerStopSuppressesExpiry(t *testing.T) {
	var expirations atomic.Int64

	timer := NewDeadlineTimer(time.Now().Add(100*time.Millisecond), 10*time.Millisecond, nil)
	timer.Start(nil, func() { expirations.Add(1) })
	timer.Stop()

	time.Sleep(200 * time.Millisecond)
	require.Equal(t, int64(0), expirations.Load())
	require.NotPanics(t, timer.Stop)
}

func TestDeadlineTimerStartAfterStopIsNoOp(t *testing.T) {
	var fired atomic.Int64

	timer := NewDeadlineTimer(time.Now().Add(20*time.Millisecond), 5*time.Millisecond, nil)
	timer.Stop()
	timer.Start(nil, func() { fired.Add(1) })

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int64(0), fired.Load())
}
