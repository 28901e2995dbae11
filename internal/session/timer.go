package session

import (
	"sync"
	"time"
)

// DeadlineTimer counts down to a fixed deadline on a 1-second cadence.
// Remaining time is always recomputed from the deadline, never accumulated
// from elapsed ticks, so a slow or paused process cannot drift the clock.
type DeadlineTimer struct {
	deadline time.Time
	tick     time.Duration
	clock    func() time.Time

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	started bool
	expired bool
}

func NewDeadlineTimer(deadline time.Time, tick time.Duration, clock func() time.Time) *DeadlineTimer {
	if tick <= 0 {
		tick = time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &DeadlineTimer{
		deadline: deadline,
		tick:     tick,
		clock:    clock,
		stopCh:   make(chan struct{}),
	}
}

// Remaining returns max(0, deadline-now).
func (t *DeadlineTimer) Remaining() time.Duration {
	remaining := t.deadline.Sub(t.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start begins ticking. onExpire is invoked exactly once when the deadline
// is reached, after which the timer stops on its own. Start is a no-op on a
// stopped or already started timer.
func (t *DeadlineTimer) Start(onTick func(remaining time.Duration), onExpire func()) {
	t.mu.Lock()
	if t.started || t.stopped {
		t.mu.Unlock()
		return
	}
	t.started = true
	t.mu.Unlock()

	go t.run(onTick, onExpire)
}

func (t *DeadlineTimer) run(onTick func(time.Duration), onExpire func()) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			remaining := t.Remaining()
			if remaining > 0 {
				if onTick != nil {
					onTick(remaining)
				}
				continue
			}

			t.mu.Lock()
			if t.stopped || t.expired {
				t.mu.Unlock()
				return
			}
			t.expired = true
			t.mu.Unlock()

			if onExpire != nil {
				onExpire()
			}
			return
		}
	}
}

// Stop halts ticking. Safe to call multiple times. A concurrent expiry that
// already won the race may still deliver its one onExpire call; callers that
// care must guard the transition themselves.
func (t *DeadlineTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	close(t.stopCh)
}
