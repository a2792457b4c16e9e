package actuator

import (
	"context"
	"sync"
	"time"
)

// autoStopGrace is added to the deterrent duration before the watchdog
// fires; the normal deactivation path should always win the race.
const autoStopGrace = 2 * time.Second

// autoStop is the single watchdog task guarding deterrent deactivation.
// Arming replaces any previous task; stop cancels and waits for the
// active task to exit, so shutdown can join it deterministically.
type autoStop struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func (a *autoStop) arm(d time.Duration, fire func()) {
	a.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	a.mu.Lock()
	a.cancel = cancel
	a.done = done
	a.mu.Unlock()

	go func() {
		defer close(done)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			fire()
		}
	}()
}

// stop cancels the armed task and blocks until it has exited. Safe to
// call when nothing is armed.
func (a *autoStop) stop() {
	a.mu.Lock()
	cancel := a.cancel
	done := a.done
	a.cancel = nil
	a.done = nil
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
