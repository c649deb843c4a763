package update

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultGraceDelay leaves time for the upload response to reach the client.
const DefaultGraceDelay = 100 * time.Millisecond

// Scheduler is told when a committed image is ready to boot.
type Scheduler interface {
	Schedule()
}

// RebootTrigger restarts the device a short while after Schedule. There is
// no cancel: after a successful update the restart always happens. If the
// restart func returns, the trigger is armed again for the next update.
type RebootTrigger struct {
	delay     time.Duration
	restart   func()
	logger    *slog.Logger
	scheduled atomic.Bool
}

// NewRebootTrigger returns a trigger that calls restart delay after Schedule.
func NewRebootTrigger(delay time.Duration, restart func(), logger *slog.Logger) *RebootTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RebootTrigger{
		delay:   delay,
		restart: restart,
		logger:  logger,
	}
}

// Schedule arranges the restart. Calls made while one is pending have no
// effect.
func (t *RebootTrigger) Schedule() {
	if !t.scheduled.CompareAndSwap(false, true) {
		return
	}
	t.logger.Warn("ota:restart-scheduled", slog.Duration("delay", t.delay))
	go func() {
		defer t.scheduled.Store(false)
		time.Sleep(t.delay)
		t.logger.Warn("ota:restarting")
		t.restart()
	}()
}

// Scheduled reports whether a restart is pending.
func (t *RebootTrigger) Scheduled() bool {
	return t.scheduled.Load()
}
