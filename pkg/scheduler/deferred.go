package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const deferredSendTimeout = 30 * time.Second

// Deferred sends demand response actions when their time comes. Pending
// actions live in memory only and are dropped by Stop.
type Deferred struct {
	commander bus.Commander
	now       func() time.Time

	mu      sync.Mutex
	timers  map[*time.Timer]struct{}
	stopped bool
	wg      sync.WaitGroup
}

// NewDeferred returns a Deferred sending through commander.
func NewDeferred(commander bus.Commander) *Deferred {
	return &Deferred{
		commander: commander,
		now:       time.Now,
		timers:    make(map[*time.Timer]struct{}),
	}
}

// Schedule implements demandresponse.Scheduler. Actions due in the past are
// sent right away.
func (d *Deferred) Schedule(ctx context.Context, at time.Time, action types.DemandResponseAction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return context.Canceled
	}

	logger := log.Ctx(ctx).With(slog.String("deviceID", action.DeviceID), slog.String("command", string(action.Command.Type)))
	var t *time.Timer
	d.wg.Add(1)
	t = time.AfterFunc(max(0, at.Sub(d.now())), func() {
		defer d.wg.Done()
		d.mu.Lock()
		delete(d.timers, t)
		d.mu.Unlock()

		sendCtx, cancel := context.WithTimeout(log.With(context.Background(), logger), deferredSendTimeout)
		defer cancel()
		if err := d.commander.SendCommand(sendCtx, action.DeviceID, action.Command); err != nil {
			logger.WarnContext(sendCtx, "deferred demand response action failed", slog.Any("error", err))
			return
		}
		logger.InfoContext(sendCtx, "deferred demand response action sent")
	})
	d.timers[t] = struct{}{}
	logger.DebugContext(ctx, "scheduled demand response action", slog.Time("at", at))
	return nil
}

// Pending returns the number of actions waiting to be sent.
func (d *Deferred) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.timers)
}

// Stop drops pending actions and waits for any send in progress.
func (d *Deferred) Stop() {
	d.mu.Lock()
	d.stopped = true
	for t := range d.timers {
		if t.Stop() {
			d.wg.Done()
		}
		delete(d.timers, t)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
