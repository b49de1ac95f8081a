// Package executor applies optimization plans to devices, one action at a
// time in execution order.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"golang.org/x/time/rate"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// ErrPlanInFlight is returned when a plan is already being executed.
var ErrPlanInFlight = errors.New("plan is already executing")

// DefaultActionDelay paces commands so the device channel is not flooded.
const DefaultActionDelay = 2 * time.Second

const defaultDispatchTimeout = 30 * time.Second

// PlanStore persists plan progress.
type PlanStore interface {
	SavePlan(ctx context.Context, plan types.OptimizationPlan) error
}

// Executor runs plans. It is safe for concurrent use; each plan id runs at
// most once at a time.
type Executor struct {
	commander bus.Commander
	store     PlanStore
	notifier  bus.Notifier

	limiter         *rate.Limiter
	dispatchTimeout time.Duration
	now             func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New returns an Executor that waits delay between actions. A zero delay
// disables pacing.
func New(commander bus.Commander, store PlanStore, notifier bus.Notifier, delay time.Duration) *Executor {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Executor{
		commander:       commander,
		store:           store,
		notifier:        notifier,
		limiter:         rate.NewLimiter(limit, 1),
		dispatchTimeout: defaultDispatchTimeout,
		now:             time.Now,
		inFlight:        make(map[string]struct{}),
	}
}

// Configured sets up the executor based on flags.
func Configured(commander bus.Commander, store PlanStore, notifier bus.Notifier) *Executor {
	delay := lflag.Duration("executor-action-delay", DefaultActionDelay, "Delay between plan actions, 0 disables pacing")

	e := New(commander, store, notifier, DefaultActionDelay)

	lflag.Do(func() {
		if *delay > 0 {
			e.limiter.SetLimit(rate.Every(*delay))
		} else {
			e.limiter.SetLimit(rate.Inf)
		}
	})

	return e
}

func (e *Executor) acquire(planID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[planID]; ok {
		return false
	}
	e.inFlight[planID] = struct{}{}
	return true
}

func (e *Executor) release(planID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, planID)
}

// Execute runs the plan's actions in ascending execution order and updates
// the plan in place. A failed action is recorded and execution continues.
// When ctx is cancelled the action being dispatched finishes and the rest
// are marked Cancelled. Completed actions are skipped so a plan can be
// executed again to retry what failed.
func (e *Executor) Execute(ctx context.Context, plan *types.OptimizationPlan) error {
	if plan == nil || plan.ID == "" {
		return fmt.Errorf("%w: plan id is required", types.ErrInvalidArgument)
	}
	if !e.acquire(plan.ID) {
		return ErrPlanInFlight
	}
	defer e.release(plan.ID)

	ctx = log.WithAttrs(ctx, slog.String("planID", plan.ID))
	sort.SliceStable(plan.Actions, func(i, j int) bool {
		return plan.Actions[i].ExecutionOrder < plan.Actions[j].ExecutionOrder
	})

	plan.Status = types.PlanInProgress
	plan.CompletedAt = time.Time{}
	// saves are detached so the stored plan always follows the in-memory one
	if err := e.save(context.WithoutCancel(ctx), plan); err != nil {
		return err
	}

	for i := range plan.Actions {
		a := &plan.Actions[i]
		if a.ExecutionStatus == types.ExecutionCompleted {
			continue
		}
		if err := e.limiter.Wait(ctx); err != nil {
			e.cancelRemaining(ctx, plan, i)
			break
		}
		e.dispatch(ctx, a)
		if err := e.save(context.WithoutCancel(ctx), plan); err != nil {
			return err
		}
	}

	plan.Status = plan.AggregateStatus()
	plan.CompletedAt = e.now()
	if err := e.save(context.WithoutCancel(ctx), plan); err != nil {
		return err
	}
	log.Ctx(ctx).InfoContext(ctx, "plan executed", slog.String("status", string(plan.Status)), slog.Int("actions", len(plan.Actions)))

	if e.notifier != nil {
		err := e.notifier.Notify(context.WithoutCancel(ctx), types.DomainEvent{
			ID:        uuid.NewString(),
			Type:      types.EventPlanCompleted,
			Timestamp: plan.CompletedAt,
			Payload:   plan,
		})
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to publish plan completion", slog.Any("error", err))
		}
	}
	return nil
}

// dispatch sends a single command. The send is detached from ctx so a
// shutdown never leaves a command half-sent.
func (e *Executor) dispatch(ctx context.Context, a *types.OptimizationAction) {
	a.ExecutionStatus = types.ExecutionInProgress
	a.StartedAt = e.now()
	a.Error = ""

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.dispatchTimeout)
	err := e.commander.SendCommand(sendCtx, a.DeviceID, a.Command)
	cancel()

	a.CompletedAt = e.now()
	if err != nil {
		a.ExecutionStatus = types.ExecutionFailed
		a.Error = err.Error()
		log.Ctx(ctx).WarnContext(
			ctx,
			"plan action failed",
			slog.Int("order", a.ExecutionOrder),
			slog.String("deviceID", a.DeviceID),
			slog.String("command", string(a.Command.Type)),
			slog.Any("error", err),
		)
	} else {
		a.ExecutionStatus = types.ExecutionCompleted
	}
	metrics.PlanActionsTotal.WithLabelValues(string(a.ExecutionStatus)).Inc()
}

func (e *Executor) cancelRemaining(ctx context.Context, plan *types.OptimizationPlan, from int) {
	var cancelled int
	for i := from; i < len(plan.Actions); i++ {
		if plan.Actions[i].ExecutionStatus == types.ExecutionCompleted {
			continue
		}
		plan.Actions[i].ExecutionStatus = types.ExecutionCancelled
		cancelled++
	}
	metrics.PlanActionsTotal.WithLabelValues(string(types.ExecutionCancelled)).Add(float64(cancelled))
	log.Ctx(ctx).InfoContext(ctx, "plan execution stopped", slog.Int("cancelled", cancelled))
}

func (e *Executor) save(ctx context.Context, plan *types.OptimizationPlan) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SavePlan(ctx, *plan); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}
	return nil
}
