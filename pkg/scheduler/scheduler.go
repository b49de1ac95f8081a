// Package scheduler drives the periodic optimization runs and maintenance
// sweeps.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/levenlabs/go-lflag"
	"golang.org/x/sync/errgroup"

	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/optimize"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	DefaultOptimizeInterval    = 15 * time.Minute
	DefaultMaintenanceInterval = time.Hour
	DefaultHorizon             = 24 * time.Hour
	DefaultWorkers             = 4
)

// Engine is the part of the controller the scheduler drives.
type Engine interface {
	Now() time.Time
	RunOptimization(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, *types.OptimizationPlan, error)
	MaintenanceSnapshot(ctx context.Context) (types.Settings, []controller.DeviceData, error)
	Predict(ctx context.Context, settings types.Settings, d controller.DeviceData) types.MaintenancePrediction
	RecordPrediction(ctx context.Context, settings types.Settings, d controller.DeviceData, pred types.MaintenancePrediction) error
}

// Scheduler runs tasks on fixed intervals.
type Scheduler struct {
	engine Engine

	optimizeInterval    time.Duration
	maintenanceInterval time.Duration
	horizon             time.Duration
	workers             int
}

// New returns a Scheduler with the default intervals.
func New(engine Engine) *Scheduler {
	return &Scheduler{
		engine:              engine,
		optimizeInterval:    DefaultOptimizeInterval,
		maintenanceInterval: DefaultMaintenanceInterval,
		horizon:             DefaultHorizon,
		workers:             DefaultWorkers,
	}
}

// Configured creates a Scheduler and registers its flags.
func Configured(engine Engine) *Scheduler {
	optimizeInterval := lflag.Duration("optimize-interval", DefaultOptimizeInterval, "How often to run the optimization, 0 disables it")
	maintenanceInterval := lflag.Duration("maintenance-interval", DefaultMaintenanceInterval, "How often to sweep devices for maintenance, 0 disables it")
	horizon := lflag.Duration("optimize-horizon", DefaultHorizon, "Window covered by each optimization run")
	workers := lflag.Int("workers", DefaultWorkers, "Number of devices processed concurrently in a maintenance sweep")

	s := New(engine)

	lflag.Do(func() {
		if *horizon <= 0 || *horizon > optimize.MaxWindow {
			panic(fmt.Sprintf("optimize-horizon must be positive and at most %s", optimize.MaxWindow))
		}
		if *workers <= 0 {
			panic("workers must be positive")
		}
		s.optimizeInterval = *optimizeInterval
		s.maintenanceInterval = *maintenanceInterval
		s.horizon = *horizon
		s.workers = *workers
	})

	return s
}

type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
	running  atomic.Bool
}

// Run starts every enabled task, running each once right away, and blocks
// until ctx is cancelled and in-flight runs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	tasks := []*task{
		{name: "optimize", interval: s.optimizeInterval, run: s.RunOptimization},
		{name: "maintenance", interval: s.maintenanceInterval, run: s.RunMaintenance},
	}

	var wg sync.WaitGroup
	for _, t := range tasks {
		if t.interval <= 0 {
			log.Ctx(ctx).InfoContext(ctx, "task disabled", slog.String("task", t.name))
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, t, &wg)
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, t *task, wg *sync.WaitGroup) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	s.trigger(ctx, t, wg)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.trigger(ctx, t, wg)
		}
	}
}

// trigger starts a run unless the previous one is still going.
func (s *Scheduler) trigger(ctx context.Context, t *task, wg *sync.WaitGroup) bool {
	ctx = log.WithAttrs(ctx, slog.String("task", t.name))
	if !t.running.CompareAndSwap(false, true) {
		log.Ctx(ctx).WarnContext(ctx, "previous run still in progress, skipping")
		return false
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer t.running.Store(false)
		if err := t.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Ctx(ctx).ErrorContext(ctx, "run failed", slog.Any("error", err))
		}
	}()
	return true
}

// RunOptimization optimizes the window starting now.
func (s *Scheduler) RunOptimization(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRun("optimize", start, err) }()

	now := s.engine.Now()
	res, plan, err := s.engine.RunOptimization(ctx, types.TimeWindow{Start: now, End: now.Add(s.horizon)})
	if err != nil {
		return fmt.Errorf("failed to run optimization: %w", err)
	}
	attrs := []any{
		slog.Int("strategies", len(res.Strategies)),
		slog.Float64("savings", res.TotalSavings),
	}
	if plan != nil {
		attrs = append(attrs, slog.String("planID", plan.ID), slog.String("planStatus", string(plan.Status)))
	}
	log.Ctx(ctx).InfoContext(ctx, "optimization run finished", attrs...)
	return nil
}

// RunMaintenance predicts every device on a bounded pool. A failing device
// never stops the others; their errors are joined.
func (s *Scheduler) RunMaintenance(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { metrics.ObserveRun("maintenance", start, err) }()

	settings, data, err := s.engine.MaintenanceSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read maintenance snapshot: %w", err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(s.workers)
	for _, d := range data {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			dctx := log.WithAttrs(ctx, slog.String("deviceID", d.Device.ID))
			pred := s.engine.Predict(dctx, settings, d)
			if err := s.engine.RecordPrediction(dctx, settings, d, pred); err != nil {
				log.Ctx(dctx).WarnContext(dctx, "failed to record prediction", slog.Any("error", err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("device %s: %w", d.Device.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Ctx(ctx).InfoContext(ctx, "maintenance sweep finished", slog.Int("devices", len(data)), slog.Int("failed", len(errs)))
	return errors.Join(errs...)
}
