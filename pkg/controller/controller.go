// Package controller exposes the engine operations. It reads a consistent
// snapshot from storage, runs the analytics packages over it and hands the
// resulting commands to the executor or the demand response orchestrator.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/cache"
	"github.com/aaronseq12/NexusHome-IoT/pkg/demandresponse"
	"github.com/aaronseq12/NexusHome-IoT/pkg/executor"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/maintenance"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	// snapshotLookback bounds how old a reading may be to count as current.
	snapshotLookback = 15 * time.Minute
	// telemetryLookback is the history used for maintenance predictions.
	telemetryLookback = 90 * 24 * time.Hour
	// maintenanceLookback is how far back maintenance records are read.
	maintenanceLookback = 2 * 365 * 24 * time.Hour
	// historyLookback feeds the demand baseline.
	historyLookback = 90 * 24 * time.Hour
	// anomalySeriesLength is the number of readings scored when the caller
	// does not supply a series.
	anomalySeriesLength = 200
)

// Controller implements the engine operations.
type Controller struct {
	db        storage.Database
	commander bus.Commander
	notifier  bus.Notifier
	executor  *executor.Executor
	cache     *cache.FeatureCache
	registry  *maintenance.Registry
	deferred  demandresponse.Scheduler

	defaults types.Settings
	now      func() time.Time
}

// New creates a Controller. notifier may be nil.
func New(db storage.Database, commander bus.Commander, notifier bus.Notifier, exec *executor.Executor) *Controller {
	return &Controller{
		db:        db,
		commander: commander,
		notifier:  notifier,
		executor:  exec,
		registry:  maintenance.DefaultRegistry(),
		defaults:  types.DefaultSettings(),
		now:       time.Now,
	}
}

// Configured creates a Controller and registers its flags.
func Configured(db storage.Database, commander bus.Commander, notifier bus.Notifier, exec *executor.Executor, fc *cache.FeatureCache) *Controller {
	policyFile := lflag.String("policy-file", "", "YAML file with default settings used until settings are stored")

	c := New(db, commander, notifier, exec)
	c.cache = fc

	lflag.Do(func() {
		if *policyFile == "" {
			return
		}
		s, err := types.LoadSettingsFile(*policyFile)
		if err != nil {
			panic(fmt.Sprintf("failed to load policy file: %v", err))
		}
		c.defaults = s
	})

	return c
}

// SetDeferredScheduler sets where scheduled demand response actions go.
func (c *Controller) SetDeferredScheduler(s demandresponse.Scheduler) {
	c.deferred = s
}

// SetRegistry replaces the classifier registry.
func (c *Controller) SetRegistry(r *maintenance.Registry) {
	c.registry = r
}

// SetCache sets the feature cache.
func (c *Controller) SetCache(fc *cache.FeatureCache) {
	c.cache = fc
}

// Settings returns the stored settings migrated to the current version, or
// the defaults when nothing is stored.
func (c *Controller) Settings(ctx context.Context) (types.Settings, error) {
	return c.settings(ctx, c.db)
}

func (c *Controller) settings(ctx context.Context, r storage.Reader) (types.Settings, error) {
	s, version, err := r.GetSettings(ctx)
	if err != nil {
		return types.Settings{}, upstream(err)
	}
	if version == 0 {
		return c.defaults, nil
	}
	s, _, err = types.MigrateSettings(s, version)
	if err != nil {
		return types.Settings{}, err
	}
	return s, nil
}

// UpdateSettings fills unset fields with defaults and stores the settings at
// the current version.
func (c *Controller) UpdateSettings(ctx context.Context, s types.Settings) error {
	if s.ComfortMaxTempC < s.ComfortMinTempC {
		return fmt.Errorf("%w: comfort max must not be below comfort min", types.ErrInvalidArgument)
	}
	s, _, err := types.MigrateSettings(s, 0)
	if err != nil {
		return err
	}
	if err := c.db.SetSettings(ctx, s, types.CurrentSettingsVersion); err != nil {
		return upstream(err)
	}
	return nil
}

// Now returns the controller clock.
func (c *Controller) Now() time.Time {
	return c.now()
}

// upstream marks collaborator failures as unavailable while keeping
// not-found and invalid-argument errors as they are.
func upstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrNotFound) || errors.Is(err, types.ErrInvalidArgument) || errors.Is(err, types.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", types.ErrUpstreamUnavailable, err)
}

// emit publishes a domain event. Failures are logged only.
func (c *Controller) emit(ctx context.Context, t types.DomainEventType, deviceID string, payload any) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Notify(ctx, types.DomainEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: c.now(),
		DeviceID:  deviceID,
		Payload:   payload,
	})
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish event", slog.String("type", string(t)), slog.Any("error", err))
	}
}

// dryRunCommander logs commands instead of sending them.
type dryRunCommander struct{}

func (dryRunCommander) SendCommand(ctx context.Context, deviceID string, cmd types.DeviceCommand) error {
	log.Ctx(ctx).InfoContext(ctx, "dry run: skipping command", slog.String("deviceID", deviceID), slog.String("command", string(cmd.Type)))
	return nil
}

func (c *Controller) commanderFor(s types.Settings) bus.Commander {
	if s.DryRun {
		return dryRunCommander{}
	}
	return c.commander
}

// dryRunScheduler logs deferred actions instead of scheduling them.
type dryRunScheduler struct{}

func (dryRunScheduler) Schedule(ctx context.Context, at time.Time, action types.DemandResponseAction) error {
	log.Ctx(ctx).InfoContext(
		ctx,
		"dry run: skipping deferred action",
		slog.String("deviceID", action.DeviceID),
		slog.String("command", string(action.Command.Type)),
		slog.Time("at", at),
	)
	return nil
}

func (c *Controller) deferredFor(s types.Settings) demandresponse.Scheduler {
	if s.DryRun {
		return dryRunScheduler{}
	}
	return c.deferred
}
