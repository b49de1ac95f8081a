package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/executor"
	"github.com/aaronseq12/NexusHome-IoT/pkg/forecast"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/optimize"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/tariff"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func newForecaster(s types.Settings) *forecast.Forecaster {
	return forecast.New(
		forecast.DemandModel{
			Weather:  forecast.ComfortBandWeather(s.ComfortMinTempC, s.ComfortMaxTempC),
			Seasonal: forecast.SeasonalAdjustment,
		},
		forecast.SolarModel{
			PanelEfficiency: s.SolarPanelEfficiency,
			PanelAreaM2:     s.SolarPanelAreaM2,
		},
	)
}

// forecastDays covers the window with whole days, capped at the forecaster
// horizon.
func forecastDays(w types.TimeWindow) int {
	d := int(math.Ceil(w.End.Sub(w.Start.Truncate(time.Hour)).Hours() / 24))
	return max(1, min(d, forecast.MaxDays))
}

// OptimizeEnergyUsage generates and ranks strategies for the window.
func (c *Controller) OptimizeEnergyUsage(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, error) {
	res, _, err := c.optimize(ctx, window)
	return res, err
}

func (c *Controller) optimize(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, types.Settings, error) {
	if err := optimize.ValidateWindow(window); err != nil {
		return types.OptimizationResult{}, types.Settings{}, err
	}
	now := c.now()

	var (
		settings types.Settings
		state    homeState
		history  []types.EnergyStats
		weather  []types.WeatherObservation
	)
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if settings, err = c.settings(ctx, r); err != nil {
			return err
		}
		if state, err = readHomeState(ctx, r, now); err != nil {
			return err
		}
		if history, err = r.GetEnergyHistory(ctx, now.Add(-historyLookback), now); err != nil {
			return fmt.Errorf("failed to get energy history: %w", err)
		}
		if weather, err = r.GetWeather(ctx, window.Start.Truncate(time.Hour), window.End); err != nil {
			return fmt.Errorf("failed to get weather: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.OptimizationResult{}, types.Settings{}, upstream(err)
	}

	t, err := tariff.New(settings)
	if err != nil {
		return types.OptimizationResult{}, settings, err
	}

	in := forecast.Input{
		Now:      now,
		Start:    window.Start,
		Days:     forecastDays(window),
		History:  history,
		Weather:  weather,
		Location: t.Location(),
	}
	f := newForecaster(settings)
	demand, err := f.Demand(ctx, in)
	if err != nil {
		return types.OptimizationResult{}, settings, err
	}
	req := optimize.Request{
		Window:      window,
		Now:         now,
		Consumption: state.Consumption,
		Battery:     state.Battery,
		Solar:       state.Solar,
		Weather:     weather,
		Demand:      &demand,
		Devices:     state.Devices,
		Tariff:      t,
		Settings:    settings,
	}
	if state.Solar != nil {
		solar, err := f.Solar(ctx, in)
		if err != nil {
			return types.OptimizationResult{}, settings, err
		}
		req.SolarForecast = &solar
	}

	res, err := optimize.Optimize(ctx, req)
	if err != nil {
		return types.OptimizationResult{}, settings, err
	}
	for _, s := range res.Strategies {
		metrics.StrategiesTotal.WithLabelValues(string(s.Type)).Inc()
	}
	metrics.PotentialSavings.Set(res.TotalSavings)
	return res, settings, nil
}

// CreatePlan builds a plan from strategies and stores it.
func (c *Controller) CreatePlan(ctx context.Context, strategies []types.OptimizationStrategy) (*types.OptimizationPlan, error) {
	if len(strategies) == 0 {
		return nil, fmt.Errorf("%w: no strategies to plan", types.ErrInvalidArgument)
	}
	plan := optimize.BuildPlan(strategies, c.now())
	if err := c.db.SavePlan(ctx, *plan); err != nil {
		return nil, upstream(err)
	}
	return plan, nil
}

// RunOptimization optimizes the window and, when auto execution is
// enabled, builds, stores and executes a plan from the strategies safe to
// run unattended. The plan is nil when nothing was selected.
func (c *Controller) RunOptimization(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, *types.OptimizationPlan, error) {
	res, settings, err := c.optimize(ctx, window)
	if err != nil {
		return res, nil, err
	}
	if settings.Pause || !settings.AutoExecute {
		return res, nil, nil
	}
	selected := optimize.SelectAutoExecute(res.Strategies, settings.Policy)
	if len(selected) == 0 {
		return res, nil, nil
	}
	plan, err := c.CreatePlan(ctx, selected)
	if err != nil {
		return res, nil, err
	}
	ctx = log.WithAttrs(ctx, slog.String("planID", plan.ID))
	if settings.DryRun {
		log.Ctx(ctx).InfoContext(ctx, "dry run: plan not executed", slog.Int("actions", len(plan.Actions)))
		return res, plan, nil
	}
	if err := c.execute(ctx, plan); err != nil {
		return res, plan, err
	}
	return res, plan, nil
}

// ExecutePlan runs the plan and updates its status in place. Nothing is sent
// and ErrDryRun is returned while the dry run setting is on.
func (c *Controller) ExecutePlan(ctx context.Context, plan *types.OptimizationPlan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is required", types.ErrInvalidArgument)
	}
	settings, err := c.Settings(ctx)
	if err != nil {
		return err
	}
	if settings.DryRun {
		log.Ctx(ctx).InfoContext(ctx, "dry run: plan not executed", slog.String("planID", plan.ID), slog.Int("actions", len(plan.Actions)))
		return fmt.Errorf("%w: plan %s not executed", types.ErrDryRun, plan.ID)
	}
	return c.execute(ctx, plan)
}

func (c *Controller) execute(ctx context.Context, plan *types.OptimizationPlan) error {
	err := c.executor.Execute(ctx, plan)
	if err != nil && !errors.Is(err, executor.ErrPlanInFlight) {
		return upstream(err)
	}
	return err
}

// ExecutePlanByID loads a stored plan and runs it.
func (c *Controller) ExecutePlanByID(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	plan, err := c.GetPlan(ctx, planID)
	if err != nil {
		return types.OptimizationPlan{}, err
	}
	if err := c.ExecutePlan(ctx, &plan); err != nil {
		return plan, err
	}
	return plan, nil
}

// GetPlan returns a stored plan.
func (c *Controller) GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	plan, err := c.db.GetPlan(ctx, planID)
	if err != nil {
		return types.OptimizationPlan{}, upstream(err)
	}
	return plan, nil
}

// ForecastDemand forecasts home consumption.
func (c *Controller) ForecastDemand(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error) {
	return c.forecast(ctx, types.ForecastKindDemand, start, days)
}

// ForecastSolar forecasts solar generation.
func (c *Controller) ForecastSolar(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error) {
	return c.forecast(ctx, types.ForecastKindSolar, start, days)
}

func (c *Controller) forecast(ctx context.Context, kind types.ForecastKind, start time.Time, days int) (types.EnergyForecast, error) {
	if days <= 0 || days > forecast.MaxDays {
		return types.EnergyForecast{}, fmt.Errorf("%w: days must be between 1 and %d", types.ErrInvalidArgument, forecast.MaxDays)
	}
	now := c.now()
	end := start.Truncate(time.Hour).Add(time.Duration(days) * 24 * time.Hour)

	var (
		settings types.Settings
		history  []types.EnergyStats
		weather  []types.WeatherObservation
	)
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if settings, err = c.settings(ctx, r); err != nil {
			return err
		}
		if kind == types.ForecastKindDemand {
			if history, err = r.GetEnergyHistory(ctx, now.Add(-historyLookback), now); err != nil {
				return fmt.Errorf("failed to get energy history: %w", err)
			}
		}
		if weather, err = r.GetWeather(ctx, start.Truncate(time.Hour), end); err != nil {
			return fmt.Errorf("failed to get weather: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.EnergyForecast{}, upstream(err)
	}

	t, err := tariff.New(settings)
	if err != nil {
		return types.EnergyForecast{}, err
	}
	in := forecast.Input{
		Now:      now,
		Start:    start,
		Days:     days,
		History:  history,
		Weather:  weather,
		Location: t.Location(),
	}
	f := newForecaster(settings)
	if kind == types.ForecastKindSolar {
		return f.Solar(ctx, in)
	}
	return f.Demand(ctx, in)
}
