// Package optimize generates energy saving strategies for a time window,
// ranks them and turns the chosen ones into executable plans.
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/forecast"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/tariff"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// Request is a read-only snapshot of everything the generators use.
type Request struct {
	Window types.TimeWindow
	Now    time.Time

	Consumption   types.ConsumptionSnapshot
	Battery       *types.BatterySnapshot
	Solar         *types.SolarSnapshot
	Weather       []types.WeatherObservation
	Demand        *types.EnergyForecast
	SolarForecast *types.EnergyForecast
	Devices       []types.Device

	Tariff   *tariff.Tariff
	Settings types.Settings
}

// Generator produces candidate strategies of one type. Generators are pure
// and independent of each other.
type Generator func(req Request) []types.OptimizationStrategy

// Catalogue is the fixed set of generators run for every request.
var Catalogue = []Generator{
	LoadShifting,
	PeakShaving,
	BatteryOptimization,
	ThermalOptimization,
	ApplianceScheduling,
}

// MaxWindow is the longest window accepted, the forecast horizon.
const MaxWindow = forecast.MaxDays * 24 * time.Hour

// ValidateWindow checks the window is non-empty and no longer than
// MaxWindow.
func ValidateWindow(w types.TimeWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	if w.End.Sub(w.Start) > MaxWindow {
		return fmt.Errorf("%w: window must not be longer than %s", types.ErrInvalidArgument, MaxWindow)
	}
	return nil
}

// Optimize runs the catalogue and ranks the results.
func Optimize(ctx context.Context, req Request) (types.OptimizationResult, error) {
	if err := ValidateWindow(req.Window); err != nil {
		return types.OptimizationResult{}, err
	}
	if req.Tariff == nil {
		return types.OptimizationResult{}, fmt.Errorf("%w: tariff is required", types.ErrInvalidArgument)
	}

	policy := req.Settings.Policy
	var candidates []types.OptimizationStrategy
	for _, gen := range Catalogue {
		for _, s := range gen(req) {
			if s.PotentialSavings <= 0 {
				continue
			}
			s.ComfortImpact = clampScale(policy.ComfortFor(s.Type))
			s.ImplementationComplexity = clampScale(policy.ComplexityFor(s.Type))
			candidates = append(candidates, s)
		}
	}
	ranked := Rank(candidates)

	log.Ctx(ctx).DebugContext(
		ctx,
		"generated strategies",
		slog.Int("count", len(ranked)),
		slog.Time("start", req.Window.Start),
		slog.Time("end", req.Window.End),
	)

	top := policy.ImplementationPriority
	if top <= 0 || top > len(ranked) {
		top = len(ranked)
	}
	res := types.OptimizationResult{
		Window:                 req.Window,
		GeneratedAt:            req.Now,
		Strategies:             ranked,
		ImplementationPriority: append([]types.OptimizationStrategy{}, ranked[:top]...),
		ComfortScore:           1,
	}
	var comfort float64
	for _, s := range ranked {
		res.TotalSavings += s.PotentialSavings
		res.TotalSavingsKWH += s.SavingsKWH
		comfort += s.ComfortImpact
	}
	if len(ranked) > 0 {
		res.ComfortScore = 1 - comfort/float64(len(ranked))/10
	}
	res.EnvironmentalImpactKgCO2 = res.TotalSavingsKWH * policy.EmissionsKgPerKWH
	return res, nil
}

// Score is the ranking key: savings discounted by comfort impact.
func Score(s types.OptimizationStrategy) float64 {
	return s.PotentialSavings / (1 + s.ComfortImpact)
}

// Rank scores the strategies and sorts them by score descending, then by
// lower complexity, then by name.
func Rank(strategies []types.OptimizationStrategy) []types.OptimizationStrategy {
	ranked := make([]types.OptimizationStrategy, len(strategies))
	copy(ranked, strategies)
	for i := range ranked {
		ranked[i].Score = Score(ranked[i])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.ImplementationComplexity != b.ImplementationComplexity {
			return a.ImplementationComplexity < b.ImplementationComplexity
		}
		return a.Name < b.Name
	})
	return ranked
}

// SelectAutoExecute picks the strategies safe to run unattended.
func SelectAutoExecute(ranked []types.OptimizationStrategy, policy types.Policy) []types.OptimizationStrategy {
	var selected []types.OptimizationStrategy
	for _, s := range ranked {
		if len(selected) >= policy.AutoExecuteMaxStrategies {
			break
		}
		if s.AutoExecute && s.ComfortImpact < policy.AutoExecuteMaxComfort {
			selected = append(selected, s)
		}
	}
	return selected
}

func clampScale(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
