// Package forecast produces hourly demand and solar generation forecasts
// with confidence bounds.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	// MaxDays is the longest horizon accepted.
	MaxDays = 14
	// HistoryWindow is how far back the demand baseline looks.
	HistoryWindow = 90 * 24 * time.Hour
)

// Input is everything a Model needs. Models must not read the clock or any
// other state, so the same Input always yields the same points.
type Input struct {
	// Now anchors confidence decay.
	Now time.Time
	// Start is truncated to the hour.
	Start time.Time
	Days  int

	History []types.EnergyStats
	Weather []types.WeatherObservation

	// Location is used for day-of-week and hour grouping, UTC if nil.
	Location *time.Location
}

// Hours returns the hourly timestamps covered by the input.
func (in Input) Hours() []time.Time {
	start := in.Start.Truncate(time.Hour)
	hours := make([]time.Time, 0, in.Days*24)
	for i := 0; i < in.Days*24; i++ {
		hours = append(hours, start.Add(time.Duration(i)*time.Hour))
	}
	return hours
}

// DaysAhead is the number of whole days between now and t, never negative.
func (in Input) DaysAhead(t time.Time) int {
	if !t.After(in.Now) {
		return 0
	}
	return int(t.Sub(in.Now) / (24 * time.Hour))
}

func (in Input) weatherByHour() map[int64]*types.WeatherObservation {
	byHour := make(map[int64]*types.WeatherObservation, len(in.Weather))
	for i := range in.Weather {
		byHour[in.Weather[i].Timestamp.Truncate(time.Hour).Unix()] = &in.Weather[i]
	}
	return byHour
}

func (in Input) location() *time.Location {
	if in.Location != nil {
		return in.Location
	}
	return time.UTC
}

// Model generates forecast points for an input.
type Model interface {
	Forecast(ctx context.Context, in Input) ([]types.ForecastPoint, error)
}

// Forecaster wraps the demand and solar models.
type Forecaster struct {
	demand Model
	solar  Model
}

// New returns a Forecaster using the given models.
func New(demand, solar Model) *Forecaster {
	return &Forecaster{demand: demand, solar: solar}
}

// Demand forecasts home consumption.
func (f *Forecaster) Demand(ctx context.Context, in Input) (types.EnergyForecast, error) {
	return f.run(ctx, types.ForecastKindDemand, f.demand, in)
}

// Solar forecasts solar generation.
func (f *Forecaster) Solar(ctx context.Context, in Input) (types.EnergyForecast, error) {
	return f.run(ctx, types.ForecastKindSolar, f.solar, in)
}

func (f *Forecaster) run(ctx context.Context, kind types.ForecastKind, m Model, in Input) (types.EnergyForecast, error) {
	if in.Days <= 0 || in.Days > MaxDays {
		return types.EnergyForecast{}, fmt.Errorf("%w: days must be between 1 and %d", types.ErrInvalidArgument, MaxDays)
	}
	if in.Start.IsZero() {
		return types.EnergyForecast{}, fmt.Errorf("%w: start is required", types.ErrInvalidArgument)
	}
	points, err := m.Forecast(ctx, in)
	if err != nil {
		return types.EnergyForecast{}, fmt.Errorf("failed to forecast %s: %w", kind, err)
	}
	for i := range points {
		points[i] = clampPoint(points[i])
	}
	return types.EnergyForecast{
		Kind:        kind,
		GeneratedAt: in.Now,
		Start:       in.Start.Truncate(time.Hour),
		Days:        in.Days,
		Points:      points,
	}, nil
}

// clampPoint keeps the bounds ordered and confidence in [0,1] whatever the
// model returned.
func clampPoint(p types.ForecastPoint) types.ForecastPoint {
	p.PointEstimate = math.Max(0, p.PointEstimate)
	p.LowerBound = math.Max(0, math.Min(p.LowerBound, p.PointEstimate))
	p.UpperBound = math.Max(p.UpperBound, p.PointEstimate)
	p.Confidence = math.Max(0, math.Min(1, p.Confidence))
	return p
}
