package forecast

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	demandBaseConfidence  = 0.95
	demandConfidenceDecay = 0.02
	// fullSlotSamples is the number of samples per slot needed for full
	// confidence. 90 days has about 13 of each weekday.
	fullSlotSamples = 4
	// z95 is the 95% two-sided normal quantile.
	z95 = 1.96
)

// DemandModel forecasts consumption from the trailing average of each
// (weekday, hour) slot.
type DemandModel struct {
	Weather  WeatherAdjuster
	Seasonal func(time.Time) float64
}

type slot struct {
	weekday time.Weekday
	hour    int
}

type slotStats struct {
	mean  float64
	std   float64
	count int
}

// slotBaseline averages HomeKWH by weekday and hour over the trailing window
// ending at now.
func slotBaseline(history []types.EnergyStats, now time.Time, loc *time.Location) map[slot]slotStats {
	values := make(map[slot][]float64)
	cutoff := now.Add(-HistoryWindow)
	for _, h := range history {
		if h.TSHourStart.Before(cutoff) || !h.TSHourStart.Before(now) {
			continue
		}
		ts := h.TSHourStart.In(loc)
		k := slot{ts.Weekday(), ts.Hour()}
		values[k] = append(values[k], h.HomeKWH)
	}
	stats := make(map[slot]slotStats, len(values))
	for k, v := range values {
		mean, variance := stat.PopMeanVariance(v, nil)
		stats[k] = slotStats{mean: mean, std: math.Sqrt(variance), count: len(v)}
	}
	return stats
}

// Forecast implements Model.
func (m DemandModel) Forecast(ctx context.Context, in Input) ([]types.ForecastPoint, error) {
	weather := m.Weather
	if weather == nil {
		weather = NoWeather
	}
	seasonal := m.Seasonal
	if seasonal == nil {
		seasonal = SeasonalAdjustment
	}

	loc := in.location()
	baseline := slotBaseline(in.History, in.Now, loc)
	byHour := in.weatherByHour()

	hours := in.Hours()
	points := make([]types.ForecastPoint, 0, len(hours))
	for _, ts := range hours {
		local := ts.In(loc)
		s := baseline[slot{local.Weekday(), local.Hour()}]

		factor := weather(byHour[ts.Unix()]) * seasonal(local)
		predicted := s.mean * factor

		sparsity := math.Min(1, float64(s.count)/fullSlotSamples)
		confidence := (demandBaseConfidence - demandConfidenceDecay*float64(in.DaysAhead(ts))) * sparsity

		lower, upper := predicted*0.8, predicted*1.2
		if s.count >= 2 && s.std > 0 {
			half := z95 * s.std * factor
			// use the dispersion when it is tighter than the fixed band
			if half < predicted*0.2 {
				lower, upper = predicted-half, predicted+half
			}
		}

		points = append(points, types.ForecastPoint{
			Timestamp:     ts,
			PointEstimate: predicted,
			LowerBound:    lower,
			UpperBound:    upper,
			Confidence:    confidence,
		})
	}
	return points, nil
}
