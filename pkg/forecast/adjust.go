package forecast

import (
	"math"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// WeatherAdjuster returns a load multiplier for the weather in an hour. obs
// is nil when there is no weather for the hour.
type WeatherAdjuster func(obs *types.WeatherObservation) float64

// NoWeather always returns 1.
func NoWeather(*types.WeatherObservation) float64 {
	return 1
}

// ComfortBandWeather raises load 2% per degree outside [minC, maxC] for
// heating or cooling and up to 5% with full cloud cover for lighting. The
// multiplier is clamped to [0.5, 2].
func ComfortBandWeather(minC, maxC float64) WeatherAdjuster {
	return func(obs *types.WeatherObservation) float64 {
		if obs == nil {
			return 1
		}
		adj := 1.0
		switch {
		case obs.TemperatureC < minC:
			adj += 0.02 * (minC - obs.TemperatureC)
		case obs.TemperatureC > maxC:
			adj += 0.02 * (obs.TemperatureC - maxC)
		}
		adj += 0.05 * math.Max(0, math.Min(1, obs.CloudCover))
		return math.Max(0.5, math.Min(2, adj))
	}
}

// SeasonalAdjustment is the load multiplier for the month of t: winter
// heating 1.15, summer cooling 1.10.
func SeasonalAdjustment(t time.Time) float64 {
	switch t.Month() {
	case time.December, time.January, time.February:
		return 1.15
	case time.June, time.July, time.August:
		return 1.10
	default:
		return 1.0
	}
}
