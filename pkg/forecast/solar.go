package forecast

import (
	"context"
	"math"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	solarBaseConfidence  = 0.75
	solarConfidenceDecay = 0.05
	derateBaseTempC      = 25.0
	derateTempPerC       = 0.004
	cloudDerate          = 0.8
)

// SolarModel forecasts generation from forecast irradiance. Hours without
// weather forecast zero with zero confidence.
type SolarModel struct {
	PanelEfficiency float64
	PanelAreaM2     float64
}

// Forecast implements Model.
func (m SolarModel) Forecast(ctx context.Context, in Input) ([]types.ForecastPoint, error) {
	byHour := in.weatherByHour()

	hours := in.Hours()
	points := make([]types.ForecastPoint, 0, len(hours))
	for _, ts := range hours {
		p := types.ForecastPoint{Timestamp: ts}
		if obs := byHour[ts.Unix()]; obs != nil {
			p.PointEstimate = m.HourlyKWH(obs)
			p.LowerBound = p.PointEstimate * 0.7
			p.UpperBound = p.PointEstimate * 1.3
			p.Confidence = math.Max(0, solarBaseConfidence-solarConfidenceDecay*float64(in.DaysAhead(ts)))
		}
		points = append(points, p)
	}
	return points, nil
}

// HourlyKWH is the expected generation over one hour of obs.
func (m SolarModel) HourlyKWH(obs *types.WeatherObservation) float64 {
	kw := math.Max(0, obs.IrradianceWm2*m.PanelEfficiency) * m.PanelAreaM2 / 1000
	tempDerate := 1 - math.Max(0, obs.TemperatureC-derateBaseTempC)*derateTempPerC
	cloud := 1 - math.Max(0, math.Min(1, obs.CloudCover))*cloudDerate
	return math.Max(0, kw*tempDerate*cloud)
}
