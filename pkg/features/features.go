// Package features turns a device's raw telemetry into the fixed-size
// FeatureVector consumed by the failure predictor.
package features

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	// RecentWindow is the number of trailing samples treated as "recent".
	RecentWindow = 30
	// DefaultDaysSinceMaintenance is used when no maintenance is on record.
	DefaultDaysSinceMaintenance = 365
	// maintenanceProximity links a sample to a maintenance event.
	maintenanceProximity = 7 * 24 * time.Hour
	// maxZScore clips the anomaly score before normalizing to [0,1].
	maxZScore = 3.0
)

// Extract computes the feature vector for samples ordered by timestamp.
// deviceCreatedAt may be zero when unknown.
func Extract(samples []types.TelemetrySample, deviceCreatedAt time.Time, maintenanceTimes []time.Time, now time.Time) types.FeatureVector {
	fv := types.FeatureVector{SampleCount: len(samples)}
	if len(samples) == 0 {
		return Refresh(fv, samples, deviceCreatedAt, maintenanceTimes, now)
	}

	split := len(samples) - RecentWindow
	if split < 0 {
		split = 0
	}
	recent, older := samples[split:], samples[:split]

	power := powerValues(recent)
	fv.AvgPower = stat.Mean(power, nil)
	fv.StdDevPower = stat.PopStdDev(power, nil)
	fv.PowerTrendSlope = Slope(power)

	var voltage, current, temperature []float64
	for _, s := range recent {
		voltage = append(voltage, s.Voltage)
		current = append(current, s.Current)
		if s.Temperature != nil {
			temperature = append(temperature, *s.Temperature)
		}
	}
	fv.AvgVoltage = stat.Mean(voltage, nil)
	fv.AvgCurrent = stat.Mean(current, nil)
	if len(temperature) > 0 {
		fv.AvgTemperature = stat.Mean(temperature, nil)
	}
	fv.TemperatureTrendSlope = Slope(temperature)

	fv.AnomalyScore = AnomalyScore(power, powerValues(older))
	return Refresh(fv, samples, deviceCreatedAt, maintenanceTimes, now)
}

// Refresh recomputes the fields that depend on now: operating hours and
// days since maintenance. The other fields only depend on the samples.
func Refresh(fv types.FeatureVector, samples []types.TelemetrySample, deviceCreatedAt time.Time, maintenanceTimes []time.Time, now time.Time) types.FeatureVector {
	fv.OperatingHours = 0
	if !deviceCreatedAt.IsZero() && now.After(deviceCreatedAt) {
		fv.OperatingHours = now.Sub(deviceCreatedAt).Hours()
	}
	fv.DaysSinceLastMaintenance = DefaultDaysSinceMaintenance
	if days, ok := DaysSinceMaintenance(samples, maintenanceTimes, now); ok {
		fv.DaysSinceLastMaintenance = days
	}
	return fv
}

func powerValues(samples []types.TelemetrySample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.PowerConsumption
	}
	return values
}

// Slope is the ordinary least squares slope of values against their index.
// Fewer than 2 values yield 0.
func Slope(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) || nearlyZero(beta, stat.Mean(values, nil)) {
		return 0
	}
	return beta
}

// AnomalyScore is the z-score of the recent mean against the older window,
// clipped to 3 and normalized to [0,1]. An empty or flat older window
// scores 0.
func AnomalyScore(recent, older []float64) float64 {
	if len(recent) == 0 || len(older) == 0 {
		return 0
	}
	oldMean, oldVar := stat.PopMeanVariance(older, nil)
	oldStd := math.Sqrt(oldVar)
	if nearlyZero(oldStd, oldMean) {
		return 0
	}
	z := math.Abs(stat.Mean(recent, nil)-oldMean) / oldStd
	return math.Min(z, maxZScore) / maxZScore
}

// DaysSinceMaintenance returns the days between now and the latest sample
// recorded within 7 days of a maintenance event.
func DaysSinceMaintenance(samples []types.TelemetrySample, maintenanceTimes []time.Time, now time.Time) (float64, bool) {
	if len(maintenanceTimes) == 0 {
		return 0, false
	}
	for i := len(samples) - 1; i >= 0; i-- {
		ts := samples[i].Timestamp
		for _, m := range maintenanceTimes {
			d := ts.Sub(m)
			if d < 0 {
				d = -d
			}
			if d <= maintenanceProximity {
				days := now.Sub(ts).Hours() / 24
				if days < 0 {
					days = 0
				}
				return days, true
			}
		}
	}
	return 0, false
}

// nearlyZero treats floating point residue of a flat series as zero.
func nearlyZero(v, scale float64) bool {
	return math.Abs(v) <= 1e-9*math.Max(1, math.Abs(scale))
}
