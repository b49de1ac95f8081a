package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type fixedClassifier struct {
	p, c float64
	err  error
}

func (f fixedClassifier) Predict(types.FeatureVector) (float64, float64, error) {
	return f.p, f.c, f.err
}

// daily returns one sample a day, first30 W for 30 days then recent W.
func daily(start time.Time, days int, first30, recent float64) []types.TelemetrySample {
	samples := make([]types.TelemetrySample, days)
	for i := range samples {
		v := first30
		if i >= 30 {
			v = recent
		}
		samples[i] = types.TelemetrySample{
			DeviceID:         "hvac-1",
			Timestamp:        start.Add(time.Duration(i) * 24 * time.Hour),
			PowerConsumption: v,
		}
	}
	return samples
}

func TestPredict(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(120 * 24 * time.Hour)
	device := types.Device{ID: "hvac-1", Type: types.DeviceTypeHVAC}

	t.Run("insufficient data ignores features", func(t *testing.T) {
		reg := NewRegistry()
		reg.SetFallback(fixedClassifier{p: 0.99, c: 0.99})
		p := NewPredictor(reg, 100)

		pred := p.Predict(ctx, device, daily(start, 99, 100, 100), types.FeatureVector{AnomalyScore: 1}, now)
		assert.True(t, pred.InsufficientData)
		assert.Equal(t, 0.0, pred.FailureProbability)
		assert.Equal(t, 0.0, pred.Confidence)
		assert.Nil(t, pred.PredictedFailureDate)
		assert.Equal(t, []string{ActionContinueMonitoring}, pred.RecommendedActions)
	})

	t.Run("model unavailable", func(t *testing.T) {
		p := NewPredictor(NewRegistry(), 100)
		pred := p.Predict(ctx, device, daily(start, 120, 100, 100), types.FeatureVector{}, now)
		assert.True(t, pred.ModelUnavailable)
		assert.Equal(t, 0.0, pred.Confidence)

		reg := NewRegistry()
		reg.SetFallback(fixedClassifier{err: errors.New("boom")})
		pred = NewPredictor(reg, 100).Predict(ctx, device, daily(start, 120, 100, 100), types.FeatureVector{}, now)
		assert.True(t, pred.ModelUnavailable)
	})

	t.Run("high probability", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(types.DeviceTypeHVAC, fixedClassifier{p: 0.85, c: 0.9})
		p := NewPredictor(reg, 100)

		// recent 130 W against 100 W baseline: rate 0.01/day
		samples := daily(start, 120, 100, 130)
		pred := p.Predict(ctx, device, samples, types.FeatureVector{SampleCount: 120}, now)
		assert.Equal(t, 0.85, pred.FailureProbability)
		assert.Equal(t, 0.9, pred.Confidence)
		assert.InDelta(t, 0.01, pred.DegradationRate, 1e-9)
		require.NotNil(t, pred.PredictedFailureDate)
		// (1 - 0.85) / 0.01 * 30 = 450, capped at 365
		assert.Equal(t, now.Add(365*24*time.Hour), *pred.PredictedFailureDate)
		assert.Equal(t, []string{ActionUrgentInspection, "Replace air filters", "Check refrigerant levels"}, pred.RecommendedActions)
	})

	t.Run("low probability has no date", func(t *testing.T) {
		reg := NewRegistry()
		reg.SetFallback(fixedClassifier{p: 0.1, c: 0.8})
		pred := NewPredictor(reg, 100).Predict(ctx, device, daily(start, 120, 100, 100), types.FeatureVector{}, now)
		assert.Nil(t, pred.PredictedFailureDate)
		assert.Equal(t, []string{ActionNone}, pred.RecommendedActions)
	})

	t.Run("default classifier", func(t *testing.T) {
		p := NewPredictor(DefaultRegistry(), 100)
		samples := daily(start, 120, 100, 100)

		healthy := p.Predict(ctx, device, samples, types.FeatureVector{DaysSinceLastMaintenance: 30, SampleCount: 120}, now)
		worn := p.Predict(ctx, device, samples, types.FeatureVector{
			AnomalyScore:             1,
			PowerTrendSlope:          10,
			DaysSinceLastMaintenance: 365,
			SampleCount:              120,
		}, now)
		assert.Less(t, healthy.FailureProbability, 0.2)
		assert.Greater(t, worn.FailureProbability, 0.8)
		assert.Greater(t, worn.FeatureImportance["anomalyScore"], worn.FeatureImportance["powerTrendSlope"])

		var total float64
		for _, v := range worn.FeatureImportance {
			total += v
		}
		assert.InDelta(t, 1, total, 1e-9)

		meter := p.Predict(ctx, types.Device{ID: "m", Type: types.DeviceTypeMeter}, samples, types.FeatureVector{}, now)
		assert.True(t, meter.ModelUnavailable)
	})
}

func TestDegradationRate(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("floored when improving", func(t *testing.T) {
		rate := DegradationRate(daily(start, 100, 200, 100))
		assert.Equal(t, MinDegradationRate, rate)
		days := DaysToFailure(0.9, rate)
		assert.GreaterOrEqual(t, days, 0.0)
	})

	t.Run("empty and zero baseline", func(t *testing.T) {
		assert.Equal(t, MinDegradationRate, DegradationRate(nil))
		assert.Equal(t, MinDegradationRate, DegradationRate(daily(start, 100, 0, 50)))
	})

	t.Run("days to failure", func(t *testing.T) {
		assert.InDelta(t, 150, DaysToFailure(0.5, 0.1), 1e-9)
		assert.Equal(t, 365.0, DaysToFailure(0.4, 0))
		assert.Equal(t, 0.0, DaysToFailure(1.2, 0.5))
	})
}

func TestRecommendedActions(t *testing.T) {
	assert.Equal(t, []string{ActionScheduleWeek, "Check HVAC calibration", "Verify temperature sensor accuracy"}, RecommendedActions(types.DeviceTypeThermostat, 0.7))
	assert.Equal(t, []string{ActionScheduleMonth}, RecommendedActions(types.DeviceTypeThermostat, 0.45))
	assert.Equal(t, []string{ActionScheduleMonth, "Check HVAC calibration", "Verify temperature sensor accuracy"}, RecommendedActions(types.DeviceTypeThermostat, 0.55))
	assert.Equal(t, []string{ActionNormalMonitoring}, RecommendedActions(types.DeviceTypeLighting, 0.3))
	assert.Equal(t, []string{ActionUrgentInspection}, RecommendedActions(types.DeviceTypeLighting, 0.95))
}

func TestRecordFor(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, ok := RecordFor(types.MaintenancePrediction{DeviceID: "d", FailureProbability: 0.5}, 0.6, now)
	assert.False(t, ok)

	rec, ok := RecordFor(types.MaintenancePrediction{
		DeviceID:           "d",
		FailureProbability: 0.65,
		RecommendedActions: []string{ActionScheduleWeek},
	}, 0.6, now)
	require.True(t, ok)
	assert.Equal(t, types.MaintenancePriorityHigh, rec.Priority)
	assert.Equal(t, now.Add(7*24*time.Hour), rec.ScheduledAt)
	assert.True(t, rec.Predicted)
	assert.False(t, rec.Completed)
	assert.NotEmpty(t, rec.ID)
	assert.Contains(t, rec.Description, ActionScheduleWeek)

	rec, ok = RecordFor(types.MaintenancePrediction{DeviceID: "d", FailureProbability: 0.9}, 0.6, now)
	require.True(t, ok)
	assert.Equal(t, types.MaintenancePriorityUrgent, rec.Priority)

	alert, ok := AlertFor(types.MaintenancePrediction{DeviceID: "d", FailureProbability: 0.9}, 0.8, now)
	require.True(t, ok)
	assert.Equal(t, types.AlertSeverityCritical, alert.Severity)
	_, ok = AlertFor(types.MaintenancePrediction{DeviceID: "d", FailureProbability: 0.8}, 0.8, now)
	assert.False(t, ok)
}
