// Package maintenance predicts device failures from feature vectors and
// turns high-probability predictions into maintenance records and alerts.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	// MinDegradationRate floors the daily degradation rate.
	MinDegradationRate = 0.001
	// failureDateThreshold is the probability above which a failure date is
	// estimated.
	failureDateThreshold = 0.3
	maxDaysToFailure     = 365
	hintThreshold        = 0.5
)

// Action texts by probability band.
const (
	ActionContinueMonitoring = "Continue monitoring"
	ActionUrgentInspection   = "Urgent: schedule an immediate inspection"
	ActionScheduleWeek       = "Schedule maintenance within 7 days"
	ActionScheduleMonth      = "Schedule maintenance within 30 days"
	ActionNormalMonitoring   = "Normal monitoring"
	ActionNone               = "No action required"
)

var deviceHints = map[types.DeviceType][]string{
	types.DeviceTypeThermostat:    {"Check HVAC calibration", "Verify temperature sensor accuracy"},
	types.DeviceTypeHVAC:          {"Replace air filters", "Check refrigerant levels"},
	types.DeviceTypeWaterHeater:   {"Inspect the anode rod", "Flush tank sediment"},
	types.DeviceTypeEVCharger:     {"Inspect connector and cable for wear"},
	types.DeviceTypeBattery:       {"Check cell balance", "Verify thermal management"},
	types.DeviceTypeSolarInverter: {"Clean cooling fans", "Update inverter firmware"},
}

// Predictor produces maintenance predictions.
type Predictor struct {
	registry   *Registry
	minSamples int
}

// NewPredictor returns a predictor that requires minSamples samples.
func NewPredictor(registry *Registry, minSamples int) *Predictor {
	return &Predictor{registry: registry, minSamples: minSamples}
}

// Predict combines the feature vector and degradation rate into a failure
// prediction. It never fails: thin data and missing models produce flagged
// zero-confidence predictions.
func (p *Predictor) Predict(ctx context.Context, device types.Device, samples []types.TelemetrySample, fv types.FeatureVector, now time.Time) types.MaintenancePrediction {
	pred := types.MaintenancePrediction{
		DeviceID:           device.ID,
		DeviceType:         device.Type,
		GeneratedAt:        now,
		RecommendedActions: []string{ActionContinueMonitoring},
	}
	if len(samples) < p.minSamples {
		pred.InsufficientData = true
		return pred
	}
	pred.Features = &fv
	pred.DegradationRate = DegradationRate(samples)

	classifier, ok := p.registry.Lookup(device.Type)
	if !ok {
		pred.ModelUnavailable = true
		return pred
	}
	prob, confidence, err := classifier.Predict(fv)
	if err != nil {
		log.Ctx(ctx).WarnContext(
			ctx,
			"classifier failed",
			slog.String("deviceID", device.ID),
			slog.String("deviceType", string(device.Type)),
			slog.Any("error", err),
		)
		pred.ModelUnavailable = true
		return pred
	}
	pred.FailureProbability = clamp01(prob)
	pred.Confidence = clamp01(confidence)

	if pred.FailureProbability > failureDateThreshold {
		date := now.Add(time.Duration(DaysToFailure(pred.FailureProbability, pred.DegradationRate) * float64(24*time.Hour)))
		pred.PredictedFailureDate = &date
	}
	pred.RecommendedActions = RecommendedActions(device.Type, pred.FailureProbability)
	if e, ok := classifier.(Explainer); ok {
		pred.FeatureImportance = e.Importance(fv)
	}
	return pred
}

// DegradationRate is the daily fractional increase of the average power
// over the last 7 days compared to the first 30 days, floored at 0.001.
func DegradationRate(samples []types.TelemetrySample) float64 {
	if len(samples) == 0 {
		return MinDegradationRate
	}
	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp

	var baseSum, recentSum float64
	var baseN, recentN int
	for _, s := range samples {
		if s.Timestamp.Before(first.Add(30 * 24 * time.Hour)) {
			baseSum += s.PowerConsumption
			baseN++
		}
		if !s.Timestamp.Before(last.Add(-7 * 24 * time.Hour)) {
			recentSum += s.PowerConsumption
			recentN++
		}
	}
	if baseN == 0 || recentN == 0 || baseSum == 0 {
		return MinDegradationRate
	}
	base := baseSum / float64(baseN)
	recent := recentSum / float64(recentN)
	rate := (recent - base) / base / 30
	if math.IsNaN(rate) || rate < MinDegradationRate {
		return MinDegradationRate
	}
	return rate
}

// DaysToFailure projects the days until failure, between 0 and 365.
func DaysToFailure(probability, rate float64) float64 {
	days := (1 - clamp01(probability)) / math.Max(rate, MinDegradationRate) * 30
	return math.Max(0, math.Min(days, maxDaysToFailure))
}

// RecommendedActions returns the action for the probability band followed
// by device hints when the probability is above 0.5.
func RecommendedActions(t types.DeviceType, probability float64) []string {
	var actions []string
	switch {
	case probability > 0.8:
		actions = append(actions, ActionUrgentInspection)
	case probability >= 0.6:
		actions = append(actions, ActionScheduleWeek)
	case probability >= 0.4:
		actions = append(actions, ActionScheduleMonth)
	case probability >= 0.2:
		actions = append(actions, ActionNormalMonitoring)
	default:
		actions = append(actions, ActionNone)
	}
	if probability > hintThreshold {
		actions = append(actions, deviceHints[t]...)
	}
	return actions
}

// RecordFor returns the maintenance record to schedule for a prediction at
// or above threshold.
func RecordFor(pred types.MaintenancePrediction, threshold float64, now time.Time) (types.MaintenanceRecord, bool) {
	if pred.InsufficientData || pred.ModelUnavailable || pred.FailureProbability < threshold {
		return types.MaintenanceRecord{}, false
	}
	rec := types.MaintenanceRecord{
		ID:          uuid.NewString(),
		DeviceID:    pred.DeviceID,
		Timestamp:   now,
		Predicted:   true,
		Description: fmt.Sprintf("Predicted failure probability %.0f%%", pred.FailureProbability*100),
	}
	if len(pred.RecommendedActions) > 0 {
		rec.Description += ": " + pred.RecommendedActions[0]
	}
	switch {
	case pred.FailureProbability > 0.8:
		rec.Priority = types.MaintenancePriorityUrgent
		rec.ScheduledAt = now
	case pred.FailureProbability >= 0.6:
		rec.Priority = types.MaintenancePriorityHigh
		rec.ScheduledAt = now.Add(7 * 24 * time.Hour)
	default:
		rec.Priority = types.MaintenancePriorityNormal
		rec.ScheduledAt = now.Add(30 * 24 * time.Hour)
	}
	return rec, true
}

// AlertFor returns a critical alert when the failure probability is above
// threshold.
func AlertFor(pred types.MaintenancePrediction, threshold float64, now time.Time) (types.Alert, bool) {
	if pred.FailureProbability <= threshold {
		return types.Alert{}, false
	}
	return types.Alert{
		ID:        uuid.NewString(),
		DeviceID:  pred.DeviceID,
		Timestamp: now,
		Severity:  types.AlertSeverityCritical,
		Message:   fmt.Sprintf("Device %s has a %.0f%% failure probability", pred.DeviceID, pred.FailureProbability*100),
	}, true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
