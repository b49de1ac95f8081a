package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aaronseq12/NexusHome-IoT/pkg/anomaly"
	"github.com/aaronseq12/NexusHome-IoT/pkg/cache"
	"github.com/aaronseq12/NexusHome-IoT/pkg/features"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/maintenance"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// DeviceData is what a maintenance prediction reads for one device.
type DeviceData struct {
	Device      types.Device
	Samples     []types.TelemetrySample
	Maintenance []types.MaintenanceRecord
}

func readDeviceData(ctx context.Context, r storage.Reader, device types.Device, now time.Time) (DeviceData, error) {
	samples, err := r.GetTelemetry(ctx, device.ID, now.Add(-telemetryLookback), now.Add(time.Second))
	if err != nil {
		return DeviceData{}, fmt.Errorf("failed to get telemetry for %s: %w", device.ID, err)
	}
	records, err := r.GetMaintenanceHistory(ctx, device.ID, now.Add(-maintenanceLookback), now.Add(time.Second))
	if err != nil {
		return DeviceData{}, fmt.Errorf("failed to get maintenance history for %s: %w", device.ID, err)
	}
	return DeviceData{Device: device, Samples: samples, Maintenance: records}, nil
}

// maintenanceTimes returns when completed maintenance happened.
func (d DeviceData) maintenanceTimes() []time.Time {
	var times []time.Time
	for _, rec := range d.Maintenance {
		if rec.Completed {
			times = append(times, rec.Timestamp)
		}
	}
	return times
}

// MaintenanceSnapshot reads the settings and the data of every device in
// one read session.
func (c *Controller) MaintenanceSnapshot(ctx context.Context) (types.Settings, []DeviceData, error) {
	now := c.now()
	var (
		settings types.Settings
		data     []DeviceData
	)
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if settings, err = c.settings(ctx, r); err != nil {
			return err
		}
		devices, err := r.ListDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		data = make([]DeviceData, 0, len(devices))
		for _, d := range devices {
			dd, err := readDeviceData(ctx, r, d, now)
			if err != nil {
				return err
			}
			data = append(data, dd)
		}
		return nil
	})
	if err != nil {
		return types.Settings{}, nil, upstream(err)
	}
	return settings, data, nil
}

// features returns the device's feature vector. A cached vector is reused
// while neither the newest sample nor the latest maintenance changed, with
// its clock dependent fields recomputed for now.
func (c *Controller) features(ctx context.Context, d DeviceData, now time.Time) types.FeatureVector {
	maint := d.maintenanceTimes()
	key := cache.Key{DeviceID: d.Device.ID}
	for _, m := range maint {
		if m.After(key.LastMaintenance) {
			key.LastMaintenance = m
		}
	}
	if n := len(d.Samples); n > 0 {
		key.Newest = d.Samples[n-1].Timestamp
		if fv, ok := c.cache.GetFeatures(ctx, key); ok {
			return features.Refresh(fv, d.Samples, d.Device.CreatedAt, maint, now)
		}
	}
	fv := features.Extract(d.Samples, d.Device.CreatedAt, maint, now)
	if !key.Newest.IsZero() {
		if err := c.cache.SetFeatures(ctx, key, fv); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to cache features", slog.String("deviceID", d.Device.ID), slog.Any("error", err))
		}
	}
	return fv
}

// Predict runs the failure predictor over the device data.
func (c *Controller) Predict(ctx context.Context, settings types.Settings, d DeviceData) types.MaintenancePrediction {
	now := c.now()
	fv := c.features(ctx, d, now)
	pred := maintenance.NewPredictor(c.registry, settings.Policy.MinSamplesForPrediction).Predict(ctx, d.Device, d.Samples, fv, now)

	outcome := "ok"
	switch {
	case pred.InsufficientData:
		outcome = "insufficient_data"
	case pred.ModelUnavailable:
		outcome = "model_unavailable"
	default:
		metrics.FailureProbability.WithLabelValues(d.Device.ID).Set(pred.FailureProbability)
	}
	metrics.PredictionsTotal.WithLabelValues(string(d.Device.Type), outcome).Inc()
	return pred
}

// PredictMaintenance predicts the failure probability of a device.
func (c *Controller) PredictMaintenance(ctx context.Context, deviceID string) (types.MaintenancePrediction, error) {
	ctx = log.WithAttrs(ctx, slog.String("deviceID", deviceID))
	now := c.now()
	var (
		settings types.Settings
		data     DeviceData
	)
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if settings, err = c.settings(ctx, r); err != nil {
			return err
		}
		device, err := r.GetDevice(ctx, deviceID)
		if err != nil {
			return err
		}
		data, err = readDeviceData(ctx, r, device, now)
		return err
	})
	if err != nil {
		return types.MaintenancePrediction{}, upstream(err)
	}

	pred := c.Predict(ctx, settings, data)
	c.emit(ctx, types.EventPredictionProduced, deviceID, pred)
	return pred, nil
}

// RecordPrediction persists what a sweep found for one device: a
// maintenance record and an alert when the probability is high enough, and
// an alert for anomalous recent power readings.
func (c *Controller) RecordPrediction(ctx context.Context, settings types.Settings, d DeviceData, pred types.MaintenancePrediction) error {
	now := c.now()
	policy := settings.Policy
	var errs []error

	if rec, ok := maintenance.RecordFor(pred, policy.MaintenanceRecordThreshold, now); ok {
		if err := c.db.InsertMaintenanceRecord(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	if alert, ok := maintenance.AlertFor(pred, policy.AlertThreshold, now); ok {
		if err := c.db.InsertAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}

	res := c.detect(ctx, d.Device.ID, recentSeries(d.Samples, anomalySeriesLength), anomaly.Options{})
	if res.HasAnomalies {
		alert := types.Alert{
			ID:        uuid.NewString(),
			DeviceID:  d.Device.ID,
			Timestamp: now,
			Severity:  types.AlertSeverityWarning,
			Message:   fmt.Sprintf("%d anomalous power readings on %s", res.Count, d.Device.Name),
		}
		if err := c.db.InsertAlert(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}

	c.emit(ctx, types.EventPredictionProduced, d.Device.ID, pred)
	if err := errors.Join(errs...); err != nil {
		return upstream(err)
	}
	return nil
}

// Series is an anomaly detection request. When Values is empty the most
// recent power readings of the device are used.
type Series struct {
	Values     []float64   `json:"values"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
	WindowSize int         `json:"windowSize,omitempty"`
	Threshold  float64     `json:"threshold,omitempty"`
}

func recentSeries(samples []types.TelemetrySample, n int) Series {
	if len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	s := Series{
		Values:     make([]float64, len(samples)),
		Timestamps: make([]time.Time, len(samples)),
	}
	for i, sample := range samples {
		s.Values[i] = sample.PowerConsumption
		s.Timestamps[i] = sample.Timestamp
	}
	return s
}

// DetectAnomalies scores a series for a device.
func (c *Controller) DetectAnomalies(ctx context.Context, deviceID string, series Series) (types.AnomalyDetectionResult, error) {
	ctx = log.WithAttrs(ctx, slog.String("deviceID", deviceID))
	if len(series.Timestamps) > 0 && len(series.Timestamps) != len(series.Values) {
		return types.AnomalyDetectionResult{}, fmt.Errorf("%w: timestamps and values differ in length", types.ErrInvalidArgument)
	}

	now := c.now()
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		if _, err := r.GetDevice(ctx, deviceID); err != nil {
			return err
		}
		if len(series.Values) > 0 {
			return nil
		}
		samples, err := r.GetTelemetry(ctx, deviceID, now.Add(-7*24*time.Hour), now.Add(time.Second))
		if err != nil {
			return fmt.Errorf("failed to get telemetry for %s: %w", deviceID, err)
		}
		recent := recentSeries(samples, anomalySeriesLength)
		series.Values, series.Timestamps = recent.Values, recent.Timestamps
		return nil
	})
	if err != nil {
		return types.AnomalyDetectionResult{}, upstream(err)
	}

	return c.detect(ctx, deviceID, series, anomaly.Options{WindowSize: series.WindowSize, Threshold: series.Threshold}), nil
}

func (c *Controller) detect(ctx context.Context, deviceID string, series Series, opts anomaly.Options) types.AnomalyDetectionResult {
	res := anomaly.Detect(series.Values, series.Timestamps, opts)
	res.DeviceID = deviceID
	if !res.HasAnomalies {
		return res
	}

	metrics.AnomaliesTotal.WithLabelValues(deviceID).Add(float64(res.Count))
	total, err := c.cache.IncrementAnomalyCount(ctx, deviceID)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to count anomalies", slog.Any("error", err))
	}
	log.Ctx(ctx).InfoContext(ctx, "anomalies detected", slog.Int("count", res.Count), slog.Float64("confidence", res.Confidence), slog.Int64("total", total))
	c.emit(ctx, types.EventAnomalyDetected, deviceID, res)
	return res
}
