package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// testDatabase exercises a Database implementation. Ids are suffixed so
// runs against a shared emulator do not collide.
func testDatabase(t *testing.T, db Database) {
	ctx := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())
	now := time.Now().Truncate(time.Second).UTC()

	deviceID := "hvac-" + suffix
	device := types.Device{
		ID:           deviceID,
		Name:         "Upstairs HVAC",
		Type:         types.DeviceTypeHVAC,
		Controllable: true,
		RatedPowerW:  3500,
		CreatedAt:    now.Add(-365 * 24 * time.Hour),
	}

	t.Run("Devices", func(t *testing.T) {
		require.NoError(t, db.UpsertDevice(ctx, device))

		got, err := db.GetDevice(ctx, deviceID)
		require.NoError(t, err)
		assert.Equal(t, device.Name, got.Name)
		assert.Equal(t, device.RatedPowerW, got.RatedPowerW)
		assert.True(t, got.CreatedAt.Equal(device.CreatedAt))

		devices, err := db.ListDevices(ctx)
		require.NoError(t, err)
		var found bool
		for _, d := range devices {
			if d.ID == deviceID {
				found = true
			}
		}
		assert.True(t, found, "ListDevices did not return inserted device")

		t.Run("NotFound", func(t *testing.T) {
			_, err := db.GetDevice(ctx, "missing-"+suffix)
			assert.ErrorIs(t, err, ErrDeviceNotFound)
			assert.ErrorIs(t, err, types.ErrNotFound)
		})

		t.Run("EmptyID", func(t *testing.T) {
			_, err := db.GetDevice(ctx, "")
			assert.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	})

	t.Run("Telemetry", func(t *testing.T) {
		var samples []types.TelemetrySample
		for i := 0; i < 5; i++ {
			samples = append(samples, types.TelemetrySample{
				DeviceID:         deviceID,
				Timestamp:        now.Add(time.Duration(i-5) * time.Minute),
				PowerConsumption: 1000 + float64(i),
				Voltage:          240,
				Current:          4.2,
			})
		}
		// out of order on purpose
		require.NoError(t, db.InsertTelemetry(ctx, samples[3], samples[0], samples[4], samples[1], samples[2]))

		got, err := db.GetTelemetry(ctx, deviceID, now.Add(-4*time.Minute), now)
		require.NoError(t, err)
		require.Len(t, got, 4)
		for i := 1; i < len(got); i++ {
			assert.True(t, got[i].Timestamp.After(got[i-1].Timestamp))
		}
		assert.Equal(t, 1001.0, got[0].PowerConsumption)
	})

	t.Run("EnergyHistory", func(t *testing.T) {
		hour := now.Truncate(time.Hour)
		require.NoError(t, db.UpsertEnergyHistory(ctx, types.EnergyStats{TSHourStart: hour, HomeKWH: 1.5}))
		require.NoError(t, db.UpsertEnergyHistory(ctx, types.EnergyStats{TSHourStart: hour, HomeKWH: 2.5}))

		got, err := db.GetEnergyHistory(ctx, hour, hour.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 2.5, got[0].HomeKWH)

		err = db.UpsertEnergyHistory(ctx, types.EnergyStats{})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("Weather", func(t *testing.T) {
		base := now.Add(-48 * time.Hour).Truncate(time.Hour)
		require.NoError(t, db.UpsertWeather(ctx,
			types.WeatherObservation{Timestamp: base, TemperatureC: 20},
			types.WeatherObservation{Timestamp: base.Add(time.Hour), TemperatureC: 21},
		))
		got, err := db.GetWeather(ctx, base, base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 20.0, got[0].TemperatureC)
		assert.Equal(t, 21.0, got[1].TemperatureC)
	})

	t.Run("Maintenance", func(t *testing.T) {
		rec := types.MaintenanceRecord{
			ID:          "rec-" + suffix,
			DeviceID:    deviceID,
			Timestamp:   now.Add(-30 * 24 * time.Hour),
			Description: "filter replaced",
			Completed:   true,
		}
		require.NoError(t, db.InsertMaintenanceRecord(ctx, rec))

		got, err := db.GetMaintenanceHistory(ctx, deviceID, now.Add(-365*24*time.Hour), now)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "filter replaced", got[0].Description)

		got, err = db.GetMaintenanceHistory(ctx, deviceID, now.Add(-24*time.Hour), now)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Alerts", func(t *testing.T) {
		alert := types.Alert{
			ID:        "alert-" + suffix,
			DeviceID:  deviceID,
			Timestamp: now,
			Severity:  types.AlertSeverityCritical,
			Message:   "failure probability 0.91",
		}
		require.NoError(t, db.InsertAlert(ctx, alert))

		got, err := db.GetAlerts(ctx, now.Add(-time.Second), now.Add(time.Second))
		require.NoError(t, err)
		var found bool
		for _, a := range got {
			if a.ID == alert.ID {
				found = true
				assert.Equal(t, types.AlertSeverityCritical, a.Severity)
			}
		}
		assert.True(t, found, "did not find inserted alert")
	})

	t.Run("Plans", func(t *testing.T) {
		plan := types.OptimizationPlan{
			ID:        "plan-" + suffix,
			CreatedAt: now,
			Status:    types.PlanPending,
			Actions: []types.OptimizationAction{
				{ID: "a1", ExecutionOrder: 1, DeviceID: deviceID, Command: types.DeviceCommand{Type: types.CommandDefer}, ExecutionStatus: types.ExecutionPending},
			},
		}
		require.NoError(t, db.SavePlan(ctx, plan))

		plan.Status = types.PlanCompleted
		plan.Actions[0].ExecutionStatus = types.ExecutionCompleted
		require.NoError(t, db.SavePlan(ctx, plan))

		got, err := db.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PlanCompleted, got.Status)
		require.Len(t, got.Actions, 1)
		assert.Equal(t, types.ExecutionCompleted, got.Actions[0].ExecutionStatus)

		_, err = db.GetPlan(ctx, "missing-"+suffix)
		assert.ErrorIs(t, err, ErrPlanNotFound)
	})

	t.Run("Settings", func(t *testing.T) {
		settings := types.Settings{
			DryRun:            true,
			BaseDollarsPerKWH: 0.14,
			ComfortMinTempC:   19.5,
		}
		require.NoError(t, db.SetSettings(ctx, settings, 2))

		got, version, err := db.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, version)
		assert.Equal(t, settings.DryRun, got.DryRun)
		assert.Equal(t, settings.BaseDollarsPerKWH, got.BaseDollarsPerKWH)
		assert.Equal(t, settings.ComfortMinTempC, got.ComfortMinTempC)
	})

	t.Run("View", func(t *testing.T) {
		err := db.View(ctx, func(ctx context.Context, r Reader) error {
			d, err := r.GetDevice(ctx, deviceID)
			if err != nil {
				return err
			}
			assert.Equal(t, device.Name, d.Name)

			samples, err := r.GetTelemetry(ctx, deviceID, now.Add(-time.Hour), now)
			if err != nil {
				return err
			}
			assert.Len(t, samples, 5)
			return nil
		})
		require.NoError(t, err)

		t.Run("PropagatesError", func(t *testing.T) {
			err := db.View(ctx, func(ctx context.Context, r Reader) error {
				_, err := r.GetDevice(ctx, "missing-"+suffix)
				return err
			})
			assert.ErrorIs(t, err, types.ErrNotFound)
		})
	})
}
