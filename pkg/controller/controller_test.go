package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus/busmock"
	"github.com/aaronseq12/NexusHome-IoT/pkg/executor"
	"github.com/aaronseq12/NexusHome-IoT/pkg/maintenance"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage/storagemock"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// Wednesday, inside the peak period.
var testNow = time.Date(2024, 7, 10, 17, 0, 0, 0, time.UTC)

type testEnv struct {
	c        *Controller
	db       *storage.BadgerProvider
	cmd      *busmock.MockCommander
	notifier *busmock.MockNotifier
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	db, err := storage.NewInMemoryBadger()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cmd := &busmock.MockCommander{}
	notifier := &busmock.MockNotifier{}
	exec := executor.New(cmd, db, notifier, 0)
	c := New(db, cmd, notifier, exec)
	c.now = func() time.Time { return testNow }
	return testEnv{c: c, db: db, cmd: cmd, notifier: notifier}
}

func testSettings() types.Settings {
	s := types.DefaultSettings()
	s.BaseDollarsPerKWH = 0.10
	s.TariffPeriods = []types.TariffPeriod{{
		Name:          "peak",
		HourStart:     16,
		HourEnd:       21,
		DollarsPerKWH: 0.35,
		Peak:          true,
	}}
	return s
}

func waterHeater() types.Device {
	return types.Device{
		ID:           "water-heater",
		Name:         "Water Heater",
		Type:         types.DeviceTypeWaterHeater,
		Controllable: true,
		RatedPowerW:  4500,
		CreatedAt:    testNow.Add(-365 * 24 * time.Hour),
	}
}

type fixedClassifier struct {
	probability float64
}

func (f fixedClassifier) Predict(types.FeatureVector) (float64, float64, error) {
	return f.probability, 0.9, nil
}

func TestSettings(t *testing.T) {
	ctx := context.Background()

	t.Run("Defaults When Unset", func(t *testing.T) {
		env := newTestEnv(t)
		s, err := env.c.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, types.DefaultSettings(), s)
	})

	t.Run("Update", func(t *testing.T) {
		env := newTestEnv(t)
		want := testSettings()
		require.NoError(t, env.c.UpdateSettings(ctx, want))

		got, err := env.c.Settings(ctx)
		require.NoError(t, err)
		assert.Equal(t, want.TariffPeriods[0].Name, got.TariffPeriods[0].Name)
		assert.Equal(t, want.BaseDollarsPerKWH, got.BaseDollarsPerKWH)
	})

	t.Run("Invalid Comfort Band", func(t *testing.T) {
		env := newTestEnv(t)
		s := testSettings()
		s.ComfortMinTempC, s.ComfortMaxTempC = 24, 18
		err := env.c.UpdateSettings(ctx, s)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func TestOptimizeEnergyUsage(t *testing.T) {
	ctx := context.Background()
	window := types.TimeWindow{Start: testNow, End: testNow.Add(24 * time.Hour)}

	t.Run("Appliance Scheduling", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.c.UpdateSettings(ctx, testSettings()))
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))

		res, err := env.c.OptimizeEnergyUsage(ctx, window)
		require.NoError(t, err)
		require.NotEmpty(t, res.Strategies)

		var found bool
		for _, s := range res.Strategies {
			if s.Type == types.StrategyApplianceScheduling {
				found = true
				assert.Equal(t, "water-heater", s.TargetDeviceID)
				assert.Greater(t, s.PotentialSavings, 0.0)
			}
		}
		assert.True(t, found)
		assert.Greater(t, res.TotalSavings, 0.0)
	})

	t.Run("Invalid Window", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.OptimizeEnergyUsage(ctx, types.TimeWindow{Start: testNow, End: testNow})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("Storage Unavailable", func(t *testing.T) {
		db := &storagemock.MockDatabase{}
		db.On("GetSettings", mock.Anything).Return(types.Settings{}, 0, errors.New("connection refused"))
		c := New(db, &busmock.MockCommander{}, nil, executor.New(&busmock.MockCommander{}, db, nil, 0))
		c.now = func() time.Time { return testNow }

		_, err := c.OptimizeEnergyUsage(ctx, window)
		assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
	})
}

func TestRunOptimization(t *testing.T) {
	ctx := context.Background()
	window := types.TimeWindow{Start: testNow, End: testNow.Add(24 * time.Hour)}

	setup := func(t *testing.T, mutate func(*types.Settings)) testEnv {
		env := newTestEnv(t)
		s := testSettings()
		s.AutoExecute = true
		if mutate != nil {
			mutate(&s)
		}
		require.NoError(t, env.c.UpdateSettings(ctx, s))
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		return env
	}

	t.Run("Executes Plan", func(t *testing.T) {
		env := setup(t, nil)
		env.cmd.On("SendCommand", mock.Anything, "water-heater", mock.MatchedBy(func(c types.DeviceCommand) bool {
			return c.Type == types.CommandScheduleRun
		})).Return(nil).Once()
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		_, plan, err := env.c.RunOptimization(ctx, window)
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, types.PlanCompleted, plan.Status)

		stored, err := env.c.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PlanCompleted, stored.Status)
		env.cmd.AssertExpectations(t)
	})

	t.Run("Dry Run", func(t *testing.T) {
		env := setup(t, func(s *types.Settings) { s.DryRun = true })

		_, plan, err := env.c.RunOptimization(ctx, window)
		require.NoError(t, err)
		require.NotNil(t, plan)
		assert.Equal(t, types.PlanPending, plan.Status)
		env.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)

		_, err = env.c.GetPlan(ctx, plan.ID)
		assert.NoError(t, err)
	})

	t.Run("Paused", func(t *testing.T) {
		env := setup(t, func(s *types.Settings) { s.Pause = true })

		res, plan, err := env.c.RunOptimization(ctx, window)
		require.NoError(t, err)
		assert.Nil(t, plan)
		assert.NotEmpty(t, res.Strategies)
	})

	t.Run("Auto Execute Off", func(t *testing.T) {
		env := setup(t, func(s *types.Settings) { s.AutoExecute = false })

		_, plan, err := env.c.RunOptimization(ctx, window)
		require.NoError(t, err)
		assert.Nil(t, plan)
	})
}

func TestExecutePlanByID(t *testing.T) {
	ctx := context.Background()

	t.Run("Not Found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.ExecutePlanByID(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("Partial Failure", func(t *testing.T) {
		env := newTestEnv(t)
		plan, err := env.c.CreatePlan(ctx, []types.OptimizationStrategy{
			{Name: "a", Type: types.StrategyApplianceScheduling, TargetDeviceID: "dev-a"},
			{Name: "b", Type: types.StrategyLoadShifting, TargetDeviceID: "dev-b"},
		})
		require.NoError(t, err)
		require.Len(t, plan.Actions, 2)

		env.cmd.On("SendCommand", mock.Anything, "dev-a", mock.Anything).Return(nil)
		env.cmd.On("SendCommand", mock.Anything, "dev-b", mock.Anything).Return(errors.New("offline"))
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		got, err := env.c.ExecutePlanByID(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PlanPartiallyCompleted, got.Status)
		assert.Equal(t, types.ExecutionFailed, got.Actions[1].ExecutionStatus)
		assert.Equal(t, "offline", got.Actions[1].Error)
	})

	t.Run("Empty Strategies", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.CreatePlan(ctx, nil)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func TestForecast(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("Demand", func(t *testing.T) {
		f, err := env.c.ForecastDemand(ctx, testNow, 2)
		require.NoError(t, err)
		assert.Len(t, f.Points, 48)
		assert.Equal(t, types.ForecastKindDemand, f.Kind)
	})

	t.Run("Solar", func(t *testing.T) {
		f, err := env.c.ForecastSolar(ctx, testNow, 1)
		require.NoError(t, err)
		assert.Len(t, f.Points, 24)
	})

	t.Run("Invalid Days", func(t *testing.T) {
		_, err := env.c.ForecastDemand(ctx, testNow, 0)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
		_, err = env.c.ForecastDemand(ctx, testNow, 15)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func insertSamples(t *testing.T, env testEnv, deviceID string, n int, power func(i int) float64) {
	t.Helper()
	samples := make([]types.TelemetrySample, n)
	start := testNow.Add(-time.Duration(n) * time.Hour)
	for i := range samples {
		samples[i] = types.TelemetrySample{
			DeviceID:         deviceID,
			Timestamp:        start.Add(time.Duration(i) * time.Hour),
			PowerConsumption: power(i),
			Voltage:          240,
			Current:          power(i) / 240,
		}
	}
	require.NoError(t, env.db.InsertTelemetry(context.Background(), samples...))
}

func TestPredictMaintenance(t *testing.T) {
	ctx := context.Background()
	constant := func(int) float64 { return 4000 }

	t.Run("Not Found", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.PredictMaintenance(ctx, "missing")
		assert.ErrorIs(t, err, types.ErrNotFound)
	})

	t.Run("Insufficient Data", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		insertSamples(t, env, "water-heater", 10, constant)
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		pred, err := env.c.PredictMaintenance(ctx, "water-heater")
		require.NoError(t, err)
		assert.True(t, pred.InsufficientData)
		assert.Zero(t, pred.Confidence)
	})

	t.Run("Prediction", func(t *testing.T) {
		env := newTestEnv(t)
		reg := maintenance.NewRegistry()
		reg.SetFallback(fixedClassifier{probability: 0.9})
		env.c.SetRegistry(reg)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		insertSamples(t, env, "water-heater", 150, constant)
		env.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e types.DomainEvent) bool {
			return e.Type == types.EventPredictionProduced && e.DeviceID == "water-heater"
		})).Return(nil).Once()

		pred, err := env.c.PredictMaintenance(ctx, "water-heater")
		require.NoError(t, err)
		assert.InDelta(t, 0.9, pred.FailureProbability, 1e-9)
		assert.NotNil(t, pred.PredictedFailureDate)
		env.notifier.AssertExpectations(t)
	})
}

func TestRecordPrediction(t *testing.T) {
	ctx := context.Background()

	t.Run("High Probability", func(t *testing.T) {
		env := newTestEnv(t)
		reg := maintenance.NewRegistry()
		reg.SetFallback(fixedClassifier{probability: 0.9})
		env.c.SetRegistry(reg)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		insertSamples(t, env, "water-heater", 150, func(int) float64 { return 4000 })
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		settings, data, err := env.c.MaintenanceSnapshot(ctx)
		require.NoError(t, err)
		require.Len(t, data, 1)
		assert.Len(t, data[0].Samples, 150)

		pred := env.c.Predict(ctx, settings, data[0])
		require.NoError(t, env.c.RecordPrediction(ctx, settings, data[0], pred))

		records, err := env.db.GetMaintenanceHistory(ctx, "water-heater", testNow.Add(-time.Hour), testNow.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Predicted)
		assert.Equal(t, types.MaintenancePriorityUrgent, records[0].Priority)

		alerts, err := env.db.GetAlerts(ctx, testNow.Add(-time.Hour), testNow.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, types.AlertSeverityCritical, alerts[0].Severity)
	})

	t.Run("Low Probability With Anomaly", func(t *testing.T) {
		env := newTestEnv(t)
		reg := maintenance.NewRegistry()
		reg.SetFallback(fixedClassifier{probability: 0.1})
		env.c.SetRegistry(reg)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		insertSamples(t, env, "water-heater", 150, func(i int) float64 {
			if i == 149 {
				return 9000
			}
			return 4000
		})
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		settings, data, err := env.c.MaintenanceSnapshot(ctx)
		require.NoError(t, err)
		pred := env.c.Predict(ctx, settings, data[0])
		require.NoError(t, env.c.RecordPrediction(ctx, settings, data[0], pred))

		records, err := env.db.GetMaintenanceHistory(ctx, "water-heater", testNow.Add(-time.Hour), testNow.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, records)

		alerts, err := env.db.GetAlerts(ctx, testNow.Add(-time.Hour), testNow.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, alerts, 1)
		assert.Equal(t, types.AlertSeverityWarning, alerts[0].Severity)
		env.notifier.AssertCalled(t, "Notify", mock.Anything, mock.MatchedBy(func(e types.DomainEvent) bool {
			return e.Type == types.EventAnomalyDetected
		}))
	})
}

func TestDetectAnomalies(t *testing.T) {
	ctx := context.Background()

	t.Run("Supplied Series", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		env.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e types.DomainEvent) bool {
			return e.Type == types.EventAnomalyDetected
		})).Return(nil).Once()

		values := make([]float64, 40)
		for i := range values {
			values[i] = 100
		}
		values[39] = 500
		res, err := env.c.DetectAnomalies(ctx, "water-heater", Series{Values: values})
		require.NoError(t, err)
		assert.True(t, res.HasAnomalies)
		assert.Equal(t, 1, res.Count)
		assert.Equal(t, 39, res.Anomalies[0].Index)
		assert.Equal(t, "water-heater", res.DeviceID)
		env.notifier.AssertExpectations(t)
	})

	t.Run("Stored Telemetry", func(t *testing.T) {
		env := newTestEnv(t)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		insertSamples(t, env, "water-heater", 48, func(int) float64 { return 4000 })

		res, err := env.c.DetectAnomalies(ctx, "water-heater", Series{})
		require.NoError(t, err)
		assert.False(t, res.HasAnomalies)
		assert.Empty(t, res.Anomalies)
	})

	t.Run("Mismatched Lengths", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.DetectAnomalies(ctx, "water-heater", Series{
			Values:     []float64{1, 2, 3},
			Timestamps: []time.Time{testNow},
		})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("Unknown Device", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.DetectAnomalies(ctx, "missing", Series{Values: []float64{1, 2}})
		assert.ErrorIs(t, err, types.ErrNotFound)
	})
}

type recordingScheduler struct {
	actions []types.DemandResponseAction
}

func (s *recordingScheduler) Schedule(ctx context.Context, at time.Time, action types.DemandResponseAction) error {
	s.actions = append(s.actions, action)
	return nil
}

func TestHandleDemandResponse(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) testEnv {
		env := newTestEnv(t)
		require.NoError(t, env.db.UpsertDevice(ctx, waterHeater()))
		require.NoError(t, env.db.UpsertDevice(ctx, types.Device{ID: "tv", Type: types.DeviceTypeAppliance, RatedPowerW: 200}))
		require.NoError(t, env.db.InsertTelemetry(ctx, types.TelemetrySample{
			DeviceID:         "water-heater",
			Timestamp:        testNow.Add(-5 * time.Minute),
			PowerConsumption: 4000,
		}))
		return env
	}

	t.Run("Emergency", func(t *testing.T) {
		env := setup(t)
		env.cmd.On("SendCommand", mock.Anything, "water-heater", mock.MatchedBy(func(c types.DeviceCommand) bool {
			return c.Type == types.CommandTurnOff
		})).Return(nil).Once()
		env.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(e types.DomainEvent) bool {
			return e.Type == types.EventDemandResponseReported
		})).Return(nil).Once()

		res, err := env.c.HandleDemandResponse(ctx, types.DemandResponseEvent{
			EventID:         "evt-1",
			EventType:       types.DREventEmergencyResponse,
			StartTime:       testNow.Add(-time.Minute),
			EndTime:         testNow.Add(time.Hour),
			TargetReduction: 3000,
		})
		require.NoError(t, err)
		require.Len(t, res.Actions, 1)
		assert.True(t, res.Actions[0].Executed)
		assert.InDelta(t, 4000, res.TotalPowerReduction, 1e-9)
		assert.True(t, res.ReductionAchieved)
		assert.Equal(t, types.DRStateReported, res.State)
		env.cmd.AssertExpectations(t)
		env.notifier.AssertExpectations(t)
	})

	t.Run("Future Event Is Scheduled", func(t *testing.T) {
		env := setup(t)
		sched := &recordingScheduler{}
		env.c.SetDeferredScheduler(sched)
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		res, err := env.c.HandleDemandResponse(ctx, types.DemandResponseEvent{
			EventID:         "evt-2",
			EventType:       types.DREventLoadReduction,
			StartTime:       testNow.Add(time.Hour),
			EndTime:         testNow.Add(2 * time.Hour),
			TargetReduction: 1000,
		})
		require.NoError(t, err)
		require.Len(t, sched.actions, 1)
		assert.Equal(t, "water-heater", sched.actions[0].DeviceID)
		assert.Equal(t, types.DRPriorityScheduled, res.Actions[0].Priority)
		env.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Dry Run", func(t *testing.T) {
		env := setup(t)
		s := testSettings()
		s.DryRun = true
		require.NoError(t, env.c.UpdateSettings(ctx, s))
		env.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

		res, err := env.c.HandleDemandResponse(ctx, types.DemandResponseEvent{
			EventID:         "evt-3",
			EventType:       types.DREventEmergencyResponse,
			StartTime:       testNow,
			EndTime:         testNow.Add(time.Hour),
			TargetReduction: 100,
		})
		require.NoError(t, err)
		require.Len(t, res.Actions, 1)
		assert.True(t, res.Actions[0].Executed)
		env.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid Event", func(t *testing.T) {
		env := setup(t)
		_, err := env.c.HandleDemandResponse(ctx, types.DemandResponseEvent{
			EventID:   "evt-4",
			EventType: types.DREventPeakShaving,
			StartTime: testNow,
			EndTime:   testNow,
		})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})
}

func TestBuildHomeState(t *testing.T) {
	soc := 55.0
	devices := []types.Device{
		{ID: "meter", Type: types.DeviceTypeMeter},
		{ID: "solar", Type: types.DeviceTypeSolarInverter, RatedPowerW: 6000},
		{ID: "battery", Type: types.DeviceTypeBattery, RatedPowerW: 5000, CapacityKWH: 13.5},
		{ID: "hvac", Type: types.DeviceTypeHVAC, RatedPowerW: 3000},
	}
	latest := map[string]types.TelemetrySample{
		"solar":   {PowerConsumption: 2500},
		"battery": {StateOfCharge: &soc},
		"hvac":    {PowerConsumption: 2000},
	}

	t.Run("Sum Of Devices Without Meter Reading", func(t *testing.T) {
		hs := buildHomeState(devices, latest, testNow)
		assert.InDelta(t, 2.0, hs.Consumption.HomeKW, 1e-9)
		assert.InDelta(t, 2.0, hs.Consumption.DeviceKW["hvac"], 1e-9)
		require.NotNil(t, hs.Solar)
		assert.InDelta(t, 2.5, hs.Solar.CurrentKW, 1e-9)
		assert.InDelta(t, 6.0, hs.Solar.CapacityKW, 1e-9)
		require.NotNil(t, hs.Battery)
		assert.Equal(t, 55.0, hs.Battery.SOC)
		assert.Equal(t, 13.5, hs.Battery.CapacityKWH)
		assert.Equal(t, float64(defaultBatteryMinSOC), hs.Battery.MinSOC)
	})

	t.Run("Meter Reading Wins", func(t *testing.T) {
		withMeter := map[string]types.TelemetrySample{"meter": {PowerConsumption: 3500}}
		for k, v := range latest {
			withMeter[k] = v
		}
		hs := buildHomeState(devices, withMeter, testNow)
		assert.InDelta(t, 3.5, hs.Consumption.HomeKW, 1e-9)
	})

	t.Run("Battery Without Capacity Ignored", func(t *testing.T) {
		hs := buildHomeState([]types.Device{{ID: "b", Type: types.DeviceTypeBattery}}, nil, testNow)
		assert.Nil(t, hs.Battery)
	})
}

func TestDevices(t *testing.T) {
	ctx := context.Background()

	t.Run("Register And List", func(t *testing.T) {
		env := newTestEnv(t)
		d, err := env.c.RegisterDevice(ctx, types.Device{ID: "ev", Type: types.DeviceTypeEVCharger, RatedPowerW: 7200})
		require.NoError(t, err)
		assert.Equal(t, testNow, d.CreatedAt)

		devices, err := env.c.Devices(ctx)
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, "ev", devices[0].ID)
	})

	t.Run("Missing Fields", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.RegisterDevice(ctx, types.Device{Type: types.DeviceTypeHVAC})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
		_, err = env.c.RegisterDevice(ctx, types.Device{ID: "x"})
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
	})

	t.Run("Alerts Range", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.c.Alerts(ctx, testNow, testNow.Add(-time.Hour))
		assert.ErrorIs(t, err, types.ErrInvalidArgument)
		_, err = env.c.Alerts(ctx, testNow.Add(-60*24*time.Hour), testNow)
		assert.ErrorIs(t, err, types.ErrInvalidArgument)

		alerts, err := env.c.Alerts(ctx, testNow.Add(-time.Hour), testNow)
		require.NoError(t, err)
		assert.Empty(t, alerts)
	})
}
