package server

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

var testNow = time.Date(2024, 7, 10, 17, 0, 0, 0, time.UTC)

type mockEngine struct {
	mock.Mock
}

var _ Engine = (*mockEngine)(nil)

func (m *mockEngine) Now() time.Time { return testNow }

func (m *mockEngine) Settings(ctx context.Context) (types.Settings, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Settings), args.Error(1)
}

func (m *mockEngine) UpdateSettings(ctx context.Context, s types.Settings) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockEngine) RegisterDevice(ctx context.Context, d types.Device) (types.Device, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(types.Device), args.Error(1)
}

func (m *mockEngine) Devices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.Device), args.Error(1)
}

func (m *mockEngine) Alerts(ctx context.Context, start, end time.Time) ([]types.Alert, error) {
	args := m.Called(ctx, start, end)
	return args.Get(0).([]types.Alert), args.Error(1)
}

func (m *mockEngine) ForecastDemand(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error) {
	args := m.Called(ctx, start, days)
	return args.Get(0).(types.EnergyForecast), args.Error(1)
}

func (m *mockEngine) ForecastSolar(ctx context.Context, start time.Time, days int) (types.EnergyForecast, error) {
	args := m.Called(ctx, start, days)
	return args.Get(0).(types.EnergyForecast), args.Error(1)
}

func (m *mockEngine) PredictMaintenance(ctx context.Context, deviceID string) (types.MaintenancePrediction, error) {
	args := m.Called(ctx, deviceID)
	return args.Get(0).(types.MaintenancePrediction), args.Error(1)
}

func (m *mockEngine) DetectAnomalies(ctx context.Context, deviceID string, series controller.Series) (types.AnomalyDetectionResult, error) {
	args := m.Called(ctx, deviceID, series)
	return args.Get(0).(types.AnomalyDetectionResult), args.Error(1)
}

func (m *mockEngine) OptimizeEnergyUsage(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, error) {
	args := m.Called(ctx, window)
	return args.Get(0).(types.OptimizationResult), args.Error(1)
}

func (m *mockEngine) RunOptimization(ctx context.Context, window types.TimeWindow) (types.OptimizationResult, *types.OptimizationPlan, error) {
	args := m.Called(ctx, window)
	plan, _ := args.Get(1).(*types.OptimizationPlan)
	return args.Get(0).(types.OptimizationResult), plan, args.Error(2)
}

func (m *mockEngine) CreatePlan(ctx context.Context, strategies []types.OptimizationStrategy) (*types.OptimizationPlan, error) {
	args := m.Called(ctx, strategies)
	plan, _ := args.Get(0).(*types.OptimizationPlan)
	return plan, args.Error(1)
}

func (m *mockEngine) GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	args := m.Called(ctx, planID)
	return args.Get(0).(types.OptimizationPlan), args.Error(1)
}

func (m *mockEngine) ExecutePlanByID(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	args := m.Called(ctx, planID)
	return args.Get(0).(types.OptimizationPlan), args.Error(1)
}

func (m *mockEngine) HandleDemandResponse(ctx context.Context, event types.DemandResponseEvent) (types.DemandResponseResult, error) {
	args := m.Called(ctx, event)
	return args.Get(0).(types.DemandResponseResult), args.Error(1)
}

type fakeHealth struct {
	err error
}

func (f fakeHealth) HealthCheck(ctx context.Context) error { return f.err }
