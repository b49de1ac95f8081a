package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

// View hands the mock itself to fn so read expectations apply inside the
// session too.
func (m *MockDatabase) View(ctx context.Context, fn func(ctx context.Context, r storage.Reader) error) error {
	return fn(ctx, m)
}

func (m *MockDatabase) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	args := m.Called(ctx, deviceID)
	if len(args) > 0 {
		return args.Get(0).(types.Device), args.Error(1)
	}
	return types.Device{}, nil
}

func (m *MockDatabase) ListDevices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).([]types.Device), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetTelemetry(ctx context.Context, deviceID string, start, end time.Time) ([]types.TelemetrySample, error) {
	args := m.Called(ctx, deviceID, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.TelemetrySample), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetEnergyHistory(ctx context.Context, start, end time.Time) ([]types.EnergyStats, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.EnergyStats), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetWeather(ctx context.Context, start, end time.Time) ([]types.WeatherObservation, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.WeatherObservation), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetMaintenanceHistory(ctx context.Context, deviceID string, start, end time.Time) ([]types.MaintenanceRecord, error) {
	args := m.Called(ctx, deviceID, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.MaintenanceRecord), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetAlerts(ctx context.Context, start, end time.Time) ([]types.Alert, error) {
	args := m.Called(ctx, start, end)
	if len(args) > 0 {
		return args.Get(0).([]types.Alert), args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	args := m.Called(ctx, planID)
	if len(args) > 0 {
		return args.Get(0).(types.OptimizationPlan), args.Error(1)
	}
	return types.OptimizationPlan{}, nil
}

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) UpsertDevice(ctx context.Context, device types.Device) error {
	args := m.Called(ctx, device)
	return args.Error(0)
}

func (m *MockDatabase) InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error {
	args := m.Called(ctx, samples)
	return args.Error(0)
}

func (m *MockDatabase) UpsertEnergyHistory(ctx context.Context, stats types.EnergyStats) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

func (m *MockDatabase) UpsertWeather(ctx context.Context, observations ...types.WeatherObservation) error {
	args := m.Called(ctx, observations)
	return args.Error(0)
}

func (m *MockDatabase) InsertMaintenanceRecord(ctx context.Context, record types.MaintenanceRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDatabase) InsertAlert(ctx context.Context, alert types.Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

func (m *MockDatabase) SavePlan(ctx context.Context, plan types.OptimizationPlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
