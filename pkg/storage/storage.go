package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

var (
	ErrDeviceNotFound = fmt.Errorf("device %w", types.ErrNotFound)
	ErrPlanNotFound   = fmt.Errorf("plan %w", types.ErrNotFound)
)

// Reader is the read side of the store. Inside Database.View every call
// observes the same snapshot.
type Reader interface {
	GetDevice(ctx context.Context, deviceID string) (types.Device, error)
	ListDevices(ctx context.Context) ([]types.Device, error)

	// GetTelemetry returns samples in [start, end) ordered by timestamp.
	GetTelemetry(ctx context.Context, deviceID string, start, end time.Time) ([]types.TelemetrySample, error)
	GetEnergyHistory(ctx context.Context, start, end time.Time) ([]types.EnergyStats, error)
	GetWeather(ctx context.Context, start, end time.Time) ([]types.WeatherObservation, error)
	GetMaintenanceHistory(ctx context.Context, deviceID string, start, end time.Time) ([]types.MaintenanceRecord, error)
	GetAlerts(ctx context.Context, start, end time.Time) ([]types.Alert, error)

	GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error)

	// GetSettings returns zero settings and version 0 when none are stored.
	GetSettings(ctx context.Context) (types.Settings, int, error)
}

// Database defines the interface for persisting data and retrieving settings.
type Database interface {
	Reader

	// View runs fn against a consistent read-only snapshot.
	View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error

	UpsertDevice(ctx context.Context, device types.Device) error
	InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error
	UpsertEnergyHistory(ctx context.Context, stats types.EnergyStats) error
	UpsertWeather(ctx context.Context, observations ...types.WeatherObservation) error
	InsertMaintenanceRecord(ctx context.Context, record types.MaintenanceRecord) error
	InsertAlert(ctx context.Context, alert types.Alert) error
	SavePlan(ctx context.Context, plan types.OptimizationPlan) error
	SetSettings(ctx context.Context, settings types.Settings, version int) error

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore, badger)")

	var p struct{ Database }

	fs := configuredFirestore()
	bdb := configuredBadger()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "badger":
			if err := bdb.Validate(); err != nil {
				panic(fmt.Sprintf("badger validation failed: %v", err))
			}
			p.Database = bdb
			if err := bdb.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("badger init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}

// docTimeFormat is a fixed width UTC format so ids sort lexicographically
// in time order.
const docTimeFormat = "2006-01-02T15:04:05.000000000Z"

func timeKey(t time.Time) string {
	return t.UTC().Format(docTimeFormat)
}
