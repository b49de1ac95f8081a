package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// BadgerProvider implements Database on an embedded Badger key-value store.
// Values are JSON; keys are prefixed by kind and suffixed with fixed width
// timestamps so prefix iteration yields time order.
type BadgerProvider struct {
	db       *badger.DB
	dir      string
	inMemory bool
}

func configuredBadger() *BadgerProvider {
	dir := lflag.String("badger-dir", "", "Directory for the badger store, empty keeps it in memory")

	b := &BadgerProvider{}

	lflag.Do(func() {
		b.dir = *dir
		b.inMemory = *dir == ""
	})

	return b
}

// NewInMemoryBadger returns an initialized in-memory store.
func NewInMemoryBadger() (*BadgerProvider, error) {
	b := &BadgerProvider{inMemory: true}
	if err := b.Init(context.Background()); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks if the provider is properly configured.
func (b *BadgerProvider) Validate() error {
	if !b.inMemory && b.dir == "" {
		return errors.New("badger-dir is required")
	}
	return nil
}

// Init opens the store.
func (b *BadgerProvider) Init(ctx context.Context) error {
	opts := badger.DefaultOptions(b.dir).WithLogger(nil)
	if b.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to open badger (dir=%s): %w", b.dir, err)
	}
	b.db = db
	return nil
}

// Close closes the store.
func (b *BadgerProvider) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func deviceKey(id string) []byte { return []byte("device/" + id) }
func telemetryPrefix(deviceID string) []byte {
	return []byte("telemetry/" + deviceID + "/")
}
func maintenancePrefix(deviceID string) []byte {
	return []byte("maint/" + deviceID + "/")
}
func planKey(id string) []byte { return []byte("plan/" + id) }

var (
	devicePrefix  = []byte("device/")
	energyPrefix  = []byte("energy/")
	weatherPrefix = []byte("weather/")
	alertPrefix   = []byte("alert/")
	settingsKey   = []byte("config/settings")
)

func withTime(prefix []byte, t time.Time, suffix string) []byte {
	k := make([]byte, 0, len(prefix)+len(docTimeFormat)+1+len(suffix))
	k = append(k, prefix...)
	k = append(k, timeKey(t)...)
	if suffix != "" {
		k = append(k, '/')
		k = append(k, suffix...)
	}
	return k
}

type settingsEnvelope struct {
	Version  int             `json:"version"`
	Settings json.RawMessage `json:"settings"`
}

// View runs fn against a read-only badger transaction.
func (b *BadgerProvider) View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(ctx, badgerView{txn: txn})
	})
}

func (b *BadgerProvider) view(fn func(v badgerView) error) error {
	return b.db.View(func(txn *badger.Txn) error {
		return fn(badgerView{txn: txn})
	})
}

// badgerView implements Reader within a single transaction.
type badgerView struct {
	txn *badger.Txn
}

func (v badgerView) getJSON(key []byte, out any) error {
	item, err := v.txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// scanRange collects values with keys in [from, to) under prefix.
func scanRange[T any](txn *badger.Txn, prefix, from, to []byte) ([]T, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var out []T
	for it.Seek(from); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		if to != nil && bytes.Compare(item.Key(), to) >= 0 {
			break
		}
		var v T
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &v)
		}); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", item.Key(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (v badgerView) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	if deviceID == "" {
		return types.Device{}, fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
	}
	var d types.Device
	if err := v.getJSON(deviceKey(deviceID), &d); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.Device{}, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	return d, nil
}

func (v badgerView) ListDevices(ctx context.Context) ([]types.Device, error) {
	return scanRange[types.Device](v.txn, devicePrefix, devicePrefix, nil)
}

func (v badgerView) GetTelemetry(ctx context.Context, deviceID string, start, end time.Time) ([]types.TelemetrySample, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
	}
	p := telemetryPrefix(deviceID)
	return scanRange[types.TelemetrySample](v.txn, p, withTime(p, start, ""), withTime(p, end, ""))
}

func (v badgerView) GetEnergyHistory(ctx context.Context, start, end time.Time) ([]types.EnergyStats, error) {
	return scanRange[types.EnergyStats](v.txn, energyPrefix, withTime(energyPrefix, start.Truncate(time.Hour), ""), withTime(energyPrefix, end.Truncate(time.Hour), ""))
}

func (v badgerView) GetWeather(ctx context.Context, start, end time.Time) ([]types.WeatherObservation, error) {
	return scanRange[types.WeatherObservation](v.txn, weatherPrefix, withTime(weatherPrefix, start, ""), withTime(weatherPrefix, end, ""))
}

func (v badgerView) GetMaintenanceHistory(ctx context.Context, deviceID string, start, end time.Time) ([]types.MaintenanceRecord, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
	}
	p := maintenancePrefix(deviceID)
	return scanRange[types.MaintenanceRecord](v.txn, p, withTime(p, start, ""), withTime(p, end, ""))
}

func (v badgerView) GetAlerts(ctx context.Context, start, end time.Time) ([]types.Alert, error) {
	return scanRange[types.Alert](v.txn, alertPrefix, withTime(alertPrefix, start, ""), withTime(alertPrefix, end, ""))
}

func (v badgerView) GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	if planID == "" {
		return types.OptimizationPlan{}, fmt.Errorf("%w: planID cannot be empty", types.ErrInvalidArgument)
	}
	var p types.OptimizationPlan
	if err := v.getJSON(planKey(planID), &p); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.OptimizationPlan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
		}
		return types.OptimizationPlan{}, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	return p, nil
}

func (v badgerView) GetSettings(ctx context.Context) (types.Settings, int, error) {
	var env settingsEnvelope
	if err := v.getJSON(settingsKey, &env); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings: %w", err)
	}
	var s types.Settings
	if err := json.Unmarshal(env.Settings, &s); err != nil {
		return types.Settings{}, 0, fmt.Errorf("failed to unmarshal settings json: %w", err)
	}
	return s, env.Version, nil
}

func (b *BadgerProvider) GetDevice(ctx context.Context, deviceID string) (d types.Device, err error) {
	err = b.view(func(v badgerView) error {
		d, err = v.GetDevice(ctx, deviceID)
		return err
	})
	return d, err
}

func (b *BadgerProvider) ListDevices(ctx context.Context) (ds []types.Device, err error) {
	err = b.view(func(v badgerView) error {
		ds, err = v.ListDevices(ctx)
		return err
	})
	return ds, err
}

func (b *BadgerProvider) GetTelemetry(ctx context.Context, deviceID string, start, end time.Time) (ss []types.TelemetrySample, err error) {
	err = b.view(func(v badgerView) error {
		ss, err = v.GetTelemetry(ctx, deviceID, start, end)
		return err
	})
	return ss, err
}

func (b *BadgerProvider) GetEnergyHistory(ctx context.Context, start, end time.Time) (es []types.EnergyStats, err error) {
	err = b.view(func(v badgerView) error {
		es, err = v.GetEnergyHistory(ctx, start, end)
		return err
	})
	return es, err
}

func (b *BadgerProvider) GetWeather(ctx context.Context, start, end time.Time) (ws []types.WeatherObservation, err error) {
	err = b.view(func(v badgerView) error {
		ws, err = v.GetWeather(ctx, start, end)
		return err
	})
	return ws, err
}

func (b *BadgerProvider) GetMaintenanceHistory(ctx context.Context, deviceID string, start, end time.Time) (ms []types.MaintenanceRecord, err error) {
	err = b.view(func(v badgerView) error {
		ms, err = v.GetMaintenanceHistory(ctx, deviceID, start, end)
		return err
	})
	return ms, err
}

func (b *BadgerProvider) GetAlerts(ctx context.Context, start, end time.Time) (as []types.Alert, err error) {
	err = b.view(func(v badgerView) error {
		as, err = v.GetAlerts(ctx, start, end)
		return err
	})
	return as, err
}

func (b *BadgerProvider) GetPlan(ctx context.Context, planID string) (p types.OptimizationPlan, err error) {
	err = b.view(func(v badgerView) error {
		p, err = v.GetPlan(ctx, planID)
		return err
	})
	return p, err
}

func (b *BadgerProvider) GetSettings(ctx context.Context) (s types.Settings, version int, err error) {
	err = b.view(func(v badgerView) error {
		s, version, err = v.GetSettings(ctx)
		return err
	})
	return s, version, err
}

func (b *BadgerProvider) setJSON(key []byte, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

func (b *BadgerProvider) UpsertDevice(ctx context.Context, device types.Device) error {
	if device.ID == "" {
		return fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
	}
	if err := b.setJSON(deviceKey(device.ID), device); err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.ID, err)
	}
	return nil
}

// InsertTelemetry writes all samples in one batch.
func (b *BadgerProvider) InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error {
	keys := make([][]byte, len(samples))
	vals := make([][]byte, len(samples))
	for i, s := range samples {
		if s.DeviceID == "" {
			return fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
		}
		val, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to marshal telemetry: %w", err)
		}
		keys[i] = withTime(telemetryPrefix(s.DeviceID), s.Timestamp, "")
		vals[i] = val
	}

	wb := b.db.NewWriteBatch()
	for i := range keys {
		if err := wb.Set(keys[i], vals[i]); err != nil {
			wb.Cancel()
			return fmt.Errorf("failed to insert telemetry: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to insert telemetry: %w", err)
	}
	return nil
}

func (b *BadgerProvider) UpsertEnergyHistory(ctx context.Context, stats types.EnergyStats) error {
	if stats.TSHourStart.IsZero() {
		return fmt.Errorf("%w: energy stats missing tsHourStart", types.ErrInvalidArgument)
	}
	if err := b.setJSON(withTime(energyPrefix, stats.TSHourStart.Truncate(time.Hour), ""), stats); err != nil {
		return fmt.Errorf("failed to upsert energy history: %w", err)
	}
	return nil
}

func (b *BadgerProvider) UpsertWeather(ctx context.Context, observations ...types.WeatherObservation) error {
	for _, o := range observations {
		if err := b.setJSON(withTime(weatherPrefix, o.Timestamp, ""), o); err != nil {
			return fmt.Errorf("failed to upsert weather: %w", err)
		}
	}
	return nil
}

func (b *BadgerProvider) InsertMaintenanceRecord(ctx context.Context, record types.MaintenanceRecord) error {
	if record.DeviceID == "" || record.ID == "" {
		return fmt.Errorf("%w: maintenance record needs deviceID and id", types.ErrInvalidArgument)
	}
	if err := b.setJSON(withTime(maintenancePrefix(record.DeviceID), record.Timestamp, record.ID), record); err != nil {
		return fmt.Errorf("failed to insert maintenance record: %w", err)
	}
	return nil
}

func (b *BadgerProvider) InsertAlert(ctx context.Context, alert types.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", types.ErrInvalidArgument)
	}
	if err := b.setJSON(withTime(alertPrefix, alert.Timestamp, alert.ID), alert); err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (b *BadgerProvider) SavePlan(ctx context.Context, plan types.OptimizationPlan) error {
	if plan.ID == "" {
		return fmt.Errorf("%w: plan id is required", types.ErrInvalidArgument)
	}
	if err := b.setJSON(planKey(plan.ID), plan); err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}
	return nil
}

func (b *BadgerProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	js, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	if err := b.setJSON(settingsKey, settingsEnvelope{Version: version, Settings: js}); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
