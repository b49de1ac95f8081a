package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// FirestoreProvider implements Database using Google Cloud Firestore. Every
// document stores its value as a JSON blob in the "json" field next to the
// fields needed for range queries.
type FirestoreProvider struct {
	fsView

	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// the project id can be inferred from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.fsView = fsView{client: client, r: clientReader{}}
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// View runs fn inside a read-only transaction.
func (f *FirestoreProvider) View(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	return f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ctx, fsView{client: f.client, r: txReader{tx: tx}})
	}, firestore.ReadOnly)
}

// fsReader abstracts reads so the same query code serves plain reads and
// reads inside a transaction.
type fsReader interface {
	get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error)
	documents(ctx context.Context, q firestore.Query) *firestore.DocumentIterator
}

type clientReader struct{}

func (clientReader) get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	return ref.Get(ctx)
}

func (clientReader) documents(ctx context.Context, q firestore.Query) *firestore.DocumentIterator {
	return q.Documents(ctx)
}

type txReader struct {
	tx *firestore.Transaction
}

func (t txReader) get(_ context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	return t.tx.Get(ref)
}

func (t txReader) documents(_ context.Context, q firestore.Query) *firestore.DocumentIterator {
	return t.tx.Documents(q)
}

// fsView implements Reader on top of an fsReader.
type fsView struct {
	client *firestore.Client
	r      fsReader
}

func decodeDoc(ctx context.Context, doc *firestore.DocumentSnapshot, v any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json not string", slog.String("path", doc.Ref.Path))
		return fmt.Errorf("document %s 'json' field is not string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc", slog.String("path", doc.Ref.Path), slog.Any("err", err))
		return fmt.Errorf("failed to unmarshal document (id=%s): %w", doc.Ref.ID, err)
	}
	return nil
}

func collectDocs[T any](ctx context.Context, iter *firestore.DocumentIterator, kind string) ([]T, error) {
	defer iter.Stop()

	var out []T
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating %s: %w", kind, err)
		}
		var v T
		if err := decodeDoc(ctx, doc, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (v fsView) timeRange(coll *firestore.CollectionRef, start, end time.Time) firestore.Query {
	return coll.
		Where(firestore.DocumentID, ">=", coll.Doc(timeKey(start))).
		Where(firestore.DocumentID, "<", coll.Doc(timeKey(end))).
		OrderBy(firestore.DocumentID, firestore.Asc)
}

func (v fsView) deviceRef(deviceID string) (*firestore.DocumentRef, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: deviceID cannot be empty", types.ErrInvalidArgument)
	}
	return v.client.Collection("devices").Doc(deviceID), nil
}

// GetDevice retrieves a device from the "devices" collection.
func (v fsView) GetDevice(ctx context.Context, deviceID string) (types.Device, error) {
	ref, err := v.deviceRef(deviceID)
	if err != nil {
		return types.Device{}, err
	}
	doc, err := v.r.get(ctx, ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return types.Device{}, fmt.Errorf("failed to get device %s: %w", deviceID, err)
	}
	var d types.Device
	if err := decodeDoc(ctx, doc, &d); err != nil {
		return types.Device{}, err
	}
	return d, nil
}

// ListDevices retrieves every device ordered by id.
func (v fsView) ListDevices(ctx context.Context) ([]types.Device, error) {
	q := v.client.Collection("devices").OrderBy(firestore.DocumentID, firestore.Asc)
	return collectDocs[types.Device](ctx, v.r.documents(ctx, q), "devices")
}

// GetTelemetry reads the device's "telemetry" sub-collection. Document ids
// are fixed width timestamps so a document id range is a time range.
func (v fsView) GetTelemetry(ctx context.Context, deviceID string, start, end time.Time) ([]types.TelemetrySample, error) {
	ref, err := v.deviceRef(deviceID)
	if err != nil {
		return nil, err
	}
	q := v.timeRange(ref.Collection("telemetry"), start, end)
	return collectDocs[types.TelemetrySample](ctx, v.r.documents(ctx, q), "telemetry")
}

// GetEnergyHistory retrieves hourly energy records within the range.
func (v fsView) GetEnergyHistory(ctx context.Context, start, end time.Time) ([]types.EnergyStats, error) {
	q := v.timeRange(v.client.Collection("energy_history"), start.Truncate(time.Hour), end.Truncate(time.Hour))
	return collectDocs[types.EnergyStats](ctx, v.r.documents(ctx, q), "energy history")
}

// GetWeather retrieves weather observations within the range.
func (v fsView) GetWeather(ctx context.Context, start, end time.Time) ([]types.WeatherObservation, error) {
	q := v.timeRange(v.client.Collection("weather"), start, end)
	return collectDocs[types.WeatherObservation](ctx, v.r.documents(ctx, q), "weather")
}

// GetMaintenanceHistory retrieves maintenance records for the device by
// their timestamp field.
func (v fsView) GetMaintenanceHistory(ctx context.Context, deviceID string, start, end time.Time) ([]types.MaintenanceRecord, error) {
	ref, err := v.deviceRef(deviceID)
	if err != nil {
		return nil, err
	}
	q := ref.Collection("maintenance").
		Where("timestamp", ">=", start).
		Where("timestamp", "<", end).
		OrderBy("timestamp", firestore.Asc)
	return collectDocs[types.MaintenanceRecord](ctx, v.r.documents(ctx, q), "maintenance records")
}

// GetAlerts retrieves alerts raised within the range.
func (v fsView) GetAlerts(ctx context.Context, start, end time.Time) ([]types.Alert, error) {
	q := v.client.Collection("alerts").
		Where("timestamp", ">=", start).
		Where("timestamp", "<", end).
		OrderBy("timestamp", firestore.Asc)
	return collectDocs[types.Alert](ctx, v.r.documents(ctx, q), "alerts")
}

// GetPlan retrieves a plan from the "plans" collection.
func (v fsView) GetPlan(ctx context.Context, planID string) (types.OptimizationPlan, error) {
	if planID == "" {
		return types.OptimizationPlan{}, fmt.Errorf("%w: planID cannot be empty", types.ErrInvalidArgument)
	}
	doc, err := v.r.get(ctx, v.client.Collection("plans").Doc(planID))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.OptimizationPlan{}, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
		}
		return types.OptimizationPlan{}, fmt.Errorf("failed to get plan %s: %w", planID, err)
	}
	var p types.OptimizationPlan
	if err := decodeDoc(ctx, doc, &p); err != nil {
		return types.OptimizationPlan{}, err
	}
	return p, nil
}

// GetSettings retrieves the dynamic configuration from the "config/settings" document.
func (v fsView) GetSettings(ctx context.Context) (types.Settings, int, error) {
	doc, err := v.r.get(ctx, v.client.Collection("config").Doc("settings"))
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Settings{}, 0, nil
		}
		return types.Settings{}, 0, fmt.Errorf("failed to fetch settings doc: %w", err)
	}

	// Read version if available (default 0)
	var version int
	if val, err := doc.DataAt("version"); err == nil {
		if vInt, ok := val.(int64); ok {
			version = int(vInt)
		}
	}

	var s types.Settings
	if err := decodeDoc(ctx, doc, &s); err != nil {
		return types.Settings{}, 0, err
	}
	return s, version, nil
}

func jsonField(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UpsertDevice adds or replaces a device.
func (f *FirestoreProvider) UpsertDevice(ctx context.Context, device types.Device) error {
	ref, err := f.deviceRef(device.ID)
	if err != nil {
		return err
	}
	js, err := jsonField(device)
	if err != nil {
		return fmt.Errorf("failed to marshal device %s: %w", device.ID, err)
	}
	_, err = ref.Set(ctx, map[string]interface{}{
		"json": js,
		"type": string(device.Type),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert device %s: %w", device.ID, err)
	}
	return nil
}

// InsertTelemetry appends samples using a bulk writer. Samples for the
// same device and timestamp overwrite each other.
func (f *FirestoreProvider) InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error {
	if len(samples) == 0 {
		return nil
	}
	bw := f.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(samples))
	for _, s := range samples {
		ref, err := f.deviceRef(s.DeviceID)
		if err != nil {
			bw.End()
			return err
		}
		js, err := jsonField(s)
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to marshal telemetry: %w", err)
		}
		job, err := bw.Set(ref.Collection("telemetry").Doc(timeKey(s.Timestamp)), map[string]interface{}{
			"json":      js,
			"timestamp": s.Timestamp,
		})
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to queue telemetry: %w", err)
		}
		jobs = append(jobs, job)
	}
	bw.End()

	for _, job := range jobs {
		if _, err := job.Results(); err != nil {
			return fmt.Errorf("failed to insert telemetry: %w", err)
		}
	}
	return nil
}

// UpsertEnergyHistory adds or updates an energy history record in the "energy_history" collection.
func (f *FirestoreProvider) UpsertEnergyHistory(ctx context.Context, stats types.EnergyStats) error {
	if stats.TSHourStart.IsZero() {
		return fmt.Errorf("%w: energy stats missing tsHourStart", types.ErrInvalidArgument)
	}
	js, err := jsonField(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal energy stats: %w", err)
	}
	hour := stats.TSHourStart.Truncate(time.Hour)
	_, err = f.client.Collection("energy_history").Doc(timeKey(hour)).Set(ctx, map[string]interface{}{
		"json":      js,
		"timestamp": hour,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert energy history: %w", err)
	}
	return nil
}

// UpsertWeather adds or replaces weather observations keyed by timestamp.
func (f *FirestoreProvider) UpsertWeather(ctx context.Context, observations ...types.WeatherObservation) error {
	coll := f.client.Collection("weather")
	for _, o := range observations {
		js, err := jsonField(o)
		if err != nil {
			return fmt.Errorf("failed to marshal weather: %w", err)
		}
		_, err = coll.Doc(timeKey(o.Timestamp)).Set(ctx, map[string]interface{}{
			"json":      js,
			"timestamp": o.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("failed to upsert weather: %w", err)
		}
	}
	return nil
}

// InsertMaintenanceRecord stores the record under its device.
func (f *FirestoreProvider) InsertMaintenanceRecord(ctx context.Context, record types.MaintenanceRecord) error {
	ref, err := f.deviceRef(record.DeviceID)
	if err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("%w: maintenance record id is required", types.ErrInvalidArgument)
	}
	js, err := jsonField(record)
	if err != nil {
		return fmt.Errorf("failed to marshal maintenance record: %w", err)
	}
	_, err = ref.Collection("maintenance").Doc(record.ID).Set(ctx, map[string]interface{}{
		"json":      js,
		"timestamp": record.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to insert maintenance record: %w", err)
	}
	return nil
}

// InsertAlert stores an alert in the "alerts" collection.
func (f *FirestoreProvider) InsertAlert(ctx context.Context, alert types.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("%w: alert id is required", types.ErrInvalidArgument)
	}
	js, err := jsonField(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	_, err = f.client.Collection("alerts").Doc(alert.ID).Create(ctx, map[string]interface{}{
		"json":      js,
		"timestamp": alert.Timestamp,
		"deviceID":  alert.DeviceID,
	})
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// SavePlan adds or replaces a plan.
func (f *FirestoreProvider) SavePlan(ctx context.Context, plan types.OptimizationPlan) error {
	if plan.ID == "" {
		return fmt.Errorf("%w: plan id is required", types.ErrInvalidArgument)
	}
	js, err := jsonField(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}
	_, err = f.client.Collection("plans").Doc(plan.ID).Set(ctx, map[string]interface{}{
		"json":      js,
		"status":    string(plan.Status),
		"createdAt": plan.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.ID, err)
	}
	return nil
}

// SetSettings saves the dynamic configuration to the "config/settings" document.
// It stores the settings as a JSON string for portability.
func (f *FirestoreProvider) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	js, err := jsonField(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	_, err = f.client.Collection("config").Doc("settings").Set(ctx, map[string]interface{}{
		"json":    js,
		"version": version,
	})
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
