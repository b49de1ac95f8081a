package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	days := lflag.Int("seed-days", 14, "Days of history to generate")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data", slog.Int("days", *days))

	// Use a new random source
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	now := time.Now().UTC().Truncate(time.Hour)
	start := now.Add(-time.Duration(*days) * 24 * time.Hour)

	const (
		BatteryCapacityKWH = 13.5
		MaxBatteryKW       = 5.0
		HomeAvgKW          = 1.2
		SolarPeakKW        = 6.0
	)

	devices := []types.Device{
		{ID: "thermostat-1", Name: "Hallway Thermostat", Type: types.DeviceTypeThermostat, Location: "hallway", Controllable: true, RatedPowerW: 3500},
		{ID: "water-heater-1", Name: "Water Heater", Type: types.DeviceTypeWaterHeater, Location: "garage", Controllable: true, RatedPowerW: 4500},
		{ID: "ev-charger-1", Name: "EV Charger", Type: types.DeviceTypeEVCharger, Location: "garage", Controllable: true, Deferrable: true, RatedPowerW: 7200},
		{ID: "dishwasher-1", Name: "Dishwasher", Type: types.DeviceTypeAppliance, Location: "kitchen", Controllable: true, Deferrable: true, RatedPowerW: 1800},
		{ID: "battery-1", Name: "Home Battery", Type: types.DeviceTypeBattery, Location: "garage", Controllable: true, RatedPowerW: MaxBatteryKW * 1000, CapacityKWH: BatteryCapacityKWH},
		{ID: "solar-1", Name: "Roof Array", Type: types.DeviceTypeSolarInverter, Location: "roof", RatedPowerW: SolarPeakKW * 1000},
	}
	for _, d := range devices {
		d.CreatedAt = start.Add(-180 * 24 * time.Hour)
		if err := s.UpsertDevice(ctx, d); err != nil {
			panic(fmt.Sprintf("failed to upsert device %s: %v", d.ID, err))
		}
	}

	currentSOC := 40.0
	for t := start; t.Before(now); t = t.Add(time.Hour) {
		hour := t.Hour()

		// Weather (daily temperature swing)
		tempC := 18 + 8*math.Sin(float64(hour-9)*math.Pi/12) + rng.Float64()*2 - 1
		cloud := math.Min(1, math.Max(0, 0.3+rng.Float64()*0.4-0.2))
		irradiance := 0.0
		// Solar (bell curve)
		solarKW := 0.0
		if hour > 6 && hour < 19 {
			dist := math.Abs(float64(hour) - 13.0)
			solarKW = SolarPeakKW * math.Exp(-(dist*dist)/12.0) * (1 - 0.7*cloud)
			irradiance = 1000 * math.Exp(-(dist*dist)/12.0) * (1 - 0.7*cloud)
		}
		if err := s.UpsertWeather(ctx, types.WeatherObservation{
			Timestamp:     t,
			TemperatureC:  tempC,
			CloudCover:    cloud,
			IrradianceWm2: irradiance,
		}); err != nil {
			panic(fmt.Sprintf("failed to upsert weather: %v", err))
		}

		// Home usage
		homeKW := HomeAvgKW + (rng.Float64() * 1.0)
		if hour >= 7 && hour < 9 {
			homeKW += 1.5
		} else if hour >= 17 && hour < 22 {
			homeKW += 2.5
		}

		// Battery soaks up excess solar and covers the evening peak
		var chargedKWH, usedKWH float64
		net := homeKW - solarKW
		switch {
		case net < 0:
			chargedKWH = math.Min(math.Min(-net, MaxBatteryKW), BatteryCapacityKWH*(100-currentSOC)/100)
			currentSOC += chargedKWH / BatteryCapacityKWH * 100
		case hour >= 17 && hour < 22:
			usedKWH = math.Min(math.Min(net, MaxBatteryKW), BatteryCapacityKWH*(currentSOC-10)/100)
			usedKWH = math.Max(usedKWH, 0)
			currentSOC -= usedKWH / BatteryCapacityKWH * 100
		}
		grid := homeKW + chargedKWH - solarKW - usedKWH
		stats := types.EnergyStats{
			TSHourStart:       t,
			HomeKWH:           homeKW,
			SolarKWH:          solarKW,
			BatteryChargedKWH: chargedKWH,
			BatteryUsedKWH:    usedKWH,
		}
		if grid >= 0 {
			stats.GridImportKWH = grid
		} else {
			stats.GridExportKWH = -grid
		}
		if err := s.UpsertEnergyHistory(ctx, stats); err != nil {
			panic(fmt.Sprintf("failed to upsert energy history: %v", err))
		}

		// Telemetry every 15 minutes per device
		var samples []types.TelemetrySample
		for q := 0; q < 4; q++ {
			ts := t.Add(time.Duration(q) * 15 * time.Minute)
			for _, d := range devices {
				sample := types.TelemetrySample{
					DeviceID:  d.ID,
					Timestamp: ts,
					Voltage:   240 + rng.Float64()*4 - 2,
				}
				switch d.Type {
				case types.DeviceTypeSolarInverter:
					sample.PowerConsumption = solarKW * 1000
				case types.DeviceTypeBattery:
					soc := currentSOC
					sample.StateOfCharge = &soc
					sample.PowerConsumption = (chargedKWH - usedKWH) * 1000
				case types.DeviceTypeThermostat:
					temp := 21 + rng.Float64()
					sample.Temperature = &temp
					if tempC > 24 {
						sample.PowerConsumption = d.RatedPowerW * (0.4 + rng.Float64()*0.4)
					}
				case types.DeviceTypeWaterHeater:
					temp := 55 + rng.Float64()*3
					sample.Temperature = &temp
					if rng.Float64() < 0.25 {
						sample.PowerConsumption = d.RatedPowerW
					}
				case types.DeviceTypeEVCharger:
					if hour >= 18 && hour < 23 {
						sample.PowerConsumption = d.RatedPowerW
					}
				default:
					if hour >= 19 && hour < 21 {
						sample.PowerConsumption = d.RatedPowerW * (0.8 + rng.Float64()*0.2)
					}
				}
				sample.Current = math.Abs(sample.PowerConsumption) / sample.Voltage
				samples = append(samples, sample)
			}
		}
		if err := s.InsertTelemetry(ctx, samples...); err != nil {
			panic(fmt.Sprintf("failed to insert telemetry: %v", err))
		}
	}

	// Completed maintenance so failure features have a last service date
	for _, d := range devices {
		if !d.Controllable {
			continue
		}
		at := start.Add(-time.Duration(30+rng.Intn(150)) * 24 * time.Hour)
		if err := s.InsertMaintenanceRecord(ctx, types.MaintenanceRecord{
			ID:          uuid.NewString(),
			DeviceID:    d.ID,
			Timestamp:   at,
			Description: "routine service",
			Completed:   true,
		}); err != nil {
			panic(fmt.Sprintf("failed to insert maintenance record: %v", err))
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data", slog.Int("devices", len(devices)), slog.Float64("finalSOC", currentSOC))
}
