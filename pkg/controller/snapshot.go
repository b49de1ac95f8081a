package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const defaultBatteryMinSOC = 10

// homeState is the current state of the home assembled from the latest
// telemetry of every device.
type homeState struct {
	Devices     []types.Device
	Consumption types.ConsumptionSnapshot
	Battery     *types.BatterySnapshot
	Solar       *types.SolarSnapshot
}

func readHomeState(ctx context.Context, r storage.Reader, now time.Time) (homeState, error) {
	devices, err := r.ListDevices(ctx)
	if err != nil {
		return homeState{}, fmt.Errorf("failed to list devices: %w", err)
	}
	latest := make(map[string]types.TelemetrySample, len(devices))
	for _, d := range devices {
		samples, err := r.GetTelemetry(ctx, d.ID, now.Add(-snapshotLookback), now.Add(time.Second))
		if err != nil {
			return homeState{}, fmt.Errorf("failed to get telemetry for %s: %w", d.ID, err)
		}
		if len(samples) > 0 {
			latest[d.ID] = samples[len(samples)-1]
		}
	}
	return buildHomeState(devices, latest, now), nil
}

// buildHomeState derives the snapshots. Meters give the whole-home load
// when present, otherwise it is the sum of the device draws. The first
// battery with a capacity and the first solar inverter are used.
func buildHomeState(devices []types.Device, latest map[string]types.TelemetrySample, now time.Time) homeState {
	hs := homeState{
		Devices: devices,
		Consumption: types.ConsumptionSnapshot{
			Timestamp: now,
			DeviceKW:  make(map[string]float64),
		},
	}
	var meterKW, sumKW float64
	var haveMeter bool
	for _, d := range devices {
		s, ok := latest[d.ID]
		switch d.Type {
		case types.DeviceTypeMeter:
			if ok {
				meterKW += s.PowerConsumption / 1000
				haveMeter = true
			}
		case types.DeviceTypeSolarInverter:
			if hs.Solar != nil {
				continue
			}
			hs.Solar = &types.SolarSnapshot{DeviceID: d.ID, CapacityKW: d.RatedKW()}
			if ok {
				hs.Solar.CurrentKW = s.PowerConsumption / 1000
			}
		case types.DeviceTypeBattery:
			if hs.Battery != nil || d.CapacityKWH <= 0 {
				continue
			}
			hs.Battery = &types.BatterySnapshot{
				DeviceID:       d.ID,
				CapacityKWH:    d.CapacityKWH,
				MaxChargeKW:    d.RatedKW(),
				MaxDischargeKW: d.RatedKW(),
				MinSOC:         defaultBatteryMinSOC,
			}
			if ok && s.StateOfCharge != nil {
				hs.Battery.SOC = *s.StateOfCharge
			}
		default:
			if ok {
				kw := s.PowerConsumption / 1000
				hs.Consumption.DeviceKW[d.ID] = kw
				sumKW += kw
			}
		}
	}
	hs.Consumption.HomeKW = sumKW
	if haveMeter {
		hs.Consumption.HomeKW = meterKW
	}
	return hs
}
