package optimize

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/tariff"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// HomeDeviceID addresses the home gateway for whole-home commands.
const HomeDeviceID = "home"

const (
	maxShiftHours      = 2.0
	thermalKWHPerDegC  = 0.1
	applianceRunHours  = 1.0
	batteryModeArb     = "arbitrage"
	batteryModeSurplus = "solarSurplus"
)

// Strategy parameter keys.
const (
	ParamDeviceID    = "deviceID"
	ParamUntil       = "until"
	ParamFrom        = "from"
	ParamAt          = "at"
	ParamChargeAt    = "chargeAt"
	ParamDischargeAt = "dischargeAt"
	ParamMode        = "mode"
	ParamLimitKW     = "limitKW"
	ParamSetpointC   = "setpointC"
	ParamHVACMode    = "hvacMode"
)

type windowPrices struct {
	prices  []tariff.Price
	peak    []tariff.Price
	offPeak []tariff.Price
}

func pricesFor(req Request) windowPrices {
	var wp windowPrices
	for _, h := range req.Window.Hours() {
		p := req.Tariff.PriceAt(h)
		wp.prices = append(wp.prices, p)
		if p.Peak {
			wp.peak = append(wp.peak, p)
		} else {
			wp.offPeak = append(wp.offPeak, p)
		}
	}
	return wp
}

// cheapest returns the lowest priced hour, earliest first on ties.
func cheapest(prices []tariff.Price) (tariff.Price, bool) {
	if len(prices) == 0 {
		return tariff.Price{}, false
	}
	best := prices[0]
	for _, p := range prices[1:] {
		if p.DollarsPerKWH < best.DollarsPerKWH {
			best = p
		}
	}
	return best, true
}

// arbitrageHours picks the cheapest off-peak hour that still has peak hours
// after it, and returns those peak hours.
func arbitrageHours(wp windowPrices) (tariff.Price, []tariff.Price, bool) {
	if len(wp.peak) == 0 {
		return tariff.Price{}, nil, false
	}
	last := wp.peak[len(wp.peak)-1].TSStart
	var candidates []tariff.Price
	for _, p := range wp.offPeak {
		if p.TSStart.Before(last) {
			candidates = append(candidates, p)
		}
	}
	low, ok := cheapest(candidates)
	if !ok {
		return tariff.Price{}, nil, false
	}
	var peak []tariff.Price
	for _, p := range wp.peak {
		if p.TSStart.After(low.TSStart) {
			peak = append(peak, p)
		}
	}
	return low, peak, true
}

func maxPrice(prices []tariff.Price) float64 {
	var m float64
	for _, p := range prices {
		m = math.Max(m, p.DollarsPerKWH)
	}
	return m
}

// firstOffPeakAfter returns the first off-peak hour at or after t, looking a
// day ahead.
func firstOffPeakAfter(t *tariff.Tariff, after time.Time) time.Time {
	h := after.Truncate(time.Hour)
	for i := 0; i < 24; i++ {
		if !t.IsPeak(h) {
			return h
		}
		h = h.Add(time.Hour)
	}
	return h
}

func formatKW(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// LoadShifting moves deferrable devices out of the peak hours in the
// window to the off-peak rate.
func LoadShifting(req Request) []types.OptimizationStrategy {
	wp := pricesFor(req)
	if len(wp.peak) == 0 {
		return nil
	}
	spread := maxPrice(wp.peak) - req.Tariff.OffPeakPrice()
	hours := math.Min(float64(len(wp.peak)), maxShiftHours)
	resumeAt := firstOffPeakAfter(req.Tariff, wp.peak[len(wp.peak)-1].TSEnd)

	var out []types.OptimizationStrategy
	for _, d := range req.Devices {
		if !d.Controllable || !d.Deferrable {
			continue
		}
		kwh := d.RatedKW() * hours
		out = append(out, types.OptimizationStrategy{
			Name:             fmt.Sprintf("Shift %s to off-peak", displayName(d)),
			Type:             types.StrategyLoadShifting,
			PotentialSavings: kwh * spread,
			SavingsKWH:       kwh,
			AutoExecute:      true,
			TargetDeviceID:   d.ID,
			Parameters: map[string]string{
				ParamDeviceID: d.ID,
				ParamFrom:     formatTime(wp.peak[0].TSStart),
				ParamUntil:    formatTime(resumeAt),
			},
		})
	}
	return out
}

// PeakShaving trims the forecast home load during peak hours.
func PeakShaving(req Request) []types.OptimizationStrategy {
	wp := pricesFor(req)
	if len(wp.peak) == 0 {
		return nil
	}
	fraction := req.Settings.Policy.PeakShavingFraction

	var kwh, savings, peakKW float64
	for _, p := range wp.peak {
		load := req.Consumption.HomeKW
		if req.Demand != nil {
			if fp, ok := req.Demand.At(p.TSStart); ok {
				load = fp.PointEstimate
			}
		}
		peakKW = math.Max(peakKW, load)
		shaved := load * fraction
		kwh += shaved
		savings += shaved * p.DollarsPerKWH
	}
	if kwh <= 0 {
		return nil
	}
	return []types.OptimizationStrategy{{
		Name:             "Shave peak demand",
		Type:             types.StrategyPeakShaving,
		PotentialSavings: savings,
		SavingsKWH:       kwh,
		TargetDeviceID:   HomeDeviceID,
		Parameters: map[string]string{
			ParamDeviceID: HomeDeviceID,
			ParamLimitKW:  formatKW(peakKW * (1 - fraction)),
			ParamFrom:     formatTime(wp.peak[0].TSStart),
			ParamUntil:    formatTime(wp.peak[len(wp.peak)-1].TSEnd),
		},
	}}
}

// BatteryOptimization charges off-peak and discharges on-peak, or stores
// forecast solar surplus for later use.
func BatteryOptimization(req Request) []types.OptimizationStrategy {
	b := req.Battery
	if b == nil || b.CapacityKWH <= 0 {
		return nil
	}
	policy := req.Settings.Policy
	wp := pricesFor(req)

	var out []types.OptimizationStrategy
	if low, peak, ok := arbitrageHours(wp); ok {
		usable := b.CapacityKWH * policy.BatteryUsableFraction
		if b.MaxDischargeKW > 0 {
			usable = math.Min(usable, b.MaxDischargeKW*float64(len(peak)))
		}
		kwh := usable * policy.BatteryRoundTripEfficiency
		spread := maxPrice(peak) - low.DollarsPerKWH
		out = append(out, types.OptimizationStrategy{
			Name:             "Charge battery off-peak, discharge on-peak",
			Type:             types.StrategyBatteryOptimization,
			PotentialSavings: kwh * spread,
			SavingsKWH:       kwh,
			AutoExecute:      true,
			TargetDeviceID:   b.DeviceID,
			Parameters: map[string]string{
				ParamDeviceID:    b.DeviceID,
				ParamMode:        batteryModeArb,
				ParamChargeAt:    formatTime(low.TSStart),
				ParamDischargeAt: formatTime(peak[0].TSStart),
			},
		})
	}

	if req.SolarForecast != nil {
		headroom := b.CapacityKWH * math.Max(0, 100-b.SOC) / 100
		var surplus float64
		var from time.Time
		for _, p := range wp.prices {
			sp, ok := req.SolarForecast.At(p.TSStart)
			if !ok {
				continue
			}
			load := req.Consumption.HomeKW
			if req.Demand != nil {
				if dp, ok := req.Demand.At(p.TSStart); ok {
					load = dp.PointEstimate
				}
			}
			if excess := sp.PointEstimate - load; excess > 0 {
				if from.IsZero() {
					from = p.TSStart
				}
				surplus += excess
			}
		}
		stored := math.Min(surplus, headroom) * policy.BatteryRoundTripEfficiency
		if stored > 0 {
			out = append(out, types.OptimizationStrategy{
				Name:             "Store solar surplus in battery",
				Type:             types.StrategyBatteryOptimization,
				PotentialSavings: stored * req.Tariff.PeakPrice(),
				SavingsKWH:       stored,
				AutoExecute:      true,
				TargetDeviceID:   b.DeviceID,
				Parameters: map[string]string{
					ParamDeviceID: b.DeviceID,
					ParamMode:     batteryModeSurplus,
					ParamChargeAt: formatTime(from),
				},
			})
		}
	}
	return out
}

// ThermalOptimization relaxes thermostat setpoints within the comfort band.
func ThermalOptimization(req Request) []types.OptimizationStrategy {
	s := req.Settings
	band := s.ComfortMaxTempC - s.ComfortMinTempC
	if band <= 0 {
		return nil
	}
	setback := math.Min(s.Policy.ThermalSetbackC, band/2)
	if setback <= 0 {
		return nil
	}
	wp := pricesFor(req)
	if len(wp.prices) == 0 {
		return nil
	}
	var avgPrice float64
	for _, p := range wp.prices {
		avgPrice += p.DollarsPerKWH
	}
	avgPrice /= float64(len(wp.prices))

	// cooling when the window is forecast above the band, heating otherwise
	mode, setpoint := "heat", s.ComfortMinTempC+band/2-setback
	if avgTemperature(req.Weather, req.Window) > s.ComfortMaxTempC {
		mode, setpoint = "cool", s.ComfortMinTempC+band/2+setback
	}

	var out []types.OptimizationStrategy
	for _, d := range req.Devices {
		if !d.Controllable || (d.Type != types.DeviceTypeThermostat && d.Type != types.DeviceTypeHVAC) {
			continue
		}
		kwh := d.RatedKW() * float64(len(wp.prices)) * thermalKWHPerDegC * setback
		out = append(out, types.OptimizationStrategy{
			Name:             fmt.Sprintf("Adjust %s setpoint", displayName(d)),
			Type:             types.StrategyThermalOptimization,
			PotentialSavings: kwh * avgPrice,
			SavingsKWH:       kwh,
			TargetDeviceID:   d.ID,
			Parameters: map[string]string{
				ParamDeviceID:  d.ID,
				ParamSetpointC: strconv.FormatFloat(setpoint, 'f', 1, 64),
				ParamHVACMode:  mode,
				ParamUntil:     formatTime(req.Window.End),
			},
		})
	}
	return out
}

func avgTemperature(weather []types.WeatherObservation, w types.TimeWindow) float64 {
	var sum float64
	var n int
	for _, obs := range weather {
		if w.Contains(obs.Timestamp) {
			sum += obs.TemperatureC
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// ApplianceScheduling runs controllable appliances that cannot be deferred
// past the window in its cheapest hour.
func ApplianceScheduling(req Request) []types.OptimizationStrategy {
	wp := pricesFor(req)
	low, ok := cheapest(wp.prices)
	if !ok {
		return nil
	}
	diff := wp.prices[0].DollarsPerKWH - low.DollarsPerKWH
	if diff <= 0 {
		return nil
	}

	var out []types.OptimizationStrategy
	for _, d := range req.Devices {
		if !d.Controllable || d.Deferrable {
			continue
		}
		switch d.Type {
		case types.DeviceTypeAppliance, types.DeviceTypeWaterHeater, types.DeviceTypeSmartPlug:
		default:
			continue
		}
		kwh := d.RatedKW() * applianceRunHours
		out = append(out, types.OptimizationStrategy{
			Name:             fmt.Sprintf("Run %s in cheapest hour", displayName(d)),
			Type:             types.StrategyApplianceScheduling,
			PotentialSavings: kwh * diff,
			SavingsKWH:       kwh,
			AutoExecute:      true,
			TargetDeviceID:   d.ID,
			Parameters: map[string]string{
				ParamDeviceID: d.ID,
				ParamAt:       formatTime(low.TSStart),
			},
		})
	}
	return out
}

func displayName(d types.Device) string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
