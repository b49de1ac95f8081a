package types

import "time"

// DeviceType is the category of a device. Classifiers and maintenance hints
// are keyed by it.
type DeviceType string

const (
	DeviceTypeThermostat    DeviceType = "thermostat"
	DeviceTypeHVAC          DeviceType = "hvac"
	DeviceTypeWaterHeater   DeviceType = "water_heater"
	DeviceTypeEVCharger     DeviceType = "ev_charger"
	DeviceTypeBattery       DeviceType = "battery"
	DeviceTypeSolarInverter DeviceType = "solar_inverter"
	DeviceTypeSmartPlug     DeviceType = "smart_plug"
	DeviceTypeAppliance     DeviceType = "appliance"
	DeviceTypeLighting      DeviceType = "lighting"
	DeviceTypeMeter         DeviceType = "meter"
)

// Device is a registered home energy device.
type Device struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Type         DeviceType `json:"type"`
	Location     string     `json:"location,omitempty"`
	Controllable bool       `json:"controllable"`
	// Deferrable devices (dishwasher, EV charger, pool pump) can be moved to
	// another time without the occupant noticing.
	Deferrable  bool    `json:"deferrable"`
	RatedPowerW float64 `json:"ratedPowerW"`
	// CapacityKWH is the storage capacity of a battery.
	CapacityKWH float64   `json:"capacityKWH,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RatedKW returns the rated power in kW.
func (d Device) RatedKW() float64 {
	return d.RatedPowerW / 1000.0
}

// TelemetrySample is a single reading from a device. Samples are immutable
// once recorded and are ordered by Timestamp per device. Solar inverters
// report generation in PowerConsumption.
type TelemetrySample struct {
	DeviceID         string    `json:"deviceID"`
	Timestamp        time.Time `json:"timestamp"`
	PowerConsumption float64   `json:"powerConsumption"` // W
	Voltage          float64   `json:"voltage"`          // V
	Current          float64   `json:"current"`          // A
	Temperature      *float64  `json:"temperature,omitempty"`
	// StateOfCharge is reported by batteries, 0-100.
	StateOfCharge *float64 `json:"stateOfCharge,omitempty"`
}

// EnergyStats represents aggregated energy statistics for an hourly period
// across the whole home.
type EnergyStats struct {
	TSHourStart time.Time `json:"tsHourStart"`

	HomeKWH           float64 `json:"homeKWH"`
	SolarKWH          float64 `json:"solarKWH"`
	BatteryChargedKWH float64 `json:"batteryChargedKWH"`
	BatteryUsedKWH    float64 `json:"batteryUsedKWH"`
	GridImportKWH     float64 `json:"gridImportKWH"`
	GridExportKWH     float64 `json:"gridExportKWH"`
}

// WeatherObservation is an observed or forecast weather reading for the home.
type WeatherObservation struct {
	Timestamp     time.Time `json:"timestamp"`
	TemperatureC  float64   `json:"temperatureC"`
	CloudCover    float64   `json:"cloudCover"` // 0-1
	IrradianceWm2 float64   `json:"irradianceWm2"`
	Forecast      bool      `json:"forecast,omitempty"`
}

// ConsumptionSnapshot is the current whole-home load.
type ConsumptionSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	HomeKW    float64            `json:"homeKW"`
	DeviceKW  map[string]float64 `json:"deviceKW,omitempty"`
}

// BatterySnapshot is the current state of the home battery, if any.
type BatterySnapshot struct {
	DeviceID       string  `json:"deviceID"`
	SOC            float64 `json:"soc"` // 0-100
	CapacityKWH    float64 `json:"capacityKWH"`
	MaxChargeKW    float64 `json:"maxChargeKW"`
	MaxDischargeKW float64 `json:"maxDischargeKW"`
	MinSOC         float64 `json:"minSOC"`
}

// SolarSnapshot is the current state of the solar array, if any.
type SolarSnapshot struct {
	DeviceID   string  `json:"deviceID"`
	CurrentKW  float64 `json:"currentKW"`
	CapacityKW float64 `json:"capacityKW"`
}

// MaintenancePriority mirrors the probability band a record was created from.
type MaintenancePriority string

const (
	MaintenancePriorityUrgent MaintenancePriority = "urgent"
	MaintenancePriorityHigh   MaintenancePriority = "high"
	MaintenancePriorityNormal MaintenancePriority = "normal"
)

// MaintenanceRecord is a maintenance event, either completed (history) or
// scheduled from a prediction.
type MaintenanceRecord struct {
	ID          string              `json:"id"`
	DeviceID    string              `json:"deviceID"`
	Timestamp   time.Time           `json:"timestamp"`
	ScheduledAt time.Time           `json:"scheduledAt,omitempty"`
	Priority    MaintenancePriority `json:"priority,omitempty"`
	Description string              `json:"description"`
	Completed   bool                `json:"completed"`
	Predicted   bool                `json:"predicted,omitempty"`
}

// AlertSeverity is the severity of an Alert.
type AlertSeverity string

const (
	AlertSeverityInfo     AlertSeverity = "info"
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityCritical AlertSeverity = "critical"
)

// Alert is raised for anomalies and high failure probabilities.
type Alert struct {
	ID        string        `json:"id"`
	DeviceID  string        `json:"deviceID"`
	Timestamp time.Time     `json:"timestamp"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
}
