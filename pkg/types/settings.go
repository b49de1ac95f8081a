package types

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CurrentSettingsVersion is the current version of the settings struct.
// Increment this value when adding new fields that require default values.
const CurrentSettingsVersion = 3

// Settings represents the configuration stored in the database.
// These are dynamic settings that can be changed without redeploying.
type Settings struct {
	DryRun bool `json:"dryRun" yaml:"dryRun"`
	// Pause scheduled runs
	Pause bool `json:"pause" yaml:"pause"`
	// AutoExecute lets the optimization run execute low-impact strategies
	// without a user approving the plan.
	AutoExecute bool `json:"autoExecute" yaml:"autoExecute"`

	// Tariff Settings
	// BaseDollarsPerKWH applies to any hour not covered by a period.
	BaseDollarsPerKWH float64        `json:"baseDollarsPerKWH" yaml:"baseDollarsPerKWH"`
	TariffPeriods     []TariffPeriod `json:"tariffPeriods" yaml:"tariffPeriods"`
	Location          string         `json:"location" yaml:"location"`

	// Solar Settings
	SolarPanelAreaM2     float64 `json:"solarPanelAreaM2" yaml:"solarPanelAreaM2"`
	SolarPanelEfficiency float64 `json:"solarPanelEfficiency" yaml:"solarPanelEfficiency"`

	// Comfort band for thermal optimization (in °C).
	ComfortMinTempC float64 `json:"comfortMinTempC" yaml:"comfortMinTempC"`
	ComfortMaxTempC float64 `json:"comfortMaxTempC" yaml:"comfortMaxTempC"`

	Policy Policy `json:"policy" yaml:"policy"`
}

// Policy holds the heuristic constants used by the engine. None of them are
// physical truths; they are tunable per deployment.
type Policy struct {
	// EmissionsKgPerKWH converts saved kWh to avoided kg CO2.
	EmissionsKgPerKWH float64 `json:"emissionsKgPerKWH" yaml:"emissionsKgPerKWH"`

	// Strategy heuristics, keyed by StrategyType.
	ComfortImpact map[StrategyType]float64 `json:"comfortImpact" yaml:"comfortImpact"`
	Complexity    map[StrategyType]float64 `json:"complexity" yaml:"complexity"`

	PeakShavingFraction        float64 `json:"peakShavingFraction" yaml:"peakShavingFraction"`
	ThermalSetbackC            float64 `json:"thermalSetbackC" yaml:"thermalSetbackC"`
	BatteryRoundTripEfficiency float64 `json:"batteryRoundTripEfficiency" yaml:"batteryRoundTripEfficiency"`
	BatteryUsableFraction      float64 `json:"batteryUsableFraction" yaml:"batteryUsableFraction"`
	ImplementationPriority     int     `json:"implementationPriority" yaml:"implementationPriority"`

	// Auto execution caps
	AutoExecuteMaxComfort    float64 `json:"autoExecuteMaxComfort" yaml:"autoExecuteMaxComfort"`
	AutoExecuteMaxStrategies int     `json:"autoExecuteMaxStrategies" yaml:"autoExecuteMaxStrategies"`

	// Predictive maintenance
	MinSamplesForPrediction    int     `json:"minSamplesForPrediction" yaml:"minSamplesForPrediction"`
	MaintenanceRecordThreshold float64 `json:"maintenanceRecordThreshold" yaml:"maintenanceRecordThreshold"`
	AlertThreshold             float64 `json:"alertThreshold" yaml:"alertThreshold"`

	// Demand response
	IncentiveDollarsPerKWH float64 `json:"incentiveDollarsPerKWH" yaml:"incentiveDollarsPerKWH"`
	// IncentiveOnPartialReduction pays out even when the target was missed.
	IncentiveOnPartialReduction bool `json:"incentiveOnPartialReduction" yaml:"incentiveOnPartialReduction"`
}

// ComfortFor returns the comfort impact for a strategy type.
func (p Policy) ComfortFor(t StrategyType) float64 {
	return p.ComfortImpact[t]
}

// ComplexityFor returns the implementation complexity for a strategy type.
func (p Policy) ComplexityFor(t StrategyType) float64 {
	return p.Complexity[t]
}

// DefaultSettings returns settings with every migration applied.
func DefaultSettings() Settings {
	s, _, err := MigrateSettings(Settings{}, 0)
	if err != nil {
		panic(fmt.Errorf("failed to build default settings: %w", err))
	}
	return s
}

// LoadSettingsFile reads settings from a YAML file and fills in defaults for
// anything left unset.
func LoadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	s, _, err = MigrateSettings(s, 0)
	if err != nil {
		return Settings{}, err
	}
	return s, nil
}

// MigrateSettings migrates the settings to the current version.
// It returns the migrated settings, a boolean indicating if changes were made, and an error if migration failed.
func MigrateSettings(s Settings, currentVersion int) (Settings, bool, error) {
	if currentVersion >= CurrentSettingsVersion {
		return s, false, nil
	}

	migrated := false
	// Loop through versions to apply migrations sequentially
	for version := currentVersion + 1; version <= CurrentSettingsVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
			if s.BaseDollarsPerKWH == 0 {
				s.BaseDollarsPerKWH = 0.12
				migrated = true
			}
			if s.SolarPanelEfficiency == 0 {
				s.SolarPanelEfficiency = 0.2
				migrated = true
			}
			if s.SolarPanelAreaM2 == 0 {
				s.SolarPanelAreaM2 = 20
				migrated = true
			}
			if s.ComfortMinTempC == 0 && s.ComfortMaxTempC == 0 {
				s.ComfortMinTempC = 18
				s.ComfortMaxTempC = 24
				migrated = true
			}
			if s.Policy.EmissionsKgPerKWH == 0 {
				s.Policy.EmissionsKgPerKWH = 0.5
				migrated = true
			}
			if s.Policy.ComfortImpact == nil {
				s.Policy.ComfortImpact = map[StrategyType]float64{
					StrategyLoadShifting:        2,
					StrategyPeakShaving:         4,
					StrategyBatteryOptimization: 0,
					StrategyThermalOptimization: 5,
					StrategyApplianceScheduling: 1,
				}
				migrated = true
			}
			if s.Policy.Complexity == nil {
				s.Policy.Complexity = map[StrategyType]float64{
					StrategyLoadShifting:        3,
					StrategyPeakShaving:         2,
					StrategyBatteryOptimization: 4,
					StrategyThermalOptimization: 2,
					StrategyApplianceScheduling: 3,
				}
				migrated = true
			}
			if s.Policy.PeakShavingFraction == 0 {
				s.Policy.PeakShavingFraction = 0.15
				migrated = true
			}
			if s.Policy.ThermalSetbackC == 0 {
				s.Policy.ThermalSetbackC = 2
				migrated = true
			}
			if s.Policy.BatteryRoundTripEfficiency == 0 {
				s.Policy.BatteryRoundTripEfficiency = 0.9
				migrated = true
			}
			if s.Policy.BatteryUsableFraction == 0 {
				s.Policy.BatteryUsableFraction = 0.8
				migrated = true
			}
			if s.Policy.ImplementationPriority == 0 {
				s.Policy.ImplementationPriority = 3
				migrated = true
			}
			if s.Policy.MinSamplesForPrediction == 0 {
				s.Policy.MinSamplesForPrediction = 100
				migrated = true
			}
		case 2:
			// version 2: auto execution caps and maintenance thresholds
			if s.Policy.AutoExecuteMaxComfort == 0 {
				s.Policy.AutoExecuteMaxComfort = 2.0
				migrated = true
			}
			if s.Policy.AutoExecuteMaxStrategies == 0 {
				s.Policy.AutoExecuteMaxStrategies = 3
				migrated = true
			}
			if s.Policy.MaintenanceRecordThreshold == 0 {
				s.Policy.MaintenanceRecordThreshold = 0.6
				migrated = true
			}
			if s.Policy.AlertThreshold == 0 {
				s.Policy.AlertThreshold = 0.8
				migrated = true
			}
		case 3:
			// version 3: demand response incentives
			if s.Policy.IncentiveDollarsPerKWH == 0 {
				s.Policy.IncentiveDollarsPerKWH = 0.5
				migrated = true
			}
		default:
			return s, false, fmt.Errorf("unknown settings version: %d", version)
		}
	}

	return s, migrated, nil
}
