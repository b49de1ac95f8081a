package types

import "time"

// FeatureVector is a fixed-size numeric summary of a device's recent
// behavior. It is recomputed for every prediction and never persisted.
type FeatureVector struct {
	AvgPower                 float64 `json:"avgPower"`
	StdDevPower              float64 `json:"stdDevPower"`
	AvgVoltage               float64 `json:"avgVoltage"`
	AvgCurrent               float64 `json:"avgCurrent"`
	AvgTemperature           float64 `json:"avgTemperature"`
	PowerTrendSlope          float64 `json:"powerTrendSlope"`
	TemperatureTrendSlope    float64 `json:"temperatureTrendSlope"`
	DaysSinceLastMaintenance float64 `json:"daysSinceLastMaintenance"`
	AnomalyScore             float64 `json:"anomalyScore"`
	OperatingHours           float64 `json:"operatingHours"`
	SampleCount              int     `json:"sampleCount"`
}

// FeatureNames lists the classifier inputs in the order returned by Slice.
var FeatureNames = []string{
	"avgPower",
	"stdDevPower",
	"avgVoltage",
	"avgCurrent",
	"avgTemperature",
	"powerTrendSlope",
	"temperatureTrendSlope",
	"daysSinceLastMaintenance",
	"anomalyScore",
	"operatingHours",
	"sampleCount",
}

// Slice returns the 11 classifier inputs in FeatureNames order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.AvgPower,
		f.StdDevPower,
		f.AvgVoltage,
		f.AvgCurrent,
		f.AvgTemperature,
		f.PowerTrendSlope,
		f.TemperatureTrendSlope,
		f.DaysSinceLastMaintenance,
		f.AnomalyScore,
		f.OperatingHours,
		float64(f.SampleCount),
	}
}

// ForecastKind distinguishes the forecasts produced by the forecaster.
type ForecastKind string

const (
	ForecastKindDemand ForecastKind = "demand"
	ForecastKindSolar  ForecastKind = "solar"
)

// ForecastPoint is a single hourly estimate. LowerBound <= PointEstimate <=
// UpperBound always holds.
type ForecastPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	PointEstimate float64   `json:"pointEstimate"` // kWh for the hour
	LowerBound    float64   `json:"lowerBound"`
	UpperBound    float64   `json:"upperBound"`
	Confidence    float64   `json:"confidence"`
}

// EnergyForecast is an ordered hourly forecast over a horizon.
type EnergyForecast struct {
	Kind        ForecastKind    `json:"kind"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Start       time.Time       `json:"start"`
	Days        int             `json:"days"`
	Points      []ForecastPoint `json:"points"`
}

// TotalKWH sums the point estimates.
func (f EnergyForecast) TotalKWH() float64 {
	var total float64
	for _, p := range f.Points {
		total += p.PointEstimate
	}
	return total
}

// At returns the forecast point for the hour containing t.
func (f EnergyForecast) At(t time.Time) (ForecastPoint, bool) {
	h := t.Truncate(time.Hour)
	for _, p := range f.Points {
		if p.Timestamp.Truncate(time.Hour).Equal(h) {
			return p, true
		}
	}
	return ForecastPoint{}, false
}

// MaintenancePrediction is the failure prediction for a single device.
type MaintenancePrediction struct {
	DeviceID             string             `json:"deviceID"`
	DeviceType           DeviceType         `json:"deviceType,omitempty"`
	GeneratedAt          time.Time          `json:"generatedAt"`
	FailureProbability   float64            `json:"failureProbability"`
	PredictedFailureDate *time.Time         `json:"predictedFailureDate,omitempty"`
	Confidence           float64            `json:"confidence"`
	DegradationRate      float64            `json:"degradationRate"`
	RecommendedActions   []string           `json:"recommendedActions"`
	FeatureImportance    map[string]float64 `json:"featureImportance,omitempty"`
	Features             *FeatureVector     `json:"features,omitempty"`
	InsufficientData     bool               `json:"insufficientData,omitempty"`
	ModelUnavailable     bool               `json:"modelUnavailable,omitempty"`
}

// Anomaly is a single flagged point.
type Anomaly struct {
	Index     int       `json:"index"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Severity  float64   `json:"severity"`
}

// AnomalyDetectionResult aggregates the anomalies found in a series.
type AnomalyDetectionResult struct {
	DeviceID     string    `json:"deviceID,omitempty"`
	HasAnomalies bool      `json:"hasAnomalies"`
	Count        int       `json:"count"`
	Confidence   float64   `json:"confidence"`
	Anomalies    []Anomaly `json:"anomalies"`
}
