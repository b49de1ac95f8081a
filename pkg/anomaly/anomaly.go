// Package anomaly flags points in a numeric series that deviate from the
// trailing baseline that precedes them.
package anomaly

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	// DefaultThreshold is the minimum severity for a point to be anomalous.
	DefaultThreshold = 0.8
	// fullSeveritySigma is the deviation, in standard deviations, that maps
	// to severity 1.
	fullSeveritySigma = 5.0
)

// Options tunes detection. Zero values select the defaults.
type Options struct {
	// WindowSize is the number of preceding points in each baseline.
	// Defaults to a quarter of the series length, at least 1.
	WindowSize int
	// Threshold on the 0-1 severity scale.
	Threshold float64
}

func (o Options) withDefaults(n int) Options {
	if o.WindowSize <= 0 {
		o.WindowSize = n / 4
		if o.WindowSize < 1 {
			o.WindowSize = 1
		}
	}
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	return o
}

// Detect scores every point that has a full window before it against the
// mean and population standard deviation of that window. timestamps may be
// nil or shorter than values.
func Detect(values []float64, timestamps []time.Time, opts Options) types.AnomalyDetectionResult {
	opts = opts.withDefaults(len(values))
	res := types.AnomalyDetectionResult{
		Anomalies: []types.Anomaly{},
	}

	var total float64
	for i := opts.WindowSize; i < len(values); i++ {
		sev := Severity(values[i], values[i-opts.WindowSize:i])
		if sev <= opts.Threshold {
			continue
		}
		a := types.Anomaly{
			Index:    i,
			Value:    values[i],
			Severity: sev,
		}
		if i < len(timestamps) {
			a.Timestamp = timestamps[i]
		}
		res.Anomalies = append(res.Anomalies, a)
		total += sev
	}

	res.Count = len(res.Anomalies)
	res.HasAnomalies = res.Count > 0
	if res.HasAnomalies {
		res.Confidence = total / float64(res.Count)
	}
	return res
}

// Severity maps the deviation of v from baseline onto [0,1], reaching 1 at
// five standard deviations. A flat baseline scores 1 for any different
// value.
func Severity(v float64, baseline []float64) float64 {
	if len(baseline) == 0 {
		return 0
	}
	mean, variance := stat.PopMeanVariance(baseline, nil)
	std := math.Sqrt(variance)
	dev := math.Abs(v - mean)
	tol := 1e-9 * math.Max(1, math.Abs(mean))
	if std <= tol {
		if dev <= tol {
			return 0
		}
		return 1
	}
	return math.Min(dev/std/fullSeveritySigma, 1)
}
