package maintenance

import (
	"fmt"
	"math"
	"sync"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// Classifier is a binary failure classifier over the feature vector.
type Classifier interface {
	Predict(fv types.FeatureVector) (probability, confidence float64, err error)
}

// Explainer is optionally implemented by classifiers that can attribute a
// prediction to individual features.
type Explainer interface {
	Importance(fv types.FeatureVector) map[string]float64
}

// Registry maps device types to classifiers.
type Registry struct {
	mu       sync.RWMutex
	byType   map[types.DeviceType]Classifier
	fallback Classifier
}

// NewRegistry returns an empty registry. Without a fallback, devices of an
// unregistered type get a zero-confidence prediction.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[types.DeviceType]Classifier)}
}

// DefaultRegistry uses the default logistic classifier for every type
// except meters, which have nothing to wear out.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.SetFallback(DefaultLogisticClassifier())
	r.Register(types.DeviceTypeMeter, nil)
	return r
}

// Register sets the classifier for a device type. A nil classifier marks
// the type as having no model, overriding the fallback.
func (r *Registry) Register(t types.DeviceType, c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = c
}

// SetFallback sets the classifier used for unregistered types.
func (r *Registry) SetFallback(c Classifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = c
}

// Lookup returns the classifier for a device type.
func (r *Registry) Lookup(t types.DeviceType) (Classifier, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byType[t]; ok {
		return c, c != nil
	}
	return r.fallback, r.fallback != nil
}

// LogisticClassifier is a logistic regression over scaled features:
// p = sigmoid(Bias + sum(Weights[i] * x[i] / Scale[i])).
type LogisticClassifier struct {
	Bias    float64
	Weights []float64
	Scale   []float64
}

// DefaultLogisticClassifier weighs the anomaly score, power and
// temperature trends, time since maintenance and age.
func DefaultLogisticClassifier() *LogisticClassifier {
	return &LogisticClassifier{
		Bias: -3,
		// order matches types.FeatureNames
		Weights: []float64{0, 0.5, 0, 0, 0.5, 1, 1, 1.5, 3, 0.5, 0},
		Scale:   []float64{1, 1000, 1, 1, 100, 10, 0.5, 365, 1, 5 * 8760, 1},
	}
}

func (c *LogisticClassifier) validate() error {
	n := len(types.FeatureNames)
	if len(c.Weights) != n || len(c.Scale) != n {
		return fmt.Errorf("logistic classifier needs %d weights and scales, got %d and %d", n, len(c.Weights), len(c.Scale))
	}
	return nil
}

func (c *LogisticClassifier) terms(fv types.FeatureVector) []float64 {
	x := fv.Slice()
	terms := make([]float64, len(x))
	for i, v := range x {
		scale := c.Scale[i]
		if scale == 0 {
			scale = 1
		}
		terms[i] = c.Weights[i] * v / scale
	}
	return terms
}

// Predict implements Classifier. Confidence grows with distance from the
// decision boundary, from 0.5 at p=0.5 to 1 at p=0 or p=1.
func (c *LogisticClassifier) Predict(fv types.FeatureVector) (float64, float64, error) {
	if err := c.validate(); err != nil {
		return 0, 0, err
	}
	z := c.Bias
	for _, t := range c.terms(fv) {
		z += t
	}
	p := 1 / (1 + math.Exp(-z))
	if math.IsNaN(p) {
		return 0, 0, fmt.Errorf("classifier produced NaN")
	}
	return p, 0.5 + math.Abs(p-0.5), nil
}

// Importance implements Explainer: each feature's share of the absolute
// weighted input.
func (c *LogisticClassifier) Importance(fv types.FeatureVector) map[string]float64 {
	if c.validate() != nil {
		return nil
	}
	terms := c.terms(fv)
	var total float64
	for _, t := range terms {
		total += math.Abs(t)
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return map[string]float64{}
	}
	importance := make(map[string]float64, len(terms))
	for i, t := range terms {
		if t != 0 {
			importance[types.FeatureNames[i]] = math.Abs(t) / total
		}
	}
	return importance
}
