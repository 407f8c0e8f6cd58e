package metrics

import (
	"fmt"

	"bratseval/internal/models"
	"bratseval/pkg/mask"
)

// Metric is a named scoring strategy. Compute receives the sample's
// prediction and its raw segmentation label; region selection happens
// inside the metric.
type Metric interface {
	Name() string
	Compute(pred models.Prediction, label models.Plane) (Result, error)
}

// DiceMetric scores the binarised prediction against a tumor region
type DiceMetric struct {
	Region  mask.Region
	Epsilon float64
}

func (m DiceMetric) Name() string { return "DICE_" + string(m.Region) }

func (m DiceMetric) Compute(pred models.Prediction, label models.Plane) (Result, error) {
	target, err := mask.RegionMask(label, m.Region)
	if err != nil {
		return NoAnomaly(), err
	}
	d, err := Dice([]models.Plane{pred.Binary}, []models.Plane{target}, m.Epsilon)
	if err != nil {
		return NoAnomaly(), err
	}
	return Score(d), nil
}

// AUROCMetric scores the continuous prediction against a tumor region
type AUROCMetric struct {
	Region            mask.Region
	MinPositivePixels int
}

func (m AUROCMetric) Name() string { return "AUROC_" + string(m.Region) }

func (m AUROCMetric) Compute(pred models.Prediction, label models.Plane) (Result, error) {
	target, err := mask.RegionMask(label, m.Region)
	if err != nil {
		return NoAnomaly(), err
	}
	return AUROC([]models.Plane{pred.Score}, []models.Plane{target}, m.MinPositivePixels)
}

// Registry holds metrics in registration order, which is also the column
// order of result tables.
type Registry struct {
	metrics []Metric
	byName  map[string]Metric
}

// NewRegistry registers each metric in order
func NewRegistry(ms ...Metric) (*Registry, error) {
	r := &Registry{byName: make(map[string]Metric)}
	for _, m := range ms {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ForRegion returns Dice and AUROC for the given region
func ForRegion(region mask.Region, epsilon float64, minPositive int) *Registry {
	r, _ := NewRegistry(
		DiceMetric{Region: region, Epsilon: epsilon},
		AUROCMetric{Region: region, MinPositivePixels: minPositive},
	)
	return r
}

// Register adds m; names must be unique
func (r *Registry) Register(m Metric) error {
	if _, dup := r.byName[m.Name()]; dup {
		return fmt.Errorf("metric %s already registered", m.Name())
	}
	r.metrics = append(r.metrics, m)
	r.byName[m.Name()] = m
	return nil
}

// Get looks up a metric by name
func (r *Registry) Get(name string) (Metric, bool) {
	m, ok := r.byName[name]
	return m, ok
}

// Names returns metric names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.metrics))
	for i, m := range r.metrics {
		names[i] = m.Name()
	}
	return names
}

// Metrics returns the registered metrics in order
func (r *Registry) Metrics() []Metric {
	return append([]Metric(nil), r.metrics...)
}

// ComputeAll runs every metric on one sample, keyed by name
func (r *Registry) ComputeAll(pred models.Prediction, label models.Plane) (map[string]Result, error) {
	out := make(map[string]Result, len(r.metrics))
	for _, m := range r.metrics {
		res, err := m.Compute(pred, label)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name(), err)
		}
		out[m.Name()] = res
	}
	return out, nil
}
