// Package metrics scores binarised or continuous anomaly predictions against
// tumor region masks.
package metrics

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrShapeMismatch is returned when prediction and target batches differ
	// in length or when paired planes differ in dimensions
	ErrShapeMismatch = errors.New("the input and target images should share the same shape")

	// ErrEmptyBatch is returned when there is nothing to score
	ErrEmptyBatch = errors.New("empty batch")

	// ErrSingleClass is returned when AUROC is requested for a target with
	// no negative pixels
	ErrSingleClass = errors.New("only one class present in target")
)

// Result is the outcome of a metric on one sample or batch. It either holds
// a score or records that the target had no anomaly large enough to score.
type Result struct {
	value   float64
	present bool
}

// Score wraps a computed metric value
func Score(v float64) Result {
	return Result{value: v, present: true}
}

// NoAnomaly marks a sample whose target has too few positive pixels
func NoAnomaly() Result {
	return Result{}
}

// Value returns the score and whether one was computed
func (r Result) Value() (float64, bool) {
	return r.value, r.present
}

// IsNoAnomaly reports whether the metric was skipped for lack of tumor
func (r Result) IsNoAnomaly() bool {
	return !r.present
}

func (r Result) String() string {
	if !r.present {
		return "no-anomaly"
	}
	return strconv.FormatFloat(r.value, 'g', -1, 64)
}

func shapeError(i int, pw, ph, tw, th int) error {
	return fmt.Errorf("%w: sample %d prediction is %dx%d, target is %dx%d", ErrShapeMismatch, i, pw, ph, tw, th)
}
