package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"bratseval/internal/models"
)

// DefaultMinPositivePixels is the smallest tumor area, in pixels, for a
// slice to be considered anomalous
const DefaultMinPositivePixels = 200

// AUROC computes the area under the ROC curve of each score plane against
// its binary target and averages over the samples that contain an anomaly.
// A sample whose target has minPositive or fewer positive pixels does not
// contribute; if no sample contributes the result is NoAnomaly.
func AUROC(scores, targets []models.Plane, minPositive int) (Result, error) {
	if err := checkBatch(scores, targets); err != nil {
		return NoAnomaly(), err
	}

	total, n := 0.0, 0
	for i := range scores {
		if floats.Sum(targets[i].Data) <= float64(minPositive) {
			continue
		}
		auc, err := sampleAUROC(scores[i].Data, targets[i].Data)
		if err != nil {
			return NoAnomaly(), fmt.Errorf("sample %d: %w", i, err)
		}
		total += auc
		n++
	}
	if n == 0 {
		return NoAnomaly(), nil
	}
	return Score(total / float64(n)), nil
}

// sampleAUROC evaluates every distinct score as a cutoff, so tied scores
// contribute a diagonal segment as in the rank-based definition.
func sampleAUROC(score, target []float64) (float64, error) {
	y := append([]float64(nil), score...)
	inds := make([]int, len(y))
	floats.Argsort(y, inds)

	classes := make([]bool, len(y))
	pos := 0
	for i, idx := range inds {
		classes[i] = target[idx] > 0
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(classes) {
		return 0, ErrSingleClass
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}
