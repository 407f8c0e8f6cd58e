package metrics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"bratseval/internal/models"
)

// DefaultEpsilon smooths the Dice ratio for empty masks
const DefaultEpsilon = 1e-6

// Dice computes (2·|P∩T| + eps) / (|P| + |T| + eps) for each pair of binary
// planes and averages over the batch.
func Dice(preds, targets []models.Plane, epsilon float64) (float64, error) {
	if err := checkBatch(preds, targets); err != nil {
		return 0, err
	}

	total := 0.0
	for i := range preds {
		dot := floats.Dot(preds[i].Data, targets[i].Data)
		sum := floats.Sum(preds[i].Data) + floats.Sum(targets[i].Data)
		total += (2*dot + epsilon) / (sum + epsilon)
	}
	return total / float64(len(preds)), nil
}

func checkBatch(preds, targets []models.Plane) error {
	if len(preds) != len(targets) {
		return fmt.Errorf("%w: %d predictions, %d targets", ErrShapeMismatch, len(preds), len(targets))
	}
	if len(preds) == 0 {
		return ErrEmptyBatch
	}
	for i := range preds {
		if !preds[i].SameShape(targets[i]) {
			return shapeError(i, preds[i].Width, preds[i].Height, targets[i].Width, targets[i].Height)
		}
	}
	return nil
}
