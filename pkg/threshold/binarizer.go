package threshold

import (
	"fmt"

	"bratseval/internal/models"
)

// Binarizer decides the operating threshold for one score map and returns
// the binary prediction it implies. foreground marks the brain pixels.
type Binarizer interface {
	Binarize(score, foreground models.Plane) (float64, models.Plane, error)
	Name() string
}

// Fixer is implemented by binarizers that can report whether they use one
// threshold for every sample
type Fixer interface {
	Fixed() (float64, bool)
}

// OtsuBinarizer searches a threshold per sample with Otsu's method
type OtsuBinarizer struct{}

func (OtsuBinarizer) Name() string { return "otsu" }

// Fixed reports false: the threshold differs per sample
func (OtsuBinarizer) Fixed() (float64, bool) { return 0, false }

func (OtsuBinarizer) Binarize(score, foreground models.Plane) (float64, models.Plane, error) {
	return Otsu(score, foreground)
}

// FixedBinarizer applies the same threshold to every sample, marking
// score >= Threshold as tumor. The foreground mask is only checked for
// shape.
type FixedBinarizer struct {
	Threshold float64
}

func (b FixedBinarizer) Name() string { return fmt.Sprintf("fixed(%g)", b.Threshold) }

// Fixed returns the threshold applied to every sample
func (b FixedBinarizer) Fixed() (float64, bool) { return b.Threshold, true }

func (b FixedBinarizer) Binarize(score, foreground models.Plane) (float64, models.Plane, error) {
	if !score.SameShape(foreground) {
		return 0, models.Plane{}, fmt.Errorf("score is %dx%d, mask is %dx%d",
			score.Width, score.Height, foreground.Width, foreground.Height)
	}
	return b.Threshold, AtLeast(score, b.Threshold), nil
}
