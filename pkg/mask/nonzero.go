package mask

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"bratseval/internal/models"
)

// ErrShapeMismatch is returned when planes that must align do not
var ErrShapeMismatch = errors.New("shape mismatch")

// NonzeroMask marks the brain foreground. The reference level is the
// minimum over every channel rather than zero, so images normalised to
// [-1,1] work too. A pixel is foreground only when every channel is
// strictly above that minimum.
func NonzeroMask(images []models.Plane) (models.Plane, error) {
	if len(images) == 0 {
		return models.Plane{}, fmt.Errorf("nonzero mask needs at least one channel")
	}
	ref := images[0]
	globalMin := math.Inf(1)
	for c, img := range images {
		if !img.SameShape(ref) {
			return models.Plane{}, fmt.Errorf("%w: channel %d is %dx%d, channel 0 is %dx%d",
				ErrShapeMismatch, c, img.Width, img.Height, ref.Width, ref.Height)
		}
		globalMin = math.Min(globalMin, img.Min())
	}

	out := models.NewPlane(ref.Width, ref.Height)
	for i := range out.Data {
		fg := 1.0
		for _, img := range images {
			if !(img.Data[i] > globalMin) {
				fg = 0
				break
			}
		}
		out.Data[i] = fg
	}
	return out, nil
}

// ApplyBackground returns a copy of target where background pixels of the
// mask are replaced by target's own minimum, keeping extrema-sensitive
// steps like Otsu quantisation unbiased by padding.
func ApplyBackground(target, mask models.Plane) (models.Plane, error) {
	if !target.SameShape(mask) {
		return models.Plane{}, fmt.Errorf("%w: target is %dx%d, mask is %dx%d",
			ErrShapeMismatch, target.Width, target.Height, mask.Width, mask.Height)
	}
	low := target.Min()
	out := target.Clone()
	for i, m := range mask.Data {
		out.Data[i] = target.Data[i]*m + low*(1-m)
	}
	return out, nil
}

// MaskImages computes the foreground of images and applies it to target
func MaskImages(images []models.Plane, target models.Plane) (masked, foreground models.Plane, err error) {
	foreground, err = NonzeroMask(images)
	if err != nil {
		return models.Plane{}, models.Plane{}, err
	}
	masked, err = ApplyBackground(target, foreground)
	if err != nil {
		return models.Plane{}, models.Plane{}, err
	}
	return masked, foreground, nil
}

// Noise clipping bounds, in [0,1]
const (
	LowerPercentile = 0.01
	UpperPercentile = 0.99
)

// RemoveNoise zeroes values outside the [1st, 99th] percentile range,
// suppressing scanner artifacts before thresholding.
func RemoveNoise(score models.Plane) models.Plane {
	out := score.Clone()
	if score.Len() == 0 {
		return out
	}
	lo, hi := Percentiles(score.Data, LowerPercentile, UpperPercentile)
	for i, v := range out.Data {
		if v < lo || v > hi {
			out.Data[i] = 0
		}
	}
	return out
}

// Percentiles returns the lower and upper quantiles of data, interpolating
// linearly between the order statistics at rank q·(n-1).
func Percentiles(data []float64, lower, upper float64) (float64, float64) {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	return quantile(sorted, lower), quantile(sorted, upper)
}

// quantile reads q from already sorted values
func quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := q * float64(n-1)
	lo := int(math.Floor(h))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}
