// Package threshold turns continuous anomaly score maps into binary tumor
// predictions, either by Otsu's method per sample or with a fixed
// operating threshold.
package threshold

import (
	"fmt"
	"math"

	"bratseval/internal/models"
)

// Levels is the number of grey levels Otsu's histogram is built over
const Levels = 256

// flt32Epsilon matches the class-weight cut-off of the 8-bit reference
// algorithm, which skips splits where a class is (almost) empty.
const flt32Epsilon = 1.1920928955078125e-07

// Otsu picks the threshold that maximises between-class variance of the
// score values inside the foreground mask and binarises the whole map
// with score > threshold.
//
// Scores are expected in [0,1]. They are quantised to bytes by truncating
// v*255; the byte threshold t is mapped back to (t+1)/255, the upper edge
// of the background class, so every value that fell in the background
// bins stays at or below it.
func Otsu(score, foreground models.Plane) (float64, models.Plane, error) {
	if !score.SameShape(foreground) {
		return 0, models.Plane{}, fmt.Errorf("score is %dx%d, mask is %dx%d",
			score.Width, score.Height, foreground.Width, foreground.Height)
	}

	var hist [Levels]int
	for i, m := range foreground.Data {
		if m > 0 {
			hist[quantize(score.Data[i])]++
		}
	}

	t := otsuLevel(hist[:])
	thresh := float64(t+1) / float64(Levels-1)
	return thresh, Above(score, thresh), nil
}

// quantize maps a [0,1] score to a grey level the way a float-to-uint8
// cast does: scale, truncate, saturate.
func quantize(v float64) int {
	b := math.Floor(v * float64(Levels-1))
	if b < 0 || math.IsNaN(b) {
		return 0
	}
	if b > Levels-1 {
		return Levels - 1
	}
	return int(b)
}

// otsuLevel returns the grey level t maximising q1·q2·(μ1-μ2)², where
// class 1 holds levels ≤ t. Ties keep the lowest level, and an empty or
// single-valued histogram yields 0.
func otsuLevel(hist []int) int {
	n := 0
	mu := 0.0
	for i, h := range hist {
		n += h
		mu += float64(i) * float64(h)
	}
	if n == 0 {
		return 0
	}
	scale := 1.0 / float64(n)
	mu *= scale

	q1, mu1 := 0.0, 0.0
	maxSigma, maxLevel := 0.0, 0
	for i, h := range hist {
		pi := float64(h) * scale
		mu1 *= q1
		q1 += pi
		q2 := 1 - q1

		if math.Min(q1, q2) < flt32Epsilon || math.Max(q1, q2) > 1-flt32Epsilon {
			continue
		}

		mu1 = (mu1 + float64(i)*pi) / q1
		mu2 := (mu - q1*mu1) / q2
		sigma := q1 * q2 * (mu1 - mu2) * (mu1 - mu2)
		if sigma > maxSigma {
			maxSigma = sigma
			maxLevel = i
		}
	}
	return maxLevel
}

// Above returns 1 where score > thresh and 0 elsewhere
func Above(score models.Plane, thresh float64) models.Plane {
	out := models.NewPlane(score.Width, score.Height)
	for i, v := range score.Data {
		if v > thresh {
			out.Data[i] = 1
		}
	}
	return out
}

// AtLeast returns 1 where score >= thresh and 0 elsewhere
func AtLeast(score models.Plane, thresh float64) models.Plane {
	out := models.NewPlane(score.Width, score.Height)
	for i, v := range score.Data {
		if v >= thresh {
			out.Data[i] = 1
		}
	}
	return out
}
