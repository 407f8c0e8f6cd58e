// Package mask derives binary masks from BraTS segmentation labels and from
// the input images, and preprocesses anomaly score maps before thresholding.
package mask

import (
	"errors"
	"fmt"
	"strings"

	"bratseval/internal/models"
)

// Region is a grouping of BraTS tumor classes scored as one foreground
type Region string

const (
	// EnhancingTumor selects class 1
	EnhancingTumor Region = "ET"

	// TumorCore selects classes 1 and 4
	TumorCore Region = "TC"

	// WholeTumor selects classes 1, 2 and 4
	WholeTumor Region = "WT"
)

// ErrInvalidRegion is returned for region names outside ET, TC, WT
var ErrInvalidRegion = errors.New("invalid region")

// Regions lists the supported regions, innermost first
var Regions = []Region{EnhancingTumor, TumorCore, WholeTumor}

// ParseRegion accepts ET, TC or WT in any case
func ParseRegion(name string) (Region, error) {
	r := Region(strings.ToUpper(strings.TrimSpace(name)))
	if _, ok := regionClasses[r]; !ok {
		return "", fmt.Errorf("%w %q: region type should be one of ET, TC, WT", ErrInvalidRegion, name)
	}
	return r, nil
}

var regionClasses = map[Region][]float64{
	EnhancingTumor: {1},
	TumorCore:      {1, 4},
	WholeTumor:     {1, 2, 4},
}

// Classes returns the label values that belong to the region
func (r Region) Classes() []float64 {
	return append([]float64(nil), regionClasses[r]...)
}

// RegionMask marks pixels whose label falls in the region's class set
func RegionMask(label models.Plane, region Region) (models.Plane, error) {
	classes, ok := regionClasses[region]
	if !ok {
		return models.Plane{}, fmt.Errorf("%w %q: region type should be one of ET, TC, WT", ErrInvalidRegion, string(region))
	}

	out := models.NewPlane(label.Width, label.Height)
	for i, v := range label.Data {
		for _, c := range classes {
			if v == c {
				out.Data[i] = 1
				break
			}
		}
	}
	return out, nil
}
