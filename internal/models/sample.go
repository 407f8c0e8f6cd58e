package models

import "fmt"

// SampleRecord represents one stored inference result for a single MRI
// slice: the input modalities, the segmentation label and the model's
// reconstruction of the input.
type SampleRecord struct {
	// Name is the file name the record was loaded from
	Name string

	// Image holds the input modalities scaled to [0,1]
	Image [NumModalities]Plane

	// Label holds the integer segmentation class of each pixel
	// (0 background, 1 necrotic core, 2 edema, 4 enhancing tumor)
	Label Plane

	// Generated holds the reconstructed modalities scaled to [0,1]
	Generated [NumModalities]Plane
}

// Width returns the spatial width shared by every plane
func (r *SampleRecord) Width() int { return r.Label.Width }

// Height returns the spatial height shared by every plane
func (r *SampleRecord) Height() int { return r.Label.Height }

// Validate checks that every plane shares the label's dimensions
func (r *SampleRecord) Validate() error {
	for c := 0; c < NumModalities; c++ {
		if !r.Image[c].SameShape(r.Label) {
			return fmt.Errorf("image channel %d is %dx%d, label is %dx%d",
				c, r.Image[c].Width, r.Image[c].Height, r.Label.Width, r.Label.Height)
		}
		if !r.Generated[c].SameShape(r.Label) {
			return fmt.Errorf("generated channel %d is %dx%d, label is %dx%d",
				c, r.Generated[c].Width, r.Generated[c].Height, r.Label.Width, r.Label.Height)
		}
	}
	return nil
}

// ScoreKind selects how per-channel differences become an anomaly score
type ScoreKind string

const (
	// ScoreAbsolute averages |generated - image| over channels
	ScoreAbsolute ScoreKind = "abs"

	// ScoreSquared averages (generated - image)^2 over channels
	ScoreSquared ScoreKind = "squared"
)

// ChannelErrors returns the per-channel error maps between the input and
// the reconstruction.
func (r *SampleRecord) ChannelErrors(kind ScoreKind) [NumModalities]Plane {
	var out [NumModalities]Plane
	for c := 0; c < NumModalities; c++ {
		p := NewPlane(r.Width(), r.Height())
		img, gen := r.Image[c].Data, r.Generated[c].Data
		for i := range p.Data {
			d := gen[i] - img[i]
			if kind == ScoreSquared {
				p.Data[i] = d * d
			} else if d < 0 {
				p.Data[i] = -d
			} else {
				p.Data[i] = d
			}
		}
		out[c] = p
	}
	return out
}

// AnomalyScore averages the channel errors into a single score map
func (r *SampleRecord) AnomalyScore(kind ScoreKind) Plane {
	errs := r.ChannelErrors(kind)
	score := NewPlane(r.Width(), r.Height())
	for c := 0; c < NumModalities; c++ {
		for i, v := range errs[c].Data {
			score.Data[i] += v
		}
	}
	for i := range score.Data {
		score.Data[i] /= NumModalities
	}
	return score
}

// Prediction pairs a continuous anomaly score map with its binarised form.
// Metrics pick whichever representation they need.
type Prediction struct {
	Score  Plane
	Binary Plane
}
