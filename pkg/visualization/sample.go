package visualization

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"bratseval/internal/models"
	"bratseval/pkg/mask"
	"bratseval/pkg/threshold"
)

// SampleFigure holds the intermediate maps drawn for one sample
type SampleFigure struct {
	Threshold    float64
	Score        models.Plane
	Segmentation models.Plane
	ChannelError [models.NumModalities]models.Plane
}

// AnalyzeSample computes the maps shown in a sample panel: the denoised,
// brain-masked score map, its Otsu segmentation, and per-channel errors
// denoised over all channels jointly.
func AnalyzeSample(rec *models.SampleRecord) (*SampleFigure, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	score := mask.RemoveNoise(rec.AnomalyScore(models.ScoreAbsolute))
	score, fg, err := mask.MaskImages(rec.Image[:], score)
	if err != nil {
		return nil, err
	}
	thresh, seg, err := threshold.Otsu(score, fg)
	if err != nil {
		return nil, err
	}

	fig := &SampleFigure{Threshold: thresh, Score: score, Segmentation: seg}

	errs := rec.ChannelErrors(models.ScoreAbsolute)
	var all []float64
	for _, e := range errs {
		all = append(all, e.Data...)
	}
	lo, hi := mask.Percentiles(all, mask.LowerPercentile, mask.UpperPercentile)
	for c, e := range errs {
		clipped := e.Clone()
		for i, v := range clipped.Data {
			if v < lo || v > hi {
				clipped.Data[i] = 0
			}
		}
		fig.ChannelError[c] = clipped
	}
	return fig, nil
}

// PlotSample draws a 4x4 panel for rec: input channels, generated
// channels, per-channel errors, then ground truth, segmentation and the
// score restricted to the segmentation. It returns the Otsu threshold.
func PlotSample(rec *models.SampleRecord, outPath string, size vg.Length, dpi int) (float64, error) {
	fig, err := AnalyzeSample(rec)
	if err != nil {
		return 0, err
	}

	gray := grayPalette(256)
	grid := make([][]*plot.Plot, 4)
	for r := range grid {
		grid[r] = make([]*plot.Plot, 4)
	}
	for c := 0; c < models.NumModalities; c++ {
		grid[0][c] = imagePlot(fmt.Sprintf("image(channel%d)", c), rec.Image[c], gray, 0, 1)
		grid[1][c] = imagePlot(fmt.Sprintf("generated(channel%d)", c), rec.Generated[c], gray, 0, 1)
		grid[2][c] = imagePlot(fmt.Sprintf("pred(channel%d)", c), fig.ChannelError[c], gray, 0, 0)
	}

	truth := models.NewPlane(rec.Width(), rec.Height())
	for i, v := range rec.Label.Data {
		if v > 0 {
			truth.Data[i] = 1
		}
	}
	overlay := fig.Score.Clone()
	for i := range overlay.Data {
		overlay.Data[i] *= fig.Segmentation.Data[i]
	}

	grid[3][1] = imagePlot("ground truth", truth, gray, 0, 1)
	grid[3][2] = imagePlot("segmentation", fig.Segmentation, gray, 0, 1)
	grid[3][3] = imagePlot("image+segmentation", overlay, spectralPalette(256), 0, 1)

	if err := savePNG(grid, size, size, dpi, outPath); err != nil {
		return 0, err
	}
	return fig.Threshold, nil
}
