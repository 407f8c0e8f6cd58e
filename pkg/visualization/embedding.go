package visualization

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	normalColor   = color.RGBA{B: 255, A: 255}
	abnormalColor = color.RGBA{R: 255, A: 255}
)

// Project2D maps each row of zs onto its first two principal components
// and rescales both coordinates to [0,1].
func Project2D(zs *mat.Dense) (*mat.Dense, error) {
	n, d := zs.Dims()
	if n < 2 {
		return nil, fmt.Errorf("need at least 2 latent codes, got %d", n)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(zs, nil); !ok {
		return nil, fmt.Errorf("principal component analysis failed")
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	k := 2
	if d < k {
		k = d
	}
	var proj mat.Dense
	proj.Mul(zs, vecs.Slice(0, d, 0, k))

	out := mat.NewDense(n, 2, nil)
	for j := 0; j < k; j++ {
		col := mat.Col(nil, j, &proj)
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range col {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		span := hi - lo
		for i, v := range col {
			if span > 0 {
				out.Set(i, j, (v-lo)/span)
			}
		}
	}
	return out, nil
}

// PlotEmbedding projects latent codes to 2D and draws three scatter
// panels: all codes, normal codes (label 0) and abnormal codes (label 1).
func PlotEmbedding(zs *mat.Dense, labels []float64, outPath string, size vg.Length, dpi int) error {
	n, _ := zs.Dims()
	if len(labels) != n {
		return fmt.Errorf("%d latent codes but %d labels", n, len(labels))
	}
	pts, err := Project2D(zs)
	if err != nil {
		return err
	}

	var normal, abnormal plotter.XYs
	for i, l := range labels {
		xy := plotter.XY{X: pts.At(i, 0), Y: pts.At(i, 1)}
		switch l {
		case 0:
			normal = append(normal, xy)
		case 1:
			abnormal = append(abnormal, xy)
		}
	}

	all, err := scatterPlot("all", normal, abnormal)
	if err != nil {
		return err
	}
	normalOnly, err := scatterPlot("Normal", normal, nil)
	if err != nil {
		return err
	}
	abnormalOnly, err := scatterPlot("abnormal", nil, abnormal)
	if err != nil {
		return err
	}

	return savePNG([][]*plot.Plot{{all, normalOnly, abnormalOnly}}, 3*size, size, dpi, outPath)
}

func scatterPlot(title string, normal, abnormal plotter.XYs) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	for _, set := range []struct {
		pts plotter.XYs
		c   color.Color
	}{{normal, normalColor}, {abnormal, abnormalColor}} {
		if len(set.pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(set.pts)
		if err != nil {
			return nil, err
		}
		s.GlyphStyle.Color = set.c
		s.GlyphStyle.Radius = vg.Points(2)
		p.Add(s)
	}
	return p, nil
}
