// Package visualization renders the evaluation diagnostics as PNG figures:
// training curves, per-sample prediction panels and latent embeddings.
package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"bratseval/internal/models"
)

// planeGrid exposes a plane as a heat map grid with row 0 drawn at the top
type planeGrid struct {
	p models.Plane
}

func (g planeGrid) Dims() (c, r int) { return g.p.Width, g.p.Height }

func (g planeGrid) Z(c, r int) float64 { return g.p.At(c, g.p.Height-1-r) }

func (g planeGrid) X(c int) float64 { return float64(c) }

func (g planeGrid) Y(r int) float64 { return float64(r) }

// grayPalette maps low values to black and high values to white
type grayPalette int

func (n grayPalette) Colors() []color.Color {
	cs := make([]color.Color, int(n))
	for i := range cs {
		v := uint8(255 * i / (int(n) - 1))
		cs[i] = color.Gray{Y: v}
	}
	return cs
}

// spectralStops are the reversed Spectral colour stops, blue to red
var spectralStops = []string{
	"#5e4fa2", "#3288bd", "#66c2a5", "#abdda4", "#e6f598", "#ffffbf",
	"#fee08b", "#fdae61", "#f46d43", "#d53e4f", "#9e0142",
}

// spectralPalette interpolates spectralStops in Lab space
type spectralPalette int

func (n spectralPalette) Colors() []color.Color {
	stops := make([]colorful.Color, len(spectralStops))
	for i, hex := range spectralStops {
		c, err := colorful.Hex(hex)
		if err != nil {
			panic(fmt.Sprintf("bad palette stop %s: %v", hex, err))
		}
		stops[i] = c
	}

	cs := make([]color.Color, int(n))
	segments := float64(len(stops) - 1)
	for i := range cs {
		pos := float64(i) / float64(int(n)-1) * segments
		k := int(pos)
		if k >= len(stops)-1 {
			cs[i] = stops[len(stops)-1].Clamped()
			continue
		}
		cs[i] = stops[k].BlendLab(stops[k+1], pos-float64(k)).Clamped()
	}
	return cs
}

// imagePlot draws p as a heat map with fixed value bounds. When lo >= hi
// the plane's own range is used.
func imagePlot(title string, p models.Plane, pal palette.Palette, lo, hi float64) *plot.Plot {
	plt := plot.New()
	plt.Title.Text = title
	plt.HideAxes()

	if lo >= hi {
		lo, hi = p.Min(), p.Max()
		if lo >= hi {
			hi = lo + 1
		}
	}
	hm := plotter.NewHeatMap(planeGrid{p: p}, pal)
	hm.Min, hm.Max = lo, hi
	hm.Rasterized = true
	plt.Add(hm)
	return plt
}

// blankPlot fills an unused tile
func blankPlot() *plot.Plot {
	plt := plot.New()
	plt.HideAxes()
	return plt
}

// savePNG lays plots out row-major on one canvas and writes it to path
func savePNG(plots [][]*plot.Plot, width, height vg.Length, dpi int, path string) error {
	if len(plots) == 0 || len(plots[0]) == 0 {
		return fmt.Errorf("nothing to draw")
	}
	for j := range plots {
		for i := range plots[j] {
			if plots[j][i] == nil {
				plots[j][i] = blankPlot()
			}
		}
	}

	img := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(dpi))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(plots),
		Cols:      len(plots[0]),
		PadX:      vg.Millimeter,
		PadY:      vg.Millimeter,
		PadTop:    vg.Points(2),
		PadBottom: vg.Points(2),
		PadLeft:   vg.Points(2),
		PadRight:  vg.Points(2),
	}

	canvases := plot.Align(plots, tiles, dc)
	for j := range plots {
		for i := range plots[j] {
			plots[j][i].Draw(canvases[j][i])
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create figure directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure: %w", err)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode figure: %w", err)
	}
	return f.Close()
}
